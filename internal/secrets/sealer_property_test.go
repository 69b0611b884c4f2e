package secrets

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"reflect"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func genCredentials() gopter.Gen {
	return gen.MapOf(gen.Identifier(), gen.AlphaString()).Map(func(m map[string]string) Credentials {
		return Credentials(m)
	})
}

// Sealing then opening credentials returns the original fields, and sealed
// bytes never contain a plaintext value.
func TestSealRoundTrip(t *testing.T) {
	publicKey, privateKey, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("failed to generate key pair: %v", err)
	}

	s, err := NewSealer(&Config{AgePublicKey: publicKey, AgePrivateKey: privateKey}, quietLogger())
	if err != nil {
		t.Fatalf("failed to create sealer: %v", err)
	}

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("seal then open returns original credentials", prop.ForAll(
		func(creds Credentials) bool {
			ctx := context.Background()
			sealed, encrypted, err := s.Seal(ctx, creds)
			if err != nil || !encrypted {
				return false
			}
			for _, v := range creds {
				if len(v) > 8 && bytes.Contains(sealed, []byte(v)) {
					return false
				}
			}
			opened, err := s.Open(ctx, sealed, encrypted)
			if err != nil {
				return false
			}
			if len(creds) == 0 {
				return len(opened) == 0
			}
			return reflect.DeepEqual(map[string]string(opened), map[string]string(creds))
		},
		genCredentials(),
	))

	properties.TestingRun(t)
}

func TestSealWithoutKeyStoresPlainJSON(t *testing.T) {
	s, err := NewSealer(nil, quietLogger())
	if err != nil {
		t.Fatalf("NewSealer: %v", err)
	}
	if s.CanEncrypt() {
		t.Fatalf("expected no encryption without key")
	}

	ctx := context.Background()
	sealed, encrypted, err := s.Seal(ctx, Credentials{"licence": "GMC-1234567"})
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if encrypted {
		t.Fatalf("expected plain storage")
	}
	if !bytes.Contains(sealed, []byte("GMC-1234567")) {
		t.Fatalf("expected plain JSON, got %s", sealed)
	}
	opened, err := s.Open(ctx, sealed, false)
	if err != nil || opened["licence"] != "GMC-1234567" {
		t.Fatalf("Open: %v %v", opened, err)
	}
}

func TestOpenEncryptedWithoutPrivateKey(t *testing.T) {
	publicKey, _, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	s, err := NewSealer(&Config{AgePublicKey: publicKey}, quietLogger())
	if err != nil {
		t.Fatalf("NewSealer: %v", err)
	}
	sealed, _, err := s.Seal(context.Background(), Credentials{"a": "b"})
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if _, err := s.Open(context.Background(), sealed, true); !errors.Is(err, ErrNoPrivateKey) {
		t.Fatalf("expected ErrNoPrivateKey, got %v", err)
	}
}

func TestNewSealerRejectsBadKey(t *testing.T) {
	if _, err := NewSealer(&Config{AgePublicKey: "not-a-key"}, quietLogger()); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}
}
