// Package auth provides authentication and authorization services.
package auth

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/narvanalabs/locum/internal/models"
)

// Common errors returned by the auth service.
var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrExpiredToken     = errors.New("token has expired")
	ErrMissingClaims    = errors.New("missing required claims")
	ErrInvalidSignature = errors.New("invalid token signature")
	ErrInvalidActorRole = errors.New("invalid actor role")
)

// Claims represents the JWT claims structure.
type Claims struct {
	UserID string           `json:"user_id"`
	Email  string           `json:"email"`
	Role   models.ActorRole `json:"role"`
	Exp    time.Time        `json:"exp"`
}

// Actor converts the claims into the identity the lifecycle engine acts for.
func (c *Claims) Actor() models.Actor {
	return models.Actor{ID: c.UserID, Email: c.Email, Role: c.Role}
}

// Config holds authentication configuration.
type Config struct {
	JWTSecret   []byte
	TokenExpiry time.Duration
}

// Service issues and validates session tokens.
type Service struct {
	jwtSecret   []byte
	tokenExpiry time.Duration
	parser      *jwt.Parser
	logger      *slog.Logger
}

// NewService creates a new authentication service.
func NewService(cfg *Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		jwtSecret:   cfg.JWTSecret,
		tokenExpiry: cfg.TokenExpiry,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
			jwt.WithLeeway(clockSkew),
		),
		logger: logger,
	}
}

// sessionClaims is the signed payload of a session token. Subject carries
// the account ID.
type sessionClaims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// clockSkew tolerates small clock differences between the token issuer and this process.
const clockSkew = 5 * time.Second

// GenerateToken creates a new JWT token for the given user.
func (s *Service) GenerateToken(userID, email string, role models.ActorRole) (string, error) {
	if userID == "" {
		return "", ErrMissingClaims
	}
	if !role.IsValid() {
		return "", ErrInvalidActorRole
	}

	now := time.Now()
	claims := sessionClaims{
		Email: email,
		Role:  string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenExpiry)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
	if err != nil {
		s.logger.Error("failed to sign token", "error", err)
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// ValidateToken checks the signature and lifetime of a session token and
// returns its claims.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrInvalidToken
	}

	var sc sessionClaims
	tok, err := s.parser.ParseWithClaims(tokenString, &sc, func(*jwt.Token) (interface{}, error) {
		return s.jwtSecret, nil
	})
	switch {
	case err != nil && !signedWith(tok, jwt.SigningMethodHS256):
		// jwt reports a disallowed alg as a bad signature; it is a foreign token.
		return nil, ErrInvalidToken
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrExpiredToken
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return nil, ErrInvalidSignature
	case err != nil:
		return nil, ErrInvalidToken
	}

	if sc.Subject == "" || sc.ExpiresAt == nil {
		return nil, ErrMissingClaims
	}
	role := models.ActorRole(sc.Role)
	if !role.IsValid() {
		return nil, ErrInvalidActorRole
	}

	return &Claims{
		UserID: sc.Subject,
		Email:  sc.Email,
		Role:   role,
		Exp:    sc.ExpiresAt.Time,
	}, nil
}

// signedWith reports whether tok's header names method.
func signedWith(tok *jwt.Token, method jwt.SigningMethod) bool {
	return tok != nil && tok.Method != nil && tok.Method.Alg() == method.Alg()
}

// ExtractBearerToken extracts the token from a Bearer authorization header.
func ExtractBearerToken(authHeader string) string {
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}

	return strings.TrimSpace(parts[1])
}
