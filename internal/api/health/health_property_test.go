package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

type mockPinger struct {
	fail  bool
	delay time.Duration
}

func (m *mockPinger) Ping(ctx context.Context) error {
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if m.fail {
		return errors.New("mock ping failed")
	}
	return nil
}

// The overall status is the worst component status: a failing store is
// unhealthy, a failing optional dependency is only degraded.
func TestPropertyOverallStatus(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("status aggregates components", prop.ForAll(
		func(dbHealthy, redisHealthy bool) bool {
			c := NewChecker(&mockPinger{fail: !dbHealthy}, "v1.0.0")
			c.AddOptional("redis", &mockPinger{fail: !redisHealthy})
			resp := c.Check(context.Background())

			want := StatusHealthy
			switch {
			case !dbHealthy:
				want = StatusUnhealthy
			case !redisHealthy:
				want = StatusDegraded
			}
			return resp.Status == want &&
				resp.Components["database"].Status != "" &&
				resp.Components["redis"].Status != ""
		},
		gen.Bool(),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

func TestHandlerStatusCodes(t *testing.T) {
	tests := []struct {
		name   string
		db     Pinger
		want   int
		status Status
	}{
		{"healthy", &mockPinger{}, http.StatusOK, StatusHealthy},
		{"store down", &mockPinger{fail: true}, http.StatusServiceUnavailable, StatusUnhealthy},
		{"no store", nil, http.StatusServiceUnavailable, StatusUnhealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			NewChecker(tt.db, "dev").Handler()(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
			if rr.Code != tt.want {
				t.Fatalf("status code = %d, want %d", rr.Code, tt.want)
			}
			var resp Response
			if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
				t.Fatalf("decoding: %v", err)
			}
			if resp.Status != tt.status || resp.Version != "dev" {
				t.Fatalf("response = %+v", resp)
			}
		})
	}
}

func TestCheckRespectsTimeout(t *testing.T) {
	c := NewChecker(&mockPinger{delay: time.Second}, "dev")
	c.SetTimeout(20 * time.Millisecond)

	start := time.Now()
	resp := c.Check(context.Background())
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("check took %v", elapsed)
	}
	if resp.Status != StatusUnhealthy {
		t.Fatalf("status = %s", resp.Status)
	}
}

func TestPingFunc(t *testing.T) {
	c := NewChecker(PingFunc(func(context.Context) error { return nil }), "dev")
	if got := c.Check(context.Background()).Status; got != StatusHealthy {
		t.Fatalf("status = %s", got)
	}
}
