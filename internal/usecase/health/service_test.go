package health

import (
	"context"
	"errors"
	"testing"
	"time"
)

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

type stubChecker struct{ err error }

func (p stubChecker) HealthCheck(context.Context) error { return p.err }

// hangingChecker blocks until its check context ends.
type hangingChecker struct{}

func (hangingChecker) HealthCheck(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

var errDown = errors.New("down")

func TestCheck(t *testing.T) {
	tests := []struct {
		name   string
		cfg    Config
		status Status
		checks map[string]CheckResult
	}{
		{
			name:   "all healthy",
			cfg:    Config{Database: stubPinger{}, Embedding: stubChecker{}, Generation: stubChecker{}},
			status: Healthy,
			checks: map[string]CheckResult{CheckDatabase: CheckOK, CheckEmbedding: CheckOK, CheckGeneration: CheckOK},
		},
		{
			name:   "database down",
			cfg:    Config{Database: stubPinger{err: errDown}, Embedding: stubChecker{}},
			status: Degraded,
			checks: map[string]CheckResult{CheckDatabase: CheckError, CheckEmbedding: CheckOK},
		},
		{
			name:   "separate vector index down",
			cfg:    Config{Database: stubPinger{}, VectorIndex: stubPinger{err: errDown}},
			status: Degraded,
			checks: map[string]CheckResult{CheckDatabase: CheckOK, CheckVectorIndex: CheckError},
		},
		{
			name:   "generation rejects key",
			cfg:    Config{Database: stubPinger{}, Generation: stubChecker{err: errors.New("401")}},
			status: Degraded,
			checks: map[string]CheckResult{CheckDatabase: CheckOK, CheckGeneration: CheckError},
		},
		{
			name:   "everything down",
			cfg:    Config{Database: stubPinger{err: errDown}, Embedding: stubChecker{err: errDown}},
			status: Unhealthy,
			checks: map[string]CheckResult{CheckDatabase: CheckError, CheckEmbedding: CheckError},
		},
		{
			name:   "nothing configured",
			status: Healthy,
			checks: map[string]CheckResult{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New(tt.cfg).Check(context.Background())

			if r.Status != tt.status {
				t.Errorf("status = %q, want %q", r.Status, tt.status)
			}
			if len(r.Checks) != len(tt.checks) {
				t.Errorf("checks = %v, want %v", r.Checks, tt.checks)
			}
			for name, want := range tt.checks {
				if r.Checks[name] != want {
					t.Errorf("%s = %q, want %q", name, r.Checks[name], want)
				}
			}
		})
	}
}

func TestCheck_Timeout(t *testing.T) {
	svc := New(Config{
		Database:   stubPinger{},
		Generation: hangingChecker{},
		Timeout:    20 * time.Millisecond,
	})

	start := time.Now()
	r := svc.Check(context.Background())

	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("Check took %s, check timeout not applied", elapsed)
	}
	if r.Status != Degraded || r.Checks[CheckGeneration] != CheckError {
		t.Errorf("unexpected report: %+v", r)
	}
}
