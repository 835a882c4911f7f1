package health

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Status is the aggregated health of the service.
type Status string

const (
	Healthy   Status = "ok"
	Degraded  Status = "degraded"
	Unhealthy Status = "error"
)

// CheckResult is the outcome of checking one component.
type CheckResult string

const (
	CheckOK    CheckResult = "ok"
	CheckError CheckResult = "error"
)

// Component names reported in Report.Checks.
const (
	CheckDatabase    = "database"
	CheckVectorIndex = "vector_index"
	CheckEmbedding   = "embedding"
	CheckGeneration  = "generation"
)

const defaultCheckTimeout = 3 * time.Second

// Report is the result of one Check call.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

// Config names the components to check. Nil components are not reported.
type Config struct {
	Database Pinger
	// VectorIndex is set only when vectors live outside Database.
	VectorIndex Pinger
	Embedding   HealthChecker
	Generation  HealthChecker
	// Timeout bounds each check; zero means three seconds.
	Timeout time.Duration
	Logger  *zap.Logger
}

type component struct {
	name string
	run  func(ctx context.Context) error
}

// Service checks the configured components in parallel.
type Service struct {
	components []component
	timeout    time.Duration
	logger     *zap.Logger
}

// New creates a Service.
func New(cfg Config) *Service {
	s := &Service{timeout: cfg.Timeout, logger: cfg.Logger}
	if s.timeout <= 0 {
		s.timeout = defaultCheckTimeout
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}

	add := func(name string, run func(context.Context) error) {
		s.components = append(s.components, component{name: name, run: run})
	}
	if cfg.Database != nil {
		add(CheckDatabase, cfg.Database.Ping)
	}
	if cfg.VectorIndex != nil {
		add(CheckVectorIndex, cfg.VectorIndex.Ping)
	}
	if cfg.Embedding != nil {
		add(CheckEmbedding, cfg.Embedding.HealthCheck)
	}
	if cfg.Generation != nil {
		add(CheckGeneration, cfg.Generation.HealthCheck)
	}
	return s
}

// Check runs every component check. The service is Unhealthy only when all
// checks fail and Degraded when some do.
func (s *Service) Check(ctx context.Context) Report {
	errs := make([]error, len(s.components))

	var wg sync.WaitGroup
	for i, p := range s.components {
		wg.Go(func() {
			pctx, cancel := context.WithTimeout(ctx, s.timeout)
			defer cancel()
			errs[i] = p.run(pctx)
		})
	}
	wg.Wait()

	report := Report{Status: Healthy, Checks: make(map[string]CheckResult, len(s.components))}
	failed := 0
	for i, p := range s.components {
		if errs[i] == nil {
			report.Checks[p.name] = CheckOK
			continue
		}
		s.logger.Warn("Health check failed", zap.String("component", p.name), zap.Error(errs[i]))
		report.Checks[p.name] = CheckError
		failed++
	}

	switch {
	case failed == 0:
	case failed == len(s.components):
		report.Status = Unhealthy
	default:
		report.Status = Degraded
	}
	return report
}
