package health

import "context"

// Pinger is a storage backend that answers a round trip.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthChecker is a remote model API that can be checked without spending tokens.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}
