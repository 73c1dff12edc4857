package server

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Pinger is used for database readiness (e.g. *sql.DB).
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PolicyChecker is used for access policy readiness (e.g. the OPA evaluator).
type PolicyChecker interface {
	HealthCheck(ctx context.Context) error
}

// Readiness drives the gRPC health status from the database and the access policy.
// Nil dependencies are skipped.
type Readiness struct {
	health   *health.Server
	pinger   Pinger
	policy   PolicyChecker
	interval time.Duration
	timeout  time.Duration
	log      *zap.Logger
}

// NewReadiness returns a Readiness reporting on hs.
func NewReadiness(hs *health.Server, pinger Pinger, policy PolicyChecker, log *zap.Logger) *Readiness {
	if log == nil {
		log = zap.NewNop()
	}
	return &Readiness{
		health:   hs,
		pinger:   pinger,
		policy:   policy,
		interval: 10 * time.Second,
		timeout:  2 * time.Second,
		log:      log,
	}
}

// Check probes once and updates the overall ("") serving status.
func (r *Readiness) Check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	st := healthpb.HealthCheckResponse_SERVING
	if r.pinger != nil {
		if err := r.pinger.PingContext(ctx); err != nil {
			r.log.Warn("health: database ping failed", zap.Error(err))
			st = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	if r.policy != nil && st == healthpb.HealthCheckResponse_SERVING {
		if err := r.policy.HealthCheck(ctx); err != nil {
			r.log.Warn("health: policy check failed", zap.Error(err))
			st = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	r.health.SetServingStatus("", st)
	return st
}

// Run probes every interval until ctx is done, then marks the server as shutting down.
func (r *Readiness) Run(ctx context.Context) {
	r.Check(ctx)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.health.Shutdown()
			return
		case <-ticker.C:
			r.Check(ctx)
		}
	}
}
