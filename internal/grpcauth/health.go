package grpcauth

import (
	"context"
	"sync"
	"time"

	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"orbitdesk.io/internal/obs"
)

const defaultPingTimeout = 2 * time.Second

// Readiness keeps the overall gRPC health status in step with the store. A
// replica whose database is gone answers NOT_SERVING so balancers drain it.
type Readiness struct {
	health  *health.Server
	ping    func(context.Context) error
	timeout time.Duration

	mu      sync.Mutex
	serving *bool
}

// NewReadiness publishes the outcome of ping on hs. Until the first refresh the
// server keeps whatever status hs already reports.
func NewReadiness(hs *health.Server, ping func(context.Context) error) *Readiness {
	return &Readiness{health: hs, ping: ping, timeout: defaultPingTimeout}
}

// Refresh pings the store once and publishes the result. It returns the ping
// error.
func (r *Readiness) Refresh(ctx context.Context) error {
	pctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	err := r.ping(pctx)

	status := grpc_health_v1.HealthCheckResponse_SERVING
	if err != nil {
		status = grpc_health_v1.HealthCheckResponse_NOT_SERVING
	}
	r.health.SetServingStatus("", status)
	obs.SetReady(err == nil)

	r.mu.Lock()
	changed := r.serving == nil || *r.serving != (err == nil)
	serving := err == nil
	r.serving = &serving
	r.mu.Unlock()
	if changed {
		entry := obs.Logger().WithField("status", status.String())
		if err != nil {
			entry.WithError(err).Warn("grpc health changed")
		} else {
			entry.Info("grpc health changed")
		}
	}
	return err
}

// Run refreshes immediately and then every interval until ctx is done.
func (r *Readiness) Run(ctx context.Context, every time.Duration) {
	_ = r.Refresh(ctx)
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			_ = r.Refresh(ctx)
		}
	}
}
