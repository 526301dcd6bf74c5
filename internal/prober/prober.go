// Package prober periodically probes every registered back-end and flips the
// registry's healthy flags. Probe failures never touch the consecutive-failure
// counter; that counter belongs to dispatch attempts.
package prober

import (
	"context"
	"time"

	"comfygate/internal/model"
	"comfygate/internal/registry"
	"comfygate/pkg/comfy"
	"comfygate/pkg/config"
	"comfygate/pkg/logger"

	"go.uber.org/zap"
)

// Reconciler is notified after each probe sweep that changed any health flag.
// The worker supervisor implements it to start and stop per-server workers.
type Reconciler interface {
	Reconcile()
}

// Prober the health prober
type Prober struct {
	registry *registry.Registry
	client   *comfy.Client

	interval     time.Duration
	probeTimeout time.Duration

	reconciler Reconciler
}

// New creates a prober. reconciler may be nil.
func New(reg *registry.Registry, client *comfy.Client, dispatch config.DispatchConfig, reconciler Reconciler) *Prober {
	return &Prober{
		registry:     reg,
		client:       client,
		interval:     dispatch.ServerCheckIntervalDuration(),
		probeTimeout: dispatch.ProbeTimeoutDuration(),
		reconciler:   reconciler,
	}
}

// Run probes immediately, then on every tick until ctx is cancelled.
func (p *Prober) Run(ctx context.Context) {
	p.Sweep(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Sweep(ctx)
		}
	}
}

// Sweep probes every server whose cool-down has elapsed. Servers inside a
// cool-down window are skipped so a failed-out server stays down for its full
// retry delay.
func (p *Prober) Sweep(ctx context.Context) {
	changed := false
	for _, s := range p.registry.DueForProbe(time.Now()) {
		if p.probeOne(ctx, s) {
			changed = true
		}
		if ctx.Err() != nil {
			return
		}
	}
	if changed && p.reconciler != nil {
		p.reconciler.Reconcile()
	}
}

// probeOne checks one server and reports whether its health flag changed.
func (p *Prober) probeOne(ctx context.Context, s *model.Server) bool {
	probeCtx, cancel := context.WithTimeout(ctx, p.probeTimeout)
	defer cancel()

	err := p.client.HealthCheck(probeCtx, s.URL)
	healthy := err == nil

	if !p.registry.SetHealthy(s, healthy) {
		return false
	}
	if healthy {
		logger.Info("server is healthy", zap.String("server", s.Name), zap.String("url", s.URL))
	} else {
		logger.Warn("server is unhealthy",
			zap.String("server", s.Name),
			zap.String("url", s.URL),
			zap.Error(err),
		)
	}
	return true
}
