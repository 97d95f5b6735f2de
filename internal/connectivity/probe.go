package connectivity

import (
	"context"
	"log/slog"
	"time"
)

// Pinger is anything that can cheaply check reachability of the API host.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Probe periodically pings the API and feeds the result into a [Monitor].
type Probe struct {
	pinger   Pinger
	monitor  *Monitor
	interval time.Duration
	timeout  time.Duration
	log      *slog.Logger
}

// NewProbe creates a Probe. Each ping is bounded by timeout.
func NewProbe(pinger Pinger, monitor *Monitor, interval, timeout time.Duration, logger *slog.Logger) *Probe {
	return &Probe{
		pinger:   pinger,
		monitor:  monitor,
		interval: interval,
		timeout:  timeout,
		log:      logger,
	}
}

// Check pings once and updates the monitor. It returns the observed state.
func (p *Probe) Check(ctx context.Context) bool {
	pctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err := p.pinger.Ping(pctx)
	if err != nil && ctx.Err() != nil {
		// Shutting down; leave the last known state alone.
		return p.monitor.NetworkAvailable()
	}
	if err != nil {
		p.log.Debug("probe failed", "error", err)
	}
	online := err == nil
	p.monitor.SetNetwork(online)
	return online
}

// Run checks immediately and then every interval until ctx is cancelled.
func (p *Probe) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.Check(ctx)
		}
	}
}
