package sync

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Engine drives background refreshes: an immediate pass on start, one per
// interval, and one whenever [Engine.Notify] is called (typically by the
// connectivity monitor on reconnect). Create one with [NewEngine] and start
// it with [Engine.Run].
type Engine struct {
	coord    *Coordinator
	interval time.Duration
	wake     chan struct{}
	log      *slog.Logger
}

// NewEngine creates an Engine refreshing coord every interval.
func NewEngine(coord *Coordinator, interval time.Duration, logger *slog.Logger) *Engine {
	return &Engine{
		coord:    coord,
		interval: interval,
		wake:     make(chan struct{}, 1),
		log:      logger,
	}
}

// Notify requests a refresh as soon as possible. It never blocks; several
// notifications before the loop wakes collapse into one.
func (e *Engine) Notify() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// RunOnce performs a single refresh and returns.
func (e *Engine) RunOnce(ctx context.Context) (RefreshResult, error) {
	return e.coord.RefreshAll(ctx)
}

// Run starts the refresh loop. It blocks until ctx is cancelled. Refresh
// failures are logged and never stop the loop; offline passes are skipped
// quietly.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	e.refresh(ctx, "initial")

	for {
		select {
		case <-ctx.Done():
			e.log.Info("refresh engine shutting down")
			return ctx.Err()
		case <-ticker.C:
			e.refresh(ctx, "interval")
		case <-e.wake:
			e.refresh(ctx, "notify")
		}
	}
}

func (e *Engine) refresh(ctx context.Context, reason string) {
	_, err := e.coord.RefreshAll(ctx)
	switch {
	case err == nil:
	case errors.Is(err, ErrNoConnection):
		e.log.Debug("refresh skipped while offline", "reason", reason)
	case ctx.Err() != nil:
	default:
		e.log.Error("background refresh failed", "reason", reason, "error", err)
	}
}
