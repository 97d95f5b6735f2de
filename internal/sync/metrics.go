package sync

import (
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
)

const (
	otelScope = "bdcollect/sync"

	spanRefresh = "sync.refresh"
	spanToggle  = "sync.toggle"
	spanExclude = "sync.exclude"

	metricRefreshes     = "bdcollect.sync.refreshes"
	metricRefreshErrors = "bdcollect.sync.refresh.errors"
	metricToggles       = "bdcollect.sync.toggles"
	metricRollbacks     = "bdcollect.sync.rollbacks"
	metricRejected      = "bdcollect.sync.rejected"
	metricExclusions    = "bdcollect.sync.exclusions"
	metricChanged       = "bdcollect.sync.albums.changed"
)

// instruments groups the tracer and counters. Every field is non-nil; they
// are no-ops when telemetry is disabled.
type instruments struct {
	tracer trace.Tracer

	refreshes     metric.Int64Counter
	refreshErrors metric.Int64Counter
	toggles       metric.Int64Counter
	rollbacks     metric.Int64Counter
	rejected      metric.Int64Counter
	exclusions    metric.Int64Counter
	changed       metric.Int64Counter
}

func newInstruments(logger *slog.Logger) instruments {
	meter := otel.Meter(otelScope)

	mustCounter := func(name, desc string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc))
		if err != nil {
			logger.Error("creating OTel counter", "name", name, "error", err)
			return noop.Int64Counter{}
		}
		return c
	}

	return instruments{
		tracer:        otel.Tracer(otelScope),
		refreshes:     mustCounter(metricRefreshes, "Number of full refreshes attempted"),
		refreshErrors: mustCounter(metricRefreshErrors, "Number of refresh halves that failed"),
		toggles:       mustCounter(metricToggles, "Number of flag toggles confirmed by the server"),
		rollbacks:     mustCounter(metricRollbacks, "Number of optimistic toggles rolled back"),
		rejected:      mustCounter(metricRejected, "Number of operations rejected before any mutation"),
		exclusions:    mustCounter(metricExclusions, "Number of exclude/include requests confirmed"),
		changed:       mustCounter(metricChanged, "Number of albums added, removed or modified by refreshes"),
	}
}
