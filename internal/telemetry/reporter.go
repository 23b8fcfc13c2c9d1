// Package telemetry periodically snapshots the registry's cache stats and
// hands each report to a set of observers.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/electwix/apicache/internal/logging"
	"github.com/electwix/apicache/internal/registry"
)

// Observer receives every published report.
type Observer interface {
	Observe(ctx context.Context, rep registry.Report) error
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, rep registry.Report) error

// Observe calls f.
func (f ObserverFunc) Observe(ctx context.Context, rep registry.Report) error {
	return f(ctx, rep)
}

// Reporter polls Source every Interval and forwards the report to each
// Observer in order.
type Reporter struct {
	Interval  time.Duration
	Source    func() registry.Report
	Observers []Observer
	Logger    logging.Logger
}

// Publish takes one report and sends it to every observer. Observer errors
// are logged; the report still reaches the remaining observers.
func (r *Reporter) Publish(ctx context.Context) registry.Report {
	rep := r.Source()
	logger := r.logger()
	for i, obs := range r.Observers {
		if err := obs.Observe(ctx, rep); err != nil {
			logger.Warn("stats observer failed", "observer", i, "err", err)
		}
	}
	return rep
}

// Run publishes on every tick until ctx is cancelled. It panics if Interval
// is not positive.
func (r *Reporter) Run(ctx context.Context) {
	if r.Interval <= 0 {
		panic(fmt.Sprintf("telemetry: stats interval must be positive, got %s", r.Interval))
	}
	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()

	r.logger().Debug("stats reporter started", "interval", r.Interval, "observers", len(r.Observers))
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Publish(ctx)
		}
	}
}

func (r *Reporter) logger() logging.Logger {
	if r.Logger == nil {
		return logging.NewNopLogger()
	}
	return r.Logger
}
