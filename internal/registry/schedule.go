package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/electwix/apicache/internal/cache"
)

// SweepResult summarizes one cleanup pass over the built stores.
type SweepResult struct {
	ID      uuid.UUID
	Removed map[Name]int
	Total   int
}

// Sweep runs Cleanup once on every store built so far. Stores that were
// never requested are skipped rather than built.
func (r *Registry) Sweep(opts cache.SweepOptions) SweepResult {
	res := SweepResult{
		ID:      uuid.New(),
		Removed: make(map[Name]int),
	}
	for _, ns := range r.built() {
		n := ns.store.Cleanup(opts)
		res.Removed[ns.name] = n
		res.Total += n
		r.logger.Debug("cache swept",
			"sweep", res.ID.String(),
			"cache", ns.name.String(),
			"removed", n,
			"size", ns.store.Len(),
		)
	}
	r.logger.Info("cleanup sweep finished",
		"sweep", res.ID.String(),
		"stores", len(res.Removed),
		"removed", res.Total,
	)
	return res
}

// Schedule is a running periodic sweep. Stop it to release the timer.
type Schedule struct {
	id     uuid.UUID
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// ScheduleCleanup sweeps every built store each interval until ctx is done
// or Stop is called. It panics if interval is not positive.
func (r *Registry) ScheduleCleanup(ctx context.Context, interval time.Duration, opts cache.SweepOptions) *Schedule {
	if interval <= 0 {
		panic(fmt.Sprintf("registry: cleanup interval must be positive, got %s", interval))
	}
	ctx, cancel := context.WithCancel(ctx)
	s := &Schedule{
		id:     uuid.New(),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	ticker := time.NewTicker(interval)
	r.logger.Info("cleanup scheduled",
		"schedule", s.id.String(),
		"interval", interval,
		"sample_fraction", opts.SampleFraction,
		"min_sample", opts.MinSample,
		"max_sample", opts.MaxSample,
	)

	go func() {
		defer close(s.done)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				r.logger.Debug("cleanup schedule stopped", "schedule", s.id.String())
				return
			case <-ticker.C:
				r.Sweep(opts)
			}
		}
	}()

	return s
}

// ID identifies the schedule in logs.
func (s *Schedule) ID() uuid.UUID {
	return s.id
}

// Done is closed once the sweep goroutine has exited.
func (s *Schedule) Done() <-chan struct{} {
	return s.done
}

// Stop cancels the timer and waits for an in-flight sweep to finish.
// Stop is safe to call multiple times.
func (s *Schedule) Stop() {
	s.once.Do(s.cancel)
	<-s.done
}
