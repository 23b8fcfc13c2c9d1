package trace

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/electwix/apicache/internal/cache"
	"github.com/electwix/apicache/internal/clock"
	"github.com/electwix/apicache/internal/logging"
	"github.com/electwix/apicache/internal/registry"
	"github.com/electwix/apicache/internal/telemetry"
)

// ErrNoClock is returned when a script advances time but the replayer has
// no manual clock.
var ErrNoClock = errors.New("advance requires a manual clock")

// Replayer runs scripts against a registry.
type Replayer struct {
	reg    *registry.Registry
	clock  *clock.Manual
	out    io.Writer
	logger logging.Logger
}

// NewReplayer returns a replayer writing one outcome line per step to out.
// clk must be the clock the registry's stores read; it may be nil for
// scripts without advance steps.
func NewReplayer(reg *registry.Registry, clk *clock.Manual, out io.Writer, logger logging.Logger) *Replayer {
	if out == nil {
		out = io.Discard
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Replayer{reg: reg, clock: clk, out: out, logger: logger}
}

// Result summarizes a replay.
type Result struct {
	Steps   int
	Hits    int
	Misses  int
	Removed int
	Report  registry.Report
}

// Run executes every step of script in order. It stops early when ctx is
// cancelled or a step fails.
func (r *Replayer) Run(ctx context.Context, script *Script) (Result, error) {
	var res Result
	for _, step := range script.Steps {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := r.step(step, &res); err != nil {
			return res, fmt.Errorf("%s:%d: %w", step.Pos.Filename, step.Pos.Line, err)
		}
		res.Steps++
	}
	res.Report = r.reg.Report()
	r.logger.Debug("trace replayed", "steps", res.Steps, "hits", res.Hits, "misses", res.Misses, "removed", res.Removed)
	return res, nil
}

func (r *Replayer) step(step *Step, res *Result) error {
	switch {
	case step.Get != nil:
		name := step.Get.Cache.Name()
		outcome := "miss"
		if _, ok := r.reg.Store(name).Get(key(name, step.Get.ID)); ok {
			outcome = "hit"
			res.Hits++
		} else {
			res.Misses++
		}
		r.printf("get %s %s -> %s", name, step.Get.ID, outcome)

	case step.Set != nil:
		name := step.Set.Cache.Name()
		s := r.reg.Store(name)
		k := key(name, step.Set.ID)
		if step.Set.TTL != nil {
			ttl := time.Duration(*step.Set.TTL)
			s.SetTTL(k, step.Set.Value, ttl)
			r.printf("set %s %s ttl=%s", name, step.Set.ID, ttl)
		} else {
			s.Set(k, step.Set.Value)
			r.printf("set %s %s ttl=%s", name, step.Set.ID, s.DefaultTTL())
		}

	case step.Delete != nil:
		name := step.Delete.Cache.Name()
		r.reg.Store(name).Delete(key(name, step.Delete.ID))
		r.printf("delete %s %s", name, step.Delete.ID)

	case step.Clear != nil:
		name := step.Clear.Cache.Name()
		r.reg.Store(name).Clear()
		r.printf("clear %s", name)

	case step.Advance != nil:
		if r.clock == nil {
			return ErrNoClock
		}
		by := time.Duration(step.Advance.By)
		r.clock.Advance(by)
		r.printf("advance %s", by)

	case step.Cleanup != nil:
		opts, err := sweepOptions(step.Cleanup)
		if err != nil {
			return err
		}
		sweep := r.reg.Sweep(opts)
		res.Removed += sweep.Total
		r.printf("cleanup -> removed %d", sweep.Total)

	case step.Stats:
		rep := r.reg.Report()
		for _, name := range registry.Names() {
			st := rep.Caches[name]
			r.printf("stats %s size=%d hits=%d misses=%d hit_rate=%s",
				name, st.Size, st.Hits, st.Misses, telemetry.HitRatePercent(st.HitRate))
		}

	default:
		return errors.New("empty step")
	}
	return nil
}

func (r *Replayer) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(r.out, format+"\n", args...)
}

// sweepOptions validates explicit cleanup parameters the same way the
// config file does. Omitted parameters stay zero, which Cleanup treats as
// the default.
func sweepOptions(c *CleanupStep) (cache.SweepOptions, error) {
	var opts cache.SweepOptions
	if c.Fraction != nil {
		if f := *c.Fraction; f <= 0 || f > 1 {
			return opts, fmt.Errorf("cleanup fraction must be in (0, 1], got %v", f)
		}
		opts.SampleFraction = *c.Fraction
	}
	if c.Min != nil {
		if *c.Min < 1 {
			return opts, fmt.Errorf("cleanup min must be at least 1, got %d", *c.Min)
		}
		opts.MinSample = *c.Min
	}
	if c.Max != nil {
		if *c.Max < 1 {
			return opts, fmt.Errorf("cleanup max must be at least 1, got %d", *c.Max)
		}
		opts.MaxSample = *c.Max
	}
	return opts, nil
}

func key(name registry.Name, id string) string {
	if name == registry.Search {
		return registry.SearchKey(id)
	}
	return registry.EntityKey(id)
}
