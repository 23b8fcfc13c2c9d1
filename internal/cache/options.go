package cache

import (
	"math/rand/v2"
	"time"
)

// Option customizes a Store.
type Option func(*options)

type options struct {
	now func() time.Time
	rng *rand.Rand
}

// WithClock replaces time.Now as the store's time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithRand sets the random source used to pick sweep samples. The store
// only touches it while holding its lock.
func WithRand(rng *rand.Rand) Option {
	return func(o *options) {
		o.rng = rng
	}
}

// WithSeed seeds a private random source for sweep sampling.
func WithSeed(seed uint64) Option {
	return WithRand(rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)))
}
