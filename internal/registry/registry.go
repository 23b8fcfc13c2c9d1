// Package registry owns the named cache stores and their shared
// maintenance schedule.
//
// Cache names form a closed set (Entity, Search). Each store is built the
// first time it is requested, using the TTL from Config, and the same
// instance is returned for the lifetime of the Registry. A Registry is an
// ordinary value: construct one per process, or one per test.
package registry

import (
	"fmt"
	"sync"
	"time"

	"github.com/electwix/apicache/internal/cache"
	"github.com/electwix/apicache/internal/logging"
)

// Name identifies one of the fixed caches.
type Name int

const (
	// Entity caches single-entity lookups by ID.
	Entity Name = iota
	// Search caches search results by normalized query term.
	Search

	numNames
)

// Default TTLs per cache.
const (
	DefaultEntityTTL = 12 * time.Hour
	DefaultSearchTTL = 30 * time.Minute
)

// Names lists every cache name in declaration order.
func Names() []Name {
	return []Name{Entity, Search}
}

// String returns the name used in keys, logs and reports.
func (n Name) String() string {
	switch n {
	case Entity:
		return "entity"
	case Search:
		return "search"
	default:
		return fmt.Sprintf("Name(%d)", int(n))
	}
}

// Valid reports whether n is one of the declared names.
func (n Name) Valid() bool {
	return n >= 0 && n < numNames
}

// ParseName maps "entity" or "search" to its Name.
func ParseName(s string) (Name, error) {
	for _, n := range Names() {
		if n.String() == s {
			return n, nil
		}
	}
	return 0, fmt.Errorf("unknown cache %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (n Name) MarshalText() ([]byte, error) {
	if !n.Valid() {
		return nil, fmt.Errorf("unknown cache name %d", int(n))
	}
	return []byte(n.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (n *Name) UnmarshalText(text []byte) error {
	parsed, err := ParseName(string(text))
	if err != nil {
		return err
	}
	*n = parsed
	return nil
}

// Config holds the default TTL of every named store. Zero fields fall back
// to DefaultEntityTTL and DefaultSearchTTL.
type Config struct {
	EntityTTL time.Duration
	SearchTTL time.Duration
}

// DefaultConfig returns 12h for entities and 30m for search results.
func DefaultConfig() Config {
	return Config{EntityTTL: DefaultEntityTTL, SearchTTL: DefaultSearchTTL}
}

// TTL returns the configured default TTL for n.
func (c Config) TTL(n Name) time.Duration {
	switch n {
	case Entity:
		if c.EntityTTL != 0 {
			return c.EntityTTL
		}
		return DefaultEntityTTL
	case Search:
		if c.SearchTTL != 0 {
			return c.SearchTTL
		}
		return DefaultSearchTTL
	default:
		panic(unknownName(n))
	}
}

// Registry hands out the named stores.
type Registry struct {
	mu        sync.Mutex
	cfg       Config
	stores    [numNames]*cache.Store[any]
	storeOpts []cache.Option
	logger    logging.Logger
	now       func() time.Time
}

// Option customizes a Registry.
type Option func(*Registry)

// WithLogger sets the logger used for sweeps and ignored overrides.
func WithLogger(logger logging.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithClock sets the time source for every store and for report timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
			r.storeOpts = append(r.storeOpts, cache.WithClock(now))
		}
	}
}

// WithStoreOptions passes extra options to every store the registry builds.
func WithStoreOptions(opts ...cache.Option) Option {
	return func(r *Registry) {
		r.storeOpts = append(r.storeOpts, opts...)
	}
}

// New creates an empty registry. No store exists until it is requested.
func New(cfg Config, opts ...Option) *Registry {
	r := &Registry{
		cfg:    cfg,
		logger: logging.NewNopLogger(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// StoreOption adjusts how a store is built on first request.
type StoreOption func(*storeSettings)

type storeSettings struct {
	ttl    time.Duration
	hasTTL bool
}

// WithTTL overrides the configured default TTL, but only when this call
// constructs the store. Once a store exists the override is ignored and
// logged at debug level, so the effective TTL depends on which call site
// ran first.
func WithTTL(ttl time.Duration) StoreOption {
	return func(s *storeSettings) {
		s.ttl = ttl
		s.hasTTL = true
	}
}

// Store returns the store for name, building it on first use.
// It panics if name is not one of the declared names.
func (r *Registry) Store(name Name, opts ...StoreOption) *cache.Store[any] {
	if !name.Valid() {
		panic(unknownName(name))
	}
	var settings storeSettings
	for _, opt := range opts {
		opt(&settings)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if s := r.stores[name]; s != nil {
		if settings.hasTTL && settings.ttl != s.DefaultTTL() {
			r.logger.Debug("ttl override ignored: store already built",
				"cache", name.String(),
				"requested", settings.ttl,
				"ttl", s.DefaultTTL(),
			)
		}
		return s
	}

	ttl := r.cfg.TTL(name)
	if settings.hasTTL {
		ttl = settings.ttl
	}
	s := cache.New[any](ttl, r.storeOpts...)
	r.stores[name] = s
	r.logger.Debug("cache store created", "cache", name.String(), "ttl", ttl)
	return s
}

// Entity returns the entity store.
func (r *Registry) Entity(opts ...StoreOption) *cache.Store[any] {
	return r.Store(Entity, opts...)
}

// Search returns the search-result store.
func (r *Registry) Search(opts ...StoreOption) *cache.Store[any] {
	return r.Store(Search, opts...)
}

// Built reports whether the store for name has been constructed.
func (r *Registry) Built(name Name) bool {
	if !name.Valid() {
		panic(unknownName(name))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stores[name] != nil
}

type namedStore struct {
	name  Name
	store *cache.Store[any]
}

// built returns the constructed stores in name order.
func (r *Registry) built() []namedStore {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]namedStore, 0, numNames)
	for i, s := range r.stores {
		if s != nil {
			out = append(out, namedStore{name: Name(i), store: s})
		}
	}
	return out
}

// Lookup reads key from s and asserts the value to T. A value of another
// type is reported as absent and counted as a miss.
func Lookup[T any](s *cache.Store[any], key string) (T, bool) {
	v, ok := s.GetMatch(key, func(v any) bool {
		_, ok := v.(T)
		return ok
	})
	if !ok {
		var zero T
		return zero, false
	}
	return v.(T), true
}

func unknownName(n Name) string {
	return fmt.Sprintf("registry: unknown cache name %d", int(n))
}
