package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"time"
)

// Sweep defaults applied when the corresponding SweepOptions field is zero.
const (
	DefaultSampleFraction = 0.2
	DefaultMinSample      = 10
	DefaultMaxSample      = 1000
)

// fullSweepRatio is the share of entries above which a sweep walks the key
// set instead of drawing random keys.
const fullSweepRatio = 0.8

// Cache is the contract a named store exposes to its collaborators.
type Cache[V any] interface {
	Get(key string) (V, bool)
	Set(key string, value V)
	SetTTL(key string, value V, ttl time.Duration)
	Delete(key string)
	Clear()
	Len() int
	Cleanup(opts SweepOptions) int
	Stats() Stats
}

// ComputeKey generates a cache key from content using SHA-256.
func ComputeKey(content []byte) string {
	hash := sha256.Sum256(content)
	return hex.EncodeToString(hash[:16]) // use first 128 bits
}

// ComputeKeyWithPrefix generates a cache key with a prefix.
func ComputeKeyWithPrefix(prefix string, content []byte) string {
	return fmt.Sprintf("%s:%s", prefix, ComputeKey(content))
}

// Entry represents a cached value with its absolute expiry.
type Entry[V any] struct {
	Value     V
	ExpiresAt time.Time
}

// ExpiredAt reports whether the entry is expired at now. An entry whose
// expiry equals now is already expired.
func (e *Entry[V]) ExpiredAt(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// Stats is a point-in-time projection of a store.
type Stats struct {
	Size    int     `json:"size"`
	Hits    uint64  `json:"hits"`
	Misses  uint64  `json:"misses"`
	HitRate float64 `json:"hitRate"`
}

// HitRate returns hits/(hits+misses), or 0 when no lookups happened.
func HitRate(hits, misses uint64) float64 {
	total := hits + misses
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}

// SweepOptions bounds the work done by one Cleanup call.
type SweepOptions struct {
	// SampleFraction is the share of current entries to examine.
	SampleFraction float64
	// MinSample is the smallest sample, itself capped at the entry count.
	MinSample int
	// MaxSample is a hard cap on examined (and therefore removed) entries.
	MaxSample int
}

// DefaultSweepOptions returns the 20% / 10 / 1000 sweep parameters.
func DefaultSweepOptions() SweepOptions {
	return SweepOptions{
		SampleFraction: DefaultSampleFraction,
		MinSample:      DefaultMinSample,
		MaxSample:      DefaultMaxSample,
	}
}

func (o SweepOptions) withDefaults() SweepOptions {
	if o.SampleFraction == 0 {
		o.SampleFraction = DefaultSampleFraction
	}
	if o.MinSample == 0 {
		o.MinSample = DefaultMinSample
	}
	if o.MaxSample == 0 {
		o.MaxSample = DefaultMaxSample
	}
	return o
}

// SampleSize returns how many keys a sweep over total entries examines.
func (o SweepOptions) SampleSize(total int) int {
	if total <= 0 {
		return 0
	}
	o = o.withDefaults()

	desired := int(math.Ceil(float64(total) * o.SampleFraction))
	lower := min(o.MinSample, total)
	desired = max(desired, lower)
	desired = min(desired, o.MaxSample)
	return max(desired, 0)
}

