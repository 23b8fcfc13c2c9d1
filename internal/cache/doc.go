// Package cache provides the in-memory TTL store that fronts the upstream
// data API.
//
// A Store maps opaque string keys to values with a per-entry expiry and
// counts hits and misses. Expired entries are removed lazily by Get and
// opportunistically by Cleanup, which inspects a random sample instead of
// scanning every entry. Len therefore counts expired entries that have not
// been swept yet.
//
// Usage:
//
//	s := cache.New[string](30 * time.Minute)
//	s.Set("search:blue whale", payload)
//	if val, ok := s.Get("search:blue whale"); ok {
//	    // use cached value
//	}
//	removed := s.Cleanup(cache.DefaultSweepOptions())
package cache
