package cache

import "time"

// Cleanup removes a bounded sample of expired entries and returns how many
// it removed.
//
// The sample size comes from opts.SampleSize. When it covers more than 80% of
// the entries the sweep checks every entry instead of drawing. If MaxSample is
// below the entry count, the walk covers MaxSample consecutive slots from a
// random offset, so repeated sweeps reach every slot. Otherwise keys are drawn
// uniformly with replacement from the entries present when the sweep began,
// so the same key may be drawn twice. MaxSample caps the entries examined
// (and therefore removed) in both modes. Expired entries that escape the
// sample stay until a later sweep or a Get.
func (s *Store[V]) Cleanup(opts SweepOptions) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := len(s.keys)
	if total == 0 {
		return 0
	}
	desired := opts.SampleSize(total)
	now := s.now()
	removed := 0

	if float64(desired) > fullSweepRatio*float64(total) {
		return s.walkLocked(min(total, opts.withDefaults().MaxSample), now)
	}

	// Slots at or past len(s.keys) belonged to keys removed earlier in this
	// sweep, which matches drawing from a snapshot and finding them gone.
	for range desired {
		i := s.rng.IntN(total)
		if i >= len(s.keys) {
			continue
		}
		key := s.keys[i]
		it := s.items[key]
		if it.ExpiredAt(now) {
			s.removeLocked(key, it)
			removed++
		}
	}
	return removed
}

// walkLocked checks n slots. With n equal to the entry count it visits every
// entry; a shorter walk covers a window starting at a random slot.
func (s *Store[V]) walkLocked(n int, now time.Time) int {
	total := len(s.keys)
	removed := 0

	if n >= total {
		// Walk from the tail: swap-remove only moves already visited keys.
		for i := total - 1; i >= 0; i-- {
			key := s.keys[i]
			it := s.items[key]
			if it.ExpiredAt(now) {
				s.removeLocked(key, it)
				removed++
			}
		}
		return removed
	}

	// Removal reorders the slice, so copy the window first.
	start := s.rng.IntN(total)
	window := make([]string, n)
	for j := range window {
		window[j] = s.keys[(start+j)%total]
	}
	for _, key := range window {
		it := s.items[key]
		if it.ExpiredAt(now) {
			s.removeLocked(key, it)
			removed++
		}
	}
	return removed
}
