package cache

import (
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/electwix/apicache/internal/clock"
)

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T, ttl time.Duration) (*Store[string], *clock.Manual) {
	t.Helper()
	clk := clock.NewManual(epoch)
	return New[string](ttl, WithClock(clk.Now), WithSeed(1)), clk
}

func TestStore_GetSet(t *testing.T) {
	s, _ := newTestStore(t, time.Hour)

	t.Run("set and get", func(t *testing.T) {
		s.Set("key", "value")

		val, ok := s.Get("key")
		if !ok {
			t.Fatal("expected key to exist")
		}
		if val != "value" {
			t.Errorf("Get() = %v, want %v", val, "value")
		}
	})

	t.Run("missing key", func(t *testing.T) {
		_, ok := s.Get("missing")
		if ok {
			t.Error("expected key to not exist")
		}
	})

	t.Run("overwrite refreshes value", func(t *testing.T) {
		s.Set("key", "first")
		s.Set("key", "second")

		val, _ := s.Get("key")
		if val != "second" {
			t.Errorf("Get() = %v, want second", val)
		}
		if s.Len() != 1 {
			t.Errorf("Len() = %d, want 1", s.Len())
		}
	})
}

func TestStore_RoundTripCountsHit(t *testing.T) {
	s, _ := newTestStore(t, time.Hour)

	for i := range 20 {
		key := fmt.Sprintf("k%d", i)
		s.Set(key, key+"-v")
		got, ok := s.Get(key)
		if !ok || got != key+"-v" {
			t.Fatalf("Get(%q) = %q, %v", key, got, ok)
		}
	}

	st := s.Stats()
	if st.Hits != 20 || st.Misses != 0 {
		t.Fatalf("stats = %+v, want 20 hits and 0 misses", st)
	}
}

func TestStore_MissAfterDeleteAndClear(t *testing.T) {
	s, _ := newTestStore(t, time.Hour)

	s.Set("a", "x")
	s.Delete("a")
	if _, ok := s.Get("a"); ok {
		t.Fatal("expected miss after delete")
	}

	s.Set("b", "y")
	s.Clear()
	if _, ok := s.Get("b"); ok {
		t.Fatal("expected miss after clear")
	}

	st := s.Stats()
	if st.Hits != 0 || st.Misses != 1 {
		t.Fatalf("stats = %+v, want 0 hits and 1 miss (clear resets)", st)
	}
}

func TestStore_DeleteMissingIsNoop(t *testing.T) {
	s, _ := newTestStore(t, time.Hour)
	s.Set("a", "x")

	s.Delete("nope")

	if s.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", s.Len())
	}
	if st := s.Stats(); st.Hits != 0 || st.Misses != 0 {
		t.Fatalf("delete changed counters: %+v", st)
	}
}

func TestStore_ExpiryWithWallClock(t *testing.T) {
	s := New[string](time.Hour)

	s.SetTTL("k", "v", 50*time.Millisecond)
	if v, ok := s.Get("k"); !ok || v != "v" {
		t.Fatalf("Get() before expiry = %q, %v", v, ok)
	}

	time.Sleep(60 * time.Millisecond)

	before := s.Len()
	if _, ok := s.Get("k"); ok {
		t.Fatal("expected k to be expired")
	}
	if after := s.Len(); after != before-1 {
		t.Fatalf("Len() = %d after lazy expiry, want %d", after, before-1)
	}
}

func TestStore_ExpiryBoundary(t *testing.T) {
	s, clk := newTestStore(t, time.Hour)

	s.SetTTL("k", "v", time.Second)
	clk.Advance(time.Second - time.Nanosecond)
	if _, ok := s.Get("k"); !ok {
		t.Fatal("expected hit just before expiry")
	}

	clk.Advance(time.Nanosecond)
	if _, ok := s.Get("k"); ok {
		t.Fatal("entry expiring exactly now must not be returned")
	}
}

func TestStore_DefaultTTL(t *testing.T) {
	s, clk := newTestStore(t, 1000*time.Millisecond)

	s.Set("a", "x")
	clk.Advance(999 * time.Millisecond)
	if _, ok := s.Get("a"); !ok {
		t.Fatal("expected hit within default ttl")
	}
	clk.Advance(time.Millisecond)
	if _, ok := s.Get("a"); ok {
		t.Fatal("expected miss once default ttl elapsed")
	}
}

func TestStore_HitMissScenario(t *testing.T) {
	s, _ := newTestStore(t, 1000*time.Millisecond)

	s.Set("a", "x")
	if v, ok := s.Get("a"); !ok || v != "x" {
		t.Fatalf("Get(a) = %q, %v", v, ok)
	}
	if st := s.Stats(); st.Hits != 1 || st.Misses != 0 {
		t.Fatalf("stats = %+v, want hits=1 misses=0", st)
	}

	if _, ok := s.Get("missing"); ok {
		t.Fatal("expected miss")
	}
	st := s.Stats()
	if st.Hits != 1 || st.Misses != 1 {
		t.Fatalf("stats = %+v, want hits=1 misses=1", st)
	}
	if st.HitRate != 0.5 {
		t.Fatalf("HitRate = %v, want 0.5", st.HitRate)
	}
}

func TestStore_NegativeTTLIsExpired(t *testing.T) {
	s, _ := newTestStore(t, time.Hour)

	s.SetTTL("a", "x", -100*time.Millisecond)
	if s.Len() != 1 {
		t.Fatalf("Len() = %d, want 1 before the read", s.Len())
	}
	if _, ok := s.Get("a"); ok {
		t.Fatal("expected pre-expired entry to miss")
	}

	st := s.Stats()
	if st.Hits != 0 || st.Misses != 1 {
		t.Fatalf("stats = %+v, want hits=0 misses=1", st)
	}
	if st.Size != 0 {
		t.Fatalf("Size = %d, want 0 after lazy removal", st.Size)
	}
}

func TestStore_LenCountsUnsweptExpired(t *testing.T) {
	s, clk := newTestStore(t, time.Minute)

	s.Set("a", "x")
	s.Set("b", "y")
	clk.Advance(time.Hour)

	// Nothing has read or swept the entries yet.
	if s.Len() != 2 {
		t.Fatalf("Len() = %d, want 2 (expired entries still stored)", s.Len())
	}
	if st := s.Stats(); st.Size != 2 {
		t.Fatalf("Stats().Size = %d, want 2", st.Size)
	}
}

func TestStore_HitRate(t *testing.T) {
	tests := []struct {
		name   string
		hits   int
		misses int
	}{
		{"no lookups", 0, 0},
		{"all hits", 5, 0},
		{"all misses", 0, 7},
		{"mixed", 3, 9},
		{"mostly hits", 99, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestStore(t, time.Hour)
			s.Set("live", "v")
			for range tt.hits {
				s.Get("live")
			}
			for range tt.misses {
				s.Get("dead")
			}

			want := 0.0
			if tt.hits+tt.misses > 0 {
				want = float64(tt.hits) / float64(tt.hits+tt.misses)
			}
			got := s.Stats().HitRate
			if math.Abs(got-want) > 1e-12 {
				t.Errorf("HitRate = %v, want %v", got, want)
			}
		})
	}
}

func TestStore_Clear(t *testing.T) {
	s, _ := newTestStore(t, time.Hour)

	s.Set("key1", "value1")
	s.Set("key2", "value2")
	s.Get("key1")
	s.Get("nope")
	s.SetTTL("key3", "value3", -time.Second)

	s.Clear()

	if s.Len() != 0 {
		t.Errorf("Len() = %d, want 0", s.Len())
	}
	st := s.Stats()
	if st.Hits != 0 || st.Misses != 0 || st.HitRate != 0 {
		t.Errorf("stats after clear = %+v, want zeroes", st)
	}

	// The store stays usable.
	s.Set("key1", "again")
	if v, ok := s.Get("key1"); !ok || v != "again" {
		t.Errorf("Get() after clear = %q, %v", v, ok)
	}
}

func TestStore_SetDoesNotTouchCounters(t *testing.T) {
	s, _ := newTestStore(t, time.Hour)

	for i := range 50 {
		s.Set(fmt.Sprint(i), "v")
	}
	s.Delete("3")

	if st := s.Stats(); st.Hits != 0 || st.Misses != 0 {
		t.Fatalf("stats = %+v, want zero counters", st)
	}
}

func TestStore_ConcurrentAccess(t *testing.T) {
	s := New[int](time.Minute)
	var wg sync.WaitGroup

	const workers = 32
	const perWorker = 200
	for w := range workers {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := range perWorker {
				key := fmt.Sprintf("k%d", (w*perWorker+i)%64)
				switch i % 4 {
				case 0:
					s.Set(key, i)
				case 1:
					s.SetTTL(key, i, -time.Millisecond)
				case 2:
					s.Delete(key)
				}
				s.Get(key)
				if i%50 == 0 {
					s.Cleanup(SweepOptions{SampleFraction: 1})
				}
			}
		}(w)
	}
	wg.Wait()

	st := s.Stats()
	if got := st.Hits + st.Misses; got != workers*perWorker {
		t.Fatalf("hits+misses = %d, want %d", got, workers*perWorker)
	}
	if st.Size != s.Len() {
		t.Fatalf("Stats().Size = %d, Len() = %d", st.Size, s.Len())
	}
}

func TestComputeKey(t *testing.T) {
	key1 := ComputeKey([]byte("content"))
	key2 := ComputeKey([]byte("content"))
	key3 := ComputeKey([]byte("different"))

	if key1 != key2 {
		t.Error("same content should produce same key")
	}

	if key1 == key3 {
		t.Error("different content should produce different key")
	}

	if len(key1) != 32 { // 16 bytes = 32 hex chars
		t.Errorf("key length = %d, want 32", len(key1))
	}
}

func TestComputeKeyWithPrefix(t *testing.T) {
	key := ComputeKeyWithPrefix("search", []byte("content"))

	if key[:7] != "search:" {
		t.Errorf("key prefix = %q, want 'search:'", key[:7])
	}
	if len(key) != 7+32 {
		t.Errorf("key length = %d, want %d", len(key), 7+32)
	}
}

func TestStore_GetMatchRejectedValueIsMiss(t *testing.T) {
	s, clk := newTestStore(t, time.Minute)
	s.Set("a", "x")
	long := func(v string) bool { return len(v) > 3 }

	if _, ok := s.GetMatch("a", long); ok {
		t.Fatal("GetMatch should reject a value the predicate refuses")
	}
	if v, ok := s.GetMatch("a", func(string) bool { return true }); !ok || v != "x" {
		t.Fatalf("GetMatch = %q, %v", v, ok)
	}
	if _, ok := s.GetMatch("missing", long); ok {
		t.Fatal("GetMatch of a missing key should miss")
	}

	clk.Advance(time.Minute)
	if _, ok := s.GetMatch("a", func(string) bool { return true }); ok {
		t.Fatal("GetMatch should not return an expired value")
	}

	st := s.Stats()
	if st.Hits != 1 || st.Misses != 3 || st.Size != 0 {
		t.Fatalf("Stats() = %+v, want 1 hit, 3 misses, empty", st)
	}
}
