package registry

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/electwix/apicache/internal/cache"
)

// Report is the combined stats payload for every named cache:
//
//	{"entity":{"size":..,"hits":..,"misses":..,"hitRate":..},"search":{..},"timestamp":<unix ms>}
type Report struct {
	Caches    map[Name]cache.Stats
	Timestamp int64
}

// Time returns the report timestamp.
func (rep Report) Time() time.Time {
	return time.UnixMilli(rep.Timestamp)
}

// Report collects Stats from every name. A store that was never built
// reports zeroes and stays unbuilt.
func (r *Registry) Report() Report {
	rep := Report{
		Caches:    make(map[Name]cache.Stats, numNames),
		Timestamp: r.now().UnixMilli(),
	}
	for _, n := range Names() {
		rep.Caches[n] = cache.Stats{}
	}
	for _, ns := range r.built() {
		rep.Caches[ns.name] = ns.store.Stats()
	}
	return rep
}

// MarshalJSON flattens the per-cache stats next to the timestamp.
func (rep Report) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(rep.Caches)+1)
	for n, st := range rep.Caches {
		out[n.String()] = st
	}
	out["timestamp"] = rep.Timestamp
	return json.Marshal(out)
}

// UnmarshalJSON reads the flattened form written by MarshalJSON.
func (rep *Report) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	decoded := Report{Caches: make(map[Name]cache.Stats, len(raw))}
	for key, value := range raw {
		if key == "timestamp" {
			if err := json.Unmarshal(value, &decoded.Timestamp); err != nil {
				return fmt.Errorf("timestamp: %w", err)
			}
			continue
		}
		n, err := ParseName(key)
		if err != nil {
			return err
		}
		var st cache.Stats
		if err := json.Unmarshal(value, &st); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		decoded.Caches[n] = st
	}
	*rep = decoded
	return nil
}
