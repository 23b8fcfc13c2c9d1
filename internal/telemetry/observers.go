package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/electwix/apicache/internal/logging"
	"github.com/electwix/apicache/internal/registry"
)

// HitRatePercent renders a 0..1 hit rate as a percentage with two decimals,
// e.g. 0.8751 -> "87.51%".
func HitRatePercent(rate float64) string {
	return decimal.NewFromFloat(rate).Shift(2).StringFixed(2) + "%"
}

// LogObserver writes one log line per cache.
type LogObserver struct {
	Logger logging.Logger
}

// Observe implements Observer.
func (o LogObserver) Observe(_ context.Context, rep registry.Report) error {
	for _, name := range registry.Names() {
		st, ok := rep.Caches[name]
		if !ok {
			continue
		}
		o.Logger.Info("cache stats",
			"cache", name.String(),
			"size", st.Size,
			"hits", st.Hits,
			"misses", st.Misses,
			"hit_rate", HitRatePercent(st.HitRate),
		)
	}
	return nil
}

// JSONObserver writes each report as one line of JSON.
type JSONObserver struct {
	mu sync.Mutex
	w  io.Writer
}

// NewJSONObserver returns an observer writing to w.
func NewJSONObserver(w io.Writer) *JSONObserver {
	return &JSONObserver{w: w}
}

// Observe implements Observer.
func (o *JSONObserver) Observe(_ context.Context, rep registry.Report) error {
	data, err := json.Marshal(rep)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	data = append(data, '\n')

	o.mu.Lock()
	defer o.mu.Unlock()
	if _, err := o.w.Write(data); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}
