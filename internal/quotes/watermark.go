package quotes

import (
	"dexarb/internal/domain"
	"time"
)

// Moves forward and sets the lower limit of an acceptable quote age
type Watermark struct {
	maxAge  time.Duration
	current time.Time
	initted bool
}

// maxAge=0 -> nothing is ever stale
func NewWatermark(maxAge time.Duration) *Watermark {
	return &Watermark{maxAge: maxAge}
}

func (w *Watermark) Advance(now time.Time) {
	if w.maxAge <= 0 {
		return
	}

	low := now.UTC().Add(-w.maxAge)
	if !w.initted || low.After(w.current) {
		w.current = low
		w.initted = true
	}
}

func (w *Watermark) IsStale(t time.Time) bool {
	if !w.initted || t.IsZero() {
		return false // no timestamp from the feed -> trust it
	}

	return t.UTC().Before(w.current)
}

// Fresh filters quotes in place, returns the kept prefix and the number dropped
func (w *Watermark) Fresh(qs []domain.Quote) ([]domain.Quote, int) {
	kept := qs[:0]
	for _, q := range qs {
		if w.IsStale(q.UpdatedAt) {
			continue
		}
		kept = append(kept, q)
	}
	return kept, len(qs) - len(kept)
}
