package offers

import (
	"strings"
	"time"
)

// Aggregates maps a normalized key to its entry.
type Aggregates map[string]Entry

// List returns the entries in no particular order.
func (a Aggregates) List() []Entry {
	out := make([]Entry, 0, len(a))
	for _, e := range a {
		out = append(out, e)
	}
	return out
}

// Aggregator accumulates offers one at a time. Count and max are both
// commutative, so the result does not depend on the order of Add calls.
type Aggregator struct {
	entries Aggregates
	seen    int
	skipped int
}

func NewAggregator() *Aggregator {
	return &Aggregator{entries: make(Aggregates)}
}

// Add folds o into the aggregate. It returns false when o was skipped
// because its MPN is blank or normalizes to nothing.
func (a *Aggregator) Add(o RawOffer) bool {
	a.seen++
	if strings.TrimSpace(o.MPN) == "" {
		a.skipped++
		return false
	}
	key := Normalize(o.MPN)
	if key == "" {
		a.skipped++
		return false
	}

	e := a.entries[key]
	e.Key = key
	e.Count++
	if !o.CreatedAt.IsZero() {
		e.LastSeen = latest(e.LastSeen, o.CreatedAt.UTC())
	}
	a.entries[key] = e
	return true
}

// Seen is the number of offers passed to Add.
func (a *Aggregator) Seen() int { return a.seen }

// Skipped is the number of offers dropped for a blank key.
func (a *Aggregator) Skipped() int { return a.skipped }

// Result returns a copy of the aggregates built so far.
func (a *Aggregator) Result() Aggregates {
	out := make(Aggregates, len(a.entries))
	for k, e := range a.entries {
		out[k] = e
	}
	return out
}

// Aggregate groups records by normalized MPN.
func Aggregate(records []RawOffer) Aggregates {
	agg := NewAggregator()
	for _, r := range records {
		agg.Add(r)
	}
	return agg.Result()
}

// latest returns the later of two timestamps, treating zero as absent.
func latest(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}
