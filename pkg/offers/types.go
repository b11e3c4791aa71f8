package offers

import "time"

// RawOffer is a single offer row as read from the catalog.
type RawOffer struct {
	// MPN is the free-text manufacturer part number. NULL is read as "".
	MPN string
	// CreatedAt is when the offer was observed. NULL is read as the zero time.
	CreatedAt time.Time
}

// Entry is the aggregate for one normalized MPN.
type Entry struct {
	Key   string
	Count int
	// LastSeen is the latest CreatedAt among contributing offers, in UTC.
	// It is the zero time when none of them carried a timestamp.
	LastSeen time.Time
}

// HasLastSeen reports whether any contributing offer had a timestamp.
func (e Entry) HasLastSeen() bool {
	return !e.LastSeen.IsZero()
}
