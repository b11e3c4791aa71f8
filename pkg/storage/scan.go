package storage

import (
	"fmt"
	"strings"
	"time"
)

// Layouts seen in SQLite text columns, plus Go's time.Time.String form.
var timeLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02 15:04",
	"2006-01-02",
}

// nullTime scans timestamps from either driver. Postgres hands back
// time.Time; SQLite aggregates such as MAX(created_at) come back as text.
type nullTime struct {
	Time  time.Time
	Valid bool
}

func (n *nullTime) Scan(value interface{}) error {
	n.Time, n.Valid = time.Time{}, false
	switch v := value.(type) {
	case nil:
		return nil
	case time.Time:
		n.Time, n.Valid = v, true
		return nil
	case []byte:
		return n.parse(string(v))
	case string:
		return n.parse(v)
	}
	return fmt.Errorf("cannot scan %T into a timestamp", value)
}

func (n *nullTime) parse(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	// Drop the monotonic clock suffix of time.Time.String.
	if i := strings.Index(s, " m="); i > 0 {
		s = s[:i]
	}
	trimmed := strings.TrimSuffix(s, "Z")
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, trimmed); err == nil {
			n.Time, n.Valid = t, true
			return nil
		}
	}
	return fmt.Errorf("unrecognized timestamp %q", s)
}

// ParseTimestamp reads a timestamp in any layout the catalog scanner
// accepts. ok is false for an empty string.
func ParseTimestamp(s string) (t time.Time, ok bool, err error) {
	var n nullTime
	if err := n.parse(s); err != nil {
		return time.Time{}, false, err
	}
	return n.Time, n.Valid, nil
}
