package storage

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/appliancepartgeeks/offermap/pkg/offers"
)

// ReadOffersCSV reads mpn,created_at rows. A header row whose first
// column is "mpn" is skipped; created_at may be empty.
func ReadOffersCSV(r io.Reader) ([]offers.RawOffer, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var out []offers.RawOffer
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		if line == 1 && strings.EqualFold(strings.TrimSpace(rec[0]), "mpn") {
			continue
		}
		if len(rec) > 2 {
			return nil, fmt.Errorf("line %d: want at most 2 columns, got %d", line, len(rec))
		}

		o := offers.RawOffer{MPN: rec[0]}
		if len(rec) == 2 {
			ts, ok, err := ParseTimestamp(rec[1])
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			if ok {
				o.CreatedAt = ts.UTC()
			}
		}
		out = append(out, o)
	}
}
