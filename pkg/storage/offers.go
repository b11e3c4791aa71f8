package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/appliancepartgeeks/offermap/pkg/offers"
)

// aggregateQuery returns the push-down aggregation for the dialect. The
// normalization expression must agree with offers.Normalize: strip every
// character outside [A-Za-z0-9] first, then lower-case what is left.
func (d *DB) aggregateQuery(table string, withLimit bool) string {
	norm := `lower(regexp_replace(o.mpn, '[^A-Za-z0-9]', '', 'g'))`
	trim := `btrim(o.mpn)`
	order := `mpn_key COLLATE "C" ASC`
	minArg, limitArg := "$1", "$2"
	if d.dialect == SQLite {
		norm = `mpn_norm(o.mpn)`
		trim = `trim(o.mpn)`
		order = `mpn_key ASC`
		minArg, limitArg = "?", "?"
	}

	q := `
WITH normed AS (
  SELECT
    ` + norm + ` AS mpn_key,
    o.created_at
  FROM ` + table + ` o
  WHERE o.mpn IS NOT NULL
    AND ` + trim + ` <> ''
)
SELECT mpn_key, COUNT(*) AS offer_count, MAX(created_at) AS last_seen
FROM normed
WHERE mpn_key <> ''
GROUP BY mpn_key
HAVING COUNT(*) >= ` + minArg + `
ORDER BY offer_count DESC, ` + order
	if withLimit {
		q += `
LIMIT ` + limitArg
	}
	return q
}

// AggregateOffers groups, counts and thresholds offers inside the database
// and returns them in sitemap order.
func (d *DB) AggregateOffers(ctx context.Context, table string, minCount int) ([]offers.Entry, error) {
	if err := ValidateTable(table); err != nil {
		return nil, err
	}
	rows, err := d.sql.QueryContext(ctx, d.aggregateQuery(table, false), minCount)
	if err != nil {
		return nil, fmt.Errorf("aggregate offers: %w", err)
	}
	return scanEntries(rows)
}

// TopKeys returns the limit most frequent keys with at least one offer.
func (d *DB) TopKeys(ctx context.Context, table string, limit int) ([]offers.Entry, error) {
	if err := ValidateTable(table); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := d.sql.QueryContext(ctx, d.aggregateQuery(table, true), 1, limit)
	if err != nil {
		return nil, fmt.Errorf("top keys: %w", err)
	}
	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]offers.Entry, error) {
	defer rows.Close()

	var out []offers.Entry
	for rows.Next() {
		var (
			e        offers.Entry
			lastSeen nullTime
		)
		if err := rows.Scan(&e.Key, &e.Count, &lastSeen); err != nil {
			return nil, fmt.Errorf("scan aggregate row: %w", err)
		}
		if lastSeen.Valid {
			e.LastSeen = lastSeen.Time.UTC()
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// EachOffer streams every offer with a non-NULL MPN to fn. Iteration stops
// at the first error returned by fn.
func (d *DB) EachOffer(ctx context.Context, table string, fn func(offers.RawOffer) error) error {
	if err := ValidateTable(table); err != nil {
		return err
	}
	rows, err := d.sql.QueryContext(ctx, "SELECT mpn, created_at FROM "+table+" WHERE mpn IS NOT NULL")
	if err != nil {
		return fmt.Errorf("list offers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			mpn       sql.NullString
			createdAt nullTime
		)
		if err := rows.Scan(&mpn, &createdAt); err != nil {
			return fmt.Errorf("scan offer row: %w", err)
		}
		o := offers.RawOffer{MPN: mpn.String}
		if createdAt.Valid {
			o.CreatedAt = createdAt.Time
		}
		if err := fn(o); err != nil {
			return err
		}
	}
	return rows.Err()
}

// InsertOffers loads offers into a SQLite catalog in one transaction.
func (d *DB) InsertOffers(ctx context.Context, table string, items []offers.RawOffer) (n int, err error) {
	if d.dialect != SQLite {
		return 0, fmt.Errorf("refusing to write offers into a %s catalog", d.dialect)
	}
	if err := ValidateTable(table); err != nil {
		return 0, err
	}

	tx, err := d.sql.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO "+table+"(mpn, created_at) VALUES(?, ?)")
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	for _, it := range items {
		if _, err = stmt.ExecContext(ctx, nullIfEmpty(it.MPN), nullIfZero(it.CreatedAt)); err != nil {
			return 0, err
		}
		n++
	}
	if err = tx.Commit(); err != nil {
		return 0, err
	}
	return n, nil
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullIfZero(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}
