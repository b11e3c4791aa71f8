package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/appliancepartgeeks/offermap/pkg/offers"
)

func TestDetectDialect(t *testing.T) {
	tests := []struct {
		dsn     string
		want    Dialect
		wantErr bool
	}{
		{"postgres://u:p@localhost:5432/catalog?sslmode=disable", Postgres, false},
		{"postgresql://localhost/catalog", Postgres, false},
		{"host=localhost port=5432 dbname=catalog sslmode=disable", Postgres, false},
		{"sqlite:///tmp/catalog.sqlite", SQLite, false},
		{"file:catalog.db?mode=ro", SQLite, false},
		{"./catalog.sqlite", SQLite, false},
		{"/var/lib/catalog.db", SQLite, false},
		{"", "", true},
		{"mysql-somewhere", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.dsn, func(t *testing.T) {
			got, err := DetectDialect(tt.dsn)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRedactDSN(t *testing.T) {
	assert.Equal(t, "postgres://app:****@db:5432/catalog", RedactDSN("postgres://app:s3cret@db:5432/catalog"))
	assert.Equal(t, "host=db password=**** dbname=catalog", RedactDSN("host=db password=s3cret dbname=catalog"))
	assert.Equal(t, "./catalog.sqlite", RedactDSN("./catalog.sqlite"))
}

func TestSplitPassword(t *testing.T) {
	tests := []struct {
		dsn      string
		wantDSN  string
		wantPass string
	}{
		{"postgres://app:s3cret@db:5432/catalog?sslmode=disable", "postgres://app@db:5432/catalog?sslmode=disable", "s3cret"},
		{"postgresql://app@db/catalog", "postgresql://app@db/catalog", ""},
		{"host=db password=s3cret dbname=catalog", "host=db dbname=catalog", "s3cret"},
		{"host=db password='s3cret' dbname=catalog", "host=db dbname=catalog", "s3cret"},
		{"host=db dbname=catalog", "host=db dbname=catalog", ""},
	}
	for _, tt := range tests {
		t.Run(tt.dsn, func(t *testing.T) {
			gotDSN, gotPass := SplitPassword(tt.dsn)
			assert.Equal(t, tt.wantDSN, gotDSN)
			assert.Equal(t, tt.wantPass, gotPass)
			assert.NotContains(t, gotDSN, "s3cret")
		})
	}
}

func TestValidateTable(t *testing.T) {
	for _, ok := range []string{"offers", "public.offers", "_x1"} {
		assert.NoError(t, ValidateTable(ok), ok)
	}
	for _, bad := range []string{"", "1offers", "offers; DROP TABLE offers", "a.b.c", `"offers"`} {
		assert.Error(t, ValidateTable(bad), bad)
	}
}

func TestAggregateOffers_Postgres(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	seen := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`lower\(regexp_replace\(o\.mpn, '\[\^A-Za-z0-9\]', '', 'g'\)\)`).
		WithArgs(3).
		WillReturnRows(sqlmock.NewRows([]string{"mpn_key", "offer_count", "last_seen"}).
			AddRow("xyz", int64(4), seen).
			AddRow("abc", int64(3), nil))

	got, err := New(db, Postgres).AggregateOffers(context.Background(), "public.offers", 3)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, offers.Entry{Key: "xyz", Count: 4, LastSeen: seen}, got[0])
	assert.Equal(t, "abc", got[1].Key)
	assert.False(t, got[1].HasLastSeen())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAggregateOffers_QueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("WITH normed AS").WillReturnError(errors.New("connection reset"))

	_, err = New(db, Postgres).AggregateOffers(context.Background(), "offers", 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAggregateOffers_RejectsBadTable(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	_, err = New(db, Postgres).AggregateOffers(context.Background(), "offers o; --", 10)
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTopKeys_Postgres(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`LIMIT \$2`).
		WithArgs(1, 5).
		WillReturnRows(sqlmock.NewRows([]string{"mpn_key", "offer_count", "last_seen"}).
			AddRow("w10295370a", int64(31), "2024-05-06 07:08:09"))

	got, err := New(db, Postgres).TopKeys(context.Background(), "offers", 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC), got[0].LastSeen)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEachOffer_Postgres(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT mpn, created_at FROM offers").
		WillReturnRows(sqlmock.NewRows([]string{"mpn", "created_at"}).
			AddRow("WED-15P2", ts).
			AddRow(" ", nil))

	var got []offers.RawOffer
	err = New(db, Postgres).EachOffer(context.Background(), "offers", func(o offers.RawOffer) error {
		got = append(got, o)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []offers.RawOffer{{MPN: "WED-15P2", CreatedAt: ts}, {MPN: " "}}, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEachOffer_CallbackErrorStops(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT mpn, created_at FROM offers").
		WillReturnRows(sqlmock.NewRows([]string{"mpn", "created_at"}).AddRow("a", nil).AddRow("b", nil))

	stop := errors.New("stop")
	calls := 0
	err = New(db, Postgres).EachOffer(context.Background(), "offers", func(offers.RawOffer) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func TestInsertOffers_RefusesPostgres(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	_, err = New(db, Postgres).InsertOffers(context.Background(), "offers", []offers.RawOffer{{MPN: "x"}})
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func openSQLite(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), filepath.Join(t.TempDir(), "catalog.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func seed(t *testing.T, db *DB) {
	t.Helper()
	day := func(d int) time.Time { return time.Date(2024, 1, d, 12, 0, 0, 0, time.UTC) }
	n, err := db.InsertOffers(context.Background(), DefaultTable, []offers.RawOffer{
		{MPN: "WED15P2", CreatedAt: day(1)},
		{MPN: "wed-15p2", CreatedAt: day(9)},
		{MPN: "WED15P2"},
		{MPN: "XYZ", CreatedAt: day(3)},
		{MPN: "xyz"},
		{MPN: "x-y-z", CreatedAt: day(7)},
		{MPN: "xyz"},
		{MPN: "NOTS"},
		{MPN: "nots"},
		{MPN: "nots"},
		{MPN: " "},
		{MPN: ""},
		{MPN: "---"},
	})
	require.NoError(t, err)
	require.Equal(t, 13, n)
}

func TestSQLite_AggregateOffers(t *testing.T) {
	db := openSQLite(t)
	seed(t, db)

	got, err := db.AggregateOffers(context.Background(), DefaultTable, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, "xyz", got[0].Key)
	assert.Equal(t, 4, got[0].Count)
	assert.Equal(t, time.Date(2024, 1, 7, 12, 0, 0, 0, time.UTC), got[0].LastSeen)

	// Equal counts fall back to key order.
	assert.Equal(t, "nots", got[1].Key)
	assert.Equal(t, 3, got[1].Count)
	assert.False(t, got[1].HasLastSeen())
	assert.Equal(t, "wed15p2", got[2].Key)
	assert.Equal(t, time.Date(2024, 1, 9, 12, 0, 0, 0, time.UTC), got[2].LastSeen)
}

func TestSQLite_PushDownMatchesInProcess(t *testing.T) {
	db := openSQLite(t)
	seed(t, db)
	ctx := context.Background()

	agg := offers.NewAggregator()
	require.NoError(t, db.EachOffer(ctx, DefaultTable, func(o offers.RawOffer) error {
		agg.Add(o)
		return nil
	}))

	for _, min := range []int{0, 1, 3, 4, 5} {
		pushed, err := db.AggregateOffers(ctx, DefaultTable, min)
		require.NoError(t, err)
		reduced := offers.Filter(agg.Result().List(), min)
		if len(reduced) == 0 {
			assert.Empty(t, pushed, "min=%d", min)
			continue
		}
		assert.Equal(t, reduced, pushed, "min=%d", min)
	}
}

func TestSQLite_TopKeys(t *testing.T) {
	db := openSQLite(t)
	seed(t, db)

	got, err := db.TopKeys(context.Background(), DefaultTable, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "xyz", got[0].Key)
	assert.Equal(t, "nots", got[1].Key)
}

func TestSQLite_EmptyCatalog(t *testing.T) {
	db := openSQLite(t)
	got, err := db.AggregateOffers(context.Background(), DefaultTable, 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestNullTimeScan(t *testing.T) {
	want := time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC)
	tests := []struct {
		name  string
		in    interface{}
		valid bool
		err   bool
	}{
		{"nil", nil, false, false},
		{"time", want, true, false},
		{"sqlite format", "2024-02-03 04:05:06+00:00", true, false},
		{"iso with Z", "2024-02-03T04:05:06Z", true, false},
		{"bytes", []byte("2024-02-03 04:05:06"), true, false},
		{"go string form", "2024-02-03 04:05:06 +0000 UTC", true, false},
		{"empty", "", false, false},
		{"garbage", "yesterday", false, true},
		{"int", 42, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var n nullTime
			err := n.Scan(tt.in)
			if tt.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.valid, n.Valid)
			if tt.valid {
				assert.True(t, want.Equal(n.Time), "got %v", n.Time)
			}
		})
	}
}
