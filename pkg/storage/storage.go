package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"modernc.org/sqlite"

	"github.com/appliancepartgeeks/offermap/pkg/offers"
)

// Dialect selects the SQL flavour spoken by the catalog.
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

// DefaultTable is the catalog table holding offers.
const DefaultTable = "offers"

// DefaultDBTimeout bounds connection setup.
const DefaultDBTimeout = 15 * time.Second

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

func init() {
	// Lets SQLite run the same push-down query as Postgres.
	sqlite.MustRegisterDeterministicScalarFunction("mpn_norm", 1, func(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
		switch v := args[0].(type) {
		case nil:
			return "", nil
		case string:
			return offers.Normalize(v), nil
		case []byte:
			return offers.Normalize(string(v)), nil
		default:
			return offers.Normalize(fmt.Sprint(v)), nil
		}
	})
}

// DB is a read-mostly handle on the offers catalog.
type DB struct {
	sql     *sql.DB
	dialect Dialect
}

// DetectDialect infers the driver from a DSN.
func DetectDialect(dsn string) (Dialect, error) {
	d := strings.TrimSpace(dsn)
	lower := strings.ToLower(d)
	switch {
	case d == "":
		return "", errors.New("empty DSN")
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return Postgres, nil
	case strings.HasPrefix(lower, "sqlite:"), strings.HasPrefix(lower, "file:"):
		return SQLite, nil
	case strings.HasSuffix(lower, ".sqlite"), strings.HasSuffix(lower, ".sqlite3"), strings.HasSuffix(lower, ".db"):
		return SQLite, nil
	case strings.Contains(d, "="):
		// libpq key=value form: "host=... dbname=..."
		return Postgres, nil
	}
	return "", fmt.Errorf("cannot tell database type from DSN %q", RedactDSN(d))
}

// Open connects to the catalog named by dsn and checks the connection.
func Open(ctx context.Context, dsn string) (*DB, error) {
	dialect, err := DetectDialect(dsn)
	if err != nil {
		return nil, err
	}

	var db *sql.DB
	switch dialect {
	case Postgres:
		db, err = sql.Open("postgres", dsn)
		if err != nil {
			return nil, err
		}
		db.SetMaxOpenConns(2)
		db.SetConnMaxLifetime(30 * time.Minute)
	case SQLite:
		db, err = sql.Open("sqlite", sqliteDSN(dsn))
		if err != nil {
			return nil, err
		}
	}

	pingCtx, cancel := context.WithTimeout(ctx, DefaultDBTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, err
	}

	d := New(db, dialect)
	if dialect == SQLite {
		if err := d.ensureSchema(ctx, DefaultTable); err != nil {
			db.Close()
			return nil, err
		}
	}
	return d, nil
}

// New wraps an existing connection pool.
func New(db *sql.DB, dialect Dialect) *DB {
	return &DB{sql: db, dialect: dialect}
}

func (d *DB) Dialect() Dialect { return d.dialect }

func (d *DB) Ping(ctx context.Context) error {
	return d.sql.PingContext(ctx)
}

func (d *DB) Close() error {
	if d == nil || d.sql == nil {
		return nil
	}
	return d.sql.Close()
}

// ValidateTable rejects anything that is not a plain or schema-qualified identifier.
func ValidateTable(name string) error {
	if !tableName.MatchString(name) {
		return fmt.Errorf("invalid table name %q", name)
	}
	return nil
}

// sqliteDSN turns a path or sqlite: URL into a modernc DSN.
func sqliteDSN(dsn string) string {
	path := strings.TrimPrefix(dsn, "sqlite://")
	path = strings.TrimPrefix(path, "sqlite:")
	if strings.HasPrefix(path, "file:") {
		return path
	}
	return "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_time_format=sqlite"
}

// EnsureSchema creates the offers table on a SQLite catalog. Postgres
// catalogs are owned elsewhere and are never modified.
func (d *DB) EnsureSchema(ctx context.Context, table string) error {
	if d.dialect != SQLite {
		return fmt.Errorf("refusing to create %s on a %s catalog", table, d.dialect)
	}
	return d.ensureSchema(ctx, table)
}

func (d *DB) ensureSchema(ctx context.Context, table string) error {
	if err := ValidateTable(table); err != nil {
		return err
	}
	if _, err := d.sql.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS `+table+` (
  id         INTEGER PRIMARY KEY,
  mpn        TEXT,
  created_at DATETIME
)`); err != nil {
		return err
	}
	if strings.Contains(table, ".") {
		return nil
	}
	_, err := d.sql.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_`+table+`_mpn ON `+table+`(mpn)`)
	return err
}

var (
	urlPassword = regexp.MustCompile(`(://[^:/@]+:)[^@]*@`)
	kvPassword  = regexp.MustCompile(`(password=)(\S+)`)
)

// RedactDSN hides the password in URL and key=value DSNs.
func RedactDSN(dsn string) string {
	dsn = urlPassword.ReplaceAllString(dsn, "${1}****@")
	return kvPassword.ReplaceAllString(dsn, "${1}****")
}

// SplitPassword returns dsn without its password, and the password, so the
// password can travel out of band (PGPASSWORD) instead of on a command line.
func SplitPassword(dsn string) (string, string) {
	lower := strings.ToLower(dsn)
	if strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://") {
		u, err := url.Parse(dsn)
		if err != nil || u.User == nil {
			return dsn, ""
		}
		pass, ok := u.User.Password()
		if !ok {
			return dsn, ""
		}
		u.User = url.User(u.User.Username())
		return u.String(), pass
	}

	m := kvPassword.FindStringSubmatchIndex(dsn)
	if m == nil {
		return dsn, ""
	}
	pass := strings.Trim(dsn[m[4]:m[5]], "'")
	stripped := strings.Join(strings.Fields(dsn[:m[0]]+dsn[m[1]:]), " ")
	return stripped, pass
}
