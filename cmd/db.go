package cmd

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/appliancepartgeeks/offermap/internal/utils"
	"github.com/appliancepartgeeks/offermap/pkg/pipeline"
	"github.com/appliancepartgeeks/offermap/pkg/storage"
)

// dbCmd represents the db command
var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Interact with the offers catalog",
}

// shellCmd represents the shell command
var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Start an interactive shell to the catalog (psql or sqlite3)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dsn := strings.TrimSpace(viper.GetString("dsn"))
		if dsn == "" {
			return &pipeline.ConfigError{Field: "dsn", Reason: "PG_DSN is required"}
		}
		dialect, err := storage.DetectDialect(dsn)
		if err != nil {
			return &pipeline.ConfigError{Field: "dsn", Reason: "unrecognized", Err: err}
		}

		tool := "psql"
		if dialect == storage.SQLite {
			path := sqlitePath(dsn)
			if _, err := os.Stat(path); os.IsNotExist(err) {
				return fmt.Errorf("database file not found: %s", path)
			}
			tool = "sqlite3"
		}

		toolPath, err := exec.LookPath(tool)
		if err != nil {
			return fmt.Errorf("%s command not found in your PATH. Please install it to use the db shell", tool)
		}

		fmt.Println("--> Starting interactive shell... (Ctrl+D to exit)")
		c := shellCommand(cmd.Context(), toolPath, dialect, dsn)
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr

		return c.Run()
	},
}

// shellCommand builds the psql or sqlite3 invocation. A Postgres password
// is moved from the DSN into PGPASSWORD so it never shows up in ps output.
func shellCommand(ctx context.Context, toolPath string, dialect storage.Dialect, dsn string) *exec.Cmd {
	if dialect == storage.SQLite {
		return exec.CommandContext(ctx, toolPath, sqlitePath(dsn))
	}
	target, password := storage.SplitPassword(dsn)
	c := exec.CommandContext(ctx, toolPath, target)
	if password != "" {
		c.Env = append(os.Environ(), "PGPASSWORD="+password)
	}
	return c
}

func sqlitePath(dsn string) string {
	path := strings.TrimPrefix(strings.TrimPrefix(dsn, "sqlite://"), "sqlite:")
	path = strings.TrimPrefix(path, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	return path
}

// importCmd loads offers from CSV into a local SQLite catalog.
var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Load mpn,created_at rows from a CSV file into a SQLite catalog",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		csvPath, _ := cmd.Flags().GetString("csv")
		if csvPath == "" {
			return &pipeline.ConfigError{Field: "csv", Reason: "--csv is required"}
		}
		cfg, err := loadConfig(viper.GetViper())
		if err != nil {
			return err
		}
		if cfg.DSN == "" {
			return &pipeline.ConfigError{Field: "dsn", Reason: "PG_DSN is required"}
		}
		dialect, err := storage.DetectDialect(cfg.DSN)
		if err != nil || dialect != storage.SQLite {
			return &pipeline.ConfigError{Field: "dsn", Reason: "import only writes to SQLite catalogs"}
		}

		f, err := os.Open(csvPath)
		if err != nil {
			return err
		}
		defer f.Close()

		rows, err := storage.ReadOffersCSV(f)
		if err != nil {
			return fmt.Errorf("%s: %w", csvPath, err)
		}

		db, err := storage.Open(cmd.Context(), cfg.DSN)
		if err != nil {
			return &pipeline.DataSourceError{Op: "connect", Err: err}
		}
		defer db.Close()

		if cfg.Table != storage.DefaultTable {
			if err := db.EnsureSchema(cmd.Context(), cfg.Table); err != nil {
				return &pipeline.DataSourceError{Op: "create table", Err: err}
			}
		}

		n, err := db.InsertOffers(cmd.Context(), cfg.Table, rows)
		if err != nil {
			return &pipeline.DataSourceError{Op: "insert offers", Err: err}
		}
		utils.Log.WithField("table", cfg.Table).Infof("Imported %d offers from %s", n, csvPath)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(dbCmd)
	dbCmd.AddCommand(shellCmd)
	dbCmd.AddCommand(importCmd)
	importCmd.Flags().String("csv", "", "CSV file with mpn,created_at rows")
}
