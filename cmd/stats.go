package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/appliancepartgeeks/offermap/pkg/pipeline"
	"github.com/appliancepartgeeks/offermap/pkg/sitemap"
	"github.com/appliancepartgeeks/offermap/pkg/storage"
)

// statsCmd represents the stats command
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Prints the most offered part numbers in the catalog.",
	Long:  "Prints the most offered normalized part numbers with their offer counts and last offer time, whether or not they reach the sitemap threshold.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(viper.GetViper())
		if err != nil {
			return err
		}
		if cfg.DSN == "" {
			return &pipeline.ConfigError{Field: "dsn", Reason: "PG_DSN is required"}
		}
		if err := storage.ValidateTable(cfg.Table); err != nil {
			return &pipeline.ConfigError{Field: "table", Reason: "not a valid identifier", Err: err}
		}
		limit, _ := cmd.Flags().GetInt("limit")

		db, err := storage.Open(cmd.Context(), cfg.DSN)
		if err != nil {
			return &pipeline.DataSourceError{Op: "connect", Err: err}
		}
		defer db.Close()

		entries, err := db.TopKeys(cmd.Context(), cfg.Table, limit)
		if err != nil {
			return &pipeline.DataSourceError{Op: "top keys", Err: err}
		}

		if len(entries) == 0 {
			fmt.Println("No offers in the catalog to generate stats.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "KEY\tOFFERS\tLAST SEEN\tIN SITEMAP\t")

		var total, listed int
		for _, e := range entries {
			lastSeen := "-"
			if e.HasLastSeen() {
				lastSeen = sitemap.FormatTime(e.LastSeen)
			}
			in := "no"
			if e.Count >= cfg.MinCount {
				in = "yes"
				listed++
			}
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\t\n", e.Key, e.Count, lastSeen, in)
			total += e.Count
		}

		fmt.Fprintln(w, " \t \t \t \t")
		fmt.Fprintf(w, "TOTAL\t%d\t \t%d/%d\t\n", total, listed, len(entries))

		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
	statsCmd.Flags().IntP("limit", "n", 25, "Number of keys to show")
}
