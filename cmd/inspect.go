package cmd

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/appliancepartgeeks/offermap/pkg/sitemap"
	"github.com/appliancepartgeeks/offermap/pkg/whttp"
)

// inspectCmd implements: offermap inspect <file|url>
var inspectCmd = &cobra.Command{
	Use:   "inspect <file|url>",
	Short: "Parse a sitemap file or URL and summarize it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		target := args[0]
		head, _ := cmd.Flags().GetInt("head")

		var raw []byte
		var err error
		if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
			raw, err = whttp.Fetch(cmd.Context(), target)
		} else {
			raw, err = os.ReadFile(target)
		}
		if err != nil {
			return err
		}

		doc, err := sitemap.Parse(bytes.NewReader(raw))
		if err != nil {
			return fmt.Errorf("%s: %w", target, err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s: %d URLs, %d bytes\n", target, doc.Len(), len(raw))

		seen := make(map[string]bool, doc.Len())
		var dups int
		newest, oldest := "", ""
		for _, u := range doc.URLs {
			if seen[u.Loc] {
				dups++
			}
			seen[u.Loc] = true
			if newest == "" || u.LastMod > newest {
				newest = u.LastMod
			}
			if oldest == "" || u.LastMod < oldest {
				oldest = u.LastMod
			}
		}
		if doc.Len() > 0 {
			fmt.Fprintf(out, "lastmod: %s .. %s\n", oldest, newest)
		}
		if dups > 0 {
			fmt.Fprintf(out, "WARNING: %d duplicate locs\n", dups)
		}

		for i, u := range doc.URLs {
			if i >= head {
				break
			}
			fmt.Fprintf(out, "  %s  %s\n", u.LastMod, u.Loc)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(inspectCmd)
	inspectCmd.Flags().Int("head", 10, "Number of URLs to list")
}
