package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/appliancepartgeeks/offermap/internal/utils"
	"github.com/appliancepartgeeks/offermap/pkg/pipeline"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "offermap",
	Short: "Builds the refurbished-offers sitemap from the offer catalog.",
	Long: `offermap reads offers from the catalog database, groups them by normalized
manufacturer part number and writes a sitemaps.org document listing one
/refurb/<key> page for every part with enough offers.

Configuration comes from flags, then environment (PG_DSN, BASE_URL, MIN_COUNT,
OUT_PATH, OFFERMAP_*), then $HOME/.offermap.yaml.`,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		levelString, _ := cmd.Flags().GetString("loglevel")
		if err := utils.SetLogLevel(levelString); err != nil {
			return &pipeline.ConfigError{Field: "loglevel", Reason: "unknown level", Err: err}
		}
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "ERROR:", err)
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	if errors.Is(err, context.Canceled) {
		return 130
	}
	return pipeline.ExitCode(err)
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.offermap.yaml)")

	// Global flags
	rootCmd.PersistentFlags().StringP("loglevel", "l", "info", "Set log level. Available: debug, info, warn, error, fatal")
	rootCmd.PersistentFlags().String("dsn", "", "Catalog DSN: postgres://..., key=value, or a .sqlite path [PG_DSN]")
	rootCmd.PersistentFlags().String("table", "", "Offers table, optionally schema-qualified [OFFERMAP_TABLE] (default \"offers\")")
	rootCmd.PersistentFlags().String("base-url", "", "Storefront base URL [BASE_URL] (default \""+pipeline.DefaultBaseURL+"\")")
	rootCmd.PersistentFlags().String("out", "", "Sitemap output path [OUT_PATH] (default \""+pipeline.DefaultOutputPath+"\")")
	rootCmd.PersistentFlags().String("min-count", "", "Minimum offers per key [MIN_COUNT] (default 10)")

	bindFlag("dsn", rootCmd.PersistentFlags().Lookup("dsn"))
	bindFlag("table", rootCmd.PersistentFlags().Lookup("table"))
	bindFlag("base_url", rootCmd.PersistentFlags().Lookup("base-url"))
	bindFlag("out_path", rootCmd.PersistentFlags().Lookup("out"))
	bindFlag("min_count", rootCmd.PersistentFlags().Lookup("min-count"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		viper.AddConfigPath(home)
		viper.SetConfigName(".offermap")
		viper.SetConfigType("yaml")
	}

	bindEnv(viper.GetViper())

	// The config file is optional and never created.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			fmt.Fprintf(os.Stderr, "ERROR: reading config: %v\n", err)
			os.Exit(2)
		}
	}
}
