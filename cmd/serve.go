package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/appliancepartgeeks/offermap/internal/metrics"
	"github.com/appliancepartgeeks/offermap/internal/server"
	"github.com/appliancepartgeeks/offermap/internal/utils"
	"github.com/appliancepartgeeks/offermap/pkg/pipeline"
	"github.com/appliancepartgeeks/offermap/pkg/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the sitemap, robots.txt, stats and metrics over HTTP",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		v := viper.GetViper()
		cfg, err := loadConfig(v)
		if err != nil {
			return err
		}
		listenAddr, _ := cmd.Flags().GetString("listen")
		every, _ := cmd.Flags().GetDuration("build-every")

		reg := metrics.NewRegistry(pipeline.KindConfig, pipeline.KindDataSource, pipeline.KindWrite)
		srv := server.New(nil, cfg.Table, cfg.OutputPath, cfg.BaseURL, v.GetString("server.username"), v.GetString("server.password"))
		srv.Metrics = reg.Handler()

		if cfg.DSN != "" {
			if err := storage.ValidateTable(cfg.Table); err != nil {
				return &pipeline.ConfigError{Field: "table", Reason: "not a valid identifier", Err: err}
			}
			db, err := storage.Open(ctx, cfg.DSN)
			if err != nil {
				return &pipeline.DataSourceError{Op: "connect", Err: err}
			}
			defer db.Close()
			srv.DB = db
		} else {
			utils.Log.Info("No DSN configured, /api/stats disabled")
		}

		if every > 0 {
			if err := cfg.Validate(); err != nil {
				return err
			}
			runner, err := newRunner(ctx, v, cfg, reg)
			if err != nil {
				return err
			}
			go rebuildLoop(ctx, runner, cfg, every)
		}

		return srv.Start(ctx, listenAddr)
	},
}

// rebuildLoop runs the build immediately and then every interval until
// ctx is done. Failed builds keep the previous sitemap in place.
func rebuildLoop(ctx context.Context, runner *pipeline.Runner, cfg pipeline.Config, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		if res, err := runner.Run(ctx, cfg); err != nil {
			utils.Log.WithError(err).WithField("kind", pipeline.Kind(err)).Error("Scheduled build failed")
		} else {
			utils.Log.WithField("urls", res.URLs).Info("Scheduled build done")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("listen", ":8080", "HTTP listen address")
	serveCmd.Flags().String("user", "", "Basic auth username for /api [OFFERMAP_SERVER_USERNAME]")
	serveCmd.Flags().String("pass", "", "Basic auth password for /api [OFFERMAP_SERVER_PASSWORD]")
	serveCmd.Flags().Duration("build-every", 0, "Rebuild the sitemap on this interval while serving (0 disables)")

	bindFlag("server.username", serveCmd.Flags().Lookup("user"))
	bindFlag("server.password", serveCmd.Flags().Lookup("pass"))
}
