package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/appliancepartgeeks/offermap/internal/metrics"
	"github.com/appliancepartgeeks/offermap/internal/utils"
	"github.com/appliancepartgeeks/offermap/pkg/pipeline"
	"github.com/appliancepartgeeks/offermap/pkg/publish"
	"github.com/appliancepartgeeks/offermap/pkg/storage"
)

// buildCmd implements: offermap build
var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Aggregate offers and write the refurbished-offers sitemap",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		useLock, _ := cmd.Flags().GetBool("lock")
		return runBuild(cmd.Context(), viper.GetViper(), useLock, cmd.OutOrStdout())
	},
}

// runBuild performs one build and exports its metrics, including for
// runs rejected before the pipeline starts.
func runBuild(ctx context.Context, v *viper.Viper, useLock bool, out io.Writer) error {
	reg := metrics.NewRegistry(pipeline.KindConfig, pipeline.KindDataSource, pipeline.KindWrite)

	res, err := func() (*pipeline.Result, error) {
		cfg, err := loadConfig(v)
		if err == nil {
			err = cfg.Validate()
		}
		if err != nil {
			reg.ObserveFailure(pipeline.KindConfig)
			return nil, err
		}

		if useLock {
			lock, err := utils.NewOutputLock(cfg.OutputPath)
			if err == nil {
				err = lock.Lock()
			}
			if err != nil {
				reg.ObserveFailure(pipeline.KindWrite)
				return nil, &pipeline.WriteError{Path: cfg.OutputPath + ".lock", Err: err}
			}
			defer func() {
				if err := lock.Unlock(); err != nil {
					utils.Log.Warn(err)
				}
			}()
		}

		runner, err := newRunner(ctx, v, cfg, reg)
		if err != nil {
			reg.ObserveFailure(pipeline.Kind(err))
			return nil, err
		}

		utils.Log.WithField("dsn", storage.RedactDSN(cfg.DSN)).Debug("Starting build")
		return runner.Run(ctx, cfg)
	}()

	exportMetrics(ctx, v, reg, err == nil)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "OK: wrote %s with %d URLs (MIN_COUNT=%d)\n", res.Path, res.URLs, res.MinCount)
	return nil
}

func newRunner(ctx context.Context, v *viper.Viper, cfg pipeline.Config, reg *metrics.Registry) (*pipeline.Runner, error) {
	runner := &pipeline.Runner{
		Connect: func(ctx context.Context, dsn string) (pipeline.Source, error) {
			db, err := storage.Open(ctx, dsn)
			if err != nil {
				return nil, err
			}
			return db, nil
		},
		Log:     utils.Log,
		Metrics: reg,
	}

	if opts := loadS3Options(v, cfg.OutputPath); opts.Bucket != "" {
		pub, err := publish.NewS3Publisher(ctx, opts)
		if err != nil {
			return nil, &pipeline.ConfigError{Field: "s3", Reason: "cannot set up upload", Err: err}
		}
		runner.Publisher = pub
	}
	return runner, nil
}

// exportMetrics pushes or writes the run metrics when configured. A
// failed run only adds its failure counter to the Pushgateway and leaves
// the textfile untouched, so the last success gauges survive. Export
// problems are logged and never change the run outcome.
func exportMetrics(ctx context.Context, v *viper.Viper, reg *metrics.Registry, succeeded bool) {
	if gw := strings.TrimSpace(v.GetString("metrics.pushgw")); gw != "" {
		push := reg.Push
		if !succeeded {
			push = reg.PushFailures
		}
		if err := push(ctx, gw); err != nil {
			utils.Log.WithError(err).Warn("Could not push metrics")
		}
	}
	if path := strings.TrimSpace(v.GetString("metrics.textfile")); path != "" && succeeded {
		if err := reg.WriteTextfile(path); err != nil {
			utils.Log.WithError(err).Warn("Could not write metrics textfile")
		}
	}
}

func init() {
	rootCmd.AddCommand(buildCmd)
	buildCmd.Flags().String("strategy", "", "Aggregation strategy: auto, query, reduce [OFFERMAP_STRATEGY]")
	buildCmd.Flags().String("s3-bucket", "", "Also upload the sitemap to this S3 bucket [OFFERMAP_S3_BUCKET]")
	buildCmd.Flags().String("s3-key", "", "S3 object key [OFFERMAP_S3_KEY] (default: output file name)")
	buildCmd.Flags().String("s3-region", "", "S3 region [OFFERMAP_S3_REGION]")
	buildCmd.Flags().String("pushgateway", "", "Push run metrics to this Pushgateway URL [OFFERMAP_PUSHGATEWAY]")
	buildCmd.Flags().String("textfile", "", "Write run metrics to this node_exporter textfile [OFFERMAP_TEXTFILE]")
	buildCmd.Flags().Bool("lock", false, "Hold an exclusive lock on <out>.lock while building")

	bindFlag("strategy", buildCmd.Flags().Lookup("strategy"))
	bindFlag("s3.bucket", buildCmd.Flags().Lookup("s3-bucket"))
	bindFlag("s3.key", buildCmd.Flags().Lookup("s3-key"))
	bindFlag("s3.region", buildCmd.Flags().Lookup("s3-region"))
	bindFlag("metrics.pushgw", buildCmd.Flags().Lookup("pushgateway"))
	bindFlag("metrics.textfile", buildCmd.Flags().Lookup("textfile"))
}
