package cmd

import (
	"strconv"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/appliancepartgeeks/offermap/pkg/offers"
	"github.com/appliancepartgeeks/offermap/pkg/pipeline"
	"github.com/appliancepartgeeks/offermap/pkg/publish"
	"github.com/appliancepartgeeks/offermap/pkg/storage"
)

// envKeys maps config keys onto their environment variables.
var envKeys = map[string]string{
	"dsn":              "PG_DSN",
	"base_url":         "BASE_URL",
	"min_count":        "MIN_COUNT",
	"out_path":         "OUT_PATH",
	"strategy":         "OFFERMAP_STRATEGY",
	"table":            "OFFERMAP_TABLE",
	"s3.bucket":        "OFFERMAP_S3_BUCKET",
	"s3.key":           "OFFERMAP_S3_KEY",
	"s3.region":        "OFFERMAP_S3_REGION",
	"s3.profile":       "AWS_PROFILE",
	"metrics.pushgw":   "OFFERMAP_PUSHGATEWAY",
	"metrics.textfile": "OFFERMAP_TEXTFILE",
	"server.username":  "OFFERMAP_SERVER_USERNAME",
	"server.password":  "OFFERMAP_SERVER_PASSWORD",
}

func bindEnv(v *viper.Viper) {
	for key, env := range envKeys {
		_ = v.BindEnv(key, env)
	}
	v.SetDefault("base_url", pipeline.DefaultBaseURL)
	v.SetDefault("min_count", strconv.Itoa(offers.DefaultMinCount))
	v.SetDefault("out_path", pipeline.DefaultOutputPath)
	v.SetDefault("strategy", string(pipeline.StrategyAuto))
	v.SetDefault("table", storage.DefaultTable)
}

// bindFlag lets an explicitly set flag override env and file values.
func bindFlag(key string, f *pflag.Flag) {
	if err := viper.BindPFlag(key, f); err != nil {
		panic(err)
	}
}

// loadConfig assembles the run configuration from v. It does not validate
// beyond parsing MIN_COUNT.
func loadConfig(v *viper.Viper) (pipeline.Config, error) {
	cfg := pipeline.Config{
		DSN:        strings.TrimSpace(v.GetString("dsn")),
		BaseURL:    strings.TrimSpace(v.GetString("base_url")),
		OutputPath: v.GetString("out_path"),
		Strategy:   pipeline.Strategy(strings.TrimSpace(v.GetString("strategy"))),
		Table:      strings.TrimSpace(v.GetString("table")),
	}

	raw := strings.TrimSpace(v.GetString("min_count"))
	n, err := strconv.Atoi(raw)
	if err != nil {
		return cfg, &pipeline.ConfigError{Field: "min_count", Reason: "must be a non-negative integer, got " + strconv.Quote(raw)}
	}
	cfg.MinCount = n
	return cfg, nil
}

func loadS3Options(v *viper.Viper, outputPath string) publish.Options {
	opts := publish.Options{
		Bucket:  strings.TrimSpace(v.GetString("s3.bucket")),
		Key:     strings.TrimSpace(v.GetString("s3.key")),
		Region:  strings.TrimSpace(v.GetString("s3.region")),
		Profile: strings.TrimSpace(v.GetString("s3.profile")),
	}
	if opts.Key == "" {
		opts.Key = publish.DefaultKey(outputPath)
	}
	return opts
}
