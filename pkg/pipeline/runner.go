package pipeline

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/appliancepartgeeks/offermap/internal/utils"
	"github.com/appliancepartgeeks/offermap/pkg/offers"
	"github.com/appliancepartgeeks/offermap/pkg/sitemap"
)

// Source is the catalog as seen by a run. *storage.DB satisfies it.
type Source interface {
	AggregateOffers(ctx context.Context, table string, minCount int) ([]offers.Entry, error)
	EachOffer(ctx context.Context, table string, fn func(offers.RawOffer) error) error
}

// Publisher ships the rendered sitemap somewhere besides the local file.
type Publisher interface {
	Publish(ctx context.Context, body []byte) error
	Destination() string
}

// Recorder receives the outcome of each run.
type Recorder interface {
	ObserveSuccess(keys, urls int, took time.Duration, finished time.Time)
	ObserveFailure(kind string)
}

// Result describes a completed run.
type Result struct {
	Path        string
	URLs        int
	Keys        int
	MinCount    int
	Strategy    Strategy
	Generated   time.Time
	Duration    time.Duration
	PublishedTo string
}

// Runner executes one build: read, aggregate, filter, render, write.
type Runner struct {
	// Source is used as is when set. Otherwise Connect opens one from
	// Config.DSN and the run closes it afterwards.
	Source  Source
	Connect func(ctx context.Context, dsn string) (Source, error)

	Now       func() time.Time
	Log       *logrus.Logger
	Metrics   Recorder
	Publisher Publisher
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r *Runner) log() *logrus.Logger {
	if r.Log != nil {
		return r.Log
	}
	return utils.Log
}

// Run performs the build described by cfg. On failure nothing is
// reported as written and the error is a *ConfigError, *DataSourceError
// or *WriteError.
func (r *Runner) Run(ctx context.Context, cfg Config) (*Result, error) {
	res, err := r.run(ctx, cfg)
	if err != nil {
		if r.Metrics != nil {
			r.Metrics.ObserveFailure(Kind(err))
		}
		return nil, err
	}
	if r.Metrics != nil {
		r.Metrics.ObserveSuccess(res.Keys, res.URLs, res.Duration, res.Generated.Add(res.Duration))
	}
	return res, nil
}

func (r *Runner) run(ctx context.Context, cfg Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	strategy, _ := cfg.resolveStrategy()

	runTime := r.now().UTC()
	log := r.log().WithFields(logrus.Fields{
		"strategy":  strategy,
		"min_count": cfg.MinCount,
		"table":     cfg.Table,
	})

	if reason := unregisteredHost(cfg.BaseURL); reason != "" {
		log.WithField("base_url", cfg.BaseURL).Warnf("Base URL host has no registrable domain: %s", reason)
	}

	src, closeSrc, err := r.source(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	defer closeSrc()

	var (
		entries []offers.Entry
		keys    int
	)
	switch strategy {
	case StrategyReduce:
		agg := offers.NewAggregator()
		err = src.EachOffer(ctx, cfg.Table, func(o offers.RawOffer) error {
			agg.Add(o)
			return nil
		})
		if err != nil {
			return nil, &DataSourceError{Op: "stream offers", Err: err}
		}
		result := agg.Result()
		keys = len(result)
		entries = result.List()
		log.WithFields(logrus.Fields{"offers": agg.Seen(), "skipped": agg.Skipped()}).Debug("Streamed offers")
	default:
		entries, err = src.AggregateOffers(ctx, cfg.Table, cfg.MinCount)
		if err != nil {
			return nil, &DataSourceError{Op: "aggregate offers", Err: err}
		}
		keys = len(entries)
	}
	log.WithField("keys", keys).Debug("Aggregated offers")

	// Threshold and order are enforced here whatever the source did.
	entries = offers.Filter(entries, cfg.MinCount)

	doc := sitemap.Build(entries, cfg.BaseURL, runTime)
	if err := sitemap.WriteFile(doc, cfg.OutputPath); err != nil {
		return nil, &WriteError{Path: cfg.OutputPath, Err: err}
	}
	log.WithFields(logrus.Fields{"path": cfg.OutputPath, "urls": doc.Len()}).Info("Wrote sitemap")

	res := &Result{
		Path:      cfg.OutputPath,
		URLs:      doc.Len(),
		Keys:      keys,
		MinCount:  cfg.MinCount,
		Strategy:  strategy,
		Generated: runTime,
	}

	if r.Publisher != nil {
		dest := r.Publisher.Destination()
		if err := r.Publisher.Publish(ctx, doc.Bytes()); err != nil {
			return nil, &WriteError{Path: dest, Err: err}
		}
		res.PublishedTo = dest
		log.WithField("destination", dest).Info("Published sitemap")
	}

	res.Duration = r.now().Sub(runTime)
	if res.Duration < 0 {
		res.Duration = 0
	}
	return res, nil
}

func (r *Runner) source(ctx context.Context, dsn string) (Source, func(), error) {
	if r.Source != nil {
		return r.Source, func() {}, nil
	}
	if r.Connect == nil {
		return nil, nil, &DataSourceError{Op: "connect", Err: errors.New("no data source configured")}
	}
	src, err := r.Connect(ctx, dsn)
	if err != nil {
		return nil, nil, &DataSourceError{Op: "connect", Err: err}
	}
	return src, func() {
		if c, ok := src.(io.Closer); ok {
			if err := c.Close(); err != nil {
				r.log().WithError(err).Warn("Closing data source")
			}
		}
	}, nil
}

// Kind classifies a run error for metrics and exit codes.
func Kind(err error) string {
	var (
		cfgErr   *ConfigError
		srcErr   *DataSourceError
		writeErr *WriteError
	)
	switch {
	case errors.As(err, &cfgErr):
		return KindConfig
	case errors.As(err, &srcErr):
		return KindDataSource
	case errors.As(err, &writeErr):
		return KindWrite
	}
	return KindOther
}

// ExitCode maps a run error onto the process exit status.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	switch Kind(err) {
	case KindConfig:
		return 2
	case KindDataSource:
		return 3
	case KindWrite:
		return 4
	}
	return 1
}
