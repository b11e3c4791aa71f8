package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Job is the Pushgateway job name.
const Job = "offermap"

type Registry struct {
	reg           *prometheus.Registry
	KeysAggr      prometheus.Gauge
	URLsEmitted   prometheus.Gauge
	RunDuration   prometheus.Gauge
	LastSuccessTS prometheus.Gauge
	Failures      *prometheus.CounterVec
}

// NewRegistry builds a registry. kinds pre-creates failure series so they
// export as zero before the first failure.
func NewRegistry(kinds ...string) *Registry {
	r := prometheus.NewRegistry()
	keys := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "offermap_keys_aggregated",
		Help: "Distinct normalized MPN keys seen by the last successful run.",
	})
	urls := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "offermap_urls_emitted",
		Help: "URLs written to the sitemap by the last successful run.",
	})
	dur := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "offermap_run_duration_seconds",
		Help: "Wall time of the last successful run.",
	})
	last := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "offermap_last_success_timestamp_seconds",
		Help: "Unix time the last successful run finished.",
	})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "offermap_run_failures_total",
		Help: "Failed runs by error kind.",
	}, []string{"kind"})
	for _, k := range kinds {
		failures.WithLabelValues(k)
	}

	r.MustRegister(keys, urls, dur, last, failures)
	return &Registry{
		reg:           r,
		KeysAggr:      keys,
		URLsEmitted:   urls,
		RunDuration:   dur,
		LastSuccessTS: last,
		Failures:      failures,
	}
}

func (r *Registry) ObserveSuccess(keys, urls int, took time.Duration, finished time.Time) {
	r.KeysAggr.Set(float64(keys))
	r.URLsEmitted.Set(float64(urls))
	r.RunDuration.Set(took.Seconds())
	r.LastSuccessTS.Set(float64(finished.Unix()))
}

func (r *Registry) ObserveFailure(kind string) {
	r.Failures.WithLabelValues(kind).Inc()
}

func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

func (r *Registry) Handler() http.Handler { return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}) }

// Push replaces this job's whole group on a Pushgateway.
func (r *Registry) Push(ctx context.Context, gatewayURL string) error {
	if err := push.New(gatewayURL, Job).Gatherer(r.reg).PushContext(ctx); err != nil {
		return fmt.Errorf("push to %s: %w", gatewayURL, err)
	}
	return nil
}

// PushFailures adds only the failure counter to the job's group, leaving
// the gauges of the last successful run in place.
func (r *Registry) PushFailures(ctx context.Context, gatewayURL string) error {
	if err := push.New(gatewayURL, Job).Collector(r.Failures).AddContext(ctx); err != nil {
		return fmt.Errorf("push failures to %s: %w", gatewayURL, err)
	}
	return nil
}

// WriteTextfile writes the registry in the node_exporter textfile format.
func (r *Registry) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.reg); err != nil {
		return fmt.Errorf("write metrics textfile %s: %w", path, err)
	}
	return nil
}
