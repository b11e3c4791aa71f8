package pipeline

import (
	"net/url"
	"strings"

	"github.com/weppos/publicsuffix-go/publicsuffix"

	"github.com/appliancepartgeeks/offermap/internal/utils"
	"github.com/appliancepartgeeks/offermap/pkg/offers"
	"github.com/appliancepartgeeks/offermap/pkg/storage"
)

const (
	DefaultBaseURL    = "https://www.appliancepartgeeks.com"
	DefaultOutputPath = "public/sitemap-offers.xml"
)

// Strategy picks where aggregation happens.
type Strategy string

const (
	// StrategyAuto currently resolves to StrategyQuery.
	StrategyAuto Strategy = "auto"
	// StrategyQuery pushes normalization, grouping and thresholding into SQL.
	StrategyQuery Strategy = "query"
	// StrategyReduce streams raw offers and aggregates them in process.
	StrategyReduce Strategy = "reduce"
)

// Config holds the inputs of a single sitemap build.
type Config struct {
	BaseURL    string
	MinCount   int
	OutputPath string
	DSN        string
	Strategy   Strategy
	Table      string
}

func DefaultConfig() Config {
	return Config{
		BaseURL:    DefaultBaseURL,
		MinCount:   offers.DefaultMinCount,
		OutputPath: DefaultOutputPath,
		Strategy:   StrategyAuto,
		Table:      storage.DefaultTable,
	}
}

// Validate checks the configuration without touching the network.
func (c Config) Validate() error {
	if strings.TrimSpace(c.DSN) == "" {
		return &ConfigError{Field: "dsn", Reason: "PG_DSN is required"}
	}
	if c.MinCount < 0 {
		return &ConfigError{Field: "min_count", Reason: "must be a non-negative integer"}
	}
	if strings.TrimSpace(c.OutputPath) == "" {
		return &ConfigError{Field: "out_path", Reason: "must not be empty"}
	}
	if err := validateBaseURL(c.BaseURL); err != nil {
		return err
	}
	if err := storage.ValidateTable(c.Table); err != nil {
		return &ConfigError{Field: "table", Reason: "not a valid identifier", Err: err}
	}
	if _, err := c.resolveStrategy(); err != nil {
		return err
	}
	return nil
}

func validateBaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return &ConfigError{Field: "base_url", Reason: "cannot be parsed", Err: err}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return &ConfigError{Field: "base_url", Reason: "scheme must be http or https"}
	}
	host := u.Hostname()
	if host == "" {
		return &ConfigError{Field: "base_url", Reason: "has no host"}
	}
	return nil
}

// unregisteredHost reports why the base URL host is not a public
// registrable domain, or "" when it is, is an IP, or is localhost.
// Such hosts are still accepted.
func unregisteredHost(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	if host == "" || host == "localhost" || utils.IsIP(host) {
		return ""
	}
	if _, err := publicsuffix.Domain(host); err != nil {
		return err.Error()
	}
	return ""
}

func (c Config) resolveStrategy() (Strategy, error) {
	switch Strategy(strings.ToLower(string(c.Strategy))) {
	case "", StrategyAuto, StrategyQuery:
		return StrategyQuery, nil
	case StrategyReduce:
		return StrategyReduce, nil
	}
	return "", &ConfigError{Field: "strategy", Reason: "must be one of auto, query, reduce, got " + string(c.Strategy)}
}
