package pipeline

import "fmt"

// ConfigError reports an unusable run configuration. It is raised before
// any connection to the catalog is attempted.
type ConfigError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("config: %s: %s: %v", e.Field, e.Reason, e.Err)
	}
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// DataSourceError reports a failure to connect to or read the catalog.
type DataSourceError struct {
	Op  string
	Err error
}

func (e *DataSourceError) Error() string {
	return fmt.Sprintf("data source: %s: %v", e.Op, e.Err)
}

func (e *DataSourceError) Unwrap() error { return e.Err }

// WriteError reports a failure to persist or publish the sitemap.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// Failure kinds, used as metric labels and exit code selectors.
const (
	KindConfig     = "config"
	KindDataSource = "data_source"
	KindWrite      = "write"
	KindOther      = "other"
)
