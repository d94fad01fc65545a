package session

import (
	"fmt"
	"strings"
)

// FlushPolicy selects when buffered records are written.
type FlushPolicy string

const (
	// FlushEveryPages writes a batch every FlushThreshold pages and at the end.
	FlushEveryPages FlushPolicy = "every_pages"

	// FlushAtEnd writes a single batch when the run finishes.
	FlushAtEnd FlushPolicy = "at_end"
)

// Request defaults.
const (
	DefaultHourlyBudget   = 5000
	DefaultFlushThreshold = 5
	DefaultIdentityField  = "judge"
)

// FetchRequest describes one extraction run. It is not modified by Fetch.
type FetchRequest struct {
	// Endpoint is the API collection, e.g. "positions".
	Endpoint string `mapstructure:"endpoint"`

	// Params are added to the first page URL only.
	Params map[string]string `mapstructure:"params"`

	// MaxPages caps the pages fetched per run. 0 means unlimited.
	MaxPages int `mapstructure:"max_pages"`

	HourlyBudget   int         `mapstructure:"hourly_budget"`
	FlushThreshold int         `mapstructure:"flush_threshold"`
	FlushPolicy    FlushPolicy `mapstructure:"flush_policy"`

	// AuthorScoped runs keep a checkpoint per author and name their
	// artifacts after the author.
	AuthorScoped bool   `mapstructure:"author_scoped"`
	AuthorID     string `mapstructure:"author_id"`

	// IdentityField is the record field used to name author-scoped artifacts.
	IdentityField string `mapstructure:"identity_field"`

	// Destination is the output subdirectory. Defaults to the endpoint.
	Destination string `mapstructure:"destination"`
}

// ConfigError is an invalid FetchRequest.
type ConfigError struct {
	Field  string
	Reason string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid fetch request: %s: %s", e.Field, e.Reason)
}

// withDefaults fills unset fields. An unset policy means FlushEveryPages with
// the default threshold; an explicit FlushEveryPages keeps its threshold so
// Validate can reject a missing one.
func (r FetchRequest) withDefaults() FetchRequest {
	r.Endpoint = strings.Trim(r.Endpoint, "/")
	if r.HourlyBudget == 0 {
		r.HourlyBudget = DefaultHourlyBudget
	}
	if r.FlushPolicy == "" {
		r.FlushPolicy = FlushEveryPages
		if r.FlushThreshold == 0 {
			r.FlushThreshold = DefaultFlushThreshold
		}
	}
	if r.IdentityField == "" {
		r.IdentityField = DefaultIdentityField
	}
	if r.Destination == "" {
		r.Destination = r.Endpoint
	}
	return r
}

// Validate checks the request after defaults are applied.
func (r FetchRequest) Validate() error {
	switch {
	case r.Endpoint == "":
		return &ConfigError{Field: "endpoint", Reason: "is required"}
	case r.MaxPages < 0:
		return &ConfigError{Field: "max_pages", Reason: "must not be negative"}
	case r.HourlyBudget < 0:
		return &ConfigError{Field: "hourly_budget", Reason: "must not be negative"}
	case r.AuthorScoped && strings.TrimSpace(r.AuthorID) == "":
		return &ConfigError{Field: "author_id", Reason: "is required for author-scoped requests"}
	}

	switch r.FlushPolicy {
	case FlushEveryPages:
		if r.FlushThreshold <= 0 {
			return &ConfigError{Field: "flush_threshold", Reason: "must be positive with flush policy every_pages"}
		}
	case FlushAtEnd:
	default:
		return &ConfigError{Field: "flush_policy", Reason: fmt.Sprintf("unknown policy %q", r.FlushPolicy)}
	}
	return nil
}
