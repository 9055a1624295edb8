package recon

import (
	"fmt"
	"strings"

	"github.com/artcrm/artcrm/internal/enrich"
	"github.com/artcrm/artcrm/internal/model"
	"github.com/artcrm/artcrm/internal/vocab"
)

// ConfigError reports an invalid query or missing setting. It is the only
// error that aborts a run, and it is raised before any request is made.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("recon: invalid %s: %s", e.Field, e.Reason)
}

// ValidateQuery checks q against the vocabulary and the known sources and
// backends.
func ValidateQuery(q model.SourceQuery, voc *vocab.Vocabulary) error {
	if strings.TrimSpace(q.City) == "" {
		return &ConfigError{Field: "city", Reason: "must not be empty"}
	}
	if _, ok := voc.Country(q.Country); !ok {
		return &ConfigError{Field: "country", Reason: fmt.Sprintf("%q is not supported", q.Country)}
	}
	if q.RadiusKM <= 0 {
		return &ConfigError{Field: "radius", Reason: "must be positive"}
	}
	if len(q.Kinds) == 0 {
		return &ConfigError{Field: "kinds", Reason: "at least one venue kind is required"}
	}
	for _, k := range q.Kinds {
		if !voc.IsKind(k) {
			return &ConfigError{Field: "kinds", Reason: fmt.Sprintf("unknown venue kind %q", k)}
		}
	}
	if len(q.Sources) == 0 {
		return &ConfigError{Field: "sources", Reason: "all sources are disabled"}
	}
	for _, s := range q.Sources {
		if s != model.SourceGoogle && s != model.SourceOSM {
			return &ConfigError{Field: "sources", Reason: fmt.Sprintf("unknown source %q", s)}
		}
	}
	if !enrich.ValidBackend(q.Backend) {
		return &ConfigError{
			Field:  "model",
			Reason: fmt.Sprintf("unknown backend %q (want one of %s)", q.Backend, strings.Join(enrich.Backends, ", ")),
		}
	}
	return nil
}
