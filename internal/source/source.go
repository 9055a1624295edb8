// Package source fetches raw venue candidates from geographic providers.
// Every provider request passes through a Gate and is retried on transient
// failures.
package source

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/artcrm/artcrm/internal/model"
)

// Source fetches every page of a provider's results for one venue kind.
// On failure it returns the candidates gathered so far together with the
// error; callers treat that as a partial result.
type Source interface {
	Name() string
	Search(ctx context.Context, area model.Area, kind string) ([]model.RawCandidate, error)
}

// UnavailableError reports a source that cannot run, e.g. for lack of
// credentials.
type UnavailableError struct {
	Source string
	Reason string
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("source %s unavailable: %s", e.Source, e.Reason)
}

type unavailable struct {
	name   string
	reason string
}

// Unavailable returns a Source that fails every search with an
// UnavailableError.
func Unavailable(name, reason string) Source {
	return &unavailable{name: name, reason: reason}
}

func (u *unavailable) Name() string { return u.name }

func (u *unavailable) Search(context.Context, model.Area, string) ([]model.RawCandidate, error) {
	return nil, &UnavailableError{Source: u.name, Reason: u.reason}
}

// newRaw stamps a provider record as a RawCandidate.
func newRaw(source, kind string, payload []byte, now time.Time) model.RawCandidate {
	return model.RawCandidate{
		ID:        uuid.NewString(),
		Source:    source,
		Kind:      kind,
		Payload:   append([]byte(nil), payload...),
		FetchedAt: now.UTC(),
	}
}
