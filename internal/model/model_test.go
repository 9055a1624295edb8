package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSourceQueryEnabled(t *testing.T) {
	q := SourceQuery{Sources: []string{SourceOSM}}
	assert.True(t, q.Enabled(SourceOSM))
	assert.False(t, q.Enabled(SourceGoogle))
}

func TestAreaFor(t *testing.T) {
	center := &Coordinates{Lat: 47.85, Lon: 12.12}
	a := AreaFor(SourceQuery{City: " Rosenheim ", Country: "de", RadiusKM: 5}, center)
	assert.Equal(t, "Rosenheim", a.City)
	assert.Equal(t, "DE", a.Country)
	assert.InDelta(t, 5.0, a.RadiusKM, 0.0001)
	assert.Same(t, center, a.Center)
}

func TestRunResultAddError(t *testing.T) {
	var r RunResult
	r.AddError(ErrKindSourceUnavailable, SourceGoogle, "", "missing api key")
	assert.Len(t, r.Errors, 1)
	assert.Equal(t, RunError{Kind: "source_unavailable", Source: "google_maps", Message: "missing api key"}, r.Errors[0])
}
