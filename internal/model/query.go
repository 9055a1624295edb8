// Package model defines the records that flow through a recon run.
package model

import (
	"slices"
	"strings"
)

// Source identifiers. They double as provenance values on merged fields.
const (
	SourceGoogle = "google_maps"
	SourceOSM    = "openstreetmap"
)

// AllSources lists every source the pipeline knows how to query.
var AllSources = []string{SourceGoogle, SourceOSM}

// Coordinates is a WGS84 point.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// SourceQuery is the immutable input of one run.
type SourceQuery struct {
	City     string   `json:"city"`
	Country  string   `json:"country"`
	RadiusKM float64  `json:"radius_km"`
	Kinds    []string `json:"kinds"`
	Sources  []string `json:"sources"`
	Backend  string   `json:"backend"`
}

// Enabled reports whether the named source takes part in the run.
func (q SourceQuery) Enabled(source string) bool {
	return slices.Contains(q.Sources, source)
}

// Area is the geographic scope handed to each source. Center is nil when the
// city could not be located.
type Area struct {
	City     string       `json:"city"`
	Country  string       `json:"country"`
	RadiusKM float64      `json:"radius_km"`
	Center   *Coordinates `json:"center,omitempty"`
}

// AreaFor derives the search area for q.
func AreaFor(q SourceQuery, center *Coordinates) Area {
	return Area{
		City:     strings.TrimSpace(q.City),
		Country:  strings.ToUpper(strings.TrimSpace(q.Country)),
		RadiusKM: q.RadiusKM,
		Center:   center,
	}
}
