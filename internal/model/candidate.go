package model

import (
	"encoding/json"
	"time"
)

// RawCandidate is one provider record exactly as fetched.
type RawCandidate struct {
	ID        string          `json:"id"`
	Source    string          `json:"source"`
	Kind      string          `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
	FetchedAt time.Time       `json:"fetched_at"`
}

// NormalizedCandidate is a RawCandidate mapped onto the common venue shape.
// Kind comes from the provider's category; RequestedKind is the kind the
// source was searched for.
type NormalizedCandidate struct {
	ID            string       `json:"id"`
	RawID         string       `json:"raw_id"`
	Source        string       `json:"source"`
	ExternalID    string       `json:"external_id"`
	Kind          string       `json:"kind"`
	RequestedKind string       `json:"requested_kind"`
	Name          string       `json:"name"`
	Address       string       `json:"address,omitempty"`
	PostalCode    string       `json:"postal_code,omitempty"`
	City          string       `json:"city,omitempty"`
	Country       string       `json:"country,omitempty"`
	Coordinates   *Coordinates `json:"coordinates,omitempty"`
	Website       string       `json:"website,omitempty"`
	Phone         string       `json:"phone,omitempty"`
	Email         string       `json:"email,omitempty"`
	CategoryHint  string       `json:"category_hint,omitempty"`
}

// MergedCandidate is the reconciled view of one venue. Provenance maps each
// populated field to the source that supplied it.
type MergedCandidate struct {
	NameKey     string            `json:"name_key"`
	CityKey     string            `json:"city_key"`
	Kind        string            `json:"kind"`
	Name        string            `json:"name"`
	Address     string            `json:"address,omitempty"`
	PostalCode  string            `json:"postal_code,omitempty"`
	City        string            `json:"city,omitempty"`
	Country     string            `json:"country,omitempty"`
	Coordinates *Coordinates      `json:"coordinates,omitempty"`
	Website     string            `json:"website,omitempty"`
	Phone       string            `json:"phone,omitempty"`
	Email       string            `json:"email,omitempty"`
	Provenance  map[string]string `json:"provenance"`
	Sources     []string          `json:"sources"`
	MemberIDs   []string          `json:"member_ids"`
}

// VenueCluster groups the normalized candidates judged to be the same venue.
type VenueCluster struct {
	Members []NormalizedCandidate `json:"members"`
	Merged  MergedCandidate       `json:"merged"`
}

// Classification is the parsed answer of an enrichment backend.
type Classification struct {
	Subtype    string `json:"subtype,omitempty"`
	Rationale  string `json:"rationale,omitempty"`
	FitScore   *int   `json:"fit_score,omitempty"`
	Confidence *int   `json:"confidence,omitempty"`
	Raw        string `json:"raw,omitempty"`
}

// EnrichedCandidate is a merged candidate plus its enrichment outcome.
// Skipped marks runs with enrichment switched off; those are not failures.
type EnrichedCandidate struct {
	MergedCandidate
	Subtype     string `json:"subtype,omitempty"`
	Rationale   string `json:"rationale,omitempty"`
	FitScore    *int   `json:"fit_score,omitempty"`
	Confidence  *int   `json:"confidence,omitempty"`
	Backend     string `json:"backend"`
	Success     bool   `json:"success"`
	Skipped     bool   `json:"skipped,omitempty"`
	RawResponse string `json:"raw_response,omitempty"`
	Error       string `json:"error,omitempty"`
	Outcome     string `json:"outcome,omitempty"`
	ContactID   int64  `json:"contact_id,omitempty"`
}

// Persistence outcomes recorded on EnrichedCandidate.Outcome.
const (
	OutcomePersisted       = "persisted"
	OutcomePersistConflict = "persist_conflict"
	OutcomePersistFailed   = "persist_failed"
)
