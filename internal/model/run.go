package model

import "time"

// Source run states.
const (
	SourceOK          = "ok"
	SourcePartial     = "partial"
	SourceFailed      = "failed"
	SourceUnavailable = "source_unavailable"
	SourceDisabled    = "disabled"
)

// Error kinds recorded on a run. Only configuration errors abort a run.
const (
	ErrKindSourceUnavailable = "source_unavailable"
	ErrKindTransientFetch    = "transient_fetch"
	ErrKindMalformed         = "malformed_candidate"
	ErrKindEnrichment        = "enrichment_failure"
	ErrKindPersistConflict   = "persistence_conflict"
	ErrKindPersistFailed     = "persist_failed"
	ErrKindLocate            = "locate"
	ErrKindCancelled         = "cancelled"
	ErrKindReport            = "report"
)

// Counts tallies candidates by outcome. Persisted counts inserted leads whose
// enrichment succeeded or was skipped; EnrichmentFailedButPersisted counts the
// rest, so the two never overlap.
type Counts struct {
	Raw                          int `json:"raw"`
	Normalized                   int `json:"normalized"`
	Closed                       int `json:"closed"`
	DiscardedMalformed           int `json:"discarded_malformed"`
	Clusters                     int `json:"clusters"`
	MergedIntoExisting           int `json:"merged_into_existing"`
	Enriched                     int `json:"enriched"`
	EnrichmentFailed             int `json:"enrichment_failed"`
	Persisted                    int `json:"persisted"`
	EnrichmentFailedButPersisted int `json:"enrichment_failed_but_persisted"`
	PersistFailed                int `json:"persist_failed"`
}

// SourceStatus summarizes one source's part in a run.
type SourceStatus struct {
	Source     string `json:"source"`
	Status     string `json:"status"`
	Candidates int    `json:"candidates"`
	Error      string `json:"error,omitempty"`
}

// RunError is a recovered failure kept on the run result.
type RunError struct {
	Kind    string `json:"kind"`
	Source  string `json:"source,omitempty"`
	Subject string `json:"subject,omitempty"`
	Message string `json:"message"`
}

// RunResult is the outcome of a run.
type RunResult struct {
	RunID        string         `json:"run_id"`
	Query        SourceQuery    `json:"query"`
	StartedAt    time.Time      `json:"started_at"`
	FinishedAt   time.Time      `json:"finished_at"`
	Counts       Counts         `json:"counts"`
	ByKind       map[string]int `json:"by_kind"`
	SourcesUsed  []string       `json:"sources_used"`
	Sources      []SourceStatus `json:"sources"`
	PersistedIDs []int64        `json:"persisted_ids"`
	ArtifactPath string         `json:"artifact_path,omitempty"`
	Errors       []RunError     `json:"errors"`
}

// AddError appends a recovered failure.
func (r *RunResult) AddError(kind, source, subject, msg string) {
	r.Errors = append(r.Errors, RunError{Kind: kind, Source: source, Subject: subject, Message: msg})
}
