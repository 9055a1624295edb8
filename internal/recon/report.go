package recon

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/artcrm/artcrm/internal/model"
)

// artifact is the JSON document written for every run.
type artifact struct {
	RunID        string                      `json:"run_id"`
	Query        model.SourceQuery           `json:"query"`
	StartedAt    time.Time                   `json:"started_at"`
	FinishedAt   time.Time                   `json:"finished_at"`
	Counts       model.Counts                `json:"counts"`
	ByKind       map[string]int              `json:"by_kind"`
	SourcesUsed  []string                    `json:"sources_used"`
	Sources      []model.SourceStatus        `json:"sources"`
	Raw          []model.RawCandidate        `json:"raw"`
	Normalized   []model.NormalizedCandidate `json:"normalized"`
	Clusters     []model.VenueCluster        `json:"clusters"`
	Suppressed   []model.MergedCandidate     `json:"suppressed"`
	Enriched     []model.EnrichedCandidate   `json:"enriched"`
	PersistedIDs []int64                     `json:"persisted_ids"`
	Errors       []model.RunError            `json:"errors"`
}

var slugRe = regexp.MustCompile(`[^\p{L}\p{N}]+`)

func slug(s string) string {
	return strings.Trim(slugRe.ReplaceAllString(strings.TrimSpace(s), "-"), "-")
}

// reportName builds the artifact file name for res.
func reportName(res *model.RunResult) string {
	kinds := make([]string, 0, len(res.Query.Kinds))
	for _, k := range res.Query.Kinds {
		kinds = append(kinds, slug(k))
	}
	return fmt.Sprintf("recon_%s_%s_%s_%s_%s.json",
		slug(res.Query.City),
		strings.ToUpper(res.Query.Country),
		strings.Join(kinds, "-"),
		res.StartedAt.Format("20060102_150405"),
		shortID(res.RunID),
	)
}

// writeReport writes a to a new file under dir and returns its path. An
// existing file is never overwritten.
func writeReport(dir string, res *model.RunResult, a *artifact) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", eris.Wrapf(err, "recon: create results dir %s", dir)
	}

	a.RunID = res.RunID
	a.Query = res.Query
	a.StartedAt = res.StartedAt
	a.FinishedAt = res.FinishedAt
	a.Counts = res.Counts
	a.ByKind = res.ByKind
	a.SourcesUsed = res.SourcesUsed
	a.Sources = res.Sources
	a.PersistedIDs = res.PersistedIDs
	a.Errors = res.Errors

	path := filepath.Join(dir, reportName(res))
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", eris.Wrapf(err, "recon: create report %s", path)
	}

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(a); err != nil {
		f.Close() //nolint:errcheck
		return "", eris.Wrapf(err, "recon: write report %s", path)
	}
	if err := f.Close(); err != nil {
		return "", eris.Wrapf(err, "recon: close report %s", path)
	}
	return path, nil
}
