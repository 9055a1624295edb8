// Package recon runs lead discovery end to end: locate the city, collect
// candidates from every source, normalize, reconcile against known contacts,
// enrich, persist new leads and write the run report.
package recon

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/artcrm/artcrm/internal/contact"
	"github.com/artcrm/artcrm/internal/events"
	"github.com/artcrm/artcrm/internal/model"
	"github.com/artcrm/artcrm/internal/normalize"
	"github.com/artcrm/artcrm/internal/reconcile"
	"github.com/artcrm/artcrm/internal/source"
	"github.com/artcrm/artcrm/internal/vocab"
)

// Locator resolves a city to its center. A nil center means unknown.
type Locator interface {
	Locate(ctx context.Context, city, country string) (*model.Coordinates, error)
}

// Collector fetches raw candidates from every enabled source.
type Collector interface {
	Collect(ctx context.Context, q model.SourceQuery, area model.Area) source.Collection
}

// Enricher classifies merged venues, one result per input in input order.
type Enricher interface {
	Enrich(ctx context.Context, merged []model.MergedCandidate) []model.EnrichedCandidate
}

// Deps are the collaborators of a Pipeline. Locator and Bus may be nil.
type Deps struct {
	Locator   Locator
	Collector Collector
	Enricher  Enricher
	Store     contact.Store
	Vocab     *vocab.Vocabulary
	Bus       *events.Bus
}

// Options tunes a Pipeline.
type Options struct {
	Reconcile         reconcile.Options
	ResultsDir        string
	PreferredLanguage string
}

// Pipeline runs one query at a time.
type Pipeline struct {
	deps  Deps
	opts  Options
	now   func() time.Time
	newID func() string
}

// New creates a Pipeline.
func New(deps Deps, opts Options) *Pipeline {
	if deps.Vocab == nil {
		deps.Vocab = vocab.Default()
	}
	return &Pipeline{
		deps:  deps,
		opts:  opts,
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// Run executes q. Source, enrichment and persistence failures are recorded
// on the result. Only a *ConfigError aborts, before any request is made.
// On cancellation the partial result is returned with ctx.Err(); the report
// is written either way.
func (p *Pipeline) Run(ctx context.Context, q model.SourceQuery) (*model.RunResult, error) {
	q.City = strings.TrimSpace(q.City)
	q.Country = strings.ToUpper(strings.TrimSpace(q.Country))
	if err := ValidateQuery(q, p.deps.Vocab); err != nil {
		return nil, err
	}

	res := &model.RunResult{
		RunID:        p.newID(),
		Query:        q,
		StartedAt:    p.now().UTC(),
		ByKind:       make(map[string]int),
		SourcesUsed:  []string{},
		PersistedIDs: []int64{},
		Errors:       []model.RunError{},
	}
	log := zap.L().With(zap.String("component", "recon"), zap.String("run_id", res.RunID))
	log.Info("recon: starting run",
		zap.String("city", q.City),
		zap.String("country", q.Country),
		zap.Strings("kinds", q.Kinds),
		zap.Strings("sources", q.Sources),
		zap.String("backend", q.Backend),
	)

	var a artifact
	runErr := p.execute(ctx, q, res, &a, log)
	res.FinishedAt = p.now().UTC()

	path, err := writeReport(p.opts.ResultsDir, res, &a)
	if err != nil {
		log.Error("recon: report not written", zap.Error(err))
		res.AddError(model.ErrKindReport, "", "", err.Error())
	} else {
		res.ArtifactPath = path
	}

	if runErr != nil {
		log.Warn("recon: run interrupted", zap.Error(runErr), zap.String("artifact", res.ArtifactPath))
		return res, runErr
	}

	if p.deps.Bus != nil {
		p.deps.Bus.Publish(ctx, events.NewLeadsDiscovered(res))
	}
	log.Info("recon: run complete",
		zap.Int("raw", res.Counts.Raw),
		zap.Int("clusters", res.Counts.Clusters),
		zap.Int("persisted", res.Counts.Persisted+res.Counts.EnrichmentFailedButPersisted),
		zap.Int("merged_into_existing", res.Counts.MergedIntoExisting),
		zap.Int("errors", len(res.Errors)),
		zap.Duration("elapsed", res.FinishedAt.Sub(res.StartedAt)),
	)
	return res, nil
}

func (p *Pipeline) execute(ctx context.Context, q model.SourceQuery, res *model.RunResult, a *artifact, log *zap.Logger) error {
	area := model.AreaFor(q, p.locate(ctx, q, res, log))
	if ctx.Err() != nil {
		return ctx.Err()
	}

	coll := p.deps.Collector.Collect(ctx, q, area)
	a.Raw = coll.Raw
	res.Sources = coll.Statuses
	res.Errors = append(res.Errors, coll.Errors...)
	res.Counts.Raw = len(coll.Raw)
	for _, r := range coll.Raw {
		res.ByKind[r.Kind]++
	}
	for _, st := range coll.Statuses {
		if st.Candidates > 0 {
			res.SourcesUsed = append(res.SourcesUsed, st.Source)
		}
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	norm := normalize.All(coll.Raw, q)
	a.Normalized = norm.Candidates
	res.Counts.Normalized = len(norm.Candidates)
	res.Counts.Closed = norm.Closed
	res.Errors = append(res.Errors, norm.Malformed...)

	index, err := p.deps.Store.Snapshot(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Error("recon: contact snapshot failed, relying on insert-time checks", zap.Error(err))
		res.AddError(model.ErrKindPersistFailed, "", "snapshot", err.Error())
	}

	rec := reconcile.Reconcile(norm.Candidates, index, p.opts.Reconcile)
	a.Clusters = rec.Clusters
	a.Suppressed = rec.Suppressed
	res.Counts.Clusters = len(rec.Clusters)
	res.Counts.MergedIntoExisting = len(rec.Suppressed)
	res.Counts.DiscardedMalformed = len(rec.Discarded)
	res.Errors = append(res.Errors, rec.Discarded...)

	enriched := p.deps.Enricher.Enrich(ctx, rec.Merged)
	a.Enriched = enriched
	for _, ec := range enriched {
		switch {
		case ec.Success:
			res.Counts.Enriched++
		case ec.Skipped:
		default:
			res.Counts.EnrichmentFailed++
			res.AddError(model.ErrKindEnrichment, ec.Backend, ec.Name, ec.Error)
		}
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	pr := &persister{
		store: p.deps.Store,
		voc:   p.deps.Vocab,
		lang:  p.opts.PreferredLanguage,
		runID: res.RunID,
		now:   res.StartedAt,
	}
	pr.persist(ctx, enriched, res)
	return ctx.Err()
}

// locate returns the city center, or nil when it cannot be resolved. Sources
// fall back to searching by city name.
func (p *Pipeline) locate(ctx context.Context, q model.SourceQuery, res *model.RunResult, log *zap.Logger) *model.Coordinates {
	if p.deps.Locator == nil {
		return nil
	}
	center, err := p.deps.Locator.Locate(ctx, q.City, q.Country)
	switch {
	case err != nil:
		if ctx.Err() == nil {
			log.Warn("recon: locate failed, searching by city name", zap.Error(err))
			res.AddError(model.ErrKindLocate, model.SourceOSM, q.City, err.Error())
		}
		return nil
	case center == nil:
		log.Warn("recon: city not found, searching by city name", zap.String("city", q.City))
		res.AddError(model.ErrKindLocate, model.SourceOSM, q.City, "city not found")
		return nil
	}
	return center
}
