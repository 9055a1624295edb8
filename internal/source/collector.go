package source

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/artcrm/artcrm/internal/model"
	"github.com/artcrm/artcrm/internal/resilience"
)

// Collection is the merged output of all sources for one query.
type Collection struct {
	Raw      []model.RawCandidate
	Statuses []model.SourceStatus
	Errors   []model.RunError
}

// Collector runs the enabled sources concurrently. Source failures are
// recorded, never returned.
type Collector struct {
	sources []Source
}

// NewCollector creates a collector over sources, in priority order.
func NewCollector(sources ...Source) *Collector {
	return &Collector{sources: sources}
}

type sourceRun struct {
	raw    []model.RawCandidate
	status model.SourceStatus
	errs   []model.RunError
}

// Collect searches every enabled source for every kind in q. The raw output
// is ordered by source, then kind, then provider order.
func (c *Collector) Collect(ctx context.Context, q model.SourceQuery, area model.Area) Collection {
	runs := make([]sourceRun, len(c.sources))

	g, gctx := errgroup.WithContext(ctx)
	for i, src := range c.sources {
		if !q.Enabled(src.Name()) {
			runs[i].status = model.SourceStatus{Source: src.Name(), Status: model.SourceDisabled}
			continue
		}
		g.Go(func() error {
			runs[i] = runSource(gctx, src, area, q.Kinds)
			return nil
		})
	}
	_ = g.Wait()

	var out Collection
	for _, r := range runs {
		out.Raw = append(out.Raw, r.raw...)
		out.Statuses = append(out.Statuses, r.status)
		out.Errors = append(out.Errors, r.errs...)
	}
	return out
}

func runSource(ctx context.Context, src Source, area model.Area, kinds []string) sourceRun {
	log := zap.L().With(zap.String("component", "source"), zap.String("source", src.Name()))
	run := sourceRun{status: model.SourceStatus{Source: src.Name(), Status: model.SourceOK}}
	failed := 0

	for _, kind := range kinds {
		if ctx.Err() != nil {
			run.errs = append(run.errs, model.RunError{
				Kind: model.ErrKindCancelled, Source: src.Name(), Subject: kind, Message: ctx.Err().Error(),
			})
			failed++
			continue
		}

		raw, err := src.Search(ctx, area, kind)
		run.raw = append(run.raw, raw...)
		if err == nil {
			log.Info("source: search complete", zap.String("kind", kind), zap.Int("candidates", len(raw)))
			continue
		}

		var unavailable *UnavailableError
		if errors.As(err, &unavailable) {
			log.Warn("source: skipped", zap.String("reason", unavailable.Reason))
			run.status.Status = model.SourceUnavailable
			run.status.Error = err.Error()
			run.errs = append(run.errs, model.RunError{
				Kind: model.ErrKindSourceUnavailable, Source: src.Name(), Message: err.Error(),
			})
			return run
		}

		failed++
		kindOf := model.ErrKindTransientFetch
		switch {
		case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
			kindOf = model.ErrKindCancelled
		case !resilience.IsTransient(err):
			kindOf = model.ErrKindSourceUnavailable
		}
		log.Warn("source: search failed",
			zap.String("kind", kind),
			zap.Int("kept", len(raw)),
			zap.Error(err),
		)
		run.status.Error = err.Error()
		run.errs = append(run.errs, model.RunError{
			Kind: kindOf, Source: src.Name(), Subject: kind, Message: err.Error(),
		})
	}

	run.status.Candidates = len(run.raw)
	switch {
	case failed == 0:
	case failed == len(kinds) && len(run.raw) == 0:
		run.status.Status = model.SourceFailed
	default:
		run.status.Status = model.SourcePartial
	}
	return run
}
