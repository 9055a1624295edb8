package enrich

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/artcrm/artcrm/internal/model"
	"github.com/artcrm/artcrm/internal/resilience"
)

// Options bounds how hard the orchestrator drives the backend.
type Options struct {
	Concurrency int
	// Timeout applies to each backend call.
	Timeout time.Duration
	// RateLimit is requests per second across all workers; <= 0 disables it.
	RateLimit float64
	// MaxAttempts per venue; transient errors are retried.
	MaxAttempts int
	Breaker     resilience.CircuitBreakerConfig
}

func (o Options) withDefaults() Options {
	if o.Concurrency <= 0 {
		o.Concurrency = 2
	}
	if o.Timeout <= 0 {
		o.Timeout = 60 * time.Second
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 1
	}
	return o
}

// Orchestrator runs a Classifier over a batch of venues.
type Orchestrator struct {
	classifier Classifier
	opts       Options
	limiter    *rate.Limiter
	breaker    *resilience.CircuitBreaker
	retry      resilience.RetryConfig
}

// NewOrchestrator wraps c with concurrency, rate, timeout and breaker limits.
func NewOrchestrator(c Classifier, opts Options) *Orchestrator {
	opts = opts.withDefaults()

	o := &Orchestrator{classifier: c, opts: opts}
	if opts.RateLimit > 0 {
		o.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	}

	bc := opts.Breaker
	bc.ShouldTrip = func(err error) bool {
		var re *ResponseError
		return !errors.Is(err, context.Canceled) && !errors.As(err, &re)
	}
	bc.OnStateChange = func(from, to resilience.CircuitState) {
		zap.L().Warn("enrich: circuit state change",
			zap.String("backend", c.Name()),
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
	}
	o.breaker = resilience.NewCircuitBreaker(bc)

	o.retry = resilience.DefaultRetryConfig()
	o.retry.MaxAttempts = opts.MaxAttempts
	o.retry.ShouldRetry = func(err error) bool {
		return !errors.Is(err, resilience.ErrCircuitOpen) && resilience.IsTransient(err)
	}
	o.retry.OnRetry = resilience.RetryLogger(c.Name(), "classify")
	return o
}

// Backend returns the classifier name.
func (o *Orchestrator) Backend() string { return o.classifier.Name() }

// Enrich classifies every venue. Results keep the input order. A failed
// venue carries Success=false and the error text; merged fields are never
// changed.
func (o *Orchestrator) Enrich(ctx context.Context, merged []model.MergedCandidate) []model.EnrichedCandidate {
	out := make([]model.EnrichedCandidate, len(merged))
	backend := o.classifier.Name()

	if backend == BackendNone {
		for i, m := range merged {
			out[i] = model.EnrichedCandidate{MergedCandidate: m, Backend: backend, Skipped: true}
		}
		return out
	}

	log := zap.L().With(zap.String("component", "enrich"), zap.String("backend", backend))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(o.opts.Concurrency)

	for i, m := range merged {
		g.Go(func() error {
			out[i] = o.enrichOne(gCtx, m)
			if !out[i].Success {
				log.Warn("enrich: classification failed",
					zap.String("name", m.Name),
					zap.String("city", m.City),
					zap.String("error", out[i].Error),
				)
			}
			return nil
		})
	}
	_ = g.Wait()

	return out
}

func (o *Orchestrator) enrichOne(ctx context.Context, m model.MergedCandidate) model.EnrichedCandidate {
	ec := model.EnrichedCandidate{MergedCandidate: m, Backend: o.classifier.Name()}

	var raw string
	cls, err := resilience.DoVal(ctx, o.retry, func(ctx context.Context) (model.Classification, error) {
		if o.limiter != nil {
			if err := o.limiter.Wait(ctx); err != nil {
				return model.Classification{}, err
			}
		}
		return resilience.ExecuteVal(ctx, o.breaker, func(ctx context.Context) (model.Classification, error) {
			callCtx, cancel := context.WithTimeout(ctx, o.opts.Timeout)
			defer cancel()
			c, err := o.classifier.Classify(callCtx, m)
			if c.Raw != "" {
				raw = c.Raw
			}
			return c, err
		})
	})

	ec.RawResponse = raw
	if err != nil {
		ec.Error = err.Error()
		return ec
	}
	ec.Success = true
	ec.Subtype = cls.Subtype
	ec.Rationale = cls.Rationale
	ec.FitScore = cls.FitScore
	ec.Confidence = cls.Confidence
	return ec
}
