package enrich

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artcrm/artcrm/internal/model"
	"github.com/artcrm/artcrm/internal/resilience"
)

// stubClassifier answers per venue name through fn.
type stubClassifier struct {
	calls atomic.Int32
	fn    func(ctx context.Context, m model.MergedCandidate) (model.Classification, error)
}

func (s *stubClassifier) Name() string { return "stub" }

func (s *stubClassifier) Classify(ctx context.Context, m model.MergedCandidate) (model.Classification, error) {
	s.calls.Add(1)
	return s.fn(ctx, m)
}

func venues(names ...string) []model.MergedCandidate {
	out := make([]model.MergedCandidate, len(names))
	for i, n := range names {
		out[i] = model.MergedCandidate{Name: n, City: "Rosenheim", Kind: "cafe", Website: "https://" + n + ".example"}
	}
	return out
}

func answer(subtype string) model.Classification {
	fit := 70
	return model.Classification{Subtype: subtype, Rationale: "fits", FitScore: &fit, Raw: "SUBTYPE: " + subtype}
}

func TestEnrich_TimeoutIsolatedToOneVenue(t *testing.T) {
	stub := &stubClassifier{fn: func(ctx context.Context, m model.MergedCandidate) (model.Classification, error) {
		if m.Name == "slow" {
			<-ctx.Done()
			return model.Classification{}, ctx.Err()
		}
		return answer("indie"), nil
	}}
	o := NewOrchestrator(stub, Options{Concurrency: 3, Timeout: 50 * time.Millisecond})

	in := venues("a", "b", "slow", "c", "d")
	out := o.Enrich(context.Background(), in)
	require.Len(t, out, 5)

	for i, ec := range out {
		assert.Equal(t, in[i].Name, ec.Name, "input order kept")
		assert.Equal(t, in[i].Website, ec.Website, "merged fields untouched")
		assert.Equal(t, "stub", ec.Backend)
		if ec.Name == "slow" {
			assert.False(t, ec.Success)
			assert.Empty(t, ec.Subtype)
			assert.Empty(t, ec.Rationale)
			assert.Contains(t, ec.Error, "deadline exceeded")
			continue
		}
		assert.True(t, ec.Success)
		assert.Equal(t, "indie", ec.Subtype)
		assert.Equal(t, 70, *ec.FitScore)
		assert.Equal(t, "SUBTYPE: indie", ec.RawResponse)
	}
}

func TestEnrich_ResponseErrorKeepsRawAndDoesNotTrip(t *testing.T) {
	stub := &stubClassifier{fn: func(context.Context, model.MergedCandidate) (model.Classification, error) {
		return model.Classification{Raw: "SUBTYPE: spaceship"}, &ResponseError{Reason: "bad subtype"}
	}}
	o := NewOrchestrator(stub, Options{
		Concurrency: 1,
		Breaker:     resilience.CircuitBreakerConfig{FailureThreshold: 1},
	})

	out := o.Enrich(context.Background(), venues("a", "b", "c"))
	assert.EqualValues(t, 3, stub.calls.Load())
	for _, ec := range out {
		assert.False(t, ec.Success)
		assert.Equal(t, "SUBTYPE: spaceship", ec.RawResponse)
		assert.Contains(t, ec.Error, "bad subtype")
	}
}

func TestEnrich_CircuitOpensAfterConsecutiveFailures(t *testing.T) {
	stub := &stubClassifier{fn: func(context.Context, model.MergedCandidate) (model.Classification, error) {
		return model.Classification{}, errors.New("connection refused by backend")
	}}
	o := NewOrchestrator(stub, Options{
		Concurrency: 1,
		Breaker:     resilience.CircuitBreakerConfig{FailureThreshold: 2, ResetTimeout: time.Hour},
	})

	out := o.Enrich(context.Background(), venues("a", "b", "c", "d"))
	assert.EqualValues(t, 2, stub.calls.Load())
	assert.Contains(t, out[2].Error, "circuit breaker is open")
	assert.Contains(t, out[3].Error, "circuit breaker is open")
}

func TestEnrich_RetriesTransientErrors(t *testing.T) {
	var attempts atomic.Int32
	stub := &stubClassifier{fn: func(context.Context, model.MergedCandidate) (model.Classification, error) {
		if attempts.Add(1) == 1 {
			return model.Classification{}, resilience.NewTransientError(fmt.Errorf("rate limited"), 429)
		}
		return answer("boutique"), nil
	}}
	o := NewOrchestrator(stub, Options{Concurrency: 1, MaxAttempts: 3})
	o.retry.InitialBackoff = time.Millisecond
	o.retry.MaxBackoff = time.Millisecond

	out := o.Enrich(context.Background(), venues("a"))
	require.True(t, out[0].Success)
	assert.Equal(t, "boutique", out[0].Subtype)
	assert.EqualValues(t, 2, stub.calls.Load())
}

func TestEnrich_DisabledBackendSkips(t *testing.T) {
	o := NewOrchestrator(Disabled(), Options{})
	out := o.Enrich(context.Background(), venues("a", "b"))
	require.Len(t, out, 2)
	for _, ec := range out {
		assert.True(t, ec.Skipped)
		assert.False(t, ec.Success)
		assert.Empty(t, ec.Error)
		assert.Equal(t, BackendNone, ec.Backend)
	}
	assert.Equal(t, BackendNone, o.Backend())
}

func TestEnrich_CancelledContext(t *testing.T) {
	stub := &stubClassifier{fn: func(context.Context, model.MergedCandidate) (model.Classification, error) {
		return answer("indie"), nil
	}}
	o := NewOrchestrator(stub, Options{Concurrency: 2, RateLimit: 0.001})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := o.Enrich(ctx, venues("a", "b", "c"))
	for _, ec := range out {
		assert.False(t, ec.Success)
		assert.NotEmpty(t, ec.Error)
	}
}

func TestEnrich_Empty(t *testing.T) {
	o := NewOrchestrator(&stubClassifier{}, Options{})
	assert.Empty(t, o.Enrich(context.Background(), nil))
}
