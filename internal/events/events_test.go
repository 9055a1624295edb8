package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artcrm/artcrm/internal/model"
)

type ping struct{}

func (ping) Name() string { return "ping" }

func TestBus_PublishInOrder(t *testing.T) {
	b := New()
	var got []string
	b.Subscribe("ping", func(_ context.Context, _ Message) error { got = append(got, "first"); return nil })
	b.Subscribe("ping", func(_ context.Context, _ Message) error { got = append(got, "second"); return nil })
	b.Subscribe("other", func(_ context.Context, _ Message) error { got = append(got, "other"); return nil })

	assert.Zero(t, b.Publish(context.Background(), ping{}))
	assert.Equal(t, []string{"first", "second"}, got)
}

func TestBus_HandlerFailuresAreIsolated(t *testing.T) {
	b := New()
	reached := false
	b.Subscribe("ping", func(context.Context, Message) error { return errors.New("boom") })
	b.Subscribe("ping", func(context.Context, Message) error { panic("kaboom") })
	b.Subscribe("ping", func(context.Context, Message) error { reached = true; return nil })

	assert.Equal(t, 2, b.Publish(context.Background(), ping{}))
	assert.True(t, reached)
}

func TestBus_Reset(t *testing.T) {
	b := New()
	calls := 0
	b.Subscribe("ping", func(context.Context, Message) error { calls++; return nil })
	b.Reset()
	b.Publish(context.Background(), ping{})
	assert.Zero(t, calls)
}

func TestDefault(t *testing.T) {
	assert.Same(t, Default(), Default())
}

func TestNewLeadsDiscovered(t *testing.T) {
	res := &model.RunResult{
		RunID:        "run-1",
		Query:        model.SourceQuery{City: "Rosenheim", Country: "DE"},
		Counts:       model.Counts{Persisted: 2, MergedIntoExisting: 1},
		SourcesUsed:  []string{model.SourceOSM},
		PersistedIDs: []int64{4, 5},
		ArtifactPath: "data/scout_results/recon.json",
		Errors:       []model.RunError{{Kind: model.ErrKindEnrichment, Message: "timeout"}},
	}

	var got LeadsDiscovered
	b := New()
	b.Subscribe(NameLeadsDiscovered, func(_ context.Context, msg Message) error {
		got = msg.(LeadsDiscovered)
		return nil
	})
	b.Publish(context.Background(), NewLeadsDiscovered(res))

	require.Equal(t, "run-1", got.RunID)
	assert.Equal(t, 2, got.Counts.Persisted)
	assert.Equal(t, []int64{4, 5}, got.PersistedIDs)
	assert.Equal(t, 1, got.Errors)
}
