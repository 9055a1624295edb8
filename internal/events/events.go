// Package events is the process-wide message bus. Publishers never import
// their consumers; subscribers are registered at startup.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/artcrm/artcrm/internal/model"
)

// Message is a typed event.
type Message interface {
	Name() string
}

// Handler consumes one message. Errors are logged and never reach the
// publisher.
type Handler func(ctx context.Context, msg Message) error

// NameLeadsDiscovered is published once per completed recon run.
const NameLeadsDiscovered = "leads_discovered"

// LeadsDiscovered summarizes a finished run.
type LeadsDiscovered struct {
	RunID        string            `json:"run_id"`
	Query        model.SourceQuery `json:"query"`
	Counts       model.Counts      `json:"counts"`
	SourcesUsed  []string          `json:"sources_used"`
	PersistedIDs []int64           `json:"persisted_ids"`
	ArtifactPath string            `json:"artifact_path,omitempty"`
	Errors       int               `json:"errors"`
	FinishedAt   time.Time         `json:"finished_at"`
}

func (LeadsDiscovered) Name() string { return NameLeadsDiscovered }

// NewLeadsDiscovered builds the message for res.
func NewLeadsDiscovered(res *model.RunResult) LeadsDiscovered {
	return LeadsDiscovered{
		RunID:        res.RunID,
		Query:        res.Query,
		Counts:       res.Counts,
		SourcesUsed:  res.SourcesUsed,
		PersistedIDs: res.PersistedIDs,
		ArtifactPath: res.ArtifactPath,
		Errors:       len(res.Errors),
		FinishedAt:   res.FinishedAt,
	}
}

// Bus dispatches messages to the handlers subscribed to their name.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
}

// New returns an empty bus.
func New() *Bus {
	return &Bus{handlers: make(map[string][]Handler)}
}

var defaultBus = New()

// Default returns the process-wide bus.
func Default() *Bus { return defaultBus }

// Subscribe registers h for messages named name.
func (b *Bus) Subscribe(name string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[name] = append(b.handlers[name], h)
}

// Publish runs every handler for msg in subscription order and returns how
// many failed. A failing or panicking handler does not stop the others.
func (b *Bus) Publish(ctx context.Context, msg Message) int {
	b.mu.RLock()
	hs := append([]Handler(nil), b.handlers[msg.Name()]...)
	b.mu.RUnlock()

	failed := 0
	for i, h := range hs {
		if err := safeCall(ctx, h, msg); err != nil {
			failed++
			zap.L().Error("events: handler failed",
				zap.String("event", msg.Name()),
				zap.Int("handler", i),
				zap.Error(err),
			)
		}
	}
	return failed
}

// Reset drops every subscription.
func (b *Bus) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = make(map[string][]Handler)
}

func safeCall(ctx context.Context, h Handler, msg Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = eris.Errorf("events: handler panic: %v", r)
		}
	}()
	return h(ctx, msg)
}
