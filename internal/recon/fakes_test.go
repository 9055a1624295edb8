package recon

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/artcrm/artcrm/internal/contact"
	"github.com/artcrm/artcrm/internal/identity"
	"github.com/artcrm/artcrm/internal/model"
)

type fakeStore struct {
	mu          sync.Mutex
	contacts    map[identity.Key]*contact.Contact
	leads       []contact.Lead
	nextID      int64
	snapshotErr error
	insertErr   error
}

func newFakeStore(existing ...contact.Contact) *fakeStore {
	s := &fakeStore{contacts: make(map[identity.Key]*contact.Contact), nextID: 100}
	for _, c := range existing {
		s.contacts[identity.NewKey(c.Name, c.City)] = &c
	}
	return s
}

func (s *fakeStore) Snapshot(context.Context) (*contact.Index, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snapshotErr != nil {
		return nil, s.snapshotErr
	}
	keys := make([]identity.Key, 0, len(s.contacts))
	for k := range s.contacts {
		keys = append(keys, k)
	}
	return contact.NewIndex(keys...), nil
}

func (s *fakeStore) FindByKey(_ context.Context, key identity.Key) (*contact.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.contacts[key]; ok {
		return c, nil
	}
	return nil, contact.ErrNotFound
}

func (s *fakeStore) InsertLeadIfAbsent(_ context.Context, lead contact.Lead) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return 0, false, s.insertErr
	}
	if _, ok := s.contacts[lead.Key]; ok {
		return 0, false, nil
	}
	s.nextID++
	s.contacts[lead.Key] = &contact.Contact{ID: s.nextID, Name: lead.Name, City: lead.City, Status: lead.Status}
	s.leads = append(s.leads, lead)
	return s.nextID, true, nil
}

func (s *fakeStore) Migrate(context.Context) error             { return nil }
func (s *fakeStore) BackfillKeys(context.Context) (int, error) { return 0, nil }
func (s *fakeStore) Close() error                              { return nil }

func (s *fakeStore) lead(name string) (contact.Lead, bool) {
	for _, l := range s.leads {
		if l.Name == name {
			return l, true
		}
	}
	return contact.Lead{}, false
}

// fakeSource serves fixed payloads per kind.
type fakeSource struct {
	name     string
	payloads map[string][]string
	calls    int
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Search(_ context.Context, _ model.Area, kind string) ([]model.RawCandidate, error) {
	f.calls++
	var out []model.RawCandidate
	for i, p := range f.payloads[kind] {
		out = append(out, model.RawCandidate{
			ID:        fmt.Sprintf("%s-%s-%d", f.name, kind, i),
			Source:    f.name,
			Kind:      kind,
			Payload:   json.RawMessage(p),
			FetchedAt: time.Date(2026, 3, 15, 10, 15, 0, 0, time.UTC),
		})
	}
	return out, nil
}

type fakeLocator struct {
	center *model.Coordinates
	err    error
}

func (f fakeLocator) Locate(context.Context, string, string) (*model.Coordinates, error) {
	return f.center, f.err
}

type stubClassifier struct {
	classify func(ctx context.Context, m model.MergedCandidate) (model.Classification, error)
}

func (stubClassifier) Name() string { return "ollama" }

func (s stubClassifier) Classify(ctx context.Context, m model.MergedCandidate) (model.Classification, error) {
	return s.classify(ctx, m)
}

func alwaysIndie() stubClassifier {
	return stubClassifier{classify: func(context.Context, model.MergedCandidate) (model.Classification, error) {
		return model.Classification{Subtype: "indie", Rationale: "independent venue", Raw: "SUBTYPE: indie"}, nil
	}}
}

func googlePlace(id, name string, lat, lon float64) string {
	return fmt.Sprintf(`{"id":%q,"displayName":{"text":%q},"formattedAddress":"Max-Josefs-Platz 5, 83022 Rosenheim, Germany","location":{"latitude":%f,"longitude":%f},"primaryType":"cafe"}`,
		id, name, lat, lon)
}

func osmNode(id int64, name, amenity string, lat, lon float64) string {
	return fmt.Sprintf(`{"type":"node","id":%d,"lat":%f,"lon":%f,"tags":{"name":%q,"amenity":%q,"addr:city":"Rosenheim","website":"https://example.de"}}`,
		id, lat, lon, name, amenity)
}
