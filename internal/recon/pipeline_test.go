package recon

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artcrm/artcrm/internal/contact"
	"github.com/artcrm/artcrm/internal/enrich"
	"github.com/artcrm/artcrm/internal/events"
	"github.com/artcrm/artcrm/internal/model"
	"github.com/artcrm/artcrm/internal/reconcile"
	"github.com/artcrm/artcrm/internal/source"
	"github.com/artcrm/artcrm/internal/vocab"
)

const testRunID = "0f8fad5b-d9cb-469f-a165-70867728950e"

var rosenheim = &model.Coordinates{Lat: 47.8561, Lon: 12.1289}

type harness struct {
	pipeline *Pipeline
	store    *fakeStore
	bus      *events.Bus
	events   []events.LeadsDiscovered
	dir      string
}

func newHarness(t *testing.T, store *fakeStore, cls enrich.Classifier, timeout time.Duration, sources ...source.Source) *harness {
	t.Helper()
	h := &harness{store: store, bus: events.New(), dir: t.TempDir()}
	h.bus.Subscribe(events.NameLeadsDiscovered, func(_ context.Context, msg events.Message) error {
		h.events = append(h.events, msg.(events.LeadsDiscovered))
		return nil
	})

	h.pipeline = New(Deps{
		Locator:   fakeLocator{center: rosenheim},
		Collector: source.NewCollector(sources...),
		Enricher:  enrich.NewOrchestrator(cls, enrich.Options{Concurrency: 2, Timeout: timeout, MaxAttempts: 1}),
		Store:     store,
		Vocab:     vocab.Default(),
		Bus:       h.bus,
	}, Options{
		Reconcile: reconcile.Options{
			NameSimilarity:  0.9,
			ProximityMeters: 150,
			Priority:        model.AllSources,
		},
		ResultsDir:        h.dir,
		PreferredLanguage: "de",
	})
	h.pipeline.now = func() time.Time { return time.Date(2026, 3, 15, 10, 15, 0, 0, time.UTC) }
	h.pipeline.newID = func() string { return testRunID }
	return h
}

func query(kinds ...string) model.SourceQuery {
	return model.SourceQuery{
		City:     "Rosenheim",
		Country:  "de",
		RadiusKM: 10,
		Kinds:    kinds,
		Sources:  model.AllSources,
		Backend:  enrich.BackendOllama,
	}
}

// assertCountsConsistent checks that no normalized candidate is counted
// twice across the terminal outcomes.
func assertCountsConsistent(t *testing.T, c model.Counts) {
	t.Helper()
	assert.LessOrEqual(t,
		c.Persisted+c.MergedIntoExisting+c.DiscardedMalformed+c.EnrichmentFailedButPersisted,
		c.Normalized,
	)
}

func errorKinds(res *model.RunResult) []string {
	var kinds []string
	for _, e := range res.Errors {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}

func TestRun_CrossSourceVenueBecomesOneLead(t *testing.T) {
	google := &fakeSource{name: model.SourceGoogle, payloads: map[string][]string{
		"cafe": {googlePlace("g-1", "Café Sonnenschein", 47.8561, 12.1289)},
	}}
	osm := &fakeSource{name: model.SourceOSM, payloads: map[string][]string{
		"cafe": {osmNode(1, "Cafe Sonnenschein", "cafe", 47.8561, 12.1289)},
	}}
	store := newFakeStore()
	h := newHarness(t, store, alwaysIndie(), time.Second, google, osm)

	res, err := h.pipeline.Run(context.Background(), query("cafe"))
	require.NoError(t, err)

	assert.Equal(t, testRunID, res.RunID)
	assert.Equal(t, "DE", res.Query.Country)
	assert.Equal(t, 2, res.Counts.Raw)
	assert.Equal(t, 2, res.Counts.Normalized)
	assert.Equal(t, 1, res.Counts.Clusters)
	assert.Equal(t, 1, res.Counts.Enriched)
	assert.Equal(t, 1, res.Counts.Persisted)
	assert.Equal(t, []int64{101}, res.PersistedIDs)
	assert.Equal(t, []string{model.SourceGoogle, model.SourceOSM}, res.SourcesUsed)
	assert.Equal(t, map[string]int{"cafe": 2}, res.ByKind)
	assertCountsConsistent(t, res.Counts)

	require.Len(t, store.leads, 1)
	lead := store.leads[0]
	assert.Equal(t, "Café Sonnenschein", lead.Name)
	assert.Equal(t, "cafe", lead.Kind)
	assert.Equal(t, "indie", lead.Subtype)
	assert.Equal(t, vocab.StatusLeadUnverified, lead.Status)
	assert.Equal(t, "de", lead.PreferredLanguage)
	assert.Equal(t, "https://example.de", lead.Website)
	assert.Equal(t, "Auto-discovered via google_maps, openstreetmap on 2026-03-15 (run 0f8fad5b)", lead.Notes)
	require.NotNil(t, lead.Location)
	assert.InDelta(t, 47.8561, lead.Location.Lat, 1e-6)

	require.Len(t, h.events, 1)
	assert.Equal(t, testRunID, h.events[0].RunID)
	assert.Equal(t, res.ArtifactPath, h.events[0].ArtifactPath)
}

func TestRun_WritesReport(t *testing.T) {
	osm := &fakeSource{name: model.SourceOSM, payloads: map[string][]string{
		"gallery": {osmNode(7, "Galerie im Hof", "arts_centre", 47.85, 12.12)},
	}}
	h := newHarness(t, newFakeStore(), alwaysIndie(), time.Second, osm)

	res, err := h.pipeline.Run(context.Background(), query("gallery"))
	require.NoError(t, err)

	want := filepath.Join(h.dir, "recon_Rosenheim_DE_gallery_20260315_101500_0f8fad5b.json")
	assert.Equal(t, want, res.ArtifactPath)

	data, err := os.ReadFile(want)
	require.NoError(t, err)
	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &doc))
	for _, key := range []string{"query", "counts", "sources", "raw", "normalized", "clusters", "enriched", "persisted_ids", "errors"} {
		assert.Contains(t, doc, key)
	}

	var enriched []model.EnrichedCandidate
	require.NoError(t, json.Unmarshal(doc["enriched"], &enriched))
	require.Len(t, enriched, 1)
	assert.Equal(t, model.OutcomePersisted, enriched[0].Outcome)
	assert.Equal(t, "SUBTYPE: indie", enriched[0].RawResponse)
}

func TestRun_MissingGoogleKeyFallsBackToOSM(t *testing.T) {
	osm := &fakeSource{name: model.SourceOSM, payloads: map[string][]string{
		"cafe": {osmNode(1, "Kaffeerösterei Inn", "cafe", 47.85, 12.12)},
	}}
	store := newFakeStore()
	h := newHarness(t, store, alwaysIndie(), time.Second,
		source.Unavailable(model.SourceGoogle, "no API key configured"), osm)

	res, err := h.pipeline.Run(context.Background(), query("cafe"))
	require.NoError(t, err)

	require.Len(t, res.Sources, 2)
	assert.Equal(t, model.SourceUnavailable, res.Sources[0].Status)
	assert.Zero(t, res.Sources[0].Candidates)
	assert.Equal(t, model.SourceOK, res.Sources[1].Status)
	assert.Contains(t, errorKinds(res), model.ErrKindSourceUnavailable)
	assert.Equal(t, []string{model.SourceOSM}, res.SourcesUsed)
	assert.Equal(t, 1, res.Counts.Persisted)
	assert.Len(t, store.leads, 1)
}

func TestRun_EnrichmentTimeoutForOneOfFive(t *testing.T) {
	names := []string{"Galerie Nord", "Kaffeehaus Alt", "Werkraum Süd", "Delta Bar", "Atelier Inntal"}
	var payloads []string
	for i, n := range names {
		payloads = append(payloads, osmNode(int64(i+1), n, "cafe", 47.80+float64(i)*0.01, 12.10))
	}
	osm := &fakeSource{name: model.SourceOSM, payloads: map[string][]string{"cafe": payloads}}

	cls := stubClassifier{classify: func(ctx context.Context, m model.MergedCandidate) (model.Classification, error) {
		if m.Name == "Delta Bar" {
			<-ctx.Done()
			return model.Classification{}, ctx.Err()
		}
		return model.Classification{Subtype: "indie", Raw: "SUBTYPE: indie"}, nil
	}}
	store := newFakeStore()
	h := newHarness(t, store, cls, 50*time.Millisecond, osm)

	res, err := h.pipeline.Run(context.Background(), query("cafe"))
	require.NoError(t, err)

	assert.Equal(t, 5, res.Counts.Clusters)
	assert.Equal(t, 4, res.Counts.Enriched)
	assert.Equal(t, 1, res.Counts.EnrichmentFailed)
	assert.Equal(t, 4, res.Counts.Persisted)
	assert.Equal(t, 1, res.Counts.EnrichmentFailedButPersisted)
	assert.Len(t, res.PersistedIDs, 5)
	assert.Contains(t, errorKinds(res), model.ErrKindEnrichment)
	assertCountsConsistent(t, res.Counts)

	for _, n := range names {
		lead, ok := store.lead(n)
		require.True(t, ok, n)
		if n == "Delta Bar" {
			assert.Empty(t, lead.Subtype)
			continue
		}
		assert.Equal(t, "indie", lead.Subtype, n)
	}
}

func TestRun_ExistingContactIsNotPersisted(t *testing.T) {
	osm := &fakeSource{name: model.SourceOSM, payloads: map[string][]string{
		"cafe": {osmNode(1, "Café Sonnenschein", "cafe", 47.8561, 12.1289)},
	}}
	store := newFakeStore(contact.Contact{ID: 7, Name: "Cafe Sonnenschein", City: "Rosenheim", Status: "contacted"})
	var classified int
	cls := stubClassifier{classify: func(context.Context, model.MergedCandidate) (model.Classification, error) {
		classified++
		return model.Classification{Subtype: "indie"}, nil
	}}
	h := newHarness(t, store, cls, time.Second, osm)

	res, err := h.pipeline.Run(context.Background(), query("cafe"))
	require.NoError(t, err)

	assert.Zero(t, res.Counts.Persisted)
	assert.Equal(t, 1, res.Counts.MergedIntoExisting)
	assert.Empty(t, res.PersistedIDs)
	assert.Empty(t, store.leads)
	assert.Zero(t, classified)
	assertCountsConsistent(t, res.Counts)
}

func TestRun_EqualKeysInsertOnce(t *testing.T) {
	// Same name and city, more than the proximity threshold apart.
	google := &fakeSource{name: model.SourceGoogle, payloads: map[string][]string{
		"gallery": {
			googlePlace("g-1", "Kunstraum", 47.8500, 12.1200),
			googlePlace("g-2", "Kunstraum", 47.8700, 12.1400),
		},
	}}
	store := newFakeStore()
	h := newHarness(t, store, alwaysIndie(), time.Second, google)

	res, err := h.pipeline.Run(context.Background(), query("gallery"))
	require.NoError(t, err)

	assert.Equal(t, 2, res.Counts.Clusters)
	assert.Equal(t, 1, res.Counts.Persisted)
	assert.Equal(t, 1, res.Counts.MergedIntoExisting)
	assert.Len(t, store.leads, 1)
	assert.Contains(t, errorKinds(res), model.ErrKindPersistConflict)
	assertCountsConsistent(t, res.Counts)
}

func TestRun_PersistFailureIsRecorded(t *testing.T) {
	osm := &fakeSource{name: model.SourceOSM, payloads: map[string][]string{
		"cafe": {osmNode(1, "Kaffeerösterei Inn", "cafe", 47.85, 12.12)},
	}}
	store := newFakeStore()
	store.insertErr = errors.New("connection reset")
	h := newHarness(t, store, alwaysIndie(), time.Second, osm)

	res, err := h.pipeline.Run(context.Background(), query("cafe"))
	require.NoError(t, err)

	assert.Equal(t, 1, res.Counts.PersistFailed)
	assert.Zero(t, res.Counts.Persisted)
	assert.Contains(t, errorKinds(res), model.ErrKindPersistFailed)
	assert.NotEmpty(t, res.ArtifactPath)
}

func TestRun_SnapshotFailureStillChecksOnInsert(t *testing.T) {
	osm := &fakeSource{name: model.SourceOSM, payloads: map[string][]string{
		"cafe": {osmNode(1, "Café Sonnenschein", "cafe", 47.8561, 12.1289)},
	}}
	store := newFakeStore(contact.Contact{ID: 7, Name: "Café Sonnenschein", City: "Rosenheim", Status: "contacted"})
	store.snapshotErr = errors.New("timeout")
	h := newHarness(t, store, alwaysIndie(), time.Second, osm)

	res, err := h.pipeline.Run(context.Background(), query("cafe"))
	require.NoError(t, err)

	assert.Zero(t, res.Counts.Persisted)
	assert.Equal(t, 1, res.Counts.MergedIntoExisting)
	assert.Empty(t, store.leads)
}

func TestRun_DisabledEnrichment(t *testing.T) {
	osm := &fakeSource{name: model.SourceOSM, payloads: map[string][]string{
		"cafe": {osmNode(1, "Kaffeerösterei Inn", "cafe", 47.85, 12.12)},
	}}
	store := newFakeStore()
	h := newHarness(t, store, enrich.Disabled(), time.Second, osm)

	q := query("cafe")
	q.Backend = enrich.BackendNone
	res, err := h.pipeline.Run(context.Background(), q)
	require.NoError(t, err)

	assert.Zero(t, res.Counts.Enriched)
	assert.Zero(t, res.Counts.EnrichmentFailed)
	assert.Equal(t, 1, res.Counts.Persisted)
	require.Len(t, store.leads, 1)
	assert.Empty(t, store.leads[0].Subtype)
}

func TestRun_SubtypeOutsideVocabularyIsNotStored(t *testing.T) {
	osm := &fakeSource{name: model.SourceOSM, payloads: map[string][]string{
		"cafe": {osmNode(1, "Kaffeerösterei Inn", "cafe", 47.85, 12.12)},
	}}
	store := newFakeStore()
	cls := stubClassifier{classify: func(context.Context, model.MergedCandidate) (model.Classification, error) {
		return model.Classification{Subtype: "spaceship", Rationale: "made up"}, nil
	}}
	h := newHarness(t, store, cls, time.Second, osm)

	res, err := h.pipeline.Run(context.Background(), query("cafe"))
	require.NoError(t, err)

	assert.Equal(t, 1, res.Counts.Persisted)
	lead, ok := store.lead("Kaffeerösterei Inn")
	require.True(t, ok)
	assert.Empty(t, lead.Subtype)
}

func TestRun_NoResults(t *testing.T) {
	osm := &fakeSource{name: model.SourceOSM}
	h := newHarness(t, newFakeStore(), alwaysIndie(), time.Second, osm)

	res, err := h.pipeline.Run(context.Background(), query("coworking"))
	require.NoError(t, err)

	assert.Equal(t, model.Counts{}, res.Counts)
	assert.Empty(t, res.SourcesUsed)
	assert.FileExists(t, res.ArtifactPath)
	assert.Len(t, h.events, 1)
}

func TestRun_LocateFailureSearchesByName(t *testing.T) {
	osm := &fakeSource{name: model.SourceOSM, payloads: map[string][]string{
		"cafe": {osmNode(1, "Kaffeerösterei Inn", "cafe", 47.85, 12.12)},
	}}
	h := newHarness(t, newFakeStore(), alwaysIndie(), time.Second, osm)
	h.pipeline.deps.Locator = fakeLocator{err: errors.New("nominatim down")}

	res, err := h.pipeline.Run(context.Background(), query("cafe"))
	require.NoError(t, err)
	assert.Contains(t, errorKinds(res), model.ErrKindLocate)
	assert.Equal(t, 1, res.Counts.Persisted)
}

func TestRun_ConfigErrorAbortsBeforeRequests(t *testing.T) {
	osm := &fakeSource{name: model.SourceOSM}
	h := newHarness(t, newFakeStore(), alwaysIndie(), time.Second, osm)

	q := query("spaceport")
	res, err := h.pipeline.Run(context.Background(), q)
	require.Error(t, err)
	assert.Nil(t, res)

	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "kinds", cfgErr.Field)
	assert.Zero(t, osm.calls)
	assert.Empty(t, h.events)

	entries, err := os.ReadDir(h.dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRun_CancelledWritesPartialReport(t *testing.T) {
	osm := &fakeSource{name: model.SourceOSM}
	h := newHarness(t, newFakeStore(), alwaysIndie(), time.Second, osm)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := h.pipeline.Run(ctx, query("cafe"))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, res)
	assert.FileExists(t, res.ArtifactPath)
	assert.Empty(t, h.events)
	assert.Zero(t, osm.calls)
}
