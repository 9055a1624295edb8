package main

import (
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/artcrm/artcrm/internal/config"
	"github.com/artcrm/artcrm/internal/contact"
	"github.com/artcrm/artcrm/internal/enrich"
	"github.com/artcrm/artcrm/internal/events"
	"github.com/artcrm/artcrm/internal/model"
	"github.com/artcrm/artcrm/internal/recon"
	"github.com/artcrm/artcrm/internal/reconcile"
	"github.com/artcrm/artcrm/internal/resilience"
	"github.com/artcrm/artcrm/internal/source"
	"github.com/artcrm/artcrm/internal/vocab"
	"github.com/artcrm/artcrm/pkg/google"
	"github.com/artcrm/artcrm/pkg/osm"
)

var (
	reconCity     string
	reconCountry  string
	reconRadius   float64
	reconKinds    []string
	reconModel    string
	reconNoGoogle bool
	reconNoOSM    bool
)

var reconCmd = &cobra.Command{
	Use:   "recon",
	Short: "Discover venues in a city and store new ones as unverified leads",
	Long: "Searches Google Places and OpenStreetMap for venues of the given kinds, merges duplicates across sources, " +
		"skips venues already in the contact list, classifies the rest with an AI backend and stores them with status lead_unverified.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		q := reconQuery(cmd)
		voc := vocab.Default()
		if err := recon.ValidateQuery(q, voc); err != nil {
			return err
		}
		if err := cfg.Validate("recon"); err != nil {
			return err
		}

		cls, err := enrich.New(ctx, q.Backend, cfg, voc)
		if err != nil {
			return &recon.ConfigError{Field: "model", Reason: err.Error()}
		}

		st, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		p := newPipeline(cfg, st, cls, voc, events.Default())
		res, err := p.Run(ctx, q)
		if res != nil {
			printSummary(cmd.OutOrStdout(), res)
		}
		return err
	},
}

func init() {
	f := reconCmd.Flags()
	f.StringVar(&reconCity, "city", "", "city to search (required)")
	f.StringVar(&reconCountry, "country", "", "ISO country code (default from config, DE)")
	f.Float64Var(&reconRadius, "radius", 0, "search radius in km (default from config, 10)")
	f.StringSliceVar(&reconKinds, "type", nil, "venue kinds to search, comma separated (default gallery,cafe,coworking)")
	f.StringVar(&reconModel, "model", "", "enrichment backend: ollama, claude, gemini or none (default from config)")
	f.BoolVar(&reconNoGoogle, "no-google", false, "skip Google Places")
	f.BoolVar(&reconNoOSM, "no-osm", false, "skip OpenStreetMap")
	f.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		if name == "kinds" {
			name = "type"
		}
		return pflag.NormalizedName(name)
	})
	_ = reconCmd.MarkFlagRequired("city")
	rootCmd.AddCommand(reconCmd)
}

// reconQuery builds the query from flags, falling back to config defaults.
func reconQuery(cmd *cobra.Command) model.SourceQuery {
	q := model.SourceQuery{
		City:     strings.TrimSpace(reconCity),
		Country:  strings.ToUpper(strings.TrimSpace(reconCountry)),
		RadiusKM: reconRadius,
		Kinds:    reconKinds,
		Backend:  reconModel,
	}
	if q.Country == "" {
		q.Country = strings.ToUpper(cfg.Recon.DefaultCountry)
	}
	if !cmd.Flags().Changed("radius") {
		q.RadiusKM = cfg.Recon.DefaultRadius
	}
	if len(q.Kinds) == 0 {
		q.Kinds = cfg.Recon.DefaultKinds
	}
	if q.Backend == "" {
		q.Backend = cfg.Enrich.Backend
	}
	for _, s := range model.AllSources {
		if (s == model.SourceGoogle && reconNoGoogle) || (s == model.SourceOSM && reconNoOSM) {
			continue
		}
		q.Sources = append(q.Sources, s)
	}
	return q
}

// newPipeline wires the sources, enrichment and store from config.
func newPipeline(c *config.Config, st contact.Store, cls enrich.Classifier, voc *vocab.Vocabulary, bus *events.Bus) *recon.Pipeline {
	httpClient := &http.Client{Timeout: time.Duration(c.Sources.RequestTimeoutSecs) * time.Second}
	retry := resilience.FromRetryConfig(c.Sources.MaxAttempts, c.Sources.InitialBackoffMs, c.Sources.MaxBackoffMs)

	osmClient := osm.NewClient(
		osm.WithOverpassURL(c.OSM.OverpassURL),
		osm.WithNominatimURL(c.OSM.NominatimURL),
		osm.WithUserAgent(c.OSM.UserAgent),
		osm.WithHTTPClient(httpClient),
	)

	var googleSrc source.Source
	if c.Google.Key == "" {
		googleSrc = source.Unavailable(model.SourceGoogle, "GOOGLE_MAPS_API_KEY is not set")
	} else {
		googleSrc = source.NewGoogle(
			google.NewClient(c.Google.Key, google.WithBaseURL(c.Google.BaseURL), google.WithHTTPClient(httpClient)),
			source.GateFromSeconds(c.Sources.IntervalSecs),
			source.GoogleOptions{
				MaxPages: c.Google.MaxPages,
				PageSize: c.Google.PageSize,
				Language: c.Store.PreferredLang,
				Retry:    retry,
			},
		)
	}
	osmSrc := source.NewOSM(osmClient, source.GateFromSeconds(c.Sources.IntervalSecs), source.OSMOptions{
		TimeoutSecs: c.Sources.RequestTimeoutSecs,
		Retry:       retry,
	})

	priority := c.Sources.Priority
	if len(priority) == 0 {
		priority = model.AllSources
	}
	sources := []source.Source{googleSrc, osmSrc}
	slices.SortStableFunc(sources, func(a, b source.Source) int {
		return rank(priority, a.Name()) - rank(priority, b.Name())
	})

	orch := enrich.NewOrchestrator(cls, enrich.Options{
		Concurrency: c.Enrich.Concurrency,
		Timeout:     time.Duration(c.Enrich.TimeoutSecs) * time.Second,
		RateLimit:   c.Enrich.RateLimit,
		MaxAttempts: c.Sources.MaxAttempts,
		Breaker:     resilience.FromCircuitConfig(c.Enrich.FailureThreshold, 0),
	})

	return recon.New(recon.Deps{
		Locator:   source.NewLocator(osmClient),
		Collector: source.NewCollector(sources...),
		Enricher:  orch,
		Store:     st,
		Vocab:     voc,
		Bus:       bus,
	}, recon.Options{
		Reconcile: reconcile.Options{
			NameSimilarity:  c.Reconcile.NameSimilarity,
			ProximityMeters: c.Reconcile.ProximityMeters,
			Priority:        priority,
		},
		ResultsDir:        c.Recon.ResultsDir,
		PreferredLanguage: c.Store.PreferredLang,
	})
}

func rank(priority []string, name string) int {
	if i := slices.Index(priority, name); i >= 0 {
		return i
	}
	return len(priority)
}

func printSummary(w io.Writer, res *model.RunResult) {
	c := res.Counts
	fmt.Fprintf(w, "recon %s, %s (run %s)\n", res.Query.City, res.Query.Country, res.RunID)
	for _, s := range res.Sources {
		line := fmt.Sprintf("  %-14s %-18s %d candidates", s.Source, s.Status, s.Candidates)
		if s.Error != "" {
			line += "  (" + s.Error + ")"
		}
		fmt.Fprintln(w, line)
	}
	fmt.Fprintf(w, "  raw %d, normalized %d, closed %d, discarded %d, clusters %d\n",
		c.Raw, c.Normalized, c.Closed, c.DiscardedMalformed, c.Clusters)
	fmt.Fprintf(w, "  enriched %d, enrichment failed %d\n", c.Enriched, c.EnrichmentFailed)
	fmt.Fprintf(w, "  new leads %d (%d without enrichment), already known %d, persist failed %d\n",
		c.Persisted+c.EnrichmentFailedButPersisted, c.EnrichmentFailedButPersisted, c.MergedIntoExisting, c.PersistFailed)
	if len(res.Errors) > 0 {
		fmt.Fprintf(w, "  %d recovered errors, see report\n", len(res.Errors))
	}
	if res.ArtifactPath != "" {
		fmt.Fprintf(w, "  report: %s\n", res.ArtifactPath)
	}
}
