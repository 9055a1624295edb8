package source

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/artcrm/artcrm/internal/model"
	"github.com/artcrm/artcrm/internal/resilience"
	"github.com/artcrm/artcrm/pkg/google"
)

// maxBiasRadiusMeters is the largest circle the Places API accepts.
const maxBiasRadiusMeters = 50000.0

// GoogleOptions tunes the Places text search.
type GoogleOptions struct {
	MaxPages int
	PageSize int
	Language string
	Retry    resilience.RetryConfig
}

// GoogleSource searches Google Places.
type GoogleSource struct {
	client google.Client
	gate   *Gate
	opts   GoogleOptions
	now    func() time.Time
}

// NewGoogle creates a Google Places source.
func NewGoogle(client google.Client, gate *Gate, opts GoogleOptions) *GoogleSource {
	if opts.MaxPages <= 0 {
		opts.MaxPages = 3
	}
	if opts.PageSize <= 0 || opts.PageSize > 20 {
		opts.PageSize = 20
	}
	if opts.Retry.OnRetry == nil {
		opts.Retry.OnRetry = resilience.RetryLogger(model.SourceGoogle, "searchText")
	}
	return &GoogleSource{client: client, gate: gate, opts: opts, now: time.Now}
}

// Name implements Source.
func (s *GoogleSource) Name() string { return model.SourceGoogle }

// Search implements Source. Kinds without a Places query return nothing.
func (s *GoogleSource) Search(ctx context.Context, area model.Area, kind string) ([]model.RawCandidate, error) {
	q, ok := googleQueries[kind]
	if !ok {
		zap.L().Debug("google: no query for kind", zap.String("kind", kind))
		return nil, nil
	}

	req := google.SearchTextRequest{
		TextQuery:    fmt.Sprintf("%s in %s, %s", q.text, area.City, area.Country),
		IncludedType: q.includedType,
		LanguageCode: s.opts.Language,
		RegionCode:   area.Country,
		PageSize:     s.opts.PageSize,
	}
	if area.Center != nil {
		req.LocationBias = &google.LocationBias{Circle: google.Circle{
			Center: google.LatLng{Latitude: area.Center.Lat, Longitude: area.Center.Lon},
			Radius: math.Min(area.RadiusKM*1000, maxBiasRadiusMeters),
		}}
	}

	var out []model.RawCandidate
	for page := 1; page <= s.opts.MaxPages; page++ {
		resp, err := resilience.DoVal(ctx, s.opts.Retry, func(ctx context.Context) (*google.SearchTextResponse, error) {
			if err := s.gate.Wait(ctx); err != nil {
				return nil, err
			}
			return s.client.SearchText(ctx, req)
		})
		if err != nil {
			return out, eris.Wrapf(err, "google: search %s page %d", kind, page)
		}

		now := s.now()
		for _, p := range resp.Places {
			out = append(out, newRaw(model.SourceGoogle, kind, p, now))
		}
		if resp.NextPageToken == "" {
			break
		}
		req.PageToken = resp.NextPageToken
	}
	return out, nil
}
