package source

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/artcrm/artcrm/internal/model"
	"github.com/artcrm/artcrm/internal/resilience"
	"github.com/artcrm/artcrm/pkg/osm"
)

// OSMOptions tunes Overpass queries.
type OSMOptions struct {
	TimeoutSecs int
	Retry       resilience.RetryConfig
}

// OSMSource searches OpenStreetMap through Overpass. Each tag selector of a
// kind is one request.
type OSMSource struct {
	client osm.Client
	gate   *Gate
	opts   OSMOptions
	now    func() time.Time
}

// NewOSM creates an Overpass source.
func NewOSM(client osm.Client, gate *Gate, opts OSMOptions) *OSMSource {
	if opts.Retry.OnRetry == nil {
		opts.Retry.OnRetry = resilience.RetryLogger(model.SourceOSM, "interpret")
	}
	return &OSMSource{client: client, gate: gate, opts: opts, now: time.Now}
}

// Name implements Source.
func (s *OSMSource) Name() string { return model.SourceOSM }

type elementRef struct {
	Type string `json:"type"`
	ID   int64  `json:"id"`
}

// Search implements Source. Elements matched by several selectors are kept
// once.
func (s *OSMSource) Search(ctx context.Context, area model.Area, kind string) ([]model.RawCandidate, error) {
	selectors, ok := osmSelectors[kind]
	if !ok {
		zap.L().Debug("overpass: no selectors for kind", zap.String("kind", kind))
		return nil, nil
	}

	seen := make(map[elementRef]bool)
	var out []model.RawCandidate
	for _, sel := range selectors {
		query := s.query(sel, area)
		resp, err := resilience.DoVal(ctx, s.opts.Retry, func(ctx context.Context) (*osm.OverpassResponse, error) {
			if err := s.gate.Wait(ctx); err != nil {
				return nil, err
			}
			return s.client.Interpret(ctx, query)
		})
		if err != nil {
			return out, eris.Wrapf(err, "overpass: search %s (%s)", kind, sel)
		}

		now := s.now()
		for _, el := range resp.Elements {
			var ref elementRef
			if json.Unmarshal(el, &ref) == nil && ref.ID != 0 {
				if seen[ref] {
					continue
				}
				seen[ref] = true
			}
			out = append(out, newRaw(model.SourceOSM, kind, el, now))
		}
	}
	return out, nil
}

func (s *OSMSource) query(sel osm.Selector, area model.Area) string {
	if area.Center != nil {
		return osm.AroundQuery(sel, area.Center.Lat, area.Center.Lon, area.RadiusKM*1000, s.opts.TimeoutSecs)
	}
	return osm.AreaQuery(sel, area.City, s.opts.TimeoutSecs)
}
