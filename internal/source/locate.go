package source

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/artcrm/artcrm/internal/model"
	"github.com/artcrm/artcrm/pkg/osm"
)

// Locator resolves a city to its center through Nominatim, which allows one
// request per second.
type Locator struct {
	client osm.Client
	gate   *Gate
}

// NewLocator creates a Locator with its own gate.
func NewLocator(client osm.Client) *Locator {
	return &Locator{client: client, gate: NewGate(time.Second)}
}

// Locate returns the city center, or nil when the city is unknown.
func (l *Locator) Locate(ctx context.Context, city, country string) (*model.Coordinates, error) {
	if err := l.gate.Wait(ctx); err != nil {
		return nil, err
	}
	res, err := l.client.Geocode(ctx, city, country)
	if err != nil {
		return nil, eris.Wrapf(err, "source: locate %s, %s", city, country)
	}
	if res == nil {
		return nil, nil
	}
	return &model.Coordinates{Lat: res.Lat, Lon: res.Lon}, nil
}
