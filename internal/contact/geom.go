package contact

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"

	"github.com/artcrm/artcrm/internal/model"
)

// encodePoint converts coordinates to EWKB bytes with SRID 4326.
// Returns nil, nil when c is nil.
func encodePoint(c *model.Coordinates) ([]byte, error) {
	if c == nil {
		return nil, nil
	}
	p := geom.NewPointFlat(geom.XY, []float64{c.Lon, c.Lat}).SetSRID(4326)
	data, err := ewkb.Marshal(p, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "contact: encode location")
	}
	return data, nil
}
