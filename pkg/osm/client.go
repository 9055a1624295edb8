// Package osm queries OpenStreetMap through the Overpass and Nominatim APIs.
package osm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/artcrm/artcrm/internal/resilience"
)

const (
	defaultOverpassURL  = "https://overpass-api.de/api/interpreter"
	defaultNominatimURL = "https://nominatim.openstreetmap.org"
	defaultUserAgent    = "artcrm-recon/1.0"
)

// Client performs Overpass and Nominatim requests.
type Client interface {
	Interpret(ctx context.Context, query string) (*OverpassResponse, error)
	Geocode(ctx context.Context, city, countryCode string) (*GeocodeResult, error)
}

// OverpassResponse keeps each element as the verbatim JSON object returned
// by Overpass. Decode entries into Element when needed.
type OverpassResponse struct {
	Elements []json.RawMessage `json:"elements"`
	Remark   string            `json:"remark,omitempty"`
}

// Element is an OSM node, way or relation. Ways and relations carry Center
// when queried with "out center".
type Element struct {
	Type   string            `json:"type"`
	ID     int64             `json:"id"`
	Lat    *float64          `json:"lat,omitempty"`
	Lon    *float64          `json:"lon,omitempty"`
	Center *Point            `json:"center,omitempty"`
	Tags   map[string]string `json:"tags"`
}

// Point is a lat/lon pair.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Position returns the element's coordinates, preferring the node position
// over the computed center.
func (e Element) Position() (Point, bool) {
	if e.Lat != nil && e.Lon != nil {
		return Point{Lat: *e.Lat, Lon: *e.Lon}, true
	}
	if e.Center != nil {
		return *e.Center, true
	}
	return Point{}, false
}

// Tag returns the first non-empty tag among keys.
func (e Element) Tag(keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(e.Tags[k]); v != "" {
			return v
		}
	}
	return ""
}

// GeocodeResult is the best Nominatim match for a city.
type GeocodeResult struct {
	DisplayName string
	Lat         float64
	Lon         float64
}

type nominatimPlace struct {
	DisplayName string `json:"display_name"`
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
}

// Option configures the client.
type Option func(*httpClient)

// WithOverpassURL overrides the Overpass interpreter endpoint.
func WithOverpassURL(u string) Option {
	return func(c *httpClient) {
		if u != "" {
			c.overpassURL = u
		}
	}
}

// WithNominatimURL overrides the Nominatim base URL.
func WithNominatimURL(u string) Option {
	return func(c *httpClient) {
		if u != "" {
			c.nominatimURL = strings.TrimRight(u, "/")
		}
	}
}

// WithUserAgent sets the User-Agent both services require.
func WithUserAgent(ua string) Option {
	return func(c *httpClient) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	overpassURL  string
	nominatimURL string
	userAgent    string
	http         *http.Client
}

// NewClient creates an OSM client.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		overpassURL:  defaultOverpassURL,
		nominatimURL: defaultNominatimURL,
		userAgent:    defaultUserAgent,
		http: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Interpret runs an Overpass QL query. Overload remarks in an otherwise
// successful response are reported as transient errors.
func (c *httpClient) Interpret(ctx context.Context, query string) (*OverpassResponse, error) {
	form := url.Values{"data": {query}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.overpassURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, eris.Wrap(err, "overpass: create request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", c.userAgent)

	body, status, err := c.do(req)
	if err != nil {
		return nil, eris.Wrap(err, "overpass: send request")
	}
	if err := resilience.CheckStatus("overpass", status, body); err != nil {
		return nil, err
	}

	var result OverpassResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "overpass: unmarshal response")
	}
	if r := strings.ToLower(result.Remark); strings.Contains(r, "runtime error") || strings.Contains(r, "timed out") {
		return nil, resilience.NewTransientError(eris.Errorf("overpass: %s", result.Remark), status)
	}
	return &result, nil
}

// Geocode resolves a city to its center. It returns nil without error when
// Nominatim has no match.
func (c *httpClient) Geocode(ctx context.Context, city, countryCode string) (*GeocodeResult, error) {
	q := url.Values{
		"city":   {city},
		"format": {"jsonv2"},
		"limit":  {"1"},
	}
	if countryCode != "" {
		q.Set("countrycodes", strings.ToLower(countryCode))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.nominatimURL+"/search?"+q.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "nominatim: create request")
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	body, status, err := c.do(req)
	if err != nil {
		return nil, eris.Wrap(err, "nominatim: send request")
	}
	if err := resilience.CheckStatus("nominatim", status, body); err != nil {
		return nil, err
	}

	var places []nominatimPlace
	if err := json.Unmarshal(body, &places); err != nil {
		return nil, eris.Wrap(err, "nominatim: unmarshal response")
	}
	if len(places) == 0 {
		return nil, nil
	}

	lat, err := strconv.ParseFloat(places[0].Lat, 64)
	if err != nil {
		return nil, eris.Wrapf(err, "nominatim: parse lat %q", places[0].Lat)
	}
	lon, err := strconv.ParseFloat(places[0].Lon, 64)
	if err != nil {
		return nil, eris.Wrapf(err, "nominatim: parse lon %q", places[0].Lon)
	}
	return &GeocodeResult{DisplayName: places[0].DisplayName, Lat: lat, Lon: lon}, nil
}

func (c *httpClient) do(req *http.Request) ([]byte, int, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}
