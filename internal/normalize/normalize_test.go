package normalize

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artcrm/artcrm/internal/model"
)

var q = model.SourceQuery{City: "Rosenheim", Country: "de"}

func raw(source, kind, payload string) model.RawCandidate {
	return model.RawCandidate{ID: "raw-1", Source: source, Kind: kind, Payload: json.RawMessage(payload)}
}

func TestNormalize_GooglePlace(t *testing.T) {
	n, err := Normalize(raw(model.SourceGoogle, "cafe", `{
		"id": "ChIJ1",
		"displayName": {"text": "  Café   Sonnenschein "},
		"formattedAddress": "Max-Josefs-Platz 5, 83022 Rosenheim, Deutschland",
		"addressComponents": [
			{"longText": "5", "shortText": "5", "types": ["street_number"]},
			{"longText": "Max-Josefs-Platz", "shortText": "Max-Josefs-Platz", "types": ["route"]},
			{"longText": "Rosenheim", "shortText": "RO", "types": ["locality", "political"]},
			{"longText": "83022", "shortText": "83022", "types": ["postal_code"]},
			{"longText": "Deutschland", "shortText": "DE", "types": ["country", "political"]}
		],
		"location": {"latitude": 47.8561, "longitude": 12.1289},
		"websiteUri": "https://sonnenschein.example",
		"nationalPhoneNumber": "08031 123456",
		"primaryType": "coffee_shop",
		"types": ["coffee_shop", "cafe", "food"],
		"businessStatus": "OPERATIONAL"
	}`), q)
	require.NoError(t, err)

	assert.Equal(t, model.NormalizedCandidate{
		ID:            "raw-1",
		RawID:         "raw-1",
		Source:        model.SourceGoogle,
		ExternalID:    "ChIJ1",
		Kind:          "cafe",
		RequestedKind: "cafe",
		Name:          "Café Sonnenschein",
		Address:       "Max-Josefs-Platz 5",
		PostalCode:    "83022",
		City:          "Rosenheim",
		Country:       "DE",
		Coordinates:   &model.Coordinates{Lat: 47.8561, Lon: 12.1289},
		Website:       "https://sonnenschein.example",
		Phone:         "08031 123456",
		CategoryHint:  "coffee_shop",
	}, n)
}

func TestNormalize_GoogleFallbacks(t *testing.T) {
	n, err := Normalize(raw(model.SourceGoogle, "coworking", `{
		"id": "ChIJ2",
		"displayName": {"text": "Werkbank"},
		"formattedAddress": "Innstraße 12, 83022 Rosenheim, Deutschland",
		"internationalPhoneNumber": "+49 8031 1",
		"types": ["point_of_interest"]
	}`), q)
	require.NoError(t, err)

	assert.Equal(t, "other", n.Kind)
	assert.Equal(t, "coworking", n.RequestedKind)
	assert.Equal(t, "point_of_interest", n.CategoryHint)
	assert.Equal(t, "83022", n.PostalCode)
	assert.Equal(t, "Rosenheim", n.City)
	assert.Equal(t, "DE", n.Country, "country falls back to the query")
	assert.Equal(t, "+49 8031 1", n.Phone)
	assert.Nil(t, n.Coordinates)
}

func TestNormalize_GoogleClosed(t *testing.T) {
	_, err := Normalize(raw(model.SourceGoogle, "cafe", `{"id": "x", "displayName": {"text": "Altes Café"}, "businessStatus": "CLOSED_PERMANENTLY"}`), q)
	var closed *ClosedError
	require.True(t, errors.As(err, &closed))
	assert.Equal(t, "Altes Café", closed.Name)
}

func TestNormalize_OSMElement(t *testing.T) {
	n, err := Normalize(raw(model.SourceOSM, "gallery", `{
		"type": "way", "id": 42,
		"center": {"lat": 47.857, "lon": 12.13},
		"tags": {
			"name": "Galerie Nord",
			"tourism": "gallery",
			"addr:street": "Münchener Straße",
			"addr:housenumber": "3",
			"addr:postcode": "83022",
			"contact:website": "https://nord.example",
			"contact:phone": "+49 8031 2",
			"contact:email": "info@nord.example"
		}
	}`), q)
	require.NoError(t, err)

	assert.Equal(t, "way/42", n.ExternalID)
	assert.Equal(t, "gallery", n.Kind)
	assert.Equal(t, "tourism=gallery", n.CategoryHint)
	assert.Equal(t, "Münchener Straße 3", n.Address)
	assert.Equal(t, "83022", n.PostalCode)
	assert.Equal(t, "Rosenheim", n.City, "city falls back to the query")
	assert.Equal(t, "DE", n.Country)
	assert.Equal(t, "https://nord.example", n.Website)
	assert.Equal(t, "+49 8031 2", n.Phone)
	assert.Equal(t, "info@nord.example", n.Email)
	assert.Equal(t, &model.Coordinates{Lat: 47.857, Lon: 12.13}, n.Coordinates)
}

func TestNormalize_OSMKinds(t *testing.T) {
	tests := []struct {
		tags string
		kind string
		hint string
	}{
		{`{"shop": "art"}`, "gallery", "shop=art"},
		{`{"amenity": "pub"}`, "bar", "amenity=pub"},
		{`{"office": "architect"}`, "office", "office=architect"},
		{`{"amenity": "library"}`, "other", "amenity=library"},
		{`{}`, "other", ""},
	}
	for _, tt := range tests {
		t.Run(tt.tags, func(t *testing.T) {
			n, err := Normalize(raw(model.SourceOSM, "gallery", `{"type": "node", "id": 1, "tags": `+tt.tags+`}`), q)
			require.NoError(t, err)
			assert.Equal(t, tt.kind, n.Kind)
			assert.Equal(t, tt.hint, n.CategoryHint)
			assert.Empty(t, n.Name)
			assert.Nil(t, n.Coordinates)
		})
	}
}

func TestNormalize_Malformed(t *testing.T) {
	_, err := Normalize(raw(model.SourceOSM, "cafe", `{"type": "node", "id": "not-a-number"}`), q)
	var mal *MalformedError
	require.True(t, errors.As(err, &mal))
	assert.Equal(t, model.SourceOSM, mal.Source)

	_, err = Normalize(raw("yelp", "cafe", `{}`), q)
	require.True(t, errors.As(err, &mal))
}

func TestAll(t *testing.T) {
	raws := []model.RawCandidate{
		{ID: "a", Source: model.SourceOSM, Kind: "cafe", Payload: json.RawMessage(`{"type":"node","id":1,"tags":{"name":"Eins"}}`)},
		{ID: "b", Source: model.SourceGoogle, Kind: "cafe", Payload: json.RawMessage(`{"displayName":{"text":"Zu"},"businessStatus":"CLOSED_PERMANENTLY"}`)},
		{ID: "c", Source: model.SourceGoogle, Kind: "cafe", Payload: json.RawMessage(`[1,2`)},
		{ID: "d", Source: model.SourceGoogle, Kind: "cafe", Payload: json.RawMessage(`{"displayName":{"text":"Zwei"}}`)},
	}
	res := All(raws, q)
	require.Len(t, res.Candidates, 2)
	assert.Equal(t, "a", res.Candidates[0].ID)
	assert.Equal(t, "d", res.Candidates[1].ID)
	assert.Equal(t, 1, res.Closed)
	require.Len(t, res.Malformed, 1)
	assert.Equal(t, "c", res.Malformed[0].Subject)
	assert.Equal(t, model.ErrKindMalformed, res.Malformed[0].Kind)
}

func TestParsePostalCity(t *testing.T) {
	p, c := parsePostalCity("Hauptplatz 1, A-6020 Innsbruck, Österreich")
	assert.Equal(t, "6020", p)
	assert.Equal(t, "Innsbruck", c)

	p, c = parsePostalCity("somewhere")
	assert.Empty(t, p)
	assert.Empty(t, c)
}
