// Package normalize maps provider payloads onto the common venue shape.
package normalize

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/artcrm/artcrm/internal/model"
	"github.com/artcrm/artcrm/internal/vocab"
	"github.com/artcrm/artcrm/pkg/google"
	"github.com/artcrm/artcrm/pkg/osm"
)

// MalformedError reports a payload that could not be decoded.
type MalformedError struct {
	RawID  string
	Source string
	Err    error
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("normalize: malformed %s candidate %s: %v", e.Source, e.RawID, e.Err)
}

func (e *MalformedError) Unwrap() error { return e.Err }

// ClosedError reports a venue the provider lists as permanently closed.
type ClosedError struct {
	RawID string
	Name  string
}

func (e *ClosedError) Error() string {
	return fmt.Sprintf("normalize: %q is permanently closed", e.Name)
}

// Normalize maps raw onto a NormalizedCandidate. Missing fields stay empty.
// The query supplies the fallback city and country.
func Normalize(raw model.RawCandidate, q model.SourceQuery) (model.NormalizedCandidate, error) {
	var (
		n   model.NormalizedCandidate
		err error
	)
	switch raw.Source {
	case model.SourceGoogle:
		n, err = fromGoogle(raw)
	case model.SourceOSM:
		n, err = fromOSM(raw)
	default:
		err = &MalformedError{RawID: raw.ID, Source: raw.Source, Err: fmt.Errorf("unknown source")}
	}
	if err != nil {
		return model.NormalizedCandidate{}, err
	}

	n.ID = raw.ID
	n.RawID = raw.ID
	n.Source = raw.Source
	n.RequestedKind = raw.Kind
	if n.City == "" {
		_, n.City = parsePostalCity(n.Address)
	}
	if n.City == "" {
		n.City = strings.TrimSpace(q.City)
	}
	if n.Country == "" {
		n.Country = strings.ToUpper(strings.TrimSpace(q.Country))
	}
	return n, nil
}

func fromGoogle(raw model.RawCandidate) (model.NormalizedCandidate, error) {
	var p google.Place
	if err := json.Unmarshal(raw.Payload, &p); err != nil {
		return model.NormalizedCandidate{}, &MalformedError{RawID: raw.ID, Source: raw.Source, Err: err}
	}
	if p.BusinessStatus == google.StatusClosedPermanently {
		return model.NormalizedCandidate{}, &ClosedError{RawID: raw.ID, Name: p.DisplayName.Text}
	}

	n := model.NormalizedCandidate{
		ExternalID: p.ID,
		Name:       clean(p.DisplayName.Text),
		Address:    googleStreet(p),
		PostalCode: p.Component("postal_code"),
		City:       first(p.Component("locality"), p.Component("postal_town")),
		Website:    clean(p.WebsiteURI),
		Phone:      clean(first(p.NationalPhoneNumber, p.InternationalPhoneNumber)),
	}
	for _, ac := range p.AddressComponents {
		if contains(ac.Types, "country") {
			n.Country = strings.ToUpper(ac.ShortText)
			break
		}
	}
	if p.Location != nil {
		n.Coordinates = &model.Coordinates{Lat: p.Location.Latitude, Lon: p.Location.Longitude}
	}
	n.Kind, n.CategoryHint = googleKind(p)
	if n.PostalCode == "" || n.City == "" {
		postal, city := parsePostalCity(p.FormattedAddress)
		n.PostalCode = first(n.PostalCode, postal)
		n.City = first(n.City, city)
	}
	return n, nil
}

// googleStreet prefers route + street number and falls back to the first
// segment of the formatted address.
func googleStreet(p google.Place) string {
	route := p.Component("route")
	if route != "" {
		return clean(strings.TrimSpace(route + " " + p.Component("street_number")))
	}
	if p.FormattedAddress == "" {
		return ""
	}
	return clean(p.FormattedAddress)
}

func googleKind(p google.Place) (kind, hint string) {
	types := append([]string{p.PrimaryType}, p.Types...)
	for _, t := range types {
		if k, ok := googleKinds[t]; ok {
			return k, t
		}
	}
	return vocab.KindOther, first(p.PrimaryType, firstOf(p.Types))
}

func fromOSM(raw model.RawCandidate) (model.NormalizedCandidate, error) {
	var e osm.Element
	if err := json.Unmarshal(raw.Payload, &e); err != nil {
		return model.NormalizedCandidate{}, &MalformedError{RawID: raw.ID, Source: raw.Source, Err: err}
	}

	street := strings.TrimSpace(e.Tag("addr:street") + " " + e.Tag("addr:housenumber"))
	n := model.NormalizedCandidate{
		Name:       clean(e.Tag("name")),
		Address:    clean(street),
		PostalCode: e.Tag("addr:postcode"),
		City:       e.Tag("addr:city"),
		Country:    strings.ToUpper(e.Tag("addr:country")),
		Website:    clean(e.Tag("website", "contact:website", "url")),
		Phone:      clean(e.Tag("phone", "contact:phone")),
		Email:      clean(e.Tag("email", "contact:email")),
	}
	if e.Type != "" && e.ID != 0 {
		n.ExternalID = fmt.Sprintf("%s/%d", e.Type, e.ID)
	}
	if pos, ok := e.Position(); ok {
		n.Coordinates = &model.Coordinates{Lat: pos.Lat, Lon: pos.Lon}
	}
	n.Kind, n.CategoryHint = osmKind(e)
	return n, nil
}

func osmKind(e osm.Element) (kind, hint string) {
	for _, key := range osmKindKeys {
		v := e.Tags[key]
		if v == "" {
			continue
		}
		tag := key + "=" + v
		if k, ok := osmKinds[tag]; ok {
			return k, tag
		}
		if k, ok := osmKinds[key+"=*"]; ok {
			return k, tag
		}
	}
	for _, key := range osmKindKeys {
		if v := e.Tags[key]; v != "" {
			return vocab.KindOther, key + "=" + v
		}
	}
	return vocab.KindOther, ""
}

var postalCityRe = regexp.MustCompile(`^(?:[A-Z]{1,2}-)?(\d{4,5})\s+(.+)$`)

// parsePostalCity finds a "83022 Rosenheim" segment in a comma-separated
// address.
func parsePostalCity(address string) (postal, city string) {
	for _, part := range strings.Split(address, ",") {
		if m := postalCityRe.FindStringSubmatch(strings.TrimSpace(part)); m != nil {
			return m[1], strings.TrimSpace(m[2])
		}
	}
	return "", ""
}

var spaceRe = regexp.MustCompile(`\s+`)

func clean(s string) string {
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}

func first(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func firstOf(vals []string) string {
	if len(vals) == 0 {
		return ""
	}
	return vals[0]
}

func contains(vals []string, want string) bool {
	for _, v := range vals {
		if v == want {
			return true
		}
	}
	return false
}

// Result is the outcome of normalizing a batch.
type Result struct {
	Candidates []model.NormalizedCandidate
	Malformed  []model.RunError
	Closed     int
}

// All normalizes every raw candidate, discarding malformed and closed ones.
func All(raws []model.RawCandidate, q model.SourceQuery) Result {
	var res Result
	for _, raw := range raws {
		n, err := Normalize(raw, q)
		if err == nil {
			res.Candidates = append(res.Candidates, n)
			continue
		}
		var closed *ClosedError
		if errors.As(err, &closed) {
			res.Closed++
			continue
		}
		res.Malformed = append(res.Malformed, model.RunError{
			Kind:    model.ErrKindMalformed,
			Source:  raw.Source,
			Subject: raw.ID,
			Message: err.Error(),
		})
	}
	return res
}
