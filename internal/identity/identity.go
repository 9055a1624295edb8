// Package identity derives the match keys used to decide whether two venue
// records describe the same place.
package identity

import (
	"math"
	"strings"
	"unicode"

	"github.com/agext/levenshtein"
	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Key is the normalized name+city pair used for dedup and contact lookup.
type Key struct {
	Name string
	City string
}

// NewKey folds name and city into a Key.
func NewKey(name, city string) Key {
	return Key{Name: Fold(name), City: Fold(city)}
}

// Valid reports whether the key carries a usable name.
func (k Key) Valid() bool { return k.Name != "" }

func (k Key) String() string { return k.Name + "|" + k.City }

var folder = cases.Fold()

// Fold normalizes s for matching: case fold (ß becomes ss), accent strip,
// punctuation to spaces, whitespace collapse.
func Fold(s string) string {
	if s == "" {
		return ""
	}
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, s)
	if err != nil {
		stripped = s
	}
	folded := folder.String(stripped)

	var b strings.Builder
	b.Grow(len(folded))
	space := false
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			b.WriteRune(r)
			space = false
			continue
		}
		space = true
	}
	return b.String()
}

// NameSimilarity returns the Levenshtein similarity of two folded keys in
// [0, 1].
func NameSimilarity(a, b string) float64 {
	if a == b {
		return 1
	}
	if a == "" || b == "" {
		return 0
	}
	return levenshtein.Similarity(a, b, nil)
}

// SimilarNames reports whether two folded name keys are equal or at least
// threshold similar.
func SimilarNames(a, b string, threshold float64) bool {
	if a == "" || b == "" {
		return false
	}
	return a == b || NameSimilarity(a, b) >= threshold
}

const earthRadiusMeters = 6371000.0

// DistanceMeters returns the great-circle distance between two points.
func DistanceMeters(lat1, lon1, lat2, lon2 float64) float64 {
	toRad := func(d float64) float64 { return d * math.Pi / 180 }
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(a)))
}
