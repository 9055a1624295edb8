// Package vocab exposes the fixed CRM vocabulary: venue kinds, subtypes,
// contact statuses and supported countries.
package vocab

import (
	_ "embed"
	"sort"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Status values assigned by the pipeline.
const (
	StatusLeadUnverified = "lead_unverified"
	StatusCold           = "cold"
)

// KindOther is the fallback for unmapped provider categories.
const KindOther = "other"

//go:embed vocab.yaml
var seed []byte

// Status is a contact status and its sort position in the CRM.
type Status struct {
	Name     string `yaml:"name"`
	Priority int    `yaml:"priority"`
}

// Country is a supported country.
type Country struct {
	Code string `yaml:"code"`
	Name string `yaml:"name"`
}

// Vocabulary is the parsed seed.
type Vocabulary struct {
	Kinds     []string  `yaml:"kinds"`
	Subtypes  []string  `yaml:"subtypes"`
	Statuses  []Status  `yaml:"statuses"`
	Countries []Country `yaml:"countries"`

	kinds     map[string]bool
	subtypes  map[string]bool
	statuses  map[string]int
	countries map[string]Country
}

// Parse decodes and indexes a vocabulary document.
func Parse(data []byte) (*Vocabulary, error) {
	var v Vocabulary
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, eris.Wrap(err, "vocab: parse")
	}
	if len(v.Kinds) == 0 || len(v.Subtypes) == 0 || len(v.Statuses) == 0 {
		return nil, eris.New("vocab: kinds, subtypes and statuses must not be empty")
	}

	v.kinds = toSet(v.Kinds)
	v.subtypes = toSet(v.Subtypes)
	v.statuses = make(map[string]int, len(v.Statuses))
	for _, s := range v.Statuses {
		v.statuses[s.Name] = s.Priority
	}
	v.countries = make(map[string]Country, len(v.Countries))
	for _, c := range v.Countries {
		v.countries[strings.ToUpper(c.Code)] = c
	}
	sort.SliceStable(v.Statuses, func(i, j int) bool {
		return v.Statuses[i].Priority < v.Statuses[j].Priority
	})
	return &v, nil
}

var (
	defaultOnce sync.Once
	defaultVoc  *Vocabulary
)

// Default returns the embedded vocabulary. The seed is compiled into the
// binary, so a parse failure is a programming error.
func Default() *Vocabulary {
	defaultOnce.Do(func() {
		v, err := Parse(seed)
		if err != nil {
			panic(err)
		}
		defaultVoc = v
	})
	return defaultVoc
}

// IsKind reports whether k is a known venue kind.
func (v *Vocabulary) IsKind(k string) bool { return v.kinds[k] }

// IsSubtype reports whether s is a known venue subtype.
func (v *Vocabulary) IsSubtype(s string) bool { return v.subtypes[s] }

// StatusPriority returns the sort position of a status.
func (v *Vocabulary) StatusPriority(name string) (int, bool) {
	p, ok := v.statuses[name]
	return p, ok
}

// Country looks up a supported country by ISO code, case-insensitively.
func (v *Vocabulary) Country(code string) (Country, bool) {
	c, ok := v.countries[strings.ToUpper(code)]
	return c, ok
}

func toSet(items []string) map[string]bool {
	m := make(map[string]bool, len(items))
	for _, it := range items {
		m[it] = true
	}
	return m
}
