package reconcile

import (
	"slices"

	"github.com/artcrm/artcrm/internal/identity"
	"github.com/artcrm/artcrm/internal/model"
)

// merge builds the cluster view. members arrive in trust order. Name, city and
// coordinates always come from the same member; the remaining fields take the
// first non-empty value.
func merge(members []item, priority []string) model.MergedCandidate {
	m := model.MergedCandidate{Provenance: make(map[string]string)}

	rep := representative(members)
	m.Name = rep.Name
	m.Provenance["name"] = rep.Source
	if rep.City != "" {
		m.City = rep.City
		m.Provenance["city"] = rep.Source
	}
	if rep.Coordinates != nil {
		coords := *rep.Coordinates
		m.Coordinates = &coords
		m.Provenance["coordinates"] = rep.Source
	}

	pick := func(field string, get func(model.NormalizedCandidate) string) string {
		for _, it := range members {
			if v := get(it.c); v != "" {
				m.Provenance[field] = it.c.Source
				return v
			}
		}
		return ""
	}

	m.Kind = pick("kind", func(c model.NormalizedCandidate) string { return c.RequestedKind })
	m.Address = pick("address", func(c model.NormalizedCandidate) string { return c.Address })
	m.PostalCode = pick("postal_code", func(c model.NormalizedCandidate) string { return c.PostalCode })
	m.Country = pick("country", func(c model.NormalizedCandidate) string { return c.Country })
	m.Website = pick("website", func(c model.NormalizedCandidate) string { return c.Website })
	m.Phone = pick("phone", func(c model.NormalizedCandidate) string { return c.Phone })
	m.Email = pick("email", func(c model.NormalizedCandidate) string { return c.Email })

	for _, it := range members {
		m.MemberIDs = append(m.MemberIDs, it.c.ID)
		if !slices.Contains(m.Sources, it.c.Source) {
			m.Sources = append(m.Sources, it.c.Source)
		}
	}
	slices.SortStableFunc(m.Sources, func(a, b string) int {
		return rankOf(a, priority) - rankOf(b, priority)
	})

	m.NameKey = identity.Fold(m.Name)
	m.CityKey = identity.Fold(m.City)
	return m
}

// representative is the most trusted member with coordinates, or the most
// trusted member when none has them.
func representative(members []item) model.NormalizedCandidate {
	for _, it := range members {
		if it.c.Coordinates != nil {
			return it.c
		}
	}
	return members[0].c
}
