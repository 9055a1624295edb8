// Package reconcile clusters normalized candidates that describe the same
// venue and drops clusters that match known contacts.
package reconcile

import (
	"slices"
	"sort"

	"go.uber.org/zap"

	"github.com/artcrm/artcrm/internal/identity"
	"github.com/artcrm/artcrm/internal/model"
)

// ContactIndex answers whether a name+city key belongs to an existing
// contact.
type ContactIndex interface {
	Contains(key identity.Key) bool
}

// Options holds the matching thresholds and source trust order.
type Options struct {
	NameSimilarity  float64
	ProximityMeters float64
	// Priority lists sources from most to least trusted.
	Priority []string
}

// Result is the output of Reconcile.
type Result struct {
	// Clusters holds every cluster formed, suppressed ones included.
	Clusters []model.VenueCluster
	// Merged holds the clusters that survived suppression.
	Merged     []model.MergedCandidate
	Suppressed []model.MergedCandidate
	Discarded  []model.RunError
}

type item struct {
	c       model.NormalizedCandidate
	rank    int
	nameKey string
	cityKey string
}

// Reconcile clusters cands and suppresses clusters found in index. It never
// fails: candidates without a usable name or location are discarded.
func Reconcile(cands []model.NormalizedCandidate, index ContactIndex, opts Options) Result {
	log := zap.L().With(zap.String("component", "reconcile"))
	var res Result

	items := make([]item, 0, len(cands))
	for _, c := range cands {
		it := item{
			c:       c,
			rank:    rankOf(c.Source, opts.Priority),
			nameKey: identity.Fold(c.Name),
			cityKey: identity.Fold(c.City),
		}
		if reason := unusable(it); reason != "" {
			log.Warn("reconcile: discarding candidate",
				zap.String("id", c.ID),
				zap.String("source", c.Source),
				zap.String("reason", reason),
			)
			res.Discarded = append(res.Discarded, model.RunError{
				Kind: model.ErrKindMalformed, Source: c.Source, Subject: c.ID, Message: reason,
			})
			continue
		}
		items = append(items, it)
	}

	sort.SliceStable(items, func(i, j int) bool {
		if items[i].rank != items[j].rank {
			return items[i].rank < items[j].rank
		}
		return items[i].c.ID < items[j].c.ID
	})

	uf := newUnionFind(len(items))
	for i := range items {
		for j := i + 1; j < len(items); j++ {
			if match(items[i], items[j], opts) {
				uf.union(i, j)
			}
		}
	}

	groups := make(map[int][]item)
	var roots []int
	for i, it := range items {
		r := uf.find(i)
		if _, ok := groups[r]; !ok {
			roots = append(roots, r)
		}
		groups[r] = append(groups[r], it)
	}

	for _, r := range roots {
		members := groups[r]
		merged := merge(members, opts.Priority)
		cluster := model.VenueCluster{Merged: merged}
		for _, m := range members {
			cluster.Members = append(cluster.Members, m.c)
		}
		res.Clusters = append(res.Clusters, cluster)

		if index != nil && known(index, merged, members) {
			log.Info("reconcile: matches existing contact",
				zap.String("name", merged.Name),
				zap.String("city", merged.City),
			)
			res.Suppressed = append(res.Suppressed, merged)
			continue
		}
		res.Merged = append(res.Merged, merged)
	}
	return res
}

func unusable(it item) string {
	if it.nameKey == "" {
		return "no usable name"
	}
	if it.c.Coordinates == nil && it.cityKey == "" {
		return "no location"
	}
	return ""
}

func match(a, b item, opts Options) bool {
	if !identity.SimilarNames(a.nameKey, b.nameKey, opts.NameSimilarity) {
		return false
	}
	if a.c.Coordinates != nil && b.c.Coordinates != nil {
		d := identity.DistanceMeters(a.c.Coordinates.Lat, a.c.Coordinates.Lon, b.c.Coordinates.Lat, b.c.Coordinates.Lon)
		return d <= opts.ProximityMeters
	}
	return a.cityKey != "" && a.cityKey == b.cityKey
}

func known(index ContactIndex, merged model.MergedCandidate, members []item) bool {
	if index.Contains(identity.Key{Name: merged.NameKey, City: merged.CityKey}) {
		return true
	}
	for _, m := range members {
		if index.Contains(identity.Key{Name: m.nameKey, City: m.cityKey}) {
			return true
		}
	}
	return false
}

func rankOf(source string, priority []string) int {
	if i := slices.Index(priority, source); i >= 0 {
		return i
	}
	return len(priority)
}
