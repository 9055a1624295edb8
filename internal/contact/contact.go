// Package contact is the CRM contact store as seen by the recon pipeline:
// read the known identities, look one up, and insert unverified leads.
package contact

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/artcrm/artcrm/internal/identity"
	"github.com/artcrm/artcrm/internal/model"
)

// ErrNotFound is returned by FindByKey when no contact carries the key.
var ErrNotFound = eris.New("contact: not found")

// Contact is the slice of a contact row the pipeline reads.
type Contact struct {
	ID        int64
	Name      string
	City      string
	Status    string
	NameKey   string
	CityKey   string
	DeletedAt *time.Time
}

// Lead is a new contact row written by the pipeline.
type Lead struct {
	Name              string
	Kind              string
	Subtype           string
	Address           string
	City              string
	Country           string
	Website           string
	Phone             string
	Email             string
	Status            string
	PreferredLanguage string
	Notes             string
	Location          *model.Coordinates
	Key               identity.Key
}

// Store defines the contact operations used by recon and migrate.
type Store interface {
	// Snapshot reads every known identity key, soft-deleted contacts
	// included.
	Snapshot(ctx context.Context) (*Index, error)
	// FindByKey returns the contact holding key or ErrNotFound. Rows without
	// stored keys match on their folded name and city.
	FindByKey(ctx context.Context, key identity.Key) (*Contact, error)
	// InsertLeadIfAbsent inserts lead unless a contact with the same key
	// exists. inserted is false when the key was already taken.
	InsertLeadIfAbsent(ctx context.Context, lead Lead) (id int64, inserted bool, err error)
	// Migrate creates or upgrades the contacts schema.
	Migrate(ctx context.Context) error
	// BackfillKeys fills identity keys on contacts created before they
	// existed and returns the number of rows updated.
	BackfillKeys(ctx context.Context) (int, error)
	Close() error
}

// Index is a read-only set of identity keys.
type Index struct {
	keys map[identity.Key]struct{}
}

// NewIndex builds an index from keys. Invalid keys are ignored.
func NewIndex(keys ...identity.Key) *Index {
	ix := &Index{keys: make(map[identity.Key]struct{}, len(keys))}
	for _, k := range keys {
		if k.Valid() {
			ix.keys[k] = struct{}{}
		}
	}
	return ix
}

// Contains reports whether key is known. A nil index contains nothing.
func (ix *Index) Contains(key identity.Key) bool {
	if ix == nil {
		return false
	}
	_, ok := ix.keys[key]
	return ok
}

// Len returns the number of keys.
func (ix *Index) Len() int {
	if ix == nil {
		return 0
	}
	return len(ix.keys)
}

// storedKey prefers the persisted key columns and falls back to folding the
// raw name and city for rows that were never backfilled.
func storedKey(name, city string, nameKey, cityKey *string) identity.Key {
	if nameKey != nil && *nameKey != "" {
		k := identity.Key{Name: *nameKey}
		if cityKey != nil {
			k.City = *cityKey
		}
		return k
	}
	return identity.NewKey(name, city)
}

type keyRow struct {
	id      int64
	name    string
	city    string
	nameKey *string
	cityKey *string
}

// backfillPlan assigns keys to unkeyed rows in id order. A key already held
// by another contact is left unassigned so the unique index holds.
func backfillPlan(rows []keyRow) (updates []keyRow, duplicates int) {
	claimed := make(map[identity.Key]bool, len(rows))
	for _, r := range rows {
		if r.nameKey != nil && *r.nameKey != "" {
			claimed[storedKey(r.name, r.city, r.nameKey, r.cityKey)] = true
		}
	}
	for _, r := range rows {
		if r.nameKey != nil && *r.nameKey != "" {
			continue
		}
		k := identity.NewKey(r.name, r.city)
		if !k.Valid() {
			continue
		}
		if claimed[k] {
			duplicates++
			continue
		}
		claimed[k] = true
		updates = append(updates, keyRow{id: r.id, name: r.name, city: r.city, nameKey: &k.Name, cityKey: &k.City})
	}
	return updates, duplicates
}

func opContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
