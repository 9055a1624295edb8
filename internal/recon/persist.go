package recon

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/artcrm/artcrm/internal/contact"
	"github.com/artcrm/artcrm/internal/identity"
	"github.com/artcrm/artcrm/internal/model"
	"github.com/artcrm/artcrm/internal/vocab"
)

// persister writes enriched venues as unverified leads. It only inserts.
type persister struct {
	store contact.Store
	voc   *vocab.Vocabulary
	lang  string
	runID string
	now   time.Time
}

// persist writes every candidate in items, recording the outcome on each and
// the tallies on res. It stops early when ctx is cancelled.
func (p *persister) persist(ctx context.Context, items []model.EnrichedCandidate, res *model.RunResult) {
	log := zap.L().With(zap.String("component", "persist"), zap.String("run_id", p.runID))

	for i := range items {
		if ctx.Err() != nil {
			res.AddError(model.ErrKindCancelled, "", "", "persistence interrupted: "+ctx.Err().Error())
			return
		}
		ec := &items[i]
		key := identity.Key{Name: ec.NameKey, City: ec.CityKey}

		existing, err := p.store.FindByKey(ctx, key)
		switch {
		case err == nil:
			p.conflict(ec, existing.ID, res)
			log.Info("persist: contact appeared since snapshot",
				zap.String("name", ec.Name),
				zap.Int64("contact_id", existing.ID),
			)
			continue
		case !errors.Is(err, contact.ErrNotFound):
			p.failed(ec, err, res)
			log.Error("persist: lookup failed", zap.String("name", ec.Name), zap.Error(err))
			continue
		}

		id, inserted, err := p.store.InsertLeadIfAbsent(ctx, p.lead(*ec, key))
		if err != nil {
			p.failed(ec, err, res)
			log.Error("persist: insert failed", zap.String("name", ec.Name), zap.Error(err))
			continue
		}
		if !inserted {
			p.conflict(ec, 0, res)
			log.Info("persist: lost insert race", zap.String("name", ec.Name))
			continue
		}

		ec.Outcome = model.OutcomePersisted
		ec.ContactID = id
		res.PersistedIDs = append(res.PersistedIDs, id)
		if ec.Success || ec.Skipped {
			res.Counts.Persisted++
		} else {
			res.Counts.EnrichmentFailedButPersisted++
		}
		log.Info("persist: lead created",
			zap.String("name", ec.Name),
			zap.String("kind", ec.Kind),
			zap.Int64("contact_id", id),
		)
	}
}

func (p *persister) conflict(ec *model.EnrichedCandidate, id int64, res *model.RunResult) {
	ec.Outcome = model.OutcomePersistConflict
	ec.ContactID = id
	res.Counts.MergedIntoExisting++
	res.AddError(model.ErrKindPersistConflict, "", ec.Name, "contact with the same name and city already exists")
}

func (p *persister) failed(ec *model.EnrichedCandidate, err error, res *model.RunResult) {
	ec.Outcome = model.OutcomePersistFailed
	ec.Error = joinErr(ec.Error, err.Error())
	res.Counts.PersistFailed++
	res.AddError(model.ErrKindPersistFailed, "", ec.Name, err.Error())
}

func (p *persister) lead(ec model.EnrichedCandidate, key identity.Key) contact.Lead {
	l := contact.Lead{
		Name:              ec.Name,
		Kind:              ec.Kind,
		Address:           ec.Address,
		City:              ec.City,
		Country:           ec.Country,
		Website:           ec.Website,
		Phone:             ec.Phone,
		Email:             ec.Email,
		Status:            vocab.StatusLeadUnverified,
		PreferredLanguage: p.lang,
		Notes:             auditNote(ec.Sources, p.now, p.runID),
		Location:          ec.Coordinates,
		Key:               key,
	}
	switch {
	case !ec.Success || ec.Subtype == "":
	case p.voc.IsSubtype(ec.Subtype):
		l.Subtype = ec.Subtype
	default:
		zap.L().Warn("persist: dropping subtype outside vocabulary",
			zap.String("run_id", p.runID),
			zap.String("name", ec.Name),
			zap.String("subtype", ec.Subtype),
		)
	}
	return l
}

// auditNote records where a lead came from.
func auditNote(sources []string, at time.Time, runID string) string {
	return fmt.Sprintf("Auto-discovered via %s on %s (run %s)",
		strings.Join(sources, ", "), at.Format("2006-01-02"), shortID(runID))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func joinErr(prev, next string) string {
	if prev == "" {
		return next
	}
	return prev + "; " + next
}
