package store

import (
	"context"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/directory-crawler/internal/model"
	"github.com/sells-group/directory-crawler/internal/resilience"
)

// Outcome reports what an upsert did to the stored row.
type Outcome int

const (
	// Inserted means no row existed for the key.
	Inserted Outcome = iota + 1
	// Merged means an existing row gained or refreshed at least one field.
	Merged
	// Unchanged means an existing row already held everything new had.
	Unchanged
)

func (o Outcome) String() string {
	switch o {
	case Inserted:
		return "inserted"
	case Merged:
		return "merged"
	case Unchanged:
		return "unchanged"
	default:
		return "unknown"
	}
}

// Upserter deduplicates records by (source, unique key) on top of a Store,
// serializing work per key so concurrent workers never race on one row.
type Upserter struct {
	store Store
	locks *KeyLocks
	now   func() time.Time
}

// NewUpserter wraps s with an in-process key lock table.
func NewUpserter(s Store) *Upserter {
	return &Upserter{
		store: s,
		locks: NewKeyLocks(),
		now:   func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
	}
}

// Upsert inserts rec or merges it into the row already stored under its key.
// Store errors are returned as the store classified them.
func (u *Upserter) Upsert(ctx context.Context, rec model.BusinessRecord) (Outcome, error) {
	key := rec.UniqueKey()
	if rec.Source == "" || key == "" {
		return 0, &resilience.PersistenceError{
			Kind: resilience.PersistencePermanent,
			Op:   "upsert",
			Err:  eris.New("record has no source or unique key"),
		}
	}

	unlock := u.locks.Lock(rec.LockKey())
	defer unlock()

	existing, err := u.store.Get(ctx, rec.Source, key)
	if err != nil {
		return 0, err
	}

	now := u.now()
	if existing == nil {
		rec.ID = uuid.NewString()
		rec.ScrapedAt = now
		rec.UpdatedAt = now
		if err := u.store.Put(ctx, &rec); err != nil {
			return 0, err
		}
		return Inserted, nil
	}

	merged, changed := Merge(*existing, rec)
	if !changed {
		return Unchanged, nil
	}
	merged.UpdatedAt = now
	if merged.UpdatedAt.Before(merged.ScrapedAt) {
		merged.UpdatedAt = merged.ScrapedAt
	}
	if err := u.store.Put(ctx, &merged); err != nil {
		return 0, err
	}
	zap.L().Debug("store: merged record",
		zap.String("source", rec.Source.String()),
		zap.String("key", key),
		zap.String("id", merged.ID),
	)
	return Merged, nil
}

// Merge folds incoming into existing. Empty incoming values never clear a
// stored field. Text fields and rich sets fill only when the stored value is
// empty; rating, review count and hours always take a fresh non-empty value.
// Identity and first-seen time stay with existing.
func Merge(existing, incoming model.BusinessRecord) (model.BusinessRecord, bool) {
	out := existing
	changed := false

	fill := func(dst *string, src string) {
		if *dst == "" && src != "" {
			*dst = src
			changed = true
		}
	}
	fill(&out.SourceID, incoming.SourceID)
	fill(&out.SourceURL, incoming.SourceURL)
	fill(&out.Name, incoming.Name)
	fill(&out.Category, incoming.Category)
	fill(&out.Description, incoming.Description)
	fill(&out.Phone, incoming.Phone)
	fill(&out.Email, incoming.Email)
	fill(&out.Website, incoming.Website)
	fill(&out.Address, incoming.Address)
	fill(&out.City, incoming.City)
	fill(&out.State, incoming.State)
	fill(&out.PostalCode, incoming.PostalCode)
	fill(&out.Country, incoming.Country)

	if incoming.Rating != nil && (out.Rating == nil || *out.Rating != *incoming.Rating) {
		v := *incoming.Rating
		out.Rating = &v
		changed = true
	}
	if incoming.ReviewCount != nil && (out.ReviewCount == nil || *out.ReviewCount != *incoming.ReviewCount) {
		v := *incoming.ReviewCount
		out.ReviewCount = &v
		changed = true
	}
	if len(incoming.Hours) > 0 && !out.Hours.Equal(incoming.Hours) {
		out.Hours = incoming.Hours
		changed = true
	}

	if !out.HasCoordinates() && incoming.HasCoordinates() {
		lat, lon := *incoming.Latitude, *incoming.Longitude
		out.Latitude, out.Longitude = &lat, &lon
		changed = true
	}
	if len(out.Amenities) == 0 && len(incoming.Amenities) > 0 {
		out.Amenities = slices.Clone(incoming.Amenities)
		changed = true
	}
	if len(out.Images) == 0 && len(incoming.Images) > 0 {
		out.Images = slices.Clone(incoming.Images)
		changed = true
	}
	return out, changed
}
