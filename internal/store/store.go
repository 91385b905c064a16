// Package store persists normalized business records and deduplicates them
// by (source, source key).
package store

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/sells-group/directory-crawler/internal/db"
	"github.com/sells-group/directory-crawler/internal/model"
)

// Store defines the persistence interface for business records.
type Store interface {
	// Get returns the record stored under (source, key), or nil when absent.
	Get(ctx context.Context, source model.Source, key string) (*model.BusinessRecord, error)
	// Put writes the whole record, inserting or replacing the row that
	// shares its (source, source key).
	Put(ctx context.Context, rec *model.BusinessRecord) error
	Count(ctx context.Context) (int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

const table = "businesses"

// columns is the bind and scan order shared by both backends.
var columns = []string{
	"id", "source", "source_key", "source_id", "source_url",
	"name", "category", "description", "rating", "review_count",
	"phone", "email", "website",
	"address", "city", "state", "postal_code", "country", "latitude", "longitude",
	"hours", "amenities", "images",
	"scraped_at", "updated_at",
}

var conflictKeys = []string{"source", "source_key"}

// updateColumns excludes the identity columns and the first-seen timestamp.
var updateColumns = func() []string {
	skip := map[string]bool{"id": true, "source": true, "source_key": true, "scraped_at": true}
	var out []string
	for _, c := range columns {
		if !skip[c] {
			out = append(out, c)
		}
	}
	return out
}()

// statements holds the generated SQL for one dialect.
type statements struct {
	get, put, count string
}

func mustStatements(d db.Dialect) statements {
	put, err := db.UpsertSQL(db.UpsertConfig{
		Table:        table,
		Columns:      columns,
		ConflictKeys: conflictKeys,
		UpdateCols:   updateColumns,
		Dialect:      d,
	})
	if err != nil {
		panic(err)
	}
	return statements{
		get:   db.SelectSQL(table, columns, conflictKeys, d),
		put:   put,
		count: `SELECT COUNT(*) FROM ` + table,
	}
}

var (
	postgresSQL = mustStatements(db.Postgres)
	sqliteSQL   = mustStatements(db.SQLite)
)

// rowArgs flattens rec into column order.
func rowArgs(rec *model.BusinessRecord) ([]any, error) {
	hours, err := encodeJSON(rec.Hours, len(rec.Hours) == 0)
	if err != nil {
		return nil, eris.Wrap(err, "store: encode hours")
	}
	amenities, err := encodeJSON(rec.Amenities, len(rec.Amenities) == 0)
	if err != nil {
		return nil, eris.Wrap(err, "store: encode amenities")
	}
	images, err := encodeJSON(rec.Images, len(rec.Images) == 0)
	if err != nil {
		return nil, eris.Wrap(err, "store: encode images")
	}
	return []any{
		rec.ID, string(rec.Source), rec.UniqueKey(), rec.SourceID, rec.SourceURL,
		rec.Name, rec.Category, rec.Description, rec.Rating, rec.ReviewCount,
		rec.Phone, rec.Email, rec.Website,
		rec.Address, rec.City, rec.State, rec.PostalCode, rec.Country, rec.Latitude, rec.Longitude,
		hours, amenities, images,
		rec.ScrapedAt, rec.UpdatedAt,
	}, nil
}

func encodeJSON(v any, empty bool) (string, error) {
	if empty {
		return "", nil
	}
	b, err := json.Marshal(v)
	return string(b), err
}

// row is satisfied by pgx.Row and *sql.Row.
type row interface {
	Scan(dest ...any) error
}

func scanRecord(r row) (*model.BusinessRecord, error) {
	var (
		rec                      model.BusinessRecord
		source, sourceKey        string
		rating, lat, lon         sql.NullFloat64
		reviews                  sql.NullInt64
		hours, amenities, images string
	)
	err := r.Scan(
		&rec.ID, &source, &sourceKey, &rec.SourceID, &rec.SourceURL,
		&rec.Name, &rec.Category, &rec.Description, &rating, &reviews,
		&rec.Phone, &rec.Email, &rec.Website,
		&rec.Address, &rec.City, &rec.State, &rec.PostalCode, &rec.Country, &lat, &lon,
		&hours, &amenities, &images,
		&rec.ScrapedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.Source = model.Source(source)
	if rating.Valid {
		rec.Rating = &rating.Float64
	}
	if reviews.Valid {
		n := int(reviews.Int64)
		rec.ReviewCount = &n
	}
	if lat.Valid && lon.Valid {
		rec.Latitude, rec.Longitude = &lat.Float64, &lon.Float64
	}
	if err := decodeJSON(hours, &rec.Hours); err != nil {
		return nil, eris.Wrap(err, "store: decode hours")
	}
	if err := decodeJSON(amenities, &rec.Amenities); err != nil {
		return nil, eris.Wrap(err, "store: decode amenities")
	}
	if err := decodeJSON(images, &rec.Images); err != nil {
		return nil, eris.Wrap(err, "store: decode images")
	}
	rec.ScrapedAt = rec.ScrapedAt.UTC()
	rec.UpdatedAt = rec.UpdatedAt.UTC()
	return &rec, nil
}

func decodeJSON(s string, v any) error {
	if s == "" {
		return nil
	}
	return json.Unmarshal([]byte(s), v)
}
