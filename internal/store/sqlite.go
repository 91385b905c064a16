package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/rotisserie/eris"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/sells-group/directory-crawler/internal/model"
	"github.com/sells-group/directory-crawler/internal/resilience"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
// All access goes through a single connection so the pragmas apply to every
// statement.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS businesses (
	id           TEXT PRIMARY KEY,
	source       TEXT NOT NULL,
	source_key   TEXT NOT NULL,
	source_id    TEXT NOT NULL DEFAULT '',
	source_url   TEXT NOT NULL DEFAULT '',
	name         TEXT NOT NULL DEFAULT '',
	category     TEXT NOT NULL DEFAULT '',
	description  TEXT NOT NULL DEFAULT '',
	rating       REAL,
	review_count INTEGER,
	phone        TEXT NOT NULL DEFAULT '',
	email        TEXT NOT NULL DEFAULT '',
	website      TEXT NOT NULL DEFAULT '',
	address      TEXT NOT NULL DEFAULT '',
	city         TEXT NOT NULL DEFAULT '',
	state        TEXT NOT NULL DEFAULT '',
	postal_code  TEXT NOT NULL DEFAULT '',
	country      TEXT NOT NULL DEFAULT '',
	latitude     REAL,
	longitude    REAL,
	hours        TEXT NOT NULL DEFAULT '',
	amenities    TEXT NOT NULL DEFAULT '',
	images       TEXT NOT NULL DEFAULT '',
	is_active    INTEGER NOT NULL DEFAULT 1,
	scraped_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (source, source_key)
);

CREATE INDEX IF NOT EXISTS idx_businesses_name ON businesses(name);
CREATE INDEX IF NOT EXISTS idx_businesses_city_state ON businesses(city, state);
CREATE INDEX IF NOT EXISTS idx_businesses_phone ON businesses(phone);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteMigration); err != nil {
		return classifySQLite("migrate", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Get(ctx context.Context, source model.Source, key string) (*model.BusinessRecord, error) {
	rec, err := scanRecord(s.db.QueryRowContext(ctx, sqliteSQL.get, string(source), key))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, classifySQLite("get", err)
	}
	return rec, nil
}

func (s *SQLiteStore) Put(ctx context.Context, rec *model.BusinessRecord) error {
	args, err := rowArgs(rec)
	if err != nil {
		return &resilience.PersistenceError{Kind: resilience.PersistencePermanent, Op: "put", Err: err}
	}
	if _, err := s.db.ExecContext(ctx, sqliteSQL.put, args...); err != nil {
		return classifySQLite("put", err)
	}
	return nil
}

func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, sqliteSQL.count).Scan(&n); err != nil {
		return 0, classifySQLite("count", err)
	}
	return n, nil
}

// classifySQLite maps driver result codes onto the persistence taxonomy.
func classifySQLite(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	kind := resilience.PersistencePermanent

	var sqlErr *sqlite.Error
	switch {
	case errors.As(err, &sqlErr):
		switch sqlErr.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED, sqlite3.SQLITE_CONSTRAINT:
			kind = resilience.PersistenceConflict
			if sqlErr.Code() == sqlite3.SQLITE_CONSTRAINT_NOTNULL || sqlErr.Code() == sqlite3.SQLITE_CONSTRAINT_CHECK {
				kind = resilience.PersistencePermanent
			}
		case sqlite3.SQLITE_CANTOPEN, sqlite3.SQLITE_IOERR, sqlite3.SQLITE_FULL, sqlite3.SQLITE_READONLY:
			kind = resilience.PersistenceUnavailable
		}
	case errors.Is(err, sql.ErrConnDone), errors.Is(err, context.DeadlineExceeded):
		kind = resilience.PersistenceUnavailable
	}
	return &resilience.PersistenceError{Kind: kind, Op: op, Err: err}
}
