package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/directory-crawler/internal/db"
	"github.com/sells-group/directory-crawler/internal/model"
	"github.com/sells-group/directory-crawler/internal/resilience"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = min(minConns, maxConns)
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS businesses (
	id           TEXT PRIMARY KEY,
	source       TEXT NOT NULL,
	source_key   TEXT NOT NULL,
	source_id    TEXT NOT NULL DEFAULT '',
	source_url   TEXT NOT NULL DEFAULT '',
	name         TEXT NOT NULL DEFAULT '',
	category     TEXT NOT NULL DEFAULT '',
	description  TEXT NOT NULL DEFAULT '',
	rating       DOUBLE PRECISION,
	review_count INTEGER,
	phone        TEXT NOT NULL DEFAULT '',
	email        TEXT NOT NULL DEFAULT '',
	website      TEXT NOT NULL DEFAULT '',
	address      TEXT NOT NULL DEFAULT '',
	city         TEXT NOT NULL DEFAULT '',
	state        TEXT NOT NULL DEFAULT '',
	postal_code  TEXT NOT NULL DEFAULT '',
	country      TEXT NOT NULL DEFAULT '',
	latitude     DOUBLE PRECISION,
	longitude    DOUBLE PRECISION,
	hours        TEXT NOT NULL DEFAULT '',
	amenities    TEXT NOT NULL DEFAULT '',
	images       TEXT NOT NULL DEFAULT '',
	is_active    BOOLEAN NOT NULL DEFAULT TRUE,
	scraped_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (source, source_key)
);

CREATE INDEX IF NOT EXISTS idx_businesses_name ON businesses(name);
CREATE INDEX IF NOT EXISTS idx_businesses_city_state ON businesses(city, state);
CREATE INDEX IF NOT EXISTS idx_businesses_phone ON businesses(phone);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresMigration); err != nil {
		return classifyPostgres("migrate", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, source model.Source, key string) (*model.BusinessRecord, error) {
	rec, err := scanRecord(s.pool.QueryRow(ctx, postgresSQL.get, string(source), key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, classifyPostgres("get", err)
	}
	return rec, nil
}

func (s *PostgresStore) Put(ctx context.Context, rec *model.BusinessRecord) error {
	args, err := rowArgs(rec)
	if err != nil {
		return &resilience.PersistenceError{Kind: resilience.PersistencePermanent, Op: "put", Err: err}
	}
	if _, err := s.pool.Exec(ctx, postgresSQL.put, args...); err != nil {
		return classifyPostgres("put", err)
	}
	return nil
}

func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, postgresSQL.count).Scan(&n); err != nil {
		return 0, classifyPostgres("count", err)
	}
	return n, nil
}

// classifyPostgres maps a pgx error onto the persistence taxonomy. Context
// errors pass through unclassified so cancellation is reported as such.
func classifyPostgres(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	kind := resilience.PersistencePermanent

	var pgErr *pgconn.PgError
	var connErr *pgconn.ConnectError
	switch {
	case errors.As(err, &pgErr):
		switch {
		case pgErr.Code == "23505", pgErr.Code == "40001", pgErr.Code == "40P01", pgErr.Code == "55P03":
			// unique_violation, serialization_failure, deadlock_detected, lock_not_available
			kind = resilience.PersistenceConflict
		case len(pgErr.Code) == 5 && (pgErr.Code[:2] == "08" || pgErr.Code[:2] == "53" || pgErr.Code[:2] == "57"):
			// connection exception, insufficient resources, operator intervention
			kind = resilience.PersistenceUnavailable
		}
	case errors.As(err, &connErr),
		errors.Is(err, context.DeadlineExceeded),
		pgconn.Timeout(err),
		pgconn.SafeToRetry(err),
		resilience.IsTransient(err):
		kind = resilience.PersistenceUnavailable
	}
	return &resilience.PersistenceError{Kind: kind, Op: op, Err: err}
}
