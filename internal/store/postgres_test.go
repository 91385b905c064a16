package store

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/directory-crawler/internal/model"
	"github.com/sells-group/directory-crawler/internal/resilience"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func anyArgs(n int) []any {
	args := make([]any, n)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

func TestPostgresStore_Get_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(postgresSQL.get)).
		WithArgs("yelp", "missing-biz").
		WillReturnError(pgx.ErrNoRows)

	rec, err := s.Get(context.Background(), model.SourceYelp, "missing-biz")
	require.NoError(t, err)
	assert.Nil(t, rec)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Get_DecodesRow(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	scraped := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	rows := pgxmock.NewRows(columns).AddRow(
		"id-1", "yelp", "joes-plumbing", "joes-plumbing", "https://www.yelp.ca/biz/joes-plumbing",
		"Joe's Plumbing", "plumbing", "", 4.5, int64(12),
		"+15146708700", "", "https://joes.example.com",
		"1 Rue A", "Montréal", "QC", "H3G 1H2", "Canada", 45.5, -73.6,
		`{"mon":[{"open":"08:00","close":"17:00"}],"sun":[]}`, `["free estimates"]`, "",
		scraped, scraped.Add(time.Hour),
	)
	mock.ExpectQuery(regexp.QuoteMeta(postgresSQL.get)).
		WithArgs("yelp", "joes-plumbing").
		WillReturnRows(rows)

	rec, err := s.Get(context.Background(), model.SourceYelp, "joes-plumbing")
	require.NoError(t, err)
	require.NotNil(t, rec)

	assert.Equal(t, "id-1", rec.ID)
	assert.Equal(t, model.SourceYelp, rec.Source)
	assert.Equal(t, "Joe's Plumbing", rec.Name)
	require.NotNil(t, rec.Rating)
	assert.InDelta(t, 4.5, *rec.Rating, 0.001)
	require.NotNil(t, rec.ReviewCount)
	assert.Equal(t, 12, *rec.ReviewCount)
	assert.True(t, rec.HasCoordinates())
	assert.Equal(t, []model.TimeRange{{Open: "08:00", Close: "17:00"}}, rec.Hours[model.Monday])
	_, closedSunday := rec.Hours[model.Sunday]
	assert.True(t, closedSunday)
	assert.Equal(t, []string{"free estimates"}, rec.Amenities)
	assert.Nil(t, rec.Images)
	assert.True(t, rec.ScrapedAt.Equal(scraped))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Put_Upsert(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	rec := &model.BusinessRecord{
		ID:        "id-1",
		Source:    model.SourceYellowPages,
		SourceURL: "https://www.yellowpages.com/austin-tx/mip/volt-co-123",
		Name:      "Volt Co",
		Amenities: []string{"licensed"},
	}
	args := anyArgs(len(columns))
	args[0] = "id-1"
	args[1] = "yellowpages"
	args[2] = "https://www.yellowpages.com/austin-tx/mip/volt-co-123"
	args[21] = `["licensed"]`
	args[22] = ""

	mock.ExpectExec(regexp.QuoteMeta(postgresSQL.put)).
		WithArgs(args...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.Put(context.Background(), rec))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Put_UniqueViolationIsConflict(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO "businesses"`).
		WithArgs(anyArgs(len(columns))...).
		WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key value"})

	err := s.Put(context.Background(), &model.BusinessRecord{Source: model.SourceYelp, SourceID: "x"})
	require.Error(t, err)

	var perr *resilience.PersistenceError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, resilience.PersistenceConflict, perr.Kind)
	assert.Equal(t, "put", perr.Op)
	assert.Equal(t, resilience.KindPersistenceConflict, resilience.KindOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Get_ConnectionLossIsUnavailable(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT`).
		WithArgs("yelp", "k").
		WillReturnError(&pgconn.PgError{Code: "08006", Message: "connection failure"})

	_, err := s.Get(context.Background(), model.SourceYelp, "k")
	assert.Equal(t, resilience.KindPersistenceUnavailable, resilience.KindOf(err))
	assert.True(t, resilience.KindOf(err).JobLevel())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Count(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM businesses`).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(3))

	n, err := s.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS businesses`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClassifyPostgres(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want resilience.PersistenceKind
	}{
		{"unique violation", &pgconn.PgError{Code: "23505"}, resilience.PersistenceConflict},
		{"serialization", &pgconn.PgError{Code: "40001"}, resilience.PersistenceConflict},
		{"deadlock", &pgconn.PgError{Code: "40P01"}, resilience.PersistenceConflict},
		{"too many connections", &pgconn.PgError{Code: "53300"}, resilience.PersistenceUnavailable},
		{"admin shutdown", &pgconn.PgError{Code: "57P01"}, resilience.PersistenceUnavailable},
		{"syntax error", &pgconn.PgError{Code: "42601"}, resilience.PersistencePermanent},
		{"deadline", context.DeadlineExceeded, resilience.PersistenceUnavailable},
		{"plain", errors.New("boom"), resilience.PersistencePermanent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var perr *resilience.PersistenceError
			require.True(t, errors.As(classifyPostgres("op", tt.err), &perr))
			assert.Equal(t, tt.want, perr.Kind)
		})
	}
}

func TestClassifyPostgres_CanceledPassesThrough(t *testing.T) {
	err := classifyPostgres("get", context.Canceled)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, resilience.KindCanceled, resilience.KindOf(err))
}
