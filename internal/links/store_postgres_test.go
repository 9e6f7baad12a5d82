package links

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/sundayezeilo/urlappender/decorate"
	"github.com/sundayezeilo/urlappender/internal/errx"
	"github.com/sundayezeilo/urlappender/internal/links/migrations"
)

/***************
 * Unit tests
 ***************/

// fakeRow feeds fixed values to scanLink.
type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) != len(r.values) {
		return fmt.Errorf("scan: want %d destinations, got %d", len(r.values), len(dest))
	}
	for i, v := range r.values {
		switch d := dest[i].(type) {
		case *string:
			*d = v.(string)
		case *[]byte:
			*d = v.([]byte)
		case *int64:
			*d = v.(int64)
		case *pgtype.Timestamptz:
			*d = v.(pgtype.Timestamptz)
		default:
			return fmt.Errorf("scan: unsupported destination %T", dest[i])
		}
	}
	return nil
}

func TestScanLink(t *testing.T) {
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.FixedZone("CET", 3600))

	t.Run("valid row", func(t *testing.T) {
		row := fakeRow{values: []any{
			"K1", "https://ex.com", []byte(`{"b":"2","a":"1"}`), "https://ex.com?b=2&a=1",
			pgtype.Timestamptz{Time: created, Valid: true},
			pgtype.Timestamptz{Time: created.Add(time.Second), Valid: true},
			int64(3),
		}}

		l, err := scanLink(row)
		require.NoError(t, err)
		assert.Equal(t, "K1", l.ID)
		assert.Equal(t, []string{"b", "a"}, l.Parameters.Keys())
		assert.Equal(t, time.UTC, l.CreatedAt.Location())
		assert.True(t, l.CreatedAt.Equal(created))
		assert.True(t, l.UpdatedAt.Equal(created.Add(time.Second)))
		assert.EqualValues(t, 3, l.Version)
	})

	t.Run("bad parameters", func(t *testing.T) {
		row := fakeRow{values: []any{
			"K1", "https://ex.com", []byte(`[1,2]`), "https://ex.com",
			pgtype.Timestamptz{Time: created, Valid: true},
			pgtype.Timestamptz{Time: created, Valid: true},
			int64(1),
		}}
		_, err := scanLink(row)
		assert.Error(t, err)
	})

	t.Run("null created_at", func(t *testing.T) {
		row := fakeRow{values: []any{
			"K1", "https://ex.com", []byte(`{}`), "https://ex.com",
			pgtype.Timestamptz{},
			pgtype.Timestamptz{Time: created, Valid: true},
			int64(1),
		}}
		_, err := scanLink(row)
		assert.Error(t, err)
	})

	t.Run("scan error", func(t *testing.T) {
		_, err := scanLink(fakeRow{err: pgx.ErrNoRows})
		assert.ErrorIs(t, err, pgx.ErrNoRows)
	})
}

func TestMapStoreError(t *testing.T) {
	tests := []struct {
		name         string
		sentinel     error
		err          error
		wantKind     errx.Kind
		wantSentinel error
	}{
		{
			name:         "no rows",
			sentinel:     ErrStoreRead,
			err:          pgx.ErrNoRows,
			wantKind:     errx.NotFound,
			wantSentinel: ErrNotFound,
		},
		{
			name:         "unique violation",
			sentinel:     ErrStoreWrite,
			err:          &pgconn.PgError{Code: "23505"},
			wantKind:     errx.Conflict,
			wantSentinel: ErrWriteConflict,
		},
		{
			name:         "other pg error on read",
			sentinel:     ErrStoreRead,
			err:          &pgconn.PgError{Code: "57014"},
			wantKind:     errx.Unavailable,
			wantSentinel: ErrStoreRead,
		},
		{
			name:         "connection failure on write",
			sentinel:     ErrStoreWrite,
			err:          errors.New("dial tcp: connection refused"),
			wantKind:     errx.Unavailable,
			wantSentinel: ErrStoreWrite,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := mapStoreError("links.store.Test", tt.sentinel, tt.err)
			assert.Equal(t, tt.wantKind, errx.KindOf(err))
			assert.ErrorIs(t, err, tt.wantSentinel)
			assert.ErrorIs(t, err, tt.err)
			assert.Equal(t, "links.store.Test", errx.OpOf(err))
		})
	}
}

func TestSortByUpdatedDesc(t *testing.T) {
	ls := []Link{
		{ID: "a", UpdatedAt: baseTime},
		{ID: "b", UpdatedAt: baseTime.Add(2 * time.Second)},
		{ID: "c", UpdatedAt: baseTime.Add(time.Second)},
		{ID: "d", UpdatedAt: baseTime.Add(2 * time.Second)},
	}
	sortByUpdatedDesc(ls)
	assert.Equal(t, []string{"b", "d", "c", "a"}, idsOf(ls))
}

func TestUniqueIDs(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, uniqueIDs([]string{"a", "b", "a", "c", "b"}))
	assert.Empty(t, uniqueIDs(nil))
}

func TestPostgresStore_ScanRejectsNonPositiveLimit(t *testing.T) {
	s := NewPostgresStore(nil, nil)
	_, err := s.ScanOrderedPage(context.Background(), "", 0)
	require.Error(t, err)
	assert.Equal(t, errx.Invalid, errx.KindOf(err))
	assert.ErrorIs(t, err, ErrInvalidLimit)
}

func TestPostgresStore_RecencyWindowRejectsBadWindow(t *testing.T) {
	s := NewPostgresStore(nil, nil)
	for _, w := range []struct {
		offset int64
		limit  int
	}{{0, 0}, {-1, 5}} {
		_, err := s.RecencyWindow(context.Background(), w.offset, w.limit)
		require.Error(t, err)
		assert.Equal(t, errx.Invalid, errx.KindOf(err))
	}
}

/***************
 * Integration tests
 ***************/

func setupPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	ctx := context.Background()
	pg, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("links"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		tc.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(context.Background()) })

	dsn, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	mg, err := migrations.New(dsn, discardLogger())
	require.NoError(t, err)
	require.NoError(t, mg.Up())
	require.NoError(t, mg.Close())

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func TestPostgresStore_Integration(t *testing.T) {
	pool := setupPostgres(t)
	store := NewPostgresStore(pool, &PostgresStoreConfig{BatchSize: 2})
	ctx := context.Background()

	ls := testLinks(t, 7)
	for _, l := range ls {
		require.NoError(t, store.Insert(ctx, l))
	}

	t.Run("get", func(t *testing.T) {
		got, err := store.GetByKey(ctx, ls[3].ID)
		require.NoError(t, err)
		assert.Equal(t, ls[3], got)
	})

	t.Run("get missing", func(t *testing.T) {
		_, err := store.GetByKey(ctx, "nope")
		require.Error(t, err)
		assert.Equal(t, errx.NotFound, errx.KindOf(err))
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("duplicate insert", func(t *testing.T) {
		err := store.Insert(ctx, ls[0])
		require.Error(t, err)
		assert.Equal(t, errx.Conflict, errx.KindOf(err))
	})

	t.Run("batch get across chunks", func(t *testing.T) {
		ids := []string{ls[0].ID, ls[1].ID, ls[4].ID, ls[6].ID, "missing", ls[1].ID}
		got, err := store.BatchGetByKeys(ctx, ids)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{ls[0].ID, ls[1].ID, ls[4].ID, ls[6].ID}, idsOf(got))
	})

	t.Run("scan pages through every row", func(t *testing.T) {
		var (
			seen  []string
			token string
		)
		for range 10 {
			page, err := store.ScanOrderedPage(ctx, token, 3)
			require.NoError(t, err)
			require.LessOrEqual(t, len(page.Links), 3)
			for i := 1; i < len(page.Links); i++ {
				assert.False(t, page.Links[i].UpdatedAt.After(page.Links[i-1].UpdatedAt))
			}
			seen = append(seen, idsOf(page.Links)...)
			token = page.NextToken
			if token == "" {
				break
			}
		}
		assert.ElementsMatch(t, idsOf(ls), seen)
	})

	t.Run("count", func(t *testing.T) {
		n, err := store.Count(ctx)
		require.NoError(t, err)
		assert.EqualValues(t, len(ls), n)
	})

	t.Run("recency windows follow index order", func(t *testing.T) {
		ref := newMemStore(ls...)
		for _, w := range []struct {
			offset int64
			limit  int
		}{{0, 3}, {3, 3}, {6, 3}, {0, 7}, {7, 2}} {
			want, err := ref.RecencyWindow(ctx, w.offset, w.limit)
			require.NoError(t, err)
			got, err := store.RecencyWindow(ctx, w.offset, w.limit)
			require.NoError(t, err)

			assert.Equal(t, idsOf(want.Links), idsOf(got.Links), "window %+v", w)
			assert.Equal(t, want.More, got.More, "window %+v", w)
		}
	})

	t.Run("update with version check", func(t *testing.T) {
		cur, err := store.GetByKey(ctx, ls[2].ID)
		require.NoError(t, err)

		next := cur
		next.Parameters = cur.Parameters.Merge(decorate.FromPairs("extra", "1"))
		next.DecoratedURL, err = decorate.URL(cur.OriginalURL, next.Parameters)
		require.NoError(t, err)
		next.UpdatedAt = cur.UpdatedAt.Add(time.Second)
		next.Version = cur.Version + 1

		require.NoError(t, store.Update(ctx, next, cur.Version))

		got, err := store.GetByKey(ctx, ls[2].ID)
		require.NoError(t, err)
		assert.Equal(t, next, got)

		stale := next
		stale.Version = next.Version + 1
		err = store.Update(ctx, stale, cur.Version)
		require.Error(t, err)
		assert.Equal(t, errx.Conflict, errx.KindOf(err))
		assert.ErrorIs(t, err, ErrWriteConflict)
	})
}
