package links

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"golang.org/x/sync/errgroup"

	"github.com/sundayezeilo/urlappender/internal/errx"
)

// DefaultBatchSize is the largest number of ids read by one batch query.
const DefaultBatchSize = 100

// dbtx is the subset of *pgxpool.Pool used by PostgresStore.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store on a PostgreSQL table.
type PostgresStore struct {
	db        dbtx
	batchSize int
}

// PostgresStoreConfig holds configuration for PostgresStore.
type PostgresStoreConfig struct {
	BatchSize int // ids per batch query (default: 100)
}

// NewPostgresStore returns a Store backed by db.
func NewPostgresStore(db dbtx, config *PostgresStoreConfig) *PostgresStore {
	if config == nil {
		config = &PostgresStoreConfig{}
	}
	batchSize := config.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &PostgresStore{db: db, batchSize: batchSize}
}

const linkColumns = `id, original_url, parameters, decorated_url, created_at, updated_at, version`

const (
	getLinkSQL = `SELECT ` + linkColumns + ` FROM links WHERE id = $1`

	batchGetLinksSQL = `SELECT ` + linkColumns + ` FROM links WHERE id = ANY($1)`

	scanLinksSQL = `SELECT ` + linkColumns + ` FROM links
WHERE updated_at IS NOT NULL AND id > $1
ORDER BY id
LIMIT $2`

	countLinksSQL = `SELECT count(*) FROM links WHERE updated_at IS NOT NULL`

	recencyLinksSQL = `SELECT ` + linkColumns + ` FROM links
WHERE updated_at IS NOT NULL
ORDER BY updated_at DESC, id COLLATE "C" DESC
OFFSET $1
LIMIT $2`

	insertLinkSQL = `INSERT INTO links (` + linkColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (id) DO NOTHING`

	updateLinkSQL = `UPDATE links
SET parameters = $2, decorated_url = $3, updated_at = $4, version = $5
WHERE id = $1 AND version = $6`
)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLink(row rowScanner) (Link, error) {
	var (
		l         Link
		rawParams []byte
		createdAt pgtype.Timestamptz
		updatedAt pgtype.Timestamptz
	)
	if err := row.Scan(&l.ID, &l.OriginalURL, &rawParams, &l.DecoratedURL, &createdAt, &updatedAt, &l.Version); err != nil {
		return Link{}, err
	}
	if err := json.Unmarshal(rawParams, &l.Parameters); err != nil {
		return Link{}, fmt.Errorf("decode parameters of %q: %w", l.ID, err)
	}
	if !createdAt.Valid {
		return Link{}, fmt.Errorf("created_at of %q unexpectedly NULL", l.ID)
	}
	l.CreatedAt = createdAt.Time.UTC()
	if updatedAt.Valid {
		l.UpdatedAt = updatedAt.Time.UTC()
	}
	return l, nil
}

func collectLinks(rows pgx.Rows) ([]Link, error) {
	defer rows.Close()
	var out []Link
	for rows.Next() {
		l, err := scanLink(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// mapStoreError classifies a database error. sentinel is ErrStoreRead or
// ErrStoreWrite and is attached to failures of the store itself.
func mapStoreError(op string, sentinel, err error) error {
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return errx.E(op, errx.NotFound, wrapSentinel(ErrNotFound, err))
	case isUniqueViolation(err):
		return errx.E(op, errx.Conflict, wrapSentinel(ErrWriteConflict, err))
	default:
		return errx.E(op, errx.Unavailable, wrapSentinel(sentinel, err))
	}
}

func (s *PostgresStore) GetByKey(ctx context.Context, id string) (Link, error) {
	const op = "links.store.GetByKey"

	l, err := scanLink(s.db.QueryRow(ctx, getLinkSQL, id))
	if err != nil {
		return Link{}, mapStoreError(op, ErrStoreRead, err)
	}
	return l, nil
}

func (s *PostgresStore) BatchGetByKeys(ctx context.Context, ids []string) ([]Link, error) {
	const op = "links.store.BatchGetByKeys"

	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return nil, nil
	}

	chunks := slices.Collect(slices.Chunk(ids, s.batchSize))
	results := make([][]Link, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	for i, chunk := range chunks {
		g.Go(func() error {
			rows, err := s.db.Query(gctx, batchGetLinksSQL, chunk)
			if err != nil {
				return err
			}
			found, err := collectLinks(rows)
			if err != nil {
				return err
			}
			results[i] = found
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, storeReadError(op, err)
	}

	return slices.Concat(results...), nil
}

func (s *PostgresStore) ScanOrderedPage(ctx context.Context, token string, limit int) (ScanPage, error) {
	const op = "links.store.ScanOrderedPage"

	if limit <= 0 {
		return ScanPage{}, errx.E(op, errx.Invalid, fmt.Errorf("%w: scan limit must be positive", ErrInvalidLimit))
	}

	rows, err := s.db.Query(ctx, scanLinksSQL, token, limit+1)
	if err != nil {
		return ScanPage{}, mapStoreError(op, ErrStoreRead, err)
	}
	found, err := collectLinks(rows)
	if err != nil {
		return ScanPage{}, mapStoreError(op, ErrStoreRead, err)
	}

	page := ScanPage{Links: found}
	if len(found) > limit {
		page.Links = found[:limit]
		page.NextToken = found[limit-1].ID
	}
	sortByUpdatedDesc(page.Links)
	return page, nil
}

func (s *PostgresStore) Count(ctx context.Context) (int64, error) {
	const op = "links.store.Count"

	var n int64
	if err := s.db.QueryRow(ctx, countLinksSQL).Scan(&n); err != nil {
		return 0, mapStoreError(op, ErrStoreRead, err)
	}
	return n, nil
}

func (s *PostgresStore) RecencyWindow(ctx context.Context, offset int64, limit int) (RecencyPage, error) {
	const op = "links.store.RecencyWindow"

	if limit <= 0 || offset < 0 {
		return RecencyPage{}, errx.E(op, errx.Invalid, fmt.Errorf("%w: window needs a positive limit and non-negative offset", ErrInvalidLimit))
	}

	rows, err := s.db.Query(ctx, recencyLinksSQL, offset, limit+1)
	if err != nil {
		return RecencyPage{}, mapStoreError(op, ErrStoreRead, err)
	}
	found, err := collectLinks(rows)
	if err != nil {
		return RecencyPage{}, mapStoreError(op, ErrStoreRead, err)
	}

	page := RecencyPage{Links: found}
	if len(found) > limit {
		page.Links = found[:limit]
		page.More = true
	}
	return page, nil
}

func (s *PostgresStore) Insert(ctx context.Context, l Link) error {
	const op = "links.store.Insert"

	params, err := json.Marshal(l.Parameters)
	if err != nil {
		return errx.E(op, errx.Internal, err)
	}

	tag, err := s.db.Exec(ctx, insertLinkSQL,
		l.ID, l.OriginalURL, string(params), l.DecoratedURL, l.CreatedAt, l.UpdatedAt, l.Version)
	if err != nil {
		return mapStoreError(op, ErrStoreWrite, err)
	}
	if tag.RowsAffected() == 0 {
		return errx.E(op, errx.Conflict, fmt.Errorf("%w: id %q already exists", ErrWriteConflict, l.ID))
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, l Link, expectedVersion int64) error {
	const op = "links.store.Update"

	params, err := json.Marshal(l.Parameters)
	if err != nil {
		return errx.E(op, errx.Internal, err)
	}

	tag, err := s.db.Exec(ctx, updateLinkSQL,
		l.ID, string(params), l.DecoratedURL, l.UpdatedAt, l.Version, expectedVersion)
	if err != nil {
		return mapStoreError(op, ErrStoreWrite, err)
	}
	if tag.RowsAffected() == 0 {
		return errx.E(op, errx.Conflict, fmt.Errorf("%w: %q is no longer at version %d", ErrWriteConflict, l.ID, expectedVersion))
	}
	return nil
}

// sortByUpdatedDesc orders links newest first; equal timestamps keep their
// relative order.
func sortByUpdatedDesc(ls []Link) {
	slices.SortStableFunc(ls, func(a, b Link) int {
		return cmp.Compare(b.UpdatedAt.UnixMilli(), a.UpdatedAt.UnixMilli())
	})
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

var _ Store = (*PostgresStore)(nil)
