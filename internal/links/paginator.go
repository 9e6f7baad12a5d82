package links

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"golang.org/x/sync/errgroup"

	"github.com/sundayezeilo/urlappender/internal/errx"
)

const (
	DefaultMaxPageSize     = 100
	DefaultMaxScanRounds   = 10
	DefaultFillConcurrency = 8
)

// Paginator serves cursor-paginated listings that span the cache index and
// the backing store.
//
// A listing picks its tier on the first page. When the index holds at least
// as many ids as the store has listable links, the listing walks the index
// by ordinal. Otherwise it walks the store by scan token and fills the cache
// as it goes. A listing never switches tiers, so what other requests write
// into the cache cannot make it skip or repeat a link.
//
// Cache failures degrade to store reads that keep the listing's order; store
// failures fail the page.
type Paginator struct {
	store           Store
	cache           Cache
	logger          *slog.Logger
	maxPageSize     int
	maxScanRounds   int
	fillConcurrency int
}

// PaginatorConfig holds configuration for Paginator.
type PaginatorConfig struct {
	MaxPageSize     int // largest accepted limit (default: 100)
	MaxScanRounds   int // store scans per page before handing back a token (default: 10)
	FillConcurrency int // concurrent cache writes during lazy fill (default: 8)
	Logger          *slog.Logger
}

// NewPaginator creates a Paginator over store and cache.
func NewPaginator(store Store, cache Cache, config *PaginatorConfig) *Paginator {
	if config == nil {
		config = &PaginatorConfig{}
	}
	p := &Paginator{
		store:           store,
		cache:           cache,
		logger:          config.Logger,
		maxPageSize:     config.MaxPageSize,
		maxScanRounds:   config.MaxScanRounds,
		fillConcurrency: config.FillConcurrency,
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	if p.maxPageSize <= 0 {
		p.maxPageSize = DefaultMaxPageSize
	}
	if p.maxScanRounds <= 0 {
		p.maxScanRounds = DefaultMaxScanRounds
	}
	if p.fillConcurrency <= 0 {
		p.fillConcurrency = DefaultFillConcurrency
	}
	return p
}

// MaxPageSize returns the largest limit GetPage accepts.
func (p *Paginator) MaxPageSize() int { return p.maxPageSize }

// GetPage returns up to limit links starting at rawCursor. An empty cursor
// starts a new listing.
func (p *Paginator) GetPage(ctx context.Context, rawCursor string, limit int) (Page, error) {
	const op = "links.paginator.GetPage"

	if limit < 1 || limit > p.maxPageSize {
		return Page{}, errx.E(op, errx.Invalid,
			fmt.Errorf("%w: must be between 1 and %d", ErrInvalidLimit, p.maxPageSize))
	}
	cursor, err := ParseCursor(rawCursor)
	if err != nil {
		return Page{}, errx.E(op, errx.Invalid, err)
	}

	var page Page
	switch {
	case cursor.Kind() == CursorStore:
		page, err = p.storePage(ctx, cursor.Token(), limit)
	case cursor.Ordinal() == 0:
		page, err = p.firstPage(ctx, limit)
	default:
		page, err = p.cachePage(ctx, cursor.Ordinal(), limit)
	}
	if err != nil {
		return Page{}, errx.Wrap(op, err)
	}
	return page, nil
}

// firstPage chooses the tier for a new listing.
func (p *Paginator) firstPage(ctx context.Context, limit int) (Page, error) {
	size, err := p.cache.Size(ctx)
	if err != nil {
		p.cacheFailed(ctx, "cache size unavailable, listing from store", err)
		return p.storePage(ctx, "", limit)
	}
	count, err := p.store.Count(ctx)
	if err != nil {
		return Page{}, err
	}
	if size < count {
		p.logger.DebugContext(ctx, "cache index incomplete, listing from store",
			"index_size", size,
			"store_count", count,
		)
		return p.storePage(ctx, "", limit)
	}
	return p.windowPage(ctx, 0, limit, size)
}

// cachePage continues an index listing at ordinal start.
func (p *Paginator) cachePage(ctx context.Context, start int64, limit int) (Page, error) {
	size, err := p.cache.Size(ctx)
	if err != nil {
		p.cacheFailed(ctx, "cache size unavailable, reading window from store", err)
		return p.recencyPage(ctx, start, limit)
	}
	return p.windowPage(ctx, start, limit, size)
}

// windowPage serves the index window [start, start+limit). The next cursor
// is the following ordinal while the index has more entries.
func (p *Paginator) windowPage(ctx context.Context, start int64, limit int, size int64) (Page, error) {
	if start >= size {
		return Page{}, nil
	}

	keys, err := p.cache.RangeByScore(ctx, math.Inf(1), start, int64(limit))
	if err != nil {
		p.cacheFailed(ctx, "cache range unavailable, reading window from store", err)
		return p.recencyPage(ctx, start, limit)
	}

	links, err := p.resolve(ctx, keys)
	if err != nil {
		return Page{}, err
	}

	page := Page{Links: links}
	if end := start + int64(limit); len(keys) == limit && end < size {
		next := CacheOrdinal(end)
		page.Next = &next
	}
	return page, nil
}

// recencyPage reads an index window from the store, which orders links the
// way the index does.
func (p *Paginator) recencyPage(ctx context.Context, start int64, limit int) (Page, error) {
	w, err := p.store.RecencyWindow(ctx, start, limit)
	if err != nil {
		return Page{}, err
	}
	page := Page{Links: w.Links}
	if w.More {
		next := CacheOrdinal(start + int64(limit))
		page.Next = &next
	}
	return page, nil
}

// resolve returns the links behind keys in key order. Records missing from
// the field map, or unreadable, are read from the store and written back;
// ids that no longer exist in the store are dropped.
func (p *Paginator) resolve(ctx context.Context, keys []string) ([]Link, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	fields, err := p.cache.MultiGetFields(ctx, keys)
	if err != nil {
		p.cacheFailed(ctx, "cache fields unavailable, reading window from store", err)
		fields = nil
	}

	slots := make([]*Link, len(keys))
	var misses []string
	for i, key := range keys {
		record, ok := fields[key]
		if !ok {
			misses = append(misses, key)
			continue
		}
		l, err := decodeCached(key, record)
		if err != nil {
			p.logger.WarnContext(ctx, "discarding unreadable cache record",
				"link_id", key,
				"error", err.Error(),
			)
			misses = append(misses, key)
			continue
		}
		slots[i] = &l
	}

	if len(misses) > 0 {
		found, err := p.store.BatchGetByKeys(ctx, misses)
		if err != nil {
			return nil, err
		}
		byID := make(map[string]Link, len(found))
		for _, l := range found {
			byID[l.ID] = l
		}
		var refill []Link
		for i, key := range keys {
			if slots[i] != nil {
				continue
			}
			if l, ok := byID[key]; ok {
				slots[i] = &l
				refill = append(refill, l)
			}
		}
		p.fill(ctx, refill)
	}

	out := make([]Link, 0, len(keys))
	for _, l := range slots {
		if l != nil {
			out = append(out, *l)
		}
	}
	return out, nil
}

// storePage serves a store listing from token. The next cursor is the scan's
// continuation token.
func (p *Paginator) storePage(ctx context.Context, token string, limit int) (Page, error) {
	links, token, err := p.readStore(ctx, token, limit)
	if err != nil {
		return Page{}, err
	}
	page := Page{Links: links}
	if token != "" {
		next := StoreToken(token)
		page.Next = &next
	}
	return page, nil
}

// readStore scans the store from token until want links have been
// collected, the scan ends, or the round budget is spent. Every link read is
// written to the cache. The returned token is empty once the scan is
// exhausted.
func (p *Paginator) readStore(ctx context.Context, token string, want int) ([]Link, string, error) {
	var out []Link
	for round := 0; round < p.maxScanRounds && want > 0; round++ {
		page, err := p.store.ScanOrderedPage(ctx, token, want)
		if err != nil {
			return nil, "", err
		}
		token = page.NextToken
		p.fill(ctx, page.Links)

		out = append(out, page.Links...)
		want -= len(page.Links)
		if token == "" {
			break
		}
	}
	return out, token, nil
}

// fill writes links into the cache. Failures are logged and dropped.
func (p *Paginator) fill(ctx context.Context, ls []Link) {
	if len(ls) == 0 {
		return
	}
	var g errgroup.Group
	g.SetLimit(p.fillConcurrency)
	for _, l := range ls {
		g.Go(func() error {
			record, err := encodeCached(l)
			if err != nil {
				p.logger.ErrorContext(ctx, "failed to encode link for cache",
					"link_id", l.ID,
					"error", err.Error(),
				)
				return nil
			}
			if err := p.cache.UnconditionalUpsert(ctx, l.ID, record, scoreOf(l)); err != nil {
				p.cacheFailed(ctx, "lazy cache fill failed", err, "link_id", l.ID)
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (p *Paginator) cacheFailed(ctx context.Context, msg string, err error, attrs ...any) {
	attrs = append(attrs,
		"error", err.Error(),
		"error_kind", errx.KindOf(err),
		"operation", errx.OpOf(err),
	)
	p.logger.WarnContext(ctx, msg, attrs...)
}
