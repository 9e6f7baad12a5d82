package links

import "context"

// Store is the durable system of record for links.
type Store interface {
	// GetByKey returns the link stored under id, or an errx.NotFound error.
	GetByKey(ctx context.Context, id string) (Link, error)
	// BatchGetByKeys returns the links found among ids in no particular
	// order. Missing ids are simply absent; any failed chunk fails the call.
	BatchGetByKeys(ctx context.Context, ids []string) ([]Link, error)
	// ScanOrderedPage returns up to limit links after token, sorted by
	// UpdatedAt descending within the page.
	ScanOrderedPage(ctx context.Context, token string, limit int) (ScanPage, error)
	// Count returns the number of links a scan can return.
	Count(ctx context.Context) (int64, error)
	// RecencyWindow returns up to limit links after skipping offset, newest
	// first with equal UpdatedAt values ordered by id descending. This is the
	// order of the cache index.
	RecencyWindow(ctx context.Context, offset int64, limit int) (RecencyPage, error)
	// Insert stores a new link; an existing id is an errx.Conflict error.
	Insert(ctx context.Context, link Link) error
	// Update overwrites a link if its stored version is still
	// expectedVersion; otherwise it returns an errx.Conflict error.
	Update(ctx context.Context, link Link, expectedVersion int64) error
}
