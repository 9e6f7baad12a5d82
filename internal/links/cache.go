package links

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/sundayezeilo/urlappender/decorate"
)

// Cache is the non-authoritative accelerator tier: a field map from id to
// serialized record plus an index of ids ordered by score (UpdatedAt in Unix
// milliseconds).
type Cache interface {
	// RangeByScore returns up to count ids with score <= maxScore, highest
	// score first, skipping the first offset.
	RangeByScore(ctx context.Context, maxScore float64, offset, count int64) ([]string, error)
	// MultiGetFields returns the records stored under keys. Absent keys are
	// omitted from the result.
	MultiGetFields(ctx context.Context, keys []string) (map[string]string, error)
	// ConditionalUpsert writes record and score only if key already has a
	// record and its indexed score is not newer, atomically. It reports
	// whether the write happened.
	ConditionalUpsert(ctx context.Context, key, record string, score float64) (bool, error)
	// UnconditionalUpsert writes record and score whether or not key exists,
	// unless the indexed score is already newer.
	UnconditionalUpsert(ctx context.Context, key, record string, score float64) error
	// Size returns the number of ids in the index.
	Size(ctx context.Context) (int64, error)
}

// cachedLink is the serialized form of a Link in the cache tier.
type cachedLink struct {
	ID           string          `json:"id"`
	OriginalURL  string          `json:"originalUrl"`
	Parameters   decorate.Params `json:"parameters"`
	DecoratedURL string          `json:"newUrl"`
	CreatedAt    int64           `json:"createdAt"`
	UpdatedAt    int64           `json:"updatedAt"`
	Version      int64           `json:"version"`
}

func encodeCached(l Link) (string, error) {
	b, err := json.Marshal(cachedLink{
		ID:           l.ID,
		OriginalURL:  l.OriginalURL,
		Parameters:   l.Parameters,
		DecoratedURL: l.DecoratedURL,
		CreatedAt:    l.CreatedAt.UnixMilli(),
		UpdatedAt:    l.UpdatedAt.UnixMilli(),
		Version:      l.Version,
	})
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeCached(key, record string) (Link, error) {
	var c cachedLink
	if err := json.Unmarshal([]byte(record), &c); err != nil {
		return Link{}, err
	}
	if c.ID != key {
		return Link{}, errors.New("cached record belongs to another id")
	}
	if c.OriginalURL == "" || c.DecoratedURL == "" {
		return Link{}, errors.New("cached record is incomplete")
	}
	return Link{
		ID:           c.ID,
		OriginalURL:  c.OriginalURL,
		Parameters:   c.Parameters,
		DecoratedURL: c.DecoratedURL,
		CreatedAt:    time.UnixMilli(c.CreatedAt).UTC(),
		UpdatedAt:    time.UnixMilli(c.UpdatedAt).UTC(),
		Version:      c.Version,
	}, nil
}

func scoreOf(l Link) float64 {
	return float64(l.UpdatedAt.UnixMilli())
}
