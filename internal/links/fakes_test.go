package links

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/sundayezeilo/urlappender/decorate"
	"github.com/sundayezeilo/urlappender/internal/errx"
	"github.com/sundayezeilo/urlappender/internal/events"
)

/***************
 * In-memory store
 ***************/

// memStore is a Store over a map. Hooks run before the default behaviour
// and short-circuit it when they return an error.
type memStore struct {
	mu    sync.Mutex
	links map[string]Link

	getHook    func(id string) error
	insertHook func(l Link) error
	updateHook func(l Link, expected int64) error
	scanHook   func(token string, limit int) error
	batchHook  func(ids []string) error
	countHook  func() error

	// scanCap, when positive, caps the links one scan returns, like a native
	// scan that filters after reading.
	scanCap int

	scans   int
	batches int
	windows int
}

func newMemStore(ls ...Link) *memStore {
	s := &memStore{links: make(map[string]Link)}
	for _, l := range ls {
		s.links[l.ID] = l
	}
	return s
}

func (s *memStore) GetByKey(_ context.Context, id string) (Link, error) {
	if s.getHook != nil {
		if err := s.getHook(id); err != nil {
			return Link{}, err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.links[id]
	if !ok {
		return Link{}, errx.E("mem.GetByKey", errx.NotFound, ErrNotFound)
	}
	return l, nil
}

func (s *memStore) BatchGetByKeys(_ context.Context, ids []string) ([]Link, error) {
	s.mu.Lock()
	s.batches++
	s.mu.Unlock()
	if s.batchHook != nil {
		if err := s.batchHook(ids); err != nil {
			return nil, err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Link
	for _, id := range uniqueIDs(ids) {
		if l, ok := s.links[id]; ok {
			out = append(out, l)
		}
	}
	return out, nil
}

func (s *memStore) ScanOrderedPage(_ context.Context, token string, limit int) (ScanPage, error) {
	s.mu.Lock()
	s.scans++
	s.mu.Unlock()
	if s.scanHook != nil {
		if err := s.scanHook(token, limit); err != nil {
			return ScanPage{}, err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.links))
	for id := range s.links {
		if id > token {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)

	if s.scanCap > 0 && limit > s.scanCap {
		limit = s.scanCap
	}
	var page ScanPage
	if len(ids) > limit {
		ids = ids[:limit]
		page.NextToken = ids[limit-1]
	}
	for _, id := range ids {
		page.Links = append(page.Links, s.links[id])
	}
	sortByUpdatedDesc(page.Links)
	return page, nil
}

func (s *memStore) Count(context.Context) (int64, error) {
	if s.countHook != nil {
		if err := s.countHook(); err != nil {
			return 0, err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.links)), nil
}

func (s *memStore) RecencyWindow(_ context.Context, offset int64, limit int) (RecencyPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.windows++

	ls := make([]Link, 0, len(s.links))
	for _, l := range s.links {
		ls = append(ls, l)
	}
	slices.SortFunc(ls, func(a, b Link) int {
		if r := cmp.Compare(b.UpdatedAt.UnixMilli(), a.UpdatedAt.UnixMilli()); r != 0 {
			return r
		}
		return cmp.Compare(b.ID, a.ID)
	})

	var page RecencyPage
	if offset >= int64(len(ls)) {
		return page, nil
	}
	ls = ls[offset:]
	if len(ls) > limit {
		ls = ls[:limit]
		page.More = true
	}
	page.Links = ls
	return page, nil
}

func (s *memStore) Insert(_ context.Context, l Link) error {
	if s.insertHook != nil {
		if err := s.insertHook(l); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.links[l.ID]; ok {
		return errx.E("mem.Insert", errx.Conflict, ErrWriteConflict)
	}
	s.links[l.ID] = l
	return nil
}

func (s *memStore) Update(_ context.Context, l Link, expected int64) error {
	if s.updateHook != nil {
		if err := s.updateHook(l, expected); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.links[l.ID]
	if !ok || cur.Version != expected {
		return errx.E("mem.Update", errx.Conflict, ErrWriteConflict)
	}
	s.links[l.ID] = l
	return nil
}

func (s *memStore) get(id string) Link {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.links[id]
}

/***************
 * In-memory cache
 ***************/

// memCache mimics the Redis hash plus sorted set, including the reverse
// lexicographic order Redis uses for equal scores.
type memCache struct {
	mu     sync.Mutex
	fields map[string]string
	scores map[string]float64

	// err, when set, fails every operation.
	err error
	// upsertErr fails only the two upsert operations.
	upsertErr error
	// failures counts upcoming calls to fail, per operation name.
	failures map[string]int
}

func newMemCache() *memCache {
	return &memCache{
		fields:   make(map[string]string),
		scores:   make(map[string]float64),
		failures: make(map[string]int),
	}
}

// failNext makes the next n calls of operation fail. Operations are named
// by their method: "Size", "RangeByScore", "MultiGetFields".
func (c *memCache) failNext(operation string, n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures[operation] += n
}

// failing reports the error for a call of operation. c.mu must be held.
func (c *memCache) failing(operation string) error {
	if c.err != nil {
		return c.err
	}
	if c.failures[operation] > 0 {
		c.failures[operation]--
		return errx.E("mem."+operation, errx.Unavailable, ErrCache)
	}
	return nil
}

// put caches l as the store would after a lazy fill.
func (c *memCache) put(t *testing.T, l Link) {
	t.Helper()
	record, err := encodeCached(l)
	if err != nil {
		t.Fatalf("encodeCached() error = %v", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fields[l.ID] = record
	c.scores[l.ID] = scoreOf(l)
}

// dropField removes the record of id while keeping its index entry.
func (c *memCache) dropField(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.fields, id)
}

func (c *memCache) field(id string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, ok := c.fields[id]
	return f, ok
}

func (c *memCache) RangeByScore(_ context.Context, maxScore float64, offset, count int64) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.failing("RangeByScore"); err != nil {
		return nil, err
	}
	var ids []string
	for id, s := range c.scores {
		if s <= maxScore {
			ids = append(ids, id)
		}
	}
	slices.SortFunc(ids, func(a, b string) int {
		if r := cmp.Compare(c.scores[b], c.scores[a]); r != 0 {
			return r
		}
		return cmp.Compare(b, a)
	})
	if offset >= int64(len(ids)) {
		return nil, nil
	}
	ids = ids[offset:]
	if count < int64(len(ids)) {
		ids = ids[:count]
	}
	return ids, nil
}

func (c *memCache) MultiGetFields(_ context.Context, keys []string) (map[string]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.failing("MultiGetFields"); err != nil {
		return nil, err
	}
	out := make(map[string]string)
	for _, k := range keys {
		if f, ok := c.fields[k]; ok {
			out[k] = f
		}
	}
	return out, nil
}

func (c *memCache) ConditionalUpsert(_ context.Context, key, record string, score float64) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return false, c.err
	}
	if c.upsertErr != nil {
		return false, c.upsertErr
	}
	if _, ok := c.fields[key]; !ok {
		return false, nil
	}
	if cur, ok := c.scores[key]; ok && cur > score {
		return false, nil
	}
	c.fields[key] = record
	c.scores[key] = score
	return true, nil
}

func (c *memCache) UnconditionalUpsert(_ context.Context, key, record string, score float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	if c.upsertErr != nil {
		return c.upsertErr
	}
	if cur, ok := c.scores[key]; ok && cur > score {
		return nil
	}
	c.fields[key] = record
	c.scores[key] = score
	return nil
}

func (c *memCache) Size(context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.failing("Size"); err != nil {
		return 0, err
	}
	return int64(len(c.scores)), nil
}

/***************
 * Mocks
 ***************/

type mockPublisher struct {
	mu         sync.Mutex
	published  []events.Event
	publishErr error
}

func (m *mockPublisher) Publish(_ context.Context, e events.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.publishErr != nil {
		return m.publishErr
	}
	m.published = append(m.published, e)
	return nil
}

func (m *mockPublisher) Close() error { return nil }

func (m *mockPublisher) sent() []events.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.published)
}

/***************
 * Fixtures
 ***************/

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// testLinks returns n stored links with distinct ids and UpdatedAt values
// that do not follow id order.
func testLinks(t *testing.T, n int) []Link {
	t.Helper()
	out := make([]Link, n)
	for i := range n {
		params := decorate.FromPairs("n", fmt.Sprint(i))
		original := fmt.Sprintf("https://example.com/%d", i)
		decorated, err := decorate.URL(original, params)
		if err != nil {
			t.Fatalf("decorate.URL() error = %v", err)
		}
		created := baseTime.Add(time.Duration((i*7)%n) * time.Minute)
		out[i] = Link{
			ID:           fmt.Sprintf("link-%03d", i),
			OriginalURL:  original,
			Parameters:   params,
			DecoratedURL: decorated,
			CreatedAt:    created,
			UpdatedAt:    created.Add(time.Duration(i) * time.Second),
			Version:      1,
		}
	}
	return out
}

func unavailable(op string) error {
	return errx.E(op, errx.Unavailable, errors.New("connection refused"))
}
