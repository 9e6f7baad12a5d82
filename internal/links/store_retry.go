package links

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/sundayezeilo/urlappender/internal/errx"
)

const (
	DefaultRetryAttempts = 3
	DefaultRetryInterval = 100 * time.Millisecond
)

// RetryingStore retries transient failures of another Store with
// exponential backoff. Only errx.Unavailable errors are retried; NotFound,
// Conflict and Invalid are returned on the first attempt.
type RetryingStore struct {
	next     Store
	attempts int
	interval time.Duration
	logger   *slog.Logger
}

// RetryConfig holds configuration for RetryingStore.
type RetryConfig struct {
	Attempts int           // total attempts per call (default: 3)
	Interval time.Duration // delay before the first retry, doubled after each (default: 100ms)
	Logger   *slog.Logger
}

// NewRetryingStore wraps next.
func NewRetryingStore(next Store, config *RetryConfig) *RetryingStore {
	if config == nil {
		config = &RetryConfig{}
	}
	s := &RetryingStore{
		next:     next,
		attempts: config.Attempts,
		interval: config.Interval,
		logger:   config.Logger,
	}
	if s.attempts <= 0 {
		s.attempts = DefaultRetryAttempts
	}
	if s.interval <= 0 {
		s.interval = DefaultRetryInterval
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

func (s *RetryingStore) policy(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = s.interval
	eb.Multiplier = 2
	eb.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(s.attempts-1)), ctx)
}

func withRetry[T any](ctx context.Context, s *RetryingStore, op string, fn func() (T, error)) (T, error) {
	attempt := 0
	v, err := backoff.RetryNotifyWithData(func() (T, error) {
		attempt++
		v, err := fn()
		if err != nil && !errx.Is(err, errx.Unavailable) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, s.policy(ctx), func(err error, wait time.Duration) {
		s.logger.WarnContext(ctx, "store call failed, retrying",
			"operation", op,
			"attempt", attempt,
			"max_attempts", s.attempts,
			"wait_ms", wait.Milliseconds(),
			"error", err.Error(),
		)
	})
	if err != nil && errx.KindOf(err) == errx.Unknown {
		// Context errors surface bare from the backoff loop.
		err = errx.E(op, errx.Unavailable, err)
	}
	return v, err
}

func (s *RetryingStore) GetByKey(ctx context.Context, id string) (Link, error) {
	return withRetry(ctx, s, "links.retry.GetByKey", func() (Link, error) {
		return s.next.GetByKey(ctx, id)
	})
}

func (s *RetryingStore) BatchGetByKeys(ctx context.Context, ids []string) ([]Link, error) {
	return withRetry(ctx, s, "links.retry.BatchGetByKeys", func() ([]Link, error) {
		return s.next.BatchGetByKeys(ctx, ids)
	})
}

func (s *RetryingStore) ScanOrderedPage(ctx context.Context, token string, limit int) (ScanPage, error) {
	return withRetry(ctx, s, "links.retry.ScanOrderedPage", func() (ScanPage, error) {
		return s.next.ScanOrderedPage(ctx, token, limit)
	})
}

func (s *RetryingStore) Count(ctx context.Context) (int64, error) {
	return withRetry(ctx, s, "links.retry.Count", func() (int64, error) {
		return s.next.Count(ctx)
	})
}

func (s *RetryingStore) RecencyWindow(ctx context.Context, offset int64, limit int) (RecencyPage, error) {
	return withRetry(ctx, s, "links.retry.RecencyWindow", func() (RecencyPage, error) {
		return s.next.RecencyWindow(ctx, offset, limit)
	})
}

func (s *RetryingStore) Insert(ctx context.Context, l Link) error {
	_, err := withRetry(ctx, s, "links.retry.Insert", func() (struct{}, error) {
		return struct{}{}, s.next.Insert(ctx, l)
	})
	return err
}

func (s *RetryingStore) Update(ctx context.Context, l Link, expectedVersion int64) error {
	_, err := withRetry(ctx, s, "links.retry.Update", func() (struct{}, error) {
		return struct{}{}, s.next.Update(ctx, l, expectedVersion)
	})
	return err
}

var _ Store = (*RetryingStore)(nil)
