package links

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sundayezeilo/urlappender/decorate"
	"github.com/sundayezeilo/urlappender/internal/errx"
	"github.com/sundayezeilo/urlappender/internal/events"
	"github.com/sundayezeilo/urlappender/internal/idgen"
)

const DefaultMaxWriteAttempts = 5

// AppendRequest asks for Parameters to be merged into the link stored under
// ID. A link that does not exist yet is created from URL; an empty ID gets
// a generated one.
type AppendRequest struct {
	ID         string
	URL        string
	Parameters decorate.Params
}

// Result is the state of a link after AppendParameters.
type Result struct {
	Link    Link
	Created bool
}

// Service defines the link operations exposed to transports.
type Service interface {
	AppendParameters(ctx context.Context, req AppendRequest) (Result, error)
	ListLinks(ctx context.Context, cursor string, limit int) (Page, error)
}

type service struct {
	store       Store
	cache       Cache
	paginator   *Paginator
	ids         idgen.Generator
	publisher   events.Publisher
	logger      *slog.Logger
	maxAttempts int
	clock       func() time.Time
}

// ServiceConfig holds configuration for the service.
type ServiceConfig struct {
	Paginator        *Paginator // default: NewPaginator(store, cache, nil)
	IDGenerator      idgen.Generator
	Publisher        events.Publisher
	Logger           *slog.Logger
	MaxWriteAttempts int // read-merge-write attempts before giving up (default: 5)
	Clock            func() time.Time
}

// NewService creates a Service writing to store and keeping cache current.
func NewService(store Store, cache Cache, config *ServiceConfig) Service {
	if config == nil {
		config = &ServiceConfig{}
	}
	s := &service{
		store:       store,
		cache:       cache,
		paginator:   config.Paginator,
		ids:         config.IDGenerator,
		publisher:   config.Publisher,
		logger:      config.Logger,
		maxAttempts: config.MaxWriteAttempts,
		clock:       config.Clock,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.paginator == nil {
		s.paginator = NewPaginator(store, cache, &PaginatorConfig{Logger: s.logger})
	}
	if s.ids == nil {
		s.ids = idgen.NewV7()
	}
	if s.publisher == nil {
		s.publisher = events.NopPublisher{}
	}
	if s.maxAttempts <= 0 {
		s.maxAttempts = DefaultMaxWriteAttempts
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	return s
}

func (s *service) AppendParameters(ctx context.Context, req AppendRequest) (Result, error) {
	const op = "links.service.AppendParameters"

	if err := decorate.Validate(req.URL); err != nil {
		return Result{}, errx.E(op, errx.Invalid, err)
	}
	if err := validateParameters(req.Parameters); err != nil {
		return Result{}, errx.E(op, errx.Invalid, err)
	}

	id := strings.TrimSpace(req.ID)
	if id == "" {
		generated, err := s.ids.NewID()
		if err != nil {
			return Result{}, errx.E(op, errx.Internal, err)
		}
		id = generated
	}

	for range s.maxAttempts {
		res, err := s.write(ctx, id, req)
		if err == nil {
			s.publish(ctx, res)
			return res, nil
		}
		if errx.KindOf(err) != errx.Conflict {
			return Result{}, errx.E(op, errx.KindOf(err), err)
		}
		s.logger.DebugContext(ctx, "concurrent write detected, retrying",
			"link_id", id,
			"operation", errx.OpOf(err),
		)
	}

	return Result{}, errx.E(op, errx.Conflict,
		fmt.Errorf("%w: gave up on %q after %d attempts", ErrWriteConflict, id, s.maxAttempts))
}

// write performs one read-merge-write round. A Conflict error means another
// writer got there first and the round may be retried.
func (s *service) write(ctx context.Context, id string, req AppendRequest) (Result, error) {
	current, err := s.store.GetByKey(ctx, id)
	switch {
	case errx.Is(err, errx.NotFound):
		return s.create(ctx, id, req)
	case err != nil:
		return Result{}, err
	}
	return s.update(ctx, current, req)
}

func (s *service) create(ctx context.Context, id string, req AppendRequest) (Result, error) {
	const op = "links.service.create"

	params := req.Parameters.Clone()
	decorated, err := decorate.URL(req.URL, params)
	if err != nil {
		return Result{}, errx.E(op, errx.Invalid, err)
	}

	ts := now(s.clock)
	l := Link{
		ID:           id,
		OriginalURL:  req.URL,
		Parameters:   params,
		DecoratedURL: decorated,
		CreatedAt:    ts,
		UpdatedAt:    ts,
		Version:      1,
	}
	if err := s.store.Insert(ctx, l); err != nil {
		return Result{}, errx.E(op, errx.KindOf(err), err)
	}
	return Result{Link: l, Created: true}, nil
}

func (s *service) update(ctx context.Context, current Link, req AppendRequest) (Result, error) {
	const op = "links.service.update"

	if req.URL != current.OriginalURL {
		s.logger.InfoContext(ctx, "request url differs from stored url, keeping stored url",
			"link_id", current.ID,
			"stored_url", current.OriginalURL,
			"request_url", req.URL,
		)
	}

	params := current.Parameters.Merge(req.Parameters)
	decorated, err := decorate.URL(current.OriginalURL, params)
	if err != nil {
		return Result{}, errx.E(op, errx.Internal, fmt.Errorf("stored url of %q: %w", current.ID, err))
	}

	next := current
	next.Parameters = params
	next.DecoratedURL = decorated
	next.UpdatedAt = nextUpdatedAt(now(s.clock), current.UpdatedAt)
	next.Version = current.Version + 1

	if err := s.store.Update(ctx, next, current.Version); err != nil {
		return Result{}, errx.E(op, errx.KindOf(err), err)
	}

	s.refreshCache(ctx, next)
	return Result{Link: next}, nil
}

// refreshCache updates the cached copy of l if one exists. The store is
// already authoritative, so failures are only logged.
func (s *service) refreshCache(ctx context.Context, l Link) {
	record, err := encodeCached(l)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to encode link for cache", "link_id", l.ID, "error", err.Error())
		return
	}
	written, err := s.cache.ConditionalUpsert(ctx, l.ID, record, scoreOf(l))
	if err != nil {
		s.logger.WarnContext(ctx, "cache update failed",
			"link_id", l.ID,
			"error", err.Error(),
			"error_kind", errx.KindOf(err),
			"operation", errx.OpOf(err),
		)
		return
	}
	if !written {
		s.logger.DebugContext(ctx, "cache update skipped, link not cached or cached copy is newer", "link_id", l.ID)
	}
}

func (s *service) publish(ctx context.Context, res Result) {
	t := events.LinkUpdated
	if res.Created {
		t = events.LinkCreated
	}
	params, err := json.Marshal(res.Link.Parameters)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to encode event parameters", "link_id", res.Link.ID, "error", err.Error())
		return
	}
	err = s.publisher.Publish(ctx, events.Event{
		Type:         t,
		LinkID:       res.Link.ID,
		OriginalURL:  res.Link.OriginalURL,
		DecoratedURL: res.Link.DecoratedURL,
		Parameters:   params,
		Version:      res.Link.Version,
		OccurredAt:   res.Link.UpdatedAt,
	})
	if err != nil {
		s.logger.WarnContext(ctx, "failed to publish link event",
			"link_id", res.Link.ID,
			"event_type", string(t),
			"error", err.Error(),
		)
	}
}

func (s *service) ListLinks(ctx context.Context, cursor string, limit int) (Page, error) {
	const op = "links.service.ListLinks"

	page, err := s.paginator.GetPage(ctx, cursor, limit)
	if err != nil {
		return Page{}, errx.E(op, errx.KindOf(err), err)
	}
	return page, nil
}

func validateParameters(params decorate.Params) error {
	if params.Len() == 0 {
		return fmt.Errorf("%w: at least one parameter is required", ErrInvalidParameters)
	}
	for _, p := range params.All() {
		if strings.TrimSpace(p.Key) == "" {
			return fmt.Errorf("%w: parameter names cannot be blank", ErrInvalidParameters)
		}
		if strings.TrimSpace(p.Value) == "" {
			return fmt.Errorf("%w: value of %q cannot be blank", ErrInvalidParameters, p.Key)
		}
	}
	return nil
}
