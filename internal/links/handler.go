package links

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/sundayezeilo/urlappender/decorate"
	"github.com/sundayezeilo/urlappender/internal/errx"
	"github.com/sundayezeilo/urlappender/internal/httpx"
)

const DefaultPageSize = 10

// AppendParametersRequest is the JSON body of POST /api/v1/append-parameters.
type AppendParametersRequest struct {
	ID         string          `json:"id"`
	URL        string          `json:"url"`
	Parameters decorate.Params `json:"parameters"`
}

// AppendParametersResponse is the JSON body returned after a write.
type AppendParametersResponse struct {
	ID          string          `json:"id"`
	OriginalURL string          `json:"originalUrl"`
	Parameters  decorate.Params `json:"parameters"`
	NewURL      string          `json:"newUrl"`
}

// LinkResponse is one entry of a listing.
type LinkResponse struct {
	ID          string          `json:"id"`
	OriginalURL string          `json:"originalUrl"`
	Parameters  decorate.Params `json:"parameters"`
	NewURL      string          `json:"newUrl"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// ListLinksResponse is the JSON body of GET /api/v1/links. Cursor is omitted
// on the last page.
type ListLinksResponse struct {
	Links  []LinkResponse `json:"links"`
	Cursor string         `json:"cursor,omitempty"`
}

// Handler provides HTTP handlers for the link service.
type Handler struct {
	service         Service
	logger          *slog.Logger
	defaultPageSize int
}

// HandlerConfig holds configuration for the handler.
type HandlerConfig struct {
	Service         Service
	Logger          *slog.Logger
	DefaultPageSize int // limit used when the query omits one (default: 10)
}

// NewHandler creates a new Handler instance.
func NewHandler(cfg HandlerConfig) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	pageSize := cfg.DefaultPageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Handler{
		service:         cfg.Service,
		logger:          logger,
		defaultPageSize: pageSize,
	}
}

// AppendParameters handles POST requests merging parameters into a link.
// It answers 201 when the link was created and 200 when it was updated.
func (h *Handler) AppendParameters(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	logger := h.logger.With(
		"request_id", httpx.GetRequestID(ctx),
		"method", r.Method,
		"path", r.URL.Path,
	)

	req, err := httpx.DecodeJSON[AppendParametersRequest](w, r)
	if err != nil {
		logger.WarnContext(ctx, "failed to decode request", "error", err.Error())
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", err.Error(), nil)
		return
	}

	res, err := h.service.AppendParameters(ctx, AppendRequest{
		ID:         req.ID,
		URL:        req.URL,
		Parameters: req.Parameters,
	})
	if err != nil {
		h.handleAppendError(ctx, w, err)
		return
	}

	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}

	logger.InfoContext(ctx, "parameters appended",
		"link_id", res.Link.ID,
		"created", res.Created,
		"version", res.Link.Version,
	)

	httpx.WriteJSON(w, status, AppendParametersResponse{
		ID:          res.Link.ID,
		OriginalURL: res.Link.OriginalURL,
		Parameters:  res.Link.Parameters,
		NewURL:      res.Link.DecoratedURL,
	})
}

// ListLinks handles GET requests for one page of links.
func (h *Handler) ListLinks(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit, err := httpx.QueryInt(r, "limit", h.defaultPageSize)
	if err != nil {
		h.handleListError(ctx, w, errx.E("links.handler.ListLinks", errx.Invalid, wrapSentinel(ErrInvalidLimit, err)))
		return
	}

	page, err := h.service.ListLinks(ctx, r.URL.Query().Get("cursor"), limit)
	if err != nil {
		h.handleListError(ctx, w, err)
		return
	}

	resp := ListLinksResponse{
		Links:  make([]LinkResponse, 0, len(page.Links)),
		Cursor: page.NextCursor(),
	}
	for _, l := range page.Links {
		resp.Links = append(resp.Links, LinkResponse{
			ID:          l.ID,
			OriginalURL: l.OriginalURL,
			Parameters:  l.Parameters,
			NewURL:      l.DecoratedURL,
			CreatedAt:   l.CreatedAt,
			UpdatedAt:   l.UpdatedAt,
		})
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

// handleAppendError handles errors from the AppendParameters service method.
func (h *Handler) handleAppendError(ctx context.Context, w http.ResponseWriter, err error) {
	kind := errx.KindOf(err)

	logAttrs := []any{
		"error", err.Error(),
		"error_kind", kind,
		"operation", errx.OpOf(err),
		"trace", errx.Trace(err),
	}

	switch kind {
	case errx.Invalid:
		h.logger.WarnContext(ctx, "invalid append request", logAttrs...)
		httpx.WriteError(w, http.StatusBadRequest, invalidCode(err), err.Error(), nil)

	case errx.Conflict:
		h.logger.WarnContext(ctx, "link kept changing during append", logAttrs...)
		httpx.WriteError(w, http.StatusConflict, "conflict",
			"The link was modified concurrently. Please try again.", nil)

	default:
		h.logger.ErrorContext(ctx, "failed to append parameters", logAttrs...)
		httpx.WriteError(w, http.StatusInternalServerError, "internal_error",
			"Unable to save this link at this time. Please try again.", nil)
	}
}

// handleListError handles errors from the ListLinks service method.
func (h *Handler) handleListError(ctx context.Context, w http.ResponseWriter, err error) {
	kind := errx.KindOf(err)

	logAttrs := []any{
		"error", err.Error(),
		"error_kind", kind,
		"operation", errx.OpOf(err),
		"trace", errx.Trace(err),
	}

	switch kind {
	case errx.Invalid:
		h.logger.WarnContext(ctx, "invalid list request", logAttrs...)
		httpx.WriteError(w, http.StatusBadRequest, invalidCode(err), err.Error(), nil)

	default:
		h.logger.ErrorContext(ctx, "failed to list links", logAttrs...)
		httpx.WriteError(w, http.StatusInternalServerError, "internal_error",
			"Unable to list links at this time. Please try again.", nil)
	}
}

// invalidCode names the input problem behind an errx.Invalid error.
func invalidCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidURL):
		return "invalid_url"
	case errors.Is(err, ErrInvalidParameters):
		return "invalid_parameters"
	case errors.Is(err, ErrInvalidCursor):
		return "invalid_cursor"
	case errors.Is(err, ErrInvalidLimit):
		return "invalid_limit"
	default:
		return httpx.ErrorKindToCode(errx.Invalid)
	}
}
