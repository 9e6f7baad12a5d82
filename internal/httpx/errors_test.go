package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sundayezeilo/urlappender/internal/errx"
)

func TestErrorKindMapping(t *testing.T) {
	tests := []struct {
		kind       errx.Kind
		wantStatus int
		wantCode   string
	}{
		{errx.NotFound, http.StatusNotFound, "not_found"},
		{errx.Conflict, http.StatusConflict, "conflict"},
		{errx.Invalid, http.StatusBadRequest, "invalid_input"},
		{errx.Unavailable, http.StatusServiceUnavailable, "unavailable"},
		{errx.Internal, http.StatusInternalServerError, "internal_error"},
		{errx.Unknown, http.StatusInternalServerError, "internal_error"},
		{errx.Kind(42), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			if got := ErrorKindToStatus(tt.kind); got != tt.wantStatus {
				t.Errorf("ErrorKindToStatus(%v) = %d, want %d", tt.kind, got, tt.wantStatus)
			}
			if got := ErrorKindToCode(tt.kind); got != tt.wantCode {
				t.Errorf("ErrorKindToCode(%v) = %q, want %q", tt.kind, got, tt.wantCode)
			}
		})
	}
}

func TestWriteKindError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "invalid kind",
			err:        errx.E("links.paginator.GetPage", errx.Invalid, errors.New("bad cursor")),
			wantStatus: http.StatusBadRequest,
			wantCode:   "invalid_input",
		},
		{
			name:       "wrapped conflict",
			err:        errx.Wrap("outer", errx.E("inner", errx.Conflict, errors.New("version"))),
			wantStatus: http.StatusConflict,
			wantCode:   "conflict",
		},
		{
			name:       "plain error",
			err:        errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   "internal_error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			WriteKindError(rr, tt.err, "something happened")

			if rr.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rr.Code, tt.wantStatus)
			}

			var resp ErrorResponse
			if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if resp.Error != tt.wantCode {
				t.Errorf("error code = %q, want %q", resp.Error, tt.wantCode)
			}
			if resp.Message != "something happened" {
				t.Errorf("message = %q", resp.Message)
			}
		})
	}
}
