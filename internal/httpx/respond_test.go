package httpx

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
)

func TestWriteJSON(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		data       any
		wantStatus int
		wantJSON   string
	}{
		{
			name:       "created link",
			status:     http.StatusCreated,
			data:       map[string]string{"id": "k1", "newUrl": "https://ex.com?a=1"},
			wantStatus: http.StatusCreated,
			wantJSON:   `{"id":"k1","newUrl":"https://ex.com?a=1"}`,
		},
		{
			name:       "page without cursor",
			status:     http.StatusOK,
			data:       map[string]any{"links": []any{}},
			wantStatus: http.StatusOK,
			wantJSON:   `{"links":[]}`,
		},
		{
			name:       "unencodable value",
			status:     http.StatusOK,
			data:       map[string]any{"bad": make(chan int)},
			wantStatus: http.StatusInternalServerError,
			wantJSON:   `{"error":"internal_error"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()

			WriteJSON(rr, tt.status, tt.data)

			if rr.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
			if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q", ct)
			}

			var got, want any
			if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
				t.Fatalf("failed to unmarshal response: %v", err)
			}
			if err := json.Unmarshal([]byte(tt.wantJSON), &want); err != nil {
				t.Fatalf("failed to unmarshal expected JSON: %v", err)
			}
			gotJSON, _ := json.Marshal(got)
			wantJSON, _ := json.Marshal(want)
			if string(gotJSON) != string(wantJSON) {
				t.Errorf("body = %s, want %s", gotJSON, wantJSON)
			}
		})
	}
}

func TestWriteJSON_SetsContentLength(t *testing.T) {
	rr := httptest.NewRecorder()
	WriteJSON(rr, http.StatusOK, map[string]int{"n": 1})

	if got := rr.Header().Get("Content-Length"); got != strconv.Itoa(rr.Body.Len()) {
		t.Errorf("Content-Length = %q, body is %d bytes", got, rr.Body.Len())
	}
}

func TestWriteError(t *testing.T) {
	rr := httptest.NewRecorder()

	WriteError(rr, http.StatusBadRequest, "invalid_input", "limit must be positive", map[string]string{"field": "limit"})

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusBadRequest)
	}

	var resp ErrorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	if resp.Error != "invalid_input" {
		t.Errorf("Error = %q", resp.Error)
	}
	if resp.Message != "limit must be positive" {
		t.Errorf("Message = %q", resp.Message)
	}
	details, ok := resp.Details.(map[string]any)
	if !ok || details["field"] != "limit" {
		t.Errorf("Details = %#v", resp.Details)
	}
}

func TestWriteError_OmitsEmptyFields(t *testing.T) {
	rr := httptest.NewRecorder()
	WriteError(rr, http.StatusConflict, "conflict", "", nil)

	var raw map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &raw); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	if _, ok := raw["message"]; ok {
		t.Error("message should be omitted when empty")
	}
	if _, ok := raw["details"]; ok {
		t.Error("details should be omitted when nil")
	}
}
