package httpx

import (
	"net/http"

	"github.com/sundayezeilo/urlappender/internal/errx"
)

type kindMapping struct {
	status int
	code   string
}

var kindMappings = map[errx.Kind]kindMapping{
	errx.NotFound:    {http.StatusNotFound, "not_found"},
	errx.Conflict:    {http.StatusConflict, "conflict"},
	errx.Invalid:     {http.StatusBadRequest, "invalid_input"},
	errx.Unavailable: {http.StatusServiceUnavailable, "unavailable"},
	errx.Internal:    {http.StatusInternalServerError, "internal_error"},
}

var fallbackMapping = kindMapping{http.StatusInternalServerError, "internal_error"}

// ErrorKindToStatus maps errx.Kind to HTTP status codes.
func ErrorKindToStatus(kind errx.Kind) int {
	if m, ok := kindMappings[kind]; ok {
		return m.status
	}
	return fallbackMapping.status
}

// ErrorKindToCode maps errx.Kind to the "error" field of ErrorResponse.
func ErrorKindToCode(kind errx.Kind) string {
	if m, ok := kindMappings[kind]; ok {
		return m.code
	}
	return fallbackMapping.code
}

// WriteKindError writes the error envelope for err using the status and code
// of its errx kind. message is what the client sees; err itself is not exposed.
func WriteKindError(w http.ResponseWriter, err error, message string) {
	kind := errx.KindOf(err)
	WriteError(w, ErrorKindToStatus(kind), ErrorKindToCode(kind), message, nil)
}
