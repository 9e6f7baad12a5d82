package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/sundayezeilo/urlappender/internal/errx"
)

// MaxRequestBodySize is the maximum allowed request body size (1MB).
const MaxRequestBodySize = 1 << 20

// DecodeJSON decodes a single JSON value of type T from the request body.
// Unknown fields, trailing data and bodies over MaxRequestBodySize are
// rejected. Every returned error has kind errx.Invalid.
func DecodeJSON[T any](w http.ResponseWriter, r *http.Request) (T, error) {
	const op = "httpx.DecodeJSON"
	var zero T

	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)
	defer func() { _ = r.Body.Close() }()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var v T
	if err := dec.Decode(&v); err != nil {
		return zero, errx.E(op, errx.Invalid, describeDecodeError(err))
	}
	if dec.More() {
		return zero, errx.E(op, errx.Invalid, errors.New("request body contains multiple JSON values"))
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return zero, errx.E(op, errx.Invalid, errors.New("request body contains trailing data"))
	}

	return v, nil
}

func describeDecodeError(err error) error {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	var maxBytesErr *http.MaxBytesError

	switch {
	case errors.As(err, &syntaxErr):
		return fmt.Errorf("malformed JSON at position %d", syntaxErr.Offset)
	case errors.As(err, &typeErr):
		return fmt.Errorf("invalid value for field %q", typeErr.Field)
	case errors.As(err, &maxBytesErr):
		return fmt.Errorf("request body too large (max %d bytes)", MaxRequestBodySize)
	case errors.Is(err, io.EOF):
		return errors.New("request body is empty")
	case errors.Is(err, io.ErrUnexpectedEOF):
		return errors.New("request body ends unexpectedly")
	default:
		return err
	}
}

// QueryInt reads an integer query parameter, returning def when it is absent.
func QueryInt(r *http.Request, name string, def int) (int, error) {
	const op = "httpx.QueryInt"

	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errx.E(op, errx.Invalid, fmt.Errorf("query parameter %q must be an integer", name))
	}
	return n, nil
}
