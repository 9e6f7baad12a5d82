package links

import (
	"errors"
	"fmt"

	"github.com/sundayezeilo/urlappender/decorate"
	"github.com/sundayezeilo/urlappender/internal/errx"
)

var (
	// ErrInvalidURL reports a URL that cannot be decorated.
	ErrInvalidURL = decorate.ErrInvalidURL
	// ErrInvalidParameters reports an empty parameter set or a blank key or value.
	ErrInvalidParameters = errors.New("invalid parameters")
	// ErrInvalidCursor reports a pagination cursor that cannot be decoded.
	ErrInvalidCursor = errors.New("invalid cursor")
	// ErrInvalidLimit reports a page size outside the accepted range.
	ErrInvalidLimit = errors.New("invalid limit")

	ErrNotFound      = errors.New("link not found")
	ErrStoreRead     = errors.New("backing store read failed")
	ErrStoreWrite    = errors.New("backing store write failed")
	ErrCache         = errors.New("cache operation failed")
	ErrWriteConflict = errors.New("link was modified concurrently")
)

// wrapSentinel keeps both the sentinel and the cause reachable by errors.Is.
func wrapSentinel(sentinel, cause error) error {
	return fmt.Errorf("%w: %w", sentinel, cause)
}

func storeReadError(op string, err error) error {
	return errx.E(op, errx.Unavailable, wrapSentinel(ErrStoreRead, err))
}

func cacheError(op string, err error) error {
	return errx.E(op, errx.Unavailable, wrapSentinel(ErrCache, err))
}
