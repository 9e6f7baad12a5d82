package idgen

import (
	"crypto/rand"
	"errors"
	"fmt"
)

const base62Chars = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// DefaultBase62Length gives roughly 59 bits of entropy.
const DefaultBase62Length = 10

/***************
 * Base62
 ***************/

type base62Gen struct {
	length int
}

// NewBase62 returns a Generator of random base62 ids of the given length.
// It is safe for concurrent use.
func NewBase62(length int) (Generator, error) {
	if length <= 0 {
		return nil, errors.New("length must be positive")
	}
	return base62Gen{length: length}, nil
}

func (g base62Gen) NewID() (string, error) {
	b := make([]byte, g.length)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("base62 generation failed: %w", err)
	}

	for i := range b {
		b[i] = base62Chars[int(b[i])%len(base62Chars)]
	}

	return string(b), nil
}

/***************
 * Format selection
 ***************/

// Format names an id scheme in configuration.
type Format string

const (
	FormatUUIDv7 Format = "uuidv7"
	FormatUUIDv4 Format = "uuidv4"
	FormatBase62 Format = "base62"
)

// FromFormat returns the Generator for f. length only applies to base62 and
// defaults to DefaultBase62Length when not positive.
func FromFormat(f Format, length int) (Generator, error) {
	switch f {
	case FormatUUIDv7, "":
		return NewV7(), nil
	case FormatUUIDv4:
		return NewV4(), nil
	case FormatBase62:
		if length <= 0 {
			length = DefaultBase62Length
		}
		return NewBase62(length)
	default:
		return nil, fmt.Errorf("unknown id format %q (must be one of: %s, %s, %s)", f, FormatUUIDv7, FormatUUIDv4, FormatBase62)
	}
}
