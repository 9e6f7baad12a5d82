// Package idgen produces link identifiers for requests that do not carry one.
package idgen

import (
	"fmt"

	"github.com/google/uuid"
)

// Generator returns a new unique identifier. Implementations are safe for
// concurrent use.
type Generator interface {
	NewID() (string, error)
}

// Func adapts a plain function to Generator.
type Func func() (string, error)

func (f Func) NewID() (string, error) { return f() }

// Version selects a UUID variant.
type Version uint8

const (
	V4 Version = 4
	V7 Version = 7
)

/***************
 * UUID v4
 ***************/

type v4Gen struct{}

// NewV4 returns a Generator of random UUIDs.
func NewV4() Generator { return v4Gen{} }

func (v4Gen) NewID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("uuid v4 generation failed: %w", err)
	}
	return id.String(), nil
}

/***************
 * UUID v7
 ***************/

type v7Gen struct {
	maxRetries int
	source     func() (uuid.UUID, error)
}

type V7Option func(*v7Gen)

// WithRetries sets how many extra attempts follow a failed generation.
// Defaults to 1; negative values are ignored.
func WithRetries(n int) V7Option {
	return func(g *v7Gen) {
		if n >= 0 {
			g.maxRetries = n
		}
	}
}

// withSource replaces uuid.NewV7, for tests.
func withSource(src func() (uuid.UUID, error)) V7Option {
	return func(g *v7Gen) { g.source = src }
}

// NewV7 returns a Generator of time-ordered UUIDs, so ids generated later
// sort after earlier ones in the store's key order.
func NewV7(opts ...V7Option) Generator {
	g := &v7Gen{maxRetries: 1, source: uuid.NewV7}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *v7Gen) NewID() (string, error) {
	var last error
	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		id, err := g.source()
		if err == nil {
			return id.String(), nil
		}
		last = err
	}
	return "", fmt.Errorf("uuid v7 generation failed after %d attempts: %w", g.maxRetries+1, last)
}

// New returns a Generator for the requested UUID version; unknown versions
// fall back to V4.
func New(v Version, v7opts ...V7Option) Generator {
	if v == V7 {
		return NewV7(v7opts...)
	}
	return NewV4()
}
