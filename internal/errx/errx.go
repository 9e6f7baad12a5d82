// Package errx attaches an operation name and a kind to errors so that the
// HTTP layer can pick a status code without knowing where an error came from.
package errx

import (
	"errors"
	"fmt"
	"strings"
)

type Kind uint8

const (
	Unknown Kind = iota
	NotFound
	Conflict
	Invalid
	Unavailable
	Internal
)

type Error struct {
	Op   string
	Kind Kind
	Err  error
}

func E(op string, kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{
		Op:   op,
		Kind: kind,
		Err:  err,
	}
}

// Wrap records op on err and keeps the kind already carried by err.
func Wrap(op string, err error) error {
	return E(op, KindOf(err), err)
}

// String returns the string representation of the error kind.
func (k Kind) String() string {
	switch k {
	case Unknown:
		return "Unknown"
	case NotFound:
		return "NotFound"
	case Conflict:
		return "Conflict"
	case Invalid:
		return "Invalid"
	case Unavailable:
		return "Unavailable"
	case Internal:
		return "Internal"
	default:
		return fmt.Sprintf("Kind(%d)", k)
	}
}

// MarshalText renders the kind by name, so structured logs show
// "Unavailable" rather than a number.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Op
	}
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of the outermost *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

// Is reports whether err carries kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

func OpOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Op
	}
	return ""
}

// Trace lists the ops recorded along err's chain, outermost first, joined
// with " > ". Consecutive duplicates are collapsed.
func Trace(err error) string {
	var ops []string
	for err != nil {
		if e, ok := err.(*Error); ok && e.Op != "" {
			if len(ops) == 0 || ops[len(ops)-1] != e.Op {
				ops = append(ops, e.Op)
			}
		}
		err = errors.Unwrap(err)
	}
	return strings.Join(ops, " > ")
}
