package links

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
)

// CursorKind tells which tier a Cursor resumes from.
type CursorKind uint8

const (
	// CursorCache resumes at an ordinal position of the cache index.
	CursorCache CursorKind = iota
	// CursorStore resumes a backing-store scan after a key.
	CursorStore
)

// Cursor is a decoded pagination position. The zero value is the start of
// the cache index.
type Cursor struct {
	kind    CursorKind
	ordinal int64
	token   string
}

// CacheOrdinal returns a cursor at position n of the cache index.
func CacheOrdinal(n int64) Cursor { return Cursor{kind: CursorCache, ordinal: n} }

// StoreToken returns a cursor that resumes the store scan after key. An empty
// key scans from the beginning.
func StoreToken(key string) Cursor { return Cursor{kind: CursorStore, token: key} }

func (c Cursor) Kind() CursorKind { return c.kind }
func (c Cursor) Ordinal() int64   { return c.ordinal }
func (c Cursor) Token() string    { return c.token }

type tokenPayload struct {
	Key *string `json:"k"`
}

// Encode returns the wire form: a decimal ordinal, or base64url JSON for a
// store token.
func (c Cursor) Encode() string {
	if c.kind == CursorCache {
		return strconv.FormatInt(c.ordinal, 10)
	}
	key := c.token
	b, _ := json.Marshal(tokenPayload{Key: &key})
	return base64.RawURLEncoding.EncodeToString(b)
}

func (c Cursor) String() string { return c.Encode() }

// ParseCursor decodes the wire form produced by Encode. An empty string is
// the start of the cache index. Errors wrap ErrInvalidCursor.
func ParseCursor(raw string) (Cursor, error) {
	if raw == "" {
		return CacheOrdinal(0), nil
	}

	if isDigits(raw) {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Cursor{}, fmt.Errorf("%w: ordinal out of range", ErrInvalidCursor)
		}
		return CacheOrdinal(n), nil
	}

	b, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil {
		return Cursor{}, fmt.Errorf("%w: not an ordinal or token", ErrInvalidCursor)
	}
	var p tokenPayload
	if err := json.Unmarshal(b, &p); err != nil || p.Key == nil {
		return Cursor{}, fmt.Errorf("%w: malformed token", ErrInvalidCursor)
	}
	return StoreToken(*p.Key), nil
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}
