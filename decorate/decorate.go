// Package decorate merges query parameters into URLs.
//
// Decoration is deterministic: the existing query of the URL is parsed into
// ordered Params, the new parameters are overlaid (existing keys keep their
// position, new keys are appended) and every key and value is re-encoded
// with url.QueryEscape. Scheme, authority, path and fragment are kept
// byte-for-byte.
//
// Decorating twice with the same parameters yields the same URL, and
// decorating with p1 then p2 equals decorating once with p1.Merge(p2).
package decorate

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// MaxURLLength is the longest URL accepted for decoration.
const MaxURLLength = 2048

// ErrInvalidURL reports a URL that cannot be decorated.
var ErrInvalidURL = errors.New("invalid url")

// Validate checks that rawURL is an absolute http(s) URL with a host.
func Validate(rawURL string) error {
	if strings.TrimSpace(rawURL) == "" {
		return fmt.Errorf("%w: url cannot be empty", ErrInvalidURL)
	}
	if len(rawURL) > MaxURLLength {
		return fmt.Errorf("%w: url too long (max %d characters)", ErrInvalidURL, MaxURLLength)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme == "" {
		return fmt.Errorf("%w: url must include scheme (http or https)", ErrInvalidURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: url scheme must be http or https", ErrInvalidURL)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: url must include host", ErrInvalidURL)
	}
	return nil
}

// URL returns rawURL with params merged into its query string.
func URL(rawURL string, params Params) (string, error) {
	if err := Validate(rawURL); err != nil {
		return "", err
	}

	base, query, fragment, hasFragment := split(rawURL)

	existing, err := ParseQuery(query)
	if err != nil {
		return "", err
	}
	merged := existing.Merge(params)

	var b strings.Builder
	b.WriteString(base)
	if merged.Len() > 0 {
		b.WriteByte('?')
		b.WriteString(Encode(merged))
	}
	if hasFragment {
		b.WriteByte('#')
		b.WriteString(fragment)
	}
	return b.String(), nil
}

// ParseQuery parses a raw query string into ordered Params. A key seen more
// than once keeps its first position and its last value. Pairs without '='
// get an empty value; empty segments are skipped.
func ParseQuery(rawQuery string) (Params, error) {
	var p Params
	for segment := range strings.SplitSeq(rawQuery, "&") {
		if segment == "" {
			continue
		}
		rawKey, rawValue, _ := strings.Cut(segment, "=")

		key, err := url.QueryUnescape(rawKey)
		if err != nil {
			return Params{}, fmt.Errorf("%w: bad query key %q: %v", ErrInvalidURL, rawKey, err)
		}
		value, err := url.QueryUnescape(rawValue)
		if err != nil {
			return Params{}, fmt.Errorf("%w: bad query value for %q: %v", ErrInvalidURL, key, err)
		}
		if key == "" {
			continue
		}
		p.Set(key, value)
	}
	return p, nil
}

// Encode renders params as key=value pairs joined with '&', in order.
func Encode(params Params) string {
	var b strings.Builder
	for i, e := range params.entries {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(e.Key))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(e.Value))
	}
	return b.String()
}

// split cuts a URL into everything before the query, the raw query and the
// raw fragment.
func split(rawURL string) (base, query, fragment string, hasFragment bool) {
	rest := rawURL
	if i := strings.IndexByte(rest, '#'); i >= 0 {
		rest, fragment, hasFragment = rest[:i], rest[i+1:], true
	}
	base, query, _ = strings.Cut(rest, "?")
	return base, query, fragment, hasFragment
}
