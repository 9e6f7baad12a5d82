package decorate

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Param is a single query parameter.
type Param struct {
	Key   string
	Value string
}

// Params is an insertion-ordered string map. Keys are unique; setting an
// existing key overwrites its value in place, new keys are appended.
// The zero value is an empty, ready to use Params.
type Params struct {
	entries []Param
	index   map[string]int
}

// FromPairs builds Params from alternating key/value strings.
// It panics on an odd number of arguments.
func FromPairs(kv ...string) Params {
	if len(kv)%2 != 0 {
		panic("decorate: FromPairs needs an even number of arguments")
	}
	var p Params
	for i := 0; i < len(kv); i += 2 {
		p.Set(kv[i], kv[i+1])
	}
	return p
}

// Len returns the number of parameters.
func (p Params) Len() int { return len(p.entries) }

// Get returns the value stored under key.
func (p Params) Get(key string) (string, bool) {
	i, ok := p.index[key]
	if !ok {
		return "", false
	}
	return p.entries[i].Value, true
}

// Set stores value under key.
func (p *Params) Set(key, value string) {
	if p.index == nil {
		p.index = make(map[string]int)
	}
	if i, ok := p.index[key]; ok {
		p.entries[i].Value = value
		return
	}
	p.index[key] = len(p.entries)
	p.entries = append(p.entries, Param{Key: key, Value: value})
}

// Keys returns the keys in order.
func (p Params) Keys() []string {
	keys := make([]string, len(p.entries))
	for i, e := range p.entries {
		keys[i] = e.Key
	}
	return keys
}

// All returns a copy of the ordered entries.
func (p Params) All() []Param {
	out := make([]Param, len(p.entries))
	copy(out, p.entries)
	return out
}

// Clone returns an independent copy.
func (p Params) Clone() Params {
	var c Params
	for _, e := range p.entries {
		c.Set(e.Key, e.Value)
	}
	return c
}

// Merge returns p overlaid with other: keys of other overwrite in place,
// keys only in other are appended in other's order. Neither input is modified.
func (p Params) Merge(other Params) Params {
	merged := p.Clone()
	for _, e := range other.entries {
		merged.Set(e.Key, e.Value)
	}
	return merged
}

// Equal reports whether both hold the same entries in the same order.
func (p Params) Equal(other Params) bool {
	if len(p.entries) != len(other.entries) {
		return false
	}
	for i := range p.entries {
		if p.entries[i] != other.entries[i] {
			return false
		}
	}
	return true
}

// Map returns the parameters as a plain map, losing order.
func (p Params) Map() map[string]string {
	m := make(map[string]string, len(p.entries))
	for _, e := range p.entries {
		m[e.Key] = e.Value
	}
	return m
}

// MarshalJSON encodes Params as a JSON object, keys in order.
func (p Params) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range p.entries {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(e.Key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(e.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object of strings, keeping the key order of
// the document. null decodes to empty Params.
func (p *Params) UnmarshalJSON(data []byte) error {
	*p = Params{}
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return errors.New("parameters must be a JSON object")
	}

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("unexpected token %v in parameters", tok)
		}
		var value string
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("parameter %q must be a string", key)
		}
		p.Set(key, value)
	}

	if _, err := dec.Token(); err != nil {
		return err
	}
	return nil
}
