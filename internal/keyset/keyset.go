// Package keyset projects identity values out of persisted datasets and
// filters freshly fetched items against them.
package keyset

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/ryosukesatoh/daily-digest/internal/item"
)

// ErrInvalidJSON is returned when a document cannot be parsed.
var ErrInvalidJSON = errors.New("keyset: invalid JSON document")

// Set is an unordered set of identity values.
type Set map[string]struct{}

// Has reports whether v is in the set.
func (s Set) Has(v string) bool {
	_, ok := s[v]
	return ok
}

// Add inserts v into the set.
func (s Set) Add(v string) {
	s[v] = struct{}{}
}

// Project returns every value bound to field anywhere inside doc. Once a
// member named field is found its value is taken as is and not searched
// further. Strings contribute their text; other values their raw JSON.
//
// An empty document yields an empty set.
func Project(doc []byte, field string) (Set, error) {
	set := Set{}
	if len(bytes.TrimSpace(doc)) == 0 {
		return set, nil
	}
	if !gjson.ValidBytes(doc) {
		return nil, ErrInvalidJSON
	}
	walk(gjson.ParseBytes(doc), field, set)
	return set, nil
}

func walk(v gjson.Result, field string, set Set) {
	switch {
	case v.IsObject():
		v.ForEach(func(key, value gjson.Result) bool {
			if key.String() == field {
				set.Add(scalar(value))
			} else {
				walk(value, field, set)
			}
			return true
		})
	case v.IsArray():
		v.ForEach(func(_, value gjson.Result) bool {
			walk(value, field, set)
			return true
		})
	}
}

func scalar(v gjson.Result) string {
	if v.Type == gjson.String {
		return v.String()
	}
	return v.Raw
}

// Filter returns the items whose field value is not in known, in their
// original order. Items without the field are dropped, and a value repeated
// within items is kept once (first occurrence).
func Filter(items []item.Item, known Set, field string) []item.Item {
	seen := Set{}
	out := make([]item.Item, 0, len(items))
	for _, it := range items {
		v, ok := it.Value(field)
		if !ok || known.Has(v) || seen.Has(v) {
			continue
		}
		seen.Add(v)
		out = append(out, it)
	}
	return out
}

// FromItems collects the field values of items.
func FromItems(items []item.Item, field string) Set {
	set := Set{}
	for _, it := range items {
		if v, ok := it.Value(field); ok {
			set.Add(v)
		}
	}
	return set
}

func (s Set) String() string {
	return fmt.Sprintf("keyset(%d)", len(s))
}
