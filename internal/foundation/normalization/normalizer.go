// Package normalization maps loosely written configuration values onto typed enums.
package normalization

import (
	"fmt"
	"slices"
	"strings"
)

// Normalizer converts raw strings to a string-backed enum. Lookup is case
// insensitive and ignores surrounding whitespace.
type Normalizer[T ~string] struct {
	values       map[string]T
	defaultValue T
}

// NewNormalizer creates a normalizer from accepted spellings; Normalize returns
// defaultValue for anything else.
func NewNormalizer[T ~string](values map[string]T, defaultValue T) *Normalizer[T] {
	normalized := make(map[string]T, len(values))
	for k, v := range values {
		normalized[clean(k)] = v
	}
	return &Normalizer[T]{values: normalized, defaultValue: defaultValue}
}

// Normalize converts raw, or returns the default value when it is not recognized.
func (n *Normalizer[T]) Normalize(raw string) T {
	if v, ok := n.values[clean(raw)]; ok {
		return v
	}
	return n.defaultValue
}

// Resolve normalizes the configured value of field. Unrecognized non-empty input
// is replaced by fallback; empty input is left for defaulting. The returned
// warning is empty when the value did not change.
func (n *Normalizer[T]) Resolve(field string, current, fallback T) (T, string) {
	if v, ok := n.values[clean(string(current))]; ok {
		if v != current {
			return v, fmt.Sprintf("normalized %s from '%s' to '%s'", field, current, v)
		}
		return v, ""
	}
	if clean(string(current)) == "" {
		return current, ""
	}
	return fallback, fmt.Sprintf("unknown %s '%s', defaulting to %s", field, current, fallback)
}

// Keys returns the accepted spellings, sorted.
func (n *Normalizer[T]) Keys() []string {
	keys := make([]string, 0, len(n.values))
	for k := range n.values {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func clean(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
