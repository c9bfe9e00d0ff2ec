package graph

import (
	"slices"
	"strings"
)

// ValueSelector points at one output value: [producerNodeID, path...].
type ValueSelector []string

// ParseSelector splits a dotted reference such as "3.output" into a selector.
func ParseSelector(s string) (ValueSelector, error) {
	if s == "" {
		return nil, ErrInvalidSelector
	}
	parts := strings.Split(s, ".")
	sel := ValueSelector(parts)
	if !sel.Valid() {
		return nil, ErrInvalidSelector
	}
	return sel, nil
}

// Valid reports whether the selector names a producer and at least one path segment.
func (s ValueSelector) Valid() bool {
	if len(s) < 2 {
		return false
	}
	for _, part := range s {
		if part == "" {
			return false
		}
	}
	return true
}

// NodeID returns the producer node id, or "" for an empty selector.
func (s ValueSelector) NodeID() string {
	if len(s) == 0 {
		return ""
	}
	return s[0]
}

// Path returns the segments after the producer id.
func (s ValueSelector) Path() []string {
	if len(s) < 2 {
		return nil
	}
	return s[1:]
}

// IsEmpty reports whether the selector is unset.
func (s ValueSelector) IsEmpty() bool { return len(s) == 0 }

// Equal reports element-wise equality.
func (s ValueSelector) Equal(other ValueSelector) bool { return slices.Equal(s, other) }

// HasPrefix reports whether prefix addresses s itself or a compound output
// containing it. An empty prefix matches nothing.
func (s ValueSelector) HasPrefix(prefix ValueSelector) bool {
	if len(prefix) == 0 || len(prefix) > len(s) {
		return false
	}
	return slices.Equal(s[:len(prefix)], prefix)
}

// Rebase swaps the old prefix for next, keeping any trailing segments.
// An empty next clears the selector.
func (s ValueSelector) Rebase(old, next ValueSelector) ValueSelector {
	if !s.HasPrefix(old) {
		return s.Clone()
	}
	if len(next) == 0 {
		return ValueSelector{}
	}
	out := make(ValueSelector, 0, len(next)+len(s)-len(old))
	out = append(out, next...)
	return append(out, s[len(old):]...)
}

// Clone returns an independent copy.
func (s ValueSelector) Clone() ValueSelector {
	if s == nil {
		return nil
	}
	return slices.Clone(s)
}

// String renders the selector in dotted form.
func (s ValueSelector) String() string { return strings.Join(s, ".") }
