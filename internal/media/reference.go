// Package media tracks media references embedded in documents: pending
// payloads that only exist for an editing session and the durable objects
// they become once uploaded.
package media

import (
	"sort"
	"strings"

	"github.com/google/uuid"
)

// EphemeralPrefix marks references that point at a pending payload rather
// than a stored object.
const EphemeralPrefix = "blob:"

// NewEphemeralReference returns a fresh session-local handle.
func NewEphemeralReference() string {
	return EphemeralPrefix + "pending/" + uuid.NewString()
}

// IsEphemeral reports whether ref is a session-local handle.
func IsEphemeral(ref string) bool {
	return strings.HasPrefix(ref, EphemeralPrefix)
}

// ReferenceSet is an unordered set of references.
type ReferenceSet map[string]struct{}

// NewReferenceSet builds a set from refs, ignoring empty strings.
func NewReferenceSet(refs ...string) ReferenceSet {
	set := make(ReferenceSet, len(refs))
	for _, ref := range refs {
		set.Add(ref)
	}
	return set
}

func (s ReferenceSet) Add(ref string) {
	if ref == "" {
		return
	}
	s[ref] = struct{}{}
}

func (s ReferenceSet) Has(ref string) bool {
	_, ok := s[ref]
	return ok
}

// Difference returns the members of s absent from other.
func (s ReferenceSet) Difference(other ReferenceSet) ReferenceSet {
	out := make(ReferenceSet)
	for ref := range s {
		if !other.Has(ref) {
			out[ref] = struct{}{}
		}
	}
	return out
}

func (s ReferenceSet) Clone() ReferenceSet {
	out := make(ReferenceSet, len(s))
	for ref := range s {
		out[ref] = struct{}{}
	}
	return out
}

// Equal reports whether both sets hold exactly the same references.
func (s ReferenceSet) Equal(other ReferenceSet) bool {
	if len(s) != len(other) {
		return false
	}
	for ref := range s {
		if !other.Has(ref) {
			return false
		}
	}
	return true
}

// Sorted returns the members in lexical order.
func (s ReferenceSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for ref := range s {
		out = append(out, ref)
	}
	sort.Strings(out)
	return out
}
