package workflow

import "sort"

// Capability is an opaque role or permission token held by an actor
type Capability string

// CapabilitySet is the set of capabilities an actor holds
type CapabilitySet map[Capability]struct{}

// NewCapabilitySet builds a set from the given capabilities, ignoring blanks
func NewCapabilitySet(caps ...Capability) CapabilitySet {
	set := make(CapabilitySet, len(caps))
	for _, c := range caps {
		if c == "" {
			continue
		}
		set[c] = struct{}{}
	}
	return set
}

// Has reports whether the set contains the capability
func (s CapabilitySet) Has(c Capability) bool {
	_, ok := s[c]
	return ok
}

// Sorted returns the capabilities in lexical order
func (s CapabilitySet) Sorted() []Capability {
	out := make([]Capability, 0, len(s))
	for c := range s {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
