package entity

import (
	"fmt"
	"sort"
	"strings"
)

// ProviderID identifies one upstream survey provider.
type ProviderID string

// Known providers. The set is fixed at process start.
const (
	ProviderCPX          ProviderID = "cpx"
	ProviderBitLabs      ProviderID = "bitlabs"
	ProviderTheoremReach ProviderID = "theoremreach"
	ProviderPollfish     ProviderID = "pollfish"
)

var knownProviders = []ProviderID{
	ProviderCPX,
	ProviderBitLabs,
	ProviderTheoremReach,
	ProviderPollfish,
}

// KnownProviders returns the registered providers in a fixed order.
// The returned slice is a copy and may be modified by the caller.
func KnownProviders() []ProviderID {
	out := make([]ProviderID, len(knownProviders))
	copy(out, knownProviders)
	return out
}

// IsKnown reports whether id is one of the registered providers.
func (id ProviderID) IsKnown() bool {
	for _, p := range knownProviders {
		if p == id {
			return true
		}
	}
	return false
}

// String implements fmt.Stringer.
func (id ProviderID) String() string {
	return string(id)
}

// ParseProviderID normalises s and returns the matching provider.
// Unknown ids are structural errors.
func ParseProviderID(s string) (ProviderID, error) {
	id := ProviderID(strings.ToLower(strings.TrimSpace(s)))
	if !id.IsKnown() {
		return "", fmt.Errorf("%w: %q", ErrUnknownProvider, s)
	}
	return id, nil
}

// SortProviders orders ids in place: known providers first in their declared
// order, then the rest by name.
func SortProviders(ids []ProviderID) {
	rank := make(map[ProviderID]int, len(knownProviders))
	for i, id := range knownProviders {
		rank[id] = i
	}
	sort.SliceStable(ids, func(i, j int) bool {
		ri, iok := rank[ids[i]]
		rj, jok := rank[ids[j]]
		switch {
		case iok && jok:
			return ri < rj
		case iok != jok:
			return iok
		default:
			return ids[i] < ids[j]
		}
	})
}
