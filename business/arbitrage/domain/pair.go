// Package domain contains the core domain types for the arbitrage context.
package domain

import (
	"github.com/fd1az/crossarb/internal/apperror"
)

// VenuePair is an unordered pair of distinct venues. Both directions are
// evaluated for every pair.
type VenuePair struct {
	A string
	B string
}

// String returns "A/B".
func (p VenuePair) String() string {
	return p.A + "/" + p.B
}

// Directions returns A→B followed by B→A.
func (p VenuePair) Directions() [2]Direction {
	return [2]Direction{
		{Source: p.A, Target: p.B},
		{Source: p.B, Target: p.A},
	}
}

// NewVenuePairs returns every i<j combination of ids in input order, so n
// venues yield n(n-1)/2 pairs.
func NewVenuePairs(ids []string) ([]VenuePair, error) {
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id == "" {
			return nil, apperror.New(apperror.CodeInvalidVenuePair, apperror.WithContext("empty venue id"))
		}
		if _, dup := seen[id]; dup {
			return nil, apperror.New(apperror.CodeInvalidVenuePair, apperror.WithContextf("duplicate venue id %q", id))
		}
		seen[id] = struct{}{}
	}

	pairs := make([]VenuePair, 0, len(ids)*(len(ids)-1)/2)
	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			pairs = append(pairs, VenuePair{A: ids[i], B: ids[j]})
		}
	}
	return pairs, nil
}
