// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package predicate

import "github.com/driftql/drift/errs"

// TupleDomain is an abstract conjunction of per-column value-set
// constraints (spec §3): either NONE (unsatisfiable), ALL (no
// constraint), or a mapping from column handle to Domain where absence
// means ALL for that column. K is the connector's column-handle type.
type TupleDomain[K comparable] struct {
	none    bool
	domains map[K]Domain // nil means ALL (when none is false)
}

// None returns the unsatisfiable TupleDomain.
func None[K comparable]() TupleDomain[K] {
	return TupleDomain[K]{none: true}
}

// All returns the unconstrained TupleDomain.
func All[K comparable]() TupleDomain[K] {
	return TupleDomain[K]{}
}

// FromDomains builds a TupleDomain from a column->Domain map, collapsing
// to NONE if any entry is NONE and dropping ALL entries so the
// representation stays canonical (spec §4.2 invariants a-c).
func FromDomains[K comparable](domains map[K]Domain) TupleDomain[K] {
	canon := make(map[K]Domain, len(domains))
	for k, d := range domains {
		if d.IsNone() {
			return None[K]()
		}
		if d.IsAll() {
			continue
		}
		canon[k] = d
	}
	if len(canon) == 0 {
		return All[K]()
	}
	return TupleDomain[K]{domains: canon}
}

// IsNone reports whether t is the unsatisfiable domain.
func (t TupleDomain[K]) IsNone() bool { return t.none }

// IsAll reports whether t carries no constraint.
func (t TupleDomain[K]) IsAll() bool { return !t.none && len(t.domains) == 0 }

// Domains returns the column->Domain map. Callers must not mutate it.
// It has no entries when t IsAll (All itself carries a nil map), and is
// nil when t IsNone.
func (t TupleDomain[K]) Domains() map[K]Domain {
	if t.none {
		return nil
	}
	return t.domains
}

// Domain returns the domain constraining column k, defaulting to ALL
// (over cmp) if k is unconstrained.
func (t TupleDomain[K]) Domain(k K, cmp Comparator) Domain {
	if t.none {
		return Domain{Values: SortedRangeSet{cmp: cmp}, NullAllowed: false}
	}
	if d, ok := t.domains[k]; ok {
		return d
	}
	return Domain{Values: NewSortedRangeSet(cmp, AllRange(cmp)), NullAllowed: true}
}

// Intersect returns the conjunction of t and o. NONE absorbs intersect.
func (t TupleDomain[K]) Intersect(o TupleDomain[K]) TupleDomain[K] {
	if t.none || o.none {
		return None[K]()
	}
	merged := make(map[K]Domain, len(t.domains)+len(o.domains))
	for k, d := range t.domains {
		merged[k] = d
	}
	for k, d := range o.domains {
		if existing, ok := merged[k]; ok {
			merged[k] = existing.Intersect(d)
		} else {
			merged[k] = d
		}
	}
	return FromDomains(merged)
}

// Union returns the domain satisfied by t or o. ALL is identity's
// absorbing element for union (A ∪ ALL = ALL); union only keeps columns
// constrained on both sides (a column missing from either side widens to
// ALL for the result, same as ColumnWiseUnion but without a None/None
// special case).
func (t TupleDomain[K]) Union(o TupleDomain[K]) TupleDomain[K] {
	if t.none {
		return o
	}
	if o.none {
		return t
	}
	if t.IsAll() || o.IsAll() {
		return All[K]()
	}
	merged := make(map[K]Domain)
	for k, d := range t.domains {
		if od, ok := o.domains[k]; ok {
			merged[k] = d.Union(od)
		}
	}
	return FromDomains(merged)
}

// ColumnWiseUnion merges column-by-column: a column missing from any
// non-NONE input widens to ALL in the result (spec §4.2). It is the
// n-ary form of Union; NONE inputs are skipped, and the result is NONE
// only when every input is NONE.
func ColumnWiseUnion[K comparable](domains ...TupleDomain[K]) TupleDomain[K] {
	if len(domains) == 0 {
		return All[K]()
	}
	allNone := true
	for _, d := range domains {
		if !d.none {
			allNone = false
			break
		}
	}
	if allNone {
		return None[K]()
	}
	keys := map[K]bool{}
	for _, d := range domains {
		if d.none {
			continue
		}
		for k := range d.domains {
			keys[k] = true
		}
	}
	merged := make(map[K]Domain, len(keys))
	for k := range keys {
		var acc Domain
		first, widened := true, false
		for _, d := range domains {
			if d.none {
				continue
			}
			dk, ok := d.domains[k]
			if !ok {
				// missing in this tuple widens the column to ALL.
				widened = true
				break
			}
			if first {
				acc, first = dk, false
			} else {
				acc = acc.Union(dk)
			}
		}
		if !widened && !acc.IsAll() {
			merged[k] = acc
		}
	}
	return FromDomains(merged)
}

// Contains reports whether every assignment satisfying o also satisfies
// t (spec §8 item 3: contains(A,B) ⇔ A ∩ B = B).
func (t TupleDomain[K]) Contains(o TupleDomain[K]) bool {
	if o.none {
		return true
	}
	if t.none {
		return false
	}
	for k, od := range o.domains {
		td, ok := t.domains[k]
		if !ok {
			continue // t has ALL for k, which contains anything
		}
		if !td.Contains(od) {
			return false
		}
	}
	return true
}

// ExtractSingleValues returns the map of columns pinned to exactly one
// non-null value.
func (t TupleDomain[K]) ExtractSingleValues() map[K]Value {
	out := map[K]Value{}
	if t.none {
		return out
	}
	for k, d := range t.domains {
		if v, ok := d.SingleValue(); ok {
			out[k] = v
		}
	}
	return out
}

// WithFixedValues is the inverse of ExtractSingleValues: it returns a
// TupleDomain further constrained so that every column in fixed is
// pinned to its given value.
func (t TupleDomain[K]) WithFixedValues(fixed map[K]Value, cmp Comparator) TupleDomain[K] {
	if t.none {
		return t
	}
	merged := make(map[K]Domain, len(t.domains)+len(fixed))
	for k, d := range t.domains {
		merged[k] = d
	}
	for k, v := range fixed {
		merged[k] = NewDomain(NewSortedRangeSet(cmp, Single(cmp, v)), false)
	}
	return FromDomains(merged)
}

// Transform relabels columns through f. It fails if f collapses two
// distinct keys to the same label (spec §4.2).
func Transform[K comparable, J comparable](t TupleDomain[K], f func(K) J) (TupleDomain[J], error) {
	if t.none {
		return None[J](), nil
	}
	out := make(map[J]Domain, len(t.domains))
	seen := make(map[J]K, len(t.domains))
	for k, d := range t.domains {
		j := f(k)
		if prior, ok := seen[j]; ok {
			return TupleDomain[J]{}, errs.New(errs.InternalError, "predicate: Transform collapsed distinct columns %v and %v onto %v", prior, k, j)
		}
		seen[j] = k
		out[j] = d
	}
	return FromDomains(out), nil
}
