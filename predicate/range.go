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

// Package predicate implements the pushdown currency of the engine (C2):
// per-column Range/SortedRangeSet/Domain and the TupleDomain lattice used
// to prune splits and shards.
package predicate

import "fmt"

// Value is anything a Range can be bounded by. Comparison is delegated to
// a Comparator supplied by the caller rather than baked into the value,
// since predicate needs no dependency on the block/type layer (C2 is
// usable against any comparable domain, including the shard index's
// narrowed min/max summaries).
type Value any

// Comparator orders two Values of the same underlying type. It must
// return a negative, zero, or positive value exactly like bytes.Compare.
type Comparator func(a, b Value) int

// Range is a (possibly half- or fully-unbounded) interval over a
// comparable type (spec §3): [lo, lo_incl, hi, hi_incl] with unbounded
// ends allowed.
type Range struct {
	HasLow       bool
	Low          Value
	LowInclusive bool

	HasHigh       bool
	High          Value
	HighInclusive bool

	cmp Comparator
}

// NewRange builds a closed, open, or half-open range. Pass hasLow=false
// for an unbounded low end and hasHigh=false for an unbounded high end.
func NewRange(cmp Comparator, low Value, hasLow, lowIncl bool, high Value, hasHigh, highIncl bool) Range {
	r := Range{cmp: cmp, HasLow: hasLow, HasHigh: hasHigh}
	if hasLow {
		r.Low, r.LowInclusive = low, lowIncl
	}
	if hasHigh {
		r.High, r.HighInclusive = high, highIncl
	}
	return r
}

// Single returns a range containing exactly the value v.
func Single(cmp Comparator, v Value) Range {
	return NewRange(cmp, v, true, true, v, true, true)
}

// AllRange returns the unbounded range.
func AllRange(cmp Comparator) Range { return Range{cmp: cmp} }

// IsAll reports whether r is unbounded on both ends.
func (r Range) IsAll() bool { return !r.HasLow && !r.HasHigh }

// IsSingleValue reports whether r contains exactly one value.
func (r Range) IsSingleValue() bool {
	return r.HasLow && r.HasHigh && r.LowInclusive && r.HighInclusive && r.cmp(r.Low, r.High) == 0
}

// Contains reports whether v falls within r.
func (r Range) Contains(v Value) bool {
	if r.HasLow {
		c := r.cmp(v, r.Low)
		if c < 0 || (c == 0 && !r.LowInclusive) {
			return false
		}
	}
	if r.HasHigh {
		c := r.cmp(v, r.High)
		if c > 0 || (c == 0 && !r.HighInclusive) {
			return false
		}
	}
	return true
}

// above reports whether r is entirely above o: every value in r is
// strictly greater than every value in o, i.e. they do not overlap and
// do not touch.
func (r Range) above(o Range) bool {
	if !o.HasHigh || !r.HasLow {
		return false
	}
	c := r.cmp(r.Low, o.High)
	if c > 0 {
		return true
	}
	return c == 0 && !(r.LowInclusive && o.HighInclusive)
}

// Overlaps reports whether r and o share at least one value.
func (r Range) Overlaps(o Range) bool {
	return !r.above(o) && !o.above(r)
}

// Adjacent reports whether r and o are disjoint but meet with no gap
// between them, e.g. [0,10) and [10,20) — used by SortedRangeSet to
// decide whether two ranges should merge into one on insert.
func (r Range) Adjacent(o Range) bool {
	if r.Overlaps(o) {
		return false
	}
	var lo, hi Range
	if r.above(o) {
		lo, hi = o, r
	} else {
		lo, hi = r, o
	}
	if !lo.HasHigh || !hi.HasLow {
		return false
	}
	return r.cmp(lo.High, hi.Low) == 0 && lo.HighInclusive != hi.LowInclusive
}

// Span merges r and o, which must overlap or be adjacent, into the
// smallest range containing both.
func (r Range) Span(o Range) Range {
	out := Range{cmp: r.cmp}
	if !r.HasLow || !o.HasLow {
		out.HasLow = false
	} else {
		c := r.cmp(r.Low, o.Low)
		switch {
		case c < 0:
			out.HasLow, out.Low, out.LowInclusive = true, r.Low, r.LowInclusive
		case c > 0:
			out.HasLow, out.Low, out.LowInclusive = true, o.Low, o.LowInclusive
		default:
			out.HasLow, out.Low, out.LowInclusive = true, r.Low, r.LowInclusive || o.LowInclusive
		}
	}
	if !r.HasHigh || !o.HasHigh {
		out.HasHigh = false
	} else {
		c := r.cmp(r.High, o.High)
		switch {
		case c > 0:
			out.HasHigh, out.High, out.HighInclusive = true, r.High, r.HighInclusive
		case c < 0:
			out.HasHigh, out.High, out.HighInclusive = true, o.High, o.HighInclusive
		default:
			out.HasHigh, out.High, out.HighInclusive = true, r.High, r.HighInclusive || o.HighInclusive
		}
	}
	return out
}

// Intersect returns the overlap of r and o and true, or the zero Range
// and false if they do not overlap.
func (r Range) Intersect(o Range) (Range, bool) {
	if !r.Overlaps(o) {
		return Range{}, false
	}
	out := Range{cmp: r.cmp}
	switch {
	case !r.HasLow:
		out.HasLow, out.Low, out.LowInclusive = o.HasLow, o.Low, o.LowInclusive
	case !o.HasLow:
		out.HasLow, out.Low, out.LowInclusive = r.HasLow, r.Low, r.LowInclusive
	default:
		c := r.cmp(r.Low, o.Low)
		switch {
		case c > 0:
			out.HasLow, out.Low, out.LowInclusive = true, r.Low, r.LowInclusive
		case c < 0:
			out.HasLow, out.Low, out.LowInclusive = true, o.Low, o.LowInclusive
		default:
			out.HasLow, out.Low, out.LowInclusive = true, r.Low, r.LowInclusive && o.LowInclusive
		}
	}
	switch {
	case !r.HasHigh:
		out.HasHigh, out.High, out.HighInclusive = o.HasHigh, o.High, o.HighInclusive
	case !o.HasHigh:
		out.HasHigh, out.High, out.HighInclusive = r.HasHigh, r.High, r.HighInclusive
	default:
		c := r.cmp(r.High, o.High)
		switch {
		case c < 0:
			out.HasHigh, out.High, out.HighInclusive = true, r.High, r.HighInclusive
		case c > 0:
			out.HasHigh, out.High, out.HighInclusive = true, o.High, o.HighInclusive
		default:
			out.HasHigh, out.High, out.HighInclusive = true, r.High, r.HighInclusive && o.HighInclusive
		}
	}
	return out, true
}

func (r Range) String() string {
	lo, hi := "-inf", "+inf"
	lb, hb := "(", ")"
	if r.HasLow {
		lo = fmt.Sprint(r.Low)
		if r.LowInclusive {
			lb = "["
		}
	}
	if r.HasHigh {
		hi = fmt.Sprint(r.High)
		if r.HighInclusive {
			hb = "]"
		}
	}
	return fmt.Sprintf("%s%v,%v%s", lb, lo, hi, hb)
}
