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

import "testing"

func floatCmp(a, b Value) int {
	x, y := a.(float64), b.(float64)
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	default:
		return 0
	}
}

func equalDomain(t *testing.T, got, want TupleDomain[string]) {
	t.Helper()
	if got.IsNone() != want.IsNone() {
		t.Fatalf("IsNone mismatch: got %v want %v", got.IsNone(), want.IsNone())
	}
	if got.IsNone() {
		return
	}
	if !got.Contains(want) || !want.Contains(got) {
		t.Fatalf("domains not equal:\n got  %+v\n want %+v", got.Domains(), want.Domains())
	}
}

// TestS2TupleDomainIntersect implements scenario S2 from spec §8.
func TestS2TupleDomainIntersect(t *testing.T) {
	cmp := floatCmp
	left := FromDomains(map[string]Domain{
		"A": NewDomain(NewSortedRangeSet(cmp, NewRange(cmp, 0.0, true, true, nil, false, false)), true),
		"B": NotNull(cmp),
		"C": NewDomain(NewSortedRangeSet(cmp, Single(cmp, 1.0)), false),
	})
	right := FromDomains(map[string]Domain{
		"A": NewDomain(NewSortedRangeSet(cmp, NewRange(cmp, nil, false, false, 10.0, true, false)), false),
		"B": NewDomain(NewSortedRangeSet(cmp, Single(cmp, 0.0)), false),
		"C": NewDomain(NewSortedRangeSet(cmp, Single(cmp, 1.0)), false),
	})
	got := left.Intersect(right)
	want := FromDomains(map[string]Domain{
		"A": NewDomain(NewSortedRangeSet(cmp, NewRange(cmp, 0.0, true, true, 10.0, true, false)), false),
		"B": NewDomain(NewSortedRangeSet(cmp, Single(cmp, 0.0)), false),
		"C": NewDomain(NewSortedRangeSet(cmp, Single(cmp, 1.0)), false),
	})
	equalDomain(t, got, want)
}

func TestTupleDomainLatticeLaws(t *testing.T) {
	cmp := floatCmp
	a := FromDomains(map[string]Domain{
		"x": NewDomain(NewSortedRangeSet(cmp, NewRange(cmp, 0.0, true, true, 5.0, true, true)), false),
	})
	b := FromDomains(map[string]Domain{
		"x": NewDomain(NewSortedRangeSet(cmp, NewRange(cmp, 3.0, true, true, 9.0, true, true)), false),
	})
	none := None[string]()
	all := All[string]()

	equalDomain(t, a.Intersect(a), a)
	equalDomain(t, a.Union(a), a)
	equalDomain(t, a.Intersect(none), none)
	equalDomain(t, a.Union(all), all)

	if !equalTD(a.Intersect(b), b.Intersect(a)) {
		t.Fatalf("intersect not commutative")
	}
	if !equalTD(a.Union(b), b.Union(a)) {
		t.Fatalf("union not commutative")
	}

	c := FromDomains(map[string]Domain{
		"x": NewDomain(NewSortedRangeSet(cmp, NewRange(cmp, 4.0, true, true, 4.5, true, true)), false),
	})
	if !equalTD(a.Intersect(b).Intersect(c), a.Intersect(b.Intersect(c))) {
		t.Fatalf("intersect not associative")
	}

	if !a.Contains(a.Intersect(b)) {
		t.Fatalf("contains(A, A∩B) should hold, since A ∩ (A∩B) = A∩B")
	}
	inter := a.Intersect(b)
	if !(a.Contains(inter) && b.Contains(inter)) {
		t.Fatalf("A and B should both contain A∩B")
	}
}

func equalTD(a, b TupleDomain[string]) bool {
	if a.IsNone() != b.IsNone() {
		return false
	}
	if a.IsNone() {
		return true
	}
	return a.Contains(b) && b.Contains(a)
}

// TestS3ShardPruneScenario mirrors the predicate-construction half of
// scenario S3: the BETWEEN predicate and the < predicate as TupleDomains.
func TestS3ShardPruneScenario(t *testing.T) {
	cmp := floatCmp
	between := FromDomains(map[string]Domain{
		"x": NewDomain(NewSortedRangeSet(cmp, NewRange(cmp, 11.0, true, true, 19.0, true, true)), false),
	})
	lessThan5 := FromDomains(map[string]Domain{
		"x": NewDomain(NewSortedRangeSet(cmp, NewRange(cmp, nil, false, false, 5.0, true, false)), false),
	})
	shard1 := NewRange(cmp, 0.0, true, true, 10.0, true, true)
	shard2 := NewRange(cmp, 20.0, true, true, 30.0, true, true)

	betweenRange := between.Domains()["x"].Values.Ranges()[0]
	if betweenRange.Overlaps(shard1) || betweenRange.Overlaps(shard2) {
		t.Fatalf("BETWEEN 11 AND 19 should exclude both shards")
	}
	lessThanRange := lessThan5.Domains()["x"].Values.Ranges()[0]
	if !lessThanRange.Overlaps(shard1) {
		t.Fatalf("x<5 should keep shard1")
	}
	if lessThanRange.Overlaps(shard2) {
		t.Fatalf("x<5 should exclude shard2")
	}
}
