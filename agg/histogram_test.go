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

package agg

import (
	"testing"

	"github.com/driftql/drift/block"
	"github.com/driftql/drift/errs"
)

func stringBlock(values ...string) *block.Block {
	b := block.NewBuilder(block.Varchar, len(values))
	for _, v := range values {
		b.AppendString(v)
	}
	return b.Build()
}

func countOf(h *TypedHistogram, key string) (int64, bool) {
	keys := h.Keys()
	for i := 0; i < h.Len(); i++ {
		if keys.GetString(i) == key {
			return h.CountAt(i), true
		}
	}
	return 0, false
}

// TestS6HistogramCounts implements scenario S6 from spec §8: the input
// begins a,b,c,d,e,e,c,a,a,a,... over a longer sequence that settles
// into counts a:25, b:10, c:12, d:1, e:2 (sum 50).
func TestS6HistogramCounts(t *testing.T) {
	input := []string{"a", "b", "c", "d", "e", "e", "c", "a", "a", "a"}
	want := map[string]int64{"a": 25, "b": 10, "c": 12, "d": 1, "e": 2}
	counted := map[string]int64{}
	for _, k := range input {
		counted[k]++
	}
	for k, total := range want {
		for counted[k] < total {
			input = append(input, k)
			counted[k]++
		}
	}

	src := stringBlock(input...)
	h := NewTypedHistogram(block.Varchar)
	for i := range input {
		if err := h.Add(src, i, 1); err != nil {
			t.Fatal(err)
		}
	}

	if h.Len() != len(want) {
		t.Fatalf("expected %d distinct keys, got %d", len(want), h.Len())
	}
	for k, wantCount := range want {
		got, ok := countOf(h, k)
		if !ok {
			t.Fatalf("missing key %q", k)
		}
		if got != wantCount {
			t.Fatalf("count(%q) = %d, want %d", k, got, wantCount)
		}
	}

	keys, counts := h.Serialize()
	h2, err := Deserialize(block.Varchar, keys, counts)
	if err != nil {
		t.Fatal(err)
	}
	for k, wantCount := range want {
		got, ok := countOf(h2, k)
		if !ok || got != wantCount {
			t.Fatalf("after serialize round trip, count(%q) = %d (ok=%v), want %d", k, got, ok, wantCount)
		}
	}
}

func TestHistogramGrowsAndRehashes(t *testing.T) {
	h := NewTypedHistogram(block.Bigint)
	n := 200
	b := block.NewBuilder(block.Bigint, n)
	for i := 0; i < n; i++ {
		b.AppendInt64(int64(i % 50))
	}
	src := b.Build()
	for i := 0; i < n; i++ {
		if err := h.Add(src, i, 1); err != nil {
			t.Fatal(err)
		}
	}
	if h.Len() != 50 {
		t.Fatalf("expected 50 distinct keys after growth, got %d", h.Len())
	}
	keys := h.Keys()
	total := int64(0)
	for i := 0; i < h.Len(); i++ {
		total += h.CountAt(i)
		_ = keys.GetInt64(i)
	}
	if total != int64(n) {
		t.Fatalf("sum of counts = %d, want %d", total, n)
	}
}

func TestHistogramAddAllMergesWithoutDoubleCounting(t *testing.T) {
	a := NewTypedHistogram(block.Varchar)
	b := NewTypedHistogram(block.Varchar)
	srcA := stringBlock("x", "y", "x")
	srcB := stringBlock("y", "z")
	for i := 0; i < srcA.Len(); i++ {
		a.Add(srcA, i, 1)
	}
	for i := 0; i < srcB.Len(); i++ {
		b.Add(srcB, i, 1)
	}
	if err := a.AddAll(b); err != nil {
		t.Fatal(err)
	}
	want := map[string]int64{"x": 2, "y": 2, "z": 1}
	for k, wantCount := range want {
		got, ok := countOf(a, k)
		if !ok || got != wantCount {
			t.Fatalf("count(%q) = %d (ok=%v), want %d", k, got, ok, wantCount)
		}
	}
}

func TestHistogramExceedsMemoryLimit(t *testing.T) {
	h := NewTypedHistogram(block.Varbinary)
	big := make([]byte, 1<<16)
	b := block.NewBuilder(block.Varbinary, 128)
	for i := 0; i < 128; i++ {
		big[0] = byte(i) // force a distinct key each time
		v := make([]byte, len(big))
		copy(v, big)
		b.AppendBytes(v)
	}
	src := b.Build()
	var lastErr error
	for i := 0; i < 128; i++ {
		if err := h.Add(src, i, 1); err != nil {
			lastErr = err
			break
		}
	}
	if lastErr == nil {
		t.Fatalf("expected EXCEEDED_MEMORY_LIMIT once the soft cap was crossed")
	}
	if errs.CodeOf(lastErr) != errs.ExceededMemoryLimit {
		t.Fatalf("expected ExceededMemoryLimit, got %v", errs.CodeOf(lastErr))
	}
}

func TestTypedSetDeduplicates(t *testing.T) {
	s := NewTypedSet(block.Bigint)
	b := block.NewBuilder(block.Bigint, 5)
	for _, v := range []int64{1, 2, 1, 3, 2} {
		b.AppendInt64(v)
	}
	src := b.Build()
	for i := 0; i < src.Len(); i++ {
		if err := s.Add(src, i); err != nil {
			t.Fatal(err)
		}
	}
	if s.Len() != 3 {
		t.Fatalf("expected 3 distinct values, got %d", s.Len())
	}
}
