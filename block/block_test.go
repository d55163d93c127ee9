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

package block

import "testing"

func buildIntBlock(vals []int64, nullAt map[int]bool) *Block {
	b := NewBuilder(Bigint, len(vals))
	for i, v := range vals {
		if nullAt[i] {
			b.AppendNull()
			continue
		}
		b.AppendInt64(v)
	}
	return b.Build()
}

func TestRoundTripEveryEncoding(t *testing.T) {
	blk := buildIntBlock([]int64{1, 3, 2, -7}, map[int]bool{2: true})
	for _, name := range []string{"plain", "plain-s2", "plain-zstd"} {
		enc, err := Serialize(blk, name)
		if err != nil {
			t.Fatalf("%s: serialize: %v", name, err)
		}
		dec, err := Deserialize(enc)
		if err != nil {
			t.Fatalf("%s: deserialize: %v", name, err)
		}
		assertBlocksEqual(t, name, blk, dec)
	}
}

func assertBlocksEqual(t *testing.T, label string, a, b *Block) {
	t.Helper()
	if a.Len() != b.Len() {
		t.Fatalf("%s: length mismatch %d vs %d", label, a.Len(), b.Len())
	}
	if !a.Type().Equal(b.Type()) {
		t.Fatalf("%s: type mismatch %s vs %s", label, a.Type(), b.Type())
	}
	for i := 0; i < a.Len(); i++ {
		if a.IsNull(i) != b.IsNull(i) {
			t.Fatalf("%s: null mismatch at %d", label, i)
		}
		eq, err := Equals(a, i, b, i)
		if err != nil {
			t.Fatalf("%s: equals error at %d: %v", label, i, err)
		}
		if !eq {
			t.Fatalf("%s: value mismatch at position %d", label, i)
		}
	}
}

func TestRoundTripVarcharAndNested(t *testing.T) {
	rowType := Row(Field{Name: "a", Type: Bigint}, Field{Name: "b", Type: Varchar})
	arrType := Array(rowType)
	b := NewBuilder(arrType, 2)

	child := b.BeginArray()
	for i := 0; i < 3; i++ {
		fields := child.RowFields()
		fields[0].AppendInt64(int64(i))
		fields[1].AppendString("v")
		child.EndRow()
	}
	b.EndArray()

	b.BeginArray()
	b.EndArray() // empty array element

	blk := b.Build()
	enc, err := Serialize(blk, "plain")
	if err != nil {
		t.Fatal(err)
	}
	dec, err := Deserialize(enc)
	if err != nil {
		t.Fatal(err)
	}
	assertBlocksEqual(t, "nested", blk, dec)

	_, lo, hi := dec.ArrayChild(0)
	if hi-lo != 3 {
		t.Fatalf("expected 3 elements, got %d", hi-lo)
	}
	_, lo2, hi2 := dec.ArrayChild(1)
	if hi2-lo2 != 0 {
		t.Fatalf("expected empty array, got %d elements", hi2-lo2)
	}
}

// TestHashEqualsInvariant checks spec §8 item 2: equals(i,j) => hash(i)==hash(j).
func TestHashEqualsInvariant(t *testing.T) {
	b := NewBuilder(Varchar, 4)
	for _, s := range []string{"foo", "bar", "foo", "baz"} {
		b.AppendString(s)
	}
	blk := b.Build()
	for i := 0; i < blk.Len(); i++ {
		for j := 0; j < blk.Len(); j++ {
			eq, err := Equals(blk, i, blk, j)
			if err != nil {
				t.Fatal(err)
			}
			if eq && blk.Hash(i) != blk.Hash(j) {
				t.Fatalf("equals(%d,%d) but hash differs: %d vs %d", i, j, blk.Hash(i), blk.Hash(j))
			}
		}
	}
}

func TestDuplicateEncodingRegistrationFails(t *testing.T) {
	if err := Register(plainEncoding{}); err == nil {
		t.Fatalf("expected error re-registering %q", "plain")
	}
}

func TestArrayNullElementComparisonFails(t *testing.T) {
	arr := Array(Bigint)
	b := NewBuilder(arr, 2)
	child := b.BeginArray()
	child.AppendInt64(1)
	child.AppendNull()
	b.EndArray()
	child2 := b.BeginArray()
	child2.AppendInt64(1)
	child2.AppendInt64(2)
	b.EndArray()
	blk := b.Build()

	_, err := Equals(blk, 0, blk, 1)
	if err != ErrNullElement {
		t.Fatalf("expected ErrNullElement, got %v", err)
	}
}
