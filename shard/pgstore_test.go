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

package shard

import (
	"bytes"
	"testing"

	"github.com/driftql/drift/block"
)

// TestEncodeSummaryPreservesNumericOrderInt64 guards spec §8 invariant 4:
// the bytea encoding must sort the same way the int64 values do,
// including across the negative/non-negative boundary.
func TestEncodeSummaryPreservesNumericOrderInt64(t *testing.T) {
	values := []int64{-1000, -5, -1, 0, 1, 5, 1000}
	for i := 0; i < len(values)-1; i++ {
		lo, hi := encodeSummary(values[i]), encodeSummary(values[i+1])
		if bytes.Compare(lo, hi) >= 0 {
			t.Fatalf("encodeSummary(%d) >= encodeSummary(%d) bytewise, want <", values[i], values[i+1])
		}
	}
}

// TestEncodeSummaryPreservesNumericOrderFloat64 is the float64 analogue.
func TestEncodeSummaryPreservesNumericOrderFloat64(t *testing.T) {
	values := []float64{-1000.5, -5.25, -0.001, 0, 0.001, 5.25, 1000.5}
	for i := 0; i < len(values)-1; i++ {
		lo, hi := encodeSummary(values[i]), encodeSummary(values[i+1])
		if bytes.Compare(lo, hi) >= 0 {
			t.Fatalf("encodeSummary(%v) >= encodeSummary(%v) bytewise, want <", values[i], values[i+1])
		}
	}
}

func TestPgColumnType(t *testing.T) {
	cmp := func(a, b any) int { return 0 }
	cases := []struct {
		spec ColumnSpec
		want string
	}{
		{ColumnSpec{Type: block.Boolean, Cmp: cmp}, "boolean"},
		{ColumnSpec{Type: block.Bigint, Cmp: cmp}, "bigint"},
		{ColumnSpec{Type: block.Double, Cmp: cmp}, "double precision"},
		{ColumnSpec{Type: block.Varchar, Cmp: cmp}, "varbinary(32)"},
		{ColumnSpec{Type: block.Varbinary, Cmp: cmp}, "varbinary(32)"},
		{ColumnSpec{Cmp: nil}, "bytea"},
	}
	for _, c := range cases {
		if got := pgColumnType(c.spec); got != c.want {
			t.Fatalf("pgColumnType(%+v) = %q, want %q", c.spec, got, c.want)
		}
	}
}
