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

import (
	"bytes"

	"github.com/driftql/drift/errs"
)

// ErrNullElement is the dedicated error kind raised when an array
// comparison encounters a null element (spec §4.1: "arrays containing
// null elements fail comparisons with a dedicated error kind").
var ErrNullElement = errs.New(errs.SemanticError, "comparison of containers with null elements is not supported")

// Equals reports whether the values at (b1,p1) and (b2,p2) are equal.
// Both blocks must share the same type.
func Equals(b1 *Block, p1 int, b2 *Block, p2 int) (bool, error) {
	if !b1.typ.Equal(b2.typ) {
		panic(errs.New(errs.InternalError, "block: Equals across mismatched types %s and %s", b1.typ.Name(), b2.typ.Name()))
	}
	n1, n2 := b1.IsNull(p1), b2.IsNull(p2)
	if n1 || n2 {
		return n1 && n2, nil
	}
	switch b1.typ.Category() {
	case CatBoolean:
		return b1.bools[p1] == b2.bools[p2], nil
	case CatInt64:
		return b1.longs[p1] == b2.longs[p2], nil
	case CatFloat64:
		return canonicalizeZero(b1.doubles[p1]) == canonicalizeZero(b2.doubles[p2]), nil
	case CatBytes:
		return bytes.Equal(b1.GetBytes(p1), b2.GetBytes(p2)), nil
	case CatNested:
		return equalsNested(b1, p1, b2, p2)
	default:
		return false, nil
	}
}

func equalsNested(b1 *Block, p1 int, b2 *Block, p2 int) (bool, error) {
	switch b1.typ.Kind {
	case KindArray:
		c1, lo1, hi1 := b1.ArrayChild(p1)
		c2, lo2, hi2 := b2.ArrayChild(p2)
		if hi1-lo1 != hi2-lo2 {
			return false, nil
		}
		for i, j := lo1, lo2; i < hi1; i, j = i+1, j+1 {
			if c1.IsNull(i) || c2.IsNull(j) {
				return false, ErrNullElement
			}
			eq, err := Equals(c1, i, c2, j)
			if err != nil {
				return false, err
			}
			if !eq {
				return false, nil
			}
		}
		return true, nil
	case KindMap:
		k1, v1, lo1, hi1 := b1.MapChild(p1)
		k2, v2, lo2, hi2 := b2.MapChild(p2)
		if hi1-lo1 != hi2-lo2 {
			return false, nil
		}
		// order-independent: for each pair on the left, find a matching
		// unused pair on the right.
		used := make([]bool, hi2-lo2)
		for i := lo1; i < hi1; i++ {
			found := false
			for j := lo2; j < hi2; j++ {
				if used[j-lo2] {
					continue
				}
				keq, err := Equals(k1, i, k2, j)
				if err != nil {
					return false, err
				}
				if !keq {
					continue
				}
				veq, err := Equals(v1, i, v2, j)
				if err != nil {
					return false, err
				}
				if veq {
					used[j-lo2] = true
					found = true
					break
				}
			}
			if !found {
				return false, nil
			}
		}
		return true, nil
	case KindRow:
		for i := range b1.rowChildren {
			eq, err := Equals(b1.rowChildren[i], p1, b2.rowChildren[i], p2)
			if err != nil {
				return false, err
			}
			if !eq {
				return false, nil
			}
		}
		return true, nil
	default:
		return false, nil
	}
}

// Compare orders the values at (b1,p1) and (b2,p2); nulls sort first.
// Compare returns an error if the type is not Orderable.
func Compare(b1 *Block, p1 int, b2 *Block, p2 int) (int, error) {
	if !b1.typ.Equal(b2.typ) {
		panic(errs.New(errs.InternalError, "block: Compare across mismatched types %s and %s", b1.typ.Name(), b2.typ.Name()))
	}
	if !b1.typ.Orderable() {
		return 0, errs.New(errs.NotSupported, "type %s is not orderable", b1.typ.Name())
	}
	n1, n2 := b1.IsNull(p1), b2.IsNull(p2)
	if n1 || n2 {
		switch {
		case n1 && n2:
			return 0, nil
		case n1:
			return -1, nil
		default:
			return 1, nil
		}
	}
	switch b1.typ.Category() {
	case CatBoolean:
		x, y := b1.bools[p1], b2.bools[p2]
		if x == y {
			return 0, nil
		} else if !x {
			return -1, nil
		}
		return 1, nil
	case CatInt64:
		return compareInt64(b1.longs[p1], b2.longs[p2]), nil
	case CatFloat64:
		return compareFloat64(b1.doubles[p1], b2.doubles[p2]), nil
	case CatBytes:
		return bytes.Compare(b1.GetBytes(p1), b2.GetBytes(p2)), nil
	case CatNested:
		return compareNested(b1, p1, b2, p2)
	default:
		return 0, nil
	}
}

func compareInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareFloat64(a, b float64) int {
	a, b = canonicalizeZero(a), canonicalizeZero(b)
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareNested(b1 *Block, p1 int, b2 *Block, p2 int) (int, error) {
	switch b1.typ.Kind {
	case KindArray:
		c1, lo1, hi1 := b1.ArrayChild(p1)
		c2, lo2, hi2 := b2.ArrayChild(p2)
		i, j := lo1, lo2
		for i < hi1 && j < hi2 {
			if c1.IsNull(i) || c2.IsNull(j) {
				return 0, ErrNullElement
			}
			cmp, err := Compare(c1, i, c2, j)
			if err != nil {
				return 0, err
			}
			if cmp != 0 {
				return cmp, nil
			}
			i, j = i+1, j+1
		}
		return compareInt64(int64(hi1-lo1-(i-lo1)), int64(hi2-lo2-(j-lo2))), nil
	case KindRow:
		for i := range b1.rowChildren {
			cmp, err := Compare(b1.rowChildren[i], p1, b2.rowChildren[i], p2)
			if err != nil {
				return 0, err
			}
			if cmp != 0 {
				return cmp, nil
			}
		}
		return 0, nil
	default:
		return 0, errs.New(errs.NotSupported, "type %s is not orderable", b1.typ.Name())
	}
}
