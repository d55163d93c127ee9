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
	"encoding/binary"
	"math"

	"github.com/dchest/siphash"
)

// hashKey0/hashKey1 are a fixed siphash key so that Hash is stable across process
// restarts for deterministic types, per spec §4.1. It is not a secret;
// it only needs to be constant.
var hashKey0, hashKey1 = uint64(0x646e696c42646e69), uint64(0x646174536b636f6c)

const nullHash = uint64(0x9e3779b97f4a7c15)

func hashBytes(b []byte) uint64 {
	return siphash.Hash(hashKey0, hashKey1, b)
}

func hashUint64(v uint64) uint64 {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	return hashBytes(buf[:])
}

// Hash returns a stable hash of the value at pos. hash(b,i) == hash(b',j)
// whenever Equals(b,i,b',j) holds (spec §3 invariant b, §8 item 2).
func (b *Block) Hash(pos int) uint64 {
	b.checkPos(pos)
	if b.IsNull(pos) {
		return nullHash
	}
	switch b.typ.Category() {
	case CatBoolean:
		if b.bools[pos] {
			return hashUint64(1)
		}
		return hashUint64(0)
	case CatInt64:
		return hashUint64(uint64(b.longs[pos]))
	case CatFloat64:
		return hashUint64(math.Float64bits(canonicalizeZero(b.doubles[pos])))
	case CatBytes:
		return hashBytes(b.GetBytes(pos))
	case CatNested:
		return b.hashNested(pos)
	default:
		return nullHash
	}
}

// canonicalizeZero folds -0.0 to 0.0 so that hash(-0.0) == hash(0.0),
// matching Equals treating them as equal.
func canonicalizeZero(f float64) float64 {
	if f == 0 {
		return 0
	}
	return f
}

func (b *Block) hashNested(pos int) uint64 {
	switch b.typ.Kind {
	case KindArray:
		child, lo, hi := b.ArrayChild(pos)
		h := hashUint64(uint64(hi - lo))
		for i := lo; i < hi; i++ {
			h ^= rotl(child.Hash(i), uint((i-lo)%61)+1)
		}
		return h
	case KindMap:
		keys, values, lo, hi := b.MapChild(pos)
		h := hashUint64(uint64(hi - lo))
		for i := lo; i < hi; i++ {
			// map equality/hash must be independent of pair order.
			h ^= keys.Hash(i) * 1099511628211
			h ^= values.Hash(i) * 1099511628211
		}
		return h
	case KindRow:
		h := hashUint64(uint64(len(b.rowChildren)))
		for i, c := range b.rowChildren {
			h ^= rotl(c.Hash(pos), uint(i)+1)
		}
		return h
	default:
		return nullHash
	}
}

func rotl(v uint64, k uint) uint64 {
	k &= 63
	return (v << k) | (v >> (64 - k))
}
