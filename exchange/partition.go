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

package exchange

import "github.com/driftql/drift/block"

// PartitionFunc assigns row pos of block b to one of n downstream
// buffers (spec §4.6).
type PartitionFunc func(b *block.Block, pos int, n int) int

// Unpartitioned routes every row to the single buffer 0.
func Unpartitioned() PartitionFunc {
	return func(b *block.Block, pos, n int) int { return 0 }
}

// SinglePartition is Unpartitioned under a more descriptive name for the
// case where n is known to be exactly 1 (a coordinator-local consumer).
func SinglePartition() PartitionFunc { return Unpartitioned() }

// Hash routes row pos by hashing the given columns with C1's stable
// siphash-based Block.Hash and reducing modulo n. Collisions across
// partitions are expected and harmless: equality is always re-checked
// downstream (spec §4.6).
func Hash(columns []*block.Block) PartitionFunc {
	return func(b *block.Block, pos, n int) int {
		if n <= 1 {
			return 0
		}
		var h uint64
		for i, c := range columns {
			ch := c.Hash(pos)
			if i == 0 {
				h = ch
			} else {
				h = h*1099511628211 ^ ch
			}
		}
		return int(h % uint64(n))
	}
}
