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

// Package agg implements hash-aggregation state (C8): TypedHistogram and
// TypedSet, open-addressed hash tables keyed by positions of a growing
// columnar values block rather than by boxed Go values, so that group
// keys stay in the same physical representation the rest of the engine
// uses (spec §4.8).
package agg

import (
	"golang.org/x/exp/slices"

	"github.com/driftql/drift/block"
	"github.com/driftql/drift/errs"
)

// softMemoryLimit is the per-state soft cap from spec §4.8; exceeding it
// raises EXCEEDED_MEMORY_LIMIT rather than growing without bound.
const softMemoryLimit = 4 << 20

// maxLoadFactor triggers a capacity doubling once the table is this full.
const maxLoadFactor = 0.9

// TypedHistogram counts occurrences of each distinct key of keyType. Keys
// live in a single growing block.Builder; the hash table stores, per
// slot, the 1-based position of the key in that block (0 means empty),
// so rehashing after a grow is just recomputing each key's slot from its
// stable block.Hash rather than moving any key data.
type TypedHistogram struct {
	keyType *block.Type
	keys    *block.Builder
	built   *block.Block // snapshot of keys as of the last insert

	counts []int64

	slots   []int32 // len is a power of two; 0 = empty, else keyPos+1
	filled  int
	memUsed int64
}

// NewTypedHistogram returns an empty histogram over keys of keyType.
func NewTypedHistogram(keyType *block.Type) *TypedHistogram {
	const initialSlots = 16
	return &TypedHistogram{
		keyType: keyType,
		keys:    block.NewBuilder(keyType, initialSlots),
		slots:   make([]int32, initialSlots),
	}
}

// Len returns the number of distinct keys seen so far.
func (h *TypedHistogram) Len() int { return len(h.counts) }

// Keys returns the block holding one distinct key per position, in
// first-seen order; Keys().Len() == h.Len().
func (h *TypedHistogram) Keys() *block.Block { return h.built }

// CountAt returns the accumulated count for the key at position pos in
// Keys().
func (h *TypedHistogram) CountAt(pos int) int64 { return h.counts[pos] }

// Add records count occurrences of the value at (src, pos), creating a
// new distinct key if none matches (spec §4.8's single mutator).
func (h *TypedHistogram) Add(src *block.Block, pos int, count int64) error {
	if float64(h.filled+1) > maxLoadFactor*float64(len(h.slots)) {
		if err := h.grow(); err != nil {
			return err
		}
	}
	hv := src.Hash(pos)
	mask := uint64(len(h.slots) - 1)
	for i := hv & mask; ; i = (i + 1) & mask {
		slot := h.slots[i]
		if slot == 0 {
			keyPos, err := h.appendKey(src, pos)
			if err != nil {
				return err
			}
			h.slots[i] = int32(keyPos) + 1
			h.counts = append(h.counts, count)
			h.filled++
			return nil
		}
		keyPos := int(slot - 1)
		eq, err := block.Equals(h.built, keyPos, src, pos)
		if err != nil {
			return err
		}
		if eq {
			h.counts[keyPos] += count
			return nil
		}
	}
}

// AddAll merges other into h without double-counting shared keys (spec
// §4.8: add_all merges, duplicate keys accumulate counts).
func (h *TypedHistogram) AddAll(other *TypedHistogram) error {
	for i := 0; i < other.Len(); i++ {
		if err := h.Add(other.built, i, other.counts[i]); err != nil {
			return err
		}
	}
	return nil
}

func (h *TypedHistogram) appendKey(src *block.Block, pos int) (int, error) {
	keyPos := h.keys.Len()
	sz := appendFromBlock(h.keys, src, pos)
	h.memUsed += sz + 24 // +24 for the count int64 and the slot entry
	if h.memUsed > softMemoryLimit {
		return 0, errs.New(errs.ExceededMemoryLimit, "agg: histogram exceeded %d bytes", softMemoryLimit)
	}
	h.built = h.keys.Build()
	return keyPos, nil
}

// grow doubles the table's slot capacity and rehashes every existing key
// by recomputing its slot from Keys().Hash(pos) — no key data moves,
// only the position index each slot points at.
func (h *TypedHistogram) grow() error {
	oldLen := len(h.slots)
	newSlots := make([]int32, oldLen*2)
	mask := uint64(len(newSlots) - 1)
	for _, slot := range h.slots {
		if slot == 0 {
			continue
		}
		keyPos := int(slot - 1)
		hv := h.built.Hash(keyPos)
		for i := hv & mask; ; i = (i + 1) & mask {
			if newSlots[i] == 0 {
				newSlots[i] = slot
				break
			}
		}
	}
	h.memUsed += int64(len(newSlots)-oldLen) * 4
	h.slots = newSlots
	return nil
}

// Serialize produces a pair of parallel blocks, the distinct keys and
// their counts (position i of one matches position i of the other),
// suitable for cross-stage transport (spec §4.8); Deserialize reconstructs a
// histogram from the same pair via AddAll semantics so merges never
// double-count.
func (h *TypedHistogram) Serialize() (keys *block.Block, counts *block.Block) {
	cb := block.NewBuilder(block.Bigint, h.Len())
	for _, c := range h.counts {
		cb.AppendInt64(c)
	}
	return h.built, cb.Build()
}

// Deserialize rebuilds a histogram from a Serialize pair.
func Deserialize(keyType *block.Type, keys, counts *block.Block) (*TypedHistogram, error) {
	h := NewTypedHistogram(keyType)
	for i := 0; i < keys.Len(); i++ {
		if err := h.Add(keys, i, counts.GetInt64(i)); err != nil {
			return nil, err
		}
	}
	return h, nil
}

// SortByCountDesc returns the key positions ordered by descending count,
// the shape a TOP-N-by-frequency query needs (grounded on the teacher's
// use of golang.org/x/exp/slices for stable ordering of aggregate rows).
func (h *TypedHistogram) SortByCountDesc() []int {
	order := make([]int, h.Len())
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) bool {
		return h.counts[a] > h.counts[b]
	})
	return order
}

// appendFromBlock copies the value at (src, pos) into dst, switching on
// physical category rather than per-Kind dispatch. It returns an
// approximate byte cost for memory accounting.
func appendFromBlock(dst *block.Builder, src *block.Block, pos int) int64 {
	if src.IsNull(pos) {
		dst.AppendNull()
		return 1
	}
	switch src.Type().Category() {
	case block.CatBoolean:
		dst.AppendBool(src.GetBool(pos))
		return 1
	case block.CatInt64:
		dst.AppendInt64(src.GetInt64(pos))
		return 8
	case block.CatFloat64:
		dst.AppendFloat64(src.GetFloat64(pos))
		return 8
	case block.CatBytes:
		v := src.GetBytes(pos)
		dst.AppendBytes(v)
		return int64(len(v))
	default:
		// Nested keys (array/map/row GROUP BY) are not produced by the
		// scalar aggregation path; callers project nested group keys to
		// a scalar column upstream.
		dst.AppendNull()
		return 1
	}
}
