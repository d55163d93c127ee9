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

import "github.com/driftql/drift/errs"

// Block is an immutable columnar batch of values of a single Type. The
// position set is always zero-indexed and contiguous (positions
// [0, Len())). A Block is built exclusively through a Builder and is
// immutable and safe to share across goroutines once built.
type Block struct {
	typ   *Type
	n     int
	nulls []bool // nil if no position is null; else len n

	bools   []bool    // CatBoolean payload, len n
	longs   []int64   // CatInt64 payload, len n
	doubles []float64 // CatFloat64 payload, len n

	offsets []int32 // CatBytes payload: byte-offset table, len n+1
	data    []byte  // CatBytes payload

	// CatNested payload.
	arrayChild   *Block  // KindArray: the single child block
	arrayOffsets []int32 // KindArray: len n+1, ranges into arrayChild

	mapKeys      *Block  // KindMap
	mapValues    *Block  // KindMap
	mapOffsets   []int32 // KindMap: len n+1, ranges into mapKeys/mapValues

	rowChildren []*Block // KindRow: one child per field, each of length n
}

// Type returns the type of every value in the block.
func (b *Block) Type() *Type { return b.typ }

// Len returns the position count of the block.
func (b *Block) Len() int { return b.n }

// IsNull reports whether the value at pos is null.
func (b *Block) IsNull(pos int) bool {
	b.checkPos(pos)
	return b.nulls != nil && b.nulls[pos]
}

func (b *Block) checkPos(pos int) {
	if pos < 0 || pos >= b.n {
		panic(errs.New(errs.InternalError, "block: position %d out of range [0,%d)", pos, b.n))
	}
}

func requireNotNull(b *Block, pos int) {
	if b.IsNull(pos) {
		panic(errs.New(errs.InternalError, "block: get_* called on null position %d", pos))
	}
}

func requireCategory(b *Block, cat Category) {
	requireTypeCategory(b.typ, cat)
}

func requireTypeCategory(t *Type, cat Category) {
	if t.Category() != cat {
		panic(errs.New(errs.InternalError, "block: typed-programming-error: expected category %s, got %s (type %s)", cat, t.Category(), t.Name()))
	}
}

// GetBool returns the boolean value at pos. It panics with a
// typed-programming-error if the block's type is not boolean-shaped, and
// requires the position to be non-null (spec §4.1).
func (b *Block) GetBool(pos int) bool {
	requireCategory(b, CatBoolean)
	requireNotNull(b, pos)
	return b.bools[pos]
}

// GetInt64 returns the 64-bit integer value at pos (also used for the
// epoch-millis-UTC representation of date/timestamp/timestamp-with-tz).
func (b *Block) GetInt64(pos int) int64 {
	requireCategory(b, CatInt64)
	requireNotNull(b, pos)
	return b.longs[pos]
}

// GetFloat64 returns the double value at pos.
func (b *Block) GetFloat64(pos int) float64 {
	requireCategory(b, CatFloat64)
	requireNotNull(b, pos)
	return b.doubles[pos]
}

// GetBytes returns the byte-slice value at pos (backs varchar/varbinary).
// The returned slice aliases the block's storage and must not be mutated.
func (b *Block) GetBytes(pos int) []byte {
	requireCategory(b, CatBytes)
	requireNotNull(b, pos)
	return b.data[b.offsets[pos]:b.offsets[pos+1]]
}

// GetString is a convenience wrapper over GetBytes for varchar blocks.
func (b *Block) GetString(pos int) string { return string(b.GetBytes(pos)) }

// ArrayChild returns the position range [lo, hi) within the array's
// single child block, for the array element stored at pos.
func (b *Block) ArrayChild(pos int) (child *Block, lo, hi int) {
	requireCategory(b, CatNested)
	if b.typ.Kind != KindArray {
		panic(errs.New(errs.InternalError, "block: ArrayChild called on non-array type %s", b.typ.Name()))
	}
	requireNotNull(b, pos)
	return b.arrayChild, int(b.arrayOffsets[pos]), int(b.arrayOffsets[pos+1])
}

// MapChild returns the key/value child blocks and the position range
// within them for the map stored at pos.
func (b *Block) MapChild(pos int) (keys, values *Block, lo, hi int) {
	requireCategory(b, CatNested)
	if b.typ.Kind != KindMap {
		panic(errs.New(errs.InternalError, "block: MapChild called on non-map type %s", b.typ.Name()))
	}
	requireNotNull(b, pos)
	return b.mapKeys, b.mapValues, int(b.mapOffsets[pos]), int(b.mapOffsets[pos+1])
}

// RowField returns the child block for field i of a row value; the row
// value at pos corresponds to position pos in the returned child.
func (b *Block) RowField(i int) *Block {
	requireCategory(b, CatNested)
	if b.typ.Kind != KindRow {
		panic(errs.New(errs.InternalError, "block: RowField called on non-row type %s", b.typ.Name()))
	}
	return b.rowChildren[i]
}

// Page is a tuple of equal-length blocks: the unit of inter-stage
// transport (spec §3).
type Page struct {
	Blocks []*Block
}

// Len returns the shared position count of the page's blocks, or 0 for an
// empty page.
func (p *Page) Len() int {
	if len(p.Blocks) == 0 {
		return 0
	}
	return p.Blocks[0].Len()
}

// NewPage validates that every block has the same length and returns a Page.
func NewPage(blocks []*Block) (*Page, error) {
	if len(blocks) == 0 {
		return &Page{}, nil
	}
	n := blocks[0].Len()
	for i, b := range blocks {
		if b.Len() != n {
			return nil, errs.New(errs.InternalError, "block: page column %d has length %d, want %d", i, b.Len(), n)
		}
	}
	return &Page{Blocks: blocks}, nil
}
