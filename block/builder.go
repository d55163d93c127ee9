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

// Builder accumulates positions for a single Type and produces an
// immutable Block via Build. Builders are single-threaded; the Block
// they produce is immutable and shareable (spec §5).
type Builder struct {
	typ   *Type
	n     int
	nulls []bool

	bools   []bool
	longs   []int64
	doubles []float64

	offsets []int32
	data    []byte

	arrayChild   *Builder
	arrayOffsets []int32

	mapKeys    *Builder
	mapValues  *Builder
	mapOffsets []int32

	rowChildren []*Builder
}

// NewBuilder returns a Builder for typ, optionally pre-sizing its payload
// to hold capacity positions without reallocation.
func NewBuilder(typ *Type, capacity int) *Builder {
	b := &Builder{typ: typ}
	switch typ.Category() {
	case CatBoolean:
		b.bools = make([]bool, 0, capacity)
	case CatInt64:
		b.longs = make([]int64, 0, capacity)
	case CatFloat64:
		b.doubles = make([]float64, 0, capacity)
	case CatBytes:
		b.offsets = make([]int32, 1, capacity+1)
		b.offsets[0] = 0
		b.data = make([]byte, 0, capacity*8)
	case CatNested:
		switch typ.Kind {
		case KindArray:
			b.arrayChild = NewBuilder(typ.Elem, capacity)
			b.arrayOffsets = make([]int32, 1, capacity+1)
		case KindMap:
			b.mapKeys = NewBuilder(typ.Key, capacity)
			b.mapValues = NewBuilder(typ.Value, capacity)
			b.mapOffsets = make([]int32, 1, capacity+1)
		case KindRow:
			b.rowChildren = make([]*Builder, len(typ.Fields))
			for i, f := range typ.Fields {
				b.rowChildren[i] = NewBuilder(f.Type, capacity)
			}
		}
	}
	return b
}

func (b *Builder) growNulls() {
	if b.nulls == nil {
		b.nulls = make([]bool, b.n)
	}
}

func (b *Builder) padNulls() {
	if b.nulls != nil {
		for len(b.nulls) < b.n {
			b.nulls = append(b.nulls, false)
		}
	}
}

// AppendNull appends a null position. Kind-specific payload arrays are
// padded with a zero value so that every payload slice stays length n.
func (b *Builder) AppendNull() {
	b.growNulls()
	b.nulls = append(b.nulls, true)
	switch b.typ.Category() {
	case CatBoolean:
		b.bools = append(b.bools, false)
	case CatInt64:
		b.longs = append(b.longs, 0)
	case CatFloat64:
		b.doubles = append(b.doubles, 0)
	case CatBytes:
		b.offsets = append(b.offsets, b.offsets[len(b.offsets)-1])
	case CatNested:
		switch b.typ.Kind {
		case KindArray:
			b.arrayOffsets = append(b.arrayOffsets, b.arrayOffsets[len(b.arrayOffsets)-1])
		case KindMap:
			b.mapOffsets = append(b.mapOffsets, b.mapOffsets[len(b.mapOffsets)-1])
		case KindRow:
			for _, c := range b.rowChildren {
				c.AppendNull()
			}
		}
	}
	b.n++
	b.padNulls()
}

func (b *Builder) appendNonNull() {
	b.n++
	b.padNulls()
}

// AppendBool appends a non-null boolean value.
func (b *Builder) AppendBool(v bool) {
	requireTypeCategory(b.typ, CatBoolean)
	b.bools = append(b.bools, v)
	b.appendNonNull()
}

// AppendInt64 appends a non-null int64 value.
func (b *Builder) AppendInt64(v int64) {
	requireTypeCategory(b.typ, CatInt64)
	b.longs = append(b.longs, v)
	b.appendNonNull()
}

// AppendFloat64 appends a non-null double value.
func (b *Builder) AppendFloat64(v float64) {
	requireTypeCategory(b.typ, CatFloat64)
	b.doubles = append(b.doubles, v)
	b.appendNonNull()
}

// AppendBytes appends a non-null byte-slice value, copying v into the
// builder's backing array.
func (b *Builder) AppendBytes(v []byte) {
	requireTypeCategory(b.typ, CatBytes)
	b.data = append(b.data, v...)
	b.offsets = append(b.offsets, int32(len(b.data)))
	b.appendNonNull()
}

// AppendString is a convenience wrapper over AppendBytes.
func (b *Builder) AppendString(v string) { b.AppendBytes([]byte(v)) }

// BeginArray returns the child Builder to append elements to for the next
// array position; call EndArray once all of its elements are appended.
func (b *Builder) BeginArray() *Builder {
	if b.typ.Kind != KindArray {
		panic(errs.New(errs.InternalError, "block: BeginArray on non-array builder"))
	}
	return b.arrayChild
}

// EndArray finalizes the array value at the next position using however
// many elements were appended to BeginArray's builder since the last
// EndArray/AppendNull call.
func (b *Builder) EndArray() {
	b.arrayOffsets = append(b.arrayOffsets, int32(b.arrayChild.n))
	b.appendNonNull()
}

// BeginMap returns the key and value child Builders for the next map
// position; call EndMap once all pairs are appended.
func (b *Builder) BeginMap() (keys, values *Builder) {
	if b.typ.Kind != KindMap {
		panic(errs.New(errs.InternalError, "block: BeginMap on non-map builder"))
	}
	return b.mapKeys, b.mapValues
}

// EndMap finalizes the map value at the next position.
func (b *Builder) EndMap() {
	b.mapOffsets = append(b.mapOffsets, int32(b.mapKeys.n))
	b.appendNonNull()
}

// RowFields returns the per-field child Builders for a row value. Callers
// append exactly one value (or null) to every field builder, then call
// EndRow.
func (b *Builder) RowFields() []*Builder {
	if b.typ.Kind != KindRow {
		panic(errs.New(errs.InternalError, "block: RowFields on non-row builder"))
	}
	return b.rowChildren
}

// EndRow finalizes the row value at the next position after its field
// builders have each received one value.
func (b *Builder) EndRow() {
	b.appendNonNull()
}

// Build finalizes the builder's current contents into an immutable Block.
// The builder only ever appends to its payload slices, so values appended
// after Build do not change a Block already built.
func (b *Builder) Build() *Block {
	blk := &Block{
		typ:     b.typ,
		n:       b.n,
		nulls:   b.nulls,
		bools:   b.bools,
		longs:   b.longs,
		doubles: b.doubles,
		offsets: b.offsets,
		data:    b.data,
	}
	switch b.typ.Kind {
	case KindArray:
		blk.arrayChild = b.arrayChild.Build()
		blk.arrayOffsets = b.arrayOffsets
	case KindMap:
		blk.mapKeys = b.mapKeys.Build()
		blk.mapValues = b.mapValues.Build()
		blk.mapOffsets = b.mapOffsets
	case KindRow:
		children := make([]*Block, len(b.rowChildren))
		for i, c := range b.rowChildren {
			children[i] = c.Build()
		}
		blk.rowChildren = children
	}
	return blk
}
