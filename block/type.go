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

// Package block implements the columnar value representation (C1): Type,
// Block, Builder, Page, and the block-encoding registry.
//
// Per the design notes, operator dispatch over primitive SQL types is a
// small match over the physical category rather than per-type virtual
// dispatch: Type is a concrete struct tagged with a Kind, and every
// operation switches on that Kind, falling back to the Elem/Fields of a
// nested type where needed.
package block

import (
	"fmt"
	"strings"
)

// Category is the erased physical representation a Kind maps onto.
type Category int

const (
	CatUnknown Category = iota
	CatBoolean
	CatInt64
	CatFloat64
	CatBytes
	CatNested
)

func (c Category) String() string {
	switch c {
	case CatBoolean:
		return "boolean"
	case CatInt64:
		return "int64"
	case CatFloat64:
		return "float64"
	case CatBytes:
		return "bytes"
	case CatNested:
		return "nested"
	default:
		return "unknown"
	}
}

// Kind enumerates the concrete SQL types this layer supports.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindBoolean
	KindBigint
	KindDouble
	KindVarchar
	KindVarbinary
	KindDate
	KindTimestamp
	KindTimestampTZ
	KindArray
	KindMap
	KindRow
)

// String returns the Kind's type-signature name for scalar kinds (parametric
// kinds need their Type to render the parameters, see Type.Name).
func (k Kind) String() string {
	switch k {
	case KindBoolean:
		return "boolean"
	case KindBigint:
		return "bigint"
	case KindDouble:
		return "double"
	case KindVarchar:
		return "varchar"
	case KindVarbinary:
		return "varbinary"
	case KindDate:
		return "date"
	case KindTimestamp:
		return "timestamp"
	case KindTimestampTZ:
		return "timestamp with time zone"
	case KindArray:
		return "array"
	case KindMap:
		return "map"
	case KindRow:
		return "row"
	default:
		return "unknown"
	}
}

// Field is one member of a row<...> type; Name is empty when the field is
// unnamed (row<T1,...,Tn> without field names, per spec §3).
type Field struct {
	Name string
	Type *Type
}

// Type is a type signature: a Kind plus, for parametric kinds, the
// parameter types. Types are immutable and safe to share once constructed.
type Type struct {
	Kind   Kind
	Elem   *Type   // array<T>
	Key    *Type   // map<K,V>
	Value  *Type   // map<K,V>
	Fields []Field // row<...>
}

var (
	Unknown     = &Type{Kind: KindUnknown}
	Boolean     = &Type{Kind: KindBoolean}
	Bigint      = &Type{Kind: KindBigint}
	Double      = &Type{Kind: KindDouble}
	Varchar     = &Type{Kind: KindVarchar}
	Varbinary   = &Type{Kind: KindVarbinary}
	Date        = &Type{Kind: KindDate}
	Timestamp   = &Type{Kind: KindTimestamp}
	TimestampTZ = &Type{Kind: KindTimestampTZ}
)

// Array returns the type array<elem>.
func Array(elem *Type) *Type { return &Type{Kind: KindArray, Elem: elem} }

// Map returns the type map<key,value>.
func Map(key, value *Type) *Type { return &Type{Kind: KindMap, Key: key, Value: value} }

// Row returns the type row<fields...>.
func Row(fields ...Field) *Type { return &Type{Kind: KindRow, Fields: fields} }

// Category returns the erased physical representation of t.
func (t *Type) Category() Category {
	switch t.Kind {
	case KindBoolean:
		return CatBoolean
	case KindBigint, KindDate, KindTimestamp, KindTimestampTZ:
		return CatInt64
	case KindDouble:
		return CatFloat64
	case KindVarchar, KindVarbinary:
		return CatBytes
	case KindArray, KindMap, KindRow:
		return CatNested
	default:
		return CatUnknown
	}
}

// Comparable reports whether two values of t can be compared for equality.
// unknown has no operations other than returning null, so it is reported
// as not comparable; everything else is, subject to the array/row
// null-element caveat enforced at evaluation time (see Equals/Compare).
func (t *Type) Comparable() bool { return t.Kind != KindUnknown }

// Orderable reports whether values of t support Compare. Maps have no
// total order in this engine.
func (t *Type) Orderable() bool {
	switch t.Kind {
	case KindUnknown, KindMap:
		return false
	case KindArray:
		return t.Elem.Orderable()
	case KindRow:
		for _, f := range t.Fields {
			if !f.Type.Orderable() {
				return false
			}
		}
		return true
	default:
		return true
	}
}

// Name returns the type's signature string, e.g. "array<bigint>" or
// "row<a bigint, varchar>".
func (t *Type) Name() string {
	switch t.Kind {
	case KindUnknown:
		return "unknown"
	case KindBoolean:
		return "boolean"
	case KindBigint:
		return "bigint"
	case KindDouble:
		return "double"
	case KindVarchar:
		return "varchar"
	case KindVarbinary:
		return "varbinary"
	case KindDate:
		return "date"
	case KindTimestamp:
		return "timestamp"
	case KindTimestampTZ:
		return "timestamp with time zone"
	case KindArray:
		return fmt.Sprintf("array<%s>", t.Elem.Name())
	case KindMap:
		return fmt.Sprintf("map<%s,%s>", t.Key.Name(), t.Value.Name())
	case KindRow:
		parts := make([]string, len(t.Fields))
		for i, f := range t.Fields {
			if f.Name != "" {
				parts[i] = f.Name + " " + f.Type.Name()
			} else {
				parts[i] = f.Type.Name()
			}
		}
		return fmt.Sprintf("row<%s>", strings.Join(parts, ", "))
	default:
		return "?"
	}
}

func (t *Type) String() string { return t.Name() }

// Equal reports whether t and u have the same signature.
func (t *Type) Equal(u *Type) bool {
	if t == u {
		return true
	}
	if t == nil || u == nil || t.Kind != u.Kind {
		return false
	}
	switch t.Kind {
	case KindArray:
		return t.Elem.Equal(u.Elem)
	case KindMap:
		return t.Key.Equal(u.Key) && t.Value.Equal(u.Value)
	case KindRow:
		if len(t.Fields) != len(u.Fields) {
			return false
		}
		for i := range t.Fields {
			if t.Fields[i].Name != u.Fields[i].Name || !t.Fields[i].Type.Equal(u.Fields[i].Type) {
				return false
			}
		}
		return true
	default:
		return true
	}
}
