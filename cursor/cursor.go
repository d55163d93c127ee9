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

// Package cursor implements the streaming row-at-a-time contract (C9)
// that every connector's get_record_set returns, and the page-source
// adapter that batches cursor rows into block.Page values for the rest
// of the engine to consume.
package cursor

import (
	"io"

	"github.com/driftql/drift/block"
	"github.com/driftql/drift/errs"
)

// Cursor pulls one row at a time from a connector. Exactly one successful
// call to AdvanceNextPosition is required before any accessor is valid;
// calling an accessor for the wrong type panics with a programming-error
// *errs.Error, since that indicates a planner/connector mismatch rather
// than a condition the engine should recover from.
type Cursor interface {
	// AdvanceNextPosition moves the cursor to the next row. It returns
	// false once the underlying data is exhausted or the cursor has
	// failed; callers must check Err after a false return.
	AdvanceNextPosition() bool
	Err() error

	IsNull(field int) bool
	GetBool(field int) bool
	GetInt64(field int) int64
	GetFloat64(field int) float64
	GetBytes(field int) []byte
	GetObject(sess block.Session, field int) (any, error)

	GetType(field int) *block.Type

	GetTotalBytes() int64
	GetCompletedBytes() int64
	GetReadTimeNanos() int64

	io.Closer
}

// RecordSet is a factory for cursors over a single split, plus the
// column types the cursor will produce (spec §4.9).
type RecordSet interface {
	Columns() []*block.Type
	Cursor() (Cursor, error)
}

// requireType panics with a typed-programming-error *errs.Error; cursor
// implementations call this from their Get* accessors when the
// requested field's declared type does not match the accessor.
func requireType(got, want block.Kind, field int) {
	if got != want {
		panic(errs.New(errs.InternalError, "cursor: typed-programming-error: field %d is %s, not %s", field, got, want))
	}
}
