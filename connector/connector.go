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

// Package connector defines the uniform SPI that every data source
// implements (C3): schema/table discovery, handle resolution, partition
// and split production, record-set opening, and an optional write path.
// Connectors never panic on an unsupported operation; they return a
// NotSupported *errs.Error with a human-readable reason instead.
package connector

import (
	"context"

	"github.com/driftql/drift/block"
	"github.com/driftql/drift/cursor"
	"github.com/driftql/drift/predicate"
	"github.com/driftql/drift/split"
)

// ID identifies a connector instance, e.g. "native" or "postgres_events".
type ID string

// TableHandle is an opaque reference to a table, scoped to the connector
// that issued it. Connectors type-assert their own concrete handle type
// out of the interface; the Registry below rejects foreign handles
// before they reach that assertion.
type TableHandle interface {
	ConnectorID() ID
	String() string
}

// ColumnHandle is an opaque reference to a column, scoped the same way as
// TableHandle.
type ColumnHandle interface {
	ConnectorID() ID
	String() string
}

// ColumnMetadata describes one column of a table in declaration order.
type ColumnMetadata struct {
	Name   string
	Type   *block.Type
	Handle ColumnHandle
}

// TableMetadata describes a resolved table's shape.
type TableMetadata struct {
	Handle  TableHandle
	Columns []ColumnMetadata
}

// Partition is an opaque unit of table data a connector can further break
// into splits, e.g. a shard UUID or a remote-table partition key.
type Partition interface {
	String() string
}

// Connector is the SPI every data source implements (spec §4.3).
//
// Every method may return a *errs.Error with Code NotSupported if the
// connector does not implement that capability; callers must check the
// code rather than assume every method is present, since NotSupported is
// a valid steady-state response, not a bug.
type Connector interface {
	ID() ID

	ListSchemas(ctx context.Context) ([]string, error)
	ListTables(ctx context.Context, schema string) ([]string, error)

	// GetTableHandle resolves a schema-qualified table name. It returns
	// (nil, nil) if the table does not exist, distinct from an error.
	GetTableHandle(ctx context.Context, schema, table string) (TableHandle, error)
	GetTableMetadata(ctx context.Context, h TableHandle) (TableMetadata, error)
	GetColumnHandles(ctx context.Context, h TableHandle) (map[string]ColumnHandle, error)

	// GetPartitions returns the partitions matching pred and the portion
	// of pred the connector could not enforce, which the engine must
	// re-apply above the scan.
	GetPartitions(ctx context.Context, h TableHandle, pred predicate.TupleDomain[ColumnHandle]) (partitions []Partition, unenforced predicate.TupleDomain[ColumnHandle], err error)

	GetSplits(ctx context.Context, h TableHandle, partitions []Partition) (split.Source, error)
	GetRecordSet(ctx context.Context, s split.Split, columns []ColumnHandle) (cursor.RecordSet, error)

	WritePath() WritePath // nil if the connector is read-only
}

// WritePath is the optional mutation surface of a connector. A connector
// that supports only a subset of these operations still implements the
// full interface and returns NotSupported from the rest.
type WritePath interface {
	BeginCreateTable(ctx context.Context, schema, table string, columns []ColumnMetadata) (TableHandle, error)
	CommitCreateTable(ctx context.Context, h TableHandle) error

	BeginInsert(ctx context.Context, h TableHandle) (InsertHandle, error)
	CommitInsert(ctx context.Context, h InsertHandle, fragments [][]byte) error

	DropTable(ctx context.Context, h TableHandle) error
	RenameTable(ctx context.Context, h TableHandle, newSchema, newTable string) error

	CreateView(ctx context.Context, schema, view, definition string, replace bool) error
	DropView(ctx context.Context, schema, view string) error
	ListViews(ctx context.Context, schema string) ([]string, error)
	GetView(ctx context.Context, schema, view string) (definition string, err error)
}

// InsertHandle is an opaque reference to an in-flight insert transaction.
type InsertHandle interface {
	ConnectorID() ID
	String() string
}
