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

package connector

import (
	"context"
	"fmt"
	"sync"

	"github.com/driftql/drift/block"
	"github.com/driftql/drift/cursor"
	"github.com/driftql/drift/errs"
	"github.com/driftql/drift/predicate"
	"github.com/driftql/drift/split"
)

// NativeID is the connector id of the built-in, shard-backed store (spec
// §4.5 names it simply "the native store").
const NativeID ID = "native"

// nativeHandle is Native's TableHandle/ColumnHandle implementation: a
// schema-qualified name plus, for columns, the column name.
type nativeHandle struct {
	schema, table, column string
}

func (h nativeHandle) ConnectorID() ID { return NativeID }
func (h nativeHandle) String() string {
	if h.column != "" {
		return fmt.Sprintf("native:%s.%s.%s", h.schema, h.table, h.column)
	}
	return fmt.Sprintf("native:%s.%s", h.schema, h.table)
}

type nativeTable struct {
	columns []ColumnMetadata
	blocks  []*block.Block // one block per committed shard/insert batch
}

// Native is an in-memory, shard-free reference implementation of the
// connector SPI good enough to drive tests end to end. The durable,
// index-pruned native store lives in package shard; Native does not use
// it and keeps every committed block in memory.
type Native struct {
	mu     sync.RWMutex
	tables map[string]*nativeTable // "schema.table"
}

// NewNative returns an empty Native connector.
func NewNative() *Native {
	return &Native{tables: make(map[string]*nativeTable)}
}

func key(schema, table string) string { return schema + "." + table }

func (n *Native) ID() ID { return NativeID }

func (n *Native) ListSchemas(ctx context.Context) ([]string, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	seen := map[string]bool{}
	var out []string
	for k := range n.tables {
		for i := 0; i < len(k); i++ {
			if k[i] == '.' {
				s := k[:i]
				if !seen[s] {
					seen[s] = true
					out = append(out, s)
				}
				break
			}
		}
	}
	return out, nil
}

func (n *Native) ListTables(ctx context.Context, schema string) ([]string, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	var out []string
	prefix := schema + "."
	for k, t := range n.tables {
		if len(k) > len(prefix) && k[:len(prefix)] == prefix {
			_ = t
			out = append(out, k[len(prefix):])
		}
	}
	return out, nil
}

func (n *Native) GetTableHandle(ctx context.Context, schema, table string) (TableHandle, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if _, ok := n.tables[key(schema, table)]; !ok {
		return nil, nil
	}
	return nativeHandle{schema: schema, table: table}, nil
}

func (n *Native) lookup(h TableHandle) (string, *nativeTable, error) {
	nh, ok := h.(nativeHandle)
	if !ok || nh.ConnectorID() != NativeID {
		return "", nil, errs.New(errs.InvalidFunctionArgument, "connector: handle %v does not belong to the native connector", h)
	}
	n.mu.RLock()
	defer n.mu.RUnlock()
	k := key(nh.schema, nh.table)
	t, ok := n.tables[k]
	if !ok {
		return "", nil, errs.New(errs.NotFound, "connector: native table %s does not exist", k)
	}
	return k, t, nil
}

func (n *Native) GetTableMetadata(ctx context.Context, h TableHandle) (TableMetadata, error) {
	_, t, err := n.lookup(h)
	if err != nil {
		return TableMetadata{}, err
	}
	return TableMetadata{Handle: h, Columns: t.columns}, nil
}

func (n *Native) GetColumnHandles(ctx context.Context, h TableHandle) (map[string]ColumnHandle, error) {
	nh := h.(nativeHandle)
	_, t, err := n.lookup(h)
	if err != nil {
		return nil, err
	}
	out := make(map[string]ColumnHandle, len(t.columns))
	for _, c := range t.columns {
		out[c.Name] = nativeHandle{schema: nh.schema, table: nh.table, column: c.Name}
	}
	return out, nil
}

// GetPartitions reports the whole table as a single partition; pruning
// below partition granularity is the shard index's job (C5), not this
// table-registry layer, so the entire predicate comes back unenforced.
func (n *Native) GetPartitions(ctx context.Context, h TableHandle, pred predicate.TupleDomain[ColumnHandle]) ([]Partition, predicate.TupleDomain[ColumnHandle], error) {
	if _, _, err := n.lookup(h); err != nil {
		return nil, predicate.TupleDomain[ColumnHandle]{}, err
	}
	return []Partition{wholeTablePartition{}}, pred, nil
}

type wholeTablePartition struct{}

func (wholeTablePartition) String() string { return "whole-table" }

func (n *Native) GetSplits(ctx context.Context, h TableHandle, partitions []Partition) (split.Source, error) {
	_, t, err := n.lookup(h)
	if err != nil {
		return nil, err
	}
	n.mu.RLock()
	defer n.mu.RUnlock()
	splits := make([]split.Split, len(t.blocks))
	for i, b := range t.blocks {
		splits[i] = split.Split{Info: b, RemotelyAccessible: true}
	}
	return split.NewSliceSource(splits), nil
}

func (n *Native) GetRecordSet(ctx context.Context, s split.Split, columns []ColumnHandle) (cursor.RecordSet, error) {
	b, ok := s.Info.(*block.Block)
	if !ok {
		return nil, errs.New(errs.InternalError, "connector: split info is not a native block")
	}
	names := make([]string, len(columns))
	for i, c := range columns {
		names[i] = c.(nativeHandle).column
	}
	rs, err := cursor.NewBlockRecordSet(b, names)
	if err != nil {
		return nil, err
	}
	return rs, nil
}

// WritePath returns the table create/insert/drop/rename mutation surface;
// view management and the byte-fragment CommitInsert are NOT_SUPPORTED on
// the in-memory registry.
func (n *Native) WritePath() WritePath { return (*nativeWrite)(n) }

type nativeWrite Native

func (w *nativeWrite) n() *Native { return (*Native)(w) }

func (w *nativeWrite) BeginCreateTable(ctx context.Context, schema, table string, columns []ColumnMetadata) (TableHandle, error) {
	n := w.n()
	n.mu.Lock()
	defer n.mu.Unlock()
	k := key(schema, table)
	if _, exists := n.tables[k]; exists {
		return nil, errs.New(errs.AlreadyExists, "connector: table %s already exists", k)
	}
	n.tables[k] = &nativeTable{columns: columns}
	return nativeHandle{schema: schema, table: table}, nil
}

func (w *nativeWrite) CommitCreateTable(ctx context.Context, h TableHandle) error {
	_, _, err := w.n().lookup(h)
	return err
}

func (w *nativeWrite) BeginInsert(ctx context.Context, h TableHandle) (InsertHandle, error) {
	if _, _, err := w.n().lookup(h); err != nil {
		return nil, err
	}
	return insertHandle{TableHandle: h}, nil
}

type insertHandle struct{ TableHandle }

func (w *nativeWrite) CommitInsert(ctx context.Context, h InsertHandle, fragments [][]byte) error {
	return errs.New(errs.NotSupported, "connector: CommitInsert expects *block.Block fragments; use CommitInsertBlocks")
}

// CommitInsertBlocks is the native-connector-specific insert path: the
// generic SPI's []byte fragment shape does not fit an already-columnar
// block, so callers that know they are talking to Native use this
// instead of the interface method.
func (w *nativeWrite) CommitInsertBlocks(h InsertHandle, blocks ...*block.Block) error {
	n := w.n()
	ih, ok := h.(insertHandle)
	if !ok {
		return errs.New(errs.InvalidFunctionArgument, "connector: insert handle %v does not belong to the native connector", h)
	}
	_, t, err := n.lookup(ih.TableHandle)
	if err != nil {
		return err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	t.blocks = append(t.blocks, blocks...)
	return nil
}

func (w *nativeWrite) DropTable(ctx context.Context, h TableHandle) error {
	nh := h.(nativeHandle)
	n := w.n()
	if _, _, err := n.lookup(h); err != nil {
		return err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.tables, key(nh.schema, nh.table))
	return nil
}

func (w *nativeWrite) RenameTable(ctx context.Context, h TableHandle, newSchema, newTable string) error {
	nh := h.(nativeHandle)
	n := w.n()
	n.mu.Lock()
	defer n.mu.Unlock()
	oldKey := key(nh.schema, nh.table)
	t, ok := n.tables[oldKey]
	if !ok {
		return errs.New(errs.NotFound, "connector: native table %s does not exist", oldKey)
	}
	newKey := key(newSchema, newTable)
	if _, exists := n.tables[newKey]; exists {
		return errs.New(errs.AlreadyExists, "connector: table %s already exists", newKey)
	}
	delete(n.tables, oldKey)
	n.tables[newKey] = t
	return nil
}

func (w *nativeWrite) CreateView(ctx context.Context, schema, view, definition string, replace bool) error {
	return errs.New(errs.NotSupported, "connector: native connector does not support views")
}
func (w *nativeWrite) DropView(ctx context.Context, schema, view string) error {
	return errs.New(errs.NotSupported, "connector: native connector does not support views")
}
func (w *nativeWrite) ListViews(ctx context.Context, schema string) ([]string, error) {
	return nil, errs.New(errs.NotSupported, "connector: native connector does not support views")
}
func (w *nativeWrite) GetView(ctx context.Context, schema, view string) (string, error) {
	return "", errs.New(errs.NotSupported, "connector: native connector does not support views")
}
