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
	"testing"

	"github.com/driftql/drift/block"
	"github.com/driftql/drift/errs"
	"github.com/driftql/drift/predicate"
	"github.com/driftql/drift/split"
)

func buildRow(ids []int64) *block.Block {
	rowType := block.Row(block.Field{Name: "id", Type: block.Bigint})
	rb := block.NewBuilder(rowType, len(ids))
	for _, v := range ids {
		fields := rb.RowFields()
		fields[0].AppendInt64(v)
		rb.EndRow()
	}
	return rb.Build()
}

func TestNativeCreateInsertScan(t *testing.T) {
	ctx := context.Background()
	n := NewNative()
	wp := n.WritePath().(*nativeWrite)

	h, err := wp.BeginCreateTable(ctx, "default", "events", []ColumnMetadata{
		{Name: "id", Type: block.Bigint},
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := wp.CommitCreateTable(ctx, h); err != nil {
		t.Fatal(err)
	}

	ih, err := wp.BeginInsert(ctx, h)
	if err != nil {
		t.Fatal(err)
	}
	row := buildRow([]int64{1, 2, 3})
	if err := wp.CommitInsertBlocks(ih.(insertHandle), row); err != nil {
		t.Fatal(err)
	}

	cols, err := n.GetColumnHandles(ctx, h)
	if err != nil {
		t.Fatal(err)
	}
	idCol := cols["id"]

	partitions, unenforced, err := n.GetPartitions(ctx, h, predicate.All[ColumnHandle]())
	if err != nil {
		t.Fatal(err)
	}
	if !unenforced.IsAll() {
		t.Fatalf("expected unenforced predicate to remain ALL, got %+v", unenforced)
	}

	src, err := n.GetSplits(ctx, h, partitions)
	if err != nil {
		t.Fatal(err)
	}
	splits, err := split.DrainAll(ctx, src, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(splits) != 1 {
		t.Fatalf("expected 1 split, got %d", len(splits))
	}

	rs, err := n.GetRecordSet(ctx, splits[0], []ColumnHandle{idCol})
	if err != nil {
		t.Fatal(err)
	}
	cur, err := rs.Cursor()
	if err != nil {
		t.Fatal(err)
	}
	var got []int64
	for cur.AdvanceNextPosition() {
		got = append(got, cur.GetInt64(0))
	}
	if len(got) != 3 || got[0] != 1 || got[1] != 2 || got[2] != 3 {
		t.Fatalf("unexpected scan result: %v", got)
	}
}

func TestForeignHandleRejected(t *testing.T) {
	n1 := NewNative()
	reg := NewRegistry()
	if err := reg.Register(n1); err != nil {
		t.Fatal(err)
	}
	var h TableHandle = otherConnectorHandle{}
	if err := CheckOwnership(NativeID, h); errs.CodeOf(err) != errs.InvalidFunctionArgument {
		t.Fatalf("expected InvalidFunctionArgument rejecting foreign handle, got %v", err)
	}
	if _, err := reg.Resolve(h); errs.CodeOf(err) != errs.NotFound {
		t.Fatalf("expected NotFound resolving an unregistered connector id, got %v", err)
	}
}

type otherConnectorHandle struct{}

func (otherConnectorHandle) ConnectorID() ID { return "other" }
func (otherConnectorHandle) String() string  { return "other:x" }
