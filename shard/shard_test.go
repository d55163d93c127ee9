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

package shard

import (
	"context"
	"testing"

	"github.com/driftql/drift/block"
	"github.com/driftql/drift/errs"
	"github.com/driftql/drift/predicate"
	"github.com/google/uuid"
)

func floatCmp(a, b any) int {
	x, y := a.(float64), b.(float64)
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	default:
		return 0
	}
}

func mkShard(min, max float64, nodes ...string) Shard {
	return Shard{
		UUID:          uuid.New(),
		RowCount:      100,
		NodeIDs:       nodes,
		ColumnSummary: map[int]MinMax{0: {Min: min, Max: max}},
	}
}

// TestS3ShardPrune implements scenario S3 from spec §8: a table with
// shards covering x in [0,10] and [20,30]; BETWEEN 11 AND 19 excludes
// both, x<5 keeps only the first.
func TestS3ShardPrune(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	cols := []ColumnSpec{{ID: 0, Name: "x", Type: block.Double, Cmp: floatCmp}}
	if err := store.CreateTable(ctx, 1, cols); err != nil {
		t.Fatal(err)
	}
	s1 := mkShard(0, 10, "n1")
	s2 := mkShard(20, 30, "n1")
	if err := store.CommitShards(ctx, 1, cols, []Shard{s1, s2}, ""); err != nil {
		t.Fatal(err)
	}

	between := predicate.FromDomains(map[int]predicate.Domain{
		0: predicate.NewDomain(predicate.NewSortedRangeSet(floatCmp, predicate.NewRange(floatCmp, 11.0, true, true, 19.0, true, true)), false),
	})
	it, err := store.GetShardNodes(ctx, 1, cols, between)
	if err != nil {
		t.Fatal(err)
	}
	defer it.Close()
	count := 0
	for {
		_, _, ok, err := it.Next(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			break
		}
		count++
	}
	if count != 0 {
		t.Fatalf("BETWEEN 11 AND 19 should prune both shards, matched %d", count)
	}

	lessThan5 := predicate.FromDomains(map[int]predicate.Domain{
		0: predicate.NewDomain(predicate.NewSortedRangeSet(floatCmp, predicate.NewRange(floatCmp, nil, false, false, 5.0, true, false)), false),
	})
	it2, err := store.GetShardNodes(ctx, 1, cols, lessThan5)
	if err != nil {
		t.Fatal(err)
	}
	defer it2.Close()
	var matched []uuid.UUID
	for {
		id, _, ok, err := it2.Next(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			break
		}
		matched = append(matched, id)
	}
	if len(matched) != 1 || matched[0] != s1.UUID {
		t.Fatalf("x<5 should keep only shard1, got %v", matched)
	}
}

func TestCommitShardsDuplicateBatchID(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	cols := []ColumnSpec{{ID: 0, Name: "x", Type: block.Double, Cmp: floatCmp}}
	if err := store.CreateTable(ctx, 1, cols); err != nil {
		t.Fatal(err)
	}
	if err := store.CommitShards(ctx, 1, cols, []Shard{mkShard(0, 1, "n1")}, "batch-1"); err != nil {
		t.Fatal(err)
	}
	err := store.CommitShards(ctx, 1, cols, []Shard{mkShard(2, 3, "n1")}, "batch-1")
	if errs.CodeOf(err) != errs.ExternalBatchAlreadyExists {
		t.Fatalf("expected EXTERNAL_BATCH_ALREADY_EXISTS, got %v", err)
	}
}

func TestReplaceShardUUIDsMismatchAborts(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	cols := []ColumnSpec{{ID: 0, Name: "x", Type: block.Double, Cmp: floatCmp}}
	if err := store.CreateTable(ctx, 1, cols); err != nil {
		t.Fatal(err)
	}
	s1 := mkShard(0, 1, "n1")
	if err := store.CommitShards(ctx, 1, cols, []Shard{s1}, ""); err != nil {
		t.Fatal(err)
	}
	bogus := uuid.New()
	err := store.ReplaceShardUUIDs(ctx, 1, cols, []uuid.UUID{s1.UUID, bogus}, []Shard{mkShard(0, 1, "n2")})
	if errs.CodeOf(err) != errs.TransactionConflict {
		t.Fatalf("expected TRANSACTION_CONFLICT, got %v", err)
	}
}

func TestAssignShardIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	cols := []ColumnSpec{{ID: 0, Name: "x", Type: block.Double, Cmp: floatCmp}}
	if err := store.CreateTable(ctx, 1, cols); err != nil {
		t.Fatal(err)
	}
	s1 := mkShard(0, 1, "n1")
	if err := store.CommitShards(ctx, 1, cols, []Shard{s1}, ""); err != nil {
		t.Fatal(err)
	}
	if err := store.AssignShard(ctx, 1, s1.UUID, "n1"); err != nil {
		t.Fatal(err)
	}
	if err := store.AssignShard(ctx, 1, s1.UUID, "n1"); err != nil {
		t.Fatal(err)
	}
	shards, err := store.GetNodeTableShards(ctx, "n1", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(shards) != 1 || len(shards[0].NodeIDs) != 1 {
		t.Fatalf("expected idempotent assignment, got %+v", shards)
	}
}
