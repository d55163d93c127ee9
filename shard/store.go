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

	"github.com/driftql/drift/block"
	"github.com/driftql/drift/errs"
	"github.com/driftql/drift/predicate"
	"github.com/google/uuid"
)

// TableID identifies a table's shard bookkeeping, scoped globally (spec
// §4.5 names index tables "x_shards_t<tableId>").
type TableID int64

// ColumnSpec names and types the columns a shard index tracks.
type ColumnSpec struct {
	ID   int
	Name string
	// Type is the column's physical type, used by PgStore to pick the
	// c<id>_min/c<id>_max SQL column type (spec §6). Nil for columns
	// whose physical type is unknown to the caller; PgStore then falls
	// back to bytea.
	Type *block.Type
	// Cmp orders two summary values of this column; nil for unindexable
	// columns, which the store still records metadata for but never
	// prunes on.
	Cmp func(a, b any) int
}

// ShardIterator streams (uuid, nodeIDs) pairs for GetShardNodes; callers
// must Close it exactly once.
type ShardIterator interface {
	Next(ctx context.Context) (uuid.UUID, []string, bool, error)
	Close() error
}

// Store is the metadata-store contract C5 operates against: a
// transactional home for shard bookkeeping, independent of which SQL
// engine backs it (spec §4.5).
type Store interface {
	CreateTable(ctx context.Context, table TableID, columns []ColumnSpec) error

	// CommitShards atomically inserts shards, their node assignments,
	// and index rows; externalBatchID, if non-empty, must be unique
	// across all commits to this table.
	CommitShards(ctx context.Context, table TableID, columns []ColumnSpec, shards []Shard, externalBatchID string) error

	// ReplaceShardUUIDs atomically removes oldUUIDs and inserts
	// newShards; it fails with TransactionConflict if the number of rows
	// actually removed does not equal len(oldUUIDs).
	ReplaceShardUUIDs(ctx context.Context, table TableID, columns []ColumnSpec, oldUUIDs []uuid.UUID, newShards []Shard) error

	GetNodeTableShards(ctx context.Context, nodeID string, table TableID) ([]Shard, error)

	// GetShardNodes returns shards whose [min,max] summary is not
	// provably disjoint from pred, streamed through a closeable
	// iterator (spec §4.5).
	GetShardNodes(ctx context.Context, table TableID, columns []ColumnSpec, pred predicate.TupleDomain[int]) (ShardIterator, error)

	AssignShard(ctx context.Context, table TableID, shardUUID uuid.UUID, nodeID string) error

	DropTable(ctx context.Context, table TableID) error
}

// Prune reports whether shard s can be excluded from a scan constrained
// by pred: it is excluded only when, for some constrained column, s's
// [min,max] is disjoint from every range the column's domain allows
// (spec §4.5's contrapositive rule). Unindexable columns never prune.
func Prune(s Shard, columns []ColumnSpec, pred predicate.TupleDomain[int]) bool {
	if pred.IsNone() {
		return true
	}
	if pred.IsAll() {
		return false
	}
	byID := make(map[int]ColumnSpec, len(columns))
	for _, c := range columns {
		byID[c.ID] = c
	}
	for col, dom := range pred.Domains() {
		spec, ok := byID[col]
		if !ok || spec.Cmp == nil {
			continue
		}
		mm, ok := s.ColumnSummary[col]
		if !ok {
			continue // unindexable for this shard: contributes no pruning
		}
		if dom.NullAllowed && isNullSummary(mm) {
			continue // shard may contain the null this domain allows
		}
		disjoint := true
		for _, r := range dom.Values.Ranges() {
			if rangeOverlapsMinMax(r, mm, spec.Cmp) {
				disjoint = false
				break
			}
		}
		if disjoint {
			return true
		}
	}
	return false
}

func isNullSummary(mm MinMax) bool { return mm.Min == nil && mm.Max == nil }

func rangeOverlapsMinMax(r predicate.Range, mm MinMax, cmp func(a, b any) int) bool {
	if r.HasLow {
		c := cmp(mm.Max, r.Low)
		if c < 0 || (c == 0 && !r.LowInclusive) {
			return false
		}
	}
	if r.HasHigh {
		c := cmp(mm.Min, r.High)
		if c > 0 || (c == 0 && !r.HighInclusive) {
			return false
		}
	}
	return true
}

// errAlreadyExists is returned by CommitShards for a duplicate batch id.
func errAlreadyExists(batchID string) error {
	return errs.New(errs.ExternalBatchAlreadyExists, "shard: external batch id %q was already committed", batchID)
}
