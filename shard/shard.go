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

// Package shard implements the shard/index engine (C5): the UUID-keyed
// unit of committed table data, its per-column (min,max) summary used for
// pruning, and the metadata store that persists shard bookkeeping
// transactionally.
package shard

import (
	"github.com/driftql/drift/block"
	"github.com/driftql/drift/errs"
	"github.com/google/uuid"
)

// MinMax is the per-column summary carried by a shard for an indexable
// column (spec §3: bool, int64, float64, truncated byte-slice).
type MinMax struct {
	Min, Max any
}

// Shard is one committed, immutable unit of table data (spec §3).
type Shard struct {
	UUID uuid.UUID

	RowCount            int64
	CompressedBytes     int64
	UncompressedBytes   int64

	// ColumnSummary maps column id -> MinMax for every indexable column.
	// A column absent here is unindexable (nested, or an over-length
	// string) and contributes no pruning predicate.
	ColumnSummary map[int]MinMax

	NodeIDs []string
}

// IndexableType reports whether t's category yields a (min,max) summary.
func IndexableType(t *block.Type) bool {
	switch t.Category() {
	case block.CatBoolean, block.CatInt64, block.CatFloat64, block.CatBytes:
		return true
	default:
		return false
	}
}

// Validate checks the shard invariants from spec §3: min<=max per
// summarized column, and a non-empty node set.
func (s Shard) Validate(cmp map[int]func(a, b any) int) error {
	if len(s.NodeIDs) == 0 {
		return errs.New(errs.InternalError, "shard: shard %s has no owning nodes", s.UUID)
	}
	for col, mm := range s.ColumnSummary {
		c, ok := cmp[col]
		if !ok {
			continue
		}
		if c(mm.Min, mm.Max) > 0 {
			return errs.New(errs.InternalError, "shard: shard %s column %d has min > max", s.UUID, col)
		}
	}
	return nil
}
