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
	"sync"

	"github.com/driftql/drift/errs"
	"github.com/driftql/drift/predicate"
	"github.com/google/uuid"
)

type memTable struct {
	columns []ColumnSpec
	shards  map[uuid.UUID]Shard
	batches map[string]bool
}

// MemStore is an in-process Store used by tests and by single-node
// deployments that do not need a durable metadata backend; it upholds
// the same atomicity and uniqueness contracts as PgStore behind a mutex
// rather than a SQL transaction.
type MemStore struct {
	mu     sync.Mutex
	tables map[TableID]*memTable
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{tables: make(map[TableID]*memTable)}
}

func (m *MemStore) CreateTable(ctx context.Context, table TableID, columns []ColumnSpec) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tables[table]; ok {
		return errs.New(errs.AlreadyExists, "shard: table %d already has shard bookkeeping", table)
	}
	m.tables[table] = &memTable{
		columns: columns,
		shards:  make(map[uuid.UUID]Shard),
		batches: make(map[string]bool),
	}
	return nil
}

func (m *MemStore) require(table TableID) (*memTable, error) {
	t, ok := m.tables[table]
	if !ok {
		return nil, errs.New(errs.NotFound, "shard: no shard bookkeeping for table %d", table)
	}
	return t, nil
}

func (m *MemStore) CommitShards(ctx context.Context, table TableID, columns []ColumnSpec, shards []Shard, externalBatchID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, err := m.require(table)
	if err != nil {
		return err
	}
	if externalBatchID != "" && t.batches[externalBatchID] {
		return errAlreadyExists(externalBatchID)
	}
	for _, s := range shards {
		if _, exists := t.shards[s.UUID]; exists {
			return errs.New(errs.RaptorError, "shard: shard %s already committed", s.UUID)
		}
	}
	for _, s := range shards {
		t.shards[s.UUID] = s
	}
	if externalBatchID != "" {
		t.batches[externalBatchID] = true
	}
	return nil
}

func (m *MemStore) ReplaceShardUUIDs(ctx context.Context, table TableID, columns []ColumnSpec, oldUUIDs []uuid.UUID, newShards []Shard) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, err := m.require(table)
	if err != nil {
		return err
	}
	found := 0
	for _, id := range oldUUIDs {
		if _, ok := t.shards[id]; ok {
			found++
		}
	}
	if found != len(oldUUIDs) {
		return errs.New(errs.TransactionConflict, "shard: replace_shard_uuids found %d of %d requested shards for table %d", found, len(oldUUIDs), table)
	}
	for _, id := range oldUUIDs {
		delete(t.shards, id)
	}
	for _, s := range newShards {
		t.shards[s.UUID] = s
	}
	return nil
}

func (m *MemStore) GetNodeTableShards(ctx context.Context, nodeID string, table TableID) ([]Shard, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, err := m.require(table)
	if err != nil {
		return nil, err
	}
	var out []Shard
	for _, s := range t.shards {
		for _, n := range s.NodeIDs {
			if n == nodeID {
				out = append(out, s)
				break
			}
		}
	}
	return out, nil
}

func (m *MemStore) GetShardNodes(ctx context.Context, table TableID, columns []ColumnSpec, pred predicate.TupleDomain[int]) (ShardIterator, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, err := m.require(table)
	if err != nil {
		return nil, err
	}
	var matched []Shard
	for _, s := range t.shards {
		if !Prune(s, columns, pred) {
			matched = append(matched, s)
		}
	}
	return &memIterator{shards: matched}, nil
}

func (m *MemStore) AssignShard(ctx context.Context, table TableID, shardUUID uuid.UUID, nodeID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, err := m.require(table)
	if err != nil {
		return err
	}
	s, ok := t.shards[shardUUID]
	if !ok {
		return errs.New(errs.NotFound, "shard: no such shard %s in table %d", shardUUID, table)
	}
	for _, n := range s.NodeIDs {
		if n == nodeID {
			return nil // idempotent
		}
	}
	s.NodeIDs = append(s.NodeIDs, nodeID)
	t.shards[shardUUID] = s
	return nil
}

func (m *MemStore) DropTable(ctx context.Context, table TableID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tables[table]; !ok {
		return errs.New(errs.NotFound, "shard: no shard bookkeeping for table %d", table)
	}
	delete(m.tables, table)
	return nil
}

type memIterator struct {
	shards []Shard
	pos    int
	closed bool
}

func (it *memIterator) Next(ctx context.Context) (uuid.UUID, []string, bool, error) {
	if it.closed || it.pos >= len(it.shards) {
		return uuid.UUID{}, nil, false, nil
	}
	s := it.shards[it.pos]
	it.pos++
	return s.UUID, s.NodeIDs, true, nil
}

func (it *memIterator) Close() error {
	it.closed = true
	return nil
}
