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
	"encoding/binary"
	"fmt"
	"log"
	"math"
	"strings"

	"github.com/driftql/drift/block"
	"github.com/driftql/drift/errs"
	"github.com/driftql/drift/predicate"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgStore is the durable Store backed by a Postgres-compatible metadata
// database (spec §6's shards/shard_nodes/external_batches/x_shards_t<id>
// layout). It is the production Store; MemStore exists for tests and
// single-node deployments that forgo a separate metadata database.
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore wraps an already-connected pool. Startup retry with backoff
// against a not-yet-ready database is the caller's responsibility (spec
// §4.5: "bounded retry on metadata-store unavailability at startup"),
// since that policy belongs with the process's startup sequencing, not
// the store itself.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// EnsureGlobalTables creates the shards/shard_nodes/external_batches
// tables shared across all user tables, if they do not already exist.
func (s *PgStore) EnsureGlobalTables(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS shards (
	shard_uuid UUID PRIMARY KEY,
	table_id BIGINT NOT NULL,
	row_count BIGINT NOT NULL,
	compressed_bytes BIGINT NOT NULL,
	uncompressed_bytes BIGINT NOT NULL
);
CREATE TABLE IF NOT EXISTS shard_nodes (
	shard_uuid UUID NOT NULL REFERENCES shards(shard_uuid),
	node_id TEXT NOT NULL,
	PRIMARY KEY (shard_uuid, node_id)
);
CREATE TABLE IF NOT EXISTS external_batches (
	table_id BIGINT NOT NULL,
	batch_id TEXT NOT NULL,
	PRIMARY KEY (table_id, batch_id)
);`
	_, err := s.pool.Exec(ctx, ddl)
	if err != nil {
		return errs.Wrap(errs.RaptorError, err, "shard: creating global bookkeeping tables")
	}
	return nil
}

func indexTableName(table TableID) string { return fmt.Sprintf("x_shards_t%d", table) }

// summaryByteLen is M in the varbinary(M) mapping spec §6 gives
// byte-slice summaries: long enough to hold a truncated string/bytes
// prefix comparison can still order correctly on.
const summaryByteLen = 32

// pgColumnType maps a column's physical type to the SQL type spec §6
// assigns its c<id>_min/c<id>_max pair: bool->boolean, int64->bigint,
// float64->double, byte-slice->varbinary(M). Columns without a Cmp, or
// whose Type is unknown to the caller, carry no (min,max) summary but
// still need a placeholder pair so CommitShards' column list stays
// positional; bytea round-trips any opaque value for that case.
func pgColumnType(spec ColumnSpec) string {
	if spec.Cmp == nil || spec.Type == nil {
		return "bytea"
	}
	switch spec.Type.Category() {
	case block.CatBoolean:
		return "boolean"
	case block.CatInt64:
		return "bigint"
	case block.CatFloat64:
		return "double precision"
	case block.CatBytes:
		return fmt.Sprintf("varbinary(%d)", summaryByteLen)
	default:
		return "bytea"
	}
}

func (s *PgStore) CreateTable(ctx context.Context, table TableID, columns []ColumnSpec) error {
	var cols strings.Builder
	for _, c := range columns {
		fmt.Fprintf(&cols, ", c%d_min %s, c%d_max %s", c.ID, pgColumnType(c), c.ID, pgColumnType(c))
	}
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	shard_id BIGSERIAL PRIMARY KEY,
	shard_uuid UUID UNIQUE NOT NULL,
	node_ids BYTEA NOT NULL
	%s
)`, indexTableName(table), cols.String())
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return errs.Wrap(errs.RaptorError, err, "shard: creating index table for table %d", table)
	}
	return nil
}

func packNodeIDs(nodeIDs []string) []byte {
	buf := make([]byte, 0, 4+8*len(nodeIDs))
	var n [4]byte
	binary.BigEndian.PutUint32(n[:], uint32(len(nodeIDs)))
	buf = append(buf, n[:]...)
	for _, id := range nodeIDs {
		var l [4]byte
		binary.BigEndian.PutUint32(l[:], uint32(len(id)))
		buf = append(buf, l[:]...)
		buf = append(buf, id...)
	}
	return buf
}

// encodeSummary serializes a min/max summary value into bytes whose
// unsigned lexicographic (bytea) ordering matches the value's true
// numeric ordering. Raw big-endian bytes of a signed two's-complement
// int64 or an IEEE-754 float64 do NOT have that property for negative
// values, so each numeric case applies the standard order-preserving
// transform before the byte write:
//
//   - int64: XOR the sign bit, mapping the signed range onto an
//     unsigned range with the same relative order (every negative value
//     maps below every non-negative value, and within each half the
//     original order is preserved).
//   - float64: if non-negative, set the sign bit (so it sorts above
//     every negative value); if negative, flip every bit (so larger
//     magnitude, i.e. more negative, sorts lower).
func encodeSummary(v any) []byte {
	switch x := v.(type) {
	case bool:
		if x {
			return []byte{1}
		}
		return []byte{0}
	case int64:
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], uint64(x)^0x8000000000000000)
		return b[:]
	case float64:
		bits := math.Float64bits(x)
		if bits&0x8000000000000000 != 0 {
			bits = ^bits
		} else {
			bits |= 0x8000000000000000
		}
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], bits)
		return b[:]
	case []byte:
		return x
	case string:
		return []byte(x)
	default:
		return nil
	}
}

func (s *PgStore) CommitShards(ctx context.Context, table TableID, columns []ColumnSpec, shards []Shard, externalBatchID string) error {
	if externalBatchID != "" {
		var exists bool
		err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM external_batches WHERE table_id=$1 AND batch_id=$2)`, table, externalBatchID).Scan(&exists)
		if err != nil {
			return errs.Wrap(errs.RaptorError, err, "shard: checking external batch id")
		}
		if exists {
			return errAlreadyExists(externalBatchID)
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return errs.Wrap(errs.RaptorError, err, "shard: beginning commit_shards transaction")
	}
	defer tx.Rollback(ctx)

	for _, sh := range shards {
		if _, err := tx.Exec(ctx, `INSERT INTO shards (shard_uuid, table_id, row_count, compressed_bytes, uncompressed_bytes) VALUES ($1,$2,$3,$4,$5)`,
			sh.UUID, table, sh.RowCount, sh.CompressedBytes, sh.UncompressedBytes); err != nil {
			return errs.Wrap(errs.RaptorError, err, "shard: inserting shard %s", sh.UUID)
		}
		for _, n := range sh.NodeIDs {
			if _, err := tx.Exec(ctx, `INSERT INTO shard_nodes (shard_uuid, node_id) VALUES ($1,$2)`, sh.UUID, n); err != nil {
				return errs.Wrap(errs.RaptorError, err, "shard: assigning node %s to shard %s", n, sh.UUID)
			}
		}
		names, placeholders, args := []string{"shard_uuid", "node_ids"}, []string{"$1", "$2"}, []any{sh.UUID, packNodeIDs(sh.NodeIDs)}
		for _, c := range columns {
			mm, ok := sh.ColumnSummary[c.ID]
			if !ok {
				continue
			}
			names = append(names, fmt.Sprintf("c%d_min", c.ID), fmt.Sprintf("c%d_max", c.ID))
			args = append(args, encodeSummary(mm.Min), encodeSummary(mm.Max))
			placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)-1), fmt.Sprintf("$%d", len(args)))
		}
		q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", indexTableName(table), strings.Join(names, ","), strings.Join(placeholders, ","))
		if _, err := tx.Exec(ctx, q, args...); err != nil {
			return errs.Wrap(errs.RaptorError, err, "shard: inserting index row for shard %s", sh.UUID)
		}
	}
	if externalBatchID != "" {
		if _, err := tx.Exec(ctx, `INSERT INTO external_batches (table_id, batch_id) VALUES ($1,$2)`, table, externalBatchID); err != nil {
			var pgErr *pgconn.PgError
			if asPgErr(err, &pgErr) && pgErr.Code == "23505" {
				return errAlreadyExists(externalBatchID)
			}
			return errs.Wrap(errs.RaptorError, err, "shard: recording external batch id")
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return errs.Wrap(errs.RaptorError, err, "shard: committing commit_shards transaction")
	}
	return nil
}

func asPgErr(err error, target **pgconn.PgError) bool {
	for err != nil {
		if e, ok := err.(*pgconn.PgError); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

func (s *PgStore) ReplaceShardUUIDs(ctx context.Context, table TableID, columns []ColumnSpec, oldUUIDs []uuid.UUID, newShards []Shard) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return errs.Wrap(errs.RaptorError, err, "shard: beginning replace_shard_uuids transaction")
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE shard_uuid = ANY($1)`, indexTableName(table)), oldUUIDs)
	if err != nil {
		return errs.Wrap(errs.RaptorError, err, "shard: deleting old index rows")
	}
	if tag.RowsAffected() != int64(len(oldUUIDs)) {
		return errs.New(errs.TransactionConflict, "shard: replace_shard_uuids removed %d of %d requested rows for table %d", tag.RowsAffected(), len(oldUUIDs), table)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM shard_nodes WHERE shard_uuid = ANY($1)`, oldUUIDs); err != nil {
		return errs.Wrap(errs.RaptorError, err, "shard: deleting old shard_nodes rows")
	}
	if _, err := tx.Exec(ctx, `DELETE FROM shards WHERE shard_uuid = ANY($1)`, oldUUIDs); err != nil {
		return errs.Wrap(errs.RaptorError, err, "shard: deleting old shard rows")
	}
	if err := commitShardRowsTx(ctx, tx, table, columns, newShards); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return errs.Wrap(errs.RaptorError, err, "shard: committing replace_shard_uuids transaction")
	}
	return nil
}

// commitShardRowsTx inserts shards/shard_nodes/index rows within an
// already-open transaction, shared by ReplaceShardUUIDs.
func commitShardRowsTx(ctx context.Context, tx pgx.Tx, table TableID, columns []ColumnSpec, shards []Shard) error {
	for _, sh := range shards {
		if _, err := tx.Exec(ctx, `INSERT INTO shards (shard_uuid, table_id, row_count, compressed_bytes, uncompressed_bytes) VALUES ($1,$2,$3,$4,$5)`,
			sh.UUID, table, sh.RowCount, sh.CompressedBytes, sh.UncompressedBytes); err != nil {
			return errs.Wrap(errs.RaptorError, err, "shard: inserting shard %s", sh.UUID)
		}
		for _, n := range sh.NodeIDs {
			if _, err := tx.Exec(ctx, `INSERT INTO shard_nodes (shard_uuid, node_id) VALUES ($1,$2)`, sh.UUID, n); err != nil {
				return errs.Wrap(errs.RaptorError, err, "shard: assigning node %s to shard %s", n, sh.UUID)
			}
		}
		names, placeholders, args := []string{"shard_uuid", "node_ids"}, []string{"$1", "$2"}, []any{sh.UUID, packNodeIDs(sh.NodeIDs)}
		for _, c := range columns {
			mm, ok := sh.ColumnSummary[c.ID]
			if !ok {
				continue
			}
			names = append(names, fmt.Sprintf("c%d_min", c.ID), fmt.Sprintf("c%d_max", c.ID))
			args = append(args, encodeSummary(mm.Min), encodeSummary(mm.Max))
			placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)-1), fmt.Sprintf("$%d", len(args)))
		}
		q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", indexTableName(table), strings.Join(names, ","), strings.Join(placeholders, ","))
		if _, err := tx.Exec(ctx, q, args...); err != nil {
			return errs.Wrap(errs.RaptorError, err, "shard: inserting index row for shard %s", sh.UUID)
		}
	}
	return nil
}

func (s *PgStore) GetNodeTableShards(ctx context.Context, nodeID string, table TableID) ([]Shard, error) {
	rows, err := s.pool.Query(ctx, `SELECT s.shard_uuid, s.row_count, s.compressed_bytes, s.uncompressed_bytes
		FROM shards s JOIN shard_nodes n ON n.shard_uuid = s.shard_uuid
		WHERE n.node_id = $1 AND s.table_id = $2`, nodeID, table)
	if err != nil {
		return nil, errs.Wrap(errs.RaptorError, err, "shard: querying node shards")
	}
	defer rows.Close()
	var out []Shard
	for rows.Next() {
		var sh Shard
		if err := rows.Scan(&sh.UUID, &sh.RowCount, &sh.CompressedBytes, &sh.UncompressedBytes); err != nil {
			return nil, errs.Wrap(errs.RaptorError, err, "shard: scanning node shard row")
		}
		out = append(out, sh)
	}
	return out, rows.Err()
}

// GetShardNodes compiles pred into a WHERE clause over the index table's
// cN_min/cN_max columns and streams matching (uuid, node_ids) pairs
// through a pgxIterator. Unindexable/unconstrained columns contribute no
// clause, per spec §4.5.
func (s *PgStore) GetShardNodes(ctx context.Context, table TableID, columns []ColumnSpec, pred predicate.TupleDomain[int]) (ShardIterator, error) {
	if pred.IsNone() {
		return &memIterator{}, nil
	}
	where, args := compileWhere(pred, columns)
	q := fmt.Sprintf(`SELECT shard_uuid, node_ids FROM %s`, indexTableName(table))
	if where != "" {
		q += " WHERE " + where
	}
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, errs.Wrap(errs.RaptorError, err, "shard: querying shard index")
	}
	return &pgIterator{rows: rows}, nil
}

// compileWhere builds the contrapositive exclusion clause: a shard is
// excluded (not returned) when its cN_min/cN_max are provably disjoint
// from every allowed range, so the positive clause kept here is the
// negation of that — "could possibly overlap" — expressed per range as
// NOT (max < low OR min > high) with the appropriate inclusivity.
func compileWhere(pred predicate.TupleDomain[int], columns []ColumnSpec) (string, []any) {
	byID := make(map[int]ColumnSpec, len(columns))
	for _, c := range columns {
		byID[c.ID] = c
	}
	var clauses []string
	var args []any
	for col, dom := range pred.Domains() {
		spec, ok := byID[col]
		if !ok || spec.Cmp == nil {
			continue
		}
		ranges := dom.Values.Ranges()
		if len(ranges) == 0 {
			continue
		}
		var perRange []string
		for _, r := range ranges {
			cond := "TRUE"
			if r.HasLow {
				args = append(args, encodeSummary(r.Low))
				op := ">="
				if !r.LowInclusive {
					op = ">"
				}
				cond = fmt.Sprintf("c%d_max %s $%d", spec.ID, op, len(args))
			}
			if r.HasHigh {
				args = append(args, encodeSummary(r.High))
				op := "<="
				if !r.HighInclusive {
					op = "<"
				}
				cond += fmt.Sprintf(" AND c%d_min %s $%d", spec.ID, op, len(args))
			}
			perRange = append(perRange, "("+cond+")")
		}
		clause := "(" + strings.Join(perRange, " OR ") + ")"
		if dom.NullAllowed {
			clause = fmt.Sprintf("(%s OR c%d_min IS NULL)", clause, spec.ID)
		}
		clauses = append(clauses, clause)
	}
	return strings.Join(clauses, " AND "), args
}

func (s *PgStore) AssignShard(ctx context.Context, table TableID, shardUUID uuid.UUID, nodeID string) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO shard_nodes (shard_uuid, node_id) VALUES ($1,$2) ON CONFLICT DO NOTHING`, shardUUID, nodeID)
	if err != nil {
		return errs.Wrap(errs.RaptorError, err, "shard: assigning shard %s to node %s", shardUUID, nodeID)
	}
	return nil
}

// DropTable deletes shard bookkeeping transactionally and best-effort
// drops the per-table index table outside that transaction, per spec
// §4.5 — a failure to drop the index table is logged, not fatal. No
// sweeper in this package reclaims an index table left behind that way.
func (s *PgStore) DropTable(ctx context.Context, table TableID) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return errs.Wrap(errs.RaptorError, err, "shard: beginning drop_table transaction")
	}
	defer tx.Rollback(ctx)
	if _, err := tx.Exec(ctx, `DELETE FROM shard_nodes WHERE shard_uuid IN (SELECT shard_uuid FROM shards WHERE table_id=$1)`, table); err != nil {
		return errs.Wrap(errs.RaptorError, err, "shard: deleting shard_nodes for table %d", table)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM shards WHERE table_id=$1`, table); err != nil {
		return errs.Wrap(errs.RaptorError, err, "shard: deleting shards for table %d", table)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM external_batches WHERE table_id=$1`, table); err != nil {
		return errs.Wrap(errs.RaptorError, err, "shard: deleting external_batches for table %d", table)
	}
	if err := tx.Commit(ctx); err != nil {
		return errs.Wrap(errs.RaptorError, err, "shard: committing drop_table transaction")
	}
	if _, err := s.pool.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", indexTableName(table))); err != nil {
		// Best-effort per spec §4.5: the orphaned index table stays in
		// place. Diagnostic hook only, never fatal here.
		logDropTableFailure(table, err)
	}
	return nil
}

// logDropTableFailure reports a failed index-table drop as a warning
// through the standard log package; it is a package-level variable so
// tests in this package can replace it.
var logDropTableFailure = func(table TableID, err error) {
	log.Printf("shard: warning: dropping index table %s failed: %v", indexTableName(table), err)
}

type pgIterator struct {
	rows pgx.Rows
}

func (it *pgIterator) Next(ctx context.Context) (uuid.UUID, []string, bool, error) {
	if !it.rows.Next() {
		return uuid.UUID{}, nil, false, it.rows.Err()
	}
	var id uuid.UUID
	var packed []byte
	if err := it.rows.Scan(&id, &packed); err != nil {
		return uuid.UUID{}, nil, false, errs.Wrap(errs.RaptorError, err, "shard: scanning shard-node row")
	}
	return id, unpackNodeIDs(packed), true, nil
}

func (it *pgIterator) Close() error {
	it.rows.Close()
	return nil
}

func unpackNodeIDs(buf []byte) []string {
	if len(buf) < 4 {
		return nil
	}
	n := binary.BigEndian.Uint32(buf[:4])
	buf = buf[4:]
	out := make([]string, 0, n)
	for i := uint32(0); i < n && len(buf) >= 4; i++ {
		l := binary.BigEndian.Uint32(buf[:4])
		buf = buf[4:]
		if uint32(len(buf)) < l {
			break
		}
		out = append(out, string(buf[:l]))
		buf = buf[l:]
	}
	return out
}
