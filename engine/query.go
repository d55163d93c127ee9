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

package engine

import (
	"sync"
	"time"

	"github.com/driftql/drift/errs"
)

// QueryState is the lifecycle stage of a Query (spec §3, §4.7): a
// coordinator-level state machine above the per-worker Task machine,
// since C7 owns all three of query/stage/task per spec §2.
type QueryState int

const (
	QueryQueued QueryState = iota
	QueryPlanning
	QueryStarting
	QueryRunning
	QueryFinished
	QueryFailed
	QueryCanceled
)

func (s QueryState) String() string {
	switch s {
	case QueryQueued:
		return "QUEUED"
	case QueryPlanning:
		return "PLANNING"
	case QueryStarting:
		return "STARTING"
	case QueryRunning:
		return "RUNNING"
	case QueryFinished:
		return "FINISHED"
	case QueryFailed:
		return "FAILED"
	case QueryCanceled:
		return "CANCELED"
	default:
		return "UNKNOWN"
	}
}

// IsTerminal reports whether s is a terminal state.
func (s QueryState) IsTerminal() bool {
	return s == QueryFinished || s == QueryFailed || s == QueryCanceled
}

// advances reports whether the QUEUED->PLANNING->STARTING->RUNNING
// progression may move directly from s to next; cancellation and
// failure are handled separately since they may occur from any
// non-terminal state (spec §4.7's abort/fail-from-anywhere).
func (s QueryState) advances(next QueryState) bool {
	return next == s+1 && next <= QueryRunning
}

// QueryInfo is the externally-visible snapshot returned by get_query_info.
type QueryInfo struct {
	ID        QueryID
	State     QueryState
	StartTime time.Time
	EndTime   time.Time
	Err       error
}

// Query is the coordinator-level lifecycle record spanning every stage
// and task of one query (spec §3: "A query transitions through QUEUED
// -> PLANNING -> STARTING -> RUNNING -> FINISHED/FAILED/CANCELED").
type Query struct {
	mu      sync.Mutex
	id      QueryID
	state   QueryState
	start   time.Time
	end     time.Time
	failure error

	waiters []chan struct{}
}

// NewQuery creates a QUEUED query.
func NewQuery(id QueryID) *Query {
	return &Query{id: id, state: QueryQueued, start: time.Now()}
}

// Advance moves the query one step along QUEUED->PLANNING->STARTING->
// RUNNING; any other target is rejected as a programming error, since
// only the external planner driving this sequence should call it.
func (q *Query) Advance(to QueryState) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.state.IsTerminal() {
		return errs.New(errs.InternalError, "engine: query %s is already terminal (%s)", q.id, q.state)
	}
	if !q.state.advances(to) {
		return errs.New(errs.InternalError, "engine: query %s cannot advance %s -> %s", q.id, q.state, to)
	}
	q.state = to
	q.wakeLocked()
	return nil
}

func (q *Query) transition(to QueryState, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.state.IsTerminal() {
		return
	}
	q.state = to
	q.failure = err
	q.end = time.Now()
	q.wakeLocked()
}

// Finish transitions RUNNING -> FINISHED.
func (q *Query) Finish() { q.transition(QueryFinished, nil) }

// Cancel transitions to CANCELED from any non-terminal state, e.g. once
// a client has not polled within query.client.timeout (spec §4.7).
func (q *Query) Cancel() { q.transition(QueryCanceled, nil) }

// Fail transitions to FAILED, recording cause — e.g. once a
// RemoteTask's fault-tolerance window is exceeded (spec §4.7: "On
// failure, the query fails and all its tasks receive abort_task
// best-effort").
func (q *Query) Fail(cause error) { q.transition(QueryFailed, cause) }

// Info returns a snapshot of the query's externally-visible state.
func (q *Query) Info() QueryInfo {
	q.mu.Lock()
	defer q.mu.Unlock()
	return QueryInfo{ID: q.id, State: q.state, StartTime: q.start, EndTime: q.end, Err: q.failure}
}

func (q *Query) wakeLocked() {
	for _, ch := range q.waiters {
		close(ch)
	}
	q.waiters = nil
}

func (q *Query) waitForChange() <-chan struct{} {
	q.mu.Lock()
	defer q.mu.Unlock()
	ch := make(chan struct{})
	q.waiters = append(q.waiters, ch)
	return ch
}

// QueryManager owns every Query the coordinator is tracking, the
// query-level sibling of SqlTaskManager (spec §4.7).
type QueryManager struct {
	mu      sync.Mutex
	queries map[QueryID]*Query

	infoMaxAge time.Duration
}

// NewQueryManager returns an empty manager; infoMaxAge bounds how long
// a terminal query's info lingers before the GC sweeper removes it.
func NewQueryManager(infoMaxAge time.Duration) *QueryManager {
	return &QueryManager{queries: make(map[QueryID]*Query), infoMaxAge: infoMaxAge}
}

// Submit registers a fresh QUEUED query.
func (m *QueryManager) Submit(id QueryID) *Query {
	m.mu.Lock()
	defer m.mu.Unlock()
	q := NewQuery(id)
	m.queries[id] = q
	return q
}

func (m *QueryManager) get(id QueryID) (*Query, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.queries[id]
	if !ok {
		return nil, errs.New(errs.NotFound, "engine: no query %s", id)
	}
	return q, nil
}

// GetQueryInfo returns the query's info immediately.
func (m *QueryManager) GetQueryInfo(id QueryID) (QueryInfo, error) {
	q, err := m.get(id)
	if err != nil {
		return QueryInfo{}, err
	}
	return q.Info(), nil
}

// Advance drives id one step along QUEUED->PLANNING->STARTING->RUNNING.
func (m *QueryManager) Advance(id QueryID, to QueryState) error {
	q, err := m.get(id)
	if err != nil {
		return err
	}
	return q.Advance(to)
}

// Finish, Cancel, and Fail delegate to the named query.
func (m *QueryManager) Finish(id QueryID) error {
	q, err := m.get(id)
	if err != nil {
		return err
	}
	q.Finish()
	return nil
}

func (m *QueryManager) Cancel(id QueryID) error {
	q, err := m.get(id)
	if err != nil {
		return err
	}
	q.Cancel()
	return nil
}

func (m *QueryManager) Fail(id QueryID, cause error) error {
	q, err := m.get(id)
	if err != nil {
		return err
	}
	q.Fail(cause)
	return nil
}

// Sweep removes terminal queries whose EndTime is older than
// infoMaxAge, the periodic garbage collector named in spec §4.7.
func (m *QueryManager) Sweep(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, q := range m.queries {
		info := q.Info()
		if info.State.IsTerminal() && now.Sub(info.EndTime) > m.infoMaxAge {
			delete(m.queries, id)
			removed++
		}
	}
	return removed
}

// RunSweeper runs Sweep on interval until done is closed.
func (m *QueryManager) RunSweeper(done <-chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case now := <-ticker.C:
			m.Sweep(now)
		}
	}
}
