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
	"errors"
	"testing"
	"time"
)

// TestQueryLifecycleLinearProgression walks a query through spec §3's
// QUEUED -> PLANNING -> STARTING -> RUNNING -> FINISHED sequence.
func TestQueryLifecycleLinearProgression(t *testing.T) {
	q := NewQuery(QueryID("q1"))
	if got := q.Info().State; got != QueryQueued {
		t.Fatalf("new query state = %s, want QUEUED", got)
	}
	for _, next := range []QueryState{QueryPlanning, QueryStarting, QueryRunning} {
		if err := q.Advance(next); err != nil {
			t.Fatalf("advancing to %s: %v", next, err)
		}
	}
	q.Finish()
	info := q.Info()
	if info.State != QueryFinished {
		t.Fatalf("state = %s, want FINISHED", info.State)
	}
	if info.EndTime.IsZero() {
		t.Fatal("expected EndTime to be recorded on entering FINISHED")
	}
}

// TestQueryAdvanceRejectsSkippingAStage guards that Advance only permits
// the single-step QUEUED->PLANNING->STARTING->RUNNING chain.
func TestQueryAdvanceRejectsSkippingAStage(t *testing.T) {
	q := NewQuery(QueryID("q1"))
	if err := q.Advance(QueryStarting); err == nil {
		t.Fatal("expected an error skipping PLANNING")
	}
	if got := q.Info().State; got != QueryQueued {
		t.Fatalf("state after rejected advance = %s, want unchanged QUEUED", got)
	}
}

// TestQueryCancelFromAnyNonTerminalState exercises spec §4.7's
// client-timeout cancellation, which can land in any non-terminal state.
func TestQueryCancelFromAnyNonTerminalState(t *testing.T) {
	q := NewQuery(QueryID("q1"))
	q.Advance(QueryPlanning)
	q.Cancel()
	if got := q.Info().State; got != QueryCanceled {
		t.Fatalf("state = %s, want CANCELED", got)
	}
	// Terminal states are absorbing: a later Finish is a no-op.
	q.Finish()
	if got := q.Info().State; got != QueryCanceled {
		t.Fatalf("state regressed to %s after terminal Finish call", got)
	}
}

// TestQueryFailRecordsCause implements spec §4.7's remote-task fault
// tolerance outcome: once a remote task exceeds its error budget, the
// query fails with the triggering cause recorded.
func TestQueryFailRecordsCause(t *testing.T) {
	q := NewQuery(QueryID("q1"))
	q.Advance(QueryPlanning)
	q.Advance(QueryStarting)
	q.Advance(QueryRunning)

	cause := errors.New("remote task exceeded error budget")
	q.Fail(cause)
	info := q.Info()
	if info.State != QueryFailed {
		t.Fatalf("state = %s, want FAILED", info.State)
	}
	if info.Err != cause {
		t.Fatalf("Err = %v, want %v", info.Err, cause)
	}
}

// TestQueryManagerSweepRemovesAgedTerminalQueries mirrors
// SqlTaskManager's GC sweep (spec §4.7) at the query level.
func TestQueryManagerSweepRemovesAgedTerminalQueries(t *testing.T) {
	m := NewQueryManager(time.Minute)
	id := QueryID("q1")
	q := m.Submit(id)
	q.Finish()

	if removed := m.Sweep(time.Now()); removed != 0 {
		t.Fatalf("swept %d queries before infoMaxAge elapsed, want 0", removed)
	}
	if _, err := m.GetQueryInfo(id); err != nil {
		t.Fatalf("query should still be present: %v", err)
	}

	if removed := m.Sweep(time.Now().Add(2 * time.Minute)); removed != 1 {
		t.Fatalf("swept %d queries, want 1", removed)
	}
	if _, err := m.GetQueryInfo(id); err == nil {
		t.Fatal("expected query to be gone after sweep")
	}
}
