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

	"github.com/driftql/drift/exchange"
	"github.com/driftql/drift/split"
)

// TestS4TaskLifecycleToFinished implements scenario S4 from spec §8: a
// task reaches FINISHED once its only source reports no_more_splits with
// every split drained and its only output buffer is drained to FINISHED.
func TestS4TaskLifecycleToFinished(t *testing.T) {
	m := NewSqlTaskManager(time.Minute)
	id := TaskID{Stage: StageID{Query: "q1", Stage: 0}, Task: 0}
	outputs := exchange.NewOutputSet([]exchange.BufferID{0}, 1<<20)

	task, err := m.UpdateTask(id, map[string][]split.Split{"scan": {{Info: 1}, {Info: 2}}}, nil, outputs)
	if err != nil {
		t.Fatal(err)
	}
	info, _ := m.GetTaskInfo(id)
	if info.State != TaskRunning {
		t.Fatalf("expected RUNNING, got %s", info.State)
	}

	task.MarkSplitsDrained("scan", 2)
	if _, err := m.UpdateTask(id, nil, map[string]bool{"scan": true}, nil); err != nil {
		t.Fatal(err)
	}
	info, _ = m.GetTaskInfo(id)
	if info.State != TaskRunning {
		t.Fatalf("expected still RUNNING before outputs finish, got %s", info.State)
	}

	outputs.NoMorePages()
	b, _ := outputs.Buffer(0)
	b.Get(0, 1<<20)
	task.NotifyOutputsProgressed()

	info, _ = m.GetTaskInfo(id)
	if info.State != TaskFinished {
		t.Fatalf("expected FINISHED, got %s", info.State)
	}
	if info.EndTime.IsZero() {
		t.Fatalf("terminal state must record end_time")
	}

	if err := m.AbortTaskResults(id, 0); err != nil {
		t.Fatalf("abort_task_results on an already-finished task should be harmless, got %v", err)
	}
}

func TestUpdateTaskNeverRegressesNoMoreSplits(t *testing.T) {
	m := NewSqlTaskManager(time.Minute)
	id := TaskID{Stage: StageID{Query: "q1", Stage: 0}, Task: 0}
	if _, err := m.UpdateTask(id, map[string][]split.Split{"scan": {{Info: 1}}}, map[string]bool{"scan": true}, nil); err != nil {
		t.Fatal(err)
	}
	// A later update that does not mention no_more_splits must not clear it.
	if _, err := m.UpdateTask(id, map[string][]split.Split{"scan": {{Info: 1}}}, nil, nil); err != nil {
		t.Fatal(err)
	}
	task, _ := m.get(id)
	task.mu.Lock()
	noMore := task.sources["scan"].noMoreSplits
	task.mu.Unlock()
	if !noMore {
		t.Fatalf("no_more_splits regressed after a later update omitted it")
	}
}

// TestS5RemoteTaskFaultTolerance implements scenario S5 from spec §8.
func TestS5RemoteTaskFaultTolerance(t *testing.T) {
	base := time.Now()
	errCount := 0
	failing := func() (TaskInfo, error) {
		errCount++
		return TaskInfo{}, errors.New("connection refused")
	}
	rt := NewRemoteTask(failing, 10, 2*time.Second)
	rt.lastSuccess = base

	now := base
	for i := 0; i < 9; i++ {
		now = now.Add(100 * time.Millisecond)
		_, failed, _ := rt.Poll(now)
		if failed {
			t.Fatalf("should remain RUNNING after %d errors spanning only %v", i+1, now.Sub(base))
		}
	}

	// The 10th error, once 2s past last success, must fail the task.
	now = base.Add(2*time.Second + time.Millisecond)
	_, failed, err := rt.Poll(now)
	if !failed || err == nil {
		t.Fatalf("expected FAILED on the 10th error past min_error_duration, got failed=%v err=%v", failed, err)
	}
}

func TestS5RemoteTaskRecoversOnSuccess(t *testing.T) {
	calls := 0
	fetch := func() (TaskInfo, error) {
		calls++
		if calls <= 3 {
			return TaskInfo{}, errors.New("timeout")
		}
		return TaskInfo{State: TaskRunning}, nil
	}
	rt := NewRemoteTask(fetch, 10, 2*time.Second)
	now := time.Now()
	for i := 0; i < 3; i++ {
		_, failed, _ := rt.Poll(now)
		if failed {
			t.Fatalf("should not fail within tolerance")
		}
	}
	_, failed, _ := rt.Poll(now)
	if failed {
		t.Fatalf("a subsequent success should not be marked failed")
	}
	if rt.Failed() {
		t.Fatalf("remote task should not be failed after recovering")
	}
}

// TestS7SessionPropertyRoundTrip implements scenario S7 from spec §8.
func TestS7SessionPropertyRoundTrip(t *testing.T) {
	r := DefaultSessionProperties()
	got, err := r.Set("query.max-age", "30s")
	if err != nil {
		t.Fatal(err)
	}
	if got != "30.00s" {
		t.Fatalf("expected canonical \"30.00s\", got %q", got)
	}
	// Round-trip: re-setting with the canonical form must be a fixed point.
	again, err := r.Set("query.max-age", got)
	if err != nil {
		t.Fatal(err)
	}
	if again != got {
		t.Fatalf("serialize(evaluate(x)) is not a fixed point: %q != %q", again, got)
	}

	if _, err := r.Set("not.a.real.property", "1"); err == nil {
		t.Fatalf("expected INVALID_SESSION_PROPERTY for an unknown name")
	}
}
