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
	"github.com/driftql/drift/exchange"
	"github.com/driftql/drift/split"
)

// TaskState is the lifecycle stage of a Task (spec §4.7).
type TaskState int

const (
	TaskRunning TaskState = iota
	TaskFinished
	TaskCanceled
	TaskAborted
	TaskFailed
)

func (s TaskState) String() string {
	switch s {
	case TaskRunning:
		return "RUNNING"
	case TaskFinished:
		return "FINISHED"
	case TaskCanceled:
		return "CANCELED"
	case TaskAborted:
		return "ABORTED"
	case TaskFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// IsTerminal reports whether s is a terminal state.
func (s TaskState) IsTerminal() bool { return s != TaskRunning }

// sourceState tracks one split source's delivered splits and whether the
// coordinator has declared no more will arrive (spec §4.7: update_task
// must never regress a no_more_splits flag already set).
type sourceState struct {
	splits      []split.Split
	noMoreSplits bool
	drained     int // count of splits this task has consumed
}

// TaskInfo is the externally-visible snapshot returned by get_task_info.
type TaskInfo struct {
	ID        TaskID
	State     TaskState
	StartTime time.Time
	EndTime   time.Time
	Err       error
}

// Task is one worker-side unit of query execution (spec §4.7).
type Task struct {
	mu      sync.Mutex
	id      TaskID
	state   TaskState
	start   time.Time
	end     time.Time
	failure error

	sources map[string]*sourceState
	outputs *exchange.OutputSet

	waiters []chan struct{} // woken on every state/source/output change
}

// NewTask creates a RUNNING task with no sources or outputs yet;
// UpdateTask populates them incrementally.
func NewTask(id TaskID) *Task {
	return &Task{id: id, state: TaskRunning, start: time.Now(), sources: make(map[string]*sourceState)}
}

// UpdateTask idempotently merges sources and output-buffer descriptors.
// Per spec §4.7 it must never regress a no_more_splits flag already set,
// nor resurrect a terminal task.
func (t *Task) UpdateTask(sources map[string][]split.Split, noMoreSplits map[string]bool, outputs *exchange.OutputSet) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state.IsTerminal() {
		return nil // updates to a finished task are a no-op, not an error
	}
	for name, splits := range sources {
		s, ok := t.sources[name]
		if !ok {
			s = &sourceState{}
			t.sources[name] = s
		}
		if len(splits) > len(s.splits) {
			s.splits = splits
		}
	}
	for name, done := range noMoreSplits {
		if !done {
			continue
		}
		s, ok := t.sources[name]
		if !ok {
			s = &sourceState{}
			t.sources[name] = s
		}
		s.noMoreSplits = true // monotonic: never reset to false
	}
	if outputs != nil {
		t.outputs = outputs
	}
	t.wakeLocked()
	t.maybeFinishLocked()
	return nil
}

// maybeFinishLocked transitions RUNNING -> FINISHED once every source has
// no_more_splits with all splits drained and every output buffer is
// FINISHED (spec §4.7). Caller must hold t.mu.
func (t *Task) maybeFinishLocked() {
	if t.state != TaskRunning {
		return
	}
	for _, s := range t.sources {
		if !s.noMoreSplits || s.drained < len(s.splits) {
			return
		}
	}
	if t.outputs == nil || !t.outputs.IsFinished() {
		return
	}
	t.state = TaskFinished
	t.end = time.Now()
}

// MarkSplitsDrained records that n more splits of source have been
// consumed by the task's execution loop, re-evaluating completion.
func (t *Task) MarkSplitsDrained(source string, n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.sources[source]; ok {
		s.drained += n
	}
	t.maybeFinishLocked()
	t.wakeLocked()
}

// NotifyOutputsProgressed re-checks the finish condition after the
// output buffers change state, e.g. once a consumer drains and acks.
func (t *Task) NotifyOutputsProgressed() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.maybeFinishLocked()
	t.wakeLocked()
}

func (t *Task) transition(to TaskState, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state.IsTerminal() {
		return
	}
	t.state = to
	t.failure = err
	t.end = time.Now()
	if t.outputs != nil {
		t.outputs.Abort()
	}
	t.wakeLocked()
}

// Cancel transitions RUNNING -> CANCELED.
func (t *Task) Cancel() { t.transition(TaskCanceled, nil) }

// Abort transitions RUNNING -> ABORTED.
func (t *Task) Abort() { t.transition(TaskAborted, nil) }

// Fail transitions RUNNING -> FAILED, recording cause.
func (t *Task) Fail(cause error) { t.transition(TaskFailed, cause) }

// Info returns a snapshot of the task's externally-visible state.
func (t *Task) Info() TaskInfo {
	t.mu.Lock()
	defer t.mu.Unlock()
	return TaskInfo{ID: t.id, State: t.state, StartTime: t.start, EndTime: t.end, Err: t.failure}
}

// AbortTaskResults marks bufferId as no longer needed: the buffer is
// force-finished so the task can complete as soon as its side effects
// do, without waiting for a consumer that will never arrive (spec
// §4.7).
func (t *Task) AbortTaskResults(bufferID exchange.BufferID) error {
	t.mu.Lock()
	outputs := t.outputs
	t.mu.Unlock()
	if outputs == nil {
		return errs.New(errs.NotFound, "engine: task %s has no output buffers yet", t.id)
	}
	b, err := outputs.Buffer(bufferID)
	if err != nil {
		return err
	}
	b.Abort()
	t.NotifyOutputsProgressed()
	return nil
}

// wakeLocked notifies every waiter registered via waitForChange. Caller
// must hold t.mu.
func (t *Task) wakeLocked() {
	for _, ch := range t.waiters {
		close(ch)
	}
	t.waiters = nil
}

// waitForChange returns a channel closed the next time the task's state
// changes, for get_task_info's long-poll.
func (t *Task) waitForChange() <-chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	ch := make(chan struct{})
	t.waiters = append(t.waiters, ch)
	return ch
}
