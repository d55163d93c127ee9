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
	"context"
	"sync"
	"time"

	"github.com/driftql/drift/block"
	"github.com/driftql/drift/errs"
	"github.com/driftql/drift/exchange"
	"github.com/driftql/drift/split"
)

// SqlTaskManager owns every Task on one worker, keyed by TaskID (spec
// §4.7).
type SqlTaskManager struct {
	mu    sync.Mutex
	tasks map[TaskID]*Task

	infoMaxAge time.Duration
}

// NewSqlTaskManager returns an empty manager; infoMaxAge bounds how long
// a terminal task's info lingers before the GC sweeper removes it.
func NewSqlTaskManager(infoMaxAge time.Duration) *SqlTaskManager {
	return &SqlTaskManager{tasks: make(map[TaskID]*Task), infoMaxAge: infoMaxAge}
}

// UpdateTask creates the task if it does not exist yet, then idempotently
// merges sources/buffers into it.
func (m *SqlTaskManager) UpdateTask(id TaskID, sources map[string][]split.Split, noMoreSplits map[string]bool, outputs *exchange.OutputSet) (*Task, error) {
	m.mu.Lock()
	t, ok := m.tasks[id]
	if !ok {
		t = NewTask(id)
		m.tasks[id] = t
	}
	m.mu.Unlock()
	if err := t.UpdateTask(sources, noMoreSplits, outputs); err != nil {
		return nil, err
	}
	return t, nil
}

func (m *SqlTaskManager) get(id TaskID) (*Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, errs.New(errs.NotFound, "engine: no task %s", id)
	}
	return t, nil
}

// GetTaskInfo returns the task's info immediately.
func (m *SqlTaskManager) GetTaskInfo(id TaskID) (TaskInfo, error) {
	t, err := m.get(id)
	if err != nil {
		return TaskInfo{}, err
	}
	return t.Info(), nil
}

// GetTaskInfoWaiting blocks until the task's state differs from
// lastKnownState or timeout elapses, whichever comes first (spec §4.7's
// bounded long-poll).
func (m *SqlTaskManager) GetTaskInfoWaiting(ctx context.Context, id TaskID, lastKnownState TaskState, timeout time.Duration) (TaskInfo, error) {
	t, err := m.get(id)
	if err != nil {
		return TaskInfo{}, err
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		ch := t.waitForChange()
		if info := t.Info(); info.State != lastKnownState {
			return info, nil
		}
		select {
		case <-ch:
		case <-timer.C:
			return t.Info(), nil
		case <-ctx.Done():
			return TaskInfo{}, ctx.Err()
		}
	}
}

// GetTaskResults delegates to the task's output buffer (spec §4.6).
func (m *SqlTaskManager) GetTaskResults(id TaskID, bufferID exchange.BufferID, token int64, maxBytes int64) ([]*block.Page, int64, exchange.State, error) {
	t, err := m.get(id)
	if err != nil {
		return nil, 0, 0, err
	}
	t.mu.Lock()
	outputs := t.outputs
	t.mu.Unlock()
	if outputs == nil {
		return nil, token, exchange.StateOpen, nil
	}
	b, err := outputs.Buffer(bufferID)
	if err != nil {
		return nil, 0, 0, err
	}
	pages, next, state := b.Get(token, maxBytes)
	if state == exchange.StateFinished {
		t.NotifyOutputsProgressed()
	}
	return pages, next, state, nil
}

// CancelTask transitions the task to CANCELED.
func (m *SqlTaskManager) CancelTask(id TaskID) error {
	t, err := m.get(id)
	if err != nil {
		return err
	}
	t.Cancel()
	return nil
}

// AbortTask transitions the task to ABORTED.
func (m *SqlTaskManager) AbortTask(id TaskID) error {
	t, err := m.get(id)
	if err != nil {
		return err
	}
	t.Abort()
	return nil
}

// AbortTaskResults tells the task it no longer needs to serve bufferID.
func (m *SqlTaskManager) AbortTaskResults(id TaskID, bufferID exchange.BufferID) error {
	t, err := m.get(id)
	if err != nil {
		return err
	}
	return t.AbortTaskResults(bufferID)
}

// Sweep removes terminal tasks whose EndTime is older than infoMaxAge,
// the periodic garbage collector named in spec §4.7.
func (m *SqlTaskManager) Sweep(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, t := range m.tasks {
		info := t.Info()
		if info.State.IsTerminal() && now.Sub(info.EndTime) > m.infoMaxAge {
			delete(m.tasks, id)
			removed++
		}
	}
	return removed
}

// RunSweeper runs Sweep on interval until ctx is canceled.
func (m *SqlTaskManager) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			m.Sweep(now)
		}
	}
}
