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
)

// TaskInfoFetcher is the coordinator's view of a worker's
// get_task_info(id, last) call — implemented over HTTP in cmd/coordinator,
// and directly against a local SqlTaskManager in tests.
type TaskInfoFetcher func() (TaskInfo, error)

// RemoteTask is the coordinator-side mirror of a worker task (spec
// §4.7): it polls the worker and tolerates a bounded run of consecutive
// errors, so a single slow or flaky worker poll does not fail the query.
type RemoteTask struct {
	mu sync.Mutex

	fetch TaskInfoFetcher

	maxConsecutiveErrors int
	minErrorDuration     time.Duration

	lastSuccess    time.Time
	consecutiveErr int
	lastInfo       TaskInfo
	failed         bool
	failure        error
}

// NewRemoteTask returns a mirror that has not yet polled; the first
// successful poll establishes lastSuccess.
func NewRemoteTask(fetch TaskInfoFetcher, maxConsecutiveErrors int, minErrorDuration time.Duration) *RemoteTask {
	return &RemoteTask{
		fetch:                fetch,
		maxConsecutiveErrors: maxConsecutiveErrors,
		minErrorDuration:     minErrorDuration,
		lastSuccess:          time.Now(),
	}
}

// Poll performs one get_task_info call at time now, updating fault-
// tolerance bookkeeping. It returns the task's FAILED status: once the
// mirror has failed, it stays failed (spec §4.7: "beyond that the
// remote task is marked FAILED and the stage fails").
func (r *RemoteTask) Poll(now time.Time) (TaskInfo, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failed {
		return r.lastInfo, true, r.failure
	}

	info, err := r.fetch()
	if err != nil {
		r.consecutiveErr++
		overCount := r.consecutiveErr >= r.maxConsecutiveErrors
		overDuration := now.Sub(r.lastSuccess) >= r.minErrorDuration
		if overCount && overDuration {
			r.failed = true
			r.failure = err
			return r.lastInfo, true, err
		}
		return r.lastInfo, false, nil
	}

	r.consecutiveErr = 0
	r.lastSuccess = now
	r.lastInfo = info
	if info.State == TaskFailed {
		r.failed = true
		r.failure = info.Err
		return info, true, info.Err
	}
	return info, false, nil
}

// Failed reports whether the mirror has given up on this task.
func (r *RemoteTask) Failed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failed
}
