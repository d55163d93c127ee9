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

// Package engine implements the task/stage/query lifecycle (C7): the
// per-worker SqlTaskManager, the coordinator-side remote-task mirror
// with its fault-tolerant polling, and session properties.
package engine

import (
	"fmt"

	"github.com/google/uuid"
)

// QueryID identifies a query for its lifetime, coordinator-wide.
type QueryID string

// StageID identifies one stage within a query's fragment plan.
type StageID struct {
	Query QueryID
	Stage int
}

func (s StageID) String() string { return fmt.Sprintf("%s.%d", s.Query, s.Stage) }

// TaskID identifies one task within a stage, worker-scoped.
type TaskID struct {
	Stage StageID
	Task  int
}

func (t TaskID) String() string { return fmt.Sprintf("%s.%d", t.Stage, t.Task) }

// NewQueryID mints a fresh, globally unique query id.
func NewQueryID() QueryID { return QueryID(uuid.New().String()) }
