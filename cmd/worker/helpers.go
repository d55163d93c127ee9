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

package main

import (
	"context"
	"strconv"
	"strings"

	"github.com/driftql/drift/engine"
	"github.com/driftql/drift/exchange"
)

func contextBackground() context.Context { return context.Background() }

func engineBufferID(id int) exchange.BufferID { return exchange.BufferID(id) }

// taskIDOf parses the "query.stage.task" wire form produced by
// engine.TaskID.String back into its structured form.
func taskIDOf(s string) engine.TaskID {
	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return engine.TaskID{}
	}
	stage, _ := strconv.Atoi(parts[1])
	task, _ := strconv.Atoi(parts[2])
	return engine.TaskID{
		Stage: engine.StageID{Query: engine.QueryID(parts[0]), Stage: stage},
		Task:  task,
	}
}
