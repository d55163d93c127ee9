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

// Command worker serves the read and delete side of the task protocol of
// spec §6: GET/DELETE /task/{taskId} and
// GET /task/{taskId}/results/{bufferId}/{token}. It does not serve
// PUT /task/{taskId}: a PUT is answered with 405 Method Not Allowed, so
// tasks are not created or updated over HTTP.
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/driftql/drift/engine"
)

func main() {
	cmd := flag.NewFlagSet("worker", flag.ExitOnError)
	endpoint := cmd.String("e", "127.0.0.1:9001", "endpoint to listen on for the task protocol")
	infoMaxAge := cmd.Duration("info-max-age", 5*time.Minute, "how long a terminal task's info lingers before GC")
	if err := cmd.Parse(os.Args[1:]); err != nil {
		os.Exit(1)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintln(os.Stderr, "worker: building logger:", err)
		os.Exit(1)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	manager := engine.NewSqlTaskManager(*infoMaxAge)
	go manager.RunSweeper(contextBackground(), time.Minute)

	srv := &taskServer{manager: manager, log: sugar}
	sugar.Infow("worker listening", "endpoint", *endpoint)
	if err := http.ListenAndServe(*endpoint, srv.handler()); err != nil {
		sugar.Fatalw("worker exited", "error", err)
	}
}

// taskServer routes the task protocol onto an engine.SqlTaskManager,
// mirroring the teacher's server struct holding one manager per process
// (cmd/snellerd/server.go).
type taskServer struct {
	manager *engine.SqlTaskManager
	log     *zap.SugaredLogger
}

func (s *taskServer) handler() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/task/", s.taskHandler)
	return mux
}

// taskHandler dispatches GET/DELETE /task/{taskId} (DELETE aborts the
// task) and GET /task/{taskId}/results/{bufferId}/{token}; any other
// method on /task/{taskId}, PUT included, gets 405.
func (s *taskServer) taskHandler(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/task/")
	parts := strings.Split(path, "/")
	if parts[0] == "" {
		http.NotFound(w, r)
		return
	}
	taskID := parts[0]

	if len(parts) >= 2 && parts[1] == "results" {
		s.resultsHandler(w, r, taskID, parts[2:])
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.getTaskInfo(w, r, taskID)
	case http.MethodDelete:
		if err := s.manager.AbortTask(taskIDOf(taskID)); err != nil {
			httpError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *taskServer) getTaskInfo(w http.ResponseWriter, r *http.Request, taskID string) {
	info, err := s.manager.GetTaskInfo(taskIDOf(taskID))
	if err != nil {
		httpError(w, err)
		return
	}
	fmt.Fprintf(w, `{"state":%q}`, info.State)
}

func (s *taskServer) resultsHandler(w http.ResponseWriter, r *http.Request, taskID string, rest []string) {
	if len(rest) < 2 {
		http.NotFound(w, r)
		return
	}
	bufferID, err := strconv.Atoi(rest[0])
	if err != nil {
		http.Error(w, "bad buffer id", http.StatusBadRequest)
		return
	}
	token, err := strconv.ParseInt(rest[1], 10, 64)
	if err != nil {
		http.Error(w, "bad token", http.StatusBadRequest)
		return
	}
	const maxBytes = 4 << 20
	_, next, state, err := s.manager.GetTaskResults(taskIDOf(taskID), engineBufferID(bufferID), token, maxBytes)
	if err != nil {
		httpError(w, err)
		return
	}
	w.Header().Set("X-Next-Token", strconv.FormatInt(next, 10))
	fmt.Fprintf(w, `{"state":%q}`, state)
}

func httpError(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), http.StatusInternalServerError)
}
