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

// Command coordinator serves the client protocol of spec §6: POST
// /query, GET {nextUri} paging, and cancellation once a query's
// query.client.timeout session property elapses since the last fetch.
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/driftql/drift/config"
	"github.com/driftql/drift/engine"
)

func main() {
	args := os.Args[1:]
	if len(args) > 0 && args[0] == "worker" {
		fmt.Fprintln(os.Stderr, "coordinator: run cmd/worker for the worker role")
		os.Exit(1)
	}
	runCoordinator(args)
}

func runCoordinator(args []string) {
	cmd := flag.NewFlagSet("coordinator", flag.ExitOnError)
	endpoint := cmd.String("e", "127.0.0.1:9000", "endpoint to listen on (client protocol)")
	queueConfigFile := cmd.String("queue-config-file", "", "path to the declarative queue policy YAML file")
	if err := cmd.Parse(args); err != nil {
		os.Exit(1)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintln(os.Stderr, "coordinator: building logger:", err)
		os.Exit(1)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	defaults := config.Default()
	if *queueConfigFile != "" {
		if _, err := config.LoadQueueConfig(*queueConfigFile); err != nil {
			sugar.Fatalw("loading queue config", "error", err)
		}
	}

	qm := engine.NewQueryManager(defaults.MaxAge)
	done := make(chan struct{})
	go qm.RunSweeper(done, time.Minute)

	srv := &coordinatorServer{
		log:      sugar,
		queue:    engine.NewQueue(defaults.MaxConcurrentQueries, defaults.MaxQueuedQueries),
		props:    engine.DefaultSessionProperties(),
		qm:       qm,
		clients:  make(map[string]*clientCursor),
		defaults: defaults,
	}
	sugar.Infow("coordinator listening", "endpoint", *endpoint)
	if err := http.ListenAndServe(*endpoint, srv.handler()); err != nil {
		sugar.Fatalw("coordinator exited", "error", err)
	}
}

// clientCursor tracks one in-flight query's external id and its
// client-timeout deadline: the query itself is canceled once the
// client stops polling nextUri for longer than query.client.timeout
// (spec §4.7: "A client that has not polled a query within
// client_timeout causes the query to be canceled").
type clientCursor struct {
	mu       sync.Mutex
	id       engine.QueryID
	deadline time.Time
	timeout  time.Duration
}

func (c *clientCursor) touch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deadline = time.Now().Add(c.timeout)
}

func (c *clientCursor) expired(now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return now.After(c.deadline)
}

type coordinatorServer struct {
	log      *zap.SugaredLogger
	queue    *engine.Queue
	props    *engine.SessionPropertyRegistry
	qm       *engine.QueryManager
	defaults config.Query

	mu      sync.Mutex
	clients map[string]*clientCursor
	nextID  int
}

func (s *coordinatorServer) handler() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/query", s.postQuery)
	mux.HandleFunc("/query/", s.getNext)
	return mux
}

// postQuery implements POST /query: admit through the queue, submit a
// query in QUEUED, and return the first nextUri for the client to poll.
//
// This substrate has no external planner (spec §1 scopes C1-C9 as the
// primitives a planner drives, not the planner itself), so postQuery
// advances the query straight through PLANNING and STARTING to RUNNING
// before returning; a real deployment would instead drive those two
// steps from the planner's own progress.
func (s *coordinatorServer) postQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	release, err := s.queue.Admit()
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	defer release()

	qid := engine.NewQueryID()
	q := s.qm.Submit(qid)
	if err := q.Advance(engine.QueryPlanning); err != nil {
		s.log.Errorw("advancing query", "id", qid, "error", err)
	}
	if err := q.Advance(engine.QueryStarting); err != nil {
		s.log.Errorw("advancing query", "id", qid, "error", err)
	}
	if err := q.Advance(engine.QueryRunning); err != nil {
		s.log.Errorw("advancing query", "id", qid, "error", err)
	}

	s.mu.Lock()
	s.nextID++
	id := strconv.Itoa(s.nextID)
	cc := &clientCursor{id: qid, timeout: s.defaults.ClientTimeout}
	cc.touch()
	s.clients[id] = cc
	s.mu.Unlock()

	fmt.Fprintf(w, `{"id":%q,"nextUri":"/query/%s"}`, id, id)
}

// getNext implements GET {nextUri}: reports the query's real lifecycle
// state and advances the client-timeout deadline on every fetch, or
// cancels the query once that deadline has elapsed (spec §4.7).
func (s *coordinatorServer) getNext(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Path[len("/query/"):]
	s.mu.Lock()
	cc, ok := s.clients[id]
	s.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	info, err := s.qm.GetQueryInfo(cc.id)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	if !info.State.IsTerminal() && cc.expired(time.Now()) {
		s.qm.Cancel(cc.id)
		http.Error(w, "query canceled: client.timeout elapsed", http.StatusGone)
		return
	}
	cc.touch()
	fmt.Fprintf(w, `{"id":%q,"state":%q}`, id, info.State.String())
}
