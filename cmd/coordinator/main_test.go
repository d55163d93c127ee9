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
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/driftql/drift/config"
	"github.com/driftql/drift/engine"
)

func newTestServer(clientTimeout time.Duration) *coordinatorServer {
	defaults := config.Default()
	defaults.ClientTimeout = clientTimeout
	return &coordinatorServer{
		log:      zap.NewNop().Sugar(),
		queue:    engine.NewQueue(defaults.MaxConcurrentQueries, defaults.MaxQueuedQueries),
		props:    engine.DefaultSessionProperties(),
		qm:       engine.NewQueryManager(defaults.MaxAge),
		clients:  make(map[string]*clientCursor),
		defaults: defaults,
	}
}

// TestGetNextReportsRealQueryState guards that getNext stops reporting a
// hardcoded status and instead surfaces the query's actual lifecycle
// state (spec §3, §4.7), which postQuery drives straight to RUNNING in
// the absence of an external planner.
func TestGetNextReportsRealQueryState(t *testing.T) {
	srv := newTestServer(time.Minute)
	mux := srv.handler()

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/query", nil))
	var posted struct {
		ID      string `json:"id"`
		NextURI string `json:"nextUri"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &posted); err != nil {
		t.Fatalf("decoding postQuery response: %v", err)
	}

	rec2 := httptest.NewRecorder()
	mux.ServeHTTP(rec2, httptest.NewRequest(http.MethodGet, posted.NextURI, nil))
	var next struct {
		ID    string `json:"id"`
		State string `json:"state"`
	}
	if err := json.Unmarshal(rec2.Body.Bytes(), &next); err != nil {
		t.Fatalf("decoding getNext response: %v", err)
	}
	if next.State != "RUNNING" {
		t.Fatalf("state = %q, want RUNNING", next.State)
	}
}

// TestGetNextCancelsOnClientTimeout implements spec §4.7: "A client that
// has not polled a query within client_timeout causes the query to be
// canceled."
func TestGetNextCancelsOnClientTimeout(t *testing.T) {
	srv := newTestServer(time.Millisecond)
	mux := srv.handler()

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/query", nil))
	var posted struct {
		ID      string `json:"id"`
		NextURI string `json:"nextUri"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &posted); err != nil {
		t.Fatalf("decoding postQuery response: %v", err)
	}

	time.Sleep(10 * time.Millisecond)

	rec2 := httptest.NewRecorder()
	mux.ServeHTTP(rec2, httptest.NewRequest(http.MethodGet, posted.NextURI, nil))
	if rec2.Code != http.StatusGone {
		t.Fatalf("status = %d, want %d", rec2.Code, http.StatusGone)
	}

	srv.mu.Lock()
	cc := srv.clients[posted.ID]
	srv.mu.Unlock()
	info, err := srv.qm.GetQueryInfo(cc.id)
	if err != nil {
		t.Fatal(err)
	}
	if info.State != engine.QueryCanceled {
		t.Fatalf("state = %s, want CANCELED", info.State)
	}
}
