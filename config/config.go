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

// Package config loads the coordinator's declarative settings: the
// query.* keys of spec §6 and the queue admission-control policy file.
package config

import (
	"os"
	"time"

	"sigs.k8s.io/yaml"

	"github.com/driftql/drift/errs"
)

// Query holds the query.* process configuration keys from spec §6.
type Query struct {
	MaxAge                             time.Duration `json:"max-age"`
	ClientTimeout                      time.Duration `json:"client-timeout"`
	MaxHistory                         int           `json:"max-history"`
	ScheduleSplitBatchSize             int           `json:"schedule-split-batch-size"`
	MaxConcurrentQueries               int           `json:"max-concurrent-queries"`
	MaxQueuedQueries                   int           `json:"max-queued-queries"`
	QueueConfigFile                    string        `json:"queue-config-file"`
	InitialHashPartitions              int           `json:"initial-hash-partitions"`
	ManagerExecutorPoolSize            int           `json:"manager-executor-pool-size"`
	RemoteTaskMaxConsecutiveErrorCount int           `json:"remote-task.max-consecutive-error-count"`
	RemoteTaskMinErrorDuration         time.Duration `json:"remote-task.min-error-duration"`
}

// Exchange holds the exchange.* process configuration keys from spec §6.
type Exchange struct {
	MaxBufferedBytes            int64         `json:"max-buffer-size"`
	ConcurrentRequestMultiplier int           `json:"concurrent-request-multiplier"`
	MinErrorDuration            time.Duration `json:"min-error-duration"`
	MaxResponseSize             int64         `json:"max-response-size"`
	ClientThreads               int           `json:"client-threads"`
}

// DefaultExchange returns exchange.*'s built-in defaults.
func DefaultExchange() Exchange {
	return Exchange{
		MaxBufferedBytes:            32 << 20,
		ConcurrentRequestMultiplier: 3,
		MinErrorDuration:            time.Minute,
		MaxResponseSize:             16 << 20,
		ClientThreads:               25,
	}
}

// Default returns the built-in query.* defaults, overridable per session
// via engine.SessionPropertyRegistry where spec §4.7 allows it.
func Default() Query {
	return Query{
		MaxAge:                             15 * time.Minute,
		ClientTimeout:                      5 * time.Minute,
		MaxHistory:                         100,
		ScheduleSplitBatchSize:             1000,
		MaxConcurrentQueries:               100,
		MaxQueuedQueries:                   5000,
		InitialHashPartitions:              8,
		ManagerExecutorPoolSize:            5,
		RemoteTaskMaxConsecutiveErrorCount: 10,
		RemoteTaskMinErrorDuration:         2 * time.Minute,
	}
}

// QueuePolicy is one named resource-group entry of the declarative
// queue-config-file (spec §6's query.queue-config-file, supplemented
// feature: engine.Queue admission control).
type QueuePolicy struct {
	Name                 string `json:"name"`
	MaxConcurrentQueries int    `json:"maxConcurrentQueries"`
	MaxQueuedQueries     int    `json:"maxQueuedQueries"`
}

// QueueConfig is the root of a queue-config-file document.
type QueueConfig struct {
	RootGroups []QueuePolicy `json:"rootGroups"`
}

// LoadQueueConfig reads and parses a queue-config-file. YAML is decoded
// via sigs.k8s.io/yaml, which round-trips through encoding/json tags
// the same way the rest of this configuration layer does.
func LoadQueueConfig(path string) (*QueueConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Wrap(errs.NotFound, err, "config: reading queue config %s", path)
	}
	var cfg QueueConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errs.Wrap(errs.SyntaxError, err, "config: parsing queue config %s", path)
	}
	return &cfg, nil
}
