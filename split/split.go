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

// Package split implements split enumeration (C4): the unit of scannable
// work a connector hands to the scheduler, and the lazy batched Source
// contract connectors produce them through.
package split

import (
	"context"
	"sync"

	"github.com/driftql/drift/errs"
)

// Split is one unit of scannable work. Info is connector-defined and
// opaque to the engine; Addresses are advisory placement hints.
type Split struct {
	Info             any
	Addresses        []string
	RemotelyAccessible bool
}

// Source is a lazy, batched producer of splits (spec §4.4). At most one
// NextBatch call may be in flight at a time; Close must be safe to call
// exactly once from any state and must cancel any in-flight NextBatch.
type Source interface {
	// NextBatch returns up to max splits. Returning fewer than max does
	// not by itself signal exhaustion — callers must check IsFinished.
	NextBatch(ctx context.Context, max int) ([]Split, error)
	IsFinished() bool
	Close() error
}

// SliceSource adapts a pre-materialized slice of splits into a Source,
// the common case for connectors whose partition pruning already
// produced every split up front (e.g. the native connector, which holds
// every committed block in memory).
type SliceSource struct {
	mu       sync.Mutex
	remain   []Split
	closed   bool
	inFlight bool
}

// NewSliceSource wraps splits as a Source.
func NewSliceSource(splits []Split) *SliceSource {
	return &SliceSource{remain: splits}
}

func (s *SliceSource) NextBatch(ctx context.Context, max int) ([]Split, error) {
	s.mu.Lock()
	if s.inFlight {
		s.mu.Unlock()
		return nil, errs.New(errs.InternalError, "split: concurrent NextBatch call on the same source")
	}
	if s.closed {
		s.mu.Unlock()
		return nil, errs.New(errs.InternalError, "split: NextBatch called after Close")
	}
	s.inFlight = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.inFlight = false
		s.mu.Unlock()
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if max <= 0 || max > len(s.remain) {
		max = len(s.remain)
	}
	batch := s.remain[:max]
	s.remain = s.remain[max:]
	return batch, nil
}

func (s *SliceSource) IsFinished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.remain) == 0
}

func (s *SliceSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.remain = nil
	return nil
}

// DrainAll pulls every batch from src until finished, for callers (tests,
// simple schedulers) that do not need incremental batching.
func DrainAll(ctx context.Context, src Source, batchSize int) ([]Split, error) {
	var all []Split
	for !src.IsFinished() {
		batch, err := src.NextBatch(ctx, batchSize)
		if err != nil {
			return nil, err
		}
		if len(batch) == 0 && !src.IsFinished() {
			return nil, errs.New(errs.InternalError, "split: source returned an empty batch without being finished")
		}
		all = append(all, batch...)
	}
	return all, nil
}
