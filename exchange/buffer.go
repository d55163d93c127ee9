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

// Package exchange implements the data-exchange contract (C6): output
// buffers with byte-capacity backpressure, monotonic-token idempotent
// replay, and the partition functions that route pages between tasks.
package exchange

import (
	"context"
	"sync"

	"github.com/driftql/drift/block"
	"github.com/driftql/drift/errs"
)

// State is a buffer's lifecycle stage (spec §4.6).
type State int

const (
	StateOpen State = iota
	StateNoMoreBuffers
	StateNoMorePages
	StateFinished
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "OPEN"
	case StateNoMoreBuffers:
		return "NO_MORE_BUFFERS"
	case StateNoMorePages:
		return "NO_MORE_PAGES"
	case StateFinished:
		return "FINISHED"
	default:
		return "UNKNOWN"
	}
}

type entry struct {
	page      *block.Page
	bytes     int64
	committed bool // true once a Get has delivered this entry at least once
}

// Buffer is a single output buffer: a producer appends pages, consumers
// pull by (nextToken, maxBytes). Tokens are monotonically increasing
// integers; re-requesting an already-delivered token replays the same
// pages rather than advancing (spec §4.6's idempotent-replay contract).
type Buffer struct {
	mu       sync.Mutex
	cond     *sync.Cond
	capacity int64

	entries   []entry
	used      int64
	baseToken int64 // token of entries[0]; entries before this have been acknowledged and dropped

	state State
}

// NewBuffer returns an empty, OPEN buffer with the given byte capacity.
func NewBuffer(capacityBytes int64) *Buffer {
	b := &Buffer{capacity: capacityBytes}
	b.cond = sync.NewCond(&b.mu)
	return b
}

func pageBytes(p *block.Page) int64 {
	// Approximate wire size: an exact accounting belongs to the
	// serializer: this is the conservative count used for backpressure
	// admission, sized off row count and column count.
	if p == nil {
		return 0
	}
	n := int64(1)
	for range p.Blocks {
		n += int64(p.Len())
	}
	return n
}

// Put blocks until there is capacity for p, then appends it. Pages may
// still be appended once NoMoreBuffers has been declared (that only
// forecloses new sibling buffers in the output set); it is an error
// once NoMorePages has been declared.
func (b *Buffer) Put(ctx context.Context, p *block.Page) error {
	sz := pageBytes(p)
	b.mu.Lock()
	defer b.mu.Unlock()
	acceptsPages := func() bool { return b.state == StateOpen || b.state == StateNoMoreBuffers }
	for b.used+sz > b.capacity && acceptsPages() {
		if !b.waitOrCancel(ctx) {
			return ctx.Err()
		}
	}
	if !acceptsPages() {
		return errs.New(errs.InternalError, "exchange: Put called on a buffer in state %s", b.state)
	}
	b.entries = append(b.entries, entry{page: p, bytes: sz})
	b.used += sz
	b.cond.Broadcast()
	return nil
}

// NoMoreBuffers declares that the producer will create no further
// sibling buffers in this output set (spec §4.6's OPEN -> NO_MORE_BUFFERS
// step); this buffer itself may still receive pages until NoMorePages.
func (b *Buffer) NoMoreBuffers() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen {
		b.state = StateNoMoreBuffers
	}
	b.cond.Broadcast()
}

// waitOrCancel waits on the condition variable until broadcast or ctx is
// done, returning false if ctx finished first.
func (b *Buffer) waitOrCancel(ctx context.Context) bool {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			b.mu.Lock()
			b.cond.Broadcast()
			b.mu.Unlock()
		case <-done:
		}
	}()
	defer close(done)
	b.cond.Wait()
	select {
	case <-ctx.Done():
		return false
	default:
		return true
	}
}

// NoMorePages marks the buffer so that once every already-queued page is
// drained, Finish is implied; it does not reject further Gets of
// already-buffered data.
func (b *Buffer) NoMorePages() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen || b.state == StateNoMoreBuffers {
		b.state = StateNoMorePages
	}
	b.cond.Broadcast()
}

// Get returns the pages starting at token, the token to request next,
// and the buffer's state. Requesting baseToken again (before
// acknowledging via Ack) replays the same pages. Once NoMorePages has
// been declared, a Get whose token is past the last queued page moves
// the buffer to FINISHED.
func (b *Buffer) Get(token int64, maxBytes int64) (pages []*block.Page, nextToken int64, state State) {
	b.mu.Lock()
	defer b.mu.Unlock()
	idx := token - b.baseToken
	if idx < 0 {
		idx = 0
	}
	var out []*block.Page
	var total int64
	i := idx
	for i < int64(len(b.entries)) {
		e := b.entries[i]
		if total > 0 && total+e.bytes > maxBytes {
			break
		}
		out = append(out, e.page)
		total += e.bytes
		i++
	}
	next := b.baseToken + i
	st := b.state
	if idx >= int64(len(b.entries)) && st == StateNoMorePages {
		st = StateFinished
		b.state = StateFinished
	}
	return out, next, st
}

// Ack acknowledges delivery up to (but not including) token, allowing
// the buffer to drop acknowledged entries and free their capacity. A
// client must ack before NextToken's pages can be garbage-collected; an
// un-acked NextToken remains replayable.
func (b *Buffer) Ack(token int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := token - b.baseToken
	if n <= 0 {
		return
	}
	if n > int64(len(b.entries)) {
		n = int64(len(b.entries))
	}
	for i := int64(0); i < n; i++ {
		b.used -= b.entries[i].bytes
	}
	b.entries = b.entries[n:]
	b.baseToken += n
	b.cond.Broadcast()
}

// State returns the buffer's current lifecycle state.
func (b *Buffer) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Abort forces the buffer into FINISHED immediately, discarding
// unacknowledged pages — used on task/query abort.
func (b *Buffer) Abort() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateFinished
	b.entries = nil
	b.used = 0
	b.cond.Broadcast()
}
