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

package exchange

import (
	"context"
	"sync"

	"github.com/driftql/drift/block"
	"github.com/driftql/drift/errs"
)

// BufferID identifies one of a task's output buffers.
type BufferID int

// OutputSet is the full set of output buffers a task writes into, one
// per downstream partition. It becomes FINISHED once every buffer has
// transitioned to FINISHED, which unblocks the task's own completion
// (spec §4.6).
type OutputSet struct {
	mu      sync.Mutex
	buffers map[BufferID]*Buffer
	noMore  bool // true once NoMoreBuffers has been called: a Get for an
	// unknown id beyond that point is a genuinely missing buffer, not one
	// that merely has not been created yet.
}

// NewOutputSet creates an OutputSet with one Buffer of capacityBytes per
// id in ids. This engine has no AddBuffer: the partition count is fixed
// at task-planning time, so the set declares NoMoreBuffers immediately.
func NewOutputSet(ids []BufferID, capacityBytes int64) *OutputSet {
	bufs := make(map[BufferID]*Buffer, len(ids))
	for _, id := range ids {
		bufs[id] = NewBuffer(capacityBytes)
	}
	o := &OutputSet{buffers: bufs}
	o.NoMoreBuffers()
	return o
}

// Buffer returns the buffer for id. Once NoMoreBuffers has been called,
// an unknown id is reported as genuinely missing rather than merely not
// yet created.
func (o *OutputSet) Buffer(id BufferID) (*Buffer, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	b, ok := o.buffers[id]
	if !ok {
		if o.noMore {
			return nil, errs.New(errs.NotFound, "exchange: buffer %d will never exist in this output set", id)
		}
		return nil, errs.New(errs.NotFound, "exchange: no buffer %d in this output set", id)
	}
	return b, nil
}

// NoMoreBuffers declares that no further buffers will be added to this
// output set and propagates that to every existing buffer, so a
// downstream consumer can tell "not yet created" from "never will be."
func (o *OutputSet) NoMoreBuffers() {
	o.mu.Lock()
	o.noMore = true
	bufs := make([]*Buffer, 0, len(o.buffers))
	for _, b := range o.buffers {
		bufs = append(bufs, b)
	}
	o.mu.Unlock()
	for _, b := range bufs {
		b.NoMoreBuffers()
	}
}

// Put appends p whole to the buffer with the given id; choosing the id
// (for example with a PartitionFunc) and splitting a page across
// partitions are left to the caller.
func (o *OutputSet) Put(ctx context.Context, id BufferID, p *block.Page) error {
	b, err := o.Buffer(id)
	if err != nil {
		return err
	}
	return b.Put(ctx, p)
}

// NoMorePages signals every buffer that the task has finished producing.
func (o *OutputSet) NoMorePages() {
	o.mu.Lock()
	bufs := make([]*Buffer, 0, len(o.buffers))
	for _, b := range o.buffers {
		bufs = append(bufs, b)
	}
	o.mu.Unlock()
	for _, b := range bufs {
		b.NoMorePages()
	}
}

// IsFinished reports whether every buffer has reached FINISHED.
func (o *OutputSet) IsFinished() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, b := range o.buffers {
		if b.State() != StateFinished {
			return false
		}
	}
	return true
}

// Abort forces every buffer to FINISHED immediately.
func (o *OutputSet) Abort() {
	o.mu.Lock()
	bufs := make([]*Buffer, 0, len(o.buffers))
	for _, b := range o.buffers {
		bufs = append(bufs, b)
	}
	o.mu.Unlock()
	for _, b := range bufs {
		b.Abort()
	}
}
