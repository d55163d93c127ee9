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
	"testing"

	"github.com/driftql/drift/block"
)

func onePage(t *testing.T, n int) *block.Page {
	t.Helper()
	b := block.NewBuilder(block.Bigint, n)
	for i := 0; i < n; i++ {
		b.AppendInt64(int64(i))
	}
	p, err := block.NewPage([]*block.Block{b.Build()})
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestTokenReplayIsIdempotent(t *testing.T) {
	ctx := context.Background()
	buf := NewBuffer(1 << 20)
	p1, p2 := onePage(t, 3), onePage(t, 3)
	if err := buf.Put(ctx, p1); err != nil {
		t.Fatal(err)
	}
	if err := buf.Put(ctx, p2); err != nil {
		t.Fatal(err)
	}

	pages, next, _ := buf.Get(0, 1<<20)
	if len(pages) != 2 {
		t.Fatalf("expected 2 pages, got %d", len(pages))
	}
	// Re-requesting the same token must replay identically.
	replay, next2, _ := buf.Get(0, 1<<20)
	if len(replay) != 2 || next2 != next {
		t.Fatalf("replay at token 0 was not idempotent: got %d pages, next=%d want=%d", len(replay), next2, next)
	}

	buf.Ack(next)
	more, _, _ := buf.Get(next, 1<<20)
	if len(more) != 0 {
		t.Fatalf("expected no new pages after ack, got %d", len(more))
	}
}

func TestBufferFinishesAfterDrainAndNoMorePages(t *testing.T) {
	ctx := context.Background()
	buf := NewBuffer(1 << 20)
	if err := buf.Put(ctx, onePage(t, 1)); err != nil {
		t.Fatal(err)
	}
	buf.NoMorePages()
	_, next, st := buf.Get(0, 1<<20)
	if st == StateFinished {
		t.Fatalf("should not be finished before the consumer has advanced past the last page")
	}
	_, _, st2 := buf.Get(next, 1<<20)
	if st2 != StateFinished {
		t.Fatalf("expected FINISHED once drained past NoMorePages, got %s", st2)
	}
}

func TestPutBlocksUntilCapacityOrCancel(t *testing.T) {
	buf := NewBuffer(1) // capacity smaller than any page
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- buf.Put(ctx, onePage(t, 10)) }()
	cancel()
	if err := <-done; err == nil {
		t.Fatalf("expected Put to fail once context is canceled while waiting for capacity")
	}
}

// TestBufferNoMoreBuffersStillAcceptsPages guards spec §4.6's 4-state
// lifecycle: NO_MORE_BUFFERS forecloses new sibling buffers but this
// buffer itself keeps accepting pages until NoMorePages is declared.
func TestBufferNoMoreBuffersStillAcceptsPages(t *testing.T) {
	ctx := context.Background()
	buf := NewBuffer(1 << 20)
	buf.NoMoreBuffers()
	if st := buf.State(); st != StateNoMoreBuffers {
		t.Fatalf("state = %s, want NO_MORE_BUFFERS", st)
	}
	if err := buf.Put(ctx, onePage(t, 1)); err != nil {
		t.Fatalf("Put after NoMoreBuffers should still succeed: %v", err)
	}
	buf.NoMorePages()
	if st := buf.State(); st != StateNoMorePages {
		t.Fatalf("state = %s, want NO_MORE_PAGES", st)
	}
	if err := buf.Put(ctx, onePage(t, 1)); err == nil {
		t.Fatal("Put after NoMorePages should fail")
	}
}

// TestOutputSetNoMoreBuffersMarksUnknownIDsMissing guards
// OutputSet.Buffer's distinction between "not yet created" and "will
// never exist" once NoMoreBuffers has been declared.
func TestOutputSetNoMoreBuffersMarksUnknownIDsMissing(t *testing.T) {
	// NewOutputSet's buffer set is fixed at construction, so it already
	// declares NoMoreBuffers; every constituent buffer reflects that.
	os := NewOutputSet([]BufferID{0}, 1<<20)
	b, err := os.Buffer(0)
	if err != nil {
		t.Fatal(err)
	}
	if st := b.State(); st != StateNoMoreBuffers {
		t.Fatalf("state = %s, want NO_MORE_BUFFERS", st)
	}
	if _, err := os.Buffer(1); err == nil {
		t.Fatal("expected an error for an id that will never exist")
	}
}

func TestOutputSetFinishesWhenAllBuffersFinish(t *testing.T) {
	ctx := context.Background()
	os := NewOutputSet([]BufferID{0, 1}, 1<<20)
	if err := os.Put(ctx, 0, onePage(t, 1)); err != nil {
		t.Fatal(err)
	}
	os.NoMorePages()
	if os.IsFinished() {
		t.Fatalf("should not be finished before buffers are drained")
	}
	b0, _ := os.Buffer(0)
	_, next, _ := b0.Get(0, 1<<20)
	b0.Get(next, 1<<20)
	b1, _ := os.Buffer(1)
	b1.Get(0, 1<<20)
	if !os.IsFinished() {
		t.Fatalf("expected output set finished once every buffer drains with no more pages")
	}
}
