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

package engine

import "testing"

func TestQueueAdmitsUpToMaxRunningThenQueues(t *testing.T) {
	q := NewQueue(1, 1)
	release1, err := q.Admit()
	if err != nil {
		t.Fatal(err)
	}

	admitted := make(chan struct{})
	go func() {
		release2, err := q.Admit()
		if err != nil {
			t.Error(err)
			return
		}
		close(admitted)
		release2()
	}()

	select {
	case <-admitted:
		t.Fatalf("second Admit should not succeed while the first holds the only slot")
	default:
	}

	release1()
	<-admitted
}

func TestQueueRejectsBeyondCapacity(t *testing.T) {
	q := NewQueue(1, 0)
	release, err := q.Admit()
	if err != nil {
		t.Fatal(err)
	}
	defer release()

	if _, err := q.Admit(); err == nil {
		t.Fatalf("expected the queue to reject once both running and queued capacity are exhausted")
	}
}
