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

package errs

import (
	"errors"
	"sort"
	"testing"
)

// TestCodesUniqueAndOrdered asserts the property from spec §8 item 9:
// codes are unique, sequential within a category, and strictly increasing
// across categories; only a category's first code may break sequence with
// its predecessor.
func TestCodesUniqueAndOrdered(t *testing.T) {
	codes := make([]Code, 0, len(categories))
	for c := range categories {
		codes = append(codes, c)
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })

	seen := map[Code]bool{}
	for _, c := range codes {
		if seen[c] {
			t.Fatalf("duplicate code %d", c)
		}
		seen[c] = true
	}

	var prev Code
	var prevCat Category
	first := true
	for _, c := range codes {
		cat := categories[c]
		if first {
			first = false
		} else if cat == prevCat {
			if c != prev+1 {
				t.Fatalf("code %d (%s) is not sequential after %d (%s) within category %d", c, c, prev, prev, cat)
			}
		} else {
			if cat < prevCat {
				t.Fatalf("category %d (code %d) is out of order after category %d (code %d)", cat, c, prevCat, prev)
			}
			if c <= prev {
				t.Fatalf("category boundary code %d does not strictly increase over %d", c, prev)
			}
		}
		prev = c
		prevCat = cat
	}
}

func TestErrorWrapAndCodeOf(t *testing.T) {
	cause := errors.New("boom")
	e := Wrap(ExceededMemoryLimit, cause, "buffer over budget")
	if !errors.Is(e, cause) {
		t.Fatalf("expected errors.Is to find the wrapped cause")
	}
	if CodeOf(e) != ExceededMemoryLimit {
		t.Fatalf("CodeOf: got %v, want %v", CodeOf(e), ExceededMemoryLimit)
	}
	wrapped := errors.New("outer")
	if CodeOf(wrapped) != InternalError {
		t.Fatalf("CodeOf on foreign error should default to InternalError")
	}
}

func TestCategoryPanicsOnUnregistered(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic for unregistered code")
		}
	}()
	_ = Code(999999).Category()
}
