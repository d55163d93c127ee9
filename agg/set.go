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

package agg

import "github.com/driftql/drift/block"

// TypedSet is TypedHistogram with the count dropped: it backs DISTINCT
// and COUNT(DISTINCT ...), sharing the same open-addressed table and
// memory accounting (spec §4.8).
type TypedSet struct {
	h *TypedHistogram
}

// NewTypedSet returns an empty set over keys of keyType.
func NewTypedSet(keyType *block.Type) *TypedSet {
	return &TypedSet{h: NewTypedHistogram(keyType)}
}

// Len returns the number of distinct values seen.
func (s *TypedSet) Len() int { return s.h.Len() }

// Values returns the block holding one distinct value per position.
func (s *TypedSet) Values() *block.Block { return s.h.Keys() }

// Add inserts the value at (src, pos) if not already present.
func (s *TypedSet) Add(src *block.Block, pos int) error {
	return s.h.Add(src, pos, 1)
}

// AddAll merges other's members into s.
func (s *TypedSet) AddAll(other *TypedSet) error {
	for i := 0; i < other.Len(); i++ {
		if err := s.Add(other.Values(), i); err != nil {
			return err
		}
	}
	return nil
}

// Serialize returns the distinct-values block for cross-stage transport.
func (s *TypedSet) Serialize() *block.Block {
	keys, _ := s.h.Serialize()
	return keys
}

// DeserializeSet rebuilds a TypedSet from a Serialize block.
func DeserializeSet(keyType *block.Type, values *block.Block) (*TypedSet, error) {
	s := NewTypedSet(keyType)
	for i := 0; i < values.Len(); i++ {
		if err := s.Add(values, i); err != nil {
			return nil, err
		}
	}
	return s, nil
}
