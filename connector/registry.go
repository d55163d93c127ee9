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

package connector

import (
	"fmt"
	"sync"

	"github.com/driftql/drift/errs"
)

// Registry maps connector ids to live Connector instances and resolves
// opaque handles back to the connector that issued them, so the engine
// can dispatch a get_record_set or write-path call without type-asserting
// handles at every call site.
type Registry struct {
	mu         sync.RWMutex
	connectors map[ID]Connector
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{connectors: make(map[ID]Connector)}
}

// Register adds c to the registry. It fails if a connector with the same
// id is already registered.
func (r *Registry) Register(c Connector) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := c.ID()
	if _, exists := r.connectors[id]; exists {
		return errs.New(errs.AlreadyExists, "connector: id %q is already registered", id)
	}
	r.connectors[id] = c
	return nil
}

// Get returns the connector with the given id.
func (r *Registry) Get(id ID) (Connector, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.connectors[id]
	if !ok {
		return nil, errs.New(errs.NotFound, "connector: no connector registered with id %q", id)
	}
	return c, nil
}

// Resolve returns the connector that owns h, failing if h was issued by a
// connector id not currently registered. This is the rejection path the
// spec requires for handles presented to the wrong connector.
func (r *Registry) Resolve(h TableHandle) (Connector, error) {
	return r.Get(h.ConnectorID())
}

// ResolveColumn is the ColumnHandle analogue of Resolve.
func (r *Registry) ResolveColumn(h ColumnHandle) (Connector, error) {
	return r.Get(h.ConnectorID())
}

// CheckOwnership fails with a typed error if h was not issued by
// connector id — the guard every SPI call should apply to a caller-
// supplied handle before using it, so a handle crossing connector
// boundaries is rejected instead of silently type-asserted.
func CheckOwnership(id ID, h TableHandle) error {
	if h.ConnectorID() != id {
		return errs.New(errs.InvalidFunctionArgument, "connector: handle %s belongs to connector %q, not %q", h, h.ConnectorID(), id)
	}
	return nil
}

var _ fmt.Stringer = ID("")

func (id ID) String() string { return string(id) }
