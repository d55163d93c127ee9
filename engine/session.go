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

import (
	"fmt"
	"time"

	"github.com/driftql/drift/errs"
)

// SessionPropertyType parses and canonically re-serializes a session
// property's literal value. Evaluate must be a fixed point: serializing
// its own output must return the identical string (spec §4.7).
type SessionPropertyType interface {
	Evaluate(literal string) (any, error)
	Serialize(v any) string
}

// DurationType parses Go duration literals ("30s") and canonically
// renders them with two fractional-second digits ("30.00s"), per S7.
type DurationType struct{}

func (DurationType) Evaluate(literal string) (any, error) {
	d, err := time.ParseDuration(literal)
	if err != nil {
		return nil, errs.Wrap(errs.InvalidSessionProperty, err, "invalid duration literal %q", literal)
	}
	return d, nil
}

func (DurationType) Serialize(v any) string {
	d := v.(time.Duration)
	return fmt.Sprintf("%.2fs", d.Seconds())
}

// IntegerType parses and renders plain decimal integers.
type IntegerType struct{}

func (IntegerType) Evaluate(literal string) (any, error) {
	var n int64
	if _, err := fmt.Sscanf(literal, "%d", &n); err != nil {
		return nil, errs.Wrap(errs.InvalidSessionProperty, err, "invalid integer literal %q", literal)
	}
	return n, nil
}

func (IntegerType) Serialize(v any) string { return fmt.Sprintf("%d", v.(int64)) }

// BooleanType parses and renders "true"/"false".
type BooleanType struct{}

func (BooleanType) Evaluate(literal string) (any, error) {
	switch literal {
	case "true":
		return true, nil
	case "false":
		return false, nil
	default:
		return nil, errs.New(errs.InvalidSessionProperty, "invalid boolean literal %q", literal)
	}
}

func (BooleanType) Serialize(v any) string {
	if v.(bool) {
		return "true"
	}
	return "false"
}

// SessionPropertyRegistry is the set of session properties a coordinator
// declares, e.g. the query.* keys in spec §6.
type SessionPropertyRegistry struct {
	props map[string]SessionPropertyType
}

// NewSessionPropertyRegistry returns an empty registry.
func NewSessionPropertyRegistry() *SessionPropertyRegistry {
	return &SessionPropertyRegistry{props: make(map[string]SessionPropertyType)}
}

// Declare registers name with the SQL type it evaluates against.
func (r *SessionPropertyRegistry) Declare(name string, t SessionPropertyType) {
	r.props[name] = t
}

// Set validates name, evaluates literal against its declared type, and
// returns the canonical serialized form — a fixed point of Serialize
// over Evaluate's result (spec §4.7, scenario S7).
func (r *SessionPropertyRegistry) Set(name, literal string) (string, error) {
	t, ok := r.props[name]
	if !ok {
		return "", errs.New(errs.InvalidSessionProperty, "unknown session property %q", name)
	}
	v, err := t.Evaluate(literal)
	if err != nil {
		return "", err
	}
	return t.Serialize(v), nil
}

// DefaultSessionProperties declares the query.* properties from spec §6
// that have a literal SQL-evaluable type; queue/pool-size integer knobs
// are process configuration (see package config), not per-session state.
func DefaultSessionProperties() *SessionPropertyRegistry {
	r := NewSessionPropertyRegistry()
	r.Declare("query.max-age", DurationType{})
	r.Declare("query.client.timeout", DurationType{})
	r.Declare("query.max-history", IntegerType{})
	r.Declare("query.schedule-split-batch-size", IntegerType{})
	return r
}
