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

package block

import "time"

// Session carries the per-request state that influences value
// materialization for client output, per spec §4.1 ("applying session
// time zone where relevant").
//
// All timestamps are stored as 64-bit epoch-millis UTC (spec §9 design
// note); a reader that stores epoch-relative values in a non-UTC zone
// must have already applied its single canonical correction by the time
// the value reaches a Block. Session.Location only affects how a value
// is rendered for the client, never how it is stored or compared.
type Session struct {
	Location *time.Location
}

func (s *Session) location() *time.Location {
	if s == nil || s.Location == nil {
		return time.UTC
	}
	return s.Location
}

// ObjectValue materializes the value at pos into a plain Go value
// suitable for the client-protocol JSON encoder (spec §6: connector-
// neutral JSON scalars; temporal types are ISO-8601 in the session time
// zone). It returns nil for a null position or for the unknown type.
func (b *Block) ObjectValue(sess *Session, pos int) (any, error) {
	if b.IsNull(pos) {
		return nil, nil
	}
	switch b.typ.Kind {
	case KindUnknown:
		return nil, nil
	case KindBoolean:
		return b.GetBool(pos), nil
	case KindBigint:
		return b.GetInt64(pos), nil
	case KindDouble:
		return b.GetFloat64(pos), nil
	case KindVarchar:
		return b.GetString(pos), nil
	case KindVarbinary:
		return b.GetBytes(pos), nil
	case KindDate:
		t := time.UnixMilli(b.GetInt64(pos)).In(time.UTC)
		return t.Format("2006-01-02"), nil
	case KindTimestamp:
		t := time.UnixMilli(b.GetInt64(pos)).In(time.UTC)
		return t.Format("2006-01-02T15:04:05.000"), nil
	case KindTimestampTZ:
		t := time.UnixMilli(b.GetInt64(pos)).In(sess.location())
		return t.Format("2006-01-02T15:04:05.000Z07:00"), nil
	case KindArray:
		child, lo, hi := b.ArrayChild(pos)
		out := make([]any, 0, hi-lo)
		for i := lo; i < hi; i++ {
			v, err := child.ObjectValue(sess, i)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	case KindMap:
		keys, values, lo, hi := b.MapChild(pos)
		out := make(map[string]any, hi-lo)
		for i := lo; i < hi; i++ {
			k, err := keys.ObjectValue(sess, i)
			if err != nil {
				return nil, err
			}
			v, err := values.ObjectValue(sess, i)
			if err != nil {
				return nil, err
			}
			out[keyString(k)] = v
		}
		return out, nil
	case KindRow:
		out := make(map[string]any, len(b.rowChildren))
		for i, f := range b.typ.Fields {
			v, err := b.rowChildren[i].ObjectValue(sess, pos)
			if err != nil {
				return nil, err
			}
			name := f.Name
			if name == "" {
				name = indexFieldName(i)
			}
			out[name] = v
		}
		return out, nil
	default:
		return nil, nil
	}
}

func keyString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func indexFieldName(i int) string {
	const digits = "0123456789"
	if i < 10 {
		return "f" + string(digits[i])
	}
	// rare path: unnamed row with >= 10 fields.
	var buf []byte
	n := i
	for n > 0 {
		buf = append([]byte{digits[n%10]}, buf...)
		n /= 10
	}
	return "f" + string(buf)
}
