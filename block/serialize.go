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

import (
	"encoding/binary"
	"math"
	"sync"

	"github.com/driftql/drift/errs"
)

// Encoding is a registered block wire format. Implementations must
// round-trip: Decode(Encode(b)) produces a Block with equal contents,
// type, and nulls (spec §3 invariant c, §8 item 1).
type Encoding interface {
	Name() string
	Encode(b *Block) []byte
	Decode(payload []byte) (*Block, error)
}

var (
	registryMu sync.RWMutex
	registry   = map[string]Encoding{}
)

// Register adds enc to the process-wide encoding registry under
// enc.Name(). It fails if the name is already registered (spec §4.1:
// "must fail if a name is reused"), including at startup seeding time.
func Register(enc Encoding) error {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := registry[enc.Name()]; exists {
		return errs.New(errs.AlreadyExists, "block: encoding %q already registered", enc.Name())
	}
	registry[enc.Name()] = enc
	return nil
}

func lookup(name string) (Encoding, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	e, ok := registry[name]
	return e, ok
}

func init() {
	must := func(e Encoding) {
		if err := Register(e); err != nil {
			panic(err)
		}
	}
	must(plainEncoding{})
	must(compressedEncoding{inner: plainEncoding{}, comp: s2Payload{}})
	must(compressedEncoding{inner: plainEncoding{}, comp: zstdPayload{}})
}

// Serialize encodes b using the named registered encoding, producing
// [encoding_name_len:int32][encoding_name][payload] (spec §4.1).
func Serialize(b *Block, encodingName string) ([]byte, error) {
	enc, ok := lookup(encodingName)
	if !ok {
		return nil, errs.New(errs.InternalError, "block: unknown encoding %q", encodingName)
	}
	payload := enc.Encode(b)
	name := enc.Name()
	out := make([]byte, 4+len(name)+len(payload))
	binary.LittleEndian.PutUint32(out, uint32(len(name)))
	copy(out[4:], name)
	copy(out[4+len(name):], payload)
	return out, nil
}

// Deserialize decodes a block previously produced by Serialize.
func Deserialize(data []byte) (*Block, error) {
	if len(data) < 4 {
		return nil, errs.New(errs.InternalError, "block: truncated encoding header")
	}
	nameLen := binary.LittleEndian.Uint32(data)
	data = data[4:]
	if uint32(len(data)) < nameLen {
		return nil, errs.New(errs.InternalError, "block: truncated encoding name")
	}
	name := string(data[:nameLen])
	payload := data[nameLen:]
	enc, ok := lookup(name)
	if !ok {
		return nil, errs.New(errs.InternalError, "block: unregistered encoding %q", name)
	}
	return enc.Decode(payload)
}

// --- "plain" encoding: full self-describing block (type + nulls + payload) ---

type plainEncoding struct{}

func (plainEncoding) Name() string { return "plain" }

func (plainEncoding) Encode(b *Block) []byte {
	var w writer
	writeType(&w, b.typ)
	writeBlockBody(&w, b)
	return w.buf
}

func (plainEncoding) Decode(payload []byte) (*Block, error) {
	r := &reader{buf: payload}
	typ, err := readType(r)
	if err != nil {
		return nil, err
	}
	return readBlockBody(r, typ)
}

// --- compressed wrapper: compresses the inner "plain" payload whole ---

type compressedEncoding struct {
	inner Encoding
	comp  payloadCompressor
}

func (c compressedEncoding) Name() string { return "plain-" + c.comp.name() }

func (c compressedEncoding) Encode(b *Block) []byte {
	raw := c.inner.Encode(b)
	compressed := c.comp.compress(raw)
	var w writer
	w.writeUvarint(uint64(len(raw)))
	w.buf = append(w.buf, compressed...)
	return w.buf
}

func (c compressedEncoding) Decode(payload []byte) (*Block, error) {
	r := &reader{buf: payload}
	size, err := r.readUvarint()
	if err != nil {
		return nil, err
	}
	raw, err := c.comp.decompress(r.rest(), int(size))
	if err != nil {
		return nil, err
	}
	return c.inner.Decode(raw)
}

// --- low level writer/reader ---

type writer struct{ buf []byte }

func (w *writer) writeByte(b byte) { w.buf = append(w.buf, b) }

func (w *writer) writeBool(b bool) {
	if b {
		w.writeByte(1)
	} else {
		w.writeByte(0)
	}
}

func (w *writer) writeUvarint(v uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	w.buf = append(w.buf, tmp[:n]...)
}

func (w *writer) writeInt64(v int64)     { w.writeUvarint(uint64(v)) }
func (w *writer) writeFloat64(v float64) { w.writeUvarint(math.Float64bits(v)) }

func (w *writer) writeString(s string) {
	w.writeUvarint(uint64(len(s)))
	w.buf = append(w.buf, s...)
}

func (w *writer) writeBytes(b []byte) {
	w.writeUvarint(uint64(len(b)))
	w.buf = append(w.buf, b...)
}

type reader struct {
	buf []byte
	off int
}

func (r *reader) rest() []byte { return r.buf[r.off:] }

func (r *reader) readByte() (byte, error) {
	if r.off >= len(r.buf) {
		return 0, errs.New(errs.InternalError, "block: unexpected EOF")
	}
	b := r.buf[r.off]
	r.off++
	return b, nil
}

func (r *reader) readBool() (bool, error) {
	b, err := r.readByte()
	return b != 0, err
}

func (r *reader) readUvarint() (uint64, error) {
	v, n := binary.Uvarint(r.buf[r.off:])
	if n <= 0 {
		return 0, errs.New(errs.InternalError, "block: malformed varint")
	}
	r.off += n
	return v, nil
}

func (r *reader) readInt64() (int64, error) {
	v, err := r.readUvarint()
	return int64(v), err
}

func (r *reader) readFloat64() (float64, error) {
	v, err := r.readUvarint()
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(v), nil
}

func (r *reader) readString() (string, error) {
	n, err := r.readUvarint()
	if err != nil {
		return "", err
	}
	if uint64(r.off)+n > uint64(len(r.buf)) {
		return "", errs.New(errs.InternalError, "block: truncated string")
	}
	s := string(r.buf[r.off : r.off+int(n)])
	r.off += int(n)
	return s, nil
}

func (r *reader) readBytes() ([]byte, error) {
	n, err := r.readUvarint()
	if err != nil {
		return nil, err
	}
	if uint64(r.off)+n > uint64(len(r.buf)) {
		return nil, errs.New(errs.InternalError, "block: truncated bytes")
	}
	b := r.buf[r.off : r.off+int(n)]
	r.off += int(n)
	return b, nil
}

// --- Type (de)serialization ---

func writeType(w *writer, t *Type) {
	w.writeByte(byte(t.Kind))
	switch t.Kind {
	case KindArray:
		writeType(w, t.Elem)
	case KindMap:
		writeType(w, t.Key)
		writeType(w, t.Value)
	case KindRow:
		w.writeUvarint(uint64(len(t.Fields)))
		for _, f := range t.Fields {
			w.writeString(f.Name)
			writeType(w, f.Type)
		}
	}
}

func readType(r *reader) (*Type, error) {
	kb, err := r.readByte()
	if err != nil {
		return nil, err
	}
	kind := Kind(kb)
	switch kind {
	case KindArray:
		elem, err := readType(r)
		if err != nil {
			return nil, err
		}
		return Array(elem), nil
	case KindMap:
		key, err := readType(r)
		if err != nil {
			return nil, err
		}
		val, err := readType(r)
		if err != nil {
			return nil, err
		}
		return Map(key, val), nil
	case KindRow:
		n, err := r.readUvarint()
		if err != nil {
			return nil, err
		}
		fields := make([]Field, n)
		for i := range fields {
			name, err := r.readString()
			if err != nil {
				return nil, err
			}
			ft, err := readType(r)
			if err != nil {
				return nil, err
			}
			fields[i] = Field{Name: name, Type: ft}
		}
		return Row(fields...), nil
	default:
		return &Type{Kind: kind}, nil
	}
}

// --- Block body (de)serialization ---

func writeBlockBody(w *writer, b *Block) {
	w.writeUvarint(uint64(b.n))
	w.writeBool(b.nulls != nil)
	if b.nulls != nil {
		for _, nv := range b.nulls {
			w.writeBool(nv)
		}
	}
	switch b.typ.Category() {
	case CatBoolean:
		for _, v := range b.bools {
			w.writeBool(v)
		}
	case CatInt64:
		for _, v := range b.longs {
			w.writeInt64(v)
		}
	case CatFloat64:
		for _, v := range b.doubles {
			w.writeFloat64(v)
		}
	case CatBytes:
		for i := 0; i < b.n; i++ {
			lo, hi := b.offsets[i], b.offsets[i+1]
			w.writeBytes(b.data[lo:hi])
		}
	case CatNested:
		switch b.typ.Kind {
		case KindArray:
			for _, off := range b.arrayOffsets {
				w.writeUvarint(uint64(off))
			}
			writeBlockBody(w, b.arrayChild)
		case KindMap:
			for _, off := range b.mapOffsets {
				w.writeUvarint(uint64(off))
			}
			writeBlockBody(w, b.mapKeys)
			writeBlockBody(w, b.mapValues)
		case KindRow:
			for _, c := range b.rowChildren {
				writeBlockBody(w, c)
			}
		}
	}
}

func readBlockBody(r *reader, typ *Type) (*Block, error) {
	n64, err := r.readUvarint()
	if err != nil {
		return nil, err
	}
	n := int(n64)
	hasNulls, err := r.readBool()
	if err != nil {
		return nil, err
	}
	var nulls []bool
	if hasNulls {
		nulls = make([]bool, n)
		for i := range nulls {
			nulls[i], err = r.readBool()
			if err != nil {
				return nil, err
			}
		}
	}
	blk := &Block{typ: typ, n: n, nulls: nulls}
	switch typ.Category() {
	case CatBoolean:
		blk.bools = make([]bool, n)
		for i := range blk.bools {
			blk.bools[i], err = r.readBool()
			if err != nil {
				return nil, err
			}
		}
	case CatInt64:
		blk.longs = make([]int64, n)
		for i := range blk.longs {
			blk.longs[i], err = r.readInt64()
			if err != nil {
				return nil, err
			}
		}
	case CatFloat64:
		blk.doubles = make([]float64, n)
		for i := range blk.doubles {
			blk.doubles[i], err = r.readFloat64()
			if err != nil {
				return nil, err
			}
		}
	case CatBytes:
		blk.offsets = make([]int32, n+1)
		var data []byte
		for i := 0; i < n; i++ {
			bs, err := r.readBytes()
			if err != nil {
				return nil, err
			}
			data = append(data, bs...)
			blk.offsets[i+1] = int32(len(data))
		}
		blk.data = data
	case CatNested:
		switch typ.Kind {
		case KindArray:
			offs := make([]int32, n+1)
			for i := range offs {
				v, err := r.readUvarint()
				if err != nil {
					return nil, err
				}
				offs[i] = int32(v)
			}
			child, err := readBlockBody(r, typ.Elem)
			if err != nil {
				return nil, err
			}
			blk.arrayOffsets = offs
			blk.arrayChild = child
		case KindMap:
			offs := make([]int32, n+1)
			for i := range offs {
				v, err := r.readUvarint()
				if err != nil {
					return nil, err
				}
				offs[i] = int32(v)
			}
			keys, err := readBlockBody(r, typ.Key)
			if err != nil {
				return nil, err
			}
			values, err := readBlockBody(r, typ.Value)
			if err != nil {
				return nil, err
			}
			blk.mapOffsets = offs
			blk.mapKeys = keys
			blk.mapValues = values
		case KindRow:
			children := make([]*Block, len(typ.Fields))
			for i, f := range typ.Fields {
				c, err := readBlockBody(r, f.Type)
				if err != nil {
					return nil, err
				}
				children[i] = c
			}
			blk.rowChildren = children
		}
	}
	return blk, nil
}
