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
	"fmt"
	"runtime"

	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/zstd"
)

// payloadCompressor wraps a third-party compression algorithm for use on
// the serialized byte payload of a block encoding. It is a narrower
// surface than a general-purpose codec: block payloads are always
// compressed and decompressed whole, never streamed.
type payloadCompressor interface {
	name() string
	compress(src []byte) []byte
	decompress(src []byte, size int) ([]byte, error)
}

type s2Payload struct{}

func (s2Payload) name() string { return "s2" }

func (s2Payload) compress(src []byte) []byte { return s2.Encode(nil, src) }

func (s2Payload) decompress(src []byte, size int) ([]byte, error) {
	dst := make([]byte, 0, size)
	out, err := s2.Decode(dst[:0:size], src)
	if err != nil {
		return nil, fmt.Errorf("block: s2 decompress: %w", err)
	}
	if len(out) != size {
		return nil, fmt.Errorf("block: s2 decompress: expected %d bytes, got %d", size, len(out))
	}
	return out, nil
}

var zstdEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1))
var zstdDecoder, _ = zstd.NewReader(nil, zstd.WithDecoderConcurrency(runtime.GOMAXPROCS(0)))

type zstdPayload struct{}

func (zstdPayload) name() string { return "zstd" }

func (zstdPayload) compress(src []byte) []byte { return zstdEncoder.EncodeAll(src, nil) }

func (zstdPayload) decompress(src []byte, size int) ([]byte, error) {
	out, err := zstdDecoder.DecodeAll(src, make([]byte, 0, size))
	if err != nil {
		return nil, fmt.Errorf("block: zstd decompress: %w", err)
	}
	if len(out) != size {
		return nil, fmt.Errorf("block: zstd decompress: expected %d bytes, got %d", size, len(out))
	}
	return out, nil
}

var payloadCompressors = map[string]payloadCompressor{
	"s2":   s2Payload{},
	"zstd": zstdPayload{},
}

func payloadCompressorByName(name string) payloadCompressor {
	return payloadCompressors[name]
}
