// Copyright 2024 The UPK Toolkit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package patch

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
)

const blockSize = 0x20000

// ErrUnsupportedArtifact is returned when an artifact declares a nonzero
// exports or imports table, which this toolkit does not know how to
// decode per spec.md §4.8.
var ErrUnsupportedArtifact = errors.New("patch: nonzero exports/imports table is unsupported")

// Decode reads a compressed patch artifact: the outer
// (uncompressed_total_len, compressed_total_len, block headers,
// compressed blocks) wrapper, then the inner tagged stream.
func Decode(data []byte) (*Artifact, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("patch: truncated header")
	}
	uncompressedTotal := binary.LittleEndian.Uint32(data[0:4])
	compressedTotal := binary.LittleEndian.Uint32(data[4:8])
	if int(compressedTotal) > len(data)-8 {
		return nil, fmt.Errorf("patch: declared compressed length %d exceeds input", compressedTotal)
	}

	pos := 8
	var blockHeaders []struct{ compressedLen, uncompressedLen uint32 }
	remaining := int64(uncompressedTotal)
	for remaining > 0 {
		if pos+8 > len(data) {
			return nil, fmt.Errorf("patch: truncated block header at offset %d", pos)
		}
		compLen := binary.LittleEndian.Uint32(data[pos:])
		uncompLen := binary.LittleEndian.Uint32(data[pos+4:])
		blockHeaders = append(blockHeaders, struct{ compressedLen, uncompressedLen uint32 }{compLen, uncompLen})
		pos += 8
		remaining -= int64(uncompLen)
	}

	out := make([]byte, 0, uncompressedTotal)
	for _, h := range blockHeaders {
		if pos+int(h.compressedLen) > len(data) {
			return nil, fmt.Errorf("patch: truncated compressed block at offset %d", pos)
		}
		block := data[pos : pos+int(h.compressedLen)]
		pos += int(h.compressedLen)

		r, err := zlib.NewReader(bytes.NewReader(block))
		if err != nil {
			return nil, fmt.Errorf("patch: zlib block: %w", err)
		}
		decoded := make([]byte, h.uncompressedLen)
		if _, err := io.ReadFull(r, decoded); err != nil {
			r.Close()
			return nil, fmt.Errorf("patch: zlib block: %w", err)
		}
		r.Close()
		out = append(out, decoded...)
	}

	return decodeStream(out)
}

// Encode serializes an artifact back into the compressed wrapper format,
// one independently zlib-compressed block per blockSize-sized chunk of
// the uncompressed stream.
func Encode(a *Artifact) ([]byte, error) {
	stream := encodeStream(a)

	var blocks [][]byte
	for off := 0; off < len(stream); off += blockSize {
		end := off + blockSize
		if end > len(stream) {
			end = len(stream)
		}
		chunk := stream[off:end]

		var buf bytes.Buffer
		w := zlib.NewWriter(&buf)
		if _, err := w.Write(chunk); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		blocks = append(blocks, buf.Bytes())
	}

	var out bytes.Buffer
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(stream)))
	out.Write(lenBuf[:])

	compressedTotal := 0
	for _, b := range blocks {
		compressedTotal += len(b)
	}
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(compressedTotal))
	out.Write(lenBuf[:])

	for i, b := range blocks {
		off := i * blockSize
		end := off + blockSize
		if end > len(stream) {
			end = len(stream)
		}
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(b)))
		out.Write(lenBuf[:])
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(end-off))
		out.Write(lenBuf[:])
	}
	for _, b := range blocks {
		out.Write(b)
	}
	return out.Bytes(), nil
}
