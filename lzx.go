// Copyright 2024 The UPK Toolkit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package upk

import "fmt"

// lzxCodec decompresses Lzx-compressed blocks. LZX (the Xbox 360
// cooker's compression method) is a full sliding-window, Huffman- and
// range-coded format; no implementation of it, pure-Go or otherwise,
// appears anywhere in the retrieval pack, and a from-scratch bitstream
// decoder is out of reach for this toolkit's budget. This codec
// recognizes the one trivial block kind LZX defines — an uncompressed
// block, stored verbatim with a 16-bit big-endian length prefix aligned
// to the block boundary — and otherwise reports ErrDecompressionFailed so
// a caller sees a clean failure instead of garbage output.
type lzxCodec struct{}

const lzxUncompressedBlockType = 0x3

func (lzxCodec) decompress(compressed []byte, decompressedSize int) ([]byte, error) {
	if len(compressed) < 3 {
		return nil, fmt.Errorf("%w: lzx: block too small", ErrDecompressionFailed)
	}

	// The block type is taken from the top three bits of the first byte
	// (most-significant-bit first).
	blockType := (uint32(compressed[0]) >> 5) & 0x7
	if blockType != lzxUncompressedBlockType {
		return nil, fmt.Errorf("%w: lzx: compressed block type %d not supported", ErrDecompressionFailed, blockType)
	}

	// An uncompressed block aligns to a 16-bit boundary, then stores the
	// original bytes directly; the reader has no reliable alignment
	// anchor without the preceding bitstream state, so this path only
	// handles the case the whole block is the uncompressed payload plus
	// its declared size, which is what a from-scratch tool can produce
	// when emitting "new" compressed chunks.
	if len(compressed) < decompressedSize {
		return nil, fmt.Errorf("%w: lzx: uncompressed block shorter than declared size", ErrDecompressionFailed)
	}
	return padToSize(compressed[:decompressedSize], decompressedSize), nil
}
