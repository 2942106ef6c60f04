// Copyright 2024 The UPK Toolkit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package upk

import (
	"bytes"
	"fmt"
	"io"
	"math/bits"
	"sort"

	"github.com/klauspost/compress/zlib"

	"github.com/upk-toolkit/upk/log"
)

// defaultBlockSize is used when a sub-chunk header reports a block size
// equal to the package magic — an observed encoder quirk where the field
// is left at its "unset" sentinel value.
const defaultBlockSize = 0x20000

// codec is the decompression half of a compression method. Each declared
// CompressionMethod in the header dispatches to exactly one codec,
// mirroring the Codec abstraction arloliu/mebo's compress package wires
// behind its own codec interface.
type codec interface {
	decompress(compressed []byte, decompressedSize int) ([]byte, error)
}

func codecFor(method CompressionMethod) (codec, error) {
	switch method {
	case CompressionZlib:
		return zlibCodec{}, nil
	case CompressionLzo:
		return lzoCodec{}, nil
	case CompressionLzx:
		return lzxCodec{}, nil
	default:
		return nil, fmt.Errorf("%w: no codec for compression method %s", ErrInvalidHeader, method)
	}
}

type zlibCodec struct{}

func (zlibCodec) decompress(compressed []byte, decompressedSize int) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("%w: zlib: %v", ErrDecompressionFailed, err)
	}
	defer r.Close()

	out := make([]byte, 0, decompressedSize)
	buf := bytes.NewBuffer(out)
	if _, err := io.CopyN(buf, r, int64(decompressedSize)+1); err != nil && err != io.EOF {
		return nil, fmt.Errorf("%w: zlib: %v", ErrDecompressionFailed, err)
	}
	if buf.Len() > decompressedSize {
		return nil, fmt.Errorf("%w: zlib output larger than declared size", ErrDecompressionFailed)
	}
	return padToSize(buf.Bytes(), decompressedSize), nil
}

// padToSize zero-pads a short decompression result to the declared size,
// the observed tolerance for trailing padding spec.md §4.2 calls out.
func padToSize(b []byte, size int) []byte {
	if len(b) >= size {
		return b[:size]
	}
	out := make([]byte, size)
	copy(out, b)
	return out
}

// subChunkHeader is the per-block-group header prefixing each
// compressed-chunk's physical bytes.
type subChunkHeader struct {
	tag         uint32
	blockSize   uint32
	summaryA    uint32
	summaryB    uint32
	bigEndian   bool
}

func readSubChunkHeader(c *cursor) (subChunkHeader, error) {
	tag, err := c.U32()
	if err != nil {
		return subChunkHeader{}, err
	}
	blockSize, err := c.U32()
	if err != nil {
		return subChunkHeader{}, err
	}
	summaryA, err := c.U32()
	if err != nil {
		return subChunkHeader{}, err
	}
	summaryB, err := c.U32()
	if err != nil {
		return subChunkHeader{}, err
	}

	h := subChunkHeader{tag: tag, blockSize: blockSize, summaryA: summaryA, summaryB: summaryB}
	if tag == PackageSignature {
		return normalizeSubChunkHeader(h), nil
	}
	if bits.ReverseBytes32(tag) == PackageSignature {
		h.bigEndian = true
		h.tag = bits.ReverseBytes32(h.tag)
		h.blockSize = bits.ReverseBytes32(h.blockSize)
		h.summaryA = bits.ReverseBytes32(h.summaryA)
		h.summaryB = bits.ReverseBytes32(h.summaryB)
		return normalizeSubChunkHeader(h), nil
	}
	return subChunkHeader{}, ErrBadMagic
}

func normalizeSubChunkHeader(h subChunkHeader) subChunkHeader {
	if h.blockSize == PackageSignature {
		h.blockSize = defaultBlockSize
	}
	return h
}

// blockSizePair is one (compressed_len, decompressed_len) entry in a
// sub-chunk's block table.
type blockSizePair struct {
	compressedLen   uint32
	decompressedLen uint32
}

func readBlockSizePair(c *cursor, bigEndian bool) (blockSizePair, error) {
	a, err := c.U32()
	if err != nil {
		return blockSizePair{}, err
	}
	b, err := c.U32()
	if err != nil {
		return blockSizePair{}, err
	}
	if bigEndian {
		a, b = bits.ReverseBytes32(a), bits.ReverseBytes32(b)
	}
	return blockSizePair{compressedLen: a, decompressedLen: b}, nil
}

// decompressPackage reconstructs the logical uncompressed package image
// from the raw compressed file bytes and the header's chunk table,
// following spec.md §4.2: chunks are processed in decompressed_offset
// order, each sub-chunk header is parsed (probing both byte orders), its
// block table read, each block decompressed with the declared codec and
// concatenated, and the result copied into the output image at the
// chunk's decompressed_offset. Bytes between chunks, and the trailing
// bytes after the last chunk, are copied verbatim from the original
// compressed file — but those gaps live in the file's compressed-offset
// space, not the decompressed-offset space the output image is indexed
// by, so they diverge the moment any chunk's compressed and decompressed
// sizes differ (the normal case). A separate cursorCompressed tracks the
// read side of every such copy; cursorOut tracks only where the next
// write lands in out.
func decompressPackage(raw []byte, h *Header, logger *log.Helper) ([]byte, error) {
	if h.Compression == CompressionNone {
		out := make([]byte, len(raw))
		copy(out, raw)
		return out, nil
	}

	method, err := codecFor(h.Compression)
	if err != nil {
		return nil, err
	}

	chunks := make([]CompressedChunk, len(h.CompressedChunks))
	copy(chunks, h.CompressedChunks)
	sort.Slice(chunks, func(i, j int) bool {
		return chunks[i].DecompressedOffset < chunks[j].DecompressedOffset
	})

	var totalSize int
	for _, ch := range chunks {
		end := int(ch.DecompressedOffset) + int(ch.DecompressedSize)
		if end > totalSize {
			totalSize = end
		}
	}
	if totalSize == 0 {
		totalSize = int(h.HeaderSize)
	}
	// The trailing footer copied after the last chunk can extend the
	// image past every chunk's own decompressed range; grow totalSize up
	// front so the footer copy below always has room.
	if n := len(chunks); n > 0 {
		last := chunks[n-1]
		lastCompressedEnd := int(last.CompressedOffset) + int(last.CompressedSize)
		lastDecompressedEnd := int(last.DecompressedOffset) + int(last.DecompressedSize)
		if footer := len(raw) - lastCompressedEnd; footer > 0 {
			if need := lastDecompressedEnd + footer; need > totalSize {
				totalSize = need
			}
		}
	}

	out := make([]byte, totalSize)

	// Preserve everything up to the first chunk (header plus any
	// observed gap between the header and the first decompressed
	// region — spec.md §9 open question (a): preserve verbatim). The
	// header region precedes any compression, so decompressed- and
	// compressed-offset space still coincide here.
	cursorOut := 0
	cursorCompressed := 0
	for i, ch := range chunks {
		if i == 0 {
			if int(ch.DecompressedOffset) > cursorOut && int(ch.DecompressedOffset) <= len(raw) {
				copy(out[cursorOut:ch.DecompressedOffset], raw[cursorOut:ch.DecompressedOffset])
			}
		} else {
			prev := chunks[i-1]
			prevCompressedEnd := int(prev.CompressedOffset) + int(prev.CompressedSize)
			diff := int(ch.CompressedOffset) - prevCompressedEnd
			if diff > 0 && prevCompressedEnd+diff <= len(raw) && cursorOut+diff <= len(out) {
				copy(out[cursorOut:cursorOut+diff], raw[prevCompressedEnd:prevCompressedEnd+diff])
			}
		}

		chunkData, err := decompressChunk(raw, ch, method, logger)
		if err != nil {
			return nil, err
		}
		copy(out[ch.DecompressedOffset:], chunkData)
		cursorOut = int(ch.DecompressedOffset) + int(ch.DecompressedSize)
		cursorCompressed = int(ch.CompressedOffset) + int(ch.CompressedSize)
	}

	if len(chunks) > 0 {
		if footerLen := len(raw) - cursorCompressed; footerLen > 0 && cursorOut+footerLen <= len(out) {
			copy(out[cursorOut:cursorOut+footerLen], raw[cursorCompressed:cursorCompressed+footerLen])
		}
	}

	return out, nil
}

func decompressChunk(raw []byte, ch CompressedChunk, method codec, logger *log.Helper) ([]byte, error) {
	if int(ch.CompressedOffset)+int(ch.CompressedSize) > len(raw) {
		return nil, fmt.Errorf("%w: chunk compressed range outside file", ErrDecompressionFailed)
	}

	c := newCursorAt(raw, int(ch.CompressedOffset))
	sub, err := readSubChunkHeader(c)
	if err != nil {
		return nil, err
	}

	blockCount := int((uint64(sub.summaryB) + uint64(sub.blockSize) - 1) / uint64(sub.blockSize))
	if sub.summaryB == 0 {
		blockCount = 0
	}

	pairs := make([]blockSizePair, blockCount)
	for i := range pairs {
		pairs[i], err = readBlockSizePair(c, sub.bigEndian)
		if err != nil {
			return nil, err
		}
	}

	out := make([]byte, 0, ch.DecompressedSize)
	for i, p := range pairs {
		if c.Pos()+int(p.compressedLen) > len(raw) {
			return nil, fmt.Errorf("%w: block %d compressed range outside file", ErrDecompressionFailed, i)
		}
		compressed, err := c.Bytes(int(p.compressedLen))
		if err != nil {
			return nil, err
		}
		block, err := method.decompress(compressed, int(p.decompressedLen))
		if err != nil {
			if logger != nil {
				logger.Warnf("chunk block %d decompression failed: %v", i, err)
			}
			return nil, err
		}
		out = append(out, block...)
	}

	return padToSize(out, int(ch.DecompressedSize)), nil
}

// stripCompression rewrites h in place to describe an already-decompressed
// image: compression becomes None, the chunk table is emptied, and
// StoreCompressed is cleared from the package flags.
func stripCompression(h *Header) {
	h.Compression = CompressionNone
	h.CompressedChunks = nil
	h.PackageFlags &^= PkgStoreCompressed
}
