// Copyright 2024 The UPK Toolkit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package upk

import (
	"bytes"
	"math/bits"
	"testing"

	"github.com/klauspost/compress/zlib"
)

func TestDecompressPackageNoneIsCopy(t *testing.T) {
	h := &Header{Compression: CompressionNone}
	raw := []byte{1, 2, 3, 4}
	out, err := decompressPackage(raw, h, nil)
	if err != nil {
		t.Fatalf("decompressPackage: %v", err)
	}
	if !bytes.Equal(out, raw) {
		t.Errorf("got % X, want % X", out, raw)
	}
	out[0] = 0xFF
	if raw[0] == 0xFF {
		t.Error("decompressPackage must return a copy, not alias raw")
	}
}

func TestZlibCodecRoundTrip(t *testing.T) {
	want := []byte("hello package world")
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	zw.Write(want)
	zw.Close()

	got, err := zlibCodec{}.decompress(buf.Bytes(), len(want))
	if err != nil {
		t.Fatalf("decompress: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestZlibCodecPadsShortOutput(t *testing.T) {
	want := []byte("abc")
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	zw.Write(want)
	zw.Close()

	got, err := zlibCodec{}.decompress(buf.Bytes(), 6)
	if err != nil {
		t.Fatalf("decompress: %v", err)
	}
	if len(got) != 6 || !bytes.Equal(got[:3], want) {
		t.Errorf("got % X", got)
	}
}

func TestCodecForUnknownMethod(t *testing.T) {
	if _, err := codecFor(CompressionMethod(99)); err == nil {
		t.Error("expected error for unknown compression method")
	}
}

// buildZlibChunk zlib-compresses data into one sub-chunk block and wraps
// it in the sub-chunk header + single block-size-pair framing
// decompressChunk expects, placing the chunk at compressedOffset in the
// returned raw slice and reporting its CompressedChunk table entry.
func buildZlibChunk(t *testing.T, data []byte, decompressedOffset, compressedOffset uint32) (CompressedChunk, []byte) {
	t.Helper()
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		t.Fatalf("zlib write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zlib close: %v", err)
	}
	compressed := buf.Bytes()

	w := newWriter()
	w.PutU32(PackageSignature)
	w.PutU32(0x20000) // blockSize, larger than data so blockCount == 1
	w.PutU32(0)       // summaryA, unused by decompressChunk
	w.PutU32(uint32(len(data)))
	w.PutU32(uint32(len(compressed)))
	w.PutU32(uint32(len(data)))
	w.PutRaw(compressed)

	chunkBytes := w.Bytes()
	chunk := CompressedChunk{
		DecompressedOffset: decompressedOffset,
		DecompressedSize:   uint32(len(data)),
		CompressedOffset:   compressedOffset,
		CompressedSize:     uint32(len(chunkBytes)),
	}
	return chunk, chunkBytes
}

// TestDecompressPackageGapAndFooterUseCompressedOffsets builds two chunks
// whose compressed-space gap (5 bytes) differs from their decompressed-
// space gap (4 bytes) — the normal case once compression changes a
// chunk's size — plus a trailing footer after the last chunk's compressed
// range. The inter-chunk gap must be sourced from the compressed-offset
// position, not the decompressed-offset position, and the footer must be
// appended after the last chunk's decompressed range.
func TestDecompressPackageGapAndFooterUseCompressedOffsets(t *testing.T) {
	data0 := []byte("AAAABBBBCCCC")   // 12 bytes
	data1 := []byte("DDDDEEEEFFFFGGGG") // 16 bytes
	gap := []byte{0xAA, 0xBB, 0xCC, 0xDD, 0xEE}
	footer := []byte{0x11, 0x22, 0x33}

	chunk0, bytes0 := buildZlibChunk(t, data0, 0, 0)
	compressedOffset1 := chunk0.CompressedOffset + chunk0.CompressedSize + uint32(len(gap))
	chunk1, bytes1 := buildZlibChunk(t, data1, 12+4, compressedOffset1)

	var raw []byte
	raw = append(raw, bytes0...)
	raw = append(raw, gap...)
	raw = append(raw, bytes1...)
	raw = append(raw, footer...)

	h := &Header{Compression: CompressionZlib, CompressedChunks: []CompressedChunk{chunk0, chunk1}}
	out, err := decompressPackage(raw, h, nil)
	if err != nil {
		t.Fatalf("decompressPackage: %v", err)
	}

	if !bytes.Equal(out[0:12], data0) {
		t.Errorf("chunk0 region = % X, want % X", out[0:12], data0)
	}
	if !bytes.Equal(out[12:16], gap[:4]) {
		t.Errorf("inter-chunk gap = % X, want %X (first 4 bytes of the compressed-space gap)", out[12:16], gap[:4])
	}
	if !bytes.Equal(out[16:32], data1) {
		t.Errorf("chunk1 region = % X, want % X", out[16:32], data1)
	}
	if len(out) < 32+len(footer) {
		t.Fatalf("got %d bytes, want at least %d (footer not appended)", len(out), 32+len(footer))
	}
	if !bytes.Equal(out[32:32+len(footer)], footer) {
		t.Errorf("footer region = % X, want % X", out[32:32+len(footer)], footer)
	}
}

func TestSubChunkHeaderByteSwapDetection(t *testing.T) {
	w := newWriter()
	w.PutU32(bits.ReverseBytes32(PackageSignature))
	w.PutU32(bits.ReverseBytes32(0x20000))
	w.PutU32(0)
	w.PutU32(0)

	got, err := readSubChunkHeader(newCursor(w.Bytes()))
	if err != nil {
		t.Fatalf("readSubChunkHeader: %v", err)
	}
	if !got.bigEndian {
		t.Error("expected byte-swapped sub-chunk header to be detected")
	}
	if got.blockSize != 0x20000 {
		t.Errorf("blockSize = %#x, want 0x20000", got.blockSize)
	}
}
