// Copyright 2024 The UPK Toolkit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package disasm

import (
	"encoding/binary"
	"errors"
)

const maxScriptArrayBytes = 256 * 1024

// ErrNoScriptArray is returned when neither the property-prefixed probe
// nor the byte-scan fallback can locate a plausible TArray<BYTE> Script
// array within a blob.
var ErrNoScriptArray = errors.New("disasm: no script array found in blob")

// PropertyWalker lets ExtractScript skip a function export's tagged
// property prefix without this package depending on the root package's
// property codec: it returns the byte length of the property list
// starting at offset (including the terminating "None" property), or an
// error if the data does not look like a valid property stream.
type PropertyWalker func(blob []byte, offset int) (int, error)

// ExtractScript locates the TArray<BYTE> holding a function export's
// compiled bytecode within its blob, and returns (arrayOffset, bytes).
// arrayOffset points at the array's i32 length prefix, so a patch can
// locate and replace the (length, bytes) pair in place.
//
// It first skips the 4-byte NetIndex prefix, walks the tagged property
// list with walkProps, then probes up to five i32 word positions ahead
// for a plausible candidate: length must be positive, at most 256 KiB,
// fit within blob, and its last 8 bytes must contain an EndOfScript
// (0x53) byte. If the property walk itself fails, a byte-scan fallback
// looks for any such candidate across the whole blob.
func ExtractScript(blob []byte, walkProps PropertyWalker) (arrayOffset int, script []byte, err error) {
	const netIndexSize = 4
	if len(blob) < netIndexSize {
		return byteScanForScript(blob)
	}

	propsLen, perr := walkProps(blob, netIndexSize)
	if perr == nil {
		base := netIndexSize + propsLen
		for word := 0; word < 5; word++ {
			off := base + word*4
			if off, ok := probeCandidate(blob, off); ok {
				return off, extractArrayAt(blob, off), nil
			}
		}
	}

	return byteScanForScript(blob)
}

// probeCandidate checks whether blob[off:] begins with a plausible
// TArray<BYTE> length prefix, returning off unchanged when it is.
func probeCandidate(blob []byte, off int) (int, bool) {
	if off < 0 || off+4 > len(blob) {
		return 0, false
	}
	length := int(int32(binary.LittleEndian.Uint32(blob[off:])))
	if length <= 0 || length > maxScriptArrayBytes {
		return 0, false
	}
	end := off + 4 + length
	if end > len(blob) {
		return 0, false
	}
	tailStart := end - 8
	if tailStart < off+4 {
		tailStart = off + 4
	}
	for _, b := range blob[tailStart:end] {
		if b == byte(OpEndOfScript) {
			return off, true
		}
	}
	return 0, false
}

func extractArrayAt(blob []byte, off int) []byte {
	length := int(int32(binary.LittleEndian.Uint32(blob[off:])))
	return blob[off+4 : off+4+length]
}

// byteScanForScript is the extraction fallback: try every offset in
// blob as a candidate array-length prefix. This is O(n) candidate
// checks, each O(1) after the length bound, so it stays linear in blob
// size.
func byteScanForScript(blob []byte) (int, []byte, error) {
	for off := 0; off+4 <= len(blob); off++ {
		if o, ok := probeCandidate(blob, off); ok {
			return o, extractArrayAt(blob, o), nil
		}
	}
	return 0, nil, ErrNoScriptArray
}
