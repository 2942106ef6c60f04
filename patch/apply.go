// Copyright 2024 The UPK Toolkit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package patch

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/upk-toolkit/upk"
	"github.com/upk-toolkit/upk/disasm"
)

type exportFieldOffsets struct {
	sizeOffset, offsetOffset int
	serialOffset, serialSize int32
}

// ApplyPatch splices each of a's ScriptPatches into raw, the package's
// original file bytes, following spec.md §4.7. Unresolvable function
// paths, missing array pins, and out-of-bounds exports are skipped with
// a warning rather than aborting the whole apply; if nothing applied,
// raw is returned unchanged.
func ApplyPatch(raw []byte, pkg *upk.Package, a *Artifact, warn func(format string, args ...any)) ([]byte, error) {
	if warn == nil {
		warn = func(string, ...any) {}
	}

	replacements := map[int][]byte{} // export index -> new blob
	fields := map[int]exportFieldOffsets{}

	for i := range pkg.Exports {
		e := &pkg.Exports[i]
		fields[i] = exportFieldOffsets{
			sizeOffset:   e.SerialSizeOffset,
			offsetOffset: e.SerialOffsetOffset,
			serialOffset: e.SerialOffset,
			serialSize:   e.SerialSize,
		}
	}

	for _, sp := range a.ScriptPatches {
		functionPath := sp.PatchData.DataName
		idx, ok := pkg.FindExportByPath(functionPath)
		if !ok {
			warn("patch: no export matches function path %q, skipping", functionPath)
			continue
		}
		if idx < 0 || idx >= len(pkg.Exports) {
			warn("patch: export index %d out of bounds, skipping", idx)
			continue
		}

		blob, err := pkg.ExportBlob(idx)
		if err != nil {
			warn("patch: export %q blob out of bounds, skipping: %v", functionPath, err)
			continue
		}

		arrayOff, _, err := disasm.ExtractScript(blob, pkg.PropertyListLength)
		if err != nil {
			warn("patch: export %q: no script array pin found, skipping: %v", functionPath, err)
			continue
		}

		newBlob, ok := spliceScriptArray(blob, arrayOff, sp.PatchData.Data)
		if !ok {
			warn("patch: export %q: script array at offset %d runs past the blob, skipping", functionPath, arrayOff)
			continue
		}

		replacements[idx] = newBlob
	}

	if len(replacements) == 0 {
		return raw, nil
	}

	return rebuildDataRegion(raw, pkg.Exports, fields, replacements)
}

// spliceScriptArray replaces the TArray<BYTE> at arrayOff in blob with
// newBytes, producing blob[..arrayOff] + (len, newBytes) +
// blob[arrayOff+4+oldLen..].
func spliceScriptArray(blob []byte, arrayOff int, newBytes []byte) ([]byte, bool) {
	if arrayOff+4 > len(blob) {
		return nil, false
	}
	oldLen := int(int32(binary.LittleEndian.Uint32(blob[arrayOff:])))
	end := arrayOff + 4 + oldLen
	if oldLen < 0 || end > len(blob) {
		return nil, false
	}

	out := make([]byte, 0, arrayOff+4+len(newBytes)+(len(blob)-end))
	out = append(out, blob[:arrayOff]...)
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(newBytes)))
	out = append(out, lenBuf[:]...)
	out = append(out, newBytes...)
	out = append(out, blob[end:]...)
	return out, true
}

// rebuildDataRegion reassembles the export data region in original
// serial_offset order, substituting any replaced blobs, then patches
// each export's (size, offset) fields in the header bytes in place.
func rebuildDataRegion(raw []byte, exports []upk.ExportEntry, fields map[int]exportFieldOffsets, replacements map[int][]byte) ([]byte, error) {
	order := make([]int, len(exports))
	for i := range exports {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		return fields[order[a]].serialOffset < fields[order[b]].serialOffset
	})

	if len(order) == 0 {
		return raw, nil
	}

	firstOffset := int(fields[order[0]].serialOffset)
	lastEntry := fields[order[len(order)-1]]
	lastEnd := int(lastEntry.serialOffset) + int(lastEntry.serialSize)

	if firstOffset < 0 || firstOffset > len(raw) || lastEnd < 0 || lastEnd > len(raw) {
		return nil, fmt.Errorf("patch: export data region [%d,%d) outside file of length %d", firstOffset, lastEnd, len(raw))
	}

	out := make([]byte, 0, len(raw))
	out = append(out, raw[:firstOffset]...)

	newFieldValues := map[int][2]int32{} // export index -> (size, offset)
	cursor := firstOffset
	for _, idx := range order {
		f := fields[idx]
		blob, replaced := replacements[idx]
		if !replaced {
			start := int(f.serialOffset)
			end := start + int(f.serialSize)
			if start < 0 || end > len(raw) {
				return nil, fmt.Errorf("patch: export %d serial range outside file", idx)
			}
			blob = raw[start:end]
		}
		newFieldValues[idx] = [2]int32{int32(len(blob)), int32(cursor)}
		out = append(out, blob...)
		cursor += len(blob)
	}

	out = append(out, raw[lastEnd:]...)

	// Patch the (size, offset) fields in the header bytes, which precede
	// firstOffset and so are untouched by the data-region splice above.
	for idx, f := range fields {
		sz, off := newFieldValues[idx][0], newFieldValues[idx][1]
		if f.sizeOffset+4 > len(out) || f.offsetOffset+4 > len(out) {
			return nil, fmt.Errorf("patch: export %d field offsets outside rebuilt file", idx)
		}
		binary.LittleEndian.PutUint32(out[f.sizeOffset:], uint32(sz))
		binary.LittleEndian.PutUint32(out[f.offsetOffset:], uint32(off))
	}

	return out, nil
}
