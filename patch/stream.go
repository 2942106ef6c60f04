// Copyright 2024 The UPK Toolkit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package patch

import (
	"encoding/binary"
	"fmt"
)

// streamReader is a minimal little-endian reader for the patch artifact's
// uncompressed inner stream: Strings and FNames here are plain
// length-prefixed text, not the index pairs the rest of the toolkit
// uses, per spec.md §4.8.
type streamReader struct {
	data []byte
	pos  int
}

func (r *streamReader) need(n int) error {
	if r.pos+n > len(r.data) {
		return fmt.Errorf("patch: truncated stream at offset %d, need %d bytes", r.pos, n)
	}
	return nil
}

func (r *streamReader) i32() (int32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := int32(binary.LittleEndian.Uint32(r.data[r.pos:]))
	r.pos += 4
	return v, nil
}

func (r *streamReader) string() (string, error) {
	n, err := r.i32()
	if err != nil {
		return "", err
	}
	if n == 0 {
		return "", nil
	}
	if n < 0 {
		return "", fmt.Errorf("patch: negative string length %d", n)
	}
	if err := r.need(int(n)); err != nil {
		return "", err
	}
	// Trailing NUL is included in the declared length, matching the
	// rest of the toolkit's ISO-8859-1 string convention.
	s := string(r.data[r.pos : r.pos+int(n)-1])
	r.pos += int(n)
	return s, nil
}

func (r *streamReader) fname() (string, error) { return r.string() }

func (r *streamReader) bytes() ([]byte, error) {
	n, err := r.i32()
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, fmt.Errorf("patch: negative byte array length %d", n)
	}
	if err := r.need(int(n)); err != nil {
		return nil, err
	}
	b := r.data[r.pos : r.pos+int(n)]
	r.pos += int(n)
	return b, nil
}

func (r *streamReader) namesArray() ([]string, error) {
	count, err := r.i32()
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, count)
	for i := int32(0); i < count; i++ {
		s, err := r.fname()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func (r *streamReader) patchData() (PatchData, error) {
	name, err := r.string()
	if err != nil {
		return PatchData{}, err
	}
	data, err := r.bytes()
	if err != nil {
		return PatchData{}, err
	}
	return PatchData{DataName: name, Data: data}, nil
}

func decodeStream(data []byte) (*Artifact, error) {
	r := &streamReader{data: data}
	a := &Artifact{}

	var err error
	if a.PackageName, err = r.string(); err != nil {
		return nil, err
	}
	if a.Names, err = r.namesArray(); err != nil {
		return nil, err
	}

	exportCount, err := r.i32()
	if err != nil {
		return nil, err
	}
	a.ExportCount = int(exportCount)
	importCount, err := r.i32()
	if err != nil {
		return nil, err
	}
	a.ImportCount = int(importCount)
	if a.ExportCount != 0 || a.ImportCount != 0 {
		return nil, ErrUnsupportedArtifact
	}

	newObjCount, err := r.i32()
	if err != nil {
		return nil, err
	}
	for i := int32(0); i < newObjCount; i++ {
		pd, err := r.patchData()
		if err != nil {
			return nil, err
		}
		a.NewObjects = append(a.NewObjects, pd)
	}

	cdoCount, err := r.i32()
	if err != nil {
		return nil, err
	}
	for i := int32(0); i < cdoCount; i++ {
		pd, err := r.patchData()
		if err != nil {
			return nil, err
		}
		a.ModifiedCDOs = append(a.ModifiedCDOs, pd)
	}

	enumCount, err := r.i32()
	if err != nil {
		return nil, err
	}
	for i := int32(0); i < enumCount; i++ {
		name, err := r.fname()
		if err != nil {
			return nil, err
		}
		path, err := r.string()
		if err != nil {
			return nil, err
		}
		values, err := r.namesArray()
		if err != nil {
			return nil, err
		}
		a.ModifiedEnums = append(a.ModifiedEnums, EnumPatch{EnumName: name, EnumPathName: path, EnumValues: values})
	}

	scriptCount, err := r.i32()
	if err != nil {
		return nil, err
	}
	for i := int32(0); i < scriptCount; i++ {
		structName, err := r.fname()
		if err != nil {
			return nil, err
		}
		pd, err := r.patchData()
		if err != nil {
			return nil, err
		}
		a.ScriptPatches = append(a.ScriptPatches, ScriptPatch{StructName: structName, PatchData: pd})
	}

	return a, nil
}

// streamWriter is encodeStream's counterpart to streamReader.
type streamWriter struct{ buf []byte }

func (w *streamWriter) i32(v int32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], uint32(v))
	w.buf = append(w.buf, tmp[:]...)
}

func (w *streamWriter) string(s string) {
	w.i32(int32(len(s) + 1))
	w.buf = append(w.buf, s...)
	w.buf = append(w.buf, 0)
}

func (w *streamWriter) fname(s string) { w.string(s) }

func (w *streamWriter) bytes(b []byte) {
	w.i32(int32(len(b)))
	w.buf = append(w.buf, b...)
}

func (w *streamWriter) namesArray(names []string) {
	w.i32(int32(len(names)))
	for _, n := range names {
		w.fname(n)
	}
}

func (w *streamWriter) patchData(pd PatchData) {
	w.string(pd.DataName)
	w.bytes(pd.Data)
}

func encodeStream(a *Artifact) []byte {
	w := &streamWriter{}
	w.string(a.PackageName)
	w.namesArray(a.Names)
	w.i32(int32(a.ExportCount))
	w.i32(int32(a.ImportCount))

	w.i32(int32(len(a.NewObjects)))
	for _, pd := range a.NewObjects {
		w.patchData(pd)
	}
	w.i32(int32(len(a.ModifiedCDOs)))
	for _, pd := range a.ModifiedCDOs {
		w.patchData(pd)
	}
	w.i32(int32(len(a.ModifiedEnums)))
	for _, e := range a.ModifiedEnums {
		w.fname(e.EnumName)
		w.string(e.EnumPathName)
		w.namesArray(e.EnumValues)
	}
	w.i32(int32(len(a.ScriptPatches)))
	for _, sp := range a.ScriptPatches {
		w.fname(sp.StructName)
		w.patchData(sp.PatchData)
	}
	return w.buf
}
