// Copyright 2024 The UPK Toolkit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package upk

import "testing"

func minimalHeader() *Header {
	return &Header{
		PackageVersion: 500,
		HeaderSize:     0,
		FolderName:     "None",
		PackageGUID:    [4]int32{1, 2, 3, 4},
		Compression:    CompressionNone,
	}
}

func TestParseEmptyPackage(t *testing.T) {
	w := newWriter()
	writeHeader(w, minimalHeader())
	data := w.Bytes()

	p, err := NewBytes(data, nil)
	if err != nil {
		t.Fatalf("NewBytes: %v", err)
	}
	if err := p.Parse(); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(p.Names) != 0 || len(p.Imports) != 0 || len(p.Exports) != 0 {
		t.Fatalf("expected empty tables, got names=%d imports=%d exports=%d", len(p.Names), len(p.Imports), len(p.Exports))
	}
}

func TestParseRejectsBadMagic(t *testing.T) {
	data := []byte{0, 0, 0, 0}
	p, err := NewBytes(data, nil)
	if err != nil {
		t.Fatalf("NewBytes: %v", err)
	}
	if err := p.Parse(); err == nil {
		t.Fatal("expected an error for bad magic")
	}
}

func TestHeaderRoundTrip(t *testing.T) {
	h := minimalHeader()
	h.NameCount = 3
	h.ExportCount = 7
	h.Generations = []Generation{{ExportCount: 7, NameCount: 3, NetObjectCount: 0}}

	w := newWriter()
	writeHeader(w, h)
	data := w.Bytes()

	c := newCursor(data)
	got, err := readHeader(c)
	if err != nil {
		t.Fatalf("readHeader: %v", err)
	}

	w2 := newWriter()
	writeHeader(w2, got)
	if string(w2.Bytes()) != string(data) {
		t.Errorf("round trip mismatch:\n got  % X\n want % X", w2.Bytes(), data)
	}
}

func TestFindExportByPathNoExports(t *testing.T) {
	p := &Package{}
	if _, ok := p.FindExportByPath("anything"); ok {
		t.Error("expected no match on an empty export table")
	}
}
