// Copyright 2024 The UPK Toolkit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package upk

import "testing"

func TestLinkerIndexConventions(t *testing.T) {
	none := LinkerIndex(0)
	exp := LinkerIndex(3)
	imp := LinkerIndex(-2)

	if !none.IsNone() || none.IsExport() || none.IsImport() {
		t.Error("zero index should be None only")
	}
	if !exp.IsExport() || exp.ExportTableIndex() != 2 {
		t.Errorf("export index wrong: %+v", exp)
	}
	if !imp.IsImport() || imp.ImportTableIndex() != 1 {
		t.Errorf("import index wrong: %+v", imp)
	}
}

func TestReadImportTable(t *testing.T) {
	w := newWriter()
	w.PutFName(FName{NameIndex: 1})
	w.PutFName(FName{NameIndex: 2})
	w.PutI32(0)
	w.PutFName(FName{NameIndex: 3})

	got, err := readImportTable(newCursor(w.Bytes()), 1)
	if err != nil {
		t.Fatalf("readImportTable: %v", err)
	}
	if len(got) != 1 || got[0].ObjectName.NameIndex != 3 {
		t.Errorf("got %+v", got)
	}
}

func TestReadExportTableWithoutLegacyComponentMap(t *testing.T) {
	w := newWriter()
	w.PutI32(1)            // class index
	w.PutI32(0)             // super index
	w.PutI32(0)             // outer index
	w.PutFName(FName{NameIndex: 4}) // object name
	w.PutI32(0)             // archetype
	w.PutU64(0)             // object flags
	w.PutI32(100)           // serial size
	w.PutI32(200)           // serial offset
	w.PutU32(0)             // export flags
	w.PutI32(0)             // generation net object count
	w.PutI32(1)             // guid
	w.PutI32(2)
	w.PutI32(3)
	w.PutI32(4)
	w.PutU32(0) // package flags

	got, err := readExportTable(newCursor(w.Bytes()), 1, false)
	if err != nil {
		t.Fatalf("readExportTable: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d exports, want 1", len(got))
	}
	e := got[0]
	if e.SerialSize != 100 || e.SerialOffset != 200 || e.HasLegacyComponentMap {
		t.Errorf("got %+v", e)
	}
	if !e.InBounds(400) {
		t.Error("expected export to be in bounds")
	}
	if e.InBounds(250) {
		t.Error("expected export to be out of bounds for a short file")
	}
}

func TestReadExportTableNegativeCountRejected(t *testing.T) {
	if _, err := readExportTable(newCursor(nil), -1, false); err == nil {
		t.Error("expected error on negative export count")
	}
	if _, err := readImportTable(newCursor(nil), -1); err == nil {
		t.Error("expected error on negative import count")
	}
}
