// Copyright 2024 The UPK Toolkit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package upk

import "testing"

func TestNameTableRoundTrip(t *testing.T) {
	table := NameTable{
		{Text: "Core", Flags: 1},
		{Text: "Foo", Flags: 0},
	}
	w := newWriter()
	writeNameTable(w, table)

	got, err := readNameTable(newCursor(w.Bytes()), len(table))
	if err != nil {
		t.Fatalf("readNameTable: %v", err)
	}
	if len(got) != 2 || got[0].Text != "Core" || got[1].Flags != 0 {
		t.Errorf("got %+v", got)
	}
}

func TestNameTableResolveInstance(t *testing.T) {
	table := NameTable{{Text: "Foo"}}
	if got := table.Resolve(FName{NameIndex: 0, NameInstance: 3}); got != "Foo_2" {
		t.Errorf("got %q, want Foo_2", got)
	}
	if got := table.Resolve(FName{NameIndex: 0}); got != "Foo" {
		t.Errorf("got %q, want Foo", got)
	}
}

func TestNameTableResolveOutOfRange(t *testing.T) {
	var table NameTable
	if got := table.Resolve(FName{NameIndex: 5}); got != "<invalid>" {
		t.Errorf("got %q, want <invalid>", got)
	}
	if got := table.Resolve(FName{NameIndex: -1}); got != "<invalid>" {
		t.Errorf("got %q, want <invalid> for None", got)
	}
}
