// Copyright 2024 The UPK Toolkit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package patch

import (
	"bytes"
	"testing"
)

func TestStreamRoundTrip(t *testing.T) {
	a := &Artifact{
		PackageName: "MyPackage",
		Names:       []string{"Foo", "Bar"},
		NewObjects: []PatchData{
			{DataName: "Obj1", Data: []byte{1, 2, 3}},
		},
		ModifiedEnums: []EnumPatch{
			{EnumName: "EColor", EnumPathName: "Pkg.EColor", EnumValues: []string{"Red", "Green"}},
		},
		ScriptPatches: []ScriptPatch{
			{StructName: "Pkg.Foo.Bar", PatchData: PatchData{DataName: "Bar", Data: []byte{4, 5}}},
		},
	}

	stream := encodeStream(a)
	got, err := decodeStream(stream)
	if err != nil {
		t.Fatalf("decodeStream: %v", err)
	}

	if got.PackageName != a.PackageName {
		t.Errorf("PackageName = %q, want %q", got.PackageName, a.PackageName)
	}
	if len(got.Names) != 2 || got.Names[0] != "Foo" || got.Names[1] != "Bar" {
		t.Errorf("Names = %v", got.Names)
	}
	if len(got.ScriptPatches) != 1 || got.ScriptPatches[0].StructName != "Pkg.Foo.Bar" {
		t.Errorf("ScriptPatches = %+v", got.ScriptPatches)
	}
	if !bytes.Equal(got.ScriptPatches[0].PatchData.Data, []byte{4, 5}) {
		t.Errorf("script patch data = %v", got.ScriptPatches[0].PatchData.Data)
	}
	if len(got.ModifiedEnums) != 1 || got.ModifiedEnums[0].EnumValues[1] != "Green" {
		t.Errorf("ModifiedEnums = %+v", got.ModifiedEnums)
	}
}

func TestEncodeDecodeCompressedWrapper(t *testing.T) {
	a := &Artifact{PackageName: "P", Names: []string{"A"}}
	wrapped, err := Encode(a)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode(wrapped)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.PackageName != "P" {
		t.Errorf("PackageName = %q, want P", got.PackageName)
	}
}

func TestNonzeroExportsRejected(t *testing.T) {
	a := &Artifact{PackageName: "P", ExportCount: 1}
	stream := encodeStream(a)
	if _, err := decodeStream(stream); err != ErrUnsupportedArtifact {
		t.Errorf("err = %v, want ErrUnsupportedArtifact", err)
	}
}

func TestSpliceScriptArray(t *testing.T) {
	// blob: [prefix 2 bytes][len=3][AA BB CC][suffix 1 byte]
	blob := []byte{0x99, 0x98, 3, 0, 0, 0, 0xAA, 0xBB, 0xCC, 0x77}
	newBytes := []byte{0x11, 0x22}
	out, ok := spliceScriptArray(blob, 2, newBytes)
	if !ok {
		t.Fatal("splice failed")
	}
	want := []byte{0x99, 0x98, 2, 0, 0, 0, 0x11, 0x22, 0x77}
	if !bytes.Equal(out, want) {
		t.Errorf("got % X, want % X", out, want)
	}
}

func TestSpliceScriptArrayOutOfBounds(t *testing.T) {
	blob := []byte{1, 2, 3}
	if _, ok := spliceScriptArray(blob, 10, nil); ok {
		t.Error("expected failure for out-of-bounds offset")
	}
}
