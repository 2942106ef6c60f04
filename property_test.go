// Copyright 2024 The UPK Toolkit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package upk

import "testing"

// propTestPackage builds a minimal package whose name table holds every
// FName the property tests below need to resolve, plus the terminating
// "None" sentinel.
func propTestPackage(extraNames ...string) *Package {
	names := NameTable{
		{Text: "None"},
		{Text: "Health"},
		{Text: "IntProperty"},
		{Text: "Label"},
		{Text: "StrProperty"},
		{Text: "Flag"},
		{Text: "BoolProperty"},
		{Text: "Scores"},
		{Text: "ArrayProperty"},
	}
	for _, n := range extraNames {
		names = append(names, NameEntry{Text: n})
	}
	return &Package{Names: names, Header: &Header{PackageVersion: 700}}
}

func nameIndexOf(p *Package, text string) int32 {
	for i, e := range p.Names {
		if e.Text == text {
			return int32(i)
		}
	}
	panic("name not found: " + text)
}

func TestReadPropertyListIntAndString(t *testing.T) {
	p := propTestPackage()
	w := newWriter()

	w.PutFName(FName{NameIndex: nameIndexOf(p, "Health")})
	w.PutFName(FName{NameIndex: nameIndexOf(p, "IntProperty")})
	w.PutI32(4) // size
	w.PutI32(0) // array index
	w.PutI32(42)

	w.PutFName(FName{NameIndex: nameIndexOf(p, "Label")})
	w.PutFName(FName{NameIndex: nameIndexOf(p, "StrProperty")})
	str := "hi"
	w.PutI32(int32(len(str) + 1))
	w.PutI32(0)
	w.PutString(str)

	w.PutFName(FName{NameIndex: 0}) // "None" terminator

	props, err := p.ReadPropertiesFromBytes(w.Bytes())
	if err != nil {
		t.Fatalf("ReadPropertiesFromBytes: %v", err)
	}
	if len(props) != 2 {
		t.Fatalf("got %d properties, want 2", len(props))
	}
	if props[0].Name != "Health" || props[0].Value.Int != 42 {
		t.Errorf("got %+v", props[0])
	}
	if props[1].Name != "Label" || props[1].Value.Str != "hi" {
		t.Errorf("got %+v", props[1])
	}
}

func TestReadPropertyBoolVersionGate(t *testing.T) {
	w := newWriter()
	w.PutFName(FName{NameIndex: 5})
	w.PutFName(FName{NameIndex: 6})
	w.PutI32(0)
	w.PutI32(0)
	w.PutU8(1)
	w.PutFName(FName{NameIndex: 0})

	pNew := propTestPackage()
	pNew.Header.PackageVersion = VerPropertyTagBoolOpt
	props, err := pNew.ReadPropertiesFromBytes(w.Bytes())
	if err != nil {
		t.Fatalf("ReadPropertiesFromBytes: %v", err)
	}
	if len(props) != 1 || !props[0].Value.Bool {
		t.Errorf("got %+v", props)
	}
}

func TestReadPropertyBoolLegacyU32(t *testing.T) {
	w := newWriter()
	w.PutFName(FName{NameIndex: 5})
	w.PutFName(FName{NameIndex: 6})
	w.PutI32(0)
	w.PutI32(0)
	w.PutU32(1)
	w.PutFName(FName{NameIndex: 0})

	pOld := propTestPackage()
	pOld.Header.PackageVersion = VerPropertyTagBoolOpt - 1
	props, err := pOld.ReadPropertiesFromBytes(w.Bytes())
	if err != nil {
		t.Fatalf("ReadPropertiesFromBytes: %v", err)
	}
	if len(props) != 1 || !props[0].Value.Bool {
		t.Errorf("got %+v", props)
	}
}

func TestReadPropertyArrayOfInt32(t *testing.T) {
	p := propTestPackage()
	w := newWriter()

	w.PutFName(FName{NameIndex: nameIndexOf(p, "Scores")})
	w.PutFName(FName{NameIndex: nameIndexOf(p, "ArrayProperty")})
	w.PutI32(4 + 3*4) // size: count word + 3 elements
	w.PutI32(0)
	w.PutI32(3) // count
	w.PutI32(100000)
	w.PutI32(-5)
	w.PutI32(999999999)
	w.PutFName(FName{NameIndex: 0})

	props, err := p.ReadPropertiesFromBytes(w.Bytes())
	if err != nil {
		t.Fatalf("ReadPropertiesFromBytes: %v", err)
	}
	if len(props) != 1 {
		t.Fatalf("got %d properties, want 1", len(props))
	}
	arr := props[0].Value.Array
	if len(arr) != 3 {
		t.Fatalf("got %d elements, want 3", len(arr))
	}
	for i, v := range arr {
		if v.Int == 0 && v.Object == 0 && v.Float == 0 {
			t.Errorf("element %d decoded as all-zero", i)
		}
	}
}

func TestClassify4ByteElemHeuristic(t *testing.T) {
	cases := []struct {
		name string
		v    int32
		want elem4Kind
	}{
		{"small positive looks like object ref", 42, elem4Object},
		{"negative looks like object ref", -1, elem4Object},
		{"large positive is a plain int", 2000000000, elem4Int},
	}
	for _, c := range cases {
		if got := classify4ByteElem(c.v); got != c.want {
			t.Errorf("%s: classify4ByteElem(%d) = %v, want %v", c.name, c.v, got, c.want)
		}
	}
}

func TestVariableSizeTypes(t *testing.T) {
	for _, typ := range []string{"ArrayProperty", "StrProperty", "DelegateProperty", "MapProperty"} {
		if !variableSize(typ) {
			t.Errorf("variableSize(%q) = false, want true", typ)
		}
	}
	for _, typ := range []string{"IntProperty", "StructProperty"} {
		if variableSize(typ) {
			t.Errorf("variableSize(%q) = true, want false", typ)
		}
	}
}

// TestReadPropertyStructOverrunIsBounded exercises a StructProperty whose
// struct name isn't one of the fixed-shape cases (Vector, Guid, ...), tagged
// with a declared size too small to hold even one nested property record.
// An unbounded nested read would swallow the properties that follow (and
// their eventual "None" terminator) as if they belonged to the struct;
// bounded to the tag's size, the struct falls back to a raw byte slot and
// the properties that follow it must still decode untouched.
func TestReadPropertyStructOverrunIsBounded(t *testing.T) {
	p := propTestPackage("Wobble", "StructProperty", "Health")
	w := newWriter()

	w.PutFName(FName{NameIndex: nameIndexOf(p, "Wobble")})
	w.PutFName(FName{NameIndex: nameIndexOf(p, "StructProperty")})
	w.PutI32(4) // size: too small to hold a full nested IntProperty tag
	w.PutI32(0)
	w.PutFName(FName{NameIndex: nameIndexOf(p, "Wobble")}) // struct name
	w.PutI32(12345)                                        // the struct's 4-byte raw body

	w.PutFName(FName{NameIndex: nameIndexOf(p, "Health")})
	w.PutFName(FName{NameIndex: nameIndexOf(p, "IntProperty")})
	w.PutI32(4)
	w.PutI32(0)
	w.PutI32(99)

	w.PutFName(FName{NameIndex: 0})

	props, err := p.ReadPropertiesFromBytes(w.Bytes())
	if err != nil {
		t.Fatalf("ReadPropertiesFromBytes: %v", err)
	}
	if len(props) != 2 {
		t.Fatalf("got %d properties, want 2", len(props))
	}
	if props[0].Name != "Wobble" || props[0].Type != "StructProperty" {
		t.Fatalf("props[0] = %+v", props[0])
	}
	if props[1].Name != "Health" || props[1].Value.Int != 99 {
		t.Errorf("trailing property corrupted by struct overrun: got %+v", props[1])
	}
}

func TestReadPropertyListEmptyIsNone(t *testing.T) {
	p := propTestPackage()
	w := newWriter()
	w.PutFName(FName{NameIndex: 0})

	props, err := p.ReadPropertiesFromBytes(w.Bytes())
	if err != nil {
		t.Fatalf("ReadPropertiesFromBytes: %v", err)
	}
	if len(props) != 0 {
		t.Errorf("got %d properties, want 0", len(props))
	}
}
