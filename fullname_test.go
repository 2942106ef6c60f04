// Copyright 2024 The UPK Toolkit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package upk

import "testing"

// buildFullNamePackage constructs a small hierarchy:
//
//	import[0] "Package" (the Package class object, class "Class")
//	import[1] "Actor"   (the Actor class object, class "Class")
//	export[0] "MyPackage", class Package (import -1), no outer -- package root
//	export[1] "MyActor",   class Actor (import -2), outer export 1
//	export[2] "MySub",     class Actor (import -2), outer export 2 -- a subobject
//
// so FullName exercises both the plain dotted chain (export 2 under the
// package root) and the ':' subobject-boundary separator (export 3 under
// export 2, which is itself not class Package).
func buildFullNamePackage() *Package {
	return &Package{
		Names: NameTable{
			{Text: "Package"}, // 0
			{Text: "Class"},   // 1
			{Text: "MyPackage"}, // 2
			{Text: "Engine"},  // 3
			{Text: "Actor"},   // 4
			{Text: "MyActor"}, // 5
			{Text: "Bar"},     // 6
			{Text: "MySub"},   // 7
		},
		Imports: []ImportEntry{
			{ClassName: FName{NameIndex: 1}, ObjectName: FName{NameIndex: 0}}, // import 1: "Package"
			{ClassName: FName{NameIndex: 1}, ObjectName: FName{NameIndex: 4}}, // import 2: "Actor"
		},
		Exports: []ExportEntry{
			{ClassIndex: LinkerIndex(-1), OuterIndex: 0, ObjectName: FName{NameIndex: 2}}, // export 1: MyPackage
			{ClassIndex: LinkerIndex(-2), OuterIndex: 1, ObjectName: FName{NameIndex: 5}}, // export 2: MyActor, outer=export1
			{ClassIndex: LinkerIndex(-2), OuterIndex: 2, ObjectName: FName{NameIndex: 7}}, // export 3: MySub, outer=export2
		},
	}
}

func TestFullNameNoneIndex(t *testing.T) {
	p := &Package{}
	if got := p.FullName(LinkerIndex(0)); got != "None" {
		t.Errorf("got %q, want None", got)
	}
}

func TestFullNameInvalidIndex(t *testing.T) {
	p := &Package{}
	if got := p.FullName(LinkerIndex(5)); got != "<invalid>" {
		t.Errorf("got %q, want <invalid>", got)
	}
}

func TestFullNameDottedChain(t *testing.T) {
	p := buildFullNamePackage()
	got := p.FullName(LinkerIndex(2)) // export 2: MyActor under the package root
	want := "Actor MyPackage.MyActor"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestFullNameSubobjectColonSeparator(t *testing.T) {
	p := buildFullNamePackage()
	got := p.FullName(LinkerIndex(3)) // export 3: MySub, nested under MyActor (not the package root)
	want := "Actor MyPackage.MyActor:MySub"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestFullNameImportHasNoClassPrefix(t *testing.T) {
	p := buildFullNamePackage()
	got := p.FullName(LinkerIndex(-2)) // import 2: "Actor", no outer
	if got != "Actor" {
		t.Errorf("got %q, want Actor", got)
	}
}

func TestClassNameOfNoneIsClass(t *testing.T) {
	p := buildFullNamePackage()
	if got := p.classNameOf(LinkerIndex(0)); got != "Class" {
		t.Errorf("got %q, want Class", got)
	}
}

func TestMaxResolutionStepsBoundsWalk(t *testing.T) {
	p := buildFullNamePackage()
	if got := p.maxResolutionSteps(); got != len(p.Exports)+len(p.Imports)+1 {
		t.Errorf("got %d", got)
	}
}
