// Copyright 2024 The UPK Toolkit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package patch implements the offline binary-patch artifact format and
// the applier that splices a patch's replacement script bytecode into a
// parsed package.
package patch

// PatchData is a named binary blob: either a newly serialized object or
// a modified class-default-object.
type PatchData struct {
	DataName string
	Data     []byte
}

// ScriptPatch replaces one function's compiled bytecode.
type ScriptPatch struct {
	StructName string
	PatchData  PatchData
}

// EnumPatch rewrites the value list of one enum.
type EnumPatch struct {
	EnumName     string
	EnumPathName string
	EnumValues   []string
}

// Artifact is a fully decoded patch: everything the codec in codec.go
// reads from, or writes to, the compressed wrapper.
type Artifact struct {
	PackageName string
	Names       []string

	// ExportCount and ImportCount record the nonzero-rejection check:
	// a well-formed artifact produced by this toolkit never populates
	// these, since the original format's per-element shape for a
	// nonzero exports/imports table is not specified here.
	ExportCount int
	ImportCount int

	NewObjects    []PatchData
	ModifiedCDOs  []PatchData
	ModifiedEnums []EnumPatch
	ScriptPatches []ScriptPatch
}
