// Copyright 2024 The UPK Toolkit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package upk reads, decompresses, and selectively rewrites UE3-era game
// package files ("UPK"): a versioned, little-endian container holding a
// name table, import and export tables, and serialized object blobs.
//
// The package is organized leaves-first: primitives.go holds the
// fixed-width readers and writers every other file builds on;
// compression.go (with lzo.go and lzx.go) reconstructs the logical
// uncompressed package body; header.go, nametable.go, tables.go, and
// fullname.go parse the header and the three core tables and resolve
// hierarchical object names; property.go deserializes the tagged-property
// stream embedded in every export blob. Package (package.go) ties all of
// that into the single entry point callers use: New or NewBytes followed
// by Parse.
//
// Sibling packages build on top of this one: upk/disasm disassembles the
// bytecode stream found in function exports, upk/asm assembles mnemonic
// text back into that same bytecode form, and upk/patch applies an
// offline binary patch artifact to a package's function bytecode.
package upk
