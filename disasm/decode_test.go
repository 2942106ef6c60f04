// Copyright 2024 The UPK Toolkit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package disasm

import "testing"

type fakeResolver struct {
	refs  map[int32]string
	names map[[2]int32]string
}

func (f *fakeResolver) RefName(idx int32) string {
	if idx == 0 {
		return "None"
	}
	if s, ok := f.refs[idx]; ok {
		return s
	}
	return "<unresolved>"
}

func (f *fakeResolver) FName(nameIndex, nameInstance int32) string {
	if s, ok := f.names[[2]int32{nameIndex, nameInstance}]; ok {
		return s
	}
	return "<unnamed>"
}

func TestDecodeReturn(t *testing.T) {
	script := []byte{byte(OpReturn), byte(Nothing), byte(OpEndOfScript)}
	stmts, err := Decode(script, &fakeResolver{})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(stmts) != 1 {
		t.Fatalf("got %d statements, want 1", len(stmts))
	}
	if stmts[0].Text != "return" {
		t.Errorf("Text = %q, want %q", stmts[0].Text, "return")
	}
	if stmts[0].Offset != 0 {
		t.Errorf("Offset = %d, want 0", stmts[0].Offset)
	}
}

func TestDecodeIntConstAndJump(t *testing.T) {
	script := []byte{
		byte(OpIntConst), 0x2A, 0x00, 0x00, 0x00,
		byte(OpJump), 0x10, 0x00,
		byte(OpEndOfScript),
	}
	stmts, err := Decode(script, &fakeResolver{})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(stmts) != 2 {
		t.Fatalf("got %d statements, want 2", len(stmts))
	}
	if stmts[0].Text != "42" {
		t.Errorf("stmt0 = %q, want %q", stmts[0].Text, "42")
	}
	if stmts[1].Text != "goto 0x0010" {
		t.Errorf("stmt1 = %q, want %q", stmts[1].Text, "goto 0x0010")
	}
	if stmts[1].Offset != 5 {
		t.Errorf("stmt1 offset = %d, want 5", stmts[1].Offset)
	}
}

func TestDecodeUnknownOpcodeHalts(t *testing.T) {
	script := []byte{
		byte(Nothing),
		0x5D, // unassigned opcode byte
		byte(OpEndOfScript),
	}
	stmts, err := Decode(script, &fakeResolver{})
	if err == nil {
		t.Fatal("expected an unknown-opcode error")
	}
	if len(stmts) != 1 {
		t.Fatalf("got %d statements before halt, want 1", len(stmts))
	}
	want := "UNKNOWN_OPCODE 0x5D @ 0x0001"
	if err.Error() != want {
		t.Errorf("error = %q, want %q", err.Error(), want)
	}
}

func TestDecodeVirtualFunctionCall(t *testing.T) {
	r := &fakeResolver{names: map[[2]int32]string{{3, 0}: "DoSomething"}}
	script := []byte{
		byte(OpVirtualFunction), 0x03, 0, 0, 0, 0, 0, 0, 0, // FName(3,0)
		byte(OpIntOne),
		byte(OpEndFunctionParms),
		byte(OpEndOfScript),
	}
	stmts, err := Decode(script, r)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(stmts) != 1 {
		t.Fatalf("got %d statements, want 1", len(stmts))
	}
	if stmts[0].Text != "DoSomething(1)" {
		t.Errorf("Text = %q, want %q", stmts[0].Text, "DoSomething(1)")
	}
}
