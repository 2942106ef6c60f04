// Copyright 2024 The UPK Toolkit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package asm

import (
	"testing"

	"github.com/upk-toolkit/upk/disasm"
)

type fakeResolver struct {
	byName map[string]int32
}

func (f *fakeResolver) ResolveObject(name string) (int32, bool) {
	if name == "None" || name == "none" {
		return 0, true
	}
	v, ok := f.byName[name]
	return v, ok
}

type echoResolver struct{ byIndex map[int32]string }

func (e *echoResolver) RefName(idx int32) string {
	if idx == 0 {
		return "None"
	}
	if s, ok := e.byIndex[idx]; ok {
		return s
	}
	return "<unresolved>"
}

func (e *echoResolver) FName(nameIndex, nameInstance int32) string { return "<name>" }

func TestAssembleReturn(t *testing.T) {
	src := "Return\nNothing\n"
	out, err := Assemble(src, &fakeResolver{})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	want := []byte{byte(disasm.OpReturn), byte(disasm.Nothing), byte(disasm.OpEndOfScript)}
	if string(out) != string(want) {
		t.Errorf("got % X, want % X", out, want)
	}
}

func TestAssembleIntLiteralCompression(t *testing.T) {
	cases := []struct {
		lit  string
		want []byte
	}{
		{"0", []byte{byte(disasm.OpIntZero)}},
		{"1", []byte{byte(disasm.OpIntOne)}},
		{"200", []byte{byte(disasm.OpIntConstByte), 200}},
		{"1000", []byte{byte(disasm.OpIntConst), 0xE8, 0x03, 0, 0}},
	}
	for _, c := range cases {
		out, err := Assemble("IntConst "+c.lit+"\n", &fakeResolver{})
		if err != nil {
			t.Fatalf("IntConst %s: %v", c.lit, err)
		}
		got := out[:len(out)-1] // trim EndOfScript
		if string(got) != string(c.want) {
			t.Errorf("IntConst %s: got % X, want % X", c.lit, got, c.want)
		}
	}
}

func TestAssembleJumpLabel(t *testing.T) {
	src := "Jump @target\nNothing\n@target\nIntOne\n"
	out, err := Assemble(src, &fakeResolver{})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	// Jump opcode (1) + u16 target (2) + Nothing opcode (1) = target at offset 4.
	if out[1] != 4 || out[2] != 0 {
		t.Errorf("jump target = %d, want 4", int(out[1])|int(out[2])<<8)
	}
}

func TestAssembleDisassembleRoundTrip(t *testing.T) {
	objs := map[string]int32{"Foo": 3}
	src := "LocalVariable Foo\nReturn\nNothing\n"
	bytecode, err := Assemble(src, &fakeResolver{byName: objs})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	names := map[int32]string{3: "Foo"}
	stmts, err := disasm.Decode(bytecode, &echoResolver{byIndex: names})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(stmts) != 2 {
		t.Fatalf("got %d statements, want 2", len(stmts))
	}
	if stmts[0].Text != "LocalVariable(Foo)" {
		t.Errorf("stmt0 = %q", stmts[0].Text)
	}
	if stmts[1].Text != "return" {
		t.Errorf("stmt1 = %q", stmts[1].Text)
	}
}
