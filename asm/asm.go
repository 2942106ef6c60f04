// Copyright 2024 The UPK Toolkit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package asm assembles the line-oriented UnrealScript bytecode source
// format back into a Script byte stream, the inverse of
// github.com/upk-toolkit/upk/disasm.
package asm

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/upk-toolkit/upk/disasm"
)

// ObjectResolver resolves a bare object name to a signed linker index,
// the same sign convention as the rest of the toolkit: 0 none, positive
// export, negative import.
type ObjectResolver interface {
	ResolveObject(name string) (int32, bool)
}

// argKind identifies how one whitespace-separated token after a mnemonic
// is parsed and encoded.
type argKind int

const (
	argRef    argKind = iota // bare name -> resolved linker index (i32)
	argI32                   // decimal or 0x-hex integer, 4 bytes
	argU16                   // decimal or 0x-hex integer, 2 bytes
	argU8                    // decimal or 0x-hex integer, 1 byte
	argF32                   // floating point literal, 4 bytes
	argString                // quoted string, NUL-terminated ASCII
	argString16              // quoted string, NUL-terminated UTF-16LE
	argFName                 // 'Name' or 'Name[instance]' literal
	argLabel                 // label reference, resolved to a u16 offset
	argIntLit                // integer literal, opportunistically compressed opcode+payload
)

// opcodeSpec describes how to encode one mnemonic's argument list. The
// IntConst family and Native_<n> calls need bespoke handling and are not
// listed here; see encodeLine.
var opcodeSpec = map[string][]argKind{
	"LocalVariable":           {argRef},
	"InstanceVariable":        {argRef},
	"DefaultVariable":         {argRef},
	"StateVariable":           {argRef},
	"BoolVariable":            {argRef},
	"NativeParm":              {argRef},
	"LocalOutVariable":        {argRef},
	"InstanceDelegate":        {argFName, argRef},
	"DelegateProperty":        {argFName, argRef},
	"Return":                  nil,
	"ReturnNothing":           nil,
	"Nothing":                 nil,
	"Stop":                    nil,
	"GotoLabel":               nil,
	"EatReturnValue":          {argRef},
	"True":                    nil,
	"False":                   nil,
	"NoObject":                nil,
	"EmptyDelegate":           nil,
	"IteratorPop":             nil,
	"IteratorNext":            nil,
	"EndParmValue":            nil,
	"EmptyParmValue":          nil,
	"InterfaceContext":        nil,
	"Self":                    nil,
	"Jump":                    {argLabel},
	"JumpIfFilterEditorOnly":  {argLabel},
	"JumpIfNot":               {argLabel},
	"Switch":                  {argU8},
	"Case":                    {argLabel},
	"Assert":                  {argU16, argU8},
	"Let":                     nil,
	"LetBool":                 nil,
	"LetDelegate":             nil,
	"FloatConst":              {argF32},
	"StringConst":             {argString},
	"UnicodeStringConst":      {argString16},
	"ObjectConst":             {argRef, argRef},
	"NameConst":               {argFName},
	"ByteConst":               {argU8},
	"RotationConst":           {argI32, argI32, argI32},
	"VectorConst":             {argF32, argF32, argF32},
	"VirtualFunction":         {argFName},
	"GlobalFunction":          {argFName},
	"FinalFunction":           {argRef},
	"DelegateFunction":        {argU8, argRef, argFName},
	"Context":                 {argLabel, argU16, argU8},
	"ClassContext":            {argLabel, argU16, argU8},
	"StructMember":            {argRef, argRef, argU8, argU8},
	"ArrayElement":            nil,
	"DynArrayElement":         nil,
	"Length":                  nil,
	"Add":                     nil,
	"AddItem":                 nil,
	"Insert":                  nil,
	"InsertItem":              nil,
	"Remove":                  nil,
	"RemoveItem":              nil,
	"Find":                    nil,
	"FindStruct":              {argFName},
	"Sort":                    nil,
	"Iterator":                {argLabel},
	"DynArrayIterator":        {argLabel},
	"DynamicCast":             {argRef},
	"MetaCast":                {argRef},
	"InterfaceCast":           {argRef},
	"PrimitiveCast":           {argU8},
	"New":                     nil,
	"StructCmpEq":             {argRef},
	"StructCmpNe":             {argRef},
	"EqualEqual_DelDel":       nil,
	"NotEqual_DelDel":         nil,
	"EqualEqual_DelFunc":      nil,
	"NotEqual_DelFunc":        nil,
	"Conditional":             {argLabel, argLabel},
	"Skip":                    {argU16},
	"DefaultParmValue":        {argU16},
	"EndFunctionParms":        nil,
}

// mnemonicOpcode resolves a mnemonic to its fixed opcode byte through
// disasm.MnemonicToOpcode. Integer-literal compression and native calls
// are handled by encodeLine, not here.
func mnemonicOpcode(mnemonic string) (disasm.Opcode, bool) {
	op, ok := disasm.MnemonicToOpcode[mnemonic]
	return op, ok
}

// labelPatch records a u16 slot in the output buffer that still needs
// the byte offset of a forward-referenced label.
type labelPatch struct {
	pos    int // offset of the u16 slot to fill
	label  string
	lineNo int
}

// assembler holds the per-invocation state Assemble threads through
// encodeLine: the literal-name placeholder table is scoped to one
// assembly unit so repeated calls never see each other's indices.
type assembler struct {
	resolver     ObjectResolver
	literalNames map[string]int32
	patches      []labelPatch
}

// Assemble parses source and encodes it to a Script byte stream.
func Assemble(source string, resolver ObjectResolver) ([]byte, error) {
	lines, err := splitLines(source)
	if err != nil {
		return nil, err
	}

	labelOffsets := map[string]int{}
	a := &assembler{resolver: resolver, literalNames: map[string]int32{}}
	buf := newByteBuf()

	for _, ln := range lines {
		if ln.isLabel {
			labelOffsets[ln.label] = buf.len()
			continue
		}
		if err := a.encodeLine(buf, ln); err != nil {
			return nil, fmt.Errorf("line %d: %w", ln.lineNo, err)
		}
	}

	// EndOfScript terminates the stream if the source did not supply one
	// explicitly.
	if buf.len() == 0 || buf.bytes()[buf.len()-1] != byte(disasm.OpEndOfScript) {
		buf.putU8(byte(disasm.OpEndOfScript))
	}

	out := buf.bytes()
	for _, p := range a.patches {
		off, ok := labelOffsets[p.label]
		if !ok {
			return nil, fmt.Errorf("line %d: undefined label %q", p.lineNo, p.label)
		}
		binary.LittleEndian.PutUint16(out[p.pos:], uint16(off))
	}
	return out, nil
}

type sourceLine struct {
	lineNo  int
	isLabel bool
	label   string
	mnem    string
	args    []string
}

func splitLines(source string) ([]sourceLine, error) {
	var out []sourceLine
	sc := bufio.NewScanner(strings.NewReader(source))
	lineNo := 0
	for sc.Scan() {
		lineNo++
		raw := sc.Text()
		if idx := strings.Index(raw, ";"); idx >= 0 {
			raw = raw[:idx]
		}
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" {
			continue
		}
		if strings.HasPrefix(trimmed, "@") {
			out = append(out, sourceLine{lineNo: lineNo, isLabel: true, label: trimmed[1:]})
			continue
		}
		fields := tokenize(trimmed)
		if len(fields) == 0 {
			continue
		}
		out = append(out, sourceLine{lineNo: lineNo, mnem: fields[0], args: fields[1:]})
	}
	return out, sc.Err()
}

// tokenize splits a line into whitespace-separated tokens, keeping a
// double-quoted string (with escaped quotes) as one token including its
// quotes.
func tokenize(s string) []string {
	var out []string
	i := 0
	for i < len(s) {
		for i < len(s) && s[i] == ' ' {
			i++
		}
		if i >= len(s) {
			break
		}
		if s[i] == '"' {
			j := i + 1
			for j < len(s) && s[j] != '"' {
				if s[j] == '\\' && j+1 < len(s) {
					j++
				}
				j++
			}
			if j < len(s) {
				j++
			}
			out = append(out, s[i:j])
			i = j
			continue
		}
		j := i
		for j < len(s) && s[j] != ' ' {
			j++
		}
		out = append(out, s[i:j])
		i = j
	}
	return out
}

func (a *assembler) encodeLine(buf *byteBuf, ln sourceLine) error {
	switch ln.mnem {
	case "IntZero", "IntOne":
		op, _ := mnemonicOpcode(ln.mnem)
		buf.putU8(byte(op))
		return nil
	case "IntConst":
		return encodeIntLiteral(buf, ln)
	}

	if spec, ok := opcodeSpec[ln.mnem]; ok {
		op, ok := mnemonicOpcode(ln.mnem)
		if !ok {
			return fmt.Errorf("no opcode for mnemonic %q", ln.mnem)
		}
		buf.putU8(byte(op))
		return a.encodeArgs(buf, ln, spec)
	}

	if strings.HasPrefix(ln.mnem, "Native_") {
		idx, err := strconv.Atoi(strings.TrimPrefix(ln.mnem, "Native_"))
		if err != nil {
			return fmt.Errorf("bad native mnemonic %q: %w", ln.mnem, err)
		}
		if idx >= 0x70 {
			buf.putU8(byte(idx))
		} else {
			buf.putU8(byte(0x60 | (idx >> 8)))
			buf.putU8(byte(idx & 0xFF))
		}
		return nil
	}

	return fmt.Errorf("unknown mnemonic %q", ln.mnem)
}

// encodeArgs encodes each argSpec entry against the matching source
// token, queuing a back-patch for label references.
func (a *assembler) encodeArgs(buf *byteBuf, ln sourceLine, spec []argKind) error {
	if len(ln.args) != len(spec) {
		return fmt.Errorf("%s: expected %d args, got %d", ln.mnem, len(spec), len(ln.args))
	}
	for i, kind := range spec {
		tok := ln.args[i]
		switch kind {
		case argRef:
			idx, ok := a.resolver.ResolveObject(tok)
			if !ok {
				return fmt.Errorf("%s: unresolved object %q", ln.mnem, tok)
			}
			buf.putI32(idx)
		case argI32:
			v, err := parseInt(tok)
			if err != nil {
				return err
			}
			buf.putI32(int32(v))
		case argU16:
			v, err := parseInt(tok)
			if err != nil {
				return err
			}
			buf.putU16(uint16(v))
		case argU8:
			v, err := parseInt(tok)
			if err != nil {
				return err
			}
			buf.putU8(byte(v))
		case argF32:
			f, err := strconv.ParseFloat(tok, 32)
			if err != nil {
				return fmt.Errorf("%s: bad float %q: %w", ln.mnem, tok, err)
			}
			buf.putU32(math.Float32bits(float32(f)))
		case argString:
			s, err := unquote(tok)
			if err != nil {
				return err
			}
			buf.putString(s)
		case argString16:
			s, err := unquote(tok)
			if err != nil {
				return err
			}
			buf.putString16(s)
		case argFName:
			ni, nn, err := a.parseFName(tok)
			if err != nil {
				return err
			}
			buf.putI32(ni)
			buf.putI32(nn)
		case argLabel:
			label := strings.TrimPrefix(tok, "@")
			a.patches = append(a.patches, labelPatch{pos: buf.len(), label: label, lineNo: ln.lineNo})
			buf.putU16(0)
		}
	}
	return nil
}

// encodeIntLiteral implements spec.md's opportunistic integer-literal
// compression: 0 -> IntZero, 1 -> IntOne, 2..255 -> IntConstByte, else
// IntConst.
func encodeIntLiteral(buf *byteBuf, ln sourceLine) error {
	if len(ln.args) != 1 {
		return fmt.Errorf("IntConst: expected 1 arg, got %d", len(ln.args))
	}
	v, err := parseInt(ln.args[0])
	if err != nil {
		return err
	}
	switch {
	case v == 0:
		buf.putU8(byte(disasm.OpIntZero))
	case v == 1:
		buf.putU8(byte(disasm.OpIntOne))
	case v >= 2 && v <= 255:
		buf.putU8(byte(disasm.OpIntConstByte))
		buf.putU8(byte(v))
	default:
		buf.putU8(byte(disasm.OpIntConst))
		buf.putI32(int32(v))
	}
	return nil
}

func parseInt(tok string) (int64, error) {
	if strings.HasPrefix(tok, "0x") || strings.HasPrefix(tok, "0X") {
		return strconv.ParseInt(tok[2:], 16, 64)
	}
	return strconv.ParseInt(tok, 10, 64)
}

func unquote(tok string) (string, error) {
	s, err := strconv.Unquote(tok)
	if err != nil {
		return "", fmt.Errorf("bad quoted string %q: %w", tok, err)
	}
	return s, nil
}

// parseFName parses a 'Name' or 'Name[instance]' literal into the
// (name_index, name_instance) pair the wire format uses. The assembler
// does not have a live name table to resolve text to a name_index
// against, so it encodes the index as a negative placeholder drawn from
// a-per-assembly literal table; the caller-side linker is expected to
// merge that table into the package's name table before this bytecode
// is serialized into a real export blob. name_instance is the bracketed
// suffix, defaulting to 0.
func (a *assembler) parseFName(tok string) (int32, int32, error) {
	body := strings.Trim(tok, "'")
	instance := int32(0)
	if i := strings.IndexByte(body, '['); i >= 0 && strings.HasSuffix(body, "]") {
		n, err := strconv.Atoi(body[i+1 : len(body)-1])
		if err != nil {
			return 0, 0, fmt.Errorf("bad FName instance in %q: %w", tok, err)
		}
		instance = int32(n)
		body = body[:i]
	}
	return a.literalNameIndex(body), instance, nil
}

// literalNameIndex assigns each new literal name the next negative
// placeholder index (-1, -2, ...) so repeated uses of the same literal in
// one assembly unit collapse to the same placeholder index.
func (a *assembler) literalNameIndex(name string) int32 {
	if idx, ok := a.literalNames[name]; ok {
		return idx
	}
	idx := int32(-(len(a.literalNames) + 1))
	a.literalNames[name] = idx
	return idx
}
