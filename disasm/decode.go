// Copyright 2024 The UPK Toolkit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package disasm

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

// Resolver supplies the cross-references a rendered statement needs:
// the full name of an object a linker index refers to, and the text of
// an FName pair. A upk.Package satisfies this interface directly.
type Resolver interface {
	RefName(linkerIndex int32) string
	FName(nameIndex, nameInstance int32) string
}

// Statement is one decoded top-level expression: its byte offset within
// the Script stream and its rendered text.
type Statement struct {
	Offset int
	Text   string
}

// unknownOpcodeError halts decoding; Decode reports the statements
// collected so far alongside it.
type unknownOpcodeError struct {
	op     byte
	offset int
}

func (e *unknownOpcodeError) Error() string {
	return fmt.Sprintf("UNKNOWN_OPCODE 0x%02X @ 0x%04X", e.op, e.offset)
}

// Decode walks script from the start, decoding one top-level expression
// per statement until an EndOfScript opcode, the buffer is exhausted, or
// an unrecognized opcode is hit. On an unknown opcode it returns the
// statements decoded so far together with the error describing the
// offending byte and offset, per the halt-on-unknown-opcode behavior.
func Decode(script []byte, r Resolver) ([]Statement, error) {
	c := &cursor{data: script}
	var out []Statement
	for c.pos < len(c.data) {
		start := c.pos
		op, err := c.u8()
		if err != nil {
			break
		}
		if Opcode(op) == OpEndOfScript {
			break
		}
		c.pos = start
		text, err := decodeStatement(c, r)
		if err != nil {
			if uo, ok := err.(*unknownOpcodeError); ok {
				return out, uo
			}
			return out, err
		}
		out = append(out, Statement{Offset: start, Text: text})
	}
	return out, nil
}

// decodeStatement decodes one top-level expression starting at the
// opcode byte, consuming DebugInfo markers transparently (rendered as
// empty, per spec) by looping past them.
func decodeStatement(c *cursor, r Resolver) (string, error) {
	for {
		op, err := c.peekU8()
		if err != nil {
			return "", err
		}
		if Opcode(op) == OpDebugInfo {
			if _, err := decodeExpr(c, r); err != nil {
				return "", err
			}
			continue
		}
		return decodeExpr(c, r)
	}
}

func decodeExpr(c *cursor, r Resolver) (string, error) {
	start := c.pos
	opByte, err := c.u8()
	if err != nil {
		return "", err
	}
	op := Opcode(opByte)

	switch op {
	case OpStop:
		return "stop", nil

	case OpTrue:
		return "true", nil

	case OpFalse:
		return "false", nil

	case OpNoObject, OpEmptyDelegate:
		return "None", nil

	case OpIteratorPop, OpIteratorNext, OpEndParmValue, OpEmptyParmValue:
		return Mnemonic(op), nil

	case OpGotoLabel:
		inner, err := decodeExpr(c, r)
		if err != nil {
			return "", err
		}
		return "goto " + inner, nil

	case OpInterfaceContext:
		return decodeExpr(c, r)

	case OpEatReturnValue:
		if _, err := c.i32(); err != nil {
			return "", err
		}
		return "", nil

	case OpLocalVariable, OpInstanceVariable, OpDefaultVariable, OpStateVariable,
		OpBoolVariable, OpNativeParm, OpLocalOutVariable, OpSelf:
		if op == OpSelf {
			return "self", nil
		}
		ref, err := c.i32()
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s(%s)", Mnemonic(op), r.RefName(ref)), nil

	case OpInstanceDelegate, OpDelegateProperty:
		ni, nn, err := c.fname()
		if err != nil {
			return "", err
		}
		ref, err := c.i32()
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s(%s, %s)", Mnemonic(op), r.FName(ni, nn), r.RefName(ref)), nil

	case OpReturn:
		inner, err := decodeExpr(c, r)
		if err != nil {
			return "", err
		}
		if inner == "" {
			return "return", nil
		}
		return "return " + inner, nil

	case OpReturnNothing:
		return "return", nil

	case Nothing:
		return "", nil

	case OpJump:
		target, err := c.u16()
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("goto 0x%04X", target), nil

	case OpJumpIfFilterEditorOnly:
		target, err := c.u16()
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("gotoIfFilterEditorOnly 0x%04X", target), nil

	case OpJumpIfNot:
		target, err := c.u16()
		if err != nil {
			return "", err
		}
		cond, err := decodeExpr(c, r)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("ifnot (%s) goto 0x%04X", cond, target), nil

	case OpSwitch:
		expr, err := decodeExpr(c, r)
		if err != nil {
			return "", err
		}
		size, err := c.u8()
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("switch(%s) // elemSize=%d", expr, size), nil

	case OpCase:
		target, err := c.u16()
		if err != nil {
			return "", err
		}
		if target == 0xFFFF {
			return "case default", nil
		}
		val, err := decodeExpr(c, r)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("case %s: goto 0x%04X", val, target), nil

	case OpAssert:
		line, err := c.u16()
		if err != nil {
			return "", err
		}
		debugFlag, err := c.u8()
		if err != nil {
			return "", err
		}
		expr, err := decodeExpr(c, r)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("assert(%s) // line=%d debug=%d", expr, line, debugFlag), nil

	case OpLet, OpLetBool, OpLetDelegate:
		lhs, err := decodeExpr(c, r)
		if err != nil {
			return "", err
		}
		rhs, err := decodeExpr(c, r)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s = %s", lhs, rhs), nil

	case OpIntConst:
		v, err := c.i32()
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%d", v), nil

	case OpFloatConst:
		v, err := c.f32()
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%g", v), nil

	case OpStringConst:
		s, err := c.cstring()
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%q", s), nil

	case OpUnicodeStringConst:
		s, err := c.cstring16()
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%q", s), nil

	case OpObjectConst:
		obj, err := c.i32()
		if err != nil {
			return "", err
		}
		class, err := c.i32()
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Object(%s, class=%s)", r.RefName(obj), r.RefName(class)), nil

	case OpNameConst:
		ni, nn, err := c.fname()
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("'%s'", r.FName(ni, nn)), nil

	case OpByteConst, OpIntConstByte:
		v, err := c.u8()
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%d", v), nil

	case OpIntZero:
		return "0", nil

	case OpIntOne:
		return "1", nil

	case OpRotationConst:
		p, err := c.i32()
		if err != nil {
			return "", err
		}
		y, err := c.i32()
		if err != nil {
			return "", err
		}
		rr, err := c.i32()
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Rot(%d,%d,%d)", p, y, rr), nil

	case OpVectorConst:
		x, err := c.f32()
		if err != nil {
			return "", err
		}
		y, err := c.f32()
		if err != nil {
			return "", err
		}
		z, err := c.f32()
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Vect(%g,%g,%g)", x, y, z), nil

	case OpVirtualFunction, OpGlobalFunction: // share the FName+params wire shape
		ni, nn, err := c.fname()
		if err != nil {
			return "", err
		}
		args, err := decodeParams(c, r)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s(%s)", r.FName(ni, nn), strings.Join(args, ", ")), nil

	case OpFinalFunction:
		ref, err := c.i32()
		if err != nil {
			return "", err
		}
		args, err := decodeParams(c, r)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s(%s)", r.RefName(ref), strings.Join(args, ", ")), nil

	case OpDelegateFunction:
		marker, err := c.u8()
		if err != nil {
			return "", err
		}
		ref, err := c.i32()
		if err != nil {
			return "", err
		}
		ni, nn, err := c.fname()
		if err != nil {
			return "", err
		}
		args, err := decodeParams(c, r)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("delegate<%d>(%s).%s(%s)", marker, r.RefName(ref), r.FName(ni, nn), strings.Join(args, ", ")), nil

	case OpContext, OpClassContext:
		outer, err := decodeExpr(c, r)
		if err != nil {
			return "", err
		}
		skip, err := c.u16()
		if err != nil {
			return "", err
		}
		varSize, err := c.u16()
		if err != nil {
			return "", err
		}
		varType, err := c.u8()
		if err != nil {
			return "", err
		}
		inner, err := decodeExpr(c, r)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s.%s // skip=0x%04X varSize=%d varType=%d", outer, inner, skip, varSize, varType), nil

	case OpStructMember:
		field, err := c.i32()
		if err != nil {
			return "", err
		}
		owner, err := c.i32()
		if err != nil {
			return "", err
		}
		flagA, err := c.u8()
		if err != nil {
			return "", err
		}
		flagB, err := c.u8()
		if err != nil {
			return "", err
		}
		inner, err := decodeExpr(c, r)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s.%s // owner=%s flags=%d,%d", inner, r.RefName(field), r.RefName(owner), flagA, flagB), nil

	case OpArrayElement, OpDynArrayElement:
		index, err := decodeExpr(c, r)
		if err != nil {
			return "", err
		}
		array, err := decodeExpr(c, r)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s[%s]", array, index), nil

	case OpDynArrayLength:
		array, err := decodeExpr(c, r)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s.Length", array), nil

	case OpDynArrayAdd:
		array, err := decodeExpr(c, r)
		if err != nil {
			return "", err
		}
		count, err := decodeExpr(c, r)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s.Add(%s)", array, count), nil

	case OpDynArrayAddItem:
		array, err := decodeExpr(c, r)
		if err != nil {
			return "", err
		}
		item, err := decodeExpr(c, r)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s.AddItem(%s)", array, item), nil

	case OpDynArrayInsert:
		array, err := decodeExpr(c, r)
		if err != nil {
			return "", err
		}
		index, err := decodeExpr(c, r)
		if err != nil {
			return "", err
		}
		count, err := decodeExpr(c, r)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s.Insert(%s, %s)", array, index, count), nil

	case OpDynArrayInsertItem:
		array, err := decodeExpr(c, r)
		if err != nil {
			return "", err
		}
		index, err := decodeExpr(c, r)
		if err != nil {
			return "", err
		}
		item, err := decodeExpr(c, r)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s.InsertItem(%s, %s)", array, index, item), nil

	case OpDynArrayRemove:
		array, err := decodeExpr(c, r)
		if err != nil {
			return "", err
		}
		index, err := decodeExpr(c, r)
		if err != nil {
			return "", err
		}
		count, err := decodeExpr(c, r)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s.Remove(%s, %s)", array, index, count), nil

	case OpDynArrayRemoveItem:
		array, err := decodeExpr(c, r)
		if err != nil {
			return "", err
		}
		item, err := decodeExpr(c, r)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s.RemoveItem(%s)", array, item), nil

	case OpDynArrayFind:
		array, err := decodeExpr(c, r)
		if err != nil {
			return "", err
		}
		item, err := decodeExpr(c, r)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s.Find(%s)", array, item), nil

	case OpDynArrayFindStruct:
		array, err := decodeExpr(c, r)
		if err != nil {
			return "", err
		}
		ni, nn, err := c.fname()
		if err != nil {
			return "", err
		}
		item, err := decodeExpr(c, r)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s.FindStruct(%s, %s)", array, r.FName(ni, nn), item), nil

	case OpDynArraySort:
		array, err := decodeExpr(c, r)
		if err != nil {
			return "", err
		}
		cmp, err := decodeExpr(c, r)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s.Sort(%s)", array, cmp), nil

	case OpIterator:
		expr, err := decodeExpr(c, r)
		if err != nil {
			return "", err
		}
		skip, err := c.u16()
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("foreach %s // skip=0x%04X", expr, skip), nil

	case OpDynArrayIterator:
		array, err := decodeExpr(c, r)
		if err != nil {
			return "", err
		}
		item, err := decodeExpr(c, r)
		if err != nil {
			return "", err
		}
		skip, err := c.u16()
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("foreach %s(%s) // skip=0x%04X", array, item, skip), nil

	case OpDynamicCast, OpMetaCast, OpInterfaceCast:
		class, err := c.i32()
		if err != nil {
			return "", err
		}
		expr, err := decodeExpr(c, r)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s(%s)", r.RefName(class), expr), nil

	case OpPrimitiveCast:
		kind, err := c.u8()
		if err != nil {
			return "", err
		}
		expr, err := decodeExpr(c, r)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s(%s)", CastKindName(CastKind(kind)), expr), nil

	case OpNew:
		labels := []string{"outer", "name", "flags", "class", "archetype"}
		parts := make([]string, len(labels))
		for i, label := range labels {
			v, err := decodeExpr(c, r)
			if err != nil {
				return "", err
			}
			parts[i] = label + "=" + v
		}
		return fmt.Sprintf("new(%s)", strings.Join(parts, ", ")), nil

	case OpStructCmpEq, OpStructCmpNe:
		structRef, err := c.i32()
		if err != nil {
			return "", err
		}
		lhs, err := decodeExpr(c, r)
		if err != nil {
			return "", err
		}
		rhs, err := decodeExpr(c, r)
		if err != nil {
			return "", err
		}
		sym := "=="
		if op == OpStructCmpNe {
			sym = "!="
		}
		return fmt.Sprintf("(%s %s %s) // struct=%s", lhs, sym, rhs, r.RefName(structRef)), nil

	case OpEqualEqualDelDel, OpEqualEqualDelFunc, OpNotEqualDelDel, OpNotEqualDelFunc:
		lhs, err := decodeExpr(c, r)
		if err != nil {
			return "", err
		}
		rhs, err := decodeExpr(c, r)
		if err != nil {
			return "", err
		}
		sym := "=="
		if op == OpNotEqualDelDel || op == OpNotEqualDelFunc {
			sym = "!="
		}
		return fmt.Sprintf("%s %s %s", lhs, sym, rhs), nil

	case OpConditional:
		cond, err := decodeExpr(c, r)
		if err != nil {
			return "", err
		}
		if _, err := c.u16(); err != nil {
			return "", err
		}
		thenExpr, err := decodeExpr(c, r)
		if err != nil {
			return "", err
		}
		if _, err := c.u16(); err != nil {
			return "", err
		}
		elseExpr, err := decodeExpr(c, r)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(%s ? %s : %s)", cond, thenExpr, elseExpr), nil

	case OpSkip:
		if _, err := c.u16(); err != nil {
			return "", err
		}
		return decodeExpr(c, r)

	case OpDefaultParmValue:
		if _, err := c.u16(); err != nil {
			return "", err
		}
		return decodeExpr(c, r)

	case OpDebugInfo:
		if _, err := c.i32(); err != nil {
			return "", err
		}
		if _, err := c.i32(); err != nil {
			return "", err
		}
		if _, err := c.i32(); err != nil {
			return "", err
		}
		if _, err := c.u8(); err != nil {
			return "", err
		}
		return "", nil

	case OpLabelTable:
		var entries []string
		for {
			ni, nn, err := c.fname()
			if err != nil {
				return "", err
			}
			name := r.FName(ni, nn)
			if name == "None" {
				break
			}
			offset, err := c.u16()
			if err != nil {
				return "", err
			}
			entries = append(entries, fmt.Sprintf("%s@0x%04X", name, offset))
		}
		return "labels[" + strings.Join(entries, ", ") + "]", nil
	}

	if IsExtendedNative(opByte) {
		idx, err := c.u8()
		if err != nil {
			return "", err
		}
		nativeIndex := (int(opByte&0x0F) << 8) | int(idx)
		args, err := decodeParams(c, r)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Native_%d(%s)", nativeIndex, strings.Join(args, ", ")), nil
	}
	if IsDirectNative(opByte) {
		args, err := decodeParams(c, r)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Native_%d(%s)", int(opByte), strings.Join(args, ", ")), nil
	}

	return "", &unknownOpcodeError{op: opByte, offset: start}
}

// decodeParams decodes nested expressions until EndFunctionParms.
func decodeParams(c *cursor, r Resolver) ([]string, error) {
	var args []string
	for {
		opByte, err := c.peekU8()
		if err != nil {
			return nil, err
		}
		if Opcode(opByte) == OpEndFunctionParms {
			c.pos++
			return args, nil
		}
		arg, err := decodeExpr(c, r)
		if err != nil {
			return nil, err
		}
		if arg != "" {
			args = append(args, arg)
		}
	}
}

// cursor is a minimal little-endian byte reader local to the
// disassembler; it intentionally does not share upk's cursor type to
// keep this package import-free of the root package.
type cursor struct {
	data []byte
	pos  int
}

func (c *cursor) need(n int) error {
	if c.pos+n > len(c.data) {
		return fmt.Errorf("disasm: truncated stream at offset %d, need %d bytes", c.pos, n)
	}
	return nil
}

func (c *cursor) u8() (byte, error) {
	if err := c.need(1); err != nil {
		return 0, err
	}
	b := c.data[c.pos]
	c.pos++
	return b, nil
}

func (c *cursor) peekU8() (byte, error) {
	if err := c.need(1); err != nil {
		return 0, err
	}
	return c.data[c.pos], nil
}

func (c *cursor) u16() (uint16, error) {
	if err := c.need(2); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(c.data[c.pos:])
	c.pos += 2
	return v, nil
}

func (c *cursor) i32() (int32, error) {
	if err := c.need(4); err != nil {
		return 0, err
	}
	v := int32(binary.LittleEndian.Uint32(c.data[c.pos:]))
	c.pos += 4
	return v, nil
}

func (c *cursor) f32() (float32, error) {
	if err := c.need(4); err != nil {
		return 0, err
	}
	v := math.Float32frombits(binary.LittleEndian.Uint32(c.data[c.pos:]))
	c.pos += 4
	return v, nil
}

func (c *cursor) fname() (int32, int32, error) {
	ni, err := c.i32()
	if err != nil {
		return 0, 0, err
	}
	nn, err := c.i32()
	if err != nil {
		return 0, 0, err
	}
	return ni, nn, nil
}

func (c *cursor) cstring() (string, error) {
	start := c.pos
	for {
		if c.pos >= len(c.data) {
			return "", fmt.Errorf("disasm: unterminated string at offset %d", start)
		}
		if c.data[c.pos] == 0 {
			s := string(c.data[start:c.pos])
			c.pos++
			return s, nil
		}
		c.pos++
	}
}

func (c *cursor) cstring16() (string, error) {
	start := c.pos
	var units []uint16
	for {
		if err := c.need(2); err != nil {
			return "", fmt.Errorf("disasm: unterminated utf16 string at offset %d", start)
		}
		u := binary.LittleEndian.Uint16(c.data[c.pos:])
		c.pos += 2
		if u == 0 {
			break
		}
		units = append(units, u)
	}
	return string(utf16Decode(units)), nil
}

func utf16Decode(units []uint16) []rune {
	out := make([]rune, 0, len(units))
	for i := 0; i < len(units); i++ {
		u := units[i]
		if u >= 0xD800 && u <= 0xDBFF && i+1 < len(units) {
			u2 := units[i+1]
			if u2 >= 0xDC00 && u2 <= 0xDFFF {
				r := (rune(u-0xD800)<<10 | rune(u2-0xDC00)) + 0x10000
				out = append(out, r)
				i++
				continue
			}
		}
		out = append(out, rune(u))
	}
	return out
}
