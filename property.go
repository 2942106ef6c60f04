// Copyright 2024 The UPK Toolkit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package upk

import (
	"fmt"
	"math"

	"github.com/upk-toolkit/upk/log"
)

// PropertyValue is the tagged union of everything a property's value can
// hold. Exactly one field is meaningful, selected by the owning
// Property's Type; modeling it as a flat struct of optional fields (as
// opposed to an any) keeps every call site a type-safe field access
// instead of a type switch, matching spec.md §9's preference for a typed
// union over a dynamic bag.
type PropertyValue struct {
	Int      int32
	Float    float32
	Bool     bool
	Byte     uint8
	Name     FName
	Str      string
	Object   LinkerIndex
	Delegate DelegateValue
	Raw      []byte // MapProperty payload, opaque (spec.md §9 open question c)
	Array    []PropertyValue
	Struct   []Property // property-bag struct, or nested tagged properties
	Guid     [4]int32
	Vector   Vector3
	Vector2  Vector2
	Vector4  Vector4
	Rotator  Rotator
	Color    Color
	LinearColor LinearColor
	Box      Box
}

// DelegateValue is a DelegateProperty's (object, function) pair.
type DelegateValue struct {
	Object   LinkerIndex
	Function FName
}

// Vector2, Vector3, Vector4, Rotator, Color, LinearColor, and Box mirror
// the engine's math structs closely enough for the struct-property
// dispatch in spec.md §4.4 to produce them directly.
type Vector2 struct{ X, Y float32 }
type Vector3 struct{ X, Y, Z float32 }
type Vector4 struct{ X, Y, Z, W float32 }
type Rotator struct{ Pitch, Yaw, Roll int32 }
type Color struct{ B, G, R, A uint8 }
type LinearColor struct{ R, G, B, A float32 }
type Box struct {
	Min, Max Vector3
	IsValid  uint8
}

// Property is one tagged property record.
type Property struct {
	Name       string
	Type       string
	Size       int32
	ArrayIndex int32
	StructName string // only when Type == "StructProperty"
	EnumName   string // only when Type == "ByteProperty" with an enum
	Value      PropertyValue
}

// propertyReader carries the version-dependent behaviour and the
// warning sink the tagged-property codec needs, so property.go never
// touches Package fields directly beyond the name table it resolves
// FNames against.
type propertyReader struct {
	names   NameTable
	version int16
	logger  *log.Helper
}

// ReadPropertyList parses a tagged-property stream until the terminating
// "None" property, consistent with spec.md §4.4's definition of an export
// blob or nested struct payload.
func (p *Package) ReadPropertyList(c *cursor) ([]Property, error) {
	pr := &propertyReader{names: p.Names, version: p.Header.PackageVersion, logger: p.logger}
	return pr.readList(c)
}

// ReadPropertiesFromBytes parses a tagged-property stream starting at
// the beginning of blob, for callers (the CLI's elements verb) that
// hold a raw blob rather than a live cursor into a parsed package.
func (p *Package) ReadPropertiesFromBytes(blob []byte) ([]Property, error) {
	return p.ReadPropertyList(newCursor(blob))
}

// PropertyListLength parses a tagged-property stream starting at offset
// within blob and returns its total byte length, including the
// terminating "None" property. It satisfies disasm.PropertyWalker so
// disasm.ExtractScript can skip a function export's property prefix
// without the disasm package depending on this one.
func (p *Package) PropertyListLength(blob []byte, offset int) (int, error) {
	c := newCursorAt(blob, offset)
	if _, err := p.ReadPropertyList(c); err != nil {
		return 0, err
	}
	return c.Pos() - offset, nil
}

func (pr *propertyReader) readList(c *cursor) ([]Property, error) {
	var props []Property
	for {
		nameFName, err := c.FName()
		if err != nil {
			return props, err
		}
		name := pr.names.Resolve(nameFName)
		if name == "None" {
			return props, nil
		}

		prop, err := pr.readOne(c, name)
		if err != nil {
			return props, err
		}
		props = append(props, prop)
	}
}

func (pr *propertyReader) readOne(c *cursor, name string) (Property, error) {
	typeFName, err := c.FName()
	if err != nil {
		return Property{}, err
	}
	typ := pr.names.Resolve(typeFName)

	size, err := c.I32()
	if err != nil {
		return Property{}, err
	}
	arrayIndex, err := c.I32()
	if err != nil {
		return Property{}, err
	}

	prop := Property{Name: name, Type: typ, Size: size, ArrayIndex: arrayIndex}

	switch typ {
	case "StructProperty":
		structFName, err := c.FName()
		if err != nil {
			return Property{}, err
		}
		prop.StructName = pr.names.Resolve(structFName)

	case "BoolProperty":
		if pr.version >= VerPropertyTagBoolOpt {
			b, err := c.U8()
			if err != nil {
				return Property{}, err
			}
			prop.Value.Bool = b != 0
		} else {
			v, err := c.U32()
			if err != nil {
				return Property{}, err
			}
			prop.Value.Bool = v != 0
		}
		return prop, nil // value already read from the tag, no body follows

	case "ByteProperty":
		if pr.version >= VerBytePropSerializeEnum {
			enumFName, err := c.FName()
			if err != nil {
				return Property{}, err
			}
			enumName := pr.names.Resolve(enumFName)
			if enumName != "None" {
				prop.EnumName = enumName
			}
		}
	}

	start := c.Pos()
	value, err := pr.readValue(c, typ, prop.StructName, prop.EnumName != "", size)
	if err != nil {
		return Property{}, err
	}
	prop.Value = mergeBoolValue(prop.Value, value)

	if variableSize(typ) {
		return prop, nil
	}

	consumed := c.Pos() - start
	if consumed != int(size) {
		if pr.logger != nil {
			pr.logger.Warnf("property %q (%s): consumed %d bytes, tag declared %d; resyncing", name, typ, consumed, size)
		}
		c.SeekTo(start + int(size))
	}
	return prop, nil
}

func mergeBoolValue(tag, body PropertyValue) PropertyValue {
	body.Bool = tag.Bool
	return body
}

// variableSize reports whether a property type's on-wire size legitimately
// varies independent of the tag's Size field (array/string/delegate/map),
// exempting it from the post-condition byte-accounting check in spec.md
// §4.4. StructProperty is not listed: readStruct already bounds and
// resyncs its own nested read to the tag's size, so the outer check can
// run for it like any fixed-size type.
func variableSize(typ string) bool {
	switch typ {
	case "ArrayProperty", "StrProperty", "DelegateProperty", "MapProperty":
		return true
	default:
		return false
	}
}

func (pr *propertyReader) readValue(c *cursor, typ, structName string, hasEnum bool, size int32) (PropertyValue, error) {
	switch typ {
	case "IntProperty":
		v, err := c.I32()
		return PropertyValue{Int: v}, err

	case "FloatProperty":
		v, err := c.F32()
		return PropertyValue{Float: v}, err

	case "BoolProperty":
		return PropertyValue{}, nil // consumed from the tag already

	case "ByteProperty":
		if hasEnum {
			n, err := c.FName()
			return PropertyValue{Name: n}, err
		}
		b, err := c.U8()
		return PropertyValue{Byte: b}, err

	case "NameProperty":
		n, err := c.FName()
		return PropertyValue{Name: n}, err

	case "StrProperty":
		s, err := c.String()
		return PropertyValue{Str: s}, err

	case "ObjectProperty", "ComponentProperty", "InterfaceProperty", "ClassProperty":
		v, err := c.I32()
		return PropertyValue{Object: LinkerIndex(v)}, err

	case "DelegateProperty":
		obj, err := c.I32()
		if err != nil {
			return PropertyValue{}, err
		}
		fn, err := c.FName()
		if err != nil {
			return PropertyValue{}, err
		}
		return PropertyValue{Delegate: DelegateValue{Object: LinkerIndex(obj), Function: fn}}, nil

	case "MapProperty":
		raw, err := c.Bytes(int(size))
		return PropertyValue{Raw: raw}, err

	case "ArrayProperty":
		return pr.readArray(c, size)

	case "StructProperty":
		return pr.readStruct(c, structName, size)
	}

	return PropertyValue{}, fmt.Errorf("upk: unknown property type %q", typ)
}

func (pr *propertyReader) readArray(c *cursor, size int32) (PropertyValue, error) {
	count, err := c.I32()
	if err != nil {
		return PropertyValue{}, err
	}
	start := c.Pos()
	bodyLen := int(size) - 4
	if count == 0 || bodyLen <= 0 {
		c.SeekTo(start + maxInt(bodyLen, 0))
		return PropertyValue{Array: nil}, nil
	}

	if bodyLen%int(count) != 0 {
		if pr.logger != nil {
			pr.logger.Warnf("array property: body length %d not divisible by count %d; returning raw blob", bodyLen, count)
		}
		raw, err := c.Bytes(bodyLen)
		if err != nil {
			return PropertyValue{}, err
		}
		return PropertyValue{Raw: raw}, nil
	}
	elemSize := bodyLen / int(count)

	elems := make([]PropertyValue, 0, count)
	switch elemSize {
	case 1:
		raw, err := c.Bytes(bodyLen)
		if err != nil {
			return PropertyValue{}, err
		}
		for _, b := range raw {
			elems = append(elems, PropertyValue{Byte: b})
		}

	case 4:
		elems, err = pr.readArrayElems4(c, int(count))
		if err != nil {
			return PropertyValue{}, err
		}

	case 8:
		for i := 0; i < int(count); i++ {
			n, err := c.FName()
			if err != nil {
				return PropertyValue{}, err
			}
			elems = append(elems, PropertyValue{Name: n})
		}

	case 12:
		isFloat, err := peekFloatLooking(c)
		if err != nil {
			return PropertyValue{}, err
		}
		for i := 0; i < int(count); i++ {
			if isFloat {
				v, err := pr.readStructVector(c)
				if err != nil {
					return PropertyValue{}, err
				}
				elems = append(elems, PropertyValue{Vector: v})
			} else {
				v, err := pr.readStructRotator(c)
				if err != nil {
					return PropertyValue{}, err
				}
				elems = append(elems, PropertyValue{Rotator: v})
			}
		}

	case 16:
		isFloat, err := peekFloatLooking(c)
		if err != nil {
			return PropertyValue{}, err
		}
		for i := 0; i < int(count); i++ {
			if isFloat {
				v, err := pr.readStructVector4(c)
				if err != nil {
					return PropertyValue{}, err
				}
				elems = append(elems, PropertyValue{Vector4: v})
			} else {
				var vals [4]int32
				for j := range vals {
					vals[j], err = c.I32()
					if err != nil {
						return PropertyValue{}, err
					}
				}
				elems = append(elems, PropertyValue{Struct: intQuadAsStruct(vals)})
			}
		}

	default:
		elems, err = pr.readArrayStructBag(c, int(count), elemSize)
		if err != nil {
			return PropertyValue{}, err
		}
	}

	if c.Pos() != start+bodyLen {
		c.SeekTo(start + bodyLen)
	}
	return PropertyValue{Array: elems}, nil
}

func intQuadAsStruct(vals [4]int32) []Property {
	names := [4]string{"A", "B", "C", "D"}
	props := make([]Property, 4)
	for i, v := range vals {
		props[i] = Property{Name: names[i], Type: "IntProperty", Value: PropertyValue{Int: v}}
	}
	return props
}

// readArrayElems4 implements the size-4 element heuristic: an object
// reference if the probed value is negative or in [1, 65536), a float if
// it looks like a finite small float, else a plain i32.
func (pr *propertyReader) readArrayElems4(c *cursor, count int) ([]PropertyValue, error) {
	if count == 0 {
		return nil, nil
	}
	start := c.Pos()
	first, err := c.I32()
	if err != nil {
		return nil, err
	}
	c.SeekTo(start)

	kind := classify4ByteElem(first)

	elems := make([]PropertyValue, 0, count)
	for i := 0; i < count; i++ {
		switch kind {
		case elem4Object:
			v, err := c.I32()
			if err != nil {
				return nil, err
			}
			elems = append(elems, PropertyValue{Object: LinkerIndex(v)})
		case elem4Float:
			v, err := c.F32()
			if err != nil {
				return nil, err
			}
			elems = append(elems, PropertyValue{Float: v})
		default:
			v, err := c.I32()
			if err != nil {
				return nil, err
			}
			elems = append(elems, PropertyValue{Int: v})
		}
	}
	return elems, nil
}

type elem4Kind int

const (
	elem4Int elem4Kind = iota
	elem4Object
	elem4Float
)

func classify4ByteElem(first int32) elem4Kind {
	if first < 0 || (first >= 1 && first < 65536) {
		return elem4Object
	}
	f := math.Float32frombits(uint32(first))
	if !math.IsInf(float64(f), 0) && !math.IsNaN(float64(f)) && math.Abs(float64(f)) < 1e10 {
		return elem4Float
	}
	return elem4Int
}

// peekFloatLooking probes the first 4-byte word of the next element
// without advancing the cursor, reporting whether it looks like a finite
// float under 1e10 in magnitude — the Vector-vs-Rotator and
// Vector4/Quat-vs-four-i32 discriminator.
func peekFloatLooking(c *cursor) (bool, error) {
	start := c.Pos()
	v, err := c.I32()
	c.SeekTo(start)
	if err != nil {
		return false, err
	}
	f := math.Float32frombits(uint32(v))
	return !math.IsInf(float64(f), 0) && !math.IsNaN(float64(f)) && math.Abs(float64(f)) < 1e10, nil
}

// readArrayStructBag handles an array whose element size matches none of
// the fixed-shape cases: probe a structured property-bag walk within one
// element slot, and fall back to a raw byte slot if the walk doesn't
// cleanly consume it.
func (pr *propertyReader) readArrayStructBag(c *cursor, count, elemSize int) ([]PropertyValue, error) {
	elems := make([]PropertyValue, 0, count)
	for i := 0; i < count; i++ {
		start := c.Pos()
		// Bound the probe to at most elemSize bytes; readList already
		// stops at "None" or runs out of bytes, whichever first.
		end := start + elemSize
		if end > len(c.data) {
			end = len(c.data)
		}
		bounded := newCursorAt(c.data[:end], start)
		props, err := pr.readList(bounded)
		if err == nil && bounded.Pos()-start <= elemSize {
			elems = append(elems, PropertyValue{Struct: props})
			c.SeekTo(start + elemSize)
			continue
		}
		raw, err := c.Bytes(elemSize)
		if err != nil {
			return nil, err
		}
		elems = append(elems, PropertyValue{Raw: raw})
	}
	return elems, nil
}

func (pr *propertyReader) readStructVector(c *cursor) (Vector3, error) {
	var v Vector3
	var err error
	if v.X, err = c.F32(); err != nil {
		return v, err
	}
	if v.Y, err = c.F32(); err != nil {
		return v, err
	}
	v.Z, err = c.F32()
	return v, err
}

func (pr *propertyReader) readStructVector2(c *cursor) (Vector2, error) {
	var v Vector2
	var err error
	if v.X, err = c.F32(); err != nil {
		return v, err
	}
	v.Y, err = c.F32()
	return v, err
}

func (pr *propertyReader) readStructVector4(c *cursor) (Vector4, error) {
	var v Vector4
	var err error
	if v.X, err = c.F32(); err != nil {
		return v, err
	}
	if v.Y, err = c.F32(); err != nil {
		return v, err
	}
	if v.Z, err = c.F32(); err != nil {
		return v, err
	}
	v.W, err = c.F32()
	return v, err
}

func (pr *propertyReader) readStructRotator(c *cursor) (Rotator, error) {
	var v Rotator
	var err error
	if v.Pitch, err = c.I32(); err != nil {
		return v, err
	}
	if v.Yaw, err = c.I32(); err != nil {
		return v, err
	}
	v.Roll, err = c.I32()
	return v, err
}

func (pr *propertyReader) readStructColor(c *cursor) (Color, error) {
	var v Color
	var err error
	if v.B, err = c.U8(); err != nil {
		return v, err
	}
	if v.G, err = c.U8(); err != nil {
		return v, err
	}
	if v.R, err = c.U8(); err != nil {
		return v, err
	}
	v.A, err = c.U8()
	return v, err
}

func (pr *propertyReader) readStructLinearColor(c *cursor) (LinearColor, error) {
	var v LinearColor
	var err error
	if v.R, err = c.F32(); err != nil {
		return v, err
	}
	if v.G, err = c.F32(); err != nil {
		return v, err
	}
	if v.B, err = c.F32(); err != nil {
		return v, err
	}
	v.A, err = c.F32()
	return v, err
}

// readStruct dispatches on structName per spec.md §4.4.
func (pr *propertyReader) readStruct(c *cursor, structName string, size int32) (PropertyValue, error) {
	start := c.Pos()

	switch structName {
	case "Guid":
		var g [4]int32
		var err error
		for i := range g {
			if g[i], err = c.I32(); err != nil {
				return PropertyValue{}, err
			}
		}
		return PropertyValue{Guid: g}, nil

	case "Vector":
		v, err := pr.readStructVector(c)
		return PropertyValue{Vector: v}, err

	case "Vector2D":
		v, err := pr.readStructVector2(c)
		return PropertyValue{Vector2: v}, err

	case "Vector4", "Quat":
		v, err := pr.readStructVector4(c)
		return PropertyValue{Vector4: v}, err

	case "Rotator":
		v, err := pr.readStructRotator(c)
		return PropertyValue{Rotator: v}, err

	case "Color":
		v, err := pr.readStructColor(c)
		return PropertyValue{Color: v}, err

	case "LinearColor":
		v, err := pr.readStructLinearColor(c)
		return PropertyValue{LinearColor: v}, err

	case "Box":
		min, err := pr.readStructVector(c)
		if err != nil {
			return PropertyValue{}, err
		}
		max, err := pr.readStructVector(c)
		if err != nil {
			return PropertyValue{}, err
		}
		valid, err := c.U8()
		if err != nil {
			return PropertyValue{}, err
		}
		return PropertyValue{Box: Box{Min: min, Max: max, IsValid: valid}}, nil

	default:
		// Bound the nested property walk to at most size bytes, the same
		// pattern readArrayStructBag uses: an unrecognized struct's body
		// must never be allowed to read past its declared tag size, per
		// spec.md §4.4 ("until None or until size bytes consumed,
		// whichever first").
		end := start + int(size)
		if size < 0 || end > len(c.data) {
			end = len(c.data)
		}
		bounded := newCursorAt(c.data[:end], start)
		props, err := pr.readList(bounded)
		if err == nil {
			c.SeekTo(bounded.Pos())
			if c.Pos()-start < int(size) {
				c.SeekTo(start + int(size))
			}
			return PropertyValue{Struct: props}, nil
		}

		raw, err := c.Bytes(int(size))
		if err != nil {
			return PropertyValue{}, err
		}
		return PropertyValue{Raw: raw}, nil
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
