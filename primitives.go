// Copyright 2024 The UPK Toolkit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package upk

import (
	"encoding/binary"
	"fmt"
	"math"

	"golang.org/x/text/encoding/unicode"
)

// cursor is a bounds-checked little-endian reader over a byte slice. Every
// table, header, and property reader in this package advances one through
// a shared buffer rather than re-slicing and re-indexing by hand, mirroring
// the teacher's offset-plus-size boundary checks on every primitive read.
type cursor struct {
	data []byte
	pos  int
}

func newCursor(data []byte) *cursor {
	return &cursor{data: data}
}

func newCursorAt(data []byte, pos int) *cursor {
	return &cursor{data: data, pos: pos}
}

// Pos returns the current read offset.
func (c *cursor) Pos() int { return c.pos }

// SeekTo repositions the cursor to an absolute offset.
func (c *cursor) SeekTo(pos int) { c.pos = pos }

// Remaining returns the number of unread bytes.
func (c *cursor) Remaining() int { return len(c.data) - c.pos }

func (c *cursor) need(n int) error {
	if n < 0 || c.pos < 0 || c.pos+n > len(c.data) {
		return fmt.Errorf("upk: read %d bytes at %d: %w", n, c.pos, ErrOutsideBoundary)
	}
	return nil
}

// U8 reads one byte.
func (c *cursor) U8() (uint8, error) {
	if err := c.need(1); err != nil {
		return 0, err
	}
	v := c.data[c.pos]
	c.pos++
	return v, nil
}

// U16 reads a little-endian uint16.
func (c *cursor) U16() (uint16, error) {
	if err := c.need(2); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(c.data[c.pos:])
	c.pos += 2
	return v, nil
}

// I16 reads a little-endian int16.
func (c *cursor) I16() (int16, error) {
	v, err := c.U16()
	return int16(v), err
}

// U32 reads a little-endian uint32.
func (c *cursor) U32() (uint32, error) {
	if err := c.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(c.data[c.pos:])
	c.pos += 4
	return v, nil
}

// I32 reads a little-endian int32.
func (c *cursor) I32() (int32, error) {
	v, err := c.U32()
	return int32(v), err
}

// U64 reads a little-endian uint64.
func (c *cursor) U64() (uint64, error) {
	if err := c.need(8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(c.data[c.pos:])
	c.pos += 8
	return v, nil
}

// F32 reads a little-endian IEEE-754 float32.
func (c *cursor) F32() (float32, error) {
	v, err := c.U32()
	return math.Float32frombits(v), err
}

// Bytes reads n raw bytes.
func (c *cursor) Bytes(n int) ([]byte, error) {
	if err := c.need(n); err != nil {
		return nil, err
	}
	b := c.data[c.pos : c.pos+n]
	c.pos += n
	return b, nil
}

// String reads a length-prefixed string: a positive length means N bytes
// of ISO-8859-1 including a trailing NUL, a negative length means |N|
// UTF-16LE code units including a trailing NUL, and zero means the empty
// string with no payload.
func (c *cursor) String() (string, error) {
	n, err := c.I32()
	if err != nil {
		return "", err
	}
	if n == 0 {
		return "", nil
	}
	if n > 0 {
		raw, err := c.Bytes(int(n))
		if err != nil {
			return "", err
		}
		text := stripTrailingNUL(raw)
		runes := make([]rune, len(text))
		for i := 0; i < len(text); i++ {
			runes[i] = rune(text[i]) // ISO-8859-1 byte == Unicode code point
		}
		return string(runes), nil
	}

	count := int(-n)
	raw, err := c.Bytes(count * 2)
	if err != nil {
		return "", err
	}
	decoder := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder()
	s, err := decoder.Bytes(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidUTF16, err)
	}
	return stripTrailingNULRunes(string(s)), nil
}

func stripTrailingNUL(b []byte) string {
	if len(b) > 0 && b[len(b)-1] == 0 {
		b = b[:len(b)-1]
	}
	return string(b)
}

func stripTrailingNULRunes(s string) string {
	for len(s) > 0 && s[len(s)-1] == 0 {
		s = s[:len(s)-1]
	}
	return s
}

// FName reads a qualified name reference: an (name_index, name_instance)
// pair of i32s.
func (c *cursor) FName() (FName, error) {
	idx, err := c.I32()
	if err != nil {
		return FName{}, err
	}
	inst, err := c.I32()
	if err != nil {
		return FName{}, err
	}
	return FName{NameIndex: idx, NameInstance: inst}, nil
}

// --- writer side ---

// writer accumulates a little-endian byte stream. It mirrors cursor's
// reads one-for-one so header round-tripping is a straight read-then-write
// over the same field list.
type writer struct {
	buf []byte
}

func newWriter() *writer { return &writer{} }

func (w *writer) Bytes() []byte { return w.buf }

func (w *writer) PutU8(v uint8) { w.buf = append(w.buf, v) }

func (w *writer) PutU16(v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *writer) PutI16(v int16) { w.PutU16(uint16(v)) }

func (w *writer) PutU32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *writer) PutI32(v int32) { w.PutU32(uint32(v)) }

func (w *writer) PutU64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *writer) PutF32(v float32) { w.PutU32(math.Float32bits(v)) }

func (w *writer) PutRaw(b []byte) { w.buf = append(w.buf, b...) }

// PutString writes s using the same length-prefixed convention cursor.String
// decodes: when every rune fits in a single ISO-8859-1 byte, a positive
// length N+1 followed by N Latin-1 bytes and a trailing NUL; otherwise a
// negative length of UTF-16LE code units (count including the trailing
// NUL unit). The empty string is written as a bare zero length.
func (w *writer) PutString(s string) {
	if s == "" {
		w.PutI32(0)
		return
	}
	if latin1, ok := encodeLatin1(s); ok {
		w.PutI32(int32(len(latin1) + 1))
		w.buf = append(w.buf, latin1...)
		w.buf = append(w.buf, 0)
		return
	}

	units, _ := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder().Bytes([]byte(s))
	count := len(units)/2 + 1
	w.PutI32(-int32(count))
	w.buf = append(w.buf, units...)
	w.buf = append(w.buf, 0, 0)
}

// encodeLatin1 reports whether every rune in s fits in a single
// ISO-8859-1 byte, returning the byte-for-byte encoding when it does.
func encodeLatin1(s string) ([]byte, bool) {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		if r > 0xFF {
			return nil, false
		}
		out = append(out, byte(r))
	}
	return out, true
}

// PutFName writes an FName as its two i32 fields.
func (w *writer) PutFName(n FName) {
	w.PutI32(n.NameIndex)
	w.PutI32(n.NameInstance)
}
