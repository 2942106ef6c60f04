// Copyright 2024 The UPK Toolkit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package asm

import "encoding/binary"

// byteBuf is a minimal little-endian growable byte writer, local to this
// package for the same reason disasm keeps its own cursor: no import
// dependency on the root package's writer type.
type byteBuf struct {
	buf []byte
}

func newByteBuf() *byteBuf { return &byteBuf{} }

func (b *byteBuf) len() int     { return len(b.buf) }
func (b *byteBuf) bytes() []byte { return b.buf }

func (b *byteBuf) putU8(v byte) { b.buf = append(b.buf, v) }

func (b *byteBuf) putU16(v uint16) {
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], v)
	b.buf = append(b.buf, tmp[:]...)
}

func (b *byteBuf) putU32(v uint32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	b.buf = append(b.buf, tmp[:]...)
}

func (b *byteBuf) putI32(v int32) { b.putU32(uint32(v)) }

func (b *byteBuf) putString(s string) {
	b.buf = append(b.buf, []byte(s)...)
	b.buf = append(b.buf, 0)
}

func (b *byteBuf) putString16(s string) {
	for _, r := range s {
		if r <= 0xFFFF {
			b.putU16(uint16(r))
			continue
		}
		r -= 0x10000
		b.putU16(uint16(0xD800 + (r >> 10)))
		b.putU16(uint16(0xDC00 + (r & 0x3FF)))
	}
	b.putU16(0)
}
