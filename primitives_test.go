// Copyright 2024 The UPK Toolkit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package upk

import "testing"

func TestStringRoundTripASCII(t *testing.T) {
	w := newWriter()
	w.PutString("Health")

	got, err := newCursor(w.Bytes()).String()
	if err != nil {
		t.Fatalf("String: %v", err)
	}
	if got != "Health" {
		t.Errorf("got %q, want %q", got, "Health")
	}
}

func TestStringRoundTripEmpty(t *testing.T) {
	w := newWriter()
	w.PutString("")

	got, err := newCursor(w.Bytes()).String()
	if err != nil {
		t.Fatalf("String: %v", err)
	}
	if got != "" {
		t.Errorf("got %q, want empty string", got)
	}
	if len(w.Bytes()) != 4 {
		t.Errorf("empty string should encode as a bare zero length, got %d bytes", len(w.Bytes()))
	}
}

func TestStringRoundTripLatin1(t *testing.T) {
	want := "café" // trailing rune is Latin-1 but not ASCII
	w := newWriter()
	w.PutString(want)

	n, err := newCursor(w.Bytes()).I32()
	if err != nil {
		t.Fatalf("I32: %v", err)
	}
	if n <= 0 {
		t.Fatalf("length prefix = %d, want positive (ISO-8859-1 form)", n)
	}

	got, err := newCursor(w.Bytes()).String()
	if err != nil {
		t.Fatalf("String: %v", err)
	}
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestStringRoundTripUTF16(t *testing.T) {
	want := "日本語" // Japanese, well outside ISO-8859-1
	w := newWriter()
	w.PutString(want)

	n, err := newCursor(w.Bytes()).I32()
	if err != nil {
		t.Fatalf("I32: %v", err)
	}
	if n >= 0 {
		t.Fatalf("length prefix = %d, want negative (UTF-16LE form)", n)
	}

	got, err := newCursor(w.Bytes()).String()
	if err != nil {
		t.Fatalf("String: %v", err)
	}
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestEncodeLatin1(t *testing.T) {
	if _, ok := encodeLatin1("plain"); !ok {
		t.Error("ASCII string should be Latin-1 encodable")
	}
	if _, ok := encodeLatin1("é"); !ok {
		t.Error("Latin-1 supplement rune should be Latin-1 encodable")
	}
	if _, ok := encodeLatin1("中"); ok {
		t.Error("CJK rune should not be Latin-1 encodable")
	}
}
