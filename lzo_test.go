// Copyright 2024 The UPK Toolkit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package upk

import "testing"

func TestLzoDecompressLiteralOnly(t *testing.T) {
	// first byte 19 => copy 19-17=2 literal bytes, nothing follows.
	compressed := []byte{19, 'a', 'b'}
	out, err := lzoCodec{}.decompress(compressed, 2)
	if err != nil {
		t.Fatalf("decompress: %v", err)
	}
	if string(out) != "ab" {
		t.Errorf("got %q, want %q", out, "ab")
	}
}

func TestLzoDecompressBackrefRun(t *testing.T) {
	// "ab" literal, then a long match at distance 1 repeating the last
	// byte 3 times: "ab" + "bbb" = "abbbb".
	compressed := []byte{19, 'a', 'b', 0x21, 0x00, 0x00}
	out, err := lzoCodec{}.decompress(compressed, 5)
	if err != nil {
		t.Fatalf("decompress: %v", err)
	}
	if string(out) != "abbbb" {
		t.Errorf("got %q, want %q", out, "abbbb")
	}
}

func TestLzoDecompressEmptyInput(t *testing.T) {
	if _, err := (lzoCodec{}).decompress(nil, 0); err == nil {
		t.Error("expected error on empty input")
	}
}

func TestLzoDecompressPadsShortOutput(t *testing.T) {
	compressed := []byte{19, 'a', 'b'}
	out, err := lzoCodec{}.decompress(compressed, 5)
	if err != nil {
		t.Fatalf("decompress: %v", err)
	}
	if len(out) != 5 || string(out[:2]) != "ab" {
		t.Errorf("got % X, want 5-byte padded result", out)
	}
}
