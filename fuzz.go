//go:build gofuzz

// Copyright 2024 The UPK Toolkit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package upk

// Fuzz implements the go-fuzz entry point convention: return 1 to tell
// the fuzzer this input is interesting to keep in the corpus, 0
// otherwise. It exercises the same NewBytes-then-Parse path every
// caller uses, so a crash here is a crash any consumer can hit.
func Fuzz(data []byte) int {
	p, err := NewBytes(data, nil)
	if err != nil {
		return 0
	}
	if err := p.Parse(); err != nil {
		return 0
	}
	for i := range p.Exports {
		_, _ = p.ExportBlob(i)
		_ = p.FullName(LinkerIndex(i + 1))
	}
	return 1
}
