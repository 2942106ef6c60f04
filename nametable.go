// Copyright 2024 The UPK Toolkit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package upk

import "fmt"

// FName is a qualified name reference: an ordered pair pointing into a
// package's name table, plus an instance counter for auto-uniquified
// names ("Foo_3" and the like).
type FName struct {
	NameIndex    int32 `json:"name_index"`
	NameInstance int32 `json:"name_instance"`
}

// IsNone reports whether the reference is the "no name" sentinel producers
// may emit: a negative name_index.
func (n FName) IsNone() bool { return n.NameIndex < 0 }

// NameEntry is one name-table slot: the bare text plus its object flags.
type NameEntry struct {
	Text  string `json:"text"`
	Flags uint64 `json:"flags"`
}

// NameTable is the parsed name table of a package, indexed by name_index.
type NameTable []NameEntry

// Resolve renders an FName against this table, appending the
// "_<instance-1>" suffix when NameInstance > 0. An out-of-range or None
// reference renders as "<invalid>" rather than panicking.
func (t NameTable) Resolve(n FName) string {
	if n.IsNone() || int(n.NameIndex) < 0 || int(n.NameIndex) >= len(t) {
		return "<invalid>"
	}
	s := t[n.NameIndex].Text
	if n.NameInstance > 0 {
		s = fmt.Sprintf("%s_%d", s, n.NameInstance-1)
	}
	return s
}

// readNameTable parses count entries at the current cursor position.
func readNameTable(c *cursor, count int) (NameTable, error) {
	if count < 0 {
		return nil, fmt.Errorf("%w: negative name count", ErrInvalidHeader)
	}
	table := make(NameTable, 0, count)
	for i := 0; i < count; i++ {
		text, err := c.String()
		if err != nil {
			return nil, fmt.Errorf("name[%d]: %w", i, err)
		}
		flags, err := c.U64()
		if err != nil {
			return nil, fmt.Errorf("name[%d] flags: %w", i, err)
		}
		table = append(table, NameEntry{Text: text, Flags: flags})
	}
	return table, nil
}

// writeNameTable serializes a name table in the same shape readNameTable
// parses, used by tests asserting the primitive round trip.
func writeNameTable(w *writer, table NameTable) {
	for _, e := range table {
		w.PutString(e.Text)
		w.PutU64(e.Flags)
	}
}
