// Copyright 2024 The UPK Toolkit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package upk

import "fmt"

// LinkerIndex is a signed reference into either the export table
// (positive) or the import table (negative); zero means no reference.
// This sign convention is invariant across every table, export blob, and
// bytecode stream in the format.
type LinkerIndex int32

// IsNone reports whether the index refers to nothing.
func (i LinkerIndex) IsNone() bool { return i == 0 }

// IsExport reports whether the index refers to the export table.
func (i LinkerIndex) IsExport() bool { return i > 0 }

// IsImport reports whether the index refers to the import table.
func (i LinkerIndex) IsImport() bool { return i < 0 }

// ExportTableIndex returns the zero-based export table slot this index
// names. Only meaningful when IsExport is true.
func (i LinkerIndex) ExportTableIndex() int { return int(i) - 1 }

// ImportTableIndex returns the zero-based import table slot this index
// names. Only meaningful when IsImport is true.
func (i LinkerIndex) ImportTableIndex() int { return int(-i) - 1 }

// ImportEntry is one import table record: a reference to an object
// defined in another package.
type ImportEntry struct {
	ClassPackage FName `json:"class_package"`
	ClassName    FName `json:"class_name"`
	OuterIndex   LinkerIndex `json:"outer_index"`
	ObjectName   FName `json:"object_name"`
}

// ExportEntry is one export table record: a serialized object owned by
// this package.
type ExportEntry struct {
	ClassIndex  LinkerIndex `json:"class_index"`
	SuperIndex  LinkerIndex `json:"super_index"`
	OuterIndex  LinkerIndex `json:"outer_index"`
	ObjectName  FName       `json:"object_name"`
	Archetype   LinkerIndex `json:"archetype"`
	ObjectFlags uint64      `json:"object_flags"`

	// SerialSizeOffset/SerialOffsetOffset record where, in the raw file,
	// the SerialSize and SerialOffset fields for this entry live, so the
	// patch applier can rewrite them in place without re-walking the
	// whole export table.
	SerialSizeOffset   int   `json:"-"`
	SerialOffsetOffset int   `json:"-"`
	SerialSize         int32 `json:"serial_size"`
	SerialOffset       int32 `json:"serial_offset"`

	// LegacyComponentMap is present only when the owning package's
	// version is below VerLegacyComponentMap.
	HasLegacyComponentMap bool                `json:"-"`
	LegacyComponentMap    []LegacyComponentMapEntry `json:"legacy_component_map,omitempty"`

	ExportFlags               uint32  `json:"export_flags"`
	GenerationNetObjectCounts []int32 `json:"generation_net_object_count"`
	PackageGUID               [4]int32 `json:"package_guid"`
	PackageFlags              uint32  `json:"package_flags"`
}

// LegacyComponentMapEntry is one (name, index) pair of the legacy
// component map carried by exports in packages older than
// VerLegacyComponentMap.
type LegacyComponentMapEntry struct {
	Name  FName `json:"name"`
	Index int32 `json:"index"`
}

func readImportTable(c *cursor, count int) ([]ImportEntry, error) {
	if count < 0 {
		return nil, fmt.Errorf("%w: negative import count", ErrInvalidHeader)
	}
	table := make([]ImportEntry, count)
	for i := range table {
		e := &table[i]
		var err error
		if e.ClassPackage, err = c.FName(); err != nil {
			return nil, fmt.Errorf("import[%d]: %w", i, err)
		}
		if e.ClassName, err = c.FName(); err != nil {
			return nil, fmt.Errorf("import[%d]: %w", i, err)
		}
		outer, err := c.I32()
		if err != nil {
			return nil, fmt.Errorf("import[%d]: %w", i, err)
		}
		e.OuterIndex = LinkerIndex(outer)
		if e.ObjectName, err = c.FName(); err != nil {
			return nil, fmt.Errorf("import[%d]: %w", i, err)
		}
	}
	return table, nil
}

// readExportTable parses count export entries, including the legacy
// component map iff legacyComponentMap is true (package version below the
// cutoff).
func readExportTable(c *cursor, count int, legacyComponentMap bool) ([]ExportEntry, error) {
	if count < 0 {
		return nil, fmt.Errorf("%w: negative export count", ErrInvalidHeader)
	}
	table := make([]ExportEntry, count)
	for i := range table {
		e := &table[i]
		var err error

		class, err := c.I32()
		if err != nil {
			return nil, fmt.Errorf("export[%d]: %w", i, err)
		}
		e.ClassIndex = LinkerIndex(class)

		super, err := c.I32()
		if err != nil {
			return nil, fmt.Errorf("export[%d]: %w", i, err)
		}
		e.SuperIndex = LinkerIndex(super)

		outer, err := c.I32()
		if err != nil {
			return nil, fmt.Errorf("export[%d]: %w", i, err)
		}
		e.OuterIndex = LinkerIndex(outer)

		if e.ObjectName, err = c.FName(); err != nil {
			return nil, fmt.Errorf("export[%d]: %w", i, err)
		}

		archetype, err := c.I32()
		if err != nil {
			return nil, fmt.Errorf("export[%d]: %w", i, err)
		}
		e.Archetype = LinkerIndex(archetype)

		if e.ObjectFlags, err = c.U64(); err != nil {
			return nil, fmt.Errorf("export[%d]: %w", i, err)
		}

		e.SerialSizeOffset = c.Pos()
		if e.SerialSize, err = c.I32(); err != nil {
			return nil, fmt.Errorf("export[%d]: %w", i, err)
		}
		e.SerialOffsetOffset = c.Pos()
		if e.SerialOffset, err = c.I32(); err != nil {
			return nil, fmt.Errorf("export[%d]: %w", i, err)
		}

		if legacyComponentMap {
			e.HasLegacyComponentMap = true
			n, err := c.I32()
			if err != nil {
				return nil, fmt.Errorf("export[%d] component map: %w", i, err)
			}
			if n < 0 {
				return nil, fmt.Errorf("%w: negative component map count", ErrInvalidHeader)
			}
			e.LegacyComponentMap = make([]LegacyComponentMapEntry, n)
			for j := range e.LegacyComponentMap {
				if e.LegacyComponentMap[j].Name, err = c.FName(); err != nil {
					return nil, fmt.Errorf("export[%d] component map[%d]: %w", i, j, err)
				}
				if e.LegacyComponentMap[j].Index, err = c.I32(); err != nil {
					return nil, fmt.Errorf("export[%d] component map[%d]: %w", i, j, err)
				}
			}
		}

		if e.ExportFlags, err = c.U32(); err != nil {
			return nil, fmt.Errorf("export[%d]: %w", i, err)
		}

		netCount, err := c.I32()
		if err != nil {
			return nil, fmt.Errorf("export[%d]: %w", i, err)
		}
		if netCount < 0 {
			return nil, fmt.Errorf("%w: negative generation net object count", ErrInvalidHeader)
		}
		e.GenerationNetObjectCounts = make([]int32, netCount)
		for j := range e.GenerationNetObjectCounts {
			if e.GenerationNetObjectCounts[j], err = c.I32(); err != nil {
				return nil, fmt.Errorf("export[%d] net object[%d]: %w", i, j, err)
			}
		}

		for j := range e.PackageGUID {
			if e.PackageGUID[j], err = c.I32(); err != nil {
				return nil, fmt.Errorf("export[%d]: %w", i, err)
			}
		}

		if e.PackageFlags, err = c.U32(); err != nil {
			return nil, fmt.Errorf("export[%d]: %w", i, err)
		}
	}
	return table, nil
}

// InBounds reports whether [SerialOffset, SerialOffset+SerialSize) lies
// within a file of the given size, per the export entry invariant in
// spec.md §3.
func (e *ExportEntry) InBounds(fileSize int) bool {
	if e.SerialSize < 0 || e.SerialOffset < 0 {
		return false
	}
	end := int64(e.SerialOffset) + int64(e.SerialSize)
	return end <= int64(fileSize)
}
