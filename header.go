// Copyright 2024 The UPK Toolkit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package upk

import "fmt"

// PackageSignature is the magic four bytes every UPK file begins with.
const PackageSignature uint32 = 0x9E2A83C1

// Version gates. A header field only exists when the package version
// meets or exceeds the listed threshold.
const (
	VerGUIDOffsets          = 623 // import/export GUID table offsets
	VerThumbnailOffset      = 584 // thumbnail table offset
	VerAdditionalPackages   = 516 // additional-packages index
	VerTextureAllocations   = 767 // texture-alloc field
	VerLegacyComponentMap   = 543 // below this, exports carry a legacy component map
	VerPropertyTagBoolOpt   = 673 // BoolProperty tag stores a u8, not a u32
	VerBytePropSerializeEnum = 633 // ByteProperty tag carries an enum FName
)

// Package flag bits (PackageFlags bitset).
const (
	PkgAllowDownload             uint32 = 0x1
	PkgClientOptional            uint32 = 0x2
	PkgServerSideOnly            uint32 = 0x4
	PkgCooked                    uint32 = 0x8
	PkgUnsecure                  uint32 = 0x10
	PkgSavedWithNewerVersion     uint32 = 0x20
	PkgNeed                      uint32 = 0x8000
	PkgContainsMap               uint32 = 0x20000
	PkgTrash                     uint32 = 0x40000
	PkgDisallowLazyLoading       uint32 = 0x100000
	PkgContainsScript            uint32 = 0x200000
	PkgContainsDebugInfo         uint32 = 0x400000
	PkgRequireImportsAlreadyLoaded uint32 = 0x800000
	PkgStoreCompressed           uint32 = 0x2000000
	PkgStoreFullyCompressed      uint32 = 0x4000000
	PkgContainsFaceFxData        uint32 = 0x10000000
	PkgNoExportAllowed           uint32 = 0x20000000
	PkgStrippedSource            uint32 = 0x40000000
	PkgFilterEditorOnly          uint32 = 0x80000000
)

// CompressionMethod identifies the codec a package's chunks (if any) were
// compressed with.
type CompressionMethod uint32

// Supported compression methods. Any other declared value is
// ErrInvalidHeader.
const (
	CompressionNone CompressionMethod = 0
	CompressionZlib CompressionMethod = 1
	CompressionLzo  CompressionMethod = 2
	CompressionLzx  CompressionMethod = 4
)

func (m CompressionMethod) valid() bool {
	switch m {
	case CompressionNone, CompressionZlib, CompressionLzo, CompressionLzx:
		return true
	default:
		return false
	}
}

func (m CompressionMethod) String() string {
	switch m {
	case CompressionNone:
		return "None"
	case CompressionZlib:
		return "Zlib"
	case CompressionLzo:
		return "Lzo"
	case CompressionLzx:
		return "Lzx"
	default:
		return fmt.Sprintf("Unknown(%d)", uint32(m))
	}
}

// CompressedChunk is one entry of the header's compressed-chunk table: the
// logical (decompressed) byte range it reconstructs and the physical
// (compressed) byte range it reads from.
type CompressedChunk struct {
	DecompressedOffset uint32 `json:"decompressed_offset"`
	DecompressedSize   uint32 `json:"decompressed_size"`
	CompressedOffset   uint32 `json:"compressed_offset"`
	CompressedSize     uint32 `json:"compressed_size"`
}

// Generation is one entry of the header's generations list.
type Generation struct {
	ExportCount  int32 `json:"export_count"`
	NameCount    int32 `json:"name_count"`
	NetObjectCount int32 `json:"net_object_count"`
}

// Header is the fixed-plus-variable-field package header.
type Header struct {
	PackageVersion  int16  `json:"package_version"`
	LicenseeVersion int16  `json:"licensee_version"`
	HeaderSize      int32  `json:"header_size"`
	FolderName      string `json:"folder_name"`
	PackageFlags    uint32 `json:"package_flags"`

	NameCount     int32 `json:"name_count"`
	NameOffset    int32 `json:"name_offset"`
	ExportCount   int32 `json:"export_count"`
	ExportOffset  int32 `json:"export_offset"`
	ImportCount   int32 `json:"import_count"`
	ImportOffset  int32 `json:"import_offset"`
	DependsOffset int32 `json:"depends_offset"`

	// Present when PackageVersion >= VerGUIDOffsets.
	HasGUIDOffsets          bool   `json:"-"`
	ImportExportGUIDsOffset int32  `json:"import_export_guids_offset,omitempty"`
	ImportGUIDsCount        uint32 `json:"import_guids_count,omitempty"`
	ExportGUIDsCount        uint32 `json:"export_guids_count,omitempty"`

	// Present when PackageVersion >= VerThumbnailOffset.
	HasThumbnailOffset  bool   `json:"-"`
	ThumbnailTableOffset uint32 `json:"thumbnail_table_offset,omitempty"`

	PackageGUID    [4]int32     `json:"package_guid"`
	Generations    []Generation `json:"generations"`
	EngineVersion  int32        `json:"engine_version"`
	CookerVersion  int32        `json:"cooker_version"`

	Compression      CompressionMethod  `json:"compression_method"`
	CompressedChunks []CompressedChunk  `json:"compressed_chunks"`
	PackageSource    int32              `json:"package_source"`

	// Present when PackageVersion >= VerAdditionalPackages.
	HasAdditionalPackages bool  `json:"-"`
	AdditionalPackages    int32 `json:"additional_packages,omitempty"`

	// Present when PackageVersion >= VerTextureAllocations.
	HasTextureAllocations bool  `json:"-"`
	TextureAllocations    int32 `json:"texture_allocations,omitempty"`
}

// UsesLegacyComponentMap reports whether export entries in this package
// carry a legacy_component_map field (package version below the cutoff;
// see spec's open question on some repos observing v<=542 instead).
func (h *Header) UsesLegacyComponentMap() bool {
	return h.PackageVersion < VerLegacyComponentMap
}

// readHeader parses the fixed-plus-variable header fields, gated on
// PackageVersion exactly as spec.md §6 lists them.
func readHeader(c *cursor) (*Header, error) {
	magic, err := c.U32()
	if err != nil {
		return nil, err
	}
	if magic != PackageSignature {
		return nil, fmt.Errorf("%w: bad magic %#x", ErrInvalidHeader, magic)
	}

	h := &Header{}
	if h.PackageVersion, err = c.I16(); err != nil {
		return nil, err
	}
	if h.LicenseeVersion, err = c.I16(); err != nil {
		return nil, err
	}
	if h.HeaderSize, err = c.I32(); err != nil {
		return nil, err
	}
	if h.FolderName, err = c.String(); err != nil {
		return nil, err
	}
	if h.PackageFlags, err = c.U32(); err != nil {
		return nil, err
	}

	if h.NameCount, err = c.I32(); err != nil {
		return nil, err
	}
	if h.NameOffset, err = c.I32(); err != nil {
		return nil, err
	}
	if h.ExportCount, err = c.I32(); err != nil {
		return nil, err
	}
	if h.ExportOffset, err = c.I32(); err != nil {
		return nil, err
	}
	if h.ImportCount, err = c.I32(); err != nil {
		return nil, err
	}
	if h.ImportOffset, err = c.I32(); err != nil {
		return nil, err
	}
	if h.DependsOffset, err = c.I32(); err != nil {
		return nil, err
	}

	if h.NameCount < 0 || h.ExportCount < 0 || h.ImportCount < 0 {
		return nil, fmt.Errorf("%w: negative table count", ErrInvalidHeader)
	}

	if h.PackageVersion >= VerGUIDOffsets {
		h.HasGUIDOffsets = true
		if h.ImportExportGUIDsOffset, err = c.I32(); err != nil {
			return nil, err
		}
		if h.ImportGUIDsCount, err = c.U32(); err != nil {
			return nil, err
		}
		if h.ExportGUIDsCount, err = c.U32(); err != nil {
			return nil, err
		}
	}

	if h.PackageVersion >= VerThumbnailOffset {
		h.HasThumbnailOffset = true
		if h.ThumbnailTableOffset, err = c.U32(); err != nil {
			return nil, err
		}
	}

	for i := range h.PackageGUID {
		if h.PackageGUID[i], err = c.I32(); err != nil {
			return nil, err
		}
	}

	genCount, err := c.I32()
	if err != nil {
		return nil, err
	}
	if genCount < 0 {
		return nil, fmt.Errorf("%w: negative generation count", ErrInvalidHeader)
	}
	h.Generations = make([]Generation, genCount)
	for i := range h.Generations {
		if h.Generations[i].ExportCount, err = c.I32(); err != nil {
			return nil, err
		}
		if h.Generations[i].NameCount, err = c.I32(); err != nil {
			return nil, err
		}
		if h.Generations[i].NetObjectCount, err = c.I32(); err != nil {
			return nil, err
		}
	}

	if h.EngineVersion, err = c.I32(); err != nil {
		return nil, err
	}
	if h.CookerVersion, err = c.I32(); err != nil {
		return nil, err
	}

	compression, err := c.U32()
	if err != nil {
		return nil, err
	}
	h.Compression = CompressionMethod(compression)
	if !h.Compression.valid() {
		return nil, fmt.Errorf("%w: unrecognized compression method %d", ErrInvalidHeader, compression)
	}

	chunkCount, err := c.U32()
	if err != nil {
		return nil, err
	}
	h.CompressedChunks = make([]CompressedChunk, chunkCount)
	for i := range h.CompressedChunks {
		ch := &h.CompressedChunks[i]
		if ch.DecompressedOffset, err = c.U32(); err != nil {
			return nil, err
		}
		if ch.DecompressedSize, err = c.U32(); err != nil {
			return nil, err
		}
		if ch.CompressedOffset, err = c.U32(); err != nil {
			return nil, err
		}
		if ch.CompressedSize, err = c.U32(); err != nil {
			return nil, err
		}
	}

	if h.PackageSource, err = c.I32(); err != nil {
		return nil, err
	}

	if h.PackageVersion >= VerAdditionalPackages {
		h.HasAdditionalPackages = true
		if h.AdditionalPackages, err = c.I32(); err != nil {
			return nil, err
		}
	}

	if h.PackageVersion >= VerTextureAllocations {
		h.HasTextureAllocations = true
		if h.TextureAllocations, err = c.I32(); err != nil {
			return nil, err
		}
	}

	return h, nil
}

// writeHeader serializes h in the exact field order readHeader consumes,
// so a read-then-write round trip is byte-for-byte identical.
func writeHeader(w *writer, h *Header) {
	w.PutU32(PackageSignature)
	w.PutI16(h.PackageVersion)
	w.PutI16(h.LicenseeVersion)
	w.PutI32(h.HeaderSize)
	w.PutString(h.FolderName)
	w.PutU32(h.PackageFlags)

	w.PutI32(h.NameCount)
	w.PutI32(h.NameOffset)
	w.PutI32(h.ExportCount)
	w.PutI32(h.ExportOffset)
	w.PutI32(h.ImportCount)
	w.PutI32(h.ImportOffset)
	w.PutI32(h.DependsOffset)

	if h.PackageVersion >= VerGUIDOffsets {
		w.PutI32(h.ImportExportGUIDsOffset)
		w.PutU32(h.ImportGUIDsCount)
		w.PutU32(h.ExportGUIDsCount)
	}

	if h.PackageVersion >= VerThumbnailOffset {
		w.PutU32(h.ThumbnailTableOffset)
	}

	for _, g := range h.PackageGUID {
		w.PutI32(g)
	}

	w.PutI32(int32(len(h.Generations)))
	for _, g := range h.Generations {
		w.PutI32(g.ExportCount)
		w.PutI32(g.NameCount)
		w.PutI32(g.NetObjectCount)
	}

	w.PutI32(h.EngineVersion)
	w.PutI32(h.CookerVersion)

	w.PutU32(uint32(h.Compression))
	w.PutU32(uint32(len(h.CompressedChunks)))
	for _, ch := range h.CompressedChunks {
		w.PutU32(ch.DecompressedOffset)
		w.PutU32(ch.DecompressedSize)
		w.PutU32(ch.CompressedOffset)
		w.PutU32(ch.CompressedSize)
	}

	w.PutI32(h.PackageSource)

	if h.PackageVersion >= VerAdditionalPackages {
		w.PutI32(h.AdditionalPackages)
	}
	if h.PackageVersion >= VerTextureAllocations {
		w.PutI32(h.TextureAllocations)
	}
}
