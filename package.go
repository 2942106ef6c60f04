// Copyright 2024 The UPK Toolkit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package upk

import (
	"fmt"
	"os"

	"github.com/cespare/xxhash/v2"
	mmap "github.com/edsrzf/mmap-go"

	"github.com/upk-toolkit/upk/log"
)

// Default sanity caps on table sizes, guarding against a corrupt header
// claiming an absurd entry count. Mirrors the teacher's
// MaxDefaultCOFFSymbolsCount-style guard rails.
const (
	DefaultMaxNameTableEntries   = 1 << 20
	DefaultMaxExportTableEntries = 1 << 20
)

// Options configures parsing of a Package.
type Options struct {
	// Logger receives non-fatal parse anomalies. Defaults to a filtered
	// stdout logger at LevelError.
	Logger log.Logger

	// DecompressChunks controls whether a compressed package's body is
	// decompressed during Parse. Defaults to true when New/NewBytes are
	// given nil options; a caller-supplied Options uses the value it sets.
	// Set false to inspect the raw compressed image and chunk table
	// without paying the decompression cost.
	DecompressChunks bool

	// MaxNameTableEntries and MaxExportTableEntries cap the table sizes
	// Parse will accept before the header is treated as invalid. Zero
	// means use the package defaults.
	MaxNameTableEntries   int
	MaxExportTableEntries int
}

func (o *Options) normalized() Options {
	out := Options{DecompressChunks: true}
	if o != nil {
		out = *o
	}
	if out.MaxNameTableEntries == 0 {
		out.MaxNameTableEntries = DefaultMaxNameTableEntries
	}
	if out.MaxExportTableEntries == 0 {
		out.MaxExportTableEntries = DefaultMaxExportTableEntries
	}
	return out
}

// Package is a parsed UPK file: the header, the three core tables, and
// the (possibly decompressed) logical byte image every export blob is
// sliced from. The backing buffer is scope-owned by the caller (or, for
// a memory-mapped New, by the Package itself until Close): every slice
// this package hands out — name text, export blobs, disassembler input —
// is a view into it and must not outlive it.
type Package struct {
	Header  *Header
	Names   NameTable
	Imports []ImportEntry
	Exports []ExportEntry

	// data is the logical (decompressed) package image: header, tables,
	// and export blobs at the offsets the header/tables describe.
	data []byte

	opts   Options
	logger *log.Helper

	f   *os.File
	mm  mmap.MMap
}

// New memory-maps path and returns an unparsed Package; call Parse before
// using it. Mirrors the teacher's pe.New.
func New(path string, opts *Options) (*Package, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	data, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, err
	}

	p := newPackage(opts)
	p.f = f
	p.mm = data
	p.data = data
	return p, nil
}

// NewBytes returns an unparsed Package over an in-memory buffer; call
// Parse before using it. Mirrors the teacher's pe.NewBytes.
func NewBytes(data []byte, opts *Options) (*Package, error) {
	p := newPackage(opts)
	p.data = data
	return p, nil
}

func newPackage(opts *Options) *Package {
	p := &Package{opts: opts.normalized()}
	var logger log.Logger
	if p.opts.Logger == nil {
		logger = log.NewStdLogger(os.Stdout)
		p.logger = log.NewHelper(log.NewFilter(logger, log.FilterLevel(log.LevelError)))
	} else {
		p.logger = log.NewHelper(p.opts.Logger)
	}
	return p
}

// Close releases the memory-mapped file, if any.
func (p *Package) Close() error {
	if p.mm != nil {
		_ = p.mm.Unmap()
	}
	if p.f != nil {
		return p.f.Close()
	}
	return nil
}

// Parse reads the header, decompresses the body if needed, and parses the
// name/import/export tables, in the order spec.md §5 requires: full
// header decompression completes before tables are read, the name table
// is fully parsed before any import/export resolution, and the export
// table is parsed before any full-name resolution is attempted.
func (p *Package) Parse() error {
	raw := p.data

	headerCursor := newCursor(raw)
	header, err := readHeader(headerCursor)
	if err != nil {
		return err
	}
	p.Header = header

	if header.Compression != CompressionNone && p.opts.DecompressChunks != false {
		decompressed, err := decompressPackage(raw, header, p.logger)
		if err != nil {
			return err
		}
		p.data = decompressed
		stripCompression(p.Header)
	}

	if int(header.NameCount) > p.opts.MaxNameTableEntries {
		return fmt.Errorf("%w: name table count %d exceeds limit", ErrInvalidHeader, header.NameCount)
	}
	if int(header.ExportCount) > p.opts.MaxExportTableEntries {
		return fmt.Errorf("%w: export table count %d exceeds limit", ErrInvalidHeader, header.ExportCount)
	}

	namesCursor := newCursorAt(p.data, int(header.NameOffset))
	names, err := readNameTable(namesCursor, int(header.NameCount))
	if err != nil {
		return fmt.Errorf("name table: %w", err)
	}
	p.Names = names

	importsCursor := newCursorAt(p.data, int(header.ImportOffset))
	imports, err := readImportTable(importsCursor, int(header.ImportCount))
	if err != nil {
		return fmt.Errorf("import table: %w", err)
	}
	p.Imports = imports

	exportsCursor := newCursorAt(p.data, int(header.ExportOffset))
	exports, err := readExportTable(exportsCursor, int(header.ExportCount), header.UsesLegacyComponentMap())
	if err != nil {
		return fmt.Errorf("export table: %w", err)
	}
	p.Exports = exports

	for i := range p.Exports {
		if !p.Exports[i].InBounds(len(p.data)) {
			p.logger.Warnf("export[%d] %q: serial range outside file", i, p.Names.Resolve(p.Exports[i].ObjectName))
		}
	}

	return nil
}

// Data returns the logical (decompressed) byte image the package was
// parsed from.
func (p *Package) Data() []byte { return p.data }

// RefName renders a raw signed linker index to its full name, making
// *Package satisfy disasm.Resolver without this package importing the
// disasm package.
func (p *Package) RefName(linkerIndex int32) string {
	return p.FullName(LinkerIndex(linkerIndex))
}

// FName renders a raw (name_index, name_instance) pair against the
// package's name table, making *Package satisfy disasm.Resolver.
func (p *Package) FName(nameIndex, nameInstance int32) string {
	return p.Names.Resolve(FName{NameIndex: nameIndex, NameInstance: nameInstance})
}

// ExportBlob returns the raw bytes of an export's serialized object, the
// [SerialOffset, SerialOffset+SerialSize) slice spec.md §3 defines.
func (p *Package) ExportBlob(i int) ([]byte, error) {
	if i < 0 || i >= len(p.Exports) {
		return nil, fmt.Errorf("%w: export index %d", ErrInvalidLinkerIndex, i)
	}
	e := &p.Exports[i]
	if !e.InBounds(len(p.data)) {
		return nil, fmt.Errorf("%w: export[%d] serial range outside file", ErrOutsideBoundary, i)
	}
	return p.data[e.SerialOffset : e.SerialOffset+e.SerialSize], nil
}

// FingerprintExport returns a fast content hash of an export's raw blob,
// so a caller can compare a blob before and after patching without a
// full byte-for-byte diff of potentially large exports.
func (p *Package) FingerprintExport(i int) (uint64, error) {
	blob, err := p.ExportBlob(i)
	if err != nil {
		return 0, err
	}
	return xxhash.Sum64(blob), nil
}

// WriteHeader serializes p.Header back to its on-wire form. For a header
// read then written with no mutation, this is byte-for-byte identical to
// the original bytes (spec.md §8's header round-trip property).
func (p *Package) WriteHeader() []byte {
	w := newWriter()
	writeHeader(w, p.Header)
	return w.Bytes()
}

// FindExportByPath finds the export whose full name contains substr as a
// case-insensitive substring, the lookup the patch applier (spec.md §4.7
// step 1) and the extract/disasm CLI verbs use to locate an export by
// name. It returns the first matching export in table order.
func (p *Package) FindExportByPath(substr string) (int, bool) {
	target := foldLower(substr)
	for i := range p.Exports {
		full := p.FullName(LinkerIndex(i + 1))
		if containsFold(full, target) {
			return i, true
		}
	}
	return -1, false
}

func foldLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

func containsFold(s, foldedSubstr string) bool {
	return indexFold(s, foldedSubstr) >= 0
}

func indexFold(s, foldedSubstr string) int {
	folded := foldLower(s)
	if foldedSubstr == "" {
		return 0
	}
	for i := 0; i+len(foldedSubstr) <= len(folded); i++ {
		if folded[i:i+len(foldedSubstr)] == foldedSubstr {
			return i
		}
	}
	return -1
}
