// Copyright 2024 The UPK Toolkit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package upk

import "errors"

// Sentinel error kinds. Fatal errors returned from New/Parse wrap one of
// these with fmt.Errorf("...: %w", ...) so callers can errors.Is against
// them; non-fatal anomalies (PatchApplyWarning-class events) are logged
// instead of returned, per the propagation policy this toolkit follows.
var (
	// ErrInvalidHeader is returned for a bad magic, a negative mandatory
	// count, or an unrecognized compression method code.
	ErrInvalidHeader = errors.New("upk: invalid package header")

	// ErrBadMagic is returned when a compressed-chunk sub-header's magic
	// does not match in either byte order.
	ErrBadMagic = errors.New("upk: compressed chunk magic mismatch")

	// ErrDecompressionFailed is returned when a chunk codec errors out or
	// produces more bytes than the chunk declared.
	ErrDecompressionFailed = errors.New("upk: chunk decompression failed")

	// ErrInvalidUTF16 is returned for a malformed wide-string payload.
	ErrInvalidUTF16 = errors.New("upk: malformed UTF-16 string")

	// ErrUnsupportedVersion is returned when a version gate calls for a
	// layout this toolkit does not implement.
	ErrUnsupportedVersion = errors.New("upk: unsupported package version")

	// ErrOutsideBoundary is returned when a read would cross the end of
	// the backing buffer.
	ErrOutsideBoundary = errors.New("upk: read outside file boundary")

	// ErrInvalidLinkerIndex is returned when a linker index does not
	// resolve to any import or export table entry.
	ErrInvalidLinkerIndex = errors.New("upk: linker index out of range")
)
