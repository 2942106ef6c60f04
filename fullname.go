// Copyright 2024 The UPK Toolkit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package upk

// objectRef is the uniform shape FullName walks, whether the underlying
// table entry is an import or an export.
type objectRef struct {
	className  string // resolved class name, "" if unknown
	outerIndex LinkerIndex
	objectName string
}

// resolveObject returns the objectRef for a linker index, or ok=false if
// the index is out of range.
func (p *Package) resolveObject(idx LinkerIndex) (objectRef, bool) {
	switch {
	case idx.IsExport():
		i := idx.ExportTableIndex()
		if i < 0 || i >= len(p.Exports) {
			return objectRef{}, false
		}
		e := &p.Exports[i]
		return objectRef{
			className:  p.classNameOf(e.ClassIndex),
			outerIndex: e.OuterIndex,
			objectName: p.Names.Resolve(e.ObjectName),
		}, true
	case idx.IsImport():
		i := idx.ImportTableIndex()
		if i < 0 || i >= len(p.Imports) {
			return objectRef{}, false
		}
		imp := &p.Imports[i]
		return objectRef{
			className:  p.Names.Resolve(imp.ClassName),
			outerIndex: imp.OuterIndex,
			objectName: p.Names.Resolve(imp.ObjectName),
		}, true
	default:
		return objectRef{}, false
	}
}

// classNameOf resolves an export's ClassIndex to a class name. A zero
// index means the export's own class is "Class" (a class-object export
// with no separate class reference), matching how the engine treats a
// null class index on an export entry.
func (p *Package) classNameOf(idx LinkerIndex) string {
	if idx.IsNone() {
		return "Class"
	}
	ref, ok := p.resolveObject(idx)
	if !ok {
		return "<invalid>"
	}
	return ref.objectName
}

// maxResolutionSteps bounds the outer-index walk so a corrupt or
// (in principle impossible) cyclic chain cannot loop forever, per
// spec.md §9's defensive hardening over the original tool's unbounded
// recursion.
func (p *Package) maxResolutionSteps() int {
	return len(p.Exports) + len(p.Imports) + 1
}

// isPackageClass follows idx's outer chain (recursively, bounded by
// steps) to the object whose outer index is 0 and reports whether that
// object's class name is the literal "Package".
func (p *Package) isPackageClass(idx LinkerIndex, steps int) bool {
	if steps <= 0 {
		return false
	}
	ref, ok := p.resolveObject(idx)
	if !ok {
		return false
	}
	if ref.outerIndex.IsNone() {
		return ref.className == "Package"
	}
	return p.isPackageClass(ref.outerIndex, steps-1)
}

// FullName resolves the hierarchical dotted (or colon-separated, across a
// subobject boundary) name of the object a linker index refers to, per
// spec.md §4.3. An export's full name is additionally prefixed with its
// class name and a space.
func (p *Package) FullName(idx LinkerIndex) string {
	if idx.IsNone() {
		return "None"
	}

	type step struct {
		name       string
		crossesSub bool // separator before this step is ':' not '.'
	}

	var steps []step
	cur := idx
	maxSteps := p.maxResolutionSteps()

	for i := 0; i < maxSteps; i++ {
		ref, ok := p.resolveObject(cur)
		if !ok {
			return "<invalid>"
		}

		crossesSub := false
		if !ref.outerIndex.IsNone() {
			outerRef, ok := p.resolveObject(ref.outerIndex)
			if ok {
				outerIsPackage := outerRef.className == "Package"
				outerOuterIsPackage := outerRef.outerIndex.IsNone() || p.isPackageClass(outerRef.outerIndex, maxSteps)
				crossesSub = !outerIsPackage && outerOuterIsPackage
			}
		}

		steps = append(steps, step{name: ref.objectName, crossesSub: crossesSub})

		if ref.outerIndex.IsNone() {
			break
		}
		cur = ref.outerIndex
		if i == maxSteps-1 {
			return "<invalid>"
		}
	}

	// steps were collected innermost-first; render outermost-first.
	var out string
	for i := len(steps) - 1; i >= 0; i-- {
		if out == "" {
			out = steps[i].name
			continue
		}
		sep := "."
		if steps[i].crossesSub {
			sep = ":"
		}
		out = out + sep + steps[i].name
	}

	if idx.IsExport() {
		className := p.classNameOf(p.Exports[idx.ExportTableIndex()].ClassIndex)
		return className + " " + out
	}
	return out
}
