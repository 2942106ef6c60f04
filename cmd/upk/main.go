// Copyright 2024 The UPK Toolkit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Command upk is a thin CLI collaborator over the upk/disasm/asm/patch
// packages: inspect a package's header and tables, extract export
// blobs, disassemble or reassemble a function's bytecode, and apply or
// build script patches.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/upk-toolkit/upk"
	"github.com/upk-toolkit/upk/asm"
	"github.com/upk-toolkit/upk/disasm"
	"github.com/upk-toolkit/upk/patch"
)

func prettyJSON(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("<error: %v>", err)
	}
	return string(b)
}

func openPackage(path string) (*upk.Package, error) {
	p, err := upk.New(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if err := p.Parse(); err != nil {
		p.Close()
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return p, nil
}

func cmdUpkHeader() *cobra.Command {
	return &cobra.Command{
		Use:   "upkHeader <path>",
		Short: "Print a package's parsed header as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := openPackage(args[0])
			if err != nil {
				return err
			}
			defer p.Close()
			fmt.Println(prettyJSON(p.Header))
			return nil
		},
	}
}

func cmdList() *cobra.Command {
	return &cobra.Command{
		Use:   "list <path>",
		Short: "List every export's resolved full name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := openPackage(args[0])
			if err != nil {
				return err
			}
			defer p.Close()
			for i := range p.Exports {
				fmt.Println(p.FullName(upk.LinkerIndex(i + 1)))
			}
			return nil
		},
	}
}

func cmdNames() *cobra.Command {
	return &cobra.Command{
		Use:   "names <path> [out]",
		Short: "Dump the package's name table",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := openPackage(args[0])
			if err != nil {
				return err
			}
			defer p.Close()
			out := prettyJSON(p.Names)
			if len(args) == 2 {
				return os.WriteFile(args[1], []byte(out), 0o644)
			}
			fmt.Println(out)
			return nil
		},
	}
}

func cmdExtract() *cobra.Command {
	return &cobra.Command{
		Use:   "extract <upk> <substring> [out_dir]",
		Short: "Extract the first export blob whose full name contains substring",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := openPackage(args[0])
			if err != nil {
				return err
			}
			defer p.Close()

			outDir := "."
			if len(args) == 3 {
				outDir = args[2]
			}
			idx, ok := p.FindExportByPath(args[1])
			if !ok {
				return fmt.Errorf("no export matches %q", args[1])
			}
			return extractOne(p, idx, outDir)
		},
	}
}

func cmdExtractAll() *cobra.Command {
	return &cobra.Command{
		Use:   "extractall <upk> [out_dir]",
		Short: "Extract every export's blob",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := openPackage(args[0])
			if err != nil {
				return err
			}
			defer p.Close()

			outDir := "."
			if len(args) == 2 {
				outDir = args[1]
			}
			for i := range p.Exports {
				if err := extractOne(p, i, outDir); err != nil {
					fmt.Fprintf(os.Stderr, "extract export %d: %v\n", i, err)
				}
			}
			return nil
		},
	}
}

func extractOne(p *upk.Package, idx int, outDir string) error {
	blob, err := p.ExportBlob(idx)
	if err != nil {
		return err
	}
	name := sanitizeFilename(p.FullName(upk.LinkerIndex(idx + 1)))
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(outDir, name+".bin"), blob, 0o644)
}

func sanitizeFilename(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', ' ':
			return '_'
		}
		return r
	}, s)
}

func cmdElements() *cobra.Command {
	return &cobra.Command{
		Use:   "elements <ron> <blob>",
		Short: "Decode a raw property blob using a JSON element-layout descriptor",
		Long: "elements reads blob as a tagged-property stream and prints each\n" +
			"property's name, type, and value as JSON; <ron> names a JSON file\n" +
			"holding {\"package_version\": N} context for version-gated tags.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			descriptor, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var ctx struct {
				PackageVersion int16 `json:"package_version"`
			}
			if err := json.Unmarshal(descriptor, &ctx); err != nil {
				return fmt.Errorf("descriptor: %w", err)
			}

			blob, err := os.ReadFile(args[1])
			if err != nil {
				return err
			}

			p := &upk.Package{Header: &upk.Header{PackageVersion: ctx.PackageVersion}}
			props, err := p.ReadPropertiesFromBytes(blob)
			if err != nil {
				return err
			}
			fmt.Println(prettyJSON(props))
			return nil
		},
	}
}

func cmdDisasm() *cobra.Command {
	return &cobra.Command{
		Use:   "disasm <upk> <function> [out_dir]",
		Short: "Disassemble one function export's bytecode",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := openPackage(args[0])
			if err != nil {
				return err
			}
			defer p.Close()

			idx, ok := p.FindExportByPath(args[1])
			if !ok {
				return fmt.Errorf("no export matches %q", args[1])
			}
			blob, err := p.ExportBlob(idx)
			if err != nil {
				return err
			}
			_, script, err := disasm.ExtractScript(blob, p.PropertyListLength)
			if err != nil {
				return fmt.Errorf("extract script: %w", err)
			}
			stmts, err := disasm.Decode(script, p)
			var lines []string
			for _, s := range stmts {
				lines = append(lines, fmt.Sprintf("0x%04X: %s", s.Offset, s.Text))
			}
			text := strings.Join(lines, "\n")
			if err != nil {
				text += fmt.Sprintf("\n; decode halted: %v", err)
			}

			if len(args) == 3 {
				if mkErr := os.MkdirAll(args[2], 0o755); mkErr != nil {
					return mkErr
				}
				name := sanitizeFilename(p.FullName(upk.LinkerIndex(idx + 1)))
				return os.WriteFile(filepath.Join(args[2], name+".usc"), []byte(text), 0o644)
			}
			fmt.Println(text)
			return nil
		},
	}
}

func cmdCompile() *cobra.Command {
	return &cobra.Command{
		Use:   "compile <upk> <asm> [out]",
		Short: "Assemble a bytecode source file against a package's tables",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := openPackage(args[0])
			if err != nil {
				return err
			}
			defer p.Close()

			src, err := os.ReadFile(args[1])
			if err != nil {
				return err
			}
			bytecode, err := asm.Assemble(string(src), packageResolver{p})
			if err != nil {
				return err
			}
			if len(args) == 3 {
				return os.WriteFile(args[2], bytecode, 0o644)
			}
			os.Stdout.Write(bytecode)
			return nil
		},
	}
}

// packageResolver adapts *upk.Package's export/import lookup to
// asm.ObjectResolver's bare-name-to-linker-index contract.
type packageResolver struct{ p *upk.Package }

func (r packageResolver) ResolveObject(name string) (int32, bool) {
	if name == "None" || name == "" {
		return 0, true
	}
	for i := range r.p.Exports {
		if r.p.Names.Resolve(r.p.Exports[i].ObjectName) == name {
			return int32(i + 1), true
		}
	}
	for i := range r.p.Imports {
		if r.p.Names.Resolve(r.p.Imports[i].ObjectName) == name {
			return int32(-(i + 1)), true
		}
	}
	return 0, false
}

func cmdMakeScriptPatch() *cobra.Command {
	return &cobra.Command{
		Use:   "make-script-patch <package> <struct> <function> <bytecode> [out_dir]",
		Short: "Build a single-function patch artifact from assembled bytecode",
		Args:  cobra.RangeArgs(4, 5),
		RunE: func(cmd *cobra.Command, args []string) error {
			packageName, structName, functionName, bytecodePath := args[0], args[1], args[2], args[3]
			bytecode, err := os.ReadFile(bytecodePath)
			if err != nil {
				return err
			}
			a := &patch.Artifact{
				PackageName: packageName,
				ScriptPatches: []patch.ScriptPatch{
					{
						StructName: structName,
						PatchData:  patch.PatchData{DataName: functionName, Data: bytecode},
					},
				},
			}
			wrapped, err := patch.Encode(a)
			if err != nil {
				return err
			}
			outDir := "."
			if len(args) == 5 {
				outDir = args[4]
			}
			if err := os.MkdirAll(outDir, 0o755); err != nil {
				return err
			}
			return os.WriteFile(filepath.Join(outDir, structName+".patch"), wrapped, 0o644)
		},
	}
}

func cmdPack() *cobra.Command {
	return &cobra.Command{
		Use:   "pack <ron>",
		Short: "Apply every script patch named in a descriptor to its package",
		Long: "pack reads a JSON descriptor {\"package\": path, \"patches\": [path,...]}\n" +
			"and writes <package>.patched with every listed patch applied.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			descriptorBytes, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var descriptor struct {
				Package string   `json:"package"`
				Patches []string `json:"patches"`
			}
			if err := json.Unmarshal(descriptorBytes, &descriptor); err != nil {
				return err
			}

			raw, err := os.ReadFile(descriptor.Package)
			if err != nil {
				return err
			}
			p, err := upk.NewBytes(raw, nil)
			if err != nil {
				return err
			}
			if err := p.Parse(); err != nil {
				return err
			}

			out := raw
			for _, patchPath := range descriptor.Patches {
				patchBytes, err := os.ReadFile(patchPath)
				if err != nil {
					return err
				}
				artifact, err := patch.Decode(patchBytes)
				if err != nil {
					return fmt.Errorf("%s: %w", patchPath, err)
				}
				out, err = patch.ApplyPatch(out, p, artifact, func(format string, a ...any) {
					fmt.Fprintf(os.Stderr, "warning: "+format+"\n", a...)
				})
				if err != nil {
					return fmt.Errorf("%s: %w", patchPath, err)
				}
			}

			return os.WriteFile(descriptor.Package+".patched", out, 0o644)
		},
	}
}

func main() {
	root := &cobra.Command{
		Use:   "upk",
		Short: "Inspect, extract, disassemble, and patch UE3-era package files",
	}
	root.AddCommand(
		cmdUpkHeader(),
		cmdList(),
		cmdNames(),
		cmdExtract(),
		cmdExtractAll(),
		cmdElements(),
		cmdMakeScriptPatch(),
		cmdDisasm(),
		cmdCompile(),
		cmdPack(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
