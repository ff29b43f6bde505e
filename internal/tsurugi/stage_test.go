package tsurugi

import (
	"os"
	"path/filepath"
	"testing"
)

func writeInstallTree(t *testing.T) string {
	t.Helper()
	return writeTestTree(t, map[string][]byte{
		"include/llvm/IR/Module.h":      []byte("class Module;\n"),
		"include/mlir/IR/Builders.h":    []byte("class Builder;\n"),
		"lib/libLLVMCore.a":             []byte("llvm core\n"),
		"lib/libLLVMSupport.a":          []byte("llvm support\n"),
		"lib/libMLIRIR.a":               []byte("mlir ir\n"),
		"lib/cmake/llvm/LLVMConfig.cmake": []byte("set(LLVM_FOUND 1)\n"),
		"bin/clang":                     []byte("#!ELF clang\n"),
		"bin/mlir-opt.exe":              []byte("MZ mlir-opt\n"),
	})
}

func TestStageBundleCopiesAndFlattens(t *testing.T) {
	install := writeInstallTree(t)
	staging := t.TempDir()

	b := Bundle{
		Name:     "llvm",
		Dirs:     []string{"include/llvm", "lib/cmake/llvm"},
		LibGlobs: []string{"libLLVM*.a"},
		Tools:    []string{"clang"},
	}
	if err := stageBundle(install, b, staging); err != nil {
		t.Fatal(err)
	}

	// Directory copies preserve their relative layout.
	for _, rel := range []string{
		"include/llvm/IR/Module.h",
		"lib/cmake/llvm/LLVMConfig.cmake",
		"lib/libLLVMCore.a",
		"lib/libLLVMSupport.a",
		"bin/clang",
	} {
		if _, err := os.Stat(filepath.Join(staging, rel)); err != nil {
			t.Errorf("expected %s in staging tree: %v", rel, err)
		}
	}

	// Only the requested subset is staged.
	if _, err := os.Stat(filepath.Join(staging, "lib/libMLIRIR.a")); !os.IsNotExist(err) {
		t.Error("mlir library leaked into the llvm bundle")
	}
	if _, err := os.Stat(filepath.Join(staging, "include/mlir")); !os.IsNotExist(err) {
		t.Error("mlir headers leaked into the llvm bundle")
	}
}

func TestStageBundleWindowsToolVariant(t *testing.T) {
	install := writeInstallTree(t)
	staging := t.TempDir()

	b := Bundle{
		Name:  "mlir",
		Tools: []string{"mlir-opt"},
	}
	if err := stageBundle(install, b, staging); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(filepath.Join(staging, "bin/mlir-opt.exe")); err != nil {
		t.Errorf("expected the .exe variant to be staged: %v", err)
	}
	entries, err := os.ReadDir(filepath.Join(staging, "bin"))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("expected at most one match per tool, got %d files", len(entries))
	}
}

func TestStageBundleMissingInputsAreSkipped(t *testing.T) {
	install := writeInstallTree(t)
	staging := t.TempDir()

	b := Bundle{
		Name:     "llvm",
		Dirs:     []string{"include/llvm", "include/lld"},
		LibGlobs: []string{"libLLVM*.a", "liblld*.a"},
		Tools:    []string{"clang", "lld"},
	}
	// Absent dirs, unmatched globs and missing tools warn and continue.
	if err := stageBundle(install, b, staging); err != nil {
		t.Fatalf("missing inputs must not fail the stage: %v", err)
	}

	if _, err := os.Stat(filepath.Join(staging, "include/llvm/IR/Module.h")); err != nil {
		t.Errorf("present inputs still staged: %v", err)
	}
	if _, err := os.Stat(filepath.Join(staging, "include/lld")); !os.IsNotExist(err) {
		t.Error("absent dir should simply be absent from the staged output")
	}
	if _, err := os.Stat(filepath.Join(staging, "bin/lld")); !os.IsNotExist(err) {
		t.Error("absent tool should simply be absent from the staged output")
	}
}

func TestStageBundleDoesNotTouchInstallTree(t *testing.T) {
	install := writeInstallTree(t)
	before := treeListing(t, install)

	b := defaultBundles()[0]
	if err := stageBundle(install, b, t.TempDir()); err != nil {
		t.Fatal(err)
	}

	after := treeListing(t, install)
	if len(before) != len(after) {
		t.Fatalf("install tree changed: %d entries before, %d after", len(before), len(after))
	}
	for i := range before {
		if before[i] != after[i] {
			t.Fatalf("install tree changed at %s", after[i])
		}
	}
}

func treeListing(t *testing.T, root string) []string {
	t.Helper()
	var out []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		out = append(out, path)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	return out
}

func TestFindToolPrefersBareName(t *testing.T) {
	bin := writeTestTree(t, map[string][]byte{
		"clang":     []byte("elf"),
		"clang.exe": []byte("pe"),
	})

	got := findTool(bin, "clang")
	if filepath.Base(got) != "clang" {
		t.Errorf("expected bare name to win, got %s", got)
	}
	if findTool(bin, "lld") != "" {
		t.Error("expected empty result for a missing tool")
	}
}
