package tsurugi

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zip"
)

// noise fills a buffer from a xorshift generator; deflate cannot shrink it,
// which keeps archive sizes predictable enough to force splitting.
func noise(n int, seed uint64) []byte {
	buf := make([]byte, n)
	s := seed
	for i := range buf {
		s ^= s << 13
		s ^= s >> 7
		s ^= s << 17
		buf[i] = byte(s)
	}
	return buf
}

func writeTestTree(t *testing.T, files map[string][]byte) string {
	t.Helper()
	root := t.TempDir()
	for rel, data := range files {
		path := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func TestArchiveSingleFileUnderLimit(t *testing.T) {
	staging := writeTestTree(t, map[string][]byte{
		"include/tool.h": []byte("#pragma once\n"),
		"lib/libcore.a":  noise(2048, 1),
	})
	outDir := t.TempDir()

	a := &goZipArchiver{}
	parts, err := a.Archive(staging, outDir, "llvm-v1.0.0-linux-amd64", 1<<30)
	if err != nil {
		t.Fatal(err)
	}
	if len(parts) != 1 {
		t.Fatalf("expected 1 part, got %d", len(parts))
	}
	want := filepath.Join(outDir, "llvm-v1.0.0-linux-amd64.zip")
	if parts[0].Path != want {
		t.Errorf("expected %s, got %s", want, parts[0].Path)
	}
	if err := checkZipReadable(parts[0].Path); err != nil {
		t.Error(err)
	}

	entries, err := os.ReadDir(outDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("expected exactly one output file, found %d", len(entries))
	}
}

func TestArchiveSplitsOversizedBundle(t *testing.T) {
	staging := writeTestTree(t, map[string][]byte{
		"lib/liba.a": noise(40_000, 2),
		"lib/libb.a": noise(40_000, 3),
		"lib/libc.a": noise(40_000, 4),
	})
	outDir := t.TempDir()
	const limit = 32_000

	a := &goZipArchiver{}
	parts, err := a.Archive(staging, outDir, "llvm-v1.0.0-linux-amd64", limit)
	if err != nil {
		t.Fatal(err)
	}
	if len(parts) < 2 {
		t.Fatalf("expected multiple parts, got %d", len(parts))
	}

	for i, p := range parts {
		want := filepath.Join(outDir, fmt.Sprintf("llvm-v1.0.0-linux-amd64-part%02d.zip", i+1))
		if p.Path != want {
			t.Errorf("part %d: expected %s, got %s", i, want, p.Path)
		}
		size, err := fileSize(p.Path)
		if err != nil {
			t.Fatal(err)
		}
		if size > limit {
			t.Errorf("part %d is %d bytes, over the %d limit", i, size, limit)
		}
		if size != p.Size {
			t.Errorf("part %d: reported size %d, actual %d", i, p.Size, size)
		}
	}

	// The temporary full archive must not survive.
	if _, err := os.Stat(filepath.Join(outDir, "llvm-v1.0.0-linux-amd64.tmp.zip")); !os.IsNotExist(err) {
		t.Error("temporary archive left behind")
	}
}

func TestSplitPartsReassembleToOriginalArchive(t *testing.T) {
	srcFiles := map[string][]byte{
		"bin/clang":         noise(50_000, 5),
		"include/llvm/ir.h": []byte("struct Module;\n"),
		"lib/libx.a":        noise(50_000, 6),
	}
	staging := writeTestTree(t, srcFiles)
	outDir := t.TempDir()

	a := &goZipArchiver{}
	parts, err := a.Archive(staging, outDir, "llvm-v2-linux-amd64", 24_000)
	if err != nil {
		t.Fatal(err)
	}
	if len(parts) < 2 {
		t.Fatalf("expected split output, got %d part(s)", len(parts))
	}

	joined := filepath.Join(t.TempDir(), "joined.zip")
	var paths []string
	for _, p := range parts {
		paths = append(paths, p.Path)
	}
	if err := concatFiles(paths, joined); err != nil {
		t.Fatal(err)
	}

	r, err := zip.OpenReader(joined)
	if err != nil {
		t.Fatalf("reassembled stream is not a valid zip: %v", err)
	}
	defer r.Close()

	got := make(map[string][]byte)
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			t.Fatal(err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatal(err)
		}
		got[f.Name] = data
	}

	for rel, want := range srcFiles {
		if !bytes.Equal(got[rel], want) {
			t.Errorf("content mismatch for %s after reassembly", rel)
		}
	}
}

func TestArchiveExactLimitIsNotSplit(t *testing.T) {
	staging := writeTestTree(t, map[string][]byte{
		"lib/liby.a": noise(30_000, 7),
	})

	// Measure the archive once, then re-run with the limit set to its
	// exact size: equal-to-threshold counts as "no split needed".
	probe := filepath.Join(t.TempDir(), "probe.zip")
	if err := writeZipTree(staging, probe); err != nil {
		t.Fatal(err)
	}
	size, err := fileSize(probe)
	if err != nil {
		t.Fatal(err)
	}

	outDir := t.TempDir()
	a := &goZipArchiver{}
	parts, err := a.Archive(staging, outDir, "llvm-v3-linux-amd64", size)
	if err != nil {
		t.Fatal(err)
	}
	if len(parts) != 1 {
		t.Fatalf("expected a single unsplit file at the boundary, got %d parts", len(parts))
	}
	if filepath.Base(parts[0].Path) != "llvm-v3-linux-amd64.zip" {
		t.Errorf("unexpected output name %s", filepath.Base(parts[0].Path))
	}
}

func TestSplitFileExactMultipleHasNoEmptyTail(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "stream.bin")
	if err := os.WriteFile(src, noise(4096, 8), 0o644); err != nil {
		t.Fatal(err)
	}

	parts, err := splitFile(src, 1024, func(n int) string {
		return filepath.Join(dir, fmt.Sprintf("part%02d", n))
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(parts) != 4 {
		t.Fatalf("expected 4 parts, got %d", len(parts))
	}
	for _, p := range parts {
		if p.Size != 1024 {
			t.Errorf("%s: expected 1024 bytes, got %d", p.Path, p.Size)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "part05")); !os.IsNotExist(err) {
		t.Error("empty trailing part was created")
	}
}

// fakeSevenZip installs a stand-in 7z on PATH that writes its output file
// the way the real tool does: relative paths resolve against the working
// directory 7z is launched in, not against the caller's.
func fakeSevenZip(t *testing.T) {
	t.Helper()
	binDir := t.TempDir()
	script := `#!/bin/sh
out=""
for a in "$@"; do
  case "$a" in
    a|-tzip|-mx=*|-v*|.) ;;
    *) out="$a" ;;
  esac
done
head -c 64 /dev/urandom > "$out"
`
	shim := filepath.Join(binDir, "7z")
	if err := os.WriteFile(shim, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PATH", binDir+string(os.PathListSeparator)+os.Getenv("PATH"))
}

func TestSevenZipArchiverRelativeOutDir(t *testing.T) {
	fakeSevenZip(t)
	staging := writeTestTree(t, map[string][]byte{
		"lib/liba.a": noise(1024, 21),
	})

	// The out dir is relative to the process cwd while 7z runs inside the
	// staging tree; the archiver must hand 7z an absolute output path.
	base := t.TempDir()
	t.Chdir(base)
	if err := os.Mkdir("dist", 0o755); err != nil {
		t.Fatal(err)
	}

	a := &sevenZipArchiver{exe: "7z", execCtx: NewExecutor(context.Background())}
	parts, err := a.Archive(staging, "dist", "llvm-v1-linux-amd64", 1<<30)
	if err != nil {
		t.Fatalf("archive with relative out dir failed: %v", err)
	}
	if len(parts) != 1 {
		t.Fatalf("expected 1 part, got %d", len(parts))
	}
	if !filepath.IsAbs(parts[0].Path) {
		t.Errorf("reported part path should be absolute, got %s", parts[0].Path)
	}
	if _, err := os.Stat(filepath.Join(base, "dist", "llvm-v1-linux-amd64.zip")); err != nil {
		t.Errorf("archive not written into the out dir: %v", err)
	}
	if stray, _ := filepath.Glob(filepath.Join(staging, "dist", "*")); len(stray) != 0 {
		t.Errorf("archive leaked into the staging tree: %v", stray)
	}
}

func TestPartNaming(t *testing.T) {
	if got := singleName("mlir-v1.2.3-linux-amd64"); got != "mlir-v1.2.3-linux-amd64.zip" {
		t.Errorf("singleName: %s", got)
	}
	if got := partName("mlir-v1.2.3-linux-amd64", 1); got != "mlir-v1.2.3-linux-amd64-part01.zip" {
		t.Errorf("partName(1): %s", got)
	}
	if got := partName("mlir-v1.2.3-linux-amd64", 12); got != "mlir-v1.2.3-linux-amd64-part12.zip" {
		t.Errorf("partName(12): %s", got)
	}
}
