package tsurugi

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"sort"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"
)

// ArchivePart is one produced output file.
type ArchivePart struct {
	Path string
	Size int64
}

// Archiver turns a staging tree into one or more archive parts, none of
// which exceeds the size limit. Name identifies the splitting strategy and
// is recorded in the release manifest so consumers know how to reassemble.
type Archiver interface {
	Name() string
	Archive(stagingDir, outDir, stem string, limit int64) ([]ArchivePart, error)
}

// selectArchiver probes for a multi-volume capable system archiver and
// falls back to the internal zip writer plus raw byte splitting.
func selectArchiver(execCtx *Executor) Archiver {
	for _, tool := range []string{"7z", "7zz"} {
		if _, err := exec.LookPath(tool); err == nil {
			debugf("Using system %s for archiving\n", tool)
			return &sevenZipArchiver{exe: tool, execCtx: execCtx}
		}
	}
	debugf("No system 7z found, using internal zip archiver\n")
	return &goZipArchiver{}
}

func singleName(stem string) string {
	return stem + ".zip"
}

func partName(stem string, n int) string {
	return fmt.Sprintf("%s-part%02d.zip", stem, n)
}

// sevenZipArchiver shells out to 7-Zip. Oversized bundles are re-archived
// in volume mode, so every part is a member of a valid multi-volume zip.
type sevenZipArchiver struct {
	exe     string
	execCtx *Executor
}

func (a *sevenZipArchiver) Name() string { return "multivolume" }

func (a *sevenZipArchiver) Archive(stagingDir, outDir, stem string, limit int64) ([]ArchivePart, error) {
	// 7z runs with the staging tree as its working directory and resolves
	// the output path against that, not against our cwd. A relative
	// out dir would land the archive inside the ephemeral staging tree.
	outDir, err := filepath.Abs(outDir)
	if err != nil {
		return nil, err
	}

	fullPath := filepath.Join(outDir, stem+".tmp.zip")
	defer os.Remove(fullPath)

	// Low compression effort on purpose: upload time dominates, and the
	// bulk of a toolchain install is already hard-to-compress object code.
	if err := a.run(stagingDir, "a", "-tzip", "-mx=1", fullPath, "."); err != nil {
		return nil, fmt.Errorf("7z archive failed: %w", err)
	}

	size, err := fileSize(fullPath)
	if err != nil {
		return nil, err
	}

	if size <= limit {
		final := filepath.Join(outDir, singleName(stem))
		if err := os.Rename(fullPath, final); err != nil {
			return nil, err
		}
		return []ArchivePart{{Path: final, Size: size}}, nil
	}

	// Too big for a single upload. Discard the full archive and let 7z
	// emit size-bounded volumes directly from the staging tree.
	if err := os.Remove(fullPath); err != nil {
		return nil, err
	}

	volStem := filepath.Join(outDir, stem+".vol.zip")
	volFlag := fmt.Sprintf("-v%dm", limit/(1024*1024))
	if err := a.run(stagingDir, "a", "-tzip", "-mx=1", volFlag, volStem, "."); err != nil {
		return nil, fmt.Errorf("7z volume archive failed: %w", err)
	}

	volumes, err := filepath.Glob(volStem + ".*")
	if err != nil {
		return nil, err
	}
	if len(volumes) == 0 {
		return nil, fmt.Errorf("7z reported success but produced no volumes for %s", stem)
	}
	// 7z numbers volumes .001, .002, ...; its ordering is authoritative
	// and lexicographic sort preserves it.
	sort.Strings(volumes)

	var parts []ArchivePart
	for i, vol := range volumes {
		final := filepath.Join(outDir, partName(stem, i+1))
		if err := os.Rename(vol, final); err != nil {
			return nil, err
		}
		sz, err := fileSize(final)
		if err != nil {
			return nil, err
		}
		parts = append(parts, ArchivePart{Path: final, Size: sz})
	}
	return parts, nil
}

func (a *sevenZipArchiver) run(dir string, args ...string) error {
	cmd := exec.Command(a.exe, args...)
	cmd.Dir = dir
	cmd.Stdout = io.Discard // 7z banner noise; errors still reach stderr
	return a.execCtx.Run(cmd)
}

// goZipArchiver writes the zip in-process and, when oversized, splits the
// finished archive into raw byte chunks. Chunks are NOT independently valid
// zips; they must be concatenated in part order before extraction. The
// release manifest records which strategy produced a release's parts.
type goZipArchiver struct{}

func (a *goZipArchiver) Name() string { return "bytesplit" }

func (a *goZipArchiver) Archive(stagingDir, outDir, stem string, limit int64) ([]ArchivePart, error) {
	fullPath := filepath.Join(outDir, stem+".tmp.zip")

	if err := writeZipTree(stagingDir, fullPath); err != nil {
		os.Remove(fullPath)
		return nil, err
	}

	size, err := fileSize(fullPath)
	if err != nil {
		os.Remove(fullPath)
		return nil, err
	}

	if size <= limit {
		final := filepath.Join(outDir, singleName(stem))
		if err := os.Rename(fullPath, final); err != nil {
			os.Remove(fullPath)
			return nil, err
		}
		return []ArchivePart{{Path: final, Size: size}}, nil
	}

	parts, err := splitFile(fullPath, limit, func(n int) string {
		return filepath.Join(outDir, partName(stem, n))
	})
	os.Remove(fullPath)
	if err != nil {
		return nil, fmt.Errorf("failed to split %s: %w", fullPath, err)
	}
	return parts, nil
}

// writeZipTree zips the contents of root into dest with fastest-level
// deflate. Symlinks are stored as link entries (target as body), matching
// what Info-ZIP and 7z produce.
func writeZipTree(root, dest string) error {
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	zw.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(w, flate.BestSpeed)
	})

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		hdr, err := zip.FileInfoHeader(info)
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if d.IsDir() {
			hdr.Name += "/"
			_, err := zw.CreateHeader(hdr)
			return err
		}

		hdr.Method = zip.Deflate
		w, err := zw.CreateHeader(hdr)
		if err != nil {
			return err
		}

		if info.Mode()&os.ModeSymlink != 0 {
			target, err := os.Readlink(path)
			if err != nil {
				return err
			}
			_, err = w.Write([]byte(target))
			return err
		}

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		_, err = io.Copy(w, f)
		f.Close()
		return err
	})
	if err != nil {
		zw.Close()
		return fmt.Errorf("failed to archive %s: %w", root, err)
	}
	if err := zw.Close(); err != nil {
		return err
	}
	return out.Close()
}

// splitFile slices src into limit-sized chunks, numbered from 1. The final
// chunk may be smaller; every chunk is removed again if any write fails.
func splitFile(src string, limit int64, pathFor func(n int) string) ([]ArchivePart, error) {
	in, err := os.Open(src)
	if err != nil {
		return nil, err
	}
	defer in.Close()

	var parts []ArchivePart
	cleanup := func() {
		for _, p := range parts {
			os.Remove(p.Path)
		}
	}

	for n := 1; ; n++ {
		dest := pathFor(n)
		out, err := os.Create(dest)
		if err != nil {
			cleanup()
			return nil, err
		}
		written, copyErr := io.CopyN(out, in, limit)
		closeErr := out.Close()

		if copyErr != nil && copyErr != io.EOF {
			cleanup()
			os.Remove(dest)
			return nil, copyErr
		}
		if closeErr != nil {
			cleanup()
			os.Remove(dest)
			return nil, closeErr
		}
		if written == 0 {
			// Source ended exactly on a chunk boundary.
			os.Remove(dest)
			break
		}
		parts = append(parts, ArchivePart{Path: dest, Size: written})
		if copyErr == io.EOF {
			break
		}
	}

	if len(parts) == 0 {
		return nil, fmt.Errorf("nothing to split in %s", src)
	}
	return parts, nil
}
