package tsurugi

import (
	"fmt"
	"os"
	"path/filepath"
)

// stageBundle populates stagingDir with the bundle's subset of installDir.
// Missing inputs are warnings, not errors: partial install trees are normal
// (a build without MLIR still produces a valid llvm bundle).
// The install tree is never written to.
func stageBundle(installDir string, b Bundle, stagingDir string) error {
	if err := os.MkdirAll(stagingDir, 0o755); err != nil {
		return fmt.Errorf("failed to create staging dir %s: %w", stagingDir, err)
	}

	// Directory copies keep their relative layout.
	for _, rel := range b.Dirs {
		src := filepath.Join(installDir, rel)
		if !dirExists(src) {
			fmt.Fprintf(os.Stderr, "Warning: %s: missing %s, skipping\n", b.Name, rel)
			continue
		}
		dst := filepath.Join(stagingDir, rel)
		debugf("Staging dir %s -> %s\n", src, dst)
		if err := copyDir(src, dst); err != nil {
			return fmt.Errorf("failed to stage %s: %w", rel, err)
		}
	}

	// Libraries are flattened into lib/.
	libDst := filepath.Join(stagingDir, "lib")
	for _, pattern := range b.LibGlobs {
		matches, err := filepath.Glob(filepath.Join(installDir, "lib", pattern))
		if err != nil {
			return fmt.Errorf("bad library pattern %q: %w", pattern, err)
		}
		if len(matches) == 0 {
			fmt.Fprintf(os.Stderr, "Warning: %s: no libraries match %s, skipping\n", b.Name, pattern)
			continue
		}
		if err := os.MkdirAll(libDst, 0o755); err != nil {
			return err
		}
		for _, m := range matches {
			debugf("Staging lib %s\n", m)
			if err := copyFile(m, filepath.Join(libDst, filepath.Base(m))); err != nil {
				return fmt.Errorf("failed to stage library %s: %w", m, err)
			}
		}
	}

	// Tools are flattened into bin/.
	binDst := filepath.Join(stagingDir, "bin")
	for _, name := range b.Tools {
		src := findTool(filepath.Join(installDir, "bin"), name)
		if src == "" {
			fmt.Fprintf(os.Stderr, "Warning: %s: tool %s not found, skipping\n", b.Name, name)
			continue
		}
		if err := os.MkdirAll(binDst, 0o755); err != nil {
			return err
		}
		debugf("Staging tool %s\n", src)
		if err := copyFile(src, filepath.Join(binDst, filepath.Base(src))); err != nil {
			return fmt.Errorf("failed to stage tool %s: %w", name, err)
		}
	}

	return nil
}

// findTool locates an executable under binDir by base name. The bare name
// is tried first, then the Windows suffix; a Windows install tree may be
// packaged from a Linux host, so the suffix check cannot key off GOOS.
// At most one match is returned.
func findTool(binDir, name string) string {
	for _, candidate := range []string{name, name + ".exe"} {
		p := filepath.Join(binDir, candidate)
		if fi, err := os.Stat(p); err == nil && !fi.IsDir() {
			return p
		}
	}
	return ""
}
