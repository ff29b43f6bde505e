package tsurugi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"lukechampine.com/blake3"
)

// ManifestName is the fixed name of the per-release manifest asset.
const ManifestName = "release.json"

// PartEntry records one archive part as uploaded.
type PartEntry struct {
	Name  string `json:"name"`
	Size  int64  `json:"size"`
	B3Sum string `json:"b3sum"`
}

// BundleEntry records how one bundle was packaged. Strategy is either
// "multivolume" (parts are members of a multi-volume zip) or "bytesplit"
// (parts are raw slices of one zip stream and must be concatenated in
// order before extraction).
type BundleEntry struct {
	Name     string      `json:"name"`
	Strategy string      `json:"strategy"`
	Parts    []PartEntry `json:"parts"`
}

// ReleaseManifest describes every asset of one published release.
type ReleaseManifest struct {
	Tag       string        `json:"tag"`
	Platform  string        `json:"platform"`
	CreatedAt time.Time     `json:"created_at"`
	Bundles   []BundleEntry `json:"bundles"`
}

func (m *ReleaseManifest) Marshal() ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}

func ParseManifest(data []byte) (*ReleaseManifest, error) {
	var m ReleaseManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse release manifest: %w", err)
	}
	return &m, nil
}

// Bundle returns the entry for the named bundle, or nil.
func (m *ReleaseManifest) Bundle(name string) *BundleEntry {
	for i := range m.Bundles {
		if m.Bundles[i].Name == name {
			return &m.Bundles[i]
		}
	}
	return nil
}

// hashFile returns the BLAKE3 hex digest of a file. Tries system b3sum
// first, falls back to the internal implementation.
func hashFile(path string) (string, error) {
	if _, err := exec.LookPath("b3sum"); err == nil {
		cmd := exec.Command("b3sum", "--no-names", path)
		var out bytes.Buffer
		cmd.Stdout = &out
		if err := cmd.Run(); err == nil {
			if sum := strings.TrimSpace(out.String()); sum != "" {
				return sum, nil
			}
		}
	}

	// Fallback: internal Go BLAKE3 (32-byte output, no key)
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := blake3.New(32, nil)
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}
