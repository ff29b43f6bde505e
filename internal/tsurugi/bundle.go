package tsurugi

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Bundle describes one named artifact group: which pieces of the install
// tree end up in its staging tree.
//
// Dirs are copied recursively, preserving their relative paths. LibGlobs
// are matched under the install tree's lib/ directory and copied flat into
// lib/. Tools are executable base names looked up under bin/ (bare name
// first, then with the platform extension) and copied flat into bin/.
type Bundle struct {
	Name     string   `yaml:"name"`
	Dirs     []string `yaml:"dirs"`
	LibGlobs []string `yaml:"libs"`
	Tools    []string `yaml:"tools"`
}

// defaultBundles covers a static LLVM+MLIR toolchain install.
func defaultBundles() []Bundle {
	return []Bundle{
		{
			Name: "llvm",
			Dirs: []string{
				"include/llvm",
				"include/llvm-c",
				"include/clang",
				"include/clang-c",
				"include/lld",
				"lib/cmake/llvm",
				"lib/cmake/clang",
				"lib/cmake/lld",
			},
			LibGlobs: []string{
				"libLLVM*.a",
				"libclang*.a",
				"liblld*.a",
			},
			Tools: []string{
				"clang",
				"lld",
				"llvm-ar",
				"llvm-config",
				"llvm-objcopy",
				"clang-format",
			},
		},
		{
			Name: "mlir",
			Dirs: []string{
				"include/mlir",
				"include/mlir-c",
				"lib/cmake/mlir",
			},
			LibGlobs: []string{
				"libMLIR*.a",
			},
			Tools: []string{
				"mlir-opt",
				"mlir-translate",
				"mlir-tblgen",
			},
		},
	}
}

// loadBundles parses a bundle definition file. An empty path returns the
// built-in definitions.
func loadBundles(path string) ([]Bundle, error) {
	if path == "" {
		return defaultBundles(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read bundle file %s: %w", path, err)
	}

	var bundles []Bundle
	if err := yaml.Unmarshal(data, &bundles); err != nil {
		return nil, fmt.Errorf("failed to parse bundle file %s: %w", path, err)
	}

	for i, b := range bundles {
		if b.Name == "" {
			return nil, fmt.Errorf("bundle %d in %s has no name", i+1, path)
		}
	}
	if len(bundles) == 0 {
		return nil, fmt.Errorf("bundle file %s defines no bundles", path)
	}
	return bundles, nil
}
