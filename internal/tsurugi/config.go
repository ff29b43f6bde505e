package tsurugi

import (
	"bufio"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
)

// Config struct
type Config struct {
	Values map[string]string
}

// Load /etc/tsurugi.conf and apply defaults
func loadConfig(path string) (*Config, error) {
	cfg := &Config{Values: make(map[string]string)}

	// Attempt to read the file
	file, err := os.Open(path)
	if err == nil {
		defer file.Close()
		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			parts := strings.SplitN(line, "=", 2)
			if len(parts) != 2 {
				continue
			}
			key := strings.TrimSpace(parts[0])
			val := strings.TrimSpace(parts[1])
			val = strings.Trim(val, `"'`)
			cfg.Values[key] = val
		}
		if err := scanner.Err(); err != nil {
			return cfg, err
		}
	}

	// Merge TSURUGI_* and R2_* env overrides
	mergeEnvOverrides(cfg)

	// Ensure TMPDIR has a default
	if tmp := cfg.Values["TMPDIR"]; tmp == "" {
		cfg.Values["TMPDIR"] = "/tmp"
	}

	return cfg, nil
}

// Merge TSURUGI_* and R2_* env overrides
func mergeEnvOverrides(cfg *Config) {
	for _, env := range os.Environ() {
		if strings.HasPrefix(env, "TSURUGI_") || strings.HasPrefix(env, "R2_") {
			parts := strings.SplitN(env, "=", 2)
			if len(parts) == 2 {
				cfg.Values[parts[0]] = parts[1]
			}
		}
	}
}

func initConfig(cfg *Config) {
	OutDir = cfg.Values["TSURUGI_OUT_DIR"]
	if OutDir == "" {
		OutDir = "dist"
	}

	WorkDir = cfg.Values["TSURUGI_WORK_DIR"]

	tmpDir = cfg.Values["TMPDIR"]
	if tmpDir == "" {
		tmpDir = "/tmp"
	}

	WantDebug = cfg.Values["TSURUGI_DEBUG"]
	if WantDebug == "" {
		WantDebug = "0"
	}
	Debug = false
	if WantDebug == "1" {
		Debug = true
	}

	PartSizeMB = defaultPartSizeMB
	if v := cfg.Values["TSURUGI_PART_SIZE_MB"]; v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			PartSizeMB = n
		} else {
			fmt.Fprintf(os.Stderr, "Warning: ignoring invalid TSURUGI_PART_SIZE_MB=%q\n", v)
		}
	}

	Platform = cfg.Values["TSURUGI_PLATFORM"]
	if Platform == "" {
		Platform = runtime.GOOS + "-" + runtime.GOARCH
	}
}

// partSizeBytes returns the configured per-part limit in bytes.
func partSizeBytes() int64 {
	return PartSizeMB * 1024 * 1024
}
