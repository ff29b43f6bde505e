package tsurugi

import (
	"flag"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"

	"github.com/ulikunitz/xz"
)

// sourceMarker must exist under the working directory for a build to
// start; it distinguishes a toolchain checkout from a random directory.
const sourceMarker = "llvm/CMakeLists.txt"

// handleBuildCommand implements 'tsurugi build': configure, build, and
// install the toolchain via CMake/Ninja with a fixed option set.
func handleBuildCommand(args []string, cfg *Config) error {
	buildCmd := flag.NewFlagSet("build", flag.ContinueOnError)
	buildType := buildCmd.String("build-type", "Release", "CMake build type (Release or Debug).")
	installDir := buildCmd.String("install-dir", "", "Install prefix (default: <cwd>/install).")
	jobs := buildCmd.Int("jobs", runtime.NumCPU(), "Parallel build jobs.")

	if err := buildCmd.Parse(args); err != nil {
		return err
	}
	if *buildType != "Release" && *buildType != "Debug" {
		buildCmd.Usage()
		return fmt.Errorf("invalid --build-type %q (want Release or Debug)", *buildType)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return err
	}
	if _, err := os.Stat(filepath.Join(cwd, sourceMarker)); err != nil {
		return fmt.Errorf("%s not found: run from the root of a toolchain checkout", sourceMarker)
	}

	buildDir := filepath.Join(cwd, "build")
	prefix := *installDir
	if prefix == "" {
		prefix = filepath.Join(cwd, "install")
	}

	configureArgs := []string{
		"-G", "Ninja",
		"-S", "llvm",
		"-B", buildDir,
		"-DCMAKE_BUILD_TYPE=" + *buildType,
		"-DCMAKE_INSTALL_PREFIX=" + prefix,
		"-DLLVM_ENABLE_PROJECTS=clang;lld;mlir",
		"-DLLVM_ENABLE_ASSERTIONS=ON",
		"-DLLVM_ENABLE_RTTI=OFF",
		"-DLLVM_TARGETS_TO_BUILD=Native",
		"-DBUILD_SHARED_LIBS=OFF",
		"-DLLVM_BUILD_LLVM_DYLIB=OFF",
	}
	if runtime.GOOS == "windows" {
		// Static CRT, flavor tied to the build type.
		crt := "MultiThreaded"
		if *buildType == "Debug" {
			crt = "MultiThreadedDebug"
		}
		configureArgs = append(configureArgs, "-DCMAKE_MSVC_RUNTIME_LIBRARY="+crt)
	}

	logPath := filepath.Join(cwd, "build.log")
	logFile, err := os.Create(logPath)
	if err != nil {
		return fmt.Errorf("failed to create build log: %w", err)
	}
	tee := io.MultiWriter(os.Stdout, logFile)

	steps := []struct {
		desc string
		args []string
	}{
		{"Configuring toolchain", configureArgs},
		{"Building toolchain", []string{"--build", buildDir, "--parallel", strconv.Itoa(*jobs)}},
		{"Installing toolchain", []string{"--install", buildDir}},
	}

	for _, step := range steps {
		colArrow.Print("-> ")
		colSuccess.Printf("%s (%s)\n", step.desc, *buildType)
		cmake := exec.Command("cmake", step.args...)
		cmake.Stdout = tee
		cmake.Stderr = tee
		if err := Exec.Run(cmake); err != nil {
			logFile.Close()
			compressBuildLog(logPath)
			return fmt.Errorf("cmake failed during %q: %w", step.desc, err)
		}
	}
	logFile.Close()
	compressBuildLog(logPath)

	colArrow.Print("-> ")
	colSuccess.Printf("Toolchain installed to %s\n", prefix)
	return nil
}

// compressBuildLog replaces build.log with build.log.xz. Best effort: a
// failed compression keeps the plain log around instead.
func compressBuildLog(logPath string) {
	src, err := os.Open(logPath)
	if err != nil {
		return
	}
	defer src.Close()

	dest, err := os.Create(logPath + ".xz")
	if err != nil {
		return
	}
	defer dest.Close()

	xzWriter, err := xz.NewWriter(dest)
	if err != nil {
		return
	}
	if _, err := io.Copy(xzWriter, src); err != nil {
		xzWriter.Close()
		os.Remove(logPath + ".xz")
		return
	}
	if err := xzWriter.Close(); err != nil {
		os.Remove(logPath + ".xz")
		return
	}
	os.Remove(logPath)
	debugf("Build log compressed to %s.xz\n", logPath)
}
