package tsurugi

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gookit/color"
)

// printHelp prints the commands table
func printHelp() {
	colSuccess.Println("Usage: tsurugi <command> [arguments]")
	colSuccess.Println("Run 'tsurugi <command> -h' for command options")
	fmt.Println()
	colInfo.Println("Available Commands:")

	type cmdInfo struct {
		Cmd  string
		Args string
		Desc string
	}
	cmds := []cmdInfo{
		{"version, --version", "", "Version information"},
		{"build", "[--build-type T] [--install-dir D]", "Configure, build and install the toolchain"},
		{"publish", "--version <tag> [options]", "Stage, archive and upload release bundles"},
		{"verify", "[--manifest M] [--dir D]", "Verify archive parts against a release manifest"},
		{"cleanup", "[options]", "Cleanup archives and stale work directories"},
	}

	// Find the longest usage string to calculate the first column width.
	maxLen := 0
	for _, c := range cmds {
		length := len(c.Cmd) + len(c.Args)
		if c.Args != "" {
			length++ // Account for the space
		}
		if length > maxLen {
			maxLen = length
		}
	}
	columnWidth := maxLen + 4

	for _, c := range cmds {
		var usageString string
		if c.Args != "" {
			usageString = fmt.Sprintf("  %s %s", c.Cmd, c.Args)
		} else {
			usageString = fmt.Sprintf("  %s", c.Cmd)
		}

		fmt.Print("  ")
		color.Bold.Print(c.Cmd)
		if c.Args != "" {
			fmt.Print(" ")
			color.Cyan.Print(c.Args)
		}

		pad := columnWidth - len(usageString)
		if pad < 1 {
			pad = 1
		}
		fmt.Print(strings.Repeat(" ", pad))
		colInfo.Println(c.Desc)
	}

	fmt.Println()
}

// Main is the CLI entrypoint for tsurugi.
func Main() {
	// 1. CONTEXT AND SIGNAL SETUP
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)

	// Graceful cancellation on the first signal; a second one forces an
	// immediate exit. The publish work dir is cleaned by deferred
	// RemoveAll, which runs when the cancelled command returns.
	go func() {
		for {
			select {
			case sig := <-sigs:
				colArrow.Print("\n-> ")
				color.Danger.Printf("Received %v. Cancelling process gracefully\n", sig)
				cancel()

				time.Sleep(100 * time.Millisecond)

				select {
				case <-sigs:
					colArrow.Print("\n-> ")
					color.Danger.Printf("Second interrupt received. Forcing immediate exit.")
					os.Exit(130)
				case <-time.After(2 * time.Second):
					colArrow.Print("\n-> ")
					color.Danger.Printf("Graceful shutdown timeout. Exiting.")
					os.Exit(130)
				}

			case <-ctx.Done():
				return
			}
		}
	}()

	if len(os.Args) < 2 {
		printHelp()
		os.Exit(1)
	}

	configPath := ConfigFile
	if p := os.Getenv("TSURUGI_CONFIG"); p != "" {
		configPath = p
	}
	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to read %s: %v\n", configPath, err)
	}
	initConfig(cfg)

	Exec = NewExecutor(ctx)

	var exitCode int

	switch os.Args[1] {
	case "build":
		if err := handleBuildCommand(os.Args[2:], cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			exitCode = 1
		}
	case "publish":
		if err := handlePublishCommand(ctx, os.Args[2:], cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			exitCode = 1
		}
	case "verify":
		if err := handleVerifyCommand(os.Args[2:], cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			exitCode = 1
		}
	case "cleanup":
		if err := handleCleanupCommand(os.Args[2:], cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			exitCode = 1
		}
	case "version", "--version", "-v":
		colSuccess.Printf("tsurugi %s (%s, built %s)\n", version, arch, buildDate)
	case "help", "--help", "-h":
		printHelp()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printHelp()
		exitCode = 1
	}

	cancel()
	os.Exit(exitCode)
}
