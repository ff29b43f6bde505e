package tsurugi

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
)

func handleCleanupCommand(args []string, cfg *Config) error {
	cleanupCmd := flag.NewFlagSet("cleanup", flag.ExitOnError)
	cleanArchives := cleanupCmd.Bool("archives", false, "Remove produced archive parts and manifests.")
	cleanWork := cleanupCmd.Bool("work", false, "Remove stale staging work directories.")
	cleanAll := cleanupCmd.Bool("all", false, "archives and work directories.")

	if err := cleanupCmd.Parse(args); err != nil {
		return err // Should not happen with flag.ExitOnError
	}

	// If no flags are provided, show help and exit
	if !*cleanArchives && !*cleanWork && !*cleanAll {
		fmt.Println("Usage: tsurugi cleanup [flag]")
		fmt.Println("You must specify what to clean up. Use one of the following flags:")
		cleanupCmd.PrintDefaults()
		return nil
	}

	if *cleanAll {
		*cleanArchives = true
		*cleanWork = true
	}

	if *cleanArchives {
		colArrow.Print("-> ")
		cPrintf(colWarn, "Deleting produced archives at %s.\n", OutDir)
		if askForConfirmation(colError, "Are you sure you want to proceed?") {
			debugf("Removing output directory: %s\n", OutDir)
			if err := os.RemoveAll(OutDir); err != nil {
				return fmt.Errorf("failed to remove output directory: %w", err)
			}
			colArrow.Print("-> ")
			colSuccess.Println("Archives removed successfully.")
		} else {
			colArrow.Print("-> ")
			colSuccess.Println("Cleanup of archives canceled.")
		}
	}

	if *cleanWork {
		// Work dirs are normally removed on exit; this catches the ones a
		// killed run left behind.
		pattern := filepath.Join(tmpDir, "tsurugi-*")
		stale, err := filepath.Glob(pattern)
		if err != nil {
			return err
		}
		if len(stale) == 0 {
			colArrow.Print("-> ")
			colSuccess.Println("No stale work directories found.")
			return nil
		}
		cPrintf(colWarn, "Found %d stale work directories under %s.\n", len(stale), tmpDir)
		if askForConfirmation(colArrow, "Remove them?") {
			for _, dir := range stale {
				debugf("Removing stale work directory: %s\n", dir)
				if err := os.RemoveAll(dir); err != nil {
					fmt.Fprintf(os.Stderr, "Warning: failed to remove %s: %v\n", dir, err)
				}
			}
			colArrow.Print("-> ")
			colSuccess.Println("Stale work directories removed.")
		}
	}

	return nil
}
