package tsurugi

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// handlePublishCommand implements 'tsurugi publish': stage the install tree
// into per-bundle staging trees, archive each into size-bounded parts, and
// upload the parts plus a release manifest to the release store.
func handlePublishCommand(ctx context.Context, args []string, cfg *Config) error {
	publishCmd := flag.NewFlagSet("publish", flag.ContinueOnError)
	tag := publishCmd.String("version", "", "Release version tag (required).")
	installDir := publishCmd.String("install-dir", defaultInstallDir(cfg), "Toolchain install tree to package.")
	outDir := publishCmd.String("out-dir", OutDir, "Directory for produced archive parts.")
	bundleFile := publishCmd.String("bundles", "", "YAML bundle definitions (default: built-in llvm+mlir).")
	dryRun := publishCmd.Bool("dry-run", false, "Skip the upload, print intended target URLs.")
	skipUpload := publishCmd.Bool("skip-upload", false, "Produce archives but do not contact the release store.")

	if err := publishCmd.Parse(args); err != nil {
		return err
	}
	if *tag == "" {
		publishCmd.Usage()
		return fmt.Errorf("missing required flag: --version")
	}

	bundles, err := loadBundles(*bundleFile)
	if err != nil {
		return err
	}

	if !dirExists(*installDir) {
		return fmt.Errorf("install tree %s does not exist (run 'tsurugi build' first)", *installDir)
	}
	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output dir %s: %w", *outDir, err)
	}

	// The work dir holds every staging tree and is removed on every exit
	// path, including failures below; register the cleanup before anything
	// fallible runs.
	workRoot := WorkDir
	if workRoot == "" {
		workRoot = tmpDir
	}
	workDir, err := os.MkdirTemp(workRoot, "tsurugi-*")
	if err != nil {
		return fmt.Errorf("failed to create work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	archiver := selectArchiver(Exec)

	manifest := &ReleaseManifest{
		Tag:       *tag,
		Platform:  Platform,
		CreatedAt: time.Now().UTC(),
	}

	for _, b := range bundles {
		stem := fmt.Sprintf("%s-%s-%s", b.Name, *tag, Platform)

		colArrow.Print("-> ")
		colSuccess.Printf("Staging bundle %s\n", b.Name)
		stagingDir := filepath.Join(workDir, b.Name)
		if err := stageBundle(*installDir, b, stagingDir); err != nil {
			return err
		}

		entries, err := os.ReadDir(stagingDir)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Fprintf(os.Stderr, "Warning: nothing staged for bundle %s, skipping\n", b.Name)
			continue
		}

		colArrow.Print("-> ")
		colSuccess.Printf("Archiving bundle %s (limit %s per part)\n", b.Name, humanReadableSize(partSizeBytes()))
		parts, err := archiver.Archive(stagingDir, *outDir, stem, partSizeBytes())
		if err != nil {
			return err
		}

		entry := BundleEntry{Name: b.Name, Strategy: archiver.Name()}
		for _, p := range parts {
			sum, err := hashFile(p.Path)
			if err != nil {
				return fmt.Errorf("failed to hash %s: %w", p.Path, err)
			}
			entry.Parts = append(entry.Parts, PartEntry{
				Name:  filepath.Base(p.Path),
				Size:  p.Size,
				B3Sum: sum,
			})
			colArrow.Print("-> ")
			colSuccess.Printf("%s ", filepath.Base(p.Path))
			colNote.Printf("(%s)\n", humanReadableSize(p.Size))
		}
		manifest.Bundles = append(manifest.Bundles, entry)
	}

	if len(manifest.Bundles) == 0 {
		// A partial install tree is tolerated per bundle; an install tree
		// that matches no bundle at all leaves nothing to publish, which
		// still is not a failed run.
		fmt.Fprintf(os.Stderr, "Warning: nothing staged from %s, no archives produced\n", *installDir)
		return nil
	}

	manifestPath := filepath.Join(*outDir, ManifestName)
	manifestData, err := manifest.Marshal()
	if err != nil {
		return err
	}
	if err := os.WriteFile(manifestPath, manifestData, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", manifestPath, err)
	}

	if *dryRun {
		colArrow.Print("-> ")
		colSuccess.Println("Dry run, skipping upload. Intended targets:")
		for _, b := range manifest.Bundles {
			for _, p := range b.Parts {
				fmt.Println("  " + AssetURL(cfg, *tag, p.Name))
			}
		}
		fmt.Println("  " + AssetURL(cfg, *tag, ManifestName))
		return nil
	}
	if *skipUpload {
		colArrow.Print("-> ")
		colSuccess.Printf("Skipping upload, archives left in %s\n", *outDir)
		return nil
	}

	return uploadRelease(ctx, cfg, *tag, *outDir, manifest)
}

func defaultInstallDir(cfg *Config) string {
	if v := cfg.Values["TSURUGI_INSTALL_DIR"]; v != "" {
		return v
	}
	return "install"
}

// uploadRelease pushes every archive part plus the manifest into the
// release identified by tag. Re-running against an existing release is
// fine: assets of the same name are overwritten, last write wins.
func uploadRelease(ctx context.Context, cfg *Config, tag, outDir string, manifest *ReleaseManifest) error {
	r2, err := NewR2Client(cfg)
	if err != nil {
		return err
	}

	colArrow.Print("-> ")
	colSuccess.Printf("Checking release store for tag %s\n", tag)
	if existing, err := r2.FetchManifest(ctx, tag); err != nil {
		debugf("No existing release for %s: %v\n", tag, err)
		colArrow.Print("-> ")
		colSuccess.Printf("Creating new release %s\n", tag)
	} else {
		colArrow.Print("-> ")
		colSuccess.Printf("Release %s already exists (created %s), re-uploading assets\n",
			tag, existing.CreatedAt.Format("2006-01-02"))
	}

	for _, b := range manifest.Bundles {
		for _, p := range b.Parts {
			colArrow.Print("-> ")
			colSuccess.Printf("Uploading %s\n", p.Name)
			if err := r2.UploadAsset(ctx, tag, p.Name, filepath.Join(outDir, p.Name)); err != nil {
				return fmt.Errorf("failed to upload %s: %w", p.Name, err)
			}
		}
	}

	colArrow.Print("-> ")
	colSuccess.Println("Uploading release manifest")
	if err := r2.UploadManifest(ctx, tag, manifest); err != nil {
		return fmt.Errorf("failed to upload manifest: %w", err)
	}

	reportStorageUsage(ctx, r2)

	colArrow.Print("-> ")
	colSuccess.Printf("Release %s published (%d bundles)\n", tag, len(manifest.Bundles))
	return nil
}

// reportStorageUsage prints the bucket's total usage against the free R2
// tier. Best effort; listing failures are not fatal after a good upload.
func reportStorageUsage(ctx context.Context, r2 *R2Client) {
	allObjects, err := r2.ListObjects(ctx, "")
	if err != nil {
		debugf("Storage report skipped: %v\n", err)
		return
	}

	var totalSize int64
	for _, obj := range allObjects {
		totalSize += obj.Size
	}

	const tenGB = 10 * 1024 * 1024 * 1024
	percent := (float64(totalSize) / float64(tenGB)) * 100
	colArrow.Print("-> ")
	colSuccess.Printf("Storage used: ")
	colNote.Printf("%s / 10 GiB (%.1f%%)\n", humanReadableSize(totalSize), percent)

	if totalSize > (tenGB * 9 / 10) {
		colWarn.Println("Warning: You are using over 90% of your free R2 storage limit!")
	}
}
