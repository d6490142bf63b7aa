package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"vidgen/pkg/zip"
)

func newExportCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Bundle every downloaded artifact into a zip archive",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(nil)
			if err != nil {
				return err
			}
			defer rt.Close()

			var entries []zip.Entry
			dirEntries, err := os.ReadDir(rt.cfg.ArtifactDir)
			if err != nil {
				if os.IsNotExist(err) {
					fmt.Println("No artifacts downloaded yet.")
					return nil
				}
				return fmt.Errorf("read artifact dir: %w", err)
			}
			for _, entry := range dirEntries {
				// Skip in-progress transfers.
				if entry.IsDir() || strings.HasSuffix(entry.Name(), ".partial") {
					continue
				}
				entries = append(entries, zip.Entry{Path: filepath.Join(rt.cfg.ArtifactDir, entry.Name())})
			}
			if len(entries) == 0 {
				fmt.Println("No artifacts downloaded yet.")
				return nil
			}

			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("create archive: %w", err)
			}
			written, err := zip.ArchiveFiles(f, entries)
			if cerr := f.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				os.Remove(output)
				return err
			}
			fmt.Printf("Wrote %d artifacts to %s\n", written, output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "vidgen-export.zip", "archive file to write")
	return cmd
}
