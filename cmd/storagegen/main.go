// Program storagegen synthesizes the specialized storage-handler source for a
// mapping manifest and writes the verified unit to disk.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var manifestPath string
	var outPath string
	var pkgName string

	cmd := &cobra.Command{
		Use:           "storagegen",
		Short:         "Generate specialized storage handlers from a mapping manifest",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runGenerate(cmd.OutOrStdout(), manifestPath, outPath, pkgName)
		},
	}
	cmd.Flags().StringVar(&manifestPath, "manifest", "storage-manifest.json", "path to the mapping manifest")
	cmd.Flags().StringVar(&outPath, "out", "storagegen_storage.go", "output file for the generated unit")
	cmd.Flags().StringVar(&pkgName, "package", "", "package name for the generated unit")
	return cmd
}
