package commands

import (
	"fmt"
	"io/fs"
	"strconv"

	"github.com/spf13/cobra"
)

var mkdirMode string

var mkdirCmd = &cobra.Command{
	Use:   "mkdir <path>...",
	Short: "Create directories in the merged view",
	Long: `Create directories in the highest writable branch.

A directory created over a whited-out name is made opaque so the contents of
the old directory in lower branches stay hidden.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runMkdir,
}

func init() {
	mkdirCmd.Flags().StringVarP(&mkdirMode, "mode", "m", "755", "permission bits (octal)")
	rootCmd.AddCommand(mkdirCmd)
}

func runMkdir(cmd *cobra.Command, args []string) error {
	perm, err := strconv.ParseUint(mkdirMode, 8, 32)
	if err != nil || perm > 0o777 {
		return fmt.Errorf("invalid mode %q", mkdirMode)
	}
	for _, name := range args {
		if err := resolver.Mkdir(name, fs.FileMode(perm)); err != nil {
			return err
		}
	}
	return nil
}
