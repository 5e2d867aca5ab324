package commands

import (
	"fmt"
	"path"

	"github.com/spf13/cobra"
)

var statCmd = &cobra.Command{
	Use:   "stat <path>",
	Short: "Show the merged attributes of a path",
	Long: `Show the attributes of a path as seen through the branch stack.

For directories the link count is aggregated over every branch holding the
directory. The branch range lists the branches contributing to the entry.`,
	Args: cobra.ExactArgs(1),
	RunE: runStat,
}

func init() {
	rootCmd.AddCommand(statCmd)
}

func runStat(cmd *cobra.Command, args []string) error {
	attr, err := resolver.Stat(args[0])
	if err != nil {
		return err
	}
	e, err := resolver.Lookup(args[0])
	if err != nil {
		return err
	}
	snap := e.Snapshot()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Path: %s\n", attr.Path)
	fmt.Fprintf(out, "Mode: %s\n", attr.Mode)
	fmt.Fprintf(out, "Links: %d\n", attr.Nlink)
	fmt.Fprintf(out, "Branches: %d-%d\n", snap.BStart, snap.BEnd)
	if attr.IsDir && snap.Opaque >= 0 {
		fmt.Fprintf(out, "Opaque: branch %d\n", snap.Opaque)
	}
	if parent := e.Parent(); parent != nil {
		if b, ok := parent.WhiteoutBranch(path.Base(attr.Path)); ok {
			fmt.Fprintf(out, "Whiteout: branch %d\n", b)
		}
	}
	return nil
}
