package commands

import (
	"fmt"
	"path"

	"github.com/spf13/cobra"
)

var lsLong bool

var lsCmd = &cobra.Command{
	Use:   "ls [path]",
	Short: "List a merged directory",
	Long: `List the merged contents of a directory.

Whiteouts and opaque markers are not shown. Names hidden by a whiteout or an
opaque directory in an upper branch do not appear.

Examples:
  branchctl --dirs /upper:/lower ls
  branchctl --dirs /upper:/lower ls -l /etc`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLs,
}

func init() {
	lsCmd.Flags().BoolVarP(&lsLong, "long", "l", false, "show mode, link count and source branch")
	rootCmd.AddCommand(lsCmd)
}

func runLs(cmd *cobra.Command, args []string) error {
	dir := "/"
	if len(args) > 0 {
		dir = args[0]
	}

	entries, err := resolver.ReadDir(dir)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, de := range entries {
		if !lsLong {
			fmt.Fprintln(out, de.Name())
			continue
		}
		attr, err := resolver.Stat(joinPath(dir, de.Name()))
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s %3d  b%d  %s\n", attr.Mode, attr.Nlink, attr.Branch, de.Name())
	}
	return nil
}

func joinPath(dir, name string) string {
	return path.Join("/", dir, name)
}
