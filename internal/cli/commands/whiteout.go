package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	whiteoutBranch int
	opaqueBranch   int
)

var whiteoutCmd = &cobra.Command{
	Use:   "whiteout <dir> <name>",
	Short: "Place a whiteout for a name",
	Long: `Hide name inside dir by placing a whiteout.

The search starts at --branch and moves toward branch 0, skipping read-only
branches and creating dir where it is missing. The branch that received the
whiteout is printed.`,
	Args: cobra.ExactArgs(2),
	RunE: runWhiteout,
}

var opaqueCmd = &cobra.Command{
	Use:   "opaque <dir>",
	Short: "Make a directory opaque at a branch",
	Long: `Place the opaque marker in dir at --branch, hiding the contents of dir in
every lower branch. The branch must be writable; there is no fallback.`,
	Args: cobra.ExactArgs(1),
	RunE: runOpaque,
}

func init() {
	whiteoutCmd.Flags().IntVarP(&whiteoutBranch, "branch", "b", 0, "first branch to try")
	opaqueCmd.Flags().IntVarP(&opaqueBranch, "branch", "b", 0, "branch receiving the marker")
	rootCmd.AddCommand(whiteoutCmd)
	rootCmd.AddCommand(opaqueCmd)
}

func runWhiteout(cmd *cobra.Command, args []string) error {
	d, err := resolver.Lookup(args[0])
	if err != nil {
		return err
	}
	dl := d.Lock()
	defer dl.Unlock()

	branch, err := resolver.CreateWhiteout(dl, args[1], whiteoutBranch)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d\n", branch)
	return nil
}

func runOpaque(cmd *cobra.Command, args []string) error {
	d, err := resolver.Lookup(args[0])
	if err != nil {
		return err
	}
	dl := d.Lock()
	defer dl.Unlock()

	return resolver.MakeDirOpaque(dl, opaqueBranch)
}
