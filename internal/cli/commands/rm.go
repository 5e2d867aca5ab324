package commands

import (
	"github.com/spf13/cobra"
)

var rmCmd = &cobra.Command{
	Use:   "rm <path>...",
	Short: "Remove names from the merged view",
	Long: `Remove files or empty directories from the merged view.

Names held only by writable branches are deleted. When a lower or read-only
branch still holds the name, a whiteout is placed in an upper branch instead.

Examples:
  branchctl --dirs /upper=rw:/lower=ro rm /etc/motd`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRm,
}

func init() {
	rootCmd.AddCommand(rmCmd)
}

func runRm(cmd *cobra.Command, args []string) error {
	for _, name := range args {
		if err := resolver.Remove(name); err != nil {
			return err
		}
		log.WithField("path", name).Info("removed")
	}
	return nil
}

