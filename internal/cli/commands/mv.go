package commands

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var mvCmd = &cobra.Command{
	Use:   "mv <old> <new>",
	Short: "Rename a path in the merged view",
	Long: `Rename a file or directory. The destination must not exist.

Files held only by read-only branches are copied up first. Directories must
live in a single writable branch.`,
	Args: cobra.ExactArgs(2),
	RunE: runMv,
}

func init() {
	rootCmd.AddCommand(mvCmd)
}

func runMv(cmd *cobra.Command, args []string) error {
	if err := resolver.Rename(args[0], args[1]); err != nil {
		return err
	}
	log.WithFields(logrus.Fields{
		"old": args[0],
		"new": args[1],
	}).Info("renamed")
	return nil
}
