package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/absfs/branchfs"
)

var whnameDecode bool

var whnameCmd = &cobra.Command{
	Use:   "whname <name>",
	Short: "Print the whiteout file name for a name",
	Long: `Print the whiteout file name for name, or with --decode the name hidden by
a whiteout file name.

Examples:
  branchctl whname motd            # .wh.motd
  branchctl whname -d .wh.motd     # motd`,
	Args: cobra.ExactArgs(1),
	RunE: runWhname,
}

func init() {
	whnameCmd.Flags().BoolVarP(&whnameDecode, "decode", "d", false, "decode a whiteout name")
	rootCmd.AddCommand(whnameCmd)
}

func runWhname(cmd *cobra.Command, args []string) error {
	codec := branchfs.NameCodec{MaxNameLen: cfg.MaxNameLen}
	if whnameDecode {
		name, ok := codec.Decode(args[0])
		if !ok {
			return fmt.Errorf("%q is not a whiteout name", args[0])
		}
		fmt.Fprintln(cmd.OutOrStdout(), name)
		return nil
	}
	wh, err := codec.Encode(args[0])
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), wh)
	return nil
}
