package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "ledgerlink",
		Short: "Link seat, PC, extension and user ledgers into merged records",
		Long: `ledgerlink searches four ledgers in a remote record store, follows the
seat, PC, extension and user numbers that link them, and merges every
connected row into one record, flagging rows whose links disagree.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "ledgerlink %s\n", version)
		},
	})
	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newSearchCommand())
	return rootCmd
}
