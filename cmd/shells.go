package cmd

import (
	"github.com/spf13/cobra"

	"github.com/peterje/forge/internal/preflight"
	"github.com/peterje/forge/internal/pty"
)

var shellsCmd = &cobra.Command{
	Use:   "shells",
	Short: "List the shells new terminals can use",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		shells, def := preflight.CheckShells(pty.DefaultShellResolver())
		preflight.Print(cmd.OutOrStdout(), shells, def)
	},
}

func init() {
	rootCmd.AddCommand(shellsCmd)
}
