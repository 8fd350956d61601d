package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mdmestre/enroller/internal/cli"
	"github.com/mdmestre/enroller/internal/version"
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "enroller",
		Short:   "Enroll a contact list into a chat group in paced cycles",
		Version: version.String(),
		Long: `enroller adds contacts to a chat group a few at a time and sends the
group's invite link to the rest. Settings are read from ENROLL_* environment
variables. Progress is kept in a ledger so runs can be resumed.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(cli.RunCmd())
	rootCmd.AddCommand(cli.StatusCmd())
	rootCmd.AddCommand(cli.PendingCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
