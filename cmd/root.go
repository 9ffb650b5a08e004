package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command for the mailwatch application
var rootCmd = &cobra.Command{
	Use:   "mailwatch",
	Short: "Delegated Gmail access with managed push-notification watches",
	Long: `mailwatch obtains delegated access to Gmail mailboxes via OAuth, keeps a
push-notification watch alive for every registered mailbox, and relays
lifecycle events to a downstream automation webhook.

Commands:
  serve   Run the HTTP and metrics servers (default)
  renew   Run one watch-renewal batch, suitable for cron`,
	SilenceUsage: true,
}

// version will be set by main
var version = "dev"

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "mailwatch version %s\n" .Version}}`)

	// If no subcommand is provided, run the serve command by default
	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newRenewCmd())
	rootCmd.AddCommand(newVersionCmd())
}
