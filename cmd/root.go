package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command for the freetime application
var rootCmd = &cobra.Command{
	Use:   "freetime",
	Short: "Shows your free time across Microsoft and Google calendars",
	Long: `freetime merges the busy time of your Microsoft 365 and Google calendars
and shows the free slots inside your work hours.

It can run as:
  - A standalone CLI tool (default: 'freetime free')
  - An MCP (Model Context Protocol) server for AI assistants

Nothing is stored on a server. Microsoft tokens live in a session directory
that disappears when you log out; Google tokens only live in memory.`,
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
	rootCmd.SetVersionTemplate(`{{printf "freetime version %s\n" .Version}}`)

	// If no subcommand is provided, show today's free time
	if len(os.Args) == 1 {
		os.Args = append(os.Args, "free")
	}

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&globals.configFile, "config", "", "Config file (default: $XDG_CONFIG_HOME/freetime/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&globals.debug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(newFreeCmd())
	rootCmd.AddCommand(newConnectCmd())
	rootCmd.AddCommand(newDisconnectCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newPanicCmd())
	rootCmd.AddCommand(newViewsCmd())
	rootCmd.AddCommand(newWorkHoursCmd())
	rootCmd.AddCommand(newColorsCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newGenerateDocsCmd())
	rootCmd.AddCommand(newVersionCmd())
}
