package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/joinly-ai/joinly/internal/client"
	"github.com/joinly-ai/joinly/internal/config"
	"github.com/joinly-ai/joinly/internal/logging"
)

// rootCmd represents the base command for the joinly application
var rootCmd = &cobra.Command{
	Use:   "joinly",
	Short: "Joins video meetings as a conversational participant",
	Long: `joinly is an MCP (Model Context Protocol) server that joins browser-based
video meetings (Google Meet, Microsoft Teams, Zoom) and exposes tools to
speak, listen, chat and read the live transcript.

It can run as:
  - An MCP server over streamable HTTP or stdio (default)
  - A conversational client driving a running joinly server (client)`,
	SilenceUsage: true,
	Args:         cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if clientURL == "" {
			return cmd.Help()
		}
		if len(args) != 1 {
			return fmt.Errorf("--client requires a meeting URL argument")
		}
		return runClient(client.Config{
			ServerURL:  clientURL,
			MeetingURL: args[0],
			Name:       config.DefaultName,
		})
	},
}

var (
	verbosity    int
	quiet        bool
	loggingPlain bool

	// clientURL switches the root command into client mode, a shorthand
	// for the client subcommand.
	clientURL string
)

// version will be set by main
var version = "dev"

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "joinly version %s\n" .Version}}`)

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
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "Increase log verbosity (repeatable: -v debug, -vv debug with source locations)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Log errors only")
	rootCmd.PersistentFlags().BoolVar(&loggingPlain, "logging-plain", false, "Human-readable log output instead of JSON. Can also use JOINLY_LOGGING_PLAIN env var.")
	rootCmd.Flags().StringVar(&clientURL, "client", "", "Run as a client against the given joinly MCP endpoint (shorthand for the client subcommand)")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newClientCmd())
	rootCmd.AddCommand(newWatchdogCmd())
	rootCmd.AddCommand(newVersionCmd())
}

// setupLogging installs the global logger from the persistent flags.
// Logs always go to stderr so the stdio transport keeps stdout clean.
func setupLogging(plain bool) {
	slog.SetDefault(logging.Setup(logging.Options{
		Verbosity: verbosity,
		Quiet:     quiet,
		Plain:     plain || loggingPlain,
	}))
}
