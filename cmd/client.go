package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/joinly-ai/joinly/internal/client"
	"github.com/joinly-ai/joinly/internal/config"
)

// DefaultServerURL is where a locally started joinly server listens.
const DefaultServerURL = "http://localhost:8000/mcp/"

func newClientCmd() *cobra.Command {
	var (
		serverURL   string
		name        string
		lang        string
		modelName   string
		modelProv   string
		nameTrigger bool
	)

	cmd := &cobra.Command{
		Use:   "client <meeting-url>",
		Short: "Join a meeting as a conversational participant",
		Long: `Connect to a running joinly server, join the given meeting and hold a
conversation: utterances from the live transcript are fed to a language
model which answers through the speak and chat tools.

The model is selected via --model-name/--model-provider or the
JOINLY_MODEL_NAME and JOINLY_MODEL_PROVIDER env vars. API keys come from
the environment: OPENAI_API_KEY, ANTHROPIC_API_KEY, or the
AZURE_OPENAI_* variables.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClient(client.Config{
				ServerURL:     serverURL,
				MeetingURL:    args[0],
				Name:          name,
				Lang:          lang,
				ModelName:     modelName,
				ModelProvider: modelProv,
				NameTrigger:   nameTrigger,
			})
		},
	}

	cmd.Flags().StringVar(&serverURL, "url", DefaultServerURL, "MCP endpoint of the joinly server")
	cmd.Flags().StringVarP(&name, "name", "n", config.DefaultName, "Participant name. Can also use JOINLY_NAME env var.")
	cmd.Flags().StringVar(&lang, "lang", "", "Language hint for the conversation. Can also use JOINLY_LANG env var.")
	cmd.Flags().StringVar(&modelName, "model-name", "", "Chat model name. Can also use JOINLY_MODEL_NAME env var.")
	cmd.Flags().StringVar(&modelProv, "model-provider", "", "Chat model provider: openai, anthropic or azure. Can also use JOINLY_MODEL_PROVIDER env var.")
	cmd.Flags().BoolVar(&nameTrigger, "name-trigger", false, "Only respond to utterances that mention the participant name")

	return cmd
}

func runClient(cfg client.Config) error {
	setupLogging(false)

	if v := os.Getenv("JOINLY_NAME"); v != "" && cfg.Name == config.DefaultName {
		cfg.Name = v
	}
	if v := os.Getenv("JOINLY_LANG"); v != "" && cfg.Lang == "" {
		cfg.Lang = v
	}

	ctx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	c, err := client.New(cfg)
	if err != nil {
		return err
	}
	if err := c.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
