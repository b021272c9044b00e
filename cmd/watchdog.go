package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/joinly-ai/joinly/internal/watchdog"
)

func newWatchdogCmd() *cobra.Command {
	var (
		host     string
		port     int
		viewer   string
		interval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "watchdog",
		Short: "Attach a VNC viewer to the debug display",
		Long: `Poll a VNC endpoint and launch a viewer once the server comes up. Used
together with "serve --vnc-server" to watch the browser while the bot is
in a meeting. The viewer is relaunched whenever the server disappears
and comes back.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogging(false)

			ctx, cancel := signal.NotifyContext(context.Background(),
				os.Interrupt, syscall.SIGTERM)
			defer cancel()

			w := watchdog.New(watchdog.Config{
				Host:     host,
				Port:     port,
				Viewer:   viewer,
				Interval: interval,
			})
			if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "VNC server host")
	cmd.Flags().IntVar(&port, "port", 5900, "VNC server port")
	cmd.Flags().StringVar(&viewer, "viewer", "vncviewer", "Viewer executable, resolved on PATH")
	cmd.Flags().DurationVar(&interval, "interval", 2*time.Second, "Poll interval")

	return cmd
}
