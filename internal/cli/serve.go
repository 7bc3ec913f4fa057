package cli

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/golovatskygroup/mcp-toolkit/internal/app"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve tools over MCP (default command)",
	Long: `Serve builtin and custom tools over MCP. The transport is chosen by
server.transport: stdio (default) or http.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	cmd.SetContext(ctx)

	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		log.Info().
			Str("transport", a.Config.Server.Transport).
			Str("version", version).
			Msg("starting mcp-toolkit")
		return a.Serve(ctx)
	})
}
