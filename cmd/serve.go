package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/eduspider/internal/api"
)

func newServeCmd() *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the read-only browsing API",
		Long: `Runs the JSON browsing API over the configured store along with
/healthz and Prometheus /metrics. The server shuts down gracefully on
SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("port") {
				port = appInstance.Config().Server.Port
			}
			addr := fmt.Sprintf(":%d", port)
			logger := appInstance.Logger()
			logger.Info("Starting browsing API", zap.String("addr", addr))

			srv := api.NewServer(appInstance.Catalog(), logger.Named("api"))
			if err := srv.ListenAndServe(cmd.Context(), addr); err != nil {
				return fmt.Errorf("serve api: %w", err)
			}
			logger.Info("Browsing API stopped")
			return nil
		},
	}
	cmd.Flags().IntVar(&port, "port", 5555, "listen port (overrides server.port)")
	return cmd
}
