package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	httpDelivery "github.com/rxlens/backend/internal/delivery/http"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the matching API server",
	Long:  `Starts the HTTP server exposing lookup, search, batch-match, statistics and export endpoints.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		handler := httpDelivery.NewHandler(a.matcher, a.log)
		router := httpDelivery.SetupRouter(a.cfg, handler, a.log)

		addr := ":" + a.cfg.Server.Port
		a.log.Info("server listening",
			zap.String("addr", addr),
			zap.String("environment", a.cfg.Server.Environment))

		return router.Run(addr)
	},
}

func init() {
	RootCmd.AddCommand(serveCmd)
}
