/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"time"

	"github.com/adfyer/apiserver/config"
	"github.com/adfyer/apiserver/internal/logging"
	"github.com/adfyer/apiserver/internal/server"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 20 * time.Second

// serverCmd represents the server command
var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Starts the account API server",
	Long: `Starts the account API server. Usage:

	apiserver server
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		logger := logging.Setup(cfg.Log.Format, cfg.Log.Level, cmd.ErrOrStderr())

		srv, err := server.New(cmd.Context(), cfg, logger)
		if err != nil {
			logging.LogError(logger, "failed to start server", err)
			return err
		}

		errCh := make(chan error, 1)
		go func() {
			errCh <- srv.Start()
		}()

		select {
		case err := <-errCh:
			if err != nil {
				logging.LogError(logger, "server error", err)
			}
			shutdownErr := srv.Shutdown(context.Background())
			if err == nil {
				err = shutdownErr
			}
			return err
		case <-cmd.Context().Done():
			logger.Info("shutting down")
		}

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logging.LogError(logger, "shutdown incomplete", err)
			return err
		}
		return <-errCh
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
