/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/adfyer/apiserver/config"
	"github.com/adfyer/apiserver/internal/logging"
	"github.com/adfyer/apiserver/internal/mq"
	"github.com/adfyer/apiserver/internal/notify"
	"github.com/spf13/cobra"
)

// workerCmd represents the worker command
var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Delivers queued notifications",
	Long: `Consumes the notification queue (NOTIFY_BACKEND=rabbitmq or pubsub) and
delivers each message through Mailtrap, or to the log when MAILTRAP_TOKEN is unset.

	apiserver worker
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		logger := logging.Setup(cfg.Log.Format, cfg.Log.Level, cmd.ErrOrStderr())

		if cfg.Notify.Backend != config.NotifyRabbitMQ && cfg.Notify.Backend != config.NotifyPubSub {
			return fmt.Errorf("worker needs a queue backend, NOTIFY_BACKEND is %q", cfg.Notify.Backend)
		}

		queue, err := mq.Open(cmd.Context(), cfg)
		if err != nil {
			logging.LogError(logger, "failed to open queue", err)
			return err
		}
		defer queue.Close()

		var sender notify.Sender = notify.NewLogSender(logger, cfg.Notify.LogBodies)
		if cfg.Mailtrap.Token != "" {
			sender = notify.NewMailtrapSender(cfg.Mailtrap, nil)
		} else {
			logger.Warn("MAILTRAP_TOKEN is unset; notifications are written to the log")
		}

		logger.Info("worker consuming", "backend", cfg.Notify.Backend, "channel", queue.Channel())
		err = queue.Subscribe(cmd.Context(), notify.QueueHandler(sender, logger, nil))
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.LogError(logger, "worker stopped", err)
			return err
		}
		logger.Info("worker stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}
