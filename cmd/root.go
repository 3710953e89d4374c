/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "apiserver",
	Short: "Adfyer account API server",
	Long: `Adfyer account API server: registration, sign-in and password reset.

	apiserver server       serve the HTTP API
	apiserver migrate up   prepare the account store
	apiserver worker       deliver queued notifications
`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and runs it until
// SIGINT or SIGTERM.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
