/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "tradebot",
	Short: "TradeAI Companion Telegram bot",
	Long: `Runs the TradeAI Companion Telegram bot and its operator tooling.

The serve command hosts the bot behind a webhook or long polling. The
webhook and profile commands inspect how the bot would be configured.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
