/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"tradebot/pkg/config"
	"tradebot/pkg/scheduler"
	"tradebot/pkg/transport"
	"tradebot/pkg/webhook"
)

const webhookCallTimeout = 30 * time.Second

var webhookCmd = &cobra.Command{
	Use:   "webhook",
	Short: "Inspect and apply the Telegram webhook",
}

var webhookResolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Print the webhook URL the bot would register",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		resolved := webhook.Resolve(cfg.Webhook, operatorLogger())
		_, err = io.WriteString(cmd.OutOrStdout(), renderResolved(resolved))
		return err
	},
}

var webhookInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show the webhook currently registered with Telegram",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), webhookCallTimeout)
		defer cancel()

		client, err := operatorClient(ctx, cfg)
		if err != nil {
			return err
		}
		defer client.Close(ctx)

		info, err := client.GetWebhookInfo(ctx)
		if err != nil {
			return fmt.Errorf("get webhook info: %w", err)
		}

		_, err = io.WriteString(cmd.OutOrStdout(), renderInfo(info))
		return err
	},
}

var webhookApplyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Register the resolved webhook URL with Telegram",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), webhookCallTimeout)
		defer cancel()

		client, err := operatorClient(ctx, cfg)
		if err != nil {
			return err
		}
		defer client.Close(ctx)

		log := operatorLogger()
		resolved := webhook.Resolve(cfg.Webhook, log)
		applied, err := webhook.Apply(ctx, client, resolved, log)
		if err != nil {
			return err
		}

		_, err = io.WriteString(cmd.OutOrStdout(), renderReport("Webhook applied", []field{
			{Key: "url", Value: applied.URL},
			{Key: "source", Value: resolved.Source},
			{Key: "changed", Value: strconv.FormatBool(applied.Changed)},
			{Key: "pending updates", Value: strconv.Itoa(applied.PendingCount)},
		}))
		return err
	},
}

func init() {
	webhookCmd.AddCommand(webhookResolveCmd, webhookInfoCmd, webhookApplyCmd)
	rootCmd.AddCommand(webhookCmd)
}

// operatorClient builds a client for one-off API calls. No scheduler is needed.
func operatorClient(ctx context.Context, cfg *config.Config) (transport.Client, error) {
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		return nil, fmt.Errorf("TELEGRAM_API_TOKEN is not set")
	}

	client, _, err := scheduler.Construct(ctx, newClient, transport.Options{
		Token:    cfg.Telegram.Token,
		TimeZone: scheduler.UTC,
		Log:      operatorLogger(),
	}, scheduler.DefaultStrategies()[:1], operatorLogger())
	if err != nil {
		return nil, err
	}

	return client, nil
}

func renderResolved(cfg webhook.Config) string {
	return renderReport("Webhook", []field{
		{Key: "url", Value: cfg.URL, Warn: !strings.HasPrefix(cfg.URL, "https://")},
		{Key: "source", Value: cfg.Source},
		{Key: "path", Value: cfg.Path()},
		{Key: "drop pending", Value: strconv.FormatBool(cfg.DropPendingUpdates)},
		{Key: "allowed updates", Value: listOrAll(cfg.AllowedUpdates)},
		{Key: "secret token", Value: strconv.FormatBool(cfg.SecretToken != "")},
	})
}

func renderInfo(info transport.WebhookInfo) string {
	url := info.URL
	if url == "" {
		url = "(none)"
	}

	fields := []field{
		{Key: "url", Value: url, Warn: info.URL == ""},
		{Key: "pending updates", Value: strconv.Itoa(info.PendingUpdateCount)},
		{Key: "max connections", Value: strconv.Itoa(info.MaxConnections)},
		{Key: "allowed updates", Value: listOrAll(info.AllowedUpdates)},
	}
	if info.LastErrorMessage != "" {
		fields = append(fields, field{
			Key:   "last error",
			Value: fmt.Sprintf("%s (%s)", info.LastErrorMessage, info.LastErrorDate.UTC().Format(time.RFC3339)),
			Warn:  true,
		})
	}

	return renderReport("Webhook info", fields)
}

func listOrAll(values []string) string {
	if len(values) == 0 {
		return "all"
	}
	return strings.Join(values, ",")
}

// operatorLogger is the logger shared by the one-off operator commands.
func operatorLogger() *slog.Logger {
	return slog.Default().With("component", "cmd.webhook")
}
