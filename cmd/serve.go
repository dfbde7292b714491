/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"tradebot/pkg/bus"
	"tradebot/pkg/commands"
	"tradebot/pkg/config"
	"tradebot/pkg/dispatch"
	"tradebot/pkg/gateway"
	"tradebot/pkg/lifecycle"
	"tradebot/pkg/logger"
	"tradebot/pkg/memprofile"
	"tradebot/pkg/store"
	"tradebot/pkg/transport"
)

// newClient builds the transport client; tests swap it for a fake.
var newClient transport.Constructor = transport.NewTelegramClient

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the bot",
	Long:  "Runs the bot with health, readiness and status endpoints, receiving updates by webhook or long polling until interrupted.",
	RunE: func(cmd *cobra.Command, args []string) error {
		_ = args

		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		appLogger, err := logger.New(cfg.Logging)
		if err != nil {
			return fmt.Errorf("initialize logger: %w", err)
		}
		slog.SetDefault(appLogger)
		log := slog.Default().With("component", "cmd.serve")

		runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		err = runServe(runCtx, cfg, log)
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Error("Bot runtime failed", "error", err)
			return err
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// runServe wires the bot from cfg and runs it until ctx ends.
func runServe(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		return errors.New("TELEGRAM_API_TOKEN is not set")
	}

	profile := memprofile.FromConfig(cfg.Memory, log)

	users, err := store.Open(ctx, cfg.Database, profile, log)
	if err != nil {
		return fmt.Errorf("open user store: %w", err)
	}
	defer users.Close()

	events := bus.New()
	defer events.Close()
	sub, unsubscribe := events.Subscribe(ctx, 64)
	defer unsubscribe()
	go logEvents(sub, log)

	manager, err := lifecycle.New(lifecycle.ConfigFrom(cfg), lifecycle.Deps{
		Constructor: newClient,
		Dispatcher:  dispatch.New(log, events),
		Bus:         events,
		Log:         log,
	})
	if err != nil {
		return err
	}

	handlers := func(client transport.Client) ([]dispatch.Descriptor, error) {
		set, err := commands.New(client, users, log)
		if err != nil {
			return nil, err
		}
		return set.Descriptors(), nil
	}

	svc, err := gateway.NewService(cfg, manager, handlers, log)
	if err != nil {
		return fmt.Errorf("initialize gateway service: %w", err)
	}

	log.Info("Bot starting", "transport", transportName(cfg), "memory", profile)
	return svc.Run(ctx)
}

// logEvents mirrors bus events into the log until the subscription ends.
func logEvents(sub <-chan bus.Event, log *slog.Logger) {
	for event := range sub {
		attrs := []any{"type", string(event.Type)}
		if event.State != "" {
			attrs = append(attrs, "state", event.State)
		}
		if event.Seq != 0 {
			attrs = append(attrs, "event_seq", event.Seq)
		}
		if event.Handler != "" {
			attrs = append(attrs, "handler", event.Handler)
		}

		switch event.Type {
		case bus.EventHandlerFailed, bus.EventDrainTimeout:
			log.Warn("Bot event", append(attrs, "error", event.Error)...)
		default:
			log.Debug("Bot event", attrs...)
		}
	}
}

func transportName(cfg *config.Config) string {
	if cfg.Telegram.UsePolling() {
		return config.TransportPolling
	}
	return config.TransportWebhook
}
