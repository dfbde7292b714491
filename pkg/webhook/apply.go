package webhook

import (
	"context"
	"log/slog"
	"slices"
	"strings"

	"tradebot/pkg/boterr"
	"tradebot/pkg/transport"
)

// Applied describes the remote registration after Apply.
type Applied struct {
	URL          string
	Changed      bool
	PendingCount int
}

// Apply registers cfg with the transport client. The registration call is
// skipped only when the remote side already matches cfg and there is no
// secret token to re-send, since the remote never reports its secret.
// Changed reports whether the registered URL moved. Every failure is a
// webhook_application error.
func Apply(ctx context.Context, client transport.Client, cfg Config, log *slog.Logger) (Applied, error) {
	if client == nil {
		return Applied{}, boterr.New(boterr.WebhookApplication, "no transport client")
	}
	if strings.TrimSpace(cfg.URL) == "" {
		return Applied{}, boterr.New(boterr.WebhookApplication, "empty webhook url")
	}
	if log == nil {
		log = slog.Default()
	}

	current, err := client.GetWebhookInfo(ctx)
	if err != nil {
		return Applied{}, boterr.Wrap(boterr.WebhookApplication, "get webhook info", err)
	}

	if current.URL == cfg.URL && cfg.SecretToken == "" && sameUpdates(current.AllowedUpdates, cfg.AllowedUpdates) {
		log.Info("Webhook already registered", "url", cfg.URL, "pending_updates", current.PendingUpdateCount)
		return Applied{URL: cfg.URL, PendingCount: current.PendingUpdateCount}, nil
	}

	err = client.SetWebhook(ctx, transport.WebhookParams{
		URL:                cfg.URL,
		DropPendingUpdates: cfg.DropPendingUpdates,
		AllowedUpdates:     cfg.AllowedUpdates,
		SecretToken:        cfg.SecretToken,
	})
	if err != nil {
		return Applied{}, boterr.Wrap(boterr.WebhookApplication, "set webhook "+cfg.URL, err)
	}

	verified, err := client.GetWebhookInfo(ctx)
	if err != nil {
		return Applied{}, boterr.Wrap(boterr.WebhookApplication, "verify webhook", err)
	}
	if verified.URL != cfg.URL {
		return Applied{}, boterr.New(boterr.WebhookApplication, "remote reports "+verified.URL+" after registering "+cfg.URL)
	}

	changed := current.URL != cfg.URL
	log.Info("Webhook registered", "url", cfg.URL, "previous_url", current.URL, "changed", changed, "pending_updates", verified.PendingUpdateCount)
	return Applied{URL: cfg.URL, Changed: changed, PendingCount: verified.PendingUpdateCount}, nil
}

// sameUpdates compares update type filters as sets. An empty requested list
// leaves whatever the remote has.
func sameUpdates(remote, requested []string) bool {
	if len(requested) == 0 {
		return true
	}

	a, b := slices.Clone(remote), slices.Clone(requested)
	slices.Sort(a)
	slices.Sort(b)
	return slices.Equal(slices.Compact(a), slices.Compact(b))
}
