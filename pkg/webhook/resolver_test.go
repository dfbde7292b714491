package webhook

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"tradebot/pkg/config"
)

func TestResolvePrecedence(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		src        config.WebhookConfig
		wantURL    string
		wantSource string
	}{
		{
			name:       "explicit wins",
			src:        config.WebhookConfig{URL: "https://bot.example.com/tg", ExternalURL: "https://ignored.example.com", ServiceName: "ignored"},
			wantURL:    "https://bot.example.com/tg",
			wantSource: SourceExplicit,
		},
		{
			name:       "external base gets webhook path",
			src:        config.WebhookConfig{ExternalURL: "https://tradeai.onrender.com/", ServiceName: "ignored"},
			wantURL:    "https://tradeai.onrender.com/webhook",
			wantSource: SourceExternal,
		},
		{
			name:       "service name fallback",
			src:        config.WebhookConfig{ServiceName: "signals-bot"},
			wantURL:    "https://signals-bot.onrender.com/webhook",
			wantSource: SourceFallback,
		},
		{
			name:       "default service name",
			src:        config.WebhookConfig{},
			wantURL:    "https://tradeai-companion.onrender.com/webhook",
			wantSource: SourceFallback,
		},
		{
			name:       "blank explicit is ignored",
			src:        config.WebhookConfig{URL: "   ", ExternalURL: "https://ext.example.com"},
			wantURL:    "https://ext.example.com/webhook",
			wantSource: SourceExternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := Resolve(tt.src, nil)
			require.Equal(t, tt.wantURL, cfg.URL)
			require.Equal(t, tt.wantSource, cfg.Source)
		})
	}
}

func TestResolveDropPendingDefaultsTrue(t *testing.T) {
	t.Parallel()

	require.True(t, Resolve(config.WebhookConfig{}, nil).DropPendingUpdates)

	keep := false
	require.False(t, Resolve(config.WebhookConfig{DropPendingUpdates: &keep}, nil).DropPendingUpdates)
}

func TestResolveWarnsOnPlainHTTP(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))

	cfg := Resolve(config.WebhookConfig{URL: "http://localhost:8080/webhook"}, log)
	require.Equal(t, "http://localhost:8080/webhook", cfg.URL)
	require.Contains(t, buf.String(), "Webhook URL should use HTTPS")
}

func TestResolveCopiesAllowedUpdates(t *testing.T) {
	t.Parallel()

	src := config.WebhookConfig{AllowedUpdates: []string{"message"}, SecretToken: " s3cret "}
	cfg := Resolve(src, nil)
	src.AllowedUpdates[0] = "edited_message"

	require.Equal(t, []string{"message"}, cfg.AllowedUpdates)
	require.Equal(t, "s3cret", cfg.SecretToken)
}

func TestConfigPath(t *testing.T) {
	t.Parallel()

	require.Equal(t, "/tg/hook", Config{URL: "https://bot.example.com/tg/hook"}.Path())
	require.Equal(t, DefaultPath, Config{URL: "https://bot.example.com"}.Path())
	require.Equal(t, DefaultPath, Config{}.Path())
}
