package webhook

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"tradebot/pkg/boterr"
	"tradebot/pkg/transport/transporttest"
)

func TestApplyRegistersOnce(t *testing.T) {
	t.Parallel()

	client := transporttest.NewClient()
	cfg := Config{URL: "https://tradeai.example.com/webhook", DropPendingUpdates: true, AllowedUpdates: []string{"message"}}

	first, err := Apply(context.Background(), client, cfg, nil)
	require.NoError(t, err)
	require.True(t, first.Changed)
	require.Equal(t, cfg.URL, first.URL)

	second, err := Apply(context.Background(), client, cfg, nil)
	require.NoError(t, err)
	require.False(t, second.Changed)

	calls := client.SetWebhookCalls()
	require.Len(t, calls, 1)
	require.Equal(t, cfg.URL, calls[0].URL)
	require.True(t, calls[0].DropPendingUpdates)
}

func TestApplyResendsRotatedSecret(t *testing.T) {
	t.Parallel()

	client := transporttest.NewClient()
	cfg := Config{URL: "https://tradeai.example.com/webhook", SecretToken: "old"}

	_, err := Apply(context.Background(), client, cfg, nil)
	require.NoError(t, err)

	cfg.SecretToken = "new"
	applied, err := Apply(context.Background(), client, cfg, nil)
	require.NoError(t, err)
	require.False(t, applied.Changed)

	calls := client.SetWebhookCalls()
	require.Len(t, calls, 2)
	require.Equal(t, "new", calls[1].SecretToken)
	require.Equal(t, cfg.URL, calls[1].URL)
}

func TestApplyResendsChangedUpdateFilter(t *testing.T) {
	t.Parallel()

	client := transporttest.NewClient()
	cfg := Config{URL: "https://tradeai.example.com/webhook", AllowedUpdates: []string{"message"}}

	_, err := Apply(context.Background(), client, cfg, nil)
	require.NoError(t, err)

	cfg.AllowedUpdates = []string{"callback_query", "message"}
	applied, err := Apply(context.Background(), client, cfg, nil)
	require.NoError(t, err)
	require.False(t, applied.Changed)
	require.Len(t, client.SetWebhookCalls(), 2)

	info, err := client.GetWebhookInfo(context.Background())
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"message", "callback_query"}, info.AllowedUpdates)

	cfg.AllowedUpdates = []string{"message", "callback_query"}
	_, err = Apply(context.Background(), client, cfg, nil)
	require.NoError(t, err)
	require.Len(t, client.SetWebhookCalls(), 2)
}

func TestApplyReplacesStaleRegistration(t *testing.T) {
	t.Parallel()

	client := transporttest.NewClient()
	_, err := Apply(context.Background(), client, Config{URL: "https://old.example.com/webhook"}, nil)
	require.NoError(t, err)

	applied, err := Apply(context.Background(), client, Config{URL: "https://new.example.com/webhook"}, nil)
	require.NoError(t, err)
	require.True(t, applied.Changed)

	info, err := client.GetWebhookInfo(context.Background())
	require.NoError(t, err)
	require.Equal(t, "https://new.example.com/webhook", info.URL)
	require.Len(t, client.SetWebhookCalls(), 2)
}

func TestApplyKeepsPendingWhenNotDropping(t *testing.T) {
	t.Parallel()

	client := transporttest.NewClient()
	client.SetPending(7)

	applied, err := Apply(context.Background(), client, Config{URL: "https://bot.example.com/webhook", DropPendingUpdates: false}, nil)
	require.NoError(t, err)
	require.Equal(t, 7, applied.PendingCount)
}

func TestApplyFailuresAreCategorized(t *testing.T) {
	t.Parallel()

	rejected := errors.New("Bad Request: bad webhook: HTTPS url must be provided")

	tests := []struct {
		name   string
		client func() *transporttest.Client
		cfg    Config
	}{
		{
			name:   "set webhook rejected",
			client: func() *transporttest.Client { c := transporttest.NewClient(); c.SetWebhookErr = rejected; return c },
			cfg:    Config{URL: "http://insecure.example.com/webhook"},
		},
		{
			name:   "info unavailable",
			client: func() *transporttest.Client { c := transporttest.NewClient(); c.GetWebhookInfoErr = rejected; return c },
			cfg:    Config{URL: "https://bot.example.com/webhook"},
		},
		{
			name:   "empty url",
			client: transporttest.NewClient,
			cfg:    Config{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := Apply(context.Background(), tt.client(), tt.cfg, nil)
			require.Error(t, err)
			require.True(t, boterr.Is(err, boterr.WebhookApplication))
		})
	}
}

func TestApplyWithoutClient(t *testing.T) {
	t.Parallel()

	_, err := Apply(context.Background(), nil, Config{URL: "https://bot.example.com/webhook"}, nil)
	require.True(t, boterr.Is(err, boterr.WebhookApplication))
}
