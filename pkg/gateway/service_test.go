package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"tradebot/pkg/config"
	"tradebot/pkg/dispatch"
	"tradebot/pkg/lifecycle"
	"tradebot/pkg/transport"
	"tradebot/pkg/transport/transporttest"
)

func noHandlers(transport.Client) ([]dispatch.Descriptor, error) {
	return nil, nil
}

func newTestService(t *testing.T, cfg *config.Config) (*Service, *lifecycle.Manager, *transporttest.Client) {
	t.Helper()

	client := transporttest.NewClient()
	builder := &transporttest.Builder{Client: client}
	manager, err := lifecycle.New(lifecycle.ConfigFrom(cfg), lifecycle.Deps{
		Constructor: builder.Construct,
		Dispatcher:  dispatch.New(nil, nil),
	})
	require.NoError(t, err)

	svc, err := NewService(cfg, manager, noHandlers, nil)
	require.NoError(t, err)
	return svc, manager, client
}

func get(t *testing.T, h http.Handler, path string) (int, statusResponse) {
	t.Helper()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	var body statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec.Code, body
}

func TestReadyzFollowsLifecycle(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Webhook.URL = "https://bot.example.com/webhook"
	svc, manager, _ := newTestService(t, cfg)
	ctx := context.Background()

	code, body := get(t, svc.Handler(), "/healthz")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "ok", body.Status)

	code, body = get(t, svc.Handler(), "/readyz")
	require.Equal(t, http.StatusServiceUnavailable, code)
	require.Equal(t, "not_ready", body.Status)

	require.NoError(t, manager.Initialize(ctx))
	require.NoError(t, manager.Start(ctx))

	code, body = get(t, svc.Handler(), "/readyz")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "started", body.Bot.State)

	require.NoError(t, manager.Stop(ctx))
	code, _ = get(t, svc.Handler(), "/readyz")
	require.Equal(t, http.StatusServiceUnavailable, code)
}

func TestStatusListsHandlers(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	svc, manager, _ := newTestService(t, cfg)
	ctx := context.Background()

	require.NoError(t, manager.Initialize(ctx))
	require.NoError(t, manager.RegisterHandlers(dispatch.Descriptor{
		Label:  "start",
		Match:  dispatch.Command("start"),
		Handle: func(context.Context, transport.InboundEvent) error { return nil },
	}))

	code, body := get(t, svc.Handler(), "/status")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "initialized", body.Status)
	require.Equal(t, []string{"group 0: command /start (start)"}, body.Handlers)
	require.Equal(t, config.TransportWebhook, body.Bot.Mode)
}

func TestWebhookRouteOnlyInWebhookMode(t *testing.T) {
	t.Parallel()

	polling := config.Default()
	polling.Telegram.Transport = config.TransportPolling
	svc, _, _ := newTestService(t, polling)
	require.Nil(t, svc.receiver)

	rec := httptest.NewRecorder()
	svc.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhook", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	hooked := config.Default()
	hooked.Webhook.URL = "https://bot.example.com/tg/updates"
	svc, _, _ = newTestService(t, hooked)
	require.NotNil(t, svc.receiver)
	require.Equal(t, "/tg/updates", svc.receiver.Path())
}

func TestNewServiceValidates(t *testing.T) {
	t.Parallel()

	_, err := NewService(nil, nil, noHandlers, nil)
	require.Error(t, err)

	_, manager, _ := newTestService(t, config.Default())
	_, err = NewService(config.Default(), manager, nil, nil)
	require.Error(t, err)
}

func TestListenAddrDefaults(t *testing.T) {
	t.Parallel()

	svc := &Service{cfg: config.Default()}
	require.Equal(t, "0.0.0.0:8080", svc.listenAddr())

	svc.cfg.Gateway = config.GatewayConfig{Host: "127.0.0.1", Port: 10000}
	require.Equal(t, "127.0.0.1:10000", svc.listenAddr())
}
