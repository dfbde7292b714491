package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tradebot/pkg/commands"
	"tradebot/pkg/config"
	"tradebot/pkg/dispatch"
	"tradebot/pkg/lifecycle"
	"tradebot/pkg/store"
	"tradebot/pkg/transport"
	"tradebot/pkg/transport/transporttest"
	"tradebot/pkg/webhook"
)

const helpUpdate = `{"update_id":900,"message":{"message_id":1,"date":1700000000,"chat":{"id":321,"type":"private"},"from":{"id":9,"is_bot":false,"first_name":"Ada"},"text":"/help","entities":[{"type":"bot_command","offset":0,"length":5}]}}`

func runService(t *testing.T, cfg *config.Config, client *transporttest.Client) (*lifecycle.Manager, context.CancelFunc, <-chan error) {
	t.Helper()

	builder := &transporttest.Builder{Client: client}
	manager, err := lifecycle.New(lifecycle.ConfigFrom(cfg), lifecycle.Deps{
		Constructor: builder.Construct,
		Dispatcher:  dispatch.New(nil, nil),
	})
	require.NoError(t, err)

	handlers := func(c transport.Client) ([]dispatch.Descriptor, error) {
		set, err := commands.New(c, store.NewMemoryStore(), nil)
		if err != nil {
			return nil, err
		}
		return set.Descriptors(), nil
	}

	svc, err := NewService(cfg, manager, handlers, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- svc.Run(ctx)
	}()

	return manager, cancel, errCh
}

func waitRunExit(t *testing.T, errCh <-chan error) error {
	t.Helper()

	select {
	case err := <-errCh:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for service run to exit")
		return nil
	}
}

func TestGatewayServiceWebhookRoundTrip(t *testing.T) {
	port := freeTCPPort(t)
	cfg := config.Default()
	cfg.Gateway = config.GatewayConfig{Host: "127.0.0.1", Port: port}
	cfg.Webhook.URL = "https://bot.example.com/webhook"
	cfg.Webhook.SecretToken = "s3cret"

	client := transporttest.NewClient()
	manager, cancel, errCh := runService(t, cfg, client)
	defer cancel()

	base := fmt.Sprintf("http://127.0.0.1:%d", port)
	require.Equal(t, http.StatusOK, waitHTTPStatus(t, base+"/readyz", 2*time.Second))
	require.Len(t, client.SetWebhookCalls(), 1)
	require.Equal(t, "s3cret", client.SetWebhookCalls()[0].SecretToken)

	req, err := http.NewRequest(http.MethodPost, base+"/webhook", strings.NewReader(helpUpdate))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(webhook.SecretHeader, "s3cret")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.Eventually(t, func() bool { return len(client.Sent()) == 1 }, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, int64(321), client.Sent()[0].ChatID)
	require.Contains(t, client.Sent()[0].Text, "Available commands")

	cancel()
	require.NoError(t, waitRunExit(t, errCh))
	require.Equal(t, lifecycle.ShutDown, manager.State())
	require.True(t, client.Closed())
}

func TestGatewayServicePollingRoundTrip(t *testing.T) {
	port := freeTCPPort(t)
	cfg := config.Default()
	cfg.Gateway = config.GatewayConfig{Host: "127.0.0.1", Port: port}
	cfg.Telegram.Transport = config.TransportPolling

	client := transporttest.NewClient()
	manager, cancel, errCh := runService(t, cfg, client)
	defer cancel()

	require.Equal(t, http.StatusOK, waitHTTPStatus(t, fmt.Sprintf("http://127.0.0.1:%d/readyz", port), 2*time.Second))
	require.Equal(t, 1, client.DeleteWebhookCalls())

	client.Push(transport.InboundEvent{
		Seq:     1,
		Kind:    transport.KindText,
		Message: &transport.Message{ChatID: 77, Text: "hello"},
	})
	require.Eventually(t, func() bool { return len(client.Sent()) == 1 }, 2*time.Second, 10*time.Millisecond)
	require.Contains(t, client.Sent()[0].Text, "You said: hello")

	cancel()
	require.NoError(t, waitRunExit(t, errCh))
	require.Equal(t, lifecycle.ShutDown, manager.State())
}

func TestGatewayServiceStartFailureReleasesClient(t *testing.T) {
	cfg := config.Default()
	cfg.Gateway = config.GatewayConfig{Host: "127.0.0.1", Port: freeTCPPort(t)}
	cfg.Webhook.URL = "https://bot.example.com/webhook"

	client := transporttest.NewClient()
	client.SetWebhookErr = errors.New("Bad Request: bad webhook")
	manager, cancel, errCh := runService(t, cfg, client)
	defer cancel()

	err := waitRunExit(t, errCh)
	require.ErrorIs(t, err, client.SetWebhookErr)
	require.Equal(t, lifecycle.Initialized, manager.State())
	require.True(t, client.Closed())
}

func waitHTTPStatus(t *testing.T, url string, timeout time.Duration) int {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for {
		response, err := http.Get(url)
		if err == nil {
			statusCode := response.StatusCode
			require.NoError(t, response.Body.Close())
			if statusCode == http.StatusOK || time.Now().After(deadline) {
				return statusCode
			}
		} else if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s: %v", url, err)
		}

		time.Sleep(25 * time.Millisecond)
	}
}

func freeTCPPort(t *testing.T) int {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	addr, ok := listener.Addr().(*net.TCPAddr)
	require.True(t, ok)
	return addr.Port
}
