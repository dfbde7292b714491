package webhook

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/mymmrac/telego"

	"tradebot/pkg/boterr"
	"tradebot/pkg/transport"
)

const (
	SecretHeader = "X-Telegram-Bot-Api-Secret-Token"

	maxBodyBytes int64 = 1 << 20 // 1 MiB
)

// Sink accepts one decoded update.
type Sink func(ctx context.Context, event transport.InboundEvent) error

// Receiver accepts Telegram webhook callbacks and hands them to a Sink.
type Receiver struct {
	log    *slog.Logger
	path   string
	secret string
	sink   Sink
}

// NewReceiver creates a receiver for cfg. Requests must carry cfg.SecretToken
// in the secret header when one is configured.
func NewReceiver(cfg Config, sink Sink, log *slog.Logger) *Receiver {
	if log == nil {
		log = slog.Default()
	}

	return &Receiver{
		log:    log.With(slog.String("handler", "telegram_webhook")),
		path:   cfg.Path(),
		secret: cfg.SecretToken,
		sink:   sink,
	}
}

// Path returns the route the receiver is mounted on.
func (r *Receiver) Path() string {
	return r.path
}

// Register mounts the callback route.
func (r *Receiver) Register(e *echo.Echo) {
	e.POST(r.path, r.Handle)
}

// Handle decodes one update and passes it to the sink. Handler failures are
// not reported to Telegram, otherwise it would redeliver the same update.
func (r *Receiver) Handle(c echo.Context) error {
	if r.sink == nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "webhook sink not configured")
	}

	if r.secret != "" {
		got := c.Request().Header.Get(SecretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(r.secret)) != 1 {
			r.log.Warn("Rejected webhook call with bad secret", "remote", c.RealIP())
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid secret token")
		}
	}

	payload, err := io.ReadAll(io.LimitReader(c.Request().Body, maxBodyBytes+1))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("read body: %v", err))
	}
	if int64(len(payload)) > maxBodyBytes {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, fmt.Sprintf("payload too large: max %d bytes", maxBodyBytes))
	}

	var update telego.Update
	if err := json.Unmarshal(payload, &update); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("decode update: %v", err))
	}

	event := transport.EventFromUpdate(update)
	if err := r.sink(c.Request().Context(), event); err != nil {
		if boterr.Is(err, boterr.InvalidTransition) {
			return echo.NewHTTPError(http.StatusServiceUnavailable, "bot is not accepting updates")
		}
		r.log.Error("Update delivery failed", "event_seq", event.Seq, "error", err)
	}

	return c.NoContent(http.StatusOK)
}
