package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
)

// TelegramClient is the telego-backed Client.
type TelegramClient struct {
	bot *telego.Bot
	log *slog.Logger

	mu        sync.Mutex
	scheduler Scheduler
}

// NewTelegramClient is the production Constructor.
func NewTelegramClient(_ context.Context, opts Options) (Client, error) {
	token := strings.TrimSpace(opts.Token)
	if token == "" {
		return nil, errors.New("telegram token is required")
	}

	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "transport.telegram")

	bot, err := telego.NewBot(token, telego.WithLogger(botLogger{log: log}))
	if err != nil {
		return nil, fmt.Errorf("initialize telegram bot: %w", err)
	}

	client := &TelegramClient{bot: bot, log: log}

	if opts.DisableScheduler || opts.NewScheduler == nil {
		return client, nil
	}

	scheduler, err := opts.NewScheduler(opts.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("initialize job scheduler: %w", err)
	}
	client.scheduler = scheduler

	return client, nil
}

func (c *TelegramClient) SetWebhook(ctx context.Context, params WebhookParams) error {
	return c.bot.SetWebhook(ctx, &telego.SetWebhookParams{
		URL:                params.URL,
		DropPendingUpdates: params.DropPendingUpdates,
		AllowedUpdates:     params.AllowedUpdates,
		SecretToken:        params.SecretToken,
	})
}

func (c *TelegramClient) GetWebhookInfo(ctx context.Context) (WebhookInfo, error) {
	info, err := c.bot.GetWebhookInfo(ctx)
	if err != nil {
		return WebhookInfo{}, err
	}

	result := WebhookInfo{
		URL:                info.URL,
		PendingUpdateCount: info.PendingUpdateCount,
		MaxConnections:     info.MaxConnections,
		AllowedUpdates:     info.AllowedUpdates,
		LastErrorMessage:   info.LastErrorMessage,
	}
	if info.LastErrorDate > 0 {
		result.LastErrorDate = time.Unix(info.LastErrorDate, 0).UTC()
	}

	return result, nil
}

func (c *TelegramClient) DeleteWebhook(ctx context.Context, dropPending bool) error {
	return c.bot.DeleteWebhook(ctx, &telego.DeleteWebhookParams{DropPendingUpdates: dropPending})
}

// Updates starts long polling. The returned channel closes when ctx ends or
// the underlying poller stops.
func (c *TelegramClient) Updates(ctx context.Context) (<-chan InboundEvent, error) {
	updates, err := c.bot.UpdatesViaLongPolling(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("start long polling: %w", err)
	}

	events := make(chan InboundEvent)
	go func() {
		defer close(events)
		for update := range updates {
			select {
			case <-ctx.Done():
				return
			case events <- EventFromUpdate(update):
			}
		}
	}()

	return events, nil
}

func (c *TelegramClient) SendMessage(ctx context.Context, chatID int64, text string) error {
	_, err := c.bot.SendMessage(ctx, tu.Message(tu.ID(chatID), text))
	return err
}

func (c *TelegramClient) Scheduler() Scheduler {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.scheduler
}

func (c *TelegramClient) ReplaceScheduler(scheduler Scheduler) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scheduler = scheduler
	return nil
}

// Close stops the scheduler if one is attached. The telego bot holds no
// resources beyond its HTTP client.
func (c *TelegramClient) Close(_ context.Context) error {
	c.mu.Lock()
	scheduler := c.scheduler
	c.scheduler = nil
	c.mu.Unlock()

	if scheduler != nil {
		scheduler.Stop()
	}

	c.log.Debug("Telegram client released")
	return nil
}

// botLogger routes telego's internal logging into slog.
type botLogger struct {
	log *slog.Logger
}

func (l botLogger) Debugf(format string, args ...any) {
	l.log.Debug(fmt.Sprintf(format, args...))
}

func (l botLogger) Errorf(format string, args ...any) {
	l.log.Error(fmt.Sprintf(format, args...))
}
