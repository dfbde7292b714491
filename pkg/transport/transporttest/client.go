// Package transporttest provides an in-memory transport client for tests.
package transporttest

import (
	"context"
	"errors"
	"slices"
	"sync"

	"tradebot/pkg/transport"
)

// SentMessage records one SendMessage call.
type SentMessage struct {
	ChatID int64
	Text   string
}

// Client is an in-memory transport.Client. Webhook state behaves like the
// remote side: setting the same URL twice leaves one registration.
type Client struct {
	SetWebhookErr     error
	GetWebhookInfoErr error
	DeleteWebhookErr  error
	UpdatesErr        error
	SendErr           error
	ReplaceErr        error

	// HoldUpdates, when set, keeps the update stream open after its context
	// ends until the channel is closed.
	HoldUpdates chan struct{}

	mu              sync.Mutex
	webhook         transport.WebhookInfo
	setWebhookCalls []transport.WebhookParams
	deleteCalls     int
	sent            []SentMessage
	scheduler       transport.Scheduler
	closed          bool
	updates         chan transport.InboundEvent
}

// NewClient returns a fake client with an empty webhook registration.
func NewClient() *Client {
	return &Client{updates: make(chan transport.InboundEvent, 16)}
}

func (c *Client) SetWebhook(_ context.Context, params transport.WebhookParams) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.setWebhookCalls = append(c.setWebhookCalls, params)
	if c.SetWebhookErr != nil {
		return c.SetWebhookErr
	}

	c.webhook.URL = params.URL
	c.webhook.AllowedUpdates = slices.Clone(params.AllowedUpdates)
	if params.DropPendingUpdates {
		c.webhook.PendingUpdateCount = 0
	}

	return nil
}

func (c *Client) GetWebhookInfo(context.Context) (transport.WebhookInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.GetWebhookInfoErr != nil {
		return transport.WebhookInfo{}, c.GetWebhookInfoErr
	}

	return c.webhook, nil
}

func (c *Client) DeleteWebhook(_ context.Context, dropPending bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.deleteCalls++
	if c.DeleteWebhookErr != nil {
		return c.DeleteWebhookErr
	}

	c.webhook.URL = ""
	if dropPending {
		c.webhook.PendingUpdateCount = 0
	}

	return nil
}

// Updates streams events pushed with Push until ctx ends.
func (c *Client) Updates(ctx context.Context) (<-chan transport.InboundEvent, error) {
	if c.UpdatesErr != nil {
		return nil, c.UpdatesErr
	}

	out := make(chan transport.InboundEvent)
	hold := c.HoldUpdates
	go func() {
		defer func() {
			if hold != nil {
				<-hold
			}
			close(out)
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case event := <-c.updates:
				select {
				case <-ctx.Done():
					return
				case out <- event:
				}
			}
		}
	}()

	return out, nil
}

// Push queues an event for the long-poll stream.
func (c *Client) Push(event transport.InboundEvent) {
	c.updates <- event
}

func (c *Client) SendMessage(_ context.Context, chatID int64, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.SendErr != nil {
		return c.SendErr
	}

	c.sent = append(c.sent, SentMessage{ChatID: chatID, Text: text})
	return nil
}

func (c *Client) Scheduler() transport.Scheduler {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.scheduler
}

func (c *Client) ReplaceScheduler(scheduler transport.Scheduler) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ReplaceErr != nil {
		return c.ReplaceErr
	}

	c.scheduler = scheduler
	return nil
}

func (c *Client) Close(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return errors.New("client already closed")
	}
	c.closed = true
	return nil
}

// SetWebhookCalls returns a copy of every SetWebhook request received.
func (c *Client) SetWebhookCalls() []transport.WebhookParams {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.setWebhookCalls)
}

// DeleteWebhookCalls returns how many times DeleteWebhook was called.
func (c *Client) DeleteWebhookCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deleteCalls
}

// Sent returns a copy of every message sent.
func (c *Client) Sent() []SentMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.sent)
}

// Closed reports whether Close was called.
func (c *Client) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// SetPending seeds the pending update count reported by GetWebhookInfo.
func (c *Client) SetPending(count int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.webhook.PendingUpdateCount = count
}

// Builder is a transport.Constructor backed by one fake client. Fail lets a
// test reject individual construction attempts by call number (1-based).
type Builder struct {
	Client *Client
	Fail   func(call int, opts transport.Options) error

	mu    sync.Mutex
	calls []transport.Options
}

// Construct implements transport.Constructor. Like the real client, it builds
// a scheduler from the factory unless the scheduler is disabled.
func (b *Builder) Construct(_ context.Context, opts transport.Options) (transport.Client, error) {
	b.mu.Lock()
	b.calls = append(b.calls, opts)
	call := len(b.calls)
	b.mu.Unlock()

	if b.Fail != nil {
		if err := b.Fail(call, opts); err != nil {
			return nil, err
		}
	}

	client := b.Client
	if client == nil {
		client = NewClient()
		b.Client = client
	}

	if !opts.DisableScheduler && opts.NewScheduler != nil {
		scheduler, err := opts.NewScheduler(opts.TimeZone)
		if err != nil {
			return nil, err
		}
		client.mu.Lock()
		client.scheduler = scheduler
		client.mu.Unlock()
	}

	return client, nil
}

// Calls returns the options of every construction attempt.
func (b *Builder) Calls() []transport.Options {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.calls)
}
