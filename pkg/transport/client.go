package transport

import (
	"context"
	"log/slog"
	"time"
)

// Client is the transport boundary the lifecycle manager drives.
type Client interface {
	SetWebhook(ctx context.Context, params WebhookParams) error
	GetWebhookInfo(ctx context.Context) (WebhookInfo, error)
	DeleteWebhook(ctx context.Context, dropPending bool) error
	// Updates starts long polling and streams converted events until ctx ends.
	Updates(ctx context.Context) (<-chan InboundEvent, error)
	SendMessage(ctx context.Context, chatID int64, text string) error

	// Scheduler returns the client's background job scheduler, nil when disabled.
	Scheduler() Scheduler
	ReplaceScheduler(Scheduler) error

	Close(ctx context.Context) error
}

// WebhookParams is one webhook registration request.
type WebhookParams struct {
	URL                string
	DropPendingUpdates bool
	AllowedUpdates     []string
	SecretToken        string
}

// WebhookInfo is the remote view of the current webhook registration.
type WebhookInfo struct {
	URL                string
	PendingUpdateCount int
	MaxConnections     int
	AllowedUpdates     []string
	LastErrorMessage   string
	LastErrorDate      time.Time
}

// Scheduler runs delayed and periodic jobs on behalf of the client.
type Scheduler interface {
	Start()
	Stop()
}

// TimeZoneProvider supplies the location the scheduler computes run times in.
type TimeZoneProvider func() (*time.Location, error)

// SchedulerFactory builds a scheduler bound to the given time zone source.
type SchedulerFactory func(TimeZoneProvider) (Scheduler, error)

// Options are the client construction inputs.
type Options struct {
	Token            string
	TimeZone         TimeZoneProvider
	NewScheduler     SchedulerFactory
	DisableScheduler bool
	Log              *slog.Logger
}

// Constructor builds a Client from Options.
type Constructor func(ctx context.Context, opts Options) (Client, error)
