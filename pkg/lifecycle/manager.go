package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"tradebot/pkg/boterr"
	"tradebot/pkg/bus"
	"tradebot/pkg/config"
	"tradebot/pkg/dispatch"
	"tradebot/pkg/scheduler"
	"tradebot/pkg/transport"
	"tradebot/pkg/webhook"
)

const DefaultDrainTimeout = 10 * time.Second

// Config holds the settings the manager needs from the runtime config.
type Config struct {
	Token        string
	Polling      bool
	Webhook      config.WebhookConfig
	DrainTimeout time.Duration

	// NewScheduler overrides the cron-backed scheduler factory.
	NewScheduler transport.SchedulerFactory
}

// ConfigFrom maps the runtime config onto manager settings.
func ConfigFrom(cfg *config.Config) Config {
	if cfg == nil {
		return Config{}
	}

	return Config{
		Token:        cfg.Telegram.Token,
		Polling:      cfg.Telegram.UsePolling(),
		Webhook:      cfg.Webhook,
		DrainTimeout: time.Duration(cfg.Telegram.DrainTimeoutSeconds) * time.Second,
	}
}

// Deps are the collaborators the manager drives.
type Deps struct {
	Constructor transport.Constructor
	Strategies  []scheduler.Strategy
	Dispatcher  *dispatch.Dispatcher
	Bus         *bus.Bus
	Log         *slog.Logger
}

// Snapshot is a point-in-time view of the manager for status reporting.
type Snapshot struct {
	State      string    `json:"state"`
	Mode       string    `json:"mode"`
	Strategy   string    `json:"strategy,omitempty"`
	WebhookURL string    `json:"webhook_url,omitempty"`
	StartedAt  time.Time `json:"started_at,omitzero"`
	InFlight   int64     `json:"in_flight"`
	Handlers   int       `json:"handlers"`
	LastDrain  string    `json:"last_drain_error,omitempty"`
}

// Manager owns the transport client and moves the bot through
// Uninitialized, Initialized, Started, Stopped and ShutDown.
//
// Lifecycle operations are serialised. Deliver, Dispatch and State are safe
// to call from any goroutine.
type Manager struct {
	cfg        Config
	construct  transport.Constructor
	strategies []scheduler.Strategy
	dispatcher *dispatch.Dispatcher
	events     *bus.Bus
	log        *slog.Logger

	ops sync.Mutex

	mu           sync.RWMutex
	state        State
	accepting    bool
	client       transport.Client
	strategy     string
	startedAt    time.Time
	lastDrainErr error

	webhookOnce sync.Once
	webhook     webhook.Config

	inflight      sync.WaitGroup
	inflightCount atomic.Int64
	deliverCtx    context.Context
	deliverCancel context.CancelFunc
	pollCancel    context.CancelFunc
	pollDone      chan struct{}
}

// New creates a manager in the Uninitialized state.
func New(cfg Config, deps Deps) (*Manager, error) {
	if deps.Constructor == nil {
		return nil, errors.New("transport constructor is required")
	}
	if deps.Dispatcher == nil {
		return nil, errors.New("dispatcher is required")
	}
	if deps.Log == nil {
		deps.Log = slog.Default()
	}
	if len(deps.Strategies) == 0 {
		deps.Strategies = scheduler.DefaultStrategies()
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = DefaultDrainTimeout
	}

	return &Manager{
		cfg:        cfg,
		construct:  deps.Constructor,
		strategies: deps.Strategies,
		dispatcher: deps.Dispatcher,
		events:     deps.Bus,
		log:        deps.Log.With("component", "lifecycle"),
	}, nil
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Client returns the transport client built by Initialize, nil before it.
func (m *Manager) Client() transport.Client {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.client
}

// LastDrainErr returns the drain_timeout error recorded by the last Stop, if any.
func (m *Manager) LastDrainErr() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastDrainErr
}

// Webhook returns the resolved webhook registration. It is resolved once and
// reused by Start so the receiver and the registration always agree.
func (m *Manager) Webhook() webhook.Config {
	m.webhookOnce.Do(func() {
		m.webhook = webhook.Resolve(m.cfg.Webhook, m.log)
	})
	return m.webhook
}

// Handlers lists the registered handlers in dispatch order.
func (m *Manager) Handlers() []string {
	return m.dispatcher.Describe()
}

// Snapshot reports the manager's current status.
func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := Snapshot{
		State:     m.state.String(),
		Mode:      config.TransportWebhook,
		Strategy:  m.strategy,
		StartedAt: m.startedAt,
		InFlight:  m.inflightCount.Load(),
		Handlers:  m.dispatcher.Len(),
	}
	if m.cfg.Polling {
		snap.Mode = config.TransportPolling
	} else if m.state >= Started {
		snap.WebhookURL = m.webhook.URL
	}
	if m.lastDrainErr != nil {
		snap.LastDrain = m.lastDrainErr.Error()
	}

	return snap
}

// Initialize pins the scheduler time zone and builds the transport client
// through the construction strategies. On failure the state is unchanged.
func (m *Manager) Initialize(ctx context.Context) error {
	m.ops.Lock()
	defer m.ops.Unlock()

	if state := m.State(); state != Uninitialized {
		return boterr.Transition("initialize", state)
	}

	tz := scheduler.PinUTC(m.log)
	factory := m.cfg.NewScheduler
	if factory == nil {
		factory = scheduler.CronFactory(m.log)
	}

	opts := transport.Options{
		Token:        m.cfg.Token,
		TimeZone:     tz,
		NewScheduler: factory,
		Log:          m.log,
	}

	client, strategy, err := scheduler.Construct(ctx, m.construct, opts, m.strategies, m.log)
	if err != nil {
		m.log.Error("Bot initialization failed", "error", err)
		return err
	}

	m.mu.Lock()
	m.client = client
	m.strategy = strategy
	m.mu.Unlock()

	m.transition(Initialized)
	return nil
}

// RegisterHandlers adds descriptors to the dispatcher. Only allowed while
// Initialized.
func (m *Manager) RegisterHandlers(descs ...dispatch.Descriptor) error {
	m.ops.Lock()
	defer m.ops.Unlock()

	if state := m.State(); state != Initialized {
		return boterr.Transition("register handlers", state)
	}

	for _, desc := range descs {
		if err := m.dispatcher.Register(desc); err != nil {
			return fmt.Errorf("register %q: %w", desc.Label, err)
		}
	}

	m.log.Info("Handlers registered", "count", len(descs), "total", m.dispatcher.Len())
	return nil
}

// Start connects the bot to its update source and opens dispatch. In webhook
// mode the resolved URL is applied; a failure leaves the manager Initialized
// so Start may be retried. In polling mode any webhook is removed and a long
// poll stream feeds Deliver.
func (m *Manager) Start(ctx context.Context) error {
	m.ops.Lock()
	defer m.ops.Unlock()

	if state := m.State(); state != Initialized {
		return boterr.Transition("start", state)
	}

	client := m.Client()

	var updates <-chan transport.InboundEvent
	var pollCancel context.CancelFunc
	if m.cfg.Polling {
		if err := client.DeleteWebhook(ctx, m.cfg.Webhook.DropPending()); err != nil {
			return boterr.Wrap(boterr.WebhookApplication, "delete webhook before polling", err)
		}

		var pollCtx context.Context
		pollCtx, pollCancel = context.WithCancel(context.WithoutCancel(ctx))
		stream, err := client.Updates(pollCtx)
		if err != nil {
			pollCancel()
			return fmt.Errorf("start long polling: %w", err)
		}
		updates = stream
	} else {
		cfg := m.Webhook()
		applied, err := webhook.Apply(ctx, client, cfg, m.log)
		if err != nil {
			m.log.Error("Webhook application failed", "url", cfg.URL, "error", err)
			return err
		}
		m.events.Publish(bus.Event{
			Type: bus.EventWebhookApplied,
			Payload: map[string]string{
				"url":     applied.URL,
				"source":  cfg.Source,
				"changed": fmt.Sprint(applied.Changed),
			},
		})
	}

	if sched := client.Scheduler(); sched != nil {
		sched.Start()
	}

	deliverCtx, deliverCancel := context.WithCancel(context.WithoutCancel(ctx))

	m.mu.Lock()
	m.deliverCtx = deliverCtx
	m.deliverCancel = deliverCancel
	m.pollCancel = pollCancel
	m.startedAt = time.Now().UTC()
	m.accepting = true
	m.mu.Unlock()

	m.dispatcher.Open()
	m.transition(Started)

	if updates != nil {
		done := make(chan struct{})
		m.mu.Lock()
		m.pollDone = done
		m.mu.Unlock()
		go m.pump(updates, done)
	}

	return nil
}

// Deliver hands event to the dispatcher on a tracked goroutine and returns
// at once, so a slow handler never holds up the transport.
func (m *Manager) Deliver(ctx context.Context, event transport.InboundEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	handlerCtx, err := m.track("deliver")
	if err != nil {
		return err
	}

	go func() {
		defer m.untrack()
		m.dispatch(handlerCtx, event)
	}()

	return nil
}

// Dispatch runs one dispatch pass for event and waits for it.
func (m *Manager) Dispatch(ctx context.Context, event transport.InboundEvent) ([]dispatch.Outcome, error) {
	if _, err := m.track("dispatch"); err != nil {
		return nil, err
	}
	defer m.untrack()

	return m.dispatcher.Dispatch(ctx, event)
}

// Stop closes dispatch and waits up to the drain timeout for in-flight
// deliveries. A drain timeout is recorded and published but does not fail
// Stop.
func (m *Manager) Stop(ctx context.Context) error {
	m.ops.Lock()
	defer m.ops.Unlock()

	m.mu.Lock()
	if m.state != Started {
		state := m.state
		m.mu.Unlock()
		return boterr.Transition("stop", state)
	}
	m.accepting = false
	m.lastDrainErr = nil
	pollCancel, pollDone := m.pollCancel, m.pollDone
	deliverCancel := m.deliverCancel
	m.mu.Unlock()

	// One budget covers both the poll pump and the in-flight deliveries.
	drainCtx, cancelDrain := context.WithTimeout(ctx, m.cfg.DrainTimeout)
	defer cancelDrain()

	if pollCancel != nil {
		pollCancel()
		if pollDone != nil {
			select {
			case <-pollDone:
			case <-drainCtx.Done():
				m.log.Warn("Long polling did not stop before the drain deadline")
			}
		}
	}

	drained := make(chan struct{})
	go func() {
		m.inflight.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		m.log.Info("In-flight deliveries drained")
	case <-drainCtx.Done():
		m.recordDrainTimeout()
	}
	deliverCancel()

	m.dispatcher.Close()
	if sched := m.Client().Scheduler(); sched != nil {
		sched.Stop()
	}

	m.transition(Stopped)
	return nil
}

// Shutdown releases the transport client. Only allowed once Stopped.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.ops.Lock()
	defer m.ops.Unlock()

	if state := m.State(); state != Stopped {
		return boterr.Transition("shutdown", state)
	}

	err := m.Client().Close(ctx)
	m.transition(ShutDown)
	if err != nil {
		return fmt.Errorf("close transport client: %w", err)
	}

	return nil
}

// track admits one dispatch pass while the manager is accepting. The
// WaitGroup add happens under the state lock so Stop cannot miss it.
func (m *Manager) track(operation string) (context.Context, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.state != Started || !m.accepting {
		return nil, boterr.Transition(operation, m.state)
	}

	m.inflight.Add(1)
	m.inflightCount.Add(1)
	return m.deliverCtx, nil
}

func (m *Manager) untrack() {
	m.inflightCount.Add(-1)
	m.inflight.Done()
}

func (m *Manager) dispatch(ctx context.Context, event transport.InboundEvent) {
	outcomes, err := m.dispatcher.Dispatch(ctx, event)
	if err != nil {
		m.log.Warn("Dispatch rejected", "event_seq", event.Seq, "error", err)
		return
	}

	failed := 0
	for _, outcome := range outcomes {
		if !outcome.OK() {
			failed++
		}
	}
	m.log.Debug("Event dispatched", "event_seq", event.Seq, "kind", string(event.Kind), "handlers", len(outcomes), "failed", failed)
}

func (m *Manager) pump(updates <-chan transport.InboundEvent, done chan<- struct{}) {
	defer close(done)

	for event := range updates {
		if err := m.Deliver(context.Background(), event); err != nil {
			m.log.Warn("Dropped polled update", "event_seq", event.Seq, "error", err)
		}
	}
}

func (m *Manager) recordDrainTimeout() {
	pending := m.inflightCount.Load()
	err := boterr.New(boterr.DrainTimeout, fmt.Sprintf("%d deliveries still running after %s", pending, m.cfg.DrainTimeout))

	m.mu.Lock()
	m.lastDrainErr = err
	m.mu.Unlock()

	m.log.Warn("Drain timed out", "in_flight", pending, "timeout", m.cfg.DrainTimeout)
	m.events.Publish(bus.Event{Type: bus.EventDrainTimeout, Error: err.Error()})
}

func (m *Manager) transition(to State) {
	m.mu.Lock()
	from := m.state
	m.state = to
	m.mu.Unlock()

	m.log.Info("Lifecycle transition", "from", from.String(), "to", to.String())
	m.events.Publish(bus.Event{
		Type:    bus.EventLifecycleTransition,
		State:   to.String(),
		Payload: map[string]string{"from": from.String()},
	})
}
