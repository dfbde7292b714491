package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/google/uuid"

	"tradebot/pkg/boterr"
	"tradebot/pkg/bus"
	"tradebot/pkg/transport"
)

// Dispatcher routes one event to every matching handler, group by group.
//
// Registration is allowed only while the dispatcher is closed. Dispatch is
// allowed only while it is open and is safe for concurrent use.
type Dispatcher struct {
	log    *slog.Logger
	events *bus.Bus

	mu     sync.RWMutex
	groups map[int][]Descriptor
	order  []int
	open   bool
}

// New creates a closed dispatcher. events may be nil.
func New(log *slog.Logger, events *bus.Bus) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}

	return &Dispatcher{
		log:    log.With("component", "dispatch"),
		events: events,
		groups: make(map[int][]Descriptor),
	}
}

// Register appends desc to its group.
func (d *Dispatcher) Register(desc Descriptor) error {
	if desc.Handle == nil {
		return errors.New("descriptor handler is required")
	}
	if desc.Match.Kind != MatchCommand && desc.Match.Kind != MatchContent {
		return fmt.Errorf("descriptor %q has no match predicate", desc.Label)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.open {
		return boterr.New(boterr.InvalidTransition, "register after start")
	}

	if desc.Label == "" {
		desc.Label = desc.Match.String()
	}

	if _, ok := d.groups[desc.Group]; !ok {
		d.order = append(d.order, desc.Group)
		slices.Sort(d.order)
	}
	d.groups[desc.Group] = append(d.groups[desc.Group], desc)

	d.log.Info("Handler registered", "group", desc.Group, "label", desc.Label, "match", desc.Match.String())
	return nil
}

// Open starts accepting dispatch calls and seals registration.
func (d *Dispatcher) Open() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.open = true
}

// Close stops accepting new dispatch calls. Passes already running finish.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.open = false
}

// Len returns the number of registered descriptors.
func (d *Dispatcher) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()

	total := 0
	for _, group := range d.groups {
		total += len(group)
	}
	return total
}

// Describe lists registered handlers in dispatch order.
func (d *Dispatcher) Describe() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	lines := make([]string, 0, len(d.groups))
	for _, group := range d.order {
		for _, desc := range d.groups[group] {
			lines = append(lines, fmt.Sprintf("group %d: %s (%s)", group, desc.Match.String(), desc.Label))
		}
	}
	return lines
}

// Dispatch runs one pass over the registered handlers for event and returns
// one Outcome per invoked handler. Handler failures never fail the pass.
func (d *Dispatcher) Dispatch(ctx context.Context, event transport.InboundEvent) ([]Outcome, error) {
	matched, err := d.match(event)
	if err != nil {
		return nil, err
	}

	pass := uuid.NewString()
	log := d.log.With("dispatch", pass, "event_seq", event.Seq, "kind", string(event.Kind))
	if event.Message != nil && event.Message.Command != "" {
		log = log.With("command", event.Message.Command)
	}

	if len(matched) == 0 {
		log.Debug("No handler matched")
		return nil, nil
	}

	outcomes := make([]Outcome, 0, len(matched))
	for _, desc := range matched {
		err := invoke(ctx, desc, event)
		outcomes = append(outcomes, Outcome{Label: desc.Label, Group: desc.Group, Err: err})
		if err == nil {
			continue
		}

		log.Error("Handler failed", "group", desc.Group, "label", desc.Label, "preview", event.Message.Preview(), "error", err)
		d.events.Publish(bus.Event{
			Type:     bus.EventHandlerFailed,
			Seq:      event.Seq,
			Handler:  desc.Label,
			Error:    err.Error(),
			Dispatch: pass,
		})
	}

	d.events.Publish(bus.Event{Type: bus.EventDispatched, Seq: event.Seq, Dispatch: pass})
	return outcomes, nil
}

// match returns the matching descriptors in dispatch order. The snapshot is
// taken under the read lock so handlers run without holding it.
func (d *Dispatcher) match(event transport.InboundEvent) ([]Descriptor, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if !d.open {
		return nil, boterr.New(boterr.InvalidTransition, "dispatch before start")
	}

	var matched []Descriptor
	for _, group := range d.order {
		for _, desc := range d.groups[group] {
			if desc.Match.Matches(event) {
				matched = append(matched, desc)
			}
		}
	}

	return matched, nil
}

// invoke runs one handler, converting errors and panics into a
// handler_execution error.
func invoke(ctx context.Context, desc Descriptor, event transport.InboundEvent) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = boterr.New(boterr.HandlerExecution, fmt.Sprintf("%s panicked: %v", desc.Label, recovered))
		}
	}()

	if handlerErr := desc.Handle(ctx, event); handlerErr != nil {
		return boterr.Wrap(boterr.HandlerExecution, desc.Label, handlerErr)
	}

	return nil
}
