package dispatch

import (
	"context"
	"fmt"

	"tradebot/pkg/transport"
)

// HandlerFunc processes one event. Handlers reply to users themselves; the
// dispatcher only records the returned error.
type HandlerFunc func(ctx context.Context, event transport.InboundEvent) error

// PredicateKind tags which match rule a Predicate carries.
type PredicateKind int

const (
	MatchCommand PredicateKind = iota + 1
	MatchContent
)

// Predicate decides whether a descriptor receives an event.
type Predicate struct {
	Kind            PredicateKind
	Command         string
	Content         transport.EventKind
	ExcludeCommands bool
}

// Command matches command events whose name equals name exactly. name is
// given without the leading slash.
func Command(name string) Predicate {
	return Predicate{Kind: MatchCommand, Command: name}
}

// Content matches events carrying the given content type. Text content also
// matches command messages unless excludeCommands is set.
func Content(kind transport.EventKind, excludeCommands bool) Predicate {
	return Predicate{Kind: MatchContent, Content: kind, ExcludeCommands: excludeCommands}
}

// Matches evaluates the predicate against event.
func (p Predicate) Matches(event transport.InboundEvent) bool {
	switch p.Kind {
	case MatchCommand:
		return event.Kind == transport.KindCommand && event.Message != nil && event.Message.Command == p.Command
	case MatchContent:
		if event.Kind == p.Content {
			return true
		}
		return p.Content == transport.KindText && event.Kind == transport.KindCommand && !p.ExcludeCommands
	default:
		return false
	}
}

func (p Predicate) String() string {
	switch p.Kind {
	case MatchCommand:
		return "command /" + p.Command
	case MatchContent:
		if p.ExcludeCommands {
			return fmt.Sprintf("content %s & ~command", p.Content)
		}
		return "content " + string(p.Content)
	default:
		return "unknown"
	}
}

// Descriptor is one registered handler with its match rule and ordering group.
type Descriptor struct {
	Group  int
	Label  string
	Match  Predicate
	Handle HandlerFunc
}

// Outcome is the result of one handler invocation during a dispatch pass.
type Outcome struct {
	Label string
	Group int
	Err   error
}

// OK reports whether the handler returned without error.
func (o Outcome) OK() bool {
	return o.Err == nil
}
