package boterr

import (
	"errors"
	"fmt"
)

const (
	ClientConstruction  = "client_construction"
	WebhookApplication  = "webhook_application"
	HandlerExecution    = "handler_execution"
	InvalidTransition   = "invalid_lifecycle_transition"
	DrainTimeout        = "drain_timeout"
	categoryUnspecified = "unspecified"
)

// Error represents a stable, categorized bot control-plane failure.
type Error struct {
	Category string
	Detail   string
	Err      error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}

	msg := e.Category
	if e.Detail != "" {
		msg = fmt.Sprintf("%s: %s", e.Category, e.Detail)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}

	return msg
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}

	return e.Err
}

// New creates a categorized error without a cause.
func New(category string, detail string) error {
	return &Error{Category: category, Detail: detail}
}

// Wrap creates a categorized error around cause.
func Wrap(category string, detail string, cause error) error {
	return &Error{Category: category, Detail: detail, Err: cause}
}

// Transition reports an out-of-order lifecycle call.
func Transition(operation string, state fmt.Stringer) error {
	return New(InvalidTransition, fmt.Sprintf("%s not allowed in state %s", operation, state))
}

// CategoryOf returns the category of the outermost categorized error in err's chain.
func CategoryOf(err error) string {
	if err == nil {
		return ""
	}

	var categorized *Error
	if errors.As(err, &categorized) {
		return categorized.Category
	}

	return categoryUnspecified
}

// Is reports whether any categorized error in err's chain carries category.
func Is(err error, category string) bool {
	for err != nil {
		var categorized *Error
		if !errors.As(err, &categorized) {
			return false
		}
		if categorized.Category == category {
			return true
		}
		err = categorized.Err
	}

	return false
}
