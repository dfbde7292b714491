// Package commands holds the bot's chat handlers.
package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"tradebot/pkg/dispatch"
	"tradebot/pkg/store"
	"tradebot/pkg/transport"
)

const (
	replyFailed = "Something went wrong. Please try again later."

	helpText = `TradeAI Companion - Help

Available commands:
/start - Register and start the bot
/help - Show this help message
/photo - Test photo handling
/forget - Delete your stored profile

You can also send a photo to test the photo handler.`
)

// Sender delivers replies to a chat.
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
}

// Set is the bot's handler set.
type Set struct {
	sender Sender
	users  store.Store
	log    *slog.Logger
}

func New(sender Sender, users store.Store, log *slog.Logger) (*Set, error) {
	if sender == nil {
		return nil, errors.New("sender is required")
	}
	if users == nil {
		return nil, errors.New("user store is required")
	}
	if log == nil {
		log = slog.Default()
	}

	return &Set{sender: sender, users: users, log: log.With("component", "commands")}, nil
}

// Descriptors returns the handlers in registration order. Commands run in
// group 0 and plain content handlers in group 1.
func (s *Set) Descriptors() []dispatch.Descriptor {
	return []dispatch.Descriptor{
		{Group: 0, Label: "start", Match: dispatch.Command("start"), Handle: s.start},
		{Group: 0, Label: "help", Match: dispatch.Command("help"), Handle: s.help},
		{Group: 0, Label: "photo", Match: dispatch.Command("photo"), Handle: s.photoCommand},
		{Group: 0, Label: "forget", Match: dispatch.Command("forget"), Handle: s.forget},
		{Group: 1, Label: "photo-received", Match: dispatch.Content(transport.KindPhoto, false), Handle: s.photoReceived},
		{Group: 1, Label: "echo", Match: dispatch.Content(transport.KindText, true), Handle: s.echo},
	}
}

func (s *Set) start(ctx context.Context, event transport.InboundEvent) error {
	msg, err := message(event)
	if err != nil {
		return err
	}

	user, err := s.users.GetUser(ctx, msg.SenderID)
	switch {
	case err == nil:
		return s.reply(ctx, msg, fmt.Sprintf("Welcome back, %s! Type /help for available commands.", displayName(user.Username, msg)))
	case !errors.Is(err, store.ErrNotFound):
		return s.fail(ctx, msg, fmt.Errorf("look up user %d: %w", msg.SenderID, err))
	}

	user, err = s.users.CreateUser(ctx, msg.SenderID, msg.SenderName)
	if err != nil && !errors.Is(err, store.ErrAlreadyExists) {
		return s.fail(ctx, msg, fmt.Errorf("create user %d: %w", msg.SenderID, err))
	}

	s.log.Info("User registered", "telegram_id", msg.SenderID, "user_id", user.ID.String())
	return s.reply(ctx, msg, "TradeAI Companion is online.\n\nType /help for available commands.")
}

func (s *Set) help(ctx context.Context, event transport.InboundEvent) error {
	msg, err := message(event)
	if err != nil {
		return err
	}

	return s.reply(ctx, msg, helpText)
}

func (s *Set) photoCommand(ctx context.Context, event transport.InboundEvent) error {
	msg, err := message(event)
	if err != nil {
		return err
	}

	return s.reply(ctx, msg, "Please send me a photo to test the photo handler.")
}

func (s *Set) forget(ctx context.Context, event transport.InboundEvent) error {
	msg, err := message(event)
	if err != nil {
		return err
	}

	err = s.users.DeleteUser(ctx, msg.SenderID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return s.reply(ctx, msg, "There is nothing stored for you.")
	case err != nil:
		return s.fail(ctx, msg, fmt.Errorf("delete user %d: %w", msg.SenderID, err))
	}

	s.log.Info("User deleted", "telegram_id", msg.SenderID)
	return s.reply(ctx, msg, "Your profile has been deleted. Send /start to register again.")
}

// photoReceived replies with the file id of the largest photo size, which
// Telegram lists last.
func (s *Set) photoReceived(ctx context.Context, event transport.InboundEvent) error {
	msg, err := message(event)
	if err != nil {
		return err
	}
	if len(msg.Attachments) == 0 {
		return errors.New("photo event without attachments")
	}

	fileID := msg.Attachments[len(msg.Attachments)-1]
	s.log.Info("Received photo", "telegram_id", msg.SenderID, "file_id", fileID)
	return s.reply(ctx, msg, "Photo received!\n\nFile ID: "+fileID)
}

func (s *Set) echo(ctx context.Context, event transport.InboundEvent) error {
	msg, err := message(event)
	if err != nil {
		return err
	}

	return s.reply(ctx, msg, "You said: "+msg.Text+"\n\nSend a photo to test the photo handler.")
}

func (s *Set) reply(ctx context.Context, msg *transport.Message, text string) error {
	if err := s.sender.SendMessage(ctx, msg.ChatID, text); err != nil {
		return fmt.Errorf("send reply to chat %d: %w", msg.ChatID, err)
	}
	return nil
}

// fail tells the user something went wrong and returns cause.
func (s *Set) fail(ctx context.Context, msg *transport.Message, cause error) error {
	if err := s.sender.SendMessage(ctx, msg.ChatID, replyFailed); err != nil {
		return errors.Join(cause, fmt.Errorf("send failure notice: %w", err))
	}
	return cause
}

func message(event transport.InboundEvent) (*transport.Message, error) {
	if event.Message == nil {
		return nil, fmt.Errorf("event %d has no message", event.Seq)
	}
	return event.Message, nil
}

func displayName(stored string, msg *transport.Message) string {
	if name := strings.TrimSpace(stored); name != "" {
		return name
	}
	return msg.SenderName
}
