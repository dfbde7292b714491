package transport

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/mymmrac/telego"
)

const (
	commandMarker     = "/"
	entityBotCommand  = "bot_command"
	botNameSeparator  = "@"
	messagePreviewMax = 240
)

// EventKind classifies an inbound event for handler matching.
type EventKind string

const (
	KindCommand EventKind = "command"
	KindText    EventKind = "text"
	KindPhoto   EventKind = "photo"
	KindOther   EventKind = "other"
)

// InboundEvent is one update received from the chat platform. Handlers must
// treat it as read-only.
type InboundEvent struct {
	Seq     int64
	Kind    EventKind
	Message *Message
}

// Message is the chat message carried by an event.
type Message struct {
	ID          int
	Text        string
	Caption     string
	Command     string
	Args        []string
	SenderID    int64
	SenderName  string
	ChatID      int64
	Attachments []string
}

// EventFromUpdate converts a Telegram update into an InboundEvent.
func EventFromUpdate(update telego.Update) InboundEvent {
	event := InboundEvent{Seq: int64(update.UpdateID), Kind: KindOther}

	source := update.Message
	if source == nil {
		return event
	}

	msg := &Message{
		ID:      source.MessageID,
		Text:    source.Text,
		Caption: source.Caption,
		ChatID:  source.Chat.ID,
	}
	if source.From != nil {
		msg.SenderID = source.From.ID
		msg.SenderName = senderName(source.From)
	}

	for _, size := range source.Photo {
		msg.Attachments = append(msg.Attachments, size.FileID)
	}
	if source.Document != nil {
		msg.Attachments = append(msg.Attachments, source.Document.FileID)
	}

	event.Message = msg

	switch {
	case len(source.Photo) > 0:
		event.Kind = KindPhoto
	case isCommand(source):
		name, args := parseCommand(source.Text)
		if name == "" {
			event.Kind = KindText
			break
		}
		msg.Command = name
		msg.Args = args
		event.Kind = KindCommand
	case strings.TrimSpace(source.Text) != "":
		event.Kind = KindText
	}

	return event
}

// Preview returns the message text or caption cut to at most
// messagePreviewMax characters, for log lines.
func (m *Message) Preview() string {
	if m == nil {
		return ""
	}

	text := strings.TrimSpace(m.Text)
	if text == "" {
		text = strings.TrimSpace(m.Caption)
	}
	if utf8.RuneCountInString(text) <= messagePreviewMax {
		return text
	}

	return string([]rune(text)[:messagePreviewMax]) + "..."
}

// isCommand reports whether the message text opens with a bot command.
//
// Telegram marks commands with a bot_command entity at offset 0; messages
// built without entities fall back to the leading marker.
func isCommand(source *telego.Message) bool {
	if !strings.HasPrefix(source.Text, commandMarker) {
		return false
	}
	if len(source.Entities) == 0 {
		return true
	}

	first := source.Entities[0]
	return first.Type == entityBotCommand && first.Offset == 0
}

// parseCommand splits "/name@bot arg1 arg2" into "name" and its arguments.
func parseCommand(text string) (string, []string) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return "", nil
	}

	name := strings.TrimPrefix(fields[0], commandMarker)
	name, _, _ = strings.Cut(name, botNameSeparator)

	var args []string
	if len(fields) > 1 {
		args = fields[1:]
	}

	return name, args
}

func senderName(user *telego.User) string {
	if user.Username != "" {
		return user.Username
	}
	if user.FirstName != "" {
		return user.FirstName
	}

	return strconv.FormatInt(user.ID, 10)
}
