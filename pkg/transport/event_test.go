package transport

import (
	"strings"
	"unicode/utf8"
	"testing"

	"github.com/mymmrac/telego"
	"github.com/stretchr/testify/require"
)

func TestEventFromUpdateCommand(t *testing.T) {
	t.Parallel()

	event := EventFromUpdate(telego.Update{
		UpdateID: 7,
		Message: &telego.Message{
			MessageID: 3,
			From:      &telego.User{ID: 12345, FirstName: "Test"},
			Chat:      telego.Chat{ID: 12345, Type: "private"},
			Text:      "/price@tradeai_bot TSLA now",
			Entities:  []telego.MessageEntity{{Type: entityBotCommand, Offset: 0, Length: 17}},
		},
	})

	require.Equal(t, int64(7), event.Seq)
	require.Equal(t, KindCommand, event.Kind)
	require.NotNil(t, event.Message)
	require.Equal(t, "price", event.Message.Command)
	require.Equal(t, []string{"TSLA", "now"}, event.Message.Args)
	require.Equal(t, int64(12345), event.Message.SenderID)
	require.Equal(t, "Test", event.Message.SenderName)
	require.Equal(t, int64(12345), event.Message.ChatID)
}

func TestEventFromUpdateCommandWithoutEntities(t *testing.T) {
	t.Parallel()

	event := EventFromUpdate(telego.Update{
		UpdateID: 1,
		Message:  &telego.Message{Chat: telego.Chat{ID: 1}, Text: "/start"},
	})

	require.Equal(t, KindCommand, event.Kind)
	require.Equal(t, "start", event.Message.Command)
	require.Empty(t, event.Message.Args)
}

func TestEventFromUpdateSlashInsideText(t *testing.T) {
	t.Parallel()

	event := EventFromUpdate(telego.Update{
		Message: &telego.Message{
			Chat:     telego.Chat{ID: 1},
			Text:     "/not a command",
			Entities: []telego.MessageEntity{{Type: "bold", Offset: 0, Length: 4}},
		},
	})
	require.Equal(t, KindText, event.Kind)

	bare := EventFromUpdate(telego.Update{Message: &telego.Message{Chat: telego.Chat{ID: 1}, Text: "/"}})
	require.Equal(t, KindText, bare.Kind)
	require.Empty(t, bare.Message.Command)
}

func TestEventFromUpdateText(t *testing.T) {
	t.Parallel()

	event := EventFromUpdate(telego.Update{
		UpdateID: 4,
		Message: &telego.Message{
			From: &telego.User{ID: 9, Username: "trader"},
			Chat: telego.Chat{ID: 9},
			Text: "What is the price of Apple stock?",
		},
	})

	require.Equal(t, KindText, event.Kind)
	require.Empty(t, event.Message.Command)
	require.Equal(t, "trader", event.Message.SenderName)
}

func TestEventFromUpdatePhoto(t *testing.T) {
	t.Parallel()

	event := EventFromUpdate(telego.Update{
		UpdateID: 5,
		Message: &telego.Message{
			Chat:    telego.Chat{ID: 1},
			Caption: "chart",
			Photo:   []telego.PhotoSize{{FileID: "small"}, {FileID: "large"}},
		},
	})

	require.Equal(t, KindPhoto, event.Kind)
	require.Equal(t, []string{"small", "large"}, event.Message.Attachments)
	require.Equal(t, "chart", event.Message.Preview())
}

func TestEventFromUpdateOther(t *testing.T) {
	t.Parallel()

	require.Equal(t, KindOther, EventFromUpdate(telego.Update{UpdateID: 1}).Kind)

	sticker := EventFromUpdate(telego.Update{Message: &telego.Message{Chat: telego.Chat{ID: 1}}})
	require.Equal(t, KindOther, sticker.Kind)
	require.NotNil(t, sticker.Message)
}

func TestMessagePreview(t *testing.T) {
	t.Parallel()

	var nilMessage *Message
	require.Empty(t, nilMessage.Preview())

	long := &Message{Text: strings.Repeat("a", messagePreviewMax+20)}
	got := long.Preview()
	require.Len(t, got, messagePreviewMax+3)
	require.True(t, strings.HasSuffix(got, "..."))

	euros := &Message{Caption: strings.Repeat("€", messagePreviewMax+5)}
	got = euros.Preview()
	require.True(t, utf8.ValidString(got))
	require.Equal(t, messagePreviewMax+3, utf8.RuneCountInString(got))
	require.True(t, strings.HasPrefix(got, "€€€"))
}
