package commands

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"tradebot/pkg/boterr"
	"tradebot/pkg/dispatch"
	"tradebot/pkg/store"
	"tradebot/pkg/transport"
	"tradebot/pkg/transport/transporttest"
)

type failingStore struct {
	*store.MemoryStore
	err error
}

func (s *failingStore) GetUser(context.Context, int64) (store.User, error) {
	return store.User{}, s.err
}

func newDispatcher(t *testing.T, users store.Store) (*dispatch.Dispatcher, *transporttest.Client) {
	t.Helper()

	client := transporttest.NewClient()
	set, err := New(client, users, nil)
	require.NoError(t, err)

	d := dispatch.New(nil, nil)
	for _, desc := range set.Descriptors() {
		require.NoError(t, d.Register(desc))
	}
	d.Open()

	return d, client
}

func command(seq int64, name string) transport.InboundEvent {
	return transport.InboundEvent{
		Seq:  seq,
		Kind: transport.KindCommand,
		Message: &transport.Message{
			ChatID:     500,
			SenderID:   42,
			SenderName: "ada",
			Text:       "/" + name,
			Command:    name,
		},
	}
}

func TestStartRegistersUserOnce(t *testing.T) {
	t.Parallel()

	users := store.NewMemoryStore()
	d, client := newDispatcher(t, users)
	ctx := context.Background()

	outcomes, err := d.Dispatch(ctx, command(1, "start"))
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	require.True(t, outcomes[0].OK())

	user, err := users.GetUser(ctx, 42)
	require.NoError(t, err)
	require.Equal(t, "ada", user.Username)

	_, err = d.Dispatch(ctx, command(2, "start"))
	require.NoError(t, err)

	sent := client.Sent()
	require.Len(t, sent, 2)
	require.Equal(t, int64(500), sent[0].ChatID)
	require.Contains(t, sent[0].Text, "is online")
	require.Contains(t, sent[1].Text, "Welcome back, ada")
}

func TestForgetDeletesUser(t *testing.T) {
	t.Parallel()

	users := store.NewMemoryStore()
	d, client := newDispatcher(t, users)
	ctx := context.Background()

	_, err := d.Dispatch(ctx, command(1, "forget"))
	require.NoError(t, err)
	require.Contains(t, client.Sent()[0].Text, "nothing stored")

	_, err = users.CreateUser(ctx, 42, "ada")
	require.NoError(t, err)

	_, err = d.Dispatch(ctx, command(2, "forget"))
	require.NoError(t, err)
	require.Contains(t, client.Sent()[1].Text, "has been deleted")

	_, err = users.GetUser(ctx, 42)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestStaticReplies(t *testing.T) {
	t.Parallel()

	tests := []struct {
		command string
		want    string
	}{
		{command: "help", want: "/forget - Delete your stored profile"},
		{command: "photo", want: "Please send me a photo"},
	}

	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			t.Parallel()

			d, client := newDispatcher(t, store.NewMemoryStore())
			_, err := d.Dispatch(context.Background(), command(1, tt.command))
			require.NoError(t, err)

			sent := client.Sent()
			require.Len(t, sent, 1)
			require.Contains(t, sent[0].Text, tt.want)
		})
	}
}

func TestPhotoRepliesWithLargestFileID(t *testing.T) {
	t.Parallel()

	d, client := newDispatcher(t, store.NewMemoryStore())
	event := transport.InboundEvent{
		Seq:     3,
		Kind:    transport.KindPhoto,
		Message: &transport.Message{ChatID: 500, SenderID: 42, Attachments: []string{"small", "medium", "large"}},
	}

	outcomes, err := d.Dispatch(context.Background(), event)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	require.Equal(t, "photo-received", outcomes[0].Label)
	require.Equal(t, "Photo received!\n\nFile ID: large", client.Sent()[0].Text)
}

func TestTextIsEchoedButCommandsAreNot(t *testing.T) {
	t.Parallel()

	d, client := newDispatcher(t, store.NewMemoryStore())
	ctx := context.Background()

	_, err := d.Dispatch(ctx, transport.InboundEvent{Seq: 4, Kind: transport.KindText, Message: &transport.Message{ChatID: 500, Text: "BTC looks strong"}})
	require.NoError(t, err)

	_, err = d.Dispatch(ctx, command(5, "help"))
	require.NoError(t, err)

	sent := client.Sent()
	require.Len(t, sent, 2)
	require.Contains(t, sent[0].Text, "You said: BTC looks strong")
	require.NotContains(t, sent[1].Text, "You said")
}

func TestStoreFailureRepliesAndReportsHandlerError(t *testing.T) {
	t.Parallel()

	broken := &failingStore{MemoryStore: store.NewMemoryStore(), err: errors.New("connection refused")}
	d, client := newDispatcher(t, broken)

	outcomes, err := d.Dispatch(context.Background(), command(6, "start"))
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	require.True(t, boterr.Is(outcomes[0].Err, boterr.HandlerExecution))
	require.Equal(t, replyFailed, client.Sent()[0].Text)
}

func TestSendFailureFailsHandler(t *testing.T) {
	t.Parallel()

	users := store.NewMemoryStore()
	d, client := newDispatcher(t, users)
	client.SendErr = errors.New("Forbidden: bot was blocked by the user")

	outcomes, err := d.Dispatch(context.Background(), command(7, "help"))
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	require.ErrorIs(t, outcomes[0].Err, client.SendErr)
}

func TestNewValidates(t *testing.T) {
	t.Parallel()

	_, err := New(nil, store.NewMemoryStore(), nil)
	require.Error(t, err)

	_, err = New(transporttest.NewClient(), nil, nil)
	require.Error(t, err)
}
