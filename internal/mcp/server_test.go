package mcp

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lectern-ai/lectern/internal/cards"
	"github.com/lectern-ai/lectern/internal/chat"
	"github.com/lectern-ai/lectern/internal/companion"
	"github.com/lectern-ai/lectern/internal/provider"
	"github.com/lectern-ai/lectern/internal/store"
	"github.com/lectern-ai/lectern/internal/summarize"
)

const testKey = "moby-dick:p1:ishmael"

// testServer builds a server over an in-memory store and a canned provider.
func testServer(t *testing.T, reply string) (*Server, *store.MockStore) {
	t.Helper()

	mock := store.NewMockStore()
	require.NoError(t, mock.CreateConversation(context.Background(),
		store.Conversation{
			Key:         chat.ConversationKey(testKey),
			BookID:      "moby-dick",
			PersonaID:   "p1",
			CharacterID: "ishmael",
			Valid:       true,
			CreatedAt:   time.Now(),
		}))

	svc := companion.New(companion.Config{}, companion.Params{
		Store: mock,
		Chat: provider.Func{
			ProviderName:   "stub",
			CredentialsKey: "creds",
			GenerateFunc: func(context.Context,
				string) (string, error) {

				return reply, nil
			},
		},
	})

	return NewServer(svc, nil), mock
}

// TestChatSendTool drives a send end to end through the tool handler.
func TestChatSendTool(t *testing.T) {
	t.Parallel()

	server, mock := testServer(t, "Ahoy.|||Still here?")
	ctx := context.Background()

	_, result, err := server.handleChatSend(ctx, nil, ChatSendArgs{
		Key:     testKey,
		Content: "hello?",
	})
	require.NoError(t, err)
	require.Equal(t, "ok", result.State)
	require.Len(t, result.Bubbles, 2)
	require.Equal(t, "Ahoy.", result.Bubbles[0].Content)

	msgs, err := mock.ListMessages(ctx, chat.ConversationKey(testKey))
	require.NoError(t, err)
	require.Len(t, msgs, 3)
}

// TestChatSendToolUnderline verifies the underline range surfaces in the
// tool result.
func TestChatSendToolUnderline(t *testing.T) {
	t.Parallel()

	server, _ := testServer(t,
		"Watch this part.\nUNDERLINE: fog rolled in")

	_, result, err := server.handleChatSend(context.Background(), nil,
		ChatSendArgs{
			Key:       testKey,
			Content:   "hi",
			ReadAhead: "The fog rolled in from the bay.",
		})
	require.NoError(t, err)
	require.NotNil(t, result.Underline)
	require.Equal(t, 4, result.Underline.Start)
	require.Equal(t, 17, result.Underline.End)
}

// TestCardsTools covers list and merge through the tool handlers.
func TestCardsTools(t *testing.T) {
	t.Parallel()

	server, mock := testServer(t, "unused")
	ctx := context.Background()

	now := time.Now()
	require.NoError(t, mock.SaveCards(
		ctx, chat.ConversationKey(testKey), summarize.KindChat,
		[]cards.Card{
			{ID: "a", Content: "alpha", Start: 1, End: 100,
				CreatedAt: now, UpdatedAt: now},
			{ID: "b", Content: "beta", Start: 101, End: 200,
				CreatedAt: now, UpdatedAt: now},
		},
	))

	_, list, err := server.handleCardsList(ctx, nil, CardsListArgs{
		Key: testKey, Kind: "chat",
	})
	require.NoError(t, err)
	require.Len(t, list.Cards, 2)

	_, merged, err := server.handleCardsMerge(ctx, nil, CardsMergeArgs{
		Key: testKey, Kind: "chat", IDs: []string{"a", "b"},
	})
	require.NoError(t, err)
	require.True(t, merged.Merged)

	_, list, err = server.handleCardsList(ctx, nil, CardsListArgs{
		Key: testKey, Kind: "chat",
	})
	require.NoError(t, err)
	require.Len(t, list.Cards, 1)
	require.Equal(t, 1, list.Cards[0].Start)
	require.Equal(t, 200, list.Cards[0].End)
}

// TestStatusAndInvalidateTools exercises the remaining state tools.
func TestStatusAndInvalidateTools(t *testing.T) {
	t.Parallel()

	server, mock := testServer(t, "reply")
	ctx := context.Background()

	_, status, err := server.handleChatStatus(ctx, nil, ChatStatusArgs{
		Key: testKey,
	})
	require.NoError(t, err)
	require.False(t, status.Generating)

	_, _, err = server.handleInvalidate(ctx, nil, InvalidateArgs{
		Key: testKey,
	})
	require.NoError(t, err)

	conv, err := mock.GetConversation(ctx, chat.ConversationKey(testKey))
	require.NoError(t, err)
	require.False(t, conv.Valid)

	_, send, err := server.handleChatSend(ctx, nil, ChatSendArgs{
		Key: testKey, Content: "hi",
	})
	require.NoError(t, err)
	require.Equal(t, "blocked", send.State)
	require.True(t, send.Silent)
}
