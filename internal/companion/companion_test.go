package companion

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lectern-ai/lectern/internal/cards"
	"github.com/lectern-ai/lectern/internal/chat"
	"github.com/lectern-ai/lectern/internal/generation"
	"github.com/lectern-ai/lectern/internal/provider"
	"github.com/lectern-ai/lectern/internal/store"
	"github.com/lectern-ai/lectern/internal/summarize"
)

var testKey = chat.ConversationKeyFor("moby-dick", "p1", "ishmael")

func newTestCompanion(t *testing.T, cfg Config,
	reply string) (*Companion, *store.MockStore) {

	t.Helper()

	mock := store.NewMockStore()
	require.NoError(t, mock.CreateConversation(context.Background(),
		store.Conversation{
			Key: testKey, BookID: "moby-dick",
			PersonaID: "p1", CharacterID: "ishmael",
			Valid: true, CreatedAt: time.Now(),
		}))

	c := New(cfg, Params{
		Store: mock,
		Chat: provider.Func{
			ProviderName:   "stub",
			CredentialsKey: "creds-a",
			GenerateFunc: func(context.Context,
				string) (string, error) {

				return reply, nil
			},
		},
	})

	return c, mock
}

// TestSendMessagePersists verifies the full send path: user message
// appended, reply generated, history replaced with sent-marked base plus the
// new bubbles.
func TestSendMessagePersists(t *testing.T) {
	t.Parallel()

	c, mock := newTestCompanion(t, Config{}, "Call me Ishmael.|||Go on.")
	ctx := context.Background()

	result, err := c.SendMessage(ctx, testKey, "who are you?",
		SendOptions{})
	require.NoError(t, err)
	require.True(t, result.OK())

	msgs, err := mock.ListMessages(ctx, testKey)
	require.NoError(t, err)
	require.Len(t, msgs, 3)

	require.Equal(t, chat.SenderUser, msgs[0].Sender)
	require.Equal(t, "who are you?", msgs[0].Content)
	require.True(t, msgs[0].SentToAI)

	require.Equal(t, "Call me Ishmael.", msgs[1].Content)
	require.Equal(t, "Go on.", msgs[2].Content)
	require.Equal(t, msgs[1].GenerationID, msgs[2].GenerationID)
}

// TestSendMessageNoProvider verifies the config failure is a typed result,
// not an error.
func TestSendMessageNoProvider(t *testing.T) {
	t.Parallel()

	c := New(Config{}, Params{Store: store.NewMockStore()})

	result, err := c.SendMessage(context.Background(), testKey, "hi",
		SendOptions{})
	require.NoError(t, err)
	require.Equal(t, generation.StateFailedConfig, result.State)
	require.ErrorIs(t, result.Err, ErrNoProvider)
}

// TestAutoSummaryTrigger verifies crossing the chat threshold enqueues an
// automatic task and persists the advanced watermark.
func TestAutoSummaryTrigger(t *testing.T) {
	t.Parallel()

	c, mock := newTestCompanion(t, Config{ChatThreshold: 3}, "One.|||Two.")
	ctx := context.Background()

	result, err := c.SendMessage(ctx, testKey, "hello", SendOptions{})
	require.NoError(t, err)
	require.True(t, result.OK())

	// 3 messages total: one window [1, 3].
	require.Equal(t, 1, c.QueueStatus().Pending)

	mark, err := mock.GetWatermark(ctx, testKey, summarize.KindChat)
	require.NoError(t, err)
	require.Equal(t, 3, mark)
}

// TestReportProgress verifies book thresholds emit every missed window.
func TestReportProgress(t *testing.T) {
	t.Parallel()

	c, mock := newTestCompanion(t, Config{BookThreshold: 1000}, "ok")
	ctx := context.Background()

	require.NoError(t, c.ReportProgress(ctx, testKey, 2500))

	// Offsets 1-1000 and 1001-2000 crossed; 2001-2500 has not.
	require.Equal(t, 2, c.QueueStatus().Pending)

	mark, err := mock.GetWatermark(ctx, testKey, summarize.KindBook)
	require.NoError(t, err)
	require.Equal(t, 2000, mark)

	// Reporting the same offset again adds nothing.
	require.NoError(t, c.ReportProgress(ctx, testKey, 2500))
	require.Equal(t, 2, c.QueueStatus().Pending)
}

// TestInvalidate verifies invalidation aborts, purges, flips the stored
// flag, and blocks new sends until reinstated.
func TestInvalidate(t *testing.T) {
	t.Parallel()

	c, mock := newTestCompanion(t, Config{}, "reply")
	ctx := context.Background()

	c.RequestSummary(testKey, summarize.KindChat, 1, 50)
	require.Equal(t, 1, c.QueueStatus().Pending)

	require.NoError(t, c.Invalidate(ctx, testKey))

	require.Equal(t, 0, c.QueueStatus().Pending)

	conv, err := mock.GetConversation(ctx, testKey)
	require.NoError(t, err)
	require.False(t, conv.Valid)

	result, err := c.SendMessage(ctx, testKey, "hi", SendOptions{})
	require.NoError(t, err)
	require.Equal(t, generation.StateBlocked, result.State)

	require.NoError(t, c.Reinstate(ctx, testKey))

	result, err = c.SendMessage(ctx, testKey, "hi again", SendOptions{})
	require.NoError(t, err)
	require.True(t, result.OK())
}

// TestAggregateSummary verifies book cards precede chat cards in the
// aggregate text.
func TestAggregateSummary(t *testing.T) {
	t.Parallel()

	c, mock := newTestCompanion(t, Config{}, "reply")
	ctx := context.Background()

	now := time.Now()
	require.NoError(t, mock.SaveCards(ctx, testKey, summarize.KindChat,
		[]cards.Card{{
			ID: "cc1", Content: "they argued about the whale",
			Start: 1, End: 100, CreatedAt: now, UpdatedAt: now,
		}}))
	require.NoError(t, mock.SaveCards(ctx, testKey, summarize.KindBook,
		[]cards.Card{{
			ID: "bc1", Content: "the voyage begins",
			Start: 1, End: 5000, CreatedAt: now, UpdatedAt: now,
		}}))

	agg, err := c.AggregateSummary(ctx, testKey)
	require.NoError(t, err)
	require.Equal(t,
		"the voyage begins\nthey argued about the whale", agg)
}

// TestSetFocusRestoresMarks verifies focus restores persisted watermarks so
// old windows are not re-emitted after a restart.
func TestSetFocusRestoresMarks(t *testing.T) {
	t.Parallel()

	c, mock := newTestCompanion(t, Config{BookThreshold: 1000}, "ok")
	ctx := context.Background()

	require.NoError(t, mock.SetWatermark(
		ctx, testKey, summarize.KindBook, 2000,
	))

	require.NoError(t, c.SetFocus(ctx, testKey))
	require.Equal(t, testKey, c.Focus())

	// The first two windows are already covered by the restored mark.
	require.NoError(t, c.ReportProgress(ctx, testKey, 2500))
	require.Equal(t, 0, c.QueueStatus().Pending)

	require.NoError(t, c.ReportProgress(ctx, testKey, 3200))
	require.Equal(t, 1, c.QueueStatus().Pending)
}
