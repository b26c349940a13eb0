package summarize

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lectern-ai/lectern/internal/cards"
	"github.com/lectern-ai/lectern/internal/chat"
	"github.com/lectern-ai/lectern/internal/generation"
	"github.com/lectern-ai/lectern/internal/provider"
)

// memCardStore is an in-memory CardStore.
type memCardStore struct {
	mu   sync.Mutex
	sets map[Kind][]cards.Card
}

func newMemCardStore() *memCardStore {
	return &memCardStore{sets: make(map[Kind][]cards.Card)}
}

func (m *memCardStore) ListCards(_ context.Context, _ chat.ConversationKey,
	kind Kind) ([]cards.Card, error) {

	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]cards.Card, len(m.sets[kind]))
	copy(out, m.sets[kind])
	return out, nil
}

func (m *memCardStore) SaveCards(_ context.Context, _ chat.ConversationKey,
	kind Kind, set []cards.Card) error {

	m.mu.Lock()
	defer m.mu.Unlock()

	m.sets[kind] = set
	return nil
}

// fixedSource returns canned text for any slice.
type fixedSource struct {
	chatText string
	bookText string
}

func (s fixedSource) ChatSlice(context.Context, chat.ConversationKey,
	int, int) (string, error) {

	return s.chatText, nil
}

func (s fixedSource) BookSlice(context.Context, chat.ConversationKey,
	int, int) (string, error) {

	return s.bookText, nil
}

// stubGens reports a fixed generation state.
type stubGens struct {
	active bool
}

func (g stubGens) StatusOf(chat.ConversationKey) generation.Status {
	return generation.Status{Active: g.active}
}

func summarizerFunc(creds string,
	generate func(context.Context, string) (string, error)) provider.Func {

	return provider.Func{
		ProviderName:   "stub",
		CredentialsKey: creds,
		GenerateFunc:   generate,
	}
}

// TestSchedulerExecutesTask verifies one tick takes a task end to end and
// commits the produced card.
func TestSchedulerExecutesTask(t *testing.T) {
	t.Parallel()

	queue := NewQueue(0, nil)
	store := newMemCardStore()

	scheduler := NewScheduler(SchedulerConfig{}, SchedulerParams{
		Queue:       queue,
		Cards:       store,
		Source:      fixedSource{chatText: "transcript"},
		Generations: stubGens{},
		Summarizer: summarizerFunc("creds-a",
			func(context.Context, string) (string, error) {
				return "  a tidy summary  ", nil
			}),
		Focus: func() chat.ConversationKey { return queueKey },
	})

	task := NewTask(queueKey, KindChat, TriggerManual, 1, 100, time.Now())
	require.True(t, queue.Enqueue(task))

	scheduler.tick(context.Background())

	require.Equal(t, 0, queue.Len())

	set, err := store.ListCards(context.Background(), queueKey, KindChat)
	require.NoError(t, err)
	require.Len(t, set, 1)
	require.Equal(t, "a tidy summary", set[0].Content)
	require.Equal(t, 1, set[0].Start)
	require.Equal(t, 100, set[0].End)
}

// TestSchedulerAutoDiscardOnManualOverride verifies an automatic result is
// thrown away when a manual task for the same kind arrives mid-run.
func TestSchedulerAutoDiscardOnManualOverride(t *testing.T) {
	t.Parallel()

	queue := NewQueue(0, nil)
	store := newMemCardStore()

	var manual Task
	scheduler := NewScheduler(SchedulerConfig{}, SchedulerParams{
		Queue:       queue,
		Cards:       store,
		Source:      fixedSource{chatText: "transcript"},
		Generations: stubGens{},
		Summarizer: summarizerFunc("creds-a",
			func(context.Context, string) (string, error) {
				// The user asks for a manual summary while the
				// automatic one is still generating.
				manual = NewTask(queueKey, KindChat,
					TriggerManual, 1, 50, time.Now())
				queue.Enqueue(manual)
				return "stale automatic result", nil
			}),
		Focus: func() chat.ConversationKey { return queueKey },
	})

	auto := NewTask(queueKey, KindChat, TriggerAuto, 1, 100, time.Now())
	require.True(t, queue.Enqueue(auto))

	scheduler.tick(context.Background())

	// The automatic result was discarded, not committed.
	set, err := store.ListCards(context.Background(), queueKey, KindChat)
	require.NoError(t, err)
	require.Empty(t, set)

	// The manual task is still queued and runs next.
	tasks := queue.Tasks()
	require.Len(t, tasks, 1)
	require.Equal(t, manual.ID, tasks[0].ID)

	scheduler.tick(context.Background())
	set, err = store.ListCards(context.Background(), queueKey, KindChat)
	require.NoError(t, err)
	require.Len(t, set, 1)
}

// TestSchedulerCredentialDeferral verifies a summarizer sharing the chat
// provider's credentials waits out an active generation, while a dedicated
// one proceeds.
func TestSchedulerCredentialDeferral(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		summCreds   string
		chatCreds   string
		genActive   bool
		wantExecute bool
	}{
		{
			name:      "shared creds defer while generating",
			summCreds: "creds-a", chatCreds: "creds-a",
			genActive: true, wantExecute: false,
		},
		{
			name:      "dedicated creds proceed",
			summCreds: "creds-b", chatCreds: "creds-a",
			genActive: true, wantExecute: true,
		},
		{
			name:      "shared creds proceed when idle",
			summCreds: "creds-a", chatCreds: "creds-a",
			genActive: false, wantExecute: true,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			queue := NewQueue(0, nil)
			store := newMemCardStore()

			scheduler := NewScheduler(SchedulerConfig{},
				SchedulerParams{
					Queue:  queue,
					Cards:  store,
					Source: fixedSource{chatText: "text"},
					Generations: stubGens{
						active: tc.genActive,
					},
					Summarizer: summarizerFunc(tc.summCreds,
						func(context.Context,
							string) (string, error) {

							return "summary", nil
						}),
					ChatCredentials: tc.chatCreds,
					Focus: func() chat.ConversationKey {
						return queueKey
					},
				})

			task := NewTask(queueKey, KindChat, TriggerManual,
				1, 100, time.Now())
			require.True(t, queue.Enqueue(task))

			scheduler.tick(context.Background())

			if tc.wantExecute {
				require.Equal(t, 0, queue.Len())
			} else {
				require.Equal(t, 1, queue.Len())
			}
		})
	}
}

// TestSchedulerFailureReporting verifies failed manual tasks surface through
// the report hook and failed automatic ones stay silent, with the queue
// draining either way.
func TestSchedulerFailureReporting(t *testing.T) {
	t.Parallel()

	boom := errors.New("rate limited")

	for _, trigger := range []Trigger{TriggerManual, TriggerAuto} {
		trigger := trigger
		t.Run(string(trigger), func(t *testing.T) {
			t.Parallel()

			queue := NewQueue(0, nil)

			var reported []error
			scheduler := NewScheduler(SchedulerConfig{},
				SchedulerParams{
					Queue:       queue,
					Cards:       newMemCardStore(),
					Source:      fixedSource{chatText: "text"},
					Generations: stubGens{},
					Summarizer: summarizerFunc("creds-a",
						func(context.Context,
							string) (string, error) {

							return "", boom
						}),
					Focus: func() chat.ConversationKey {
						return queueKey
					},
					Report: func(_ Task, err error) {
						reported = append(reported, err)
					},
				})

			task := NewTask(queueKey, KindChat, trigger,
				1, 100, time.Now())
			require.True(t, queue.Enqueue(task))

			scheduler.tick(context.Background())

			require.Equal(t, 0, queue.Len())
			if trigger == TriggerManual {
				require.Len(t, reported, 1)
				require.ErrorIs(t, reported[0], boom)
			} else {
				require.Empty(t, reported)
			}
		})
	}
}

// TestSchedulerGating verifies ticks do nothing without focus, for invalid
// conversations, and for a misconfigured summarizer.
func TestSchedulerGating(t *testing.T) {
	t.Parallel()

	newParams := func(queue *Queue) SchedulerParams {
		return SchedulerParams{
			Queue:       queue,
			Cards:       newMemCardStore(),
			Source:      fixedSource{chatText: "text"},
			Generations: stubGens{},
			Summarizer: summarizerFunc("creds-a",
				func(context.Context, string) (string, error) {
					return "summary", nil
				}),
			Focus: func() chat.ConversationKey { return queueKey },
		}
	}

	t.Run("no focus", func(t *testing.T) {
		t.Parallel()

		queue := NewQueue(0, nil)
		params := newParams(queue)
		params.Focus = func() chat.ConversationKey { return "" }
		scheduler := NewScheduler(SchedulerConfig{}, params)

		queue.Enqueue(NewTask(queueKey, KindChat, TriggerManual,
			1, 10, time.Now()))
		scheduler.tick(context.Background())
		require.Equal(t, 1, queue.Len())
	})

	t.Run("invalid conversation", func(t *testing.T) {
		t.Parallel()

		queue := NewQueue(0, nil)
		params := newParams(queue)
		params.Valid = func(chat.ConversationKey) bool { return false }
		scheduler := NewScheduler(SchedulerConfig{}, params)

		queue.Enqueue(NewTask(queueKey, KindChat, TriggerManual,
			1, 10, time.Now()))
		scheduler.tick(context.Background())
		require.Equal(t, 1, queue.Len())
	})

	t.Run("misconfigured summarizer parks the queue", func(t *testing.T) {
		t.Parallel()

		queue := NewQueue(0, nil)
		params := newParams(queue)
		params.Summarizer = provider.Func{ProviderName: "broken"}
		scheduler := NewScheduler(SchedulerConfig{}, params)

		queue.Enqueue(NewTask(queueKey, KindChat, TriggerManual,
			1, 10, time.Now()))
		scheduler.tick(context.Background())
		require.Equal(t, 1, queue.Len())
	})
}
