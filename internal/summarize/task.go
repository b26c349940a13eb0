// Package summarize schedules the background summarization jobs that keep
// chat and book prompts bounded: an ordered task queue with debounce and
// manual preemption, a single-flight scheduler loop, and the watermark
// policy that emits automatic tasks as reading progresses.
package summarize

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lectern-ai/lectern/internal/chat"
)

// Kind is the summarized content space.
type Kind string

const (
	// KindChat summarizes a message-index range of the conversation.
	KindChat Kind = "chat"

	// KindBook summarizes a character-offset range of the book.
	KindBook Kind = "book"
)

// Trigger records how a task was requested.
type Trigger string

const (
	// TriggerAuto is a threshold-crossing task produced by the watermark
	// policy.
	TriggerAuto Trigger = "auto"

	// TriggerManual is a task the user requested explicitly. Manual
	// intent preempts pending automatic work of the same kind.
	TriggerManual Trigger = "manual"
)

// Task is one pending summarization job. Start and End are 1-based
// inclusive bounds over message indices (chat) or character offsets (book);
// execution slices content as [Start-1, End).
type Task struct {
	ID        string
	Kind      Kind
	Trigger   Trigger
	Start     int
	End       int
	Key       chat.ConversationKey
	CreatedAt time.Time
}

// NewTask builds a normalized task: inverted bounds are swapped.
func NewTask(key chat.ConversationKey, kind Kind, trigger Trigger,
	start, end int, now time.Time) Task {

	if start > end {
		start, end = end, start
	}

	return Task{
		ID:        uuid.New().String(),
		Kind:      kind,
		Trigger:   trigger,
		Start:     start,
		End:       end,
		Key:       key,
		CreatedAt: now,
	}
}

// identity is the deduplication key: at most one task with the same
// identity exists in the queue at any time.
func (t Task) identity() string {
	return fmt.Sprintf("%s|%s|%s|%d|%d",
		t.Key, t.Kind, t.Trigger, t.Start, t.End,
	)
}

// score ranks the task for selection. Manual outranks auto regardless of
// kind, and chat outranks book at equal trigger. The magnitudes are tuning,
// not a contract; only the relative orderings matter.
func (t Task) score() int {
	score := 10
	if t.Kind == KindChat {
		score = 20
	}
	if t.Trigger == TriggerManual {
		score += 100
	}
	return score
}
