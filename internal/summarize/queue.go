package summarize

import (
	"strings"
	"sync"
	"time"

	"github.com/lectern-ai/lectern/internal/chat"
)

// DefaultDebounceWindow suppresses repeat automatic enqueues of an
// identical task within this window.
const DefaultDebounceWindow = 3 * time.Second

// Queue is the ordered set of pending summarization tasks across all
// conversations. Enqueue may be called concurrently with the scheduler
// loop; the queue is append-only until the running task removes itself.
type Queue struct {
	mu       sync.Mutex
	tasks    []Task
	lastAuto map[string]time.Time
	window   time.Duration
	clock    func() time.Time
}

// NewQueue creates an empty queue. A zero window takes the default; a nil
// clock uses time.Now.
func NewQueue(window time.Duration, clock func() time.Time) *Queue {
	if window <= 0 {
		window = DefaultDebounceWindow
	}
	if clock == nil {
		clock = time.Now
	}

	return &Queue{
		lastAuto: make(map[string]time.Time),
		window:   window,
		clock:    clock,
	}
}

// Enqueue inserts a task, applying the queue's admission rules. Automatic
// tasks are debounced per identity; manual tasks first remove any queued
// automatic task for the same (key, kind) regardless of range. An identical
// queued task makes either a no-op. Returns true when the task was
// admitted.
func (q *Queue) Enqueue(t Task) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	id := t.identity()

	if t.Trigger == TriggerAuto {
		now := q.clock()
		if last, ok := q.lastAuto[id]; ok {
			if now.Sub(last) < q.window {
				return false
			}
		}
		q.lastAuto[id] = now
	}

	if t.Trigger == TriggerManual {
		kept := q.tasks[:0]
		for _, queued := range q.tasks {
			auto := queued.Trigger == TriggerAuto &&
				queued.Key == t.Key && queued.Kind == t.Kind
			if !auto {
				kept = append(kept, queued)
			}
		}
		q.tasks = kept
	}

	for _, queued := range q.tasks {
		if queued.identity() == id {
			return false
		}
	}

	q.tasks = append(q.tasks, t)

	return true
}

// SelectNext returns the highest-scoring eligible task, breaking ties by
// earliest CreatedAt and then insertion order. The eligible filter scopes
// selection to the conversation currently in focus; the queue itself is
// conversation-agnostic.
func (q *Queue) SelectNext(eligible func(Task) bool) (Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var (
		best  Task
		found bool
	)
	for _, t := range q.tasks {
		if eligible != nil && !eligible(t) {
			continue
		}

		if !found {
			best, found = t, true
			continue
		}

		if t.score() > best.score() {
			best = t
			continue
		}
		if t.score() == best.score() &&
			t.CreatedAt.Before(best.CreatedAt) {

			best = t
		}
	}

	return best, found
}

// Remove deletes the task with the given ID, if queued.
func (q *Queue) Remove(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	kept := q.tasks[:0]
	for _, t := range q.tasks {
		if t.ID != id {
			kept = append(kept, t)
		}
	}
	q.tasks = kept
}

// PurgeConversation drops every queued task for the given conversation along
// with its debounce stamps, so a later reinstated conversation starts from a
// clean admission state. Called when the conversation is invalidated.
func (q *Queue) PurgeConversation(key chat.ConversationKey) {
	q.mu.Lock()
	defer q.mu.Unlock()

	kept := q.tasks[:0]
	for _, t := range q.tasks {
		if t.Key != key {
			kept = append(kept, t)
		}
	}
	q.tasks = kept

	// Identity keys are "<key>|...", so a prefix match scopes the sweep to
	// this conversation.
	prefix := string(key) + "|"
	for id := range q.lastAuto {
		if strings.HasPrefix(id, prefix) {
			delete(q.lastAuto, id)
		}
	}
}

// HasManualPending reports whether a manual task for (key, kind) is queued.
// The scheduler consults this just before committing an automatic result:
// manual intent queued mid-run wins, and the automatic result is discarded.
func (q *Queue) HasManualPending(key chat.ConversationKey, kind Kind) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, t := range q.tasks {
		if t.Trigger == TriggerManual && t.Key == key && t.Kind == kind {
			return true
		}
	}

	return false
}

// Len returns the number of queued tasks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.tasks)
}

// Tasks returns a snapshot of the queued tasks in insertion order.
func (q *Queue) Tasks() []Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Task, len(q.tasks))
	copy(out, q.tasks)

	return out
}
