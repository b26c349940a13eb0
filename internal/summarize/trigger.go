package summarize

import (
	"sync"

	"github.com/lectern-ai/lectern/internal/chat"
)

// Window is one threshold-sized summarization range produced by the
// watermark policy.
type Window struct {
	Start int
	End   int
}

// Watermark watches a monotonically increasing counter per conversation
// (message count for chat, read character-offset for book) against a
// high-water mark and a fixed threshold, emitting one window per threshold
// crossing. Multiple crossings between checks produce multiple windows.
type Watermark struct {
	mu        sync.Mutex
	threshold int
	marks     map[chat.ConversationKey]int
}

// NewWatermark creates a watermark policy with the given threshold.
func NewWatermark(threshold int) *Watermark {
	if threshold <= 0 {
		threshold = 1
	}

	return &Watermark{
		threshold: threshold,
		marks:     make(map[chat.ConversationKey]int),
	}
}

// Observe reports the counter's current value and returns the windows for
// every threshold multiple passed since the mark, advancing the mark past
// them. A counter that has not crossed returns nil.
func (w *Watermark) Observe(key chat.ConversationKey, counter int) []Window {
	w.mu.Lock()
	defer w.mu.Unlock()

	var windows []Window
	for w.marks[key]+w.threshold <= counter {
		mark := w.marks[key]
		windows = append(windows, Window{
			Start: mark + 1,
			End:   mark + w.threshold,
		})
		w.marks[key] = mark + w.threshold
	}

	return windows
}

// Mark returns the current high-water mark for a conversation.
func (w *Watermark) Mark(key chat.ConversationKey) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.marks[key]
}

// Restore seeds the mark from persisted state. Marks only move forward;
// a restore below the current mark is ignored.
func (w *Watermark) Restore(key chat.ConversationKey, mark int) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if mark > w.marks[key] {
		w.marks[key] = mark
	}
}
