package summarize

import (
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/lectern-ai/lectern/internal/chat"
)

// TestWatermarkObserve verifies one window per threshold crossing, including
// several at once.
func TestWatermarkObserve(t *testing.T) {
	t.Parallel()

	marks := NewWatermark(100)

	// Below the first threshold: nothing.
	require.Nil(t, marks.Observe(queueKey, 99))
	require.Equal(t, 0, marks.Mark(queueKey))

	// Exactly at it: one window.
	windows := marks.Observe(queueKey, 100)
	require.Equal(t, []Window{{Start: 1, End: 100}}, windows)
	require.Equal(t, 100, marks.Mark(queueKey))

	// Same counter again: already marked.
	require.Nil(t, marks.Observe(queueKey, 100))

	// A jump over several thresholds emits every missed window in order.
	windows = marks.Observe(queueKey, 350)
	require.Equal(t, []Window{
		{Start: 101, End: 200},
		{Start: 201, End: 300},
	}, windows)
	require.Equal(t, 300, marks.Mark(queueKey))

	// Conversations do not share marks.
	require.Equal(t, 0, marks.Mark(otherKey))
}

// TestWatermarkRestore verifies marks only move forward.
func TestWatermarkRestore(t *testing.T) {
	t.Parallel()

	marks := NewWatermark(100)

	marks.Restore(queueKey, 200)
	require.Equal(t, 200, marks.Mark(queueKey))

	// Restoring backwards is ignored.
	marks.Restore(queueKey, 100)
	require.Equal(t, 200, marks.Mark(queueKey))

	// Observation resumes from the restored mark.
	windows := marks.Observe(queueKey, 310)
	require.Equal(t, []Window{{Start: 201, End: 300}}, windows)
}

// TestWatermarkProperties checks that emitted windows tile the counter space
// contiguously with no gaps or overlaps.
func TestWatermarkProperties(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		threshold := rapid.IntRange(1, 50).Draw(t, "threshold")
		marks := NewWatermark(threshold)
		key := chat.ConversationKey("k")

		counter := 0
		next := 1
		steps := rapid.IntRange(1, 20).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			counter += rapid.IntRange(0, 120).Draw(t, "delta")

			for _, w := range marks.Observe(key, counter) {
				if w.Start != next {
					t.Fatalf("window starts at %d, want %d",
						w.Start, next)
				}
				if w.End != w.Start+threshold-1 {
					t.Fatalf("window %v is not one threshold wide", w)
				}
				if w.End > counter {
					t.Fatalf("window %v passes counter %d",
						w, counter)
				}
				next = w.End + 1
			}
		}

		if remaining := counter - marks.Mark(key); remaining >= threshold {
			t.Fatalf("mark lags counter by %d with threshold %d",
				remaining, threshold)
		}
	})
}
