package summarize

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lectern-ai/lectern/internal/chat"
)

var (
	queueKey  = chat.ConversationKey("book-1:p1:c1")
	otherKey  = chat.ConversationKey("book-2:p1:c1")
	queueBase = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
)

// testClock is a manually advanced clock.
type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time {
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

// TestQueueDebounce verifies identical automatic tasks are suppressed inside
// the debounce window and admitted after it.
func TestQueueDebounce(t *testing.T) {
	t.Parallel()

	clock := &testClock{now: queueBase}
	queue := NewQueue(3*time.Second, clock.Now)

	task := NewTask(queueKey, KindChat, TriggerAuto, 1, 100, clock.Now())
	require.True(t, queue.Enqueue(task))

	// Same identity inside the window: suppressed even after the first
	// copy is consumed.
	queue.Remove(task.ID)
	clock.Advance(time.Second)
	repeat := NewTask(queueKey, KindChat, TriggerAuto, 1, 100, clock.Now())
	require.False(t, queue.Enqueue(repeat))
	require.Equal(t, 0, queue.Len())

	// Past the window it goes through.
	clock.Advance(3 * time.Second)
	late := NewTask(queueKey, KindChat, TriggerAuto, 1, 100, clock.Now())
	require.True(t, queue.Enqueue(late))

	// A different range is a different identity and is never debounced
	// against the first.
	other := NewTask(queueKey, KindChat, TriggerAuto, 101, 200, clock.Now())
	require.True(t, queue.Enqueue(other))
}

// TestQueueManualPreemption verifies a manual task evicts queued automatic
// tasks for the same conversation and kind only.
func TestQueueManualPreemption(t *testing.T) {
	t.Parallel()

	clock := &testClock{now: queueBase}
	queue := NewQueue(0, clock.Now)

	autoChat := NewTask(queueKey, KindChat, TriggerAuto, 1, 100, clock.Now())
	autoBook := NewTask(queueKey, KindBook, TriggerAuto, 1, 5000, clock.Now())
	autoOther := NewTask(otherKey, KindChat, TriggerAuto, 1, 100, clock.Now())
	require.True(t, queue.Enqueue(autoChat))
	require.True(t, queue.Enqueue(autoBook))
	require.True(t, queue.Enqueue(autoOther))

	manual := NewTask(queueKey, KindChat, TriggerManual, 1, 50, clock.Now())
	require.True(t, queue.Enqueue(manual))

	var ids []string
	for _, task := range queue.Tasks() {
		ids = append(ids, task.ID)
	}
	require.Equal(t, []string{autoBook.ID, autoOther.ID, manual.ID}, ids)

	require.True(t, queue.HasManualPending(queueKey, KindChat))
	require.False(t, queue.HasManualPending(queueKey, KindBook))
	require.False(t, queue.HasManualPending(otherKey, KindChat))
}

// TestQueueDuplicateIdentity verifies exact duplicates are rejected for both
// triggers.
func TestQueueDuplicateIdentity(t *testing.T) {
	t.Parallel()

	clock := &testClock{now: queueBase}
	queue := NewQueue(0, clock.Now)

	manual := NewTask(queueKey, KindChat, TriggerManual, 1, 50, clock.Now())
	require.True(t, queue.Enqueue(manual))

	dup := manual
	dup.ID = "different-id"
	require.False(t, queue.Enqueue(dup))
	require.Equal(t, 1, queue.Len())
}

// TestQueueSelectNext verifies priority order: manual over auto, chat over
// book, FIFO within a score.
func TestQueueSelectNext(t *testing.T) {
	t.Parallel()

	clock := &testClock{now: queueBase}
	queue := NewQueue(0, clock.Now)

	autoBook := NewTask(queueKey, KindBook, TriggerAuto, 1, 5000, clock.Now())
	clock.Advance(time.Second)
	autoChat1 := NewTask(queueKey, KindChat, TriggerAuto, 1, 100, clock.Now())
	clock.Advance(time.Second)
	autoChat2 := NewTask(queueKey, KindChat, TriggerAuto, 101, 200, clock.Now())
	clock.Advance(time.Second)
	manualBook := NewTask(queueKey, KindBook, TriggerManual, 1, 500, clock.Now())

	for _, task := range []Task{autoBook, autoChat1, autoChat2, manualBook} {
		require.True(t, queue.Enqueue(task))
	}

	all := func(Task) bool { return true }

	// Manual book outranks every auto task.
	next, ok := queue.SelectNext(all)
	require.True(t, ok)
	require.Equal(t, manualBook.ID, next.ID)
	queue.Remove(next.ID)

	// Chat outranks book; the two chat tasks resolve FIFO.
	next, ok = queue.SelectNext(all)
	require.True(t, ok)
	require.Equal(t, autoChat1.ID, next.ID)
	queue.Remove(next.ID)

	next, ok = queue.SelectNext(all)
	require.True(t, ok)
	require.Equal(t, autoChat2.ID, next.ID)
	queue.Remove(next.ID)

	next, ok = queue.SelectNext(all)
	require.True(t, ok)
	require.Equal(t, autoBook.ID, next.ID)
	queue.Remove(next.ID)

	_, ok = queue.SelectNext(all)
	require.False(t, ok)
}

// TestQueueSelectNextFilter verifies the eligibility filter scopes selection.
func TestQueueSelectNextFilter(t *testing.T) {
	t.Parallel()

	clock := &testClock{now: queueBase}
	queue := NewQueue(0, clock.Now)

	focused := NewTask(queueKey, KindBook, TriggerAuto, 1, 100, clock.Now())
	elsewhere := NewTask(otherKey, KindChat, TriggerManual, 1, 50, clock.Now())
	require.True(t, queue.Enqueue(focused))
	require.True(t, queue.Enqueue(elsewhere))

	// The higher-scoring task is filtered out; the focused one wins.
	next, ok := queue.SelectNext(func(t Task) bool {
		return t.Key == queueKey
	})
	require.True(t, ok)
	require.Equal(t, focused.ID, next.ID)
}

// TestQueuePurgeConversation verifies invalidation drops only the
// conversation's tasks.
func TestQueuePurgeConversation(t *testing.T) {
	t.Parallel()

	clock := &testClock{now: queueBase}
	queue := NewQueue(0, clock.Now)

	mine := NewTask(queueKey, KindChat, TriggerManual, 1, 50, clock.Now())
	theirs := NewTask(otherKey, KindChat, TriggerManual, 1, 50, clock.Now())
	require.True(t, queue.Enqueue(mine))
	require.True(t, queue.Enqueue(theirs))

	queue.PurgeConversation(queueKey)

	tasks := queue.Tasks()
	require.Len(t, tasks, 1)
	require.Equal(t, theirs.ID, tasks[0].ID)
}

// TestQueuePurgeClearsDebounce verifies purging a conversation also resets
// its debounce stamps, so re-enqueues after invalidation are not suppressed,
// while other conversations' stamps survive.
func TestQueuePurgeClearsDebounce(t *testing.T) {
	t.Parallel()

	clock := &testClock{now: queueBase}
	queue := NewQueue(3*time.Second, clock.Now)

	mine := NewTask(queueKey, KindChat, TriggerAuto, 1, 100, clock.Now())
	theirs := NewTask(otherKey, KindChat, TriggerAuto, 1, 100, clock.Now())
	require.True(t, queue.Enqueue(mine))
	require.True(t, queue.Enqueue(theirs))

	queue.PurgeConversation(queueKey)
	clock.Advance(time.Second)

	// Inside the window, but the purge forgot the stamp.
	again := NewTask(queueKey, KindChat, TriggerAuto, 1, 100, clock.Now())
	require.True(t, queue.Enqueue(again))

	// The other conversation's stamp is untouched and still debounces.
	queue.Remove(theirs.ID)
	repeat := NewTask(otherKey, KindChat, TriggerAuto, 1, 100, clock.Now())
	require.False(t, queue.Enqueue(repeat))
}

// TestTaskNormalization verifies inverted bounds swap on construction.
func TestTaskNormalization(t *testing.T) {
	t.Parallel()

	task := NewTask(queueKey, KindChat, TriggerManual, 50, 10, queueBase)
	require.Equal(t, 10, task.Start)
	require.Equal(t, 50, task.End)
}
