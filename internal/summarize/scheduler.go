package summarize

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/lectern-ai/lectern/internal/cards"
	"github.com/lectern-ai/lectern/internal/chat"
	"github.com/lectern-ai/lectern/internal/generation"
	"github.com/lectern-ai/lectern/internal/provider"
)

// DefaultTickInterval is the scheduler loop period.
const DefaultTickInterval = 500 * time.Millisecond

// CardStore persists summary cards per conversation and kind. The scheduler
// only ever appends normalized sets; merge and edit run through the cards
// package at the call site that owns the user interaction.
type CardStore interface {
	// ListCards returns the current card set for (key, kind).
	ListCards(ctx context.Context, key chat.ConversationKey,
		kind Kind) ([]cards.Card, error)

	// SaveCards replaces the card set for (key, kind).
	SaveCards(ctx context.Context, key chat.ConversationKey,
		kind Kind, set []cards.Card) error
}

// ContentSource supplies the text a task summarizes. Bounds are half-open
// [lo, hi) over message indices (chat) or character offsets (book).
type ContentSource interface {
	ChatSlice(ctx context.Context, key chat.ConversationKey,
		lo, hi int) (string, error)

	BookSlice(ctx context.Context, key chat.ConversationKey,
		lo, hi int) (string, error)
}

// GenerationStatus is the read-only view of chat generation state the
// scheduler uses to avoid contending for shared provider credentials.
type GenerationStatus interface {
	StatusOf(key chat.ConversationKey) generation.Status
}

// QueueStatus is the observable queue state for UI display.
type QueueStatus struct {
	Pending int
	Running bool
}

// SchedulerConfig holds scheduler tuning.
type SchedulerConfig struct {
	// TickInterval is the loop period. Zero takes the default.
	TickInterval time.Duration
}

// SchedulerParams wires the scheduler's collaborators.
type SchedulerParams struct {
	// Queue is the pending task set.
	Queue *Queue

	// Cards persists produced summaries.
	Cards CardStore

	// Source supplies the content slices tasks summarize.
	Source ContentSource

	// Generations reports whether a chat generation is active.
	Generations GenerationStatus

	// Summarizer is the provider summarization calls go to.
	Summarizer provider.Provider

	// ChatCredentials is the chat provider's credentials fingerprint.
	// When it equals the summarizer's, the scheduler defers while a chat
	// generation is active for the focused conversation. Calls against
	// different credentials proceed independently.
	ChatCredentials string

	// Focus returns the conversation currently in focus; only its tasks
	// are eligible.
	Focus func() chat.ConversationKey

	// Valid reports whether the conversation's persona and character
	// both still exist. Nil means always valid.
	Valid func(chat.ConversationKey) bool

	// Report surfaces a failed manual task to the user. Automatic task
	// failures stay silent. May be nil.
	Report func(Task, error)

	// BuildPrompt assembles the summarization prompt. Nil uses a plain
	// default.
	BuildPrompt func(Kind, string) string

	// Log is the structured logger. Nil falls back to slog.Default.
	Log *slog.Logger

	// Clock overrides time.Now for tests.
	Clock func() time.Time
}

// Scheduler executes at most one summarization task at a time, system-wide,
// in priority order. Queue-level failures never stop the loop; the failing
// task is removed and the next tick proceeds to the next candidate.
type Scheduler struct {
	cfg SchedulerConfig

	queue     *Queue
	cards     CardStore
	source    ContentSource
	gens      GenerationStatus
	summarize provider.Provider
	chatCreds string
	focus     func() chat.ConversationKey
	valid     func(chat.ConversationKey) bool
	report    func(Task, error)
	prompt    func(Kind, string) string
	clock     func() time.Time
	log       *slog.Logger

	running atomic.Bool
}

// NewScheduler creates a scheduler. Queue, Cards, Source, Generations, and
// Summarizer are required.
func NewScheduler(cfg SchedulerConfig, p SchedulerParams) *Scheduler {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	if p.Log == nil {
		p.Log = slog.Default()
	}
	if p.BuildPrompt == nil {
		p.BuildPrompt = buildSummaryPrompt
	}
	if p.Clock == nil {
		p.Clock = time.Now
	}

	return &Scheduler{
		cfg:       cfg,
		queue:     p.Queue,
		cards:     p.Cards,
		source:    p.Source,
		gens:      p.Generations,
		summarize: p.Summarizer,
		chatCreds: p.ChatCredentials,
		focus:     p.Focus,
		valid:     p.Valid,
		report:    p.Report,
		prompt:    p.BuildPrompt,
		clock:     p.Clock,
		log:       p.Log.With("component", "summarize"),
	}
}

// Run drives the scheduler loop until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// Status returns the observable queue state.
func (s *Scheduler) Status() QueueStatus {
	return QueueStatus{
		Pending: s.queue.Len(),
		Running: s.running.Load(),
	}
}

// tick picks and executes at most one ready task.
func (s *Scheduler) tick(ctx context.Context) {
	if s.running.Load() {
		return
	}

	var focused chat.ConversationKey
	if s.focus != nil {
		focused = s.focus()
	}
	if focused == "" {
		return
	}

	if s.valid != nil && !s.valid(focused) {
		return
	}

	// A misconfigured summarization API parks the queue rather than
	// burning every task on the same failure.
	if err := s.summarize.Validate(); err != nil {
		return
	}

	task, ok := s.queue.SelectNext(func(t Task) bool {
		return t.Key == focused
	})
	if !ok {
		return
	}

	// Defer while a chat generation is in flight against the same
	// credentials. A dedicated summarization API proceeds regardless.
	if s.gens.StatusOf(focused).Active &&
		s.summarize.Credentials() == s.chatCreds {

		return
	}

	s.running.Store(true)
	defer s.running.Store(false)

	s.execute(ctx, task)
}

// execute runs one task end to end. The task is removed from the queue in
// every outcome: success, failure, or superseded-by-manual discard.
func (s *Scheduler) execute(ctx context.Context, task Task) {
	text, err := s.produce(ctx, task)
	if err != nil {
		s.finish(task, err)
		return
	}

	// A manual task for the same (key, kind) queued after this automatic
	// task began running wins; the automatic result is discarded rather
	// than committed.
	if task.Trigger == TriggerAuto &&
		s.queue.HasManualPending(task.Key, task.Kind) {

		s.log.Debug("Discarding superseded auto summary",
			"key", task.Key, "kind", task.Kind, "task_id", task.ID,
		)
		s.queue.Remove(task.ID)
		return
	}

	if err := s.commit(ctx, task, text); err != nil {
		s.finish(task, err)
		return
	}

	s.queue.Remove(task.ID)

	s.log.Debug("Summary task done",
		"key", task.Key, "kind", task.Kind, "trigger", task.Trigger,
		"start", task.Start, "end", task.End,
	)
}

// produce slices the content and calls the summarizer.
func (s *Scheduler) produce(ctx context.Context,
	task Task) (string, error) {

	lo := task.Start - 1
	if lo < 0 {
		lo = 0
	}

	var (
		content string
		err     error
	)
	switch task.Kind {
	case KindBook:
		content, err = s.source.BookSlice(ctx, task.Key, lo, task.End)
	default:
		content, err = s.source.ChatSlice(ctx, task.Key, lo, task.End)
	}
	if err != nil {
		return "", fmt.Errorf("slice content: %w", err)
	}
	if strings.TrimSpace(content) == "" {
		return "", fmt.Errorf("slice content: %w", provider.ErrEmptyReply)
	}

	text, err := s.summarize.Generate(ctx, s.prompt(task.Kind, content))
	if err != nil {
		return "", fmt.Errorf("summarize: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return "", provider.ErrEmptyReply
	}

	return strings.TrimSpace(text), nil
}

// commit appends the produced card to the task's card set.
func (s *Scheduler) commit(ctx context.Context, task Task,
	text string) error {

	set, err := s.cards.ListCards(ctx, task.Key, task.Kind)
	if err != nil {
		return fmt.Errorf("list cards: %w", err)
	}

	now := s.clock()
	set = append(set, cards.Card{
		ID:        uuid.New().String(),
		Content:   text,
		Start:     task.Start,
		End:       task.End,
		CreatedAt: now,
		UpdatedAt: now,
	})

	if err := s.cards.SaveCards(
		ctx, task.Key, task.Kind, cards.Normalize(set, now),
	); err != nil {
		return fmt.Errorf("save cards: %w", err)
	}

	return nil
}

// finish removes a failed task, surfacing the error only for manual
// triggers.
func (s *Scheduler) finish(task Task, err error) {
	s.queue.Remove(task.ID)

	if task.Trigger == TriggerManual {
		if s.report != nil {
			s.report(task, err)
		}
		s.log.Warn("Manual summary task failed",
			"key", task.Key, "kind", task.Kind, "error", err,
		)
		return
	}

	s.log.Debug("Auto summary task failed",
		"key", task.Key, "kind", task.Kind, "error", err,
	)
}

// buildSummaryPrompt is the fallback summarization prompt builder.
func buildSummaryPrompt(kind Kind, content string) string {
	subject := "conversation so far"
	if kind == KindBook {
		subject = "passage of the book"
	}

	return fmt.Sprintf(
		"Summarize the following %s in a compact paragraph that "+
			"preserves names, events, and open threads:\n\n%s",
		subject, content,
	)
}
