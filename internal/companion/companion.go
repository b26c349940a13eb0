// Package companion wires the generation registry, the session runner, the
// summary queue, and the persistent store into one service the daemon's
// surfaces (MCP, CLI) talk to.
package companion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lectern-ai/lectern/internal/cards"
	"github.com/lectern-ai/lectern/internal/chat"
	"github.com/lectern-ai/lectern/internal/generation"
	"github.com/lectern-ai/lectern/internal/provider"
	"github.com/lectern-ai/lectern/internal/store"
	"github.com/lectern-ai/lectern/internal/summarize"
)

// ErrNoProvider is returned when an operation needs a chat provider and none
// is configured.
var ErrNoProvider = errors.New("no chat provider configured")

// BookSource resolves slices of a book's text by character offset. The
// half-open range [lo, hi) is clamped to the book's bounds.
type BookSource interface {
	Slice(ctx context.Context, bookID string, lo, hi int) (string, error)
}

// Config tunes the companion service.
type Config struct {
	// MinBubbles and MaxBubbles bound reply bubble counts. Zero takes the
	// session defaults.
	MinBubbles int
	MaxBubbles int

	// ChatThreshold is the message count between automatic chat
	// summaries.
	ChatThreshold int

	// BookThreshold is the character-offset distance between automatic
	// book summaries.
	BookThreshold int

	// DebounceWindow suppresses repeat automatic enqueues. Zero takes
	// the queue default.
	DebounceWindow time.Duration

	// TickInterval is the scheduler loop period. Zero takes the
	// scheduler default.
	TickInterval time.Duration
}

// Params wires the companion's collaborators.
type Params struct {
	// Store is the persistent backend.
	Store store.Storage

	// Chat is the provider chat replies go to. May be nil; SendMessage
	// then fails with a config error.
	Chat provider.Provider

	// Summarizer is the provider summarization calls go to. Nil shares
	// the chat provider.
	Summarizer provider.Provider

	// Books resolves book text for book summaries. May be nil; book
	// tasks then fail and automatic ones stay silent.
	Books BookSource

	// ReportSummaryError surfaces a failed manual summary task. May be
	// nil.
	ReportSummaryError func(summarize.Task, error)

	// Log is the structured logger. Nil falls back to slog.Default.
	Log *slog.Logger

	// Clock overrides time.Now for tests.
	Clock func() time.Time
}

// SendOptions carries the prompt-construction inputs for one reply attempt.
// The companion never computes these; the caller owns persona, character,
// and reading position.
type SendOptions struct {
	// Mode is manual or proactive. Empty means manual.
	Mode generation.Mode

	// Prompt holds persona, character, excerpt, and prior-summary text.
	// An empty PriorSummary is filled from the stored card sets.
	Prompt generation.PromptInputs

	// ReadAhead is the excerpt underline directives resolve against.
	ReadAhead string

	// OnUnderline receives the resolved underline range, if any.
	OnUnderline func(generation.Range)

	// Proactive is the externally supplied pending set for proactive
	// mode.
	Proactive []chat.Message
}

// Companion is the daemon-lifetime service tying chat generation and
// summarization together over one store.
type Companion struct {
	cfg Config

	store     store.Storage
	chat      provider.Provider
	books     BookSource
	registry  *generation.Registry
	session   *generation.Session
	queue     *summarize.Queue
	scheduler *summarize.Scheduler
	chatMarks *summarize.Watermark
	bookMarks *summarize.Watermark
	clock     func() time.Time
	log       *slog.Logger

	mu    sync.Mutex
	focus chat.ConversationKey
}

// New creates a companion service. Store is required.
func New(cfg Config, p Params) *Companion {
	if p.Log == nil {
		p.Log = slog.Default()
	}
	if p.Clock == nil {
		p.Clock = time.Now
	}
	if cfg.ChatThreshold <= 0 {
		cfg.ChatThreshold = 100
	}
	if cfg.BookThreshold <= 0 {
		cfg.BookThreshold = 5000
	}

	summarizer := p.Summarizer
	if summarizer == nil {
		summarizer = p.Chat
	}

	chatCreds := ""
	if p.Chat != nil {
		chatCreds = p.Chat.Credentials()
	}
	if summarizer == nil {
		// Nil GenerateFunc fails Validate, so the scheduler parks
		// instead of panicking on a nil provider.
		summarizer = provider.Func{ProviderName: "none"}
	}

	c := &Companion{
		cfg:       cfg,
		store:     p.Store,
		chat:      p.Chat,
		books:     p.Books,
		registry:  generation.NewRegistry(p.Log),
		queue:     summarize.NewQueue(cfg.DebounceWindow, p.Clock),
		chatMarks: summarize.NewWatermark(cfg.ChatThreshold),
		bookMarks: summarize.NewWatermark(cfg.BookThreshold),
		clock:     p.Clock,
		log:       p.Log.With("component", "companion"),
	}
	c.session = generation.NewSession(c.registry, p.Log)

	c.scheduler = summarize.NewScheduler(
		summarize.SchedulerConfig{TickInterval: cfg.TickInterval},
		summarize.SchedulerParams{
			Queue:           c.queue,
			Cards:           adaptCardStore{c.store},
			Source:          contentSource{c},
			Generations:     c.registry,
			Summarizer:      summarizer,
			ChatCredentials: chatCreds,
			Focus:           c.Focus,
			Valid:           c.conversationValid,
			Report:          p.ReportSummaryError,
			Log:             p.Log,
			Clock:           p.Clock,
		},
	)

	return c
}

// Run drives the background summary scheduler until ctx is cancelled.
func (c *Companion) Run(ctx context.Context) {
	c.scheduler.Run(ctx)
}

// SetFocus records the conversation currently on screen and restores its
// persisted auto-trigger marks. Only the focused conversation's summary
// tasks execute.
func (c *Companion) SetFocus(ctx context.Context,
	key chat.ConversationKey) error {

	c.mu.Lock()
	c.focus = key
	c.mu.Unlock()

	if key == "" {
		return nil
	}

	for _, kind := range []summarize.Kind{
		summarize.KindChat, summarize.KindBook,
	} {
		mark, err := c.store.GetWatermark(ctx, key, kind)
		if err != nil {
			return fmt.Errorf("restore watermark: %w", err)
		}
		c.marksFor(kind).Restore(key, mark)
	}

	return nil
}

// Focus returns the conversation currently in focus.
func (c *Companion) Focus() chat.ConversationKey {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.focus
}

// SendMessage appends the user's message and runs one reply attempt. The
// returned result is terminal: duplicates, blocks, and aborts come back as
// silent skips, never errors. On success the new history is persisted and
// the chat auto-summary trigger observes the new message count.
func (c *Companion) SendMessage(ctx context.Context,
	key chat.ConversationKey, content string,
	opts SendOptions) (generation.Result, error) {

	if c.chat == nil {
		return generation.Result{
			State: generation.StateFailedConfig,
			Err:   ErrNoProvider,
		}, nil
	}

	if strings.TrimSpace(content) != "" {
		msg := chat.Message{
			ID:        uuid.New().String(),
			Sender:    chat.SenderUser,
			Content:   content,
			Timestamp: c.clock(),
		}
		if err := c.store.AppendMessages(
			ctx, key, []chat.Message{msg},
		); err != nil {
			return generation.Result{},
				fmt.Errorf("append message: %w", err)
		}
	}

	return c.Reply(ctx, key, opts)
}

// Reply runs one generation attempt against the stored history without
// appending new user input first. Used for retry and for proactive sends.
func (c *Companion) Reply(ctx context.Context, key chat.ConversationKey,
	opts SendOptions) (generation.Result, error) {

	if c.chat == nil {
		return generation.Result{
			State: generation.StateFailedConfig,
			Err:   ErrNoProvider,
		}, nil
	}

	history, err := c.store.ListMessages(ctx, key)
	if err != nil {
		return generation.Result{},
			fmt.Errorf("list messages: %w", err)
	}

	mode := opts.Mode
	if mode == "" {
		mode = generation.ModeManual
	}

	prompt := opts.Prompt
	if prompt.PriorSummary == "" {
		if agg, err := c.AggregateSummary(ctx, key); err == nil {
			prompt.PriorSummary = agg
		}
	}

	result := c.session.Run(ctx, generation.Params{
		Key:         key,
		Mode:        mode,
		History:     history,
		Proactive:   opts.Proactive,
		Provider:    c.chat,
		Prompt:      prompt,
		BuildPrompt: nil,
		MinBubbles:  c.cfg.MinBubbles,
		MaxBubbles:  c.cfg.MaxBubbles,
		ReadAhead:   opts.ReadAhead,
		OnUnderline: opts.OnUnderline,
		Now:         c.clock,
	})
	if !result.OK() {
		return result, nil
	}

	if err := c.store.ReplaceMessages(
		ctx, key, append(result.BaseMessages, result.AIMessages...),
	); err != nil {
		return result, fmt.Errorf("persist reply: %w", err)
	}

	total := len(result.BaseMessages) + len(result.AIMessages)
	if err := c.observe(ctx, key, summarize.KindChat, total); err != nil {
		c.log.Warn("Chat summary trigger failed",
			"key", key, "error", err,
		)
	}

	return result, nil
}

// AbortGeneration cancels the active generation for key, if any.
func (c *Companion) AbortGeneration(key chat.ConversationKey) {
	c.registry.Abort(key, generation.ReasonAborted)
}

// GenerationStatus reads the conversation's generation state.
func (c *Companion) GenerationStatus(
	key chat.ConversationKey) generation.Status {

	return c.registry.StatusOf(key)
}

// SubscribeStatus registers a callback for generation status changes. The
// returned function unsubscribes.
func (c *Companion) SubscribeStatus(
	cb func(generation.StatusEvent)) func() {

	return c.registry.Subscribe(cb)
}

// QueueStatus returns the observable summary queue state.
func (c *Companion) QueueStatus() summarize.QueueStatus {
	return c.scheduler.Status()
}

// Invalidate marks the conversation invalid: the active generation aborts,
// queued summary tasks drop, and the stored validity flag flips off.
func (c *Companion) Invalidate(ctx context.Context,
	key chat.ConversationKey) error {

	c.registry.Invalidate(key)
	c.queue.PurgeConversation(key)

	if err := c.store.SetConversationValid(ctx, key, false); err != nil {
		return fmt.Errorf("set conversation valid: %w", err)
	}

	return nil
}

// Reinstate clears the invalid mark so the conversation may generate again.
func (c *Companion) Reinstate(ctx context.Context,
	key chat.ConversationKey) error {

	c.registry.Reinstate(key)

	if err := c.store.SetConversationValid(ctx, key, true); err != nil {
		return fmt.Errorf("set conversation valid: %w", err)
	}

	return nil
}

// ReportProgress records the reader's current character offset in the book,
// enqueueing automatic book summaries for every threshold crossed.
func (c *Companion) ReportProgress(ctx context.Context,
	key chat.ConversationKey, offset int) error {

	return c.observe(ctx, key, summarize.KindBook, offset)
}

// RequestSummary enqueues a manual summarization task over the given
// 1-based inclusive range. Manual tasks preempt queued automatic tasks for
// the same (key, kind).
func (c *Companion) RequestSummary(key chat.ConversationKey,
	kind summarize.Kind, start, end int) summarize.Task {

	task := summarize.NewTask(
		key, kind, summarize.TriggerManual, start, end, c.clock(),
	)
	c.queue.Enqueue(task)

	return task
}

// Cards returns the stored card set for (key, kind) in range order.
func (c *Companion) Cards(ctx context.Context, key chat.ConversationKey,
	kind summarize.Kind) ([]cards.Card, error) {

	set, err := c.store.ListCards(ctx, key, kind)
	if err != nil {
		return nil, fmt.Errorf("list cards: %w", err)
	}

	return cards.Sorted(set), nil
}

// MergeCards merges the identified cards into one and persists the result.
// Fewer than two resolvable IDs is a no-op.
func (c *Companion) MergeCards(ctx context.Context,
	key chat.ConversationKey, kind summarize.Kind,
	ids []string) (bool, error) {

	set, err := c.store.ListCards(ctx, key, kind)
	if err != nil {
		return false, fmt.Errorf("list cards: %w", err)
	}

	merged, ok := cards.Merge(set, ids, c.clock())
	if !ok {
		return false, nil
	}

	if err := c.store.SaveCards(ctx, key, kind, merged); err != nil {
		return false, fmt.Errorf("save cards: %w", err)
	}

	return true, nil
}

// EditCard rewrites one card's content and range. Zero range bounds keep
// the card's current ones.
func (c *Companion) EditCard(ctx context.Context,
	key chat.ConversationKey, kind summarize.Kind,
	id, content string, start, end int) error {

	set, err := c.store.ListCards(ctx, key, kind)
	if err != nil {
		return fmt.Errorf("list cards: %w", err)
	}

	for _, card := range set {
		if card.ID != id {
			continue
		}
		if start == 0 {
			start = card.Start
		}
		if end == 0 {
			end = card.End
		}
		break
	}

	set = cards.Edit(set, id, content, start, end, c.clock())

	if err := c.store.SaveCards(ctx, key, kind, set); err != nil {
		return fmt.Errorf("save cards: %w", err)
	}

	return nil
}

// DeleteCard removes one card.
func (c *Companion) DeleteCard(ctx context.Context,
	key chat.ConversationKey, kind summarize.Kind, id string) error {

	set, err := c.store.ListCards(ctx, key, kind)
	if err != nil {
		return fmt.Errorf("list cards: %w", err)
	}

	set = cards.Delete(set, id, c.clock())

	if err := c.store.SaveCards(ctx, key, kind, set); err != nil {
		return fmt.Errorf("save cards: %w", err)
	}

	return nil
}

// AggregateSummary joins the chat and book card sets into the prior-summary
// text prompts carry.
func (c *Companion) AggregateSummary(ctx context.Context,
	key chat.ConversationKey) (string, error) {

	var parts []string
	for _, kind := range []summarize.Kind{
		summarize.KindBook, summarize.KindChat,
	} {
		set, err := c.store.ListCards(ctx, key, kind)
		if err != nil {
			return "", fmt.Errorf("list cards: %w", err)
		}
		if agg := cards.Aggregate(set); agg != "" {
			parts = append(parts, agg)
		}
	}

	return strings.Join(parts, "\n"), nil
}

// observe feeds a counter into the kind's watermark, enqueueing one
// automatic task per crossed threshold and persisting the advanced mark.
func (c *Companion) observe(ctx context.Context, key chat.ConversationKey,
	kind summarize.Kind, counter int) error {

	marks := c.marksFor(kind)
	windows := marks.Observe(key, counter)
	if len(windows) == 0 {
		return nil
	}

	now := c.clock()
	for _, w := range windows {
		c.queue.Enqueue(summarize.NewTask(
			key, kind, summarize.TriggerAuto, w.Start, w.End, now,
		))
	}

	if err := c.store.SetWatermark(
		ctx, key, kind, marks.Mark(key),
	); err != nil {
		return fmt.Errorf("persist watermark: %w", err)
	}

	return nil
}

// marksFor returns the kind's watermark policy.
func (c *Companion) marksFor(kind summarize.Kind) *summarize.Watermark {
	if kind == summarize.KindBook {
		return c.bookMarks
	}
	return c.chatMarks
}

// conversationValid consults the stored validity flag. Unknown conversations
// count as valid so fresh ones summarize without a prior Create round-trip.
func (c *Companion) conversationValid(key chat.ConversationKey) bool {
	conv, err := c.store.GetConversation(context.Background(), key)
	if errors.Is(err, store.ErrConversationNotFound) {
		return true
	}
	if err != nil {
		return false
	}

	return conv.Valid
}

// adaptCardStore narrows Storage to the scheduler's CardStore.
type adaptCardStore struct {
	store store.Storage
}

func (a adaptCardStore) ListCards(ctx context.Context,
	key chat.ConversationKey, kind summarize.Kind) ([]cards.Card, error) {

	return a.store.ListCards(ctx, key, kind)
}

func (a adaptCardStore) SaveCards(ctx context.Context,
	key chat.ConversationKey, kind summarize.Kind,
	set []cards.Card) error {

	return a.store.SaveCards(ctx, key, kind, set)
}

// contentSource materializes task content slices from the store and the
// book source.
type contentSource struct {
	c *Companion
}

// ChatSlice joins the messages in [lo, hi) as sender-labelled lines.
func (s contentSource) ChatSlice(ctx context.Context,
	key chat.ConversationKey, lo, hi int) (string, error) {

	msgs, err := s.c.store.ListMessages(ctx, key)
	if err != nil {
		return "", fmt.Errorf("list messages: %w", err)
	}

	if lo < 0 {
		lo = 0
	}
	if hi > len(msgs) {
		hi = len(msgs)
	}
	if lo >= hi {
		return "", nil
	}

	var b strings.Builder
	for _, msg := range msgs[lo:hi] {
		fmt.Fprintf(&b, "[%s] %s\n", msg.Sender, msg.Content)
	}

	return b.String(), nil
}

// BookSlice resolves the conversation's book and slices its text by
// character offset.
func (s contentSource) BookSlice(ctx context.Context,
	key chat.ConversationKey, lo, hi int) (string, error) {

	if s.c.books == nil {
		return "", errors.New("no book source configured")
	}

	conv, err := s.c.store.GetConversation(ctx, key)
	if err != nil {
		return "", fmt.Errorf("get conversation: %w", err)
	}

	return s.c.books.Slice(ctx, conv.BookID, lo, hi)
}
