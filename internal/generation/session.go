package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lectern-ai/lectern/internal/chat"
	"github.com/lectern-ai/lectern/internal/provider"
)

// AttemptState names a state in the per-attempt lifecycle:
//
//	created → validating → (failed-config)
//	                     | awaiting-mutex → (duplicate | blocked)
//	                                      | running → (aborted | failed | ok)
type AttemptState string

const (
	StateCreated       AttemptState = "created"
	StateValidating    AttemptState = "validating"
	StateAwaitingMutex AttemptState = "awaiting-mutex"
	StateRunning       AttemptState = "running"

	// Terminal states.
	StateFailedConfig AttemptState = "failed-config"
	StateDuplicate    AttemptState = "duplicate"
	StateBlocked      AttemptState = "blocked"
	StateAborted      AttemptState = "aborted"
	StateFailed       AttemptState = "failed"
	StateOK           AttemptState = "ok"
)

const (
	// DefaultMinBubbles is the lower bound on reply bubbles when the
	// caller does not specify one.
	DefaultMinBubbles = 1

	// DefaultMaxBubbles is the upper bound on reply bubbles when the
	// caller does not specify one.
	DefaultMaxBubbles = 5
)

// PromptInputs are the prompt-construction inputs supplied by collaborators.
// The core never computes these.
type PromptInputs struct {
	// PersonaText describes the reader-side persona.
	PersonaText string

	// CharacterText describes the AI character.
	CharacterText string

	// Excerpt is the reading-position excerpt of the book.
	Excerpt string

	// PriorSummary is the aggregate prefix summary of chat and book.
	PriorSummary string
}

// Params configures one generation attempt.
type Params struct {
	// Key scopes the attempt's mutual exclusion.
	Key chat.ConversationKey

	// Mode is manual or proactive.
	Mode Mode

	// History is the conversation's message history, read-only.
	History []chat.Message

	// Proactive is the externally supplied pending set for proactive
	// mode. May be empty.
	Proactive []chat.Message

	// Provider is the generate capability for this attempt.
	Provider provider.Provider

	// Prompt carries the prompt-construction inputs.
	Prompt PromptInputs

	// BuildPrompt assembles the prompt text. When nil a plain
	// concatenating builder is used.
	BuildPrompt func(PromptInputs, []chat.Message, []chat.Message) string

	// MinBubbles and MaxBubbles bound the reply bubble count. Zero
	// values take the defaults.
	MinBubbles int
	MaxBubbles int

	// ReadAhead is the excerpt underline directives resolve against.
	ReadAhead string

	// OnUnderline is invoked with the resolved character range when the
	// reply carries an underline directive that resolves. Resolution
	// failure is dropped silently.
	OnUnderline func(Range)

	// Now is the clock used for synthetic bubble timestamps. Nil means
	// time.Now.
	Now func() time.Time
}

// Result is the typed outcome of a generation attempt. Errors never
// propagate past this boundary; only the UI layer decides whether to
// surface them.
type Result struct {
	// State is the terminal attempt state.
	State AttemptState

	// Err is set for failed-config and failed outcomes.
	Err error

	// Silent is true when the outcome must not be surfaced to the user:
	// aborts always, and failures in proactive mode.
	Silent bool

	// BaseMessages is the history with the folded-in pending messages
	// marked sent. Only set on ok.
	BaseMessages []chat.Message

	// AIMessages are the new bubbles in model-output order. Only set on
	// ok. The caller commits them incrementally and persists the final
	// state even if the UI unmounts mid-reveal.
	AIMessages []chat.Message

	// GenerationID links all bubbles of this attempt.
	GenerationID string
}

// OK reports whether the attempt produced a reply.
func (r Result) OK() bool {
	return r.State == StateOK
}

// Skipped reports whether the attempt ended without mutating chat state.
func (r Result) Skipped() bool {
	return !r.OK()
}

// Session drives chat-reply generation attempts under the mutual exclusion
// granted by a Registry.
type Session struct {
	registry *Registry
	log      *slog.Logger
}

// NewSession creates a session runner bound to the given registry.
func NewSession(registry *Registry, log *slog.Logger) *Session {
	if log == nil {
		log = slog.Default()
	}

	return &Session{
		registry: registry,
		log:      log.With("component", "session"),
	}
}

// Run drives one attempt end to end. The registry slot, once claimed, is
// always released exactly once regardless of outcome.
func (s *Session) Run(ctx context.Context, p Params) Result {
	// Validate configuration before contending for the mutex.
	if p.Provider == nil {
		return Result{
			State:  StateFailedConfig,
			Err:    provider.ErrInvalidConfig,
			Silent: p.Mode == ModeProactive,
		}
	}
	if err := p.Provider.Validate(); err != nil {
		return Result{
			State:  StateFailedConfig,
			Err:    err,
			Silent: p.Mode == ModeProactive,
		}
	}

	// Determine the messages this attempt folds into context.
	var pending []chat.Message
	switch p.Mode {
	case ModeProactive:
		pending = p.Proactive
	default:
		pending = chat.PendingUserMessages(p.History)
	}

	begin := s.registry.Begin(ctx, p.Key, p.Mode)
	switch begin.Status {
	case BeginDuplicate:
		return Result{State: StateDuplicate, Silent: true}
	case BeginBlocked:
		return Result{State: StateBlocked, Silent: true}
	}

	defer s.registry.Finish(p.Key, begin.RequestID, ReasonCompleted)

	builder := p.BuildPrompt
	if builder == nil {
		builder = buildDefaultPrompt
	}
	prompt := builder(p.Prompt, p.History, pending)

	raw, err := p.Provider.Generate(begin.Ctx, prompt)
	if err != nil {
		if aborted(begin.Ctx, err) {
			return Result{State: StateAborted, Silent: true}
		}
		return Result{
			State:  StateFailed,
			Err:    fmt.Errorf("generate: %w", err),
			Silent: p.Mode == ModeProactive,
		}
	}

	// Re-check cancellation at the suspension resume point. An abort
	// that lands between the response and here must still win.
	if begin.Ctx.Err() != nil {
		return Result{State: StateAborted, Silent: true}
	}

	stripped, directive := ExtractUnderline(raw)

	minB, maxB := p.MinBubbles, p.MaxBubbles
	if minB <= 0 {
		minB = DefaultMinBubbles
	}
	if maxB <= 0 {
		maxB = DefaultMaxBubbles
	}

	bubbles := NormalizeBubbleLines(stripped, minB, maxB)
	if len(bubbles) == 0 {
		return Result{
			State:  StateFailed,
			Err:    provider.ErrEmptyReply,
			Silent: p.Mode == ModeProactive,
		}
	}

	now := time.Now
	if p.Now != nil {
		now = p.Now
	}

	// Stamp every bubble with a shared generation ID and strictly
	// increasing synthetic timestamps so ordering stays deterministic.
	generationID := uuid.New().String()
	base := now()
	aiMessages := make([]chat.Message, len(bubbles))
	for i, bubble := range bubbles {
		aiMessages[i] = chat.Message{
			ID:           uuid.New().String(),
			Sender:       chat.SenderCharacter,
			Content:      bubble,
			Timestamp:    base.Add(time.Duration(i) * time.Millisecond),
			GenerationID: generationID,
			SentToAI:     true,
		}
	}

	pendingIDs := make([]string, len(pending))
	for i, msg := range pending {
		pendingIDs[i] = msg.ID
	}
	baseMessages := chat.MarkSent(p.History, pendingIDs)

	directive.WhenSome(func(d string) {
		ResolveUnderline(d, p.ReadAhead).WhenSome(func(rg Range) {
			if p.OnUnderline != nil {
				p.OnUnderline(rg)
			}
		})
	})

	s.log.Debug("Generation ok",
		"key", p.Key, "mode", p.Mode,
		"bubbles", len(aiMessages), "generation_id", generationID,
	)

	return Result{
		State:        StateOK,
		BaseMessages: baseMessages,
		AIMessages:   aiMessages,
		GenerationID: generationID,
	}
}

// aborted reports whether err stems from the attempt's cancellation token.
func aborted(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return true
	}
	return errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// buildDefaultPrompt is the fallback prompt builder: a plain concatenation
// of the supplied inputs, the history tail, and the pending messages.
func buildDefaultPrompt(in PromptInputs, history,
	pending []chat.Message) string {

	var b strings.Builder

	writeSection := func(label, text string) {
		if strings.TrimSpace(text) == "" {
			return
		}
		b.WriteString(label)
		b.WriteString(":\n")
		b.WriteString(strings.TrimSpace(text))
		b.WriteString("\n\n")
	}

	writeSection("Persona", in.PersonaText)
	writeSection("Character", in.CharacterText)
	writeSection("Summary so far", in.PriorSummary)
	writeSection("Current passage", in.Excerpt)

	if len(history) > 0 {
		b.WriteString("Conversation:\n")
		for _, msg := range history {
			fmt.Fprintf(&b, "[%s] %s\n", msg.Sender, msg.Content)
		}
		b.WriteString("\n")
	}

	for _, msg := range pending {
		fmt.Fprintf(&b, "[%s] %s\n", msg.Sender, msg.Content)
	}

	return strings.TrimSpace(b.String())
}
