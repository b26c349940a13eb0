package generation

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/lightningnetwork/lnd/fn/v2"

	"github.com/lectern-ai/lectern/internal/chat"
)

// Mode distinguishes why a generation attempt was started.
type Mode string

const (
	// ModeManual is a reply the user explicitly requested.
	ModeManual Mode = "manual"

	// ModeProactive is a reply the character initiates unprompted.
	ModeProactive Mode = "proactive"
)

// BeginStatus is the outcome of a Begin call.
type BeginStatus string

const (
	// BeginStarted means the caller now owns the conversation's single
	// generation slot and must call Finish exactly once.
	BeginStarted BeginStatus = "started"

	// BeginDuplicate means a generation is already active for the key.
	// The new attempt must perform no side effects.
	BeginDuplicate BeginStatus = "duplicate"

	// BeginBlocked means the conversation has been invalidated and must
	// not start new generations.
	BeginBlocked BeginStatus = "blocked"
)

// FinishReason records why a generation slot was released.
type FinishReason string

const (
	// ReasonCompleted is the normal release at the end of an attempt.
	ReasonCompleted FinishReason = "completed"

	// ReasonAborted is a release forced by cancellation.
	ReasonAborted FinishReason = "aborted"

	// ReasonInvalidated is a release forced by the conversation's
	// persona/character pairing becoming invalid.
	ReasonInvalidated FinishReason = "invalidated"
)

// BeginResult is returned by Begin. Ctx is only set when Status is
// BeginStarted; it is the cancellation token for the attempt and is
// cancelled by Abort.
type BeginResult struct {
	Status    BeginStatus
	RequestID string
	Ctx       context.Context
}

// Status is a point-in-time read of a conversation's generation state.
type Status struct {
	// Active is true while a generation holds the key's slot.
	Active bool

	// Mode is the active generation's mode, None when idle.
	Mode fn.Option[Mode]
}

// StatusEvent is published on every Begin, Finish, and Abort, scoped to one
// conversation key.
type StatusEvent struct {
	Key    chat.ConversationKey
	Active bool
	Mode   fn.Option[Mode]
}

// activeRequest is the registry's record of one in-flight generation.
type activeRequest struct {
	requestID string
	mode      Mode
	cancel    context.CancelFunc
}

// Registry guarantees at most one active generation per conversation key and
// lets callers query and observe that state. It is an injectable service
// with process lifetime; tests instantiate a fresh one per case.
type Registry struct {
	log *slog.Logger

	mu      sync.Mutex
	active  map[chat.ConversationKey]*activeRequest
	invalid map[chat.ConversationKey]struct{}
	subs    map[uint64]func(StatusEvent)
	nextSub uint64
}

// NewRegistry creates an empty registry.
func NewRegistry(log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}

	return &Registry{
		log:     log.With("component", "generation"),
		active:  make(map[chat.ConversationKey]*activeRequest),
		invalid: make(map[chat.ConversationKey]struct{}),
		subs:    make(map[uint64]func(StatusEvent)),
	}
}

// Begin claims the generation slot for key. It is atomic with respect to
// concurrent callers: among Begin calls racing on the same key, exactly one
// observes BeginStarted until Finish or Abort releases the slot. The
// returned context is derived from ctx and is additionally cancelled by
// Abort.
func (r *Registry) Begin(ctx context.Context, key chat.ConversationKey,
	mode Mode) BeginResult {

	r.mu.Lock()

	if _, blocked := r.invalid[key]; blocked {
		r.mu.Unlock()
		return BeginResult{Status: BeginBlocked}
	}

	if _, busy := r.active[key]; busy {
		r.mu.Unlock()
		return BeginResult{Status: BeginDuplicate}
	}

	genCtx, cancel := context.WithCancel(ctx)
	req := &activeRequest{
		requestID: uuid.New().String(),
		mode:      mode,
		cancel:    cancel,
	}
	r.active[key] = req
	r.emit(StatusEvent{
		Key:    key,
		Active: true,
		Mode:   fn.Some(mode),
	})

	r.mu.Unlock()

	r.log.Debug("Generation started",
		"key", key, "mode", mode, "request_id", req.requestID,
	)

	return BeginResult{
		Status:    BeginStarted,
		RequestID: req.requestID,
		Ctx:       genCtx,
	}
}

// Finish releases the slot for key if and only if requestID matches the
// currently active request. A stale requestID is a no-op, never an error, so
// a cancelled attempt can never clobber a newer one's state.
func (r *Registry) Finish(key chat.ConversationKey, requestID string,
	reason FinishReason) {

	r.mu.Lock()

	req, ok := r.active[key]
	if !ok || req.requestID != requestID {
		r.mu.Unlock()
		return
	}

	delete(r.active, key)
	req.cancel()
	r.emit(StatusEvent{Key: key, Active: false})

	r.mu.Unlock()

	r.log.Debug("Generation finished",
		"key", key, "request_id", requestID, "reason", reason,
	)
}

// Abort cancels the active generation for key, if any, and releases the
// slot. The aborted session observes its context cancellation and resolves
// silently.
func (r *Registry) Abort(key chat.ConversationKey, reason FinishReason) {
	r.mu.Lock()

	req, ok := r.active[key]
	if !ok {
		r.mu.Unlock()
		return
	}

	delete(r.active, key)
	req.cancel()
	r.emit(StatusEvent{Key: key, Active: false})

	r.mu.Unlock()

	r.log.Debug("Generation aborted", "key", key, "reason", reason)
}

// Invalidate marks the conversation invalid, blocking new generations, and
// aborts any active one. Used when the persona or character backing the
// conversation is deleted.
func (r *Registry) Invalidate(key chat.ConversationKey) {
	r.mu.Lock()
	r.invalid[key] = struct{}{}
	r.mu.Unlock()

	r.Abort(key, ReasonInvalidated)
}

// Reinstate clears the invalid mark so new generations may start again.
func (r *Registry) Reinstate(key chat.ConversationKey) {
	r.mu.Lock()
	delete(r.invalid, key)
	r.mu.Unlock()
}

// StatusOf is a pure read of the key's generation state.
func (r *Registry) StatusOf(key chat.ConversationKey) Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	req, ok := r.active[key]
	if !ok {
		return Status{}
	}

	return Status{
		Active: true,
		Mode:   fn.Some(req.mode),
	}
}

// Subscribe registers a callback for status events. Events are delivered
// under the registry's lock, so their order always matches the order of the
// state changes that caused them. Callbacks must be fast and must not call
// back into the registry. The returned function unsubscribes.
func (r *Registry) Subscribe(cb func(StatusEvent)) func() {
	r.mu.Lock()
	id := r.nextSub
	r.nextSub++
	r.subs[id] = cb
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		delete(r.subs, id)
		r.mu.Unlock()
	}
}

// emit delivers an event to all current subscribers. Callers must hold mu:
// delivering under the lock keeps the event stream ordered with the state
// changes, so a racing Begin and Abort on the same key can never leave
// subscribers with a final event that disagrees with StatusOf.
func (r *Registry) emit(ev StatusEvent) {
	for _, cb := range r.subs {
		cb(ev)
	}
}
