// Package store persists conversations, messages, summary cards, and
// auto-trigger watermarks. The concurrency core consumes it through the
// Storage interface; tests use the in-memory mock.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/lectern-ai/lectern/internal/cards"
	"github.com/lectern-ai/lectern/internal/chat"
	"github.com/lectern-ai/lectern/internal/summarize"
)

var (
	// ErrConversationNotFound is returned when a conversation key does
	// not resolve.
	ErrConversationNotFound = errors.New("conversation not found")
)

// Conversation is the stored identity of a (book, persona, character)
// triple.
type Conversation struct {
	Key         chat.ConversationKey
	BookID      string
	PersonaID   string
	CharacterID string

	// Valid is false once the persona or character backing the
	// conversation has been deleted.
	Valid bool

	CreatedAt time.Time
}

// Storage is the persistence surface the core depends on.
type Storage interface {
	// CreateConversation inserts a conversation record.
	CreateConversation(ctx context.Context, conv Conversation) error

	// GetConversation resolves a conversation by key.
	GetConversation(ctx context.Context,
		key chat.ConversationKey) (Conversation, error)

	// SetConversationValid flips the validity flag.
	SetConversationValid(ctx context.Context, key chat.ConversationKey,
		valid bool) error

	// ListConversations returns all conversations.
	ListConversations(ctx context.Context) ([]Conversation, error)

	// ListMessages returns the conversation's messages ordered by
	// timestamp.
	ListMessages(ctx context.Context,
		key chat.ConversationKey) ([]chat.Message, error)

	// ReplaceMessages overwrites the conversation's message history.
	// Used to commit a generation result (base messages plus revealed
	// bubbles) atomically.
	ReplaceMessages(ctx context.Context, key chat.ConversationKey,
		msgs []chat.Message) error

	// AppendMessages appends messages to the conversation.
	AppendMessages(ctx context.Context, key chat.ConversationKey,
		msgs []chat.Message) error

	// ListCards returns the card set for (key, kind).
	ListCards(ctx context.Context, key chat.ConversationKey,
		kind summarize.Kind) ([]cards.Card, error)

	// SaveCards replaces the card set for (key, kind).
	SaveCards(ctx context.Context, key chat.ConversationKey,
		kind summarize.Kind, set []cards.Card) error

	// GetWatermark returns the persisted auto-trigger mark.
	GetWatermark(ctx context.Context, key chat.ConversationKey,
		kind summarize.Kind) (int, error)

	// SetWatermark persists the auto-trigger mark.
	SetWatermark(ctx context.Context, key chat.ConversationKey,
		kind summarize.Kind, mark int) error
}
