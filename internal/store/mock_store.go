package store

import (
	"context"
	"sync"

	"github.com/lectern-ai/lectern/internal/cards"
	"github.com/lectern-ai/lectern/internal/chat"
	"github.com/lectern-ai/lectern/internal/summarize"
)

// MockStore is an in-memory Storage implementation for tests.
type MockStore struct {
	mu            sync.Mutex
	conversations map[chat.ConversationKey]Conversation
	messages      map[chat.ConversationKey][]chat.Message
	cards         map[cardScope][]cards.Card
	watermarks    map[cardScope]int
}

// cardScope keys per-conversation, per-kind state.
type cardScope struct {
	key  chat.ConversationKey
	kind summarize.Kind
}

// NewMockStore creates an empty mock store.
func NewMockStore() *MockStore {
	return &MockStore{
		conversations: make(map[chat.ConversationKey]Conversation),
		messages:      make(map[chat.ConversationKey][]chat.Message),
		cards:         make(map[cardScope][]cards.Card),
		watermarks:    make(map[cardScope]int),
	}
}

// CreateConversation inserts a conversation record.
func (m *MockStore) CreateConversation(_ context.Context,
	conv Conversation) error {

	m.mu.Lock()
	defer m.mu.Unlock()

	m.conversations[conv.Key] = conv

	return nil
}

// GetConversation resolves a conversation by key.
func (m *MockStore) GetConversation(_ context.Context,
	key chat.ConversationKey) (Conversation, error) {

	m.mu.Lock()
	defer m.mu.Unlock()

	conv, ok := m.conversations[key]
	if !ok {
		return Conversation{}, ErrConversationNotFound
	}

	return conv, nil
}

// SetConversationValid flips the validity flag.
func (m *MockStore) SetConversationValid(_ context.Context,
	key chat.ConversationKey, valid bool) error {

	m.mu.Lock()
	defer m.mu.Unlock()

	conv, ok := m.conversations[key]
	if !ok {
		return ErrConversationNotFound
	}
	conv.Valid = valid
	m.conversations[key] = conv

	return nil
}

// ListConversations returns all conversations.
func (m *MockStore) ListConversations(
	_ context.Context) ([]Conversation, error) {

	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Conversation, 0, len(m.conversations))
	for _, conv := range m.conversations {
		out = append(out, conv)
	}

	return out, nil
}

// ListMessages returns the conversation's messages.
func (m *MockStore) ListMessages(_ context.Context,
	key chat.ConversationKey) ([]chat.Message, error) {

	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]chat.Message{}, m.messages[key]...), nil
}

// ReplaceMessages overwrites the conversation's message history.
func (m *MockStore) ReplaceMessages(_ context.Context,
	key chat.ConversationKey, msgs []chat.Message) error {

	m.mu.Lock()
	defer m.mu.Unlock()

	m.messages[key] = append([]chat.Message{}, msgs...)

	return nil
}

// AppendMessages appends messages to the conversation.
func (m *MockStore) AppendMessages(_ context.Context,
	key chat.ConversationKey, msgs []chat.Message) error {

	m.mu.Lock()
	defer m.mu.Unlock()

	m.messages[key] = append(m.messages[key], msgs...)

	return nil
}

// ListCards returns the card set for (key, kind).
func (m *MockStore) ListCards(_ context.Context, key chat.ConversationKey,
	kind summarize.Kind) ([]cards.Card, error) {

	m.mu.Lock()
	defer m.mu.Unlock()

	scope := cardScope{key: key, kind: kind}

	return append([]cards.Card{}, m.cards[scope]...), nil
}

// SaveCards replaces the card set for (key, kind).
func (m *MockStore) SaveCards(_ context.Context, key chat.ConversationKey,
	kind summarize.Kind, set []cards.Card) error {

	m.mu.Lock()
	defer m.mu.Unlock()

	scope := cardScope{key: key, kind: kind}
	m.cards[scope] = append([]cards.Card{}, set...)

	return nil
}

// GetWatermark returns the persisted auto-trigger mark.
func (m *MockStore) GetWatermark(_ context.Context,
	key chat.ConversationKey, kind summarize.Kind) (int, error) {

	m.mu.Lock()
	defer m.mu.Unlock()

	return m.watermarks[cardScope{key: key, kind: kind}], nil
}

// SetWatermark persists the auto-trigger mark.
func (m *MockStore) SetWatermark(_ context.Context,
	key chat.ConversationKey, kind summarize.Kind, mark int) error {

	m.mu.Lock()
	defer m.mu.Unlock()

	m.watermarks[cardScope{key: key, kind: kind}] = mark

	return nil
}
