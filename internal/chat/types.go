package chat

import (
	"fmt"
	"time"
)

// ConversationKey uniquely identifies a (book, persona, character) triple.
// It is treated as an opaque string; equality is exact string equality. All
// mutual exclusion and scheduling in the generation and summarize packages
// is scoped per ConversationKey.
type ConversationKey string

// ConversationKeyFor builds the canonical key for a book/persona/character
// triple.
func ConversationKeyFor(bookID, personaID, characterID string) ConversationKey {
	return ConversationKey(fmt.Sprintf(
		"%s:%s:%s", bookID, personaID, characterID,
	))
}

// Sender identifies who produced a chat message.
type Sender string

const (
	// SenderUser is a message typed by the reader.
	SenderUser Sender = "user"

	// SenderCharacter is a message produced by the AI character.
	SenderCharacter Sender = "character"
)

// Message is a single chat message. Messages are owned by the storage layer;
// the core consumes them read-only per invocation and returns updated copies
// rather than mutating shared state.
type Message struct {
	// ID is the unique message identifier.
	ID string

	// Sender is who produced the message.
	Sender Sender

	// Content is the message text.
	Content string

	// Timestamp orders the message within its conversation.
	Timestamp time.Time

	// GenerationID links all messages produced by one generation
	// attempt. Empty for user messages.
	GenerationID string

	// SentToAI marks messages that have already been folded into model
	// context by a completed generation.
	SentToAI bool
}

// Persona is the reader-side identity in a conversation.
type Persona struct {
	ID          string
	Name        string
	Description string
}

// Character is the AI-side identity in a conversation.
type Character struct {
	ID          string
	Name        string
	Description string
}

// PendingUserMessages returns the user messages a manual generation attempt
// should fold into model context: every user message not yet marked
// SentToAI, or, if there are none, the single most recent user message when
// the conversation ends on a user turn.
func PendingUserMessages(history []Message) []Message {
	var pending []Message
	for _, msg := range history {
		if msg.Sender == SenderUser && !msg.SentToAI {
			pending = append(pending, msg)
		}
	}
	if len(pending) > 0 {
		return pending
	}

	if len(history) > 0 {
		last := history[len(history)-1]
		if last.Sender == SenderUser {
			return []Message{last}
		}
	}

	return nil
}

// MarkSent returns a copy of history with the given message IDs marked
// SentToAI. Unknown IDs are ignored.
func MarkSent(history []Message, ids []string) []Message {
	sent := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		sent[id] = struct{}{}
	}

	out := make([]Message, len(history))
	copy(out, history)
	for i := range out {
		if _, ok := sent[out[i].ID]; ok {
			out[i].SentToAI = true
		}
	}

	return out
}
