package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lectern-ai/lectern/internal/cards"
	"github.com/lectern-ai/lectern/internal/chat"
	"github.com/lectern-ai/lectern/internal/summarize"
)

// SQLiteStore implements Storage over a SQLite connection opened by the db
// package. All multi-row writes run inside a transaction.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore wraps an open database connection.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// withTx executes fn inside a transaction, rolling back on error.
func (s *SQLiteStore) withTx(ctx context.Context,
	fn func(tx *sql.Tx) error) error {

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("tx failed: %v, rollback failed: %w",
				err, rbErr)
		}
		return err
	}

	return tx.Commit()
}

// CreateConversation inserts a conversation record.
func (s *SQLiteStore) CreateConversation(ctx context.Context,
	conv Conversation) error {

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations
			(key, book_id, persona_id, character_id, valid, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		string(conv.Key), conv.BookID, conv.PersonaID,
		conv.CharacterID, boolToInt(conv.Valid),
		conv.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("create conversation: %w", err)
	}

	return nil
}

// GetConversation resolves a conversation by key.
func (s *SQLiteStore) GetConversation(ctx context.Context,
	key chat.ConversationKey) (Conversation, error) {

	row := s.db.QueryRowContext(ctx, `
		SELECT key, book_id, persona_id, character_id, valid, created_at
		FROM conversations WHERE key = ?`, string(key),
	)

	var (
		conv      Conversation
		rawKey    string
		valid     int
		createdAt int64
	)
	err := row.Scan(
		&rawKey, &conv.BookID, &conv.PersonaID, &conv.CharacterID,
		&valid, &createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Conversation{}, ErrConversationNotFound
	}
	if err != nil {
		return Conversation{}, fmt.Errorf("get conversation: %w", err)
	}

	conv.Key = chat.ConversationKey(rawKey)
	conv.Valid = valid != 0
	conv.CreatedAt = time.Unix(createdAt, 0)

	return conv, nil
}

// SetConversationValid flips the validity flag.
func (s *SQLiteStore) SetConversationValid(ctx context.Context,
	key chat.ConversationKey, valid bool) error {

	res, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET valid = ? WHERE key = ?`,
		boolToInt(valid), string(key),
	)
	if err != nil {
		return fmt.Errorf("set conversation valid: %w", err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrConversationNotFound
	}

	return nil
}

// ListConversations returns all conversations.
func (s *SQLiteStore) ListConversations(
	ctx context.Context) ([]Conversation, error) {

	rows, err := s.db.QueryContext(ctx, `
		SELECT key, book_id, persona_id, character_id, valid, created_at
		FROM conversations ORDER BY created_at`,
	)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var out []Conversation
	for rows.Next() {
		var (
			conv      Conversation
			rawKey    string
			valid     int
			createdAt int64
		)
		err := rows.Scan(
			&rawKey, &conv.BookID, &conv.PersonaID,
			&conv.CharacterID, &valid, &createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}

		conv.Key = chat.ConversationKey(rawKey)
		conv.Valid = valid != 0
		conv.CreatedAt = time.Unix(createdAt, 0)
		out = append(out, conv)
	}

	return out, rows.Err()
}

// ListMessages returns the conversation's messages ordered by timestamp.
func (s *SQLiteStore) ListMessages(ctx context.Context,
	key chat.ConversationKey) ([]chat.Message, error) {

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sender, content, timestamp, generation_id, sent_to_ai
		FROM messages WHERE conversation_key = ?
		ORDER BY timestamp, id`, string(key),
	)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []chat.Message
	for rows.Next() {
		var (
			msg    chat.Message
			sender string
			ts     int64
			genID  sql.NullString
			sent   int
		)
		err := rows.Scan(
			&msg.ID, &sender, &msg.Content, &ts, &genID, &sent,
		)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}

		msg.Sender = chat.Sender(sender)
		msg.Timestamp = time.UnixMilli(ts)
		msg.GenerationID = genID.String
		msg.SentToAI = sent != 0
		out = append(out, msg)
	}

	return out, rows.Err()
}

// ReplaceMessages overwrites the conversation's message history.
func (s *SQLiteStore) ReplaceMessages(ctx context.Context,
	key chat.ConversationKey, msgs []chat.Message) error {

	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`DELETE FROM messages WHERE conversation_key = ?`,
			string(key),
		)
		if err != nil {
			return fmt.Errorf("clear messages: %w", err)
		}

		return insertMessages(ctx, tx, key, msgs)
	})
}

// AppendMessages appends messages to the conversation.
func (s *SQLiteStore) AppendMessages(ctx context.Context,
	key chat.ConversationKey, msgs []chat.Message) error {

	return s.withTx(ctx, func(tx *sql.Tx) error {
		return insertMessages(ctx, tx, key, msgs)
	})
}

// insertMessages inserts a batch inside an open transaction.
func insertMessages(ctx context.Context, tx *sql.Tx,
	key chat.ConversationKey, msgs []chat.Message) error {

	for _, msg := range msgs {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO messages
				(id, conversation_key, sender, content,
				 timestamp, generation_id, sent_to_ai)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			msg.ID, string(key), string(msg.Sender), msg.Content,
			msg.Timestamp.UnixMilli(),
			nullString(msg.GenerationID), boolToInt(msg.SentToAI),
		)
		if err != nil {
			return fmt.Errorf("insert message %s: %w", msg.ID, err)
		}
	}

	return nil
}

// ListCards returns the card set for (key, kind).
func (s *SQLiteStore) ListCards(ctx context.Context,
	key chat.ConversationKey, kind summarize.Kind) ([]cards.Card, error) {

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, content, range_start, range_end,
		       created_at, updated_at
		FROM summary_cards
		WHERE conversation_key = ? AND kind = ?
		ORDER BY range_start, range_end, created_at`,
		string(key), string(kind),
	)
	if err != nil {
		return nil, fmt.Errorf("list cards: %w", err)
	}
	defer rows.Close()

	var out []cards.Card
	for rows.Next() {
		var (
			card               cards.Card
			createdAt, updated int64
		)
		err := rows.Scan(
			&card.ID, &card.Content, &card.Start, &card.End,
			&createdAt, &updated,
		)
		if err != nil {
			return nil, fmt.Errorf("scan card: %w", err)
		}

		card.CreatedAt = time.Unix(createdAt, 0)
		card.UpdatedAt = time.Unix(updated, 0)
		out = append(out, card)
	}

	return out, rows.Err()
}

// SaveCards replaces the card set for (key, kind).
func (s *SQLiteStore) SaveCards(ctx context.Context,
	key chat.ConversationKey, kind summarize.Kind,
	set []cards.Card) error {

	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			DELETE FROM summary_cards
			WHERE conversation_key = ? AND kind = ?`,
			string(key), string(kind),
		)
		if err != nil {
			return fmt.Errorf("clear cards: %w", err)
		}

		for _, card := range set {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO summary_cards
					(id, conversation_key, kind, content,
					 range_start, range_end,
					 created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				card.ID, string(key), string(kind),
				card.Content, card.Start, card.End,
				card.CreatedAt.Unix(), card.UpdatedAt.Unix(),
			)
			if err != nil {
				return fmt.Errorf("insert card %s: %w",
					card.ID, err)
			}
		}

		return nil
	})
}

// GetWatermark returns the persisted auto-trigger mark, zero when unset.
func (s *SQLiteStore) GetWatermark(ctx context.Context,
	key chat.ConversationKey, kind summarize.Kind) (int, error) {

	row := s.db.QueryRowContext(ctx, `
		SELECT mark FROM watermarks
		WHERE conversation_key = ? AND kind = ?`,
		string(key), string(kind),
	)

	var mark int
	err := row.Scan(&mark)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get watermark: %w", err)
	}

	return mark, nil
}

// SetWatermark persists the auto-trigger mark.
func (s *SQLiteStore) SetWatermark(ctx context.Context,
	key chat.ConversationKey, kind summarize.Kind, mark int) error {

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO watermarks (conversation_key, kind, mark)
		VALUES (?, ?, ?)
		ON CONFLICT (conversation_key, kind)
		DO UPDATE SET mark = excluded.mark`,
		string(key), string(kind), mark,
	)
	if err != nil {
		return fmt.Errorf("set watermark: %w", err)
	}

	return nil
}

// boolToInt converts a bool for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// nullString converts a string to sql.NullString, treating empty strings as
// NULL.
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
