package mcp

import (
	"context"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/lectern-ai/lectern/internal/chat"
	"github.com/lectern-ai/lectern/internal/companion"
	"github.com/lectern-ai/lectern/internal/generation"
	"github.com/lectern-ai/lectern/internal/summarize"
)

// ChatSendArgs are the arguments for the chat_send tool.
type ChatSendArgs struct {
	// Key identifies the conversation (book:persona:character).
	Key string `json:"key" jsonschema:"Conversation key in book:persona:character form"`

	// Content is the user's message. Empty retries against the stored
	// history without appending.
	Content string `json:"content,omitempty" jsonschema:"User message text; empty retries the pending history"`

	// Proactive starts a character-initiated reply instead of a manual
	// one.
	Proactive bool `json:"proactive,omitempty" jsonschema:"Character-initiated reply instead of a user-requested one"`

	// Persona and Character describe the two sides of the conversation.
	Persona   string `json:"persona,omitempty" jsonschema:"Persona description text"`
	Character string `json:"character,omitempty" jsonschema:"Character description text"`

	// Excerpt is the reading-position excerpt included in the prompt.
	Excerpt string `json:"excerpt,omitempty" jsonschema:"Book excerpt at the reading position"`

	// ReadAhead is the passage underline directives resolve against.
	ReadAhead string `json:"read_ahead,omitempty" jsonschema:"Passage ahead of the reading position for underline resolution"`
}

// BubbleResult is one reply bubble.
type BubbleResult struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// UnderlineResult is a resolved underline range in the read-ahead passage.
type UnderlineResult struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// ChatSendResult is the result of the chat_send tool.
type ChatSendResult struct {
	State        string           `json:"state"`
	Silent       bool             `json:"silent"`
	Error        string           `json:"error,omitempty"`
	GenerationID string           `json:"generation_id,omitempty"`
	Bubbles      []BubbleResult   `json:"bubbles,omitempty"`
	Underline    *UnderlineResult `json:"underline,omitempty"`
}

func (s *Server) handleChatSend(ctx context.Context,
	req *mcp.CallToolRequest,
	args ChatSendArgs) (*mcp.CallToolResult, ChatSendResult, error) {

	mode := generation.ModeManual
	if args.Proactive {
		mode = generation.ModeProactive
	}

	var (
		mu        sync.Mutex
		underline *UnderlineResult
	)
	opts := companion.SendOptions{
		Mode: mode,
		Prompt: generation.PromptInputs{
			PersonaText:   args.Persona,
			CharacterText: args.Character,
			Excerpt:       args.Excerpt,
		},
		ReadAhead: args.ReadAhead,
		OnUnderline: func(rg generation.Range) {
			mu.Lock()
			underline = &UnderlineResult{
				Start: rg.Start, End: rg.End,
			}
			mu.Unlock()
		},
	}

	result, err := s.companion.SendMessage(
		ctx, chat.ConversationKey(args.Key), args.Content, opts,
	)
	if err != nil {
		return nil, ChatSendResult{}, err
	}

	out := ChatSendResult{
		State:        string(result.State),
		Silent:       result.Silent,
		GenerationID: result.GenerationID,
	}
	if result.Err != nil {
		out.Error = result.Err.Error()
	}
	for _, msg := range result.AIMessages {
		out.Bubbles = append(out.Bubbles, BubbleResult{
			ID:        msg.ID,
			Content:   msg.Content,
			Timestamp: msg.Timestamp,
		})
	}
	mu.Lock()
	out.Underline = underline
	mu.Unlock()

	return nil, out, nil
}

// ChatAbortArgs are the arguments for the chat_abort tool.
type ChatAbortArgs struct {
	Key string `json:"key" jsonschema:"Conversation key"`
}

// ChatAbortResult is the result of the chat_abort tool.
type ChatAbortResult struct {
	Aborted bool `json:"aborted"`
}

func (s *Server) handleChatAbort(ctx context.Context,
	req *mcp.CallToolRequest,
	args ChatAbortArgs) (*mcp.CallToolResult, ChatAbortResult, error) {

	key := chat.ConversationKey(args.Key)
	active := s.companion.GenerationStatus(key).Active
	s.companion.AbortGeneration(key)

	return nil, ChatAbortResult{Aborted: active}, nil
}

// ChatStatusArgs are the arguments for the chat_status tool.
type ChatStatusArgs struct {
	Key string `json:"key" jsonschema:"Conversation key"`
}

// ChatStatusResult is the result of the chat_status tool.
type ChatStatusResult struct {
	Generating   bool   `json:"generating"`
	Mode         string `json:"mode,omitempty"`
	QueuePending int    `json:"queue_pending"`
	QueueRunning bool   `json:"queue_running"`
}

func (s *Server) handleChatStatus(ctx context.Context,
	req *mcp.CallToolRequest,
	args ChatStatusArgs) (*mcp.CallToolResult, ChatStatusResult, error) {

	status := s.companion.GenerationStatus(chat.ConversationKey(args.Key))
	queue := s.companion.QueueStatus()

	out := ChatStatusResult{
		Generating:   status.Active,
		QueuePending: queue.Pending,
		QueueRunning: queue.Running,
	}
	status.Mode.WhenSome(func(m generation.Mode) {
		out.Mode = string(m)
	})

	return nil, out, nil
}

// SetFocusArgs are the arguments for the set_focus tool.
type SetFocusArgs struct {
	Key string `json:"key,omitempty" jsonschema:"Conversation key; empty clears focus"`
}

// SetFocusResult is the result of the set_focus tool.
type SetFocusResult struct {
	Focused string `json:"focused"`
}

func (s *Server) handleSetFocus(ctx context.Context,
	req *mcp.CallToolRequest,
	args SetFocusArgs) (*mcp.CallToolResult, SetFocusResult, error) {

	if err := s.companion.SetFocus(
		ctx, chat.ConversationKey(args.Key),
	); err != nil {
		return nil, SetFocusResult{}, err
	}

	return nil, SetFocusResult{Focused: args.Key}, nil
}

// ReportProgressArgs are the arguments for the report_progress tool.
type ReportProgressArgs struct {
	Key    string `json:"key" jsonschema:"Conversation key"`
	Offset int    `json:"offset" jsonschema:"Character offset of the reading position"`
}

// ReportProgressResult is the result of the report_progress tool.
type ReportProgressResult struct {
	QueuePending int `json:"queue_pending"`
}

func (s *Server) handleReportProgress(ctx context.Context,
	req *mcp.CallToolRequest,
	args ReportProgressArgs) (*mcp.CallToolResult, ReportProgressResult,
	error) {

	key := chat.ConversationKey(args.Key)
	if err := s.companion.ReportProgress(ctx, key, args.Offset); err != nil {
		return nil, ReportProgressResult{}, err
	}

	return nil, ReportProgressResult{
		QueuePending: s.companion.QueueStatus().Pending,
	}, nil
}

// SummaryRequestArgs are the arguments for the summary_request tool.
type SummaryRequestArgs struct {
	Key   string `json:"key" jsonschema:"Conversation key"`
	Kind  string `json:"kind" jsonschema:"Summary kind: chat or book"`
	Start int    `json:"start" jsonschema:"Range start, 1-based inclusive"`
	End   int    `json:"end" jsonschema:"Range end, 1-based inclusive"`
}

// SummaryRequestResult is the result of the summary_request tool.
type SummaryRequestResult struct {
	TaskID string `json:"task_id"`
}

func (s *Server) handleSummaryRequest(ctx context.Context,
	req *mcp.CallToolRequest,
	args SummaryRequestArgs) (*mcp.CallToolResult, SummaryRequestResult,
	error) {

	task := s.companion.RequestSummary(
		chat.ConversationKey(args.Key), parseKind(args.Kind),
		args.Start, args.End,
	)

	return nil, SummaryRequestResult{TaskID: task.ID}, nil
}

// CardsListArgs are the arguments for the cards_list tool.
type CardsListArgs struct {
	Key  string `json:"key" jsonschema:"Conversation key"`
	Kind string `json:"kind" jsonschema:"Summary kind: chat or book"`
}

// CardResult is one summary card.
type CardResult struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Start     int       `json:"start"`
	End       int       `json:"end"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CardsListResult is the result of the cards_list tool.
type CardsListResult struct {
	Cards []CardResult `json:"cards"`
}

func (s *Server) handleCardsList(ctx context.Context,
	req *mcp.CallToolRequest,
	args CardsListArgs) (*mcp.CallToolResult, CardsListResult, error) {

	set, err := s.companion.Cards(
		ctx, chat.ConversationKey(args.Key), parseKind(args.Kind),
	)
	if err != nil {
		return nil, CardsListResult{}, err
	}

	out := CardsListResult{}
	for _, card := range set {
		out.Cards = append(out.Cards, CardResult{
			ID:        card.ID,
			Content:   card.Content,
			Start:     card.Start,
			End:       card.End,
			CreatedAt: card.CreatedAt,
			UpdatedAt: card.UpdatedAt,
		})
	}

	return nil, out, nil
}

// CardsMergeArgs are the arguments for the cards_merge tool.
type CardsMergeArgs struct {
	Key  string   `json:"key" jsonschema:"Conversation key"`
	Kind string   `json:"kind" jsonschema:"Summary kind: chat or book"`
	IDs  []string `json:"ids" jsonschema:"IDs of the cards to merge, at least two"`
}

// CardsMergeResult is the result of the cards_merge tool.
type CardsMergeResult struct {
	Merged bool `json:"merged"`
}

func (s *Server) handleCardsMerge(ctx context.Context,
	req *mcp.CallToolRequest,
	args CardsMergeArgs) (*mcp.CallToolResult, CardsMergeResult, error) {

	merged, err := s.companion.MergeCards(
		ctx, chat.ConversationKey(args.Key), parseKind(args.Kind),
		args.IDs,
	)
	if err != nil {
		return nil, CardsMergeResult{}, err
	}

	return nil, CardsMergeResult{Merged: merged}, nil
}

// CardsEditArgs are the arguments for the cards_edit tool.
type CardsEditArgs struct {
	Key     string `json:"key" jsonschema:"Conversation key"`
	Kind    string `json:"kind" jsonschema:"Summary kind: chat or book"`
	ID      string `json:"id" jsonschema:"Card ID"`
	Content string `json:"content" jsonschema:"Replacement content"`
	Start   int    `json:"start,omitempty" jsonschema:"Replacement range start; zero keeps the current one"`
	End     int    `json:"end,omitempty" jsonschema:"Replacement range end; zero keeps the current one"`
}

// CardsEditResult is the result of the cards_edit tool.
type CardsEditResult struct {
	OK bool `json:"ok"`
}

func (s *Server) handleCardsEdit(ctx context.Context,
	req *mcp.CallToolRequest,
	args CardsEditArgs) (*mcp.CallToolResult, CardsEditResult, error) {

	if err := s.companion.EditCard(
		ctx, chat.ConversationKey(args.Key), parseKind(args.Kind),
		args.ID, args.Content, args.Start, args.End,
	); err != nil {
		return nil, CardsEditResult{}, err
	}

	return nil, CardsEditResult{OK: true}, nil
}

// CardsDeleteArgs are the arguments for the cards_delete tool.
type CardsDeleteArgs struct {
	Key  string `json:"key" jsonschema:"Conversation key"`
	Kind string `json:"kind" jsonschema:"Summary kind: chat or book"`
	ID   string `json:"id" jsonschema:"Card ID"`
}

// CardsDeleteResult is the result of the cards_delete tool.
type CardsDeleteResult struct {
	OK bool `json:"ok"`
}

func (s *Server) handleCardsDelete(ctx context.Context,
	req *mcp.CallToolRequest,
	args CardsDeleteArgs) (*mcp.CallToolResult, CardsDeleteResult, error) {

	if err := s.companion.DeleteCard(
		ctx, chat.ConversationKey(args.Key), parseKind(args.Kind),
		args.ID,
	); err != nil {
		return nil, CardsDeleteResult{}, err
	}

	return nil, CardsDeleteResult{OK: true}, nil
}

// InvalidateArgs are the arguments for the conversation_invalidate tool.
type InvalidateArgs struct {
	Key string `json:"key" jsonschema:"Conversation key"`
}

// InvalidateResult is the result of the conversation_invalidate tool.
type InvalidateResult struct {
	OK bool `json:"ok"`
}

func (s *Server) handleInvalidate(ctx context.Context,
	req *mcp.CallToolRequest,
	args InvalidateArgs) (*mcp.CallToolResult, InvalidateResult, error) {

	if err := s.companion.Invalidate(
		ctx, chat.ConversationKey(args.Key),
	); err != nil {
		return nil, InvalidateResult{}, err
	}

	return nil, InvalidateResult{OK: true}, nil
}

// ReinstateArgs are the arguments for the conversation_reinstate tool.
type ReinstateArgs struct {
	Key string `json:"key" jsonschema:"Conversation key"`
}

// ReinstateResult is the result of the conversation_reinstate tool.
type ReinstateResult struct {
	OK bool `json:"ok"`
}

func (s *Server) handleReinstate(ctx context.Context,
	req *mcp.CallToolRequest,
	args ReinstateArgs) (*mcp.CallToolResult, ReinstateResult, error) {

	if err := s.companion.Reinstate(
		ctx, chat.ConversationKey(args.Key),
	); err != nil {
		return nil, ReinstateResult{}, err
	}

	return nil, ReinstateResult{OK: true}, nil
}

// parseKind maps a tool argument onto a summary kind, defaulting to chat.
func parseKind(kind string) summarize.Kind {
	if kind == string(summarize.KindBook) {
		return summarize.KindBook
	}
	return summarize.KindChat
}
