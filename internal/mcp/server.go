// Package mcp exposes the companion service over the Model Context
// Protocol so reader frontends drive chat and summarization through one
// stdio transport.
package mcp

import (
	"context"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/lectern-ai/lectern/internal/companion"
)

// Server wraps the MCP server with the companion service.
type Server struct {
	server    *mcp.Server
	companion *companion.Companion
	log       *slog.Logger
}

// NewServer creates an MCP server with all companion tools registered.
func NewServer(c *companion.Companion, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}

	mcpServer := mcp.NewServer(&mcp.Implementation{
		Name:    "lectern",
		Version: "0.1.0",
	}, nil)

	s := &Server{
		server:    mcpServer,
		companion: c,
		log:       log.With("component", "mcp"),
	}

	s.registerTools()

	return s
}

// Run starts the MCP server on the given transport.
func (s *Server) Run(ctx context.Context, transport mcp.Transport) error {
	return s.server.Run(ctx, transport)
}

// registerTools registers the companion tools.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "chat_send",
		Description: "Send a user message and generate the character's reply",
	}, s.handleChatSend)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "chat_abort",
		Description: "Abort the active generation for a conversation",
	}, s.handleChatAbort)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "chat_status",
		Description: "Read a conversation's generation state and the summary queue",
	}, s.handleChatStatus)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "set_focus",
		Description: "Mark the conversation currently on screen",
	}, s.handleSetFocus)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "report_progress",
		Description: "Report the reader's character offset in the book",
	}, s.handleReportProgress)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "summary_request",
		Description: "Enqueue a manual summarization task over a range",
	}, s.handleSummaryRequest)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "cards_list",
		Description: "List summary cards for a conversation and kind",
	}, s.handleCardsList)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "cards_merge",
		Description: "Merge summary cards into one",
	}, s.handleCardsMerge)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "cards_edit",
		Description: "Edit one summary card's content and range",
	}, s.handleCardsEdit)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "cards_delete",
		Description: "Delete one summary card",
	}, s.handleCardsDelete)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "conversation_invalidate",
		Description: "Invalidate a conversation whose persona or character was deleted",
	}, s.handleInvalidate)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "conversation_reinstate",
		Description: "Clear a conversation's invalid mark",
	}, s.handleReinstate)
}
