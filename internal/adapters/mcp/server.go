// Package mcpadapter exposes document search and question answering as MCP tools.
package mcpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/docqa/internal/core/domain"
	"github.com/kirillkom/docqa/internal/core/ports"
)

const (
	serverName    = "docqa"
	serverVersion = "0.1.0"
)

var ErrMissingQueryService = errors.New("mcp: query service is required")

type Server struct {
	query  ports.DocumentQueryService
	server *server.MCPServer
}

func NewServer(query ports.DocumentQueryService) (*Server, error) {
	if query == nil {
		return nil, ErrMissingQueryService
	}
	s := &Server{
		query:  query,
		server: server.NewMCPServer(serverName, serverVersion, server.WithToolCapabilities(false)),
	}
	s.registerTools()
	return s, nil
}

// Serve speaks the stdio transport over in and out until ctx is cancelled or
// in is closed. Nothing else may write to out.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	return server.NewStdioServer(s.server).Listen(ctx, in, out)
}

func (s *Server) registerTools() {
	s.server.AddTool(mcp.NewTool("search_documents",
		mcp.WithDescription("Find passages relevant to a question in the uploaded documents"),
		mcp.WithString("query", mcp.Required(), mcp.Description("the question or search text")),
		mcp.WithString("conversation_id", mcp.Description("continue an earlier conversation")),
		mcp.WithArray("document_ids", mcp.Description("restrict the search to these documents"), mcp.WithStringItems()),
	), s.handleSearch)

	s.server.AddTool(mcp.NewTool("ask_documents",
		mcp.WithDescription("Answer a question from the uploaded documents with numbered citations"),
		mcp.WithString("question", mcp.Required(), mcp.Description("the question to answer")),
		mcp.WithString("conversation_id", mcp.Description("continue an earlier conversation")),
		mcp.WithArray("document_ids", mcp.Description("restrict the answer to these documents"), mcp.WithStringItems()),
	), s.handleAsk)
}

type passageOutput struct {
	Citation     int      `json:"citation"`
	DocumentID   string   `json:"document_id"`
	ChunkID      string   `json:"chunk_id"`
	SectionTitle string   `json:"section_title,omitempty"`
	Text         string   `json:"text"`
	Score        float64  `json:"score"`
	MatchedTerms []string `json:"matched_terms,omitempty"`
}

type searchOutput struct {
	ConversationID    string          `json:"conversation_id"`
	Stage             string          `json:"stage"`
	UsedFallback      bool            `json:"used_fallback"`
	NoRelevantContent bool            `json:"no_relevant_content"`
	Passages          []passageOutput `json:"passages"`
}

type askOutput struct {
	ConversationID    string          `json:"conversation_id"`
	Answer            string          `json:"answer"`
	Stage             string          `json:"stage"`
	NoRelevantContent bool            `json:"no_relevant_content"`
	Sources           []passageOutput `json:"sources"`
}

func (s *Server) handleSearch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	result, err := s.query.Retrieve(ctx, queryRequest(request, query))
	if err != nil {
		return toolError("search_documents", err), nil
	}
	return jsonResult(searchOutput{
		ConversationID:    result.ConversationID,
		Stage:             string(result.Stage),
		UsedFallback:      result.UsedFallback,
		NoRelevantContent: result.NoRelevantContent,
		Passages:          passages(result.Passages),
	})
}

func (s *Server) handleAsk(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	question, err := request.RequireString("question")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	answer, err := s.query.Answer(ctx, queryRequest(request, question))
	if err != nil {
		return toolError("ask_documents", err), nil
	}
	return jsonResult(askOutput{
		ConversationID:    answer.ConversationID,
		Answer:            answer.Text,
		Stage:             string(answer.Stage),
		NoRelevantContent: answer.NoRelevantContent,
		Sources:           passages(answer.Sources),
	})
}

func queryRequest(request mcp.CallToolRequest, question string) domain.QueryRequest {
	return domain.QueryRequest{
		ConversationID: request.GetString("conversation_id", ""),
		Question:       question,
		DocumentIDs:    request.GetStringSlice("document_ids", nil),
	}
}

func passages(chunks []domain.ScoredChunk) []passageOutput {
	out := make([]passageOutput, len(chunks))
	for i, c := range chunks {
		out[i] = passageOutput{
			Citation:     i + 1,
			DocumentID:   c.DocumentID,
			ChunkID:      c.ID,
			SectionTitle: c.SectionTitle,
			Text:         c.Text,
			Score:        c.MergedScore,
			MatchedTerms: c.MatchedTerms,
		}
	}
	return out
}

// toolError reports failures to the client as tool errors. Internal details
// stay in the log.
func toolError(tool string, err error) *mcp.CallToolResult {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return mcp.NewToolResultError(err.Error())
	case domain.IsKind(err, domain.ErrConversationBusy):
		return mcp.NewToolResultError("conversation is busy with another turn, retry later")
	case domain.IsKind(err, domain.ErrCollaboratorUnavailable), domain.IsKind(err, domain.ErrTemporary):
		return mcp.NewToolResultError("a dependency is temporarily unavailable, retry later")
	default:
		slog.Error("mcp_tool_failed", "tool", tool, "error", err)
		return mcp.NewToolResultError("internal error")
	}
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal tool result: %w", err)
	}
	return mcp.NewToolResultText(string(raw)), nil
}
