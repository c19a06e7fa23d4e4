package mcpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kirillkom/docqa/internal/core/domain"
)

type queryFake struct {
	err     error
	lastReq domain.QueryRequest
	result  *domain.RetrievalResult
	answer  *domain.Answer
}

func (f *queryFake) Answer(_ context.Context, req domain.QueryRequest) (*domain.Answer, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return f.answer, nil
}

func (f *queryFake) Retrieve(_ context.Context, req domain.QueryRequest) (*domain.RetrievalResult, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *queryFake) ResetConversation(context.Context, string) error { return nil }

func (f *queryFake) Citation(context.Context, string, int) (*domain.ScoredChunk, error) {
	return nil, domain.ErrInvalidInput
}

func callRequest(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if result == nil || len(result.Content) == 0 {
		t.Fatalf("expected tool result content")
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected text content, got %T", result.Content[0])
	}
	return text.Text
}

func TestNewServerRequiresQueryService(t *testing.T) {
	if _, err := NewServer(nil); !errors.Is(err, ErrMissingQueryService) {
		t.Fatalf("expected ErrMissingQueryService, got %v", err)
	}
}

func TestSearchDocumentsReturnsNumberedPassages(t *testing.T) {
	query := &queryFake{result: &domain.RetrievalResult{
		ConversationID: "conv-1",
		Stage:          domain.StageStandard,
		Passages: []domain.ScoredChunk{
			{Chunk: domain.Chunk{ID: "doc-a:0", DocumentID: "doc-a", Text: "invoice total"}, MergedScore: 0.9},
			{Chunk: domain.Chunk{ID: "doc-b:3", DocumentID: "doc-b", Text: "payment due"}, MergedScore: 0.4},
		},
	}}
	srv, err := NewServer(query)
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}

	result, err := srv.handleSearch(context.Background(), callRequest(map[string]any{
		"query":           "invoice total?",
		"conversation_id": "conv-1",
		"document_ids":    []any{"doc-a", "doc-b"},
	}))
	if err != nil {
		t.Fatalf("handleSearch() error = %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(t, result))
	}

	var out searchOutput
	if err := json.Unmarshal([]byte(resultText(t, result)), &out); err != nil {
		t.Fatalf("decode tool output: %v", err)
	}
	if len(out.Passages) != 2 || out.Passages[0].Citation != 1 || out.Passages[1].Citation != 2 {
		t.Fatalf("unexpected passages: %+v", out.Passages)
	}
	if out.Passages[1].DocumentID != "doc-b" || out.Stage != string(domain.StageStandard) {
		t.Fatalf("unexpected output: %+v", out)
	}
	if query.lastReq.ConversationID != "conv-1" || !slices.Equal(query.lastReq.DocumentIDs, []string{"doc-a", "doc-b"}) {
		t.Fatalf("unexpected forwarded request: %+v", query.lastReq)
	}
}

func TestSearchDocumentsRequiresQuery(t *testing.T) {
	srv, _ := NewServer(&queryFake{})

	result, err := srv.handleSearch(context.Background(), callRequest(map[string]any{}))
	if err != nil {
		t.Fatalf("handleSearch() error = %v", err)
	}
	if !result.IsError {
		t.Fatalf("expected tool error for missing query")
	}
}

func TestAskDocumentsReturnsAnswer(t *testing.T) {
	query := &queryFake{answer: &domain.Answer{
		ConversationID: "conv-2",
		Text:           "The total is 450 [1].",
		Stage:          domain.StageContextual,
		Sources:        []domain.ScoredChunk{{Chunk: domain.Chunk{ID: "doc-a:0", DocumentID: "doc-a", Text: "total 450"}}},
	}}
	srv, _ := NewServer(query)

	result, err := srv.handleAsk(context.Background(), callRequest(map[string]any{"question": "what is the total?"}))
	if err != nil {
		t.Fatalf("handleAsk() error = %v", err)
	}

	var out askOutput
	if err := json.Unmarshal([]byte(resultText(t, result)), &out); err != nil {
		t.Fatalf("decode tool output: %v", err)
	}
	if out.Answer != "The total is 450 [1]." || out.ConversationID != "conv-2" || len(out.Sources) != 1 {
		t.Fatalf("unexpected answer output: %+v", out)
	}
	if query.lastReq.ConversationID != "" || query.lastReq.DocumentIDs != nil {
		t.Fatalf("expected optional arguments to stay empty, got %+v", query.lastReq)
	}
}

func TestToolErrorsHideInternalDetails(t *testing.T) {
	srv, _ := NewServer(&queryFake{err: errors.New("pq: connection refused at 10.0.0.5")})

	result, err := srv.handleAsk(context.Background(), callRequest(map[string]any{"question": "q"}))
	if err != nil {
		t.Fatalf("handleAsk() error = %v", err)
	}
	if !result.IsError || strings.Contains(resultText(t, result), "10.0.0.5") {
		t.Fatalf("expected opaque tool error, got %q", resultText(t, result))
	}

	srv, _ = NewServer(&queryFake{err: domain.WrapError(domain.ErrConversationBusy, "begin turn", errors.New("conv-1"))})
	result, _ = srv.handleSearch(context.Background(), callRequest(map[string]any{"query": "q"}))
	if !result.IsError || !strings.Contains(resultText(t, result), "busy") {
		t.Fatalf("expected busy tool error, got %q", resultText(t, result))
	}
}
