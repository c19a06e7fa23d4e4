package usecase

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/kirillkom/docqa/internal/core/domain"
)

type retrieverFake struct {
	mu      sync.Mutex
	result  *domain.RetrievalResult
	next    domain.QueryContext
	err     error
	priors  []domain.QueryContext
	reqs    []domain.RetrievalRequest
	started chan struct{}
	release chan struct{}
}

func (f *retrieverFake) Retrieve(_ context.Context, req domain.RetrievalRequest, prior domain.QueryContext) (*domain.RetrievalResult, domain.QueryContext, error) {
	f.mu.Lock()
	f.priors = append(f.priors, prior)
	f.reqs = append(f.reqs, req)
	f.mu.Unlock()
	if f.started != nil {
		close(f.started)
		<-f.release
	}
	if f.err != nil {
		return nil, prior, f.err
	}
	return f.result, f.next, nil
}

type generatorFake struct {
	err      error
	passages []domain.ScoredChunk
	history  []domain.ConversationMessage
	calls    int
}

func (f *generatorFake) GenerateAnswer(_ context.Context, _ string, passages []domain.ScoredChunk, history []domain.ConversationMessage) (string, error) {
	f.calls++
	f.passages = passages
	f.history = history
	if f.err != nil {
		return "", f.err
	}
	return "The total is 450 dollars [1].", nil
}

func foundResult() *domain.RetrievalResult {
	return &domain.RetrievalResult{Passages: []domain.ScoredChunk{scored("doc-a", 0)}, Stage: domain.StageStandard}
}

func TestQueryAnswerCommitsContextAndHistory(t *testing.T) {
	next := domain.QueryContext{PreviousTerms: []string{"invoice"}}
	retriever := &retrieverFake{result: foundResult(), next: next}
	generator := &generatorFake{}
	uc := NewQueryUseCase(retriever, generator, nil)

	answer, err := uc.Answer(context.Background(), domain.QueryRequest{ConversationID: "conv-1", Question: "What is the invoice total?"})
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if answer.ConversationID != "conv-1" || answer.Text == "" || len(answer.Sources) != 1 {
		t.Fatalf("unexpected answer: %+v", answer)
	}
	if len(generator.passages) != 1 {
		t.Fatalf("expected fused passages handed to generator")
	}

	if _, err := uc.Answer(context.Background(), domain.QueryRequest{ConversationID: "conv-1", Question: "And the due date?"}); err != nil {
		t.Fatalf("second Answer() error = %v", err)
	}
	if !reflect.DeepEqual(retriever.priors[1], next) {
		t.Fatalf("expected committed context on next turn, got %+v", retriever.priors[1])
	}
	if len(generator.history) != 2 || generator.history[0].Role != domain.RoleUser || generator.history[1].Role != domain.RoleAssistant {
		t.Fatalf("expected previous exchange in history, got %+v", generator.history)
	}

	citation, err := uc.Citation(context.Background(), "conv-1", 1)
	if err != nil {
		t.Fatalf("Citation() error = %v", err)
	}
	if citation.ID != "doc-a:0" {
		t.Fatalf("expected citation doc-a:0, got %s", citation.ID)
	}
}

func TestQueryAnswerGeneratesConversationID(t *testing.T) {
	uc := NewQueryUseCase(&retrieverFake{result: foundResult()}, &generatorFake{}, nil)
	answer, err := uc.Answer(context.Background(), domain.QueryRequest{Question: "q"})
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if answer.ConversationID == "" {
		t.Fatalf("expected generated conversation id")
	}
}

func TestQueryAnswerNoRelevantContentSkipsGenerator(t *testing.T) {
	retriever := &retrieverFake{result: &domain.RetrievalResult{NoRelevantContent: true, Stage: domain.StageExhausted}}
	generator := &generatorFake{}
	uc := NewQueryUseCase(retriever, generator, nil)

	answer, err := uc.Answer(context.Background(), domain.QueryRequest{ConversationID: "c", Question: "zebra?"})
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if !answer.NoRelevantContent || answer.Text != NoRelevantContentAnswer {
		t.Fatalf("expected no-relevant-content answer, got %+v", answer)
	}
	if generator.calls != 0 {
		t.Fatalf("expected generator not called")
	}
}

func TestQueryAnswerGeneratorFailureKeepsContext(t *testing.T) {
	prior := domain.QueryContext{PreviousTerms: []string{"before"}}
	retriever := &retrieverFake{result: foundResult(), next: prior}
	registry := NewConversationRegistry(0, 0)
	uc := NewQueryUseCase(retriever, &generatorFake{}, registry)
	if _, err := uc.Answer(context.Background(), domain.QueryRequest{ConversationID: "c", Question: "first"}); err != nil {
		t.Fatalf("Answer() error = %v", err)
	}

	retriever.next = domain.QueryContext{PreviousTerms: []string{"after"}}
	failing := NewQueryUseCase(retriever, &generatorFake{err: errors.New("model overloaded")}, registry)
	_, err := failing.Answer(context.Background(), domain.QueryRequest{ConversationID: "c", Question: "second"})
	if !domain.IsKind(err, domain.ErrCollaboratorUnavailable) {
		t.Fatalf("expected ErrCollaboratorUnavailable, got %v", err)
	}

	turn, err := registry.Begin("c")
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	defer turn.End()
	state := turn.State()
	if !reflect.DeepEqual(state.Context, prior) {
		t.Fatalf("expected context unchanged after failure, got %+v", state.Context)
	}
	if len(state.History) != 2 {
		t.Fatalf("expected only the first exchange in history, got %d", len(state.History))
	}
}

func TestQueryAnswerRejectsConcurrentTurn(t *testing.T) {
	retriever := &retrieverFake{result: foundResult(), started: make(chan struct{}), release: make(chan struct{})}
	uc := NewQueryUseCase(retriever, &generatorFake{}, nil)

	done := make(chan error, 1)
	go func() {
		_, err := uc.Answer(context.Background(), domain.QueryRequest{ConversationID: "c", Question: "slow"})
		done <- err
	}()
	<-retriever.started

	_, err := uc.Answer(context.Background(), domain.QueryRequest{ConversationID: "c", Question: "fast"})
	if !domain.IsKind(err, domain.ErrConversationBusy) {
		t.Fatalf("expected ErrConversationBusy, got %v", err)
	}
	if err := uc.ResetConversation(context.Background(), "c"); !domain.IsKind(err, domain.ErrConversationBusy) {
		t.Fatalf("expected reset rejected while busy, got %v", err)
	}

	close(retriever.release)
	if err := <-done; err != nil {
		t.Fatalf("slow Answer() error = %v", err)
	}
}

func TestQueryScopeChangeClearsContext(t *testing.T) {
	retriever := &retrieverFake{result: foundResult(), next: domain.QueryContext{PreviousTerms: []string{"x"}}}
	uc := NewQueryUseCase(retriever, &generatorFake{}, nil)

	reqs := []domain.QueryRequest{
		{ConversationID: "c", Question: "one", DocumentIDs: []string{"doc-a"}},
		{ConversationID: "c", Question: "two", DocumentIDs: []string{"doc-a", "doc-a"}},
		{ConversationID: "c", Question: "three", DocumentIDs: []string{"doc-b"}},
	}
	for _, req := range reqs {
		if _, err := uc.Retrieve(context.Background(), req); err != nil {
			t.Fatalf("Retrieve() error = %v", err)
		}
	}
	if retriever.priors[1].IsEmpty() {
		t.Fatalf("expected context kept for the same scope")
	}
	if !retriever.priors[2].IsEmpty() {
		t.Fatalf("expected context cleared on scope change, got %+v", retriever.priors[2])
	}
	if len(retriever.reqs[1].DocumentIDs) != 1 {
		t.Fatalf("expected normalized scope, got %v", retriever.reqs[1].DocumentIDs)
	}
}

func TestQueryResetConversation(t *testing.T) {
	retriever := &retrieverFake{result: foundResult(), next: domain.QueryContext{PreviousTerms: []string{"x"}}}
	uc := NewQueryUseCase(retriever, &generatorFake{}, nil)
	if _, err := uc.Retrieve(context.Background(), domain.QueryRequest{ConversationID: "c", Question: "one"}); err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if err := uc.ResetConversation(context.Background(), "c"); err != nil {
		t.Fatalf("ResetConversation() error = %v", err)
	}
	if _, err := uc.Retrieve(context.Background(), domain.QueryRequest{ConversationID: "c", Question: "two"}); err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if !retriever.priors[1].IsEmpty() {
		t.Fatalf("expected fresh context after reset")
	}
	if err := uc.ResetConversation(context.Background(), " "); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestQueryRejectsBlankQuestion(t *testing.T) {
	uc := NewQueryUseCase(&retrieverFake{}, &generatorFake{}, nil)
	if _, err := uc.Answer(context.Background(), domain.QueryRequest{Question: " "}); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}
