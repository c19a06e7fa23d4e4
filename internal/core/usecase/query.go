package usecase

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/docqa/internal/core/domain"
	"github.com/kirillkom/docqa/internal/core/ports"
)

// NoRelevantContentAnswer is returned instead of a generated answer when every
// retrieval stage came back empty.
const NoRelevantContentAnswer = "I could not find relevant information in the selected documents."

type QueryUseCase struct {
	retriever     ports.Retriever
	generator     ports.AnswerGenerator
	conversations *ConversationRegistry
}

func NewQueryUseCase(
	retriever ports.Retriever,
	generator ports.AnswerGenerator,
	conversations *ConversationRegistry,
) *QueryUseCase {
	if conversations == nil {
		conversations = NewConversationRegistry(0, 0)
	}
	return &QueryUseCase{
		retriever:     retriever,
		generator:     generator,
		conversations: conversations,
	}
}

// Answer retrieves passages for the question and generates a grounded answer.
// Conversation state advances only when the whole turn succeeds.
func (uc *QueryUseCase) Answer(ctx context.Context, req domain.QueryRequest) (*domain.Answer, error) {
	var answer *domain.Answer
	conversationID, err := uc.runTurn(ctx, req, func(state domain.ConversationState, result *domain.RetrievalResult, question string) (string, error) {
		text := NoRelevantContentAnswer
		if !result.NoRelevantContent {
			generated, err := uc.generator.GenerateAnswer(ctx, question, result.Passages, state.History)
			if err != nil {
				if ctx.Err() != nil {
					return "", fmt.Errorf("generate answer: %w", err)
				}
				return "", domain.WrapError(domain.ErrCollaboratorUnavailable, "generate answer", err)
			}
			text = generated
		}
		answer = &domain.Answer{
			Text:              text,
			Sources:           result.Passages,
			UsedFallback:      result.UsedFallback,
			NoRelevantContent: result.NoRelevantContent,
			Stage:             result.Stage,
		}
		return text, nil
	})
	if err != nil {
		return nil, err
	}
	answer.ConversationID = conversationID
	return answer, nil
}

// Retrieve runs retrieval only. It advances the conversation context like
// Answer but records no assistant message.
func (uc *QueryUseCase) Retrieve(ctx context.Context, req domain.QueryRequest) (*domain.RetrievalResult, error) {
	var out *domain.RetrievalResult
	conversationID, err := uc.runTurn(ctx, req, func(_ domain.ConversationState, result *domain.RetrievalResult, _ string) (string, error) {
		out = result
		return "", nil
	})
	if err != nil {
		return nil, err
	}
	out.ConversationID = conversationID
	return out, nil
}

func (uc *QueryUseCase) ResetConversation(_ context.Context, conversationID string) error {
	if strings.TrimSpace(conversationID) == "" {
		return domain.WrapError(domain.ErrInvalidInput, "reset conversation", errors.New("conversation id is required"))
	}
	return uc.conversations.Reset(conversationID)
}

func (uc *QueryUseCase) Citation(_ context.Context, conversationID string, index int) (*domain.ScoredChunk, error) {
	return uc.conversations.Passage(conversationID, index)
}

type turnFunc func(state domain.ConversationState, result *domain.RetrievalResult, question string) (string, error)

func (uc *QueryUseCase) runTurn(ctx context.Context, req domain.QueryRequest, respond turnFunc) (string, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return "", domain.WrapError(domain.ErrInvalidInput, "query", errors.New("question is required"))
	}
	conversationID := strings.TrimSpace(req.ConversationID)
	if conversationID == "" {
		conversationID = uuid.NewString()
	}

	turn, err := uc.conversations.Begin(conversationID)
	if err != nil {
		return "", err
	}
	defer turn.End()

	state := turn.State()
	scope := normalizeScope(req.DocumentIDs)
	if !slices.Equal(scope, state.Scope) {
		state.Context = domain.QueryContext{}
		state.Scope = scope
	}

	result, nextContext, err := uc.retriever.Retrieve(ctx, domain.RetrievalRequest{
		Question:    question,
		DocumentIDs: scope,
		History:     state.History,
	}, state.Context)
	if err != nil {
		return "", err
	}

	reply, err := respond(state, result, question)
	if err != nil {
		return "", err
	}

	now := time.Now().UTC()
	state.Context = nextContext
	state.History = append(state.History, domain.ConversationMessage{Role: domain.RoleUser, Content: question, CreatedAt: now})
	if reply != "" {
		state.History = append(state.History, domain.ConversationMessage{Role: domain.RoleAssistant, Content: reply, CreatedAt: now})
	}
	state.LastPassages = result.Passages
	turn.Commit(state)
	return conversationID, nil
}
