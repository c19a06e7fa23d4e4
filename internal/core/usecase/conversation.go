package usecase

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kirillkom/docqa/internal/core/domain"
)

const (
	defaultHistoryLimit = 10
	defaultIdleTTL      = 2 * time.Hour
)

// ConversationRegistry owns per-conversation state. At most one turn may be in
// flight per conversation; overlapping turns are rejected, never interleaved.
type ConversationRegistry struct {
	mu           sync.Mutex
	sessions     map[string]*conversationSession
	historyLimit int
	idleTTL      time.Duration
	now          func() time.Time
}

type conversationSession struct {
	turn     sync.Mutex
	state    domain.ConversationState
	lastUsed time.Time
}

func NewConversationRegistry(historyLimit int, idleTTL time.Duration) *ConversationRegistry {
	if historyLimit <= 0 {
		historyLimit = defaultHistoryLimit
	}
	if idleTTL <= 0 {
		idleTTL = defaultIdleTTL
	}
	return &ConversationRegistry{
		sessions:     make(map[string]*conversationSession),
		historyLimit: historyLimit,
		idleTTL:      idleTTL,
		now:          time.Now,
	}
}

// ConversationTurn is an exclusive hold on one conversation. End must be
// called exactly once; Commit before End publishes the new state.
type ConversationTurn struct {
	id       string
	registry *ConversationRegistry
	session  *conversationSession
	ended    bool
}

// Begin acquires the conversation for one turn, creating it if needed.
func (r *ConversationRegistry) Begin(conversationID string) (*ConversationTurn, error) {
	if conversationID == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "begin conversation turn", errors.New("conversation id is required"))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.evictIdleLocked()

	session, ok := r.sessions[conversationID]
	if !ok {
		session = &conversationSession{}
		r.sessions[conversationID] = session
	}
	if !session.turn.TryLock() {
		return nil, domain.WrapError(
			domain.ErrConversationBusy,
			"begin conversation turn",
			fmt.Errorf("conversation %s has a turn in flight", conversationID),
		)
	}
	session.lastUsed = r.now()
	return &ConversationTurn{id: conversationID, registry: r, session: session}, nil
}

func (t *ConversationTurn) ID() string { return t.id }

// State returns a copy of the conversation state at the start of the turn.
func (t *ConversationTurn) State() domain.ConversationState {
	return cloneState(t.session.state)
}

// Commit replaces the conversation state. History is trimmed to the
// registry's limit.
func (t *ConversationTurn) Commit(state domain.ConversationState) {
	if t.ended {
		return
	}
	if limit := t.registry.historyLimit; len(state.History) > limit {
		state.History = state.History[len(state.History)-limit:]
	}
	t.registry.mu.Lock()
	t.session.state = cloneState(state)
	t.session.lastUsed = t.registry.now()
	t.registry.mu.Unlock()
}

func (t *ConversationTurn) End() {
	if t.ended {
		return
	}
	t.ended = true
	t.session.turn.Unlock()
}

// Reset forgets a conversation. A conversation with a turn in flight cannot
// be reset.
func (r *ConversationRegistry) Reset(conversationID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[conversationID]
	if !ok {
		return nil
	}
	if !session.turn.TryLock() {
		return domain.WrapError(
			domain.ErrConversationBusy,
			"reset conversation",
			fmt.Errorf("conversation %s has a turn in flight", conversationID),
		)
	}
	delete(r.sessions, conversationID)
	session.turn.Unlock()
	return nil
}

// Passage returns the 1-based passage n from the conversation's last answer.
func (r *ConversationRegistry) Passage(conversationID string, n int) (*domain.ScoredChunk, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[conversationID]
	if !ok {
		return nil, domain.WrapError(domain.ErrConversationNotFound, "get citation", fmt.Errorf("conversation %s", conversationID))
	}
	passages := session.state.LastPassages
	if n < 1 || n > len(passages) {
		return nil, domain.WrapError(
			domain.ErrInvalidInput,
			"get citation",
			fmt.Errorf("citation %d out of range 1..%d", n, len(passages)),
		)
	}
	passage := passages[n-1]
	return &passage, nil
}

func (r *ConversationRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func (r *ConversationRegistry) evictIdleLocked() {
	cutoff := r.now().Add(-r.idleTTL)
	for id, session := range r.sessions {
		if !session.lastUsed.Before(cutoff) {
			continue
		}
		if !session.turn.TryLock() {
			continue
		}
		delete(r.sessions, id)
		session.turn.Unlock()
	}
}

func cloneState(state domain.ConversationState) domain.ConversationState {
	out := domain.ConversationState{
		Context: domain.QueryContext{
			PreviousEmbedding: append([]float32(nil), state.Context.PreviousEmbedding...),
			RelevantDocuments: append([]domain.DocumentRelevance(nil), state.Context.RelevantDocuments...),
			PreviousTerms:     append([]string(nil), state.Context.PreviousTerms...),
		},
		Scope:        append([]string(nil), state.Scope...),
		History:      append([]domain.ConversationMessage(nil), state.History...),
		LastPassages: append([]domain.ScoredChunk(nil), state.LastPassages...),
	}
	return out
}
