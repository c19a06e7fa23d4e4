package domain

import "time"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type ConversationMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// ConversationState is everything retained between turns of one conversation.
type ConversationState struct {
	Context      QueryContext          `json:"context"`
	Scope        []string              `json:"scope,omitempty"`
	History      []ConversationMessage `json:"history,omitempty"`
	LastPassages []ScoredChunk         `json:"last_passages,omitempty"`
}

type QueryRequest struct {
	ConversationID string   `json:"conversation_id"`
	Question       string   `json:"question"`
	DocumentIDs    []string `json:"document_ids,omitempty"`
}

type Answer struct {
	ConversationID    string         `json:"conversation_id"`
	Text              string         `json:"text"`
	Sources           []ScoredChunk  `json:"sources"`
	UsedFallback      bool           `json:"used_fallback"`
	NoRelevantContent bool           `json:"no_relevant_content"`
	Stage             RetrievalStage `json:"stage"`
}
