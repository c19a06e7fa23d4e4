package domain

// ScoredChunk is a per-query projection of a Chunk. A zero rank means the
// corresponding search method did not surface the chunk; its score is then 0.
type ScoredChunk struct {
	Chunk

	EmbeddingScore    float64  `json:"embedding_score"`
	TermScore         float64  `json:"term_score"`
	EmbeddingRank     int      `json:"embedding_rank,omitempty"`
	TermRank          int      `json:"term_rank,omitempty"`
	MatchedTerms      []string `json:"matched_terms,omitempty"`
	MergedScore       float64  `json:"merged_score"`
	BoostedForContext bool     `json:"boosted_for_context"`
}

func (c ScoredChunk) FoundByEmbedding() bool { return c.EmbeddingRank > 0 }

func (c ScoredChunk) FoundByTerms() bool { return c.TermRank > 0 }

// DocumentRelevance is the share of a turn's passages owned by one document.
type DocumentRelevance struct {
	DocumentID     string  `json:"document_id"`
	RelevanceScore float64 `json:"relevance_score"`
}

// QueryContext carries topical continuity from one conversation turn to the next.
type QueryContext struct {
	PreviousEmbedding []float32           `json:"previous_embedding,omitempty"`
	RelevantDocuments []DocumentRelevance `json:"relevant_documents,omitempty"`
	PreviousTerms     []string            `json:"previous_terms,omitempty"`
}

func (q QueryContext) IsEmpty() bool {
	return len(q.PreviousEmbedding) == 0 && len(q.RelevantDocuments) == 0 && len(q.PreviousTerms) == 0
}

// Relevance returns the prior-turn relevance of a document, or 0.
func (q QueryContext) Relevance(documentID string) float64 {
	for _, rel := range q.RelevantDocuments {
		if rel.DocumentID == documentID {
			return rel.RelevanceScore
		}
	}
	return 0
}

type RetrievalStage string

const (
	StageContextual    RetrievalStage = "contextual"
	StageStandard      RetrievalStage = "standard"
	StageTermExpansion RetrievalStage = "term_expansion"
	StageExhausted     RetrievalStage = "exhausted"
)

type RetrievalRequest struct {
	Question    string                `json:"question"`
	DocumentIDs []string              `json:"document_ids,omitempty"`
	History     []ConversationMessage `json:"-"`
}

// RetrievalResult is the outcome of one retrieval turn. NoRelevantContent is a
// defined terminal state, not an error.
type RetrievalResult struct {
	ConversationID    string         `json:"conversation_id,omitempty"`
	Passages          []ScoredChunk  `json:"passages"`
	UsedFallback      bool           `json:"used_fallback"`
	NoRelevantContent bool           `json:"no_relevant_content"`
	Stage             RetrievalStage `json:"stage"`
}
