package ports

import (
	"context"
	"io"

	"github.com/kirillkom/docqa/internal/core/domain"
)

// DocumentRepository persists and reads document state.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	List(ctx context.Context) ([]domain.Document, error)
	UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errMessage string) error
	MarkReady(ctx context.Context, id string, wordCount int) error
	Delete(ctx context.Context, id string) error
}

// ChunkRepository stores chunks with their embeddings attached.
type ChunkRepository interface {
	SaveChunks(ctx context.Context, documentID string, chunks []domain.Chunk) error
	GetAllChunks(ctx context.Context, documentID string) ([]domain.Chunk, error)
}

// ObjectStorage stores source documents.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// MessageQueue publishes/consumes ingestion events.
type MessageQueue interface {
	PublishDocumentIngested(ctx context.Context, documentID string) error
	SubscribeDocumentIngested(ctx context.Context, handler func(context.Context, string) error) error
}

// TextExtractor extracts plain text from a stored document.
type TextExtractor interface {
	Extract(ctx context.Context, doc *domain.Document) (string, error)
}

// Embedder builds vectors for chunks and query text. Identical input must
// produce identical vectors.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Chunker splits text into retrievable passages.
type Chunker interface {
	Split(text string) ([]domain.Chunk, error)
}

// VectorIndex is an optional approximate pre-filter for vector candidates.
// Returned chunks must carry their embeddings.
type VectorIndex interface {
	IndexChunks(ctx context.Context, doc *domain.Document, chunks []domain.Chunk) error
	SearchChunks(ctx context.Context, queryVector []float32, limit int, documentIDs []string) ([]domain.Chunk, error)
	DeleteDocument(ctx context.Context, documentID string) error
}

// AnswerGenerator creates the final user-facing answer from ranked passages.
// Passages are cited by their 1-based position.
type AnswerGenerator interface {
	GenerateAnswer(ctx context.Context, question string, passages []domain.ScoredChunk, history []domain.ConversationMessage) (string, error)
}

// TermSuggester proposes alternative search terms when retrieval finds nothing.
type TermSuggester interface {
	SuggestTerms(ctx context.Context, question string, terms []string, history []domain.ConversationMessage) ([]string, error)
}

// RetrievalObserver receives stage progress. It must not block.
type RetrievalObserver interface {
	StageStarted(ctx context.Context, stage domain.RetrievalStage)
	StageFinished(ctx context.Context, stage domain.RetrievalStage, passages int)
}
