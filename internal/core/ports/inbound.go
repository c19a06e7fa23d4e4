package ports

import (
	"context"
	"io"

	"github.com/kirillkom/docqa/internal/core/domain"
)

// DocumentIngestor is the inbound contract for document upload orchestration.
type DocumentIngestor interface {
	Upload(ctx context.Context, filename, mimeType string, body io.Reader) (*domain.Document, error)
}

// DocumentImporter stores and produces portable document exports.
type DocumentImporter interface {
	Import(ctx context.Context, export domain.DocumentExport) (*domain.Document, error)
	Export(ctx context.Context, documentID string) (*domain.DocumentExport, error)
}

// DocumentReader is the inbound read model for document metadata/state.
type DocumentReader interface {
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	List(ctx context.Context) ([]domain.Document, error)
	Delete(ctx context.Context, id string) error
}

// DocumentProcessor is the inbound contract for asynchronous document processing.
type DocumentProcessor interface {
	ProcessByID(ctx context.Context, documentID string) error
}

// DocumentChunker exposes chunking without storage.
type DocumentChunker interface {
	ChunkDocument(text string) ([]domain.Chunk, error)
}

// DocumentQueryService is the inbound contract for conversational RAG.
type DocumentQueryService interface {
	Answer(ctx context.Context, req domain.QueryRequest) (*domain.Answer, error)
	Retrieve(ctx context.Context, req domain.QueryRequest) (*domain.RetrievalResult, error)
	ResetConversation(ctx context.Context, conversationID string) error
	Citation(ctx context.Context, conversationID string, index int) (*domain.ScoredChunk, error)
}

// Retriever runs staged hybrid retrieval against a conversation context and
// returns the context to carry into the next turn.
type Retriever interface {
	Retrieve(ctx context.Context, req domain.RetrievalRequest, prior domain.QueryContext) (*domain.RetrievalResult, domain.QueryContext, error)
}
