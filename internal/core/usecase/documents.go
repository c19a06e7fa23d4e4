package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/docqa/internal/core/domain"
	"github.com/kirillkom/docqa/internal/core/ports"
)

// DocumentService covers the read, delete, import and export side of the
// document lifecycle.
type DocumentService struct {
	repo    ports.DocumentRepository
	chunks  ports.ChunkRepository
	chunker ports.Chunker
	index   ports.VectorIndex
	storage ports.ObjectStorage
}

func NewDocumentService(
	repo ports.DocumentRepository,
	chunks ports.ChunkRepository,
	chunker ports.Chunker,
	index ports.VectorIndex,
) *DocumentService {
	return &DocumentService{repo: repo, chunks: chunks, chunker: chunker, index: index}
}

// WithStorage lets Delete remove the uploaded source file too.
func (s *DocumentService) WithStorage(storage ports.ObjectStorage) *DocumentService {
	s.storage = storage
	return s
}

func (s *DocumentService) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *DocumentService) List(ctx context.Context) ([]domain.Document, error) {
	docs, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return docs, nil
}

// Delete removes the document with its chunks and vector index entries.
func (s *DocumentService) Delete(ctx context.Context, id string) error {
	doc, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if s.index != nil {
		if err := s.index.DeleteDocument(ctx, id); err != nil {
			return fmt.Errorf("delete from vector index: %w", err)
		}
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if s.storage != nil && doc.StoragePath != "" {
		// The document is already gone; an orphaned source file is only logged.
		if err := s.storage.Delete(ctx, doc.StoragePath); err != nil {
			slog.Warn("source_file_delete_failed", "document_id", id, "storage_path", doc.StoragePath, "error", err)
		}
	}
	return nil
}

// ChunkDocument splits text without storing anything.
func (s *DocumentService) ChunkDocument(text string) ([]domain.Chunk, error) {
	return s.chunker.Split(text)
}

func (s *DocumentService) Export(ctx context.Context, documentID string) (*domain.DocumentExport, error) {
	doc, err := s.repo.GetByID(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc.Status != domain.StatusReady {
		return nil, domain.WrapError(
			domain.ErrInvalidInput,
			"export document",
			fmt.Errorf("document %s is %s", documentID, doc.Status),
		)
	}
	chunks, err := s.chunks.GetAllChunks(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("load chunks: %w", err)
	}
	exported := *doc
	exported.StoragePath = ""
	return &domain.DocumentExport{Document: exported, Chunks: chunks}, nil
}

// Import stores a previously exported document under a fresh id. Chunk
// embeddings are kept as-is; nothing is re-embedded.
func (s *DocumentService) Import(ctx context.Context, export domain.DocumentExport) (*domain.Document, error) {
	if len(export.Chunks) == 0 {
		return nil, domain.WrapError(domain.ErrEmptyDocument, "import document", errors.New("export has no chunks"))
	}
	dimension := len(export.Chunks[0].Embedding)
	wordCount := 0
	for i, chunk := range export.Chunks {
		if strings.TrimSpace(chunk.Text) == "" {
			return nil, domain.WrapError(domain.ErrInvalidInput, "import document", fmt.Errorf("chunk %d has no text", i))
		}
		if len(chunk.Embedding) == 0 || len(chunk.Embedding) != dimension {
			return nil, domain.WrapError(domain.ErrInvalidInput, "import document", fmt.Errorf("chunk %d has a missing or inconsistent embedding", i))
		}
		wordCount += chunk.WordCount
	}

	now := time.Now().UTC()
	doc := export.Document
	doc.ID = uuid.NewString()
	doc.StoragePath = ""
	doc.Imported = true
	doc.Status = domain.StatusReady
	doc.Error = ""
	doc.ProcessedAt = &now
	doc.CreatedAt = now
	doc.UpdatedAt = now
	if doc.WordCount == 0 {
		doc.WordCount = wordCount
	}
	if doc.Title == "" {
		doc.Title = documentTitle(doc.Filename)
	}

	chunks := make([]domain.Chunk, len(export.Chunks))
	for i, chunk := range export.Chunks {
		chunk.DocumentID = doc.ID
		chunk.Index = i
		chunk.ID = fmt.Sprintf("%s:%d", doc.ID, i)
		chunks[i] = chunk
	}

	if err := s.repo.Create(ctx, &doc); err != nil {
		return nil, fmt.Errorf("create document metadata: %w", err)
	}
	if err := s.chunks.SaveChunks(ctx, doc.ID, chunks); err != nil {
		return nil, s.rollbackImport(ctx, doc.ID, fmt.Errorf("save chunks: %w", err))
	}
	if s.index != nil {
		if err := s.index.IndexChunks(ctx, &doc, chunks); err != nil {
			return nil, s.rollbackImport(ctx, doc.ID, fmt.Errorf("index chunks in vector db: %w", err))
		}
	}
	return &doc, nil
}

func (s *DocumentService) rollbackImport(ctx context.Context, documentID string, cause error) error {
	if err := s.repo.Delete(ctx, documentID); err != nil {
		return fmt.Errorf("%w; rollback import: %v", cause, err)
	}
	return cause
}
