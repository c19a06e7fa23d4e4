package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kirillkom/docqa/internal/core/domain"
	"github.com/kirillkom/docqa/internal/core/ports"
)

const (
	// embedBatchSize bounds the number of chunk texts per embedding request.
	embedBatchSize = 32
	// maxFailureMessage bounds the error text stored on a failed document.
	maxFailureMessage = 500
)

// ProcessDocumentUseCase turns an uploaded document into embedded chunks.
type ProcessDocumentUseCase struct {
	repo      ports.DocumentRepository
	chunkRepo ports.ChunkRepository
	extractor ports.TextExtractor
	chunker   ports.Chunker
	embedder  ports.Embedder
	index     ports.VectorIndex
}

func NewProcessDocumentUseCase(
	repo ports.DocumentRepository,
	chunkRepo ports.ChunkRepository,
	extractor ports.TextExtractor,
	chunker ports.Chunker,
	embedder ports.Embedder,
	index ports.VectorIndex,
) *ProcessDocumentUseCase {
	return &ProcessDocumentUseCase{
		repo:      repo,
		chunkRepo: chunkRepo,
		extractor: extractor,
		chunker:   chunker,
		embedder:  embedder,
		index:     index,
	}
}

// ProcessByID runs extract, chunk, embed, store and index for one document.
// A document that is already ready is left alone, so redelivered events are
// harmless.
func (uc *ProcessDocumentUseCase) ProcessByID(ctx context.Context, documentID string) error {
	doc, err := uc.repo.GetByID(ctx, documentID)
	if err != nil {
		return fmt.Errorf("fetch document by id: %w", err)
	}
	if doc.Status == domain.StatusReady {
		slog.Info("document_already_ready", "document_id", documentID)
		return nil
	}

	if err := uc.repo.UpdateStatus(ctx, documentID, domain.StatusProcessing, ""); err != nil {
		return fmt.Errorf("set status=processing: %w", err)
	}

	wordCount, err := uc.run(ctx, doc)
	if err != nil {
		if failErr := uc.repo.UpdateStatus(ctx, documentID, domain.StatusFailed, failureMessage(err)); failErr != nil {
			return fmt.Errorf("%w; mark failed status: %v", err, failErr)
		}
		return err
	}

	if err := uc.repo.MarkReady(ctx, documentID, wordCount); err != nil {
		return fmt.Errorf("set status=ready: %w", err)
	}
	return nil
}

func (uc *ProcessDocumentUseCase) run(ctx context.Context, doc *domain.Document) (int, error) {
	text, err := uc.extractor.Extract(ctx, doc)
	if err != nil {
		return 0, fmt.Errorf("extract text: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return 0, domain.WrapError(domain.ErrEmptyDocument, "extract text", errors.New("empty extracted text"))
	}

	chunks, err := uc.chunker.Split(text)
	if err != nil {
		return 0, fmt.Errorf("chunk document: %w", err)
	}
	for i := range chunks {
		chunks[i].DocumentID = doc.ID
		chunks[i].ID = fmt.Sprintf("%s:%d", doc.ID, chunks[i].Index)
	}

	if err := uc.embed(ctx, chunks); err != nil {
		return 0, err
	}
	if err := uc.chunkRepo.SaveChunks(ctx, doc.ID, chunks); err != nil {
		return 0, fmt.Errorf("save chunks: %w", err)
	}
	if uc.index != nil {
		if err := uc.index.IndexChunks(ctx, doc, chunks); err != nil {
			return 0, fmt.Errorf("index chunks in vector db: %w", err)
		}
	}
	return len(strings.Fields(text)), nil
}

// embed attaches vectors in batches of embedBatchSize.
func (uc *ProcessDocumentUseCase) embed(ctx context.Context, chunks []domain.Chunk) error {
	for start := 0; start < len(chunks); start += embedBatchSize {
		batch := chunks[start:min(start+embedBatchSize, len(chunks))]
		texts := make([]string, len(batch))
		for i, chunk := range batch {
			texts[i] = chunk.Text
		}

		vectors, err := uc.embedder.Embed(ctx, texts)
		if err != nil {
			return fmt.Errorf("embed chunks: %w", err)
		}
		if len(vectors) != len(batch) {
			return domain.WrapError(
				domain.ErrInvalidInput,
				"embed chunks",
				fmt.Errorf("vectors/chunks mismatch: %d/%d", len(vectors), len(batch)),
			)
		}
		for i := range batch {
			batch[i].Embedding = vectors[i]
		}
	}
	return nil
}

func failureMessage(err error) string {
	msg := err.Error()
	if len(msg) <= maxFailureMessage {
		return msg
	}
	return msg[:maxFailureMessage] + "..."
}
