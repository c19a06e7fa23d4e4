package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kirillkom/docqa/internal/core/domain"
)

// Store keeps documents and chunks in process memory. It backs
// STORAGE_BACKEND=memory, mostly for local runs and tests.
type Store struct {
	mu     sync.RWMutex
	docs   map[string]domain.Document
	chunks map[string][]domain.Chunk
}

func NewStore() *Store {
	return &Store{
		docs:   make(map[string]domain.Document),
		chunks: make(map[string][]domain.Chunk),
	}
}

func (s *Store) Create(_ context.Context, doc *domain.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.docs[doc.ID]; exists {
		return domain.WrapError(domain.ErrInvalidInput, "create document", fmt.Errorf("duplicate id=%s", doc.ID))
	}
	s.docs[doc.ID] = *doc
	return nil
}

func (s *Store) GetByID(_ context.Context, id string) (*domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", fmt.Errorf("id=%s", id))
	}
	return &doc, nil
}

func (s *Store) List(context.Context) ([]domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Document, 0, len(s.docs))
	for _, doc := range s.docs {
		out = append(out, doc)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) UpdateStatus(_ context.Context, id string, status domain.DocumentStatus, errMessage string) error {
	return s.update(id, "update document status", func(doc *domain.Document) {
		doc.Status = status
		doc.Error = errMessage
	})
}

func (s *Store) MarkReady(_ context.Context, id string, wordCount int) error {
	return s.update(id, "mark document ready", func(doc *domain.Document) {
		now := time.Now().UTC()
		doc.Status = domain.StatusReady
		doc.Error = ""
		doc.WordCount = wordCount
		doc.ProcessedAt = &now
	})
}

func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[id]; !ok {
		return domain.WrapError(domain.ErrDocumentNotFound, "delete document", fmt.Errorf("id=%s", id))
	}
	delete(s.docs, id)
	delete(s.chunks, id)
	return nil
}

func (s *Store) SaveChunks(_ context.Context, documentID string, chunks []domain.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[documentID]; !ok {
		return domain.WrapError(domain.ErrDocumentNotFound, "save chunks", fmt.Errorf("id=%s", documentID))
	}
	s.chunks[documentID] = cloneChunks(chunks)
	return nil
}

// GetAllChunks returns copies in index order.
func (s *Store) GetAllChunks(_ context.Context, documentID string) ([]domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneChunks(s.chunks[documentID]), nil
}

func (s *Store) update(id, operation string, apply func(*domain.Document)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return domain.WrapError(domain.ErrDocumentNotFound, operation, fmt.Errorf("id=%s", id))
	}
	apply(&doc)
	doc.UpdatedAt = time.Now().UTC()
	s.docs[id] = doc
	return nil
}

func cloneChunks(chunks []domain.Chunk) []domain.Chunk {
	out := make([]domain.Chunk, len(chunks))
	for i, chunk := range chunks {
		chunk.Embedding = append([]float32(nil), chunk.Embedding...)
		if chunk.Section != nil {
			section := *chunk.Section
			chunk.Section = &section
		}
		out[i] = chunk
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}
