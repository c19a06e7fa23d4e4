package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/kirillkom/docqa/internal/core/domain"
)

// corpusFake is an in-memory document and chunk store.
type corpusFake struct {
	mu        sync.Mutex
	docs      map[string]*domain.Document
	chunks    map[string][]domain.Chunk
	listErr   error
	chunksErr error
	deleted   []string
}

func newCorpusFake() *corpusFake {
	return &corpusFake{docs: map[string]*domain.Document{}, chunks: map[string][]domain.Chunk{}}
}

// add stores a ready document whose chunks have the given texts and embeddings.
func (f *corpusFake) add(id string, texts []string, vectors [][]float32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs[id] = &domain.Document{ID: id, Filename: id + ".txt", Status: domain.StatusReady}
	chunks := make([]domain.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = domain.Chunk{
			ID:         fmt.Sprintf("%s:%d", id, i),
			DocumentID: id,
			Index:      i,
			Text:       text,
			Embedding:  vectors[i],
		}
	}
	f.chunks[id] = chunks
}

func (f *corpusFake) Create(_ context.Context, doc *domain.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copyDoc := *doc
	f.docs[doc.ID] = &copyDoc
	return nil
}

func (f *corpusFake) GetByID(_ context.Context, id string) (*domain.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", errors.New(id))
	}
	copyDoc := *doc
	return &copyDoc, nil
}

func (f *corpusFake) List(context.Context) ([]domain.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]domain.Document, 0, len(f.docs))
	for _, doc := range f.docs {
		out = append(out, *doc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *corpusFake) UpdateStatus(_ context.Context, id string, status domain.DocumentStatus, errMessage string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok {
		return domain.ErrDocumentNotFound
	}
	doc.Status = status
	doc.Error = errMessage
	return nil
}

func (f *corpusFake) MarkReady(_ context.Context, id string, wordCount int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok {
		return domain.ErrDocumentNotFound
	}
	doc.Status = domain.StatusReady
	doc.WordCount = wordCount
	return nil
}

func (f *corpusFake) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.docs, id)
	delete(f.chunks, id)
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *corpusFake) SaveChunks(_ context.Context, documentID string, chunks []domain.Chunk) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.chunksErr != nil {
		return f.chunksErr
	}
	f.chunks[documentID] = append([]domain.Chunk(nil), chunks...)
	return nil
}

func (f *corpusFake) GetAllChunks(_ context.Context, documentID string) ([]domain.Chunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.chunksErr != nil {
		return nil, f.chunksErr
	}
	return append([]domain.Chunk(nil), f.chunks[documentID]...), nil
}

// embedderFake maps exact texts to vectors.
type embedderFake struct {
	mu       sync.Mutex
	vectors  map[string][]float32
	fallback []float32
	err      error
	queries  []string
}

func (f *embedderFake) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = f.lookup(text)
	}
	return out, nil
}

func (f *embedderFake) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	f.queries = append(f.queries, text)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.lookup(text), nil
}

func (f *embedderFake) lookup(text string) []float32 {
	if v, ok := f.vectors[text]; ok {
		return v
	}
	return f.fallback
}

type suggesterFake struct {
	terms  []string
	err    error
	calls  int
	seenIn []string
}

func (f *suggesterFake) SuggestTerms(_ context.Context, _ string, terms []string, _ []domain.ConversationMessage) ([]string, error) {
	f.calls++
	f.seenIn = terms
	if f.err != nil {
		return nil, f.err
	}
	return f.terms, nil
}

type vectorIndexFake struct {
	chunks    []domain.Chunk
	searchErr error
	indexed   map[string]int
	deleted   []string
}

func (f *vectorIndexFake) IndexChunks(_ context.Context, doc *domain.Document, chunks []domain.Chunk) error {
	if f.indexed == nil {
		f.indexed = map[string]int{}
	}
	f.indexed[doc.ID] = len(chunks)
	return nil
}

func (f *vectorIndexFake) SearchChunks(context.Context, []float32, int, []string) ([]domain.Chunk, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.chunks, nil
}

func (f *vectorIndexFake) DeleteDocument(_ context.Context, documentID string) error {
	f.deleted = append(f.deleted, documentID)
	return nil
}

type observerFake struct {
	mu       sync.Mutex
	started  []domain.RetrievalStage
	finished map[domain.RetrievalStage]int
}

func (f *observerFake) StageStarted(_ context.Context, stage domain.RetrievalStage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, stage)
}

func (f *observerFake) StageFinished(_ context.Context, stage domain.RetrievalStage, passages int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.finished == nil {
		f.finished = map[domain.RetrievalStage]int{}
	}
	f.finished[stage] = passages
}

func scored(documentID string, index int) domain.ScoredChunk {
	return domain.ScoredChunk{Chunk: domain.Chunk{
		ID:         fmt.Sprintf("%s:%d", documentID, index),
		DocumentID: documentID,
		Index:      index,
		Text:       fmt.Sprintf("chunk %d of %s", index, documentID),
	}}
}
