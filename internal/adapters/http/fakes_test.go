package httpadapter

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/kirillkom/docqa/internal/config"
	"github.com/kirillkom/docqa/internal/core/domain"
)

type ingestFake struct {
	err error
}

func (f ingestFake) Upload(_ context.Context, filename, mimeType string, body io.Reader) (*domain.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload", io.EOF)
	}

	now := time.Now().UTC()
	return &domain.Document{
		ID:          "doc-1",
		Filename:    filename,
		MimeType:    mimeType,
		StoragePath: "doc-1_file.txt",
		Status:      domain.StatusUploaded,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

type queryFake struct {
	err      error
	lastReq  domain.QueryRequest
	answer   *domain.Answer
	result   *domain.RetrievalResult
	citation *domain.ScoredChunk
	resetID  string
}

func (f *queryFake) Answer(_ context.Context, req domain.QueryRequest) (*domain.Answer, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	if f.answer != nil {
		return f.answer, nil
	}
	return &domain.Answer{ConversationID: "conv-1", Text: "ok", Stage: domain.StageStandard}, nil
}

func (f *queryFake) Retrieve(_ context.Context, req domain.QueryRequest) (*domain.RetrievalResult, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return &domain.RetrievalResult{ConversationID: "conv-1", Stage: domain.StageStandard}, nil
}

func (f *queryFake) ResetConversation(_ context.Context, conversationID string) error {
	f.resetID = conversationID
	return f.err
}

func (f *queryFake) Citation(_ context.Context, _ string, index int) (*domain.ScoredChunk, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.citation == nil || index != 1 {
		return nil, domain.ErrInvalidInput
	}
	return f.citation, nil
}

type docsFake struct {
	err      error
	docs     []domain.Document
	deleted  string
	imported *domain.DocumentExport
}

func (f *docsFake) GetByID(_ context.Context, id string) (*domain.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Document{ID: id, Filename: "a", MimeType: "text/plain", Status: domain.StatusReady}, nil
}

func (f *docsFake) List(context.Context) ([]domain.Document, error) {
	return f.docs, f.err
}

func (f *docsFake) Delete(_ context.Context, id string) error {
	if f.err != nil {
		return f.err
	}
	f.deleted = id
	return nil
}

func (f *docsFake) Import(_ context.Context, export domain.DocumentExport) (*domain.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.imported = &export
	doc := export.Document
	doc.ID = "doc-imported"
	doc.Imported = true
	return &doc, nil
}

func (f *docsFake) Export(_ context.Context, id string) (*domain.DocumentExport, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.DocumentExport{
		Document: domain.Document{ID: id, Status: domain.StatusReady},
		Chunks:   []domain.Chunk{{ID: id + ":0", DocumentID: id, Text: "text", Embedding: []float32{1, 0}}},
	}, nil
}

func (f *docsFake) ChunkDocument(text string) ([]domain.Chunk, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []domain.Chunk{{ID: "0", Text: text, WordCount: 1}}, nil
}

func newTestHandler(cfg config.Config) http.Handler {
	return NewRouter(cfg, ingestFake{}, &queryFake{}, &docsFake{}).Handler()
}
