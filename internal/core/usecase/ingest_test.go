package usecase

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/kirillkom/docqa/internal/core/domain"
)

type ingestRepoFake struct {
	created   *domain.Document
	err       error
	status    domain.DocumentStatus
	statusMsg string
}

func (f *ingestRepoFake) Create(_ context.Context, doc *domain.Document) error {
	if f.err != nil {
		return f.err
	}
	copyDoc := *doc
	f.created = &copyDoc
	return nil
}

func (f *ingestRepoFake) GetByID(context.Context, string) (*domain.Document, error) {
	return nil, errors.New("not implemented")
}
func (f *ingestRepoFake) UpdateStatus(_ context.Context, _ string, status domain.DocumentStatus, errMessage string) error {
	f.status = status
	f.statusMsg = errMessage
	return nil
}
func (f *ingestRepoFake) List(context.Context) ([]domain.Document, error) {
	return nil, errors.New("not implemented")
}
func (f *ingestRepoFake) MarkReady(context.Context, string, int) error {
	return errors.New("not implemented")
}
func (f *ingestRepoFake) Delete(context.Context, string) error {
	return errors.New("not implemented")
}

type ingestStorageFake struct {
	savedKey   string
	savedBody  string
	deletedKey string
	err        error
}

func (f *ingestStorageFake) Save(_ context.Context, key string, data io.Reader) error {
	if f.err != nil {
		return f.err
	}
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.savedKey = key
	f.savedBody = string(raw)
	return nil
}

func (f *ingestStorageFake) Open(context.Context, string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("")), nil
}

func (f *ingestStorageFake) Delete(_ context.Context, key string) error {
	f.deletedKey = key
	return nil
}

type ingestQueueFake struct {
	documentID string
	err        error
}

func (f *ingestQueueFake) PublishDocumentIngested(_ context.Context, documentID string) error {
	if f.err != nil {
		return f.err
	}
	f.documentID = documentID
	return nil
}

func (f *ingestQueueFake) SubscribeDocumentIngested(context.Context, func(context.Context, string) error) error {
	return errors.New("not implemented")
}

func TestIngestUploadSuccess(t *testing.T) {
	repo := &ingestRepoFake{}
	storage := &ingestStorageFake{}
	queue := &ingestQueueFake{}
	uc := NewIngestDocumentUseCase(repo, storage, queue)

	doc, err := uc.Upload(context.Background(), "report 1.txt", "text/plain", bytes.NewBufferString("hello"))
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if doc.ID == "" {
		t.Fatalf("expected document id")
	}
	if doc.Status != domain.StatusUploaded {
		t.Fatalf("expected status uploaded, got %s", doc.Status)
	}
	if repo.created == nil {
		t.Fatalf("expected repo.Create call")
	}
	if queue.documentID != doc.ID {
		t.Fatalf("expected queued doc id %s, got %s", doc.ID, queue.documentID)
	}
	if !strings.Contains(storage.savedKey, "_report_1.txt") {
		t.Fatalf("expected sanitized key suffix, got %s", storage.savedKey)
	}
	if storage.savedBody != "hello" {
		t.Fatalf("expected saved body hello, got %s", storage.savedBody)
	}
	if doc.Title != "report 1" || doc.FileType != "txt" {
		t.Fatalf("expected title and file type from filename, got %q %q", doc.Title, doc.FileType)
	}
}

func TestIngestUploadRequiresFilename(t *testing.T) {
	uc := NewIngestDocumentUseCase(&ingestRepoFake{}, &ingestStorageFake{}, &ingestQueueFake{})
	_, err := uc.Upload(context.Background(), " ", "text/plain", bytes.NewBufferString("hello"))
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestFileType(t *testing.T) {
	cases := map[string]string{"Report.PDF": "pdf", "data.xlsx": "xlsx", "notes": "", "a.b.csv": "csv"}
	for name, want := range cases {
		if got := fileType(name); got != want {
			t.Fatalf("fileType(%q) = %q, want %q", name, got, want)
		}
	}
}

func TestIngestUploadQueueError(t *testing.T) {
	repo := &ingestRepoFake{}
	storage := &ingestStorageFake{}
	queue := &ingestQueueFake{err: errors.New("queue down")}
	uc := NewIngestDocumentUseCase(repo, storage, queue)

	_, err := uc.Upload(context.Background(), "report.txt", "text/plain", bytes.NewBufferString("hello"))
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "publish ingestion event") || !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary publish error, got %v", err)
	}
	if repo.status != domain.StatusFailed || repo.statusMsg == "" {
		t.Fatalf("expected document marked failed, got %q %q", repo.status, repo.statusMsg)
	}
}

func TestIngestUploadRejectsEmptyFile(t *testing.T) {
	repo := &ingestRepoFake{}
	storage := &ingestStorageFake{}
	queue := &ingestQueueFake{}
	uc := NewIngestDocumentUseCase(repo, storage, queue)

	_, err := uc.Upload(context.Background(), "empty.txt", "text/plain", bytes.NewReader(nil))
	if !domain.IsKind(err, domain.ErrEmptyDocument) {
		t.Fatalf("expected ErrEmptyDocument, got %v", err)
	}
	if storage.deletedKey == "" || storage.deletedKey != storage.savedKey {
		t.Fatalf("expected stored file removed, saved=%q deleted=%q", storage.savedKey, storage.deletedKey)
	}
	if repo.created != nil || queue.documentID != "" {
		t.Fatalf("expected no metadata or event for an empty file")
	}
}

func TestIngestUploadRemovesFileWhenMetadataFails(t *testing.T) {
	storage := &ingestStorageFake{}
	uc := NewIngestDocumentUseCase(&ingestRepoFake{err: errors.New("db down")}, storage, &ingestQueueFake{})

	if _, err := uc.Upload(context.Background(), "report.txt", "text/plain", bytes.NewBufferString("hello")); err == nil {
		t.Fatalf("expected error")
	}
	if storage.deletedKey != storage.savedKey {
		t.Fatalf("expected stored file removed, saved=%q deleted=%q", storage.savedKey, storage.deletedKey)
	}
}
