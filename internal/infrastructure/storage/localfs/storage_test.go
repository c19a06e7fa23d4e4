package localfs

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"testing"
)

func TestStorageSaveOpenDelete(t *testing.T) {
	storage, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx := context.Background()

	if err := storage.Save(ctx, "doc_a.txt", strings.NewReader("hello")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	reader, err := storage.Open(ctx, "doc_a.txt")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	raw, _ := io.ReadAll(reader)
	reader.Close()
	if string(raw) != "hello" {
		t.Fatalf("expected saved content, got %q", raw)
	}

	if err := storage.Delete(ctx, "doc_a.txt"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := storage.Delete(ctx, "doc_a.txt"); err != nil {
		t.Fatalf("expected second Delete() to be a no-op, got %v", err)
	}
	if _, err := storage.Open(ctx, "doc_a.txt"); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not exist after delete, got %v", err)
	}
}

func TestStorageLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	storage, _ := New(dir)
	_ = storage.Save(context.Background(), "a.txt", strings.NewReader("x"))

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "a.txt" {
		t.Fatalf("expected only the saved file, got %v", entries)
	}
}

func TestStorageRejectsPathKeys(t *testing.T) {
	storage, _ := New(t.TempDir())
	for _, key := range []string{"", "..", "../escape.txt", "nested/file.txt"} {
		if err := storage.Save(context.Background(), key, strings.NewReader("x")); err == nil {
			t.Fatalf("expected key %q to be rejected", key)
		}
	}
}
