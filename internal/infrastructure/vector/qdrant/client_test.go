package qdrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/kirillkom/docqa/internal/core/domain"
)

func testChunks() []domain.Chunk {
	section := 1
	return []domain.Chunk{
		{ID: "doc-1:0", DocumentID: "doc-1", Index: 0, Text: "a", Embedding: []float32{0.1, 0.2}},
		{ID: "doc-1:1", DocumentID: "doc-1", Index: 1, Text: "b", Section: &section, SectionTitle: "Part 2", Embedding: []float32{0.3, 0.4}},
	}
}

func TestIndexChunksEnsuresCollectionOncePerVectorSize(t *testing.T) {
	var ensureCalls int32
	var pointIDs []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPut && r.URL.Path == "/collections/docs":
			atomic.AddInt32(&ensureCalls, 1)
			w.WriteHeader(http.StatusCreated)
		case r.Method == http.MethodPut && r.URL.Path == "/collections/docs/points":
			var body struct {
				Points []point `json:"points"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			for _, p := range body.Points {
				pointIDs = append(pointIDs, p.ID)
			}
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client := New(server.URL, "docs")
	doc := &domain.Document{ID: "doc-1", Filename: "a.txt"}

	if err := client.IndexChunks(context.Background(), doc, testChunks()); err != nil {
		t.Fatalf("first IndexChunks() error = %v", err)
	}
	if err := client.IndexChunks(context.Background(), doc, testChunks()); err != nil {
		t.Fatalf("second IndexChunks() error = %v", err)
	}
	if got := atomic.LoadInt32(&ensureCalls); got != 1 {
		t.Fatalf("expected ensure collection called once, got %d", got)
	}
	if len(pointIDs) != 4 || pointIDs[0] != pointIDs[2] || pointIDs[0] == pointIDs[1] {
		t.Fatalf("expected stable per-chunk point ids, got %v", pointIDs)
	}
}

func TestEnsureCollectionIncludesResponseBodyInError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut && r.URL.Path == "/collections/docs" {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		http.NotFound(w, r)
	}))
	defer server.Close()

	client := New(server.URL, "docs")
	doc := &domain.Document{ID: "doc-1", Filename: "a.txt"}
	err := client.IndexChunks(context.Background(), doc, testChunks()[:1])
	if err == nil {
		t.Fatalf("expected error")
	}
	if got := err.Error(); got == "" || !strings.Contains(got, "boom") {
		t.Fatalf("expected error to include body, got %v", err)
	}
}

func TestEnsureCollectionToleratesConflict(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/collections/docs" {
			w.WriteHeader(http.StatusConflict)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	if err := New(server.URL, "docs").IndexChunks(context.Background(), &domain.Document{ID: "doc-1"}, testChunks()); err != nil {
		t.Fatalf("IndexChunks() error = %v", err)
	}
}

func TestSearchChunksFiltersByDocumentAndDecodesChunks(t *testing.T) {
	var filter map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/collections/docs/points/search" {
			http.NotFound(w, r)
			return
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		filter, _ = body["filter"].(map[string]any)
		if body["with_vector"] != true {
			t.Errorf("expected with_vector=true")
		}
		_, _ = w.Write([]byte(`{"result":[
			{"score":0.9,"vector":[0.3,0.4],"payload":{"doc_id":"doc-1","chunk_id":"doc-1:1","chunk_index":1,"text":"b","word_count":1,"section":1,"section_title":"Part 2"}},
			{"score":0.5,"vector":[0.1,0.2],"payload":{"doc_id":"doc-2","chunk_id":"doc-2:0","chunk_index":0,"text":"a","word_count":1}}
		]}`))
	}))
	defer server.Close()

	chunks, err := New(server.URL, "docs").SearchChunks(context.Background(), []float32{0.3, 0.4}, 5, []string{"doc-1", "doc-2"})
	if err != nil {
		t.Fatalf("SearchChunks() error = %v", err)
	}
	if filter == nil {
		t.Fatalf("expected doc_id filter in request")
	}
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	first := chunks[0]
	if first.ID != "doc-1:1" || first.Index != 1 || first.Section == nil || *first.Section != 1 || len(first.Embedding) != 2 {
		t.Fatalf("unexpected first chunk: %+v", first)
	}
	if chunks[1].Section != nil {
		t.Fatalf("expected no section on second chunk")
	}
}

func TestDeleteDocumentUsesFilter(t *testing.T) {
	var called bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.URL.Path == "/collections/docs/points/delete" {
			called = true
			w.WriteHeader(http.StatusOK)
			return
		}
		http.NotFound(w, r)
	}))
	defer server.Close()

	if err := New(server.URL, "docs").DeleteDocument(context.Background(), "doc-1"); err != nil {
		t.Fatalf("DeleteDocument() error = %v", err)
	}
	if !called {
		t.Fatalf("expected delete endpoint called")
	}
}
