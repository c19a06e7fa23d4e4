package usecase

import (
	"math"
	"testing"

	"github.com/kirillkom/docqa/internal/core/domain"
)

func TestMergeResultsScoresBothMethods(t *testing.T) {
	both := scored("doc-a", 0)
	both.EmbeddingScore, both.EmbeddingRank = 0.8, 1
	onlyTerm := scored("doc-b", 0)
	onlyTerm.TermScore, onlyTerm.TermRank = 1.2, 2

	term := both
	term.EmbeddingScore, term.EmbeddingRank = 0, 0
	term.TermScore, term.TermRank = 2.0, 1
	term.MatchedTerms = []string{"invoice"}

	fused := mergeResults([]domain.ScoredChunk{both}, []domain.ScoredChunk{term, onlyTerm}, false, domain.QueryContext{})
	if len(fused) != 2 {
		t.Fatalf("expected 2 fused chunks, got %d", len(fused))
	}
	top := fused[0]
	if top.ID != "doc-a:0" {
		t.Fatalf("expected doc-a first, got %s", top.ID)
	}
	want := 0.8*0.5 + (2.0/2)*0.5 + 0.15
	if math.Abs(top.MergedScore-want) > 1e-9 {
		t.Fatalf("expected merged score %v, got %v", want, top.MergedScore)
	}
	if top.EmbeddingRank != 1 || top.TermRank != 1 || len(top.MatchedTerms) != 1 {
		t.Fatalf("expected both signals recorded, got %+v", top)
	}
	if got, want := fused[1].MergedScore, (1.2/2)*0.5; math.Abs(got-want) > 1e-9 {
		t.Fatalf("expected term-only score %v, got %v", want, got)
	}
}

func TestMergeResultsAddsContextBoostAndClampsNegativeSimilarity(t *testing.T) {
	boosted := scored("doc-a", 0)
	boosted.EmbeddingScore, boosted.EmbeddingRank, boosted.BoostedForContext = 0.5, 1, true
	negative := scored("doc-b", 0)
	negative.EmbeddingScore, negative.EmbeddingRank = -0.4, 2

	fused := mergeResults([]domain.ScoredChunk{boosted, negative}, nil, true, domain.QueryContext{})
	if math.Abs(fused[0].MergedScore-(0.25+0.1)) > 1e-9 {
		t.Fatalf("expected context boost applied, got %v", fused[0].MergedScore)
	}
	if fused[1].MergedScore != 0 {
		t.Fatalf("expected negative similarity clamped to 0, got %v", fused[1].MergedScore)
	}
}

func TestMergeResultsKeepsEveryDocument(t *testing.T) {
	var embedding []domain.ScoredChunk
	for i := 0; i < 12; i++ {
		c := scored("doc-a", i)
		c.EmbeddingScore, c.EmbeddingRank = 0.9-float64(i)*0.01, i+1
		embedding = append(embedding, c)
	}
	weak := scored("doc-b", 0)
	weak.TermScore, weak.TermRank = 0.05, 1

	fused := mergeResults(embedding, []domain.ScoredChunk{weak}, false, domain.QueryContext{})
	if len(fused) != maxFusedPassages {
		t.Fatalf("expected %d passages, got %d", maxFusedPassages, len(fused))
	}
	found := false
	for i, c := range fused {
		if c.DocumentID == "doc-b" {
			found = true
		}
		if i > 0 && fused[i-1].MergedScore < c.MergedScore {
			t.Fatalf("expected descending merged scores")
		}
	}
	if !found {
		t.Fatalf("expected doc-b to keep a passage")
	}
}

func TestMergeResultsContextualOrderPrefersPriorDocuments(t *testing.T) {
	var embedding []domain.ScoredChunk
	for _, doc := range []string{"doc-a", "doc-b", "doc-c", "doc-d", "doc-e", "doc-f", "doc-g", "doc-h", "doc-i"} {
		c := scored(doc, 0)
		c.EmbeddingScore, c.EmbeddingRank = 0.9, 1
		embedding = append(embedding, c)
	}
	weak := scored("doc-z", 0)
	weak.EmbeddingScore, weak.EmbeddingRank = 0.3, 2
	embedding = append(embedding, weak)

	prior := domain.QueryContext{RelevantDocuments: []domain.DocumentRelevance{{DocumentID: "doc-z", RelevanceScore: 1}}}
	fused := mergeResults(embedding, nil, true, prior)
	found := false
	for _, c := range fused {
		if c.DocumentID == "doc-z" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected prior relevant document to claim a slot when documents exceed the cap")
	}

	plain := mergeResults(embedding, nil, false, prior)
	for _, c := range plain {
		if c.DocumentID == "doc-z" {
			t.Fatalf("expected weakest document dropped without context")
		}
	}
}

func TestMergeResultsIsDeterministic(t *testing.T) {
	var embedding, term []domain.ScoredChunk
	for _, doc := range []string{"doc-c", "doc-a", "doc-b"} {
		for i := 0; i < 3; i++ {
			c := scored(doc, i)
			c.EmbeddingScore, c.EmbeddingRank = 0.5, i+1
			embedding = append(embedding, c)
			tc := scored(doc, i)
			tc.TermScore, tc.TermRank = 1, i+1
			term = append(term, tc)
		}
	}
	first := mergeResults(embedding, term, false, domain.QueryContext{})
	for n := 0; n < 20; n++ {
		again := mergeResults(embedding, term, false, domain.QueryContext{})
		for i := range first {
			if first[i].ID != again[i].ID {
				t.Fatalf("run %d: order differs at %d: %s vs %s", n, i, first[i].ID, again[i].ID)
			}
		}
	}
}

func TestReduceLargeResultSet(t *testing.T) {
	small := []domain.ScoredChunk{scored("doc-a", 0), scored("doc-a", 1), scored("doc-a", 2), scored("doc-a", 3)}
	if got := reduceLargeResultSet(small); len(got) != 4 {
		t.Fatalf("expected small sets untouched, got %d", len(got))
	}

	var large []domain.ScoredChunk
	for i := 0; i < 6; i++ {
		large = append(large, scored("doc-a", i))
	}
	large = append(large, scored("doc-b", 0), scored("doc-b", 1))
	got := reduceLargeResultSet(large)
	perDoc := map[string]int{}
	for _, c := range got {
		perDoc[c.DocumentID]++
	}
	if perDoc["doc-a"] != 3 || perDoc["doc-b"] != 2 {
		t.Fatalf("expected per-document cap of 3, got %v", perDoc)
	}
}
