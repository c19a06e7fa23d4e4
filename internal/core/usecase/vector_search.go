package usecase

import (
	"context"
	"math"

	"github.com/kirillkom/docqa/internal/core/domain"
)

// findSimilar ranks chunks by cosine similarity with a per-document quota of
// max(1, ceil(limit/documentsWithResults)) before the global cut, so
// documents far from the query are not starved.
func findSimilar(
	ctx context.Context,
	queryVector []float32,
	chunksByDocument map[string][]domain.Chunk,
	documentIDs []string,
	limit int,
	minSimilarity float64,
) ([]domain.ScoredChunk, error) {
	if len(queryVector) == 0 || limit <= 0 {
		return nil, nil
	}

	groups := make([][]domain.ScoredChunk, 0, len(documentIDs))
	for _, documentID := range documentIDs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var hits []domain.ScoredChunk
		for _, chunk := range chunksByDocument[documentID] {
			if len(chunk.Embedding) != len(queryVector) {
				continue
			}
			similarity := cosineSimilarity(queryVector, chunk.Embedding)
			if similarity <= minSimilarity {
				continue
			}
			hits = append(hits, domain.ScoredChunk{Chunk: chunk, EmbeddingScore: similarity})
		}
		if len(hits) == 0 {
			continue
		}
		sortByScore(hits, embeddingScoreOf)
		groups = append(groups, hits)
	}
	if len(groups) == 0 {
		return nil, nil
	}

	perDocument := (limit + len(groups) - 1) / len(groups)
	if perDocument < 1 {
		perDocument = 1
	}
	out := make([]domain.ScoredChunk, 0, limit)
	for _, hits := range groups {
		out = append(out, trimScored(hits, perDocument)...)
	}
	sortByScore(out, embeddingScoreOf)
	out = trimScored(out, limit)
	rankByEmbedding(out)
	return out, nil
}

func rankByEmbedding(chunks []domain.ScoredChunk) {
	for i := range chunks {
		chunks[i].EmbeddingRank = i + 1
	}
}

// cosineSimilarity returns 0 when either vector has zero norm.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		x := float64(a[i])
		y := float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
