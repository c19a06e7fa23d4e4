package usecase

import (
	"fmt"
	"sort"

	"github.com/kirillkom/docqa/internal/core/domain"
)

// Fusion weights. Changing them changes ranking.
const (
	embeddingWeight     = 0.5
	termWeight          = 0.5
	termScoreScale      = 2.0
	bothMethodsBoost    = 0.15
	contextBoost        = 0.1
	maxFusedPassages    = 8
	largeResultSetSize  = 5
	maxChunksPerDocLeft = 3
)

// mergeResults fuses vector and lexical hits. Every represented document first
// gets its best chunk, then the remaining slots go to the best leftovers.
func mergeResults(embedding, term []domain.ScoredChunk, contextual bool, prior domain.QueryContext) []domain.ScoredChunk {
	unified := make(map[string]*domain.ScoredChunk, len(embedding)+len(term))
	for _, hit := range embedding {
		candidate := hit
		candidate.TermScore = 0
		candidate.TermRank = 0
		candidate.MatchedTerms = nil
		unified[retrievalChunkKey(hit.Chunk)] = &candidate
	}
	for _, hit := range term {
		key := retrievalChunkKey(hit.Chunk)
		if existing, ok := unified[key]; ok {
			existing.TermScore = hit.TermScore
			existing.TermRank = hit.TermRank
			existing.MatchedTerms = hit.MatchedTerms
			continue
		}
		candidate := hit
		candidate.EmbeddingScore = 0
		candidate.EmbeddingRank = 0
		candidate.BoostedForContext = false
		unified[key] = &candidate
	}
	if len(unified) == 0 {
		return nil
	}

	byDocument := make(map[string][]domain.ScoredChunk)
	for _, candidate := range unified {
		candidate.MergedScore = fusedScore(*candidate)
		byDocument[candidate.DocumentID] = append(byDocument[candidate.DocumentID], *candidate)
	}

	documents := make([]string, 0, len(byDocument))
	for documentID, hits := range byDocument {
		sortByScore(hits, mergedScoreOf)
		documents = append(documents, documentID)
	}
	sort.SliceStable(documents, func(i, j int) bool {
		a, b := documents[i], documents[j]
		if contextual {
			if ra, rb := prior.Relevance(a), prior.Relevance(b); ra != rb {
				return ra > rb
			}
		}
		if sa, sb := byDocument[a][0].MergedScore, byDocument[b][0].MergedScore; sa != sb {
			return sa > sb
		}
		return a < b
	})

	out := make([]domain.ScoredChunk, 0, maxFusedPassages)
	var leftovers []domain.ScoredChunk
	for _, documentID := range documents {
		hits := byDocument[documentID]
		if len(out) < maxFusedPassages {
			out = append(out, hits[0])
			leftovers = append(leftovers, hits[1:]...)
			continue
		}
		leftovers = append(leftovers, hits...)
	}
	sortByScore(leftovers, mergedScoreOf)
	for _, hit := range leftovers {
		if len(out) >= maxFusedPassages {
			break
		}
		out = append(out, hit)
	}

	sortByScore(out, mergedScoreOf)
	return out
}

func fusedScore(c domain.ScoredChunk) float64 {
	embeddingScore := c.EmbeddingScore
	if embeddingScore < 0 {
		embeddingScore = 0
	}
	score := embeddingScore*embeddingWeight + (c.TermScore/termScoreScale)*termWeight
	if c.FoundByEmbedding() && c.FoundByTerms() {
		score += bothMethodsBoost
	}
	if c.BoostedForContext {
		score += contextBoost
	}
	return score
}

// reduceLargeResultSet caps each document to three chunks and the whole set
// to eight. Input must be sorted by merged score.
func reduceLargeResultSet(chunks []domain.ScoredChunk) []domain.ScoredChunk {
	if len(chunks) <= largeResultSetSize {
		return chunks
	}
	perDocument := make(map[string]int)
	out := make([]domain.ScoredChunk, 0, len(chunks))
	for _, chunk := range chunks {
		if perDocument[chunk.DocumentID] >= maxChunksPerDocLeft {
			continue
		}
		perDocument[chunk.DocumentID]++
		out = append(out, chunk)
	}
	return trimScored(out, maxFusedPassages)
}

func embeddingScoreOf(c domain.ScoredChunk) float64 { return c.EmbeddingScore }

func termScoreOf(c domain.ScoredChunk) float64 { return c.TermScore }

func mergedScoreOf(c domain.ScoredChunk) float64 { return c.MergedScore }

// sortByScore orders descending by score with a total tie-break so identical
// inputs always rank identically.
func sortByScore(chunks []domain.ScoredChunk, score func(domain.ScoredChunk) float64) {
	sort.SliceStable(chunks, func(i, j int) bool {
		if si, sj := score(chunks[i]), score(chunks[j]); si != sj {
			return si > sj
		}
		if chunks[i].DocumentID != chunks[j].DocumentID {
			return chunks[i].DocumentID < chunks[j].DocumentID
		}
		if chunks[i].Index != chunks[j].Index {
			return chunks[i].Index < chunks[j].Index
		}
		return chunks[i].ID < chunks[j].ID
	})
}

func trimScored(chunks []domain.ScoredChunk, limit int) []domain.ScoredChunk {
	if limit <= 0 || len(chunks) <= limit {
		return chunks
	}
	return chunks[:limit]
}

func retrievalChunkKey(chunk domain.Chunk) string {
	if chunk.ID != "" {
		return chunk.ID
	}
	return fmt.Sprintf("%s:%d", chunk.DocumentID, chunk.Index)
}
