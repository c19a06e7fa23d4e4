package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/docqa/internal/core/domain"
	"github.com/kirillkom/docqa/internal/core/ports"
)

const (
	defaultCandidateLimit  = 10
	contextSimilarityFloor = 0.7
	contextRelevanceBoost  = 0.15
	vectorIndexOversample  = 4
	snapshotLoadParallel   = 4
)

type RetrievalOptions struct {
	// CandidateLimit bounds each search leg before fusion.
	CandidateLimit int
	// MinSimilarity is the cosine floor a chunk must exceed to be a vector candidate.
	MinSimilarity float64
}

// RetrievalUseCase runs the staged hybrid retrieval: context-aware search,
// standard search, then term expansion.
type RetrievalUseCase struct {
	docs      ports.DocumentRepository
	chunks    ports.ChunkRepository
	embedder  ports.Embedder
	suggester ports.TermSuggester
	index     ports.VectorIndex
	observer  ports.RetrievalObserver
	opts      RetrievalOptions
}

func NewRetrievalUseCase(
	docs ports.DocumentRepository,
	chunks ports.ChunkRepository,
	embedder ports.Embedder,
	suggester ports.TermSuggester,
	opts RetrievalOptions,
) *RetrievalUseCase {
	if opts.CandidateLimit <= 0 {
		opts.CandidateLimit = defaultCandidateLimit
	}
	return &RetrievalUseCase{
		docs:      docs,
		chunks:    chunks,
		embedder:  embedder,
		suggester: suggester,
		observer:  noopObserver{},
		opts:      opts,
	}
}

// WithVectorIndex enables an approximate candidate pre-filter for the vector leg.
func (uc *RetrievalUseCase) WithVectorIndex(index ports.VectorIndex) *RetrievalUseCase {
	uc.index = index
	return uc
}

func (uc *RetrievalUseCase) WithObserver(observer ports.RetrievalObserver) *RetrievalUseCase {
	if observer == nil {
		observer = noopObserver{}
	}
	uc.observer = observer
	return uc
}

// snapshot is the immutable chunk set one retrieval runs against.
type snapshot struct {
	documentIDs []string
	chunks      map[string][]domain.Chunk
}

func (s snapshot) empty() bool {
	for _, chunks := range s.chunks {
		if len(chunks) > 0 {
			return false
		}
	}
	return true
}

// Retrieve returns ranked passages for the question and the context to carry
// into the next turn. On error or when nothing relevant is found the prior
// context is returned unchanged.
func (uc *RetrievalUseCase) Retrieve(
	ctx context.Context,
	req domain.RetrievalRequest,
	prior domain.QueryContext,
) (*domain.RetrievalResult, domain.QueryContext, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, prior, domain.WrapError(domain.ErrInvalidInput, "retrieve", errors.New("question is required"))
	}

	snap, err := uc.loadSnapshot(ctx, req.DocumentIDs)
	if err != nil {
		return nil, prior, err
	}
	if snap.empty() {
		return exhaustedResult(), prior, nil
	}

	queryVector, err := uc.embedQuery(ctx, question)
	if err != nil {
		return nil, prior, err
	}
	terms := ExtractTerms(question)

	if uc.isContextual(prior, queryVector) {
		passages, err := uc.runStage(ctx, domain.StageContextual, snap, question, queryVector, prior, true)
		if err != nil {
			return nil, prior, err
		}
		if len(passages) > 0 {
			return successResult(domain.StageContextual, passages, false), nextContext(queryVector, terms, passages), nil
		}
	}

	passages, err := uc.runStage(ctx, domain.StageStandard, snap, question, queryVector, prior, false)
	if err != nil {
		return nil, prior, err
	}
	if len(passages) > 0 {
		return successResult(domain.StageStandard, passages, false), nextContext(queryVector, terms, passages), nil
	}

	suggested, err := uc.suggestTerms(ctx, question, terms, req.History)
	if err != nil {
		return nil, prior, err
	}
	if len(suggested) == 0 {
		return exhaustedResult(), prior, nil
	}

	expanded := question + " " + strings.Join(suggested, " ")
	expandedVector, err := uc.embedQuery(ctx, expanded)
	if err != nil {
		return nil, prior, err
	}
	passages, err = uc.runStage(ctx, domain.StageTermExpansion, snap, expanded, expandedVector, prior, false)
	if err != nil {
		return nil, prior, err
	}
	if len(passages) == 0 {
		return exhaustedResult(), prior, nil
	}
	return successResult(domain.StageTermExpansion, passages, true), nextContext(queryVector, terms, passages), nil
}

func (uc *RetrievalUseCase) isContextual(prior domain.QueryContext, queryVector []float32) bool {
	if len(prior.PreviousEmbedding) == 0 || len(prior.RelevantDocuments) == 0 {
		return false
	}
	return cosineSimilarity(prior.PreviousEmbedding, queryVector) > contextSimilarityFloor
}

// runStage executes both search legs concurrently and fuses them. One failed
// leg degrades the stage to single-signal ranking; two failed legs fail it.
func (uc *RetrievalUseCase) runStage(
	ctx context.Context,
	stage domain.RetrievalStage,
	snap snapshot,
	query string,
	queryVector []float32,
	prior domain.QueryContext,
	contextual bool,
) ([]domain.ScoredChunk, error) {
	started := time.Now()
	uc.observer.StageStarted(ctx, stage)

	var (
		embeddingHits, termHits []domain.ScoredChunk
		embeddingErr, termErr   error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		embeddingHits, embeddingErr = uc.searchVectors(gctx, snap, queryVector)
		return nil
	})
	g.Go(func() error {
		termHits, termErr = searchTerms(gctx, query, snap.chunks, snap.documentIDs, uc.opts.CandidateLimit)
		return nil
	})
	_ = g.Wait()

	if embeddingErr != nil && termErr != nil {
		uc.observer.StageFinished(ctx, stage, 0)
		return nil, fmt.Errorf("retrieve %s: %w", stage, errors.Join(embeddingErr, termErr))
	}
	if embeddingErr != nil {
		slog.Warn("retrieval_leg_failed", "stage", string(stage), "leg", "vector", "error", embeddingErr.Error())
	}
	if termErr != nil {
		slog.Warn("retrieval_leg_failed", "stage", string(stage), "leg", "lexical", "error", termErr.Error())
	}

	if contextual {
		embeddingHits = boostForContext(embeddingHits, prior)
	}
	passages := reduceLargeResultSet(mergeResults(embeddingHits, termHits, contextual, prior))

	uc.observer.StageFinished(ctx, stage, len(passages))
	slog.Info("retrieval_stage",
		"stage", string(stage),
		"vector_hits", len(embeddingHits),
		"lexical_hits", len(termHits),
		"passages", len(passages),
		"duration_ms", time.Since(started).Milliseconds(),
	)
	return passages, nil
}

func (uc *RetrievalUseCase) searchVectors(ctx context.Context, snap snapshot, queryVector []float32) ([]domain.ScoredChunk, error) {
	candidates := snap.chunks
	if uc.index != nil {
		found, err := uc.index.SearchChunks(ctx, queryVector, uc.opts.CandidateLimit*vectorIndexOversample, snap.documentIDs)
		if err != nil {
			return nil, fmt.Errorf("search vector index: %w", err)
		}
		candidates = groupByDocument(found)
		// A global top-K can miss whole documents; those are scored from the
		// snapshot so every scoped document stays eligible.
		for _, documentID := range snap.documentIDs {
			if len(candidates[documentID]) == 0 {
				candidates[documentID] = snap.chunks[documentID]
			}
		}
	}
	return findSimilar(ctx, queryVector, candidates, snap.documentIDs, uc.opts.CandidateLimit, uc.opts.MinSimilarity)
}

// boostForContext lifts vector hits from previously relevant documents by
// their prior relevance and marks them so fusion adds the context boost.
func boostForContext(hits []domain.ScoredChunk, prior domain.QueryContext) []domain.ScoredChunk {
	if len(hits) == 0 {
		return hits
	}
	boosted := make([]domain.ScoredChunk, len(hits))
	copy(boosted, hits)
	for i := range boosted {
		relevance := prior.Relevance(boosted[i].DocumentID)
		if relevance <= 0 {
			continue
		}
		boosted[i].EmbeddingScore += contextRelevanceBoost * relevance
		boosted[i].BoostedForContext = true
	}
	sortByScore(boosted, embeddingScoreOf)
	rankByEmbedding(boosted)
	return boosted
}

func (uc *RetrievalUseCase) loadSnapshot(ctx context.Context, requested []string) (snapshot, error) {
	documentIDs, err := uc.resolveScope(ctx, requested)
	if err != nil {
		return snapshot{}, err
	}

	loaded := make([][]domain.Chunk, len(documentIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(snapshotLoadParallel)
	for i, documentID := range documentIDs {
		g.Go(func() error {
			chunks, err := uc.chunks.GetAllChunks(gctx, documentID)
			if err != nil {
				return fmt.Errorf("load chunks for %s: %w", documentID, err)
			}
			loaded[i] = chunks
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return snapshot{}, err
	}

	snap := snapshot{documentIDs: documentIDs, chunks: make(map[string][]domain.Chunk, len(documentIDs))}
	for i, documentID := range documentIDs {
		snap.chunks[documentID] = loaded[i]
	}
	return snap, nil
}

// resolveScope returns sorted unique document ids. An empty request means
// every ready document.
func (uc *RetrievalUseCase) resolveScope(ctx context.Context, requested []string) ([]string, error) {
	if len(requested) == 0 {
		docs, err := uc.docs.List(ctx)
		if err != nil {
			return nil, fmt.Errorf("list documents: %w", err)
		}
		ids := make([]string, 0, len(docs))
		for _, doc := range docs {
			if doc.Status == domain.StatusReady {
				ids = append(ids, doc.ID)
			}
		}
		sort.Strings(ids)
		return ids, nil
	}

	ids := normalizeScope(requested)
	for _, id := range ids {
		if _, err := uc.docs.GetByID(ctx, id); err != nil {
			return nil, fmt.Errorf("resolve document %s: %w", id, err)
		}
	}
	return ids, nil
}

func (uc *RetrievalUseCase) embedQuery(ctx context.Context, text string) ([]float32, error) {
	vector, err := uc.embedder.EmbedQuery(ctx, text)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("embed query: %w", err)
		}
		return nil, domain.WrapError(domain.ErrCollaboratorUnavailable, "embed query", err)
	}
	if len(vector) == 0 {
		return nil, domain.WrapError(domain.ErrCollaboratorUnavailable, "embed query", errors.New("empty embedding"))
	}
	return vector, nil
}

func (uc *RetrievalUseCase) suggestTerms(
	ctx context.Context,
	question string,
	terms []string,
	history []domain.ConversationMessage,
) ([]string, error) {
	if uc.suggester == nil {
		return nil, nil
	}
	suggested, err := uc.suggester.SuggestTerms(ctx, question, terms, history)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("suggest terms: %w", err)
		}
		return nil, domain.WrapError(domain.ErrCollaboratorUnavailable, "suggest terms", err)
	}
	out := make([]string, 0, len(suggested))
	for _, term := range suggested {
		if term = strings.TrimSpace(term); term != "" {
			out = append(out, term)
		}
	}
	return out, nil
}

// nextContext records the turn for the next question: its embedding, the
// share of passages per document and its extracted terms.
func nextContext(queryVector []float32, terms []string, passages []domain.ScoredChunk) domain.QueryContext {
	counts := make(map[string]int)
	for _, passage := range passages {
		counts[passage.DocumentID]++
	}
	relevant := make([]domain.DocumentRelevance, 0, len(counts))
	for documentID, count := range counts {
		relevant = append(relevant, domain.DocumentRelevance{
			DocumentID:     documentID,
			RelevanceScore: float64(count) / float64(len(passages)),
		})
	}
	sort.Slice(relevant, func(i, j int) bool {
		if relevant[i].RelevanceScore != relevant[j].RelevanceScore {
			return relevant[i].RelevanceScore > relevant[j].RelevanceScore
		}
		return relevant[i].DocumentID < relevant[j].DocumentID
	})

	embedding := make([]float32, len(queryVector))
	copy(embedding, queryVector)
	return domain.QueryContext{
		PreviousEmbedding: embedding,
		RelevantDocuments: relevant,
		PreviousTerms:     append([]string(nil), terms...),
	}
}

func successResult(stage domain.RetrievalStage, passages []domain.ScoredChunk, usedFallback bool) *domain.RetrievalResult {
	return &domain.RetrievalResult{
		Passages:     passages,
		UsedFallback: usedFallback,
		Stage:        stage,
	}
}

func exhaustedResult() *domain.RetrievalResult {
	return &domain.RetrievalResult{
		Passages:          []domain.ScoredChunk{},
		NoRelevantContent: true,
		Stage:             domain.StageExhausted,
	}
}

func groupByDocument(chunks []domain.Chunk) map[string][]domain.Chunk {
	out := make(map[string][]domain.Chunk)
	for _, chunk := range chunks {
		out[chunk.DocumentID] = append(out[chunk.DocumentID], chunk)
	}
	return out
}

func normalizeScope(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

type noopObserver struct{}

func (noopObserver) StageStarted(context.Context, domain.RetrievalStage) {}

func (noopObserver) StageFinished(context.Context, domain.RetrievalStage, int) {}
