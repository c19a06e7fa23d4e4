package httpadapter

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/kirillkom/docqa/internal/config"
	"github.com/kirillkom/docqa/internal/core/ports"
)

const serviceName = "docqa-api"

// DocumentService is the document-facing surface the router needs.
type DocumentService interface {
	ports.DocumentReader
	ports.DocumentImporter
	ports.DocumentChunker
}

// Metrics is satisfied by observability/metrics.HTTPServerMetrics.
type Metrics interface {
	Handler() http.Handler
	Middleware(service string, next http.Handler) http.Handler
	RecordQuery(service, endpoint, stage string, passages int, duration time.Duration)
}

type Router struct {
	ingest  ports.DocumentIngestor
	query   ports.DocumentQueryService
	docs    DocumentService
	metrics Metrics

	maxUploadBytes      int64
	rateLimitRPS        float64
	rateLimitBurst      int
	maxInFlight         int
	backpressureTimeout time.Duration
}

func NewRouter(
	cfg config.Config,
	ingest ports.DocumentIngestor,
	query ports.DocumentQueryService,
	docs DocumentService,
) *Router {
	maxUploadBytes := cfg.MaxUploadBytes
	if maxUploadBytes <= 0 {
		maxUploadBytes = 50 << 20
	}
	return &Router{
		ingest:              ingest,
		query:               query,
		docs:                docs,
		maxUploadBytes:      maxUploadBytes,
		rateLimitRPS:        cfg.APIRateLimitRPS,
		rateLimitBurst:      cfg.APIRateLimitBurst,
		maxInFlight:         cfg.APIMaxInFlight,
		backpressureTimeout: time.Duration(cfg.APIBackpressureWaitMS) * time.Millisecond,
	}
}

func (rt *Router) WithMetrics(m Metrics) *Router {
	rt.metrics = m
	return rt
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
	}

	api := http.NewServeMux()
	api.HandleFunc("POST /v1/documents", rt.uploadDocument)
	api.HandleFunc("GET /v1/documents", rt.listDocuments)
	api.HandleFunc("POST /v1/documents/import", rt.importDocument)
	api.HandleFunc("GET /v1/documents/{id}", rt.getDocumentByID)
	api.HandleFunc("DELETE /v1/documents/{id}", rt.deleteDocument)
	api.HandleFunc("GET /v1/documents/{id}/export", rt.exportDocument)
	api.HandleFunc("POST /v1/chunk", rt.chunkText)
	api.HandleFunc("POST /v1/rag/query", rt.queryRAG)
	api.HandleFunc("POST /v1/rag/retrieve", rt.retrieveRAG)
	api.HandleFunc("DELETE /v1/conversations/{id}", rt.resetConversation)
	api.HandleFunc("GET /v1/conversations/{id}/citations/{n}", rt.getCitation)

	// Health and metrics stay reachable when the API is saturated.
	var guarded http.Handler = api
	guarded = backpressureMiddleware(guarded, rt.maxInFlight, rt.backpressureTimeout)
	guarded = rateLimitMiddleware(guarded, rt.rateLimitRPS, rt.rateLimitBurst)
	mux.Handle("/v1/", guarded)

	var handler http.Handler = mux
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) recordQuery(endpoint, stage string, passages int, start time.Time) {
	if rt.metrics != nil {
		rt.metrics.RecordQuery(serviceName, endpoint, stage, passages, time.Since(start))
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, limit int64, out any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, limit))
	decoder.DisallowUnknownFields()
	return decoder.Decode(out)
}
