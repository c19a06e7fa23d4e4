package httpadapter

import (
	"net/http"
	"strconv"
	"time"

	"github.com/kirillkom/docqa/internal/core/domain"
)

const maxQueryBodyBytes = 1 << 20

func (rt *Router) queryRAG(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req domain.QueryRequest
	if err := decodeJSON(w, r, maxQueryBodyBytes, &req); err != nil {
		writeDecodeError(w, r, err)
		return
	}

	answer, err := rt.query.Answer(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rt.recordQuery("query", string(answer.Stage), len(answer.Sources), start)
	writeJSON(w, http.StatusOK, answer)
}

func (rt *Router) retrieveRAG(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req domain.QueryRequest
	if err := decodeJSON(w, r, maxQueryBodyBytes, &req); err != nil {
		writeDecodeError(w, r, err)
		return
	}

	result, err := rt.query.Retrieve(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rt.recordQuery("retrieve", string(result.Stage), len(result.Passages), start)
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) resetConversation(w http.ResponseWriter, r *http.Request) {
	if err := rt.query.ResetConversation(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) getCitation(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.Atoi(r.PathValue("n"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "citation number must be an integer"})
		return
	}
	passage, err := rt.query.Citation(r.Context(), r.PathValue("id"), n)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, passage)
}
