// ABOUTME: Browser-only handlers for embedding index status and batch re-embedding

package api

import (
	"net/http"

	"github.com/labki-org/mwassistant-gateway/internal/auth"
	"github.com/labki-org/mwassistant-gateway/internal/wiki"
)

// BatchRequest is the body of POST /api/embeddings/batch.
type BatchRequest struct {
	Namespace int `json:"namespace"`
}

func (s *Server) handleEmbeddingStats(w http.ResponseWriter, r *http.Request) {
	who := auth.MustFromContext(r.Context()).Identity
	stats, namespaces, err := s.embeddings.Status(r.Context(), who)
	if err != nil {
		s.sendBackendError(w, "embedding stats", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total_vectors":   stats.TotalVectors,
		"page_timestamps": stats.PageTimestamps,
		"namespaces":      namespaces,
	})
}

func (s *Server) handleEmbeddingBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if _, known := s.names[req.Namespace]; !known || req.Namespace < 0 {
		sendJSONError(w, http.StatusBadRequest, "unknown namespace")
		return
	}
	if req.Namespace == wiki.NSUser || (wiki.Title{Namespace: req.Namespace}).IsTalk() {
		sendJSONError(w, http.StatusBadRequest, "namespace is not embedded")
		return
	}

	who := auth.MustFromContext(r.Context()).Identity
	res, err := s.embeddings.BatchUpdate(r.Context(), who, req.Namespace)
	if err != nil {
		s.sendBackendError(w, "batch embedding", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
