package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/pagetutor/pagetutor/internal/api"
	"github.com/pagetutor/pagetutor/internal/domain"
)

type RetrieverService interface {
	Retrieve(ctx context.Context, documentID, query string, k int) ([]*domain.RetrievalResult, error)
}

type RetrievalHandler struct {
	svc RetrieverService
}

func NewRetrievalHandler(svc RetrieverService) *RetrievalHandler {
	return &RetrievalHandler{svc: svc}
}

type SearchRequest struct {
	Query string `json:"query"`
	K     int    `json:"k"`
}

type RetrievalResultResponse struct {
	ChunkID  string          `json:"chunk_id"`
	SeqIndex int             `json:"seq_index"`
	Text     string          `json:"text"`
	Score    float32         `json:"score"`
	Citation domain.Citation `json:"citation"`
}

type SearchResponse struct {
	Results []*RetrievalResultResponse `json:"results"`
}

func (h *RetrievalHandler) Search(w http.ResponseWriter, r *http.Request) {
	documentID := chi.URLParam(r, "id")
	if documentID == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if strings.TrimSpace(req.Query) == "" {
		api.Error(w, http.StatusBadRequest, "query is required")
		return
	}

	results, err := h.svc.Retrieve(r.Context(), documentID, req.Query, req.K)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	responses := make([]*RetrievalResultResponse, len(results))
	for i, res := range results {
		responses[i] = &RetrievalResultResponse{
			ChunkID:  res.ChunkID,
			SeqIndex: res.SeqIndex,
			Text:     res.Text,
			Score:    res.Score,
			Citation: res.Citation,
		}
	}

	api.Success(w, http.StatusOK, SearchResponse{Results: responses})
}
