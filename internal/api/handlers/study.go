package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pagetutor/pagetutor/internal/api"
	"github.com/pagetutor/pagetutor/internal/domain"
	"github.com/pagetutor/pagetutor/internal/service"
)

type StudyService interface {
	Notes(ctx context.Context, documentID string) ([]*domain.Artifact, error)
	Quiz(ctx context.Context, input service.QuizInput) ([]*domain.Artifact, error)
	ListArtifacts(ctx context.Context, documentID string, kind domain.ArtifactKind) ([]*domain.Artifact, error)
}

type StudyHandler struct {
	svc StudyService
}

func NewStudyHandler(svc StudyService) *StudyHandler {
	return &StudyHandler{svc: svc}
}

type ArtifactResponse struct {
	ID             string            `json:"id"`
	DocumentID     string            `json:"document_id"`
	Kind           string            `json:"kind"`
	Payload        json.RawMessage   `json:"payload"`
	Citations      []domain.Citation `json:"citations"`
	SourceChunkIDs []string          `json:"source_chunk_ids"`
	CreatedAt      string            `json:"created_at"`
}

func artifactToResponse(a *domain.Artifact) *ArtifactResponse {
	citations := a.Citations
	if citations == nil {
		citations = []domain.Citation{}
	}
	return &ArtifactResponse{
		ID:             a.ID,
		DocumentID:     a.DocumentID,
		Kind:           string(a.Kind),
		Payload:        a.Payload,
		Citations:      citations,
		SourceChunkIDs: a.SourceChunkIDs,
		CreatedAt:      a.CreatedAt.Format("2006-01-02T15:04:05Z"),
	}
}

func artifactsToResponse(artifacts []*domain.Artifact) []*ArtifactResponse {
	responses := make([]*ArtifactResponse, len(artifacts))
	for i, a := range artifacts {
		responses[i] = artifactToResponse(a)
	}
	return responses
}

type ArtifactListResponse struct {
	Items []*ArtifactResponse `json:"items"`
}

func (h *StudyHandler) Notes(w http.ResponseWriter, r *http.Request) {
	documentID := chi.URLParam(r, "id")
	if documentID == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	artifacts, err := h.svc.Notes(r.Context(), documentID)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusCreated, ArtifactListResponse{Items: artifactsToResponse(artifacts)})
}

type QuizRequest struct {
	Segment int `json:"segment"`
	Count   int `json:"count"`
}

func (h *StudyHandler) Quiz(w http.ResponseWriter, r *http.Request) {
	documentID := chi.URLParam(r, "id")
	if documentID == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	var req QuizRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	artifacts, err := h.svc.Quiz(r.Context(), service.QuizInput{
		DocumentID: documentID,
		Segment:    req.Segment,
		Count:      req.Count,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusCreated, ArtifactListResponse{Items: artifactsToResponse(artifacts)})
}

func (h *StudyHandler) Artifacts(w http.ResponseWriter, r *http.Request) {
	documentID := chi.URLParam(r, "id")
	if documentID == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	kind := domain.ArtifactKind(r.URL.Query().Get("kind"))
	if kind != "" {
		switch kind {
		case domain.ArtifactKindNote, domain.ArtifactKindQuizMCQ, domain.ArtifactKindQuizShort:
		default:
			api.Error(w, http.StatusBadRequest, "invalid artifact kind")
			return
		}
	}

	artifacts, err := h.svc.ListArtifacts(r.Context(), documentID, kind)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, ArtifactListResponse{Items: artifactsToResponse(artifacts)})
}
