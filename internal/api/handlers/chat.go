package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pagetutor/pagetutor/internal/api"
	"github.com/pagetutor/pagetutor/internal/domain"
	"github.com/pagetutor/pagetutor/internal/service"
)

type GenerationAnswerService interface {
	Answer(ctx context.Context, input service.AnswerInput) (*domain.ConversationTurn, error)
}

type ConversationService interface {
	History(ctx context.Context, input service.HistoryInput) (*service.HistoryOutput, error)
}

type ChatHandler struct {
	generation   GenerationAnswerService
	conversation ConversationService
}

func NewChatHandler(generation GenerationAnswerService, conversation ConversationService) *ChatHandler {
	return &ChatHandler{
		generation:   generation,
		conversation: conversation,
	}
}

type AskRequest struct {
	Question  string `json:"question"`
	K         int    `json:"k"`
	TimeoutMS int    `json:"timeout_ms"`
}

type TurnResponse struct {
	ID         string            `json:"id"`
	DocumentID string            `json:"document_id"`
	Seq        int64             `json:"seq"`
	Role       string            `json:"role"`
	Content    string            `json:"content"`
	Citations  []domain.Citation `json:"citations"`
	CreatedAt  string            `json:"created_at"`
}

func turnToResponse(t *domain.ConversationTurn) *TurnResponse {
	citations := t.Citations
	if citations == nil {
		citations = []domain.Citation{}
	}
	return &TurnResponse{
		ID:         t.ID,
		DocumentID: t.DocumentID,
		Seq:        t.Seq,
		Role:       string(t.Role),
		Content:    t.Content,
		Citations:  citations,
		CreatedAt:  t.CreatedAt.Format("2006-01-02T15:04:05Z"),
	}
}

func (h *ChatHandler) Ask(w http.ResponseWriter, r *http.Request) {
	documentID := chi.URLParam(r, "id")
	if documentID == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	var req AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Question == "" {
		api.Error(w, http.StatusBadRequest, "question is required")
		return
	}

	turn, err := h.generation.Answer(r.Context(), service.AnswerInput{
		DocumentID: documentID,
		Question:   req.Question,
		K:          req.K,
		Timeout:    time.Duration(req.TimeoutMS) * time.Millisecond,
	})
	if err != nil {
		// The insufficient-context turn is recorded in history; surface the
		// signal together with it.
		if errors.Is(err, domain.ErrNoRelevantContext) && turn != nil {
			api.JSON(w, http.StatusUnprocessableEntity, struct {
				Data  *TurnResponse `json:"data"`
				Error string        `json:"error"`
				Code  string        `json:"code"`
			}{
				Data:  turnToResponse(turn),
				Error: err.Error(),
				Code:  domain.ErrCodeNoRelevantContext,
			})
			return
		}
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, turnToResponse(turn))
}

type HistoryResponse struct {
	Items   []*TurnResponse `json:"items"`
	Cursor  string          `json:"cursor,omitempty"`
	HasMore bool            `json:"has_more"`
}

func (h *ChatHandler) History(w http.ResponseWriter, r *http.Request) {
	documentID := chi.URLParam(r, "id")
	if documentID == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	cursor := r.URL.Query().Get("cursor")
	limitStr := r.URL.Query().Get("limit")
	limit := 50
	if limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	output, err := h.conversation.History(r.Context(), service.HistoryInput{
		DocumentID: documentID,
		Cursor:     cursor,
		Limit:      limit,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	responses := make([]*TurnResponse, len(output.Items))
	for i, t := range output.Items {
		responses[i] = turnToResponse(t)
	}

	api.Success(w, http.StatusOK, HistoryResponse{
		Items:   responses,
		Cursor:  output.Cursor,
		HasMore: output.HasMore,
	})
}
