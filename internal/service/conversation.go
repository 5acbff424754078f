package service

import (
	"context"

	"github.com/pagetutor/pagetutor/internal/domain"
	"github.com/pagetutor/pagetutor/internal/pagination"
	"github.com/pagetutor/pagetutor/internal/telemetry"
)

// ConversationRepositoryInterface defines the repository interface for conversation persistence
type ConversationRepositoryInterface interface {
	// Append assigns the next sequence number and inserts the turn.
	// Appends to the same document are serialized by the repository.
	Append(ctx context.Context, turn *domain.ConversationTurn) error
	ListByDocument(ctx context.Context, documentID string, afterSeq int64, limit int) (*TurnPageResult, error)
}

type TurnPageResult struct {
	Items      []*domain.ConversationTurn
	NextCursor string
	HasMore    bool
}

// ConversationService reads a document's append-only conversation history
type ConversationService struct {
	docRepo  DocumentRepositoryInterface
	turnRepo ConversationRepositoryInterface
}

// NewConversationService creates a new ConversationService instance
func NewConversationService(
	docRepo DocumentRepositoryInterface,
	turnRepo ConversationRepositoryInterface,
) *ConversationService {
	return &ConversationService{
		docRepo:  docRepo,
		turnRepo: turnRepo,
	}
}

type HistoryInput struct {
	DocumentID string
	Cursor     string
	Limit      int
}

type HistoryOutput struct {
	Items   []*domain.ConversationTurn
	Cursor  string
	HasMore bool
}

// History returns the document's conversation turns in ascending sequence
// order, paginated by a sequence cursor.
func (s *ConversationService) History(ctx context.Context, input HistoryInput) (*HistoryOutput, error) {
	ctx, span := telemetry.StartSpan(ctx, "ConversationService.History", telemetry.SpanAttributes{
		DocumentID: input.DocumentID,
		Operation:  "history",
	})
	defer span.End()

	if _, err := s.docRepo.GetByID(ctx, input.DocumentID); err != nil {
		return nil, err
	}

	afterSeq, err := pagination.DecodeSeqCursor(input.Cursor)
	if err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid cursor", err)
	}

	page, err := s.turnRepo.ListByDocument(ctx, input.DocumentID, afterSeq, input.Limit)
	if err != nil {
		return nil, err
	}

	return &HistoryOutput{
		Items:   page.Items,
		Cursor:  page.NextCursor,
		HasMore: page.HasMore,
	}, nil
}
