package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pagetutor/pagetutor/internal/domain"
	"github.com/pagetutor/pagetutor/internal/pagination"
	"github.com/pagetutor/pagetutor/internal/service"
)

// ConversationRepository handles persistence of a document's append-only
// conversation turns.
type ConversationRepository struct {
	db dbtx
}

func NewConversationRepository(pool *pgxpool.Pool) *ConversationRepository {
	return &ConversationRepository{db: pool}
}

func NewConversationRepositoryWithTx(tx pgx.Tx) *ConversationRepository {
	return &ConversationRepository{db: tx}
}

// Append locks the document row, assigns the next sequence number, and
// inserts the turn. The row lock serializes concurrent appends per document,
// so sequence numbers are gapless and strictly increasing in commit order.
// Must run inside a transaction for the lock to mean anything.
func (r *ConversationRepository) Append(ctx context.Context, turn *domain.ConversationTurn) error {
	var docID string
	err := r.db.QueryRow(ctx,
		`SELECT id FROM documents WHERE id = $1 FOR UPDATE`,
		turn.DocumentID,
	).Scan(&docID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrDocumentNotFound
		}
		return err
	}

	var maxSeq int64
	err = r.db.QueryRow(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM conversation_turns WHERE document_id = $1`,
		turn.DocumentID,
	).Scan(&maxSeq)
	if err != nil {
		return err
	}
	turn.Seq = maxSeq + 1

	if err := domain.ValidateConversationTurn(turn); err != nil {
		return err
	}

	citations, err := marshalCitations(turn.Citations)
	if err != nil {
		return err
	}

	_, err = r.db.Exec(ctx,
		`INSERT INTO conversation_turns (id, document_id, seq, role, content, citations, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		turn.ID, turn.DocumentID, turn.Seq, turn.Role, turn.Content, citations, turn.CreatedAt,
	)
	return err
}

// ListByDocument returns turns with seq > afterSeq in ascending order.
func (r *ConversationRepository) ListByDocument(ctx context.Context, documentID string, afterSeq int64, limit int) (*service.TurnPageResult, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.Query(ctx,
		`SELECT id, document_id, seq, role, content, citations, created_at
		 FROM conversation_turns
		 WHERE document_id = $1 AND seq > $2
		 ORDER BY seq ASC
		 LIMIT $3`,
		documentID, afterSeq, limit+1,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*domain.ConversationTurn
	for rows.Next() {
		var t domain.ConversationTurn
		var citations []byte
		if err := rows.Scan(&t.ID, &t.DocumentID, &t.Seq, &t.Role, &t.Content, &citations, &t.CreatedAt); err != nil {
			return nil, err
		}
		if t.Citations, err = unmarshalCitations(citations); err != nil {
			return nil, err
		}
		items = append(items, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	hasMore := len(items) > limit
	if hasMore {
		items = items[:limit]
	}

	var nextCursor string
	if hasMore && len(items) > 0 {
		nextCursor = pagination.EncodeSeqCursor(items[len(items)-1].Seq)
	}

	return &service.TurnPageResult{
		Items:      items,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}, nil
}

func marshalCitations(citations []domain.Citation) ([]byte, error) {
	if citations == nil {
		citations = []domain.Citation{}
	}
	data, err := json.Marshal(citations)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal citations: %w", err)
	}
	return data, nil
}

func unmarshalCitations(data []byte) ([]domain.Citation, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var citations []domain.Citation
	if err := json.Unmarshal(data, &citations); err != nil {
		return nil, fmt.Errorf("failed to unmarshal citations: %w", err)
	}
	if len(citations) == 0 {
		return nil, nil
	}
	return citations, nil
}
