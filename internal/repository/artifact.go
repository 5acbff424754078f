package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pagetutor/pagetutor/internal/domain"
)

// ArtifactRepository handles persistence of generated study artifacts.
// Artifacts are append-only: there is no update path.
type ArtifactRepository struct {
	db dbtx
}

func NewArtifactRepository(pool *pgxpool.Pool) *ArtifactRepository {
	return &ArtifactRepository{db: pool}
}

func NewArtifactRepositoryWithTx(tx pgx.Tx) *ArtifactRepository {
	return &ArtifactRepository{db: tx}
}

func (r *ArtifactRepository) Insert(ctx context.Context, a *domain.Artifact) error {
	citations, err := marshalCitations(a.Citations)
	if err != nil {
		return err
	}

	sourceChunkIDs, err := json.Marshal(a.SourceChunkIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal source chunk ids: %w", err)
	}

	_, err = r.db.Exec(ctx,
		`INSERT INTO artifacts (id, document_id, kind, payload, citations, source_chunk_ids, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		a.ID, a.DocumentID, a.Kind, []byte(a.Payload), citations, sourceChunkIDs, a.CreatedAt,
	)
	return err
}

// ListByDocument returns the document's artifacts newest first, optionally
// filtered by kind (empty kind returns all).
func (r *ArtifactRepository) ListByDocument(ctx context.Context, documentID string, kind domain.ArtifactKind) ([]*domain.Artifact, error) {
	query := `SELECT id, document_id, kind, payload, citations, source_chunk_ids, created_at
	          FROM artifacts
	          WHERE document_id = $1`
	args := []any{documentID}

	if kind != "" {
		query += ` AND kind = $2`
		args = append(args, kind)
	}

	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*domain.Artifact
	for rows.Next() {
		var a domain.Artifact
		var payload, citations, sourceChunkIDs []byte
		if err := rows.Scan(&a.ID, &a.DocumentID, &a.Kind, &payload, &citations, &sourceChunkIDs, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.Payload = json.RawMessage(payload)
		if a.Citations, err = unmarshalCitations(citations); err != nil {
			return nil, err
		}
		if len(sourceChunkIDs) > 0 {
			if err := json.Unmarshal(sourceChunkIDs, &a.SourceChunkIDs); err != nil {
				return nil, fmt.Errorf("failed to unmarshal source chunk ids: %w", err)
			}
		}
		results = append(results, &a)
	}
	return results, rows.Err()
}
