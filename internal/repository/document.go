package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pagetutor/pagetutor/internal/domain"
	"github.com/pagetutor/pagetutor/internal/pagination"
	"github.com/pagetutor/pagetutor/internal/service"
)

type DocumentRepository struct {
	db dbtx
}

func NewDocumentRepository(pool *pgxpool.Pool) *DocumentRepository {
	return &DocumentRepository{db: pool}
}

func NewDocumentRepositoryWithTx(tx pgx.Tx) *DocumentRepository {
	return &DocumentRepository{db: tx}
}

const documentColumns = `id, filename, byte_size, page_count, raw_text, page_offsets, status, failure, embedding_model, indexed_at, storage_key, created_at, updated_at`

func (r *DocumentRepository) Create(ctx context.Context, d *domain.Document) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO documents (id, filename, byte_size, page_count, raw_text, page_offsets, status, failure, embedding_model, storage_key, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		d.ID, d.Filename, d.ByteSize, d.PageCount, d.RawText, pageOffsetsToInt32(d.PageOffsets),
		d.Status, d.Failure, d.EmbeddingModel, nullableString(d.StorageKey), d.CreatedAt, d.UpdatedAt,
	)
	return err
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = $1`,
		id,
	)
	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrDocumentNotFound
		}
		return nil, err
	}
	return doc, nil
}

func (r *DocumentRepository) ListWithCursor(ctx context.Context, cursor *pagination.Cursor, limit int) (*service.DocumentPageResult, error) {
	if limit <= 0 {
		limit = 20
	}

	var rows pgx.Rows
	var err error
	if cursor != nil {
		rows, err = r.db.Query(ctx,
			`SELECT `+documentColumns+`
			 FROM documents
			 WHERE (created_at, id) < ($1, $2)
			 ORDER BY created_at DESC, id DESC
			 LIMIT $3`,
			cursor.Timestamp, cursor.LastID, limit+1,
		)
	} else {
		rows, err = r.db.Query(ctx,
			`SELECT `+documentColumns+`
			 FROM documents
			 ORDER BY created_at DESC, id DESC
			 LIMIT $1`,
			limit+1,
		)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items, err := scanDocumentRows(rows)
	if err != nil {
		return nil, err
	}

	hasMore := len(items) > limit
	if hasMore {
		items = items[:limit]
	}

	var nextCursor string
	if hasMore && len(items) > 0 {
		last := items[len(items)-1]
		nextCursor = pagination.EncodeCursor(last.ID, last.CreatedAt)
	}

	return &service.DocumentPageResult{
		Items:      items,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}, nil
}

// Delete removes the document row; chunks, conversation turns, artifacts,
// and index jobs go with it via FK cascades.
func (r *DocumentRepository) Delete(ctx context.Context, id string) error {
	cmdTag, err := r.db.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrDocumentNotFound
	}
	return nil
}

// ClaimExtraction transitions uploaded -> extracting. The conditional UPDATE
// is the claim: only one caller wins, everyone else sees the current status.
func (r *DocumentRepository) ClaimExtraction(ctx context.Context, id string, updatedAt time.Time) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE documents SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`,
		domain.DocumentStatusExtracting, updatedAt, id, domain.DocumentStatusUploaded,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() > 0 {
		return nil
	}

	var status domain.DocumentStatus
	err = r.db.QueryRow(ctx, `SELECT status FROM documents WHERE id = $1`, id).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrDocumentNotFound
		}
		return err
	}
	if status == domain.DocumentStatusExtracting {
		return domain.ErrExtractionInProgress
	}
	return domain.NewDomainError(domain.ErrCodeInvalidOperation, "document is not awaiting extraction")
}

func (r *DocumentRepository) CommitExtraction(ctx context.Context, id string, rawText string, pageOffsets []int, pageCount int, updatedAt time.Time) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE documents
		 SET raw_text = $1, page_offsets = $2, page_count = $3, status = $4, failure = '', updated_at = $5
		 WHERE id = $6 AND status = $7`,
		rawText, pageOffsetsToInt32(pageOffsets), pageCount, domain.DocumentStatusExtracted, updatedAt,
		id, domain.DocumentStatusExtracting,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.NewDomainError(domain.ErrCodeInvalidOperation, "document is not being extracted")
	}
	return nil
}

func (r *DocumentRepository) FailExtraction(ctx context.Context, id string, reason string, updatedAt time.Time) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE documents SET status = $1, failure = $2, updated_at = $3 WHERE id = $4`,
		domain.DocumentStatusFailed, reason, updatedAt, id,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrDocumentNotFound
	}
	return nil
}

// PublishIndex marks the chunk index queryable. Called in the same
// transaction that inserts the chunk rows.
func (r *DocumentRepository) PublishIndex(ctx context.Context, id string, embeddingModel string, indexedAt time.Time) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE documents SET embedding_model = $1, indexed_at = $2, updated_at = $2 WHERE id = $3`,
		embeddingModel, indexedAt, id,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrDocumentNotFound
	}
	return nil
}

func scanDocument(row pgx.Row) (*domain.Document, error) {
	var d domain.Document
	var pageOffsets []int32
	var storageKey pgtype.Text
	err := row.Scan(
		&d.ID, &d.Filename, &d.ByteSize, &d.PageCount, &d.RawText, &pageOffsets,
		&d.Status, &d.Failure, &d.EmbeddingModel, &d.IndexedAt, &storageKey, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	d.PageOffsets = pageOffsetsToInt(pageOffsets)
	if storageKey.Valid {
		d.StorageKey = storageKey.String
	}
	return &d, nil
}

func scanDocumentRows(rows pgx.Rows) ([]*domain.Document, error) {
	var results []*domain.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, doc)
	}
	return results, rows.Err()
}

func pageOffsetsToInt32(offsets []int) []int32 {
	if offsets == nil {
		return []int32{}
	}
	out := make([]int32, len(offsets))
	for i, o := range offsets {
		out[i] = int32(o)
	}
	return out
}

func pageOffsetsToInt(offsets []int32) []int {
	if len(offsets) == 0 {
		return nil
	}
	out := make([]int, len(offsets))
	for i, o := range offsets {
		out[i] = int(o)
	}
	return out
}
