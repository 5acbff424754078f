package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/pagetutor/pagetutor/internal/domain"
)

// ChunkRepository handles persistence of document chunks and their
// embeddings.
type ChunkRepository struct {
	db dbtx
}

func NewChunkRepository(pool *pgxpool.Pool) *ChunkRepository {
	return &ChunkRepository{db: pool}
}

func NewChunkRepositoryWithTx(tx dbtx) *ChunkRepository {
	return &ChunkRepository{db: tx}
}

// ReplaceChunks deletes existing chunks for a document and inserts new ones.
// Run inside the same transaction that publishes the document's index so
// readers never observe a partial chunk set.
func (r *ChunkRepository) ReplaceChunks(ctx context.Context, documentID string, chunks []domain.Chunk) error {
	_, err := r.db.Exec(ctx, `DELETE FROM chunks WHERE document_id = $1`, documentID)
	if err != nil {
		return err
	}

	for _, c := range chunks {
		_, err := r.db.Exec(ctx,
			`INSERT INTO chunks
				(id, document_id, seq_index, text, char_start, char_end, page_start, page_end, embedding, created_at)
			 VALUES
				($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			c.ID, c.DocumentID, c.SeqIndex, c.Text, c.CharStart, c.CharEnd,
			c.PageStart, c.PageEnd, pgvector.NewVector(c.Embedding), c.CreatedAt,
		)
		if err != nil {
			return err
		}
	}

	return nil
}

// SearchByEmbedding returns up to k chunks of the document ranked by cosine
// similarity to the query vector. Only published indexes are visible; ties
// are broken by ascending sequence index so results are deterministic for a
// fixed index and query.
func (r *ChunkRepository) SearchByEmbedding(ctx context.Context, documentID string, embedding []float32, k int) ([]*domain.RetrievalResult, error) {
	rows, err := r.db.Query(ctx,
		`SELECT c.id, c.seq_index, c.text, c.page_start, c.page_end,
		        1 - (c.embedding <=> $1) AS score
		 FROM chunks c
		 JOIN documents d ON d.id = c.document_id
		 WHERE c.document_id = $2 AND d.indexed_at IS NOT NULL
		 ORDER BY score DESC, c.seq_index ASC
		 LIMIT $3`,
		pgvector.NewVector(embedding), documentID, k,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]*domain.RetrievalResult, 0, k)
	for rows.Next() {
		var res domain.RetrievalResult
		if err := rows.Scan(&res.ChunkID, &res.SeqIndex, &res.Text, &res.Citation.PageStart, &res.Citation.PageEnd, &res.Score); err != nil {
			return nil, err
		}
		results = append(results, &res)
	}
	return results, rows.Err()
}

// ListByDocument returns the document's chunks with embeddings in sequence
// order.
func (r *ChunkRepository) ListByDocument(ctx context.Context, documentID string) ([]*domain.Chunk, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, document_id, seq_index, text, char_start, char_end, page_start, page_end, embedding, created_at
		 FROM chunks
		 WHERE document_id = $1
		 ORDER BY seq_index ASC`,
		documentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanChunkRows(rows)
}

func (r *ChunkRepository) GetByIDs(ctx context.Context, ids []string) ([]*domain.Chunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := r.db.Query(ctx,
		`SELECT id, document_id, seq_index, text, char_start, char_end, page_start, page_end, embedding, created_at
		 FROM chunks
		 WHERE id = ANY($1)
		 ORDER BY seq_index ASC`,
		ids,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanChunkRows(rows)
}

func scanChunkRows(rows pgx.Rows) ([]*domain.Chunk, error) {
	var results []*domain.Chunk
	for rows.Next() {
		var c domain.Chunk
		var embedding pgvector.Vector
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.SeqIndex, &c.Text, &c.CharStart, &c.CharEnd, &c.PageStart, &c.PageEnd, &embedding, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.Embedding = embedding.Slice()
		results = append(results, &c)
	}
	return results, rows.Err()
}
