package service

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/pagetutor/pagetutor/internal/domain"
	"github.com/pagetutor/pagetutor/internal/telemetry"
)

// Embedder defines the interface for generating embeddings. ModelVersion and
// Dimensions identify the embedding space; retrieval refuses to mix spaces.
type Embedder interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
	ModelVersion() string
	Dimensions() int
}

// ChunkRepositoryInterface defines the repository interface for chunk persistence
type ChunkRepositoryInterface interface {
	ReplaceChunks(ctx context.Context, documentID string, chunks []domain.Chunk) error
	SearchByEmbedding(ctx context.Context, documentID string, embedding []float32, k int) ([]*domain.RetrievalResult, error)
	ListByDocument(ctx context.Context, documentID string) ([]*domain.Chunk, error)
	GetByIDs(ctx context.Context, ids []string) ([]*domain.Chunk, error)
}

// IndexingService chunks extracted documents, embeds the chunks, and
// publishes the result as a batch
type IndexingService struct {
	docRepo    DocumentRepositoryInterface
	txRunner   TxRunner
	embedder   Embedder
	chunkCfg   ChunkConfig
	uuidGen    UUIDGenerator
	maxRetries uint64
}

// NewIndexingService creates a new IndexingService instance
func NewIndexingService(
	docRepo DocumentRepositoryInterface,
	txRunner TxRunner,
	embedder Embedder,
	chunkCfg ChunkConfig,
) *IndexingService {
	return &IndexingService{
		docRepo:    docRepo,
		txRunner:   txRunner,
		embedder:   embedder,
		chunkCfg:   chunkCfg,
		uuidGen:    &DefaultUUIDGenerator{},
		maxRetries: 3,
	}
}

// NewIndexingServiceWithUUIDGen creates a new IndexingService with custom UUID generator (for testing)
func NewIndexingServiceWithUUIDGen(
	docRepo DocumentRepositoryInterface,
	txRunner TxRunner,
	embedder Embedder,
	chunkCfg ChunkConfig,
	uuidGen UUIDGenerator,
) *IndexingService {
	s := NewIndexingService(docRepo, txRunner, embedder, chunkCfg)
	s.uuidGen = uuidGen
	return s
}

// IndexDocument chunks the document's extracted text, embeds every chunk,
// and publishes the chunk set together with the indexed_at marker in one
// transaction. Readers either see the complete new index or none of it.
// This method is called by the background worker.
func (s *IndexingService) IndexDocument(ctx context.Context, documentID string) error {
	ctx, span := telemetry.StartSpan(ctx, "IndexingService.IndexDocument", telemetry.SpanAttributes{
		DocumentID: documentID,
		Operation:  "index",
	})
	defer span.End()

	doc, err := s.docRepo.GetByID(ctx, documentID)
	if err != nil {
		return err
	}

	if doc.Status != domain.DocumentStatusExtracted {
		return domain.ErrDocumentNotExtracted
	}

	now := time.Now().UTC()
	chunks := BuildChunks(doc, s.chunkCfg, now)

	for i := range chunks {
		chunks[i].ID = s.uuidGen.NewString()

		embedding, err := s.embedText(ctx, chunks[i].Text)
		if err != nil {
			return err
		}
		chunks[i].Embedding = embedding

		if err := domain.ValidateChunk(&chunks[i]); err != nil {
			return err
		}
	}

	return s.txRunner.WithTx(ctx, func(repos TxRepositories) error {
		if err := repos.Chunks().ReplaceChunks(ctx, documentID, chunks); err != nil {
			return err
		}
		return repos.Documents().PublishIndex(ctx, documentID, s.embedder.ModelVersion(), time.Now().UTC())
	})
}

// embedText calls the embedder with bounded exponential backoff. Transient
// upstream failures are retried; context cancellation stops the retry loop.
func (s *IndexingService) embedText(ctx context.Context, text string) ([]float32, error) {
	var embedding []float32

	operation := func() error {
		var err error
		embedding, err = s.embedder.GenerateEmbedding(ctx, text)
		return err
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), s.maxRetries), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, err
	}

	return embedding, nil
}
