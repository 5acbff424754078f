package service

import (
	"context"

	"github.com/pagetutor/pagetutor/internal/domain"
	"github.com/pagetutor/pagetutor/internal/telemetry"
)

// RetrieverService answers document-scoped similarity queries over the
// published chunk index
type RetrieverService struct {
	docRepo   DocumentRepositoryInterface
	chunkRepo ChunkRepositoryInterface
	embedder  Embedder
	topK      int
}

// NewRetrieverService creates a new RetrieverService instance
func NewRetrieverService(
	docRepo DocumentRepositoryInterface,
	chunkRepo ChunkRepositoryInterface,
	embedder Embedder,
	topK int,
) *RetrieverService {
	if topK <= 0 {
		topK = 5
	}
	return &RetrieverService{
		docRepo:   docRepo,
		chunkRepo: chunkRepo,
		embedder:  embedder,
		topK:      topK,
	}
}

// Retrieve embeds the query and returns up to k chunks of the document
// ranked by cosine similarity, ties broken by ascending sequence index.
// The document must have a published index, and its index must have been
// built with the same embedding model version the query is embedded with;
// mixing embedding spaces produces meaningless scores, so both conditions
// fail fast.
func (s *RetrieverService) Retrieve(ctx context.Context, documentID, query string, k int) ([]*domain.RetrievalResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "RetrieverService.Retrieve", telemetry.SpanAttributes{
		DocumentID: documentID,
		Operation:  "retrieve",
	})
	defer span.End()

	doc, err := s.docRepo.GetByID(ctx, documentID)
	if err != nil {
		return nil, err
	}

	if !doc.Indexed() {
		return nil, domain.ErrDocumentNotIndexed
	}

	if doc.EmbeddingModel != s.embedder.ModelVersion() {
		return nil, domain.ErrModelVersionMismatch
	}

	embedding, err := s.embedder.GenerateEmbedding(ctx, query)
	if err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeUpstreamModel, "upstream model call failed", err)
	}

	if len(embedding) != s.embedder.Dimensions() {
		return nil, domain.ErrDimensionMismatch
	}

	if k <= 0 || k > s.topK {
		k = s.topK
	}

	return s.chunkRepo.SearchByEmbedding(ctx, documentID, embedding, k)
}
