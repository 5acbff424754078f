package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/pagetutor/pagetutor/internal/domain"
	"github.com/pagetutor/pagetutor/internal/extract"
	"github.com/pagetutor/pagetutor/internal/pagination"
	"github.com/pagetutor/pagetutor/internal/telemetry"
)

// DocumentRepositoryInterface defines the repository interface for document persistence
type DocumentRepositoryInterface interface {
	Create(ctx context.Context, d *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	ListWithCursor(ctx context.Context, cursor *pagination.Cursor, limit int) (*DocumentPageResult, error)
	Delete(ctx context.Context, id string) error
	// ClaimExtraction transitions the document from Uploaded to Extracting.
	// Returns ErrExtractionInProgress when another worker holds the claim.
	ClaimExtraction(ctx context.Context, id string, updatedAt time.Time) error
	// CommitExtraction publishes staged extraction output and transitions
	// the document to Extracted in a single statement.
	CommitExtraction(ctx context.Context, id string, rawText string, pageOffsets []int, pageCount int, updatedAt time.Time) error
	FailExtraction(ctx context.Context, id string, reason string, updatedAt time.Time) error
	// PublishIndex marks the document's chunk index as queryable and records
	// the embedding model the chunks were embedded with.
	PublishIndex(ctx context.Context, id string, embeddingModel string, indexedAt time.Time) error
}

type DocumentPageResult struct {
	Items      []*domain.Document
	NextCursor string
	HasMore    bool
}

// IndexJobRepositoryInterface defines the repository interface for index job persistence
type IndexJobRepositoryInterface interface {
	Create(ctx context.Context, job *domain.IndexJob) error
}

// UUIDGenerator defines interface for UUID generation (for testing)
type UUIDGenerator interface {
	NewString() string
}

// DefaultUUIDGenerator is the default UUID generator using google/uuid
type DefaultUUIDGenerator struct{}

// NewString generates a new UUID string
func (g *DefaultUUIDGenerator) NewString() string {
	return uuid.NewString()
}

// Extractor converts raw document bytes into plain text with page offsets
type Extractor interface {
	Extract(ctx context.Context, data []byte) (*extract.Result, error)
}

// BlobStore persists raw document bytes
type BlobStore interface {
	PutObject(ctx context.Context, key string, data []byte, contentType string) error
	DeleteObject(ctx context.Context, key string) error
	GenerateDownloadURL(ctx context.Context, key string) (string, error)
}

// DocumentService handles document upload, extraction, and lifecycle
type DocumentService struct {
	docRepo           DocumentRepositoryInterface
	txRunner          TxRunner
	extractor         Extractor
	blobs             BlobStore // nil when object storage is not configured
	uuidGen           UUIDGenerator
	extractionTimeout time.Duration
}

// NewDocumentService creates a new DocumentService instance
func NewDocumentService(
	docRepo DocumentRepositoryInterface,
	txRunner TxRunner,
	extractor Extractor,
	blobs BlobStore,
	extractionTimeout time.Duration,
) *DocumentService {
	return &DocumentService{
		docRepo:           docRepo,
		txRunner:          txRunner,
		extractor:         extractor,
		blobs:             blobs,
		uuidGen:           &DefaultUUIDGenerator{},
		extractionTimeout: extractionTimeout,
	}
}

// NewDocumentServiceWithUUIDGen creates a new DocumentService with custom UUID generator (for testing)
func NewDocumentServiceWithUUIDGen(
	docRepo DocumentRepositoryInterface,
	txRunner TxRunner,
	extractor Extractor,
	blobs BlobStore,
	extractionTimeout time.Duration,
	uuidGen UUIDGenerator,
) *DocumentService {
	s := NewDocumentService(docRepo, txRunner, extractor, blobs, extractionTimeout)
	s.uuidGen = uuidGen
	return s
}

// IngestInput represents the input for ingesting a document
type IngestInput struct {
	Filename string
	Data     []byte
}

// Ingest registers an uploaded document, extracts its text, and queues an
// indexing job. Extraction output is staged in memory and committed together
// with the status transition, so a crash mid-extraction leaves no partial
// text behind. On extraction failure the document is marked Failed and the
// error is returned to the caller.
func (s *DocumentService) Ingest(ctx context.Context, input IngestInput) (*domain.Document, error) {
	ctx, span := telemetry.StartSpan(ctx, "DocumentService.Ingest", telemetry.SpanAttributes{
		Operation: "ingest",
	})
	defer span.End()

	if !extract.IsPDF(input.Data) {
		return nil, domain.ErrUnsupportedFormat
	}

	now := time.Now().UTC()
	doc := domain.NewDocument(s.uuidGen.NewString(), input.Filename, int64(len(input.Data)), now)

	if s.blobs != nil {
		doc.StorageKey = fmt.Sprintf("documents/%s.pdf", doc.ID)
		if err := s.blobs.PutObject(ctx, doc.StorageKey, input.Data, "application/pdf"); err != nil {
			return nil, fmt.Errorf("failed to store document bytes: %w", err)
		}
	}

	if err := domain.ValidateDocument(doc); err != nil {
		return nil, err
	}

	if err := s.docRepo.Create(ctx, doc); err != nil {
		return nil, err
	}

	if err := s.Extract(ctx, doc.ID, input.Data); err != nil {
		return nil, err
	}

	return s.docRepo.GetByID(ctx, doc.ID)
}

// Extract claims the document for extraction, runs the extractor under the
// configured timeout, and commits the result. Only one extraction can run
// per document; a concurrent call observes ErrExtractionInProgress.
func (s *DocumentService) Extract(ctx context.Context, documentID string, data []byte) error {
	ctx, span := telemetry.StartSpan(ctx, "DocumentService.Extract", telemetry.SpanAttributes{
		DocumentID: documentID,
		Operation:  "extract",
	})
	defer span.End()

	now := time.Now().UTC()
	if err := s.docRepo.ClaimExtraction(ctx, documentID, now); err != nil {
		return err
	}

	extractCtx := ctx
	if s.extractionTimeout > 0 {
		var cancel context.CancelFunc
		extractCtx, cancel = context.WithTimeout(ctx, s.extractionTimeout)
		defer cancel()
	}

	res, err := s.extractor.Extract(extractCtx, data)
	if err != nil {
		// The claim must be released even when the caller's context is
		// already done.
		failCtx := context.WithoutCancel(ctx)
		if failErr := s.docRepo.FailExtraction(failCtx, documentID, err.Error(), time.Now().UTC()); failErr != nil {
			log.Printf("document %s: failed to record extraction failure: %v", documentID, failErr)
		}
		return domain.NewDomainErrorWithCause(domain.ErrCodeExtractionFailed, "failed to extract text from document", err)
	}

	// Commit extraction output and queue indexing atomically: a document is
	// never Extracted without a pending index job.
	return s.txRunner.WithTx(ctx, func(repos TxRepositories) error {
		commitAt := time.Now().UTC()
		if err := repos.Documents().CommitExtraction(ctx, documentID, res.Text, res.PageOffsets, res.PageCount, commitAt); err != nil {
			return err
		}
		job := domain.NewIndexJob(s.uuidGen.NewString(), documentID, commitAt)
		return repos.IndexJobs().Create(ctx, job)
	})
}

// GetByID retrieves a document by ID
func (s *DocumentService) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	return s.docRepo.GetByID(ctx, id)
}

type ListDocumentsInput struct {
	Cursor string
	Limit  int
}

type ListDocumentsOutput struct {
	Items   []*domain.Document
	Cursor  string
	HasMore bool
}

// List retrieves documents ordered by creation time descending
func (s *DocumentService) List(ctx context.Context, input ListDocumentsInput) (*ListDocumentsOutput, error) {
	ctx, span := telemetry.StartSpan(ctx, "DocumentService.List", telemetry.SpanAttributes{
		Operation: "list",
	})
	defer span.End()

	cursor, _ := pagination.DecodeCursor(input.Cursor)

	page, err := s.docRepo.ListWithCursor(ctx, cursor, input.Limit)
	if err != nil {
		return nil, err
	}

	return &ListDocumentsOutput{
		Items:   page.Items,
		Cursor:  page.NextCursor,
		HasMore: page.HasMore,
	}, nil
}

// Delete removes a document together with its chunks, conversation turns,
// artifacts, and index jobs. Stored bytes are removed best-effort after the
// database row is gone.
func (s *DocumentService) Delete(ctx context.Context, id string) error {
	ctx, span := telemetry.StartSpan(ctx, "DocumentService.Delete", telemetry.SpanAttributes{
		DocumentID: id,
		Operation:  "delete",
	})
	defer span.End()

	doc, err := s.docRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if err := s.docRepo.Delete(ctx, id); err != nil {
		return err
	}

	if s.blobs != nil && doc.StorageKey != "" {
		if err := s.blobs.DeleteObject(ctx, doc.StorageKey); err != nil {
			log.Printf("document %s: failed to delete stored bytes %s: %v", id, doc.StorageKey, err)
		}
	}

	return nil
}

// DownloadURL returns a presigned URL for the document's original bytes.
func (s *DocumentService) DownloadURL(ctx context.Context, id string) (string, error) {
	doc, err := s.docRepo.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	if s.blobs == nil || doc.StorageKey == "" {
		return "", domain.NewDomainError(domain.ErrCodeInvalidOperation, "document bytes are not stored")
	}
	return s.blobs.GenerateDownloadURL(ctx, doc.StorageKey)
}
