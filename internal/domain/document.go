package domain

import (
	"fmt"
	"time"
)

// DocumentStatus represents the lifecycle status of an uploaded document
type DocumentStatus string

const (
	DocumentStatusUploaded   DocumentStatus = "uploaded"
	DocumentStatusExtracting DocumentStatus = "extracting"
	DocumentStatusExtracted  DocumentStatus = "extracted"
	DocumentStatusFailed     DocumentStatus = "failed"
)

// Document represents an uploaded source document and its extracted text.
// RawText and PageOffsets are populated when the document reaches the
// Extracted status; both are immutable from that point on.
type Document struct {
	ID        string
	Filename  string
	ByteSize  int64
	PageCount int
	RawText   string
	// PageOffsets holds the rune offset of the first character of each
	// page within RawText. len(PageOffsets) == PageCount once extracted.
	PageOffsets []int
	Status      DocumentStatus
	Failure     string
	// EmbeddingModel records the model version the document's chunks were
	// embedded with. Empty until the index has been published.
	EmbeddingModel string
	// IndexedAt is set when the document's chunk embeddings have been
	// published as a batch; retrieval only sees documents where it is set.
	IndexedAt  *time.Time
	StorageKey string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NewDocument creates a new Document in the Uploaded state
func NewDocument(id, filename string, byteSize int64, createdAt time.Time) *Document {
	return &Document{
		ID:        id,
		Filename:  filename,
		ByteSize:  byteSize,
		Status:    DocumentStatusUploaded,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

// Indexed reports whether the document's chunks are queryable.
func (d *Document) Indexed() bool {
	return d.IndexedAt != nil
}

// PageForOffset maps a rune offset within RawText to a 1-based page number.
// Offsets past the last page boundary belong to the last page.
func (d *Document) PageForOffset(offset int) int {
	if len(d.PageOffsets) == 0 {
		return 1
	}
	page := 1
	for i, start := range d.PageOffsets {
		if offset < start {
			break
		}
		page = i + 1
	}
	return page
}

// ValidateDocument validates a Document instance
func ValidateDocument(d *Document) error {
	if d == nil {
		return fmt.Errorf("document cannot be nil")
	}

	if d.ID == "" {
		return fmt.Errorf("document ID is required")
	}

	if d.Filename == "" {
		return fmt.Errorf("document Filename is required")
	}

	if d.ByteSize <= 0 {
		return fmt.Errorf("document ByteSize must be greater than 0")
	}

	if !isValidDocumentStatus(d.Status) {
		return fmt.Errorf("document Status is invalid: %s", d.Status)
	}

	if d.Status == DocumentStatusExtracted {
		if d.RawText == "" {
			return fmt.Errorf("extracted document must have RawText")
		}
		if d.PageCount <= 0 {
			return fmt.Errorf("extracted document must have a positive PageCount")
		}
		if len(d.PageOffsets) != d.PageCount {
			return fmt.Errorf("document PageOffsets length %d does not match PageCount %d", len(d.PageOffsets), d.PageCount)
		}
	}

	return nil
}

// isValidDocumentStatus checks if a DocumentStatus is valid
func isValidDocumentStatus(s DocumentStatus) bool {
	switch s {
	case DocumentStatusUploaded, DocumentStatusExtracting,
		DocumentStatusExtracted, DocumentStatusFailed:
		return true
	}
	return false
}
