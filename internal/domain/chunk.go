package domain

import (
	"fmt"
	"time"
)

// Chunk represents a contiguous slice of a document's extracted text used
// as an atomic retrieval unit. Chunks for a document are ordered by SeqIndex
// and cover the full text with a controlled overlap between neighbors.
type Chunk struct {
	ID         string
	DocumentID string
	SeqIndex   int
	Text       string
	// CharStart/CharEnd are rune offsets of the chunk within the
	// document's RawText. Neighboring chunks may overlap by the
	// configured stride.
	CharStart int
	CharEnd   int
	PageStart int
	PageEnd   int
	Embedding []float32
	CreatedAt time.Time
}

// Citation is a page-range reference tying retrieved or generated content
// back to its source chunks. Formatting into a display string ("Page 8-9")
// is the caller's responsibility.
type Citation struct {
	PageStart int `json:"page_start"`
	PageEnd   int `json:"page_end"`
}

// Citation returns the chunk's page-range citation.
func (c *Chunk) Citation() Citation {
	return Citation{PageStart: c.PageStart, PageEnd: c.PageEnd}
}

// RetrievalResult is a scored chunk returned by the retriever, ordered
// descending by score with ties broken by ascending SeqIndex.
type RetrievalResult struct {
	ChunkID  string
	SeqIndex int
	Text     string
	Score    float32
	Citation Citation
}

// ValidateChunk validates a Chunk instance
func ValidateChunk(c *Chunk) error {
	if c == nil {
		return fmt.Errorf("chunk cannot be nil")
	}

	if c.ID == "" {
		return fmt.Errorf("chunk ID is required")
	}

	if c.DocumentID == "" {
		return fmt.Errorf("chunk DocumentID is required")
	}

	if c.SeqIndex < 0 {
		return fmt.Errorf("chunk SeqIndex cannot be negative")
	}

	if c.Text == "" {
		return fmt.Errorf("chunk Text is required")
	}

	if c.CharEnd <= c.CharStart {
		return fmt.Errorf("chunk CharEnd must be greater than CharStart")
	}

	if c.PageStart < 1 {
		return fmt.Errorf("chunk PageStart must be at least 1")
	}

	if c.PageEnd < c.PageStart {
		return fmt.Errorf("chunk PageEnd %d is before PageStart %d", c.PageEnd, c.PageStart)
	}

	return nil
}
