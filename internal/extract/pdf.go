// Package extract implements PDF text extraction with page boundaries.
package extract

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

const (
	// pdfSignature must appear within the first kilobyte of the file per
	// the PDF header rules; filename extensions are not trusted.
	pdfSignature   = "%PDF-"
	signatureLimit = 1024

	// maxPDFBytes caps in-memory extraction to avoid OOM on huge inputs.
	maxPDFBytes = 200 << 20
)

// Result holds the outcome of a successful extraction. Offsets are rune
// offsets into Text so they compose with rune-based chunking.
type Result struct {
	Text        string
	PageCount   int
	PageOffsets []int
}

// IsPDF reports whether the byte payload carries a PDF signature.
func IsPDF(data []byte) bool {
	limit := signatureLimit
	if len(data) < limit {
		limit = len(data)
	}
	return bytes.Contains(data[:limit], []byte(pdfSignature))
}

// PDFExtractor extracts plain text from PDF bytes, one page at a time,
// recording the rune offset where each page starts.
type PDFExtractor struct{}

func NewPDFExtractor() *PDFExtractor {
	return &PDFExtractor{}
}

// Extract reads every page of the document. It checks ctx between pages so
// a cancelled upload aborts without producing partial results: either the
// whole Result is returned or an error, never both.
func (e *PDFExtractor) Extract(ctx context.Context, data []byte) (*Result, error) {
	if len(data) > maxPDFBytes {
		return nil, fmt.Errorf("pdf too large for in-memory extraction: %d bytes", len(data))
	}

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open pdf: %w", err)
	}

	pages := reader.NumPage()
	if pages == 0 {
		return nil, fmt.Errorf("pdf has no pages")
	}

	var sb strings.Builder
	offsets := make([]int, 0, pages)
	runeCount := 0

	for i := 1; i <= pages; i++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		offsets = append(offsets, runeCount)

		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		fonts := make(map[string]*pdf.Font)
		text, err := page.GetPlainText(fonts)
		if err != nil {
			return nil, fmt.Errorf("failed to extract page %d: %w", i, err)
		}

		text = normalizePageText(text)
		if text == "" {
			continue
		}

		if runeCount > 0 {
			sb.WriteString("\n")
			runeCount++
			// The separator belongs to the page it precedes.
			offsets[len(offsets)-1] = runeCount
		}
		sb.WriteString(text)
		runeCount += utf8.RuneCountInString(text)
	}

	text := sb.String()
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("pdf contains no extractable text")
	}

	return &Result{
		Text:        text,
		PageCount:   pages,
		PageOffsets: offsets,
	}, nil
}

// normalizePageText collapses repeated blank lines and trims page edges so
// extraction is stable across producers that pad pages differently.
func normalizePageText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	for strings.Contains(text, "\n\n\n") {
		text = strings.ReplaceAll(text, "\n\n\n", "\n\n")
	}
	return strings.TrimSpace(text)
}
