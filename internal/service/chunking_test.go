package service

import (
	"strings"
	"testing"
	"time"

	"github.com/pagetutor/pagetutor/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func wordText(words int) string {
	var sb strings.Builder
	for i := 0; i < words; i++ {
		if i > 0 {
			sb.WriteString(" ")
		}
		sb.WriteString("word")
	}
	return sb.String()
}

func TestChunkSpans_ShortTextSingleSpan(t *testing.T) {
	cfg := ChunkConfig{MaxChars: 1000, MinChars: 300, Overlap: 150}
	text := "a short document"

	spans := chunkSpans(text, cfg)

	require.Len(t, spans, 1)
	assert.Equal(t, 0, spans[0].Start)
	assert.Equal(t, len([]rune(text)), spans[0].End)
}

func TestChunkSpans_EmptyText(t *testing.T) {
	assert.Nil(t, chunkSpans("", DefaultChunkConfig()))
}

func TestChunkSpans_FullCoverageNoGaps(t *testing.T) {
	cfg := ChunkConfig{MaxChars: 1000, MinChars: 300, Overlap: 150}
	text := wordText(6500) // ~32k chars

	spans := chunkSpans(text, cfg)
	require.Greater(t, len(spans), 1)

	assert.Equal(t, 0, spans[0].Start)
	assert.Equal(t, len([]rune(text)), spans[len(spans)-1].End)
	for i := 1; i < len(spans); i++ {
		// No gap: each span starts at or before the previous span's end.
		assert.LessOrEqual(t, spans[i].Start, spans[i-1].End, "gap before span %d", i)
		// Strictly advancing.
		assert.Greater(t, spans[i].Start, spans[i-1].Start, "span %d does not advance", i)
	}
}

func TestChunkSpans_RespectsMaxSize(t *testing.T) {
	cfg := ChunkConfig{MaxChars: 1000, MinChars: 300, Overlap: 150}
	spans := chunkSpans(wordText(6500), cfg)

	for i, span := range spans {
		assert.LessOrEqual(t, span.End-span.Start, cfg.MaxChars, "span %d exceeds max size", i)
		assert.Greater(t, span.End, span.Start, "span %d is empty", i)
	}
}

func TestChunkSpans_Deterministic(t *testing.T) {
	cfg := ChunkConfig{MaxChars: 800, MinChars: 200, Overlap: 100}
	text := wordText(3000)

	first := chunkSpans(text, cfg)
	second := chunkSpans(text, cfg)

	assert.Equal(t, first, second)
}

func TestChunkSpans_OverlapCarried(t *testing.T) {
	cfg := ChunkConfig{MaxChars: 1000, MinChars: 300, Overlap: 150}
	spans := chunkSpans(wordText(1000), cfg)
	require.Greater(t, len(spans), 1)

	for i := 1; i < len(spans); i++ {
		overlap := spans[i-1].End - spans[i].Start
		assert.GreaterOrEqual(t, overlap, 0)
		assert.LessOrEqual(t, overlap, cfg.Overlap)
	}
}

func TestBuildChunks_TwentyPageDocument(t *testing.T) {
	// 20 pages, 1500 chars per page => 30k chars, 1000-char chunks with
	// 150-char overlap should produce 30+ chunks with monotonically
	// non-decreasing page citations.
	const pages = 20
	const perPage = 1500

	pageText := wordText(perPage / 5) // "word " * n, ~perPage chars
	var sb strings.Builder
	offsets := make([]int, 0, pages)
	for p := 0; p < pages; p++ {
		if p > 0 {
			sb.WriteString("\n")
		}
		offsets = append(offsets, len([]rune(sb.String())))
		sb.WriteString(pageText)
	}

	doc := &domain.Document{
		ID:          "doc-1",
		Filename:    "lecture.pdf",
		ByteSize:    1,
		RawText:     sb.String(),
		PageCount:   pages,
		PageOffsets: offsets,
		Status:      domain.DocumentStatusExtracted,
	}

	cfg := ChunkConfig{MaxChars: 1000, MinChars: 300, Overlap: 150}
	chunks := BuildChunks(doc, cfg, time.Now().UTC())

	require.GreaterOrEqual(t, len(chunks), 30)

	lastPageStart := 0
	for i, c := range chunks {
		assert.Equal(t, i, c.SeqIndex)
		assert.Equal(t, "doc-1", c.DocumentID)
		assert.GreaterOrEqual(t, c.PageStart, 1)
		assert.LessOrEqual(t, c.PageStart, c.PageEnd)
		assert.LessOrEqual(t, c.PageEnd, pages)
		assert.GreaterOrEqual(t, c.PageStart, lastPageStart, "page citations must be non-decreasing")
		lastPageStart = c.PageStart
		assert.NoError(t, domain.ValidateChunk(&domain.Chunk{
			ID:         "chunk",
			DocumentID: c.DocumentID,
			SeqIndex:   c.SeqIndex,
			Text:       c.Text,
			CharStart:  c.CharStart,
			CharEnd:    c.CharEnd,
			PageStart:  c.PageStart,
			PageEnd:    c.PageEnd,
		}))
	}
}

func TestBuildChunks_SingleChunkSpansAllPages(t *testing.T) {
	doc := &domain.Document{
		ID:          "doc-2",
		Filename:    "short.pdf",
		ByteSize:    1,
		RawText:     "page one text\npage two text",
		PageCount:   2,
		PageOffsets: []int{0, 14},
		Status:      domain.DocumentStatusExtracted,
	}

	chunks := BuildChunks(doc, DefaultChunkConfig(), time.Now().UTC())

	require.Len(t, chunks, 1)
	assert.Equal(t, 1, chunks[0].PageStart)
	assert.Equal(t, 2, chunks[0].PageEnd)
	assert.Equal(t, doc.RawText, chunks[0].Text)
}
