package service

import (
	"time"
	"unicode"

	"github.com/pagetutor/pagetutor/internal/domain"
)

// ChunkConfig controls how extracted text is split into retrieval units.
type ChunkConfig struct {
	// MaxChars is the target chunk size in runes.
	MaxChars int
	// MinChars is the smallest acceptable cut point when searching
	// backwards for a whitespace boundary.
	MinChars int
	// Overlap is the stride carried into the next chunk so context
	// spanning a boundary is not lost.
	Overlap int
}

// DefaultChunkConfig provides sane defaults for chunking.
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{
		MaxChars: 1000,
		MinChars: 300,
		Overlap:  150,
	}
}

// chunkSpan is a half-open rune offset range [Start, End) into the text.
type chunkSpan struct {
	Start int
	End   int
}

// chunkSpans splits text into ordered spans. The spans collectively cover
// the entire text: each span ends where or after the next one starts, and
// the last span always reaches the end. Splitting is purely a function of
// the text and config, so identical input yields identical spans.
func chunkSpans(text string, cfg ChunkConfig) []chunkSpan {
	if text == "" {
		return nil
	}
	if cfg.MaxChars <= 0 {
		cfg = DefaultChunkConfig()
	}
	if cfg.Overlap >= cfg.MaxChars {
		cfg.Overlap = cfg.MaxChars / 4
	}

	runes := []rune(text)
	if len(runes) <= cfg.MaxChars {
		return []chunkSpan{{Start: 0, End: len(runes)}}
	}

	spans := make([]chunkSpan, 0, len(runes)/cfg.MaxChars+1)
	start := 0
	for start < len(runes) {
		end := start + cfg.MaxChars
		if end > len(runes) {
			end = len(runes)
		}

		if end < len(runes) {
			// Prefer cutting on whitespace so words stay intact.
			cut := end
			minCut := start + cfg.MinChars
			if minCut > end || minCut < start {
				minCut = start
			}
			for i := end; i > minCut; i-- {
				if unicode.IsSpace(runes[i-1]) {
					cut = i
					break
				}
			}
			end = cut
		}

		if end <= start {
			end = start + 1
		}
		spans = append(spans, chunkSpan{Start: start, End: end})

		if end >= len(runes) {
			break
		}

		nextStart := end
		if cfg.Overlap > 0 && end-start > cfg.Overlap {
			nextStart = end - cfg.Overlap
		}
		if nextStart <= start {
			nextStart = end
		}
		start = nextStart
	}

	return spans
}

// BuildChunks splits an extracted document into ordered chunks and maps
// each span back through the page-boundary table to a page range. A
// document shorter than one chunk yields exactly one chunk spanning all
// its pages.
func BuildChunks(doc *domain.Document, cfg ChunkConfig, createdAt time.Time) []domain.Chunk {
	spans := chunkSpans(doc.RawText, cfg)
	if len(spans) == 0 {
		return nil
	}

	runes := []rune(doc.RawText)
	chunks := make([]domain.Chunk, 0, len(spans))
	for i, span := range spans {
		pageStart := doc.PageForOffset(span.Start)
		// End offset is exclusive; the last covered rune decides the page.
		pageEnd := doc.PageForOffset(span.End - 1)
		chunks = append(chunks, domain.Chunk{
			DocumentID: doc.ID,
			SeqIndex:   i,
			Text:       string(runes[span.Start:span.End]),
			CharStart:  span.Start,
			CharEnd:    span.End,
			PageStart:  pageStart,
			PageEnd:    pageEnd,
			CreatedAt:  createdAt,
		})
	}

	return chunks
}
