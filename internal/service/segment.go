package service

import (
	"math"

	"github.com/pagetutor/pagetutor/internal/domain"
)

// SegmentConfig controls topic segmentation of a document's chunk sequence.
type SegmentConfig struct {
	// SimilarityThreshold is the cosine similarity between adjacent chunk
	// embeddings below which a topic boundary is placed.
	SimilarityThreshold float32
	// MinChunks is the minimum number of chunks per segment; boundaries
	// that would create a shorter segment are suppressed.
	MinChunks int
	// MaxSegments caps the number of segments; the weakest boundaries are
	// dropped first when the cap is exceeded.
	MaxSegments int
}

// DefaultSegmentConfig returns the default segmentation configuration
func DefaultSegmentConfig() SegmentConfig {
	return SegmentConfig{
		SimilarityThreshold: 0.82,
		MinChunks:           2,
		MaxSegments:         12,
	}
}

// TopicSegment is a run of adjacent chunks covering one topic.
type TopicSegment struct {
	// Chunks are the segment's members in ascending SeqIndex order.
	Chunks []*domain.Chunk
}

// Citation returns the segment's page-range citation.
func (s *TopicSegment) Citation() domain.Citation {
	first := s.Chunks[0]
	last := s.Chunks[len(s.Chunks)-1]
	return domain.Citation{PageStart: first.PageStart, PageEnd: last.PageEnd}
}

// ChunkIDs returns the IDs of the segment's chunks.
func (s *TopicSegment) ChunkIDs() []string {
	ids := make([]string, len(s.Chunks))
	for i, c := range s.Chunks {
		ids[i] = c.ID
	}
	return ids
}

type boundary struct {
	index      int // boundary before chunks[index]
	similarity float32
}

// SegmentChunks splits an ordered chunk sequence into topic segments. A
// boundary is placed where the cosine similarity between adjacent chunk
// embeddings drops below the threshold. The input must be sorted by
// SeqIndex; chunks without embeddings collapse into a single segment.
func SegmentChunks(chunks []*domain.Chunk, cfg SegmentConfig) []TopicSegment {
	if len(chunks) == 0 {
		return nil
	}

	candidates := make([]boundary, 0)
	for i := 1; i < len(chunks); i++ {
		sim, ok := cosineSimilarity(chunks[i-1].Embedding, chunks[i].Embedding)
		if !ok {
			continue
		}
		if sim < cfg.SimilarityThreshold {
			candidates = append(candidates, boundary{index: i, similarity: sim})
		}
	}

	// Enforce the minimum segment length, keeping earlier boundaries.
	minChunks := cfg.MinChunks
	if minChunks < 1 {
		minChunks = 1
	}
	kept := make([]boundary, 0, len(candidates))
	prev := 0
	for _, b := range candidates {
		if b.index-prev < minChunks || len(chunks)-b.index < minChunks {
			continue
		}
		kept = append(kept, b)
		prev = b.index
	}

	// Drop the weakest boundaries (highest similarity) until under the cap.
	if cfg.MaxSegments > 0 {
		for len(kept)+1 > cfg.MaxSegments {
			weakest := 0
			for i := 1; i < len(kept); i++ {
				if kept[i].similarity > kept[weakest].similarity {
					weakest = i
				}
			}
			kept = append(kept[:weakest], kept[weakest+1:]...)
		}
	}

	segments := make([]TopicSegment, 0, len(kept)+1)
	start := 0
	for _, b := range kept {
		segments = append(segments, TopicSegment{Chunks: chunks[start:b.index]})
		start = b.index
	}
	segments = append(segments, TopicSegment{Chunks: chunks[start:]})

	return segments
}

// cosineSimilarity computes the cosine similarity of two vectors. Returns
// false when either vector is missing, zero-length, or mismatched.
func cosineSimilarity(a, b []float32) (float32, bool) {
	if len(a) == 0 || len(a) != len(b) {
		return 0, false
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0, false
	}

	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB))), true
}
