package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// ArtifactKind discriminates generated artifact payloads
type ArtifactKind string

const (
	ArtifactKindNote      ArtifactKind = "note"
	ArtifactKindQuizMCQ   ArtifactKind = "quiz_mcq"
	ArtifactKindQuizShort ArtifactKind = "quiz_short"
)

// Artifact represents a generated study artifact (note or quiz item).
// Artifacts are derived and regenerable; they are never mutated after
// creation, and regeneration inserts a new artifact rather than editing in
// place. Payload shape depends on Kind; citation and provenance fields are
// shared across kinds.
type Artifact struct {
	ID             string
	DocumentID     string
	Kind           ArtifactKind
	Payload        json.RawMessage
	Citations      []Citation
	SourceChunkIDs []string
	CreatedAt      time.Time
}

// GlossaryTerm is a term/definition pair included in a note.
type GlossaryTerm struct {
	Term       string `json:"term"`
	Definition string `json:"definition"`
}

// NotePayload is the payload of an ArtifactKindNote artifact: one
// structured study note covering a single topic segment of the document.
type NotePayload struct {
	Topic         string         `json:"topic"`
	Summary       string         `json:"summary"`
	KeyPoints     []string       `json:"key_points"`
	WorkedExample string         `json:"worked_example,omitempty"`
	Glossary      []GlossaryTerm `json:"glossary,omitempty"`
}

// QuizMCQPayload is the payload of an ArtifactKindQuizMCQ artifact.
type QuizMCQPayload struct {
	Question     string   `json:"question"`
	Options      []string `json:"options"`
	CorrectIndex int      `json:"correct_index"`
	Explanation  string   `json:"explanation"`
}

// QuizShortPayload is the payload of an ArtifactKindQuizShort artifact.
type QuizShortPayload struct {
	Question     string `json:"question"`
	SampleAnswer string `json:"sample_answer"`
}

// NewArtifact creates a new Artifact with a marshaled payload.
func NewArtifact(
	id, documentID string,
	kind ArtifactKind,
	payload interface{},
	citations []Citation,
	sourceChunkIDs []string,
	createdAt time.Time,
) (*Artifact, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal artifact payload: %w", err)
	}
	return &Artifact{
		ID:             id,
		DocumentID:     documentID,
		Kind:           kind,
		Payload:        raw,
		Citations:      citations,
		SourceChunkIDs: sourceChunkIDs,
		CreatedAt:      createdAt,
	}, nil
}

// ValidateArtifact validates an Artifact instance
func ValidateArtifact(a *Artifact) error {
	if a == nil {
		return fmt.Errorf("artifact cannot be nil")
	}

	if a.ID == "" {
		return fmt.Errorf("artifact ID is required")
	}

	if a.DocumentID == "" {
		return fmt.Errorf("artifact DocumentID is required")
	}

	if !isValidArtifactKind(a.Kind) {
		return fmt.Errorf("artifact Kind is invalid: %s", a.Kind)
	}

	if len(a.Payload) == 0 {
		return fmt.Errorf("artifact Payload is required")
	}

	if len(a.SourceChunkIDs) == 0 {
		return fmt.Errorf("artifact must reference its source chunks")
	}

	switch a.Kind {
	case ArtifactKindNote:
		var p NotePayload
		if err := json.Unmarshal(a.Payload, &p); err != nil {
			return fmt.Errorf("invalid note payload: %w", err)
		}
		return ValidateNotePayload(&p)
	case ArtifactKindQuizMCQ:
		var p QuizMCQPayload
		if err := json.Unmarshal(a.Payload, &p); err != nil {
			return fmt.Errorf("invalid quiz payload: %w", err)
		}
		return ValidateQuizMCQPayload(&p)
	case ArtifactKindQuizShort:
		var p QuizShortPayload
		if err := json.Unmarshal(a.Payload, &p); err != nil {
			return fmt.Errorf("invalid quiz payload: %w", err)
		}
		return ValidateQuizShortPayload(&p)
	}

	return nil
}

// ValidateNotePayload validates a NotePayload instance
func ValidateNotePayload(p *NotePayload) error {
	if p == nil {
		return fmt.Errorf("note payload cannot be nil")
	}
	if p.Topic == "" {
		return fmt.Errorf("note Topic is required")
	}
	if p.Summary == "" {
		return fmt.Errorf("note Summary is required")
	}
	return nil
}

// ValidateQuizMCQPayload validates a QuizMCQPayload instance. A generated
// multiple-choice question must have at least two options and exactly one
// correct option index.
func ValidateQuizMCQPayload(p *QuizMCQPayload) error {
	if p == nil {
		return fmt.Errorf("quiz payload cannot be nil")
	}
	if p.Question == "" {
		return fmt.Errorf("quiz Question is required")
	}
	if len(p.Options) < 2 {
		return fmt.Errorf("quiz must have at least 2 options, got %d", len(p.Options))
	}
	if p.CorrectIndex < 0 || p.CorrectIndex >= len(p.Options) {
		return fmt.Errorf("quiz CorrectIndex %d out of range for %d options", p.CorrectIndex, len(p.Options))
	}
	for i, opt := range p.Options {
		if opt == "" {
			return fmt.Errorf("quiz option %d is empty", i)
		}
	}
	return nil
}

// ValidateQuizShortPayload validates a QuizShortPayload instance
func ValidateQuizShortPayload(p *QuizShortPayload) error {
	if p == nil {
		return fmt.Errorf("quiz payload cannot be nil")
	}
	if p.Question == "" {
		return fmt.Errorf("quiz Question is required")
	}
	if p.SampleAnswer == "" {
		return fmt.Errorf("quiz SampleAnswer is required")
	}
	return nil
}

// isValidArtifactKind checks if an ArtifactKind is valid
func isValidArtifactKind(k ArtifactKind) bool {
	switch k {
	case ArtifactKindNote, ArtifactKindQuizMCQ, ArtifactKindQuizShort:
		return true
	}
	return false
}
