package domain

import (
	"fmt"
	"time"
)

// TurnRole represents the author of a conversation turn
type TurnRole string

const (
	TurnRoleUser      TurnRole = "user"
	TurnRoleAssistant TurnRole = "assistant"
)

// ConversationTurn represents one turn in a document's conversation.
// Turns form an append-only sequence per document; Seq is monotonically
// increasing and defines the causal order of the interaction.
type ConversationTurn struct {
	ID         string
	DocumentID string
	Seq        int64
	Role       TurnRole
	Content    string
	// Citations are set for assistant turns produced by grounded answer
	// generation. Empty citations on an assistant turn mean the
	// orchestrator signaled insufficient context for the question.
	Citations []Citation
	CreatedAt time.Time
}

// NewConversationTurn creates a new ConversationTurn instance
func NewConversationTurn(
	id, documentID string,
	seq int64,
	role TurnRole,
	content string,
	citations []Citation,
	createdAt time.Time,
) *ConversationTurn {
	return &ConversationTurn{
		ID:         id,
		DocumentID: documentID,
		Seq:        seq,
		Role:       role,
		Content:    content,
		Citations:  citations,
		CreatedAt:  createdAt,
	}
}

// ValidateConversationTurn validates a ConversationTurn instance
func ValidateConversationTurn(t *ConversationTurn) error {
	if t == nil {
		return fmt.Errorf("conversation turn cannot be nil")
	}

	if t.ID == "" {
		return fmt.Errorf("conversation turn ID is required")
	}

	if t.DocumentID == "" {
		return fmt.Errorf("conversation turn DocumentID is required")
	}

	if t.Seq <= 0 {
		return fmt.Errorf("conversation turn Seq must be greater than 0")
	}

	if !isValidTurnRole(t.Role) {
		return fmt.Errorf("conversation turn Role is invalid: %s", t.Role)
	}

	if t.Content == "" {
		return fmt.Errorf("conversation turn Content is required")
	}

	if t.Role == TurnRoleUser && len(t.Citations) > 0 {
		return fmt.Errorf("user turns cannot carry citations")
	}

	return nil
}

// isValidTurnRole checks if a TurnRole is valid
func isValidTurnRole(r TurnRole) bool {
	switch r {
	case TurnRoleUser, TurnRoleAssistant:
		return true
	}
	return false
}
