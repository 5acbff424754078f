package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/pagetutor/pagetutor/internal/domain"
	"github.com/pagetutor/pagetutor/internal/openai"
	"github.com/pagetutor/pagetutor/internal/telemetry"
)

// InsufficientContextMessage is the assistant content recorded when no
// retrieved chunk scores above the relevance threshold. The turn carries no
// citations; callers distinguish it by the NO_RELEVANT_CONTEXT error code.
const InsufficientContextMessage = "I could not find anything in this document relevant to your question. Try rephrasing it, or ask about a topic the document covers."

// CompletionClientInterface defines the interface for chat completion calls
type CompletionClientInterface interface {
	Complete(ctx context.Context, req openai.CompletionRequest) (*openai.CompletionResponse, error)
}

// RetrieverInterface defines the interface for document-scoped retrieval
type RetrieverInterface interface {
	Retrieve(ctx context.Context, documentID, query string, k int) ([]*domain.RetrievalResult, error)
}

// ArtifactRepositoryInterface defines the repository interface for artifact persistence
type ArtifactRepositoryInterface interface {
	Insert(ctx context.Context, a *domain.Artifact) error
	ListByDocument(ctx context.Context, documentID string, kind domain.ArtifactKind) ([]*domain.Artifact, error)
}

// GenerationConfig controls grounded generation behavior.
type GenerationConfig struct {
	// MinScore is the similarity threshold below which retrieved chunks are
	// considered irrelevant to the question.
	MinScore float32
	// Timeout bounds a single generation operation end to end.
	Timeout time.Duration
	// MaxRetries bounds the exponential backoff around upstream model calls.
	MaxRetries uint64
	Segment    SegmentConfig
}

// DefaultGenerationConfig returns the default generation configuration
func DefaultGenerationConfig() GenerationConfig {
	return GenerationConfig{
		MinScore:   0.25,
		Timeout:    60 * time.Second,
		MaxRetries: 3,
		Segment:    DefaultSegmentConfig(),
	}
}

// GenerationService composes grounded prompts from retrieved chunks and
// produces answers, study notes, and practice quizzes. Generated output is
// persisted only after it parses and validates; a failed generation leaves
// no partial artifacts behind.
type GenerationService struct {
	docRepo      DocumentRepositoryInterface
	chunkRepo    ChunkRepositoryInterface
	artifactRepo ArtifactRepositoryInterface
	txRunner     TxRunner
	retriever    RetrieverInterface
	completions  CompletionClientInterface
	uuidGen      UUIDGenerator
	cfg          GenerationConfig
}

// NewGenerationService creates a new GenerationService instance
func NewGenerationService(
	docRepo DocumentRepositoryInterface,
	chunkRepo ChunkRepositoryInterface,
	artifactRepo ArtifactRepositoryInterface,
	txRunner TxRunner,
	retriever RetrieverInterface,
	completions CompletionClientInterface,
	cfg GenerationConfig,
) *GenerationService {
	return &GenerationService{
		docRepo:      docRepo,
		chunkRepo:    chunkRepo,
		artifactRepo: artifactRepo,
		txRunner:     txRunner,
		retriever:    retriever,
		completions:  completions,
		uuidGen:      &DefaultUUIDGenerator{},
		cfg:          cfg,
	}
}

// NewGenerationServiceWithUUIDGen creates a new GenerationService with custom UUID generator (for testing)
func NewGenerationServiceWithUUIDGen(
	docRepo DocumentRepositoryInterface,
	chunkRepo ChunkRepositoryInterface,
	artifactRepo ArtifactRepositoryInterface,
	txRunner TxRunner,
	retriever RetrieverInterface,
	completions CompletionClientInterface,
	cfg GenerationConfig,
	uuidGen UUIDGenerator,
) *GenerationService {
	s := NewGenerationService(docRepo, chunkRepo, artifactRepo, txRunner, retriever, completions, cfg)
	s.uuidGen = uuidGen
	return s
}

// AnswerInput represents the input for answering a question about a document
type AnswerInput struct {
	DocumentID string
	Question   string
	K          int
	// Timeout overrides the configured generation timeout when positive.
	Timeout time.Duration
}

// Answer retrieves the document chunks most similar to the question and
// produces a grounded assistant turn citing their page ranges. The user turn
// and the assistant turn are appended together. When no chunk clears the
// relevance threshold, an assistant turn with no citations is recorded and
// ErrNoRelevantContext is returned alongside it.
func (s *GenerationService) Answer(ctx context.Context, input AnswerInput) (*domain.ConversationTurn, error) {
	ctx, span := telemetry.StartSpan(ctx, "GenerationService.Answer", telemetry.SpanAttributes{
		DocumentID: input.DocumentID,
		Operation:  "answer",
	})
	defer span.End()

	if strings.TrimSpace(input.Question) == "" {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "question is required")
	}

	ctx, cancel := s.withTimeout(ctx, input.Timeout)
	defer cancel()

	results, err := s.retriever.Retrieve(ctx, input.DocumentID, input.Question, input.K)
	if err != nil {
		return nil, err
	}

	relevant := make([]*domain.RetrievalResult, 0, len(results))
	for _, r := range results {
		if r.Score >= s.cfg.MinScore {
			relevant = append(relevant, r)
		}
	}

	now := time.Now().UTC()
	userTurn := domain.NewConversationTurn(
		s.uuidGen.NewString(), input.DocumentID, 0,
		domain.TurnRoleUser, input.Question, nil, now,
	)

	if len(relevant) == 0 {
		assistantTurn := domain.NewConversationTurn(
			s.uuidGen.NewString(), input.DocumentID, 0,
			domain.TurnRoleAssistant, InsufficientContextMessage, nil, now,
		)
		if err := s.appendTurns(ctx, userTurn, assistantTurn); err != nil {
			return nil, err
		}
		return assistantTurn, domain.ErrNoRelevantContext
	}

	resp, err := s.complete(ctx, openai.CompletionRequest{
		Messages: []openai.Message{
			{Role: "system", Content: answerSystemPrompt},
			{Role: "user", Content: buildAnswerPrompt(input.Question, relevant)},
		},
		Temperature: 0.2,
	})
	if err != nil {
		return nil, err
	}

	assistantTurn := domain.NewConversationTurn(
		s.uuidGen.NewString(), input.DocumentID, 0,
		domain.TurnRoleAssistant, resp.Content, citationsFromResults(relevant), time.Now().UTC(),
	)

	if err := s.appendTurns(ctx, userTurn, assistantTurn); err != nil {
		return nil, err
	}

	return assistantTurn, nil
}

// Notes segments an indexed document into topics and generates one note
// artifact per segment. The whole batch is inserted in a single transaction:
// either every segment got a valid note or none was persisted.
func (s *GenerationService) Notes(ctx context.Context, documentID string) ([]*domain.Artifact, error) {
	ctx, span := telemetry.StartSpan(ctx, "GenerationService.Notes", telemetry.SpanAttributes{
		DocumentID: documentID,
		Operation:  "notes",
	})
	defer span.End()

	ctx, cancel := s.withTimeout(ctx, 0)
	defer cancel()

	doc, segments, err := s.loadSegments(ctx, documentID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	artifacts := make([]*domain.Artifact, 0, len(segments))
	for _, seg := range segments {
		resp, err := s.complete(ctx, openai.CompletionRequest{
			Messages: []openai.Message{
				{Role: "system", Content: noteSystemPrompt},
				{Role: "user", Content: buildSegmentPrompt("Write a study note for the following excerpt.", doc, seg)},
			},
			Temperature: 0.4,
			JSONMode:    true,
		})
		if err != nil {
			return nil, err
		}

		var payload domain.NotePayload
		if err := json.Unmarshal([]byte(resp.Content), &payload); err != nil {
			return nil, domain.NewDomainErrorWithCause(domain.ErrCodeUpstreamModel, "upstream model call failed", err)
		}
		if err := domain.ValidateNotePayload(&payload); err != nil {
			return nil, domain.NewDomainErrorWithCause(domain.ErrCodeUpstreamModel, "upstream model call failed", err)
		}

		artifact, err := domain.NewArtifact(
			s.uuidGen.NewString(), documentID, domain.ArtifactKindNote,
			payload, []domain.Citation{seg.Citation()}, seg.ChunkIDs(), now,
		)
		if err != nil {
			return nil, err
		}
		artifacts = append(artifacts, artifact)
	}

	if err := s.insertArtifacts(ctx, artifacts); err != nil {
		return nil, err
	}

	return artifacts, nil
}

// QuizInput represents the input for generating quiz artifacts
type QuizInput struct {
	DocumentID string
	// Segment selects the topic segment to quiz on (0-based). Defaults to
	// the first segment.
	Segment int
	// Count is the total number of questions to generate. Defaults to 4.
	Count int
}

// quizResponse is the JSON shape requested from the model in quiz mode.
type quizResponse struct {
	MCQ   []domain.QuizMCQPayload   `json:"mcq"`
	Short []domain.QuizShortPayload `json:"short"`
}

// Quiz generates practice questions for one topic segment of an indexed
// document. Every generated item cites the segment's page range and chunk
// ids; items are validated before any of them is persisted. Regeneration
// inserts new artifacts, earlier quizzes for the same segment are retained.
func (s *GenerationService) Quiz(ctx context.Context, input QuizInput) ([]*domain.Artifact, error) {
	ctx, span := telemetry.StartSpan(ctx, "GenerationService.Quiz", telemetry.SpanAttributes{
		DocumentID: input.DocumentID,
		Operation:  "quiz",
	})
	defer span.End()

	ctx, cancel := s.withTimeout(ctx, 0)
	defer cancel()

	doc, segments, err := s.loadSegments(ctx, input.DocumentID)
	if err != nil {
		return nil, err
	}

	if input.Segment < 0 || input.Segment >= len(segments) {
		return nil, domain.ErrSegmentNotFound
	}
	seg := segments[input.Segment]

	count := input.Count
	if count <= 0 {
		count = 4
	}

	resp, err := s.complete(ctx, openai.CompletionRequest{
		Messages: []openai.Message{
			{Role: "system", Content: quizSystemPrompt},
			{Role: "user", Content: buildSegmentPrompt(fmt.Sprintf("Write %d practice questions for the following excerpt.", count), doc, seg)},
		},
		Temperature: 0.6,
		JSONMode:    true,
	})
	if err != nil {
		return nil, err
	}

	var quiz quizResponse
	if err := json.Unmarshal([]byte(resp.Content), &quiz); err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeUpstreamModel, "upstream model call failed", err)
	}
	if len(quiz.MCQ)+len(quiz.Short) == 0 {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeUpstreamModel, "upstream model call failed", errors.New("model returned no quiz items"))
	}

	now := time.Now().UTC()
	citations := []domain.Citation{seg.Citation()}
	chunkIDs := seg.ChunkIDs()

	artifacts := make([]*domain.Artifact, 0, len(quiz.MCQ)+len(quiz.Short))
	for i := range quiz.MCQ {
		if err := domain.ValidateQuizMCQPayload(&quiz.MCQ[i]); err != nil {
			return nil, domain.NewDomainErrorWithCause(domain.ErrCodeUpstreamModel, "upstream model call failed", err)
		}
		artifact, err := domain.NewArtifact(
			s.uuidGen.NewString(), input.DocumentID, domain.ArtifactKindQuizMCQ,
			quiz.MCQ[i], citations, chunkIDs, now,
		)
		if err != nil {
			return nil, err
		}
		artifacts = append(artifacts, artifact)
	}
	for i := range quiz.Short {
		if err := domain.ValidateQuizShortPayload(&quiz.Short[i]); err != nil {
			return nil, domain.NewDomainErrorWithCause(domain.ErrCodeUpstreamModel, "upstream model call failed", err)
		}
		artifact, err := domain.NewArtifact(
			s.uuidGen.NewString(), input.DocumentID, domain.ArtifactKindQuizShort,
			quiz.Short[i], citations, chunkIDs, now,
		)
		if err != nil {
			return nil, err
		}
		artifacts = append(artifacts, artifact)
	}

	if err := s.insertArtifacts(ctx, artifacts); err != nil {
		return nil, err
	}

	return artifacts, nil
}

// ListArtifacts lists a document's generated artifacts, optionally filtered
// by kind (empty kind means all kinds).
func (s *GenerationService) ListArtifacts(ctx context.Context, documentID string, kind domain.ArtifactKind) ([]*domain.Artifact, error) {
	if _, err := s.docRepo.GetByID(ctx, documentID); err != nil {
		return nil, err
	}
	return s.artifactRepo.ListByDocument(ctx, documentID, kind)
}

// loadSegments loads an indexed document and segments its chunk sequence.
func (s *GenerationService) loadSegments(ctx context.Context, documentID string) (*domain.Document, []TopicSegment, error) {
	doc, err := s.docRepo.GetByID(ctx, documentID)
	if err != nil {
		return nil, nil, err
	}
	if !doc.Indexed() {
		return nil, nil, domain.ErrDocumentNotIndexed
	}

	chunks, err := s.chunkRepo.ListByDocument(ctx, documentID)
	if err != nil {
		return nil, nil, err
	}
	if len(chunks) == 0 {
		return nil, nil, domain.ErrChunkNotFound
	}

	return doc, SegmentChunks(chunks, s.cfg.Segment), nil
}

// complete calls the completion client with bounded exponential backoff
// and maps upstream failures to the domain error taxonomy.
func (s *GenerationService) complete(ctx context.Context, req openai.CompletionRequest) (*openai.CompletionResponse, error) {
	var resp *openai.CompletionResponse

	operation := func() error {
		var err error
		resp, err = s.completions.Complete(ctx, req)
		return err
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), s.cfg.MaxRetries), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, domain.ErrGenerationTimeout
		}
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeUpstreamModel, "upstream model call failed", err)
	}

	return resp, nil
}

// withTimeout applies the per-call override or the configured default.
func (s *GenerationService) withTimeout(ctx context.Context, override time.Duration) (context.Context, context.CancelFunc) {
	timeout := s.cfg.Timeout
	if override > 0 {
		timeout = override
	}
	if timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

// appendTurns appends turns to the document's conversation in one
// transaction. The repository serializes appends per document, so the turns
// receive consecutive sequence numbers.
func (s *GenerationService) appendTurns(ctx context.Context, turns ...*domain.ConversationTurn) error {
	return s.txRunner.WithTx(ctx, func(repos TxRepositories) error {
		for _, turn := range turns {
			if err := repos.Turns().Append(ctx, turn); err != nil {
				return err
			}
		}
		return nil
	})
}

// insertArtifacts inserts a generated batch in one transaction.
func (s *GenerationService) insertArtifacts(ctx context.Context, artifacts []*domain.Artifact) error {
	for _, a := range artifacts {
		if err := domain.ValidateArtifact(a); err != nil {
			return err
		}
	}
	return s.txRunner.WithTx(ctx, func(repos TxRepositories) error {
		for _, a := range artifacts {
			if err := repos.Artifacts().Insert(ctx, a); err != nil {
				return err
			}
		}
		return nil
	})
}

const answerSystemPrompt = `You are a study assistant answering questions about a single document. Answer only from the provided excerpts. If the excerpts do not contain the answer, say so. Mention page numbers when referring to specific content.`

const noteSystemPrompt = `You are a study assistant writing structured notes for a single document. Respond with a JSON object: {"topic": string, "summary": string, "key_points": [string], "worked_example": string, "glossary": [{"term": string, "definition": string}]}. Base everything strictly on the provided excerpt.`

const quizSystemPrompt = `You are a study assistant writing practice questions for a single document. Respond with a JSON object: {"mcq": [{"question": string, "options": [string], "correct_index": int, "explanation": string}], "short": [{"question": string, "sample_answer": string}]}. Every multiple-choice question must have at least two options and exactly one correct option; every item must be answerable from the provided excerpt alone.`

// buildAnswerPrompt formats retrieved chunks into a grounded answer prompt.
func buildAnswerPrompt(question string, results []*domain.RetrievalResult) string {
	var b strings.Builder
	b.WriteString("Excerpts from the document:\n\n")
	for _, r := range results {
		b.WriteString(fmt.Sprintf("[%s]\n%s\n\n", formatPageRange(r.Citation), r.Text))
	}
	b.WriteString("Question: ")
	b.WriteString(question)
	return b.String()
}

// buildSegmentPrompt formats one topic segment's text into a prompt. The
// segment text is sliced from the document's raw text so chunk overlap is
// not duplicated.
func buildSegmentPrompt(instruction string, doc *domain.Document, seg TopicSegment) string {
	runes := []rune(doc.RawText)
	start := seg.Chunks[0].CharStart
	end := seg.Chunks[len(seg.Chunks)-1].CharEnd
	if end > len(runes) {
		end = len(runes)
	}

	return fmt.Sprintf("%s\n\n[%s]\n%s", instruction, formatPageRange(seg.Citation()), string(runes[start:end]))
}

func formatPageRange(c domain.Citation) string {
	if c.PageEnd > c.PageStart {
		return fmt.Sprintf("Pages %d-%d", c.PageStart, c.PageEnd)
	}
	return fmt.Sprintf("Page %d", c.PageStart)
}

// citationsFromResults collects the distinct page-range citations of the
// results in rank order.
func citationsFromResults(results []*domain.RetrievalResult) []domain.Citation {
	seen := make(map[domain.Citation]struct{}, len(results))
	citations := make([]domain.Citation, 0, len(results))
	for _, r := range results {
		if _, ok := seen[r.Citation]; ok {
			continue
		}
		seen[r.Citation] = struct{}{}
		citations = append(citations, r.Citation)
	}
	return citations
}
