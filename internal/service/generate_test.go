package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/pagetutor/pagetutor/internal/domain"
	"github.com/pagetutor/pagetutor/internal/openai"
)

// MockCompletionClient is a mock implementation of CompletionClientInterface
type MockCompletionClient struct {
	mock.Mock
}

func (m *MockCompletionClient) Complete(ctx context.Context, req openai.CompletionRequest) (*openai.CompletionResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*openai.CompletionResponse), args.Error(1)
}

// MockRetriever is a mock implementation of RetrieverInterface
type MockRetriever struct {
	mock.Mock
}

func (m *MockRetriever) Retrieve(ctx context.Context, documentID, query string, k int) ([]*domain.RetrievalResult, error) {
	args := m.Called(ctx, documentID, query, k)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.RetrievalResult), args.Error(1)
}

// MockArtifactRepository is a mock implementation of ArtifactRepositoryInterface
type MockArtifactRepository struct {
	mock.Mock
}

func (m *MockArtifactRepository) Insert(ctx context.Context, a *domain.Artifact) error {
	args := m.Called(ctx, a)
	return args.Error(0)
}

func (m *MockArtifactRepository) ListByDocument(ctx context.Context, documentID string, kind domain.ArtifactKind) ([]*domain.Artifact, error) {
	args := m.Called(ctx, documentID, kind)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Artifact), args.Error(1)
}

// MockConversationRepository is a mock implementation of ConversationRepositoryInterface
type MockConversationRepository struct {
	mock.Mock
}

func (m *MockConversationRepository) Append(ctx context.Context, turn *domain.ConversationTurn) error {
	args := m.Called(ctx, turn)
	return args.Error(0)
}

func (m *MockConversationRepository) ListByDocument(ctx context.Context, documentID string, afterSeq int64, limit int) (*TurnPageResult, error) {
	args := m.Called(ctx, documentID, afterSeq, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*TurnPageResult), args.Error(1)
}

// testGenerationConfig disables backoff retries so failure paths stay fast.
func testGenerationConfig() GenerationConfig {
	cfg := DefaultGenerationConfig()
	cfg.MaxRetries = 0
	return cfg
}

type generationFixture struct {
	docRepo      *MockDocumentRepository
	chunkRepo    *MockChunkRepository
	artifactRepo *MockArtifactRepository
	turnRepo     *MockConversationRepository
	retriever    *MockRetriever
	completions  *MockCompletionClient
	txRunner     *testTxRunner
	service      *GenerationService
}

func newGenerationFixture(cfg GenerationConfig, uuids ...string) *generationFixture {
	f := &generationFixture{
		docRepo:      new(MockDocumentRepository),
		chunkRepo:    new(MockChunkRepository),
		artifactRepo: new(MockArtifactRepository),
		turnRepo:     new(MockConversationRepository),
		retriever:    new(MockRetriever),
		completions:  new(MockCompletionClient),
	}
	f.txRunner = &testTxRunner{repos: &testTxRepos{
		documents: f.docRepo,
		chunks:    f.chunkRepo,
		artifacts: f.artifactRepo,
		turns:     f.turnRepo,
	}}
	f.service = NewGenerationServiceWithUUIDGen(
		f.docRepo, f.chunkRepo, f.artifactRepo, f.txRunner,
		f.retriever, f.completions, cfg, NewMockUUIDGenerator(uuids...),
	)
	return f
}

func indexedChunks(docID string) []*domain.Chunk {
	return []*domain.Chunk{
		{ID: "c-1", DocumentID: docID, SeqIndex: 0, Text: "first topic", CharStart: 0, CharEnd: 11, PageStart: 1, PageEnd: 1, Embedding: []float32{1, 0, 0}},
		{ID: "c-2", DocumentID: docID, SeqIndex: 1, Text: "still first", CharStart: 11, CharEnd: 22, PageStart: 1, PageEnd: 2, Embedding: []float32{0.99, 0.01, 0}},
	}
}

func TestGenerationService_Answer(t *testing.T) {
	ctx := context.Background()

	t.Run("records both turns and cites retrieved pages", func(t *testing.T) {
		f := newGenerationFixture(testGenerationConfig(), "user-turn-1", "assistant-turn-1")

		results := []*domain.RetrievalResult{
			{ChunkID: "c-1", SeqIndex: 0, Text: "entropy is disorder", Score: 0.88, Citation: domain.Citation{PageStart: 4, PageEnd: 4}},
			{ChunkID: "c-2", SeqIndex: 1, Text: "entropy never decreases", Score: 0.71, Citation: domain.Citation{PageStart: 5, PageEnd: 6}},
		}
		f.retriever.On("Retrieve", mock.Anything, "doc-1", "what is entropy", 3).Return(results, nil)

		f.completions.On("Complete", mock.Anything, mock.MatchedBy(func(req openai.CompletionRequest) bool {
			return len(req.Messages) == 2 && req.Messages[0].Role == "system" && !req.JSONMode
		})).Return(&openai.CompletionResponse{Content: "Entropy measures disorder (page 4)."}, nil)

		f.turnRepo.On("Append", mock.Anything, mock.MatchedBy(func(turn *domain.ConversationTurn) bool {
			return turn.ID == "user-turn-1" && turn.Role == domain.TurnRoleUser && turn.Content == "what is entropy"
		})).Return(nil)
		f.turnRepo.On("Append", mock.Anything, mock.MatchedBy(func(turn *domain.ConversationTurn) bool {
			return turn.ID == "assistant-turn-1" && turn.Role == domain.TurnRoleAssistant && len(turn.Citations) == 2
		})).Return(nil)

		turn, err := f.service.Answer(ctx, AnswerInput{DocumentID: "doc-1", Question: "what is entropy", K: 3})

		require.NoError(t, err)
		assert.Equal(t, domain.TurnRoleAssistant, turn.Role)
		assert.Equal(t, "Entropy measures disorder (page 4).", turn.Content)
		assert.Equal(t, []domain.Citation{{PageStart: 4, PageEnd: 4}, {PageStart: 5, PageEnd: 6}}, turn.Citations)
		assert.True(t, f.txRunner.called)
		f.turnRepo.AssertExpectations(t)
	})

	t.Run("rejects an empty question", func(t *testing.T) {
		f := newGenerationFixture(testGenerationConfig())

		_, err := f.service.Answer(ctx, AnswerInput{DocumentID: "doc-1", Question: "   "})

		require.Error(t, err)
		var domainErr *domain.DomainError
		require.ErrorAs(t, err, &domainErr)
		assert.Equal(t, domain.ErrCodeValidation, domainErr.Code)
		f.retriever.AssertNotCalled(t, "Retrieve", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("records a canned turn when nothing clears the relevance threshold", func(t *testing.T) {
		f := newGenerationFixture(testGenerationConfig(), "user-turn-1", "assistant-turn-1")

		results := []*domain.RetrievalResult{
			{ChunkID: "c-1", Score: 0.05, Citation: domain.Citation{PageStart: 1, PageEnd: 1}},
		}
		f.retriever.On("Retrieve", mock.Anything, "doc-1", "capital of mars", 0).Return(results, nil)

		f.turnRepo.On("Append", mock.Anything, mock.Anything).Return(nil).Twice()

		turn, err := f.service.Answer(ctx, AnswerInput{DocumentID: "doc-1", Question: "capital of mars"})

		assert.ErrorIs(t, err, domain.ErrNoRelevantContext)
		require.NotNil(t, turn)
		assert.Equal(t, InsufficientContextMessage, turn.Content)
		assert.Empty(t, turn.Citations)
		f.completions.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything)
		f.turnRepo.AssertExpectations(t)
	})

	t.Run("maps deadline expiry to a timeout error", func(t *testing.T) {
		f := newGenerationFixture(testGenerationConfig(), "user-turn-1", "assistant-turn-1")

		results := []*domain.RetrievalResult{
			{ChunkID: "c-1", Score: 0.9, Citation: domain.Citation{PageStart: 1, PageEnd: 1}},
		}
		f.retriever.On("Retrieve", mock.Anything, "doc-1", "slow question", 0).Return(results, nil)
		f.completions.On("Complete", mock.Anything, mock.Anything).Return(nil, context.DeadlineExceeded)

		_, err := f.service.Answer(ctx, AnswerInput{DocumentID: "doc-1", Question: "slow question", Timeout: time.Minute})

		assert.ErrorIs(t, err, domain.ErrGenerationTimeout)
		f.turnRepo.AssertNotCalled(t, "Append", mock.Anything, mock.Anything)
	})

	t.Run("wraps completion failures as upstream model errors", func(t *testing.T) {
		f := newGenerationFixture(testGenerationConfig(), "user-turn-1", "assistant-turn-1")

		results := []*domain.RetrievalResult{
			{ChunkID: "c-1", Score: 0.9, Citation: domain.Citation{PageStart: 1, PageEnd: 1}},
		}
		f.retriever.On("Retrieve", mock.Anything, "doc-1", "question", 0).Return(results, nil)
		f.completions.On("Complete", mock.Anything, mock.Anything).Return(nil, errors.New("500 internal error"))

		_, err := f.service.Answer(ctx, AnswerInput{DocumentID: "doc-1", Question: "question"})

		assert.ErrorIs(t, err, domain.ErrUpstreamModelFailure)
	})
}

func TestGenerationService_Notes(t *testing.T) {
	ctx := context.Background()

	t.Run("generates one note per topic segment and inserts them atomically", func(t *testing.T) {
		f := newGenerationFixture(testGenerationConfig(), "note-1")

		doc := indexedTestDocument("doc-1", "text-embedding-3-small")
		doc.RawText = "first topicstill first"
		f.docRepo.On("GetByID", mock.Anything, "doc-1").Return(doc, nil)
		f.chunkRepo.On("ListByDocument", mock.Anything, "doc-1").Return(indexedChunks("doc-1"), nil)

		f.completions.On("Complete", mock.Anything, mock.MatchedBy(func(req openai.CompletionRequest) bool {
			return req.JSONMode
		})).Return(&openai.CompletionResponse{
			Content: `{"topic":"First topic","summary":"Covers the first topic.","key_points":["point one"]}`,
		}, nil)

		f.artifactRepo.On("Insert", mock.Anything, mock.MatchedBy(func(a *domain.Artifact) bool {
			return a.ID == "note-1" &&
				a.Kind == domain.ArtifactKindNote &&
				len(a.Citations) == 1 &&
				a.Citations[0] == domain.Citation{PageStart: 1, PageEnd: 2} &&
				len(a.SourceChunkIDs) == 2
		})).Return(nil)

		artifacts, err := f.service.Notes(ctx, "doc-1")

		require.NoError(t, err)
		require.Len(t, artifacts, 1)
		assert.True(t, f.txRunner.called)
		f.artifactRepo.AssertExpectations(t)
	})

	t.Run("persists nothing when a generated note fails validation", func(t *testing.T) {
		f := newGenerationFixture(testGenerationConfig(), "note-1")

		doc := indexedTestDocument("doc-1", "text-embedding-3-small")
		doc.RawText = "first topicstill first"
		f.docRepo.On("GetByID", mock.Anything, "doc-1").Return(doc, nil)
		f.chunkRepo.On("ListByDocument", mock.Anything, "doc-1").Return(indexedChunks("doc-1"), nil)

		// Missing required summary.
		f.completions.On("Complete", mock.Anything, mock.Anything).Return(&openai.CompletionResponse{
			Content: `{"topic":"First topic"}`,
		}, nil)

		_, err := f.service.Notes(ctx, "doc-1")

		assert.ErrorIs(t, err, domain.ErrUpstreamModelFailure)
		f.artifactRepo.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
	})

	t.Run("requires a published index", func(t *testing.T) {
		f := newGenerationFixture(testGenerationConfig())

		f.docRepo.On("GetByID", mock.Anything, "doc-1").Return(&domain.Document{
			ID:     "doc-1",
			Status: domain.DocumentStatusExtracted,
		}, nil)

		_, err := f.service.Notes(ctx, "doc-1")

		assert.ErrorIs(t, err, domain.ErrDocumentNotIndexed)
	})
}

func TestGenerationService_Quiz(t *testing.T) {
	ctx := context.Background()

	t.Run("generates validated quiz items for one segment", func(t *testing.T) {
		f := newGenerationFixture(testGenerationConfig(), "quiz-1", "quiz-2")

		doc := indexedTestDocument("doc-1", "text-embedding-3-small")
		doc.RawText = "first topicstill first"
		f.docRepo.On("GetByID", mock.Anything, "doc-1").Return(doc, nil)
		f.chunkRepo.On("ListByDocument", mock.Anything, "doc-1").Return(indexedChunks("doc-1"), nil)

		f.completions.On("Complete", mock.Anything, mock.MatchedBy(func(req openai.CompletionRequest) bool {
			return req.JSONMode
		})).Return(&openai.CompletionResponse{
			Content: `{"mcq":[{"question":"What is covered?","options":["topic one","topic two"],"correct_index":0,"explanation":"The excerpt covers topic one."}],"short":[{"question":"Summarize the excerpt.","sample_answer":"It covers topic one."}]}`,
		}, nil)

		f.artifactRepo.On("Insert", mock.Anything, mock.MatchedBy(func(a *domain.Artifact) bool {
			return a.Kind == domain.ArtifactKindQuizMCQ && len(a.SourceChunkIDs) == 2
		})).Return(nil)
		f.artifactRepo.On("Insert", mock.Anything, mock.MatchedBy(func(a *domain.Artifact) bool {
			return a.Kind == domain.ArtifactKindQuizShort
		})).Return(nil)

		artifacts, err := f.service.Quiz(ctx, QuizInput{DocumentID: "doc-1"})

		require.NoError(t, err)
		require.Len(t, artifacts, 2)
		f.artifactRepo.AssertExpectations(t)
	})

	t.Run("regenerating a segment retains both quiz batches", func(t *testing.T) {
		f := newGenerationFixture(testGenerationConfig(), "quiz-1", "quiz-2", "quiz-3", "quiz-4")

		doc := indexedTestDocument("doc-1", "text-embedding-3-small")
		doc.RawText = "first topicstill first"
		f.docRepo.On("GetByID", mock.Anything, "doc-1").Return(doc, nil)
		f.chunkRepo.On("ListByDocument", mock.Anything, "doc-1").Return(indexedChunks("doc-1"), nil)

		f.completions.On("Complete", mock.Anything, mock.Anything).Return(&openai.CompletionResponse{
			Content: `{"mcq":[{"question":"What is covered?","options":["topic one","topic two"],"correct_index":0,"explanation":"The excerpt covers topic one."}],"short":[{"question":"Summarize the excerpt.","sample_answer":"It covers topic one."}]}`,
		}, nil).Twice()

		var inserted []*domain.Artifact
		f.artifactRepo.On("Insert", mock.Anything, mock.AnythingOfType("*domain.Artifact")).Run(func(args mock.Arguments) {
			inserted = append(inserted, args.Get(1).(*domain.Artifact))
		}).Return(nil).Times(4)

		first, err := f.service.Quiz(ctx, QuizInput{DocumentID: "doc-1", Segment: 0})
		require.NoError(t, err)
		second, err := f.service.Quiz(ctx, QuizInput{DocumentID: "doc-1", Segment: 0})
		require.NoError(t, err)

		// Both batches are inserted; nothing replaces the first one.
		require.Len(t, inserted, 4)
		assert.NotEqual(t, first[0].ID, second[0].ID)
		for _, a := range second {
			assert.Equal(t, first[0].Citations, a.Citations)
			assert.Equal(t, first[0].SourceChunkIDs, a.SourceChunkIDs)
		}
		f.artifactRepo.AssertExpectations(t)
	})

	t.Run("rejects an out-of-range segment", func(t *testing.T) {
		f := newGenerationFixture(testGenerationConfig())

		doc := indexedTestDocument("doc-1", "text-embedding-3-small")
		doc.RawText = "first topicstill first"
		f.docRepo.On("GetByID", mock.Anything, "doc-1").Return(doc, nil)
		f.chunkRepo.On("ListByDocument", mock.Anything, "doc-1").Return(indexedChunks("doc-1"), nil)

		_, err := f.service.Quiz(ctx, QuizInput{DocumentID: "doc-1", Segment: 7})

		assert.ErrorIs(t, err, domain.ErrSegmentNotFound)
		f.completions.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything)
	})

	t.Run("treats an empty quiz response as an upstream failure", func(t *testing.T) {
		f := newGenerationFixture(testGenerationConfig())

		doc := indexedTestDocument("doc-1", "text-embedding-3-small")
		doc.RawText = "first topicstill first"
		f.docRepo.On("GetByID", mock.Anything, "doc-1").Return(doc, nil)
		f.chunkRepo.On("ListByDocument", mock.Anything, "doc-1").Return(indexedChunks("doc-1"), nil)
		f.completions.On("Complete", mock.Anything, mock.Anything).Return(&openai.CompletionResponse{
			Content: `{"mcq":[],"short":[]}`,
		}, nil)

		_, err := f.service.Quiz(ctx, QuizInput{DocumentID: "doc-1"})

		assert.ErrorIs(t, err, domain.ErrUpstreamModelFailure)
	})

	t.Run("persists nothing when any item fails validation", func(t *testing.T) {
		f := newGenerationFixture(testGenerationConfig(), "quiz-1")

		doc := indexedTestDocument("doc-1", "text-embedding-3-small")
		doc.RawText = "first topicstill first"
		f.docRepo.On("GetByID", mock.Anything, "doc-1").Return(doc, nil)
		f.chunkRepo.On("ListByDocument", mock.Anything, "doc-1").Return(indexedChunks("doc-1"), nil)

		// Single option fails the two-option minimum.
		f.completions.On("Complete", mock.Anything, mock.Anything).Return(&openai.CompletionResponse{
			Content: `{"mcq":[{"question":"?","options":["only"],"correct_index":0,"explanation":"e"}],"short":[]}`,
		}, nil)

		_, err := f.service.Quiz(ctx, QuizInput{DocumentID: "doc-1"})

		assert.ErrorIs(t, err, domain.ErrUpstreamModelFailure)
		f.artifactRepo.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
	})
}

func TestGenerationService_ListArtifacts(t *testing.T) {
	ctx := context.Background()

	t.Run("lists artifacts filtered by kind", func(t *testing.T) {
		f := newGenerationFixture(testGenerationConfig())

		f.docRepo.On("GetByID", mock.Anything, "doc-1").Return(&domain.Document{ID: "doc-1"}, nil)
		expected := []*domain.Artifact{{ID: "art-1", Kind: domain.ArtifactKindNote}}
		f.artifactRepo.On("ListByDocument", mock.Anything, "doc-1", domain.ArtifactKindNote).Return(expected, nil)

		artifacts, err := f.service.ListArtifacts(ctx, "doc-1", domain.ArtifactKindNote)

		require.NoError(t, err)
		assert.Equal(t, expected, artifacts)
	})

	t.Run("returns not found for an unknown document", func(t *testing.T) {
		f := newGenerationFixture(testGenerationConfig())

		f.docRepo.On("GetByID", mock.Anything, "missing").Return(nil, domain.ErrDocumentNotFound)

		_, err := f.service.ListArtifacts(ctx, "missing", "")

		assert.ErrorIs(t, err, domain.ErrDocumentNotFound)
	})
}

func TestCitationsFromResults(t *testing.T) {
	results := []*domain.RetrievalResult{
		{Citation: domain.Citation{PageStart: 4, PageEnd: 4}},
		{Citation: domain.Citation{PageStart: 1, PageEnd: 2}},
		{Citation: domain.Citation{PageStart: 4, PageEnd: 4}},
	}

	citations := citationsFromResults(results)

	assert.Equal(t, []domain.Citation{
		{PageStart: 4, PageEnd: 4},
		{PageStart: 1, PageEnd: 2},
	}, citations)
}

func TestFormatPageRange(t *testing.T) {
	assert.Equal(t, "Page 3", formatPageRange(domain.Citation{PageStart: 3, PageEnd: 3}))
	assert.Equal(t, "Pages 3-5", formatPageRange(domain.Citation{PageStart: 3, PageEnd: 5}))
}
