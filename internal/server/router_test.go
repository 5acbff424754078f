package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/pagetutor/pagetutor/internal/api/handlers"
	"github.com/pagetutor/pagetutor/internal/domain"
	"github.com/pagetutor/pagetutor/internal/service"
)

const testAPIKey = "pt_0123456789abcdef0123456789abcdef"

type MockDocumentService struct {
	mock.Mock
}

func (m *MockDocumentService) Ingest(ctx context.Context, input service.IngestInput) (*domain.Document, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Document), args.Error(1)
}

func (m *MockDocumentService) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Document), args.Error(1)
}

func (m *MockDocumentService) List(ctx context.Context, input service.ListDocumentsInput) (*service.ListDocumentsOutput, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.ListDocumentsOutput), args.Error(1)
}

func (m *MockDocumentService) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockDocumentService) DownloadURL(ctx context.Context, id string) (string, error) {
	args := m.Called(ctx, id)
	return args.String(0), args.Error(1)
}

type MockRetrieverService struct {
	mock.Mock
}

func (m *MockRetrieverService) Retrieve(ctx context.Context, documentID, query string, k int) ([]*domain.RetrievalResult, error) {
	args := m.Called(ctx, documentID, query, k)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.RetrievalResult), args.Error(1)
}

type MockGenerationService struct {
	mock.Mock
}

func (m *MockGenerationService) Answer(ctx context.Context, input service.AnswerInput) (*domain.ConversationTurn, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ConversationTurn), args.Error(1)
}

type MockConversationService struct {
	mock.Mock
}

func (m *MockConversationService) History(ctx context.Context, input service.HistoryInput) (*service.HistoryOutput, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.HistoryOutput), args.Error(1)
}

type MockStudyService struct {
	mock.Mock
}

func (m *MockStudyService) Notes(ctx context.Context, documentID string) ([]*domain.Artifact, error) {
	args := m.Called(ctx, documentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Artifact), args.Error(1)
}

func (m *MockStudyService) Quiz(ctx context.Context, input service.QuizInput) ([]*domain.Artifact, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Artifact), args.Error(1)
}

func (m *MockStudyService) ListArtifacts(ctx context.Context, documentID string, kind domain.ArtifactKind) ([]*domain.Artifact, error) {
	args := m.Called(ctx, documentID, kind)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Artifact), args.Error(1)
}

func setupRouter() (http.Handler, *MockDocumentService, *MockRetrieverService, *MockGenerationService, *MockConversationService, *MockStudyService) {
	docSvc := new(MockDocumentService)
	retrieverSvc := new(MockRetrieverService)
	generationSvc := new(MockGenerationService)
	conversationSvc := new(MockConversationService)
	studySvc := new(MockStudyService)

	cfg := RouterConfig{
		APIKey:           testAPIKey,
		DocumentHandler:  handlers.NewDocumentHandler(docSvc, 64*1024*1024),
		RetrievalHandler: handlers.NewRetrievalHandler(retrieverSvc),
		ChatHandler:      handlers.NewChatHandler(generationSvc, conversationSvc),
		StudyHandler:     handlers.NewStudyHandler(studySvc),
	}

	router := NewRouter(cfg)
	return router, docSvc, retrieverSvc, generationSvc, conversationSvc, studySvc
}

func authedRequest(method, path string, body *bytes.Buffer) *http.Request {
	if body == nil {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Authorization", "Bearer "+testAPIKey)
	return req
}

func TestRouter_HealthEndpoint(t *testing.T) {
	router, _, _, _, _, _ := setupRouter()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)
	data := resp["data"].(map[string]interface{})
	assert.Equal(t, "ok", data["status"])
}

func TestRouter_AuthenticatedRoutes_RequireAuth(t *testing.T) {
	router, _, _, _, _, _ := setupRouter()

	routes := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/documents"},
		{http.MethodGet, "/documents"},
		{http.MethodGet, "/documents/123"},
		{http.MethodDelete, "/documents/123"},
		{http.MethodGet, "/documents/123/download"},
		{http.MethodPost, "/documents/123/search"},
		{http.MethodPost, "/documents/123/ask"},
		{http.MethodGet, "/documents/123/history"},
		{http.MethodPost, "/documents/123/notes"},
		{http.MethodPost, "/documents/123/quiz"},
		{http.MethodGet, "/documents/123/artifacts"},
	}

	for _, route := range routes {
		t.Run(route.method+" "+route.path, func(t *testing.T) {
			req := httptest.NewRequest(route.method, route.path, nil)
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}
}

func TestRouter_Upload(t *testing.T) {
	router, docSvc, _, _, _, _ := setupRouter()

	now := time.Now().UTC()
	expected := &domain.Document{
		ID:        "doc-1",
		Filename:  "lecture.pdf",
		ByteSize:  10,
		Status:    domain.DocumentStatusExtracted,
		PageCount: 3,
		RawText:   "text",
		CreatedAt: now,
		UpdatedAt: now,
	}
	docSvc.On("Ingest", mock.Anything, mock.MatchedBy(func(input service.IngestInput) bool {
		return input.Filename == "lecture.pdf" && len(input.Data) > 0
	})).Return(expected, nil)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "lecture.pdf")
	require.NoError(t, err)
	_, err = part.Write([]byte("%PDF-1.4 stub"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := authedRequest(http.MethodPost, "/documents", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), "doc-1")
	docSvc.AssertExpectations(t)
}

func TestRouter_GetDocument(t *testing.T) {
	router, docSvc, _, _, _, _ := setupRouter()

	now := time.Now().UTC()
	expected := &domain.Document{
		ID:        "doc-1",
		Filename:  "lecture.pdf",
		ByteSize:  10,
		Status:    domain.DocumentStatusUploaded,
		CreatedAt: now,
		UpdatedAt: now,
	}
	docSvc.On("GetByID", mock.Anything, "doc-1").Return(expected, nil)

	req := authedRequest(http.MethodGet, "/documents/doc-1", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	docSvc.AssertExpectations(t)
}

func TestRouter_GetDocument_NotFound(t *testing.T) {
	router, docSvc, _, _, _, _ := setupRouter()

	docSvc.On("GetByID", mock.Anything, "missing").Return(nil, domain.ErrDocumentNotFound)

	req := authedRequest(http.MethodGet, "/documents/missing", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_Search(t *testing.T) {
	router, _, retrieverSvc, _, _, _ := setupRouter()

	results := []*domain.RetrievalResult{
		{ChunkID: "c-1", SeqIndex: 0, Text: "chunk text", Score: 0.92, Citation: domain.Citation{PageStart: 1, PageEnd: 2}},
	}
	retrieverSvc.On("Retrieve", mock.Anything, "doc-1", "what is entropy", 3).Return(results, nil)

	body := bytes.NewBufferString(`{"query": "what is entropy", "k": 3}`)
	req := authedRequest(http.MethodPost, "/documents/doc-1/search", body)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "c-1")
	assert.Contains(t, w.Body.String(), "page_start")
	retrieverSvc.AssertExpectations(t)
}

func TestRouter_Ask(t *testing.T) {
	router, _, _, generationSvc, _, _ := setupRouter()

	turn := &domain.ConversationTurn{
		ID:         "turn-2",
		DocumentID: "doc-1",
		Seq:        2,
		Role:       domain.TurnRoleAssistant,
		Content:    "Entropy measures disorder (page 4).",
		Citations:  []domain.Citation{{PageStart: 4, PageEnd: 4}},
		CreatedAt:  time.Now().UTC(),
	}
	generationSvc.On("Answer", mock.Anything, mock.MatchedBy(func(input service.AnswerInput) bool {
		return input.DocumentID == "doc-1" && input.Question == "what is entropy"
	})).Return(turn, nil)

	body := bytes.NewBufferString(`{"question": "what is entropy"}`)
	req := authedRequest(http.MethodPost, "/documents/doc-1/ask", body)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "turn-2")
	generationSvc.AssertExpectations(t)
}

func TestRouter_Ask_NoRelevantContext(t *testing.T) {
	router, _, _, generationSvc, _, _ := setupRouter()

	turn := &domain.ConversationTurn{
		ID:         "turn-2",
		DocumentID: "doc-1",
		Seq:        2,
		Role:       domain.TurnRoleAssistant,
		Content:    service.InsufficientContextMessage,
		CreatedAt:  time.Now().UTC(),
	}
	generationSvc.On("Answer", mock.Anything, mock.Anything).Return(turn, domain.ErrNoRelevantContext)

	body := bytes.NewBufferString(`{"question": "what is the capital of mars"}`)
	req := authedRequest(http.MethodPost, "/documents/doc-1/ask", body)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "NO_RELEVANT_CONTEXT")
	assert.Contains(t, w.Body.String(), "turn-2")
}

func TestRouter_History(t *testing.T) {
	router, _, _, _, conversationSvc, _ := setupRouter()

	output := &service.HistoryOutput{
		Items: []*domain.ConversationTurn{
			{ID: "turn-1", DocumentID: "doc-1", Seq: 1, Role: domain.TurnRoleUser, Content: "q", CreatedAt: time.Now().UTC()},
			{ID: "turn-2", DocumentID: "doc-1", Seq: 2, Role: domain.TurnRoleAssistant, Content: "a", CreatedAt: time.Now().UTC()},
		},
	}
	conversationSvc.On("History", mock.Anything, mock.MatchedBy(func(input service.HistoryInput) bool {
		return input.DocumentID == "doc-1"
	})).Return(output, nil)

	req := authedRequest(http.MethodGet, "/documents/doc-1/history", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "turn-1")
	assert.Contains(t, w.Body.String(), "turn-2")
	conversationSvc.AssertExpectations(t)
}

func TestRouter_Quiz(t *testing.T) {
	router, _, _, _, _, studySvc := setupRouter()

	artifact := &domain.Artifact{
		ID:             "art-1",
		DocumentID:     "doc-1",
		Kind:           domain.ArtifactKindQuizMCQ,
		Payload:        json.RawMessage(`{"question":"?","options":["a","b"],"correct_index":0,"explanation":"e"}`),
		Citations:      []domain.Citation{{PageStart: 1, PageEnd: 3}},
		SourceChunkIDs: []string{"c-1"},
		CreatedAt:      time.Now().UTC(),
	}
	studySvc.On("Quiz", mock.Anything, service.QuizInput{DocumentID: "doc-1", Segment: 1, Count: 2}).Return([]*domain.Artifact{artifact}, nil)

	body := bytes.NewBufferString(`{"segment": 1, "count": 2}`)
	req := authedRequest(http.MethodPost, "/documents/doc-1/quiz", body)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), "art-1")
	studySvc.AssertExpectations(t)
}

func TestRouter_Artifacts_InvalidKind(t *testing.T) {
	router, _, _, _, _, _ := setupRouter()

	req := authedRequest(http.MethodGet, "/documents/doc-1/artifacts?kind=poem", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "invalid artifact kind"))
}
