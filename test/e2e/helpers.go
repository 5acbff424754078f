//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pagetutor/pagetutor/internal/api/handlers"
	"github.com/pagetutor/pagetutor/internal/extract"
	"github.com/pagetutor/pagetutor/internal/jobs"
	"github.com/pagetutor/pagetutor/internal/openai"
	"github.com/pagetutor/pagetutor/internal/repository"
	"github.com/pagetutor/pagetutor/internal/server"
	"github.com/pagetutor/pagetutor/internal/service"
	"github.com/pagetutor/pagetutor/internal/storage"
	"github.com/pagetutor/pagetutor/internal/testutil"
)

const testAPIKey = "pt_e2e_0123456789abcdef0123456789abcdef"

// E2ETestEnv holds all resources needed for end-to-end tests.
type E2ETestEnv struct {
	T           *testing.T
	Ctx         context.Context
	PostgresC   *testutil.PostgresContainer
	RustFSC     *testutil.RustFSContainer
	Pool        *pgxpool.Pool
	S3Client    *storage.S3Client
	Server      *httptest.Server
	HTTPClient  *http.Client
	indexWorker *jobs.IndexWorker
}

// stubEmbedder produces deterministic bag-of-words embeddings so retrieval
// quality tracks word overlap without calling a real model.
type stubEmbedder struct {
	dims int
}

func (e *stubEmbedder) GenerateEmbedding(_ context.Context, text string) ([]float32, error) {
	v := make([]float32, e.dims)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,;:!?()\"'")
		if word == "" {
			continue
		}
		h := fnv.New32a()
		h.Write([]byte(word))
		v[h.Sum32()%uint32(e.dims)]++
	}

	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if norm == 0 {
		v[0] = 1
		return v, nil
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range v {
		v[i] *= scale
	}
	return v, nil
}

func (e *stubEmbedder) ModelVersion() string { return "stub-embedding-v1" }

func (e *stubEmbedder) Dimensions() int { return e.dims }

// stubCompletions answers with canned content keyed off the system prompt so
// generation flows run end to end without an upstream model.
type stubCompletions struct{}

func (c *stubCompletions) Complete(_ context.Context, req openai.CompletionRequest) (*openai.CompletionResponse, error) {
	system := ""
	if len(req.Messages) > 0 {
		system = req.Messages[0].Content
	}

	switch {
	case req.JSONMode && strings.Contains(system, "practice questions"):
		return &openai.CompletionResponse{
			Content: `{
				"mcq": [{"question": "What does entropy measure?", "options": ["Disorder", "Pressure"], "correct_index": 0, "explanation": "Entropy measures disorder."}],
				"short": [{"question": "State the second law.", "sample_answer": "Entropy of an isolated system never decreases."}]
			}`,
			FinishReason: "stop",
		}, nil
	case req.JSONMode:
		return &openai.CompletionResponse{
			Content:      `{"topic": "Thermodynamics", "summary": "Covers entropy and energy transfer.", "key_points": ["Entropy measures disorder", "Energy is conserved"]}`,
			FinishReason: "stop",
		}, nil
	default:
		return &openai.CompletionResponse{
			Content:      "Entropy measures the disorder of a system (page 1).",
			FinishReason: "stop",
		}, nil
	}
}

// stubExtractor returns fixed two-page study text for any PDF payload, so
// the suite covers the pipeline without depending on PDF rendering.
type stubExtractor struct{}

const (
	pageOneText = "Entropy measures the disorder of a thermodynamic system. The second law states that the entropy of an isolated system never decreases over time."
	pageTwoText = "Enthalpy combines internal energy with pressure and volume. Heat transfer at constant pressure changes the enthalpy of the system directly."
)

func (e *stubExtractor) Extract(_ context.Context, _ []byte) (*extract.Result, error) {
	text := pageOneText + "\n" + pageTwoText
	return &extract.Result{
		Text:        text,
		PageCount:   2,
		PageOffsets: []int{0, len([]rune(pageOneText)) + 1},
	}, nil
}

// SetupE2EEnv starts containers, wires the full service stack with stub
// model clients, and serves the API over a test listener.
func SetupE2EEnv(t *testing.T) *E2ETestEnv {
	ctx := context.Background()

	pgC := testutil.NewPostgresContainer(ctx, t)
	s3C := testutil.NewRustFSContainer(ctx, t)

	pool := testutil.NewTestPool(ctx, t, pgC, "../../migrations")

	s3Client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
		Endpoint:        s3C.Endpoint(),
		Region:          "us-east-1",
		AccessKeyID:     "rustfsadmin",
		SecretAccessKey: "rustfsadmin",
		Bucket:          "test-documents",
		UsePathStyle:    true,
	})
	if err != nil {
		t.Fatalf("failed to create S3 client: %v", err)
	}
	if err := s3Client.EnsureBucket(ctx); err != nil {
		t.Fatalf("failed to create bucket: %v", err)
	}

	docRepo := repository.NewDocumentRepository(pool)
	chunkRepo := repository.NewChunkRepository(pool)
	convRepo := repository.NewConversationRepository(pool)
	artifactRepo := repository.NewArtifactRepository(pool)
	jobRepo := repository.NewIndexJobRepository(pool)
	txRunner := repository.NewTxRunner(pool)

	embedder := &stubEmbedder{dims: 1536}
	completions := &stubCompletions{}

	documentSvc := service.NewDocumentService(docRepo, txRunner, &stubExtractor{}, s3Client, 30*time.Second)
	indexingSvc := service.NewIndexingService(docRepo, txRunner, embedder, service.ChunkConfig{
		MaxChars: 120,
		MinChars: 40,
		Overlap:  20,
	})
	retrieverSvc := service.NewRetrieverService(docRepo, chunkRepo, embedder, 5)

	genCfg := service.DefaultGenerationConfig()
	genCfg.MinScore = 0.05
	genCfg.MaxRetries = 0
	generationSvc := service.NewGenerationService(docRepo, chunkRepo, artifactRepo, txRunner, retrieverSvc, completions, genCfg)
	conversationSvc := service.NewConversationService(docRepo, convRepo)

	router := server.NewRouter(server.RouterConfig{
		APIKey:           testAPIKey,
		MaxBodyBytes:     16 << 20,
		DocumentHandler:  handlers.NewDocumentHandler(documentSvc, 16<<20),
		RetrievalHandler: handlers.NewRetrievalHandler(retrieverSvc),
		ChatHandler:      handlers.NewChatHandler(generationSvc, conversationSvc),
		StudyHandler:     handlers.NewStudyHandler(generationSvc),
	})

	srv := httptest.NewServer(router)

	env := &E2ETestEnv{
		T:           t,
		Ctx:         ctx,
		PostgresC:   pgC,
		RustFSC:     s3C,
		Pool:        pool,
		S3Client:    s3Client,
		Server:      srv,
		HTTPClient:  &http.Client{Timeout: 30 * time.Second},
		indexWorker: jobs.NewIndexWorker(jobRepo, indexingSvc),
	}

	t.Cleanup(func() {
		srv.Close()
		pool.Close()
		s3C.Terminate(ctx)
		pgC.Terminate(ctx)
	})

	return env
}

// ProcessIndexJobs drains pending index jobs synchronously, standing in for
// the background worker so tests are deterministic.
func (env *E2ETestEnv) ProcessIndexJobs() {
	env.T.Helper()
	if err := env.indexWorker.ProcessJobs(env.Ctx); err != nil {
		env.T.Fatalf("failed to process index jobs: %v", err)
	}
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error"`
	Code  string          `json:"code"`
}

func (env *E2ETestEnv) request(method, path string, body any) (*http.Response, *envelope) {
	env.T.Helper()

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			env.T.Fatalf("failed to marshal request body: %v", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, env.Server.URL+path, reqBody)
	if err != nil {
		env.T.Fatalf("failed to create request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+testAPIKey)
	req.Header.Set("Content-Type", "application/json")

	return env.send(req)
}

func (env *E2ETestEnv) send(req *http.Request) (*http.Response, *envelope) {
	env.T.Helper()

	resp, err := env.HTTPClient.Do(req)
	if err != nil {
		env.T.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		env.T.Fatalf("failed to read response body: %v", err)
	}

	var e envelope
	if len(respBody) > 0 {
		if err := json.Unmarshal(respBody, &e); err != nil {
			env.T.Fatalf("failed to parse response %q: %v", respBody, err)
		}
	}
	return resp, &e
}

// UploadPDF uploads PDF-looking bytes under the given filename.
func (env *E2ETestEnv) UploadPDF(filename string) (*http.Response, *envelope) {
	env.T.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		env.T.Fatalf("failed to create form file: %v", err)
	}
	fmt.Fprint(part, "%PDF-1.7\nstub document bytes")
	if err := mw.Close(); err != nil {
		env.T.Fatalf("failed to finalize form: %v", err)
	}

	req, err := http.NewRequest(http.MethodPost, env.Server.URL+"/documents", &buf)
	if err != nil {
		env.T.Fatalf("failed to create request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+testAPIKey)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	return env.send(req)
}

func decodeData[T any](t *testing.T, e *envelope) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(e.Data, &out); err != nil {
		t.Fatalf("failed to decode response data %q: %v", e.Data, err)
	}
	return out
}
