package config

import (
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port  string `envconfig:"PORT" default:"8080"`
	Debug bool   `envconfig:"DEBUG" default:"false"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`

	// Optional static bearer key protecting the API. Empty disables auth.
	APIKey string `envconfig:"API_KEY"`

	S3Endpoint  string `envconfig:"S3_ENDPOINT"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY_ID"`
	S3SecretKey string `envconfig:"S3_SECRET_ACCESS_KEY"`
	S3Bucket    string `envconfig:"S3_BUCKET" default:"pagetutor-documents"`
	S3Region    string `envconfig:"S3_REGION" default:"us-east-1"`

	OpenAIAPIKey string `envconfig:"OPENAI_API_KEY"`
	// EmbeddingModel is pinned per index; changing it requires reindexing.
	EmbeddingModel      string `envconfig:"EMBEDDING_MODEL" default:"text-embedding-ada-002"`
	EmbeddingDimensions int    `envconfig:"EMBEDDING_DIMENSIONS" default:"1536"`
	CompletionModel     string `envconfig:"COMPLETION_MODEL" default:"gpt-4o-mini"`

	// Upload and extraction limits
	MaxUploadBytes    int64 `envconfig:"MAX_UPLOAD_BYTES" default:"67108864"`
	ExtractionTimeout int   `envconfig:"EXTRACTION_TIMEOUT_SECONDS" default:"120"`

	// Chunking
	ChunkMaxChars int `envconfig:"CHUNK_MAX_CHARS" default:"1000"`
	ChunkMinChars int `envconfig:"CHUNK_MIN_CHARS" default:"300"`
	ChunkOverlap  int `envconfig:"CHUNK_OVERLAP" default:"150"`

	// Retrieval and generation
	RetrievalTopK     int     `envconfig:"RETRIEVAL_TOP_K" default:"5"`
	MinScore          float32 `envconfig:"MIN_SCORE" default:"0.25"`
	GenerationTimeout int     `envconfig:"GENERATION_TIMEOUT_SECONDS" default:"60"`
	GenerationRetries int     `envconfig:"GENERATION_RETRIES" default:"3"`

	// Topic segmentation for notes/quiz generation
	SegmentSimilarity float32 `envconfig:"SEGMENT_SIMILARITY" default:"0.82"`
	SegmentMaxCount   int     `envconfig:"SEGMENT_MAX_COUNT" default:"12"`

	// Index worker
	WorkerPollSeconds int `envconfig:"WORKER_POLL_SECONDS" default:"5"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("PAGETUTOR", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	return &cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

func (c *Config) HasS3() bool {
	return c.S3Endpoint != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}

func (c *Config) HasOpenAI() bool {
	return c.OpenAIAPIKey != ""
}

func (c *Config) GenerationTimeoutDuration() time.Duration {
	return time.Duration(c.GenerationTimeout) * time.Second
}

func (c *Config) ExtractionTimeoutDuration() time.Duration {
	return time.Duration(c.ExtractionTimeout) * time.Second
}

func (c *Config) WorkerPollInterval() time.Duration {
	return time.Duration(c.WorkerPollSeconds) * time.Second
}
