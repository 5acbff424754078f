package admin

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	openaisdk "github.com/sashabaranov/go-openai"
	"github.com/spf13/cobra"

	"github.com/pagetutor/pagetutor/internal/api/handlers"
	"github.com/pagetutor/pagetutor/internal/config"
	"github.com/pagetutor/pagetutor/internal/extract"
	"github.com/pagetutor/pagetutor/internal/jobs"
	"github.com/pagetutor/pagetutor/internal/openai"
	"github.com/pagetutor/pagetutor/internal/repository"
	"github.com/pagetutor/pagetutor/internal/server"
	"github.com/pagetutor/pagetutor/internal/service"
	"github.com/pagetutor/pagetutor/internal/storage"
	"github.com/pagetutor/pagetutor/internal/telemetry"
)

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long:  "Start the pagetutor API server on the specified port",
		RunE:  runServe,
	}

	cmd.Flags().StringP("port", "p", "8080", "Port to listen on")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")

	return cmd
}

// MigrateCmd returns the migrate command
func MigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Long:  "Apply pending database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			return runMigrations(cfg.DatabaseURL)
		},
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize Sentry with tracing if SENTRY_DSN is set
	if dsn := os.Getenv("SENTRY_DSN"); dsn != "" {
		environment := os.Getenv("ENVIRONMENT")
		if environment == "" {
			environment = "development"
		}

		// Default to 10% sampling in production, 100% in development
		sampleRate := 0.1
		if environment == "development" {
			sampleRate = 1.0
		}

		shutdownTelemetry, err := telemetry.Init(telemetry.Config{
			DSN:              dsn,
			Environment:      environment,
			TracesSampleRate: sampleRate,
		})
		if err != nil {
			log.Printf("telemetry init failed (continuing without tracing): %v", err)
		} else {
			defer shutdownTelemetry()
		}
	}

	portFlag, _ := cmd.Flags().GetString("port")
	if portFlag != "" && portFlag != "8080" {
		cfg.Port = portFlag
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	log.Println("connected to database")

	// Run migrations unless --no-migrate flag is set
	noMigrate, _ := cmd.Flags().GetBool("no-migrate")
	if !noMigrate {
		if err := runMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	docRepo := repository.NewDocumentRepository(pool)
	chunkRepo := repository.NewChunkRepository(pool)
	turnRepo := repository.NewConversationRepository(pool)
	artifactRepo := repository.NewArtifactRepository(pool)
	indexJobRepo := repository.NewIndexJobRepository(pool)
	txRunner := repository.NewTxRunner(pool)

	var blobs service.BlobStore
	if cfg.HasS3() {
		s3Client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKey,
			SecretAccessKey: cfg.S3SecretKey,
			Bucket:          cfg.S3Bucket,
			UsePathStyle:    true,
		})
		if err != nil {
			return fmt.Errorf("failed to create S3 client: %w", err)
		}
		if err := s3Client.EnsureBucket(ctx); err != nil {
			return fmt.Errorf("failed to ensure S3 bucket: %w", err)
		}
		log.Printf("S3 bucket '%s' ready", cfg.S3Bucket)
		blobs = s3Client
	}

	if !cfg.HasOpenAI() {
		return fmt.Errorf("OPENAI_API_KEY is required")
	}

	embedder := openai.NewClientWithConfig(openai.Config{
		APIKey:              cfg.OpenAIAPIKey,
		EmbeddingModel:      openaisdk.EmbeddingModel(cfg.EmbeddingModel),
		EmbeddingDimensions: cfg.EmbeddingDimensions,
	})
	completions := openai.NewCompletionClient(cfg.OpenAIAPIKey, cfg.CompletionModel)

	chunkCfg := service.ChunkConfig{
		MaxChars: cfg.ChunkMaxChars,
		MinChars: cfg.ChunkMinChars,
		Overlap:  cfg.ChunkOverlap,
	}
	genCfg := service.DefaultGenerationConfig()
	genCfg.MinScore = cfg.MinScore
	genCfg.Timeout = cfg.GenerationTimeoutDuration()
	genCfg.MaxRetries = uint64(cfg.GenerationRetries)
	genCfg.Segment.SimilarityThreshold = cfg.SegmentSimilarity
	genCfg.Segment.MaxSegments = cfg.SegmentMaxCount

	documentSvc := service.NewDocumentService(docRepo, txRunner, extract.NewPDFExtractor(), blobs, cfg.ExtractionTimeoutDuration())
	indexingSvc := service.NewIndexingService(docRepo, txRunner, embedder, chunkCfg)
	retrieverSvc := service.NewRetrieverService(docRepo, chunkRepo, embedder, cfg.RetrievalTopK)
	generationSvc := service.NewGenerationService(docRepo, chunkRepo, artifactRepo, txRunner, retrieverSvc, completions, genCfg)
	conversationSvc := service.NewConversationService(docRepo, turnRepo)

	indexProcessor := jobs.NewIndexWorker(indexJobRepo, indexingSvc)
	indexWorker := jobs.NewWorker(indexProcessor, cfg.WorkerPollInterval())
	go indexWorker.Start(ctx)
	log.Println("index worker started")

	router := server.NewRouter(server.RouterConfig{
		APIKey:           cfg.APIKey,
		MaxBodyBytes:     cfg.MaxUploadBytes,
		DocumentHandler:  handlers.NewDocumentHandler(documentSvc, cfg.MaxUploadBytes),
		RetrievalHandler: handlers.NewRetrievalHandler(retrieverSvc),
		ChatHandler:      handlers.NewChatHandler(generationSvc, conversationSvc),
		StudyHandler:     handlers.NewStudyHandler(generationSvc),
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Printf("starting server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down...")

	indexWorker.Stop()

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Println("server exited")
	return nil
}

func runMigrations(databaseURL string) error {
	// golang-migrate drives a database/sql connection
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database for migrations: %w", err)
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		"file://migrations",
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	err = m.Up()
	if err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && err != migrate.ErrNilVersion {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	if err == migrate.ErrNilVersion {
		log.Println("migrations: database is up to date (no migrations applied)")
	} else if dirty {
		return fmt.Errorf("migration version %d is dirty - manual intervention required", version)
	} else if err == migrate.ErrNoChange {
		log.Printf("migrations: database is up to date (version %d)", version)
	} else {
		log.Printf("migrations: applied successfully (version %d)", version)
	}

	return nil
}
