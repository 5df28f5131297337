package main

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/medbridge/voicebook/internal/api/router"
	"github.com/medbridge/voicebook/internal/booking"
	appconfig "github.com/medbridge/voicebook/internal/config"
	"github.com/medbridge/voicebook/internal/llm"
	"github.com/medbridge/voicebook/internal/observability/metrics"
	"github.com/medbridge/voicebook/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting voicebook API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx := context.Background()

	llmClient, cleanup, err := buildLLMClient(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize LLM client", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	pipelineMetrics := metrics.NewPipelineMetrics(nil)

	slotStore, err := buildSlotStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize slot store", "error", err)
		os.Exit(1)
	}

	conversationStore := buildConversationStore(cfg, logger)

	normalizer := booking.NewNormalizer(llmClient, cfg.BedrockModelID, cfg.LLMTimeout, logger, pipelineMetrics)
	classifier := booking.NewClassifier(llmClient, cfg.BedrockModelID, cfg.LLMTimeout, logger, pipelineMetrics)
	engine := booking.NewEngine(conversationStore, slotStore, normalizer, classifier, logger, pipelineMetrics)
	bookingHandler := booking.NewHandler(engine, slotStore, logger)

	r := router.New(&router.Config{
		Logger:         logger,
		BookingHandler: bookingHandler,
		MetricsHandler: promhttp.Handler(),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

// buildLLMClient selects providers by configured credentials: Bedrock when a
// model ID is set, Gemini otherwise, and Gemini as fallback when both exist.
func buildLLMClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (llm.Client, func(), error) {
	cleanup := func() {}

	var gemini *llm.GeminiClient
	if cfg.GeminiAPIKey != "" {
		client, err := llm.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID)
		if err != nil {
			return nil, cleanup, err
		}
		gemini = client
		cleanup = func() { _ = client.Close() }
	}

	if cfg.BedrockModelID != "" {
		awsCfg, err := loadAWSConfig(ctx, cfg)
		if err != nil {
			return nil, cleanup, err
		}
		bedrock := llm.NewBedrockClient(bedrockruntime.NewFromConfig(awsCfg))
		if gemini != nil {
			logger.Info("LLM providers configured", "primary", "bedrock", "fallback", "gemini")
			return llm.NewFallbackClient(bedrock, gemini, logger), cleanup, nil
		}
		logger.Info("LLM providers configured", "primary", "bedrock")
		return bedrock, cleanup, nil
	}

	if gemini != nil {
		logger.Info("LLM providers configured", "primary", "gemini")
		return gemini, cleanup, nil
	}

	logger.Warn("no LLM provider configured; pipeline will run on fallbacks only")
	return llm.NewFallbackClient(unavailableClient{}, nil, logger), cleanup, nil
}

// unavailableClient stands in when no provider credentials exist. Every
// call reports the service unavailable, which the pipeline degrades from
// safely (raw-text normalization, unclear classification).
type unavailableClient struct{}

func (unavailableClient) Complete(context.Context, llm.Request) (llm.Response, error) {
	return llm.Response{}, llm.ErrUnavailable
}

func buildSlotStore(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (booking.SlotStore, error) {
	if cfg.SlotsTable == "" {
		store := booking.NewMemorySlotStore()
		if cfg.SeedSlots {
			if err := booking.SeedDemoSlots(ctx, store); err != nil {
				return nil, err
			}
			logger.Info("seeded in-memory availability store")
		}
		return store, nil
	}

	awsCfg, err := loadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	store := booking.NewDynamoSlotStore(dynamodb.NewFromConfig(awsCfg), cfg.SlotsTable, logger)

	if cfg.SeedSlots {
		existing, err := store.Query(ctx, "")
		if err != nil {
			return nil, err
		}
		if len(existing) == 0 {
			if err := booking.SeedDemoSlots(ctx, store); err != nil {
				return nil, err
			}
			logger.Info("seeded availability table", "table", cfg.SlotsTable)
		}
	}
	return store, nil
}

func buildConversationStore(cfg *appconfig.Config, logger *logging.Logger) booking.ConversationStore {
	if cfg.RedisAddr == "" {
		logger.Info("using in-memory conversation store")
		return booking.NewMemoryConversationStore()
	}

	opts := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	logger.Info("using redis conversation store", "addr", cfg.RedisAddr)
	return booking.NewRedisConversationStore(redis.NewClient(opts), cfg.ConversationTTL, nil)
}

// loadAWSConfig centralizes AWS SDK initialization so LocalStack and
// production share the same wiring.
func loadAWSConfig(ctx context.Context, cfg *appconfig.Config) (aws.Config, error) {
	loaders := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.AWSRegion)}
	if cfg.AWSAccessKeyID != "" && cfg.AWSSecretAccessKey != "" {
		loaders = append(loaders, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loaders...)
	if err != nil {
		return aws.Config{}, err
	}

	if endpoint := cfg.AWSEndpointOverride; endpoint != "" {
		awsCfg.EndpointResolverWithOptions = aws.EndpointResolverWithOptionsFunc(
			func(service, region string, _ ...interface{}) (aws.Endpoint, error) {
				return aws.Endpoint{
					URL:           endpoint,
					PartitionID:   "aws",
					SigningRegion: cfg.AWSRegion,
				}, nil
			},
		)
	}

	return awsCfg, nil
}
