package main

import (
	"context"
	"crypto/tls"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/evermore-ai/concierge/internal/api/router"
	"github.com/evermore-ai/concierge/internal/assistant"
	appconfig "github.com/evermore-ai/concierge/internal/config"
	"github.com/evermore-ai/concierge/internal/conversation"
	"github.com/evermore-ai/concierge/internal/events"
	"github.com/evermore-ai/concierge/internal/http/handlers"
	"github.com/evermore-ai/concierge/internal/leads"
	"github.com/evermore-ai/concierge/internal/notify"
	"github.com/evermore-ai/concierge/internal/observability/metrics"
	"github.com/evermore-ai/concierge/internal/realtime"
	"github.com/evermore-ai/concierge/internal/webchat"
	"github.com/evermore-ai/concierge/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting evermore concierge API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Stores. Without DATABASE_URL the widget still answers; persistence
	// and the back office report "not configured".
	var (
		convRepo  conversation.Repository
		msgLog    conversation.MessageLog
		leadsRepo leads.Repository
		sqlDB     *sql.DB
	)
	if cfg.DatabaseConfigured() {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to create pgx pool", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		pg := conversation.NewPostgresRepository(pool)
		convRepo = pg
		msgLog = pg
		leadsRepo = leads.NewPostgresRepository(pool)

		sqlDB, err = sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to open sql db", "error", err)
			os.Exit(1)
		}
		defer func() { _ = sqlDB.Close() }()
	} else if cfg.Env == "development" {
		logger.Warn("DATABASE_URL not set, using in-memory stores")
		mem := conversation.NewInMemoryRepository()
		convRepo = mem
		msgLog = mem
		leadsRepo = leads.NewInMemoryRepository()
	} else {
		logger.Warn("DATABASE_URL not set, persistence disabled")
	}

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		opts := &redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}
		if cfg.RedisTLS {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		redisClient = redis.NewClient(opts)
		defer func() { _ = redisClient.Close() }()
	}
	transcripts := conversation.NewTranscriptStore(redisClient)

	// Change feed: in-process hub, spanned across instances over redis.
	hub := events.NewHub()
	bridge := events.NewRedisBridge(redisClient, hub, logger)
	go func() {
		if err := bridge.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("change feed bridge stopped", "error", err)
		}
	}()

	client, provider := buildAssistant(ctx, cfg, logger)
	if client == nil {
		logger.Warn("no LLM provider configured, chat replies disabled")
	}

	chatMetrics := metrics.NewChatMetrics(prometheus.DefaultRegisterer)

	notifier := notify.NewService(buildEmailSender(ctx, cfg, logger), cfg.NotifyRecipients, cfg.NotifyMinScore, logger)

	orch := conversation.NewOrchestrator(conversation.OrchestratorDeps{
		Client:      client,
		Provider:    provider,
		Repo:        convRepo,
		Msgs:        msgLog,
		Transcripts: transcripts,
		LeadsRepo:   leadsRepo,
		Publisher:   bridge,
		Notifier:    notifier,
		Metrics:     chatMetrics,
		Logger:      logger,
	})

	r := router.New(&router.Config{
		Logger:             logger,
		Chat:               handlers.NewChatHandler(orch, logger),
		Webchat:            webchat.NewHandler(orch, transcripts, webchat.DefaultWidgetJS, logger),
		AdminConversations: handlers.NewAdminConversationsHandler(convRepo, msgLog, transcripts, orch, bridge, cfg.ConversationListLimit, logger),
		AdminLeads:         handlers.NewAdminLeadsHandler(leadsRepo, convRepo, bridge, logger),
		AdminDashboard:     handlers.NewAdminDashboardHandler(sqlDB, cfg.NotifyMinScore, logger),
		Feed:               realtime.NewFeedHandler(hub, convRepo, logger),
		MetricsHandler:     promhttp.Handler(),
		AdminAuthSecret:    cfg.AdminJWTSecret,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

// buildAssistant wires the configured LLM providers: OpenAI primary, with
// Gemini or Bedrock as fallback when their credentials are present.
func buildAssistant(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (assistant.Client, string) {
	var clients []assistant.Client
	var providers []string

	if cfg.OpenAIAPIKey != "" {
		c, err := assistant.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIModel)
		if err != nil {
			logger.Error("openai client init failed", "error", err)
		} else {
			clients = append(clients, c)
			providers = append(providers, "openai")
		}
	}
	if cfg.GeminiAPIKey != "" {
		c, err := assistant.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			logger.Error("gemini client init failed", "error", err)
		} else {
			clients = append(clients, c)
			providers = append(providers, "gemini")
		}
	}
	if cfg.BedrockModelID != "" {
		awsCfg, err := loadAWSConfig(ctx, cfg)
		if err != nil {
			logger.Error("aws config load failed", "error", err)
		} else {
			c, err := assistant.NewBedrockClient(bedrockruntime.NewFromConfig(awsCfg), cfg.BedrockModelID)
			if err != nil {
				logger.Error("bedrock client init failed", "error", err)
			} else {
				clients = append(clients, c)
				providers = append(providers, "bedrock")
			}
		}
	}

	switch len(clients) {
	case 0:
		return nil, ""
	case 1:
		return clients[0], providers[0]
	default:
		logger.Info("LLM fallback enabled", "primary", providers[0], "fallback", providers[1])
		return assistant.NewFallbackClient(clients[0], clients[1], logger), providers[0]
	}
}

func buildEmailSender(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) notify.EmailSender {
	if cfg.SendGridAPIKey != "" {
		return notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger)
	}
	if cfg.SESFromEmail != "" {
		awsCfg, err := loadAWSConfig(ctx, cfg)
		if err != nil {
			logger.Error("aws config load failed", "error", err)
			return nil
		}
		return notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.SESConfig{
			FromEmail: cfg.SESFromEmail,
			FromName:  cfg.SESFromName,
		}, logger)
	}
	return nil
}

func loadAWSConfig(ctx context.Context, cfg *appconfig.Config) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.AWSRegion),
	}
	if cfg.AWSAccessKeyID != "" && cfg.AWSSecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey, ""),
		))
	}
	return awsconfig.LoadDefaultConfig(ctx, opts...)
}
