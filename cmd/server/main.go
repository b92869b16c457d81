package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/saqiah/waterbot/internal/adapters/upstream"
	"github.com/saqiah/waterbot/internal/adapters/wati"
	"github.com/saqiah/waterbot/internal/config"
	"github.com/saqiah/waterbot/internal/core/agent"
	"github.com/saqiah/waterbot/internal/core/classifier"
	"github.com/saqiah/waterbot/internal/core/llm"
	"github.com/saqiah/waterbot/internal/core/pipeline"
	"github.com/saqiah/waterbot/internal/core/resolver"
	"github.com/saqiah/waterbot/internal/handler"
	"github.com/saqiah/waterbot/internal/repository"
	"github.com/saqiah/waterbot/internal/services/knowledge"
	"github.com/saqiah/waterbot/internal/services/pause"
	syncsvc "github.com/saqiah/waterbot/internal/services/sync"
	"github.com/saqiah/waterbot/pkg/logger"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logger.Base().Fatal("invalid configuration", zap.Error(err))
	}
	if _, err := logger.Init(cfg.LogEnv); err != nil {
		logger.Base().Fatal("logger init failed", zap.Error(err))
	}
	defer logger.Sync()
	log := logger.Base()

	db, err := repository.Open(cfg.DatabasePath)
	if err != nil {
		log.Fatal("database open failed", zap.Error(err))
	}
	defer db.Close()

	llmClient := llm.NewClient(llm.Options{
		APIKey:             cfg.OpenAIAPIKey,
		BaseURL:            cfg.OpenAIBaseURL,
		ChatModel:          cfg.ChatModel,
		EmbeddingModel:     cfg.EmbeddingModel,
		MinRequestInterval: cfg.LLMMinRequestInterval,
		MaxRetries:         cfg.LLMMaxRetries,
		BaseDelay:          cfg.LLMBaseDelay,
	})

	var transcriber handler.AudioTranscriber
	if cfg.GeminiAPIKey != "" {
		t, err := llm.NewTranscriber(context.Background(), cfg.GeminiAPIKey, "")
		if err != nil {
			log.Fatal("transcriber init failed", zap.Error(err))
		}
		transcriber = t
	} else {
		log.Info("GEMINI_API_KEY not set, audio messages will be dropped")
	}

	index, err := knowledge.NewIndex(cfg.VectorDBPath, llmClient)
	if err != nil {
		log.Fatal("knowledge index open failed", zap.Error(err))
	}
	if err := knowledge.LoadSeedFile(context.Background(), index, cfg.KnowledgeSeedPath); err != nil {
		log.Fatal("knowledge seed load failed", zap.Error(err))
	}

	if err := syncsvc.LoadDistrictSeed(context.Background(), db.Catalog(), cfg.DistrictSeedPath); err != nil {
		log.Fatal("district seed load failed", zap.Error(err))
	}

	pauses := pause.NewRegistry(db.Pauses(), cfg.PauseDefaultTTL)

	var syncWorker *syncsvc.Worker
	if cfg.UpstreamAPIURL != "" {
		syncWorker = syncsvc.NewWorker(
			upstream.NewClient(cfg.UpstreamAPIURL), db.Catalog(), db.SyncLogs(), cfg.ExcludedCityIDs)
		if err := syncWorker.StartSchedule(cfg.SyncDailyTime); err != nil {
			log.Fatal("sync schedule failed", zap.Error(err))
		}
		defer syncWorker.StopSchedule()
	} else {
		log.Warn("UPSTREAM_API_URL not set, catalog sync disabled")
	}

	orchestrator := pipeline.New(
		db.Conversations(),
		pauses,
		resolver.New(index, llmClient),
		classifier.New(llmClient, llmClient, db.Conversations()),
		agent.New(llmClient, db.Catalog()),
		wati.NewClient(cfg.WatiAPIURL, cfg.WatiAPIKey),
		cfg.AllowedPhones,
	)

	handlers := handler.Handlers{
		Webhook:   handler.NewWebhookHandler(orchestrator, transcriber, cfg.WatiWebhookVerifyToken),
		Catalog:   handler.NewCatalogHandler(db.Catalog()),
		Pause:     handler.NewPauseHandler(pauses),
		Knowledge: index,
	}
	if syncWorker != nil {
		handlers.Sync = handler.NewSyncHandler(syncWorker, cfg.SyncDailyTime)
	} else {
		handlers.Sync = handler.NewSyncHandler(noSync{}, cfg.SyncDailyTime)
	}

	// pause janitor, in addition to the lazy per-read sweep
	janitorCtx, stopJanitor := context.WithCancel(context.Background())
	defer stopJanitor()
	go runPauseJanitor(janitorCtx, pauses)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler.NewRouter(handlers),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("server listening", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server stopped", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("graceful shutdown failed", zap.Error(err))
	}
}

func runPauseJanitor(ctx context.Context, registry *pause.Registry) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := registry.Sweep(ctx); err != nil {
				logger.Base().Warn("pause sweep failed", zap.Error(err))
			} else if n > 0 {
				logger.Base().Info("expired pauses deactivated", zap.Int64("count", n))
			}
		}
	}
}

// noSync backs the sync-control API when no upstream is configured.
type noSync struct{}

func (noSync) RunOnce(ctx context.Context) error    { return errors.New("catalog sync not configured") }
func (noSync) StartSchedule(dailyTime string) error { return errors.New("catalog sync not configured") }
func (noSync) StopSchedule()                        {}
func (noSync) Status() syncsvc.Status               { return syncsvc.Status{} }
