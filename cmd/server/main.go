package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/sdrlabs/leadqual/internal/agent"
	"github.com/sdrlabs/leadqual/internal/assistant"
	"github.com/sdrlabs/leadqual/internal/calendar"
	"github.com/sdrlabs/leadqual/internal/config"
	"github.com/sdrlabs/leadqual/internal/crm"
	"github.com/sdrlabs/leadqual/internal/metrics"
	"github.com/sdrlabs/leadqual/internal/server"
	"github.com/sdrlabs/leadqual/internal/storage/sqlite"
	"github.com/sdrlabs/leadqual/internal/telemetry"
	"github.com/sdrlabs/leadqual/internal/tokens"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load(os.Getenv("LEADQUAL_CONFIG"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	shutdownTracer, err := telemetry.InitTracer("leadqual", logger)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
		}
	}()

	store, err := sqlite.New(cfg.Storage.Path)
	if err != nil {
		log.Fatalf("Failed to open storage: %v", err)
	}
	defer store.Close()

	slots := sqlite.NewSlotStore(store, cfg.Slots.TTL)

	runtime := assistant.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.AssistantID,
		assistant.WithBaseURL(cfg.OpenAI.BaseURL))

	scheduler, err := calendar.NewClient(cfg.CalCom.APIKey, cfg.CalCom.Username,
		cfg.CalCom.EventTypeID, cfg.CalCom.DurationMinutes, cfg.CalCom.Timezone,
		calendar.WithBaseURL(cfg.CalCom.BaseURL),
		calendar.WithLogger(logger))
	if err != nil {
		log.Fatalf("Failed to build calendar client: %v", err)
	}

	leads := crm.NewClient(cfg.Pipefy.APIKey, cfg.Pipefy.PipeID, cfg.Pipefy.EmailFieldName,
		crm.FieldIDs{
			Name:        cfg.Pipefy.Fields.Name,
			Email:       cfg.Pipefy.Fields.Email,
			Company:     cfg.Pipefy.Fields.Company,
			Need:        cfg.Pipefy.Fields.Need,
			Interest:    cfg.Pipefy.Fields.Interest,
			MeetingLink: cfg.Pipefy.Fields.MeetingLink,
			MeetingTime: cfg.Pipefy.Fields.MeetingTime,
		},
		crm.WithBaseURL(cfg.Pipefy.BaseURL),
		crm.WithLogger(logger))

	recorder := metrics.NewRecorder()

	driver := agent.New(runtime, scheduler, leads, slots,
		agent.WithLogger(logger),
		agent.WithMetrics(recorder))

	guard, err := tokens.NewGuard(cfg.Chat.MaxMessageTokens)
	if err != nil {
		log.Fatalf("Failed to build token guard: %v", err)
	}

	srv := server.New(server.Config{
		Port:       cfg.Server.Port,
		SessionTTL: cfg.Session.TTL,
		AllowedOrigins: []string{
			"http://localhost",
			"http://localhost:3000",
			"http://localhost:3001",
			"http://127.0.0.1:3000",
			"http://127.0.0.1:3001",
		},
	}, store, runtime, driver, slots, guard, recorder.Handler(), logger)

	// Background sweep for expired sessions and slot entries.
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-sweepCtx.Done():
				return
			case <-ticker.C:
				removed, err := store.DeleteExpired(sweepCtx, time.Now())
				if err != nil {
					logger.Error("session sweep failed", slog.String("error", err.Error()))
					continue
				}
				if removed > 0 {
					logger.Info("expired sessions removed", slog.Int64("count", removed))
				}
			}
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			log.Fatalf("Server failed: %v", err)
		}
	case <-sigChan:
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("server shutdown complete")
}
