package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rajdeori2019/vantahire-ai-interviewer-sub000/internal/agent"
	"github.com/rajdeori2019/vantahire-ai-interviewer-sub000/internal/capture"
	"github.com/rajdeori2019/vantahire-ai-interviewer-sub000/internal/finalize"
	"github.com/rajdeori2019/vantahire-ai-interviewer-sub000/internal/notify"
	"github.com/rajdeori2019/vantahire-ai-interviewer-sub000/internal/orchestrator"
	"github.com/rajdeori2019/vantahire-ai-interviewer-sub000/internal/scoring"
	"github.com/rajdeori2019/vantahire-ai-interviewer-sub000/internal/session"
	"github.com/rajdeori2019/vantahire-ai-interviewer-sub000/internal/store"
	"github.com/rajdeori2019/vantahire-ai-interviewer-sub000/internal/ws"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	cfg := loadConfig()

	db, err := store.Open(cfg.databaseURL)
	if err != nil {
		slog.Error("store open failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	var uploader *capture.MinioUploader
	if cfg.minioEndpoint != "" {
		initCtx, initCancel := context.WithTimeout(context.Background(), 10*time.Second)
		uploader, err = capture.NewMinioUploader(initCtx, capture.MinioConfig{
			Endpoint:  cfg.minioEndpoint,
			AccessKey: cfg.minioAccessKey,
			SecretKey: cfg.minioSecretKey,
			Bucket:    cfg.minioBucket,
			UseSSL:    cfg.minioUseSSL,
		})
		initCancel()
		if err != nil {
			slog.Error("recording storage init failed", "error", err)
			os.Exit(1)
		}
		slog.Info("recording storage ready", "endpoint", cfg.minioEndpoint, "bucket", cfg.minioBucket)
	} else {
		slog.Warn("no recording storage configured, sessions will complete without recordings")
	}

	var scorer finalize.Scorer
	if cfg.openaiAPIKey != "" {
		scorer = scoring.NewClient(scoring.NewOpenAICompleter(scoring.OpenAIConfig{
			APIKey:  cfg.openaiAPIKey,
			BaseURL: cfg.openaiBaseURL,
			Model:   cfg.scoringModel,
		}), db, db)
		slog.Info("scoring enabled", "model", cfg.scoringModel)
	} else {
		slog.Warn("no scoring key configured, sessions will complete unscored")
	}

	var notifier notify.Notifier
	if cfg.notifyWebhookURL != "" {
		notifier = notify.NewWebhook(cfg.notifyWebhookURL, cfg.notifyPoolSize, 30*time.Second)
	}

	orchDeps := orchestrator.Deps{
		Gate:        session.NewGate(db),
		Machine:     session.NewMachine(db),
		Sessions:    db,
		Transcripts: db,
		Refs:        db,
		AgentDial:   agent.WebSocketDialer(cfg.agentEndpoint, cfg.agentID),
		Scorer:      scorer,
		Notifier:    notifier,
	}
	if uploader != nil {
		orchDeps.Uploader = uploader
	}

	handler := ws.NewHandler(orchDeps, cfg.maxConcurrent)

	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	defer sweepCancel()
	go session.NewSweeper(db, cfg.sweepInterval, cfg.sweepGrace).Run(sweepCtx)

	mux := http.NewServeMux()
	registerRoutes(mux, deps{
		store:          db,
		uploader:       uploader,
		wsHandler:      handler,
		playbackURLTTL: cfg.playbackURLTTL,
	})

	addr := ":" + cfg.port
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		slog.Info("shutting down", "signal", sig)
		sweepCancel()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}()

	slog.Info("interviewd starting", "addr", addr, "max_concurrent", cfg.maxConcurrent)

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}

	slog.Info("interviewd stopped")
}
