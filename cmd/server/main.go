package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgallion1/studykit/internal/api"
	"github.com/dgallion1/studykit/internal/chat"
	"github.com/dgallion1/studykit/internal/chunker"
	"github.com/dgallion1/studykit/internal/config"
	"github.com/dgallion1/studykit/internal/events"
	"github.com/dgallion1/studykit/internal/llm"
	"github.com/dgallion1/studykit/internal/pipeline"
	"github.com/dgallion1/studykit/internal/quiz"
	"github.com/dgallion1/studykit/internal/store"
	"github.com/dgallion1/studykit/internal/summarize"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		log.Error("load configuration", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := store.Open(ctx, cfg.DBPath, store.WithLogger(log))
	if err != nil {
		log.Error("open store", "path", cfg.DBPath, "error", err)
		os.Exit(1)
	}

	stats := llm.NewStats(time.Hour)
	provider, err := llm.Build(cfg, stats)
	if err != nil {
		log.Error("build llm provider", "error", err)
		os.Exit(1)
	}

	chunkCfg, err := chunker.NewConfig(cfg.MaxChunkSize, cfg.ChunkOverlap, cfg.TokenizerPath)
	if err != nil {
		log.Error("chunker config", "error", err)
		os.Exit(1)
	}

	bus := events.New()
	bus.Subscribe(events.TopicSummarizeAggregation, func(e events.Event) {
		log.Warn("summary aggregation fell back to concatenation", "detail", e.Payload)
	})

	summarizer := summarize.New(provider,
		summarize.WithChunkConfig(chunkCfg),
		summarize.WithLogger(log),
		summarize.WithBus(bus),
	)

	// Initialize pipeline.
	orch := pipeline.NewOrchestrator(cfg, summarizer, st, bus, log)
	orch.Start(ctx)

	chats := chat.NewRegistry(provider, cfg.SessionTTL)

	srv := api.NewServer(api.Deps{
		Store:        st,
		Orchestrator: orch,
		Chats:        chats,
		Quiz:         quiz.New(provider, quiz.WithBus(bus), quiz.WithLogger(log)),
		Stats:        stats,
		ProviderName: provider.Name(),
		Bus:          bus,
	}, log, cfg)

	// Expire idle chat sessions and timers.
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				if n := chats.Cleanup(now); n > 0 {
					log.Info("expired chat sessions", "count", n)
				}
				if n := srv.CleanupTimers(now); n > 0 {
					log.Info("expired timers", "count", n)
				}
			}
		}
	}()

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown.
	done := make(chan struct{})
	go func() {
		defer close(done)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)

		orch.Stop()
		srv.Close()
		cancel()
		st.Close()
	}()

	log.Info("starting studykit", "port", cfg.Port, "provider", provider.Name(), "workers", cfg.WorkerCount)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
	<-done
}
