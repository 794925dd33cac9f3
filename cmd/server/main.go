package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/TheScottyB/fabric-web/internal/config"
	"github.com/TheScottyB/fabric-web/internal/database"
	"github.com/TheScottyB/fabric-web/internal/handlers"
	"github.com/TheScottyB/fabric-web/internal/logging"
	"github.com/TheScottyB/fabric-web/internal/middleware"
	"github.com/TheScottyB/fabric-web/internal/router"
	"github.com/TheScottyB/fabric-web/internal/services"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	// ──── Step 1: Load Configuration ────
	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("configuration invalid", "error", err)
		os.Exit(1)
	}

	log := logging.New(os.Stdout, cfg.LogLevel, cfg.IsProduction())
	slog.SetDefault(log)
	log.Info("starting fabric chat gateway",
		"env", cfg.Env,
		"backend", cfg.Backend.BaseOrigin,
		"candidates", cfg.Backend.CandidatePaths,
	)

	// ──── Step 2: Rate Limit Store (Redis when configured) ────
	var store middleware.CounterStore
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.NewRedisClient(cfg.RedisURL)
		if err != nil {
			log.Error("redis connection failed", "error", err)
			os.Exit(1)
		}
		defer redisClient.Close()
		store = middleware.NewRedisStore(redisClient)
		log.Info("redis connected, rate limits are shared")
	} else {
		memStore := middleware.NewMemoryStore(cfg.RateLimit.Window)
		defer memStore.Close()
		store = memStore
		log.Info("rate limits kept in memory")
	}

	// ──── Step 3: Initialize Services ────
	provider, err := services.NewTranscriptProvider(cfg.Transcript.Provider, cfg.Transcript.Languages)
	if err != nil {
		log.Error("transcript provider", "error", err)
		os.Exit(1)
	}
	youtubeService := services.NewYouTubeService(provider, log)
	forwarder := services.NewBackendForwarder(cfg.Backend, log)
	relay := services.NewStreamRelay(log)

	// ──── Step 4: Initialize Handlers ────
	chatHandler := handlers.NewChatHandler(youtubeService, forwarder, relay, log)
	chatLimiter := middleware.NewRateLimiter(store, cfg.RateLimit.Requests, cfg.RateLimit.Window, log)

	// ──── Step 5: Start HTTP Server ────
	r := router.New(chatHandler, chatLimiter, log, cfg.FrontendURL)

	server := &http.Server{
		Addr:        fmt.Sprintf(":%s", cfg.Port),
		Handler:     r,
		ReadTimeout: 15 * time.Second,
		// Responses stream for as long as generation runs.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Info("shutting down")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}()

	log.Info("gateway ready", "addr", "http://localhost:"+cfg.Port, "chat", "/api/chat")

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}
