package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"notable/api/internal/app"
	"notable/api/internal/cache"
	"notable/api/internal/config"
	"notable/api/internal/identity"
	"notable/api/internal/search"
	"notable/api/internal/session"
	"notable/api/internal/store"
	"notable/api/internal/summarize"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	dataStore := store.NewPostgresStore(db)

	identityClient := identity.New(cfg.IdentityURL, cfg.IdentityClientID, cfg.IdentityClientSecret)

	var chatClient *summarize.ChatClient
	if strings.TrimSpace(cfg.SummarizerAPIKey) != "" {
		chatClient = summarize.NewChatClient(cfg.SummarizerURL, cfg.SummarizerAPIKey, cfg.SummarizerModel)
	} else {
		log.Printf("No summarizer credential configured; summaries will be unavailable")
	}
	summarizer := summarize.NewService(chatClient)

	pgfts := search.NewPgFTS(db)
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
	}
	searchService := search.NewService(meiliClient, pgfts)
	if meiliClient != nil {
		defer meiliClient.Close()
	}

	var readCache *cache.Cache

	// Redis is optional: when configured it backs both the note read cache
	// and refresh-token storage.
	var service *app.Service
	if strings.TrimSpace(cfg.RedisURL) != "" {
		log.Printf("Using Redis for the read cache and refresh token storage")
		readCache, err = cache.New(cfg.RedisURL, cfg.CacheTTL)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer readCache.Close()
		redisStore, err := session.NewRedisStore(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer redisStore.Close()
		service = app.NewWithSessionStore(cfg, dataStore, redisStore, identityClient, summarizer, readCache, searchService)
	} else {
		log.Printf("Using PostgreSQL for refresh token storage; read cache disabled")
		service = app.New(cfg, dataStore, identityClient, summarizer, readCache, searchService)
	}

	if meiliClient != nil {
		searchService.ReindexAllFromPG(ctx)
	}

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Notable API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
