package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/meur/anythink/internal/api"
	"github.com/meur/anythink/internal/auth"
	"github.com/meur/anythink/internal/config"
	"github.com/meur/anythink/internal/events"
	"github.com/meur/anythink/internal/imagegen"
	"github.com/meur/anythink/internal/items"
	"github.com/meur/anythink/internal/storage"
	"github.com/meur/anythink/internal/users"
)

func main() {
	log := logrus.New()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.WithError(err).Warn("could not load .env")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	// Parse flags
	port := flag.String("port", cfg.Port, "Server port")
	dbPath := flag.String("db", cfg.DBPath, "SQLite database path")
	flag.Parse()

	configureLogger(log, cfg)

	// Initialize storage
	store, err := storage.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	defer store.Close()

	dispatcher := events.NewDispatcher(newSink(cfg, log), cfg.EventBuffer, log)

	var images imagegen.Generator = imagegen.Disabled{}
	if cfg.OpenAIKey != "" {
		images = imagegen.NewOpenAIClient(cfg.ImageAPIURL, cfg.OpenAIKey, cfg.ImageSize, cfg.ImageTimeout, log)
	} else {
		log.Info("OPENAI_API_KEY not set, image generation disabled")
	}

	tokens := auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTTTL)
	srv := api.New(api.Deps{
		Items:       items.NewService(store, images, dispatcher, cfg.ImageTimeout, log),
		Users:       users.NewService(store, tokens, log),
		Tokens:      tokens,
		UserFinder:  store,
		Store:       store,
		Log:         log,
		CORSOrigins: cfg.CORSOrigins,
		StaticDir:   cfg.StaticDir,
	})

	httpServer := &http.Server{
		Addr:         ":" + *port,
		Handler:      srv,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.ImageTimeout + 10*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.WithFields(logrus.Fields{"port": *port, "db": *dbPath}).Info("Anythink API starting")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	log.Info("server is shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.WithError(err).Error("graceful shutdown failed")
	}
	if err := dispatcher.Close(ctx); err != nil {
		log.WithError(err).Warn("pending events were not delivered")
	}
}

func configureLogger(log *logrus.Logger, cfg *config.Config) {
	if cfg.LogFormat == "text" {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		log.SetFormatter(&logrus.JSONFormatter{})
	}
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.WithError(err).Warnf("unknown LOG_LEVEL %q, using info", cfg.LogLevel)
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
}

func newSink(cfg *config.Config, log *logrus.Logger) events.Sink {
	if cfg.RedisAddr == "" {
		return events.NewLogSink(log)
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.WithError(err).WithField("addr", cfg.RedisAddr).Warn("redis unreachable, event delivery will fail until it recovers")
	}
	return events.NewRedisSink(client, cfg.RedisChannel)
}
