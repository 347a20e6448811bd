package main

import (
	"log"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"
	"github.com/stripe/stripe-go/v82"

	"mcplabs.co.uk/licensing/handlers"
	"mcplabs.co.uk/licensing/internal/config"
	"mcplabs.co.uk/licensing/internal/logger"
	"mcplabs.co.uk/licensing/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("configuration error: %v", err)
	}

	logger.SetLevel(logger.ParseLevel(cfg.LogLevel))

	if cfg.SentryDSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			TracesSampleRate: 1.0,
		})
		if err != nil {
			log.Fatalf("sentry.Init: %s", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	stripe.Key = cfg.StripeSecretKey

	store, err := storage.NewSQLiteStorage(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("failed to open storage: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close storage", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	server := handlers.NewServer(cfg, store)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      server.Router,
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	logger.Info("Licensing service starting", map[string]interface{}{
		"port":     cfg.Port,
		"database": cfg.DatabasePath,
	})
	log.Fatal(httpServer.ListenAndServe())
}
