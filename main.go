// Package main is the entry point for the billbox invoice scanner service.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"gitlab.com/yelinaung/billbox/internal/config"
	"gitlab.com/yelinaung/billbox/internal/database"
	"gitlab.com/yelinaung/billbox/internal/extract"
	"gitlab.com/yelinaung/billbox/internal/gmail"
	"gitlab.com/yelinaung/billbox/internal/logger"
	"gitlab.com/yelinaung/billbox/internal/repository"
	"gitlab.com/yelinaung/billbox/internal/scan"
	"gitlab.com/yelinaung/billbox/internal/server"
	"gitlab.com/yelinaung/billbox/internal/storage"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "version" {
		fmt.Printf("billbox %s (commit: %s, built: %s)\n", version, commit, date)
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("Failed to load config")
	}

	logger.SetLevel(cfg.LogLevel)
	logger.InitHashSalt()

	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer pool.Close()

	if err := database.RunMigrations(ctx, pool); err != nil {
		logger.Log.Fatal().Err(err).Msg("Failed to run migrations")
	}

	if err := database.SeedProviders(ctx, pool); err != nil {
		logger.Log.Fatal().Err(err).Msg("Failed to seed providers")
	}

	logger.Log.Info().Msg("Database initialized successfully")

	objects, err := storage.New(ctx, storage.Config{
		Endpoint:  cfg.S3Endpoint,
		AccessKey: cfg.S3AccessKey,
		SecretKey: cfg.S3SecretKey,
		Bucket:    cfg.S3Bucket,
		UseSSL:    cfg.S3UseSSL,
	})
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("Failed to connect to object store")
	}

	extractor, err := extract.NewClient(ctx, cfg.GeminiAPIKey)
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("Failed to create Gemini client")
	}

	mail := gmail.NewClient(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.RedirectURL())

	invoices := repository.NewInvoiceRepository(pool)
	providers := repository.NewProviderRepository(pool)
	accounts := repository.NewEmailAccountRepository(pool)

	scanner := scan.NewService(
		scan.GmailConnector{Client: mail},
		extractor,
		objects,
		invoices,
		providers,
		accounts,
		cfg.ScanMaxResults,
	)

	gin.SetMode(gin.ReleaseMode)
	srv := server.New(server.Config{
		JWTSecret: cfg.JWTSecret,
		AppURL:    cfg.AppURL,
		Scans:     scanner,
		Invoices:  invoices,
		Providers: providers,
		Accounts:  accounts,
		Objects:   objects,
		Mail:      mail,
		Extractor: extractor,
	})

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           otelhttp.NewHandler(srv.Handler(), "billbox"),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		logger.Log.Info().Msg("Shutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Log.Error().Err(err).Msg("Graceful shutdown failed")
		}
		cancel()
	}()

	logger.Log.Info().Str("port", cfg.Port).Msg("Listening")
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Log.Fatal().Err(err).Msg("Server stopped")
	}
}
