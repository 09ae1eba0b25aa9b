package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/kaundalvikas21/dummy-ticket-sub001/internal/app"
	"github.com/kaundalvikas21/dummy-ticket-sub001/internal/config"
	"github.com/kaundalvikas21/dummy-ticket-sub001/internal/export"
	"github.com/kaundalvikas21/dummy-ticket-sub001/internal/gitrepo"
	"github.com/kaundalvikas21/dummy-ticket-sub001/internal/logging"
	"github.com/kaundalvikas21/dummy-ticket-sub001/internal/media"
	"github.com/kaundalvikas21/dummy-ticket-sub001/internal/reconcile"
	"github.com/kaundalvikas21/dummy-ticket-sub001/internal/search"
	"github.com/kaundalvikas21/dummy-ticket-sub001/internal/session"
	"github.com/kaundalvikas21/dummy-ticket-sub001/internal/store"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.WithError(err).Fatal("database connection failed")
	}
	defer db.Close()

	if _, err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir, logger); err != nil {
		logger.WithError(err).Fatal("migrations failed")
	}

	if err := os.MkdirAll(cfg.RevisionsDir, 0o755); err != nil {
		logger.WithError(err).Fatal("failed to create revisions dir")
	}

	storage, err := media.NewMinioStorage(media.MinioConfig{
		Endpoint:      cfg.MinioEndpoint,
		Region:        cfg.MinioRegion,
		Bucket:        cfg.MinioBucket,
		AccessKey:     cfg.MinioAccessKey,
		SecretKey:     cfg.MinioSecretKey,
		UseSSL:        cfg.MinioUseSSL,
		PublicBaseURL: cfg.MediaPublicBaseURL,
	})
	if err != nil {
		logger.WithError(err).Fatal("object storage setup failed")
	}
	if err := storage.EnsureBucket(ctx); err != nil {
		logger.WithError(err).Fatal("object storage bucket unavailable")
	}

	markupMode, err := reconcile.ParseMarkupMode(cfg.MarkupMode)
	if err != nil {
		logger.WithError(err).Fatal("invalid EDITOR_MARKUP_MODE")
	}
	engine := reconcile.New(storage, reconcile.Options{
		Folder:      cfg.MediaFolder,
		Concurrency: cfg.UploadConcurrency,
		MarkupMode:  markupMode,
		Logger:      logger,
	})

	dataStore := store.NewPostgresStore(db)
	pgfts := search.NewPgFTS(db)
	var index search.Backend
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient := search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, logger)
		defer meiliClient.Close()
		index = meiliClient
	}
	searchService := search.NewService(index, pgfts, pgfts, logger)
	go searchService.ReindexAll(ctx)

	registries := app.RegistryFactory(func(string) media.Registry { return media.NewMemoryRegistry() })
	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisStore, err := session.NewRedisStore(cfg.RedisURL)
		if err != nil {
			logger.WithError(err).Fatal("redis connection failed")
		}
		defer redisStore.Close()
		logger.Info("pending media registries stored in redis")
		registries = func(sessionID string) media.Registry {
			return redisStore.Registry(sessionID, cfg.EditorSessionTTL)
		}
	}

	service := app.New(cfg, app.Deps{
		Store:      dataStore,
		Engine:     engine,
		Registries: registries,
		Search:     searchService,
		Revisions:  gitrepo.New(cfg.RevisionsDir),
		Exporter:   export.NewService(dataStore),
		Logger:     logger,
	})

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin, logger)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.WithField("addr", cfg.Addr).Info("content API listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("server failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("shutdown error")
	}
	logger.WithFields(logrus.Fields{"addr": cfg.Addr}).Info("content API stopped")
}
