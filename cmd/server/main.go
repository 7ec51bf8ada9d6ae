package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/Brownie44l1/qualitycast/internal/cache"
	"github.com/Brownie44l1/qualitycast/internal/config"
	"github.com/Brownie44l1/qualitycast/internal/handlers"
	"github.com/Brownie44l1/qualitycast/internal/history"
	"github.com/Brownie44l1/qualitycast/internal/logger"
	"github.com/Brownie44l1/qualitycast/internal/metrics"
	"github.com/Brownie44l1/qualitycast/internal/model"
	"github.com/Brownie44l1/qualitycast/internal/pipeline"
)

func main() {
	// If running from cmd/server, work from the project root so the default
	// relative paths resolve.
	if wd, err := os.Getwd(); err == nil && filepath.Base(wd) == "server" {
		_ = os.Chdir(filepath.Join(wd, "../.."))
	}

	cfg, err := config.Load(os.Getenv("QUALITYCAST_CONFIG"))
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	metrics.Init()

	meta, err := model.LoadMetadata(cfg.Model.MetadataPath)
	if err != nil {
		logger.Fatal("Failed to load model metadata", zap.Error(err))
	}

	labels, err := model.LoadLabels(cfg.Model.LabelsPath)
	if errors.Is(err, model.ErrMissingLabelFile) && len(meta.Classes) > 0 {
		logger.Warn("Label file missing, using classes from metadata", zap.String("path", cfg.Model.LabelsPath))
		labels, err = meta.Classes, nil
	}
	if err != nil {
		logger.Fatal("Failed to load labels", zap.Error(err))
	}

	logger.Info("Loading model", zap.String("path", cfg.Model.Path))
	modelServer, err := model.NewServer(cfg.Model.Path, meta, cfg.Model.LibraryPath)
	if err != nil {
		logger.Fatal("Failed to initialize model server", zap.Error(err))
	}
	defer modelServer.Close()

	modelDigest, err := model.FileDigest(cfg.Model.Path)
	if err != nil {
		logger.Fatal("Failed to fingerprint model", zap.Error(err))
	}

	store, err := history.Open(cfg.History.Backend, cfg.History.CSVPath, cfg.History.SQLitePath)
	if err != nil {
		logger.Fatal("Failed to open history store", zap.Error(err))
	}
	defer store.Close()

	predictionCache, err := cache.New(cache.Options{
		Backend:       cfg.Cache.Backend,
		TTL:           time.Duration(cfg.Cache.TTLSeconds) * time.Second,
		MaxSize:       cfg.Cache.MaxSize,
		RedisHost:     cfg.Redis.Host,
		RedisPort:     cfg.Redis.Port,
		RedisPassword: cfg.Redis.Password,
		RedisDB:       cfg.Redis.DB,
	})
	if err != nil {
		logger.Fatal("Failed to initialize prediction cache", zap.Error(err))
	}
	if closer, ok := predictionCache.(io.Closer); ok {
		defer closer.Close()
	}

	p, err := pipeline.New(pipeline.Resources{
		Metadata:  meta,
		Labels:    labels,
		Predictor: modelServer,
		Cache:     predictionCache,
		History:   store,
		TopN:      cfg.Classify.TopN,

		ModelDigest:    modelDigest,
		MaxImagePixels: cfg.Server.MaxImagePixels,
	})
	if err != nil {
		logger.Fatal("Failed to build classification pipeline", zap.Error(err))
	}

	handler, err := handlers.NewHandler(p, handlers.Options{
		Title:          cfg.UI.Title,
		OKClass:        cfg.UI.OKClass,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
	})
	if err != nil {
		logger.Fatal("Failed to initialize handlers", zap.Error(err))
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler.Routes(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	logger.Info("Server starting",
		zap.String("address", addr),
		zap.Strings("classes", labels),
		zap.String("history_backend", cfg.History.Backend),
		zap.String("cache_backend", cfg.Cache.Backend),
		zap.Int("top_n", cfg.Classify.TopN),
	)
	logger.Info("Endpoints",
		zap.Strings("pages", []string{"GET /", "POST /", "GET /history", "GET /how-to", "GET /about"}),
		zap.Strings("api", []string{"GET /health", "POST /predict", "POST /predict/image", "GET /api/history", "GET /metrics"}),
	)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Server shutting down gracefully...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server shutdown failed", zap.Error(err))
	}
	logger.Info("Server stopped")
}
