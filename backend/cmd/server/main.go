package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"trails/backend/internal/api"
	"trails/backend/internal/graph"
	"trails/backend/internal/services"
	"trails/backend/pkg/config"
	"trails/backend/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load("")
	if err != nil {
		panic(fmt.Sprintf("Failed to load configuration: %v", err))
	}

	// Initialize logger
	if err := logger.Init(cfg.General.Env, cfg.General.Debug); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	log := logger.Get()
	log.Info("Starting HTTP API server...")

	ctx := context.Background()
	sm, err := services.NewServiceManager(ctx, cfg)
	if err != nil {
		log.Fatal("Failed to initialize services", zap.Error(err))
	}

	if err := graph.EnsureSchema(ctx, sm.Store); err != nil {
		log.Warn("Schema is incomplete", zap.Error(err))
	}

	// Setup Gin router
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := api.NewRouter(deps(sm), log)

	// Start server
	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	// Graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	log.Info("Server started",
		zap.String("port", cfg.Server.Port),
		zap.String("vector_backend", cfg.VectorIndex.Backend),
	)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if err := sm.Shutdown(shutdownCtx); err != nil {
		log.Error("Failed to close services", zap.Error(err))
	}

	log.Info("Server exited")
}

func deps(sm *services.ServiceManager) api.Deps {
	return api.Deps{
		Repo:         sm.Repo,
		Vectors:      sm.Vectors,
		Similarity:   sm.Similarity,
		Pipeline:     sm.Pipeline,
		Ingestor:     sm.Ingestor,
		Loader:       sm.Loader,
		Chunker:      sm.Chunker,
		ChunkSize:    sm.Config.TextProcessing.ChunkSize,
		ChunkOverlap: sm.Config.TextProcessing.ChunkOverlap,
	}
}
