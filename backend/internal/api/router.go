// Package api exposes the graph, linking and ingestion operations over HTTP.
package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"trails/backend/internal/chunker"
	"trails/backend/internal/graph"
	"trails/backend/internal/ingest"
	"trails/backend/internal/linker"
	"trails/backend/internal/loader"
	"trails/backend/internal/vectorindex"

	apperrors "trails/backend/pkg/errors"
)

// Deps are the components the handlers call into. Ingestor and Loader may
// be nil, which disables document ingestion.
type Deps struct {
	Repo       *graph.Repository
	Vectors    *vectorindex.Manager
	Similarity *linker.SimilarityLinker
	Pipeline   *linker.Pipeline
	Ingestor   *ingest.Ingestor
	Loader     *loader.Loader
	// Chunker is used by /api/chunks when the request names none.
	Chunker chunker.Chunker
	// ChunkSize and ChunkOverlap configure chunkers named in a request.
	ChunkSize    int
	ChunkOverlap int
}

// Handler serves the HTTP API.
type Handler struct {
	deps   Deps
	logger *zap.Logger
}

// NewRouter builds the gin engine with logging, recovery and CORS.
func NewRouter(deps Deps, log *zap.Logger) *gin.Engine {
	h := &Handler{deps: deps, logger: log}

	router := gin.New()
	router.Use(ginLogger(log))
	router.Use(gin.Recovery())
	router.Use(cors())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	{
		api.GET("/nodes/:id", h.getNode)
		api.POST("/nodes/:id/similar", h.linkSimilarByID)
		api.POST("/links", h.linkNodes)
		api.POST("/links/sequence", h.linkSequence)
		api.POST("/similar/text", h.linkSimilarByText)
		api.POST("/search", h.search)
		api.POST("/chunks", h.saveChunks)
		api.POST("/documents", h.ingestDocument)
	}

	return router
}

func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// ginLogger logs every request through zap.
func ginLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		if raw != "" {
			path = path + "?" + raw
		}

		log.Info("HTTP Request",
			zap.Int("status", c.Writer.Status()),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", c.ClientIP()),
		)
	}
}

// statusFor maps a core error onto an HTTP status.
func statusFor(err error) int {
	var (
		notFound    *apperrors.ErrGraphNodeNotFound
		invalid     *apperrors.ErrInvalidIdentifier
		precond     *apperrors.ErrPreconditionViolated
		badConfig   *apperrors.ErrConfigValidationFailed
		unavailable *apperrors.ErrIndexUnavailable
	)
	switch {
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &invalid), errors.As(err, &precond), errors.As(err, &badConfig):
		return http.StatusBadRequest
	case errors.As(err, &unavailable):
		return http.StatusServiceUnavailable
	case apperrors.IsErrorType(err, apperrors.ErrorTypeContext):
		return http.StatusRequestTimeout
	}
	return http.StatusInternalServerError
}

func (h *Handler) fail(c *gin.Context, msg string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(msg, zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
