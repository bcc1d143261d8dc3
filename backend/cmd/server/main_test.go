package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"trails/backend/internal/api"
	"trails/backend/internal/graph/graphtest"
	"trails/backend/internal/services"
	"trails/backend/internal/vectorindex/vectortest"
	"trails/backend/pkg/config"
)

func newTestRouter(t *testing.T) (*gin.Engine, *graphtest.MemoryStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		VectorIndex: config.VectorIndexConfig{
			IndexName:           "vector",
			SimilarityThreshold: 0.75,
			SearchK:             5,
		},
		TextProcessing: config.TextProcessingConfig{Chunker: "paragraph", ChunkSize: 200, ChunkOverlap: 20},
	}
	mem := graphtest.New()
	sm, err := services.NewWithExecutor(cfg, mem, vectortest.NewBackend(), nil)
	require.NoError(t, err)

	d := deps(sm)
	assert.Equal(t, 200, d.ChunkSize)
	assert.Equal(t, 20, d.ChunkOverlap)
	return api.NewRouter(d, zap.NewNop()), mem
}

func TestHealthEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/health", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "ok", response["status"])
}

func TestChunksEndpoint_InvalidRequest(t *testing.T) {
	router, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/api/chunks", bytes.NewBuffer([]byte(`{}`)))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDocumentsEndpoint(t *testing.T) {
	router, mem := newTestRouter(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/api/documents", bytes.NewBuffer([]byte(`{"text":"First part.\n\nSecond part."}`)))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, 1, mem.CountNodes("Document"))
	assert.Equal(t, 2, mem.CountNodes("Section"))
}
