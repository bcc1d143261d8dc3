package api

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"trails/backend/internal/chunker"
	"trails/backend/internal/graph"
	"trails/backend/internal/linker"
	"trails/backend/internal/loader"
	"trails/backend/internal/vectorindex"
)

type linkRequest struct {
	Origins          []graph.NodeRef `json:"origins" binding:"required"`
	Targets          []graph.NodeRef `json:"targets" binding:"required"`
	RelationshipType string          `json:"relationship_type"`
	Properties       map[string]any  `json:"properties"`
	Force            bool            `json:"force"`
	Bidirectional    bool            `json:"bidirectional"`
}

type sequenceRequest struct {
	Targets          []graph.NodeRef `json:"targets" binding:"required"`
	Origins          []graph.NodeRef `json:"origins"`
	RelationshipType string          `json:"relationship_type"`
	Properties       map[string]any  `json:"properties"`
	Force            bool            `json:"force"`
	Bidirectional    bool            `json:"bidirectional"`
	CloseLoop        bool            `json:"close_loop"`
}

type similarityRequest struct {
	Threshold     *float64 `json:"threshold"`
	Label         string   `json:"label"`
	IndexName     string   `json:"index_name"`
	MaxNodes      int      `json:"max_nodes"`
	Bidirectional bool     `json:"bidirectional"`
	Force         bool     `json:"force"`
}

func (r similarityRequest) options() linker.SimilarityOptions {
	return linker.SimilarityOptions{
		Threshold:     r.Threshold,
		Label:         r.Label,
		IndexName:     r.IndexName,
		MaxNodes:      r.MaxNodes,
		Bidirectional: r.Bidirectional,
		Force:         r.Force,
	}
}

type textSimilarityRequest struct {
	similarityRequest
	Text  string `json:"text" binding:"required"`
	Fuzzy bool   `json:"fuzzy"`
}

type searchRequest struct {
	Text      string   `json:"text" binding:"required"`
	K         int      `json:"k"`
	Threshold *float64 `json:"threshold"`
	Label     string   `json:"label"`
	IndexName string   `json:"index_name"`
}

type chunksRequest struct {
	Text                     string          `json:"text"`
	Label                    string          `json:"label"`
	Chunker                  string          `json:"chunker"`
	RelationshipType         string          `json:"relationship_type"`
	SequenceRelationshipType string          `json:"sequence_relationship_type"`
	ParentIDs                []graph.NodeRef `json:"parent_ids"`
	ParentLinking            string          `json:"parent_linking"`
	IndexName                string          `json:"index_name"`
	Properties               map[string]any  `json:"properties"`
}

type documentRequest struct {
	Text   string `json:"text"`
	Title  string `json:"title"`
	Source string `json:"source"`
}

func (h *Handler) getNode(c *gin.Context) {
	ref, err := graph.ParseNodeRef(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	node, ok := h.deps.Repo.FindNodeByID(c.Request.Context(), ref)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Node not found"})
		return
	}
	c.JSON(http.StatusOK, node)
}

func (h *Handler) linkNodes(c *gin.Context) {
	var req linkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	report, err := h.deps.Repo.LinkNodes(c.Request.Context(), req.Origins, req.Targets, graph.LinkOptions{
		RelationshipType: req.RelationshipType,
		EdgeProperties:   req.Properties,
		Force:            req.Force,
		Bidirectional:    req.Bidirectional,
	})
	if err != nil {
		h.fail(c, "Failed to link nodes", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"report": report, "ok": report.OK()})
}

func (h *Handler) linkSequence(c *gin.Context) {
	var req sequenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	report, err := h.deps.Repo.LinkSequentially(c.Request.Context(), req.Targets, graph.SequenceOptions{
		LinkOptions: graph.LinkOptions{
			RelationshipType: req.RelationshipType,
			EdgeProperties:   req.Properties,
			Force:            req.Force,
			Bidirectional:    req.Bidirectional,
		},
		Origins:   req.Origins,
		CloseLoop: req.CloseLoop,
	})
	if err != nil {
		h.fail(c, "Failed to link nodes sequentially", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"report": report, "ok": report.OK()})
}

func (h *Handler) linkSimilarByID(c *gin.Context) {
	ref, err := graph.ParseNodeRef(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var req similarityRequest
	// An empty body keeps every default.
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.deps.Similarity.FindAndLinkSimilarByID(c.Request.Context(), ref, req.options())
	if err != nil {
		h.fail(c, "Failed to link similar nodes", err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) linkSimilarByText(c *gin.Context) {
	var req textSimilarityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx := c.Request.Context()

	if req.Fuzzy {
		results, err := h.deps.Similarity.FindAndLinkSimilarByTextFuzzy(ctx, req.Text, req.options())
		if err != nil {
			h.fail(c, "Failed to link similar nodes", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"results": results})
		return
	}

	res, err := h.deps.Similarity.FindAndLinkSimilarByText(ctx, req.Text, req.options())
	if err != nil {
		h.fail(c, "Failed to link similar nodes", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": []linker.SimilarityResult{res}})
}

func (h *Handler) search(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	neighbors, err := h.deps.Vectors.SimilaritySearch(c.Request.Context(), req.Text, vectorindex.SearchOptions{
		K:         req.K,
		Threshold: req.Threshold,
		IndexName: req.IndexName,
		Label:     req.Label,
	})
	if err != nil {
		h.fail(c, "Similarity search failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"neighbors": neighbors})
}

func (h *Handler) saveChunks(c *gin.Context) {
	var req chunksRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	split := h.deps.Chunker
	if req.Chunker != "" {
		var err error
		split, err = chunker.New(req.Chunker, h.deps.ChunkSize, h.deps.ChunkOverlap)
		if err != nil {
			h.fail(c, "Unknown chunker", err)
			return
		}
	}

	refs, err := h.deps.Pipeline.SaveAndLinkSequentially(c.Request.Context(), linker.SaveRequest{
		Label:                    req.Label,
		Text:                     req.Text,
		Chunker:                  split,
		RelationshipType:         req.RelationshipType,
		SequenceRelationshipType: req.SequenceRelationshipType,
		ParentIDs:                req.ParentIDs,
		ParentLinking:            req.ParentLinking,
		IndexName:                req.IndexName,
		Properties:               req.Properties,
	})
	if err != nil {
		h.fail(c, "Failed to save chunks", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ids": refs})
}

func (h *Handler) ingestDocument(c *gin.Context) {
	if h.deps.Ingestor == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "Document ingestion is not configured"})
		return
	}
	var req documentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx := c.Request.Context()

	doc := loader.Document{Source: req.Source, Title: req.Title, Text: req.Text}
	if doc.Text == "" {
		// Only remote sources are fetched; the server never reads local paths.
		remote := strings.HasPrefix(req.Source, "http://") || strings.HasPrefix(req.Source, "https://")
		if !remote || h.deps.Loader == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "text or an http(s) source is required"})
			return
		}
		loaded, err := h.deps.Loader.Load(ctx, req.Source)
		if err != nil {
			h.logger.Warn("Failed to load document", zap.String("source", req.Source), zap.Error(err))
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		doc = *loaded
		if req.Title != "" {
			doc.Title = req.Title
		}
	}

	res, err := h.deps.Ingestor.Ingest(ctx, doc)
	if err != nil {
		h.fail(c, "Failed to ingest document", err)
		return
	}
	status := http.StatusCreated
	if res.Existing {
		status = http.StatusOK
	}
	c.JSON(status, res)
}
