package documents

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/liliang-cn/docchat/internal/api/middleware"
	"github.com/liliang-cn/docchat/internal/service"
)

// Handler handles document API requests
type Handler struct {
	documents *service.DocumentService
	ingest    *service.IngestService
}

// NewHandler creates a new document handler
func NewHandler(documents *service.DocumentService, ingest *service.IngestService) *Handler {
	return &Handler{documents: documents, ingest: ingest}
}

// RegisterRoutes registers document routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	documents := r.Group("/documents")
	{
		documents.POST("", h.Upload)
		documents.GET("", h.List)
		documents.GET("/:id", h.Get)
		documents.POST("/:id/embed", h.Embed)
		documents.DELETE("/:id/vectors", h.DeleteVectors)
		documents.DELETE("/:id", h.Delete)
	}
}

func (h *Handler) Upload(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}

	metadata := make(map[string]any)
	if metaStr := c.PostForm("metadata"); metaStr != "" {
		if err := json.Unmarshal([]byte(metaStr), &metadata); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid metadata JSON"})
			return
		}
	}

	f, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read file"})
		return
	}
	defer f.Close()

	doc, err := h.documents.Upload(c.Request.Context(), middleware.OwnerID(c), service.UploadInput{
		Filename:    file.Filename,
		ContentType: file.Header.Get("Content-Type"),
		Body:        f,
		Metadata:    metadata,
	})
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, doc)
}

func (h *Handler) List(c *gin.Context) {
	result, err := h.documents.List(c.Request.Context(), middleware.OwnerID(c))
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *Handler) Get(c *gin.Context) {
	doc, err := h.documents.Get(c.Request.Context(), middleware.OwnerID(c), c.Param("id"))
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, doc)
}

// Embed runs ingestion for one of the caller's documents and waits for it.
func (h *Handler) Embed(c *gin.Context) {
	ctx := c.Request.Context()
	doc, err := h.documents.Get(ctx, middleware.OwnerID(c), c.Param("id"))
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	result, err := h.ingest.IngestDocument(ctx, doc.ID)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *Handler) DeleteVectors(c *gin.Context) {
	if err := h.documents.DeleteDocumentVectors(c.Request.Context(), c.Param("id")); err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "vectors deleted"})
}

func (h *Handler) Delete(c *gin.Context) {
	if err := h.documents.Delete(c.Request.Context(), middleware.OwnerID(c), c.Param("id")); err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "document deleted"})
}
