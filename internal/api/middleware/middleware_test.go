package middleware

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/liliang-cn/docchat/internal/domain"
	"github.com/stretchr/testify/assert"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestAuth(t *testing.T) {
	r := gin.New()
	r.Use(Auth("secret"))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	tests := []struct {
		name   string
		header string
		value  string
		want   int
	}{
		{"missing", "", "", http.StatusUnauthorized},
		{"wrong key", "X-API-Key", "nope", http.StatusUnauthorized},
		{"api key header", "X-API-Key", "secret", http.StatusNoContent},
		{"bearer", "Authorization", "Bearer secret", http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/x", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestAuth_DisabledWithoutKey(t *testing.T) {
	r := gin.New()
	r.Use(Auth(""))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestOwner(t *testing.T) {
	r := gin.New()
	r.Use(Owner())
	r.GET("/x", func(c *gin.Context) {
		owner, ok := domain.OwnerFrom(c.Request.Context())
		assert.True(t, ok)
		c.String(http.StatusOK, OwnerID(c)+"|"+owner)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(OwnerHeader, " ownerA ")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ownerA|ownerA", rec.Body.String())
}

func TestCORS(t *testing.T) {
	r := gin.New()
	r.Use(CORS([]string{"http://localhost:5173"}))
	r.POST("/api/chat", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/api/chat", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))

	all := gin.New()
	all.Use(CORS([]string{"*"}))
	all.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://other.test")
	rec = httptest.NewRecorder()
	all.ServeHTTP(rec, req)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.ErrDocumentNotFound, http.StatusNotFound},
		{domain.ErrSessionNotFound, http.StatusNotFound},
		{domain.ErrUnsupportedContentType, http.StatusUnsupportedMediaType},
		{domain.ErrInvalidRequest, http.StatusBadRequest},
		{domain.ErrEmbeddingService, http.StatusBadGateway},
		{domain.ErrCompletionService, http.StatusBadGateway},
		{domain.ErrDelegation, http.StatusBadGateway},
		{domain.ErrIndexQuery, http.StatusBadGateway},
		{domain.ErrStorage, http.StatusInternalServerError},
		{fmt.Errorf("wrapped: %w", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{fmt.Errorf("plain"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusFor(tt.err), tt.err.Error())
	}
}
