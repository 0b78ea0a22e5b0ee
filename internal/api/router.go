package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/liliang-cn/docchat/internal/api/chat"
	"github.com/liliang-cn/docchat/internal/api/documents"
	"github.com/liliang-cn/docchat/internal/api/middleware"
	"github.com/liliang-cn/docchat/internal/service"
	"go.uber.org/zap"
)

// RouterConfig holds configuration for the router
type RouterConfig struct {
	APIKey         string
	AllowOrigins   []string
	MaxUploadBytes int64
}

// Services bundles the handlers' dependencies
type Services struct {
	Documents *service.DocumentService
	Ingest    *service.IngestService
	Chat      *service.ChatService
}

// SetupRouter sets up the Gin router
func SetupRouter(svc Services, cfg RouterConfig, logger *zap.Logger) *gin.Engine {
	if logger == nil {
		logger = zap.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(logger.Named("http")))
	r.Use(middleware.CORS(cfg.AllowOrigins))
	if cfg.MaxUploadBytes > 0 {
		// Leave room for the multipart envelope.
		r.MaxMultipartMemory = cfg.MaxUploadBytes + 1<<20
	}

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// API (requires API key and owner)
	group := r.Group("/api")
	group.Use(middleware.Auth(cfg.APIKey), middleware.Owner())
	documents.NewHandler(svc.Documents, svc.Ingest).RegisterRoutes(group)
	chat.NewHandler(svc.Chat).RegisterRoutes(group)

	return r
}
