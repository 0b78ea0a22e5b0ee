package chat

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/liliang-cn/docchat/internal/api/middleware"
	"github.com/liliang-cn/docchat/internal/domain"
	"github.com/liliang-cn/docchat/internal/service"
)

// Handler handles chat API requests
type Handler struct {
	chat *service.ChatService
}

// NewHandler creates a new chat handler
func NewHandler(chat *service.ChatService) *Handler {
	return &Handler{chat: chat}
}

// RegisterRoutes registers chat routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	chat := r.Group("/chat")
	{
		chat.POST("", h.Chat)
		chat.GET("/sessions", h.ListSessions)
		chat.GET("/sessions/:id/messages", h.ListMessages)
	}
}

func (h *Handler) Chat(c *gin.Context) {
	var req domain.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.chat.AnswerChatTurn(c.Request.Context(), req.Message, middleware.OwnerID(c), req.SessionID)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *Handler) ListSessions(c *gin.Context) {
	sessions, err := h.chat.ListSessions(c.Request.Context(), middleware.OwnerID(c))
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

func (h *Handler) ListMessages(c *gin.Context) {
	messages, err := h.chat.ListMessages(c.Request.Context(), middleware.OwnerID(c), c.Param("id"))
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": messages})
}
