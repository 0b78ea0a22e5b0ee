package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/liliang-cn/docchat/internal/domain"
)

// StatusFor maps a service error to an HTTP status.
func StatusFor(err error) int {
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	switch domain.KindOf(err) {
	case domain.KindDocumentNotFound, domain.KindSessionNotFound:
		return http.StatusNotFound
	case domain.KindUnsupportedContentType:
		return http.StatusUnsupportedMediaType
	case domain.KindInvalidRequest:
		return http.StatusBadRequest
	case domain.KindEmbeddingService, domain.KindCompletionService, domain.KindDelegation,
		domain.KindIndexWrite, domain.KindIndexQuery, domain.KindIndexDelete:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// AbortWithError writes err as {"error": "..."} with its mapped status.
func AbortWithError(c *gin.Context, err error) {
	_ = c.Error(err)
	c.AbortWithStatusJSON(StatusFor(err), gin.H{"error": err.Error()})
}
