package handler

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/trending/config"
	"github.com/d60-Lab/trending/internal/repository"
	"github.com/d60-Lab/trending/internal/service"
	"github.com/d60-Lab/trending/pkg/response"
)

// Handler HTTP 处理器集合
type Handler struct {
	trending  service.TrendingService
	deletions *service.DeletionQueue
	retention config.RetentionSet
	now       func() time.Time
}

func NewHandler(trending service.TrendingService, retention config.RetentionSet) *Handler {
	return &Handler{trending: trending, retention: retention, now: time.Now}
}

// WithDeletionQueue 删除钩子改为异步投递
func (h *Handler) WithDeletionQueue(q *service.DeletionQueue) *Handler {
	h.deletions = q
	return h
}

// writeError 将领域错误映射为 HTTP 状态码
func writeError(c *gin.Context, err error) {
	var exhausted *service.RetryExhaustedError
	switch {
	case errors.As(err, &exhausted):
		response.ServiceUnavailable(c, err.Error())
	case errors.Is(err, service.ErrInvalidItemType),
		errors.Is(err, service.ErrInvalidItemID),
		errors.Is(err, repository.ErrInvalidAmount),
		errors.Is(err, repository.ErrInvalidScore):
		response.BadRequest(c, err.Error())
	case errors.Is(err, repository.ErrNotFound):
		response.NotFound(c, err.Error())
	case errors.Is(err, repository.ErrAlreadyExists),
		errors.Is(err, repository.ErrInvalidOrdering),
		errors.Is(err, repository.ErrStaleIndex),
		errors.Is(err, service.ErrItemTypeMismatch):
		response.Conflict(c, err.Error())
	default:
		response.InternalError(c, err)
	}
}

// Health 健康检查
// @Summary 健康检查
// @Tags 系统
// @Produce json
// @Success 200 {object} response.Response
// @Router /health [get]
func (h *Handler) Health(c *gin.Context) {
	response.Success(c, gin.H{"status": "ok"})
}
