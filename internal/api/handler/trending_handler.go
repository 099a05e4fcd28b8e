package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/trending/internal/model"
	"github.com/d60-Lab/trending/internal/service"
	"github.com/d60-Lab/trending/pkg/response"
)

type recordViewRequest struct {
	ItemType  string     `json:"item_type" binding:"required"`
	ItemID    string     `json:"item_id" binding:"required,max=64"`
	Amount    int64      `json:"amount" binding:"gte=0"`
	Timestamp *time.Time `json:"timestamp"`
}

type reindexRequest struct {
	Cutoff *time.Time `json:"cutoff"`
}

type evictRequest struct {
	MaxRetained *int64   `json:"max_retained"`
	MinScore    *float64 `json:"min_score" binding:"omitempty,gte=0"`
}

func (h *Handler) itemType(c *gin.Context) (model.ItemType, bool) {
	t, ok := model.ParseItemType(c.Param("item_type"))
	if !ok {
		response.BadRequest(c, service.ErrInvalidItemType.Error())
	}
	return t, ok
}

// RecordView 记录一次（或一批）浏览
// @Summary 记录浏览
// @Tags 热度
// @Accept json
// @Produce json
// @Param request body recordViewRequest true "浏览事件，timestamp 缺省为服务端当前时间"
// @Success 200 {object} response.Response{data=model.TrendingRecord}
// @Failure 400 {object} response.Response
// @Failure 409 {object} response.Response
// @Failure 503 {object} response.Response
// @Router /api/v1/trending/views [post]
func (h *Handler) RecordView(c *gin.Context) {
	var req recordViewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	now := h.now()
	if req.Timestamp != nil {
		now = *req.Timestamp
	}
	rec, err := h.trending.RecordView(c.Request.Context(), model.ItemType(req.ItemType), req.ItemID, req.Amount, now)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, rec)
}

// GetItem 查询条目热度
// @Summary 查询热度
// @Tags 热度
// @Produce json
// @Param item_id path string true "条目ID"
// @Success 200 {object} response.Response{data=model.TrendingRecord}
// @Failure 404 {object} response.Response
// @Router /api/v1/trending/items/{item_id} [get]
func (h *Handler) GetItem(c *gin.Context) {
	rec, err := h.trending.Lookup(c.Request.Context(), c.Param("item_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if rec == nil {
		response.NotFound(c, "trending record not found")
		return
	}
	response.Success(c, rec)
}

// DeleteItem 条目被删除时清理热度记录（幂等）；配置了删除队列时异步执行并返回 202
// @Summary 删除热度记录
// @Tags 热度
// @Param item_id path string true "条目ID"
// @Success 200 {object} response.Response
// @Success 202 {object} response.Response
// @Router /api/v1/trending/items/{item_id} [delete]
func (h *Handler) DeleteItem(c *gin.Context) {
	itemID := c.Param("item_id")
	if h.deletions != nil && h.deletions.Enqueue(itemID) {
		response.Accepted(c, gin.H{"item_id": itemID})
		return
	}
	if err := h.trending.OnItemDeleted(c.Request.Context(), itemID); err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, nil)
}

// Reindex 手动触发衰减重算
// @Summary 重算热度
// @Tags 热度
// @Accept json
// @Produce json
// @Param item_type path string true "条目类型 post/user"
// @Param request body reindexRequest false "cutoff 缺省为当前时间"
// @Success 200 {object} response.Response{data=service.ReindexStats}
// @Router /api/v1/trending/{item_type}/reindex [post]
func (h *Handler) Reindex(c *gin.Context) {
	t, ok := h.itemType(c)
	if !ok {
		return
	}
	var req reindexRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
	}
	cutoff := h.now()
	if req.Cutoff != nil {
		cutoff = *req.Cutoff
	}
	stats, err := h.trending.Reindex(c.Request.Context(), t, cutoff)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, stats)
}

// EvictTail 手动触发尾部淘汰，参数缺省取配置中的保留策略
// @Summary 淘汰尾部条目
// @Tags 热度
// @Accept json
// @Produce json
// @Param item_type path string true "条目类型 post/user"
// @Param request body evictRequest false "保留策略覆盖"
// @Success 200 {object} response.Response{data=service.EvictStats}
// @Router /api/v1/trending/{item_type}/evict [post]
func (h *Handler) EvictTail(c *gin.Context) {
	t, ok := h.itemType(c)
	if !ok {
		return
	}
	var req evictRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
	}
	policy, _ := h.retention.For(string(t))
	if req.MaxRetained != nil {
		policy.MaxRetained = *req.MaxRetained
	}
	if req.MinScore != nil {
		policy.MinScore = *req.MinScore
	}
	stats, err := h.trending.EvictTail(c.Request.Context(), t, policy.MaxRetained, policy.MinScore)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, stats)
}
