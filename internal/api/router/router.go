package router

import (
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/d60-Lab/trending/config"
	_ "github.com/d60-Lab/trending/docs"
	"github.com/d60-Lab/trending/internal/api/handler"
	"github.com/d60-Lab/trending/pkg/middleware"
)

// Setup 注册中间件与路由
func Setup(cfg *config.Config, h *handler.Handler) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.Tracing.Enabled {
		r.Use(otelgin.Middleware(cfg.Tracing.ServiceName))
	}
	r.Use(middleware.RequestID(), middleware.Logger())
	r.Use(gzip.Gzip(gzip.DefaultCompression))

	r.GET("/health", h.Health)
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	v1 := r.Group("/api/v1")
	{
		trending := v1.Group("/trending")
		trending.POST("/views", h.RecordView)
		trending.GET("/items/:item_id", h.GetItem)
		trending.DELETE("/items/:item_id", h.DeleteItem)
		trending.POST("/:item_type/reindex", h.Reindex)
		trending.POST("/:item_type/evict", h.EvictTail)
	}
	return r
}
