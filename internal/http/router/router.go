package router

import (
	"deepresearch.app/agent/internal/events"
	"deepresearch.app/agent/internal/http/handler"
	"deepresearch.app/agent/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

type Config struct {
	Research  *service.ResearchService
	Redis     *redis.Client     // nil disables the SSE stream
	Publisher *events.Publisher // nil disables the SSE stream
}

func SetupRoutes(router *gin.Engine, cfg Config) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	researchHandler := handler.NewResearchHandler(cfg.Research)

	v1 := router.Group("/v1")
	{
		v1.POST("/query", researchHandler.Start)
		v1.GET("/task/:task_id", researchHandler.Get)

		if cfg.Redis != nil && cfg.Publisher != nil {
			streamHandler := handler.NewStreamHandler(cfg.Redis, cfg.Publisher)
			v1.GET("/stream/:task_id", streamHandler.Stream)
		}
	}
}
