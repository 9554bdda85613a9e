package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/seelix/docqa/internal/middleware"
)

type RouterDeps struct {
	Webhooks  *WebhookHandler
	Documents *DocumentHandler
	Chat      *ChatHandler
	JWTSecret []byte
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	api.POST("/webhooks/storage", deps.Webhooks.Storage)

	authGroup := api.Group("")
	authGroup.Use(middleware.JWTAuth(deps.JWTSecret))
	authGroup.GET("/folders", deps.Documents.ListFolders)
	authGroup.POST("/documents", deps.Documents.Register)
	authGroup.GET("/documents", deps.Documents.List)
	authGroup.GET("/documents/:id", deps.Documents.Get)
	authGroup.GET("/documents/:id/file", deps.Documents.Download)
	authGroup.POST("/chat", middleware.RateLimit(time.Second), deps.Chat.Ask)
}
