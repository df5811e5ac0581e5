package http

import (
	"github.com/gin-gonic/gin"

	"docuchat/internal/bootstrap"
	"docuchat/internal/transport/http/handler"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	healthHandler := handler.NewHealthHandler(app)
	router.GET("/healthz", healthHandler.Check)

	var scheduler handler.IngestScheduler
	if app.IngestPublisher != nil {
		scheduler = app.IngestPublisher
	}
	documentHandler := handler.NewDocumentHandler(app.RAGService, scheduler)
	queryHandler := handler.NewQueryHandler(app.RAGService)
	statsHandler := handler.NewStatsHandler(app.RAGService)

	v1 := router.Group("/api/v1")
	v1.POST("/documents", documentHandler.Upload)
	v1.GET("/documents", documentHandler.List)
	v1.GET("/documents/:id", documentHandler.Get)
	v1.DELETE("/documents/:id", documentHandler.Delete)
	v1.DELETE("/documents", documentHandler.Clear)
	v1.POST("/query", queryHandler.Query)
	v1.GET("/stats", statsHandler.Stats)

	return router
}
