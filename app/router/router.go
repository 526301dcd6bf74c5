package router

import (
	"comfygate/app/handler"
	"comfygate/app/middleware"

	"github.com/gin-gonic/gin"
)

// Router Router
type Router struct {
	jobHandler     *handler.JobHandler
	catalogHandler *handler.CatalogHandler
	serverHandler  *handler.ServerHandler
}

// NewRouter creates a new Router
func NewRouter(jobHandler *handler.JobHandler, catalogHandler *handler.CatalogHandler, serverHandler *handler.ServerHandler) *Router {
	return &Router{
		jobHandler:     jobHandler,
		catalogHandler: catalogHandler,
		serverHandler:  serverHandler,
	}
}

// Setup sets up routes
func (r *Router) Setup(engine *gin.Engine) {
	engine.Use(middleware.Recovery())
	engine.Use(middleware.Logger())

	v1 := engine.Group("/v1")
	v1.Use(middleware.AuthMiddleware())
	{
		// Job submission (synchronous: the response carries the outcome)
		v1.POST("/txt2img", r.jobHandler.Txt2Img)
		v1.POST("/img2img", r.jobHandler.Img2Img)
		v1.POST("/workflow", r.jobHandler.Workflow)
		v1.POST("/command", r.jobHandler.Command)

		// Artifact retrieval, proxied from the serving back-end
		v1.GET("/view", r.jobHandler.View)

		// Discovery
		v1.GET("/workflows", r.catalogHandler.ListWorkflows)
		v1.GET("/models", r.catalogHandler.ListModels)
		v1.GET("/loras", r.catalogHandler.ListLoras)

		// Server administration
		v1.GET("/servers", r.serverHandler.List)
		v1.POST("/servers", r.serverHandler.Add)
	}

	// Health check
	engine.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
}
