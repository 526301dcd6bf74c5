package handler

import (
	"net/http"

	"comfygate/internal/dispatch"
	"comfygate/internal/model"

	"github.com/gin-gonic/gin"
)

// ServerHandler handles back-end server administration
type ServerHandler struct {
	dispatcher *dispatch.Dispatcher
}

// NewServerHandler creates server handler
func NewServerHandler(dispatcher *dispatch.Dispatcher) *ServerHandler {
	return &ServerHandler{dispatcher: dispatcher}
}

// List lists the registered servers with their dynamic state
// @Summary List servers
// @Tags servers
// @Produce json
// @Router /v1/servers [get]
func (h *ServerHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"servers": h.dispatcher.Registry().Snapshot()})
}

// Add registers a temporary back-end server
// @Summary Add temporary server
// @Tags servers
// @Accept json
// @Produce json
// @Param request body model.AddServerRequest true "Server"
// @Success 200 {object} model.ServerStatus
// @Router /v1/servers [post]
func (h *ServerHandler) Add(c *gin.Context) {
	var req model.AddServerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	if _, err := h.dispatcher.Registry().Find(req.Name); err == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "server name already registered"})
		return
	}

	s := h.dispatcher.AddTemporaryServer(req.Name, req.URL)
	c.JSON(http.StatusOK, gin.H{
		"id":   s.ID,
		"name": s.Name,
		"url":  s.URL,
	})
}
