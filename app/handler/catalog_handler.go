package handler

import (
	"net/http"

	"comfygate/internal/dispatch"
	"comfygate/internal/model"
	"comfygate/internal/names"
	"comfygate/internal/workflow"

	"github.com/gin-gonic/gin"
)

// CatalogHandler serves the discovery endpoints: workflows, models, LoRAs.
type CatalogHandler struct {
	dispatcher *dispatch.Dispatcher
}

// NewCatalogHandler creates catalog handler
func NewCatalogHandler(dispatcher *dispatch.Dispatcher) *CatalogHandler {
	return &CatalogHandler{dispatcher: dispatcher}
}

// workflowListing is the public view of one descriptor.
type workflowListing struct {
	Name   string                                      `json:"name"`
	Prefix string                                      `json:"prefix"`
	Params map[string]map[string]*workflow.ParamSchema `json:"params,omitempty"`
}

// ListWorkflows lists the loaded workflows with their parameter schemas
// @Summary List workflows
// @Tags catalog
// @Produce json
// @Router /v1/workflows [get]
func (h *CatalogHandler) ListWorkflows(c *gin.Context) {
	descriptors := h.dispatcher.Workflows().List()
	out := make([]workflowListing, 0, len(descriptors))
	for _, d := range descriptors {
		out = append(out, workflowListing{
			Name:   d.Name,
			Prefix: d.Prefix,
			Params: d.Params,
		})
	}
	c.JSON(http.StatusOK, gin.H{"workflows": out})
}

// ListModels lists the checkpoint name map
// @Summary List models
// @Tags catalog
// @Produce json
// @Router /v1/models [get]
func (h *CatalogHandler) ListModels(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"models": nameEntries(h.dispatcher.Models().Entries())})
}

// ListLoras lists the LoRA name map
// @Summary List LoRAs
// @Tags catalog
// @Produce json
// @Router /v1/loras [get]
func (h *CatalogHandler) ListLoras(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"loras": nameEntries(h.dispatcher.Loras().Entries())})
}

func nameEntries(entries []names.Entry) []model.NameEntry {
	out := make([]model.NameEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, model.NameEntry{Name: e.Name, File: e.File})
	}
	return out
}
