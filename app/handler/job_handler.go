package handler

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"

	"comfygate/internal/admission"
	"comfygate/internal/dispatch"
	"comfygate/internal/model"
	"comfygate/pkg/comfy"
	"comfygate/pkg/logger"

	"github.com/gin-gonic/gin"
)

// JobHandler handles job submissions
type JobHandler struct {
	dispatcher *dispatch.Dispatcher
}

// NewJobHandler creates job handler
func NewJobHandler(dispatcher *dispatch.Dispatcher) *JobHandler {
	return &JobHandler{dispatcher: dispatcher}
}

// Txt2Img submits a text-to-image job and waits for its outcome
// @Summary Submit text-to-image job
// @Tags jobs
// @Accept json
// @Produce json
// @Param request body model.Txt2ImgRequest true "Job request"
// @Success 200 {object} model.JobResponse
// @Router /v1/txt2img [post]
func (h *JobHandler) Txt2Img(c *gin.Context) {
	var req model.Txt2ImgRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	payload, err := h.txt2ImgPayload(&req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	receipt, err := h.dispatcher.SubmitTxt2Img(req.UserID, req.GroupID, payload)
	if err != nil {
		rejectSubmit(c, err)
		return
	}
	h.await(c, receipt)
}

// Img2Img submits an image-to-image job and waits for its outcome
// @Summary Submit image-to-image job
// @Tags jobs
// @Accept json
// @Produce json
// @Param request body model.Img2ImgRequest true "Job request"
// @Success 200 {object} model.JobResponse
// @Router /v1/img2img [post]
func (h *JobHandler) Img2Img(c *gin.Context) {
	var req model.Img2ImgRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	base, err := h.txt2ImgPayload(&req.Txt2ImgRequest)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	data, err := base64.StdEncoding.DecodeString(req.Image)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image must be base64 encoded"})
		return
	}

	payload := &model.Img2ImgPayload{
		Txt2ImgPayload: *base,
		Image:          model.InputImage{Name: req.ImageName, Data: data},
		Denoise:        req.Denoise,
	}

	receipt, err := h.dispatcher.SubmitImg2Img(req.UserID, req.GroupID, payload)
	if err != nil {
		rejectSubmit(c, err)
		return
	}
	h.await(c, receipt)
}

// Workflow submits a user-defined workflow job and waits for its outcome
// @Summary Submit workflow job
// @Tags jobs
// @Accept json
// @Produce json
// @Param request body model.WorkflowRequest true "Job request"
// @Success 200 {object} model.JobResponse
// @Router /v1/workflow [post]
func (h *JobHandler) Workflow(c *gin.Context) {
	var req model.WorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	images, err := decodeImages(req.Images)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	receipt, err := h.dispatcher.SubmitWorkflow(req.UserID, req.GroupID, &model.WorkflowPayload{
		Workflow: req.Workflow,
		Params:   req.Params,
		Images:   images,
	})
	if err != nil {
		rejectSubmit(c, err)
		return
	}
	h.await(c, receipt)
}

// Command routes a free-form command line to a workflow by prefix
// @Summary Submit command line
// @Tags jobs
// @Accept json
// @Produce json
// @Param request body model.CommandRequest true "Command request"
// @Success 200 {object} model.JobResponse
// @Router /v1/command [post]
func (h *JobHandler) Command(c *gin.Context) {
	var req model.CommandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	images, err := decodeImages(req.Images)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	receipt, err := h.dispatcher.SubmitCommand(req.UserID, req.GroupID, req.Text, images)
	if err != nil {
		rejectSubmit(c, err)
		return
	}
	h.await(c, receipt)
}

// View proxies one artifact from the back-end that produced it
// @Summary Fetch an artifact
// @Tags jobs
// @Produce octet-stream
// @Param server query string true "Server name or id"
// @Param filename query string true "Artifact filename"
// @Param subfolder query string false "Artifact subfolder"
// @Param type query string false "Storage type, default output"
// @Param preview query bool false "Request a preview rendition"
// @Router /v1/view [get]
func (h *JobHandler) View(c *gin.Context) {
	serverID := c.Query("server")
	filename := c.Query("filename")
	if serverID == "" || filename == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "server and filename are required"})
		return
	}

	srv, err := h.dispatcher.Registry().Find(serverID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	viewURL := comfy.ViewURL(srv.URL, filename, c.Query("subfolder"), c.Query("type"), c.Query("preview") == "true")
	data, err := h.dispatcher.Client().FetchView(c.Request.Context(), viewURL)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, http.DetectContentType(data), data)
}

// await blocks until the job terminates or the client goes away.
func (h *JobHandler) await(c *gin.Context, receipt *model.Receipt) {
	select {
	case <-c.Request.Context().Done():
		// The job keeps running; its outcome is discarded.
		logger.Warnf("client disconnected while waiting for job %s", receipt.JobID)
		return
	case outcome := <-receipt.Result:
		resp := model.JobResponse{
			JobID:     receipt.JobID,
			Status:    string(outcome.Status),
			Server:    outcome.Server,
			Artifacts: outcome.Artifacts,
		}
		if outcome.Err != nil {
			resp.Error = outcome.Err.Error()
		}
		if outcome.Ok() {
			c.JSON(http.StatusOK, resp)
			return
		}
		c.JSON(http.StatusUnprocessableEntity, resp)
	}
}

// txt2ImgPayload resolves name-map references and assembles the payload.
func (h *JobHandler) txt2ImgPayload(req *model.Txt2ImgRequest) (*model.Txt2ImgPayload, error) {
	payload := &model.Txt2ImgPayload{
		Prompt:         req.Prompt,
		NegativePrompt: req.NegativePrompt,
		Seed:           req.Seed,
		Width:          req.Width,
		Height:         req.Height,
		BatchSize:      req.BatchSize,
	}

	if req.Model != "" {
		ref, err := h.dispatcher.ResolveModel(req.Model)
		if err != nil {
			return nil, fmt.Errorf("model: %w", err)
		}
		payload.Model = ref
	}
	for _, spec := range req.Loras {
		ref, err := h.dispatcher.ResolveLora(spec)
		if err != nil {
			return nil, fmt.Errorf("lora: %w", err)
		}
		payload.Loras = append(payload.Loras, ref)
	}
	return payload, nil
}

func decodeImages(encoded []string) ([]model.InputImage, error) {
	images := make([]model.InputImage, 0, len(encoded))
	for i, enc := range encoded {
		data, err := base64.StdEncoding.DecodeString(enc)
		if err != nil {
			return nil, fmt.Errorf("image %d must be base64 encoded", i)
		}
		images = append(images, model.InputImage{Data: data})
	}
	return images, nil
}

// rejectSubmit maps admission errors onto HTTP status codes.
func rejectSubmit(c *gin.Context, err error) {
	status := http.StatusBadRequest
	switch {
	case errors.Is(err, admission.ErrQueueFull), errors.Is(err, admission.ErrUserLimitExceeded):
		status = http.StatusTooManyRequests
	case errors.Is(err, admission.ErrNoHealthyServer), errors.Is(err, admission.ErrClosed):
		status = http.StatusServiceUnavailable
	case errors.Is(err, admission.ErrNotWhitelisted):
		status = http.StatusForbidden
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
