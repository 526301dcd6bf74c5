package model

// Txt2ImgRequest is the HTTP submit body for text-to-image jobs.
type Txt2ImgRequest struct {
	UserID         string   `json:"user_id" binding:"required"`
	GroupID        string   `json:"group_id,omitempty"`
	Prompt         string   `json:"prompt" binding:"required"`
	NegativePrompt string   `json:"negative_prompt,omitempty"`
	Seed           int64    `json:"seed,omitempty"`
	Width          int      `json:"width,omitempty"`
	Height         int      `json:"height,omitempty"`
	BatchSize      int      `json:"batch_size,omitempty"`
	Model          string   `json:"model,omitempty"` // name-map query
	Loras          []string `json:"loras,omitempty"` // name[:model][!clip]
}

// Img2ImgRequest is the HTTP submit body for image-to-image jobs. The input
// image arrives base64-encoded.
type Img2ImgRequest struct {
	Txt2ImgRequest
	Image     string  `json:"image" binding:"required"` // base64
	ImageName string  `json:"image_name,omitempty"`
	Denoise   float64 `json:"denoise,omitempty"`
}

// WorkflowRequest is the HTTP submit body for user-defined workflow jobs.
type WorkflowRequest struct {
	UserID   string                            `json:"user_id" binding:"required"`
	GroupID  string                            `json:"group_id,omitempty"`
	Workflow string                            `json:"workflow" binding:"required"`
	Params   map[string]map[string]interface{} `json:"params,omitempty"`
	Images   []string                          `json:"images,omitempty"` // base64, ordered
}

// CommandRequest is the HTTP submit body for free-form command lines.
type CommandRequest struct {
	UserID  string   `json:"user_id" binding:"required"`
	GroupID string   `json:"group_id,omitempty"`
	Text    string   `json:"text" binding:"required"`
	Images  []string `json:"images,omitempty"` // base64, ordered
}

// JobResponse reports the terminal outcome of a synchronous submission.
type JobResponse struct {
	JobID     string     `json:"job_id"`
	Status    string     `json:"status"`
	Server    string     `json:"server,omitempty"`
	Artifacts *Artifacts `json:"artifacts,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// AddServerRequest registers a temporary back-end server.
type AddServerRequest struct {
	Name string `json:"name" binding:"required"`
	URL  string `json:"url" binding:"required"`
}

// NameEntry one model or LoRA listing row
type NameEntry struct {
	Name string `json:"name"`
	File string `json:"file"`
}
