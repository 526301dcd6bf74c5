package comfy

import "encoding/json"

// PromptRequest is sent to POST /prompt
type PromptRequest struct {
	ClientID string      `json:"client_id"`
	Prompt   interface{} `json:"prompt"`
}

// PromptResponse is returned from POST /prompt
type PromptResponse struct {
	PromptID   string                     `json:"prompt_id"`
	Number     int                        `json:"number"`
	NodeErrors map[string]NodeErrorDetail `json:"node_errors,omitempty"`
	Error      *PromptError               `json:"error,omitempty"`
}

// PromptError is the top-level error object of a rejected prompt
type PromptError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Details string `json:"details"`
}

// NodeErrorDetail carries per-node validation errors
type NodeErrorDetail struct {
	Errors []NodeError `json:"errors"`
}

// NodeError one validation error for one node
type NodeError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Details string `json:"details"`
}

// HistoryResponse is returned from GET /history/{prompt_id}
type HistoryResponse map[string]HistoryEntry

// HistoryEntry contains execution history for a single prompt
type HistoryEntry struct {
	Outputs map[string]NodeOutput `json:"outputs"`
	Status  ExecutionStatus       `json:"status"`
}

// ExecutionStatus indicates the status of an execution
type ExecutionStatus struct {
	StatusStr string            `json:"status_str"`
	Completed bool              `json:"completed"`
	Messages  []json.RawMessage `json:"messages,omitempty"`
}

// NodeOutput contains output data from a node
type NodeOutput struct {
	Images []FileOutput `json:"images,omitempty"`
	Audio  []FileOutput `json:"audio,omitempty"`
	Video  []FileOutput `json:"video,omitempty"`
	ThreeD []FileOutput `json:"3d,omitempty"`
}

// FileOutput describes one output file
type FileOutput struct {
	Filename  string `json:"filename"`
	Subfolder string `json:"subfolder"`
	Type      string `json:"type"`
}

// QueueState is returned from GET /api/queue
type QueueState struct {
	Running []json.RawMessage `json:"queue_running"`
	Pending []json.RawMessage `json:"queue_pending"`
}

// Empty reports whether both queue lists are empty.
func (q *QueueState) Empty() bool {
	return len(q.Running) == 0 && len(q.Pending) == 0
}

// UploadResponse is returned from POST /upload/image
type UploadResponse struct {
	Name      string `json:"name"`
	Subfolder string `json:"subfolder"`
	Type      string `json:"type"`
}

// ArtifactRef one output file located in a history entry
type ArtifactRef struct {
	Filename  string
	Subfolder string
	Type      string // back-end storage type, usually "output"
	Kind      string // image, audio, video, 3d
}

// WSMessage is one WebSocket message from the back-end's /ws endpoint
type WSMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// ProgressData is the payload of "progress" messages
type ProgressData struct {
	Value    int    `json:"value"`
	Max      int    `json:"max"`
	PromptID string `json:"prompt_id"`
}

// ExecutingData is the payload of "executing" messages
type ExecutingData struct {
	Node     *string `json:"node"`
	PromptID string  `json:"prompt_id"`
}

// ProgressEvent is delivered to progress listeners.
type ProgressEvent struct {
	PromptID string
	Value    int
	Max      int
	Node     string // currently executing node, when known
}
