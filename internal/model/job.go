package model

import (
	"time"
)

// JobKind job kind
type JobKind string

const (
	JobKindTxt2Img  JobKind = "TXT2IMG"
	JobKindImg2Img  JobKind = "IMG2IMG"
	JobKindWorkflow JobKind = "WORKFLOW"
)

// RandomSeed is the sentinel seed value; a fresh 63-bit seed is drawn at submit time.
const RandomSeed int64 = -1

// ModelRef a checkpoint resolved through the model name map
type ModelRef struct {
	Name string `json:"name"` // canonical description
	File string `json:"file"` // checkpoint filename on the back-end
}

// LoraRef a LoRA resolved through the LoRA name map, with strengths
type LoraRef struct {
	Name          string  `json:"name"`
	File          string  `json:"file"`
	StrengthModel float64 `json:"strength_model"`
	StrengthClip  float64 `json:"strength_clip"`
}

// Txt2ImgPayload parameters of a text-to-image job
type Txt2ImgPayload struct {
	Prompt         string    `json:"prompt"`
	NegativePrompt string    `json:"negative_prompt,omitempty"`
	Seed           int64     `json:"seed"`
	Width          int       `json:"width"`
	Height         int       `json:"height"`
	BatchSize      int       `json:"batch_size"`
	Model          *ModelRef `json:"model,omitempty"`
	Loras          []LoraRef `json:"loras,omitempty"` // order preserved in the loader chain
}

// InputImage one user-supplied input image, either a local path or raw bytes
type InputImage struct {
	Path string `json:"path,omitempty"`
	Name string `json:"name,omitempty"` // upload filename hint
	Data []byte `json:"-"`
}

// Img2ImgPayload parameters of an image-to-image job
type Img2ImgPayload struct {
	Txt2ImgPayload
	Image   InputImage `json:"image"`
	Denoise float64    `json:"denoise"`
}

// WorkflowPayload parameters of a user-defined workflow job
type WorkflowPayload struct {
	Workflow string `json:"workflow"`
	// Params maps node id -> parameter name -> value, canonical names only.
	Params map[string]map[string]interface{} `json:"params,omitempty"`
	Images []InputImage                      `json:"images,omitempty"` // ordered
}

// Job is immutable once enqueued.
type Job struct {
	ID      string  `json:"id"`
	Kind    JobKind `json:"kind"`
	UserID  string  `json:"user_id"`
	GroupID string  `json:"group_id,omitempty"` // set when the submission originates from a group context

	Txt2Img  *Txt2ImgPayload  `json:"txt2img,omitempty"`
	Img2Img  *Img2ImgPayload  `json:"img2img,omitempty"`
	Workflow *WorkflowPayload `json:"workflow,omitempty"`

	CreatedAt time.Time `json:"created_at"`

	// result receives exactly one Outcome when the dispatch attempt terminates.
	result chan Outcome

	// OnProgress, when set, receives back-end progress events (value, max).
	OnProgress func(value, max int) `json:"-"`
}

// NewJob creates a job with its result channel.
func NewJob(id string, kind JobKind, userID string) *Job {
	return &Job{
		ID:        id,
		Kind:      kind,
		UserID:    userID,
		CreatedAt: time.Now(),
		result:    make(chan Outcome, 1),
	}
}

// Deliver publishes the terminal outcome. Only the first call has any effect;
// a job's submitter is notified exactly once.
func (j *Job) Deliver(o Outcome) {
	select {
	case j.result <- o:
	default:
	}
}

// Result is the channel the submitter receives the terminal outcome on.
func (j *Job) Result() <-chan Outcome {
	return j.result
}

// Receipt is returned by Submit on admission.
type Receipt struct {
	JobID  string
	Result <-chan Outcome
}
