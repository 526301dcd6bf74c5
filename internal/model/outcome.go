package model

// OutcomeStatus classifies how a dispatch attempt terminated.
type OutcomeStatus string

const (
	OutcomeOK        OutcomeStatus = "OK"
	OutcomePermanent OutcomeStatus = "PERMANENT" // user-facing error, no retry, no failover
	OutcomeTransient OutcomeStatus = "TRANSIENT" // surfaced only after retries are exhausted
	OutcomeFatal     OutcomeStatus = "FATAL"     // poll timeout or dropped-job anomaly
	OutcomeCancelled OutcomeStatus = "CANCELLED" // queue drained with no healthy servers left
)

// ArtifactKind artifact media kind
type ArtifactKind string

const (
	ArtifactImage ArtifactKind = "image"
	ArtifactAudio ArtifactKind = "audio"
	ArtifactVideo ArtifactKind = "video"
	Artifact3D    ArtifactKind = "3d"
)

// Artifact one file produced by the back-end
type Artifact struct {
	Filename  string       `json:"filename"`
	Subfolder string       `json:"subfolder"`
	Kind      ArtifactKind `json:"kind"`
	URL       string       `json:"url"` // retrieval URL on the serving back-end
}

// Artifacts the full result of a completed job
type Artifacts struct {
	Server string     `json:"server"` // name of the back-end that served the job
	Items  []Artifact `json:"items"`
}

// Outcome is the terminal result delivered to the submitter.
type Outcome struct {
	Status    OutcomeStatus `json:"status"`
	Artifacts *Artifacts    `json:"artifacts,omitempty"`
	Err       error         `json:"-"`
	Server    string        `json:"server,omitempty"` // last back-end that handled the job
}

// Ok reports whether the job completed successfully.
func (o Outcome) Ok() bool {
	return o.Status == OutcomeOK
}
