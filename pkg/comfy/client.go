// Package comfy is the HTTP client for ComfyUI-compatible back-ends: graph
// submission, history polling, artifact location, image upload, and the
// optional WebSocket progress stream.
package comfy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"comfygate/pkg/logger"

	"github.com/google/uuid"
	"github.com/tidwall/pretty"
)

// Client is the back-end API client. One client is shared by all workers; the
// per-dispatcher client_id attributes submitted prompts and the progress
// stream to this process.
type Client struct {
	clientID   string
	httpClient *http.Client
}

// NewClient creates a back-end client with a fresh client id.
func NewClient() *Client {
	return &Client{
		clientID: uuid.New().String(),
		// Per-call deadlines come from the caller's context; polling calls
		// may legitimately be long-lived.
		httpClient: &http.Client{},
	}
}

// ClientID returns the client id sent with every prompt.
func (c *Client) ClientID() string {
	return c.clientID
}

// HealthCheck probes the back-end's stats endpoint. A 200 response means
// healthy; anything else is an error.
func (c *Client) HealthCheck(ctx context.Context, baseURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/system_stats", nil)
	if err != nil {
		return fmt.Errorf("failed to create health request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health probe failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health probe returned status %d", resp.StatusCode)
	}
	return nil
}

// UploadImage posts raw image bytes to the back-end and returns the filename
// the back-end stored them under. Input images are always uploaded to the
// claimed server so a failover re-uploads on the new one.
func (c *Client) UploadImage(ctx context.Context, baseURL, filename string, data []byte) (string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("image", filename)
	if err != nil {
		return "", fmt.Errorf("failed to create multipart field: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("failed to write image data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/upload/image", &body)
	if err != nil {
		return "", fmt.Errorf("failed to create upload request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &TransientError{Op: "upload image", Err: err}
	}
	defer resp.Body.Close()

	respData, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &TransientError{Op: "upload image", Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return "", &TransientError{Op: "upload image", Err: fmt.Errorf("status %d: %s", resp.StatusCode, respData)}
	}

	var upload UploadResponse
	if err := json.Unmarshal(respData, &upload); err != nil {
		return "", fmt.Errorf("failed to parse upload response: %w", err)
	}
	if upload.Name == "" {
		return "", &TransientError{Op: "upload image", Err: fmt.Errorf("back-end returned no filename")}
	}
	return upload.Name, nil
}

// SubmitPrompt posts a node graph and returns the prompt id. Validation
// rejections are classified into permanent errors; everything else non-200
// is transient.
func (c *Client) SubmitPrompt(ctx context.Context, baseURL, serverName string, graph interface{}) (string, error) {
	payload, err := json.Marshal(PromptRequest{ClientID: c.clientID, Prompt: graph})
	if err != nil {
		return "", fmt.Errorf("failed to marshal prompt: %w", err)
	}

	logger.Debugf("submitting graph to %s:\n%s", serverName, pretty.Pretty(payload))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/prompt", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create prompt request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &TransientError{Op: "submit prompt", Err: err}
	}
	defer resp.Body.Close()

	respData, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &TransientError{Op: "submit prompt", Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		if perm := classifySubmitRejection(serverName, respData); perm != nil {
			return "", perm
		}
		return "", &TransientError{Op: "submit prompt", Err: fmt.Errorf("status %d: %s", resp.StatusCode, respData)}
	}

	var promptResp PromptResponse
	if err := json.Unmarshal(respData, &promptResp); err != nil {
		return "", fmt.Errorf("failed to parse prompt response: %w", err)
	}
	if promptResp.PromptID == "" {
		return "", &TransientError{Op: "submit prompt", Err: fmt.Errorf("back-end returned no prompt id")}
	}
	return promptResp.PromptID, nil
}

// classifySubmitRejection inspects a rejected /prompt body for permanent
// validation errors (missing model, missing LoRA, missing node, bad prompt).
func classifySubmitRejection(serverName string, body []byte) *PermanentError {
	var promptResp PromptResponse
	if err := json.Unmarshal(body, &promptResp); err != nil {
		// Fall back to raw substring matching on the body.
		return classifyMessage(serverName, string(body))
	}

	for _, detail := range promptResp.NodeErrors {
		for _, nodeErr := range detail.Errors {
			if perm := classifyMessage(serverName, nodeErr.Type+" "+nodeErr.Message+" "+nodeErr.Details); perm != nil {
				return perm
			}
		}
	}
	if promptResp.Error != nil {
		msg := promptResp.Error.Type + " " + promptResp.Error.Message + " " + promptResp.Error.Details
		if perm := classifyMessage(serverName, msg); perm != nil {
			return perm
		}
		if promptResp.Error.Type == "invalid_prompt" {
			return &PermanentError{Kind: InvalidPrompt, Server: serverName, Message: promptResp.Error.Message}
		}
	}
	return nil
}

// History fetches the history entry for a prompt. The second return value is
// false while the prompt has not appeared in history yet.
func (c *Client) History(ctx context.Context, baseURL, promptID string) (*HistoryEntry, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/history/"+url.PathEscape(promptID), nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create history request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, false, &TransientError{Op: "fetch history", Err: err}
	}
	defer resp.Body.Close()

	respData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, false, &TransientError{Op: "fetch history", Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, false, &TransientError{Op: "fetch history", Err: fmt.Errorf("status %d", resp.StatusCode)}
	}

	var history HistoryResponse
	if err := json.Unmarshal(respData, &history); err != nil {
		return nil, false, &TransientError{Op: "fetch history", Err: fmt.Errorf("malformed body: %w", err)}
	}

	entry, ok := history[promptID]
	if !ok {
		return nil, false, nil
	}
	return &entry, true, nil
}

// Queue fetches the back-end's execution queue state.
func (c *Client) Queue(ctx context.Context, baseURL string) (*QueueState, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/api/queue", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create queue request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransientError{Op: "fetch queue", Err: err}
	}
	defer resp.Body.Close()

	respData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransientError{Op: "fetch queue", Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &TransientError{Op: "fetch queue", Err: fmt.Errorf("status %d", resp.StatusCode)}
	}

	var state QueueState
	if err := json.Unmarshal(respData, &state); err != nil {
		return nil, &TransientError{Op: "fetch queue", Err: fmt.Errorf("malformed body: %w", err)}
	}
	return &state, nil
}

// ViewURL composes the retrieval URL for one artifact.
func ViewURL(baseURL, filename, subfolder, fileType string, preview bool) string {
	values := url.Values{}
	values.Set("filename", filename)
	values.Set("subfolder", subfolder)
	if fileType == "" {
		fileType = "output"
	}
	values.Set("type", fileType)
	if preview {
		values.Set("preview", "true")
	}
	return baseURL + "/view?" + values.Encode()
}

// FetchView downloads one artifact's raw bytes.
func (c *Client) FetchView(ctx context.Context, viewURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, viewURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create view request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransientError{Op: "fetch artifact", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, &TransientError{Op: "fetch artifact", Err: fmt.Errorf("status %d", resp.StatusCode)}
	}
	return io.ReadAll(resp.Body)
}

// Artifacts locates the output files of a completed history entry. A
// completed entry with no locatable output is a permanent error.
func Artifacts(serverName string, entry *HistoryEntry) ([]ArtifactRef, error) {
	var refs []ArtifactRef
	for _, output := range entry.Outputs {
		for _, group := range []struct {
			kind  string
			files []FileOutput
		}{
			{"image", output.Images},
			{"audio", output.Audio},
			{"video", output.Video},
			{"3d", output.ThreeD},
		} {
			for _, f := range group.files {
				refs = append(refs, ArtifactRef{
					Filename:  f.Filename,
					Subfolder: f.Subfolder,
					Type:      f.Type,
					Kind:      group.kind,
				})
			}
		}
	}
	if len(refs) == 0 {
		return nil, &PermanentError{Kind: NoOutput, Server: serverName, Message: "history entry completed without outputs"}
	}
	return refs, nil
}

// EntryError inspects a history entry's status messages for execution errors
// and classifies them. Returns nil when the entry carries no error.
func EntryError(serverName string, entry *HistoryEntry) error {
	if entry.Status.StatusStr != "error" {
		return nil
	}

	var parts []string
	for _, raw := range entry.Status.Messages {
		parts = append(parts, string(raw))
	}
	msg := strings.Join(parts, " ")

	if perm := classifyMessage(serverName, msg); perm != nil {
		return perm
	}
	return &TransientError{Op: "execute prompt", Err: fmt.Errorf("back-end reported error: %s", truncate(msg, 400))}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// PollOptions configures PollHistory.
type PollOptions struct {
	Timeout            time.Duration
	Interval           time.Duration
	QueueCheckDelay    time.Duration
	QueueCheckInterval time.Duration
	EmptyQueueMaxRetry int

	// OnServerError is invoked for each HTTP failure during polling. When it
	// returns true (the server went unhealthy), the poll aborts so the job
	// can be re-queued.
	OnServerError func(err error) bool
}

// PollHistory polls until the prompt completes, enforcing the three failure
// paths beyond the deadline: server HTTP errors, the empty-queue anomaly, and
// permanent errors reported in the history entry.
func (c *Client) PollHistory(ctx context.Context, baseURL, serverName, promptID string, opts PollOptions) (*HistoryEntry, error) {
	deadline := time.Now().Add(opts.Timeout)
	nextQueueCheck := time.Now().Add(opts.QueueCheckDelay)
	emptyObservations := 0

	for {
		if time.Now().After(deadline) {
			return nil, &FatalError{Kind: PollTimeout, Err: fmt.Errorf("prompt %s did not complete within %s", promptID, opts.Timeout)}
		}

		entry, found, err := c.History(ctx, baseURL, promptID)
		switch {
		case err != nil:
			if opts.OnServerError != nil && opts.OnServerError(err) {
				return nil, err
			}
		case found:
			if entryErr := EntryError(serverName, entry); entryErr != nil {
				return nil, entryErr
			}
			if entry.Status.Completed {
				return entry, nil
			}
		}

		if !found && time.Now().After(nextQueueCheck) {
			nextQueueCheck = time.Now().Add(opts.QueueCheckInterval)

			state, qerr := c.Queue(ctx, baseURL)
			if qerr != nil {
				if opts.OnServerError != nil && opts.OnServerError(qerr) {
					return nil, qerr
				}
			} else if state.Empty() {
				emptyObservations++
				if emptyObservations >= opts.EmptyQueueMaxRetry {
					// The back-end can briefly report an empty queue right as
					// the prompt lands in history; re-check before giving up.
					if entry, found, err := c.History(ctx, baseURL, promptID); err == nil && found && entry.Status.Completed {
						if entryErr := EntryError(serverName, entry); entryErr != nil {
							return nil, entryErr
						}
						return entry, nil
					}
					return nil, &FatalError{
						Kind: EmptyQueue,
						Err:  fmt.Errorf("prompt %s vanished: queue empty %d consecutive checks", promptID, emptyObservations),
					}
				}
			} else {
				emptyObservations = 0
			}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(opts.Interval):
		}
	}
}
