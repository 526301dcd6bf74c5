package comfy

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"comfygate/pkg/logger"

	"github.com/gorilla/websocket"
)

// ListenProgress connects to the back-end's /ws endpoint and forwards
// progress and executing events onto ch until the context is cancelled or the
// connection drops. Completion detection stays with the history poll; this
// stream is best-effort.
func (c *Client) ListenProgress(ctx context.Context, baseURL string, ch chan<- ProgressEvent) error {
	wsURL, err := websocketURL(baseURL, c.clientID)
	if err != nil {
		return err
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("failed to dial progress socket: %w", err)
	}
	defer conn.Close()

	// Unblock ReadMessage when the caller gives up.
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	currentNode := ""
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("progress socket closed: %w", err)
		}

		var msg WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			logger.Debugf("ignoring malformed progress message: %v", err)
			continue
		}

		switch msg.Type {
		case "executing":
			var exec ExecutingData
			if err := json.Unmarshal(msg.Data, &exec); err != nil {
				continue
			}
			if exec.Node != nil {
				currentNode = *exec.Node
			}
		case "progress":
			var prog ProgressData
			if err := json.Unmarshal(msg.Data, &prog); err != nil {
				continue
			}
			event := ProgressEvent{
				PromptID: prog.PromptID,
				Value:    prog.Value,
				Max:      prog.Max,
				Node:     currentNode,
			}
			select {
			case ch <- event:
			case <-ctx.Done():
				return ctx.Err()
			default: // slow consumer, drop
			}
		}
	}
}

func websocketURL(baseURL, clientID string) (string, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse base URL: %w", err)
	}
	switch parsed.Scheme {
	case "https":
		parsed.Scheme = "wss"
	default:
		parsed.Scheme = "ws"
	}
	parsed.Path = strings.TrimSuffix(parsed.Path, "/") + "/ws"
	query := parsed.Query()
	query.Set("clientId", clientID)
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}
