package comfy

import (
	"errors"
	"fmt"
	"strings"
)

// PermanentKind names the user-facing permanent failure classes.
type PermanentKind string

const (
	MissingModel  PermanentKind = "missing_model"
	MissingLora   PermanentKind = "missing_lora"
	MissingNode   PermanentKind = "missing_node"
	InvalidPrompt PermanentKind = "invalid_prompt"
	BadInput      PermanentKind = "bad_input" // local input image unusable
	NoOutput      PermanentKind = "no_output" // completed history without artifacts
)

// PermanentError is surfaced to the user immediately: no retry, no failover,
// and the server's failure counter is left untouched.
type PermanentError struct {
	Kind         PermanentKind
	Resource     string   // offending model/LoRA name, when known
	Node         string   // offending node, when known
	Alternatives []string // names enumerated by the back-end
	Server       string
	Message      string
}

func (e *PermanentError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s", e.Kind)
	if e.Resource != "" {
		fmt.Fprintf(&b, ": %q", e.Resource)
	}
	if e.Node != "" {
		fmt.Fprintf(&b, ": node %q", e.Node)
	}
	if e.Server != "" {
		fmt.Fprintf(&b, " (server %s)", e.Server)
	}
	if len(e.Alternatives) > 0 {
		fmt.Fprintf(&b, ", available: %s", strings.Join(e.Alternatives, ", "))
	}
	if e.Message != "" && e.Resource == "" && e.Node == "" {
		fmt.Fprintf(&b, ": %s", e.Message)
	}
	return b.String()
}

// TransientError covers HTTP failures, timeouts and connection errors; the
// dispatcher retries these and fails over when the server goes unhealthy.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// FatalKind names terminal non-retryable failure classes.
type FatalKind string

const (
	PollTimeout FatalKind = "poll_timeout"
	EmptyQueue  FatalKind = "empty_queue" // back-end silently dropped the job
)

// FatalError terminates the job without retry or failover.
type FatalError struct {
	Kind FatalKind
	Err  error
}

func (e *FatalError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// IsPermanent reports whether err carries a PermanentError.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// IsFatal reports whether err carries a FatalError.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}

// classifyMessage maps one back-end error string onto the taxonomy. Returns
// nil when the message does not indicate a permanent condition.
func classifyMessage(server, msg string) *PermanentError {
	switch {
	case strings.Contains(msg, "value_not_in_list") && strings.Contains(msg, "ckpt_name"):
		resource, alts := extractNotInList(msg)
		return &PermanentError{Kind: MissingModel, Resource: resource, Alternatives: alts, Server: server, Message: msg}
	case strings.Contains(msg, "value_not_in_list") && strings.Contains(msg, "lora_name"):
		resource, alts := extractNotInList(msg)
		return &PermanentError{Kind: MissingLora, Resource: resource, Alternatives: alts, Server: server, Message: msg}
	case strings.Contains(msg, "does not exist") && strings.Contains(strings.ToLower(msg), "node"):
		return &PermanentError{Kind: MissingNode, Node: extractQuoted(msg), Server: server, Message: msg}
	case strings.Contains(msg, "invalid_prompt"):
		return &PermanentError{Kind: InvalidPrompt, Server: server, Message: msg}
	}
	return nil
}

// extractNotInList pulls the offending value and the enumerated alternatives
// out of a message shaped like:
//
//	ckpt_name: 'X' not in ['a', 'b']
func extractNotInList(msg string) (string, []string) {
	resource := extractQuoted(msg)

	open := strings.Index(msg, "[")
	close := strings.LastIndex(msg, "]")
	if open < 0 || close <= open {
		return resource, nil
	}

	var alts []string
	for _, part := range strings.Split(msg[open+1:close], ",") {
		part = strings.Trim(strings.TrimSpace(part), `'"`)
		if part != "" {
			alts = append(alts, part)
		}
	}
	return resource, alts
}

// extractQuoted returns the first single- or double-quoted token in msg.
func extractQuoted(msg string) string {
	for _, q := range []byte{'\'', '"'} {
		start := strings.IndexByte(msg, q)
		if start < 0 {
			continue
		}
		end := strings.IndexByte(msg[start+1:], q)
		if end < 0 {
			continue
		}
		return msg[start+1 : start+1+end]
	}
	return ""
}
