package workflow

import (
	"fmt"
	"strings"
)

// ValidationError collects per-parameter problems so the caller can report
// every mistake in one reply instead of one at a time.
type ValidationError struct {
	Workflow string
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("workflow %s: %s", e.Workflow, strings.Join(e.Problems, "; "))
}

// ParseArgs parses the free-form tail of a workflow command into canonical
// parameter values. Tokens of the form key:value are matched case-insensitively
// against canonical names and aliases; everything else is collected, in order,
// as the implicit prompt when the descriptor declares a "prompt" parameter.
// Parsing is order-independent: the same tokens in any order yield the same
// parameter map (later duplicates overwrite earlier ones).
func (d *Descriptor) ParseArgs(tail string) (map[string]map[string]interface{}, error) {
	index := d.aliasIndex()
	params := make(map[string]map[string]interface{})
	var promptParts []string

	for _, token := range strings.Fields(tail) {
		key, value, matched := splitArg(token, index)
		if !matched {
			promptParts = append(promptParts, token)
			continue
		}
		setParam(params, key, value)
	}

	if len(promptParts) > 0 {
		slot, ok := d.promptSlot()
		if !ok {
			return nil, fmt.Errorf("workflow %s takes no free text: %q", d.Name, strings.Join(promptParts, " "))
		}
		text := strings.Join(promptParts, " ")
		if existing, has := lookupParam(params, slot.NodeID, slot.Param); has {
			// Free text prepends to an explicit prompt:value.
			text = text + " " + fmt.Sprintf("%v", existing)
		}
		setParam(params, slot, text)
	}

	return params, nil
}

// splitArg matches a key:value token against the alias index. Only the first
// colon splits; the value may itself contain colons.
func splitArg(token string, index map[string]aliasKey) (aliasKey, string, bool) {
	colon := strings.Index(token, ":")
	if colon <= 0 || colon == len(token)-1 {
		return aliasKey{}, "", false
	}
	key, ok := index[strings.ToLower(token[:colon])]
	if !ok {
		return aliasKey{}, "", false
	}
	return key, token[colon+1:], true
}

func setParam(params map[string]map[string]interface{}, key aliasKey, value interface{}) {
	node, ok := params[key.NodeID]
	if !ok {
		node = make(map[string]interface{})
		params[key.NodeID] = node
	}
	node[key.Param] = value
}

// ValidateParams checks user-supplied values against the descriptor's schema
// and reports every problem at once: missing required parameters, numbers out
// of range, unknown select options with no default, and type mismatches.
func (d *Descriptor) ValidateParams(params map[string]map[string]interface{}) error {
	var problems []string

	for _, nodeID := range sortedKeys(d.Params) {
		for name, schema := range d.Params[nodeID] {
			value, supplied := lookupParam(params, nodeID, name)
			if !supplied {
				if schema.Required && schema.Default == nil {
					problems = append(problems, fmt.Sprintf("%s is required", name))
				}
				continue
			}
			if _, err := CoerceValue(schema, value); err != nil {
				problems = append(problems, fmt.Sprintf("%s: %v", name, err))
			}
		}
	}

	if len(problems) > 0 {
		return &ValidationError{Workflow: d.Name, Problems: problems}
	}
	return nil
}
