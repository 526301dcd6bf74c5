package workflow

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"comfygate/internal/graph"
	"comfygate/internal/model"
)

// BuildGraph clones the descriptor's graph and binds the caller's images and
// parameters into it. uploadedNames holds the back-end filenames of the
// user's input images, in submission order. The descriptor is never mutated.
func (d *Descriptor) BuildGraph(params map[string]map[string]interface{}, uploadedNames []string) (graph.Graph, error) {
	g, err := d.Graph.Clone()
	if err != nil {
		return nil, fmt.Errorf("failed to clone workflow graph: %w", err)
	}

	if err := d.bindImages(g, uploadedNames); err != nil {
		return nil, err
	}
	if err := d.bindParams(g, params); err != nil {
		return nil, err
	}
	return g, nil
}

// bindImages assigns uploaded image names to the descriptor's input nodes.
// Explicitly indexed nodes claim their slot first, then unindexed nodes take
// the lowest unclaimed slot. Missing slots fall back to the first image so a
// multi-input workflow still runs when the user sends fewer images.
func (d *Descriptor) bindImages(g graph.Graph, uploadedNames []string) error {
	if len(d.InputNodes) == 0 {
		return nil
	}
	if len(uploadedNames) == 0 {
		return fmt.Errorf("workflow %s requires an input image", d.Name)
	}

	used := make(map[int]bool)
	var deferred []InputNode

	for _, n := range d.InputNodes {
		node := g[n.NodeID]
		if node == nil {
			return fmt.Errorf("workflow %s: input node %q not in graph", d.Name, n.NodeID)
		}
		if n.WantsList() {
			list := make([]interface{}, len(uploadedNames))
			for i, name := range uploadedNames {
				list[i] = name
			}
			node.Inputs[n.InputName()] = list
			continue
		}
		if n.ImageIndex != nil {
			idx := *n.ImageIndex
			if idx >= len(uploadedNames) {
				idx = 0
			} else {
				used[idx] = true
			}
			node.Inputs[n.InputName()] = uploadedNames[idx]
			continue
		}
		deferred = append(deferred, n)
	}

	next := 0
	for _, n := range deferred {
		for next < len(uploadedNames) && used[next] {
			next++
		}
		idx := 0
		if next < len(uploadedNames) {
			idx = next
			used[idx] = true
		}
		g[n.NodeID].Inputs[n.InputName()] = uploadedNames[idx]
	}
	return nil
}

// bindParams writes user values and schema defaults into the graph. User
// values win; parameters the user omitted receive their declared default.
func (d *Descriptor) bindParams(g graph.Graph, params map[string]map[string]interface{}) error {
	for _, nodeID := range sortedKeys(d.Params) {
		node := g[nodeID]
		if node == nil {
			return fmt.Errorf("workflow %s: parameterized node %q not in graph", d.Name, nodeID)
		}
		for name, schema := range d.Params[nodeID] {
			value, supplied := lookupParam(params, nodeID, name)
			if !supplied {
				if schema.Default != nil {
					node.Inputs[name] = resolveDefault(name, schema.Default)
				}
				continue
			}
			coerced, err := CoerceValue(schema, value)
			if err != nil {
				return fmt.Errorf("workflow %s: parameter %s.%s: %w", d.Name, nodeID, name, err)
			}
			if strings.EqualFold(name, "seed") {
				if seed, ok := toInt64(coerced); ok && seed == model.RandomSeed {
					coerced = graph.DrawSeed()
				}
			}
			node.Inputs[name] = coerced
		}
	}
	return nil
}

func lookupParam(params map[string]map[string]interface{}, nodeID, name string) (interface{}, bool) {
	node, ok := params[nodeID]
	if !ok {
		return nil, false
	}
	v, ok := node[name]
	return v, ok
}

// resolveDefault handles the random-seed sentinel in defaults.
func resolveDefault(name string, def interface{}) interface{} {
	if !strings.EqualFold(name, "seed") {
		return def
	}
	if seed, ok := toInt64(def); ok && seed == model.RandomSeed {
		return graph.DrawSeed()
	}
	return def
}

// CoerceValue converts a raw value to the schema's declared type and applies
// range and option constraints. Numbers with a seed sentinel of -1 are
// replaced with a freshly drawn seed by the caller; here -1 passes min checks
// only when the schema allows it.
func CoerceValue(schema *ParamSchema, value interface{}) (interface{}, error) {
	switch schema.Type {
	case TypeNumber:
		n, ok := toFloat64(value)
		if !ok {
			return nil, fmt.Errorf("expected a number, got %v", value)
		}
		if schema.Min != nil && n < *schema.Min {
			return nil, fmt.Errorf("value %v below minimum %v", n, *schema.Min)
		}
		if schema.Max != nil && n > *schema.Max {
			return nil, fmt.Errorf("value %v above maximum %v", n, *schema.Max)
		}
		if n == float64(int64(n)) {
			return int64(n), nil
		}
		return n, nil

	case TypeBoolean:
		switch v := value.(type) {
		case bool:
			return v, nil
		case string:
			b, err := strconv.ParseBool(v)
			if err != nil {
				return nil, fmt.Errorf("expected a boolean, got %q", v)
			}
			return b, nil
		default:
			return nil, fmt.Errorf("expected a boolean, got %v", value)
		}

	case TypeSelect:
		s := fmt.Sprintf("%v", value)
		for _, opt := range schema.Options {
			if strings.EqualFold(opt, s) {
				return opt, nil
			}
		}
		// Unknown option falls back to the default rather than failing the
		// whole job; the descriptor author decides whether that is fatal by
		// marking the parameter required with no default.
		if schema.Default != nil {
			return schema.Default, nil
		}
		return nil, fmt.Errorf("value %q not in options %v", s, schema.Options)

	case TypeText:
		return fmt.Sprintf("%v", value), nil

	default:
		return nil, fmt.Errorf("unknown parameter type %q", schema.Type)
	}
}

func toFloat64(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func toInt64(v interface{}) (int64, bool) {
	f, ok := toFloat64(v)
	if !ok {
		return 0, false
	}
	return int64(f), true
}

func sortedKeys(m map[string]map[string]*ParamSchema) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
