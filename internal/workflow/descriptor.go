// Package workflow loads user-defined workflow descriptors from disk and
// implements the parameter schema: parsing, validation, coercion, default and
// enumeration injection, and graph binding.
package workflow

import (
	"fmt"
	"strings"

	"comfygate/internal/graph"
	"comfygate/internal/names"
	"comfygate/pkg/config"
)

// Parameter types supported by the schema.
const (
	TypeNumber  = "number"
	TypeText    = "text"
	TypeSelect  = "select"
	TypeBoolean = "boolean"
)

// Image binding modes for input nodes.
const (
	ImageModeSingle = ""     // one image
	ImageModeList   = "list" // full ordered list
	ImageModeAll    = "all"  // synonym of list
)

// InputNode maps one graph node onto the caller-supplied image list.
type InputNode struct {
	NodeID     string `json:"node_id"`
	Input      string `json:"input,omitempty"`       // image input name, default "image"
	ImageIndex *int   `json:"image_index,omitempty"` // explicit slot in the image list
	ImageMode  string `json:"image_mode,omitempty"`  // "", "list" or "all"
}

// InputName returns the node input the image binds to.
func (n InputNode) InputName() string {
	if n.Input == "" {
		return "image"
	}
	return n.Input
}

// WantsList reports whether the node receives the full image list.
func (n InputNode) WantsList() bool {
	return n.ImageMode == ImageModeList || n.ImageMode == ImageModeAll
}

// ParamSchema describes one configurable parameter of one node.
type ParamSchema struct {
	Type        string      `json:"type"`
	Default     interface{} `json:"default,omitempty"`
	Required    bool        `json:"required,omitempty"`
	Min         *float64    `json:"min,omitempty"`
	Max         *float64    `json:"max,omitempty"`
	Options     []string    `json:"options,omitempty"`
	Aliases     []string    `json:"aliases,omitempty"`
	Description string      `json:"description,omitempty"`

	InjectModels     bool `json:"inject_models,omitempty"`
	InjectLoras      bool `json:"inject_loras,omitempty"`
	InjectSamplers   bool `json:"inject_samplers,omitempty"`
	InjectSchedulers bool `json:"inject_schedulers,omitempty"`
}

// Descriptor is one workflow loaded from disk: the schema from config.json
// plus the raw node graph from workflow.json. Immutable after startup.
type Descriptor struct {
	Name              string                             `json:"name"`
	Prefix            string                             `json:"prefix"`
	InputNodes        []InputNode                        `json:"input_nodes,omitempty"`
	OutputNodes       []string                           `json:"output_nodes,omitempty"`
	ConfigurableNodes []string                           `json:"configurable_nodes,omitempty"`
	Params            map[string]map[string]*ParamSchema `json:"params,omitempty"`

	Graph graph.Graph `json:"-"`
}

// Validate checks the descriptor's internal invariants: every referenced node
// id must exist in the graph.
func (d *Descriptor) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("descriptor has no name")
	}
	if d.Prefix == "" {
		return fmt.Errorf("workflow %s has no prefix", d.Name)
	}

	check := func(id, role string) error {
		if _, ok := d.Graph[id]; !ok {
			return fmt.Errorf("workflow %s: %s node %q not in graph", d.Name, role, id)
		}
		return nil
	}
	for _, n := range d.InputNodes {
		if err := check(n.NodeID, "input"); err != nil {
			return err
		}
	}
	for _, id := range d.OutputNodes {
		if err := check(id, "output"); err != nil {
			return err
		}
	}
	for _, id := range d.ConfigurableNodes {
		if err := check(id, "configurable"); err != nil {
			return err
		}
	}
	for nodeID := range d.Params {
		if err := check(nodeID, "parameterized"); err != nil {
			return err
		}
	}
	return nil
}

// ApplyInjections resolves the inject_* flags against the name maps and the
// global generation defaults. Applied once at load time; each flag is cleared
// after application.
func (d *Descriptor) ApplyInjections(models, loras *names.Map, gen config.GenerationConfig) {
	for _, nodeID := range d.ConfigurableNodes {
		for _, schema := range d.Params[nodeID] {
			if schema.InjectModels {
				schema.Options = models.Files()
				schema.InjectModels = false
			}
			if schema.InjectLoras {
				if entries := loras.Names(); len(entries) > 0 {
					schema.Description = strings.TrimSpace(
						schema.Description + " (LoRAs: " + strings.Join(entries, ", ") + ")")
				}
				schema.InjectLoras = false
			}
			if schema.InjectSamplers {
				schema.Default = gen.SamplerName
				schema.InjectSamplers = false
			}
			if schema.InjectSchedulers {
				schema.Default = gen.Scheduler
				schema.InjectSchedulers = false
			}
		}
	}
}

// schemaFor looks up a parameter schema by canonical name.
func (d *Descriptor) schemaFor(nodeID, param string) (*ParamSchema, bool) {
	node, ok := d.Params[nodeID]
	if !ok {
		return nil, false
	}
	s, ok := node[param]
	return s, ok
}

// aliasKey identifies one parameter slot.
type aliasKey struct {
	NodeID string
	Param  string
}

// aliasIndex maps every canonical name and alias (lower-cased) onto its
// parameter slot. Built on demand; descriptors are immutable so the index is
// computed per call site at load time.
func (d *Descriptor) aliasIndex() map[string]aliasKey {
	index := make(map[string]aliasKey)
	for nodeID, params := range d.Params {
		for name, schema := range params {
			key := aliasKey{NodeID: nodeID, Param: name}
			index[strings.ToLower(name)] = key
			for _, alias := range schema.Aliases {
				index[strings.ToLower(alias)] = key
			}
		}
	}
	return index
}

// promptSlot finds the parameter slot named "prompt", if the descriptor
// declares one. Interleaved free text is routed there.
func (d *Descriptor) promptSlot() (aliasKey, bool) {
	for nodeID, params := range d.Params {
		for name := range params {
			if strings.EqualFold(name, "prompt") {
				return aliasKey{NodeID: nodeID, Param: name}, true
			}
		}
	}
	return aliasKey{}, false
}
