// Package graph models the back-end node graph and builds the payloads for
// the built-in txt2img and img2img templates.
package graph

import "encoding/json"

// Node is one node of the graph consumed by the back-end's /prompt endpoint.
type Node struct {
	ClassType string                 `json:"class_type"`
	Inputs    map[string]interface{} `json:"inputs"`
	Meta      *Meta                  `json:"_meta,omitempty"`
}

// Meta carries the display metadata the back-end preserves.
type Meta struct {
	Title string `json:"title,omitempty"`
}

// Graph maps string node ids to nodes.
type Graph map[string]*Node

// Link references another node's output slot.
func Link(nodeID string, slot int) []interface{} {
	return []interface{}{nodeID, float64(slot)}
}

// Clone deep-copies the graph through a JSON round trip, so descriptor graphs
// stay pristine across jobs.
func (g Graph) Clone() (Graph, error) {
	data, err := json.Marshal(g)
	if err != nil {
		return nil, err
	}
	var out Graph
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Parse decodes a raw workflow.json graph.
func Parse(data []byte) (Graph, error) {
	var g Graph
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, err
	}
	return g, nil
}
