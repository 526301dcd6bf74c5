package workflow

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "embed"

	"comfygate/internal/graph"
	"comfygate/internal/names"
	"comfygate/pkg/config"
	"comfygate/pkg/logger"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.uber.org/zap"
)

//go:embed descriptor_schema.json
var descriptorSchema []byte

// Set holds every valid workflow descriptor, indexed by name and prefix.
type Set struct {
	byName   map[string]*Descriptor
	byPrefix map[string]*Descriptor
	ordered  []*Descriptor
}

// LoadDir loads every workflow under dir. Each subdirectory must contain a
// config.json descriptor and a workflow.json node graph. Invalid workflows
// are skipped with an error log; a duplicate prefix fails the whole load
// because prefix matching would become ambiguous.
func LoadDir(dir string, models, loras *names.Map, gen config.GenerationConfig) (*Set, error) {
	schema, err := compileDescriptorSchema()
	if err != nil {
		return nil, fmt.Errorf("failed to compile descriptor schema: %w", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Warn("workflow directory missing, no workflows loaded", zap.String("dir", dir))
			return newSet(nil), nil
		}
		return nil, fmt.Errorf("failed to read workflow directory: %w", err)
	}

	var descriptors []*Descriptor
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		d, err := loadOne(filepath.Join(dir, entry.Name()), schema)
		if err != nil {
			logger.Error("skipping invalid workflow",
				zap.String("workflow", entry.Name()),
				zap.Error(err),
			)
			continue
		}
		d.ApplyInjections(models, loras, gen)
		descriptors = append(descriptors, d)
		logger.Info("workflow loaded",
			zap.String("name", d.Name),
			zap.String("prefix", d.Prefix),
		)
	}

	sort.Slice(descriptors, func(i, j int) bool { return descriptors[i].Name < descriptors[j].Name })

	set := newSet(descriptors)
	if err := set.checkPrefixes(); err != nil {
		return nil, err
	}
	return set, nil
}

func loadOne(dir string, schema *jsonschema.Schema) (*Descriptor, error) {
	cfgData, err := os.ReadFile(filepath.Join(dir, "config.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to read descriptor: %w", err)
	}

	var doc interface{}
	if err := json.Unmarshal(cfgData, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse descriptor: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("descriptor failed schema validation: %w", err)
	}

	var d Descriptor
	if err := json.Unmarshal(cfgData, &d); err != nil {
		return nil, fmt.Errorf("failed to decode descriptor: %w", err)
	}

	graphData, err := os.ReadFile(filepath.Join(dir, "workflow.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to read graph: %w", err)
	}
	d.Graph, err = graph.Parse(graphData)
	if err != nil {
		return nil, fmt.Errorf("failed to parse graph: %w", err)
	}

	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &d, nil
}

func compileDescriptorSchema() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("descriptor_schema.json", bytes.NewReader(descriptorSchema)); err != nil {
		return nil, err
	}
	return compiler.Compile("descriptor_schema.json")
}

func newSet(descriptors []*Descriptor) *Set {
	set := &Set{
		byName:   make(map[string]*Descriptor),
		byPrefix: make(map[string]*Descriptor),
		ordered:  descriptors,
	}
	for _, d := range descriptors {
		set.byName[d.Name] = d
		set.byPrefix[d.Prefix] = d
	}
	return set
}

// checkPrefixes enforces global prefix uniqueness across descriptors.
func (s *Set) checkPrefixes() error {
	seen := make(map[string]string)
	for _, d := range s.ordered {
		if other, dup := seen[d.Prefix]; dup {
			return fmt.Errorf("workflow prefix %q used by both %s and %s", d.Prefix, other, d.Name)
		}
		seen[d.Prefix] = d.Name
	}
	return nil
}

// List returns the descriptors in name order.
func (s *Set) List() []*Descriptor {
	out := make([]*Descriptor, len(s.ordered))
	copy(out, s.ordered)
	return out
}

// Get looks a descriptor up by name.
func (s *Set) Get(name string) (*Descriptor, bool) {
	d, ok := s.byName[name]
	return d, ok
}

// MatchPrefix finds the descriptor whose trigger token starts the given text
// and returns the remaining tail.
func (s *Set) MatchPrefix(text string) (*Descriptor, string, bool) {
	trimmed := strings.TrimSpace(text)
	token := trimmed
	rest := ""
	if idx := strings.IndexAny(trimmed, " \t\n"); idx >= 0 {
		token = trimmed[:idx]
		rest = strings.TrimSpace(trimmed[idx+1:])
	}
	d, ok := s.byPrefix[token]
	if !ok {
		return nil, "", false
	}
	return d, rest, true
}

// Len is the number of loaded workflows.
func (s *Set) Len() int {
	return len(s.ordered)
}
