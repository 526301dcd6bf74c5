package names

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseLoraSpec parses a LoRA reference of the form name[:model][!clip],
// e.g. "x" -> (1.0, 1.0), "x:0.8" -> (0.8, 1.0), "x!1.3" -> (1.0, 1.3),
// "x:0.8!1.3" -> (0.8, 1.3). A leading "lora:" tag is accepted and stripped.
func ParseLoraSpec(spec string) (name string, strengthModel, strengthClip float64, err error) {
	spec = strings.TrimSpace(spec)
	spec = strings.TrimPrefix(spec, "lora:")
	if spec == "" {
		return "", 0, 0, fmt.Errorf("empty lora reference")
	}

	strengthModel, strengthClip = 1.0, 1.0
	rest := spec

	if bang := strings.LastIndex(rest, "!"); bang >= 0 {
		clipStr := rest[bang+1:]
		v, perr := strconv.ParseFloat(clipStr, 64)
		if perr != nil {
			return "", 0, 0, fmt.Errorf("invalid clip strength %q in lora reference %q", clipStr, spec)
		}
		strengthClip = v
		rest = rest[:bang]
	}

	if colon := strings.LastIndex(rest, ":"); colon >= 0 {
		modelStr := rest[colon+1:]
		if v, perr := strconv.ParseFloat(modelStr, 64); perr == nil {
			strengthModel = v
			rest = rest[:colon]
		}
		// A non-numeric tail after ':' stays part of the name.
	}

	name = strings.TrimSpace(rest)
	if name == "" {
		return "", 0, 0, fmt.Errorf("lora reference %q has no name", spec)
	}
	return name, strengthModel, strengthClip, nil
}
