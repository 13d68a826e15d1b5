package workflow

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// definitionsFile is the on-disk layout of workflow definitions
type definitionsFile struct {
	Workflows []struct {
		RequestType string         `yaml:"request_type"`
		ResubmitTo  ResubmitPolicy `yaml:"resubmit_to"`
		Stages      []Stage        `yaml:"stages"`
	} `yaml:"workflows"`
}

// LoadDefinitions reads a YAML definitions file into a registry
func LoadDefinitions(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow definitions: %w", err)
	}
	return ParseDefinitions(data)
}

// ParseDefinitions decodes YAML workflow definitions into a registry
func ParseDefinitions(data []byte) (*Registry, error) {
	var file definitionsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse workflow definitions: %w", err)
	}
	if len(file.Workflows) == 0 {
		return nil, fmt.Errorf("no workflows defined")
	}

	defs := make([]*Definition, 0, len(file.Workflows))
	for _, w := range file.Workflows {
		d, err := NewDefinition(w.RequestType, w.Stages, w.ResubmitTo)
		if err != nil {
			return nil, err
		}
		defs = append(defs, d)
	}

	return NewRegistry(defs...)
}
