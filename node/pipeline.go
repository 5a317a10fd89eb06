package node

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v2"
)

// JobDefinition is the JSON document stored on IPFS for a listed job. The
// pipeline field is a YAML document describing the work.
type JobDefinition struct {
	State    map[string]string `json:"state,omitempty"`
	Pipeline string            `json:"pipeline"`

	Parsed Pipeline `json:"-"`
}

// Pipeline is the declarative workflow a job executes: a global section
// with defaults and a list of named command steps.
type Pipeline struct {
	Global PipelineGlobal `yaml:"global" json:"global"`
	Jobs   []PipelineStep `yaml:"jobs" json:"jobs"`
}

type PipelineGlobal struct {
	Image        string            `yaml:"image" json:"image"`
	Trigger      map[string]string `yaml:"trigger,omitempty" json:"trigger,omitempty"`
	Environment  map[string]string `yaml:"environment,omitempty" json:"environment,omitempty"`
	AllowFailure bool              `yaml:"allow_failure,omitempty" json:"allow_failure,omitempty"`
}

type PipelineStep struct {
	Name        string            `yaml:"name" json:"name"`
	Image       string            `yaml:"image,omitempty" json:"image,omitempty"`
	Commands    []string          `yaml:"commands" json:"commands"`
	Environment map[string]string `yaml:"environment,omitempty" json:"environment,omitempty"`
	Artifacts   []string          `yaml:"artifacts,omitempty" json:"artifacts,omitempty"`
}

// ParseJobDefinition parses a downloaded job document and its embedded
// pipeline YAML.
func ParseJobDefinition(data []byte) (*JobDefinition, error) {
	var def JobDefinition
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to parse job definition: %w", err)
	}
	if def.Pipeline == "" {
		return nil, fmt.Errorf("job definition carries no pipeline")
	}
	if err := yaml.Unmarshal([]byte(def.Pipeline), &def.Parsed); err != nil {
		return nil, fmt.Errorf("failed to parse pipeline YAML: %w", err)
	}
	return &def, nil
}
