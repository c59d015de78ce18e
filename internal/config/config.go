// Package config loads and validates the dataset-wide global_config.json
// (spec.md §6). The format is JSON because spec.md names the file
// global_config.json explicitly; the load/defaults/validate pipeline
// below follows the shape of the teacher's TOML config loader even
// though the wire format differs.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// PipelineType is the closed set of pipeline-variable namespaces
// (spec.md §6 PIPELINE_VARIABLES.{BIDSIFICATION|PROCESSING|EXTRACTION}).
type PipelineType string

const (
	Bidsification PipelineType = "BIDSIFICATION"
	Processing    PipelineType = "PROCESSING"
	Extraction    PipelineType = "EXTRACTION"
)

// ContainerConfig is the command prefix, arguments and environment
// variables used to invoke a container runtime (spec.md §6
// CONTAINER_CONFIG). The exact container invocation syntax beyond this
// prefix is out of scope (spec.md §1); this struct only carries the
// pieces the invocation builder substitutes into CONTAINER_COMMAND.
type ContainerConfig struct {
	Command string            `json:"COMMAND"`
	Args    []string          `json:"ARGS"`
	EnvVars map[string]string `json:"ENV_VARS"`
}

// PipelineVariables is a four-level map: type -> pipeline name -> version
// -> variable name -> value. A nil value means "declared but not yet
// populated by the user" (spec.md §6: "null until user-populated").
type PipelineVariables map[PipelineType]map[string]map[string]map[string]*string

// Lookup returns the bound value for (ptype, name, version, variable),
// and whether a binding (even a null one) exists at all.
func (pv PipelineVariables) Lookup(ptype PipelineType, name, version, variable string) (*string, bool) {
	byName, ok := pv[ptype]
	if !ok {
		return nil, false
	}
	byVersion, ok := byName[name]
	if !ok {
		return nil, false
	}
	vars, ok := byVersion[version]
	if !ok {
		return nil, false
	}
	v, ok := vars[variable]
	return v, ok
}

// Config is the parsed contents of global_config.json.
type Config struct {
	DatasetName              string            `json:"DATASET_NAME"`
	Visits                   []string          `json:"VISITS"`
	Sessions                 []string          `json:"SESSIONS"`
	DicomDirParticipantFirst bool              `json:"DICOM_DIR_PARTICIPANT_FIRST"`
	DicomDirMapFile          string            `json:"DICOM_DIR_MAP_FILE,omitempty"`
	ContainerConfig          ContainerConfig   `json:"CONTAINER_CONFIG"`
	Substitutions            map[string]string `json:"SUBSTITUTIONS"`
	PipelineVariables        PipelineVariables `json:"PIPELINE_VARIABLES"`
	HPCPreamble              []string          `json:"HPC_PREAMBLE"`
}

// Load reads, parses and validates global_config.json at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config: validating %s: %w", path, err)
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Substitutions == nil {
		cfg.Substitutions = map[string]string{}
	}
	if cfg.PipelineVariables == nil {
		cfg.PipelineVariables = PipelineVariables{}
	}
}

func validate(cfg *Config) error {
	if strings.TrimSpace(cfg.DatasetName) == "" {
		return fmt.Errorf("DATASET_NAME is required")
	}
	if len(cfg.Visits) == 0 {
		return fmt.Errorf("VISITS must declare at least one visit")
	}
	seen := make(map[string]struct{}, len(cfg.Visits))
	for _, v := range cfg.Visits {
		if strings.TrimSpace(v) == "" {
			return fmt.Errorf("VISITS entries must not be empty")
		}
		if _, dup := seen[v]; dup {
			return fmt.Errorf("VISITS contains duplicate entry %q", v)
		}
		seen[v] = struct{}{}
	}
	return nil
}

// Clone returns a deep-enough copy for callers that want to mutate a
// config without affecting the original (e.g. tests).
func (cfg *Config) Clone() *Config {
	if cfg == nil {
		return nil
	}
	out := *cfg
	out.Visits = append([]string(nil), cfg.Visits...)
	out.Sessions = append([]string(nil), cfg.Sessions...)
	out.HPCPreamble = append([]string(nil), cfg.HPCPreamble...)
	out.Substitutions = make(map[string]string, len(cfg.Substitutions))
	for k, v := range cfg.Substitutions {
		out.Substitutions[k] = v
	}
	return &out
}
