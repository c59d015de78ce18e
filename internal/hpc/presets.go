package hpc

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// Preset is one HPC kind's default job-wide parameters, as read by
// LoadPresets from a TOML presets file. Apply lets any field already set
// in the job's Data override the preset.
type Preset struct {
	Time                  string `toml:"time"`
	Memory                string `toml:"memory"`
	Cores                 string `toml:"cores"`
	Account               string `toml:"account"`
	Partition             string `toml:"partition"`
	ArrayConcurrencyLimit string `toml:"array_concurrency_limit"`
}

// Presets maps HPC kind to its default Preset.
type Presets map[string]Preset

// LoadPresets parses a presets.toml file.
func LoadPresets(path string) (Presets, error) {
	var p Presets
	if _, err := toml.DecodeFile(path, &p); err != nil {
		return nil, fmt.Errorf("hpc: load presets: %w", err)
	}
	return p, nil
}

// Apply overlays preset defaults under data, letting any field data
// already set win.
func (p Presets) Apply(kind string, data Data) Data {
	preset, ok := p[kind]
	if !ok {
		return data
	}
	if data.Time == "" {
		data.Time = preset.Time
	}
	if data.Memory == "" {
		data.Memory = preset.Memory
	}
	if data.Cores == "" {
		data.Cores = preset.Cores
	}
	if data.Account == "" {
		data.Account = preset.Account
	}
	if data.Partition == "" {
		data.Partition = preset.Partition
	}
	if data.ArrayConcurrencyLimit == "" {
		data.ArrayConcurrencyLimit = preset.ArrayConcurrencyLimit
	}
	return data
}
