// Package catalog discovers installed pipeline bundles on disk and
// presents them as typed records (spec.md §4.4). It parses each bundle's
// config.json once at load time into an arena of workflow.Bundle values
// keyed by (type, name, version); every other component holds keys into
// this arena rather than bundle pointers, so there are no cyclic
// config-to-descriptor references to unwind later (spec.md §9).
package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/antigravity-dev/nipoppy-go/internal/workflow"
)

// ErrBundleNotFound is returned by Get/Latest when no bundle matches.
type ErrBundleNotFound struct{ Key workflow.Key }

func (e *ErrBundleNotFound) Error() string { return fmt.Sprintf("catalog: bundle not found: %s", e.Key) }

// ErrMalformedConfig is returned when a bundle's config.json fails to
// parse or is missing required fields.
type ErrMalformedConfig struct {
	Dir string
	Err error
}

func (e *ErrMalformedConfig) Error() string {
	return fmt.Sprintf("catalog: malformed config in %s: %v", e.Dir, e.Err)
}
func (e *ErrMalformedConfig) Unwrap() error { return e.Err }

// ErrMissingReferencedFile is returned when a step names a descriptor,
// invocation, tracker, ignore-list or HPC file that does not exist.
type ErrMissingReferencedFile struct {
	Dir  string
	Step string
	Kind string
	Path string
}

func (e *ErrMissingReferencedFile) Error() string {
	return fmt.Sprintf("catalog: bundle %s step %q references missing %s %s", e.Dir, e.Step, e.Kind, e.Path)
}

// Catalog is the in-memory arena of discovered bundles.
type Catalog struct {
	arena map[workflow.Key]*workflow.Bundle
}

// Load walks root/<type>/<name>/<version>/config.json and parses every
// bundle it finds.
func Load(root string) (*Catalog, error) {
	c := &Catalog{arena: make(map[workflow.Key]*workflow.Bundle)}

	for _, typ := range []workflow.Type{workflow.Bidsification, workflow.Processing, workflow.Extraction} {
		typeDir := filepath.Join(root, string(typ))
		names, err := listDirs(typeDir)
		if err != nil {
			continue // type directory absent is not an error: a dataset may not yet use this pipeline class
		}
		for _, name := range names {
			nameDir := filepath.Join(typeDir, name)
			versions, err := listDirs(nameDir)
			if err != nil {
				continue
			}
			for _, version := range versions {
				bundleDir := filepath.Join(nameDir, version)
				bundle, err := loadBundle(bundleDir, typ, name, version)
				if err != nil {
					return nil, err
				}
				c.arena[bundle.Key] = bundle
			}
		}
	}
	return c, nil
}

func listDirs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			out = append(out, e.Name())
		}
	}
	return out, nil
}

func loadBundle(dir string, typ workflow.Type, dirName, dirVersion string) (*workflow.Bundle, error) {
	configPath := filepath.Join(dir, "config.json")
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, &ErrMalformedConfig{Dir: dir, Err: err}
	}

	var raw bundleConfigFile
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &ErrMalformedConfig{Dir: dir, Err: err}
	}
	if raw.Name == "" {
		raw.Name = dirName
	}
	if raw.Version == "" {
		raw.Version = dirVersion
	}
	if len(raw.Steps) == 0 {
		return nil, &ErrMalformedConfig{Dir: dir, Err: fmt.Errorf("config declares no STEPS")}
	}

	uri, err := resolveContainerURI(raw.ContainerInfo.URI)
	if err != nil {
		return nil, &ErrMalformedConfig{Dir: dir, Err: fmt.Errorf("CONTAINER_INFO.URI: %w", err)}
	}

	bundle := &workflow.Bundle{
		Key:               workflow.Key{Type: typ, Name: raw.Name, Version: raw.Version},
		Dir:               dir,
		ContainerInfo:     workflow.ContainerInfo{Path: raw.ContainerInfo.Path, URI: uri},
		PipelineVariables: raw.Variables,
	}
	for _, dep := range raw.Dependencies {
		bundle.Dependencies = append(bundle.Dependencies, workflow.Key{
			Type: workflow.Processing, Name: dep.Name, Version: dep.Version,
		})
	}

	for _, s := range raw.Steps {
		name := s.Name
		if name == "" {
			name = "default"
		}
		generate := typ == workflow.Processing
		if s.GeneratePyBIDSDatabase != nil {
			generate = *s.GeneratePyBIDSDatabase
		}
		updateStatus := true
		if s.UpdateStatus != nil {
			updateStatus = *s.UpdateStatus
		}

		step := workflow.Step{
			Name:                   name,
			DescriptorFile:         s.DescriptorFile,
			InvocationFile:         s.InvocationFile,
			TrackerConfigFile:      s.TrackerConfigFile,
			PyBIDSIgnoreFile:       s.PyBIDSIgnoreFile,
			HPCConfigFile:          s.HPCConfigFile,
			GeneratePyBIDSDatabase: generate,
			UpdateStatus:           updateStatus,
		}

		for kind, rel := range map[string]string{
			"descriptor": step.DescriptorFile,
			"invocation": step.InvocationFile,
		} {
			if rel == "" {
				return nil, &ErrMalformedConfig{Dir: dir, Err: fmt.Errorf("step %q missing %s file", name, kind)}
			}
			if _, err := os.Stat(filepath.Join(dir, rel)); err != nil {
				return nil, &ErrMissingReferencedFile{Dir: dir, Step: name, Kind: kind, Path: rel}
			}
		}
		for kind, rel := range map[string]string{
			"tracker config":     step.TrackerConfigFile,
			"pybids ignore list": step.PyBIDSIgnoreFile,
			"hpc config":         step.HPCConfigFile,
		} {
			if rel == "" {
				continue
			}
			if _, err := os.Stat(filepath.Join(dir, rel)); err != nil {
				return nil, &ErrMissingReferencedFile{Dir: dir, Step: name, Kind: kind, Path: rel}
			}
		}

		bundle.Steps = append(bundle.Steps, step)
	}

	return bundle, nil
}

// List returns every bundle of typ, optionally filtered by name, in
// (name, version) order.
func (c *Catalog) List(typ workflow.Type, name string) []*workflow.Bundle {
	var out []*workflow.Bundle
	for k, b := range c.arena {
		if k.Type != typ {
			continue
		}
		if name != "" && k.Name != name {
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Key.Name != out[j].Key.Name {
			return out[i].Key.Name < out[j].Key.Name
		}
		return compareVersions(out[i].Key.Version, out[j].Key.Version) < 0
	})
	return out
}

// Get returns the bundle for an exact key.
func (c *Catalog) Get(typ workflow.Type, name, version string) (*workflow.Bundle, error) {
	key := workflow.Key{Type: typ, Name: name, Version: version}
	b, ok := c.arena[key]
	if !ok {
		return nil, &ErrBundleNotFound{Key: key}
	}
	return b, nil
}

// Latest returns the highest-versioned bundle for (typ, name) (spec.md
// §4.6 bidsify: "if version is unspecified, the catalog's latest version
// is chosen").
func (c *Catalog) Latest(typ workflow.Type, name string) (*workflow.Bundle, error) {
	bundles := c.List(typ, name)
	if len(bundles) == 0 {
		return nil, &ErrBundleNotFound{Key: workflow.Key{Type: typ, Name: name}}
	}
	return bundles[len(bundles)-1], nil
}

// Steps returns bundle's ordered steps.
func Steps(bundle *workflow.Bundle) []workflow.Step {
	return bundle.Steps
}

// compareVersions orders dotted numeric version strings ("23.1.0" <
// "23.1.10"); falls back to a lexicographic comparison for any segment
// that isn't purely numeric, so non-semver version strings still sort
// deterministically instead of erroring.
func compareVersions(a, b string) int {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")
	for i := 0; i < len(as) || i < len(bs); i++ {
		var av, bv string
		if i < len(as) {
			av = as[i]
		}
		if i < len(bs) {
			bv = bs[i]
		}
		an, aerr := strconv.Atoi(av)
		bn, berr := strconv.Atoi(bv)
		if aerr == nil && berr == nil {
			if an != bn {
				return an - bn
			}
			continue
		}
		if av != bv {
			return strings.Compare(av, bv)
		}
	}
	return 0
}
