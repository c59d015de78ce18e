// Package workflow defines the pipeline bundle data model: a bundle is an
// ordered list of steps, each naming a descriptor, an invocation, and
// optional tracker/ignore/HPC configuration (spec.md §3 "Pipeline
// bundle", §6 "Pipeline bundle config schema"). The catalog package
// discovers bundles on disk and constructs these types; this package
// owns only the step-sequencing behavior over an already-parsed bundle.
package workflow

import "fmt"

// Type is the closed set of pipeline bundle variants (spec.md §9: "use a
// closed set of variants rather than runtime attribute lookup").
type Type string

const (
	Bidsification Type = "bidsification"
	Processing    Type = "processing"
	Extraction    Type = "extraction"
)

// Key uniquely identifies a bundle: (type, name, version).
type Key struct {
	Type    Type
	Name    string
	Version string
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%s", k.Type, k.Name, k.Version)
}

// Step is one step of a bundle: names a descriptor and invocation file
// (relative to the bundle directory), and optionally a tracker config
// (processing bundles only), a path-exclusion list, and an HPC block.
type Step struct {
	Name                   string // defaults to "default"
	DescriptorFile         string
	InvocationFile         string
	TrackerConfigFile      string // optional
	PyBIDSIgnoreFile       string // optional
	HPCConfigFile          string // optional
	GeneratePyBIDSDatabase bool
	UpdateStatus           bool
}

// ContainerInfo names the container image's on-disk path and source URI
// (spec.md §6 CONTAINER_INFO). Resolving/validating URI is the catalog's
// job (internal/catalog uses distribution/reference for docker-style
// URIs); this package only carries the parsed fields.
type ContainerInfo struct {
	Path string
	URI  string
}

// Bundle is one pipeline bundle: a directory holding a config plus its
// ordered steps (spec.md §3 "Pipeline bundle").
type Bundle struct {
	Key           Key
	Dir           string
	ContainerInfo ContainerInfo
	Steps         []Step
	// PipelineVariables lists the variable names this bundle declares;
	// every [[TOKEN]] in an invocation must be one of these, a built-in,
	// or bound at call time (spec.md §3 invariant).
	PipelineVariables []string
	// Dependencies names the processing bundles an extraction bundle
	// requires a SUCCESS row for before it is schedulable (spec.md §4.6
	// extract: "every declared upstream processing dependency"). Empty
	// for non-extraction bundles.
	Dependencies []Key
}

// StepIndex returns the index of a step by name, or -1 if absent.
func (b *Bundle) StepIndex(name string) int {
	for i, s := range b.Steps {
		if s.Name == name {
			return i
		}
	}
	return -1
}

// FirstStep returns the bundle's first step, or nil if it has none.
func (b *Bundle) FirstStep() *Step {
	if len(b.Steps) == 0 {
		return nil
	}
	return &b.Steps[0]
}

// Step looks up a step by name, falling back to FirstStep when name is
// empty (spec.md §4.6 bidsify: "if step is unspecified, the bundle's
// first step is used").
func (b *Bundle) Step(name string) (*Step, error) {
	if name == "" {
		if s := b.FirstStep(); s != nil {
			return s, nil
		}
		return nil, fmt.Errorf("workflow: bundle %s has no steps", b.Key)
	}
	idx := b.StepIndex(name)
	if idx < 0 {
		return nil, fmt.Errorf("workflow: bundle %s has no step %q", b.Key, name)
	}
	return &b.Steps[idx], nil
}
