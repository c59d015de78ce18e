// Package dataset wires the layout resolver, tabular store, catalog,
// scheduler, runner and tracker into a single engine over one dataset
// root (spec.md §2 "System overview").
package dataset

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/antigravity-dev/nipoppy-go/internal/catalog"
	"github.com/antigravity-dev/nipoppy-go/internal/config"
	"github.com/antigravity-dev/nipoppy-go/internal/layout"
	"github.com/antigravity-dev/nipoppy-go/internal/lock"
	"github.com/antigravity-dev/nipoppy-go/internal/scheduler"
	"github.com/antigravity-dev/nipoppy-go/internal/tabular"
)

// Engine is a loaded dataset: its layout, configuration, installed
// pipeline catalog and advisory lock.
type Engine struct {
	Root    string
	Layout  *layout.Layout
	Config  *config.Config
	Catalog *catalog.Catalog
	Lock    *lock.DatasetLock
}

// Open loads a dataset rooted at root: its global config, its installed
// pipeline catalog, and an advisory file lock. The canonical tables are
// not loaded here; call LoadTables under a held lock immediately before
// reading them (spec.md §5 "Shared-resource policy").
func Open(root string) (*Engine, error) {
	l := layout.New(root, layout.Default())

	configPath, err := l.Path(layout.GlobalConfig, nil)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("dataset: load global config: %w", err)
	}

	storeRoot, err := l.Path(layout.PipelineStore, nil)
	if err != nil {
		return nil, err
	}
	cat, err := catalog.Load(storeRoot)
	if err != nil {
		return nil, fmt.Errorf("dataset: load pipeline catalog: %w", err)
	}

	return &Engine{Root: root, Layout: l, Config: cfg, Catalog: cat, Lock: lock.New(root)}, nil
}

// Tables bundles the three canonical tables loaded together.
type Tables struct {
	Manifest         *tabular.Table
	CurationStatus   *tabular.Table
	ProcessingStatus *tabular.Table
}

// LoadTables reads all three canonical tables. Call under a shared lock.
func (e *Engine) LoadTables() (*Tables, error) {
	manifestPath, err := e.Layout.Path(layout.Manifest, nil)
	if err != nil {
		return nil, err
	}
	curationPath, err := e.Layout.Path(layout.CurationStatus, nil)
	if err != nil {
		return nil, err
	}
	processingPath, err := e.Layout.Path(layout.ProcessingStatus, nil)
	if err != nil {
		return nil, err
	}

	manifest, err := tabular.Load(manifestPath, tabular.Manifest)
	if err != nil {
		return nil, err
	}
	curation, err := tabular.LoadOrEmpty(curationPath, tabular.CurationStatus)
	if err != nil {
		return nil, err
	}
	processing, err := tabular.LoadOrEmpty(processingPath, tabular.ProcessingStatus)
	if err != nil {
		return nil, err
	}
	return &Tables{Manifest: manifest, CurationStatus: curation, ProcessingStatus: processing}, nil
}

// SaveCurationStatus atomically replaces the curation status file,
// creating its parent directory on a fresh dataset tree. Call under an
// exclusive lock.
func (e *Engine) SaveCurationStatus(t *tabular.Table) error {
	path, err := e.Layout.Path(layout.CurationStatus, nil)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("dataset: create curation status dir: %w", err)
	}
	return tabular.Save(path, t)
}

// SaveProcessingStatus atomically replaces the processing status file.
// Call under an exclusive lock.
func (e *Engine) SaveProcessingStatus(t *tabular.Table) error {
	path, err := e.Layout.Path(layout.ProcessingStatus, nil)
	if err != nil {
		return err
	}
	return tabular.Save(path, t)
}

// Scheduler builds a scheduler.Scheduler over t using the engine's
// catalog.
func (e *Engine) Scheduler(t *Tables) *scheduler.Scheduler {
	return scheduler.New(t.Manifest, t.CurationStatus, t.ProcessingStatus, e.Catalog)
}

// DatasetEnv returns the dataset-wide substitution tier: global config
// SUBSTITUTIONS merged with the dataset-level DPATH_* built-ins.
func (e *Engine) DatasetEnv() (map[string]string, error) {
	vars := make(map[string]string, len(e.Config.Substitutions)+8)
	for k, v := range e.Config.Substitutions {
		vars[k] = v
	}
	for name, dpathKey := range map[layout.Name]string{
		layout.BIDS:          "DPATH_BIDS",
		layout.Derivatives:   "DPATH_DERIVATIVES",
		layout.Containers:    "DPATH_CONTAINERS",
		layout.PipelineStore: "DPATH_PIPELINES",
		layout.PreReorg:      "DPATH_PRE_REORG",
		layout.PostReorg:     "DPATH_POST_REORG",
	} {
		p, err := e.Layout.Path(name, nil)
		if err != nil {
			return nil, err
		}
		vars[dpathKey] = p
	}
	return vars, nil
}

// loadJSON is a small helper shared by descriptor/invocation/tracker
// config loading, all of which are spec-mandated JSON documents
// relative to a bundle directory.
func loadJSON(dir, rel string, out any) error {
	data, err := os.ReadFile(filepath.Join(dir, rel))
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

// pipelineVarsForStep flattens a bundle's PIPELINE_VARIABLES lookup for
// one (type, name, version) into a plain map, substitution's pipeline
// tier (spec.md §4.3 precedence: unit > pipeline > dataset).
func pipelineVarsForStep(cfg *config.Config, ptype config.PipelineType, name, version string) map[string]string {
	out := make(map[string]string)
	byVersion, ok := cfg.PipelineVariables[ptype]
	if !ok {
		return out
	}
	byName, ok := byVersion[name]
	if !ok {
		return out
	}
	vars, ok := byName[version]
	if !ok {
		return out
	}
	for k, v := range vars {
		if v != nil {
			out[k] = *v
		}
	}
	return out
}
