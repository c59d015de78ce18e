// Package layout maps semantic dataset names to filesystem paths.
//
// Every other component depends only on a *Layout; none of them hard-code
// a relative path of their own. The mapping is driven by a descriptor
// loaded once at dataset init (see Default for the paths spec.md §6
// names), so a dataset can relocate any of its areas without touching
// the components that read or write them.
package layout

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Name identifies a semantic dataset area.
type Name string

const (
	Manifest         Name = "manifest"
	CurationStatus   Name = "curation_status"
	ProcessingStatus Name = "processing_status"
	Downloads        Name = "downloads"
	PreReorg         Name = "pre_reorg"
	PostReorg        Name = "post_reorg"
	BIDS             Name = "bids"
	PipelineStore    Name = "pipeline_store"
	Derivatives      Name = "derivatives"
	Containers       Name = "containers"
	Logs             Name = "logs"
	Work             Name = "work"
	HPCTemplate      Name = "hpc_template"
	GlobalConfig     Name = "global_config"
)

// Entry describes one semantic name: its path relative to the dataset
// root (may contain [[TOKEN]] placeholders resolved by the substitution
// engine before Path is called), whether it is a directory that should be
// lazily created on first write, and a human description.
type Entry struct {
	RelPath     string
	Dir         bool
	Description string
}

// Descriptor is the full semantic-name -> path mapping for a dataset.
type Descriptor struct {
	Entries map[Name]Entry
}

// Default returns the canonical nipoppy-go dataset layout described in
// spec.md §6.
func Default() Descriptor {
	return Descriptor{Entries: map[Name]Entry{
		Manifest:         {RelPath: "manifest.tsv", Description: "participant/visit/session/datatype ground truth"},
		CurationStatus:   {RelPath: "sourcedata/imaging/curation_status.tsv", Description: "curation state table"},
		ProcessingStatus: {RelPath: "derivatives/processing_status.tsv", Description: "processing state table"},
		Downloads:        {RelPath: "sourcedata/imaging/downloads", Dir: true, Description: "raw DICOM downloads"},
		PreReorg:         {RelPath: "sourcedata/imaging/pre_reorg", Dir: true, Description: "pre-reorganization DICOMs"},
		PostReorg:        {RelPath: "sourcedata/imaging/post_reorg", Dir: true, Description: "reorganized DICOMs"},
		BIDS:             {RelPath: "bids", Dir: true, Description: "BIDS dataset"},
		PipelineStore:    {RelPath: "pipelines", Dir: true, Description: "installed pipeline bundles"},
		Derivatives:      {RelPath: "derivatives", Dir: true, Description: "pipeline output areas"},
		Containers:       {RelPath: "containers", Dir: true, Description: "container images"},
		Logs:             {RelPath: "logs", Dir: true, Description: "per-action log files"},
		Work:             {RelPath: "work", Dir: true, Description: "scratch/working areas"},
		HPCTemplate:      {RelPath: "code/hpc/job_script_template.sh", Description: "HPC array-job script template"},
		GlobalConfig:     {RelPath: "global_config.json", Description: "dataset-wide configuration"},
	}}
}

// ErrNotInitialized is returned by Layout.ReadDir when a directory-kind
// entry is read but has never been created; it is distinguishable from a
// directory that exists but is simply empty ("no data").
var ErrNotInitialized = errors.New("layout: area not initialized")

// Layout resolves semantic names against a concrete dataset root.
type Layout struct {
	Root       string
	Descriptor Descriptor
}

// New builds a Layout rooted at root using descriptor.
func New(root string, descriptor Descriptor) *Layout {
	return &Layout{Root: root, Descriptor: descriptor}
}

// resolveTokens replaces [[NAME]] occurrences in s using vars, leaving
// unresolved tokens untouched (mirrors subst's best-effort policy without
// importing the subst package, so layout depends on no other internal
// package).
func resolveTokens(s string, vars map[string]string) string {
	if len(vars) == 0 || !strings.Contains(s, "[[") {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); {
		if s[i] == '[' && i+1 < len(s) && s[i+1] == '[' {
			if end := strings.Index(s[i:], "]]"); end >= 0 {
				name := s[i+2 : i+end]
				if v, ok := vars[name]; ok {
					b.WriteString(v)
					i += end + 2
					continue
				}
			}
		}
		b.WriteByte(s[i])
		i++
	}
	return b.String()
}

// Path resolves name to an absolute path, substituting any [[TOKEN]]
// segments in the entry's relative path with vars.
func (l *Layout) Path(name Name, vars map[string]string) (string, error) {
	entry, ok := l.Descriptor.Entries[name]
	if !ok {
		return "", fmt.Errorf("layout: unknown semantic name %q", name)
	}
	rel := resolveTokens(entry.RelPath, vars)
	return filepath.Join(l.Root, filepath.FromSlash(rel)), nil
}

// EnsureDir lazily creates the directory for a directory-kind entry,
// returning its path.
func (l *Layout) EnsureDir(name Name, vars map[string]string) (string, error) {
	entry, ok := l.Descriptor.Entries[name]
	if !ok {
		return "", fmt.Errorf("layout: unknown semantic name %q", name)
	}
	if !entry.Dir {
		return "", fmt.Errorf("layout: %q is not a directory entry", name)
	}
	p, err := l.Path(name, vars)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(p, 0o755); err != nil {
		return "", fmt.Errorf("layout: create %q: %w", name, err)
	}
	return p, nil
}

// ReadDir resolves a directory-kind entry for reading only: a missing
// directory is reported as ErrNotInitialized rather than silently
// treated as empty, per spec.md §4.1.
func (l *Layout) ReadDir(name Name, vars map[string]string) (string, error) {
	p, err := l.Path(name, vars)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(p); err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrNotInitialized, p)
		}
		return "", err
	}
	return p, nil
}
