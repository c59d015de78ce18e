// Package curation walks the dataset's curation directory tree and
// reconciles it against the manifest into the curation status table
// (spec.md §4.10).
package curation

import (
	"os"
	"path/filepath"

	"github.com/antigravity-dev/nipoppy-go/internal/tabular"
)

// Roots names the three directory trees the walker scans.
type Roots struct {
	PreReorg  string
	PostReorg string
	BIDS      string
}

// Config selects the pre-reorg layout and, for RelationFile mode, the
// parsed relation map.
type Config struct {
	PreReorgMode PreReorgMode
	Relations    RelationMap
}

// Walk reconciles manifest against the three roots and returns an
// updated curation status table. When regenerate is true the result
// starts empty, discarding any prior contents; otherwise rows for
// participant/session pairs absent from the manifest are preserved
// unchanged from existing (spec.md §4.10: "allowing progressive
// updates").
func Walk(manifest *tabular.Table, existing *tabular.Table, roots Roots, cfg Config, regenerate bool) (*tabular.Table, error) {
	if err := ValidateLabels(manifest); err != nil {
		return nil, err
	}
	if err := ValidatePreReorgNaming(roots.PreReorg); err != nil {
		return nil, err
	}

	result, err := tabular.New(tabular.CurationStatus)
	if err != nil {
		return nil, err
	}
	if !regenerate && existing != nil {
		result = existing.Clone()
	}

	seen := make(map[string]bool)
	var newRows []tabular.Row
	for _, row := range manifest.Rows {
		p, s := row["participant_id"], row["session_id"]
		key := p + "\x1f" + s
		if seen[key] {
			continue
		}
		seen[key] = true

		inPre := preReorgExists(roots.PreReorg, cfg.PreReorgMode, p, s, cfg.Relations)
		inPost := bidsDirExists(roots.PostReorg, p, s)
		inBids := bidsDirExists(roots.BIDS, p, s)

		newRows = append(newRows, tabular.Row{
			"participant_id":        p,
			"session_id":            s,
			"in_manifest":           "true",
			"participant_dicom_dir": dicomDirLabel(roots.PreReorg, cfg, p, s),
			"in_pre_reorg":          boolCell(inPre),
			"in_post_reorg":         boolCell(inPost),
			"in_bids":               boolCell(inBids),
		})
	}

	return tabular.Upsert(result, newRows), nil
}

func boolCell(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func preReorgExists(root string, mode PreReorgMode, participant, session string, relations RelationMap) bool {
	dir, ok := preReorgDir(root, mode, participant, session, relations)
	if !ok {
		return false
	}
	return isDir(dir)
}

func dicomDirLabel(root string, cfg Config, participant, session string) string {
	dir, ok := preReorgDir(root, cfg.PreReorgMode, participant, session, cfg.Relations)
	if !ok {
		return ""
	}
	rel, err := filepath.Rel(root, dir)
	if err != nil {
		return dir
	}
	return rel
}

// bidsDirExists checks for sub-<p>/ses-<s> under root (spec.md §4.10:
// post-reorg and bids are both laid out this way).
func bidsDirExists(root, participant, session string) bool {
	return isDir(filepath.Join(root, "sub-"+participant, "ses-"+session))
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
