package curation

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// PreReorgMode is the closed set of pre-reorg directory layouts
// (spec.md §4.10).
type PreReorgMode string

const (
	ParticipantFirst PreReorgMode = "participant-first"
	SessionFirst     PreReorgMode = "session-first"
	RelationFile     PreReorgMode = "relation-file"
)

// ErrPrefixedDirectory is the user error reported when the pre-reorg
// area contains a "sub-"/"ses-"-prefixed directory name (spec.md §4.10:
// "treated as a user error and reported").
type ErrPrefixedDirectory struct {
	Path string
}

func (e *ErrPrefixedDirectory) Error() string {
	return fmt.Sprintf("curation: pre-reorg directory %q must not carry a BIDS sub-/ses- prefix", e.Path)
}

// ValidatePreReorgNaming rejects any direct or second-level child of
// root whose name starts with "sub-" or "ses-"; those prefixes belong
// only to the post-reorg and bids areas the engine itself produces.
func ValidatePreReorgNaming(root string) error {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if err := checkPrefix(root, e.Name()); err != nil {
			return err
		}
		childPath := filepath.Join(root, e.Name())
		children, err := os.ReadDir(childPath)
		if err != nil {
			continue
		}
		for _, c := range children {
			if c.IsDir() {
				if err := checkPrefix(childPath, c.Name()); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func checkPrefix(parent, name string) error {
	if strings.HasPrefix(name, "sub-") || strings.HasPrefix(name, "ses-") {
		return &ErrPrefixedDirectory{Path: filepath.Join(parent, name)}
	}
	return nil
}

// RelationMap maps a (participant_id, session_id) pair to a dicom
// directory path relative to the pre-reorg root, parsed from a custom
// relation file (spec.md §4.10) whose participant_id and session_id
// columns key a dicom_dir column.
type RelationMap map[[2]string]string

// LoadRelationMap parses a tab-separated relation file with columns
// participant_id, session_id, dicom_dir.
func LoadRelationMap(path string) (RelationMap, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = '\t'
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("curation: read relation file header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[h] = i
	}
	for _, want := range []string{"participant_id", "session_id", "dicom_dir"} {
		if _, ok := col[want]; !ok {
			return nil, fmt.Errorf("curation: relation file missing column %q", want)
		}
	}

	out := make(RelationMap)
	for {
		record, err := r.Read()
		if err != nil {
			break
		}
		key := [2]string{record[col["participant_id"]], record[col["session_id"]]}
		out[key] = record[col["dicom_dir"]]
	}
	return out, nil
}

// PreReorgDir resolves the dicom directory path for (participant,
// session) under the configured mode, ignoring whether it exists. It is
// the exported form of preReorgDir for callers (e.g. the reorg action)
// that need the path even when RelationFile mode has no entry.
func PreReorgDir(root string, mode PreReorgMode, participant, session string, relations RelationMap) string {
	dir, _ := preReorgDir(root, mode, participant, session, relations)
	return dir
}

// preReorgDir resolves the dicom directory for (participant, session)
// under the configured mode. The bool reports whether a mapping/layout
// path exists at all (RelationFile mode may have no entry).
func preReorgDir(root string, mode PreReorgMode, participant, session string, relations RelationMap) (string, bool) {
	switch mode {
	case SessionFirst:
		return filepath.Join(root, session, participant), true
	case RelationFile:
		dir, ok := relations[[2]string{participant, session}]
		if !ok {
			return "", false
		}
		return filepath.Join(root, dir), true
	default: // ParticipantFirst
		return filepath.Join(root, participant, session), true
	}
}
