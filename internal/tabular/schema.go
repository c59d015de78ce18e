package tabular

import (
	"fmt"
	"strings"
)

// Kind identifies one of the three canonical dataset tables (spec.md §3,
// §4.2). Each kind has a fixed column order and a declared key.
type Kind string

const (
	Manifest         Kind = "manifest"
	CurationStatus   Kind = "curation_status"
	ProcessingStatus Kind = "processing_status"
)

// Schema fixes the column order and key columns for a Kind.
type Schema struct {
	Columns []string
	Key     []string
}

var schemas = map[Kind]Schema{
	Manifest: {
		Columns: []string{"participant_id", "visit_id", "session_id", "datatype"},
		Key:     []string{"participant_id", "visit_id"},
	},
	CurationStatus: {
		Columns: []string{
			"participant_id", "session_id", "in_manifest",
			"participant_dicom_dir", "in_pre_reorg", "in_post_reorg", "in_bids",
		},
		Key: []string{"participant_id", "session_id"},
	},
	ProcessingStatus: {
		Columns: []string{
			"participant_id", "session_id", "pipeline_name", "pipeline_version", "pipeline_step",
			"bids_participant_id", "bids_session_id", "status",
		},
		Key: []string{"participant_id", "session_id", "pipeline_name", "pipeline_version", "pipeline_step"},
	},
}

// SchemaFor returns the fixed schema for kind.
func SchemaFor(kind Kind) (Schema, error) {
	s, ok := schemas[kind]
	if !ok {
		return Schema{}, fmt.Errorf("tabular: unknown kind %q", kind)
	}
	return s, nil
}

// Processing status values (spec.md §3).
const (
	StatusSuccess     = "SUCCESS"
	StatusFail        = "FAIL"
	StatusUnavailable = "UNAVAILABLE"
	StatusIncomplete  = "INCOMPLETE"
)

// EncodeList renders a list-valued cell in the literal textual form the
// format uses, e.g. ['anat', 'dwi']. An empty list renders as [].
func EncodeList(values []string) string {
	if len(values) == 0 {
		return "[]"
	}
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = "'" + strings.ReplaceAll(v, "'", "\\'") + "'"
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

// DecodeList parses a cell produced by EncodeList. An empty string
// decodes to a nil (empty) list, matching "empty cells render as the
// empty string" for the no-datatype case.
func DecodeList(cell string) ([]string, error) {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return nil, nil
	}
	if !strings.HasPrefix(cell, "[") || !strings.HasSuffix(cell, "]") {
		return nil, fmt.Errorf("tabular: malformed list cell %q", cell)
	}
	inner := strings.TrimSpace(cell[1 : len(cell)-1])
	if inner == "" {
		return nil, nil
	}
	parts := strings.Split(inner, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		p = strings.Trim(p, "'\"")
		p = strings.ReplaceAll(p, "\\'", "'")
		out = append(out, p)
	}
	return out, nil
}
