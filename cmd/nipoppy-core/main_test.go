package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const testGlobalConfigJSON = `{
  "DATASET_NAME": "test-dataset",
  "VISITS": ["BL"],
  "DICOM_DIR_PARTICIPANT_FIRST": true
}`

const testManifestTSV = "participant_id\tvisit_id\tsession_id\tdatatype\nP01\tBL\tBL\t['anat']\n"

// TestRunTrackCuration exercises run() end to end for the one action
// that needs no pipeline catalog: an empty dataset tree should produce
// a single curation row with every boolean false (spec.md §8 scenario
// S1), driven through the same entrypoint main() uses.
func TestRunTrackCuration(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "global_config.json"), []byte(testGlobalConfigJSON), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(root, "pipelines"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "manifest.tsv"), []byte(testManifestTSV), 0o644); err != nil {
		t.Fatal(err)
	}

	logger := configureLogger(true)
	err := run(context.Background(), logger, runOptions{
		datasetRoot: root,
		action:      "track-curation",
		regenerate:  true,
	})
	if err != nil {
		t.Fatal(err)
	}

	status, err := os.ReadFile(filepath.Join(root, "sourcedata", "imaging", "curation_status.tsv"))
	if err != nil {
		t.Fatalf("curation status not written: %v", err)
	}
	fields := strings.Split(strings.TrimSpace(strings.Split(string(status), "\n")[1]), "\t")
	// participant_id, session_id, in_manifest, participant_dicom_dir, in_pre_reorg, in_post_reorg, in_bids
	want := []string{"P01", "BL", "true", "P01/BL", "false", "false", "false"}
	if len(fields) != len(want) {
		t.Fatalf("unexpected curation status row %q", fields)
	}
	for i := range want {
		if fields[i] != want[i] {
			t.Fatalf("field %d = %q, want %q (row: %q)", i, fields[i], want[i], fields)
		}
	}
}

// TestRunUnknownAction verifies run() returns an error for an
// unrecognized -action. No dataset exists at root, so the error comes
// from opening the dataset, which run() does before it looks at the
// action.
func TestRunUnknownAction(t *testing.T) {
	logger := configureLogger(true)
	err := run(context.Background(), logger, runOptions{
		datasetRoot: t.TempDir(),
		action:      "levitate",
	})
	if err == nil {
		t.Fatal("expected an error for an unknown action")
	}
}
