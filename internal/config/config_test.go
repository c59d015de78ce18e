package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "global_config.json")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadValidConfig(t *testing.T) {
	path := writeConfig(t, `{
		"DATASET_NAME": "my-study",
		"VISITS": ["BL", "FU1"],
		"SESSIONS": ["BL", "FU1"],
		"DICOM_DIR_PARTICIPANT_FIRST": true,
		"CONTAINER_CONFIG": {"COMMAND": "singularity run", "ARGS": ["--cleanenv"]},
		"PIPELINE_VARIABLES": {
			"PROCESSING": {"mriqc": {"23.1.0": {"TEMPLATEFLOW_HOME": null}}}
		},
		"HPC_PREAMBLE": ["source env.sh"]
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DatasetName != "my-study" {
		t.Fatalf("DatasetName = %q", cfg.DatasetName)
	}
	v, ok := cfg.PipelineVariables.Lookup(Processing, "mriqc", "23.1.0", "TEMPLATEFLOW_HOME")
	if !ok {
		t.Fatal("expected declared-but-null variable to be found")
	}
	if v != nil {
		t.Fatalf("expected nil value, got %v", *v)
	}
}

func TestLoadMissingDatasetName(t *testing.T) {
	path := writeConfig(t, `{"VISITS": ["BL"]}`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for missing DATASET_NAME")
	}
}

func TestLoadNoVisits(t *testing.T) {
	path := writeConfig(t, `{"DATASET_NAME": "x", "VISITS": []}`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for empty VISITS")
	}
}

func TestPipelineVariablesRoundTrip(t *testing.T) {
	raw := `{"BIDSIFICATION": {"dcm2bids": {"1.0.0": {"HEURISTIC": "h.py"}}}}`
	var pv PipelineVariables
	if err := json.Unmarshal([]byte(raw), &pv); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	v, ok := pv.Lookup(Bidsification, "dcm2bids", "1.0.0", "HEURISTIC")
	if !ok || v == nil || *v != "h.py" {
		t.Fatalf("Lookup = %v, %v", v, ok)
	}
}
