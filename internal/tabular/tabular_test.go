package tabular

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeRaw(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadRoundTripPreservesOrder(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "manifest.tsv")
	writeRaw(t, path, "participant_id\tvisit_id\tsession_id\tdatatype\n"+
		"P02\tBL\tBL\t"+EncodeList([]string{"anat"})+"\n"+
		"P01\tBL\tBL\t"+EncodeList([]string{"anat", "dwi"})+"\n")

	tbl, err := Load(path, Manifest)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(tbl.Rows) != 2 || tbl.Rows[0]["participant_id"] != "P02" || tbl.Rows[1]["participant_id"] != "P01" {
		t.Fatalf("unexpected row order: %+v", tbl.Rows)
	}

	out := filepath.Join(dir, "out.tsv")
	if err := Save(out, tbl); err != nil {
		t.Fatalf("Save: %v", err)
	}
	reloaded, err := Load(out, Manifest)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if len(reloaded.Rows) != 2 || reloaded.Rows[0]["participant_id"] != "P02" {
		t.Fatalf("round trip did not preserve order: %+v", reloaded.Rows)
	}
}

func TestLoadDuplicateKeyFails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "manifest.tsv")
	writeRaw(t, path, "participant_id\tvisit_id\tsession_id\tdatatype\n"+
		"P01\tBL\tBL\t[]\n"+
		"P01\tBL\tBL\t[]\n")

	_, err := Load(path, Manifest)
	if err == nil {
		t.Fatal("expected duplicate key error")
	}
	var dupErr *ErrDuplicateKey
	if !errors.As(err, &dupErr) {
		t.Fatalf("expected ErrDuplicateKey, got %v (%T)", err, err)
	}
}

func TestLoadSchemaMismatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "manifest.tsv")
	writeRaw(t, path, "participant_id\tvisit_id\nP01\tBL\n")

	_, err := Load(path, Manifest)
	var mismatch *ErrSchemaMismatch
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}

func TestUpsertLocality(t *testing.T) {
	tbl, _ := New(ProcessingStatus)
	tbl.Rows = []Row{
		{"participant_id": "P01", "session_id": "BL", "pipeline_name": "mriqc", "pipeline_version": "23.1.0", "pipeline_step": "default", "status": StatusFail},
		{"participant_id": "P02", "session_id": "BL", "pipeline_name": "mriqc", "pipeline_version": "23.1.0", "pipeline_step": "default", "status": StatusSuccess},
	}

	updated := Upsert(tbl, []Row{
		{"participant_id": "P01", "session_id": "BL", "pipeline_name": "mriqc", "pipeline_version": "23.1.0", "pipeline_step": "default", "status": StatusSuccess},
	})

	if updated.Rows[0]["status"] != StatusSuccess {
		t.Fatalf("P01 row not updated: %+v", updated.Rows[0])
	}
	if !rowsEqual(updated.Rows[1], tbl.Rows[1]) {
		t.Fatalf("unrelated row mutated: %+v vs %+v", updated.Rows[1], tbl.Rows[1])
	}
}

func TestUpsertAppendsNewKeys(t *testing.T) {
	tbl, _ := New(CurationStatus)
	updated := Upsert(tbl, []Row{
		{"participant_id": "P01", "session_id": "BL", "in_manifest": "true"},
	})
	if len(updated.Rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(updated.Rows))
	}
}

func TestDiff(t *testing.T) {
	base, _ := New(CurationStatus)
	base.Rows = []Row{
		{"participant_id": "P01", "session_id": "BL", "in_bids": "false"},
		{"participant_id": "P02", "session_id": "BL", "in_bids": "false"},
	}
	updated := base.Clone()
	updated.Rows[0]["in_bids"] = "true"
	updated.Rows = updated.Rows[:1]
	updated.Rows = append(updated.Rows, Row{"participant_id": "P03", "session_id": "BL", "in_bids": "false"})

	added, changed, removed := Diff(base, updated)
	if len(added) != 1 || added[0]["participant_id"] != "P03" {
		t.Fatalf("added = %+v", added)
	}
	if len(changed) != 1 || changed[0]["participant_id"] != "P01" {
		t.Fatalf("changed = %+v", changed)
	}
	if len(removed) != 1 || removed[0]["participant_id"] != "P02" {
		t.Fatalf("removed = %+v", removed)
	}
}

func TestEncodeDecodeList(t *testing.T) {
	vals := []string{"anat", "dwi"}
	enc := EncodeList(vals)
	if enc != "['anat', 'dwi']" {
		t.Fatalf("EncodeList = %q", enc)
	}
	dec, err := DecodeList(enc)
	if err != nil {
		t.Fatalf("DecodeList: %v", err)
	}
	if len(dec) != 2 || dec[0] != "anat" || dec[1] != "dwi" {
		t.Fatalf("DecodeList = %v", dec)
	}
}

// TestCrashedWriterLeavesCanonicalFileUnchanged covers the atomic-write
// property: a writer that dies between its temp write and the rename
// leaves a stray temp file next to the canonical one, and the canonical
// bytes must be unaffected by it.
func TestCrashedWriterLeavesCanonicalFileUnchanged(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "curation_status.tsv")

	tbl, err := New(CurationStatus)
	if err != nil {
		t.Fatal(err)
	}
	tbl.Rows = []Row{{
		"participant_id": "P01", "session_id": "BL", "in_manifest": "true",
		"in_pre_reorg": "false", "in_post_reorg": "false", "in_bids": "false",
	}}
	if err := Save(path, tbl); err != nil {
		t.Fatalf("Save: %v", err)
	}
	before, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	writeRaw(t, path+".tmp-crashed", "participant_id\tsess")

	after, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(before, after) {
		t.Fatalf("canonical file changed: %q vs %q", before, after)
	}
	reloaded, err := Load(path, CurationStatus)
	if err != nil {
		t.Fatalf("Load after simulated crash: %v", err)
	}
	if len(reloaded.Rows) != 1 || reloaded.Rows[0]["participant_id"] != "P01" {
		t.Fatalf("reloaded rows = %+v", reloaded.Rows)
	}
}

func TestDecodeListEmpty(t *testing.T) {
	dec, err := DecodeList("")
	if err != nil || dec != nil {
		t.Fatalf("DecodeList empty = %v, %v", dec, err)
	}
}
