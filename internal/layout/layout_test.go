package layout

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestPathJoinsRoot(t *testing.T) {
	root := t.TempDir()
	l := New(root, Default())

	p, err := l.Path(Manifest, nil)
	if err != nil {
		t.Fatalf("Path: %v", err)
	}
	want := filepath.Join(root, "manifest.tsv")
	if p != want {
		t.Fatalf("Path = %q, want %q", p, want)
	}
}

func TestPathUnknownName(t *testing.T) {
	l := New(t.TempDir(), Default())
	if _, err := l.Path(Name("nope"), nil); err == nil {
		t.Fatal("expected error for unknown semantic name")
	}
}

func TestEnsureDirCreatesLazily(t *testing.T) {
	root := t.TempDir()
	l := New(root, Default())

	p, err := l.EnsureDir(BIDS, nil)
	if err != nil {
		t.Fatalf("EnsureDir: %v", err)
	}
	if _, err := l.ReadDir(BIDS, nil); err != nil {
		t.Fatalf("ReadDir after EnsureDir: %v", err)
	}
	if filepath.Dir(p) != root {
		t.Fatalf("unexpected bids path: %s", p)
	}
}

func TestReadDirNotInitialized(t *testing.T) {
	l := New(t.TempDir(), Default())
	_, err := l.ReadDir(BIDS, nil)
	if !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
}

func TestPathTokenSubstitution(t *testing.T) {
	root := t.TempDir()
	desc := Descriptor{Entries: map[Name]Entry{
		Derivatives: {RelPath: "derivatives/[[PIPELINE_NAME]]/[[PIPELINE_VERSION]]", Dir: true},
	}}
	l := New(root, desc)
	p, err := l.Path(Derivatives, map[string]string{"PIPELINE_NAME": "mriqc", "PIPELINE_VERSION": "23.1.0"})
	if err != nil {
		t.Fatalf("Path: %v", err)
	}
	want := filepath.Join(root, "derivatives", "mriqc", "23.1.0")
	if p != want {
		t.Fatalf("Path = %q, want %q", p, want)
	}
}
