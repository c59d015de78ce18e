package catalog

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/antigravity-dev/nipoppy-go/internal/workflow"
)

func writeBundle(t *testing.T, root string, typ workflow.Type, name, version string, cfg bundleConfigFile) string {
	t.Helper()
	dir := filepath.Join(root, string(typ), name, version)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	data, err := json.Marshal(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.json"), data, 0o644); err != nil {
		t.Fatal(err)
	}
	for _, rel := range []string{"descriptor.json", "invocation.json"} {
		if err := os.WriteFile(filepath.Join(dir, rel), []byte("{}"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func validSteps() []bundleStepFile {
	return []bundleStepFile{{
		Name:           "default",
		DescriptorFile: "descriptor.json",
		InvocationFile: "invocation.json",
	}}
}

func TestLoadDiscoversBundle(t *testing.T) {
	root := t.TempDir()
	writeBundle(t, root, workflow.Processing, "mriqc", "23.1.0", bundleConfigFile{
		Name: "mriqc", Version: "23.1.0", Steps: validSteps(),
	})

	cat, err := Load(root)
	if err != nil {
		t.Fatal(err)
	}
	b, err := cat.Get(workflow.Processing, "mriqc", "23.1.0")
	if err != nil {
		t.Fatal(err)
	}
	if b.Key.Name != "mriqc" || len(b.Steps) != 1 {
		t.Fatalf("bundle = %+v", b)
	}
}

func TestLoadMissingReferencedFile(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "processing", "mriqc", "23.1.0")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	cfg := bundleConfigFile{Name: "mriqc", Version: "23.1.0", Steps: []bundleStepFile{{
		Name:           "default",
		DescriptorFile: "missing.json",
		InvocationFile: "invocation.json",
	}}}
	data, _ := json.Marshal(cfg)
	if err := os.WriteFile(filepath.Join(dir, "config.json"), data, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "invocation.json"), []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := Load(root)
	var missing *ErrMissingReferencedFile
	if !errors.As(err, &missing) {
		t.Fatalf("expected ErrMissingReferencedFile, got %v", err)
	}
}

func TestLoadMalformedConfig(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "processing", "mriqc", "23.1.0")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.json"), []byte("not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := Load(root)
	var malformed *ErrMalformedConfig
	if !errors.As(err, &malformed) {
		t.Fatalf("expected ErrMalformedConfig, got %v", err)
	}
}

func TestGetUnknownBundle(t *testing.T) {
	root := t.TempDir()
	cat, err := Load(root)
	if err != nil {
		t.Fatal(err)
	}
	_, err = cat.Get(workflow.Processing, "nope", "1.0.0")
	var notFound *ErrBundleNotFound
	if !errors.As(err, &notFound) {
		t.Fatalf("expected ErrBundleNotFound, got %v", err)
	}
}

func TestLatestPicksHighestVersion(t *testing.T) {
	root := t.TempDir()
	for _, v := range []string{"23.1.0", "23.1.10", "23.1.2"} {
		writeBundle(t, root, workflow.Processing, "mriqc", v, bundleConfigFile{
			Name: "mriqc", Version: v, Steps: validSteps(),
		})
	}

	cat, err := Load(root)
	if err != nil {
		t.Fatal(err)
	}
	latest, err := cat.Latest(workflow.Processing, "mriqc")
	if err != nil {
		t.Fatal(err)
	}
	if latest.Key.Version != "23.1.10" {
		t.Fatalf("Latest = %s, want 23.1.10", latest.Key.Version)
	}
}

func TestListOrdersByNameThenVersion(t *testing.T) {
	root := t.TempDir()
	writeBundle(t, root, workflow.Bidsification, "dcm2bids", "3.2.0", bundleConfigFile{
		Name: "dcm2bids", Version: "3.2.0", Steps: validSteps(),
	})
	writeBundle(t, root, workflow.Bidsification, "dcm2bids", "3.1.0", bundleConfigFile{
		Name: "dcm2bids", Version: "3.1.0", Steps: validSteps(),
	})
	writeBundle(t, root, workflow.Bidsification, "heudiconv", "1.0.0", bundleConfigFile{
		Name: "heudiconv", Version: "1.0.0", Steps: validSteps(),
	})

	cat, err := Load(root)
	if err != nil {
		t.Fatal(err)
	}
	bundles := cat.List(workflow.Bidsification, "")
	if len(bundles) != 3 {
		t.Fatalf("got %d bundles", len(bundles))
	}
	if bundles[0].Key.Name != "dcm2bids" || bundles[0].Key.Version != "3.1.0" {
		t.Fatalf("bundles[0] = %+v", bundles[0])
	}
	if bundles[1].Key.Version != "3.2.0" {
		t.Fatalf("bundles[1] = %+v", bundles[1])
	}
}

func TestLoadResolvesDockerContainerURI(t *testing.T) {
	root := t.TempDir()
	writeBundle(t, root, workflow.Processing, "mriqc", "23.1.0", bundleConfigFile{
		Name: "mriqc", Version: "23.1.0", Steps: validSteps(),
		ContainerInfo: containerInfoFile{Path: "mriqc.sif", URI: "docker://nipreps/mriqc"},
	})

	cat, err := Load(root)
	if err != nil {
		t.Fatal(err)
	}
	b, err := cat.Get(workflow.Processing, "mriqc", "23.1.0")
	if err != nil {
		t.Fatal(err)
	}
	if b.ContainerInfo.URI != "docker://nipreps/mriqc:latest" {
		t.Fatalf("URI = %s", b.ContainerInfo.URI)
	}
}
