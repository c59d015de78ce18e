package hpc

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const slurmTemplate = `#!/bin/bash
#SBATCH --time={{ .TIME }}
#SBATCH --mem={{ .MEMORY }}
#SBATCH --cpus-per-task={{ .CORES }}
#SBATCH --account={{ .ACCOUNT }}
#SBATCH --partition={{ .PARTITION }}
#SBATCH --array=0-{{ sub (len .NIPOPPY_COMMANDS) 1 }}%{{ .ARRAY_CONCURRENCY_LIMIT }}
{{ range .NIPOPPY_PREAMBLE }}{{ . }}
{{ end -}}
commands=(
{{ range .NIPOPPY_COMMANDS }}  "{{ . }}"
{{ end -}}
)
eval "${commands[$SLURM_ARRAY_TASK_ID]}"
`

// TestRenderJobArrayRange mirrors scenario S5: the emitted script's
// array range, preamble and command list all reflect the submitted
// data.
func TestRenderJobArrayRange(t *testing.T) {
	data := Data{
		HPC:                   "slurm",
		Commands:              []string{"run unit 1", "run unit 2", "run unit 3"},
		ArrayIndexVar:          "SLURM_ARRAY_TASK_ID",
		Time:                  "01:00:00",
		Memory:                "4G",
		Cores:                 "2",
		Account:               "rrg-myaccount",
		Partition:             "compute",
		ArrayConcurrencyLimit: "5",
		Preamble:              []string{"module load apptainer"},
	}

	got, err := Render(slurmTemplate, data)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(got, "#SBATCH --array=0-2%5") {
		t.Fatalf("missing array range: %s", got)
	}
	if !strings.Contains(got, "module load apptainer") {
		t.Fatalf("missing preamble: %s", got)
	}
	if !strings.Contains(got, `"run unit 1"`) || !strings.Contains(got, `"run unit 3"`) {
		t.Fatalf("missing commands: %s", got)
	}
}

func TestRenderRejectsReservedExtraToken(t *testing.T) {
	data := Data{Extra: map[string]string{"NIPOPPY_FOO": "x"}}
	_, err := Render("{{ .HPC }}", data)
	if err == nil {
		t.Fatal("expected error for reserved token override")
	}
}

func TestRenderMergesExtraTokens(t *testing.T) {
	data := Data{Extra: map[string]string{"GPU_TYPE": "a100"}}
	got, err := Render("gpu={{ .GPU_TYPE }}", data)
	if err != nil {
		t.Fatal(err)
	}
	if got != "gpu=a100" {
		t.Fatalf("Render = %q", got)
	}
}

type fakeAdapter struct {
	submittedPath string
}

func (f *fakeAdapter) Kind() string { return "fake" }
func (f *fakeAdapter) Submit(ctx context.Context, scriptPath string) (string, error) {
	f.submittedPath = scriptPath
	return "submission-123", nil
}

func TestEmitDeletesScriptByDefault(t *testing.T) {
	dir := t.TempDir()
	e := Emitter{TemplateText: "#!/bin/bash\necho {{ .HPC }}", ScriptDir: dir}
	adapter := &fakeAdapter{}

	id, err := e.Emit(context.Background(), Data{HPC: "slurm"}, adapter, false)
	if err != nil {
		t.Fatal(err)
	}
	if id != "submission-123" {
		t.Fatalf("submission id = %q", id)
	}
	if _, err := os.Stat(adapter.submittedPath); !os.IsNotExist(err) {
		t.Fatalf("expected script removed, stat err = %v", err)
	}
}

func TestEmitKeepsScriptWhenRequested(t *testing.T) {
	dir := t.TempDir()
	e := Emitter{TemplateText: "#!/bin/bash\necho {{ .HPC }}", ScriptDir: dir}
	adapter := &fakeAdapter{}

	_, err := e.Emit(context.Background(), Data{HPC: "slurm"}, adapter, true)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(adapter.submittedPath); err != nil {
		t.Fatalf("expected script kept: %v", err)
	}
}

func TestRegisterAdapterOverridesKind(t *testing.T) {
	RegisterAdapter("fake-kind", &fakeAdapter{})
	a, err := AdapterFor("fake-kind")
	if err != nil {
		t.Fatal(err)
	}
	if a.Kind() != "fake" {
		t.Fatalf("Kind() = %s", a.Kind())
	}
}

func TestPresetsApplyFillsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "presets.toml")
	if err := os.WriteFile(path, []byte(`
[slurm]
time = "02:00:00"
memory = "8G"
cores = "4"
account = "def-lab"
partition = "batch"
array_concurrency_limit = "10"
`), 0o644); err != nil {
		t.Fatal(err)
	}

	presets, err := LoadPresets(path)
	if err != nil {
		t.Fatal(err)
	}
	data := presets.Apply("slurm", Data{HPC: "slurm", Time: "custom"})
	if data.Time != "custom" {
		t.Fatalf("explicit Time overridden: %s", data.Time)
	}
	if data.Memory != "8G" {
		t.Fatalf("Memory default not applied: %s", data.Memory)
	}
}
