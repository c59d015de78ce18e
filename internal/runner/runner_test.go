package runner

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestRunCapturesExitCodeAndLog(t *testing.T) {
	root := t.TempDir()
	outcome, err := Run(context.Background(), Params{
		Command: "echo hello; exit 3",
		WorkDir: filepath.Join(root, "work"),
		LogDir:  filepath.Join(root, "logs"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if outcome.ExitCode != 3 {
		t.Fatalf("ExitCode = %d, want 3", outcome.ExitCode)
	}
	data, err := os.ReadFile(outcome.LogPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "hello\n" {
		t.Fatalf("log contents = %q", string(data))
	}
}

func TestRunSuccessExitCodeZero(t *testing.T) {
	root := t.TempDir()
	outcome, err := Run(context.Background(), Params{
		Command: "true",
		WorkDir: filepath.Join(root, "work"),
		LogDir:  filepath.Join(root, "logs"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if outcome.ExitCode != 0 {
		t.Fatalf("ExitCode = %d, want 0", outcome.ExitCode)
	}
}

func TestRunCancellationRemovesWorkDir(t *testing.T) {
	root := t.TempDir()
	workDir := filepath.Join(root, "work")
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	outcome, err := Run(ctx, Params{
		Command: "sleep 30",
		WorkDir: workDir,
		LogDir:  filepath.Join(root, "logs"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if !outcome.Cancelled {
		t.Fatal("expected Cancelled outcome")
	}
	if _, err := os.Stat(workDir); !os.IsNotExist(err) {
		t.Fatalf("expected work dir removed, stat err = %v", err)
	}
}

func TestWorkDirNameIncludesAllComponents(t *testing.T) {
	name := WorkDirName("mriqc", "23.1.0", "default", "01", "BL", "20260731T120000")
	want := "mriqc-23.1.0_default_sub-01_ses-BL_20260731T120000"
	if name != want {
		t.Fatalf("WorkDirName = %q, want %q", name, want)
	}
}

func TestBuiltInsDerivesBIDSLabels(t *testing.T) {
	b := BuiltIns("01", "BL")
	if b["BIDS_PARTICIPANT_ID"] != "sub-01" || b["BIDS_SESSION_ID"] != "ses-BL" {
		t.Fatalf("BuiltIns = %+v", b)
	}
}
