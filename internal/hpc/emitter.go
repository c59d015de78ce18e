package hpc

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Emitter renders a job-script template and hands it to an Adapter for
// submission.
type Emitter struct {
	// TemplateText is the contents of code/hpc/job_script_template.<ext>.
	TemplateText string
	// ScriptDir is where the rendered script is written before
	// submission.
	ScriptDir string
	// ScriptExt is appended to the generated script's filename (e.g.
	// "sh").
	ScriptExt string
}

// Emit renders data against the emitter's template, submits the result
// via adapter, and returns the adapter's opaque submission id. The
// rendered script is deleted on successful submission unless
// keepWorkdir is set (spec.md §4.8).
func (e Emitter) Emit(ctx context.Context, data Data, adapter Adapter, keepWorkdir bool) (string, error) {
	rendered, err := Render(e.TemplateText, data)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(e.ScriptDir, 0o755); err != nil {
		return "", fmt.Errorf("hpc: create script dir: %w", err)
	}
	ext := e.ScriptExt
	if ext == "" {
		ext = "sh"
	}
	scriptPath := filepath.Join(e.ScriptDir, fmt.Sprintf("job-%s.%s", uuid.NewString(), ext))
	if err := os.WriteFile(scriptPath, []byte(rendered), 0o755); err != nil {
		return "", fmt.Errorf("hpc: write script: %w", err)
	}

	submissionID, err := adapter.Submit(ctx, scriptPath)
	if err != nil {
		return "", err
	}

	if !keepWorkdir {
		os.Remove(scriptPath)
	}
	return submissionID, nil
}
