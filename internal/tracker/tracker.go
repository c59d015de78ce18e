// Package tracker evaluates a pipeline's declared output globs against
// the filesystem and derives a processing-status row (spec.md §4.9).
package tracker

import (
	"io/fs"
	"os"
	"path/filepath"

	"github.com/antigravity-dev/nipoppy-go/internal/subst"
	"github.com/antigravity-dev/nipoppy-go/internal/tabular"
)

// Config is one pipeline step's tracker configuration.
type Config struct {
	Paths                 []string `json:"PATHS"`
	ParticipantSessionDir string   `json:"PARTICIPANT_SESSION_DIR,omitempty"`
}

// Evaluate derives the status for one unit's output under outputRoot,
// substituting env into both ParticipantSessionDir and each glob before
// matching (spec.md §4.9(2)). When ParticipantSessionDir is set it
// bounds the search: globs are matched against paths relative to that
// directory, not the whole output root. It never consults exit codes:
// status is purely a function of what's on disk.
func Evaluate(outputRoot string, cfg Config, env subst.Env) (string, error) {
	searchRoot := outputRoot
	if cfg.ParticipantSessionDir != "" {
		searchRoot = filepath.Join(outputRoot, subst.String(cfg.ParticipantSessionDir, env))
	}
	if _, err := os.Stat(searchRoot); err != nil {
		return tabular.StatusUnavailable, nil
	}

	files, err := listFiles(searchRoot)
	if err != nil {
		return "", err
	}

	for _, rawPattern := range cfg.Paths {
		pattern := subst.String(rawPattern, env)
		if !anyMatch(pattern, files) {
			return tabular.StatusFail, nil
		}
	}
	return tabular.StatusSuccess, nil
}

func anyMatch(pattern string, files []string) bool {
	for _, f := range files {
		if Match(pattern, f) {
			return true
		}
	}
	return false
}

// listFiles returns every regular file under root as a slash-separated
// path relative to root.
func listFiles(root string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		out = append(out, filepath.ToSlash(rel))
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	return out, nil
}

// Row builds the processing-status row for one unit given its derived
// status.
func Row(participantID, sessionID, pipelineName, pipelineVersion, pipelineStep, status string) tabular.Row {
	return tabular.Row{
		"participant_id":      participantID,
		"session_id":          sessionID,
		"pipeline_name":       pipelineName,
		"pipeline_version":    pipelineVersion,
		"pipeline_step":       pipelineStep,
		"bids_participant_id": "sub-" + participantID,
		"bids_session_id":     "ses-" + sessionID,
		"status":              status,
	}
}
