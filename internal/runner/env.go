package runner

import (
	"fmt"

	"github.com/antigravity-dev/nipoppy-go/internal/subst"
)

// BuiltIns constructs the per-unit built-in tokens the scheduler and
// runner are responsible for (spec.md §4.7): PARTICIPANT_ID, SESSION_ID,
// and their BIDS-prefixed forms. DPATH_* tokens are layout-specific and
// merged in by the caller, which already holds a layout.Layout.
func BuiltIns(participantID, sessionID string) map[string]string {
	return map[string]string{
		"PARTICIPANT_ID":     participantID,
		"SESSION_ID":         sessionID,
		"BIDS_PARTICIPANT_ID": "sub-" + participantID,
		"BIDS_SESSION_ID":     "ses-" + sessionID,
	}
}

// BuildEnv merges scheduler built-ins, layout DPATH_* variables and a
// bundle's pipeline variables into a single substitution environment.
// Built-ins take precedence over pipeline variables (subst.Env.Unit
// tier), matching the three-tier precedence in spec.md §4.3.
func BuildEnv(participantID, sessionID string, dpaths, pipelineVars, datasetVars map[string]string) subst.Env {
	unit := BuiltIns(participantID, sessionID)
	for k, v := range dpaths {
		unit[k] = v
	}
	return subst.Env{Unit: unit, Pipeline: pipelineVars, Dataset: datasetVars}
}

// WorkDirName builds the unit working directory name: pipeline name,
// version, step, participant, session and a timestamp, so runs of the
// same unit started at different timestamps get distinct directories
// (spec.md §4.7(2)).
func WorkDirName(pipelineName, pipelineVersion, step, participantID, sessionID, timestamp string) string {
	return fmt.Sprintf("%s-%s_%s_sub-%s_ses-%s_%s", pipelineName, pipelineVersion, step, participantID, sessionID, timestamp)
}
