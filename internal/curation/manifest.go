package curation

import (
	"fmt"
	"strings"

	"github.com/antigravity-dev/nipoppy-go/internal/tabular"
)

// ErrInvalidLabel is returned when a manifest row's participant_id or
// session_id violates the prefix policy (spec.md §8 property 2): a BIDS
// "sub-"/"ses-" prefix is added by the engine, never supplied by the
// user, and labels must otherwise be alphanumeric.
type ErrInvalidLabel struct {
	ParticipantID string
	SessionID     string
	Reason        string
}

func (e *ErrInvalidLabel) Error() string {
	return fmt.Sprintf("curation: invalid label (participant_id=%q, session_id=%q): %s", e.ParticipantID, e.SessionID, e.Reason)
}

// ValidateLabels rejects any manifest row whose participant_id starts
// with "sub-", whose session_id starts with "ses-", or whose labels
// contain a non-alphanumeric character.
func ValidateLabels(manifest *tabular.Table) error {
	for _, row := range manifest.Rows {
		p, s := row["participant_id"], row["session_id"]
		if strings.HasPrefix(p, "sub-") {
			return &ErrInvalidLabel{ParticipantID: p, SessionID: s, Reason: `participant_id must not carry a "sub-" prefix`}
		}
		if strings.HasPrefix(s, "ses-") {
			return &ErrInvalidLabel{ParticipantID: p, SessionID: s, Reason: `session_id must not carry a "ses-" prefix`}
		}
		if !isAlphanumeric(p) {
			return &ErrInvalidLabel{ParticipantID: p, SessionID: s, Reason: "participant_id must be alphanumeric"}
		}
		if s != "" && !isAlphanumeric(s) {
			return &ErrInvalidLabel{ParticipantID: p, SessionID: s, Reason: "session_id must be alphanumeric"}
		}
	}
	return nil
}

func isAlphanumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}
