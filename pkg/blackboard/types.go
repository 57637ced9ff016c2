package blackboard

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Submission records the outcome of one run of the submission pipeline.
// It never carries note or digest plaintext.
type Submission struct {
	ID                 string          `json:"id"`                             // UUID - unique identifier for this submission
	Tank               string          `json:"tank"`                           // Tank contract address (hex)
	Contributor        string          `json:"contributor"`                    // Contributor address (hex)
	State              SubmissionState `json:"state"`                          // Furthest pipeline state reached
	Verdict            string          `json:"verdict,omitempty"`              // accept, reject or error; empty if scoring failed
	WeightedScore      float64         `json:"weighted_score"`                 // Evaluation score in [0,10]
	NoteHash           string          `json:"note_hash"`                      // Hex SHA-256 of the note plaintext
	PreviousDigestHash string          `json:"previous_digest_hash,omitempty"` // Digest hash the run started from
	NewDigestHash      string          `json:"new_digest_hash,omitempty"`      // Digest hash the run produced (accepted runs)
	TxHash             string          `json:"tx_hash,omitempty"`              // Hash of the verified signed transaction
	Signer             string          `json:"signer,omitempty"`               // Address the transaction recovered to
	FailureKind        string          `json:"failure_kind,omitempty"`         // Classified failure when the run errored
	Error              string          `json:"error,omitempty"`                // Failure message when the run errored
	CreatedAtMs        int64           `json:"created_at_ms"`                  // Unix timestamp in milliseconds
}

// SubmissionState is a state of the submission pipeline.
type SubmissionState string

const (
	// StateScoring means the note was being evaluated
	StateScoring SubmissionState = "scoring"

	// StateRejected is terminal: the evaluation did not accept the note
	StateRejected SubmissionState = "rejected"

	// StateDigesting means a new digest was being synthesized
	StateDigesting SubmissionState = "digesting"

	// StateEncrypting means note and digest were being encrypted
	StateEncrypting SubmissionState = "encrypting"

	// StateSigning means the transaction was being built and signed
	StateSigning SubmissionState = "signing"

	// StateVerified is terminal: a verified signed transaction was produced
	StateVerified SubmissionState = "verified"
)

// Terminal reports whether the state ends the pipeline successfully.
func (s SubmissionState) Terminal() bool {
	return s == StateRejected || s == StateVerified
}

// Validate checks if the SubmissionState is a valid enum value.
func (s SubmissionState) Validate() error {
	switch s {
	case StateScoring, StateRejected, StateDigesting, StateEncrypting, StateSigning, StateVerified:
		return nil
	default:
		return fmt.Errorf("unknown submission state: %q", s)
	}
}

// Failed reports whether the run ended in an error.
func (s *Submission) Failed() bool {
	return s.Error != "" || s.FailureKind != ""
}

// Validate checks if the Submission has valid field values.
// Returns an error if any validation fails.
func (s *Submission) Validate() error {
	if !isValidUUID(s.ID) {
		return fmt.Errorf("invalid submission ID: not a valid UUID")
	}

	if !isHexAddress(s.Tank) {
		return fmt.Errorf("invalid tank address: %q", s.Tank)
	}

	if s.Contributor != "" && !isHexAddress(s.Contributor) {
		return fmt.Errorf("invalid contributor address: %q", s.Contributor)
	}

	if err := s.State.Validate(); err != nil {
		return fmt.Errorf("invalid state: %w", err)
	}

	if s.WeightedScore < 0 || s.WeightedScore > 10 {
		return fmt.Errorf("invalid weighted score: %v", s.WeightedScore)
	}

	if s.State == StateVerified && s.TxHash == "" {
		return fmt.Errorf("verified submission must carry a transaction hash")
	}

	return nil
}

// isValidUUID checks if a string is a valid UUID format.
func isValidUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

// isHexAddress checks for a 0x-prefixed 20-byte hex string.
func isHexAddress(s string) bool {
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return false
	}
	s = s[2:]
	if len(s) != 40 {
		return false
	}
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}
