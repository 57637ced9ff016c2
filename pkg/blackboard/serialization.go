package blackboard

import (
	"fmt"
	"strconv"
)

// Serialization helpers for converting between Go structs and Redis hashes
//
// Redis stores data as string-to-string maps (hashes). Every submission field is
// a scalar, so each maps to one hash field. Optional fields are written as empty
// strings and read back as zero values.

// SubmissionToHash converts a Submission struct to a Redis hash format.
func SubmissionToHash(s *Submission) map[string]interface{} {
	return map[string]interface{}{
		"id":                   s.ID,
		"tank":                 s.Tank,
		"contributor":          s.Contributor,
		"state":                string(s.State),
		"verdict":              s.Verdict,
		"weighted_score":       strconv.FormatFloat(s.WeightedScore, 'f', -1, 64),
		"note_hash":            s.NoteHash,
		"previous_digest_hash": s.PreviousDigestHash,
		"new_digest_hash":      s.NewDigestHash,
		"tx_hash":              s.TxHash,
		"signer":               s.Signer,
		"failure_kind":         s.FailureKind,
		"error":                s.Error,
		"created_at_ms":        s.CreatedAtMs,
	}
}

// HashToSubmission converts a Redis hash to a Submission struct.
func HashToSubmission(hash map[string]string) (*Submission, error) {
	var score float64
	if raw := hash["weighted_score"]; raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid weighted_score field: %w", err)
		}
		score = v
	}

	createdAtMs, err := strconv.ParseInt(hash["created_at_ms"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid created_at_ms field: %w", err)
	}

	return &Submission{
		ID:                 hash["id"],
		Tank:               hash["tank"],
		Contributor:        hash["contributor"],
		State:              SubmissionState(hash["state"]),
		Verdict:            hash["verdict"],
		WeightedScore:      score,
		NoteHash:           hash["note_hash"],
		PreviousDigestHash: hash["previous_digest_hash"],
		NewDigestHash:      hash["new_digest_hash"],
		TxHash:             hash["tx_hash"],
		Signer:             hash["signer"],
		FailureKind:        hash["failure_kind"],
		Error:              hash["error"],
		CreatedAtMs:        createdAtMs,
	}, nil
}
