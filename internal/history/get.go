package history

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/dyluth/thinktank/pkg/blackboard"
)

// Get writes one submission as indented JSON.
func Get(ctx context.Context, store Store, submissionID string, w io.Writer) error {
	if _, err := uuid.Parse(submissionID); err != nil {
		return fmt.Errorf("invalid submission ID format: must be a valid UUID")
	}

	s, err := store.GetSubmission(ctx, submissionID)
	if err != nil {
		if blackboard.IsNotFound(err) {
			return &NotFoundError{SubmissionID: submissionID}
		}
		return fmt.Errorf("failed to fetch submission: %w", err)
	}

	if err := FormatSingleJSON(w, s); err != nil {
		return fmt.Errorf("failed to format submission: %w", err)
	}
	return nil
}

// NotFoundError reports a submission ID with no stored record.
type NotFoundError struct {
	SubmissionID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("submission with ID '%s' not found", e.SubmissionID)
}
