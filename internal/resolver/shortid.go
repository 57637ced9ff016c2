package resolver

import (
	"context"
	"fmt"
	"strings"

	"github.com/dyluth/thinktank/pkg/blackboard"
)

// MinShortIDLength is the minimum required length for short ID prefixes.
const MinShortIDLength = 6

// maxListed caps the matches shown for an ambiguous prefix.
const maxListed = 10

// Store is the part of the blackboard the resolver needs.
type Store interface {
	GetSubmission(ctx context.Context, submissionID string) (*blackboard.Submission, error)
	FindSubmissionIDs(ctx context.Context, prefix string) ([]string, error)
}

// ResolveSubmissionID resolves a short ID prefix to a full submission UUID.
//
// A full UUID (36 chars, 4 hyphens) is checked for existence and returned as-is.
// Shorter input must be at least MinShortIDLength characters and match exactly
// one stored submission.
func ResolveSubmissionID(ctx context.Context, store Store, shortID string) (string, error) {
	shortID = strings.ToLower(strings.TrimSpace(shortID))

	if len(shortID) == 36 && strings.Count(shortID, "-") == 4 {
		if _, err := store.GetSubmission(ctx, shortID); err != nil {
			if blackboard.IsNotFound(err) {
				return "", &NotFoundError{ShortID: shortID}
			}
			return "", fmt.Errorf("failed to verify submission existence: %w", err)
		}
		return shortID, nil
	}

	if len(shortID) < MinShortIDLength {
		return "", fmt.Errorf("short ID must be at least %d characters (got %d)", MinShortIDLength, len(shortID))
	}

	matches, err := store.FindSubmissionIDs(ctx, shortID)
	if err != nil {
		return "", fmt.Errorf("failed to search for submission: %w", err)
	}

	switch len(matches) {
	case 0:
		return "", &NotFoundError{ShortID: shortID}
	case 1:
		return matches[0], nil
	default:
		return "", &AmbiguousError{ShortID: shortID, Matches: matches}
	}
}

// NotFoundError indicates no submissions matched the short ID.
type NotFoundError struct {
	ShortID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no submissions found matching '%s'", e.ShortID)
}

// AmbiguousError indicates multiple submissions matched the short ID.
type AmbiguousError struct {
	ShortID string
	Matches []string
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("ambiguous short ID '%s' matches %d submissions", e.ShortID, len(e.Matches))
}

// Describe lists the matching IDs (up to 10, then "...and N more").
func (e *AmbiguousError) Describe() string {
	var b strings.Builder
	fmt.Fprintf(&b, "ambiguous short ID '%s' matches %d submissions:\n", e.ShortID, len(e.Matches))

	for _, id := range e.Matches[:min(len(e.Matches), maxListed)] {
		fmt.Fprintf(&b, "  %s\n", id)
	}
	if len(e.Matches) > maxListed {
		fmt.Fprintf(&b, "  ...and %d more\n", len(e.Matches)-maxListed)
	}

	b.WriteString("\nUse a longer prefix to uniquely identify the submission.")
	return b.String()
}
