// Package history lists and fetches recorded submissions for the CLI.
package history

import (
	"context"
	"fmt"
	"io"
	"slices"

	"github.com/dyluth/thinktank/internal/filter"
	"github.com/dyluth/thinktank/pkg/blackboard"
)

// OutputFormat specifies how to format the submission list output.
type OutputFormat string

const (
	// OutputFormatDefault uses a table format
	OutputFormatDefault OutputFormat = "default"

	// OutputFormatJSONL outputs complete submissions as line-delimited JSON
	OutputFormatJSONL OutputFormat = "jsonl"
)

// Store is the part of the blackboard history needs.
type Store interface {
	InstanceName() string
	ListSubmissions(ctx context.Context, sinceMs, untilMs int64) ([]*blackboard.Submission, error)
	ListTankSubmissions(ctx context.Context, tank string, limit int) ([]*blackboard.Submission, error)
	GetSubmission(ctx context.Context, submissionID string) (*blackboard.Submission, error)
}

// List writes the submissions matching criteria, oldest first.
//
// With a tank filter and a positive limit, only that tank's newest limit
// submissions are considered. Otherwise the global index is read within the
// criteria's time range and limit keeps the newest matches.
func List(ctx context.Context, store Store, format OutputFormat, criteria *filter.Criteria, limit int, w io.Writer) error {
	if criteria == nil {
		criteria = &filter.Criteria{}
	}

	var (
		subs []*blackboard.Submission
		err  error
	)
	if criteria.Tank != "" && limit > 0 {
		subs, err = store.ListTankSubmissions(ctx, criteria.Tank, limit)
	} else {
		subs, err = store.ListSubmissions(ctx, criteria.SinceTimestampMs, criteria.UntilTimestampMs)
	}
	if err != nil {
		return fmt.Errorf("failed to list submissions: %w", err)
	}

	matched := make([]*blackboard.Submission, 0, len(subs))
	for _, s := range subs {
		if criteria.Matches(s) {
			matched = append(matched, s)
		}
	}

	slices.SortStableFunc(matched, func(a, b *blackboard.Submission) int {
		return int(a.CreatedAtMs - b.CreatedAtMs)
	})
	if limit > 0 && len(matched) > limit {
		matched = matched[len(matched)-limit:]
	}

	switch format {
	case OutputFormatDefault, "":
		FormatTable(w, matched, store.InstanceName())
	case OutputFormatJSONL:
		if err := FormatJSONL(w, matched); err != nil {
			return fmt.Errorf("failed to format JSONL output: %w", err)
		}
	default:
		return fmt.Errorf("unknown output format: %s", format)
	}

	return nil
}
