// Package watch streams submission events from the blackboard as they are
// recorded.
package watch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/dyluth/thinktank/internal/filter"
	"github.com/dyluth/thinktank/pkg/blackboard"
)

// OutputFormat selects how events are written.
type OutputFormat string

const (
	// OutputFormatDefault writes one human-readable line per event
	OutputFormatDefault OutputFormat = "default"

	// OutputFormatJSON writes line-delimited JSON
	OutputFormatJSON OutputFormat = "json"
)

// Subscriber opens a submission event subscription. *blackboard.Client implements it.
type Subscriber interface {
	SubscribeSubmissionEvents(ctx context.Context) (*blackboard.Subscription, error)
}

// Stream writes submission events matching criteria until ctx is cancelled.
// Malformed events are reported on errOut and skipped. Returns nil on
// cancellation.
func Stream(ctx context.Context, sub Subscriber, criteria *filter.Criteria, format OutputFormat, w, errOut io.Writer) error {
	if format != OutputFormatDefault && format != OutputFormatJSON {
		return fmt.Errorf("unknown output format: %s", format)
	}
	if criteria == nil {
		criteria = &filter.Criteria{}
	}

	subscription, err := sub.SubscribeSubmissionEvents(ctx)
	if err != nil {
		return err
	}
	defer subscription.Close()

	events, errs := subscription.Events(), subscription.Errors()
	for {
		select {
		case <-ctx.Done():
			return nil

		case s, ok := <-events:
			if !ok {
				return nil
			}
			if !criteria.Matches(s) {
				continue
			}
			if err := writeEvent(w, s, format); err != nil {
				return err
			}

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			fmt.Fprintf(errOut, "⚠️  %v\n", err)
		}
	}
}

func writeEvent(w io.Writer, s *blackboard.Submission, format OutputFormat) error {
	if format == OutputFormatJSON {
		data, err := json.Marshal(s)
		if err != nil {
			return fmt.Errorf("failed to marshal submission event: %w", err)
		}
		_, err = fmt.Fprintf(w, "%s\n", data)
		return err
	}

	_, err := fmt.Fprintf(w, "[%s] %s\n", time.UnixMilli(s.CreatedAtMs).Format("15:04:05"), FormatEvent(s))
	return err
}

// FormatEvent renders one submission as a single line.
func FormatEvent(s *blackboard.Submission) string {
	switch {
	case s.Failed():
		return fmt.Sprintf("⚠️  Failed at %s: tank=%s, kind=%s, id=%s", s.State, s.Tank, s.FailureKind, s.ID)
	case s.State == blackboard.StateVerified:
		return fmt.Sprintf("✅ Note Committed: tank=%s, score=%.1f, tx=%s, signer=%s", s.Tank, s.WeightedScore, s.TxHash, s.Signer)
	case s.State == blackboard.StateRejected:
		return fmt.Sprintf("❌ Note Rejected: tank=%s, score=%.1f, verdict=%s, id=%s", s.Tank, s.WeightedScore, s.Verdict, s.ID)
	default:
		return fmt.Sprintf("📝 Submission %s: tank=%s, state=%s", s.ID, s.Tank, s.State)
	}
}
