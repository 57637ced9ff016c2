package history

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/dyluth/thinktank/pkg/blackboard"
)

// FormatTable writes submissions as a table with columns ID, TANK, STATE,
// VERDICT, SCORE, AGE and TX/ERROR. Returns the number of rows written.
func FormatTable(w io.Writer, subs []*blackboard.Submission, instanceName string) int {
	if len(subs) == 0 {
		fmt.Fprintf(w, "No submissions found for instance '%s'\n", instanceName)
		return 0
	}

	fmt.Fprintf(w, "Submissions for instance '%s':\n\n", instanceName)

	fmt.Fprintf(w, "%-10s %-13s %-10s %-8s %-5s %-8s %s\n",
		"ID", "TANK", "STATE", "VERDICT", "SCORE", "AGE", "TX/ERROR")
	fmt.Fprintf(w, "%-10s %-13s %-10s %-8s %-5s %-8s %s\n",
		"----------", "-------------", "----------", "--------", "-----", "--------", "----------------------------------------")

	for _, s := range subs {
		fmt.Fprintf(w, "%-10s %-13s %-10s %-8s %-5s %-8s %s\n",
			formatID(s.ID),
			formatAddress(s.Tank),
			s.State,
			dash(s.Verdict),
			formatScore(s),
			formatTimestamp(s.CreatedAtMs, time.Now()),
			formatOutcome(s),
		)
	}

	noun := "submission"
	if len(subs) != 1 {
		noun = "submissions"
	}
	fmt.Fprintf(w, "\n%d %s found\n", len(subs), noun)

	return len(subs)
}

// FormatJSONL writes one compact JSON object per line, for piping into jq.
func FormatJSONL(w io.Writer, subs []*blackboard.Submission) error {
	for _, s := range subs {
		data, err := json.Marshal(s)
		if err != nil {
			return fmt.Errorf("failed to marshal submission to JSON: %w", err)
		}
		if _, err := fmt.Fprintf(w, "%s\n", data); err != nil {
			return fmt.Errorf("failed to write JSONL output: %w", err)
		}
	}
	return nil
}

// FormatSingleJSON writes one submission as indented JSON.
func FormatSingleJSON(w io.Writer, s *blackboard.Submission) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal submission to JSON: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write JSON output: %w", err)
	}
	fmt.Fprintln(w)
	return nil
}

func formatID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// formatAddress shortens 0x1234567890... to 0x1234…abcd.
func formatAddress(addr string) string {
	if len(addr) <= 13 {
		return dash(addr)
	}
	return addr[:6] + "…" + addr[len(addr)-4:]
}

func formatScore(s *blackboard.Submission) string {
	if s.Verdict == "" {
		return "-"
	}
	return fmt.Sprintf("%.1f", s.WeightedScore)
}

// formatOutcome shows the transaction hash, the failure kind, or "-".
func formatOutcome(s *blackboard.Submission) string {
	switch {
	case s.TxHash != "":
		return formatID(s.TxHash[min(2, len(s.TxHash)):]) + "…"
	case s.FailureKind != "":
		return s.FailureKind
	default:
		return "-"
	}
}

// formatTimestamp renders a millisecond timestamp relative to now: "2m ago".
func formatTimestamp(timestampMs int64, now time.Time) string {
	if timestampMs == 0 {
		return "-"
	}

	diff := now.Sub(time.UnixMilli(timestampMs))
	switch {
	case diff < time.Minute:
		return fmt.Sprintf("%ds ago", int(diff.Seconds()))
	case diff < time.Hour:
		return fmt.Sprintf("%dm ago", int(diff.Minutes()))
	case diff < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(diff.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(diff.Hours()/24))
	}
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
