package printer

import (
	"fmt"
	"sort"

	"github.com/fatih/color"

	"github.com/dyluth/thinktank/internal/llm"
	"github.com/dyluth/thinktank/internal/pipeline"
)

// Evaluation prints the criteria scores, weighted score and verdict.
func Evaluation(e *llm.Evaluation) {
	if e == nil {
		return
	}

	bold.Fprintln(Out, "Evaluation")
	rows := []struct {
		name  string
		score float64
	}{
		{"relevance", e.Criteria.Relevance},
		{"novelty", e.Criteria.Novelty},
		{"depth", e.Criteria.Depth},
		{"clarity", e.Criteria.Clarity},
		{"impact", e.Criteria.Impact},
	}
	for _, r := range rows {
		fmt.Fprintf(Out, "  %-10s %4.1f  %s\n", r.name, r.score, bar(r.score))
	}
	fmt.Fprintf(Out, "  %-10s %4.1f\n", "weighted", e.WeightedScore)

	verdictColor(e.Verdict).Fprintf(Out, "  verdict    %s\n", e.Verdict)
	if e.Justification != "" {
		fmt.Fprintf(Out, "\n  %s\n", e.Justification)
	}
}

// Outcome prints a pipeline outcome: the evaluation and, for committed notes,
// the signed transaction.
func Outcome(o *pipeline.Outcome) {
	Evaluation(o.Evaluation)
	fmt.Fprintln(Out)

	switch o.State {
	case pipeline.StateRejected:
		Warning("Note rejected; nothing was encrypted or signed (submission %s)\n", o.ID)
		return
	case pipeline.StateVerified:
	default:
		Info("Submission %s ended in state %s\n", o.ID, o.State)
		return
	}

	Success("Note accepted and transaction verified (submission %s)\n", o.ID)
	tx := o.Transaction
	if tx == nil {
		return
	}
	fmt.Fprintf(Out, "  tx hash      %s\n", tx.TxHash.Hex())
	fmt.Fprintf(Out, "  signer       %s\n", tx.Signer.Hex())
	fmt.Fprintf(Out, "  chain id     %s\n", tx.ChainID)
	fmt.Fprintf(Out, "  note hash    %s\n", o.NoteHash)
	fmt.Fprintf(Out, "  digest hash  %s -> %s\n", dash(o.PreviousDigestHash), o.NewDigestHash)
	fmt.Fprintf(Out, "\n%s\n", tx.SignedTx)
}

// KeyValues prints aligned key/value lines in key order.
func KeyValues(values map[string]string) {
	keys := sortedKeys(values)
	width := 0
	for _, k := range keys {
		width = max(width, len(k))
	}
	for _, k := range keys {
		fmt.Fprintf(Out, "  %-*s  %s\n", width, k, values[k])
	}
}

func verdictColor(v llm.Verdict) *color.Color {
	switch v {
	case llm.VerdictAccept:
		return green
	case llm.VerdictReject:
		return red
	default:
		return yellow
	}
}

func bar(score float64) string {
	n := int(score + 0.5)
	out := make([]rune, 10)
	for i := range out {
		if i < n {
			out[i] = '█'
		} else {
			out[i] = '·'
		}
	}
	return string(out)
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
