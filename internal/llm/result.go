package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// Kind tags a decoded backend response.
type Kind string

const (
	KindHint         Kind = "hint"
	KindEvaluation   Kind = "evaluation"
	KindDigest       Kind = "digest"
	KindReasoning    Kind = "reasoning"
	KindParseFailure Kind = "parse_failure"
)

// Verdict is the outcome of evaluating a note.
type Verdict string

const (
	VerdictAccept Verdict = "accept"
	VerdictReject Verdict = "reject"
	VerdictError  Verdict = "error"
)

// AcceptThreshold is the lowest weighted score a note can be accepted with.
const AcceptThreshold = 5.0

// Criteria are the five scored dimensions, each in [0,10].
type Criteria struct {
	Relevance float64 `json:"relevance"`
	Novelty   float64 `json:"novelty"`
	Depth     float64 `json:"depth"`
	Clarity   float64 `json:"clarity"`
	Impact    float64 `json:"impact"`
}

// Mean returns the unweighted mean of the criteria.
func (c Criteria) Mean() float64 {
	return (c.Relevance + c.Novelty + c.Depth + c.Clarity + c.Impact) / 5
}

func (c Criteria) clamped() Criteria {
	return Criteria{
		Relevance: clampScore(c.Relevance),
		Novelty:   clampScore(c.Novelty),
		Depth:     clampScore(c.Depth),
		Clarity:   clampScore(c.Clarity),
		Impact:    clampScore(c.Impact),
	}
}

// Evaluation is the structured score of one note.
type Evaluation struct {
	Criteria      Criteria `json:"criteria"`
	WeightedScore float64  `json:"weightedScore"`
	Verdict       Verdict  `json:"verdict"`
	Justification string   `json:"justification"`
}

// Accepted reports whether the note may be committed.
func (e *Evaluation) Accepted() bool {
	return e != nil && e.Verdict == VerdictAccept
}

// ScoreUnits returns the weighted score as the integer written on-chain:
// tenths of a point, so 7.25 becomes 73.
func (e *Evaluation) ScoreUnits() uint64 {
	return uint64(math.Round(clampScore(e.WeightedScore) * 10))
}

// DegradedEvaluation is what an unparseable evaluation response becomes.
// It can never be mistaken for an accept.
func DegradedEvaluation(raw string) *Evaluation {
	return &Evaluation{
		Verdict:       VerdictError,
		WeightedScore: 0,
		Justification: truncate(strings.TrimSpace(raw), 500),
	}
}

// Result is a decoded backend response. Exactly one payload field is set,
// according to Kind. A ParseFailure keeps the raw text and the decode error.
type Result struct {
	Kind       Kind
	Hint       string
	Evaluation *Evaluation
	Digest     string
	Reasoning  string
	Raw        string
	Err        error
}

// IsFailure reports whether the response could not be decoded.
func (r Result) IsFailure() bool {
	return r.Kind == KindParseFailure
}

// wireEvaluation mirrors the backend's evaluation object. Pointers distinguish
// missing fields from zeros.
type wireEvaluation struct {
	Criteria      *Criteria `json:"criteria"`
	WeightedScore *float64  `json:"weightedScore"`
	Verdict       string    `json:"verdict"`
	Justification string    `json:"justification"`
}

// Decode decodes raw as a response to an action of kind expected.
// Code fences and surrounding prose are stripped; the object must have exactly
// one key and that key must be expected. Anything else is a ParseFailure.
func Decode(expected Kind, raw string) Result {
	fail := func(err error) Result {
		return Result{Kind: KindParseFailure, Raw: raw, Err: err}
	}

	body := extractJSON(raw)
	if body == "" {
		return fail(fmt.Errorf("response contains no JSON object"))
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &top); err != nil {
		return fail(fmt.Errorf("response is not a JSON object: %w", err))
	}
	if len(top) != 1 {
		return fail(fmt.Errorf("response has %d top-level keys, expected exactly one", len(top)))
	}
	value, ok := top[string(expected)]
	if !ok {
		for k := range top {
			return fail(fmt.Errorf("response key %q does not match action %q", k, expected))
		}
	}

	switch expected {
	case KindHint, KindDigest, KindReasoning:
		var s string
		if err := json.Unmarshal(value, &s); err != nil {
			// Nested structure is allowed; keep it as compact JSON text.
			if !json.Valid(value) {
				return fail(fmt.Errorf("%s value is not valid JSON: %w", expected, err))
			}
			var buf bytes.Buffer
			if err := json.Compact(&buf, value); err != nil {
				return fail(err)
			}
			s = buf.String()
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return fail(fmt.Errorf("%s value is empty", expected))
		}

		r := Result{Kind: expected, Raw: raw}
		switch expected {
		case KindHint:
			r.Hint = s
		case KindDigest:
			r.Digest = s
		case KindReasoning:
			r.Reasoning = s
		}
		return r

	case KindEvaluation:
		var w wireEvaluation
		if err := json.Unmarshal(value, &w); err != nil {
			return fail(fmt.Errorf("evaluation has unexpected shape: %w", err))
		}
		if w.Criteria == nil {
			return fail(fmt.Errorf("evaluation is missing criteria"))
		}
		return Result{Kind: KindEvaluation, Evaluation: normalizeEvaluation(w), Raw: raw}

	default:
		return fail(fmt.Errorf("unknown action %q", expected))
	}
}

// normalizeEvaluation clamps every score, fills a missing weighted score with the
// criteria mean and enforces the acceptance threshold.
func normalizeEvaluation(w wireEvaluation) *Evaluation {
	e := &Evaluation{
		Criteria:      w.Criteria.clamped(),
		Justification: strings.TrimSpace(w.Justification),
	}

	if w.WeightedScore != nil {
		e.WeightedScore = clampScore(*w.WeightedScore)
	} else {
		e.WeightedScore = e.Criteria.Mean()
	}

	switch Verdict(strings.ToLower(strings.TrimSpace(w.Verdict))) {
	case VerdictAccept:
		e.Verdict = VerdictAccept
	case VerdictError:
		e.Verdict = VerdictError
	default:
		e.Verdict = VerdictReject
	}

	if e.Verdict == VerdictAccept && e.WeightedScore < AcceptThreshold {
		e.Verdict = VerdictReject
	}
	return e
}

func clampScore(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v < 0:
		return 0
	case v > 10:
		return 10
	}
	return v
}

// extractJSON returns the first balanced JSON object in s, after stripping
// markdown code fences. String literals are skipped when matching braces.
func extractJSON(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)

	start := strings.Index(s, "{")
	if start == -1 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}

		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}
