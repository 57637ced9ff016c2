package llm

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dyluth/thinktank/internal/failure"
)

// emptyDigest mirrors chain.EmptyDigest: the digest of a tank with no accepted notes.
const emptyDigest = "empty"

// Engine runs the evaluation, digest, hint and reasoning actions against a Backend.
// It is safe for concurrent use; WithTarget returns a copy bound to one tank.
type Engine struct {
	backend Backend
	target  Target
	timeout time.Duration
	logger  *zap.Logger
}

// NewEngine creates an engine. timeout bounds each backend call; zero means only
// the caller's context applies.
func NewEngine(backend Backend, timeout time.Duration, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{backend: backend, timeout: timeout, logger: logger.Named("llm")}
}

// WithTarget returns a copy of the engine that sends requests to target.
func (e *Engine) WithTarget(target Target) *Engine {
	c := *e
	c.target = target
	return &c
}

// Evaluate scores note against idea and digest.
//
// A backend response that cannot be decoded yields a degraded evaluation with
// verdict "error" and a nil error. A note identical to the digest is rejected
// without calling the backend. Transport failures are returned as errors.
func (e *Engine) Evaluate(ctx context.Context, idea, digest, note string) (*Evaluation, error) {
	const op = "llm.Evaluate"

	if strings.TrimSpace(note) == "" {
		return nil, failure.Newf(failure.KindInvalidInput, op, "note is empty")
	}

	if digest != emptyDigest && strings.TrimSpace(note) == strings.TrimSpace(digest) {
		e.logger.Info("note restates the digest, rejecting locally", zap.Int("note_len", len(note)))
		return &Evaluation{
			Verdict:       VerdictReject,
			Justification: "The note restates the current digest and adds nothing new.",
		}, nil
	}

	raw, err := e.complete(ctx, evaluationPrompt(idea, digest, note))
	if err != nil {
		return nil, failure.New(failure.KindNetwork, op, err)
	}

	result := Decode(KindEvaluation, raw)
	if result.IsFailure() {
		e.logger.Warn("evaluation response could not be parsed, degrading",
			zap.Error(failure.New(failure.KindLLMParse, op, result.Err)),
			zap.Int("response_len", len(raw)))
		return DegradedEvaluation(raw), nil
	}

	eval := result.Evaluation
	e.logger.Info("note evaluated",
		zap.String("verdict", string(eval.Verdict)),
		zap.Float64("weighted_score", eval.WeightedScore))
	return eval, nil
}

// Synthesize merges an accepted note into digest and returns the new digest.
// An unparseable or empty response is an LLMParse failure; a response equal to
// the old digest is a DigestUnchanged failure.
func (e *Engine) Synthesize(ctx context.Context, idea, digest, note string) (string, error) {
	const op = "llm.Synthesize"

	raw, err := e.complete(ctx, digestPrompt(idea, digest, note))
	if err != nil {
		return "", failure.New(failure.KindNetwork, op, err)
	}

	result := Decode(KindDigest, raw)
	if result.IsFailure() {
		return "", failure.New(failure.KindLLMParse, op, result.Err)
	}

	if strings.TrimSpace(result.Digest) == strings.TrimSpace(digest) {
		return "", failure.New(failure.KindDigestUnchanged, op, nil)
	}

	e.checkLengthBand(idea, digest, note, result.Digest)
	return result.Digest, nil
}

// checkLengthBand warns when the new digest falls outside 50-75% of the naive
// concatenation. The band is an instruction to the model, not a hard limit.
func (e *Engine) checkLengthBand(idea, digest, note, next string) {
	naive := len(idea) + len(note)
	if digest != emptyDigest {
		naive += len(digest)
	}
	if naive == 0 {
		return
	}

	ratio := float64(len(next)) / float64(naive)
	if ratio < 0.5 || ratio > 0.75 {
		e.logger.Warn("synthesized digest outside expected length band",
			zap.Int("naive_len", naive),
			zap.Int("digest_len", len(next)),
			zap.Float64("ratio", ratio))
	}
}

// Hint suggests a direction for the next contribution. A response that is not
// the expected JSON is returned as plain text.
func (e *Engine) Hint(ctx context.Context, idea, digest string) (string, error) {
	raw, err := e.complete(ctx, hintPrompt(idea, digest))
	if err != nil {
		return "", failure.New(failure.KindNetwork, "llm.Hint", err)
	}
	return e.textResult(KindHint, raw), nil
}

// Reason answers a question about the tank. A response that is not the expected
// JSON is returned as plain text.
func (e *Engine) Reason(ctx context.Context, idea, digest, question string) (string, error) {
	if strings.TrimSpace(question) == "" {
		return "", failure.Newf(failure.KindInvalidInput, "llm.Reason", "question is empty")
	}

	raw, err := e.complete(ctx, reasoningPrompt(idea, digest, question))
	if err != nil {
		return "", failure.New(failure.KindNetwork, "llm.Reason", err)
	}
	return e.textResult(KindReasoning, raw), nil
}

func (e *Engine) textResult(kind Kind, raw string) string {
	result := Decode(kind, raw)
	if result.IsFailure() {
		e.logger.Warn("response could not be parsed, returning raw text",
			zap.String("action", string(kind)),
			zap.Error(result.Err))
		return strings.TrimSpace(raw)
	}

	switch kind {
	case KindHint:
		return result.Hint
	default:
		return result.Reasoning
	}
}

func (e *Engine) complete(ctx context.Context, req Request) (string, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	req.Target = e.target
	return e.backend.Complete(ctx, req)
}
