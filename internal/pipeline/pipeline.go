// Package pipeline runs the evaluation-gated commit pipeline for one submitted
// note:
//
//	Scoring -> Rejected
//	Scoring -> Digesting -> Encrypting -> Signing -> Verified
//
// A rejected note stops after scoring: nothing is encrypted or signed. Any
// failure after scoring aborts the run with the stage's classified error; there
// is no partial commit and no retry.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dyluth/thinktank/internal/capability"
	"github.com/dyluth/thinktank/internal/chain"
	"github.com/dyluth/thinktank/internal/failure"
	"github.com/dyluth/thinktank/internal/llm"
	"github.com/dyluth/thinktank/internal/txbuilder"
	"github.com/dyluth/thinktank/internal/vault"
	"github.com/dyluth/thinktank/pkg/blackboard"
)

// State is a pipeline state.
type State string

const (
	StateScoring    State = "scoring"
	StateRejected   State = "rejected"
	StateDigesting  State = "digesting"
	StateEncrypting State = "encrypting"
	StateSigning    State = "signing"
	StateVerified   State = "verified"
)

// Locker serializes submissions per tank. *blackboard.Client implements it.
type Locker interface {
	AcquireTankLock(ctx context.Context, tank string, ttl time.Duration) (*blackboard.TankLock, error)
}

// Recorder stores the outcome of each run. *blackboard.Client implements it.
type Recorder interface {
	CreateSubmission(ctx context.Context, s *blackboard.Submission) error
}

// Submission is one note submitted against a tank.
type Submission struct {
	Tank        common.Address
	Contributor common.Address
	Note        string
}

// Outcome is the result of a successful run. Transaction is nil when the note
// was rejected. No plaintext digest leaves the pipeline.
type Outcome struct {
	ID                 string            `json:"id"`
	State              State             `json:"state"`
	Evaluation         *llm.Evaluation   `json:"evaluation"`
	NoteHash           string            `json:"noteHash"`
	PreviousDigestHash string            `json:"previousDigestHash,omitempty"`
	NewDigestHash      string            `json:"newDigestHash,omitempty"`
	Transaction        *txbuilder.Result `json:"transaction,omitempty"`
}

// Deps are the collaborators of an Orchestrator. Locker, Recorder and Metrics
// are optional.
type Deps struct {
	Reader   *chain.Reader
	Engine   *llm.Engine
	Vault    *vault.Gateway
	Builder  *txbuilder.Builder
	Locker   Locker
	Recorder Recorder
	Metrics  *Metrics
	Logger   *zap.Logger
}

// Config tunes an Orchestrator.
type Config struct {
	RemoteCallTimeout time.Duration // Deadline for each encryption call; zero disables
	LockTTL           time.Duration // Lifetime of the per-tank lock
}

// Orchestrator runs submissions through the pipeline. It holds no per-run state
// and is safe for concurrent use.
type Orchestrator struct {
	reader   *chain.Reader
	engine   *llm.Engine
	vault    *vault.Gateway
	builder  *txbuilder.Builder
	locker   Locker
	recorder Recorder
	metrics  *Metrics
	logger   *zap.Logger
	cfg      Config
}

// New creates an orchestrator.
func New(deps Deps, cfg Config) (*Orchestrator, error) {
	if deps.Reader == nil || deps.Engine == nil || deps.Vault == nil || deps.Builder == nil {
		return nil, fmt.Errorf("reader, engine, vault and builder are required")
	}
	if deps.Locker != nil && cfg.LockTTL <= 0 {
		return nil, fmt.Errorf("lock TTL must be positive when a locker is configured")
	}
	if deps.Metrics == nil {
		deps.Metrics = NopMetrics()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	return &Orchestrator{
		reader:   deps.Reader,
		engine:   deps.Engine,
		vault:    deps.Vault,
		builder:  deps.Builder,
		locker:   deps.Locker,
		recorder: deps.Recorder,
		metrics:  deps.Metrics,
		logger:   deps.Logger.Named("pipeline"),
		cfg:      cfg,
	}, nil
}

// run carries the bookkeeping of one invocation.
type run struct {
	id      string
	sub     Submission
	state   State
	outcome *Outcome
}

// Run processes one submission.
func (o *Orchestrator) Run(ctx context.Context, sub Submission) (*Outcome, error) {
	r := &run{id: uuid.New().String(), sub: sub, state: StateScoring}
	r.outcome = &Outcome{ID: r.id, NoteHash: vault.Hash([]byte(sub.Note))}

	o.metrics.InFlight.Add(1)
	defer o.metrics.InFlight.Add(-1)

	outcome, err := o.execute(ctx, r)
	o.finish(ctx, r, err)
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

func (o *Orchestrator) execute(ctx context.Context, r *run) (*Outcome, error) {
	if err := validate(r.sub); err != nil {
		return nil, err
	}

	if o.locker != nil {
		release, err := o.lock(ctx, r.sub.Tank)
		if err != nil {
			return nil, err
		}
		defer release()
	}

	// Scoring
	var snap *chain.Snapshot
	err := o.stage(ctx, StateScoring, func(ctx context.Context) error {
		var err error
		snap, err = o.reader.Snapshot(ctx, r.sub.Tank)
		return err
	})
	if err != nil {
		return nil, err
	}
	r.outcome.PreviousDigestHash = snap.State.Digest.Hash

	engine := o.engine.WithTarget(llm.Target{
		BaseURL: snap.State.LLMURL,
		Model:   snap.Config.Model,
		APIKey:  snap.Config.APIKey,
	})

	var eval *llm.Evaluation
	err = o.stage(ctx, StateScoring, func(ctx context.Context) error {
		var err error
		eval, err = engine.Evaluate(ctx, snap.State.Idea, snap.Digest, r.sub.Note)
		return err
	})
	if err != nil {
		return nil, err
	}
	r.outcome.Evaluation = eval

	if !eval.Accepted() {
		r.state = StateRejected
		r.outcome.State = StateRejected
		o.logEvent("note_rejected", r,
			zap.String("verdict", string(eval.Verdict)),
			zap.Float64("weighted_score", eval.WeightedScore))
		return r.outcome, nil
	}

	// Digesting
	r.state = StateDigesting
	var newDigest string
	err = o.stage(ctx, StateDigesting, func(ctx context.Context) error {
		var err error
		newDigest, err = engine.Synthesize(ctx, snap.State.Idea, snap.Digest, r.sub.Note)
		return err
	})
	if err != nil {
		return nil, err
	}

	// Encrypting
	r.state = StateEncrypting
	policyIDs := snap.State.PolicyIDs
	var noteCT, digestCT capability.Ciphertext
	err = o.stage(ctx, StateEncrypting, func(ctx context.Context) error {
		var err error
		if noteCT, err = o.encrypt(ctx, policyIDs, r.sub.Note); err != nil {
			return err
		}
		digestCT, err = o.encrypt(ctx, policyIDs, newDigest)
		return err
	})
	if err != nil {
		return nil, err
	}
	r.outcome.NewDigestHash = digestCT.Hash

	// Signing
	r.state = StateSigning
	var result *txbuilder.Result
	err = o.stage(ctx, StateSigning, func(ctx context.Context) error {
		ideaSig, err := o.builder.SignIdea(ctx, snap.State.Idea)
		if err != nil {
			return err
		}
		result, err = o.builder.Build(ctx, txbuilder.Request{
			Contract:      r.sub.Tank,
			Contributor:   r.sub.Contributor,
			Note:          noteCT,
			Digest:        digestCT,
			Score:         eval.ScoreUnits(),
			IdeaSignature: ideaSig,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	r.state = StateVerified
	r.outcome.State = StateVerified
	r.outcome.Transaction = result
	o.logEvent("note_committed", r,
		zap.String("tx_hash", result.TxHash.Hex()),
		zap.String("signer", result.Signer.Hex()),
		zap.Float64("weighted_score", eval.WeightedScore))

	return r.outcome, nil
}

// stage runs fn, timing it under the stage label. Deadlines belong to the
// individual remote calls inside fn, never to the stage as a whole.
func (o *Orchestrator) stage(ctx context.Context, state State, fn func(ctx context.Context) error) error {
	start := time.Now()
	err := fn(ctx)
	o.metrics.StageDuration.With("stage", string(state)).Observe(time.Since(start).Seconds())
	return err
}

// encrypt seals one payload under the remote call deadline.
func (o *Orchestrator) encrypt(ctx context.Context, policyIDs []string, plaintext string) (capability.Ciphertext, error) {
	if o.cfg.RemoteCallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.RemoteCallTimeout)
		defer cancel()
	}
	return o.vault.Encrypt(ctx, policyIDs, []byte(plaintext))
}

func (o *Orchestrator) lock(ctx context.Context, tank common.Address) (func(), error) {
	const op = "pipeline.lock"

	lock, err := o.locker.AcquireTankLock(ctx, strings.ToLower(tank.Hex()), o.cfg.LockTTL)
	if errors.Is(err, blackboard.ErrLockHeld) {
		return nil, failure.New(failure.KindTankBusy, op, err)
	}
	if err != nil {
		return nil, failure.New(failure.KindNetwork, op, err)
	}

	return func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := lock.Release(releaseCtx); err != nil {
			o.logger.Warn("failed to release tank lock", zap.String("tank", tank.Hex()), zap.Error(err))
		}
	}, nil
}

// finish records the run and updates metrics. Recording errors are logged only.
func (o *Orchestrator) finish(ctx context.Context, r *run, runErr error) {
	rec := &blackboard.Submission{
		ID:                 r.id,
		Tank:               r.sub.Tank.Hex(),
		Contributor:        r.sub.Contributor.Hex(),
		State:              blackboard.SubmissionState(r.state),
		NoteHash:           r.outcome.NoteHash,
		PreviousDigestHash: r.outcome.PreviousDigestHash,
		NewDigestHash:      r.outcome.NewDigestHash,
	}
	if eval := r.outcome.Evaluation; eval != nil {
		rec.Verdict = string(eval.Verdict)
		rec.WeightedScore = eval.WeightedScore
	}

	if runErr != nil {
		kind := failure.KindOf(runErr)
		if kind == "" {
			kind = "unclassified"
		}
		rec.FailureKind = string(kind)
		rec.Error = runErr.Error()
		o.metrics.Failures.With("kind", string(kind)).Add(1)
		o.logEvent("submission_failed", r, zap.String("kind", string(kind)), zap.Error(runErr))
	} else {
		o.metrics.Submissions.With("verdict", rec.Verdict).Add(1)
		if tx := r.outcome.Transaction; tx != nil {
			rec.TxHash = tx.TxHash.Hex()
			rec.Signer = tx.Signer.Hex()
		}
	}

	// Rejected input never reached the tank, so there is nothing to record.
	if o.recorder == nil || errors.Is(runErr, failure.ErrInvalidInput) {
		return
	}

	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := o.recorder.CreateSubmission(recordCtx, rec); err != nil {
		o.logger.Warn("failed to record submission", zap.String("submission_id", r.id), zap.Error(err))
	}
}

func (o *Orchestrator) logEvent(event string, r *run, fields ...zap.Field) {
	base := []zap.Field{
		zap.String("event", event),
		zap.String("submission_id", r.id),
		zap.String("tank", r.sub.Tank.Hex()),
		zap.String("state", string(r.state)),
	}
	o.logger.Info(event, append(base, fields...)...)
}

func validate(sub Submission) error {
	const op = "pipeline.Run"
	switch {
	case sub.Tank == (common.Address{}):
		return failure.Newf(failure.KindInvalidInput, op, "tank address is required")
	case sub.Contributor == (common.Address{}):
		return failure.Newf(failure.KindInvalidInput, op, "contributor address is required")
	case strings.TrimSpace(sub.Note) == "":
		return failure.Newf(failure.KindInvalidInput, op, "note is empty")
	}
	return nil
}
