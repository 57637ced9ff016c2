// Package failure defines the error taxonomy shared by every stage of the
// submission pipeline. Stages wrap their underlying errors in an *Error carrying
// a Kind so callers (CLI, HTTP server, recorder) can classify a failure without
// string matching.
package failure

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies a pipeline failure.
type Kind string

const (
	// KindChainRead indicates a read-only contract call failed
	KindChainRead Kind = "chain_read"

	// KindDecryption indicates digest or config decryption failed
	KindDecryption Kind = "decryption"

	// KindLLMParse indicates the LLM backend returned output that could not be decoded
	KindLLMParse Kind = "llm_parse"

	// KindDigestUnchanged indicates the synthesizer returned the previous digest verbatim
	KindDigestUnchanged Kind = "digest_unchanged"

	// KindEncryption indicates the remote encryption capability failed
	KindEncryption Kind = "encryption"

	// KindSigning indicates the remote signing capability failed
	KindSigning Kind = "signing"

	// KindSignatureVerification indicates the assembled transaction failed its self-check
	KindSignatureVerification Kind = "signature_verification"

	// KindNetwork indicates a remote call exceeded its deadline or could not be reached
	KindNetwork Kind = "network"

	// KindTankBusy indicates another submission holds the tank lock
	KindTankBusy Kind = "tank_busy"

	// KindInvalidInput indicates the caller supplied an unusable request
	KindInvalidInput Kind = "invalid_input"
)

// Sentinels for errors.Is checks. An *Error matches the sentinel of its Kind.
var (
	ErrChainRead             = errors.New("chain read failed")
	ErrDecryption            = errors.New("decryption failed")
	ErrLLMParse              = errors.New("llm output could not be parsed")
	ErrDigestUnchanged       = errors.New("digest unchanged")
	ErrEncryption            = errors.New("encryption failed")
	ErrSigning               = errors.New("signing failed")
	ErrSignatureVerification = errors.New("signature verification failed")
	ErrNetwork               = errors.New("network error")
	ErrTankBusy              = errors.New("tank busy")
	ErrInvalidInput          = errors.New("invalid input")
)

var sentinels = map[Kind]error{
	KindChainRead:             ErrChainRead,
	KindDecryption:            ErrDecryption,
	KindLLMParse:              ErrLLMParse,
	KindDigestUnchanged:       ErrDigestUnchanged,
	KindEncryption:            ErrEncryption,
	KindSigning:               ErrSigning,
	KindSignatureVerification: ErrSignatureVerification,
	KindNetwork:               ErrNetwork,
	KindTankBusy:              ErrTankBusy,
	KindInvalidInput:          ErrInvalidInput,
}

// Error is a classified pipeline failure.
type Error struct {
	Kind Kind   // Failure class
	Op   string // Operation that failed, e.g. "chain.Read" or "txbuilder.sign"
	Err  error  // Underlying cause (may be nil)
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, sentinels[e.Kind])
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, sentinels[e.Kind], e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for this error's Kind.
func (e *Error) Is(target error) bool {
	return sentinels[e.Kind] == target
}

// New wraps err as a failure of the given kind.
// A deadline expiry is always reclassified as KindNetwork, whatever kind the
// caller asked for.
func New(kind Kind, op string, err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		kind = KindNetwork
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Newf builds a failure with a formatted cause.
func Newf(kind Kind, op string, format string, args ...any) *Error {
	return New(kind, op, fmt.Errorf(format, args...))
}

// KindOf returns the Kind of the first *Error in err's chain, or "" when err is
// not a classified failure.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}
