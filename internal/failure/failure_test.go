package failure

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_IsMatchesSentinel(t *testing.T) {
	err := New(KindSigning, "txbuilder.sign", errors.New("node unreachable"))

	assert.True(t, errors.Is(err, ErrSigning))
	assert.False(t, errors.Is(err, ErrEncryption))
	assert.Contains(t, err.Error(), "txbuilder.sign")
	assert.Contains(t, err.Error(), "node unreachable")
}

func TestError_WrappedChain(t *testing.T) {
	inner := New(KindChainRead, "chain.Read", errors.New("eth_call reverted"))
	wrapped := fmt.Errorf("snapshot failed: %w", inner)

	assert.True(t, errors.Is(wrapped, ErrChainRead))
	assert.Equal(t, KindChainRead, KindOf(wrapped))
}

func TestNew_DeadlineBecomesNetwork(t *testing.T) {
	err := New(KindEncryption, "vault.Encrypt", fmt.Errorf("post: %w", context.DeadlineExceeded))

	assert.Equal(t, KindNetwork, err.Kind)
	assert.True(t, errors.Is(err, ErrNetwork))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestKindOf_Unclassified(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
	assert.Equal(t, Kind(""), KindOf(nil))
}

func TestError_NilCause(t *testing.T) {
	err := &Error{Kind: KindDigestUnchanged, Op: "llm.Synthesize"}
	assert.Equal(t, "llm.Synthesize: digest unchanged", err.Error())
}
