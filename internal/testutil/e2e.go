//go:build integration
// +build integration

// Package testutil starts isolated Docker-backed environments for end-to-end tests.
package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/docker/docker/client"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/dyluth/thinktank/internal/chain"
	"github.com/dyluth/thinktank/internal/chain/chaintest"
	"github.com/dyluth/thinktank/internal/instance"
	"github.com/dyluth/thinktank/internal/llm"
	"github.com/dyluth/thinktank/internal/vault"
	"github.com/dyluth/thinktank/pkg/blackboard"
)

// E2EEnvironment represents an isolated E2E test environment
type E2EEnvironment struct {
	T            *testing.T
	TmpDir       string
	InstanceName string
	DockerClient *client.Client
	Instance     *instance.Info
	Board        *blackboard.Client
	Ctx          context.Context
}

// SetupE2EEnvironment changes into a fresh temp directory and starts a local
// blackboard under a unique instance name. Everything is removed on cleanup.
func SetupE2EEnvironment(t *testing.T) *E2EEnvironment {
	ctx := context.Background()

	tmpDir := t.TempDir()
	t.Chdir(tmpDir)

	// Microseconds keep parallel runs apart
	instanceName := fmt.Sprintf("test-e2e-%s", strings.ReplaceAll(time.Now().Format("20060102-150405.000000"), ".", "-"))

	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	require.NoError(t, err, "Failed to create Docker client")

	env := &E2EEnvironment{
		T:            t,
		TmpDir:       tmpDir,
		InstanceName: instanceName,
		DockerClient: cli,
		Ctx:          ctx,
	}

	t.Cleanup(func() {
		if env.Board != nil {
			env.Board.Close()
		}
		if _, err := instance.Down(context.Background(), cli, instanceName); err != nil {
			t.Logf("cleanup of instance %s failed: %v", instanceName, err)
		}
		cli.Close()
	})

	env.Instance, err = instance.Up(ctx, cli, instanceName, "")
	require.NoError(t, err, "Failed to start instance")
	t.Logf("✓ Instance %s listening at %s", instanceName, env.Instance.RedisURL)

	env.InitializeBlackboardClient()
	return env
}

// InitializeBlackboardClient connects to the blackboard for this environment,
// retrying while Redis starts
func (env *E2EEnvironment) InitializeBlackboardClient() {
	var err error
	env.Board, err = blackboard.NewClientFromURL(env.Instance.RedisURL, env.InstanceName)
	require.NoError(env.T, err, "Failed to create blackboard client")

	for i := 0; i < 30; i++ {
		if err = env.Board.Ping(env.Ctx); err == nil {
			return
		}
		time.Sleep(500 * time.Millisecond)
	}
	require.NoError(env.T, err, "Redis did not become reachable")
}

// WaitForSubmission polls the blackboard for a submission matching match (up to 30 seconds)
func (env *E2EEnvironment) WaitForSubmission(match func(*blackboard.Submission) bool) *blackboard.Submission {
	require.NotNil(env.T, env.Board, "Blackboard client not initialized")

	for i := 0; i < 30; i++ {
		subs, err := env.Board.ListSubmissions(env.Ctx, 0, 0)
		if err == nil {
			for _, s := range subs {
				if match(s) {
					env.T.Logf("✓ Found submission %s in state %s", s.ID, s.State)
					return s
				}
			}
		}
		time.Sleep(1 * time.Second)
	}

	require.Fail(env.T, "Submission not found within 30 seconds")
	return nil
}

// SeedTank returns a contract caller serving a tank whose digest is encrypted
// through gw under policyIDs
func SeedTank(t *testing.T, gw *vault.Gateway, tank common.Address, idea, digest, llmURL string, policyIDs []string) *chaintest.Caller {
	t.Helper()
	require.Len(t, policyIDs, 3, "evaluate, digest and hint actions")

	caller := chaintest.NewCaller()
	caller.Set(tank, chain.MethodIdea, idea)
	caller.Set(tank, chain.MethodLLMURL, llmURL)
	caller.Set(tank, chain.MethodEvaluateAction, policyIDs[0])
	caller.Set(tank, chain.MethodDigestAction, policyIDs[1])
	caller.Set(tank, chain.MethodHintAction, policyIDs[2])

	if digest != "" {
		ct, err := gw.Encrypt(context.Background(), policyIDs, []byte(digest))
		require.NoError(t, err)
		caller.Set(tank, chain.MethodDigest, ct.Data)
		caller.Set(tank, chain.MethodDigestHash, ct.Hash)
	}
	return caller
}

// ScriptedModel returns a backend that scores every note with score and
// verdict and merges accepted notes into newDigest
func ScriptedModel(score float64, verdict, newDigest string) llm.Backend {
	return llm.BackendFunc(func(ctx context.Context, req llm.Request) (string, error) {
		switch {
		case strings.Contains(req.System, "evaluator"):
			return fmt.Sprintf(`{"evaluation":{"criteria":{"relevance":%[1]v,"novelty":%[1]v,"depth":%[1]v,"clarity":%[1]v,"impact":%[1]v},"weightedScore":%[1]v,"verdict":%[2]q,"justification":"scripted"}}`,
				score, verdict), nil
		case strings.Contains(req.System, "digest"):
			raw, err := json.Marshal(map[string]string{"digest": newDigest})
			return string(raw), err
		}
		return "", fmt.Errorf("unexpected prompt")
	})
}
