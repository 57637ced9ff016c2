package commands

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/dyluth/thinktank/internal/capability"
	"github.com/dyluth/thinktank/internal/chain"
	"github.com/dyluth/thinktank/internal/config"
	"github.com/dyluth/thinktank/internal/failure"
	"github.com/dyluth/thinktank/internal/llm"
	"github.com/dyluth/thinktank/internal/pipeline"
	"github.com/dyluth/thinktank/internal/printer"
	"github.com/dyluth/thinktank/internal/txbuilder"
	"github.com/dyluth/thinktank/internal/vault"
	"github.com/dyluth/thinktank/pkg/blackboard"
)

// metricsNamespace prefixes every Prometheus metric the CLI registers
const metricsNamespace = "thinktank"

// app holds the components built from thinktank.yml
type app struct {
	cfg      *config.ThinktankConfig
	eth      *ethclient.Client
	bundle   capability.Bundle
	vault    *vault.Gateway
	reader   *chain.Reader
	engine   *llm.Engine
	builder  *txbuilder.Builder
	board    *blackboard.Client // nil when no blackboard is configured
	pipeline *pipeline.Orchestrator
}

// loadConfig loads the file named by --config and renders a friendly error
func loadConfig() (*config.ThinktankConfig, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, printer.Error(
			fmt.Sprintf("%s not found or invalid", configPath),
			fmt.Sprintf("Error details: %v", err),
			[]string{"Initialize a configuration first:\n  thinktank init"},
		)
	}
	return cfg, nil
}

// newApp connects to the chain, the capability network and, when configured,
// the blackboard. withPipeline also builds the signer and the orchestrator.
func newApp(ctx context.Context, cfg *config.ThinktankConfig, withPipeline bool) (*app, error) {
	a := &app{cfg: cfg}

	eth, err := chain.Dial(ctx, cfg.Chain.RPCURL)
	if err != nil {
		return nil, printer.Error(
			"chain connection failed",
			err.Error(),
			[]string{fmt.Sprintf("Check chain.rpc_url in %s or set %s", configPath, config.EnvRPCURL)},
		)
	}
	a.eth = eth

	bundle, err := newCapability(cfg.Capability)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.bundle = bundle
	a.vault = vault.New(bundle, bundle, "", logger)
	a.reader = chain.NewReader(eth, a.vault, cfg.Timeouts.RemoteCall, logger)

	backend, err := newBackend(ctx, cfg.LLM)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.engine = llm.NewEngine(backend, cfg.Timeouts.LLMCall, logger)

	if cfg.Blackboard != nil {
		board, err := blackboard.NewClientFromURL(cfg.Blackboard.RedisURL, cfg.Blackboard.Instance)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to create blackboard client: %w", err)
		}
		if err := board.Ping(ctx); err != nil {
			board.Close()
			a.Close()
			return nil, printer.ErrorWithContext(
				"Redis connection failed",
				fmt.Sprintf("Could not connect to the blackboard: %v", err),
				map[string]string{"redis_url": cfg.Blackboard.RedisURL},
				[]string{
					"Start a local blackboard:\n  thinktank up",
					fmt.Sprintf("Remove the blackboard section from %s to run without history and locks", configPath),
				},
			)
		}
		a.board = board
	}

	if withPipeline {
		if err := a.buildPipeline(); err != nil {
			a.Close()
			return nil, err
		}
	}

	return a, nil
}

func (a *app) buildPipeline() error {
	var expected common.Address
	if a.cfg.Signer.ExpectedAddress != "" {
		expected = common.HexToAddress(a.cfg.Signer.ExpectedAddress)
	}

	builder, err := txbuilder.New(a.bundle, txbuilder.Config{
		ChainID:         new(big.Int).SetUint64(a.cfg.Chain.ChainID),
		GasLimit:        a.cfg.Chain.GasLimit,
		GasPrice:        new(big.Int).SetUint64(a.cfg.Chain.GasPrice),
		KeyID:           a.cfg.Signer.KeyID,
		ExpectedAddress: expected,
		Probe:           a.cfg.Signer.ProbeEnabled(),
		SignTimeout:     a.cfg.Timeouts.RemoteCall,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to create transaction builder: %w", err)
	}
	a.builder = builder

	deps := pipeline.Deps{
		Reader:  a.reader,
		Engine:  a.engine,
		Vault:   a.vault,
		Builder: builder,
		Metrics: pipeline.PrometheusMetrics(metricsNamespace),
		Logger:  logger,
	}
	pcfg := pipeline.Config{RemoteCallTimeout: a.cfg.Timeouts.RemoteCall}
	if a.board != nil {
		deps.Locker = a.board
		deps.Recorder = a.board
		pcfg.LockTTL = a.cfg.Blackboard.LockTTL
	}

	orch, err := pipeline.New(deps, pcfg)
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}
	a.pipeline = orch
	return nil
}

// Close releases the chain and blackboard connections
func (a *app) Close() {
	if a.board != nil {
		a.board.Close()
	}
	if a.eth != nil {
		a.eth.Close()
	}
}

func newCapability(cfg config.CapabilityConfig) (capability.Bundle, error) {
	switch cfg.Mode {
	case config.CapabilityModeLocal:
		logger.Warn("using the local capability; keys live in the config file")
		local, err := capability.NewLocal(cfg.LocalKey, cfg.LocalSecret)
		if err != nil {
			return nil, fmt.Errorf("failed to load local capability: %w", err)
		}
		return local, nil
	default:
		client, err := capability.NewHTTPClient(capability.HTTPConfig{
			BaseURL:    cfg.URL,
			APIKey:     cfg.APIKey,
			MaxRetries: 3,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create capability client: %w", err)
		}
		return client, nil
	}
}

func newBackend(ctx context.Context, cfg config.LLMConfig) (llm.Backend, error) {
	var backend llm.Backend
	switch cfg.Provider {
	case config.ProviderGemini:
		gemini, err := llm.NewGeminiBackend(ctx, cfg.APIKey, cfg.Model, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create Gemini backend: %w", err)
		}
		backend = gemini
	default:
		backend = llm.NewOpenAIBackend(llm.OpenAIConfig{
			BaseURL:    cfg.BaseURL,
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			MaxRetries: uint64(cfg.MaxRetries),
		}, logger)
	}
	return llm.PinBaseURL(backend, cfg.BaseURL), nil
}

// tankAddress resolves --tank, falling back to chain.default_tank
func tankAddress(flag string, cfg *config.ThinktankConfig) (common.Address, error) {
	value := flag
	if value == "" {
		value = cfg.Chain.DefaultTank
	}
	if value == "" {
		return common.Address{}, printer.Error(
			"no tank specified",
			"A tank contract address is required.",
			[]string{
				"Pass it explicitly:\n  --tank 0x...",
				fmt.Sprintf("Set chain.default_tank in %s", configPath),
			},
		)
	}
	if !common.IsHexAddress(value) {
		return common.Address{}, printer.Error(
			"invalid tank address",
			fmt.Sprintf("%q is not a valid address.", value),
			nil,
		)
	}
	return common.HexToAddress(value), nil
}

// renderFailure prints a classified error with a suggestion
func renderFailure(action string, err error) error {
	kind := failure.KindOf(err)
	ctx := map[string]string{"kind": string(kind)}

	var suggestions []string
	switch {
	case errors.Is(err, failure.ErrTankBusy):
		suggestions = []string{"Another note is being committed to this tank. Retry shortly."}
	case errors.Is(err, failure.ErrChainRead):
		suggestions = []string{"Check the tank address and chain.rpc_url"}
	case errors.Is(err, failure.ErrDecryption), errors.Is(err, failure.ErrEncryption):
		suggestions = []string{"Check the capability section and that the policy admits this signer"}
	case errors.Is(err, failure.ErrSigning), errors.Is(err, failure.ErrSignatureVerification):
		suggestions = []string{"Check signer.key_id and signer.expected_address"}
	case errors.Is(err, failure.ErrNetwork):
		suggestions = []string{"A remote call timed out. Raise timeouts.remote_call or timeouts.llm_call if this persists."}
	}

	title := action + " failed"
	if kind != "" {
		title = fmt.Sprintf("%s failed: %s", action, kind)
	}
	return printer.ErrorWithContext(title, err.Error(), ctx, suggestions)
}
