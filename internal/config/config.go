package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

// DefaultFileName is the configuration file looked up in the working directory.
const DefaultFileName = "thinktank.yml"

// Capability modes
const (
	CapabilityModeHTTP  = "http"  // Remote threshold network behind an HTTP gateway
	CapabilityModeLocal = "local" // In-process key and secret, for development only
)

// LLM providers
const (
	ProviderOpenAI = "openai" // OpenAI-compatible chat completions at the tank's llm_url
	ProviderGemini = "gemini" // Google Gemini through google.golang.org/genai
)

// ThinktankConfig represents the top-level thinktank.yml configuration
type ThinktankConfig struct {
	Version    string            `yaml:"version"`
	Chain      ChainConfig       `yaml:"chain"`
	Signer     SignerConfig      `yaml:"signer"`
	Capability CapabilityConfig  `yaml:"capability"`
	LLM        LLMConfig         `yaml:"llm"`
	Timeouts   *TimeoutsConfig   `yaml:"timeouts,omitempty"`
	Blackboard *BlackboardConfig `yaml:"blackboard,omitempty"` // Optional: enables tank locks and the submission ledger
	Server     *ServerConfig     `yaml:"server,omitempty"`
}

// ChainConfig holds the per-deployment chain constants.
// gas_limit and gas_price are fixed for every addNote transaction the builder emits.
type ChainConfig struct {
	RPCURL      string `yaml:"rpc_url"`
	ChainID     uint64 `yaml:"chain_id"`
	GasLimit    uint64 `yaml:"gas_limit,omitempty"`
	GasPrice    uint64 `yaml:"gas_price,omitempty"`    // wei
	DefaultTank string `yaml:"default_tank,omitempty"` // Tank contract used when a command omits --tank
}

// SignerConfig identifies the threshold key that authorizes addNote
type SignerConfig struct {
	KeyID           string `yaml:"key_id"`
	ExpectedAddress string `yaml:"expected_address,omitempty"` // If empty, discovered from the probe signature
	Probe           *bool  `yaml:"probe,omitempty"`            // Default: true
}

// CapabilityConfig selects the encrypt/decrypt/sign capability implementation
type CapabilityConfig struct {
	Mode        string `yaml:"mode"`
	URL         string `yaml:"url,omitempty"`
	APIKey      string `yaml:"api_key,omitempty"`
	LocalKey    string `yaml:"local_key,omitempty"`    // hex secp256k1 private key (mode=local)
	LocalSecret string `yaml:"local_secret,omitempty"` // hex 32-byte symmetric secret (mode=local)
}

// LLMConfig specifies how evaluation and digest prompts reach the model
type LLMConfig struct {
	Provider   string `yaml:"provider,omitempty"` // Default: openai
	Model      string `yaml:"model,omitempty"`
	APIKey     string `yaml:"api_key,omitempty"`
	BaseURL    string `yaml:"base_url,omitempty"` // Overrides the llm_url read from the tank
	MaxRetries int    `yaml:"max_retries,omitempty"`
}

// TimeoutsConfig bounds every remote call made by one pipeline run
type TimeoutsConfig struct {
	RemoteCall time.Duration `yaml:"remote_call,omitempty"` // chain reads, encrypt/decrypt, sign
	LLMCall    time.Duration `yaml:"llm_call,omitempty"`
}

// BlackboardConfig points at the Redis instance holding submissions and tank locks
type BlackboardConfig struct {
	RedisURL string        `yaml:"redis_url"`
	Instance string        `yaml:"instance,omitempty"` // Default: "default"
	LockTTL  time.Duration `yaml:"lock_ttl,omitempty"` // Default: 2m
}

// ServerConfig specifies the HTTP API listener
type ServerConfig struct {
	Addr string `yaml:"addr,omitempty"` // Default: ":8080"
}

// Defaults applied by Validate when fields are omitted
const (
	DefaultGasLimit          = 1_000_000
	DefaultGasPrice          = 1_000_000 // 0.001 gwei, a testnet-scale flat price
	DefaultRemoteCallTimeout = 30 * time.Second
	DefaultLLMCallTimeout    = 2 * time.Minute
	DefaultLockTTL           = 2 * time.Minute
	DefaultInstance          = "default"
	DefaultServerAddr        = ":8080"
	DefaultLLMModel          = "gpt-4o-mini"
	DefaultGeminiModel       = "gemini-2.5-flash"
	DefaultMaxRetries        = 3
)

// Environment variables that override values from thinktank.yml
const (
	EnvRPCURL        = "THINKTANK_RPC_URL"
	EnvRedisURL      = "THINKTANK_REDIS_URL"
	EnvCapabilityURL = "THINKTANK_CAPABILITY_URL"
	EnvCapabilityKey = "THINKTANK_CAPABILITY_API_KEY"
	EnvLLMAPIKey     = "THINKTANK_LLM_API_KEY"
	EnvSignerKeyID   = "THINKTANK_SIGNER_KEY_ID"
)

// Validate performs strict validation on the configuration and fills defaults
func (c *ThinktankConfig) Validate() error {
	// Required: version
	if c.Version != "1.0" {
		return fmt.Errorf("unsupported version: %s (expected: 1.0)", c.Version)
	}

	if err := c.Chain.Validate(); err != nil {
		return err
	}

	if err := c.Signer.Validate(); err != nil {
		return err
	}

	if err := c.Capability.Validate(); err != nil {
		return err
	}

	if err := c.LLM.Validate(); err != nil {
		return err
	}

	if c.Timeouts == nil {
		c.Timeouts = &TimeoutsConfig{}
	}
	if c.Timeouts.RemoteCall == 0 {
		c.Timeouts.RemoteCall = DefaultRemoteCallTimeout
	}
	if c.Timeouts.LLMCall == 0 {
		c.Timeouts.LLMCall = DefaultLLMCallTimeout
	}
	if c.Timeouts.RemoteCall < 0 || c.Timeouts.LLMCall < 0 {
		return fmt.Errorf("timeouts must be positive")
	}

	if c.Blackboard != nil {
		if c.Blackboard.RedisURL == "" {
			return fmt.Errorf("blackboard.redis_url is required when blackboard is configured")
		}
		if c.Blackboard.Instance == "" {
			c.Blackboard.Instance = DefaultInstance
		}
		if c.Blackboard.LockTTL == 0 {
			c.Blackboard.LockTTL = DefaultLockTTL
		}
		if c.Blackboard.LockTTL < time.Second {
			return fmt.Errorf("blackboard.lock_ttl must be at least 1s, got %s", c.Blackboard.LockTTL)
		}
	}

	if c.Server == nil {
		c.Server = &ServerConfig{}
	}
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultServerAddr
	}

	return nil
}

// Validate checks the chain section and applies gas defaults
func (c *ChainConfig) Validate() error {
	if c.RPCURL == "" {
		return fmt.Errorf("chain.rpc_url is required")
	}

	if c.ChainID == 0 {
		return fmt.Errorf("chain.chain_id is required and must be non-zero")
	}

	if c.GasLimit == 0 {
		c.GasLimit = DefaultGasLimit
	}

	if c.GasPrice == 0 {
		c.GasPrice = DefaultGasPrice
	}

	if c.DefaultTank != "" && !common.IsHexAddress(c.DefaultTank) {
		return fmt.Errorf("chain.default_tank is not a valid address: %s", c.DefaultTank)
	}

	return nil
}

// Validate checks the signer section
func (s *SignerConfig) Validate() error {
	if s.KeyID == "" {
		return fmt.Errorf("signer.key_id is required")
	}

	if s.ExpectedAddress != "" && !common.IsHexAddress(s.ExpectedAddress) {
		return fmt.Errorf("signer.expected_address is not a valid address: %s", s.ExpectedAddress)
	}

	if s.Probe == nil {
		probe := true
		s.Probe = &probe
	}

	if !*s.Probe && s.ExpectedAddress == "" {
		return fmt.Errorf("signer.expected_address is required when signer.probe is false")
	}

	return nil
}

// ProbeEnabled reports whether the builder issues the probe signature
func (s *SignerConfig) ProbeEnabled() bool {
	return s.Probe == nil || *s.Probe
}

// Validate checks the capability section
func (c *CapabilityConfig) Validate() error {
	switch c.Mode {
	case CapabilityModeHTTP:
		if c.URL == "" {
			return fmt.Errorf("capability.url is required when mode is 'http'")
		}
	case CapabilityModeLocal:
		if c.LocalKey == "" {
			return fmt.Errorf("capability.local_key is required when mode is 'local'")
		}
		if c.LocalSecret == "" {
			return fmt.Errorf("capability.local_secret is required when mode is 'local'")
		}
	default:
		return fmt.Errorf("invalid capability.mode: %q (must be 'http' or 'local')", c.Mode)
	}

	return nil
}

// Validate checks the llm section and applies defaults
func (l *LLMConfig) Validate() error {
	if l.Provider == "" {
		l.Provider = ProviderOpenAI
	}

	switch l.Provider {
	case ProviderOpenAI:
		if l.Model == "" {
			l.Model = DefaultLLMModel
		}
	case ProviderGemini:
		if l.Model == "" {
			l.Model = DefaultGeminiModel
		}
		if l.APIKey == "" {
			return fmt.Errorf("llm.api_key is required for provider 'gemini'")
		}
	default:
		return fmt.Errorf("invalid llm.provider: %q (must be 'openai' or 'gemini')", l.Provider)
	}

	if l.MaxRetries == 0 {
		l.MaxRetries = DefaultMaxRetries
	}
	if l.MaxRetries < 0 {
		return fmt.Errorf("llm.max_retries must be >= 0, got %d", l.MaxRetries)
	}

	return nil
}

// applyEnv overlays non-empty environment variables onto the parsed file
func (c *ThinktankConfig) applyEnv() {
	if v := os.Getenv(EnvRPCURL); v != "" {
		c.Chain.RPCURL = v
	}
	if v := os.Getenv(EnvCapabilityURL); v != "" {
		c.Capability.URL = v
	}
	if v := os.Getenv(EnvCapabilityKey); v != "" {
		c.Capability.APIKey = v
	}
	if v := os.Getenv(EnvLLMAPIKey); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv(EnvSignerKeyID); v != "" {
		c.Signer.KeyID = v
	}
	if v := os.Getenv(EnvRedisURL); v != "" {
		if c.Blackboard == nil {
			c.Blackboard = &BlackboardConfig{}
		}
		c.Blackboard.RedisURL = v
	}
}

// Parse decodes, overlays the environment and validates configuration bytes
func Parse(data []byte) (*ThinktankConfig, error) {
	var config ThinktankConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	config.applyEnv()
	config.Capability.Mode = strings.ToLower(config.Capability.Mode)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Load reads and validates thinktank.yml from the specified path
func Load(path string) (*ThinktankConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	return Parse(data)
}
