package scaffold

import (
	"bytes"
	"embed"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/template"

	"github.com/dyluth/thinktank/internal/capability"
	"github.com/dyluth/thinktank/internal/config"
)

//go:embed templates/*
var templatesFS embed.FS

// ConfigFile is the file written by Initialize
const ConfigFile = "thinktank.yml"

// Defaults used when Options leaves a field empty
const (
	DefaultRPCURL        = "http://localhost:8545"
	DefaultChainID       = 1337
	DefaultCapabilityURL = "http://localhost:7070"
	DefaultRedisURL      = "redis://localhost:6379"
)

// Options controls what Initialize writes
type Options struct {
	Force          bool
	CapabilityMode string // "local" (default) or "http"
	RPCURL         string
	ChainID        uint64
	CapabilityURL  string
	KeyID          string // Required for http mode; generated for local mode
	RedisURL       string
}

// Result describes a completed initialization
type Result struct {
	Path          string
	Mode          string
	SignerAddress string // Set for local mode only
}

type templateData struct {
	RPCURL          string
	ChainID         uint64
	Mode            string
	KeyID           string
	ExpectedAddress string
	LocalKey        string
	LocalSecret     string
	CapabilityURL   string
	RedisURL        string
}

// Initialize writes a thinktank.yml into dir.
// If opts.Force is true an existing thinktank.yml is replaced.
func Initialize(dir string, opts Options, out io.Writer) (*Result, error) {
	if opts.Force {
		if err := handleForce(dir, out); err != nil {
			return nil, err
		}
	} else if err := CheckExisting(dir); err != nil {
		return nil, err
	}

	data, err := buildTemplateData(opts)
	if err != nil {
		return nil, err
	}

	content, err := renderConfig(data)
	if err != nil {
		return nil, err
	}

	// Refuse to write anything the loader would reject
	if _, err := config.Parse(content); err != nil {
		return nil, fmt.Errorf("generated configuration is invalid: %w", err)
	}

	path := filepath.Join(dir, ConfigFile)
	// Local mode embeds key material
	if err := os.WriteFile(path, content, 0600); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", ConfigFile, err)
	}

	return &Result{Path: path, Mode: data.Mode, SignerAddress: data.ExpectedAddress}, nil
}

func handleForce(dir string, out io.Writer) error {
	path := filepath.Join(dir, ConfigFile)
	if _, err := os.Stat(path); err == nil {
		fmt.Fprintf(out, "⚠️  Removing existing %s...\n", ConfigFile)
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("failed to remove %s: %w", ConfigFile, err)
		}
	}
	return nil
}

func buildTemplateData(opts Options) (templateData, error) {
	data := templateData{
		RPCURL:        opts.RPCURL,
		ChainID:       opts.ChainID,
		Mode:          opts.CapabilityMode,
		KeyID:         opts.KeyID,
		CapabilityURL: opts.CapabilityURL,
		RedisURL:      opts.RedisURL,
	}
	if data.RPCURL == "" {
		data.RPCURL = DefaultRPCURL
	}
	if data.ChainID == 0 {
		data.ChainID = DefaultChainID
	}
	if data.RedisURL == "" {
		data.RedisURL = DefaultRedisURL
	}
	if data.Mode == "" {
		data.Mode = config.CapabilityModeLocal
	}

	switch data.Mode {
	case config.CapabilityModeLocal:
		local, err := capability.GenerateLocal()
		if err != nil {
			return templateData{}, fmt.Errorf("failed to generate local capability: %w", err)
		}
		data.KeyID = local.KeyID()
		data.ExpectedAddress = local.Address().Hex()
		data.LocalKey = local.KeyHex()
		data.LocalSecret = local.SecretHex()
	case config.CapabilityModeHTTP:
		if data.KeyID == "" {
			return templateData{}, fmt.Errorf("a signer key ID is required for capability mode 'http'")
		}
		if data.CapabilityURL == "" {
			data.CapabilityURL = DefaultCapabilityURL
		}
	default:
		return templateData{}, fmt.Errorf("invalid capability mode: %q (must be 'http' or 'local')", data.Mode)
	}

	return data, nil
}

func renderConfig(data templateData) ([]byte, error) {
	raw, err := templatesFS.ReadFile("templates/thinktank.yml.tmpl")
	if err != nil {
		return nil, fmt.Errorf("failed to read %s template: %w", ConfigFile, err)
	}

	tmpl, err := template.New(ConfigFile).Parse(string(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s template: %w", ConfigFile, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("failed to render %s: %w", ConfigFile, err)
	}
	return buf.Bytes(), nil
}

// PrintSuccess prints the success message with next steps
func PrintSuccess(out io.Writer, res *Result) {
	fmt.Fprintln(out, "\n✅ Successfully initialized thinktank!")
	fmt.Fprintln(out, "\nCreated:")
	fmt.Fprintf(out, "  ✓ %s (capability mode: %s)\n", ConfigFile, res.Mode)
	if res.SignerAddress != "" {
		fmt.Fprintf(out, "\nLocal signer address: %s\n", res.SignerAddress)
		fmt.Fprintln(out, "  Fund this address on your dev chain before submitting.")
	}
	fmt.Fprintln(out, "\nNext steps:")
	fmt.Fprintf(out, "  1. Add %s to your .gitignore file\n", ConfigFile)
	fmt.Fprintln(out, "  2. Set THINKTANK_LLM_API_KEY or edit the llm section")
	fmt.Fprintln(out, "  3. Run 'thinktank up' to start a local blackboard")
	fmt.Fprintln(out, "  4. Run 'thinktank submit --tank <address> \"your idea\"'")
}
