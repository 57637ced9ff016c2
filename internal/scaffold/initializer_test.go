package scaffold

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyluth/thinktank/internal/capability"
	"github.com/dyluth/thinktank/internal/config"
)

func TestInitialize(t *testing.T) {
	tests := []struct {
		name      string
		opts      Options
		setupFunc func(string)
		wantErr   bool
		errMsg    string
		wantMode  string
	}{
		{
			name:     "fresh local initialization",
			opts:     Options{},
			wantMode: config.CapabilityModeLocal,
		},
		{
			name:     "http mode with key ID",
			opts:     Options{CapabilityMode: "http", KeyID: "threshold-key-1", CapabilityURL: "https://gateway.example"},
			wantMode: config.CapabilityModeHTTP,
		},
		{
			name:    "http mode without key ID",
			opts:    Options{CapabilityMode: "http"},
			wantErr: true,
			errMsg:  "key ID is required",
		},
		{
			name:    "unknown mode",
			opts:    Options{CapabilityMode: "carrier-pigeon"},
			wantErr: true,
			errMsg:  "invalid capability mode",
		},
		{
			name: "existing config without force",
			setupFunc: func(dir string) {
				os.WriteFile(filepath.Join(dir, ConfigFile), []byte("old content"), 0644)
			},
			wantErr: true,
			errMsg:  "already initialized",
		},
		{
			name: "force replaces existing config",
			opts: Options{Force: true},
			setupFunc: func(dir string) {
				os.WriteFile(filepath.Join(dir, ConfigFile), []byte("old content"), 0644)
			},
			wantMode: config.CapabilityModeLocal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			if tt.setupFunc != nil {
				tt.setupFunc(dir)
			}

			var out bytes.Buffer
			res, err := Initialize(dir, tt.opts, &out)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantMode, res.Mode)

			cfg, err := config.Load(res.Path)
			require.NoError(t, err, "generated file must load")
			assert.Equal(t, tt.wantMode, cfg.Capability.Mode)
			assert.Equal(t, uint64(DefaultChainID), cfg.Chain.ChainID)
			require.NotNil(t, cfg.Blackboard)

			info, err := os.Stat(res.Path)
			require.NoError(t, err)
			assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

			if tt.opts.Force {
				assert.Contains(t, out.String(), "Removing existing")
			}
		})
	}
}

func TestInitialize_LocalMaterialIsConsistent(t *testing.T) {
	dir := t.TempDir()

	res, err := Initialize(dir, Options{RPCURL: "http://chain:8545", ChainID: 31337}, &bytes.Buffer{})
	require.NoError(t, err)

	cfg, err := config.Load(res.Path)
	require.NoError(t, err)
	assert.Equal(t, "http://chain:8545", cfg.Chain.RPCURL)
	assert.Equal(t, uint64(31337), cfg.Chain.ChainID)

	local, err := capability.NewLocal(cfg.Capability.LocalKey, cfg.Capability.LocalSecret)
	require.NoError(t, err)
	assert.Equal(t, local.KeyID(), cfg.Signer.KeyID)
	assert.Equal(t, local.Address(), common.HexToAddress(cfg.Signer.ExpectedAddress))
	assert.Equal(t, local.Address().Hex(), res.SignerAddress)
}

func TestInitialize_FreshMaterialEachRun(t *testing.T) {
	first, err := Initialize(t.TempDir(), Options{}, &bytes.Buffer{})
	require.NoError(t, err)
	second, err := Initialize(t.TempDir(), Options{}, &bytes.Buffer{})
	require.NoError(t, err)

	assert.NotEqual(t, first.SignerAddress, second.SignerAddress)
}

func TestPrintSuccess(t *testing.T) {
	var out bytes.Buffer
	PrintSuccess(&out, &Result{Mode: "local", SignerAddress: "0xabc"})

	assert.Contains(t, out.String(), "Successfully initialized thinktank")
	assert.Contains(t, out.String(), "0xabc")
	assert.Contains(t, out.String(), "thinktank up")
}
