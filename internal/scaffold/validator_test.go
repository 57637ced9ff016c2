package scaffold

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckExisting(t *testing.T) {
	tests := []struct {
		name      string
		setupFunc func(string)
		wantErr   bool
		errMsg    string
	}{
		{
			name:      "no existing files",
			setupFunc: func(string) {},
		},
		{
			name: "existing thinktank.yml",
			setupFunc: func(dir string) {
				require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFile), []byte("version: '1.0'"), 0644))
			},
			wantErr: true,
			errMsg:  "thinktank init --force",
		},
		{
			name: "thinktank.yml is a directory",
			setupFunc: func(dir string) {
				require.NoError(t, os.Mkdir(filepath.Join(dir, ConfigFile), 0755))
			},
			wantErr: true,
			errMsg:  "is a directory",
		},
		{
			name: "unrelated files are ignored",
			setupFunc: func(dir string) {
				require.NoError(t, os.WriteFile(filepath.Join(dir, "other.yml"), []byte("x"), 0644))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			tt.setupFunc(dir)

			err := CheckExisting(dir)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
				return
			}
			assert.NoError(t, err)
		})
	}
}
