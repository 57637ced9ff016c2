package scaffold

import (
	"fmt"
	"os"
	"path/filepath"
)

// CheckExisting returns an error if dir already holds a thinktank.yml
func CheckExisting(dir string) error {
	path := filepath.Join(dir, ConfigFile)
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to check %s: %w", ConfigFile, err)
	}

	if info.IsDir() {
		return fmt.Errorf("%s exists and is a directory", path)
	}

	return fmt.Errorf("project already initialized\n\nFound existing: %s\n\nUse 'thinktank init --force' to reinitialize (this will overwrite existing configuration)", ConfigFile)
}
