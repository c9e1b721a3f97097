// Package configfile locates a project's own bundler configuration file.
package configfile

import (
	"fmt"
	"os"
	"path/filepath"
)

// Names lists the recognised config file names in priority order.
var Names = []string{
	"vite.config.ts",
	"vite.config.js",
	"vite.config.mts",
	"vite.config.mjs",
}

// Resolve returns the absolute path of the first config file in root, or ""
// if root has none. Only root itself is searched.
func Resolve(root string) (string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return "", fmt.Errorf("failed to list %s: %w", root, err)
	}

	present := make(map[string]bool, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			present[e.Name()] = true
		}
	}

	for _, name := range Names {
		if present[name] {
			return filepath.Abs(filepath.Join(root, name))
		}
	}
	return "", nil
}
