package common

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// PackageJSON holds the package.json fields exposed to the bundled app.
type PackageJSON struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ReadPackageJSON reads root/package.json. A missing file yields the zero value.
func ReadPackageJSON(root string) (PackageJSON, error) {
	var pkg PackageJSON
	data, err := os.ReadFile(filepath.Join(root, "package.json"))
	if errors.Is(err, fs.ErrNotExist) {
		return pkg, nil
	} else if err != nil {
		return pkg, err
	}
	if err := json.Unmarshal(data, &pkg); err != nil {
		return pkg, fmt.Errorf("invalid package.json in %s: %w", root, err)
	}
	return pkg, nil
}

// BuildVariables returns the build information variables of a Piral instance,
// ready to be passed to CommonConfig.
// "BUILD_TIME" → "Mon Oct 19 2026"
// "BUILD_TIME_FULL" → "2026-10-19T16:59:01.000Z"
func (p PackageJSON) BuildVariables(now time.Time) map[string]string {
	now = now.UTC()
	return map[string]string{
		"BUILD_PCKG_NAME":    Quote(p.Name),
		"BUILD_PCKG_VERSION": Quote(p.Version),
		"BUILD_TIME":         Quote(now.Format("Mon Jan 02 2006")),
		"BUILD_TIME_FULL":    Quote(now.Format("2006-01-02T15:04:05.000Z")),
	}
}
