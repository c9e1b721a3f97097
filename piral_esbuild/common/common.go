package common

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/smapiot/piral-cli-esbuild/piral_esbuild/bundler"
)

// EnvPrefix selects the .env variables exposed as import.meta.env.*.
const EnvPrefix = "PIRAL_"

// Loaders maps file extensions to esbuild loaders.
var Loaders = map[string]api.Loader{
	".js":    api.LoaderJS,
	".jsx":   api.LoaderJSX,
	".ts":    api.LoaderTS,
	".tsx":   api.LoaderTSX,
	".json":  api.LoaderJSON,
	".css":   api.LoaderCSS,
	".mjs":   api.LoaderJS,
	".cjs":   api.LoaderJS,
	".md":    api.LoaderText,
	".woff":  api.LoaderFile,
	".woff2": api.LoaderFile,
	".ttf":   api.LoaderFile,
	".eot":   api.LoaderFile,
	".svg":   api.LoaderFile,
	".png":   api.LoaderFile,
	".jpg":   api.LoaderFile,
	".jpeg":  api.LoaderFile,
	".gif":   api.LoaderFile,
	".webp":  api.LoaderFile,
}

// CommonConfig returns the base bundler configuration shared by all Piral
// instance builds. develop selects the development mode used by emulator
// builds. Each entry of variables is exposed as process.env.<name>; values must
// be JavaScript expressions, typically JSON strings.
func CommonConfig(root, outDir string, develop, sourceMaps, minify bool, variables map[string]string) (bundler.Config, error) {
	mode := "production"
	if develop {
		mode = "development"
	}

	define := map[string]string{
		"process.env.NODE_ENV": Quote(mode),
		"import.meta.env.MODE": Quote(mode),
		"import.meta.env.DEV":  fmt.Sprint(develop),
		"import.meta.env.PROD": fmt.Sprint(!develop),
	}
	for name, value := range variables {
		define["process.env."+name] = value
	}

	envDefines, err := LoadEnvFiles(filepath.Join(root, ".env"), mode, EnvPrefix)
	if err != nil {
		return bundler.Config{}, fmt.Errorf("failed to load env files: %w", err)
	}
	for k, v := range envDefines {
		if _, ok := define[k]; !ok {
			define[k] = v
		}
	}

	sourcemap := api.SourceMapNone
	if sourceMaps {
		sourcemap = api.SourceMapLinked
	}

	raw := RawImportPlugin()
	return bundler.Config{
		Root:   root,
		OutDir: outDir,
		Options: api.BuildOptions{
			Bundle:            true,
			Format:            api.FormatESModule,
			Platform:          api.PlatformBrowser,
			Target:            api.ESNext,
			Loader:            Loaders,
			Define:            define,
			MinifySyntax:      minify,
			MinifyWhitespace:  minify,
			MinifyIdentifiers: minify,
			Sourcemap:         sourcemap,
			JSX:               api.JSXAutomatic,
		},
		Plugins: []bundler.Plugin{{Name: raw.Name, Esbuild: &raw}},
	}, nil
}

// RawImportPlugin returns an esbuild plugin for imports with a ?raw suffix.
// The imported file is returned as a string, like Vite's ?raw imports.
func RawImportPlugin() api.Plugin {
	return api.Plugin{
		Name: "raw-import",
		Setup: func(build api.PluginBuild) {
			build.OnResolve(api.OnResolveOptions{Filter: `\?raw$`},
				func(args api.OnResolveArgs) (api.OnResolveResult, error) {
					cleanPath := strings.TrimSuffix(args.Path, "?raw")
					resolved := cleanPath
					if !filepath.IsAbs(cleanPath) {
						resolved = filepath.Join(args.ResolveDir, cleanPath)
					}
					return api.OnResolveResult{
						Path:      resolved,
						Namespace: "raw",
					}, nil
				},
			)
			build.OnLoad(api.OnLoadOptions{Filter: `.*`, Namespace: "raw"},
				func(args api.OnLoadArgs) (api.OnLoadResult, error) {
					content, err := os.ReadFile(args.Path)
					if err != nil {
						return api.OnLoadResult{}, err
					}
					text := string(content)
					return api.OnLoadResult{
						Contents:   &text,
						Loader:     api.LoaderText,
						WatchFiles: []string{args.Path},
					}, nil
				},
			)
		},
	}
}

// Quote returns s as a JavaScript string literal, the form esbuild defines expect.
func Quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
