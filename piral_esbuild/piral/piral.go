// Package piral assembles the bundler configuration for a Piral instance and
// registers the debug, watch and build handlers with the host CLI.
package piral

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/smapiot/piral-cli-esbuild/piral_esbuild/bundler"
	"github.com/smapiot/piral-cli-esbuild/piral_esbuild/common"
	"github.com/smapiot/piral-cli-esbuild/piral_esbuild/configfile"
	"github.com/smapiot/piral-cli-esbuild/piral_esbuild/host"
	"github.com/smapiot/piral-cli-esbuild/piral_esbuild/indexhtml"
	"github.com/smapiot/piral-cli-esbuild/piral_esbuild/procenv"
)

// BundlerName is the name the handlers are registered under.
const BundlerName = "esbuild"

// Runner invokes the bundler.
type Runner interface {
	Run(ctx context.Context, cfg bundler.Config) (*bundler.Handle, error)
}

// Handler builds a Piral instance. The zero value runs esbuild.
type Handler struct {
	Runner Runner
}

func (h Handler) runner() Runner {
	if h.Runner == nil {
		return bundler.Esbuild{}
	}
	return h.Runner
}

// Create assembles the configuration for opts, prepares the entry index.html
// in place and hands over to the runner.
func (h Handler) Create(ctx context.Context, opts host.Options) (*bundler.Handle, error) {
	rootDir := filepath.Dir(opts.EntryFiles)

	pkg, err := common.ReadPackageJSON(opts.Root)
	if err != nil {
		return nil, err
	}
	variables := pkg.BuildVariables(time.Now())
	variables["DEBUG_PIRAL"] = common.Quote(procenv.GetOrInit("DEBUG_PIRAL", ""))
	variables["DEBUG_PILET"] = common.Quote(procenv.GetOrInit("DEBUG_PILET", ""))
	variables["SHARED_DEPENDENCIES"] = common.Quote(strings.Join(opts.Externals, ","))

	cfg, err := common.CommonConfig(rootDir, opts.OutDir, opts.Emulator, opts.SourceMaps, opts.Minify, variables)
	if err != nil {
		return nil, err
	}

	if opts.HMR {
		cfg.Plugins = append(cfg.Plugins, HMRPlugin())
	}

	configFile, err := configfile.Resolve(opts.Root)
	if err != nil {
		return nil, err
	}

	if err := prepareIndex(filepath.Join(rootDir, "index.html")); err != nil {
		return nil, err
	}

	cfg.ConfigFile = configFile
	cfg.Debug = opts.Watch
	cfg.OutFile = opts.OutFile
	return h.runner().Run(ctx, cfg)
}

// prepareIndex rewrites the local scripts of index.html to ES modules.
func prepareIndex(path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read entry html: %w", err)
	}
	if err := os.WriteFile(path, []byte(indexhtml.Transform(string(content))), 0644); err != nil {
		return fmt.Errorf("failed to write entry html: %w", err)
	}
	return nil
}

// Register adds the Piral handlers to cli.
func Register(cli *host.CLI) {
	h := Handler{}
	cli.WithBundler(BundlerName, host.Actions{
		DebugPiral: h,
		WatchPiral: h,
		BuildPiral: h,
	})
}
