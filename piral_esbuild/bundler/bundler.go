package bundler

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"time"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/smapiot/piral-cli-esbuild/piral_esbuild/indexhtml"
	"github.com/smapiot/piral-cli-esbuild/piral_esbuild/userconfig"
)

// ErrNoEntries is returned when index.html references no local module script.
var ErrNoEntries = errors.New("index.html has no local module scripts")

// Esbuild runs builds with esbuild's Go API.
type Esbuild struct {
	// Logger defaults to the global zerolog logger.
	Logger *zerolog.Logger
}

func (r Esbuild) logger() *zerolog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return &log.Logger
}

// Run builds cfg once, or in debug mode starts a watching build. The returned
// handle is non-nil whenever esbuild ran, even if the build failed.
func (r Esbuild) Run(ctx context.Context, cfg Config) (*Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	opts, em, err := prepare(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.Debug {
		return r.watch(ctx, opts, em)
	}
	return r.build(ctx, opts, em)
}

func (r Esbuild) build(ctx context.Context, opts api.BuildOptions, em *emitter) (*Handle, error) {
	start := time.Now()
	h := newHandle(em.outDir, em.outFile, nil)
	defer h.Close()

	result := api.Build(opts)
	res := Result{Errors: result.Errors, Warnings: result.Warnings}
	if len(result.Errors) == 0 {
		files, err := em.emit(ctx, &result)
		if err != nil {
			h.finish(res)
			return h, err
		}
		res.Files = files
	}
	h.finish(res)
	r.report(res, time.Since(start))
	return h, res.Err()
}

// prepare derives the final esbuild options from cfg.
func prepare(cfg Config) (api.BuildOptions, *emitter, error) {
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return api.BuildOptions{}, nil, err
	}
	outDir, err := filepath.Abs(cfg.OutDir)
	if err != nil {
		return api.BuildOptions{}, nil, err
	}
	outFile := cfg.OutFile
	if outFile == "" {
		outFile = DefaultOutFile
	}
	page := filepath.Join(root, "index.html")
	if filepath.Join(outDir, outFile) == page {
		return api.BuildOptions{}, nil, fmt.Errorf("output %s would overwrite the source index.html", page)
	}

	content, err := os.ReadFile(page)
	if err != nil {
		return api.BuildOptions{}, nil, fmt.Errorf("failed to read %s: %w", page, err)
	}
	srcs := indexhtml.ModuleEntries(string(content))
	if len(srcs) == 0 {
		return api.BuildOptions{}, nil, fmt.Errorf("%s: %w", page, ErrNoEntries)
	}

	em := &emitter{
		root:    root,
		outDir:  outDir,
		outFile: outFile,
		plugins: cfg.Plugins,
		entries: make(map[string]string, len(srcs)),
	}
	entryPoints := make([]string, 0, len(srcs))
	for _, src := range srcs {
		key := entryKey(src)
		em.entries[key] = src
		entryPoints = append(entryPoints, filepath.Join(root, filepath.FromSlash(key)))
	}

	opts := cfg.Options
	opts.Define = maps.Clone(opts.Define)
	opts.Alias = maps.Clone(opts.Alias)
	if cfg.ConfigFile != "" {
		env := userconfig.Env{Command: "build", Mode: "production"}
		if cfg.Debug {
			env = userconfig.Env{Command: "serve", Mode: "development"}
		}
		overrides, err := userconfig.Load(cfg.ConfigFile, env)
		if err != nil {
			return api.BuildOptions{}, nil, err
		}
		overrides.Apply(&opts)
	}
	em.base = opts.PublicPath

	opts.EntryPoints = entryPoints
	opts.AbsWorkingDir = root
	opts.Outdir = outDir
	opts.Outfile = ""
	opts.Bundle = true
	opts.Write = false
	opts.Metafile = true
	opts.Splitting = true
	opts.Format = api.FormatESModule
	opts.LogLevel = api.LogLevelSilent
	opts.EntryNames = "[name].[hash]"
	opts.ChunkNames = "chunk.[hash]"
	opts.AssetNames = "[name].[hash]"
	opts.Plugins = append([]api.Plugin{}, opts.Plugins...)
	for _, p := range cfg.Plugins {
		if p.Esbuild != nil {
			opts.Plugins = append(opts.Plugins, *p.Esbuild)
		}
	}
	return opts, em, nil
}
