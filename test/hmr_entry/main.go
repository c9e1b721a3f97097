package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/smapiot/piral-cli-esbuild/piral_esbuild/bundler"
	"github.com/smapiot/piral-cli-esbuild/piral_esbuild/host"
	"github.com/smapiot/piral-cli-esbuild/piral_esbuild/piral"
)

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}

func main() {
	tmpDir, err := os.MkdirTemp("", "hmr-entry-test")
	if err != nil {
		fail("%v", err)
	}
	defer os.RemoveAll(tmpDir)

	// A Piral instance whose index.html still uses a classic local script.
	files := map[string]string{
		"src/index.html": `<!DOCTYPE html>
<html><head><title>Shell</title></head>
<body>
<div id="app"></div>
<script src="./index.tsx"></script>
</body></html>
`,
		"src/index.tsx":  "import { layout } from './layout';\nconsole.log(layout, process.env.SHARED_DEPENDENCIES);\n",
		"src/layout.ts":  "export const layout = 'default';\n",
		"vite.config.ts": "import { defineConfig } from 'vite';\nexport default defineConfig({ define: { __SHELL__: '\"hmr\"' } });\n",
	}
	for name, content := range files {
		path := filepath.Join(tmpDir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			fail("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			fail("write %s: %v", name, err)
		}
	}

	outDir := filepath.Join(tmpDir, "dist")
	opts := host.Options{
		EntryFiles: filepath.Join(tmpDir, "src", "index.html"),
		OutDir:     outDir,
		Root:       tmpDir,
		Externals:  []string{"react", "piral-core"},
		HMR:        true,
	}

	// --- Test 1: the entry chunk starts with the reload client ---

	var entries []*bundler.Output
	capture := bundler.Plugin{Name: "capture", GenerateBundle: func(b bundler.Bundle) error {
		for _, out := range b {
			if out.IsEntry && out.Type == bundler.Chunk {
				entries = append(entries, out)
			}
		}
		return nil
	}}
	h, err := piral.Handler{Runner: appendPlugin{capture}}.Create(context.Background(), opts)
	if err != nil {
		fail("test 1: build: %v", err)
	}
	if len(entries) != 1 {
		fail("test 1: expected one entry chunk, got %d", len(entries))
	}
	code := string(entries[0].Code)
	if !strings.HasPrefix(code, piral.ReloadClient) {
		fail("test 1: entry chunk does not start with the reload client:\n%s", code)
	}
	if !strings.Contains(code, `"react,piral-core"`) {
		fail("test 1: shared dependencies were not defined:\n%s", code)
	}
	fmt.Println("  PASS: test 1: reload client prepended to the entry chunk")

	// --- Test 2: the source and emitted index.html reference the module ---

	src, err := os.ReadFile(opts.EntryFiles)
	if err != nil {
		fail("test 2: read source html: %v", err)
	}
	if !strings.Contains(string(src), `<script src="./index.tsx" type="module"></script>`) {
		fail("test 2: source index.html was not transformed:\n%s", src)
	}
	page, err := os.ReadFile(filepath.Join(h.OutDir, bundler.DefaultOutFile))
	if err != nil {
		fail("test 2: read emitted html: %v", err)
	}
	if !strings.Contains(string(page), `src="./`+entries[0].FileName+`"`) {
		fail("test 2: emitted index.html does not load %s:\n%s", entries[0].FileName, page)
	}
	fmt.Println("  PASS: test 2: index.html rewritten in place and emitted with hashed entry")

	fmt.Println("hmr_entry: all tests passed")
}

// appendPlugin runs esbuild with an extra plugin after the configured ones.
type appendPlugin struct {
	plugin bundler.Plugin
}

func (a appendPlugin) Run(ctx context.Context, cfg bundler.Config) (*bundler.Handle, error) {
	cfg.Plugins = append(cfg.Plugins, a.plugin)
	return bundler.Esbuild{}.Run(ctx, cfg)
}
