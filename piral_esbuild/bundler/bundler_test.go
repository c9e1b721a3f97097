package bundler

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var quiet = zerolog.Nop()

func writeProject(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return root
}

func baseOptions() api.BuildOptions {
	return api.BuildOptions{
		Bundle:   true,
		Platform: api.PlatformBrowser,
		Target:   api.ESNext,
	}
}

func TestRun_Build(t *testing.T) {
	root := writeProject(t, map[string]string{
		"index.html": `<!DOCTYPE html>
<html><head><title>App</title></head>
<body>
<div id="app"></div>
<script src="https://cdn.example.com/polyfill.js"></script>
<script type="module" src="./src/index.js"></script>
</body></html>
`,
		"src/index.js":  "import './style.css';\nimport { greet } from './greet.js';\nconsole.log(greet('piral'));\n",
		"src/greet.js":  "export const greet = (name) => `hello ${name}`;\n",
		"src/style.css": "body { margin: 0; }\n",
	})
	outDir := t.TempDir()

	var seen Bundle
	cfg := Config{
		Root:    root,
		OutDir:  outDir,
		Options: baseOptions(),
		Plugins: []Plugin{{
			Name: "record",
			GenerateBundle: func(b Bundle) error {
				seen = b
				return nil
			},
		}},
	}

	h, err := Esbuild{Logger: &quiet}.Run(context.Background(), cfg)
	require.NoError(t, err)
	require.NotNil(t, h)

	select {
	case <-h.Done():
	default:
		t.Fatal("expected a one-shot build handle to be closed")
	}

	var entry *Output
	for _, out := range seen {
		if out.IsEntry {
			require.Nil(t, entry, "expected exactly one entry chunk")
			entry = out
		}
	}
	require.NotNil(t, entry)
	assert.Equal(t, Chunk, entry.Type)
	assert.True(t, strings.HasPrefix(entry.FileName, "index."))
	assert.Contains(t, string(entry.Code), "hello")

	page, err := os.ReadFile(filepath.Join(outDir, "index.html"))
	require.NoError(t, err)
	html := string(page)
	assert.Contains(t, html, `src="./`+entry.FileName+`"`)
	assert.Contains(t, html, `<script src="https://cdn.example.com/polyfill.js"></script>`)
	assert.Contains(t, html, `<link rel="stylesheet" href="./index.`)
	assert.NotContains(t, html, "./src/index.js")

	res := h.Result()
	assert.Empty(t, res.Errors)
	assert.Contains(t, res.Files, filepath.Join(outDir, "index.html"))
	assert.Contains(t, res.Files, filepath.Join(outDir, entry.FileName))
}

func TestRun_OutFile(t *testing.T) {
	root := writeProject(t, map[string]string{
		"index.html": `<script type="module" src="/main.js"></script>`,
		"main.js":    "console.log(1);\n",
	})
	outDir := t.TempDir()

	_, err := Esbuild{Logger: &quiet}.Run(context.Background(), Config{
		Root:    root,
		OutDir:  outDir,
		OutFile: "app.html",
		Options: baseOptions(),
	})
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(outDir, "app.html"))
	assert.NoFileExists(t, filepath.Join(outDir, "index.html"))
}

func TestRun_RefusesToOverwriteSource(t *testing.T) {
	root := writeProject(t, map[string]string{
		"index.html": `<script type="module" src="./main.js"></script>`,
		"main.js":    "console.log(1);\n",
	})

	_, err := Esbuild{Logger: &quiet}.Run(context.Background(), Config{Root: root, OutDir: root, Options: baseOptions()})
	assert.ErrorContains(t, err, "would overwrite")
}

func TestRun_NoEntries(t *testing.T) {
	root := writeProject(t, map[string]string{
		"index.html": `<script src="./main.js"></script>`,
	})

	h, err := Esbuild{Logger: &quiet}.Run(context.Background(), Config{Root: root, OutDir: t.TempDir(), Options: baseOptions()})
	assert.ErrorIs(t, err, ErrNoEntries)
	assert.Nil(t, h)
}

func TestRun_MissingIndex(t *testing.T) {
	_, err := Esbuild{Logger: &quiet}.Run(context.Background(), Config{Root: t.TempDir(), OutDir: t.TempDir()})
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestRun_CompileError(t *testing.T) {
	root := writeProject(t, map[string]string{
		"index.html": `<script type="module" src="./main.js"></script>`,
		"main.js":    "const = ;\n",
	})

	h, err := Esbuild{Logger: &quiet}.Run(context.Background(), Config{Root: root, OutDir: t.TempDir(), Options: baseOptions()})
	require.Error(t, err)
	require.NotNil(t, h)
	assert.NotEmpty(t, h.Result().Errors)
	assert.Contains(t, err.Error(), "main.js")
}

func TestRun_PluginError(t *testing.T) {
	root := writeProject(t, map[string]string{
		"index.html": `<script type="module" src="./main.js"></script>`,
		"main.js":    "console.log(1);\n",
	})

	_, err := Esbuild{Logger: &quiet}.Run(context.Background(), Config{
		Root:    root,
		OutDir:  t.TempDir(),
		Options: baseOptions(),
		Plugins: []Plugin{{Name: "broken", GenerateBundle: func(Bundle) error { return os.ErrPermission }}},
	})
	assert.ErrorIs(t, err, os.ErrPermission)
	assert.ErrorContains(t, err, "plugin broken")
}

func TestRun_ConfigFile(t *testing.T) {
	root := writeProject(t, map[string]string{
		"index.html":     `<script type="module" src="./main.js"></script>`,
		"main.js":        "console.log(__APP_VERSION__);\n",
		"vite.config.ts": "import { defineConfig } from 'vite';\nexport default defineConfig({ define: { __APP_VERSION__: JSON.stringify('9.9.9') } });\n",
	})
	outDir := t.TempDir()
	opts := baseOptions()
	opts.Define = map[string]string{"__OTHER__": "1"}

	var code string
	_, err := Esbuild{Logger: &quiet}.Run(context.Background(), Config{
		Root:       root,
		OutDir:     outDir,
		ConfigFile: filepath.Join(root, "vite.config.ts"),
		Options:    opts,
		Plugins: []Plugin{{Name: "capture", GenerateBundle: func(b Bundle) error {
			for _, out := range b {
				if out.IsEntry {
					code = string(out.Code)
				}
			}
			return nil
		}}},
	})
	require.NoError(t, err)
	assert.Contains(t, code, "9.9.9")
	assert.Equal(t, map[string]string{"__OTHER__": "1"}, opts.Define, "caller options must not change")
}

func TestRun_ConfigBase(t *testing.T) {
	root := writeProject(t, map[string]string{
		"index.html":     "<html><head></head><body><script type=\"module\" src=\"./main.js\"></script></body></html>",
		"main.js":        "import './style.css';\nconsole.log(1);\n",
		"style.css":      "body { margin: 0; }\n",
		"vite.config.ts": "export default { base: '/app/' };\n",
	})
	outDir := t.TempDir()

	var entry string
	_, err := Esbuild{Logger: &quiet}.Run(context.Background(), Config{
		Root:       root,
		OutDir:     outDir,
		ConfigFile: filepath.Join(root, "vite.config.ts"),
		Options:    baseOptions(),
		Plugins: []Plugin{{Name: "capture", GenerateBundle: func(b Bundle) error {
			for _, out := range b {
				if out.IsEntry {
					entry = out.FileName
				}
			}
			return nil
		}}},
	})
	require.NoError(t, err)

	page, err := os.ReadFile(filepath.Join(outDir, "index.html"))
	require.NoError(t, err)
	assert.Contains(t, string(page), `src="/app/`+entry+`"`)
	assert.Contains(t, string(page), `<link rel="stylesheet" href="/app/main.`)
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Esbuild{Logger: &quiet}.Run(ctx, Config{Root: t.TempDir()})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRun_Watch(t *testing.T) {
	root := writeProject(t, map[string]string{
		"index.html": "<body>\n<script type=\"module\" src=\"./main.js\"></script>\n</body>\n",
		"main.js":    "console.log('first');\n",
	})
	outDir := t.TempDir()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h, err := Esbuild{Logger: &quiet}.Run(ctx, Config{Root: root, OutDir: outDir, Debug: true, Options: baseOptions()})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(h.Result().Files) > 0
	}, 10*time.Second, 50*time.Millisecond)
	assert.FileExists(t, filepath.Join(outDir, "index.html"))

	rebuilt := make(chan Result, 4)
	h.OnEnd(func(res Result) { rebuilt <- res })

	// An added local script in index.html is typed on the fly.
	page := filepath.Join(root, "index.html")
	require.NoError(t, os.WriteFile(page, []byte("<body>\n<script type=\"module\" src=\"./main.js\"></script>\n<script src=\"./extra.js\"></script>\n</body>\n"), 0o644))

	select {
	case res := <-rebuilt:
		assert.Empty(t, res.Errors)
	case <-time.After(10 * time.Second):
		t.Fatal("expected a rebuild after index.html changed")
	}
	content, err := os.ReadFile(page)
	require.NoError(t, err)
	assert.Contains(t, string(content), `<script src="./extra.js" type="module"></script>`)

	cancel()
	select {
	case <-h.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("expected the handle to close when the context is cancelled")
	}
}
