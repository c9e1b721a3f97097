package userconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_DefineConfigObject(t *testing.T) {
	path := writeConfig(t, "vite.config.ts", `
import { defineConfig } from "vite";
import react from "@vitejs/plugin-react";

const version: string = "1.2.3";

export default defineConfig({
  base: "/app/",
  plugins: [react()],
  define: {
    __VERSION__: JSON.stringify(version),
    __FEATURE__: true,
  },
  resolve: {
    alias: { "my-lib": "./src/lib", "./skip": "./nope" },
  },
  build: { target: "es2020" },
  esbuild: { jsxFactory: "h", jsxFragment: "Fragment" },
});
`)

	o, err := Load(path, Env{Command: "build", Mode: "production"})
	require.NoError(t, err)

	assert.Equal(t, "/app/", o.Base)
	assert.Equal(t, `"1.2.3"`, o.Define["__VERSION__"])
	assert.Equal(t, true, o.Define["__FEATURE__"])
	assert.Equal(t, "./src/lib", o.Resolve.Alias["my-lib"])
	assert.Equal(t, targets{"es2020"}, o.Build.Target)
	assert.Equal(t, "h", o.Esbuild.JSXFactory)
}

func TestLoad_FunctionConfig(t *testing.T) {
	path := writeConfig(t, "vite.config.js", `
export default ({ command, mode }) => ({
  define: { __MODE__: JSON.stringify(mode + ":" + command) },
});
`)

	o, err := Load(path, Env{Command: "serve", Mode: "development"})
	require.NoError(t, err)
	assert.Equal(t, `"development:serve"`, o.Define["__MODE__"])
}

func TestLoad_AliasList(t *testing.T) {
	path := writeConfig(t, "vite.config.mjs", `
export default {
  resolve: { alias: [{ find: "lib", replacement: "./src/lib" }, { find: /^~/, replacement: "" }] },
};
`)

	o, err := Load(path, Env{})
	require.NoError(t, err)
	assert.Equal(t, aliases{"lib": "./src/lib"}, o.Resolve.Alias)
}

func TestLoad_EsbuildFalse(t *testing.T) {
	path := writeConfig(t, "vite.config.ts", `
import { defineConfig } from "vite";
export default defineConfig({ esbuild: false, define: { A: "1" } });
`)

	o, err := Load(path, Env{})
	require.NoError(t, err)
	assert.Equal(t, "1", o.Define["A"])
	assert.Equal(t, esbuildOptions{}, o.Esbuild)
}

func TestLoad_AsyncConfig(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name:    "async function",
			content: `export default async ({ mode }) => ({ base: "/" + mode + "/", define: { A: "1" } });`,
		},
		{
			name: "defineConfig with awaited value",
			content: `
import { defineConfig } from "vite";
const load = () => Promise.resolve("1");
export default defineConfig(async ({ mode }) => ({ base: "/" + mode + "/", define: { A: await load() } }));
`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, "vite.config.ts", tt.content)

			o, err := Load(path, Env{Command: "build", Mode: "production"})
			require.NoError(t, err)
			assert.Equal(t, "/production/", o.Base)
			assert.Equal(t, "1", o.Define["A"])
		})
	}
}

func TestLoad_AsyncConfigRejected(t *testing.T) {
	path := writeConfig(t, "vite.config.js", `export default async () => { throw new Error("no config"); };`)

	_, err := Load(path, Env{})
	assert.ErrorContains(t, err, "config promise rejected")
	assert.ErrorContains(t, err, "no config")
}

func TestLoad_SyntaxError(t *testing.T) {
	path := writeConfig(t, "vite.config.ts", `export default {`)

	_, err := Load(path, Env{})
	assert.ErrorContains(t, err, "failed to compile")
}

func TestLoad_RuntimeError(t *testing.T) {
	path := writeConfig(t, "vite.config.js", `throw new Error("boom");`)

	_, err := Load(path, Env{})
	assert.ErrorContains(t, err, "failed to evaluate")
}

func TestOverridesApply(t *testing.T) {
	var o Overrides
	o.Base = "/static/"
	o.Define = map[string]any{"__A__": `"a"`, "__N__": float64(3)}
	o.Resolve.Alias = aliases{"lib": "./src/lib", "./rel": "./x"}
	o.Build.Target = targets{"chrome100", "es2019"}
	o.Esbuild.JSXFragment = "Frag"

	opts := api.BuildOptions{
		Define: map[string]string{"__A__": `"old"`, "__KEEP__": "1"},
		Target: api.ESNext,
	}
	o.Apply(&opts)

	assert.Equal(t, "/static/", opts.PublicPath)
	assert.Equal(t, map[string]string{"__A__": `"a"`, "__N__": "3", "__KEEP__": "1"}, opts.Define)
	assert.Equal(t, map[string]string{"lib": "./src/lib"}, opts.Alias)
	assert.Equal(t, api.ES2019, opts.Target)
	assert.Equal(t, "Frag", opts.JSXFragment)
	assert.Empty(t, opts.JSXFactory)
	assert.Equal(t, api.JSXTransform, opts.JSX)
}

func TestOverridesApply_Empty(t *testing.T) {
	opts := api.BuildOptions{Target: api.ES2022, JSX: api.JSXAutomatic}
	(&Overrides{}).Apply(&opts)

	assert.Equal(t, api.ES2022, opts.Target)
	assert.Equal(t, api.JSXAutomatic, opts.JSX)
	assert.Nil(t, opts.Define)
	assert.Nil(t, opts.Alias)
}
