// Package userconfig evaluates a project's vite-style config file and maps the
// settings that have an esbuild counterpart onto esbuild build options.
//
// The file is bundled with esbuild into a single script and run in an embedded
// JavaScript VM. Imports of "vite" resolve to a minimal shim; any other package
// import resolves to an inert stub so that plugin factories can be called.
package userconfig

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dop251/goja"
	"github.com/evanw/esbuild/pkg/api"
)

const (
	globalName = "__piral_config__"
	envName    = "__piral_env__"
	resultName = "__piral_result__"
	shimNS     = "piral-config-shim"
)

const viteShim = `export function defineConfig(config) { return config; }
export function loadEnv() { return {}; }
export function mergeConfig(a, b) { return Object.assign({}, a, b); }
`

const packageStub = `var stub = new Proxy(function () { return {}; }, {
  get: function (target, key) { return key === "__esModule" ? false : stub; },
});
module.exports = stub;
`

// Resolves the config: the default export, called with env if it is a function.
// The result may be a promise.
const resolveScript = `(function (mod, env) {
  var config = mod && mod.default !== undefined ? mod.default : mod;
  return typeof config === "function" ? config(env) : config;
})(` + globalName + `, ` + envName + `)`

const encodeScript = `JSON.stringify(` + resultName + ` || {})`

// Env is passed to config files that export a function.
type Env struct {
	Command string `json:"command"`
	Mode    string `json:"mode"`
}

// Load bundles and evaluates the config file at path.
func Load(path string, env Env) (*Overrides, error) {
	code, err := compile(path)
	if err != nil {
		return nil, err
	}

	vm := goja.New()
	if _, err := vm.RunString(code); err != nil {
		return nil, fmt.Errorf("failed to evaluate %s: %w", path, err)
	}
	if err := vm.Set(envName, map[string]any{"command": env.Command, "mode": env.Mode}); err != nil {
		return nil, err
	}
	v, err := vm.RunString(resolveScript)
	if err == nil {
		v, err = settle(v)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config from %s: %w", path, err)
	}
	if err := vm.Set(resultName, v); err != nil {
		return nil, err
	}
	encoded, err := vm.RunString(encodeScript)
	if err != nil {
		return nil, fmt.Errorf("failed to encode config from %s: %w", path, err)
	}

	var o Overrides
	if err := json.Unmarshal([]byte(encoded.String()), &o); err != nil {
		return nil, fmt.Errorf("failed to decode config from %s: %w", path, err)
	}
	return &o, nil
}

// settle unwraps a promise returned by an async config. The VM runs its job
// queue before RunString returns, so a promise that is still pending never
// settles.
func settle(v goja.Value) (goja.Value, error) {
	p, ok := v.Export().(*goja.Promise)
	if !ok {
		return v, nil
	}
	switch p.State() {
	case goja.PromiseStateFulfilled:
		return p.Result(), nil
	case goja.PromiseStateRejected:
		return nil, fmt.Errorf("config promise rejected: %v", p.Result())
	}
	return nil, errors.New("config promise did not settle")
}

func compile(path string) (string, error) {
	result := api.Build(api.BuildOptions{
		EntryPoints: []string{path},
		Bundle:      true,
		Write:       false,
		Format:      api.FormatIIFE,
		GlobalName:  globalName,
		Platform:    api.PlatformNeutral,
		Target:      api.ES2017,
		LogLevel:    api.LogLevelSilent,
		Plugins:     []api.Plugin{shimPlugin()},
	})
	if len(result.Errors) > 0 {
		msgs := make([]string, 0, len(result.Errors))
		for _, e := range result.Errors {
			msgs = append(msgs, e.Text)
		}
		return "", fmt.Errorf("failed to compile %s: %s", path, strings.Join(msgs, "; "))
	}
	if len(result.OutputFiles) == 0 {
		return "", fmt.Errorf("failed to compile %s: no output", path)
	}
	return string(result.OutputFiles[0].Contents), nil
}

// shimPlugin keeps bare package imports out of the config bundle.
func shimPlugin() api.Plugin {
	return api.Plugin{
		Name: "config-shim",
		Setup: func(build api.PluginBuild) {
			build.OnResolve(api.OnResolveOptions{Filter: `^[^./]`},
				func(args api.OnResolveArgs) (api.OnResolveResult, error) {
					if args.Kind == api.ResolveEntryPoint {
						return api.OnResolveResult{}, nil
					}
					return api.OnResolveResult{Path: args.Path, Namespace: shimNS}, nil
				},
			)
			build.OnLoad(api.OnLoadOptions{Filter: `.*`, Namespace: shimNS},
				func(args api.OnLoadArgs) (api.OnLoadResult, error) {
					contents := packageStub
					if args.Path == "vite" {
						contents = viteShim
					}
					return api.OnLoadResult{Contents: &contents, Loader: api.LoaderJS}, nil
				},
			)
		},
	}
}
