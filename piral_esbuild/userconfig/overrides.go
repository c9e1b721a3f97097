package userconfig

import (
	"encoding/json"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
)

// Overrides are the config file settings understood by the esbuild runner.
type Overrides struct {
	Base    string         `json:"base"`
	Define  map[string]any `json:"define"`
	Resolve struct {
		Alias aliases `json:"alias"`
	} `json:"resolve"`
	Build struct {
		Target targets `json:"target"`
	} `json:"build"`
	Esbuild esbuildOptions `json:"esbuild"`
}

// esbuildOptions also accepts a boolean; `esbuild: false` sets nothing.
type esbuildOptions struct {
	JSXFactory  string `json:"jsxFactory"`
	JSXFragment string `json:"jsxFragment"`
}

func (e *esbuildOptions) UnmarshalJSON(data []byte) error {
	var enabled bool
	if err := json.Unmarshal(data, &enabled); err == nil {
		*e = esbuildOptions{}
		return nil
	}
	type plain esbuildOptions
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*e = esbuildOptions(p)
	return nil
}

// aliases accepts both the object and the [{find, replacement}] forms.
type aliases map[string]string

func (a *aliases) UnmarshalJSON(data []byte) error {
	m := map[string]string{}
	if err := json.Unmarshal(data, &m); err == nil {
		*a = m
		return nil
	}
	var list []struct {
		Find        any    `json:"find"`
		Replacement string `json:"replacement"`
	}
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	for _, entry := range list {
		// RegExp finds serialise to {} and cannot be expressed as esbuild aliases.
		if find, ok := entry.Find.(string); ok {
			m[find] = entry.Replacement
		}
	}
	*a = m
	return nil
}

// targets accepts a single target or a list of targets.
type targets []string

func (t *targets) UnmarshalJSON(data []byte) error {
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		*t = targets{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*t = many
	return nil
}

var esTargets = map[string]api.Target{
	"esnext":  api.ESNext,
	"modules": api.ES2020,
	"es2015":  api.ES2015,
	"es2016":  api.ES2016,
	"es2017":  api.ES2017,
	"es2018":  api.ES2018,
	"es2019":  api.ES2019,
	"es2020":  api.ES2020,
	"es2021":  api.ES2021,
	"es2022":  api.ES2022,
}

// Apply merges the overrides into opts. Settings from the config file win over
// values already present.
func (o *Overrides) Apply(opts *api.BuildOptions) {
	if o.Base != "" {
		opts.PublicPath = o.Base
	}

	if len(o.Define) > 0 {
		if opts.Define == nil {
			opts.Define = map[string]string{}
		}
		for k, v := range o.Define {
			if s, ok := v.(string); ok {
				opts.Define[k] = s
				continue
			}
			if b, err := json.Marshal(v); err == nil {
				opts.Define[k] = string(b)
			}
		}
	}

	for find, replacement := range o.Resolve.Alias {
		// esbuild only aliases package paths.
		if find == "" || strings.HasPrefix(find, ".") || strings.HasPrefix(find, "/") {
			continue
		}
		if opts.Alias == nil {
			opts.Alias = map[string]string{}
		}
		opts.Alias[find] = replacement
	}

	for _, t := range o.Build.Target {
		if target, ok := esTargets[strings.ToLower(t)]; ok {
			opts.Target = target
			break
		}
	}

	// esbuild ignores the factories with the automatic runtime.
	if o.Esbuild.JSXFactory != "" || o.Esbuild.JSXFragment != "" {
		opts.JSX = api.JSXTransform
	}
	if o.Esbuild.JSXFactory != "" {
		opts.JSXFactory = o.Esbuild.JSXFactory
	}
	if o.Esbuild.JSXFragment != "" {
		opts.JSXFragment = o.Esbuild.JSXFragment
	}
}
