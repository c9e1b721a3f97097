// Package host implements the bundler side of the Piral CLI plugin contract:
// plugins register named bundlers, each offering debug, watch and build
// handlers that the CLI dispatches to by name.
package host

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/smapiot/piral-cli-esbuild/piral_esbuild/bundler"
)

// Options are the build options the CLI passes to a handler.
type Options struct {
	// EntryFiles is the path of the entry index.html.
	EntryFiles string
	OutDir     string
	OutFile    string
	// Root is the project root, where package.json and the bundler config live.
	Root       string
	Emulator   bool
	SourceMaps bool
	Minify     bool
	// Externals are the shared dependency names.
	Externals []string
	Watch     bool
	HMR       bool
}

// Handler creates one build.
type Handler interface {
	Create(ctx context.Context, opts Options) (*bundler.Handle, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, opts Options) (*bundler.Handle, error)

func (f HandlerFunc) Create(ctx context.Context, opts Options) (*bundler.Handle, error) {
	return f(ctx, opts)
}

// Action names a handler slot.
type Action string

const (
	DebugPiral Action = "debug-piral"
	WatchPiral Action = "watch-piral"
	BuildPiral Action = "build-piral"
)

// Actions are the handlers a bundler provides. Nil entries are unsupported.
type Actions struct {
	DebugPiral Handler
	WatchPiral Handler
	BuildPiral Handler
}

func (a Actions) handler(action Action) Handler {
	switch action {
	case DebugPiral:
		return a.DebugPiral
	case WatchPiral:
		return a.WatchPiral
	case BuildPiral:
		return a.BuildPiral
	}
	return nil
}

// Plugin registers itself with a CLI.
type Plugin func(cli *CLI)

// CLI holds the registered bundlers.
type CLI struct {
	mu       sync.RWMutex
	bundlers map[string]Actions
}

// New returns a CLI with the given plugins applied.
func New(plugins ...Plugin) *CLI {
	c := &CLI{bundlers: map[string]Actions{}}
	for _, p := range plugins {
		p(c)
	}
	return c
}

// WithBundler registers actions under name, replacing any earlier registration.
func (c *CLI) WithBundler(name string, actions Actions) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bundlers[name] = actions
}

// Bundlers lists the registered bundler names.
func (c *CLI) Bundlers() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.bundlers))
	for name := range c.bundlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Create dispatches to the handler registered for bundler and action.
func (c *CLI) Create(ctx context.Context, bundlerName string, action Action, opts Options) (*bundler.Handle, error) {
	c.mu.RLock()
	actions, ok := c.bundlers[bundlerName]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("bundler %q is not registered (available: %v)", bundlerName, c.Bundlers())
	}
	h := actions.handler(action)
	if h == nil {
		return nil, fmt.Errorf("bundler %q does not support %s", bundlerName, action)
	}
	return h.Create(ctx, opts)
}
