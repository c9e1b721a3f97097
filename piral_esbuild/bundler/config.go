// Package bundler runs esbuild for a Piral instance whose entry point is an
// index.html file, in one-shot or watch mode.
package bundler

import (
	"github.com/evanw/esbuild/pkg/api"
)

// DefaultOutFile is the name of the emitted HTML file when Config.OutFile is empty.
const DefaultOutFile = "index.html"

// Config is everything needed for one bundler invocation.
type Config struct {
	// Root is the directory holding index.html; entry scripts resolve against it.
	Root string
	// OutDir receives all emitted files.
	OutDir string
	// OutFile is the name of the emitted HTML file inside OutDir.
	OutFile string
	// ConfigFile is an optional project config file whose overrides are applied
	// to Options.
	ConfigFile string
	// Debug keeps the build alive and rebuilds on change.
	Debug bool
	// Options are the base esbuild options. Entry points, output location and
	// plugins are filled in by the runner.
	Options api.BuildOptions
	Plugins []Plugin
}

// Plugin extends a build. Esbuild is installed into esbuild itself;
// GenerateBundle sees the complete output before anything is written.
type Plugin struct {
	Name           string
	Esbuild        *api.Plugin
	GenerateBundle func(bundle Bundle) error
}

// OutputType distinguishes code chunks from other emitted files.
type OutputType int

const (
	Asset OutputType = iota
	Chunk
)

func (t OutputType) String() string {
	if t == Chunk {
		return "chunk"
	}
	return "asset"
}

// Output is one emitted file.
type Output struct {
	// FileName is relative to Config.OutDir, using forward slashes.
	FileName string
	Type     OutputType
	// IsEntry is set for chunks produced for an entry point.
	IsEntry bool
	Code    []byte
}

// Bundle maps output file names to their contents.
type Bundle map[string]*Output

// Result summarises a finished (re)build.
type Result struct {
	Errors   []api.Message
	Warnings []api.Message
	// Files lists the written paths, sorted.
	Files []string
}
