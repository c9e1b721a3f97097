package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/thought-machine/go-flags"

	"github.com/smapiot/piral-cli-esbuild/piral_esbuild/bundler"
	"github.com/smapiot/piral-cli-esbuild/piral_esbuild/devserver"
	"github.com/smapiot/piral-cli-esbuild/piral_esbuild/host"
	"github.com/smapiot/piral-cli-esbuild/piral_esbuild/piral"
)

type BuildFlags struct {
	Entry      string   `short:"e" long:"entry" default:"src/index.html" description:"Entry index.html of the Piral instance"`
	Root       string   `short:"r" long:"root" default:"." description:"Project root holding package.json and vite.config.*"`
	OutDir     string   `short:"o" long:"out-dir" default:"dist/release" description:"Output directory"`
	OutFile    string   `long:"out-file" default:"index.html" description:"Name of the emitted HTML file"`
	Emulator   bool     `long:"emulator" description:"Build the emulator (development mode)"`
	SourceMaps bool     `long:"source-maps" description:"Emit linked source maps"`
	Minify     bool     `long:"minify" description:"Minify output"`
	External   []string `long:"external" description:"Shared dependencies provided to pilets"`
	Bundler    string   `long:"bundler" default:"esbuild" description:"Registered bundler to use"`
}

func (f BuildFlags) options() host.Options {
	return host.Options{
		EntryFiles: f.Entry,
		OutDir:     f.OutDir,
		OutFile:    f.OutFile,
		Root:       f.Root,
		Emulator:   f.Emulator,
		SourceMaps: f.SourceMaps,
		Minify:     f.Minify,
		Externals:  f.External,
	}
}

var opts = struct {
	Usage string

	LogLevel string `long:"log-level" default:"info" description:"Log level: debug, info, warn, error"`

	Build struct {
		BuildFlags
	} `command:"build" alias:"b" description:"Build the Piral instance once"`

	Watch struct {
		BuildFlags
	} `command:"watch" alias:"w" description:"Rebuild the Piral instance on every change"`

	Debug struct {
		BuildFlags
		Port  int  `short:"p" long:"port" default:"1234" description:"HTTP port"`
		NoHMR bool `long:"no-hmr" description:"Do not reload the browser after rebuilds"`
	} `command:"debug" alias:"d" description:"Serve the Piral instance with live reload"`
}{
	Usage: `
piral_esbuild builds Piral instances with esbuild.

It provides three operations:
  - build: Bundle the instance from its index.html into the output directory
  - watch: Like build, but keep rebuilding on changes
  - debug: Watch and serve the output, reloading connected browsers after each rebuild
`,
}

var subCommands = map[string]func(ctx context.Context, cli *host.CLI) error{
	"build": func(ctx context.Context, cli *host.CLI) error {
		_, err := cli.Create(ctx, opts.Build.Bundler, host.BuildPiral, opts.Build.options())
		return err
	},
	"watch": func(ctx context.Context, cli *host.CLI) error {
		o := opts.Watch.options()
		o.Watch = true
		h, err := cli.Create(ctx, opts.Watch.Bundler, host.WatchPiral, o)
		if err != nil {
			return err
		}
		<-h.Done()
		return nil
	},
	"debug": func(ctx context.Context, cli *host.CLI) error {
		o := opts.Debug.options()
		o.Watch = true
		o.HMR = !opts.Debug.NoHMR
		h, err := cli.Create(ctx, opts.Debug.Bundler, host.DebugPiral, o)
		if err != nil {
			return err
		}
		defer h.Close()
		return serve(ctx, h, opts.Debug.Port)
	},
}

// serve exposes the output of h until ctx is cancelled.
func serve(ctx context.Context, h *bundler.Handle, port int) error {
	srv := devserver.New(h.OutDir, h.OutFile, &log.Logger)
	h.OnEnd(func(res bundler.Result) {
		if len(res.Errors) == 0 {
			srv.Notify()
		}
	})

	httpServer := &http.Server{
		Addr:              net.JoinHostPort("", strconv.Itoa(port)),
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()
	log.Info().Str("url", fmt.Sprintf("http://localhost:%d", port)).Msg("Serving Piral instance")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	p := flags.NewParser(&opts, flags.Default)
	p.LongDescription = opts.Usage
	if _, err := p.Parse(); err != nil {
		os.Exit(1)
	}
	if p.Active == nil {
		p.WriteHelp(os.Stderr)
		os.Exit(1)
	}

	level, err := zerolog.ParseLevel(opts.LogLevel)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid log level")
	}
	zerolog.SetGlobalLevel(level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cli := host.New(piral.Register)
	if err := subCommands[p.Active.Name](ctx, cli); err != nil {
		stop()
		log.Fatal().Err(err).Str("command", p.Active.Name).Msg("Failed")
	}
}
