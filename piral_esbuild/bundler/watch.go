package bundler

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/fsnotify/fsnotify"

	"github.com/smapiot/piral-cli-esbuild/piral_esbuild/indexhtml"
)

// pageDebounce groups the burst of events editors produce when saving.
const pageDebounce = 100 * time.Millisecond

// watch starts an incremental build that rebuilds on source changes. Output is
// emitted after every successful rebuild.
func (r Esbuild) watch(ctx context.Context, opts api.BuildOptions, em *emitter) (*Handle, error) {
	watchCtx, cancel := context.WithCancel(ctx)

	var bctx api.BuildContext
	h := newHandle(em.outDir, em.outFile, func() {
		cancel()
		if bctx != nil {
			bctx.Dispose()
		}
	})

	opts.Plugins = append(opts.Plugins, api.Plugin{
		Name: "piral-emit",
		Setup: func(build api.PluginBuild) {
			var start time.Time
			build.OnStart(func() (api.OnStartResult, error) {
				start = time.Now()
				return api.OnStartResult{}, nil
			})
			build.OnEnd(func(result *api.BuildResult) (api.OnEndResult, error) {
				res := Result{Errors: result.Errors, Warnings: result.Warnings}
				if len(result.Errors) == 0 {
					files, err := em.emit(watchCtx, result)
					if err != nil {
						res.Errors = append(res.Errors, api.Message{Text: err.Error()})
					}
					res.Files = files
				}
				r.report(res, time.Since(start))
				h.finish(res)
				return api.OnEndResult{}, nil
			})
		},
	})

	var ctxErr *api.ContextError
	bctx, ctxErr = api.Context(opts)
	if ctxErr != nil {
		cancel()
		return nil, fmt.Errorf("esbuild context creation failed: %v", ctxErr)
	}

	if err := bctx.Watch(api.WatchOptions{}); err != nil {
		h.Close()
		return nil, fmt.Errorf("esbuild watch failed: %v", err)
	}

	go r.watchPage(watchCtx, em.root, bctx)
	go func() {
		select {
		case <-ctx.Done():
			h.Close()
		case <-h.Done():
		}
	}()

	r.logger().Info().Str("root", em.root).Str("out", em.outDir).Msg("Watching for changes")
	return h, nil
}

// watchPage keeps index.html transformed while the build is watching and
// rebuilds when it changes, since esbuild does not see it as an input.
func (r Esbuild) watchPage(ctx context.Context, root string, bctx api.BuildContext) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		r.logger().Warn().Err(err).Msg("Cannot watch index.html")
		return
	}
	defer fsw.Close()

	// Watch the directory to catch atomic saves.
	if err := fsw.Add(root); err != nil {
		r.logger().Warn().Err(err).Str("dir", root).Msg("Cannot watch index.html")
		return
	}

	page := filepath.Join(root, "index.html")
	last, _ := os.ReadFile(page)
	reloadCh := make(chan struct{}, 1)
	var debounceTimer *time.Timer

	for {
		select {
		case <-ctx.Done():
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return

		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != "index.html" {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(pageDebounce, func() {
				select {
				case reloadCh <- struct{}{}:
				default:
				}
			})

		case <-reloadCh:
			content, err := os.ReadFile(page)
			if err != nil {
				r.logger().Warn().Err(err).Msg("Cannot read index.html")
				continue
			}
			if bytes.Equal(content, last) {
				continue
			}
			transformed := indexhtml.Transform(string(content))
			if transformed != string(content) {
				if err := os.WriteFile(page, []byte(transformed), 0644); err != nil {
					r.logger().Warn().Err(err).Msg("Cannot rewrite index.html")
					continue
				}
			}
			last = []byte(transformed)
			r.logger().Debug().Str("file", page).Msg("index.html changed, rebuilding")
			bctx.Rebuild()

		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			r.logger().Warn().Err(err).Msg("fsnotify error")
		}
	}
}

func (r Esbuild) report(res Result, took time.Duration) {
	l := r.logger()
	for _, m := range res.Warnings {
		l.Warn().Msg(formatMessage(m))
	}
	for _, m := range res.Errors {
		l.Error().Msg(formatMessage(m))
	}
	if len(res.Errors) > 0 {
		l.Error().Int("errors", len(res.Errors)).Dur("took", took).Msg("Build failed")
		return
	}
	l.Info().Int("files", len(res.Files)).Int("warnings", len(res.Warnings)).Dur("took", took).Msg("Build finished")
}
