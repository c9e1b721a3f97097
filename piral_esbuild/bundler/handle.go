package bundler

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/evanw/esbuild/pkg/api"
)

// Handle represents a build. For a one-shot build it is already finished when
// returned; in debug mode it stays live, rebuilding on change, until Close.
type Handle struct {
	OutDir  string
	OutFile string

	mu        sync.Mutex
	result    Result
	listeners []func(Result)

	done      chan struct{}
	closeOnce sync.Once
	dispose   func()
}

func newHandle(outDir, outFile string, dispose func()) *Handle {
	return &Handle{
		OutDir:  outDir,
		OutFile: outFile,
		done:    make(chan struct{}),
		dispose: dispose,
	}
}

// Result returns the outcome of the most recent build.
func (h *Handle) Result() Result {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.result
}

// OnEnd registers fn to be called after every subsequent build.
func (h *Handle) OnEnd(fn func(Result)) {
	h.mu.Lock()
	h.listeners = append(h.listeners, fn)
	h.mu.Unlock()
}

// Done is closed once the handle is closed.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Close stops watching and releases the bundler. It is safe to call more than once.
func (h *Handle) Close() error {
	h.closeOnce.Do(func() {
		if h.dispose != nil {
			h.dispose()
		}
		close(h.done)
	})
	return nil
}

func (h *Handle) finish(res Result) {
	h.mu.Lock()
	h.result = res
	listeners := append([]func(Result){}, h.listeners...)
	h.mu.Unlock()

	for _, fn := range listeners {
		fn(res)
	}
}

// Err summarises the errors of the most recent build, or nil.
func (r Result) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}
	errs := make([]error, 0, len(r.Errors))
	for _, m := range r.Errors {
		errs = append(errs, errors.New(formatMessage(m)))
	}
	return fmt.Errorf("esbuild failed with %d errors: %w", len(r.Errors), errors.Join(errs...))
}

func formatMessage(m api.Message) string {
	var b strings.Builder
	if m.Location != nil {
		fmt.Fprintf(&b, "%s:%d:%d: ", m.Location.File, m.Location.Line, m.Location.Column)
	}
	b.WriteString(m.Text)
	return b.String()
}
