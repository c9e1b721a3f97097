package bundler

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
	"golang.org/x/sync/errgroup"

	"github.com/smapiot/piral-cli-esbuild/piral_esbuild/indexhtml"
)

// emitter turns esbuild output into files on disk: it runs the GenerateBundle
// hooks, writes every output and renders the HTML page that loads them.
type emitter struct {
	root    string // absolute, also esbuild's working directory
	outDir  string // absolute
	outFile string
	// base is the public URL prefix of outDir; empty means relative to the page.
	base    string
	plugins []Plugin
	// entries maps the metafile entry point (root-relative, slash separated)
	// to the src it was referenced by in index.html.
	entries map[string]string
}

// emit writes the outputs of a successful build and returns the written paths.
func (e *emitter) emit(ctx context.Context, result *api.BuildResult) ([]string, error) {
	meta, err := parseMetafile(result.Metafile)
	if err != nil {
		return nil, err
	}

	bundle := make(Bundle, len(result.OutputFiles))
	scripts := map[string]string{}
	var styles []string

	for _, f := range result.OutputFiles {
		name, err := e.relOut(f.Path)
		if err != nil {
			return nil, err
		}
		out := &Output{FileName: name, Code: f.Contents}
		switch filepath.Ext(name) {
		case ".js", ".mjs":
			out.Type = Chunk
		}

		key, err := e.relRoot(f.Path)
		if err != nil {
			return nil, err
		}
		if m, ok := meta.Outputs[key]; ok && out.Type == Chunk {
			if src, isEntry := e.entries[m.EntryPoint]; isEntry {
				out.IsEntry = true
				scripts[src] = e.publicURL(name)
				if m.CSSBundle != "" {
					if css, err := e.relOut(filepath.Join(e.root, filepath.FromSlash(m.CSSBundle))); err == nil {
						styles = append(styles, e.publicURL(css))
					}
				}
			}
		}
		bundle[name] = out
	}

	for _, p := range e.plugins {
		if p.GenerateBundle == nil {
			continue
		}
		if err := p.GenerateBundle(bundle); err != nil {
			return nil, fmt.Errorf("plugin %s: %w", p.Name, err)
		}
	}

	files, err := e.write(ctx, bundle)
	if err != nil {
		return nil, err
	}

	page, err := e.writePage(scripts, styles)
	if err != nil {
		return nil, err
	}
	files = append(files, page)
	sort.Strings(files)
	return files, nil
}

// write stores every output below outDir concurrently.
func (e *emitter) write(ctx context.Context, bundle Bundle) ([]string, error) {
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())

	files := make([]string, 0, len(bundle))
	for _, out := range bundle {
		target := filepath.Join(e.outDir, filepath.FromSlash(out.FileName))
		files = append(files, target)
		code := out.Code
		g.Go(func() error {
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}
			if err := os.WriteFile(target, code, 0644); err != nil {
				return fmt.Errorf("failed to write %s: %w", target, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return files, nil
}

// writePage renders index.html from the source tree into outDir with the entry
// scripts pointing at their chunks.
func (e *emitter) writePage(scripts map[string]string, styles []string) (string, error) {
	src := filepath.Join(e.root, "index.html")
	content, err := os.ReadFile(src)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", src, err)
	}
	sort.Strings(styles)
	page := indexhtml.RewriteEntries(string(content), scripts, styles)

	target := filepath.Join(e.outDir, e.outFile)
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(target, []byte(page), 0644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", target, err)
	}
	return target, nil
}

// publicURL is the URL the emitted page uses for the output file name.
func (e *emitter) publicURL(name string) string {
	if e.base == "" {
		return "./" + name
	}
	return strings.TrimSuffix(e.base, "/") + "/" + name
}

func (e *emitter) relOut(p string) (string, error) {
	rel, err := filepath.Rel(e.outDir, p)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("output %s is outside of %s", p, e.outDir)
	}
	return filepath.ToSlash(rel), nil
}

func (e *emitter) relRoot(p string) (string, error) {
	rel, err := filepath.Rel(e.root, p)
	if err != nil {
		return "", fmt.Errorf("output %s is not below %s: %w", p, e.root, err)
	}
	return filepath.ToSlash(rel), nil
}

// entryKey resolves a script src from index.html to the path esbuild reports
// in the metafile. A leading slash means the project root.
func entryKey(src string) string {
	src = strings.TrimPrefix(src, "/")
	return path.Clean(filepath.ToSlash(src))
}
