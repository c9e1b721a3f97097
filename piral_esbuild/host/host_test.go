package host

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smapiot/piral-cli-esbuild/piral_esbuild/bundler"
)

func TestCLI_Dispatch(t *testing.T) {
	var got []Action
	record := func(action Action) Handler {
		return HandlerFunc(func(_ context.Context, opts Options) (*bundler.Handle, error) {
			got = append(got, action)
			assert.Equal(t, "dist", opts.OutDir)
			return &bundler.Handle{OutDir: opts.OutDir}, nil
		})
	}

	cli := New(func(c *CLI) {
		c.WithBundler("esbuild", Actions{
			DebugPiral: record(DebugPiral),
			WatchPiral: record(WatchPiral),
			BuildPiral: record(BuildPiral),
		})
	})

	for _, action := range []Action{BuildPiral, WatchPiral, DebugPiral} {
		h, err := cli.Create(context.Background(), "esbuild", action, Options{OutDir: "dist"})
		require.NoError(t, err)
		assert.Equal(t, "dist", h.OutDir)
	}
	assert.Equal(t, []Action{BuildPiral, WatchPiral, DebugPiral}, got)
	assert.Equal(t, []string{"esbuild"}, cli.Bundlers())
}

func TestCLI_UnknownBundler(t *testing.T) {
	cli := New()
	_, err := cli.Create(context.Background(), "webpack", BuildPiral, Options{})
	assert.ErrorContains(t, err, `bundler "webpack" is not registered`)
}

func TestCLI_UnsupportedAction(t *testing.T) {
	cli := New(func(c *CLI) {
		c.WithBundler("partial", Actions{BuildPiral: HandlerFunc(func(context.Context, Options) (*bundler.Handle, error) {
			return nil, nil
		})})
	})

	_, err := cli.Create(context.Background(), "partial", DebugPiral, Options{})
	assert.ErrorContains(t, err, "does not support debug-piral")
}
