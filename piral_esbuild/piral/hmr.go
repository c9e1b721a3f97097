package piral

import (
	"github.com/smapiot/piral-cli-esbuild/piral_esbuild/bundler"
)

// ReloadClient connects to the dev server's event stream and reloads the page
// on any message.
const ReloadClient = `(() => new WebSocket(location.origin.replace('http', 'ws')+"/$events").onmessage = () => location.reload())();`

// HMRPlugin prefixes every entry chunk with ReloadClient.
func HMRPlugin() bundler.Plugin {
	return bundler.Plugin{
		Name: "hmr-plugin",
		GenerateBundle: func(bundle bundler.Bundle) error {
			for _, out := range bundle {
				if out.Type == bundler.Chunk && out.IsEntry {
					out.Code = append([]byte(ReloadClient), out.Code...)
				}
			}
			return nil
		},
	}
}
