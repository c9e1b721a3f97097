// Package procenv is a process-wide cache of environment settings that are
// initialised once and then read for the rest of the process.
package procenv

import (
	"os"
	"sync"
)

var (
	mu       sync.Mutex
	settings = map[string]string{}
)

// GetOrInit returns the value of the environment variable name. If it is not
// set, fallback is written into the process environment and returned. The
// first call for a name fixes its value; later calls return the cached value.
func GetOrInit(name, fallback string) string {
	mu.Lock()
	defer mu.Unlock()

	if v, ok := settings[name]; ok {
		return v
	}
	v, ok := os.LookupEnv(name)
	if !ok {
		v = fallback
		os.Setenv(name, v)
	}
	settings[name] = v
	return v
}
