//go:build govips && cgo

package pipeline

import (
	"sync"

	"github.com/davidbyttow/govips/v2/vips"
)

var (
	runtimeMu      sync.Mutex
	runtimeStarted bool
)

// Startup initializes libvips once per process. A single photo is at most
// 5 MiB encoded, so the operation cache is kept small.
func Startup() error {
	runtimeMu.Lock()
	defer runtimeMu.Unlock()
	if runtimeStarted {
		return nil
	}

	vips.LoggingSettings(nil, vips.LogLevelWarning)
	vips.Startup(&vips.Config{
		ConcurrencyLevel: 1,
		MaxCacheFiles:    0,
		MaxCacheMem:      64 * 1024 * 1024,
		MaxCacheSize:     50,
	})
	runtimeStarted = true
	return nil
}

func Shutdown() {
	runtimeMu.Lock()
	defer runtimeMu.Unlock()
	if !runtimeStarted {
		return
	}
	vips.Shutdown()
	runtimeStarted = false
}

func newTransformer() (Transformer, error) {
	if err := Startup(); err != nil {
		return nil, err
	}
	return govipsTransformer{}, nil
}
