package cli

import (
	"time"

	"github.com/pipelinedk/pdk/internal/watch"
)

// newWatchLoop adapts Options' flat flags into a watch.Loop.
func newWatchLoop(roots []string, opts *Options, logger watch.Logger, run watch.RunFunc) *watch.Loop {
	debounce := time.Duration(opts.WatchDebounceMS) * time.Millisecond
	return watch.NewLoop(roots, nil, debounce, run, logger)
}
