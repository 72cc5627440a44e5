// Package watch implements a file-change-triggered re-execution loop:
// recursive directory watching, pattern-based exclusion, debounced
// re-runs, and a graceful Ctrl-C drain that reports a run summary.
package watch

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
)

// defaultExcludes are always skipped, in addition to any user-configured
// extras.
var defaultExcludes = []string{".git", "node_modules", ".pdk"}

var binaryExtensions = map[string]bool{
	".exe": true, ".dll": true, ".so": true, ".dylib": true,
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true,
	".zip": true, ".tar": true, ".gz": true, ".o": true, ".a": true,
}

// RunFunc executes one pipeline run and reports whether it succeeded. It
// must honor ctx cancellation so a graceful drain can cut a run short.
type RunFunc func(ctx context.Context) (success bool, err error)

// Logger is the narrow logging surface Loop needs.
type Logger interface {
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
}

// nopLogger discards every record.
type nopLogger struct{}

func (nopLogger) Info(string, map[string]interface{})  {}
func (nopLogger) Warn(string, map[string]interface{})  {}
func (nopLogger) Error(string, map[string]interface{}) {}

// Summary reports aggregate watch-session statistics, emitted on graceful
// exit.
type Summary struct {
	TotalRuns int
	Successes int
	Failures  int
	WallTime  time.Duration
}

// Loop watches a set of roots for file changes and invokes run once per
// debounced burst, queuing at most one pending run while one is in flight.
type Loop struct {
	Roots           []string
	ExcludePatterns []string
	Debounce        time.Duration
	Run             RunFunc
	Logger          Logger

	watcher *fsnotify.Watcher
}

// NewLoop builds a Loop. debounce defaults to
// pdkmodel.DefaultWatchDebounce-equivalent (500ms) when zero.
func NewLoop(roots []string, excludePatterns []string, debounce time.Duration, run RunFunc, logger Logger) *Loop {
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	if logger == nil {
		logger = nopLogger{}
	}
	return &Loop{Roots: roots, ExcludePatterns: excludePatterns, Debounce: debounce, Run: run, Logger: logger}
}

// Start watches all roots and blocks until ctx is cancelled or an interrupt
// signal arrives, at which point it drains gracefully: stop accepting new
// triggers, cancel any in-flight run, and return the session Summary.
func (l *Loop) Start(ctx context.Context) (Summary, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return Summary{}, fmt.Errorf("creating file watcher: %w", err)
	}
	l.watcher = watcher
	defer watcher.Close()

	for _, root := range l.Roots {
		if err := l.addRecursively(root); err != nil {
			return Summary{}, fmt.Errorf("watching %s: %w", root, err)
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	debouncer := newDebouncer(l.Debounce)
	defer debouncer.Stop()

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	var mu sync.Mutex
	var runInFlight bool
	var pending bool
	done := make(chan struct{})

	summary := Summary{}
	start := time.Now()

	triggerRun := func() {
		mu.Lock()
		if runInFlight {
			pending = true
			mu.Unlock()
			return
		}
		runInFlight = true
		mu.Unlock()

		go func() {
			for {
				success, err := l.Run(runCtx)
				mu.Lock()
				summary.TotalRuns++
				if success {
					summary.Successes++
				} else {
					summary.Failures++
				}
				if err != nil {
					l.Logger.Warn("watched run failed", map[string]interface{}{"error": err.Error()})
				}
				if pending {
					pending = false
					mu.Unlock()
					continue
				}
				runInFlight = false
				mu.Unlock()
				select {
				case done <- struct{}{}:
				default:
				}
				return
			}
		}()
	}

	for {
		select {
		case <-ctx.Done():
			summary.WallTime = time.Since(start)
			return summary, nil

		case sig := <-sigChan:
			l.Logger.Info("watch loop received interrupt, draining", map[string]interface{}{"signal": sig.String()})
			cancelRun()
			summary.WallTime = time.Since(start)
			return summary, nil

		case event, ok := <-watcher.Events:
			if !ok {
				summary.WallTime = time.Since(start)
				return summary, nil
			}
			if l.shouldIgnore(event.Name) {
				continue
			}
			debouncer.Trigger()

		case err, ok := <-watcher.Errors:
			if !ok {
				summary.WallTime = time.Since(start)
				return summary, nil
			}
			l.Logger.Warn("watcher error", map[string]interface{}{"error": err.Error()})

		case <-debouncer.Fired():
			triggerRun()

		case <-done:
		}
	}
}

func (l *Loop) addRecursively(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return nil
		}
		if l.shouldIgnore(path) {
			return filepath.SkipDir
		}
		if err := l.watcher.Add(path); err != nil {
			l.Logger.Warn("failed to watch directory", map[string]interface{}{"path": path, "error": err.Error()})
		}
		return nil
	})
}

// shouldIgnore reports whether path falls under a default- or
// user-configured exclude, or carries a binary file extension.
func (l *Loop) shouldIgnore(path string) bool {
	parts := strings.Split(filepath.ToSlash(path), "/")
	for _, part := range parts {
		for _, ex := range defaultExcludes {
			if part == ex {
				return true
			}
		}
	}
	if binaryExtensions[strings.ToLower(filepath.Ext(path))] {
		return true
	}
	for _, pattern := range l.ExcludePatterns {
		if matched, _ := filepath.Match(pattern, filepath.Base(path)); matched {
			return true
		}
		if strings.Contains(path, pattern) {
			return true
		}
	}
	return false
}
