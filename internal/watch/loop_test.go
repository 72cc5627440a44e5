package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoop_ShouldIgnore_DefaultExcludes(t *testing.T) {
	l := NewLoop(nil, nil, 0, nil, nil)
	assert.True(t, l.shouldIgnore(filepath.Join("repo", ".git", "HEAD")))
	assert.True(t, l.shouldIgnore(filepath.Join("repo", "node_modules", "pkg", "index.js")))
	assert.True(t, l.shouldIgnore(filepath.Join("repo", ".pdk", "cache", "x")))
	assert.False(t, l.shouldIgnore(filepath.Join("repo", "src", "main.go")))
}

func TestLoop_ShouldIgnore_BinaryExtension(t *testing.T) {
	l := NewLoop(nil, nil, 0, nil, nil)
	assert.True(t, l.shouldIgnore("bin/app.exe"))
	assert.True(t, l.shouldIgnore("assets/logo.png"))
	assert.False(t, l.shouldIgnore("cmd/app/main.go"))
}

func TestLoop_ShouldIgnore_UserPattern(t *testing.T) {
	l := NewLoop(nil, []string{"*.tmp", "vendor"}, 0, nil, nil)
	assert.True(t, l.shouldIgnore("build/output.tmp"))
	assert.True(t, l.shouldIgnore(filepath.Join("repo", "vendor", "mod", "file.go")))
	assert.False(t, l.shouldIgnore("pkg/real.go"))
}

func TestLoop_Start_TriggersRunOnFileChange(t *testing.T) {
	dir := t.TempDir()

	var runs int32
	run := func(ctx context.Context) (bool, error) {
		atomic.AddInt32(&runs, 1)
		return true, nil
	}

	l := NewLoop([]string{dir}, nil, 20*time.Millisecond, run, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	resultCh := make(chan Summary, 1)
	go func() {
		summary, err := l.Start(ctx)
		require.NoError(t, err)
		resultCh <- summary
	}()

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "changed.go"), []byte("package x"), 0o644))

	time.Sleep(300 * time.Millisecond)
	cancel()

	summary := <-resultCh
	assert.GreaterOrEqual(t, summary.TotalRuns, 1)
	assert.GreaterOrEqual(t, int(atomic.LoadInt32(&runs)), 1)
}

func TestLoop_Start_IgnoresExcludedDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".git"), 0o755))

	var runs int32
	run := func(ctx context.Context) (bool, error) {
		atomic.AddInt32(&runs, 1)
		return true, nil
	}

	l := NewLoop([]string{dir}, nil, 20*time.Millisecond, run, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	resultCh := make(chan Summary, 1)
	go func() {
		summary, _ := l.Start(ctx)
		resultCh <- summary
	}()

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".git", "HEAD"), []byte("ref: refs/heads/main"), 0o644))

	time.Sleep(300 * time.Millisecond)
	cancel()

	<-resultCh
	assert.Equal(t, int32(0), atomic.LoadInt32(&runs))
}

func TestDebouncer_CoalescesBurst(t *testing.T) {
	d := newDebouncer(30 * time.Millisecond)
	defer d.Stop()

	d.Trigger()
	d.Trigger()
	d.Trigger()

	select {
	case <-d.Fired():
	case <-time.After(200 * time.Millisecond):
		t.Fatal("debouncer never fired")
	}

	select {
	case <-d.Fired():
		t.Fatal("debouncer fired twice for one burst")
	case <-time.After(50 * time.Millisecond):
	}
}
