package substrate

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type countingBackend struct {
	concurrent int32
	maxSeen    int32
}

func (c *countingBackend) Available(ctx context.Context) bool { return true }
func (c *countingBackend) Start(ctx context.Context, spec StartSpec) (string, error) {
	return "handle", nil
}
func (c *countingBackend) Exec(ctx context.Context, handle string, spec ExecSpec) (ExecResult, error) {
	n := atomic.AddInt32(&c.concurrent, 1)
	for {
		max := atomic.LoadInt32(&c.maxSeen)
		if n <= max || atomic.CompareAndSwapInt32(&c.maxSeen, max, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	atomic.AddInt32(&c.concurrent, -1)
	return ExecResult{ExitCode: 0}, nil
}
func (c *countingBackend) CopyIn(ctx context.Context, handle, hostPath, guestPath string) error  { return nil }
func (c *countingBackend) CopyOut(ctx context.Context, handle, guestPath, hostPath string) error { return nil }
func (c *countingBackend) Stop(ctx context.Context, handle string, deadline time.Duration) error { return nil }

func TestSerializing_SerializesExecPerHandle(t *testing.T) {
	inner := &countingBackend{}
	backend := NewSerializing(inner)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := backend.Exec(context.Background(), "shared-container", ExecSpec{Command: "true"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&inner.maxSeen))
}

func TestSerializing_DifferentHandlesRunConcurrently(t *testing.T) {
	inner := &countingBackend{}
	backend := NewSerializing(inner)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		handle := "container-" + string(rune('a'+i))
		wg.Add(1)
		go func(h string) {
			defer wg.Done()
			_, err := backend.Exec(context.Background(), h, ExecSpec{Command: "true"})
			assert.NoError(t, err)
		}(handle)
	}
	wg.Wait()

	assert.Greater(t, atomic.LoadInt32(&inner.maxSeen), int32(1))
}
