package driver

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opcfoundry/opcua-runtime/errors"
)

type fakeIterator struct {
	iterations atomic.Int64
	status     atomic.Uint32
}

func (f *fakeIterator) Iterate(timeoutMs uint32) uint32 {
	f.iterations.Add(1)
	return f.status.Load()
}

func testConfig() Config {
	return Config{CycleTime: time.Millisecond, QueueSize: 16}
}

func TestLoopLifecycle(t *testing.T) {
	it := &fakeIterator{}
	l := NewLoop(it, testConfig())
	assert.Equal(t, StateIdle, l.State())

	require.NoError(t, l.Start())
	assert.Equal(t, StateRunning, l.State())

	assert.Eventually(t, func() bool {
		return it.iterations.Load() > 0
	}, time.Second, time.Millisecond, "loop must call iterate")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, l.Stop(ctx))
	assert.Equal(t, StateStopped, l.State())

	// Stop is idempotent.
	require.NoError(t, l.Stop(ctx))
}

func TestLoopStartTwiceFails(t *testing.T) {
	l := NewLoop(&fakeIterator{}, testConfig())
	require.NoError(t, l.Start())
	err := l.Start()
	var uaErr *errors.Error
	require.ErrorAs(t, err, &uaErr)
	assert.Equal(t, errors.KindInternal, uaErr.Kind)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, l.Stop(ctx))
}

func TestLoopStopWhileIdle(t *testing.T) {
	l := NewLoop(&fakeIterator{}, testConfig())
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, l.Stop(ctx))
	assert.Equal(t, StateStopped, l.State())

	err := l.Start()
	var uaErr *errors.Error
	require.ErrorAs(t, err, &uaErr)
}

func TestSubmitRunsOnLoopGoroutine(t *testing.T) {
	l := NewLoop(&fakeIterator{}, testConfig())
	require.NoError(t, l.Start())

	done := make(chan struct{})
	require.NoError(t, l.Submit(func() { close(done) }))
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("submitted closure never ran")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, l.Stop(ctx))
}

func TestSubmitAfterStopFails(t *testing.T) {
	l := NewLoop(&fakeIterator{}, testConfig())
	require.NoError(t, l.Start())
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, l.Stop(ctx))

	err := l.Submit(func() { t.Error("must not run") })
	assert.True(t, errors.IsCancelled(err))
}

func TestStopDrainsQueuedSubmissions(t *testing.T) {
	// Block the loop goroutine so later submissions queue up, then stop
	// while they are still queued. They must all run before Stop returns.
	l := NewLoop(&fakeIterator{}, testConfig())
	require.NoError(t, l.Start())

	gate := make(chan struct{})
	require.NoError(t, l.Submit(func() { <-gate }))

	var ran atomic.Int64
	for i := 0; i < 8; i++ {
		require.NoError(t, l.Submit(func() { ran.Add(1) }))
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		assert.NoError(t, l.Stop(ctx))
	}()

	close(gate)
	wg.Wait()
	assert.Equal(t, int64(8), ran.Load())
}

func TestFatalIterateStopsLoopAndFansOut(t *testing.T) {
	it := &fakeIterator{}
	it.status.Store(0x800A0000) // bad severity

	l := NewLoop(it, testConfig())

	fatal := make(chan error, 1)
	l.OnFatal(func(err error) { fatal <- err })
	require.NoError(t, l.Start())

	select {
	case err := <-fatal:
		assert.True(t, errors.IsDisconnected(err))
	case <-time.After(time.Second):
		t.Fatal("fatal hook never fired")
	}

	select {
	case <-l.Done():
	case <-time.After(time.Second):
		t.Fatal("loop did not exit after fatal error")
	}
	assert.Equal(t, StateStopped, l.State())
	assert.True(t, errors.IsDisconnected(l.Err()))
}

func TestFatalFansOutToEveryHook(t *testing.T) {
	it := &fakeIterator{}
	it.status.Store(0x800A0000)

	l := NewLoop(it, testConfig())

	var fired atomic.Int64
	for i := 0; i < 3; i++ {
		l.OnFatal(func(err error) {
			assert.True(t, errors.IsDisconnected(err))
			fired.Add(1)
		})
	}
	require.NoError(t, l.Start())

	select {
	case <-l.Done():
	case <-time.After(time.Second):
		t.Fatal("loop did not exit after fatal error")
	}
	assert.Equal(t, int64(3), fired.Load())
}

func TestStopNeverDropsAcceptedSubmissions(t *testing.T) {
	// Submitters racing Stop must either get a cancellation error or have
	// their closure executed; an accepted submission silently dropped is
	// a lost completion.
	l := NewLoop(&fakeIterator{}, testConfig())
	require.NoError(t, l.Start())

	var accepted, ran atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				if err := l.Submit(func() { ran.Add(1) }); err != nil {
					return
				}
				accepted.Add(1)
			}
		}()
	}

	time.Sleep(5 * time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, l.Stop(ctx))
	wg.Wait()

	assert.Equal(t, accepted.Load(), ran.Load())
}

func TestStopTimesOutWhenLoopIsStuck(t *testing.T) {
	l := NewLoop(&fakeIterator{}, testConfig())
	require.NoError(t, l.Start())

	gate := make(chan struct{})
	defer close(gate)
	require.NoError(t, l.Submit(func() { <-gate }))
	time.Sleep(10 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := l.Stop(ctx)
	var uaErr *errors.Error
	require.ErrorAs(t, err, &uaErr)
	assert.Equal(t, errors.KindTimeout, uaErr.Kind)
}
