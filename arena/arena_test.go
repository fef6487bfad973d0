package arena

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opcfoundry/opcua-runtime/errors"
)

type recordingObserver struct {
	mu     sync.Mutex
	events []Event
}

func (o *recordingObserver) OnHandleEvent(e Event) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, e)
}

func (o *recordingObserver) snapshot() []Event {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Event(nil), o.events...)
}

func TestAcquireRelease(t *testing.T) {
	a := New()

	released := 0
	h, err := a.Acquire(KindClient, 0xdead, func() { released++ })
	require.NoError(t, err)
	assert.Equal(t, KindClient, h.Kind())
	assert.Equal(t, uintptr(0xdead), h.Pointer())
	assert.Equal(t, 1, a.Live())

	require.NoError(t, h.Release())
	assert.Equal(t, 1, released)
	assert.Equal(t, 0, a.Live())
	assert.True(t, h.Released())
}

func TestAcquireNullPointerFails(t *testing.T) {
	a := New()

	_, err := a.Acquire(KindSubscription, 0, nil)
	var uaErr *errors.Error
	require.ErrorAs(t, err, &uaErr)
	assert.Equal(t, errors.KindAllocation, uaErr.Kind)
}

func TestDoubleReleaseIsReportedNotExecuted(t *testing.T) {
	a := New()

	released := 0
	h, err := a.Acquire(KindServer, 1, func() { released++ })
	require.NoError(t, err)

	require.NoError(t, h.Release())
	err = h.Release()

	var uaErr *errors.Error
	require.ErrorAs(t, err, &uaErr)
	assert.Equal(t, errors.KindInternal, uaErr.Kind)
	assert.Equal(t, 1, released, "release function must run exactly once")
}

func TestLiveByKind(t *testing.T) {
	a := New()

	h1, err := a.Acquire(KindClient, 1, nil)
	require.NoError(t, err)
	h2, err := a.Acquire(KindSubscription, 2, nil)
	require.NoError(t, err)
	h3, err := a.Acquire(KindMonitoredItem, 3, nil)
	require.NoError(t, err)

	assert.Equal(t, 3, a.Live())
	assert.Equal(t, 1, a.Live(KindClient))
	assert.Equal(t, 2, a.Live(KindSubscription, KindMonitoredItem))

	require.NoError(t, h2.Release())
	require.NoError(t, h3.Release())
	assert.Equal(t, 1, a.Live())
	require.NoError(t, h1.Release())
}

func TestObserverSeesOrderedLifecycle(t *testing.T) {
	a := New()
	obs := &recordingObserver{}
	a.Subscribe(obs)

	h, err := a.Acquire(KindMonitoredItem, 7, nil)
	require.NoError(t, err)
	require.NoError(t, h.Release())

	events := obs.snapshot()
	require.Len(t, events, 2)
	assert.Equal(t, EventAcquired, events[0].Type)
	assert.Equal(t, EventReleased, events[1].Type)
	assert.Equal(t, KindMonitoredItem, events[1].Kind)

	a.Unsubscribe(obs)
	h2, err := a.Acquire(KindClient, 8, nil)
	require.NoError(t, err)
	require.NoError(t, h2.Release())
	assert.Len(t, obs.snapshot(), 2, "unsubscribed observer must not receive events")
}

func TestConcurrentAcquireRelease(t *testing.T) {
	a := New()

	var wg sync.WaitGroup
	for i := 1; i <= 64; i++ {
		wg.Add(1)
		go func(p uintptr) {
			defer wg.Done()
			h, err := a.Acquire(KindContinuation, p, nil)
			if err != nil {
				t.Error(err)
				return
			}
			_ = h.Release()
		}(uintptr(i))
	}
	wg.Wait()

	assert.Equal(t, 0, a.Live())
}
