package monitor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opcfoundry/opcua-runtime/errors"
	"github.com/opcfoundry/opcua-runtime/ua"
)

func dataUpdate(v int32) Update {
	return Update{Value: ua.NewDataValue(ua.NewVariant(v))}
}

func updateValue(t *testing.T, u Update) int32 {
	t.Helper()
	v, err := ua.ScalarOf[int32](u.Value.Value)
	require.NoError(t, err)
	return v
}

func TestStreamDeliversInOrder(t *testing.T) {
	s := NewItemStream(1, 10, 8, nil, nil)

	for i := int32(1); i <= 5; i++ {
		s.Publish(dataUpdate(i))
	}
	for i := int32(1); i <= 5; i++ {
		u, err := s.Recv(context.Background())
		require.NoError(t, err)
		assert.Equal(t, i, updateValue(t, u))
	}
	assert.Equal(t, uint64(0), s.Lost())
}

func TestSlowConsumerDropsNewestAndCountsLoss(t *testing.T) {
	s := NewItemStream(1, 10, 3, nil, nil)

	for i := int32(1); i <= 10; i++ {
		s.Publish(dataUpdate(i))
	}
	assert.Equal(t, uint64(7), s.Lost())

	// The oldest buffered notifications survive, in order.
	for i := int32(1); i <= 3; i++ {
		u, err := s.Recv(context.Background())
		require.NoError(t, err)
		assert.Equal(t, i, updateValue(t, u))
	}

	// Loss never decreases.
	s.Publish(dataUpdate(11))
	assert.Equal(t, uint64(7), s.Lost())
}

func TestRecvAfterEndDrainsBufferThenReportsTerminalError(t *testing.T) {
	s := NewItemStream(1, 10, 8, nil, nil)
	s.Publish(dataUpdate(1))
	s.Publish(dataUpdate(2))

	cause := errors.Disconnected("connection lost")
	s.End(cause)
	assert.Equal(t, ItemDeleted, s.State())

	u, err := s.Recv(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), updateValue(t, u))
	u, err = s.Recv(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), updateValue(t, u))

	_, err = s.Recv(context.Background())
	assert.True(t, errors.IsDisconnected(err))
	assert.True(t, errors.IsDisconnected(s.Err()))
}

func TestPublishAfterEndIsDiscarded(t *testing.T) {
	s := NewItemStream(1, 10, 8, nil, nil)
	s.End(errors.Disconnected("gone"))

	s.Publish(dataUpdate(1))
	assert.Equal(t, uint64(0), s.Lost())
	select {
	case <-s.Chan():
		t.Fatal("discarded update must not be buffered")
	default:
	}
}

func TestRecvRespectsContext(t *testing.T) {
	s := NewItemStream(1, 10, 8, nil, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := s.Recv(ctx)
	assert.True(t, errors.IsCancelled(err))
}

func TestCloseDeletesExactlyOnce(t *testing.T) {
	deletes := 0
	s := NewItemStream(1, 10, 8, func(ctx context.Context) error {
		deletes++
		return nil
	}, nil)

	require.NoError(t, s.Close(context.Background()))
	assert.Equal(t, 1, deletes)
	assert.Equal(t, ItemDeleted, s.State())

	err := s.Close(context.Background())
	assert.True(t, errors.IsCancelled(err))
	assert.Equal(t, 1, deletes)
}

func TestCloseRacingEndRunsDeleteAtMostOnce(t *testing.T) {
	var mu sync.Mutex
	deletes := 0
	s := NewItemStream(1, 10, 8, func(ctx context.Context) error {
		mu.Lock()
		deletes++
		mu.Unlock()
		return nil
	}, nil)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_ = s.Close(context.Background())
	}()
	go func() {
		defer wg.Done()
		s.End(errors.Disconnected("lost"))
	}()
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.LessOrEqual(t, deletes, 1)
	assert.Equal(t, ItemDeleted, s.State())
}

func TestEndAfterCloseKeepsFirstError(t *testing.T) {
	s := NewItemStream(1, 10, 8, nil, nil)
	require.NoError(t, s.Close(context.Background()))
	s.End(errors.Disconnected("late"))

	assert.True(t, errors.IsCancelled(s.Err()), "close error must win")
}
