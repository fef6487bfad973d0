package monitor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opcfoundry/opcua-runtime/engine"
	"github.com/opcfoundry/opcua-runtime/errors"
	"github.com/opcfoundry/opcua-runtime/ua"
)

func dataNotification(subID, itemID uint32, v int32) engine.Notification {
	return engine.Notification{
		SubscriptionID:  subID,
		MonitoredItemID: itemID,
		Value: engine.RawDataValue{
			Value:     engine.Raw{TypeID: uint32(ua.TypeInt32), Form: engine.FormScalar, Scalar: v},
			HasValue:  true,
			Status:    engine.StatusGood,
			HasStatus: true,
		},
	}
}

func TestDispatchRoutesByItemID(t *testing.T) {
	r := NewRouter(nil)
	a := NewItemStream(1, 10, 8, nil, nil)
	b := NewItemStream(1, 11, 8, nil, nil)
	r.Register(a)
	r.Register(b)

	r.Dispatch(dataNotification(1, 10, 100))
	r.Dispatch(dataNotification(1, 11, 200))

	u, err := a.Recv(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(100), updateValue(t, u))

	u, err = b.Recv(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(200), updateValue(t, u))
}

func TestDispatchUnknownItemIsDropped(t *testing.T) {
	r := NewRouter(nil)
	r.Dispatch(dataNotification(1, 99, 1)) // must not panic
}

func TestDispatchAfterUnregisterIsDropped(t *testing.T) {
	r := NewRouter(nil)
	s := NewItemStream(1, 10, 8, nil, nil)
	r.Register(s)
	r.Unregister(1, 10)

	r.Dispatch(dataNotification(1, 10, 1))
	select {
	case <-s.Chan():
		t.Fatal("unregistered stream must not receive")
	default:
	}
}

func TestDispatchUndecodableNotificationIsDropped(t *testing.T) {
	r := NewRouter(nil)
	s := NewItemStream(1, 10, 8, nil, nil)
	r.Register(s)

	n := dataNotification(1, 10, 1)
	n.Value.Value.Scalar = "not an int32"
	r.Dispatch(n)

	select {
	case <-s.Chan():
		t.Fatal("undecodable notification must be dropped")
	default:
	}
}

func TestDispatchEventNotification(t *testing.T) {
	r := NewRouter(nil)
	s := NewItemStream(2, 20, 8, nil, nil)
	r.Register(s)

	r.Dispatch(engine.Notification{
		SubscriptionID:  2,
		MonitoredItemID: 20,
		EventFields: []engine.Raw{
			{TypeID: uint32(ua.TypeString), Form: engine.FormScalar, Scalar: engine.RawString{Data: []byte("alarm")}},
			{TypeID: uint32(ua.TypeUInt16), Form: engine.FormScalar, Scalar: uint16(500)},
		},
	})

	u, err := s.Recv(context.Background())
	require.NoError(t, err)
	require.Len(t, u.EventFields, 2)
	msg, err := ua.ScalarOf[string](u.EventFields[0])
	require.NoError(t, err)
	assert.Equal(t, "alarm", msg)
	sev, err := ua.ScalarOf[uint16](u.EventFields[1])
	require.NoError(t, err)
	assert.Equal(t, uint16(500), sev)
}

func TestEndAllTerminatesEveryStream(t *testing.T) {
	r := NewRouter(nil)
	a := NewItemStream(1, 10, 8, nil, nil)
	b := NewItemStream(2, 20, 8, nil, nil)
	r.Register(a)
	r.Register(b)

	cause := errors.Disconnected("connection lost")
	r.EndAll(cause)

	assert.True(t, errors.IsDisconnected(a.Err()))
	assert.True(t, errors.IsDisconnected(b.Err()))

	// Routing table is cleared; new dispatches drop silently.
	r.Dispatch(dataNotification(1, 10, 1))
}
