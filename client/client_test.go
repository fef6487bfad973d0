package client

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opcfoundry/opcua-runtime/arena"
	"github.com/opcfoundry/opcua-runtime/engine"
	"github.com/opcfoundry/opcua-runtime/engine/enginetest"
	"github.com/opcfoundry/opcua-runtime/errors"
	"github.com/opcfoundry/opcua-runtime/monitor"
	"github.com/opcfoundry/opcua-runtime/ua"
)

// releaseObserver records whether the monitored stream had already been
// terminated when the client handle's release event arrived.
type releaseObserver struct {
	stream           *monitor.ItemStream
	sawRelease       atomic.Bool
	streamEndedFirst atomic.Bool
}

func (o *releaseObserver) OnHandleEvent(e arena.Event) {
	if e.Type == arena.EventReleased && e.Kind == arena.KindClient {
		o.sawRelease.Store(true)
		if o.stream.Err() != nil {
			o.streamEndedFirst.Store(true)
		}
	}
}

var (
	organizesID    = engine.RawNodeID{Numeric: 35}
	objectsID      = engine.RawNodeID{Numeric: 85}
	hasComponentID = engine.RawNodeID{Numeric: 47}
)

func addVariable(t *testing.T, space *enginetest.Space, parent engine.RawNodeID, num uint32, name string, value int32) engine.RawNodeID {
	t.Helper()
	id := engine.RawNodeID{Namespace: 1, Numeric: num}
	status := space.AddNode(engine.NodeDefinition{
		NodeClass:       engine.NodeClassVariable,
		RequestedID:     id,
		ParentID:        parent,
		ReferenceTypeID: hasComponentID,
		BrowseName:      engine.RawQualifiedName{Namespace: 1, Name: name},
		Attributes: engine.RawVariableAttributes{
			DisplayName: engine.RawLocalizedText{Text: name},
			DataType:    engine.RawNodeID{Numeric: uint32(ua.TypeInt32)},
			AccessLevel: 3,
			Value: engine.Raw{
				TypeID: uint32(ua.TypeInt32),
				Form:   engine.FormScalar,
				Scalar: value,
			},
		},
	})
	require.Equal(t, engine.StatusGood, status)
	return id
}

type testConn struct {
	client *Client
	eng    *enginetest.ClientEngine
	space  *enginetest.Space
	arena  *arena.Arena
}

func dial(t *testing.T, opts enginetest.ClientOptions, mutate func(*Config)) *testConn {
	t.Helper()
	space := enginetest.NewSpace()
	eng := enginetest.NewClientEngine(space, opts)
	ar := arena.New()

	cfg := Config{
		EndpointURL: "opc.tcp://localhost:4840",
		CycleTime:   time.Millisecond,
		Arena:       ar,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	c, err := Connect(context.Background(), eng, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return &testConn{client: c, eng: eng, space: space, arena: ar}
}

func TestConnectRejectedStatusReleasesHandle(t *testing.T) {
	space := enginetest.NewSpace()
	eng := enginetest.NewClientEngine(space, enginetest.ClientOptions{})
	ar := arena.New()

	_, err := Connect(context.Background(), eng, Config{EndpointURL: "", Arena: ar})
	require.Error(t, err)
	assert.Equal(t, 0, ar.Live())
}

func TestReadValueScalar(t *testing.T) {
	tc := dial(t, enginetest.ClientOptions{}, nil)
	nodeRaw := addVariable(t, tc.space, objectsID, 1000, "Temperature", 21)

	node, err := ua.DecodeNodeID(nodeRaw)
	require.NoError(t, err)

	v, err := tc.client.ReadValue(context.Background(), node)
	require.NoError(t, err)
	got, err := ua.ScalarOf[int32](v)
	require.NoError(t, err)
	assert.Equal(t, int32(21), got)
}

func TestReadUnknownNodeCarriesBadStatus(t *testing.T) {
	tc := dial(t, enginetest.ClientOptions{}, nil)

	dv, err := tc.client.ReadAttribute(context.Background(),
		ua.NewNumericNodeID(1, 99999), AttributeValue)
	require.NoError(t, err, "service call succeeds; the per-node status is bad")
	assert.True(t, dv.Status.IsBad())

	_, err = tc.client.ReadValue(context.Background(), ua.NewNumericNodeID(1, 99999))
	var uaErr *errors.Error
	require.ErrorAs(t, err, &uaErr)
	assert.Equal(t, errors.KindBadStatus, uaErr.Kind)
}

func TestWriteThenReadRoundTrip(t *testing.T) {
	tc := dial(t, enginetest.ClientOptions{}, nil)
	nodeRaw := addVariable(t, tc.space, objectsID, 1001, "Setpoint", 0)
	node, err := ua.DecodeNodeID(nodeRaw)
	require.NoError(t, err)

	require.NoError(t, tc.client.WriteValue(context.Background(), node, ua.NewVariant(int32(42))))

	v, err := tc.client.ReadValue(context.Background(), node)
	require.NoError(t, err)
	got, err := ua.ScalarOf[int32](v)
	require.NoError(t, err)
	assert.Equal(t, int32(42), got)
}

func TestReadManyParallelResults(t *testing.T) {
	tc := dial(t, enginetest.ClientOptions{}, nil)
	aRaw := addVariable(t, tc.space, objectsID, 1002, "A", 1)
	bRaw := addVariable(t, tc.space, objectsID, 1003, "B", 2)
	a, _ := ua.DecodeNodeID(aRaw)
	b, _ := ua.DecodeNodeID(bRaw)

	results, err := tc.client.ReadMany(context.Background(), []ReadSpec{
		{NodeID: a, AttributeID: AttributeValue},
		{NodeID: ua.NewNumericNodeID(1, 77777), AttributeID: AttributeValue},
		{NodeID: b, AttributeID: AttributeValue},
	})
	require.NoError(t, err)
	require.Len(t, results, 3)

	va, err := ua.ScalarOf[int32](results[0].Value)
	require.NoError(t, err)
	assert.Equal(t, int32(1), va)
	assert.True(t, results[1].Status.IsBad())
	vb, err := ua.ScalarOf[int32](results[2].Value)
	require.NoError(t, err)
	assert.Equal(t, int32(2), vb)
}

func TestCallMethod(t *testing.T) {
	tc := dial(t, enginetest.ClientOptions{}, nil)

	methodID := engine.RawNodeID{Namespace: 1, Numeric: 2000}
	status := tc.space.AddNode(engine.NodeDefinition{
		NodeClass:       engine.NodeClassMethod,
		RequestedID:     methodID,
		ParentID:        objectsID,
		ReferenceTypeID: hasComponentID,
		BrowseName:      engine.RawQualifiedName{Namespace: 1, Name: "Double"},
		Attributes: engine.RawMethodAttributes{
			DisplayName: engine.RawLocalizedText{Text: "Double"},
			Executable:  true,
		},
	})
	require.Equal(t, engine.StatusGood, status)
	status = tc.space.RegisterMethod(methodID, func(_ engine.SessionInfo, _ engine.RawNodeID, in []engine.Raw) ([]engine.Raw, uint32) {
		if len(in) != 1 {
			return nil, uint32(ua.StatusBadArgumentsMissing)
		}
		v, _ := in[0].Scalar.(int32)
		return []engine.Raw{{
			TypeID: uint32(ua.TypeInt32),
			Form:   engine.FormScalar,
			Scalar: v * 2,
		}}, engine.StatusGood
	})
	require.Equal(t, engine.StatusGood, status)

	method, _ := ua.DecodeNodeID(methodID)
	object, _ := ua.DecodeNodeID(objectsID)
	out, err := tc.client.Call(context.Background(), object, method, []ua.Variant{ua.NewVariant(int32(21))})
	require.NoError(t, err)
	require.Len(t, out, 1)
	got, err := ua.ScalarOf[int32](out[0])
	require.NoError(t, err)
	assert.Equal(t, int32(42), got)
}

func TestBrowsePagingScenario(t *testing.T) {
	// 150 children behind a server page size of 50: the first browse
	// returns one page plus a token, three browse-next calls return the
	// remaining 100 and exhaust the token.
	tc := dial(t, enginetest.ClientOptions{BrowsePageSize: 50}, nil)

	folderID := engine.RawNodeID{Namespace: 1, Numeric: 3000}
	status := tc.space.AddNode(engine.NodeDefinition{
		NodeClass:       engine.NodeClassObject,
		RequestedID:     folderID,
		ParentID:        objectsID,
		ReferenceTypeID: organizesID,
		BrowseName:      engine.RawQualifiedName{Namespace: 1, Name: "Fleet"},
		Attributes:      engine.RawObjectAttributes{DisplayName: engine.RawLocalizedText{Text: "Fleet"}},
	})
	require.Equal(t, engine.StatusGood, status)
	for i := uint32(0); i < 150; i++ {
		addVariable(t, tc.space, folderID, 3001+i, "Child", int32(i))
	}

	folder, _ := ua.DecodeNodeID(folderID)
	refs, cp, err := tc.client.Browse(context.Background(), folder, BrowseOptions{})
	require.NoError(t, err)
	assert.Len(t, refs, 50)
	require.NotNil(t, cp)

	total := len(refs)
	nextCalls := 0
	for cp != nil {
		var page []ua.ReferenceDescription
		page, cp, err = tc.client.BrowseNext(context.Background(), cp)
		require.NoError(t, err)
		total += len(page)
		nextCalls++
	}
	assert.Equal(t, 150, total)
	assert.Equal(t, 3, nextCalls)
}

func TestBrowseAllCollectsEveryReference(t *testing.T) {
	tc := dial(t, enginetest.ClientOptions{BrowsePageSize: 7}, nil)

	folderID := engine.RawNodeID{Namespace: 1, Numeric: 3200}
	status := tc.space.AddNode(engine.NodeDefinition{
		NodeClass:       engine.NodeClassObject,
		RequestedID:     folderID,
		ParentID:        objectsID,
		ReferenceTypeID: organizesID,
		BrowseName:      engine.RawQualifiedName{Namespace: 1, Name: "Rack"},
		Attributes:      engine.RawObjectAttributes{DisplayName: engine.RawLocalizedText{Text: "Rack"}},
	})
	require.Equal(t, engine.StatusGood, status)
	for i := uint32(0); i < 20; i++ {
		addVariable(t, tc.space, folderID, 3201+i, "Slot", int32(i))
	}

	folder, _ := ua.DecodeNodeID(folderID)
	refs, err := tc.client.BrowseAll(context.Background(), folder, BrowseOptions{})
	require.NoError(t, err)
	assert.Len(t, refs, 20)
}

func TestContinuationPointRelease(t *testing.T) {
	tc := dial(t, enginetest.ClientOptions{BrowsePageSize: 5}, nil)

	folderID := engine.RawNodeID{Namespace: 1, Numeric: 3400}
	status := tc.space.AddNode(engine.NodeDefinition{
		NodeClass:       engine.NodeClassObject,
		RequestedID:     folderID,
		ParentID:        objectsID,
		ReferenceTypeID: organizesID,
		BrowseName:      engine.RawQualifiedName{Namespace: 1, Name: "Pens"},
		Attributes:      engine.RawObjectAttributes{DisplayName: engine.RawLocalizedText{Text: "Pens"}},
	})
	require.Equal(t, engine.StatusGood, status)
	for i := uint32(0); i < 12; i++ {
		addVariable(t, tc.space, folderID, 3401+i, "Pen", int32(i))
	}

	folder, _ := ua.DecodeNodeID(folderID)
	_, cp, err := tc.client.Browse(context.Background(), folder, BrowseOptions{})
	require.NoError(t, err)
	require.NotNil(t, cp)

	require.NoError(t, cp.Release(context.Background()))
	// Released points cannot be exchanged.
	_, _, err = tc.client.BrowseNext(context.Background(), cp)
	require.Error(t, err)
}

func TestTranslateBrowsePath(t *testing.T) {
	tc := dial(t, enginetest.ClientOptions{}, nil)
	nodeRaw := addVariable(t, tc.space, objectsID, 4000, "Pressure", 5)

	objects, _ := ua.DecodeNodeID(objectsID)
	target, err := tc.client.TranslateBrowsePath(context.Background(), objects,
		ua.NewQualifiedName(1, "Pressure"))
	require.NoError(t, err)
	want, _ := ua.DecodeNodeID(nodeRaw)
	assert.True(t, want.Equal(target))

	_, err = tc.client.TranslateBrowsePath(context.Background(), objects,
		ua.NewQualifiedName(1, "NoSuchNode"))
	var uaErr *errors.Error
	require.ErrorAs(t, err, &uaErr)
	assert.Equal(t, errors.KindBadStatus, uaErr.Kind)
}

func TestSubscriptionDeliversWritesInOrder(t *testing.T) {
	tc := dial(t, enginetest.ClientOptions{}, nil)
	nodeRaw := addVariable(t, tc.space, objectsID, 5000, "Counter", 0)
	node, _ := ua.DecodeNodeID(nodeRaw)

	sub, err := tc.client.Subscribe(context.Background(), SubscriptionParams{})
	require.NoError(t, err)
	stream, err := tc.client.NewMonitoredItem(context.Background(), sub, node, MonitorOptions{})
	require.NoError(t, err)

	for i := int32(1); i <= 5; i++ {
		require.NoError(t, tc.client.WriteValue(context.Background(), node, ua.NewVariant(i)))
	}

	for i := int32(1); i <= 5; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		u, err := stream.Recv(ctx)
		cancel()
		require.NoError(t, err)
		got, err := ua.ScalarOf[int32](u.Value.Value)
		require.NoError(t, err)
		assert.Equal(t, i, got, "notifications must arrive in write order")
	}
	assert.Equal(t, uint64(0), stream.Lost())
}

func TestMonitoredItemCloseStopsNotifications(t *testing.T) {
	tc := dial(t, enginetest.ClientOptions{}, nil)
	nodeRaw := addVariable(t, tc.space, objectsID, 5100, "Level", 0)
	node, _ := ua.DecodeNodeID(nodeRaw)

	sub, err := tc.client.Subscribe(context.Background(), SubscriptionParams{})
	require.NoError(t, err)
	stream, err := tc.client.NewMonitoredItem(context.Background(), sub, node, MonitorOptions{})
	require.NoError(t, err)

	require.NoError(t, stream.Close(context.Background()))
	assert.Equal(t, 0, sub.Items())

	require.NoError(t, tc.client.WriteValue(context.Background(), node, ua.NewVariant(int32(9))))
	time.Sleep(20 * time.Millisecond)
	select {
	case <-stream.Chan():
		t.Fatal("closed stream must not receive")
	default:
	}
}

func TestMonitoredItemOnUnknownNodeFails(t *testing.T) {
	tc := dial(t, enginetest.ClientOptions{}, nil)

	sub, err := tc.client.Subscribe(context.Background(), SubscriptionParams{})
	require.NoError(t, err)
	_, err = tc.client.NewMonitoredItem(context.Background(), sub,
		ua.NewNumericNodeID(1, 88888), MonitorOptions{})
	var uaErr *errors.Error
	require.ErrorAs(t, err, &uaErr)
	assert.Equal(t, errors.KindBadStatus, uaErr.Kind)
}

func TestSubscriptionDeleteEndsStreams(t *testing.T) {
	tc := dial(t, enginetest.ClientOptions{}, nil)
	nodeRaw := addVariable(t, tc.space, objectsID, 5200, "Flow", 0)
	node, _ := ua.DecodeNodeID(nodeRaw)

	sub, err := tc.client.Subscribe(context.Background(), SubscriptionParams{})
	require.NoError(t, err)
	stream, err := tc.client.NewMonitoredItem(context.Background(), sub, node, MonitorOptions{})
	require.NoError(t, err)

	require.NoError(t, sub.Delete(context.Background()))
	assert.True(t, errors.IsCancelled(stream.Err()))
}

func TestDisconnectFailsInFlightRequests(t *testing.T) {
	// A huge cycle time keeps completions undelivered, so dispatched
	// requests stay in flight until teardown fails them.
	tc := dial(t, enginetest.ClientOptions{}, func(cfg *Config) {
		cfg.CycleTime = time.Hour
	})
	addVariable(t, tc.space, objectsID, 6000, "Slow", 1)

	const inFlight = 3
	errs := make(chan error, inFlight)
	var wg sync.WaitGroup
	for i := 0; i < inFlight; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := tc.client.ReadValue(context.Background(), ua.NewNumericNodeID(1, 6000))
			errs <- err
		}()
	}
	time.Sleep(50 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, tc.client.Disconnect(ctx))

	wg.Wait()
	close(errs)
	n := 0
	for err := range errs {
		require.Error(t, err)
		assert.True(t, errors.IsCancelled(err), "in-flight request must fail with cancellation, got %v", err)
		n++
	}
	assert.Equal(t, inFlight, n)
}

func TestShutdownOrdering(t *testing.T) {
	tc := dial(t, enginetest.ClientOptions{}, nil)
	nodeRaw := addVariable(t, tc.space, objectsID, 6100, "Valve", 0)
	node, _ := ua.DecodeNodeID(nodeRaw)

	sub, err := tc.client.Subscribe(context.Background(), SubscriptionParams{})
	require.NoError(t, err)
	stream, err := tc.client.NewMonitoredItem(context.Background(), sub, node, MonitorOptions{})
	require.NoError(t, err)

	// At handle release time the streams must already be terminated.
	obs := &releaseObserver{stream: stream}
	tc.arena.Subscribe(obs)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, tc.client.Disconnect(ctx))

	assert.True(t, obs.sawRelease.Load(), "client handle must be released")
	assert.True(t, obs.streamEndedFirst.Load(), "streams must end before the handle is released")
	assert.True(t, tc.eng.Released())
	assert.Equal(t, 0, tc.arena.Live())
}

func TestOperationsAfterCloseFail(t *testing.T) {
	tc := dial(t, enginetest.ClientOptions{}, nil)
	require.NoError(t, tc.client.Close())

	_, err := tc.client.ReadValue(context.Background(), ua.NewNumericNodeID(1, 1))
	require.Error(t, err)

	// Close after Disconnect is a no-op, not a double release.
	require.NoError(t, tc.client.Close())
}

func TestFatalEngineErrorFailsOperationsAndStreams(t *testing.T) {
	tc := dial(t, enginetest.ClientOptions{}, nil)
	nodeRaw := addVariable(t, tc.space, objectsID, 6200, "Pump", 0)
	node, _ := ua.DecodeNodeID(nodeRaw)

	sub, err := tc.client.Subscribe(context.Background(), SubscriptionParams{})
	require.NoError(t, err)
	stream, err := tc.client.NewMonitoredItem(context.Background(), sub, node, MonitorOptions{})
	require.NoError(t, err)

	tc.eng.FailIterate(uint32(ua.StatusBadCommunicationError))

	select {
	case <-stream.Done():
	case <-time.After(time.Second):
		t.Fatal("stream must end on fatal engine error")
	}
	assert.True(t, errors.IsDisconnected(stream.Err()))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err = tc.client.ReadValue(ctx, node)
	require.Error(t, err)
}
