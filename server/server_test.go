package server

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opcfoundry/opcua-runtime/engine"
	"github.com/opcfoundry/opcua-runtime/engine/enginetest"
	"github.com/opcfoundry/opcua-runtime/errors"
	"github.com/opcfoundry/opcua-runtime/ua"
)

func newTestServer(t *testing.T, mutate func(*Config)) (*Server, *enginetest.ServerEngine) {
	t.Helper()
	eng := enginetest.NewServerEngine(enginetest.NewSpace())
	cfg := Config{CycleTime: time.Millisecond}
	if mutate != nil {
		mutate(&cfg)
	}
	s, err := New(eng, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, eng
}

func deviceSpec(num uint32, name string) NodeSpec {
	return NodeSpec{
		NodeID:          ua.NewNumericNodeID(1, num),
		ParentID:        ua.NodeIDObjectsFolder,
		ReferenceTypeID: ua.NodeIDOrganizes,
		BrowseName:      ua.NewQualifiedName(1, name),
	}
}

func variableSpec(parent ua.NodeID, num uint32, name string) NodeSpec {
	return NodeSpec{
		NodeID:          ua.NewNumericNodeID(1, num),
		ParentID:        parent,
		ReferenceTypeID: ua.NodeIDHasComponent,
		BrowseName:      ua.NewQualifiedName(1, name),
	}
}

func TestAddVariableNodeAndReadBack(t *testing.T) {
	s, _ := newTestServer(t, nil)

	device := deviceSpec(5000, "Device")
	require.NoError(t, s.AddObjectNode(device, ObjectAttributes{
		DisplayName: ua.NewLocalizedText("en", "Device"),
	}))

	spec := variableSpec(device.NodeID, 5001, "Temperature")
	require.NoError(t, s.AddVariableNode(spec, VariableAttributes{
		DisplayName: ua.NewLocalizedText("en", "Temperature"),
		Value:       ua.NewVariant(int32(21)),
		DataType:    ua.NS0(uint32(ua.TypeInt32)),
		AccessLevel: 3,
	}))

	dv, err := s.ReadValue(spec.NodeID)
	require.NoError(t, err)
	got, err := ua.ScalarOf[int32](dv.Value)
	require.NoError(t, err)
	assert.Equal(t, int32(21), got)

	require.NoError(t, s.WriteValue(spec.NodeID, ua.NewVariant(int32(22))))
	dv, err = s.ReadValue(spec.NodeID)
	require.NoError(t, err)
	got, err = ua.ScalarOf[int32](dv.Value)
	require.NoError(t, err)
	assert.Equal(t, int32(22), got)
}

func TestAddNodeDuplicateIDFails(t *testing.T) {
	s, _ := newTestServer(t, nil)

	device := deviceSpec(5010, "Device")
	require.NoError(t, s.AddObjectNode(device, ObjectAttributes{}))
	err := s.AddObjectNode(device, ObjectAttributes{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BadNodeIdExists")
}

func TestDataSourceVariable(t *testing.T) {
	s, _ := newTestServer(t, nil)

	var stored int32 = 7
	var wrote int32
	spec := variableSpec(ua.NodeIDObjectsFolder, 5020, "Pressure")
	require.NoError(t, s.AddDataSourceVariableNode(spec, VariableAttributes{
		DisplayName: ua.NewLocalizedText("", "Pressure"),
		DataType:    ua.NS0(uint32(ua.TypeInt32)),
		AccessLevel: 3,
	}, DataSource{
		Read: func(_ Session, _ ua.NodeID) (ua.DataValue, ua.StatusCode) {
			return ua.NewDataValue(ua.NewVariant(stored)), ua.StatusGood
		},
		Write: func(_ Session, _ ua.NodeID, value ua.DataValue) ua.StatusCode {
			v, err := ua.ScalarOf[int32](value.Value)
			if err != nil {
				return ua.StatusBadTypeMismatch
			}
			wrote = v
			stored = v
			return ua.StatusGood
		},
	}))

	dv, err := s.ReadValue(spec.NodeID)
	require.NoError(t, err)
	got, err := ua.ScalarOf[int32](dv.Value)
	require.NoError(t, err)
	assert.Equal(t, int32(7), got)

	require.NoError(t, s.WriteValue(spec.NodeID, ua.NewVariant(int32(42))))
	assert.Equal(t, int32(42), wrote)

	dv, err = s.ReadValue(spec.NodeID)
	require.NoError(t, err)
	got, err = ua.ScalarOf[int32](dv.Value)
	require.NoError(t, err)
	assert.Equal(t, int32(42), got)
}

func TestMethodNodeInvocation(t *testing.T) {
	s, eng := newTestServer(t, nil)

	spec := NodeSpec{
		NodeID:          ua.NewNumericNodeID(1, 5030),
		ParentID:        ua.NodeIDObjectsFolder,
		ReferenceTypeID: ua.NodeIDHasComponent,
		BrowseName:      ua.NewQualifiedName(1, "Double"),
	}
	require.NoError(t, s.AddMethodNode(spec, MethodAttributes{
		DisplayName: ua.NewLocalizedText("", "Double"),
		Executable:  true,
		InputArguments: []ua.Argument{
			{Name: "x", DataType: ua.NS0(uint32(ua.TypeInt32))},
		},
		OutputArguments: []ua.Argument{
			{Name: "y", DataType: ua.NS0(uint32(ua.TypeInt32))},
		},
	}, func(_ Session, _ ua.NodeID, input []ua.Variant) ([]ua.Variant, ua.StatusCode) {
		if len(input) != 1 {
			return nil, ua.StatusBadInvalidArgument
		}
		x, err := ua.ScalarOf[int32](input[0])
		if err != nil {
			return nil, ua.StatusBadTypeMismatch
		}
		return []ua.Variant{ua.NewVariant(x * 2)}, ua.StatusGood
	}))

	result := eng.Space().Call(engine.CallMethodRequest{
		ObjectID:       ua.EncodeNodeID(ua.NodeIDObjectsFolder),
		MethodID:       ua.EncodeNodeID(spec.NodeID),
		InputArguments: []engine.Raw{ua.EncodeVariant(ua.NewVariant(int32(21)))},
	})
	require.Equal(t, engine.StatusGood, result.StatusCode)
	require.Len(t, result.OutputArguments, 1)
	out, err := ua.DecodeVariant(result.OutputArguments[0])
	require.NoError(t, err)
	got, err := ua.ScalarOf[int32](out)
	require.NoError(t, err)
	assert.Equal(t, int32(42), got)

	bad := eng.Space().Call(engine.CallMethodRequest{
		ObjectID: ua.EncodeNodeID(ua.NodeIDObjectsFolder),
		MethodID: ua.EncodeNodeID(spec.NodeID),
	})
	assert.Equal(t, uint32(ua.StatusBadInvalidArgument), bad.StatusCode)
}

func TestReferencesAndDeleteNode(t *testing.T) {
	s, eng := newTestServer(t, nil)

	device := deviceSpec(5040, "Device")
	require.NoError(t, s.AddObjectNode(device, ObjectAttributes{}))
	spec := variableSpec(device.NodeID, 5041, "Speed")
	require.NoError(t, s.AddVariableNode(spec, VariableAttributes{
		Value:    ua.NewVariant(int32(0)),
		DataType: ua.NS0(uint32(ua.TypeInt32)),
	}))

	require.NoError(t, s.AddReference(ua.NodeIDObjectsFolder, ua.NodeIDOrganizes, spec.NodeID, true))
	require.NoError(t, s.DeleteReference(ua.NodeIDObjectsFolder, ua.NodeIDOrganizes, spec.NodeID, true))
	require.Error(t, s.DeleteReference(ua.NodeIDObjectsFolder, ua.NodeIDOrganizes, spec.NodeID, true))

	require.NoError(t, s.DeleteNode(spec.NodeID))
	assert.False(t, eng.Space().Has(ua.EncodeNodeID(spec.NodeID)))
	_, err := s.ReadValue(spec.NodeID)
	require.Error(t, err)
}

func waitForIterations(t *testing.T, eng *enginetest.ServerEngine) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for eng.Iterations() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("engine never iterated")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestRunUntilCancelled(t *testing.T) {
	s, eng := newTestServer(t, nil)

	spec := variableSpec(ua.NodeIDObjectsFolder, 5050, "Counter")
	require.NoError(t, s.AddVariableNode(spec, VariableAttributes{
		Value:    ua.NewVariant(int32(0)),
		DataType: ua.NS0(uint32(ua.TypeInt32)),
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	waitForIterations(t, eng)

	// Node operations route through the loop goroutine while running.
	require.NoError(t, s.WriteValue(spec.NodeID, ua.NewVariant(int32(5))))
	dv, err := s.ReadValue(spec.NodeID)
	require.NoError(t, err)
	got, err := ua.ScalarOf[int32](dv.Value)
	require.NoError(t, err)
	assert.Equal(t, int32(5), got)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
	assert.True(t, eng.Released())
}

func TestRunFatalEngineFailure(t *testing.T) {
	s, eng := newTestServer(t, nil)

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()

	waitForIterations(t, eng)
	eng.FailIterate(uint32(ua.StatusBadCommunicationError))

	select {
	case err := <-done:
		require.Error(t, err)
		assert.True(t, errors.IsDisconnected(err))
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
	assert.True(t, eng.Released())
}

func TestRunTwiceFails(t *testing.T) {
	s, eng := newTestServer(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	waitForIterations(t, eng)
	cancel()
	require.NoError(t, <-done)

	require.Error(t, s.Run(context.Background()))
}

func TestCloseWithoutRun(t *testing.T) {
	eng := enginetest.NewServerEngine(enginetest.NewSpace())
	s, err := New(eng, Config{})
	require.NoError(t, err)

	require.NoError(t, s.Close())
	assert.True(t, eng.Released())
	require.NoError(t, s.Close())
}

func issueToken(t *testing.T, key []byte, claims jwt.MapClaims) []byte {
	t.Helper()
	if _, ok := claims["exp"]; !ok {
		claims["exp"] = time.Now().Add(time.Hour).Unix()
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	require.NoError(t, err)
	return []byte(signed)
}

func TestTokenAccessControlAdmitsValidToken(t *testing.T) {
	key := []byte("0123456789abcdef")
	s, eng := newTestServer(t, func(cfg *Config) {
		cfg.AccessControl = &TokenAccessControl{Key: key, Issuer: "plant-auth"}
	})

	token := issueToken(t, key, jwt.MapClaims{"iss": "plant-auth", "sub": "operator"})
	status := eng.SimulateSession(engine.IdentityToken{
		Kind:      engine.IdentityIssuedToken,
		TokenData: token,
	}, "operator")
	assert.Equal(t, engine.StatusGood, status)

	stats := s.Statistics()
	assert.Equal(t, uint32(1), stats.CurrentSessions)
	assert.Equal(t, uint32(1), stats.CumulatedSessions)
	assert.Equal(t, uint32(0), stats.RejectedSessions)

	eng.SimulateSessionClose("operator")
	assert.Equal(t, uint32(0), s.Statistics().CurrentSessions)
}

func TestTokenAccessControlRejectsBadToken(t *testing.T) {
	key := []byte("0123456789abcdef")
	s, eng := newTestServer(t, func(cfg *Config) {
		cfg.AccessControl = &TokenAccessControl{Key: key}
	})

	forged := issueToken(t, []byte("wrong-key-wrong-key"), jwt.MapClaims{"sub": "intruder"})
	status := eng.SimulateSession(engine.IdentityToken{
		Kind:      engine.IdentityIssuedToken,
		TokenData: forged,
	}, "intruder")
	assert.Equal(t, uint32(ua.StatusBadIdentityTokenRejected), status)

	anon := eng.SimulateSession(engine.IdentityToken{Kind: engine.IdentityAnonymous}, "")
	assert.Equal(t, uint32(ua.StatusBadIdentityTokenRejected), anon)

	stats := s.Statistics()
	assert.Equal(t, uint32(2), stats.RejectedSessions)
	assert.Equal(t, uint32(0), stats.CurrentSessions)
}

func TestTokenAccessControlIssuerMismatch(t *testing.T) {
	key := []byte("0123456789abcdef")
	_, eng := newTestServer(t, func(cfg *Config) {
		cfg.AccessControl = &TokenAccessControl{Key: key, Issuer: "plant-auth"}
	})

	token := issueToken(t, key, jwt.MapClaims{"iss": "someone-else"})
	status := eng.SimulateSession(engine.IdentityToken{
		Kind:      engine.IdentityIssuedToken,
		TokenData: token,
	}, "operator")
	assert.Equal(t, uint32(ua.StatusBadIdentityTokenRejected), status)
}

func TestStatisticsCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, eng := newTestServer(t, func(cfg *Config) {
		cfg.Metrics = reg
	})

	eng.SimulateSession(engine.IdentityToken{Kind: engine.IdentityAnonymous}, "anon")

	families, err := reg.Gather()
	require.NoError(t, err)
	values := map[string]float64{}
	for _, mf := range families {
		values[mf.GetName()] = mf.GetMetric()[0].GetGauge().GetValue()
	}
	assert.Equal(t, float64(1), values["opcua_server_current_sessions"])
	assert.Equal(t, float64(1), values["opcua_server_cumulated_sessions"])
	assert.Equal(t, float64(0), values["opcua_server_rejected_sessions"])
	assert.Contains(t, values, "opcua_server_current_secure_channels")
}
