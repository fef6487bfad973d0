// Package opcua is a concurrency-safe OPC UA client and server binding
// over a single-threaded protocol engine.
//
// The protocol stack behind the engine interfaces is asynchronous and
// strictly single-threaded: one goroutine must drive it, and completions
// arrive as callbacks. This module turns that into an ordinary Go API
// with blocking calls, contexts and channels.
//
// # Architecture Overview
//
// The module is organized into packages with distinct responsibilities:
//
//	opcua/               Root package re-exporting the two facades
//	├── ua/              Value model: Variant, NodeID, DataValue, StatusCode
//	├── engine/          Engine interfaces and the raw wire-level types
//	├── engine/enginetest/ In-memory engines for tests and demos
//	├── driver/          Event loop and request correlation
//	├── monitor/         Subscription streams and notification routing
//	├── arena/           Engine handle ownership tracking
//	├── client/          Client facade: read, write, browse, call, subscribe
//	├── server/          Server facade: nodes, callbacks, access control
//	├── pki/             Certificate and private key material
//	└── errors/          Structured error types
//
// # Quick Start
//
// Connect and read a value:
//
//	c, err := opcua.Connect(ctx, eng, opcua.ClientConfig{
//	    EndpointURL: "opc.tcp://server:4840",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer c.Close()
//
//	v, err := c.ReadValue(ctx, ua.NS0(2258))
//	fmt.Println(v) // current server time
//
// Subscribe to value changes:
//
//	sub, _ := c.Subscribe(ctx, client.SubscriptionParams{})
//	stream, _ := c.NewMonitoredItem(ctx, sub, node, client.MonitorOptions{})
//	for {
//	    u, err := stream.Recv(ctx)
//	    if err != nil {
//	        break
//	    }
//	    fmt.Println(u.Value.Value)
//	}
//
// # Thread Safety
//
// Client and Server are safe for concurrent use: every operation is
// marshalled onto the connection's event loop goroutine, which is the
// only caller of the engine. Streams returned by NewMonitoredItem are
// single-consumer.
//
// # Value Model
//
// Package ua keeps protocol semantics intact in Go terms: a Variant
// distinguishes null arrays from empty ones, a DataValue carries
// presence flags for its status and timestamps, and StatusCode severity
// follows the top two bits. See the ua package documentation.
package opcua
