package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/opcfoundry/opcua-runtime/client"
	"github.com/opcfoundry/opcua-runtime/engine"
	"github.com/opcfoundry/opcua-runtime/engine/enginetest"
	"github.com/opcfoundry/opcua-runtime/ua"
)

func main() {
	var (
		endpoint    = flag.String("endpoint", "opc.tcp://localhost:4840", "Server endpoint URL")
		nodeStr     = flag.String("node", "i=85", "Node id to operate on")
		browse      = flag.Bool("browse", false, "Browse the node's forward references")
		read        = flag.Bool("read", false, "Read the node's value")
		writeStr    = flag.String("write", "", "Write an int32 value to the node")
		watch       = flag.Bool("watch", false, "Subscribe to the node's value changes")
		demo        = flag.Bool("demo", false, "Run against the built-in in-memory server")
		pageSize    = flag.Int("page", 0, "Browse page size of the demo server (0 = unpaged)")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
		verbose     = flag.Bool("v", false, "Verbose logging")
	)
	flag.Parse()

	if *interactive {
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			fmt.Fprintln(os.Stderr, "Error: interactive mode needs a terminal")
			os.Exit(1)
		}
		if err := runInteractive(*endpoint, *demo, *pageSize); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if !*browse && !*read && *writeStr == "" && !*watch {
		*browse = true
	}
	if err := run(*endpoint, *nodeStr, *browse, *read, *writeStr, *watch, *demo, *pageSize, *verbose); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newEngine picks the protocol engine for the session. Only the
// in-memory demo engine ships with this binary; a real stack plugs in
// through engine.ClientEngine.
func newEngine(demo bool, pageSize int) (engine.ClientEngine, error) {
	if !demo {
		return nil, fmt.Errorf("no protocol engine linked in this build, use -demo")
	}
	space := demoSpace()
	return enginetest.NewClientEngine(space, enginetest.ClientOptions{BrowsePageSize: pageSize}), nil
}

// demoSpace seeds a small address space: a Demo folder with a few
// variables whose values can be read, written and watched.
func demoSpace() *enginetest.Space {
	space := enginetest.NewSpace()
	folder := engine.RawNodeID{Namespace: 1, Numeric: 1000}
	space.AddNode(engine.NodeDefinition{
		NodeClass:       engine.NodeClassObject,
		RequestedID:     folder,
		ParentID:        ua.EncodeNodeID(ua.NodeIDObjectsFolder),
		ReferenceTypeID: ua.EncodeNodeID(ua.NodeIDOrganizes),
		BrowseName:      engine.RawQualifiedName{Namespace: 1, Name: "Demo"},
		Attributes: engine.RawObjectAttributes{
			DisplayName: engine.RawLocalizedText{Text: "Demo"},
		},
	})
	vars := []struct {
		num   uint32
		name  string
		value int32
	}{
		{1001, "Temperature", 21},
		{1002, "Pressure", 1013},
		{1003, "Counter", 0},
	}
	for _, v := range vars {
		space.AddNode(engine.NodeDefinition{
			NodeClass:       engine.NodeClassVariable,
			RequestedID:     engine.RawNodeID{Namespace: 1, Numeric: v.num},
			ParentID:        folder,
			ReferenceTypeID: ua.EncodeNodeID(ua.NodeIDHasComponent),
			BrowseName:      engine.RawQualifiedName{Namespace: 1, Name: v.name},
			Attributes: engine.RawVariableAttributes{
				DisplayName: engine.RawLocalizedText{Text: v.name},
				DataType:    engine.RawNodeID{Numeric: uint32(ua.TypeInt32)},
				AccessLevel: 3,
				Value: engine.Raw{
					TypeID: uint32(ua.TypeInt32),
					Form:   engine.FormScalar,
					Scalar: v.value,
				},
			},
		})
	}
	return space
}

func connect(ctx context.Context, endpoint string, demo bool, pageSize int, log *zap.Logger) (*client.Client, error) {
	eng, err := newEngine(demo, pageSize)
	if err != nil {
		return nil, err
	}
	return client.Connect(ctx, eng, client.Config{
		EndpointURL: endpoint,
		CycleTime:   10 * time.Millisecond,
		Logger:      log,
	})
}

func run(endpoint, nodeStr string, browse, read bool, writeStr string, watch, demo bool, pageSize int, verbose bool) error {
	log := zap.NewNop()
	if verbose {
		var err error
		log, err = zap.NewDevelopment()
		if err != nil {
			return err
		}
		defer log.Sync()
	}

	node, err := ua.ParseNodeID(nodeStr)
	if err != nil {
		return fmt.Errorf("parse node id: %w", err)
	}

	ctx := context.Background()
	c, err := connect(ctx, endpoint, demo, pageSize, log)
	if err != nil {
		return err
	}
	defer c.Close()

	fmt.Printf("Connected to %s\n", endpoint)

	if writeStr != "" {
		var v int32
		if _, err := fmt.Sscanf(writeStr, "%d", &v); err != nil {
			return fmt.Errorf("parse write value: %w", err)
		}
		if err := c.WriteValue(ctx, node, ua.NewVariant(v)); err != nil {
			return err
		}
		fmt.Printf("Wrote %d to %s\n", v, node)
	}

	if read {
		v, err := c.ReadValue(ctx, node)
		if err != nil {
			return err
		}
		fmt.Printf("%s = %s\n", node, v)
	}

	if browse {
		refs, err := c.BrowseAll(ctx, node, client.BrowseOptions{
			Direction:       engine.BrowseDirectionForward,
			IncludeSubtypes: true,
		})
		if err != nil {
			return err
		}
		fmt.Printf("%s: %d references\n", node, len(refs))
		for _, r := range refs {
			fmt.Printf("  %-12s %-24s %s\n", r.NodeClass, r.BrowseName, r.NodeID.NodeID)
		}
	}

	if watch {
		return watchNode(ctx, c, node)
	}
	return nil
}

func watchNode(ctx context.Context, c *client.Client, node ua.NodeID) error {
	sub, err := c.Subscribe(ctx, client.SubscriptionParams{})
	if err != nil {
		return err
	}
	stream, err := c.NewMonitoredItem(ctx, sub, node, client.MonitorOptions{})
	if err != nil {
		return err
	}
	fmt.Printf("Watching %s, Ctrl-C to stop\n", node)
	for {
		u, err := stream.Recv(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("%s  %s\n", time.Now().Format(time.RFC3339), u.Value.Value)
	}
}
