package opcua

import (
	"context"

	"github.com/opcfoundry/opcua-runtime/client"
	"github.com/opcfoundry/opcua-runtime/engine"
	"github.com/opcfoundry/opcua-runtime/server"
)

// Client is the connection facade over a client protocol engine.
type Client = client.Client

// Server manages an address space over a server protocol engine.
type Server = server.Server

// ClientConfig carries the client connection settings.
type ClientConfig = client.Config

// ServerConfig carries the server construction settings.
type ServerConfig = server.Config

// Connect establishes a session over eng and starts its event loop.
func Connect(ctx context.Context, eng engine.ClientEngine, cfg ClientConfig) (*Client, error) {
	return client.Connect(ctx, eng, cfg)
}

// NewServer wraps eng; populate the address space, then call Run.
func NewServer(eng engine.ServerEngine, cfg ServerConfig) (*Server, error) {
	return server.New(eng, cfg)
}
