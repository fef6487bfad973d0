// Package server manages an address space over a server protocol engine.
//
// The server owns an event loop goroutine that is the sole caller of the
// engine once Run starts. Node management operations work in two phases:
// before Run they call the engine directly, so the address space can be
// populated during construction; while running they are routed through
// the loop goroutine, preserving the single-writer rule.
//
// Session admission and per-node authorization go through AccessControl.
// The default admits everything; TokenAccessControl validates signed
// issued tokens.
package server
