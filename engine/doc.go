// Package engine declares the boundary to the underlying OPC UA protocol
// stack.
//
// The stack itself (wire codec, secure channel state machine, network I/O)
// is an external collaborator. This package pins down the narrow surface
// the binding consumes from it: a synchronous, non-reentrant Iterate step
// that processes one batch of network and timer work and invokes registered
// callbacks before returning, asynchronous request dispatch with
// engine-assigned request ids, and the raw value representation (Raw) that
// the ua package's codec round-trips.
//
// Nothing in this package may advance the engine except through the single
// goroutine the driver package owns. Callbacks registered here execute on
// that goroutine and must do only bounded, non-blocking work.
//
// Package enginetest provides an in-memory implementation used by the test
// suite.
package engine
