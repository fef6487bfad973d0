// Package client is the connection facade: a synchronous, goroutine-safe
// API over the asynchronous protocol engine.
//
// Every operation submits its request onto the connection's event loop
// goroutine and suspends the caller on a completion channel, so any
// number of goroutines can issue requests concurrently while the engine
// itself stays single-threaded. Contexts bound each operation; a caller
// that gives up abandons its request without disturbing others.
//
// Teardown is ordered: the loop stops, pending requests fail with
// cancellation errors, subscription streams end, and the engine handle
// is released last, after the final engine call has returned.
package client
