// Package driver owns the one goroutine allowed to advance a connection's
// protocol engine, and correlates asynchronous requests with the
// completion callbacks that engine invokes.
//
// The engine's "iterate" step is synchronous and not reentrant: it
// processes pending network and timer work and dispatches callbacks
// before returning. Loop is the sole caller of that step. Everything else
// in the binding interacts with the engine by submitting closures onto
// the loop goroutine; results travel back through one-shot completion
// slots managed by Correlator.
//
// Completion callbacks do bounded, non-blocking work - route the response
// and return - so the engine regains control promptly. Callers awaiting a
// result suspend on a channel; the loop itself is never awaited from
// within itself.
package driver
