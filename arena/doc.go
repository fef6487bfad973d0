// Package arena tracks ownership of engine-allocated handles.
//
// The protocol engine hands out raw pointers to manually-managed state:
// client instances, running servers, subscriptions, monitored items,
// continuation points. Each such pointer is wrapped in exactly one Handle
// whose Release invokes the matching engine free function exactly once.
// Handles are not cloneable; components share them by reference.
//
// Releasing a handle while the engine's event loop might still touch the
// underlying pointer is a use-after-free. The owning facades therefore
// funnel every Release through their driver goroutine, after pending
// requests and subscription streams have drained. Observers let tests
// assert exactly that ordering.
package arena
