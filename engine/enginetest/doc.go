// Package enginetest provides in-memory engine implementations backed
// by a shared address space, so the concurrency machinery can be tested
// without a live protocol stack.
//
// ClientEngine evaluates requests synchronously but delivers their
// completions on the next Iterate, preserving the asynchrony contract
// callers must handle. Writes through either engine trigger monitored
// item notifications on the client's next Iterate, in write order.
// Browse results are paged when BrowsePageSize is set, handing out
// continuation tokens exactly like a size-limited server.
//
// Both engines offer fault injection: a sticky fatal Iterate status,
// one-shot SendRequest failures and duplicated completion delivery.
package enginetest
