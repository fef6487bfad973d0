// Package monitor turns the engine's push-style notification callbacks
// into per-item streams a consumer can range over.
//
// The engine delivers all notifications for a connection through one
// callback on the driver goroutine. Router fans them out to ItemStream
// buffers keyed by subscription and monitored item id. Publication never
// blocks: when a consumer falls behind, the newest notification is
// dropped and the stream's Lost counter advances, so the loop goroutine
// stays responsive no matter how slow the reader is.
//
// A stream ends permanently when its item is deleted, its subscription
// is deleted, or the connection is lost. Buffered notifications remain
// receivable after the end; the terminal error is reported once the
// buffer is drained.
package monitor
