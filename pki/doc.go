// Package pki carries certificate and private key material into the
// engine as opaque DER buffers. Generation and signing are operator
// tooling; nothing here interprets the bytes.
package pki
