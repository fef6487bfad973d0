// Package ua implements the value model of the binding: a closed, tagged
// union over the protocol's built-in types with checked narrowing, deep
// cloning and an exact-inverse codec against the engine's raw value
// representation.
//
// A Variant is either empty, a scalar, or a homogeneous array. Arrays keep
// the protocol's three distinguishable states - invalid (null), empty, and
// valid - because collapsing them would hide the difference between
// "no data" and "zero rows" from monitoring consumers.
//
// All types in this package are immutable value types with no shared
// mutable state. A Variant owns the memory its payload references; Clone
// performs the deep copy required before handing a value to another
// goroutine, mirroring the foreign representation's lack of reference
// counting.
//
// Decoding never panics on malformed input. Narrowing helpers such as
// ScalarOf and ArrayOf fail with a type-mismatch error naming both the
// requested and the actual type tag.
package ua
