// Package errors provides the structured error type shared by all layers
// of the binding.
//
// Every error carries a Phase (which processing stage produced it) and a
// Kind (what went wrong). Type-narrowing failures additionally name the
// requested and the actual type tag, and status-code failures carry the
// raw protocol code. Errors compare with errors.Is on (Phase, Kind), so
// callers can match categories without string inspection:
//
//	if errors.Is(err, &errors.Error{Phase: errors.PhaseRequest, Kind: errors.KindCancelled}) {
//		// request was abandoned during shutdown
//	}
//
// Kinds DuplicateCompletion, UnknownRequest and Internal flag defects in
// the binding itself rather than environmental conditions; they are
// reported through the same channel but logged prominently at the point
// of detection.
package errors
