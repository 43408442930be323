// Package errors provides standardized error handling patterns for speechcore components.
//
// # Overview
//
// The runtime distinguishes five kinds of failure:
//
//   - Absence: a query that legitimately has no result (unsupported capability,
//     unknown service, unknown task id). Absence is never an error; APIs return
//     (value, false).
//   - Usage fault: the caller violated a precondition (Start without a reader,
//     site of the wrong type). Classified Invalid and returned immediately.
//   - Consistency fault: an internal invariant does not hold (the two capability
//     resolution paths disagree). Raised with panic(*ConsistencyFault); IsFatal
//     reports true for it.
//   - Runtime fault while streaming: a read or process error inside the audio
//     pump. Reported through the owning site's error channel, classified Transient
//     when wrapped. Never retried automatically.
//   - Scheduling fault: the thread service cannot accept or run a task. Delivered
//     through the task's promise as ErrShuttingDown.
//
// # Error Wrapping Pattern
//
// All error wrapping follows the standardized format:
//
//	"component.method: action failed: %w"
//
// Three wrapper functions provide classification-aware wrapping:
//
//	errors.WrapTransient(err, "Component", "Method", "action")  // runtime / scheduling faults
//	errors.WrapInvalid(err, "Component", "Method", "action")    // usage faults
//	errors.WrapFatal(err, "Component", "Method", "action")      // unrecoverable errors
//
// The generic Wrap() function preserves the original error's classification:
//
//	errors.Wrap(err, "Component", "Method", "action")
//
// # Integration with errors.As/Is
//
//	var ce *errors.ClassifiedError
//	if errors.As(err, &ce) {
//	    logger.Warn("usage fault", "component", ce.Component, "class", ce.Class)
//	}
//
//	if errors.Is(err, errors.ErrNoReader) {
//	    // attach a reader first
//	}
package errors
