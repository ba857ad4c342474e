package domain

import "errors"

// Error classes of the bridge. Point- and registry-level failures are
// absorbed at their call site; only startup configuration errors terminate
// the process.
var (
	// ErrConfig marks a configuration record that cannot produce a point
	// (missing threshold, missing simulator keys, unknown kind). Fatal for
	// that one point only.
	ErrConfig = errors.New("configuration error")

	// ErrResolution marks a configured point name absent from the device
	// endpoint catalog. The point is dropped, the equipment continues.
	ErrResolution = errors.New("resolution error")

	// ErrConversion marks a failed unit conversion. The single ingest call
	// is aborted and the previous value retained.
	ErrConversion = errors.New("conversion error")

	// ErrTransport marks an unreachable device or simulator, or a non-2xx
	// response. Recoverable; the cycle's dependent work is skipped.
	ErrTransport = errors.New("transport error")

	// ErrUnexpectedValue marks a value of the wrong type or shape received
	// from the simulator or the device. The value is discarded.
	ErrUnexpectedValue = errors.New("unexpected value")
)
