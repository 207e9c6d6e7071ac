package stochastic

import "errors"

// Errors returned by the pipeline.
var (
	// ErrNilDevice is returned when New receives a nil device or queue.
	ErrNilDevice = errors.New("stochastic: nil device or queue")

	// ErrProviderNotHAL is returned when a device provider does not expose
	// gogpu/wgpu HAL objects.
	ErrProviderNotHAL = errors.New("stochastic: device provider does not expose a HAL device")

	// ErrNilScene is returned when New receives no scene.
	ErrNilScene = errors.New("stochastic: nil scene")

	// ErrInvalidSampleCount is returned for MSAA sample counts other than
	// 1, 2, 4, 8 or 16.
	ErrInvalidSampleCount = errors.New("stochastic: invalid MSAA sample count")

	// ErrInvalidViewport is returned for a zero initial viewport.
	ErrInvalidViewport = errors.New("stochastic: invalid viewport")

	// ErrNoTarget is returned for a camera without a presentation target.
	ErrNoTarget = errors.New("stochastic: camera has no target")

	// ErrClosed is returned when rendering with a destroyed pipeline.
	ErrClosed = errors.New("stochastic: pipeline destroyed")

	// ErrUnknownAccumulationMode is returned when parsing an unrecognized
	// accumulation mode name.
	ErrUnknownAccumulationMode = errors.New("stochastic: unknown accumulation mode")
)
