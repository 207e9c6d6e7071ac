package stochastic

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/stochastic/internal/gpu"
)

// DefaultSampleCount is the MSAA sample count of the stochastic buffers.
const DefaultSampleCount = 8

// Default initial viewport, used to allocate buffers before the first
// camera is seen.
const (
	DefaultViewportWidth  = 1280
	DefaultViewportHeight = 720
)

// BackgroundMode selects where the sky is drawn.
type BackgroundMode int

const (
	// BackgroundDedicated draws the sky into its own buffer; the final pass
	// composites the stochastic layer over it.
	BackgroundDedicated BackgroundMode = iota

	// BackgroundInline draws the sky straight into the color buffer; the
	// final pass blends the stochastic layer over it. Saves one MSAA buffer.
	BackgroundInline
)

// String returns the mode name.
func (m BackgroundMode) String() string {
	switch m {
	case BackgroundDedicated:
		return "Dedicated"
	case BackgroundInline:
		return "Inline"
	default:
		return fmt.Sprintf("BackgroundMode(%d)", int(m))
	}
}

// ResolveMode selects how the final pass reads the multisampled buffers.
type ResolveMode int

const (
	// ResolveMultisample binds the buffers as multisampled textures and
	// averages the samples in the shader.
	ResolveMultisample ResolveMode = iota

	// ResolveHardware reads the single-sample resolve companions.
	ResolveHardware
)

// String returns the mode name.
func (m ResolveMode) String() string {
	switch m {
	case ResolveMultisample:
		return "Multisample"
	case ResolveHardware:
		return "Hardware"
	default:
		return fmt.Sprintf("ResolveMode(%d)", int(m))
	}
}

// Option configures a Pipeline during creation.
//
// Example:
//
//	p, err := stochastic.New(device, queue, scene,
//	    stochastic.WithSampleCount(4),
//	    stochastic.WithBackgroundMode(stochastic.BackgroundInline),
//	    stochastic.WithRandSource(rand.New(rand.NewPCG(1, 2))),
//	)
type Option func(*options)

type options struct {
	sampleCount   uint32
	background    BackgroundMode
	resolve       ResolveMode
	rand          RandSource
	settings      SettingsSource
	width, height uint32
	shaderMode    gpu.ShaderMode
	targetFormat  gputypes.TextureFormat
	globalsSlots  int
}

func defaultOptions() options {
	return options{
		sampleCount:  DefaultSampleCount,
		background:   BackgroundDedicated,
		resolve:      ResolveMultisample,
		width:        DefaultViewportWidth,
		height:       DefaultViewportHeight,
		shaderMode:   gpu.ShaderWGSL,
		targetFormat: gputypes.TextureFormatBGRA8Unorm,
		globalsSlots: MaxAccumulationIterations,
	}
}

func (o *options) validate() error {
	switch o.sampleCount {
	case 1, 2, 4, 8, 16:
	default:
		return fmt.Errorf("%w: %d", ErrInvalidSampleCount, o.sampleCount)
	}
	if o.width == 0 || o.height == 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidViewport, o.width, o.height)
	}
	return nil
}

// WithSampleCount sets the MSAA sample count of the stochastic buffers:
// 1, 2, 4, 8 or 16. The count is fixed for the pipeline's lifetime.
func WithSampleCount(n uint32) Option {
	return func(o *options) {
		o.sampleCount = n
	}
}

// WithBackgroundMode selects a dedicated background buffer or inline sky.
func WithBackgroundMode(m BackgroundMode) Option {
	return func(o *options) {
		o.background = m
	}
}

// WithResolveMode selects how the final pass reads multisampled buffers.
func WithResolveMode(m ResolveMode) Option {
	return func(o *options) {
		o.resolve = m
	}
}

// WithRandSource sets the generator behind the jitter randoms. Pass a seeded
// generator for reproducible frames.
func WithRandSource(r RandSource) Option {
	return func(o *options) {
		o.rand = r
	}
}

// WithSettings sets the settings source read at the start of every camera.
// The default is a SettingsStore holding DefaultSettings.
func WithSettings(s SettingsSource) Option {
	return func(o *options) {
		o.settings = s
	}
}

// WithInitialViewport sets the size the buffers are allocated at during
// construction. Cameras of another size reallocate them.
func WithInitialViewport(width, height uint32) Option {
	return func(o *options) {
		o.width, o.height = width, height
	}
}

// WithShaderPrecompile translates the final program to SPIR-V with naga
// at construction, so shader errors surface from New.
func WithShaderPrecompile() Option {
	return func(o *options) {
		o.shaderMode = gpu.ShaderSPIRV
	}
}

// WithTargetFormat sets the format assumed for camera targets that leave
// TargetFormat undefined.
func WithTargetFormat(f gputypes.TextureFormat) Option {
	return func(o *options) {
		o.targetFormat = f
	}
}
