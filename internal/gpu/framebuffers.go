package gpu

import (
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// Buffer formats used by the stochastic pipeline. The color chain runs in
// half-float HDR; transmission only needs a single channel.
const (
	HDRFormat          = gputypes.TextureFormatRGBA16Float
	TransmissionFormat = gputypes.TextureFormatR16Float
	DepthFormat        = gputypes.TextureFormatDepth32Float
)

// Buffer names double as debug labels.
const (
	ColorBufferName           = "ColorBuffer"
	BackgroundBufferName      = "BackgroundBuffer"
	StochasticColorBufferName = "StochasticColorBuffer"
	DepthStencilBufferName    = "DepthStencilBuffer"
	TransmissionBufferName    = "TransmissionBuffer"
	HistoryBuffer0Name        = "HistoryBuffer0"
	HistoryBuffer1Name        = "HistoryBuffer1"
)

// ErrInvalidSize is returned when a buffer set is allocated with a zero
// dimension.
var ErrInvalidSize = errors.New("gpu: frame buffer size must be non-zero")

// FrameBuffer is one render target of the pipeline. Multisampled color
// buffers own a single-sample resolve companion so later passes can bind
// either the per-sample data or the resolved image.
//
// Format and sample count are fixed at creation; only the size follows the
// viewport.
type FrameBuffer struct {
	Name        string
	Format      gputypes.TextureFormat
	SampleCount uint32

	usage   gputypes.TextureUsage
	resolve bool

	tex         hal.Texture
	view        hal.TextureView
	resolveTex  hal.Texture
	resolveView hal.TextureView

	width, height uint32
}

// View returns the attachment view. For multisampled buffers this is the
// multisampled image.
func (b *FrameBuffer) View() hal.TextureView { return b.view }

// Texture returns the backing texture.
func (b *FrameBuffer) Texture() hal.Texture { return b.tex }

// ResolveView returns the single-sample companion view, or nil when the
// buffer has none.
func (b *FrameBuffer) ResolveView() hal.TextureView { return b.resolveView }

// ResolveTexture returns the single-sample companion texture, or nil.
func (b *FrameBuffer) ResolveTexture() hal.Texture { return b.resolveTex }

// Multisampled reports whether the buffer has more than one sample.
func (b *FrameBuffer) Multisampled() bool { return b.SampleCount > 1 }

// Allocated reports whether the buffer currently holds GPU memory.
func (b *FrameBuffer) Allocated() bool { return b.tex != nil }

// Size returns the current dimensions.
func (b *FrameBuffer) Size() (uint32, uint32) { return b.width, b.height }

// ResolveSample returns the view a sampling pass should read: the resolve
// companion for multisampled buffers, the buffer itself otherwise.
func ResolveSample(b *FrameBuffer) hal.TextureView {
	if b == nil {
		return nil
	}
	if b.resolveView != nil {
		return b.resolveView
	}
	return b.view
}

func (b *FrameBuffer) create(device hal.Device, w, h uint32) error {
	size := hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1}

	tex, err := device.CreateTexture(&hal.TextureDescriptor{
		Label:         b.Name,
		Size:          size,
		MipLevelCount: 1,
		SampleCount:   b.SampleCount,
		Dimension:     gputypes.TextureDimension2D,
		Format:        b.Format,
		Usage:         b.usage,
	})
	if err != nil {
		return fmt.Errorf("create %s texture: %w", b.Name, err)
	}
	b.tex = tex

	view, err := device.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label:         b.Name + "_view",
		Format:        b.Format,
		Dimension:     gputypes.TextureViewDimension2D,
		Aspect:        gputypes.TextureAspectAll,
		MipLevelCount: 1,
	})
	if err != nil {
		b.destroy(device)
		return fmt.Errorf("create %s view: %w", b.Name, err)
	}
	b.view = view

	if b.resolve && b.SampleCount > 1 {
		resolveTex, err := device.CreateTexture(&hal.TextureDescriptor{
			Label:         b.Name + "_resolve",
			Size:          size,
			MipLevelCount: 1,
			SampleCount:   1,
			Dimension:     gputypes.TextureDimension2D,
			Format:        b.Format,
			Usage:         b.usage | gputypes.TextureUsageCopySrc,
		})
		if err != nil {
			b.destroy(device)
			return fmt.Errorf("create %s resolve texture: %w", b.Name, err)
		}
		b.resolveTex = resolveTex

		resolveView, err := device.CreateTextureView(resolveTex, &hal.TextureViewDescriptor{
			Label:         b.Name + "_resolve_view",
			Format:        b.Format,
			Dimension:     gputypes.TextureViewDimension2D,
			Aspect:        gputypes.TextureAspectAll,
			MipLevelCount: 1,
		})
		if err != nil {
			b.destroy(device)
			return fmt.Errorf("create %s resolve view: %w", b.Name, err)
		}
		b.resolveView = resolveView
	}

	b.width, b.height = w, h
	return nil
}

// detach moves the GPU objects of b into a new FrameBuffer and leaves b
// unallocated.
func (b *FrameBuffer) detach() *FrameBuffer {
	old := &FrameBuffer{
		Name:        b.Name,
		tex:         b.tex,
		view:        b.view,
		resolveTex:  b.resolveTex,
		resolveView: b.resolveView,
	}
	b.tex, b.view, b.resolveTex, b.resolveView = nil, nil, nil, nil
	b.width, b.height = 0, 0
	return old
}

// destroy releases views before their textures, companion first.
func (b *FrameBuffer) destroy(device hal.Device) {
	if b.resolveView != nil {
		device.DestroyTextureView(b.resolveView)
		b.resolveView = nil
	}
	if b.resolveTex != nil {
		device.DestroyTexture(b.resolveTex)
		b.resolveTex = nil
	}
	if b.view != nil {
		device.DestroyTextureView(b.view)
		b.view = nil
	}
	if b.tex != nil {
		device.DestroyTexture(b.tex)
		b.tex = nil
	}
	b.width, b.height = 0, 0
}

// FrameBufferConfig fixes the per-object properties of a FrameBufferSet.
type FrameBufferConfig struct {
	// SampleCount is the MSAA sample count of the stochastic targets.
	SampleCount uint32

	// DedicatedBackground allocates a separate buffer for the sky so the
	// final pass composites it instead of blending over the color buffer.
	DedicatedBackground bool
}

// FrameBufferSet owns every render target the pipeline draws into.
//
//   - Color: HDR, MSAA + resolve. Final composite output.
//   - Background: HDR, MSAA + resolve. Only with DedicatedBackground.
//   - StochasticColor: HDR, MSAA + resolve.
//   - DepthStencil: Depth32Float, MSAA.
//   - Transmission: R16Float, MSAA + resolve.
//   - History[0], History[1]: HDR, single sample.
type FrameBufferSet struct {
	device hal.Device
	cfg    FrameBufferConfig

	Color           *FrameBuffer
	Background      *FrameBuffer
	StochasticColor *FrameBuffer
	DepthStencil    *FrameBuffer
	Transmission    *FrameBuffer
	History         [2]*FrameBuffer

	width, height uint32
	generation    uint64
}

// NewFrameBufferSet describes the buffer set without allocating GPU memory.
// A zero sample count is treated as single-sampled.
func NewFrameBufferSet(device hal.Device, cfg FrameBufferConfig) *FrameBufferSet {
	if cfg.SampleCount == 0 {
		cfg.SampleCount = 1
	}
	target := gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageTextureBinding
	history := target | gputypes.TextureUsageCopySrc | gputypes.TextureUsageCopyDst

	s := &FrameBufferSet{
		device: device,
		cfg:    cfg,
		Color: &FrameBuffer{
			Name: ColorBufferName, Format: HDRFormat, SampleCount: cfg.SampleCount,
			usage: target, resolve: true,
		},
		StochasticColor: &FrameBuffer{
			Name: StochasticColorBufferName, Format: HDRFormat, SampleCount: cfg.SampleCount,
			usage: target, resolve: true,
		},
		DepthStencil: &FrameBuffer{
			Name: DepthStencilBufferName, Format: DepthFormat, SampleCount: cfg.SampleCount,
			usage: target,
		},
		Transmission: &FrameBuffer{
			Name: TransmissionBufferName, Format: TransmissionFormat, SampleCount: cfg.SampleCount,
			usage: target, resolve: true,
		},
		History: [2]*FrameBuffer{
			{Name: HistoryBuffer0Name, Format: HDRFormat, SampleCount: 1, usage: history},
			{Name: HistoryBuffer1Name, Format: HDRFormat, SampleCount: 1, usage: history},
		},
	}
	if cfg.DedicatedBackground {
		s.Background = &FrameBuffer{
			Name: BackgroundBufferName, Format: HDRFormat, SampleCount: cfg.SampleCount,
			usage: target, resolve: true,
		}
	}
	return s
}

// Config returns the configuration the set was created with.
func (s *FrameBufferSet) Config() FrameBufferConfig { return s.cfg }

// Buffers lists the buffers in allocation order. Release walks it backwards.
func (s *FrameBufferSet) Buffers() []*FrameBuffer {
	out := make([]*FrameBuffer, 0, 7)
	out = append(out, s.Color)
	if s.Background != nil {
		out = append(out, s.Background)
	}
	return append(out, s.StochasticColor, s.DepthStencil, s.Transmission, s.History[0], s.History[1])
}

// Size returns the current allocation size.
func (s *FrameBufferSet) Size() (uint32, uint32) { return s.width, s.height }

// Generation increments every time the buffers are reallocated. Caches of
// bind groups that reference buffer views compare it to detect staleness.
func (s *FrameBufferSet) Generation() uint64 { return s.generation }

// Allocated reports whether the set currently holds GPU memory.
func (s *FrameBufferSet) Allocated() bool { return s.Color.Allocated() }

// Allocate creates every buffer at the given size, destroying any previous
// allocation at once. On failure the buffers created so far are released
// and the error is returned.
func (s *FrameBufferSet) Allocate(w, h uint32) error {
	return s.allocate(w, h, nil)
}

// Ensure reallocates the buffers when the requested size differs from the
// current one. Formats and sample counts are unchanged. The replaced
// buffers go to r, which destroys them once submitted work no longer
// references them; a nil r destroys them at once. It reports whether a
// reallocation happened.
func (s *FrameBufferSet) Ensure(w, h uint32, r Releaser) (bool, error) {
	if s.width == w && s.height == h && s.Allocated() {
		return false, nil
	}
	if err := s.allocate(w, h, r); err != nil {
		return false, err
	}
	return true, nil
}

func (s *FrameBufferSet) allocate(w, h uint32, r Releaser) error {
	if w == 0 || h == 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidSize, w, h)
	}
	s.retire(r)
	for _, b := range s.Buffers() {
		if err := b.create(s.device, w, h); err != nil {
			s.Release()
			return err
		}
	}
	s.width, s.height = w, h
	s.generation++
	slogger().Debug("frame buffers allocated",
		"width", w, "height", h,
		"samples", s.cfg.SampleCount,
		"dedicated_background", s.cfg.DedicatedBackground)
	return nil
}

// retire detaches the current allocation and hands it to r, in reverse
// allocation order.
func (s *FrameBufferSet) retire(r Releaser) {
	bufs := s.Buffers()
	var old []*FrameBuffer
	for i := len(bufs) - 1; i >= 0; i-- {
		if bufs[i].Allocated() {
			old = append(old, bufs[i].detach())
		}
	}
	s.width, s.height = 0, 0
	if len(old) == 0 {
		return
	}
	device := s.device
	releaseWith(r, func() {
		for _, b := range old {
			b.destroy(device)
		}
	})
}

// Release destroys all buffers in reverse allocation order. Safe to call
// more than once.
func (s *FrameBufferSet) Release() {
	bufs := s.Buffers()
	for i := len(bufs) - 1; i >= 0; i-- {
		bufs[i].destroy(s.device)
	}
	s.width, s.height = 0, 0
}
