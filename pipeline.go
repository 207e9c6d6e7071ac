package stochastic

import (
	"errors"
	"fmt"
	"image"
	_ "image/jpeg" // random mask decoders
	_ "image/png"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/stochastic/internal/gpu"
	"github.com/gogpu/wgpu/hal"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Frame is the host clock for one Render call.
type Frame struct {
	// Count is the monotonically increasing frame counter.
	Count uint64

	// Time is the host time in seconds.
	Time float64

	// Interactive is set while the host is in play mode. Accumulation only
	// runs in interactive frames.
	Interactive bool
}

// Pipeline renders cameras with stochastic transparency.
//
// A Pipeline is not safe for concurrent use, with two exceptions: its
// settings source may be updated from any goroutine, and LoadRandomMask
// may be called from a settings watcher while frames render.
type Pipeline struct {
	device hal.Device
	queue  hal.Queue
	scene  Scene
	opts   options

	settings SettingsSource

	buffers   *gpu.FrameBufferSet
	globals   *gpu.Globals
	final     *gpu.FinalProgram
	neutral   *gpu.Texture2D
	submitter *gpu.Submitter

	noise  *NoiseSupplier
	accum  *AccumulationController
	bridge *PostProcessBridge

	masksMu sync.Mutex
	masks   map[string]*gpu.Texture2D

	// historyDirty is set when the history buffers were (re)allocated and
	// have not been cleared since.
	historyDirty bool
	closed       bool
}

// New creates a pipeline drawing scene on device. All frame buffers are
// allocated at the initial viewport size; an allocation failure is
// returned and no pipeline is created.
func New(device hal.Device, queue hal.Queue, scene Scene, opts ...Option) (*Pipeline, error) {
	if device == nil || queue == nil {
		return nil, ErrNilDevice
	}
	if scene == nil {
		return nil, ErrNilScene
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.validate(); err != nil {
		return nil, err
	}

	p := &Pipeline{
		device:   device,
		queue:    queue,
		scene:    scene,
		opts:     o,
		settings: o.settings,
		masks:    make(map[string]*gpu.Texture2D),
	}
	if p.settings == nil {
		p.settings = NewSettingsStore(DefaultSettings())
	}

	p.buffers = gpu.NewFrameBufferSet(device, gpu.FrameBufferConfig{
		SampleCount:         o.sampleCount,
		DedicatedBackground: o.background == BackgroundDedicated,
	})
	if err := p.buffers.Allocate(o.width, o.height); err != nil {
		return nil, fmt.Errorf("allocate frame buffers: %w", err)
	}
	p.historyDirty = true

	var err error
	if p.globals, err = gpu.NewGlobals(device, queue, o.globalsSlots); err != nil {
		p.release()
		return nil, err
	}
	if p.final, err = gpu.NewFinalProgram(device, p.globals.Layout(), o.shaderMode); err != nil {
		p.release()
		return nil, err
	}
	if p.neutral, err = gpu.NewNeutralTexture(device, queue); err != nil {
		p.release()
		return nil, err
	}
	p.submitter = gpu.NewSubmitter(device, queue)
	p.bridge = NewPostProcessBridge()
	p.noise = NewNoiseSupplier(o.rand, p.neutral.View(), p.bridge)
	p.accum = NewAccumulationController()

	Logger().Info("stochastic pipeline created",
		"samples", o.sampleCount,
		"background", o.background.String(),
		"resolve", o.resolve.String(),
		"shader_mode", o.shaderMode.String(),
		"width", o.width, "height", o.height)
	return p, nil
}

// Render draws every camera in order. Settings are read once and apply to
// every camera of the frame. Cameras are independent: a camera that fails
// is dropped and its error joined into the returned error while the
// remaining cameras still render. Cameras whose culling parameters cannot
// be derived are skipped without error.
func (p *Pipeline) Render(f Frame, cameras []*Camera) (*FrameStats, error) {
	if p.closed {
		return nil, ErrClosed
	}
	start := time.Now()
	stats := &FrameStats{Frame: f.Count, Cameras: make([]CameraStats, 0, len(cameras))}

	settings := p.settings.Settings().Normalize()
	var errs []error
	for _, cam := range cameras {
		cs := p.renderCamera(f, cam, settings)
		if cs.Err != nil {
			Logger().Warn("camera frame dropped", "camera", cs.Name, "frame", f.Count, "err", cs.Err)
			errs = append(errs, cs.Err)
		}
		stats.Cameras = append(stats.Cameras, cs)
	}
	stats.Elapsed = time.Since(start)
	return stats, errors.Join(errs...)
}

// SetSettings replaces the settings source. It takes effect on the next
// frame.
func (p *Pipeline) SetSettings(s SettingsSource) {
	if s == nil {
		s = StaticSettings(DefaultSettings())
	}
	p.settings = s
}

// Settings returns the settings source.
func (p *Pipeline) Settings() SettingsSource { return p.settings }

// GlobalsLayout returns the @group(0) layout material pipelines must use
// for the frame globals.
func (p *Pipeline) GlobalsLayout() hal.BindGroupLayout { return p.globals.Layout() }

// ColorFormat is the format of the color, background and stochastic color
// targets material pipelines render into.
func (p *Pipeline) ColorFormat() gputypes.TextureFormat { return gpu.HDRFormat }

// TransmissionFormat is the format of the Transmittance pass target.
func (p *Pipeline) TransmissionFormat() gputypes.TextureFormat { return gpu.TransmissionFormat }

// DepthFormat is the format of the depth-stencil buffer.
func (p *Pipeline) DepthFormat() gputypes.TextureFormat { return gpu.DepthFormat }

// SampleCount is the MSAA sample count of every stochastic buffer.
func (p *Pipeline) SampleCount() uint32 { return p.opts.sampleCount }

// BackgroundMode returns where the sky is drawn.
func (p *Pipeline) BackgroundMode() BackgroundMode { return p.opts.background }

// PostProcess returns the bridge to post-processing collaborators. Hosts
// that own the blue noise pool publish it here.
func (p *Pipeline) PostProcess() *PostProcessBridge { return p.bridge }

// History returns the history pair bookkeeping.
func (p *Pipeline) History() HistoryState { return p.accum.History() }

// LoadRandomMask decodes the image at path (PNG, JPEG, BMP, TIFF or WebP)
// and uploads it as a random mask. Masks are cached by path and live until
// the pipeline is destroyed. Its signature matches MaskLoader.
func (p *Pipeline) LoadRandomMask(path string) (hal.TextureView, error) {
	key := filepath.Clean(path)
	p.masksMu.Lock()
	defer p.masksMu.Unlock()
	if p.closed {
		return nil, ErrClosed
	}
	if t, ok := p.masks[key]; ok {
		return t.View(), nil
	}

	f, err := os.Open(key)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, format, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode random mask %s: %w", key, err)
	}
	t, err := gpu.UploadImage(p.device, p.queue, "random_mask_"+filepath.Base(key), img)
	if err != nil {
		return nil, err
	}
	p.masks[key] = t
	Logger().Debug("random mask loaded", "path", key, "format", format, "width", t.Width, "height", t.Height)
	return t.View(), nil
}

// UploadRandomMask uploads img as a random mask owned by the pipeline. Each
// call creates a new texture; earlier ones stay valid until Destroy.
func (p *Pipeline) UploadRandomMask(name string, img image.Image) (hal.TextureView, error) {
	p.masksMu.Lock()
	defer p.masksMu.Unlock()
	if p.closed {
		return nil, ErrClosed
	}
	t, err := gpu.UploadImage(p.device, p.queue, "random_mask_"+name, img)
	if err != nil {
		return nil, err
	}
	p.masks[fmt.Sprintf("upload:%s#%d", name, len(p.masks))] = t
	return t.View(), nil
}

// Destroy waits for submitted work and releases every GPU object. Safe to
// call more than once; Render returns ErrClosed afterwards.
func (p *Pipeline) Destroy() {
	if p.closed {
		return
	}
	p.release()
	Logger().Info("stochastic pipeline destroyed")
}

func (p *Pipeline) release() {
	if p.submitter != nil {
		p.submitter.Drain()
	}
	p.masksMu.Lock()
	for k, t := range p.masks {
		t.Destroy(p.device)
		delete(p.masks, k)
	}
	p.closed = true
	p.masksMu.Unlock()

	if p.neutral != nil {
		p.neutral.Destroy(p.device)
		p.neutral = nil
	}
	if p.final != nil {
		p.final.Destroy()
		p.final = nil
	}
	if p.globals != nil {
		p.globals.Destroy()
	}
	if p.buffers != nil {
		p.buffers.Release()
	}
}
