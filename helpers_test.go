package stochastic

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"
)

// createNoopDevice creates a noop device and queue for testing.
func createNoopDevice(t *testing.T) (hal.Device, hal.Queue, func()) {
	t.Helper()
	api := noop.API{}
	instance, err := api.CreateInstance(nil)
	if err != nil {
		t.Fatalf("CreateInstance failed: %v", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	openDev, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		t.Fatalf("Open failed: %v", err)
	}
	cleanup := func() {
		openDev.Device.Destroy()
		instance.Destroy()
	}
	return openDev.Device, openDev.Queue, cleanup
}

// recordedPass is one BeginRenderPass call seen by recordingDevice.
type recordedPass struct {
	Label      string
	ColorLoad  gputypes.LoadOp
	ColorClear gputypes.Color
	HasColor   bool
	HasResolve bool
	HasDepth   bool
	DepthLoad  gputypes.LoadOp
}

// recordingDevice wraps a device so that render passes begun on its
// command encoders are logged.
type recordingDevice struct {
	hal.Device
	passes []recordedPass
}

func (d *recordingDevice) CreateCommandEncoder(desc *hal.CommandEncoderDescriptor) (hal.CommandEncoder, error) {
	enc, err := d.Device.CreateCommandEncoder(desc)
	if err != nil {
		return nil, err
	}
	return &recordingEncoder{CommandEncoder: enc, dev: d}, nil
}

func (d *recordingDevice) labels() []string {
	out := make([]string, len(d.passes))
	for i, p := range d.passes {
		out[i] = p.Label
	}
	return out
}

func (d *recordingDevice) find(label string) []recordedPass {
	var out []recordedPass
	for _, p := range d.passes {
		if p.Label == label {
			out = append(out, p)
		}
	}
	return out
}

type recordingEncoder struct {
	hal.CommandEncoder
	dev *recordingDevice
}

func (e *recordingEncoder) BeginRenderPass(desc *hal.RenderPassDescriptor) hal.RenderPassEncoder {
	rp := recordedPass{Label: desc.Label}
	if len(desc.ColorAttachments) > 0 {
		ca := desc.ColorAttachments[0]
		rp.HasColor = true
		rp.ColorLoad = ca.LoadOp
		rp.ColorClear = ca.ClearValue
		rp.HasResolve = ca.ResolveTarget != nil
	}
	if ds := desc.DepthStencilAttachment; ds != nil {
		rp.HasDepth = true
		rp.DepthLoad = ds.DepthLoadOp
	}
	e.dev.passes = append(e.dev.passes, rp)
	return e.CommandEncoder.BeginRenderPass(desc)
}

// fakeCull reports a fixed number of visible renderers.
type fakeCull struct{ n int }

func (c fakeCull) Visible() int { return c.n }

// fakeScene records the calls the pipeline makes.
type fakeScene struct {
	visible int
	culls   []CullingParameters
	draws   []PassDescriptor
	skies   int
}

func (s *fakeScene) Cull(params CullingParameters) CullResults {
	s.culls = append(s.culls, params)
	return fakeCull{n: s.visible}
}

func (s *fakeScene) DrawRenderers(_ hal.RenderPassEncoder, _ CullResults, desc *PassDescriptor) {
	s.draws = append(s.draws, *desc)
}

func (s *fakeScene) DrawSkybox(_ hal.RenderPassEncoder, _ *Camera) {
	s.skies++
}

func (s *fakeScene) drawsNamed(name string) []PassDescriptor {
	var out []PassDescriptor
	for _, d := range s.draws {
		if d.Name == name {
			out = append(out, d)
		}
	}
	return out
}

// fakePostProcess records every context it receives and publishes a noise
// pool on its first call.
type fakePostProcess struct {
	pool  []hal.TextureView
	calls []PostProcessContext
}

func (f *fakePostProcess) Render(ctx *PostProcessContext) {
	f.calls = append(f.calls, *ctx)
	if ctx.Resources == nil && f.pool != nil {
		ctx.Resources = &PostProcessResources{BlueNoise64: f.pool}
	}
}

// stepRand returns 0, 0.25, 0.5, 0.75, 0, ...
type stepRand struct{ n int }

func (r *stepRand) Float32() float32 {
	v := float32(r.n%4) / 4
	r.n++
	return v
}

// newTestTarget creates a presentation target view.
func newTestTarget(t *testing.T, device hal.Device) hal.TextureView {
	t.Helper()
	tex, err := device.CreateTexture(&hal.TextureDescriptor{
		Label:         "test_target",
		Size:          hal.Extent3D{Width: 64, Height: 64, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        gputypes.TextureFormatBGRA8Unorm,
		Usage:         gputypes.TextureUsageRenderAttachment,
	})
	if err != nil {
		t.Fatalf("CreateTexture failed: %v", err)
	}
	view, err := device.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Format:        gputypes.TextureFormatBGRA8Unorm,
		Dimension:     gputypes.TextureViewDimension2D,
		Aspect:        gputypes.TextureAspectAll,
		MipLevelCount: 1,
	})
	if err != nil {
		t.Fatalf("CreateTextureView failed: %v", err)
	}
	return view
}

// newTestCamera returns a camera looking down -Z at the origin.
func newTestCamera(t *testing.T, device hal.Device, name string, w, h int) *Camera {
	t.Helper()
	return &Camera{
		Name:        name,
		PixelWidth:  w,
		PixelHeight: h,
		View:        mgl32.Translate3D(0, 0, -5),
		Projection:  Perspective(mgl32.DegToRad(60), float32(w)/float32(h), 0.1, 100),
		ClearFlags:  ClearSkybox,
		Target:      newTestTarget(t, device),
	}
}

// newTestPipeline builds a pipeline on a recording noop device.
func newTestPipeline(t *testing.T, settings SettingsSource, opts ...Option) (*Pipeline, *recordingDevice, *fakeScene) {
	t.Helper()
	device, queue, cleanup := createNoopDevice(t)
	t.Cleanup(cleanup)

	rec := &recordingDevice{Device: device}
	scene := &fakeScene{visible: 3}
	opts = append([]Option{
		WithSettings(settings),
		WithRandSource(&stepRand{}),
		WithInitialViewport(64, 64),
	}, opts...)
	p, err := New(rec, queue, scene, opts...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(p.Destroy)
	return p, rec, scene
}

func finiteSettings(n int) StaticSettings {
	return StaticSettings{AccumulationMode: AccumulationFinite, AccumulationIterations: n}
}

// fakeView is a texture view with a distinct identity, unlike noop views.
type fakeView struct{ id int }

func (v *fakeView) Destroy()              {}
func (v *fakeView) NativeHandle() uintptr { return uintptr(v.id) }

func fakeViews(n int) []hal.TextureView {
	views := make([]hal.TextureView, n)
	for i := range views {
		views[i] = &fakeView{id: i + 1}
	}
	return views
}
