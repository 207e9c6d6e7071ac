package gpu

import (
	"testing"

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

type bufferWrite struct {
	offset uint64
	data   []byte
}

// recordingQueue captures buffer writes.
type recordingQueue struct {
	hal.Queue
	writes []bufferWrite
}

func (q *recordingQueue) WriteBuffer(buffer hal.Buffer, offset uint64, data []byte) error {
	q.writes = append(q.writes, bufferWrite{offset: offset, data: append([]byte(nil), data...)})
	return q.Queue.WriteBuffer(buffer, offset, data)
}

// stalledQueue reports submissions complete only up to done.
type stalledQueue struct {
	hal.Queue
	done uint64
}

func (q *stalledQueue) PollCompleted() uint64 { return q.done }

// countingDevice counts created and destroyed objects.
type countingDevice struct {
	hal.Device
	textures            int
	views               int
	destroyedTextures   int
	destroyedViews      int
	bindGroups          int
	destroyedBindGroups int
	pipelines           int
	freedBuffers        int
	encoders            int
	destroyedEncoders   int
	labels              []string
}

func (d *countingDevice) CreateTexture(desc *hal.TextureDescriptor) (hal.Texture, error) {
	d.textures++
	d.labels = append(d.labels, desc.Label)
	return d.Device.CreateTexture(desc)
}

func (d *countingDevice) DestroyTexture(t hal.Texture) {
	d.destroyedTextures++
	d.Device.DestroyTexture(t)
}

func (d *countingDevice) CreateTextureView(t hal.Texture, desc *hal.TextureViewDescriptor) (hal.TextureView, error) {
	d.views++
	return d.Device.CreateTextureView(t, desc)
}

func (d *countingDevice) DestroyTextureView(v hal.TextureView) {
	d.destroyedViews++
	d.Device.DestroyTextureView(v)
}

func (d *countingDevice) CreateBindGroup(desc *hal.BindGroupDescriptor) (hal.BindGroup, error) {
	d.bindGroups++
	return d.Device.CreateBindGroup(desc)
}

func (d *countingDevice) DestroyBindGroup(bg hal.BindGroup) {
	d.destroyedBindGroups++
	d.Device.DestroyBindGroup(bg)
}

func (d *countingDevice) CreateRenderPipeline(desc *hal.RenderPipelineDescriptor) (hal.RenderPipeline, error) {
	d.pipelines++
	return d.Device.CreateRenderPipeline(desc)
}

func (d *countingDevice) FreeCommandBuffer(b hal.CommandBuffer) {
	d.freedBuffers++
	d.Device.FreeCommandBuffer(b)
}

func (d *countingDevice) CreateCommandEncoder(desc *hal.CommandEncoderDescriptor) (hal.CommandEncoder, error) {
	d.encoders++
	enc, err := d.Device.CreateCommandEncoder(desc)
	if err != nil {
		return nil, err
	}
	return &countingEncoder{CommandEncoder: enc, dev: d}, nil
}

type countingEncoder struct {
	hal.CommandEncoder
	dev    *countingDevice
	passes []*hal.RenderPassDescriptor
}

func (e *countingEncoder) BeginRenderPass(desc *hal.RenderPassDescriptor) hal.RenderPassEncoder {
	e.passes = append(e.passes, desc)
	return e.CommandEncoder.BeginRenderPass(desc)
}

func (e *countingEncoder) Destroy() {
	e.dev.destroyedEncoders++
	e.CommandEncoder.Destroy()
}

// testView is a texture view with a distinct identity.
type testView struct{ id int }

func (v *testView) Destroy()              {}
func (v *testView) NativeHandle() uintptr { return uintptr(v.id) }

// heldReleaser keeps deferred releases until run is called.
type heldReleaser struct {
	pending []func()
}

func (r *heldReleaser) Defer(release func()) { r.pending = append(r.pending, release) }

func (r *heldReleaser) run() {
	for _, fn := range r.pending {
		fn()
	}
	r.pending = nil
}
