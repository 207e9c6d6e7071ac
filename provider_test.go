package stochastic

import (
	"errors"
	"testing"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// directProvider hands out HAL objects from Device and Queue.
type directProvider struct {
	device hal.Device
	queue  hal.Queue
	format gputypes.TextureFormat
}

func (p *directProvider) Device() gpucontext.Device             { return p.device }
func (p *directProvider) Queue() gpucontext.Queue               { return p.queue }
func (p *directProvider) SurfaceFormat() gputypes.TextureFormat { return p.format }
func (p *directProvider) Adapter() gpucontext.Adapter           { return nil }
func (p *directProvider) AdapterInfo() gpucontext.AdapterInfo   { return gpucontext.AdapterInfo{Name: "noop"} }

// wrappedProvider hides its HAL objects behind HalDevice and HalQueue, as
// providers wrapping a higher-level device do.
type wrappedProvider struct {
	directProvider
}

func (p *wrappedProvider) Device() gpucontext.Device { return struct{}{} }
func (p *wrappedProvider) Queue() gpucontext.Queue   { return struct{}{} }
func (p *wrappedProvider) HalDevice() any            { return p.device }
func (p *wrappedProvider) HalQueue() any             { return p.queue }

// opaqueProvider exposes nothing the pipeline can use.
type opaqueProvider struct {
	directProvider
}

func (p *opaqueProvider) Device() gpucontext.Device { return "device" }
func (p *opaqueProvider) Queue() gpucontext.Queue   { return "queue" }

func TestNewFromProvider(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()

	tests := []struct {
		name     string
		provider gpucontext.DeviceProvider
		wantErr  error
	}{
		{"direct", &directProvider{device: device, queue: queue}, nil},
		{"wrapped", &wrappedProvider{directProvider{device: device, queue: queue}}, nil},
		{"opaque", &opaqueProvider{}, ErrProviderNotHAL},
		{"nil", nil, ErrNilDevice},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewFromProvider(tt.provider, &fakeScene{}, WithInitialViewport(32, 32))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewFromProvider failed: %v", err)
			}
			p.Destroy()
		})
	}
}

func TestNewFromProviderSurfaceFormat(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()

	provider := &directProvider{device: device, queue: queue, format: gputypes.TextureFormatRGBA8Unorm}
	p, err := NewFromProvider(provider, &fakeScene{}, WithInitialViewport(32, 32))
	if err != nil {
		t.Fatalf("NewFromProvider failed: %v", err)
	}
	defer p.Destroy()
	if p.opts.targetFormat != gputypes.TextureFormatRGBA8Unorm {
		t.Errorf("target format = %v, want surface format", p.opts.targetFormat)
	}

	p2, err := NewFromProvider(provider, &fakeScene{},
		WithInitialViewport(32, 32), WithTargetFormat(gputypes.TextureFormatBGRA8Unorm))
	if err != nil {
		t.Fatalf("NewFromProvider failed: %v", err)
	}
	defer p2.Destroy()
	if p2.opts.targetFormat != gputypes.TextureFormatBGRA8Unorm {
		t.Errorf("explicit target format overridden: %v", p2.opts.targetFormat)
	}
}
