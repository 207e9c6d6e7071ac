package stochastic

import (
	"fmt"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// halProvider is implemented by device providers that hand out their HAL
// objects directly.
type halProvider interface {
	HalDevice() any
	HalQueue() any
}

// halFromProvider extracts the HAL device and queue from a provider, either
// through HalDevice/HalQueue or because Device and Queue are HAL objects
// themselves.
func halFromProvider(provider gpucontext.DeviceProvider) (hal.Device, hal.Queue, error) {
	if provider == nil {
		return nil, nil, ErrNilDevice
	}
	if hp, ok := provider.(halProvider); ok {
		device, dok := hp.HalDevice().(hal.Device)
		queue, qok := hp.HalQueue().(hal.Queue)
		if dok && qok && device != nil && queue != nil {
			return device, queue, nil
		}
	}
	device, dok := provider.Device().(hal.Device)
	queue, qok := provider.Queue().(hal.Queue)
	if !dok || !qok || device == nil || queue == nil {
		return nil, nil, fmt.Errorf("%w: %T", ErrProviderNotHAL, provider)
	}
	return device, queue, nil
}

// NewFromProvider creates a pipeline on the device of a gpucontext
// provider, such as a gogpu application window. Camera targets default to
// the provider's surface format. Explicit options take precedence.
func NewFromProvider(provider gpucontext.DeviceProvider, scene Scene, opts ...Option) (*Pipeline, error) {
	device, queue, err := halFromProvider(provider)
	if err != nil {
		return nil, err
	}
	if f := provider.SurfaceFormat(); f != gputypes.TextureFormatUndefined {
		opts = append([]Option{WithTargetFormat(f)}, opts...)
	}
	info := provider.AdapterInfo()
	Logger().Debug("using provider device", "adapter", info.Name, "type", info.Type.String())
	return New(device, queue, scene, opts...)
}
