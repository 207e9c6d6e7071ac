package gpu

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// GlobalsSize is the byte size of FrameGlobals as laid out in WGSL:
//
//	view                mat4x4<f32>  offset   0
//	projection          mat4x4<f32>  offset  64
//	blue_noise_params   vec4<f32>    offset 128
//	viewport            vec4<f32>    offset 144  (w, h, 1/w, 1/h)
//	msaa_sample_count   i32          offset 160
//	jitter              f32          offset 164
//	accumulation_weight f32          offset 168
//	iteration           u32          offset 172
const GlobalsSize = 176

// GlobalsStride is the distance between two slots of the globals ring. It
// matches the minimum uniform buffer offset alignment of the default limits.
const GlobalsStride = 256

// Bindings of the globals group (@group(0)).
const (
	GlobalsBindingUniform    = 0
	GlobalsBindingNoise      = 1
	GlobalsBindingRandomMask = 2
	GlobalsBindingSampler    = 3
)

// FrameGlobals are the shading constants the pipeline pushes before each
// stochastic iteration. Material shaders read them from @group(0).
type FrameGlobals struct {
	View            [16]float32
	Projection      [16]float32
	BlueNoiseParams [4]float32
	Viewport        [4]float32
	MSAASampleCount int32
	Jitter          float32
	Weight          float32
	Iteration       uint32
}

// Encode writes the uniform representation of g into dst, which must be at
// least GlobalsSize bytes long.
func (g *FrameGlobals) Encode(dst []byte) {
	_ = dst[GlobalsSize-1]
	putFloats(dst[0:64], g.View[:])
	putFloats(dst[64:128], g.Projection[:])
	putFloats(dst[128:144], g.BlueNoiseParams[:])
	putFloats(dst[144:160], g.Viewport[:])
	binary.LittleEndian.PutUint32(dst[160:164], uint32(g.MSAASampleCount)) //nolint:gosec // sample counts are small
	binary.LittleEndian.PutUint32(dst[164:168], math.Float32bits(g.Jitter))
	binary.LittleEndian.PutUint32(dst[168:172], math.Float32bits(g.Weight))
	binary.LittleEndian.PutUint32(dst[172:176], g.Iteration)
}

func putFloats(dst []byte, src []float32) {
	for i, f := range src {
		binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(f))
	}
}

type globalsKey struct {
	noise hal.TextureView
	mask  hal.TextureView
}

type globalsEntry struct {
	group hal.BindGroup
	epoch uint64
}

// maxCachedGlobalsGroups is the cache size above which Trim evicts. The
// noise pool has 64 entries, so one random mask never evicts.
const maxCachedGlobalsGroups = 128

// Globals owns the frame-globals uniform ring, its bind group layout, and
// the bind groups pairing it with a noise texture and a random mask.
//
// Each stochastic iteration of a camera writes its own slot so that all
// iterations can be recorded into one command buffer before submission.
type Globals struct {
	device hal.Device
	queue  hal.Queue

	layout  hal.BindGroupLayout
	sampler hal.Sampler
	buffer  hal.Buffer
	slots   int
	next    int
	scratch []byte

	groups map[globalsKey]*globalsEntry
	epoch  uint64
}

// NewGlobals creates the uniform ring with the given number of slots.
func NewGlobals(device hal.Device, queue hal.Queue, slots int) (*Globals, error) {
	if slots < 1 {
		slots = 1
	}
	g := &Globals{
		device:  device,
		queue:   queue,
		slots:   slots,
		scratch: make([]byte, GlobalsStride),
		groups:  make(map[globalsKey]*globalsEntry),
	}

	layout, err := device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   "stochastic_globals_layout",
		Entries: GlobalsLayoutEntries(),
	})
	if err != nil {
		return nil, fmt.Errorf("create globals layout: %w", err)
	}
	g.layout = layout

	sampler, err := device.CreateSampler(&hal.SamplerDescriptor{
		Label:        "stochastic_noise_sampler",
		AddressModeU: gputypes.AddressModeRepeat,
		AddressModeV: gputypes.AddressModeRepeat,
		AddressModeW: gputypes.AddressModeRepeat,
		MagFilter:    gputypes.FilterModeNearest,
		MinFilter:    gputypes.FilterModeNearest,
		MipmapFilter: gputypes.FilterModeNearest,
		LodMaxClamp:  32,
	})
	if err != nil {
		g.Destroy()
		return nil, fmt.Errorf("create noise sampler: %w", err)
	}
	g.sampler = sampler

	buf, err := device.CreateBuffer(&hal.BufferDescriptor{
		Label: "stochastic_globals",
		Size:  uint64(slots) * GlobalsStride, //nolint:gosec // slot count is bounded by the iteration limit
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		g.Destroy()
		return nil, fmt.Errorf("create globals buffer: %w", err)
	}
	g.buffer = buf
	return g, nil
}

// GlobalsLayoutEntries describes @group(0) as seen by material shaders and
// the final program.
func GlobalsLayoutEntries() []gputypes.BindGroupLayoutEntry {
	stages := gputypes.ShaderStageVertex | gputypes.ShaderStageFragment
	return []gputypes.BindGroupLayoutEntry{
		{
			Binding:    GlobalsBindingUniform,
			Visibility: stages,
			Buffer: &gputypes.BufferBindingLayout{
				Type:             gputypes.BufferBindingTypeUniform,
				HasDynamicOffset: true,
				MinBindingSize:   GlobalsSize,
			},
		},
		{
			Binding:    GlobalsBindingNoise,
			Visibility: gputypes.ShaderStageFragment,
			Texture: &gputypes.TextureBindingLayout{
				SampleType:    gputypes.TextureSampleTypeFloat,
				ViewDimension: gputypes.TextureViewDimension2D,
			},
		},
		{
			Binding:    GlobalsBindingRandomMask,
			Visibility: gputypes.ShaderStageFragment,
			Texture: &gputypes.TextureBindingLayout{
				SampleType:    gputypes.TextureSampleTypeFloat,
				ViewDimension: gputypes.TextureViewDimension2D,
			},
		},
		{
			Binding:    GlobalsBindingSampler,
			Visibility: gputypes.ShaderStageFragment,
			Sampler:    &gputypes.SamplerBindingLayout{Type: gputypes.SamplerBindingTypeFiltering},
		},
	}
}

// Layout returns the @group(0) layout.
func (g *Globals) Layout() hal.BindGroupLayout { return g.layout }

// Slots returns the ring capacity.
func (g *Globals) Slots() int { return g.slots }

// Reset rewinds the ring. Called once per camera.
func (g *Globals) Reset() { g.next = 0 }

// Push uploads values into the next free slot and returns its dynamic
// offset. When the ring is full the last slot is reused.
func (g *Globals) Push(values *FrameGlobals) (uint32, error) {
	slot := g.next
	if slot >= g.slots {
		slot = g.slots - 1
		slogger().Warn("globals ring exhausted, reusing last slot", "slots", g.slots)
	} else {
		g.next++
	}
	clear(g.scratch)
	values.Encode(g.scratch)
	offset := uint64(slot) * GlobalsStride //nolint:gosec // slot is non-negative
	if err := g.queue.WriteBuffer(g.buffer, offset, g.scratch[:GlobalsSize]); err != nil {
		return 0, fmt.Errorf("write globals slot %d: %w", slot, err)
	}
	return uint32(offset), nil //nolint:gosec // ring size fits in uint32
}

// BindGroup returns the bind group pairing the uniform ring with the given
// noise texture and random mask, creating it on first use. It never evicts:
// groups handed out stay valid until a Trim after the recording was
// submitted.
func (g *Globals) BindGroup(noise, mask hal.TextureView) (hal.BindGroup, error) {
	key := globalsKey{noise: noise, mask: mask}
	if e, ok := g.groups[key]; ok {
		e.epoch = g.epoch
		return e.group, nil
	}
	bg, err := g.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:  "stochastic_globals_bind",
		Layout: g.layout,
		Entries: []gputypes.BindGroupEntry{
			{Binding: GlobalsBindingUniform, Resource: gputypes.BufferBinding{
				Buffer: g.buffer.NativeHandle(), Offset: 0, Size: GlobalsSize,
			}},
			{Binding: GlobalsBindingNoise, Resource: gputypes.TextureViewBinding{TextureView: noise.NativeHandle()}},
			{Binding: GlobalsBindingRandomMask, Resource: gputypes.TextureViewBinding{TextureView: mask.NativeHandle()}},
			{Binding: GlobalsBindingSampler, Resource: gputypes.SamplerBinding{Sampler: g.sampler.NativeHandle()}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create globals bind group: %w", err)
	}
	g.groups[key] = &globalsEntry{group: bg, epoch: g.epoch}
	return bg, nil
}

// Trim starts a new recording. When the cache has grown past its bound,
// groups the previous recording did not use are evicted and handed to r,
// which destroys them once earlier submissions completed. It returns the
// number of evicted groups. Call it only while no encoder is recording.
func (g *Globals) Trim(r Releaser) int {
	g.epoch++
	if len(g.groups) <= maxCachedGlobalsGroups {
		return 0
	}
	var stale []hal.BindGroup
	for k, e := range g.groups {
		if e.epoch+1 < g.epoch {
			stale = append(stale, e.group)
			delete(g.groups, k)
		}
	}
	if len(stale) == 0 {
		return 0
	}
	slogger().Debug("globals bind groups evicted", "count", len(stale), "cached", len(g.groups))
	device := g.device
	releaseWith(r, func() {
		for _, bg := range stale {
			device.DestroyBindGroup(bg)
		}
	})
	return len(stale)
}

// CachedGroups returns the number of cached bind groups.
func (g *Globals) CachedGroups() int { return len(g.groups) }

func (g *Globals) dropGroups() {
	for k, e := range g.groups {
		g.device.DestroyBindGroup(e.group)
		delete(g.groups, k)
	}
}

// Destroy releases all GPU objects. Safe to call more than once.
func (g *Globals) Destroy() {
	g.dropGroups()
	if g.buffer != nil {
		g.device.DestroyBuffer(g.buffer)
		g.buffer = nil
	}
	if g.sampler != nil {
		g.device.DestroySampler(g.sampler)
		g.sampler = nil
	}
	if g.layout != nil {
		g.device.DestroyBindGroupLayout(g.layout)
		g.layout = nil
	}
}
