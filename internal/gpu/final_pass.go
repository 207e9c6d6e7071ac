package gpu

import (
	_ "embed"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

//go:embed shaders/blit.wgsl
var blitShaderSource string

//go:embed shaders/accumulate.wgsl
var accumulateShaderSource string

//go:embed shaders/composite.wgsl
var compositeShaderSource string

//go:embed shaders/composite_resolved.wgsl
var compositeResolvedShaderSource string

// Subpass selects one program of the full-screen final pass.
type Subpass int

const (
	// SubpassBlit copies one HDR buffer into a target of any color format.
	SubpassBlit Subpass = iota

	// SubpassAccumulate blends the resolved color buffer with the history
	// source into the history destination.
	SubpassAccumulate

	// SubpassCompositeInline resolves the stochastic layer over a sky that
	// was drawn into the target beforehand, reading per-sample inputs.
	SubpassCompositeInline

	// SubpassComposite resolves the stochastic layer over the dedicated
	// background buffer, reading per-sample inputs.
	SubpassComposite

	// SubpassCompositeResolved is SubpassComposite over hardware-resolved
	// inputs.
	SubpassCompositeResolved

	// SubpassCompositeResolvedInline is SubpassCompositeInline over
	// hardware-resolved inputs.
	SubpassCompositeResolvedInline

	subpassCount
)

var subpassNames = [subpassCount]string{
	"blit",
	"accumulate",
	"composite_inline",
	"composite",
	"composite_resolved",
	"composite_resolved_inline",
}

// String returns the subpass name.
func (s Subpass) String() string {
	if s >= 0 && s < subpassCount {
		return subpassNames[s]
	}
	return fmt.Sprintf("Subpass(%d)", int(s))
}

// Inputs returns the number of texture inputs the subpass binds.
func (s Subpass) Inputs() int {
	if s >= 0 && s < subpassCount {
		return subpassTable[s].inputs
	}
	return 0
}

type subpassInfo struct {
	source       *string
	entry        string
	inputs       int
	multisampled bool
	sampler      bool
	globals      bool
	blend        *gputypes.BlendState
}

// overTransmission adds the transparent layer to the destination scaled by
// the transmission carried in source alpha.
var overTransmission = gputypes.BlendState{
	Color: gputypes.BlendComponent{
		SrcFactor: gputypes.BlendFactorOne,
		DstFactor: gputypes.BlendFactorSrcAlpha,
		Operation: gputypes.BlendOperationAdd,
	},
	Alpha: gputypes.BlendComponent{
		SrcFactor: gputypes.BlendFactorZero,
		DstFactor: gputypes.BlendFactorOne,
		Operation: gputypes.BlendOperationAdd,
	},
}

var subpassTable = [subpassCount]subpassInfo{
	SubpassBlit:                    {source: &blitShaderSource, entry: "fs_blit", inputs: 1, sampler: true},
	SubpassAccumulate:              {source: &accumulateShaderSource, entry: "fs_accumulate", inputs: 2, globals: true},
	SubpassCompositeInline:         {source: &compositeShaderSource, entry: "fs_composite_inline", inputs: 2, multisampled: true, globals: true, blend: &overTransmission},
	SubpassComposite:               {source: &compositeShaderSource, entry: "fs_composite", inputs: 3, multisampled: true, globals: true},
	SubpassCompositeResolved:       {source: &compositeResolvedShaderSource, entry: "fs_composite_resolved", inputs: 3, globals: true},
	SubpassCompositeResolvedInline: {source: &compositeResolvedShaderSource, entry: "fs_composite_resolved_inline", inputs: 2, globals: true, blend: &overTransmission},
}

type finalPipelineKey struct {
	subpass Subpass
	format  gputypes.TextureFormat
	samples uint32
}

type finalGroupKey struct {
	subpass Subpass
	views   [3]hal.TextureView
}

// FinalDraw describes one full-screen draw of the final program.
type FinalDraw struct {
	Label   string
	Subpass Subpass

	Target        hal.TextureView
	ResolveTarget hal.TextureView
	TargetFormat  gputypes.TextureFormat
	SampleCount   uint32

	// Load keeps the target contents; otherwise the target is cleared to
	// transparent black.
	Load bool

	// Inputs are bound in order at @group(1) (@group(0) for the blit).
	Inputs []hal.TextureView

	Globals       hal.BindGroup
	GlobalsOffset uint32

	Width, Height uint32
}

// FinalProgram owns the full-screen programs that turn the stochastic
// buffers into an image: composite, accumulation and blit.
//
// Shader modules and layouts are created eagerly; render pipelines are
// created per target format and sample count on first use.
type FinalProgram struct {
	device  hal.Device
	globals hal.BindGroupLayout
	mode    ShaderMode

	sampler     hal.Sampler
	modules     map[*string]hal.ShaderModule
	layouts     [subpassCount]hal.BindGroupLayout
	pipeLayouts [subpassCount]hal.PipelineLayout

	pipelines map[finalPipelineKey]hal.RenderPipeline
	groups    map[finalGroupKey]hal.BindGroup
}

// NewFinalProgram compiles the final programs. globals is the @group(0)
// layout shared with material shaders.
func NewFinalProgram(device hal.Device, globals hal.BindGroupLayout, mode ShaderMode) (*FinalProgram, error) {
	f := &FinalProgram{
		device:    device,
		globals:   globals,
		mode:      mode,
		modules:   make(map[*string]hal.ShaderModule),
		pipelines: make(map[finalPipelineKey]hal.RenderPipeline),
		groups:    make(map[finalGroupKey]hal.BindGroup),
	}

	sampler, err := device.CreateSampler(&hal.SamplerDescriptor{
		Label:        "final_linear_sampler",
		AddressModeU: gputypes.AddressModeClampToEdge,
		AddressModeV: gputypes.AddressModeClampToEdge,
		AddressModeW: gputypes.AddressModeClampToEdge,
		MagFilter:    gputypes.FilterModeLinear,
		MinFilter:    gputypes.FilterModeLinear,
		MipmapFilter: gputypes.FilterModeNearest,
		LodMaxClamp:  32,
	})
	if err != nil {
		return nil, fmt.Errorf("create final sampler: %w", err)
	}
	f.sampler = sampler

	for s := Subpass(0); s < subpassCount; s++ {
		if err := f.createSubpass(s); err != nil {
			f.Destroy()
			return nil, fmt.Errorf("final %s: %w", s, err)
		}
	}
	slogger().Debug("final program ready", "subpasses", int(subpassCount), "shader_mode", mode.String())
	return f, nil
}

func (f *FinalProgram) createSubpass(s Subpass) error {
	info := subpassTable[s]

	if _, ok := f.modules[info.source]; !ok {
		module, err := createShader(f.device, f.mode, "final_"+s.String()+"_shader", *info.source)
		if err != nil {
			return err
		}
		f.modules[info.source] = module
	}

	sampleType := gputypes.TextureSampleTypeFloat
	if info.multisampled {
		sampleType = gputypes.TextureSampleTypeUnfilterableFloat
	}
	entries := make([]gputypes.BindGroupLayoutEntry, 0, info.inputs+1)
	for i := 0; i < info.inputs; i++ {
		entries = append(entries, gputypes.BindGroupLayoutEntry{
			Binding:    uint32(i), //nolint:gosec // at most three inputs
			Visibility: gputypes.ShaderStageFragment,
			Texture: &gputypes.TextureBindingLayout{
				SampleType:    sampleType,
				ViewDimension: gputypes.TextureViewDimension2D,
				Multisampled:  info.multisampled,
			},
		})
	}
	if info.sampler {
		entries = append(entries, gputypes.BindGroupLayoutEntry{
			Binding:    uint32(info.inputs), //nolint:gosec // at most three inputs
			Visibility: gputypes.ShaderStageFragment,
			Sampler:    &gputypes.SamplerBindingLayout{Type: gputypes.SamplerBindingTypeFiltering},
		})
	}
	layout, err := f.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   "final_" + s.String() + "_layout",
		Entries: entries,
	})
	if err != nil {
		return fmt.Errorf("create input layout: %w", err)
	}
	f.layouts[s] = layout

	groups := []hal.BindGroupLayout{layout}
	if info.globals {
		groups = []hal.BindGroupLayout{f.globals, layout}
	}
	pipeLayout, err := f.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            "final_" + s.String() + "_pipe_layout",
		BindGroupLayouts: groups,
	})
	if err != nil {
		return fmt.Errorf("create pipeline layout: %w", err)
	}
	f.pipeLayouts[s] = pipeLayout
	return nil
}

func (f *FinalProgram) pipeline(s Subpass, format gputypes.TextureFormat, samples uint32) (hal.RenderPipeline, error) {
	if samples == 0 {
		samples = 1
	}
	key := finalPipelineKey{subpass: s, format: format, samples: samples}
	if p, ok := f.pipelines[key]; ok {
		return p, nil
	}
	info := subpassTable[s]
	module := f.modules[info.source]

	blend := gputypes.BlendStateReplace()
	if info.blend != nil {
		blend = *info.blend
	}
	p, err := f.device.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  "final_" + s.String() + "_pipeline",
		Layout: f.pipeLayouts[s],
		Vertex: hal.VertexState{
			Module:     module,
			EntryPoint: "vs_main",
		},
		Fragment: &hal.FragmentState{
			Module:     module,
			EntryPoint: info.entry,
			Targets: []gputypes.ColorTargetState{
				{
					Format:    format,
					Blend:     &blend,
					WriteMask: gputypes.ColorWriteMaskAll,
				},
			},
		},
		Primitive: gputypes.PrimitiveState{
			Topology: gputypes.PrimitiveTopologyTriangleList,
			CullMode: gputypes.CullModeNone,
		},
		Multisample: gputypes.MultisampleState{
			Count: samples,
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create %s pipeline: %w", s, err)
	}
	f.pipelines[key] = p
	slogger().Debug("final pipeline created", "subpass", s.String(), "format", format, "samples", samples)
	return p, nil
}

func (f *FinalProgram) inputGroup(s Subpass, inputs []hal.TextureView) (hal.BindGroup, error) {
	info := subpassTable[s]
	if len(inputs) != info.inputs {
		return nil, fmt.Errorf("%s expects %d inputs, got %d", s, info.inputs, len(inputs))
	}
	key := finalGroupKey{subpass: s}
	copy(key.views[:], inputs)
	if bg, ok := f.groups[key]; ok {
		return bg, nil
	}

	entries := make([]gputypes.BindGroupEntry, 0, len(inputs)+1)
	for i, v := range inputs {
		if v == nil {
			return nil, fmt.Errorf("%s input %d is nil", s, i)
		}
		entries = append(entries, gputypes.BindGroupEntry{
			Binding:  uint32(i), //nolint:gosec // at most three inputs
			Resource: gputypes.TextureViewBinding{TextureView: v.NativeHandle()},
		})
	}
	if info.sampler {
		entries = append(entries, gputypes.BindGroupEntry{
			Binding:  uint32(len(inputs)), //nolint:gosec // at most three inputs
			Resource: gputypes.SamplerBinding{Sampler: f.sampler.NativeHandle()},
		})
	}
	bg, err := f.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   "final_" + s.String() + "_bind",
		Layout:  f.layouts[s],
		Entries: entries,
	})
	if err != nil {
		return nil, fmt.Errorf("create %s bind group: %w", s, err)
	}
	f.groups[key] = bg
	return bg, nil
}

// Draw records one full-screen pass into encoder.
func (f *FinalProgram) Draw(encoder hal.CommandEncoder, d *FinalDraw) error {
	if d.Subpass < 0 || d.Subpass >= subpassCount {
		return fmt.Errorf("unknown final subpass %d", int(d.Subpass))
	}
	if d.Target == nil {
		return fmt.Errorf("%s: nil target", d.Subpass)
	}
	info := subpassTable[d.Subpass]
	if info.globals && d.Globals == nil {
		return fmt.Errorf("%s: missing globals", d.Subpass)
	}
	pipe, err := f.pipeline(d.Subpass, d.TargetFormat, d.SampleCount)
	if err != nil {
		return err
	}
	inputs, err := f.inputGroup(d.Subpass, d.Inputs)
	if err != nil {
		return err
	}

	load := gputypes.LoadOpClear
	if d.Load {
		load = gputypes.LoadOpLoad
	}
	label := d.Label
	if label == "" {
		label = "final_" + d.Subpass.String()
	}
	rp := encoder.BeginRenderPass(&hal.RenderPassDescriptor{
		Label: label,
		ColorAttachments: []hal.RenderPassColorAttachment{
			{
				View:          d.Target,
				ResolveTarget: d.ResolveTarget,
				LoadOp:        load,
				StoreOp:       gputypes.StoreOpStore,
				ClearValue:    gputypes.Color{R: 0, G: 0, B: 0, A: 0},
			},
		},
	})
	rp.SetPipeline(pipe)
	if info.globals {
		rp.SetBindGroup(0, d.Globals, []uint32{d.GlobalsOffset})
		rp.SetBindGroup(1, inputs, nil)
	} else {
		rp.SetBindGroup(0, inputs, nil)
	}
	if d.Width > 0 && d.Height > 0 {
		rp.SetViewport(0, 0, float32(d.Width), float32(d.Height), 0, 1)
	}
	rp.Draw(3, 1, 0, 0)
	rp.End()
	return nil
}

// InvalidateInputs drops cached input bind groups and hands them to r.
// Call after the buffers they reference were reallocated, while no encoder
// is recording. A nil r destroys them at once.
func (f *FinalProgram) InvalidateInputs(r Releaser) {
	if len(f.groups) == 0 {
		return
	}
	stale := make([]hal.BindGroup, 0, len(f.groups))
	for k, bg := range f.groups {
		stale = append(stale, bg)
		delete(f.groups, k)
	}
	device := f.device
	releaseWith(r, func() {
		for _, bg := range stale {
			device.DestroyBindGroup(bg)
		}
	})
}

// CachedPipelines returns the number of render pipelines built so far.
func (f *FinalProgram) CachedPipelines() int { return len(f.pipelines) }

// CachedInputGroups returns the number of cached input bind groups.
func (f *FinalProgram) CachedInputGroups() int { return len(f.groups) }

// Destroy releases all GPU objects. Safe to call more than once.
func (f *FinalProgram) Destroy() {
	f.InvalidateInputs(nil)
	for k, p := range f.pipelines {
		f.device.DestroyRenderPipeline(p)
		delete(f.pipelines, k)
	}
	for s := range f.pipeLayouts {
		if f.pipeLayouts[s] != nil {
			f.device.DestroyPipelineLayout(f.pipeLayouts[s])
			f.pipeLayouts[s] = nil
		}
		if f.layouts[s] != nil {
			f.device.DestroyBindGroupLayout(f.layouts[s])
			f.layouts[s] = nil
		}
	}
	for k, m := range f.modules {
		f.device.DestroyShaderModule(m)
		delete(f.modules, k)
	}
	if f.sampler != nil {
		f.device.DestroySampler(f.sampler)
		f.sampler = nil
	}
}
