package stochastic

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/stochastic/internal/gpu"
	"github.com/gogpu/wgpu/hal"
)

// Render pass labels.
const (
	labelBackground      = "background"
	labelTransmission    = "transmission"
	labelStochasticDepth = "stochastic_depths"
	labelStochasticColor = "stochastic_colors"
	labelComposite       = "final_composite"
	labelAccumulate      = "accumulate"
	labelPresent         = "present"
	labelHistoryClear    = "history_clear"
	labelHistoryInit     = "history_init"
)

var (
	clearWhite = gputypes.Color{R: 1, G: 1, B: 1, A: 1}
	clearBlack = gputypes.Color{R: 0, G: 0, B: 0, A: 1}
)

// cameraFrame holds everything recorded for one camera in one frame.
type cameraFrame struct {
	p       *Pipeline
	frame   Frame
	cam     *Camera
	params  CullingParameters
	cull    CullResults
	encoder hal.CommandEncoder
	mask    hal.TextureView
	stats   *CameraStats

	// initHistory is set once the history buffers were cleared for first
	// use in this recording.
	initHistory bool

	width, height uint32

	// base is the draw descriptor every scene pass starts from.
	base PassDescriptor
}

// renderCamera runs the full pass sequence for one camera and submits it.
// settings is the snapshot taken for the whole frame.
func (p *Pipeline) renderCamera(f Frame, cam *Camera, settings Settings) CameraStats {
	var cs CameraStats
	if cam == nil {
		cs.Skipped = true
		return cs
	}
	cs.Name = cam.Name

	params, ok := cam.CullingParameters()
	if !ok {
		Logger().Debug("camera skipped, no culling parameters",
			"camera", cam.Name, "width", cam.PixelWidth, "height", cam.PixelHeight)
		cs.Skipped = true
		return cs
	}
	if cam.Target == nil {
		cs.Err = fmt.Errorf("camera %q: %w", cam.Name, ErrNoTarget)
		return cs
	}

	w := uint32(cam.PixelWidth)  //nolint:gosec // positive, checked by CullingParameters
	h := uint32(cam.PixelHeight) //nolint:gosec // positive, checked by CullingParameters
	// Earlier cameras may still be executing: everything replaced below is
	// released through the submitter once their submissions completed.
	p.submitter.Retire()
	resized, err := p.buffers.Ensure(w, h, p.submitter)
	if err != nil {
		p.historyDirty = true
		cs.Err = fmt.Errorf("camera %q: resize frame buffers: %w", cam.Name, err)
		return cs
	}
	if resized {
		p.final.InvalidateInputs(p.submitter)
		p.historyDirty = true
		cs.Resized = true
	}
	p.globals.Trim(p.submitter)

	cull := p.scene.Cull(params)
	if cull != nil {
		cs.Visible = cull.Visible()
	}

	cam.DepthTextureMode |= DepthTextureDepth | DepthTextureMotionVectors

	p.accum.Begin(settings, f)
	p.globals.Reset()

	mask := settings.RandomMask
	if mask == nil {
		mask = p.neutral.View()
	}

	encoder, err := p.submitter.Begin("stochastic_" + cam.Name)
	if err != nil {
		cs.Err = fmt.Errorf("camera %q: %w", cam.Name, err)
		return cs
	}

	cf := &cameraFrame{
		p:       p,
		frame:   f,
		cam:     cam,
		params:  params,
		cull:    cull,
		encoder: encoder,
		mask:    mask,
		stats:   &cs,
		width:   w,
		height:  h,
		base: PassDescriptor{
			Tag:                        TagStochasticColors,
			SampleCount:                p.opts.sampleCount,
			Queue:                      RenderQueueAll,
			PerObject:                  PerObjectMotionVectors,
			ExcludeMotionVectorObjects: false,
		},
	}
	if err := cf.record(); err != nil {
		p.submitter.Abort(encoder)
		cs.Err = fmt.Errorf("camera %q: %w", cam.Name, err)
		return cs
	}

	rec, err := p.submitter.Finish(encoder)
	if err != nil {
		cs.Err = fmt.Errorf("camera %q: %w", cam.Name, err)
		return cs
	}
	index, err := p.submitter.Submit(rec)
	if err != nil {
		cs.Err = fmt.Errorf("camera %q: %w", cam.Name, err)
		return cs
	}
	cs.SubmissionIndex = index
	if cf.initHistory {
		p.historyDirty = false
	}
	return cs
}

// record encodes every iteration, the presentation blit and the history
// reset of a finite run.
func (cf *cameraFrame) record() error {
	p := cf.p

	if p.historyDirty && p.accum.Active() {
		cf.clearHistory(labelHistoryInit, PassHistoryInit)
		p.accum.reallocated()
		cf.initHistory = true
	}

	iterations := p.accum.Iterations()
	cf.stats.Iterations = iterations
	for i := 0; i < iterations; i++ {
		if err := cf.iteration(i); err != nil {
			return fmt.Errorf("iteration %d: %w", i, err)
		}
	}

	if err := cf.present(); err != nil {
		return err
	}

	if p.accum.Finish() {
		cf.clearHistory(labelHistoryClear, PassHistoryClear)
		cf.stats.HistoryCleared = true
	}
	return nil
}

// iteration records one pass sequence: background, transmission,
// stochastic depths, stochastic colors, final composite, post-process and
// accumulation.
func (cf *cameraFrame) iteration(i int) error {
	p := cf.p
	step := p.accum.Step(i)
	mode := p.accum.Mode()

	noiseIndex := NoiseIndex(mode, cf.frame.Count, i)
	noise := p.noise.Sample(noiseIndex)

	w, h := float32(cf.width), float32(cf.height)
	globals := gpu.FrameGlobals{
		View:            cf.params.View,
		Projection:      cf.params.Projection,
		BlueNoiseParams: p.noise.Jitter(cf.cam.PixelWidth, cf.cam.PixelHeight),
		Viewport:        [4]float32{w, h, 1 / w, 1 / h},
		MSAASampleCount: int32(p.opts.sampleCount), //nolint:gosec // at most 16
		Jitter:          JitterScalar(mode, cf.frame, i),
		Weight:          step.Weight,
		Iteration:       uint32(i), //nolint:gosec // bounded by MaxAccumulationIterations
	}
	offset, err := p.globals.Push(&globals)
	if err != nil {
		return err
	}
	group, err := p.globals.BindGroup(noise, cf.mask)
	if err != nil {
		return err
	}

	cf.stats.NoiseIndices = append(cf.stats.NoiseIndices, noiseIndex)
	cf.stats.HistoryDest = append(cf.stats.HistoryDest, step.Dest)
	cf.stats.Weights = append(cf.stats.Weights, step.Weight)

	bufs := p.buffers
	background := bufs.Color
	if bufs.Background != nil {
		background = bufs.Background
	}

	// Background: sky and clears.
	bg := cf.descriptor(labelBackground, PassBackground, i, group, offset)
	bg.Clear = backgroundClear(cf.cam)
	cf.scenePass(&bg, background, bufs.DepthStencil, func(rp hal.RenderPassEncoder) {
		if cf.cam.ClearFlags == ClearSkybox {
			p.scene.DrawSkybox(rp, cf.cam)
		}
	})

	// Transmission: product of (1 - alpha) over all surfaces.
	tr := cf.descriptor(labelTransmission, PassTransmission, i, group, offset)
	tr.Tag = TagTransmittance
	tr.Clear = ClearPolicy{Color: true, ColorValue: clearWhite}
	tr.Sort = SortCommonOpaque
	tr.Queue = RenderQueueOpaque
	cf.scenePass(&tr, bufs.Transmission, nil, cf.drawRenderers(&tr))

	// Stochastic depths: one surface per sample.
	sd := cf.descriptor(labelStochasticDepth, PassStochasticDepth, i, group, offset)
	sd.Tag = TagStochasticDepths
	sd.Clear = ClearPolicy{Depth: true, DepthValue: 1}
	sd.Sort = SortCommonOpaque
	sd.Queue = RenderQueueOpaque
	cf.scenePass(&sd, nil, bufs.DepthStencil, cf.drawRenderers(&sd))

	// Stochastic colors: shade the surviving samples against those depths.
	sc := cf.descriptor(labelStochasticColor, PassStochasticColor, i, group, offset)
	sc.Tag = TagStochasticColors
	sc.Clear = ClearPolicy{Color: true, ColorValue: gputypes.Color{}}
	sc.Sort = SortCommonOpaque
	sc.Queue = RenderQueueOpaque
	cf.scenePass(&sc, bufs.StochasticColor, bufs.DepthStencil, cf.drawRenderers(&sc))

	if err := cf.composite(group, offset); err != nil {
		return err
	}

	color := gpu.ResolveSample(bufs.Color)
	if p.bridge.Render(cf.cam, cf.encoder, color, cf.width, cf.height) {
		cf.stats.PostProcessed++
		cf.stats.Passes = append(cf.stats.Passes, PassPostProcess)
	}

	if step.Dest < 0 {
		return nil
	}
	err = p.final.Draw(cf.encoder, &gpu.FinalDraw{
		Label:         labelAccumulate,
		Subpass:       gpu.SubpassAccumulate,
		Target:        bufs.History[step.Dest].View(),
		TargetFormat:  gpu.HDRFormat,
		SampleCount:   1,
		Inputs:        []hal.TextureView{color, bufs.History[step.Source].View()},
		Globals:       group,
		GlobalsOffset: offset,
		Width:         cf.width,
		Height:        cf.height,
	})
	if err != nil {
		return err
	}
	cf.stats.Passes = append(cf.stats.Passes, PassAccumulate)
	return nil
}

// composite resolves transmission, background and stochastic color into
// the color buffer.
func (cf *cameraFrame) composite(group hal.BindGroup, offset uint32) error {
	p := cf.p
	bufs := p.buffers
	samples := p.opts.sampleCount
	resolved := samples == 1 || p.opts.resolve == ResolveHardware
	inline := bufs.Background == nil

	view := func(b *gpu.FrameBuffer) hal.TextureView {
		if resolved {
			return gpu.ResolveSample(b)
		}
		return b.View()
	}

	var sub gpu.Subpass
	inputs := []hal.TextureView{view(bufs.StochasticColor), view(bufs.Transmission)}
	switch {
	case inline && resolved:
		sub = gpu.SubpassCompositeResolvedInline
	case inline:
		sub = gpu.SubpassCompositeInline
	case resolved:
		sub = gpu.SubpassCompositeResolved
		inputs = append(inputs, view(bufs.Background))
	default:
		sub = gpu.SubpassComposite
		inputs = append(inputs, view(bufs.Background))
	}

	err := p.final.Draw(cf.encoder, &gpu.FinalDraw{
		Label:         labelComposite,
		Subpass:       sub,
		Target:        bufs.Color.View(),
		ResolveTarget: bufs.Color.ResolveView(),
		TargetFormat:  gpu.HDRFormat,
		SampleCount:   samples,
		Load:          inline,
		Inputs:        inputs,
		Globals:       group,
		GlobalsOffset: offset,
		Width:         cf.width,
		Height:        cf.height,
	})
	if err != nil {
		return err
	}
	cf.stats.Passes = append(cf.stats.Passes, PassComposite)
	return nil
}

// present blits the resolved color, or the latest history, to the camera
// target.
func (cf *cameraFrame) present() error {
	p := cf.p
	src := p.accum.PresentSource()
	view := gpu.ResolveSample(p.buffers.Color)
	switch src {
	case PresentHistory0:
		view = p.buffers.History[0].View()
	case PresentHistory1:
		view = p.buffers.History[1].View()
	}
	format := cf.cam.TargetFormat
	if format == gputypes.TextureFormatUndefined {
		format = p.opts.targetFormat
	}
	err := p.final.Draw(cf.encoder, &gpu.FinalDraw{
		Label:        labelPresent,
		Subpass:      gpu.SubpassBlit,
		Target:       cf.cam.Target,
		TargetFormat: format,
		SampleCount:  1,
		Inputs:       []hal.TextureView{view},
		Width:        cf.width,
		Height:       cf.height,
	})
	if err != nil {
		return fmt.Errorf("present: %w", err)
	}
	cf.stats.Presented = src
	cf.stats.Passes = append(cf.stats.Passes, PassPresent)
	return nil
}

// clearHistory clears both history buffers to black.
func (cf *cameraFrame) clearHistory(label string, kind PassKind) {
	for i, b := range cf.p.buffers.History {
		rp := cf.encoder.BeginRenderPass(&hal.RenderPassDescriptor{
			Label: fmt.Sprintf("%s_%d", label, i),
			ColorAttachments: []hal.RenderPassColorAttachment{{
				View:       b.View(),
				LoadOp:     gputypes.LoadOpClear,
				StoreOp:    gputypes.StoreOpStore,
				ClearValue: clearBlack,
			}},
		})
		rp.End()
		cf.stats.Passes = append(cf.stats.Passes, kind)
	}
}

func (cf *cameraFrame) descriptor(name string, kind PassKind, iteration int, group hal.BindGroup, offset uint32) PassDescriptor {
	d := cf.base
	d.Name = name
	d.Kind = kind
	d.Iteration = iteration
	d.Globals = group
	d.GlobalsOffset = offset
	return d
}

func (cf *cameraFrame) drawRenderers(desc *PassDescriptor) func(hal.RenderPassEncoder) {
	return func(rp hal.RenderPassEncoder) {
		cf.p.scene.DrawRenderers(rp, cf.cull, desc)
	}
}

// scenePass opens a render pass on the given buffers, binds the frame
// globals and lets draw fill it. Either buffer may be nil.
func (cf *cameraFrame) scenePass(desc *PassDescriptor, color, depth *gpu.FrameBuffer, draw func(hal.RenderPassEncoder)) {
	rpd := &hal.RenderPassDescriptor{Label: desc.Name}
	if color != nil {
		load := gputypes.LoadOpLoad
		if desc.Clear.Color {
			load = gputypes.LoadOpClear
		}
		rpd.ColorAttachments = []hal.RenderPassColorAttachment{{
			View:          color.View(),
			ResolveTarget: color.ResolveView(),
			LoadOp:        load,
			StoreOp:       gputypes.StoreOpStore,
			ClearValue:    desc.Clear.ColorValue,
		}}
		desc.ColorTarget = color.View()
		desc.ColorFormat = color.Format
	}
	if depth != nil {
		load := gputypes.LoadOpLoad
		if desc.Clear.Depth {
			load = gputypes.LoadOpClear
		}
		rpd.DepthStencilAttachment = &hal.RenderPassDepthStencilAttachment{
			View:            depth.View(),
			DepthLoadOp:     load,
			DepthStoreOp:    gputypes.StoreOpStore,
			DepthClearValue: desc.Clear.DepthValue,
		}
		desc.DepthTarget = depth.View()
	}

	rp := cf.encoder.BeginRenderPass(rpd)
	rp.SetViewport(0, 0, float32(cf.width), float32(cf.height), 0, 1)
	rp.SetBindGroup(0, desc.Globals, []uint32{desc.GlobalsOffset})
	draw(rp)
	rp.End()
	cf.stats.Passes = append(cf.stats.Passes, desc.Kind)
}

// backgroundClear maps camera clear flags to the background pass clears.
func backgroundClear(cam *Camera) ClearPolicy {
	switch cam.ClearFlags {
	case ClearSkybox:
		return ClearPolicy{Color: true, ColorValue: clearBlack, Depth: true, DepthValue: 1}
	case ClearSolidColor:
		return ClearPolicy{Color: true, ColorValue: cam.BackgroundColor, Depth: true, DepthValue: 1}
	case ClearDepthOnly:
		return ClearPolicy{Depth: true, DepthValue: 1}
	default:
		return ClearPolicy{}
	}
}
