package stochastic

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// ShaderPassTag names the material pass a draw call selects. Every material
// drawn by the pipeline must provide all three tags.
type ShaderPassTag string

const (
	// TagTransmittance accumulates per-pixel transmittance.
	TagTransmittance ShaderPassTag = "Transmittance"
	// TagStochasticDepths writes the stochastically selected depth per sample.
	TagStochasticDepths ShaderPassTag = "StochasticDepths"
	// TagStochasticColors shades the samples selected by the depth pass.
	TagStochasticColors ShaderPassTag = "StochasticColors"
)

// SortCriteria orders the renderers of a draw call.
type SortCriteria int

const (
	SortNone SortCriteria = iota
	// SortCommonOpaque draws front to back.
	SortCommonOpaque
	// SortCommonTransparent draws back to front.
	SortCommonTransparent
)

// String returns the criteria name.
func (s SortCriteria) String() string {
	switch s {
	case SortNone:
		return "None"
	case SortCommonOpaque:
		return "CommonOpaque"
	case SortCommonTransparent:
		return "CommonTransparent"
	default:
		return fmt.Sprintf("SortCriteria(%d)", int(s))
	}
}

// RenderQueueRange is an inclusive range of render queue values.
type RenderQueueRange struct {
	Min, Max int
}

// Standard render queue ranges.
var (
	RenderQueueAll         = RenderQueueRange{Min: 0, Max: 5000}
	RenderQueueOpaque      = RenderQueueRange{Min: 0, Max: 2500}
	RenderQueueTransparent = RenderQueueRange{Min: 2501, Max: 5000}
)

// Contains reports whether queue lies in r.
func (r RenderQueueRange) Contains(queue int) bool {
	return queue >= r.Min && queue <= r.Max
}

// PerObjectData lists the per-renderer data a draw call needs bound.
type PerObjectData uint32

const (
	PerObjectNone          PerObjectData = 0
	PerObjectMotionVectors PerObjectData = 1
)

// ClearPolicy describes which planes a pass clears and to what.
type ClearPolicy struct {
	Color      bool
	ColorValue gputypes.Color
	Depth      bool
	DepthValue float32
}

// PassKind identifies a pass in frame statistics.
type PassKind int

const (
	PassBackground PassKind = iota
	PassTransmission
	PassStochasticDepth
	PassStochasticColor
	PassComposite
	PassPostProcess
	PassAccumulate
	PassPresent
	PassHistoryClear
	PassHistoryInit
)

var passKindNames = [...]string{
	PassBackground:      "Background",
	PassTransmission:    "Transmission",
	PassStochasticDepth: "StochasticDepth",
	PassStochasticColor: "StochasticColor",
	PassComposite:       "Composite",
	PassPostProcess:     "PostProcess",
	PassAccumulate:      "Accumulate",
	PassPresent:         "Present",
	PassHistoryClear:    "HistoryClear",
	PassHistoryInit:     "HistoryInit",
}

// String returns the pass name.
func (k PassKind) String() string {
	if k >= 0 && int(k) < len(passKindNames) {
		return passKindNames[k]
	}
	return fmt.Sprintf("PassKind(%d)", int(k))
}

// PassDescriptor describes one scene draw pass. It is built fresh for every
// camera and iteration and handed to Scene.DrawRenderers together with the
// open render pass.
type PassDescriptor struct {
	Name string
	Kind PassKind
	Tag  ShaderPassTag

	ColorTarget hal.TextureView
	ColorFormat gputypes.TextureFormat
	DepthTarget hal.TextureView
	SampleCount uint32

	Clear ClearPolicy
	Sort  SortCriteria
	Queue RenderQueueRange

	PerObject                  PerObjectData
	ExcludeMotionVectorObjects bool

	// Globals is the frame globals group for @group(0), bound at
	// GlobalsOffset before DrawRenderers is called.
	Globals       hal.BindGroup
	GlobalsOffset uint32

	Iteration int
}

// CullResults is the scene's visibility answer for one camera.
type CullResults interface {
	// Visible returns the number of visible renderers.
	Visible() int
}

// Scene is the host scene graph.
//
// DrawRenderers must issue the renderers of desc.Queue that provide
// desc.Tag, ordered by desc.Sort, into rp. The pipeline has already set the
// viewport and bound the frame globals at @group(0).
type Scene interface {
	Cull(params CullingParameters) CullResults
	DrawRenderers(rp hal.RenderPassEncoder, cull CullResults, desc *PassDescriptor)
	DrawSkybox(rp hal.RenderPassEncoder, cam *Camera)
}
