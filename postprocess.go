package stochastic

import (
	"github.com/gogpu/gputypes"
	"github.com/gogpu/stochastic/internal/gpu"
	"github.com/gogpu/wgpu/hal"
)

// PostProcessor is an external post-processing stack attached to a camera.
// Render records its work into ctx.Encoder, reading ctx.Source and writing
// ctx.Destination.
type PostProcessor interface {
	Render(ctx *PostProcessContext)
}

// PostProcessResources are the shared resources a post-processing stack
// publishes. Its blue noise pool feeds the pipeline's noise supplier.
type PostProcessResources struct {
	// BlueNoise64 holds NoisePoolSize blue noise textures.
	BlueNoise64 []hal.TextureView
}

// PostProcessContext is the per-call context handed to a PostProcessor.
type PostProcessContext struct {
	Source       hal.TextureView
	Destination  hal.TextureView
	SourceFormat gputypes.TextureFormat
	Flip         bool

	Camera  *Camera
	Encoder hal.CommandEncoder

	Width, Height uint32

	// Resources survives Reset. A collaborator sets it once, typically on
	// its first Render call.
	Resources *PostProcessResources
}

// Reset clears the per-call fields, keeping Resources.
func (c *PostProcessContext) Reset() {
	*c = PostProcessContext{Resources: c.Resources}
}

// PostProcessBridge hands the resolved color buffer to the camera's
// post-processing collaborator. Processing is in place: source and
// destination are the same HDR view, never flipped.
type PostProcessBridge struct {
	ctx PostProcessContext
}

// NewPostProcessBridge returns a bridge with no published resources.
func NewPostProcessBridge() *PostProcessBridge {
	return &PostProcessBridge{}
}

// Render runs the camera's collaborator over color. It reports false, and
// does nothing, when the camera has none.
func (b *PostProcessBridge) Render(cam *Camera, encoder hal.CommandEncoder, color hal.TextureView, width, height uint32) bool {
	if cam == nil || cam.PostProcess == nil {
		return false
	}
	b.ctx.Reset()
	b.ctx.Source = color
	b.ctx.Destination = color
	b.ctx.SourceFormat = gpu.HDRFormat
	b.ctx.Flip = false
	b.ctx.Camera = cam
	b.ctx.Encoder = encoder
	b.ctx.Width, b.ctx.Height = width, height
	cam.PostProcess.Render(&b.ctx)
	return true
}

// Publish sets the shared resources directly, for hosts that own the noise
// pool outside any collaborator.
func (b *PostProcessBridge) Publish(res *PostProcessResources) {
	b.ctx.Resources = res
}

// BlueNoise64 returns the published blue noise pool, or nil before any
// collaborator has published one.
func (b *PostProcessBridge) BlueNoise64() []hal.TextureView {
	if b.ctx.Resources == nil {
		return nil
	}
	return b.ctx.Resources.BlueNoise64
}
