// Package gpu holds the GPU objects behind the stochastic transparency
// pipeline, recorded through the gogpu/wgpu HAL.
//
// Key components:
//
//   - FrameBufferSet: the multisampled and history render targets
//   - Globals: the per-iteration frame constants at @group(0)
//   - FinalProgram: full-screen composite, accumulation and blit programs
//   - Submitter: fire-and-forget command submission with deferred release
//   - Texture2D: neutral fallback and uploaded mask textures
//
// # Pass structure
//
// One stochastic iteration writes, in order:
//
//	Background (sky)      -> Background or Color, Depth
//	Transmission          -> Transmission (cleared white)
//	Stochastic depths     -> Depth
//	Stochastic colors     -> StochasticColor (cleared black), Depth (load)
//	Final composite       -> Color
//	Accumulate (optional) -> History[dest] from Color + History[src]
//
// No pass samples a buffer it renders to.
package gpu
