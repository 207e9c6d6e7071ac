package stochastic

import (
	"math/rand/v2"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/wgpu/hal"
)

// NoisePoolSize is the number of blue noise textures the post-process
// collaborator publishes. Noise indices cycle with this period.
const NoisePoolSize = 64

// RandSource is the uniform generator behind the jitter randoms. It is
// passed to the pipeline explicitly so tests can seed it; *rand.Rand from
// math/rand/v2 satisfies it.
type RandSource interface {
	// Float32 returns a value in [0, 1).
	Float32() float32
}

// newDefaultRand returns a generator seeded once from the runtime's entropy.
func newDefaultRand() RandSource {
	return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())) //nolint:gosec // dithering, not cryptography
}

// NoisePool publishes the blue noise texture pool. The post-process bridge
// implements it once a collaborator has registered its resources.
type NoisePool interface {
	BlueNoise64() []hal.TextureView
}

// NoiseSupplier selects dithering noise textures and per-pixel jitter.
//
// The pool may be empty on the first frames, before the post-process
// collaborator has published its resources. The neutral texture is used
// until then.
type NoiseSupplier struct {
	rand    RandSource
	neutral hal.TextureView
	pool    NoisePool
}

// NewNoiseSupplier creates a supplier. A nil rand uses a generator seeded
// once at construction.
func NewNoiseSupplier(r RandSource, neutral hal.TextureView, pool NoisePool) *NoiseSupplier {
	if r == nil {
		r = newDefaultRand()
	}
	return &NoiseSupplier{rand: r, neutral: neutral, pool: pool}
}

// Available reports whether the pool has been published.
func (n *NoiseSupplier) Available() bool {
	return n.pool != nil && len(n.pool.BlueNoise64()) > 0
}

// Sample returns pool[index mod len(pool)], or the neutral texture when the
// pool is not available. It never fails.
func (n *NoiseSupplier) Sample(index int) hal.TextureView {
	if n.pool == nil {
		return n.neutral
	}
	pool := n.pool.BlueNoise64()
	if len(pool) == 0 {
		return n.neutral
	}
	i := index % len(pool)
	if i < 0 {
		i += len(pool)
	}
	if pool[i] == nil {
		return n.neutral
	}
	return pool[i]
}

// Jitter returns the blue noise tiling and random offsets for a target of
// the given pixel size: (w/64, h/64, r0, r1) with r0, r1 in [0, 1).
//
// The generator is never reseeded, so consecutive calls evolve.
func (n *NoiseSupplier) Jitter(pixelWidth, pixelHeight int) mgl32.Vec4 {
	return mgl32.Vec4{
		float32(pixelWidth) / NoisePoolSize,
		float32(pixelHeight) / NoisePoolSize,
		n.rand.Float32(),
		n.rand.Float32(),
	}
}

// NoiseIndex selects the noise texture for one stochastic iteration.
// Finite accumulation cycles with the iteration; the other modes cycle with
// the frame counter.
//
// Indices wrap at NoisePoolSize.
func NoiseIndex(mode AccumulationMode, frame uint64, iteration int) int {
	if mode == AccumulationFinite {
		return iteration % NoisePoolSize
	}
	return int(frame % NoisePoolSize) //nolint:gosec // result is below 64
}

// JitterScalar is the scalar jitter uniform materials use to animate their
// dither: seconds for continuous accumulation, a large per-iteration step
// for finite accumulation, and zero when accumulation is disabled.
func JitterScalar(mode AccumulationMode, f Frame, iteration int) float32 {
	switch mode {
	case AccumulationContinuous:
		return float32(f.Time)
	case AccumulationFinite:
		return float32(iteration) * 100
	default:
		return 0
	}
}
