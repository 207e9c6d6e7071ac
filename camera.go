package stochastic

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// ClearFlags selects what the background pass does with the color target.
type ClearFlags int

const (
	// ClearSkybox clears depth and draws the sky.
	ClearSkybox ClearFlags = iota
	// ClearSolidColor clears to the camera background color.
	ClearSolidColor
	// ClearDepthOnly clears depth and keeps color.
	ClearDepthOnly
	// ClearNothing keeps both color and depth.
	ClearNothing
)

// DepthTextureMode lists the auxiliary camera textures a host should
// generate. The pipeline requests depth and motion vectors on every camera
// it renders.
type DepthTextureMode uint8

const (
	DepthTextureDepth DepthTextureMode = 1 << iota
	DepthTextureNormals
	DepthTextureMotionVectors
)

// Camera is one view rendered by the pipeline.
type Camera struct {
	Name string

	PixelWidth  int
	PixelHeight int

	// View and Projection are column-major. Projection maps depth to [0, 1].
	View       mgl32.Mat4
	Projection mgl32.Mat4

	ClearFlags      ClearFlags
	BackgroundColor gputypes.Color

	// Target receives the presented image. TargetFormat defaults to the
	// pipeline's target format when undefined.
	Target       hal.TextureView
	TargetFormat gputypes.TextureFormat

	// PostProcess is the optional post-processing collaborator. Nil means
	// the resolved color is presented directly.
	PostProcess PostProcessor

	// DepthTextureMode is updated by the pipeline during rendering.
	DepthTextureMode DepthTextureMode
}

// CullingParameters are derived from a camera once per frame and handed to
// the scene for culling.
type CullingParameters struct {
	View           mgl32.Mat4
	Projection     mgl32.Mat4
	ViewProjection mgl32.Mat4

	// Planes are the frustum planes (left, right, bottom, top, near, far) as
	// (nx, ny, nz, d) with unit normals pointing inward.
	Planes [6]mgl32.Vec4

	Position mgl32.Vec3

	PixelWidth  int
	PixelHeight int
}

// CullingParameters derives the culling parameters of the camera. It
// reports false when they cannot be derived: no pixel area, or a singular
// or non-finite view-projection.
func (c *Camera) CullingParameters() (CullingParameters, bool) {
	if c == nil || c.PixelWidth <= 0 || c.PixelHeight <= 0 {
		return CullingParameters{}, false
	}
	vp := c.Projection.Mul4(c.View)
	det := float64(vp.Det())
	if det == 0 || math.IsNaN(det) || math.IsInf(det, 0) {
		return CullingParameters{}, false
	}

	r0, r1, r2, r3 := vp.Rows()
	p := CullingParameters{
		View:           c.View,
		Projection:     c.Projection,
		ViewProjection: vp,
		Planes: [6]mgl32.Vec4{
			r3.Add(r0),
			r3.Sub(r0),
			r3.Add(r1),
			r3.Sub(r1),
			r2,
			r3.Sub(r2),
		},
		Position:    c.View.Inv().Col(3).Vec3(),
		PixelWidth:  c.PixelWidth,
		PixelHeight: c.PixelHeight,
	}
	for i, pl := range p.Planes {
		l := pl.Vec3().Len()
		if l == 0 {
			return CullingParameters{}, false
		}
		p.Planes[i] = pl.Mul(1 / l)
	}
	return p, true
}

// ContainsSphere reports whether a sphere intersects the frustum.
func (p *CullingParameters) ContainsSphere(center mgl32.Vec3, radius float32) bool {
	for _, pl := range p.Planes {
		if pl.Vec3().Dot(center)+pl[3] < -radius {
			return false
		}
	}
	return true
}

// Perspective returns a right-handed perspective projection that maps view
// depth to [0, 1], the convention of WebGPU clip space. fovy is in radians.
func Perspective(fovy, aspect, near, far float32) mgl32.Mat4 {
	f := 1 / float32(math.Tan(float64(fovy)/2))
	var m mgl32.Mat4
	m[0] = f / aspect
	m[5] = f
	m[10] = far / (near - far)
	m[11] = -1
	m[14] = near * far / (near - far)
	return m
}
