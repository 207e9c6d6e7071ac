package main

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/stochastic"
	"github.com/gogpu/wgpu/hal"
)

// sphere is a renderer in the demo scene. Without materials its draws are
// only recorded, which the noop backend accepts.
type sphere struct {
	center mgl32.Vec3
	radius float32
	queue  int
}

type demoCull struct {
	visible []sphere
}

func (c *demoCull) Visible() int { return len(c.visible) }

// demoScene is a ring of spheres: opaque ones in the geometry queue and
// transparent ones above 2500.
type demoScene struct {
	spheres []sphere
}

func newDemoScene() *demoScene {
	s := &demoScene{}
	for i := 0; i < 12; i++ {
		a := float32(i) / 12 * 2 * 3.14159265
		rot := mgl32.Rotate3DY(a)
		queue := 2000
		if i%2 == 1 {
			queue = 3000
		}
		s.spheres = append(s.spheres, sphere{
			center: rot.Mul3x1(mgl32.Vec3{3, 0, 0}),
			radius: 0.5,
			queue:  queue,
		})
	}
	return s
}

func (s *demoScene) Cull(params stochastic.CullingParameters) stochastic.CullResults {
	c := &demoCull{}
	for _, sp := range s.spheres {
		if params.ContainsSphere(sp.center, sp.radius) {
			c.visible = append(c.visible, sp)
		}
	}
	return c
}

func (s *demoScene) DrawRenderers(rp hal.RenderPassEncoder, cull stochastic.CullResults, desc *stochastic.PassDescriptor) {
	c, ok := cull.(*demoCull)
	if !ok {
		return
	}
	for _, sp := range c.visible {
		if desc.Queue.Contains(sp.queue) {
			rp.Draw(960, 1, 0, 0)
		}
	}
}

func (s *demoScene) DrawSkybox(rp hal.RenderPassEncoder, _ *stochastic.Camera) {
	rp.Draw(3, 1, 0, 0)
}
