// Package stochastic renders order-independent transparency with
// stochastic transparency on top of gogpu/wgpu.
//
// # Overview
//
// Every transparent surface is rasterized into a multisampled target where
// each sample keeps or discards the fragment with probability equal to its
// opacity. Three scene passes produce the estimate:
//
//   - Transmittance: the product of (1 - alpha) per pixel, order independent
//   - StochasticDepths: one stochastically selected depth per sample
//   - StochasticColors: shading of the samples selected by the depth pass
//
// A full-screen composite resolves the samples into the color buffer. The
// estimate is noisy; blue noise dithering and optional temporal
// accumulation into a pair of history buffers reduce the noise.
//
// # Quick Start
//
//	p, err := stochastic.New(device, queue, scene,
//	    stochastic.WithRandSource(rand.New(rand.NewPCG(1, 2))),
//	)
//	if err != nil {
//	    return err
//	}
//	defer p.Destroy()
//
//	stats, err := p.Render(stochastic.Frame{Count: n, Time: t, Interactive: true},
//	    []*stochastic.Camera{cam})
//
// The host Scene culls and issues draw calls for the three material passes.
// Materials read the frame globals (view, projection, noise, jitter, MSAA
// sample count) from @group(0), see Pipeline.GlobalsLayout.
//
// # Accumulation
//
// AccumulationMode selects temporal blending:
//
//   - Disabled: the resolved color is presented every frame
//   - Finite: N iterations per frame blend into history, which is then cleared
//   - Continuous: one iteration per frame, exponential moving average
//
// Settings are read once per camera from a SettingsSource. A SettingsStore
// can be fed from a TOML file and hot-reloaded with WatchSettingsFile.
//
// # Background
//
// BackgroundDedicated draws the sky into its own buffer that the composite
// reads. BackgroundInline draws it into the color buffer and blends the
// transparent layer over it, saving one multisampled buffer.
package stochastic
