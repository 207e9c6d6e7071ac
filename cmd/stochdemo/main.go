// Command stochdemo drives the stochastic transparency pipeline over a
// synthetic scene on the noop GPU backend and prints what each frame
// recorded. It exercises pass sequencing, accumulation and settings
// reloading without a window or a real device.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"math/rand/v2"
	"os"
	"os/signal"
	"strings"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/stochastic"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"
)

func main() {
	var (
		width      = flag.Int("width", 1280, "camera width in pixels")
		height     = flag.Int("height", 720, "camera height in pixels")
		frames     = flag.Int("frames", 4, "frames to render")
		mode       = flag.String("mode", "finite", "accumulation mode: disabled, finite, continuous")
		iterations = flag.Int("iterations", 4, "iterations per frame in finite mode")
		samples    = flag.Uint("samples", stochastic.DefaultSampleCount, "MSAA sample count")
		inline     = flag.Bool("inline", false, "draw the sky inline instead of into a dedicated buffer")
		settings   = flag.String("settings", "", "TOML settings file, overrides -mode and -iterations")
		watch      = flag.Bool("watch", false, "reload -settings when it changes")
		seed       = flag.Uint64("seed", 1, "jitter random seed")
		verbose    = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	stochastic.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	m, err := stochastic.ParseAccumulationMode(*mode)
	if err != nil {
		log.Fatalf("Invalid -mode: %v", err)
	}
	store := stochastic.NewSettingsStore(stochastic.Settings{
		AccumulationMode:       m,
		AccumulationIterations: *iterations,
	}.Normalize())

	device, queue, cleanup, err := openNoopDevice()
	if err != nil {
		log.Fatalf("Failed to open device: %v", err)
	}
	defer cleanup()

	background := stochastic.BackgroundDedicated
	if *inline {
		background = stochastic.BackgroundInline
	}
	scene := newDemoScene()
	p, err := stochastic.New(device, queue, scene,
		stochastic.WithSampleCount(uint32(*samples)), //nolint:gosec // validated by New
		stochastic.WithBackgroundMode(background),
		stochastic.WithRandSource(rand.New(rand.NewPCG(*seed, *seed))), //nolint:gosec // dithering only
		stochastic.WithSettings(store),
		stochastic.WithInitialViewport(uint32(*width), uint32(*height)), //nolint:gosec // flag values
	)
	if err != nil {
		log.Fatalf("Failed to create pipeline: %v", err)
	}
	defer p.Destroy()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if *settings != "" {
		if err := stochastic.ReloadSettings(*settings, store, p.LoadRandomMask); err != nil {
			log.Fatalf("Failed to load settings: %v", err)
		}
		if *watch {
			go func() {
				if err := stochastic.WatchSettingsFile(ctx, *settings, store, p.LoadRandomMask); err != nil && ctx.Err() == nil {
					slog.Error("settings watcher stopped", "err", err)
				}
			}()
		}
	}

	target, err := newTarget(device, *width, *height)
	if err != nil {
		log.Fatalf("Failed to create target: %v", err)
	}
	cam := &stochastic.Camera{
		Name:         "main",
		PixelWidth:   *width,
		PixelHeight:  *height,
		View:         mgl32.LookAtV(mgl32.Vec3{0, 1, 6}, mgl32.Vec3{0, 0, 0}, mgl32.Vec3{0, 1, 0}),
		Projection:   stochastic.Perspective(mgl32.DegToRad(60), float32(*width)/float32(*height), 0.1, 100),
		ClearFlags:   stochastic.ClearSkybox,
		Target:       target,
		TargetFormat: gputypes.TextureFormatBGRA8Unorm,
	}

	for i := 0; i < *frames; i++ {
		if ctx.Err() != nil {
			break
		}
		f := stochastic.Frame{Count: uint64(i), Time: float64(i) / 60, Interactive: true} //nolint:gosec // loop index
		stats, err := p.Render(f, []*stochastic.Camera{cam})
		if err != nil {
			log.Printf("Frame %d: %v", i, err)
			continue
		}
		for _, cs := range stats.Cameras {
			printCamera(f, &cs)
		}
	}
	h := p.History()
	log.Printf("History: writes=%d clears=%d", h.Writes, h.Clears)
}

func printCamera(f stochastic.Frame, cs *stochastic.CameraStats) {
	if cs.Skipped {
		fmt.Printf("frame %d camera %s: skipped\n", f.Count, cs.Name)
		return
	}
	passes := make([]string, len(cs.Passes))
	for i, k := range cs.Passes {
		passes[i] = k.String()
	}
	fmt.Printf("frame %d camera %s: visible=%d iterations=%d noise=%v dest=%v weights=%v present=%s cleared=%t\n",
		f.Count, cs.Name, cs.Visible, cs.Iterations, cs.NoiseIndices, cs.HistoryDest, cs.Weights,
		cs.Presented, cs.HistoryCleared)
	fmt.Printf("  passes: %s\n", strings.Join(passes, " "))
}

func openNoopDevice() (hal.Device, hal.Queue, func(), error) {
	instance, err := noop.API{}.CreateInstance(nil)
	if err != nil {
		return nil, nil, nil, err
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, nil, nil, fmt.Errorf("no adapters")
	}
	open, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, nil, nil, err
	}
	cleanup := func() {
		open.Device.Destroy()
		instance.Destroy()
	}
	return open.Device, open.Queue, cleanup, nil
}

func newTarget(device hal.Device, w, h int) (hal.TextureView, error) {
	tex, err := device.CreateTexture(&hal.TextureDescriptor{
		Label:         "demo_target",
		Size:          hal.Extent3D{Width: uint32(w), Height: uint32(h), DepthOrArrayLayers: 1}, //nolint:gosec // flag values
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        gputypes.TextureFormatBGRA8Unorm,
		Usage:         gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageCopySrc,
	})
	if err != nil {
		return nil, err
	}
	return device.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label:         "demo_target_view",
		Format:        gputypes.TextureFormatBGRA8Unorm,
		Dimension:     gputypes.TextureViewDimension2D,
		Aspect:        gputypes.TextureAspectAll,
		MipLevelCount: 1,
	})
}
