package gpu

import (
	"strings"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

func newTestFinal(t *testing.T) (*FinalProgram, *countingDevice, *Globals) {
	t.Helper()
	dev, queue, cleanup := createNoopDevice(t)
	t.Cleanup(cleanup)
	device := &countingDevice{Device: dev}

	g, err := NewGlobals(device, queue, 4)
	if err != nil {
		t.Fatalf("NewGlobals failed: %v", err)
	}
	t.Cleanup(g.Destroy)
	f, err := NewFinalProgram(device, g.Layout(), ShaderWGSL)
	if err != nil {
		t.Fatalf("NewFinalProgram failed: %v", err)
	}
	t.Cleanup(f.Destroy)
	return f, device, g
}

func beginEncoder(t *testing.T, device *countingDevice) *countingEncoder {
	t.Helper()
	enc, err := device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "test"})
	if err != nil {
		t.Fatal(err)
	}
	return enc.(*countingEncoder)
}

func TestSubpassTable(t *testing.T) {
	tests := []struct {
		s      Subpass
		name   string
		inputs int
	}{
		{SubpassBlit, "blit", 1},
		{SubpassAccumulate, "accumulate", 2},
		{SubpassCompositeInline, "composite_inline", 2},
		{SubpassComposite, "composite", 3},
		{SubpassCompositeResolved, "composite_resolved", 3},
		{SubpassCompositeResolvedInline, "composite_resolved_inline", 2},
		{Subpass(99), "Subpass(99)", 0},
	}
	for _, tt := range tests {
		if tt.s.String() != tt.name || tt.s.Inputs() != tt.inputs {
			t.Errorf("%d: %s/%d, want %s/%d", int(tt.s), tt.s, tt.s.Inputs(), tt.name, tt.inputs)
		}
	}
}

func TestFinalProgramDraw(t *testing.T) {
	f, device, g := newTestFinal(t)
	enc := beginEncoder(t, device)
	group, err := g.BindGroup(&testView{id: 1}, &testView{id: 2})
	if err != nil {
		t.Fatal(err)
	}
	target := &testView{id: 10}

	err = f.Draw(enc, &FinalDraw{
		Subpass:      SubpassBlit,
		Target:       target,
		TargetFormat: gputypes.TextureFormatBGRA8Unorm,
		Inputs:       []hal.TextureView{&testView{id: 11}},
		Width:        64,
		Height:       64,
	})
	if err != nil {
		t.Fatalf("blit Draw failed: %v", err)
	}
	err = f.Draw(enc, &FinalDraw{
		Label:         "accumulate",
		Subpass:       SubpassAccumulate,
		Target:        target,
		TargetFormat:  HDRFormat,
		Load:          true,
		Inputs:        []hal.TextureView{&testView{id: 12}, &testView{id: 13}},
		Globals:       group,
		GlobalsOffset: 256,
	})
	if err != nil {
		t.Fatalf("accumulate Draw failed: %v", err)
	}

	if len(enc.passes) != 2 {
		t.Fatalf("render passes = %d, want 2", len(enc.passes))
	}
	if enc.passes[0].Label != "final_blit" || enc.passes[1].Label != "accumulate" {
		t.Errorf("labels = %q, %q", enc.passes[0].Label, enc.passes[1].Label)
	}
	if enc.passes[0].ColorAttachments[0].LoadOp != gputypes.LoadOpClear {
		t.Error("blit does not clear")
	}
	if enc.passes[1].ColorAttachments[0].LoadOp != gputypes.LoadOpLoad {
		t.Error("Load draw clears")
	}
	if f.CachedPipelines() != 2 || f.CachedInputGroups() != 2 {
		t.Errorf("pipelines=%d groups=%d, want 2 and 2", f.CachedPipelines(), f.CachedInputGroups())
	}
}

func TestFinalProgramCaches(t *testing.T) {
	f, device, _ := newTestFinal(t)
	enc := beginEncoder(t, device)
	input := []hal.TextureView{&testView{id: 1}}

	draw := func(format gputypes.TextureFormat, in []hal.TextureView) {
		t.Helper()
		err := f.Draw(enc, &FinalDraw{Subpass: SubpassBlit, Target: &testView{id: 9}, TargetFormat: format, Inputs: in})
		if err != nil {
			t.Fatalf("Draw failed: %v", err)
		}
	}
	draw(gputypes.TextureFormatBGRA8Unorm, input)
	draw(gputypes.TextureFormatBGRA8Unorm, input)
	if f.CachedPipelines() != 1 || f.CachedInputGroups() != 1 || device.pipelines != 1 {
		t.Errorf("repeat draw rebuilt: pipelines=%d groups=%d", f.CachedPipelines(), f.CachedInputGroups())
	}
	draw(gputypes.TextureFormatRGBA8Unorm, input)
	if f.CachedPipelines() != 2 {
		t.Errorf("new format: pipelines = %d, want 2", f.CachedPipelines())
	}
	draw(gputypes.TextureFormatRGBA8Unorm, []hal.TextureView{&testView{id: 2}})
	if f.CachedInputGroups() != 2 {
		t.Errorf("new input: groups = %d, want 2", f.CachedInputGroups())
	}

	destroyed := device.destroyedBindGroups
	held := &heldReleaser{}
	f.InvalidateInputs(held)
	if f.CachedInputGroups() != 0 {
		t.Errorf("groups after InvalidateInputs = %d", f.CachedInputGroups())
	}
	if device.destroyedBindGroups != destroyed {
		t.Error("InvalidateInputs destroyed groups before release")
	}
	held.run()
	if device.destroyedBindGroups != destroyed+2 {
		t.Errorf("deferred release destroyed %d groups, want 2", device.destroyedBindGroups-destroyed)
	}
	if f.CachedPipelines() != 2 {
		t.Error("InvalidateInputs dropped pipelines")
	}
}

func TestFinalProgramDrawErrors(t *testing.T) {
	f, device, g := newTestFinal(t)
	enc := beginEncoder(t, device)
	group, err := g.BindGroup(&testView{id: 1}, &testView{id: 2})
	if err != nil {
		t.Fatal(err)
	}
	one := []hal.TextureView{&testView{id: 3}}

	tests := []struct {
		name string
		draw FinalDraw
		want string
	}{
		{"unknown subpass", FinalDraw{Subpass: Subpass(42), Target: &testView{id: 4}}, "unknown final subpass"},
		{"nil target", FinalDraw{Subpass: SubpassBlit, Inputs: one}, "nil target"},
		{"missing globals", FinalDraw{Subpass: SubpassComposite, Target: &testView{id: 4}, Inputs: one}, "missing globals"},
		{"input count", FinalDraw{Subpass: SubpassComposite, Target: &testView{id: 4}, Globals: group, Inputs: one}, "expects 3 inputs"},
		{"nil input", FinalDraw{Subpass: SubpassBlit, Target: &testView{id: 4}, Inputs: []hal.TextureView{nil}}, "input 0 is nil"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.Draw(enc, &tt.draw)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Draw error = %v, want %q", err, tt.want)
			}
		})
	}
	if len(enc.passes) != 0 {
		t.Errorf("failed draws opened %d render passes", len(enc.passes))
	}
}

func TestFinalProgramDestroy(t *testing.T) {
	f, _, _ := newTestFinal(t)
	f.Destroy()
	f.Destroy()
	if f.CachedPipelines() != 0 || f.CachedInputGroups() != 0 {
		t.Error("caches not empty after Destroy")
	}
}
