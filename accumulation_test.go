package stochastic

import (
	"math"
	"testing"
)

func TestFiniteWeight(t *testing.T) {
	tests := []struct {
		n    int
		want float32
	}{
		{1, 0},
		{2, 0.5},
		{4, 0.75},
		{16, 0.9375},
		{0, 0},
		{-3, 0},
	}
	for _, tt := range tests {
		if got := FiniteWeight(tt.n); math.Abs(float64(got-tt.want)) > 1e-6 {
			t.Errorf("FiniteWeight(%d) = %v, want %v", tt.n, got, tt.want)
		}
	}
}

func TestAccumulationInactive(t *testing.T) {
	tests := []struct {
		name string
		s    Settings
		f    Frame
	}{
		{"disabled", Settings{AccumulationMode: AccumulationDisabled, AccumulationIterations: 8}, Frame{Interactive: true}},
		{"finite, not interactive", Settings{AccumulationMode: AccumulationFinite, AccumulationIterations: 8}, Frame{}},
		{"continuous, not interactive", Settings{AccumulationMode: AccumulationContinuous}, Frame{Count: 9}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewAccumulationController()
			before := c.History()
			c.Begin(tt.s, tt.f)

			if c.Active() {
				t.Fatal("Active() = true")
			}
			if c.Iterations() != 1 {
				t.Errorf("Iterations() = %d, want 1", c.Iterations())
			}
			step := c.Step(0)
			if step.Source != -1 || step.Dest != -1 || step.Weight != 0 {
				t.Errorf("Step(0) = %+v, want inactive", step)
			}
			if c.PresentSource() != PresentColor {
				t.Errorf("PresentSource() = %v, want Color", c.PresentSource())
			}
			if c.Finish() {
				t.Error("Finish() cleared history")
			}
			if c.History() != before {
				t.Errorf("History() changed: %+v", c.History())
			}
		})
	}
}

func TestAccumulationFinite(t *testing.T) {
	c := NewAccumulationController()
	c.Begin(Settings{AccumulationMode: AccumulationFinite, AccumulationIterations: 5}, Frame{Count: 42, Interactive: true})

	if c.Iterations() != 5 {
		t.Fatalf("Iterations() = %d, want 5", c.Iterations())
	}
	for i := 0; i < 5; i++ {
		step := c.Step(i)
		wantSrc, wantDst := i%2, (i+1)%2
		if step.Source != wantSrc || step.Dest != wantDst {
			t.Errorf("Step(%d) = %d -> %d, want %d -> %d", i, step.Source, step.Dest, wantSrc, wantDst)
		}
		if step.Source == step.Dest {
			t.Errorf("Step(%d): source equals destination", i)
		}
		if step.Weight != FiniteWeight(5) {
			t.Errorf("Step(%d).Weight = %v, want %v", i, step.Weight, FiniteWeight(5))
		}
		h := c.History()
		if !h.Written[step.Dest] || h.Cleared[step.Dest] {
			t.Errorf("Step(%d): destination not marked written: %+v", i, h)
		}
	}
	// Five iterations end on destination 1.
	if c.PresentSource() != PresentHistory1 {
		t.Errorf("PresentSource() = %v, want History1", c.PresentSource())
	}
	if !c.Finish() {
		t.Fatal("Finish() = false for a finite run")
	}
	h := c.History()
	if h.Written != [2]bool{} || h.Cleared != [2]bool{true, true} {
		t.Errorf("after Finish: written=%v cleared=%v", h.Written, h.Cleared)
	}
	if h.Clears != 1 || h.Writes != 5 {
		t.Errorf("clears=%d writes=%d, want 1 and 5", h.Clears, h.Writes)
	}
}

func TestAccumulationFiniteClampsIterations(t *testing.T) {
	c := NewAccumulationController()
	c.Begin(Settings{AccumulationMode: AccumulationFinite, AccumulationIterations: 5000}, Frame{Interactive: true})
	if c.Iterations() != MaxAccumulationIterations {
		t.Errorf("Iterations() = %d, want %d", c.Iterations(), MaxAccumulationIterations)
	}
	c.Begin(Settings{AccumulationMode: AccumulationFinite, AccumulationIterations: 0}, Frame{Interactive: true})
	if c.Iterations() != MinAccumulationIterations {
		t.Errorf("Iterations() = %d, want %d", c.Iterations(), MinAccumulationIterations)
	}
	if c.Weight() != 0 {
		t.Errorf("Weight() with one iteration = %v, want 0", c.Weight())
	}
}

func TestAccumulationContinuous(t *testing.T) {
	c := NewAccumulationController()
	s := Settings{AccumulationMode: AccumulationContinuous, AccumulationIterations: 32}

	for frame := uint64(0); frame < 6; frame++ {
		c.Begin(s, Frame{Count: frame, Interactive: true})
		if c.Iterations() != 1 {
			t.Fatalf("frame %d: Iterations() = %d, want 1", frame, c.Iterations())
		}
		step := c.Step(0)
		wantSrc, wantDst := int(frame%2), int((frame+1)%2)
		if step.Source != wantSrc || step.Dest != wantDst {
			t.Errorf("frame %d: %d -> %d, want %d -> %d", frame, step.Source, step.Dest, wantSrc, wantDst)
		}
		if step.Weight != ContinuousWeight {
			t.Errorf("frame %d: weight = %v", frame, step.Weight)
		}
		if got, want := c.PresentSource(), PresentHistory0+PresentSource(wantDst); got != want {
			t.Errorf("frame %d: PresentSource() = %v, want %v", frame, got, want)
		}
		if c.Finish() {
			t.Errorf("frame %d: continuous history cleared", frame)
		}
	}
	h := c.History()
	if h.Clears != 0 || h.Writes != 6 {
		t.Errorf("clears=%d writes=%d, want 0 and 6", h.Clears, h.Writes)
	}
	if h.Written != [2]bool{true, true} {
		t.Errorf("Written = %v", h.Written)
	}
}

func TestAccumulationReallocated(t *testing.T) {
	c := NewAccumulationController()
	c.Begin(Settings{AccumulationMode: AccumulationContinuous}, Frame{Interactive: true})
	c.Step(0)
	c.reallocated()
	h := c.History()
	if h.Written != [2]bool{} || h.Cleared != [2]bool{true, true} {
		t.Errorf("after reallocation: %+v", h)
	}
	if h.Clears != 0 {
		t.Errorf("reallocation counted as clear: %d", h.Clears)
	}
}

func TestPresentSourceString(t *testing.T) {
	for src, want := range map[PresentSource]string{
		PresentColor:     "Color",
		PresentHistory0:  "History0",
		PresentHistory1:  "History1",
		PresentSource(9): "PresentSource(9)",
	} {
		if got := src.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", int(src), got, want)
		}
	}
}
