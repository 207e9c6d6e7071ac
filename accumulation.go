package stochastic

import "fmt"

// ContinuousWeight is the history weight of continuous accumulation, an
// exponential moving average.
const ContinuousWeight float32 = 0.99

// FiniteWeight returns the history weight of a finite run of n iterations:
// 1 - 1/n for every iteration of the run.
//
// This is not the running mean 1/(i+1); later iterations contribute less
// than earlier ones.
func FiniteWeight(n int) float32 {
	if n < MinAccumulationIterations {
		n = MinAccumulationIterations
	}
	return 1 - 1/float32(n)
}

// PresentSource names the buffer a camera is presented from.
type PresentSource int

const (
	// PresentColor presents the resolved color buffer.
	PresentColor PresentSource = iota
	// PresentHistory0 presents history buffer 0.
	PresentHistory0
	// PresentHistory1 presents history buffer 1.
	PresentHistory1
)

// String returns the source name.
func (p PresentSource) String() string {
	switch p {
	case PresentColor:
		return "Color"
	case PresentHistory0:
		return "History0"
	case PresentHistory1:
		return "History1"
	default:
		return fmt.Sprintf("PresentSource(%d)", int(p))
	}
}

// AccumulationStep is the history routing of one stochastic iteration.
// Source and Dest are -1 when accumulation is inactive.
type AccumulationStep struct {
	Iteration int
	Source    int
	Dest      int
	Weight    float32
}

// HistoryState is a snapshot of the history pair bookkeeping.
type HistoryState struct {
	Source  int
	Dest    int
	Written [2]bool
	Cleared [2]bool
	Writes  uint64
	Clears  uint64
}

// AccumulationController routes stochastic iterations through the history
// pair. It is the only state the pipeline carries from one frame to the
// next.
//
// Source and destination are always complementary and derive from a
// counter: the frame count in continuous mode, the iteration in finite mode.
// Iteration or frame i writes history[(i+1) mod 2] from history[i mod 2].
type AccumulationController struct {
	mode        AccumulationMode
	iterations  int
	interactive bool
	frame       uint64

	last  AccumulationStep
	state HistoryState
}

// NewAccumulationController returns a controller with empty history.
func NewAccumulationController() *AccumulationController {
	return &AccumulationController{
		last:  AccumulationStep{Source: -1, Dest: -1},
		state: HistoryState{Source: 0, Dest: 1},
	}
}

// Begin fixes the mode and iteration count for the camera about to render.
func (c *AccumulationController) Begin(s Settings, f Frame) {
	s = s.Normalize()
	c.mode = s.AccumulationMode
	c.iterations = s.AccumulationIterations
	c.interactive = f.Interactive
	c.frame = f.Count
	c.last = AccumulationStep{Source: -1, Dest: -1}
}

// Mode returns the mode of the current frame.
func (c *AccumulationController) Mode() AccumulationMode { return c.mode }

// Active reports whether iterations blend into history. Outside interactive
// mode history is bypassed regardless of the configured mode.
func (c *AccumulationController) Active() bool {
	return c.interactive && c.mode != AccumulationDisabled
}

// Iterations returns how many stochastic iterations the frame runs.
func (c *AccumulationController) Iterations() int {
	if c.Active() && c.mode == AccumulationFinite {
		return c.iterations
	}
	return 1
}

// Weight returns the history weight used by every step of the frame.
func (c *AccumulationController) Weight() float32 {
	switch {
	case !c.Active():
		return 0
	case c.mode == AccumulationContinuous:
		return ContinuousWeight
	default:
		return FiniteWeight(c.iterations)
	}
}

// Step routes iteration i and records the destination as written. When
// accumulation is inactive the history is left alone.
func (c *AccumulationController) Step(i int) AccumulationStep {
	if !c.Active() {
		c.last = AccumulationStep{Iteration: i, Source: -1, Dest: -1}
		return c.last
	}
	counter := uint64(i) //nolint:gosec // iterations are non-negative
	if c.mode == AccumulationContinuous {
		counter = c.frame
	}
	src := int(counter % 2)       //nolint:gosec // 0 or 1
	dst := int((counter + 1) % 2) //nolint:gosec // 0 or 1
	c.last = AccumulationStep{Iteration: i, Source: src, Dest: dst, Weight: c.Weight()}

	c.state.Source, c.state.Dest = src, dst
	c.state.Written[dst] = true
	c.state.Cleared[dst] = false
	c.state.Writes++
	return c.last
}

// PresentSource returns the buffer to present once all iterations ran.
func (c *AccumulationController) PresentSource() PresentSource {
	if !c.Active() || c.last.Dest < 0 {
		return PresentColor
	}
	return PresentHistory0 + PresentSource(c.last.Dest)
}

// Finish ends the frame. A finite run clears both history buffers so the
// next run starts from black; it reports whether it did. Continuous history
// is never cleared.
func (c *AccumulationController) Finish() bool {
	if !c.Active() || c.mode != AccumulationFinite {
		return false
	}
	c.markCleared()
	return true
}

// reallocated records fresh history buffers, cleared at allocation. It does
// not count as an accumulation clear.
func (c *AccumulationController) reallocated() {
	c.state.Written = [2]bool{}
	c.state.Cleared = [2]bool{true, true}
}

func (c *AccumulationController) markCleared() {
	c.state.Written = [2]bool{}
	c.state.Cleared = [2]bool{true, true}
	c.state.Clears++
}

// History returns a snapshot of the history bookkeeping.
func (c *AccumulationController) History() HistoryState { return c.state }
