package stochastic

import "time"

// CameraStats records what the pipeline did for one camera.
type CameraStats struct {
	Name string

	// Skipped is set when culling parameters could not be derived. No GPU
	// work was recorded for the camera.
	Skipped bool

	Visible    int
	Iterations int
	Resized    bool

	// Passes lists every recorded pass in order.
	Passes []PassKind

	// Per iteration.
	NoiseIndices []int
	HistoryDest  []int
	Weights      []float32

	PostProcessed  int
	Presented      PresentSource
	HistoryCleared bool

	SubmissionIndex uint64
	Err             error
}

// PassCount returns how often kind was recorded.
func (s *CameraStats) PassCount(kind PassKind) int {
	n := 0
	for _, k := range s.Passes {
		if k == kind {
			n++
		}
	}
	return n
}

// FrameStats is the result of one Render call.
type FrameStats struct {
	Frame   uint64
	Cameras []CameraStats
	Elapsed time.Duration
}

// Rendered returns the number of cameras that were not skipped and did not
// fail.
func (s *FrameStats) Rendered() int {
	n := 0
	for i := range s.Cameras {
		if !s.Cameras[i].Skipped && s.Cameras[i].Err == nil {
			n++
		}
	}
	return n
}
