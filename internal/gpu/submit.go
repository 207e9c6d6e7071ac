package gpu

import (
	"fmt"

	"github.com/gogpu/wgpu/hal"
)

// Recording is one command encoder together with the command buffers it
// produced. Ownership passes to the Submitter on Submit.
type Recording struct {
	Encoder hal.CommandEncoder
	Buffers []hal.CommandBuffer
}

type inflight struct {
	index uint64
	rec   Recording
}

// Releaser takes GPU objects that submitted work may still reference and
// destroys them once that work has completed.
type Releaser interface {
	Defer(release func())
}

// releaseWith hands release to r, or runs it at once when r is nil.
func releaseWith(r Releaser, release func()) {
	if r == nil {
		release()
		return
	}
	r.Defer(release)
}

type deferredRelease struct {
	after   uint64
	release func()
}

// Submitter submits recordings without waiting for the GPU. Command buffers
// are returned to the device once the queue reports their submission index
// as completed; objects passed to Defer follow the same rule.
type Submitter struct {
	device   hal.Device
	queue    hal.Queue
	pending  []inflight
	deferred []deferredRelease
	last     uint64
}

// NewSubmitter creates a submitter for the given device and queue.
func NewSubmitter(device hal.Device, queue hal.Queue) *Submitter {
	return &Submitter{device: device, queue: queue}
}

// Begin creates an encoder and starts recording.
func (s *Submitter) Begin(label string) (hal.CommandEncoder, error) {
	encoder, err := s.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: label + "_encoder"})
	if err != nil {
		return nil, fmt.Errorf("create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding(label); err != nil {
		encoder.Destroy()
		return nil, fmt.Errorf("begin encoding: %w", err)
	}
	return encoder, nil
}

// Finish ends encoding and returns the recording ready for Submit.
func (s *Submitter) Finish(encoder hal.CommandEncoder) (Recording, error) {
	buf, err := encoder.EndEncoding()
	if err != nil {
		encoder.Destroy()
		return Recording{}, fmt.Errorf("end encoding: %w", err)
	}
	return Recording{Encoder: encoder, Buffers: []hal.CommandBuffer{buf}}, nil
}

// Abort discards an encoder that will not be submitted.
func (s *Submitter) Abort(encoder hal.CommandEncoder) {
	encoder.DiscardEncoding()
	encoder.Destroy()
}

// Submit hands all recordings to the queue in a single submission. Completed
// earlier submissions are retired first.
func (s *Submitter) Submit(recs ...Recording) (uint64, error) {
	s.Retire()

	var bufs []hal.CommandBuffer
	for _, r := range recs {
		bufs = append(bufs, r.Buffers...)
	}
	if len(bufs) == 0 {
		return s.last, nil
	}
	index, err := s.queue.Submit(bufs)
	if err != nil {
		for _, r := range recs {
			s.release(r)
		}
		return 0, fmt.Errorf("submit: %w", err)
	}
	s.last = index
	for _, r := range recs {
		s.pending = append(s.pending, inflight{index: index, rec: r})
	}
	return index, nil
}

// Defer runs release once every submission made so far has completed, or
// immediately when nothing is in flight. Objects handed over must not be
// referenced by an encoder that is still recording.
func (s *Submitter) Defer(release func()) {
	if len(s.pending) == 0 {
		release()
		return
	}
	s.deferred = append(s.deferred, deferredRelease{after: s.last, release: release})
}

// Retire frees the command buffers of completed submissions, runs the
// deferred releases they were holding back, and returns how many
// recordings were released.
func (s *Submitter) Retire() int {
	done := s.queue.PollCompleted()
	n := 0
	for _, p := range s.pending {
		if p.index > done {
			s.pending[n] = p
			n++
			continue
		}
		s.release(p.rec)
	}
	released := len(s.pending) - n
	clear(s.pending[n:])
	s.pending = s.pending[:n]

	n = 0
	for _, d := range s.deferred {
		if d.after > done {
			s.deferred[n] = d
			n++
			continue
		}
		d.release()
	}
	clear(s.deferred[n:])
	s.deferred = s.deferred[:n]
	return released
}

// Pending returns the number of recordings not yet retired.
func (s *Submitter) Pending() int { return len(s.pending) }

// Deferred returns the number of releases waiting for the GPU.
func (s *Submitter) Deferred() int { return len(s.deferred) }

// LastIndex returns the index of the most recent submission.
func (s *Submitter) LastIndex() uint64 { return s.last }

// Drain waits for the device to go idle and releases everything.
func (s *Submitter) Drain() {
	if len(s.pending) == 0 && len(s.deferred) == 0 {
		return
	}
	if err := s.device.WaitIdle(); err != nil {
		slogger().Warn("wait idle before release failed", "err", err)
	}
	for _, p := range s.pending {
		s.release(p.rec)
	}
	clear(s.pending)
	s.pending = s.pending[:0]
	for _, d := range s.deferred {
		d.release()
	}
	clear(s.deferred)
	s.deferred = s.deferred[:0]
}

func (s *Submitter) release(r Recording) {
	for _, b := range r.Buffers {
		s.device.FreeCommandBuffer(b)
	}
	if r.Encoder != nil {
		r.Encoder.Destroy()
	}
}
