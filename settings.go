package stochastic

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/gogpu/wgpu/hal"
)

// AccumulationMode selects how stochastic estimates are blended over time.
type AccumulationMode int

const (
	// AccumulationDisabled presents every frame's resolve directly and never
	// touches the history buffers.
	AccumulationDisabled AccumulationMode = iota

	// AccumulationFinite renders a fixed number of iterations per frame,
	// blending each into history, then clears history after presenting.
	AccumulationFinite

	// AccumulationContinuous blends one iteration per frame into a history
	// that is never cleared.
	AccumulationContinuous
)

// String returns the mode name.
func (m AccumulationMode) String() string {
	switch m {
	case AccumulationDisabled:
		return "Disabled"
	case AccumulationFinite:
		return "Finite"
	case AccumulationContinuous:
		return "Continuous"
	default:
		return fmt.Sprintf("AccumulationMode(%d)", int(m))
	}
}

// ParseAccumulationMode parses a mode name, ignoring case.
func ParseAccumulationMode(s string) (AccumulationMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "disabled", "":
		return AccumulationDisabled, nil
	case "finite":
		return AccumulationFinite, nil
	case "continuous":
		return AccumulationContinuous, nil
	default:
		return AccumulationDisabled, fmt.Errorf("%w: %q", ErrUnknownAccumulationMode, s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m AccumulationMode) MarshalText() ([]byte, error) {
	if m < AccumulationDisabled || m > AccumulationContinuous {
		return nil, fmt.Errorf("%w: %d", ErrUnknownAccumulationMode, int(m))
	}
	return []byte(strings.ToLower(m.String())), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *AccumulationMode) UnmarshalText(b []byte) error {
	v, err := ParseAccumulationMode(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// Accumulation iteration limits.
const (
	MinAccumulationIterations     = 1
	MaxAccumulationIterations     = 200
	DefaultAccumulationIterations = 16
)

// Settings is the externally owned pipeline configuration. It is read once
// per frame; changes take effect on the next frame.
type Settings struct {
	AccumulationMode AccumulationMode

	// AccumulationIterations is only used in Finite mode. Values outside
	// [MinAccumulationIterations, MaxAccumulationIterations] are clamped.
	AccumulationIterations int

	// RandomMask is an optional dithering mask bound for material shaders.
	// A neutral white texture is used when nil.
	RandomMask hal.TextureView
}

// DefaultSettings returns accumulation disabled with the default iteration
// count.
func DefaultSettings() Settings {
	return Settings{
		AccumulationMode:       AccumulationDisabled,
		AccumulationIterations: DefaultAccumulationIterations,
	}
}

// Normalize clamps the iteration count into range.
func (s Settings) Normalize() Settings {
	s.AccumulationIterations = max(MinAccumulationIterations, min(s.AccumulationIterations, MaxAccumulationIterations))
	return s
}

// SettingsSource supplies the settings for a frame.
type SettingsSource interface {
	Settings() Settings
}

// StaticSettings is a SettingsSource that never changes.
type StaticSettings Settings

// Settings returns s.
func (s StaticSettings) Settings() Settings { return Settings(s) }

// SettingsStore is a SettingsSource that may be updated from any goroutine,
// for example by a file watcher, while the render loop reads it.
type SettingsStore struct {
	p atomic.Pointer[Settings]
}

// NewSettingsStore returns a store holding s.
func NewSettingsStore(s Settings) *SettingsStore {
	st := &SettingsStore{}
	st.Store(s)
	return st
}

// Settings returns the current settings.
func (st *SettingsStore) Settings() Settings {
	if s := st.p.Load(); s != nil {
		return *s
	}
	return DefaultSettings()
}

// Store replaces the settings.
func (st *SettingsStore) Store(s Settings) {
	st.p.Store(&s)
}

// Update applies fn to a copy of the current settings and stores the
// result. Concurrent updates are serialized by compare-and-swap.
func (st *SettingsStore) Update(fn func(*Settings)) {
	for {
		old := st.p.Load()
		next := DefaultSettings()
		if old != nil {
			next = *old
		}
		fn(&next)
		if st.p.CompareAndSwap(old, &next) {
			return
		}
	}
}
