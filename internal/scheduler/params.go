package scheduler

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Conceptual-Machines/tension-engine/internal/harmony"
	"github.com/Conceptual-Machines/tension-engine/internal/rhythm"
)

// Tempo and length limits; values outside are clamped
const (
	MinBPM           = 20
	MaxBPM           = 300
	MinBeatsPerChord = 1
	MaxBeatsPerChord = 32

	// MinArpRate is the shortest arp step in beats
	MinArpRate = 1.0 / 64
)

var (
	// ErrInvalidValue is returned when a control value is rejected and the previous value kept
	ErrInvalidValue = errors.New("invalid parameter value")
	// ErrUnknownLayer is returned for a layer name other than pad, arp or drums
	ErrUnknownLayer = errors.New("unknown layer")
)

// Layers toggles the output layers
type Layers struct {
	Pad   bool `json:"pad"`
	Arp   bool `json:"arp"`
	Drums bool `json:"drums"`
}

// LiveParameters are the controls the scheduler reads once per tick
type LiveParameters struct {
	BPM           int                `json:"bpm"`
	BeatsPerChord int                `json:"beats_per_chord"`
	Key           harmony.PitchClass `json:"key"`
	Preset        string             `json:"preset"`
	Adaptive      bool               `json:"adaptive"`
	ArpMode       rhythm.Mode        `json:"arp_mode"`
	ArpRate       float64            `json:"arp_rate"`
	ArpVelocity   int                `json:"arp_velocity"`
	Density       float64            `json:"density"`
	Layers        Layers             `json:"layers"`
}

// DefaultParameters mirrors the controller defaults
func DefaultParameters() LiveParameters {
	return LiveParameters{
		BPM:           100,
		BeatsPerChord: 2,
		Key:           0,
		Preset:        harmony.PresetConsonant,
		ArpMode:       rhythm.ModeOff,
		ArpRate:       0.5,
		ArpVelocity:   rhythm.DefaultVelocity,
		Density:       1.0,
		Layers:        Layers{Pad: true, Arp: true, Drums: true},
	}
}

// BeatDuration is 60/bpm
func (p LiveParameters) BeatDuration() time.Duration {
	return time.Duration(float64(time.Minute) / float64(p.BPM))
}

// ChordInterval is beats_per_chord beats
func (p LiveParameters) ChordInterval() time.Duration {
	return time.Duration(p.BeatsPerChord) * p.BeatDuration()
}

// ArpInterval is arp_rate beats
func (p LiveParameters) ArpInterval() time.Duration {
	return time.Duration(p.ArpRate * float64(p.BeatDuration()))
}

// Store holds the current LiveParameters. Writers copy, modify and publish a new
// snapshot; readers load it without locking.
type Store struct {
	mu      sync.Mutex
	current atomic.Pointer[LiveParameters]
	version atomic.Uint64
}

// NewStore creates a store seeded with p after sanitizing it
func NewStore(p LiveParameters) *Store {
	p.sanitize()
	s := &Store{}
	s.current.Store(&p)
	return s
}

func (p *LiveParameters) sanitize() {
	p.BPM = clampInt(p.BPM, MinBPM, MaxBPM)
	p.BeatsPerChord = clampInt(p.BeatsPerChord, MinBeatsPerChord, MaxBeatsPerChord)
	if math.IsNaN(p.ArpRate) || math.IsInf(p.ArpRate, 0) || p.ArpRate <= 0 {
		p.ArpRate = DefaultParameters().ArpRate
	}
	p.ArpRate = math.Max(p.ArpRate, MinArpRate)
	if math.IsNaN(p.Density) {
		p.Density = 1
	}
	p.Density = math.Max(0, math.Min(1, p.Density))
	p.ArpVelocity = rhythm.ClampVelocity(p.ArpVelocity)
	p.Key %= 12
}

// Snapshot returns a copy of the current parameters
func (s *Store) Snapshot() LiveParameters {
	return *s.current.Load()
}

// Version increases on every successful update
func (s *Store) Version() uint64 {
	return s.version.Load()
}

// Update applies fn to a copy of the current parameters and publishes it.
// If fn returns an error nothing changes.
func (s *Store) Update(fn func(p *LiveParameters) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := *s.current.Load()
	if err := fn(&next); err != nil {
		return err
	}
	s.current.Store(&next)
	s.version.Add(1)
	return nil
}

// SetBPM clamps bpm into MinBPM..MaxBPM
func (s *Store) SetBPM(bpm int) error {
	return s.Update(func(p *LiveParameters) error {
		p.BPM = clampInt(bpm, MinBPM, MaxBPM)
		return nil
	})
}

// SetBeatsPerChord clamps n into MinBeatsPerChord..MaxBeatsPerChord
func (s *Store) SetBeatsPerChord(n int) error {
	return s.Update(func(p *LiveParameters) error {
		p.BeatsPerChord = clampInt(n, MinBeatsPerChord, MaxBeatsPerChord)
		return nil
	})
}

// SetKey changes the tonal center
func (s *Store) SetKey(key harmony.PitchClass) error {
	return s.Update(func(p *LiveParameters) error {
		if key >= 12 {
			return fmt.Errorf("%w: key %d", ErrInvalidValue, key)
		}
		p.Key = key
		return nil
	})
}

// SetPreset stores a preset name; unknown names are rejected
func (s *Store) SetPreset(name string) error {
	if _, err := harmony.LookupPreset(name); err != nil {
		return err
	}
	return s.Update(func(p *LiveParameters) error {
		p.Preset = name
		return nil
	})
}

// SetAdaptive switches between smoothed (adaptive) and raw confidence
func (s *Store) SetAdaptive(on bool) error {
	return s.Update(func(p *LiveParameters) error {
		p.Adaptive = on
		return nil
	})
}

// SetArpMode changes the arpeggio pattern
func (s *Store) SetArpMode(m rhythm.Mode) error {
	return s.Update(func(p *LiveParameters) error {
		p.ArpMode = m
		return nil
	})
}

// SetArpRate rejects non-positive rates and keeps the previous one. Rates below
// MinArpRate are raised to it.
func (s *Store) SetArpRate(beats float64) error {
	return s.Update(func(p *LiveParameters) error {
		if math.IsNaN(beats) || math.IsInf(beats, 0) || beats <= 0 {
			return fmt.Errorf("%w: arp_rate %v", ErrInvalidValue, beats)
		}
		p.ArpRate = math.Max(beats, MinArpRate)
		return nil
	})
}

// SetArpVelocity clamps into 1..127
func (s *Store) SetArpVelocity(v int) error {
	return s.Update(func(p *LiveParameters) error {
		p.ArpVelocity = rhythm.ClampVelocity(v)
		return nil
	})
}

// SetDensity clamps into 0..1; NaN is rejected
func (s *Store) SetDensity(d float64) error {
	return s.Update(func(p *LiveParameters) error {
		if math.IsNaN(d) {
			return fmt.Errorf("%w: density NaN", ErrInvalidValue)
		}
		p.Density = math.Max(0, math.Min(1, d))
		return nil
	})
}

// SetLayer toggles pad, arp or drums
func (s *Store) SetLayer(name string, on bool) error {
	return s.Update(func(p *LiveParameters) error {
		switch name {
		case "pad":
			p.Layers.Pad = on
		case "arp":
			p.Layers.Arp = on
		case "drums":
			p.Layers.Drums = on
		default:
			return fmt.Errorf("%w: %q", ErrUnknownLayer, name)
		}
		return nil
	})
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
