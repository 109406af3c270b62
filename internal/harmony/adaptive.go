package harmony

import (
	"math"
	"time"

	"github.com/Conceptual-Machines/tension-engine/internal/bci"
)

// NeutralConfidence is where a stale signal decays to (target tension 5.0)
const NeutralConfidence = 0.5

// Confidence 0..1 maps linearly onto tension 0..10
const confidenceToTension = MaxTension

// ConfidenceSource provides the latest confidence snapshot
type ConfidenceSource interface {
	Snapshot() bci.Snapshot
}

// AdaptiveConfig holds the named tunables of the adaptive layer
type AdaptiveConfig struct {
	// StaleAfter is how old the newest sample may be before the target starts decaying
	StaleAfter time.Duration
	// DecayTau is the time constant of the exponential decay toward NeutralConfidence
	DecayTau time.Duration

	// ContextSwitch enables swapping to the tense library
	ContextSwitch bool
	// TenseHigh must be held for SustainFor before the tense library is used
	TenseHigh float64
	// TenseLow reverts to the base library as soon as it is crossed
	TenseLow   float64
	SustainFor time.Duration
}

// DefaultAdaptiveConfig returns the defaults used when nothing is configured
func DefaultAdaptiveConfig() AdaptiveConfig {
	return AdaptiveConfig{
		StaleAfter:    3 * time.Second,
		DecayTau:      time.Second,
		ContextSwitch: true,
		TenseHigh:     0.75,
		TenseLow:      0.4,
		SustainFor:    4 * time.Second,
	}
}

// Adaptive turns the confidence signal into a target tension and drives the Harmonizer.
// In adaptive mode it uses the smoothed confidence and may switch to a tense library
// with hysteresis; otherwise the raw confidence is fed straight through.
// Owned by the scheduler goroutine.
type Adaptive struct {
	h   *Harmonizer
	src ConfidenceSource
	cfg AdaptiveConfig

	base  *Library
	tense *Library

	tenseActive bool
	aboveSince  time.Time
	lastTarget  float64
}

// NewAdaptive wraps h. The harmonizer's current library becomes the base library.
func NewAdaptive(h *Harmonizer, src ConfidenceSource, cfg AdaptiveConfig) *Adaptive {
	return &Adaptive{
		h:          h,
		src:        src,
		cfg:        cfg,
		base:       h.Library(),
		lastTarget: NeutralConfidence * confidenceToTension,
	}
}

// Harmonizer returns the wrapped harmonizer
func (a *Adaptive) Harmonizer() *Harmonizer { return a.h }

// SetLibraries replaces the base and tense libraries (tense may be nil)
func (a *Adaptive) SetLibraries(base, tense *Library) {
	a.base = base
	a.tense = tense
	if a.tenseActive && tense != nil {
		a.h.SetLibrary(tense)
		return
	}
	a.tenseActive = false
	a.aboveSince = time.Time{}
	a.h.SetLibrary(base)
}

// Reset drops the hysteresis state and returns to the base library
func (a *Adaptive) Reset() {
	a.useBase()
	a.lastTarget = NeutralConfidence * confidenceToTension
}

// TenseActive reports whether the tense library is in use
func (a *Adaptive) TenseActive() bool { return a.tenseActive }

// LastTarget is the target tension used by the most recent selection
func (a *Adaptive) LastTarget() float64 { return a.lastTarget }

// Confidence returns the confidence in effect at now. A missing signal is neutral and a
// stale one decays exponentially toward neutral.
func (a *Adaptive) Confidence(now time.Time, adaptive bool) float64 {
	snap := a.src.Snapshot()
	if !snap.Valid {
		return NeutralConfidence
	}

	v := snap.Raw
	if adaptive {
		v = snap.Smoothed
	}

	age := now.Sub(snap.Timestamp)
	if age > a.cfg.StaleAfter {
		if a.cfg.DecayTau <= 0 {
			return NeutralConfidence
		}
		excess := float64(age-a.cfg.StaleAfter) / float64(a.cfg.DecayTau)
		v = NeutralConfidence + (v-NeutralConfidence)*math.Exp(-excess)
	}
	return v
}

// Target is the target tension at now
func (a *Adaptive) Target(now time.Time, adaptive bool) float64 {
	return a.Confidence(now, adaptive) * confidenceToTension
}

// Next selects the chord following prev and returns it with the target it was chosen for
func (a *Adaptive) Next(prev Chord, now time.Time, adaptive bool) (Chord, float64) {
	conf := a.Confidence(now, adaptive)
	if adaptive {
		a.updateContext(conf, now)
	} else if a.tenseActive {
		a.useBase()
	}

	target := conf * confidenceToTension
	a.lastTarget = target
	return a.h.NextChord(prev, target), target
}

func (a *Adaptive) updateContext(conf float64, now time.Time) {
	if !a.cfg.ContextSwitch || a.tense == nil {
		if a.tenseActive {
			a.useBase()
		}
		return
	}

	if a.tenseActive {
		if conf <= a.cfg.TenseLow {
			a.useBase()
		}
		return
	}

	if conf < a.cfg.TenseHigh {
		a.aboveSince = time.Time{}
		return
	}
	if a.aboveSince.IsZero() {
		a.aboveSince = now
	}
	if now.Sub(a.aboveSince) >= a.cfg.SustainFor {
		a.tenseActive = true
		a.h.SetLibrary(a.tense)
	}
}

func (a *Adaptive) useBase() {
	a.tenseActive = false
	a.aboveSince = time.Time{}
	a.h.SetLibrary(a.base)
}
