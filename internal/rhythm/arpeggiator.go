package rhythm

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// Mode is the order chord tones are played in
type Mode uint8

const (
	ModeOff Mode = iota
	ModeUp
	ModeDown
	ModeUpDown
	ModeRandom
)

// ErrUnknownMode is returned for an arp mode name that is not defined
var ErrUnknownMode = errors.New("unknown arp mode")

var modeNames = map[Mode]string{
	ModeOff:    "off",
	ModeUp:     "up",
	ModeDown:   "down",
	ModeUpDown: "updown",
	ModeRandom: "random",
}

func (m Mode) String() string {
	if name, ok := modeNames[m]; ok {
		return name
	}
	return "unknown"
}

// ParseMode reads a mode name (case insensitive)
func ParseMode(name string) (Mode, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for m, n := range modeNames {
		if n == name {
			return m, nil
		}
	}
	return ModeOff, fmt.Errorf("%w: %q", ErrUnknownMode, name)
}

// Velocity and accent constants
const (
	DefaultVelocity = 90
	minVelocity     = 1
	maxVelocity     = 127

	accentOnBeat  = 1.0
	accentOffBeat = 0.8

	// Fraction of a beat still counted as "on the beat"
	onBeatTolerance = 1e-6

	maxTones = 16
)

// RNG is the randomness source for random mode and density gating
type RNG interface {
	Float64() float64
}

// Note is a single arpeggiated note
type Note struct {
	Pitch    int `json:"pitch"`
	Velocity int `json:"velocity"`
}

// Arpeggiator walks the tones of the active chord. Not safe for concurrent use.
type Arpeggiator struct {
	mode     Mode
	velocity int
	rng      RNG

	tones [maxTones]int
	n     int

	index     int
	direction int
}

// NewArpeggiator creates an arpeggiator with no chord loaded
func NewArpeggiator(mode Mode, velocity int, rng RNG) *Arpeggiator {
	a := &Arpeggiator{
		mode:     mode,
		velocity: ClampVelocity(velocity),
		rng:      rng,
	}
	a.Reset()
	return a
}

// ClampVelocity keeps v inside 1..127
func ClampVelocity(v int) int {
	if v < minVelocity {
		return minVelocity
	}
	if v > maxVelocity {
		return maxVelocity
	}
	return v
}

// Mode returns the current mode
func (a *Arpeggiator) Mode() Mode { return a.mode }

// SetMode changes the pattern; the position resets when the mode actually changes
func (a *Arpeggiator) SetMode(m Mode) {
	if m == a.mode {
		return
	}
	a.mode = m
	a.Reset()
}

// SetVelocity changes the base velocity
func (a *Arpeggiator) SetVelocity(v int) { a.velocity = ClampVelocity(v) }

// SetChord loads ascending chord pitches and resets the position. Copies at most 16 tones.
func (a *Arpeggiator) SetChord(pitches []int) {
	a.n = copy(a.tones[:], pitches)
	a.Reset()
}

// Tones returns the loaded tones (shared, do not modify)
func (a *Arpeggiator) Tones() []int { return a.tones[:a.n] }

// Reset moves to the start of the pattern
func (a *Arpeggiator) Reset() {
	a.direction = 1
	a.index = 0
	if a.mode == ModeDown && a.n > 0 {
		a.index = a.n - 1
	}
}

// Index is the tone index the next call to Next will play (up, down and updown)
func (a *Arpeggiator) Index() int { return a.index }

// Next returns the next note; ok is false in off mode or with no chord loaded.
// phase is the elapsed beat position, used for the accent.
func (a *Arpeggiator) Next(phase float64) (Note, bool) {
	if a.mode == ModeOff || a.n == 0 {
		return Note{}, false
	}

	var idx int
	if a.mode == ModeRandom {
		idx = int(a.rng.Float64() * float64(a.n))
		if idx >= a.n {
			idx = a.n - 1
		}
	} else {
		idx = a.index
		a.advance()
	}

	return Note{
		Pitch:    a.tones[idx],
		Velocity: ClampVelocity(int(math.Round(float64(a.velocity) * Accent(phase)))),
	}, true
}

func (a *Arpeggiator) advance() {
	switch a.mode {
	case ModeUp:
		a.index = (a.index + 1) % a.n
	case ModeDown:
		a.index = (a.index - 1 + a.n) % a.n
	case ModeUpDown:
		if a.n == 1 {
			a.index = 0
			return
		}
		if a.direction > 0 {
			if a.index >= a.n-1 {
				a.direction = -1
				a.index--
			} else {
				a.index++
			}
		} else {
			if a.index <= 0 {
				a.direction = 1
				a.index++
			} else {
				a.index--
			}
		}
	}
}

// Accent is the velocity multiplier for a note at the given beat phase
func Accent(phase float64) float64 {
	frac := phase - math.Floor(phase)
	if frac < onBeatTolerance || frac > 1-onBeatTolerance {
		return accentOnBeat
	}
	return accentOffBeat
}

// Gate decides whether a scheduled note sounds: it is kept with probability density
func Gate(density float64, rng RNG) bool {
	if density <= 0 {
		return false
	}
	if density >= 1 {
		return true
	}
	return rng.Float64() < density
}

// MarshalText encodes the mode as its name
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText parses a mode name
func (m *Mode) UnmarshalText(text []byte) error {
	parsed, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
