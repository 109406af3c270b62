package harmony

import (
	"math"
	"math/rand/v2"
)

// DefaultTopK is the size of the candidate window the final draw is made from
const DefaultTopK = 4

// Buffer for rendering a previous chord that is not in the library
const maxChordTones = 16

// RNG is the randomness source for the weighted draw. *rand.Rand satisfies it.
type RNG interface {
	Float64() float64
}

type globalRNG struct{}

func (globalRNG) Float64() float64 { return rand.Float64() }

// DefaultRNG draws from the process-wide math/rand/v2 source
func DefaultRNG() RNG { return globalRNG{} }

// NewSeededRNG returns a deterministic source; seed 0 means DefaultRNG
func NewSeededRNG(seed uint64) RNG {
	if seed == 0 {
		return DefaultRNG()
	}
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Scope selects which chords are candidates
type Scope int

const (
	// ScopeFull considers the whole library
	ScopeFull Scope = iota
	// ScopeSameRoot considers only chords sharing the previous chord's root
	ScopeSameRoot
)

func (s Scope) String() string {
	if s == ScopeSameRoot {
		return "same_root"
	}
	return "full"
}

// ParseScope reads "full" or "same_root"; anything else is ScopeFull
func ParseScope(s string) Scope {
	if s == "same_root" {
		return ScopeSameRoot
	}
	return ScopeFull
}

// Candidate is one ranked entry of the top-K window
type Candidate struct {
	Chord     Chord   `json:"chord"`
	Index     int     `json:"index"`
	Tension   float64 `json:"tension"`
	Delta     float64 `json:"delta"`
	VoiceCost float64 `json:"voice_cost"`
}

// less orders by tension closeness, then voice-leading cost, then library order
func (c Candidate) less(o Candidate) bool {
	if c.Delta != o.Delta {
		return c.Delta < o.Delta
	}
	if c.VoiceCost != o.VoiceCost {
		return c.VoiceCost < o.VoiceCost
	}
	return c.Index < o.Index
}

// Harmonizer picks the next chord whose tension best tracks a target.
// Not safe for concurrent use; the scheduler goroutine owns it.
type Harmonizer struct {
	lib   *Library
	topK  int
	scope Scope
	rng   RNG

	top     []Candidate
	prevBuf [maxChordTones]int
}

// HarmonizerOption configures a Harmonizer
type HarmonizerOption func(*Harmonizer)

// WithTopK sets the candidate window size (minimum 1)
func WithTopK(k int) HarmonizerOption {
	return func(h *Harmonizer) {
		if k < 1 {
			k = 1
		}
		h.topK = k
	}
}

// WithScope sets the candidate scope
func WithScope(s Scope) HarmonizerOption {
	return func(h *Harmonizer) { h.scope = s }
}

// WithRNG injects the randomness source
func WithRNG(r RNG) HarmonizerOption {
	return func(h *Harmonizer) {
		if r != nil {
			h.rng = r
		}
	}
}

// NewHarmonizer creates a harmonizer over lib
func NewHarmonizer(lib *Library, opts ...HarmonizerOption) *Harmonizer {
	h := &Harmonizer{
		lib:   lib,
		topK:  DefaultTopK,
		scope: ScopeFull,
		rng:   DefaultRNG(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.top = make([]Candidate, 0, h.topK)
	return h
}

// Library returns the active library
func (h *Harmonizer) Library() *Library { return h.lib }

// SetLibrary swaps the active library
func (h *Harmonizer) SetLibrary(lib *Library) { h.lib = lib }

// TopK is the configured window size
func (h *Harmonizer) TopK() int { return h.topK }

// NextChord ranks candidates by (|T-target|, voice-leading cost), keeps the top K and draws
// one with weight 1/(rank+1)
func (h *Harmonizer) NextChord(prev Chord, target float64) Chord {
	top := h.rank(prev, target)
	if len(top) == 0 {
		return prev
	}

	total := 0.0
	for i := range top {
		total += 1.0 / float64(i+1)
	}
	r := h.rng.Float64() * total
	for i := range top {
		r -= 1.0 / float64(i+1)
		if r < 0 {
			return top[i].Chord
		}
	}
	return top[len(top)-1].Chord
}

// Candidates returns a copy of the top-K window for prev and target
func (h *Harmonizer) Candidates(prev Chord, target float64) []Candidate {
	return append([]Candidate(nil), h.rank(prev, target)...)
}

// rank fills h.top with the best K candidates in ascending order without allocating
func (h *Harmonizer) rank(prev Chord, target float64) []Candidate {
	h.top = h.top[:0]
	if h.lib == nil {
		return h.top
	}

	prevPitches := h.prevPitches(prev)

	if h.scope == ScopeSameRoot {
		if idxs := h.lib.ByRoot(prev.Root); len(idxs) > 0 {
			for _, idx := range idxs {
				h.consider(prev, prevPitches, idx, target)
			}
			return h.top
		}
	}

	for idx := 0; idx < h.lib.Len(); idx++ {
		h.consider(prev, prevPitches, idx, target)
	}
	return h.top
}

func (h *Harmonizer) prevPitches(prev Chord) []int {
	if idx, ok := h.lib.IndexOf(prev); ok {
		return h.lib.Pitches(idx)
	}
	if prev.Size() > maxChordTones {
		return nil
	}
	return prev.AppendPitches(h.prevBuf[:0], h.lib.Octave())
}

// consider inserts candidate idx into the sorted top-K window if it ranks high enough
func (h *Harmonizer) consider(prev Chord, prevPitches []int, idx int, target float64) {
	t := h.lib.Tension(prev.Root, idx)
	c := Candidate{
		Chord:   h.lib.Chord(idx),
		Index:   idx,
		Tension: t,
		Delta:   math.Abs(t - target),
	}

	// Delta alone decides when the window is full and c is strictly worse
	if len(h.top) == h.topK && c.Delta > h.top[len(h.top)-1].Delta {
		return
	}
	c.VoiceCost = VoiceLeadingCost(prevPitches, h.lib.Pitches(idx))

	if len(h.top) == h.topK {
		if !c.less(h.top[len(h.top)-1]) {
			return
		}
		h.top = h.top[:len(h.top)-1]
	}

	pos := len(h.top)
	h.top = append(h.top, c)
	for pos > 0 && c.less(h.top[pos-1]) {
		h.top[pos] = h.top[pos-1]
		pos--
	}
	h.top[pos] = c
}
