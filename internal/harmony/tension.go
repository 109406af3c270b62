package harmony

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// Tension is clamped to this range
const (
	MinTension = 0.0
	MaxTension = 10.0
)

// Extension sub-score contributions
const (
	diatonicExtensionScore = 0.5
	alteredExtensionScore  = 1.0
)

// Q sub-score per quality (0..4)
var qualityScore = [numQualities]float64{
	Maj:  0,
	Sus2: 0,
	Sus4: 0,
	Min:  1,
	Dom7: 2,
	Maj7: 2.5,
	Min7: 2.5,
	Aug:  3,
	Dim:  4,
}

// R sub-score indexed by circle-of-fifths distance (0..6)
var rootMovementScore = [7]float64{0, 0, 1, 1, 2, 3, 3}

// Weights scale the quality, extension and root-movement sub-scores
type Weights struct {
	Quality    float64 `json:"quality"`
	Extensions float64 `json:"extensions"`
	Root       float64 `json:"root"`
}

// DefaultWeights are wQ=1.5, wE=1.0, wR=1.2
var DefaultWeights = Weights{Quality: 1.5, Extensions: 1.0, Root: 1.2}

// ParseWeights reads "wQ,wE,wR"
func ParseWeights(s string) (Weights, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return Weights{}, fmt.Errorf("weights %q: want three comma-separated values", s)
	}
	var vals [3]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return Weights{}, fmt.Errorf("weights %q: %w", s, err)
		}
		if v < 0 {
			return Weights{}, fmt.Errorf("weights %q: negative weight", s)
		}
		vals[i] = v
	}
	return Weights{Quality: vals[0], Extensions: vals[1], Root: vals[2]}, nil
}

// QualityScore is the Q sub-score
func QualityScore(q Quality) float64 {
	if !q.Valid() {
		return 0
	}
	return qualityScore[q]
}

// ExtensionScore is the E sub-score
func ExtensionScore(e Extension) float64 {
	return diatonicExtensionScore*float64(e.Diatonic()) + alteredExtensionScore*float64(e.Altered())
}

// RootMovementScore is the R sub-score for a move from prevRoot to root
func RootMovementScore(prevRoot, root PitchClass) float64 {
	return rootMovementScore[CircleOfFifthsDistance(prevRoot, root)]
}

// Tension computes T = wQ*Q + wE*E + wR*R clamped to [0,10]. It is pure; Scorer memoizes it.
func Tension(w Weights, prevRoot PitchClass, c Chord) float64 {
	t := w.Quality*QualityScore(c.Quality) +
		w.Extensions*ExtensionScore(c.Ext) +
		w.Root*RootMovementScore(prevRoot, c.Root)
	return clamp(t, MinTension, MaxTension)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

type tensionKey struct {
	prevRoot PitchClass
	chord    Chord
}

// Scorer memoizes Tension for one set of weights. Each (prevRoot, chord) pair is computed once.
// Safe for concurrent use.
type Scorer struct {
	weights Weights

	mu    sync.RWMutex
	cache map[tensionKey]float64
}

// NewScorer creates a scorer for the given weights
func NewScorer(w Weights) *Scorer {
	return &Scorer{
		weights: w,
		cache:   make(map[tensionKey]float64),
	}
}

// Weights returns the scorer's weights
func (s *Scorer) Weights() Weights {
	return s.weights
}

// Tension returns the cached tension of c following prevRoot, computing it on first use
func (s *Scorer) Tension(prevRoot PitchClass, c Chord) float64 {
	key := tensionKey{prevRoot: prevRoot, chord: c}

	s.mu.RLock()
	t, ok := s.cache[key]
	s.mu.RUnlock()
	if ok {
		return t
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.cache[key]; ok {
		return t
	}
	t = Tension(s.weights, prevRoot, c)
	s.cache[key] = t
	return t
}

// CacheLen is the number of memoized pairs
func (s *Scorer) CacheLen() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cache)
}
