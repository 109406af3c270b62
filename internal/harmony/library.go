package harmony

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	// ErrUnknownPreset is returned for a preset name the catalog does not define
	ErrUnknownPreset = errors.New("unknown preset")
	// ErrEmptyLibrary is returned when a key/preset combination yields no chords
	ErrEmptyLibrary = errors.New("chord library is empty")
)

// Major-scale degrees used by key-filtered presets
var majorScale = []int{0, 2, 4, 5, 7, 9, 11}

// Extension sets every quality is generated with
var (
	basicExtensionSets   = []Extension{0, Ext9, Ext9 | Ext11, Ext9 | Ext11 | Ext13}
	alteredExtensionSets = []Extension{ExtSharp11, ExtFlat9, ExtSharp9}
)

// Preset selects the weights and the shape of the chord library
type Preset struct {
	Name         string    `json:"name"`
	Weights      Weights   `json:"weights"`
	Qualities    []Quality `json:"qualities"`
	AllowAltered bool      `json:"allow_altered"`
	KeyFilter    bool      `json:"key_filter"`
}

// Preset names
const (
	PresetStandard  = "standard"
	PresetConsonant = "consonant"
	PresetJazzy     = "jazzy"
	PresetChromatic = "chromatic"
	PresetTense     = "tense"
)

var presets = map[string]Preset{
	PresetStandard: {
		Name:         PresetStandard,
		Weights:      DefaultWeights,
		Qualities:    Qualities(),
		AllowAltered: true,
		KeyFilter:    true,
	},
	PresetConsonant: {
		Name:         PresetConsonant,
		Weights:      Weights{Quality: 1.0, Extensions: 0.5, Root: 0.8},
		Qualities:    []Quality{Maj, Min, Sus2, Sus4},
		AllowAltered: false,
		KeyFilter:    true,
	},
	PresetJazzy: {
		Name:         PresetJazzy,
		Weights:      Weights{Quality: 1.2, Extensions: 2.0, Root: 0.8},
		Qualities:    []Quality{Maj7, Min7, Dom7, Min},
		AllowAltered: true,
		KeyFilter:    true,
	},
	PresetChromatic: {
		Name:         PresetChromatic,
		Weights:      Weights{Quality: 1.5, Extensions: 1.0, Root: 2.0},
		Qualities:    Qualities(),
		AllowAltered: true,
		KeyFilter:    false,
	},
	PresetTense: {
		Name:         PresetTense,
		Weights:      DefaultWeights,
		Qualities:    []Quality{Dom7, Min7, Dim, Aug},
		AllowAltered: true,
		KeyFilter:    false,
	},
}

// LookupPreset returns the named preset
func LookupPreset(name string) (Preset, error) {
	p, ok := presets[name]
	if !ok {
		return Preset{}, fmt.Errorf("%w: %q", ErrUnknownPreset, name)
	}
	return p, nil
}

// PresetNames lists the defined presets in sorted order
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Library is the read-only candidate set for one key and preset. The tension table is
// filled at build time (previous root x chord index) and never recomputed.
type Library struct {
	key    PitchClass
	preset Preset
	octave int
	scorer *Scorer

	chords  []Chord
	pitches [][]int
	byRoot  [numPitchClasses][]int
	index   map[Chord]int
	table   [numPitchClasses][]float64
}

// BuildLibrary enumerates the preset's chords for key and precomputes their tension
// against every previous root
func BuildLibrary(key PitchClass, preset Preset, octave int, scorer *Scorer) (*Library, error) {
	if key >= numPitchClasses {
		return nil, fmt.Errorf("invalid key %d", key)
	}
	if scorer == nil {
		scorer = NewScorer(preset.Weights)
	}

	roots := make([]PitchClass, 0, numPitchClasses)
	if preset.KeyFilter {
		for _, deg := range majorScale {
			roots = append(roots, PitchClass((int(key)+deg)%numPitchClasses))
		}
	} else {
		for r := 0; r < numPitchClasses; r++ {
			roots = append(roots, PitchClass(r))
		}
	}

	extSets := basicExtensionSets
	if preset.AllowAltered {
		extSets = append(append([]Extension{}, basicExtensionSets...), alteredExtensionSets...)
	}

	lib := &Library{
		key:    key,
		preset: preset,
		octave: octave,
		scorer: scorer,
		index:  make(map[Chord]int),
	}

	for _, root := range roots {
		for _, q := range preset.Qualities {
			if !q.Valid() {
				return nil, fmt.Errorf("%w: %d", ErrUnknownQuality, q)
			}
			for _, ext := range extSets {
				c := Chord{Root: root, Quality: q, Ext: ext}
				if _, dup := lib.index[c]; dup {
					continue
				}
				idx := len(lib.chords)
				lib.chords = append(lib.chords, c)
				lib.pitches = append(lib.pitches, c.Pitches(octave))
				lib.byRoot[root] = append(lib.byRoot[root], idx)
				lib.index[c] = idx
			}
		}
	}

	if len(lib.chords) == 0 {
		return nil, fmt.Errorf("%w (key %s, preset %s)", ErrEmptyLibrary, key, preset.Name)
	}

	for prev := 0; prev < numPitchClasses; prev++ {
		row := make([]float64, len(lib.chords))
		for i, c := range lib.chords {
			row[i] = scorer.Tension(PitchClass(prev), c)
		}
		lib.table[prev] = row
	}

	return lib, nil
}

// Key is the tonal center the library was built for
func (l *Library) Key() PitchClass { return l.key }

// Preset is the preset the library was built from
func (l *Library) Preset() Preset { return l.preset }

// Octave used for rendered pitches
func (l *Library) Octave() int { return l.octave }

// Scorer that filled the tension table
func (l *Library) Scorer() *Scorer { return l.scorer }

// Len is the number of chords
func (l *Library) Len() int { return len(l.chords) }

// Chord returns the chord at idx
func (l *Library) Chord(idx int) Chord { return l.chords[idx] }

// Chords returns a copy of every chord in build order
func (l *Library) Chords() []Chord {
	return append([]Chord(nil), l.chords...)
}

// ByRoot returns the chord indices rooted on root. The slice is shared and must not be modified.
func (l *Library) ByRoot(root PitchClass) []int {
	if root >= numPitchClasses {
		return nil
	}
	return l.byRoot[root]
}

// Pitches returns the rendered pitches of chord idx. The slice is shared and must not be modified.
func (l *Library) Pitches(idx int) []int { return l.pitches[idx] }

// IndexOf finds c in the library
func (l *Library) IndexOf(c Chord) (int, bool) {
	idx, ok := l.index[c]
	return idx, ok
}

// Tension is the table lookup for chord idx following prevRoot
func (l *Library) Tension(prevRoot PitchClass, idx int) float64 {
	return l.table[prevRoot%numPitchClasses][idx]
}

// TensionOf scores any chord, using the table when c belongs to the library
func (l *Library) TensionOf(prevRoot PitchClass, c Chord) float64 {
	if idx, ok := l.index[c]; ok {
		return l.Tension(prevRoot, idx)
	}
	return l.scorer.Tension(prevRoot, c)
}

type catalogKey struct {
	key    PitchClass
	preset string
}

// Catalog builds libraries on first request and hands out the same instance afterwards.
// A key or preset change selects a different library; existing ones are never modified.
type Catalog struct {
	octave   int
	override *Weights

	mu      sync.Mutex
	scorers map[Weights]*Scorer
	libs    map[catalogKey]*Library
}

// CatalogOption configures a Catalog
type CatalogOption func(*Catalog)

// WithWeights replaces every preset's weights
func WithWeights(w Weights) CatalogOption {
	return func(c *Catalog) {
		c.override = &w
	}
}

// NewCatalog creates a catalog rendering pitches at octave
func NewCatalog(octave int, opts ...CatalogOption) *Catalog {
	c := &Catalog{
		octave:  octave,
		scorers: make(map[Weights]*Scorer),
		libs:    make(map[catalogKey]*Library),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Octave used for rendered pitches
func (c *Catalog) Octave() int { return c.octave }

// Library returns the library for key and preset, building it if needed
func (c *Catalog) Library(key PitchClass, presetName string) (*Library, error) {
	k := catalogKey{key: key, preset: presetName}

	c.mu.Lock()
	defer c.mu.Unlock()

	if lib, ok := c.libs[k]; ok {
		return lib, nil
	}

	preset, err := LookupPreset(presetName)
	if err != nil {
		return nil, err
	}
	if c.override != nil {
		preset.Weights = *c.override
	}

	scorer, ok := c.scorers[preset.Weights]
	if !ok {
		scorer = NewScorer(preset.Weights)
		c.scorers[preset.Weights] = scorer
	}

	lib, err := BuildLibrary(key, preset, c.octave, scorer)
	if err != nil {
		return nil, err
	}
	c.libs[k] = lib
	return lib, nil
}
