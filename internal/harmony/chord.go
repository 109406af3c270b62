package harmony

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// PitchClass is a semitone class, C=0 through B=11
type PitchClass uint8

const numPitchClasses = 12

var pitchClassNames = [numPitchClasses]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

func (p PitchClass) String() string {
	return pitchClassNames[int(p)%numPitchClasses]
}

// ParsePitchClass converts a key name like "C", "f#", "Bb" or "Db" to a pitch class
func ParsePitchClass(name string) (PitchClass, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, errors.New("empty pitch class name")
	}

	noteOffsets := map[byte]int{
		'C': 0, 'D': 2, 'E': 4, 'F': 5, 'G': 7, 'A': 9, 'B': 11,
	}
	letter := name[0]
	if letter >= 'a' && letter <= 'z' {
		letter -= 'a' - 'A'
	}
	semitone, ok := noteOffsets[letter]
	if !ok {
		return 0, fmt.Errorf("invalid note letter in %q", name)
	}

	for _, acc := range name[1:] {
		switch acc {
		case '#':
			semitone++
		case 'b', 'B':
			semitone--
		default:
			return 0, fmt.Errorf("invalid accidental in %q", name)
		}
	}

	return PitchClass((semitone%numPitchClasses + numPitchClasses) % numPitchClasses), nil
}

// Quality is the closed set of chord qualities the scorer knows about
type Quality uint8

const (
	Maj Quality = iota
	Min
	Dim
	Aug
	Dom7
	Maj7
	Min7
	Sus2
	Sus4

	numQualities
)

// ErrUnknownQuality is returned when a quality name is not one of the supported qualities
var ErrUnknownQuality = errors.New("unknown chord quality")

var qualityNames = [numQualities]string{"maj", "min", "dim", "aug", "dom7", "maj7", "min7", "sus2", "sus4"}

// Semitone offsets from the root, lowest first
var qualityIntervals = [numQualities][]int{
	Maj:  {0, 4, 7},
	Min:  {0, 3, 7},
	Dim:  {0, 3, 6},
	Aug:  {0, 4, 8},
	Dom7: {0, 4, 7, 10},
	Maj7: {0, 4, 7, 11},
	Min7: {0, 3, 7, 10},
	Sus2: {0, 2, 7},
	Sus4: {0, 5, 7},
}

func (q Quality) String() string {
	if q >= numQualities {
		return "unknown"
	}
	return qualityNames[q]
}

// Valid reports whether q is one of the defined qualities
func (q Quality) Valid() bool {
	return q < numQualities
}

// Intervals returns the chord-tone offsets of the quality. The slice is shared and must not be modified.
func (q Quality) Intervals() []int {
	if q >= numQualities {
		return nil
	}
	return qualityIntervals[q]
}

// ParseQuality normalizes a quality name. Accepts the canonical names plus "7", "m7", "m" and "dom".
func ParseQuality(name string) (Quality, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "maj", "major", "":
		return Maj, nil
	case "min", "m", "minor":
		return Min, nil
	case "dim":
		return Dim, nil
	case "aug":
		return Aug, nil
	case "dom7", "7", "dom":
		return Dom7, nil
	case "maj7":
		return Maj7, nil
	case "min7", "m7":
		return Min7, nil
	case "sus2":
		return Sus2, nil
	case "sus4":
		return Sus4, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownQuality, name)
}

// Qualities returns all qualities in canonical order
func Qualities() []Quality {
	out := make([]Quality, 0, numQualities)
	for q := Quality(0); q < numQualities; q++ {
		out = append(out, q)
	}
	return out
}

// Extension is a single added tone. Extensions combine as a bit set.
type Extension uint8

const (
	Ext9 Extension = 1 << iota
	Ext11
	Ext13
	ExtSharp9
	ExtFlat9
	ExtSharp11
	ExtFlat13
)

const (
	diatonicExtensions = Ext9 | Ext11 | Ext13
	alteredExtensions  = ExtSharp9 | ExtFlat9 | ExtSharp11 | ExtFlat13
	allExtensions      = diatonicExtensions | alteredExtensions
)

// Canonical order used for rendering and for the symbol codec
var extensionOrder = []struct {
	ext    Extension
	name   string
	offset int
}{
	{Ext9, "9", 14},
	{Ext11, "11", 17},
	{Ext13, "13", 21},
	{ExtFlat9, "b9", 13},
	{ExtSharp9, "#9", 15},
	{ExtSharp11, "#11", 18},
	{ExtFlat13, "b13", 20},
}

// Has reports whether every extension in x is present
func (e Extension) Has(x Extension) bool {
	return e&x == x
}

// Diatonic counts 9, 11 and 13 additions
func (e Extension) Diatonic() int {
	return popcount(e & diatonicExtensions)
}

// Altered counts b9, #9, #11 and b13 additions
func (e Extension) Altered() int {
	return popcount(e & alteredExtensions)
}

// Len counts all extensions
func (e Extension) Len() int {
	return popcount(e & allExtensions)
}

func (e Extension) String() string {
	if e&allExtensions == 0 {
		return ""
	}
	parts := make([]string, 0, len(extensionOrder))
	for _, x := range extensionOrder {
		if e.Has(x.ext) {
			parts = append(parts, x.name)
		}
	}
	return strings.Join(parts, ",")
}

// ParseExtension converts a single extension token like "9" or "#11"
func ParseExtension(name string) (Extension, error) {
	name = strings.TrimSpace(name)
	for _, x := range extensionOrder {
		if x.name == name {
			return x.ext, nil
		}
	}
	return 0, fmt.Errorf("unknown extension %q", name)
}

func popcount(e Extension) int {
	n := 0
	for e != 0 {
		e &= e - 1
		n++
	}
	return n
}

// Chord is an immutable pitch-class chord. It is comparable and is used directly as a cache key.
type Chord struct {
	Root      PitchClass
	Quality   Quality
	Ext       Extension
	Inversion uint8
}

// Tonic returns the root-position major triad on key
func Tonic(key PitchClass) Chord {
	return Chord{Root: key, Quality: Maj}
}

// Size is the number of tones the chord renders to
func (c Chord) Size() int {
	return len(c.Quality.Intervals()) + c.Ext.Len()
}

// Valid checks the root, quality, extension bits and inversion range
func (c Chord) Valid() bool {
	if c.Root >= numPitchClasses || !c.Quality.Valid() {
		return false
	}
	if c.Ext&^allExtensions != 0 {
		return false
	}
	return int(c.Inversion) < len(c.Quality.Intervals())
}

// AppendPitches renders the chord as ascending MIDI note numbers at the given octave
// (base = root + 12*octave) and appends them to dst. Chord tones come first, then
// extensions; the inversion lifts the lowest chord tones by an octave.
func (c Chord) AppendPitches(dst []int, octave int) []int {
	base := int(c.Root) + 12*octave
	start := len(dst)

	for i, iv := range c.Quality.Intervals() {
		p := base + iv
		if i < int(c.Inversion) {
			p += 12
		}
		dst = append(dst, p)
	}
	for _, x := range extensionOrder {
		if c.Ext.Has(x.ext) {
			dst = append(dst, base+x.offset)
		}
	}

	insertionSort(dst[start:])
	return dst
}

// Pitches is the allocating form of AppendPitches
func (c Chord) Pitches(octave int) []int {
	return c.AppendPitches(make([]int, 0, c.Size()), octave)
}

func insertionSort(s []int) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j] < s[j-1]; j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
}

// String renders the chord symbol, e.g. "C:maj", "F#:dom7(9,#11)", "A:min7/1"
func (c Chord) String() string {
	var b strings.Builder
	b.WriteString(c.Root.String())
	b.WriteByte(':')
	b.WriteString(c.Quality.String())
	if c.Ext != 0 {
		b.WriteByte('(')
		b.WriteString(c.Ext.String())
		b.WriteByte(')')
	}
	if c.Inversion > 0 {
		b.WriteByte('/')
		b.WriteString(strconv.Itoa(int(c.Inversion)))
	}
	return b.String()
}

// ParseChord is the inverse of Chord.String
func ParseChord(symbol string) (Chord, error) {
	rootPart, rest, ok := strings.Cut(strings.TrimSpace(symbol), ":")
	if !ok {
		return Chord{}, fmt.Errorf("chord symbol %q missing ':'", symbol)
	}

	root, err := ParsePitchClass(rootPart)
	if err != nil {
		return Chord{}, fmt.Errorf("invalid chord root: %w", err)
	}

	var inversion int
	if head, inv, found := strings.Cut(rest, "/"); found {
		inversion, err = strconv.Atoi(inv)
		if err != nil || inversion < 0 {
			return Chord{}, fmt.Errorf("invalid inversion in %q", symbol)
		}
		rest = head
	}

	var ext Extension
	if head, list, found := strings.Cut(rest, "("); found {
		list, closed := strings.CutSuffix(list, ")")
		if !closed {
			return Chord{}, fmt.Errorf("unterminated extension list in %q", symbol)
		}
		for _, tok := range strings.Split(list, ",") {
			x, err := ParseExtension(tok)
			if err != nil {
				return Chord{}, err
			}
			ext |= x
		}
		rest = head
	}

	quality, err := ParseQuality(rest)
	if err != nil {
		return Chord{}, err
	}

	c := Chord{Root: root, Quality: quality, Ext: ext, Inversion: uint8(inversion)}
	if !c.Valid() {
		return Chord{}, fmt.Errorf("chord %q out of range", symbol)
	}
	return c, nil
}

// Circle of fifths position of each pitch class (C=0, G=1, D=2, ...)
var fifthsPosition = func() [numPitchClasses]int {
	var pos [numPitchClasses]int
	for i := 0; i < numPitchClasses; i++ {
		pos[(i*7)%numPitchClasses] = i
	}
	return pos
}()

// CircleOfFifthsDistance is the shortest number of fifth-steps between a and b (0..6)
func CircleOfFifthsDistance(a, b PitchClass) int {
	d := (fifthsPosition[b%numPitchClasses] - fifthsPosition[a%numPitchClasses] + numPitchClasses) % numPitchClasses
	if d > numPitchClasses/2 {
		return numPitchClasses - d
	}
	return d
}

// VoiceLeadingCost is the mean absolute semitone movement when every tone of the smaller
// chord moves to the nearest tone of the other. Greedy nearest-pitch pairing, not an optimal matching.
func VoiceLeadingCost(from, to []int) float64 {
	if len(from) == 0 || len(to) == 0 {
		return 0
	}
	if len(from) > len(to) {
		from, to = to, from
	}

	sum := 0
	for _, n := range from {
		best := -1
		for _, m := range to {
			d := n - m
			if d < 0 {
				d = -d
			}
			if best < 0 || d < best {
				best = d
			}
		}
		sum += best
	}
	return float64(sum) / float64(len(from))
}

// MarshalText encodes the chord as its symbol
func (c Chord) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText parses a chord symbol
func (c *Chord) UnmarshalText(text []byte) error {
	parsed, err := ParseChord(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// MarshalText encodes the pitch class as its name
func (p PitchClass) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText parses a pitch class name
func (p *PitchClass) UnmarshalText(text []byte) error {
	parsed, err := ParsePitchClass(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
