package control

import (
	"fmt"
	"sort"

	"github.com/hypebeast/go-osc/osc"

	"github.com/Conceptual-Machines/tension-engine/internal/harmony"
)

// Outbound addresses
const (
	AddrChord = "/music/chord"
	AddrNote  = "/music/note"
)

// Semitone offset above the chord base of each extension
var extensionOffsets = map[int]harmony.Extension{
	13: harmony.ExtFlat9,
	14: harmony.Ext9,
	15: harmony.ExtSharp9,
	17: harmony.Ext11,
	18: harmony.ExtSharp11,
	20: harmony.ExtFlat13,
	21: harmony.Ext13,
}

// EncodeChord builds /music/chord <root> <quality> <target_tension> <pitch...>
func EncodeChord(c harmony.Chord, target float64, pitches []int) *osc.Message {
	msg := osc.NewMessage(AddrChord, int32(c.Root), c.Quality.String(), float32(target))
	for _, p := range pitches {
		msg.Append(int32(p))
	}
	return msg
}

// DecodeChord recovers the chord and target tension from a /music/chord message.
// Inversion and extensions are reconstructed from the rendered pitches.
func DecodeChord(msg *osc.Message) (harmony.Chord, float64, error) {
	if msg.Address != AddrChord {
		return harmony.Chord{}, 0, fmt.Errorf("%w: %s", ErrUnknownAddress, msg.Address)
	}
	args := msg.Arguments
	if len(args) < 4 {
		return harmony.Chord{}, 0, fmt.Errorf("%w: chord needs root, quality, target and pitches", ErrBadArgument)
	}

	root, err := argInt(args, 0)
	if err != nil {
		return harmony.Chord{}, 0, err
	}
	if root < 0 || root > 11 {
		return harmony.Chord{}, 0, fmt.Errorf("%w: root %d", ErrBadArgument, root)
	}
	qname, err := argString(args, 1)
	if err != nil {
		return harmony.Chord{}, 0, err
	}
	quality, err := harmony.ParseQuality(qname)
	if err != nil {
		return harmony.Chord{}, 0, fmt.Errorf("%w: %w", ErrBadArgument, err)
	}
	target, err := argFloat(args, 2)
	if err != nil {
		return harmony.Chord{}, 0, err
	}

	pitches := make([]int, 0, len(args)-3)
	for i := 3; i < len(args); i++ {
		p, err := argInt(args, i)
		if err != nil {
			return harmony.Chord{}, 0, err
		}
		pitches = append(pitches, p)
	}

	c, err := chordFromPitches(harmony.PitchClass(root), quality, pitches)
	if err != nil {
		return harmony.Chord{}, 0, err
	}
	return c, target, nil
}

// chordFromPitches inverts Chord.AppendPitches. The lowest pitch is always an unmoved
// chord tone, which fixes the base; unmoved tones sit within an octave of it, so their
// count gives the inversion and whatever is left over must be extensions.
func chordFromPitches(root harmony.PitchClass, q harmony.Quality, pitches []int) (harmony.Chord, error) {
	sorted := append([]int(nil), pitches...)
	sort.Ints(sorted)

	lowest := sorted[0]
	base := lowest - ((lowest-int(root))%12+12)%12

	remaining := make(map[int]int, len(sorted))
	unmoved := 0
	for _, p := range sorted {
		off := p - base
		remaining[off]++
		if off <= 11 {
			unmoved++
		}
	}

	intervals := q.Intervals()
	inversion := len(intervals) - unmoved
	if inversion < 0 || inversion >= len(intervals) {
		return harmony.Chord{}, fmt.Errorf("%w: pitches %v do not form a %s chord", ErrBadArgument, pitches, q)
	}

	for i, iv := range intervals {
		off := iv
		if i < inversion {
			off += 12
		}
		if remaining[off] == 0 {
			return harmony.Chord{}, fmt.Errorf("%w: %s chord tone missing from %v", ErrBadArgument, q, pitches)
		}
		remaining[off]--
	}

	var ext harmony.Extension
	for off, n := range remaining {
		if n == 0 {
			continue
		}
		x, ok := extensionOffsets[off]
		if !ok || n > 1 || ext.Has(x) {
			return harmony.Chord{}, fmt.Errorf("%w: unexpected pitch offset %d", ErrBadArgument, off)
		}
		ext |= x
	}

	return harmony.Chord{Root: root, Quality: q, Ext: ext, Inversion: uint8(inversion)}, nil
}

// EncodeNote builds /music/note <pitch> <velocity>
func EncodeNote(pitch, velocity int) *osc.Message {
	return osc.NewMessage(AddrNote, int32(pitch), int32(velocity))
}

// DecodeNote reads a /music/note message
func DecodeNote(msg *osc.Message) (pitch, velocity int, err error) {
	if msg.Address != AddrNote {
		return 0, 0, fmt.Errorf("%w: %s", ErrUnknownAddress, msg.Address)
	}
	if pitch, err = argInt(msg.Arguments, 0); err != nil {
		return 0, 0, err
	}
	if velocity, err = argInt(msg.Arguments, 1); err != nil {
		return 0, 0, err
	}
	return pitch, velocity, nil
}
