package control

import (
	"testing"

	"github.com/hypebeast/go-osc/osc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Conceptual-Machines/tension-engine/internal/harmony"
)

// throughWire marshals msg to bytes and parses it back, as a UDP peer would
func throughWire(t *testing.T, msg *osc.Message) *osc.Message {
	t.Helper()
	data, err := msg.MarshalBinary()
	require.NoError(t, err)
	packet, err := osc.ParsePacket(string(data))
	require.NoError(t, err)
	parsed, ok := packet.(*osc.Message)
	require.True(t, ok)
	return parsed
}

func TestChordRoundTripEveryLibraryChord(t *testing.T) {
	catalog := harmony.NewCatalog(4)
	for _, preset := range harmony.PresetNames() {
		for _, keyName := range []string{"C", "F#", "Bb"} {
			key, err := harmony.ParsePitchClass(keyName)
			require.NoError(t, err)
			lib, err := catalog.Library(key, preset)
			require.NoError(t, err)

			for idx := 0; idx < lib.Len(); idx++ {
				c := lib.Chord(idx)
				msg := throughWire(t, EncodeChord(c, 6.5, lib.Pitches(idx)))

				got, target, err := DecodeChord(msg)
				require.NoError(t, err, "%s %s %s", preset, keyName, c)
				assert.Equal(t, c, got)
				assert.InDelta(t, 6.5, target, 1e-6)
			}
		}
	}
}

func TestChordRoundTripInversions(t *testing.T) {
	chords := []string{
		"C:maj/1",
		"C:maj/2",
		"A:min7(9)/3",
		"E:min(#9)/2",
		"G:dom7(b9,#11,b13)/1",
		"D:sus2(9)/2",
		"B:dim(#11)/2",
		"F:aug(13)/1",
	}
	for _, symbol := range chords {
		t.Run(symbol, func(t *testing.T) {
			c, err := harmony.ParseChord(symbol)
			require.NoError(t, err)
			for _, octave := range []int{2, 4, 6} {
				msg := throughWire(t, EncodeChord(c, 3, c.Pitches(octave)))
				got, _, err := DecodeChord(msg)
				require.NoError(t, err)
				assert.Equal(t, c, got)
			}
		})
	}
}

func TestEncodeChordLayout(t *testing.T) {
	c := harmony.Chord{Root: 9, Quality: harmony.Min}
	msg := EncodeChord(c, 2.5, c.Pitches(4))

	assert.Equal(t, AddrChord, msg.Address)
	assert.Equal(t, []interface{}{int32(9), "min", float32(2.5), int32(57), int32(60), int32(64)}, msg.Arguments)
}

func TestDecodeChordRejectsMalformed(t *testing.T) {
	tests := []struct {
		name string
		msg  *osc.Message
	}{
		{"wrong address", osc.NewMessage("/music/note", int32(60), int32(90))},
		{"no pitches", osc.NewMessage(AddrChord, int32(0), "maj", float32(1))},
		{"bad quality", osc.NewMessage(AddrChord, int32(0), "hexachord", float32(1), int32(48))},
		{"root out of range", osc.NewMessage(AddrChord, int32(12), "maj", float32(1), int32(48), int32(52), int32(55))},
		{"missing chord tone", osc.NewMessage(AddrChord, int32(0), "maj", float32(1), int32(48), int32(55))},
		{"stray pitch", osc.NewMessage(AddrChord, int32(0), "maj", float32(1), int32(48), int32(52), int32(55), int32(64))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := DecodeChord(tt.msg)
			assert.Error(t, err)
		})
	}
}

func TestNoteRoundTrip(t *testing.T) {
	msg := throughWire(t, EncodeNote(64, 72))
	pitch, velocity, err := DecodeNote(msg)
	require.NoError(t, err)
	assert.Equal(t, 64, pitch)
	assert.Equal(t, 72, velocity)

	_, _, err = DecodeNote(osc.NewMessage(AddrNote, int32(64)))
	assert.ErrorIs(t, err, ErrBadArgument)
}
