package harmony

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPresetLibrarySizes(t *testing.T) {
	tests := []struct {
		preset string
		want   int
	}{
		{PresetConsonant, 7 * 4 * 4},
		{PresetJazzy, 7 * 4 * 7},
		{PresetStandard, 7 * 9 * 7},
		{PresetChromatic, 12 * 9 * 7},
		{PresetTense, 12 * 4 * 7},
	}
	catalog := NewCatalog(4)
	for _, tt := range tests {
		t.Run(tt.preset, func(t *testing.T) {
			lib, err := catalog.Library(0, tt.preset)
			require.NoError(t, err)
			assert.Equal(t, tt.want, lib.Len())
		})
	}
}

func TestKeyFilteredRoots(t *testing.T) {
	lib, err := NewCatalog(4).Library(7, PresetConsonant) // G major
	require.NoError(t, err)

	inKey := map[PitchClass]bool{7: true, 9: true, 11: true, 0: true, 2: true, 4: true, 6: true}
	for _, c := range lib.Chords() {
		assert.True(t, inKey[c.Root], "root %s outside G major", c.Root)
		assert.Zero(t, c.Ext.Altered(), "consonant preset has no altered extensions")
		assert.Zero(t, c.Inversion)
	}
	assert.Empty(t, lib.ByRoot(5), "F is not in G major")
	assert.NotEmpty(t, lib.ByRoot(6))
}

func TestLibraryTables(t *testing.T) {
	lib, err := NewCatalog(3).Library(2, PresetJazzy)
	require.NoError(t, err)
	scorer := lib.Scorer()

	for idx, c := range lib.Chords() {
		got, ok := lib.IndexOf(c)
		require.True(t, ok)
		assert.Equal(t, idx, got)
		assert.Equal(t, c.Pitches(3), lib.Pitches(idx))

		for prev := PitchClass(0); prev < 12; prev++ {
			assert.Equal(t, scorer.Tension(prev, c), lib.Tension(prev, idx))
		}
	}

	outside := Chord{Root: 1, Quality: Aug}
	_, ok := lib.IndexOf(outside)
	assert.False(t, ok)
	assert.Equal(t, Tension(lib.Preset().Weights, 0, outside), lib.TensionOf(0, outside))
}

func TestCatalog(t *testing.T) {
	catalog := NewCatalog(4)

	a, err := catalog.Library(0, PresetJazzy)
	require.NoError(t, err)
	b, err := catalog.Library(0, PresetJazzy)
	require.NoError(t, err)
	assert.Same(t, a, b)

	other, err := catalog.Library(5, PresetJazzy)
	require.NoError(t, err)
	assert.NotSame(t, a, other)
	assert.Same(t, a.Scorer(), other.Scorer(), "same weights share a scorer")

	_, err = catalog.Library(0, "baroque")
	assert.ErrorIs(t, err, ErrUnknownPreset)
}

func TestCatalogWeightOverride(t *testing.T) {
	w := Weights{Quality: 2, Extensions: 0, Root: 0}
	catalog := NewCatalog(4, WithWeights(w))

	cons, err := catalog.Library(0, PresetConsonant)
	require.NoError(t, err)
	jazzy, err := catalog.Library(0, PresetJazzy)
	require.NoError(t, err)

	assert.Equal(t, w, cons.Scorer().Weights())
	assert.Same(t, cons.Scorer(), jazzy.Scorer())

	idx, ok := jazzy.IndexOf(Chord{Root: 7, Quality: Dom7, Ext: Ext9})
	require.True(t, ok)
	assert.Equal(t, 4.0, jazzy.Tension(0, idx))
}

func TestBuildLibraryErrors(t *testing.T) {
	_, err := BuildLibrary(12, presets[PresetConsonant], 4, nil)
	assert.Error(t, err)

	_, err = BuildLibrary(0, Preset{Name: "none"}, 4, nil)
	assert.ErrorIs(t, err, ErrEmptyLibrary)

	_, err = BuildLibrary(0, Preset{Name: "bad", Qualities: []Quality{numQualities}}, 4, nil)
	assert.ErrorIs(t, err, ErrUnknownQuality)
}

func TestPresetNames(t *testing.T) {
	assert.Equal(t, []string{PresetChromatic, PresetConsonant, PresetJazzy, PresetStandard, PresetTense}, PresetNames())
	_, err := LookupPreset("Jazzy")
	assert.ErrorIs(t, err, ErrUnknownPreset, "names are case-sensitive; callers lowercase")
}
