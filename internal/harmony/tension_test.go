package harmony

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTension(t *testing.T) {
	tests := []struct {
		name string
		prev PitchClass
		c    Chord
		want float64
	}{
		{"tonic", 0, Chord{Root: 0, Quality: Maj}, 0},
		{"dominant seventh a fifth away", 0, Chord{Root: 7, Quality: Dom7}, 3.0},
		{"extended minor seventh", 0, Chord{Root: 2, Quality: Min7, Ext: Ext9 | Ext11}, 5.95},
		{"clamped", 0, Chord{Root: 6, Quality: Dim, Ext: ExtSharp11 | ExtFlat9}, MaxTension},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Tension(DefaultWeights, tt.prev, tt.c), 1e-9)
		})
	}
}

func TestTensionInRange(t *testing.T) {
	for _, name := range PresetNames() {
		p, err := LookupPreset(name)
		require.NoError(t, err)
		for _, q := range Qualities() {
			for _, ext := range []Extension{0, Ext9 | Ext11 | Ext13, ExtFlat9 | ExtSharp9 | ExtSharp11 | ExtFlat13} {
				for prev := PitchClass(0); prev < 12; prev++ {
					v := Tension(p.Weights, prev, Chord{Root: 6, Quality: q, Ext: ext})
					assert.GreaterOrEqual(t, v, MinTension)
					assert.LessOrEqual(t, v, MaxTension)
				}
			}
		}
	}
}

func TestScorerMemoizes(t *testing.T) {
	s := NewScorer(DefaultWeights)
	c := Chord{Root: 7, Quality: Dom7}

	assert.Equal(t, 0, s.CacheLen())
	first := s.Tension(0, c)
	assert.Equal(t, 1, s.CacheLen())
	assert.Equal(t, first, s.Tension(0, c))
	assert.Equal(t, 1, s.CacheLen())
	s.Tension(2, c)
	assert.Equal(t, 2, s.CacheLen())
}

func TestScorerConcurrent(t *testing.T) {
	s := NewScorer(DefaultWeights)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for root := PitchClass(0); root < 12; root++ {
				for _, q := range Qualities() {
					s.Tension(0, Chord{Root: root, Quality: q})
				}
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 12*len(Qualities()), s.CacheLen())
}

func TestParseWeights(t *testing.T) {
	w, err := ParseWeights("1.5, 1,1.2")
	require.NoError(t, err)
	assert.Equal(t, DefaultWeights, w)

	for _, bad := range []string{"1,2", "a,b,c", "-1,1,1", ""} {
		_, err := ParseWeights(bad)
		assert.Error(t, err, bad)
	}
}

func TestAlteredExtensionsNeverLowerTension(t *testing.T) {
	weightSets := map[string]Weights{"default": DefaultWeights}
	for _, name := range PresetNames() {
		p, err := LookupPreset(name)
		require.NoError(t, err)
		weightSets[name] = p.Weights
	}
	altered := []Extension{ExtFlat9, ExtSharp9, ExtSharp11, ExtFlat13}

	for name, w := range weightSets {
		t.Run(name, func(t *testing.T) {
			for _, q := range Qualities() {
				for prev := PitchClass(0); prev < 12; prev++ {
					for _, start := range []Extension{0, Ext9, Ext9 | Ext11} {
						c := Chord{Root: 2, Quality: q, Ext: start}
						for _, x := range altered {
							next := c
							next.Ext |= x
							assert.GreaterOrEqual(t, Tension(w, prev, next), Tension(w, prev, c),
								"%s after %s adding %s", c, prev, x)
							c = next
						}
					}
				}
			}
		})
	}
}
