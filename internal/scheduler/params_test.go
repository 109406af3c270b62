package scheduler

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Conceptual-Machines/tension-engine/internal/harmony"
	"github.com/Conceptual-Machines/tension-engine/internal/rhythm"
)

func TestStoreClampsOutOfRangeValues(t *testing.T) {
	s := NewStore(DefaultParameters())

	require.NoError(t, s.SetBPM(1000))
	assert.Equal(t, MaxBPM, s.Snapshot().BPM)
	require.NoError(t, s.SetBPM(0))
	assert.Equal(t, MinBPM, s.Snapshot().BPM)

	require.NoError(t, s.SetBeatsPerChord(-3))
	assert.Equal(t, MinBeatsPerChord, s.Snapshot().BeatsPerChord)

	require.NoError(t, s.SetDensity(1.7))
	assert.Equal(t, 1.0, s.Snapshot().Density)
	require.NoError(t, s.SetDensity(-0.2))
	assert.Equal(t, 0.0, s.Snapshot().Density)

	require.NoError(t, s.SetArpVelocity(300))
	assert.Equal(t, 127, s.Snapshot().ArpVelocity)

	require.NoError(t, s.SetArpRate(0.001))
	assert.Equal(t, MinArpRate, s.Snapshot().ArpRate)
}

func TestStoreRejectedValuesKeepPrevious(t *testing.T) {
	s := NewStore(DefaultParameters())
	before := s.Snapshot()
	version := s.Version()

	assert.ErrorIs(t, s.SetArpRate(0), ErrInvalidValue)
	assert.ErrorIs(t, s.SetArpRate(math.NaN()), ErrInvalidValue)
	assert.ErrorIs(t, s.SetDensity(math.NaN()), ErrInvalidValue)
	assert.ErrorIs(t, s.SetLayer("strings", true), ErrUnknownLayer)
	assert.ErrorIs(t, s.SetPreset("baroque"), harmony.ErrUnknownPreset)
	assert.ErrorIs(t, s.SetKey(12), ErrInvalidValue)

	assert.Equal(t, before, s.Snapshot())
	assert.Equal(t, version, s.Version())
}

func TestStoreSetters(t *testing.T) {
	s := NewStore(DefaultParameters())

	require.NoError(t, s.SetKey(7))
	require.NoError(t, s.SetPreset(harmony.PresetJazzy))
	require.NoError(t, s.SetAdaptive(true))
	require.NoError(t, s.SetArpMode(rhythm.ModeUpDown))
	require.NoError(t, s.SetArpRate(0.25))
	require.NoError(t, s.SetLayer("drums", false))

	p := s.Snapshot()
	assert.Equal(t, harmony.PitchClass(7), p.Key)
	assert.Equal(t, harmony.PresetJazzy, p.Preset)
	assert.True(t, p.Adaptive)
	assert.Equal(t, rhythm.ModeUpDown, p.ArpMode)
	assert.Equal(t, 0.25, p.ArpRate)
	assert.False(t, p.Layers.Drums)
	assert.True(t, p.Layers.Pad)
	assert.Equal(t, uint64(6), s.Version())
}

func TestSnapshotIsACopy(t *testing.T) {
	s := NewStore(DefaultParameters())
	p := s.Snapshot()
	p.BPM = 55
	assert.Equal(t, 100, s.Snapshot().BPM)
}

func TestIntervals(t *testing.T) {
	p := DefaultParameters()
	assert.Equal(t, 600*time.Millisecond, p.BeatDuration())
	assert.Equal(t, 1200*time.Millisecond, p.ChordInterval())
	assert.Equal(t, 300*time.Millisecond, p.ArpInterval())
}

func TestNewStoreSanitizes(t *testing.T) {
	s := NewStore(LiveParameters{BPM: 5, ArpRate: -1, Density: math.NaN(), Key: 14})
	p := s.Snapshot()
	assert.Equal(t, MinBPM, p.BPM)
	assert.Equal(t, MinBeatsPerChord, p.BeatsPerChord)
	assert.Equal(t, 0.5, p.ArpRate)
	assert.Equal(t, 1.0, p.Density)
	assert.Equal(t, harmony.PitchClass(2), p.Key)
}

func TestStoreConcurrentUpdates(t *testing.T) {
	s := NewStore(DefaultParameters())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = s.Update(func(p *LiveParameters) error {
					p.BPM++
					return nil
				})
				_ = s.Snapshot()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 900, s.Snapshot().BPM, "no update lost")
	assert.Equal(t, uint64(800), s.Version())
}
