package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Conceptual-Machines/tension-engine/internal/harmony"
	"github.com/Conceptual-Machines/tension-engine/internal/rhythm"
	"github.com/Conceptual-Machines/tension-engine/internal/scheduler"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, ":9000", cfg.OSCListenAddr)
	assert.Equal(t, 9001, cfg.OSCOutPort)
	assert.False(t, cfg.IsProduction())
	assert.Equal(t, 4, cfg.Music.Octave)
	assert.Equal(t, harmony.DefaultTopK, cfg.Engine.TopK)
	assert.Equal(t, scheduler.DefaultMaxLateness, cfg.Engine.MaxLateness)

	p, err := cfg.Parameters()
	require.NoError(t, err)
	assert.Equal(t, scheduler.DefaultParameters(), p)

	_, ok, err := cfg.Weights()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("MUSIC_KEY", "Eb")
	t.Setenv("MUSIC_PRESET", "Jazzy")
	t.Setenv("MUSIC_BPM", "132")
	t.Setenv("MUSIC_ADAPTIVE", "true")
	t.Setenv("ARP_MODE", "updown")
	t.Setenv("ARP_RATE", "0.25")
	t.Setenv("HARMONY_SCOPE", "same_root")
	t.Setenv("TENSION_WEIGHTS", "2, 0.5, 1")
	t.Setenv("TENSE_SUSTAIN", "6s")
	t.Setenv("SCHEDULER_MAX_LATENESS", "100ms")
	t.Setenv("RNG_SEED", "42")

	cfg := Load()
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, uint64(42), cfg.RNGSeed)

	p, err := cfg.Parameters()
	require.NoError(t, err)
	assert.Equal(t, harmony.PitchClass(3), p.Key)
	assert.Equal(t, harmony.PresetJazzy, p.Preset)
	assert.Equal(t, 132, p.BPM)
	assert.True(t, p.Adaptive)
	assert.Equal(t, rhythm.ModeUpDown, p.ArpMode)
	assert.Equal(t, 0.25, p.ArpRate)

	w, ok, err := cfg.Weights()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, harmony.Weights{Quality: 2, Extensions: 0.5, Root: 1}, w)

	sc := cfg.Scheduler()
	assert.Equal(t, harmony.ScopeSameRoot, sc.Scope)
	assert.Equal(t, 100*time.Millisecond, sc.MaxLateness)
	assert.Equal(t, 6*time.Second, sc.Adaptive.SustainFor)
}

func TestMalformedValuesFallBack(t *testing.T) {
	t.Setenv("MUSIC_BPM", "fast")
	t.Setenv("TENSE_SWITCH", "maybe")
	t.Setenv("CONFIDENCE_DECAY", "soon")

	cfg := Load()
	assert.Equal(t, 100, cfg.Music.BPM)
	assert.True(t, cfg.Engine.TenseSwitch)
	assert.Equal(t, time.Second, cfg.Engine.Decay)
}

func TestParametersRejectsBadNames(t *testing.T) {
	tests := []struct {
		name, key, value string
	}{
		{"key", "MUSIC_KEY", "H"},
		{"preset", "MUSIC_PRESET", "baroque"},
		{"arp mode", "ARP_MODE", "sideways"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load().Parameters()
			assert.ErrorContains(t, err, tt.key)
		})
	}

	t.Setenv("TENSION_WEIGHTS", "1,2")
	_, _, err := Load().Weights()
	assert.Error(t, err)
}
