package control

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Conceptual-Machines/tension-engine/internal/bci"
	"github.com/Conceptual-Machines/tension-engine/internal/harmony"
	"github.com/Conceptual-Machines/tension-engine/internal/rhythm"
	"github.com/Conceptual-Machines/tension-engine/internal/scheduler"
)

func newTestRouter(t *testing.T) (*Router, *scheduler.Scheduler, *bci.Confidence, *bci.State) {
	t.Helper()
	signal := bci.NewConfidence(bci.DefaultWindow)
	state := &bci.State{}
	sched, err := scheduler.New(
		scheduler.NewStore(scheduler.DefaultParameters()),
		harmony.NewCatalog(4),
		signal, nil, nil,
		scheduler.DefaultConfig(),
	)
	require.NoError(t, err)
	return NewRouter(sched, signal, state), sched, signal, state
}

func TestRouterAppliesControls(t *testing.T) {
	r, sched, _, _ := newTestRouter(t)

	tests := []struct {
		name    string
		address string
		args    []any
		check   func(t *testing.T, p scheduler.LiveParameters)
	}{
		{"tempo int32", AddrTempo, []any{int32(140)}, func(t *testing.T, p scheduler.LiveParameters) {
			assert.Equal(t, 140, p.BPM)
		}},
		{"tempo float rounds", AddrTempo, []any{float32(119.6)}, func(t *testing.T, p scheduler.LiveParameters) {
			assert.Equal(t, 120, p.BPM)
		}},
		{"beats per chord", AddrBeatsPerChord, []any{int32(4)}, func(t *testing.T, p scheduler.LiveParameters) {
			assert.Equal(t, 4, p.BeatsPerChord)
		}},
		{"adaptive on", AddrAdaptive, []any{int32(1)}, func(t *testing.T, p scheduler.LiveParameters) {
			assert.True(t, p.Adaptive)
		}},
		{"key by name", AddrKey, []any{"F#"}, func(t *testing.T, p scheduler.LiveParameters) {
			assert.Equal(t, harmony.PitchClass(6), p.Key)
		}},
		{"key by number", AddrKey, []any{int32(14)}, func(t *testing.T, p scheduler.LiveParameters) {
			assert.Equal(t, harmony.PitchClass(2), p.Key)
		}},
		{"preset", AddrPreset, []any{"Jazzy"}, func(t *testing.T, p scheduler.LiveParameters) {
			assert.Equal(t, harmony.PresetJazzy, p.Preset)
		}},
		{"arp mode", AddrArpMode, []any{"updown"}, func(t *testing.T, p scheduler.LiveParameters) {
			assert.Equal(t, rhythm.ModeUpDown, p.ArpMode)
		}},
		{"arp rate", AddrArpRate, []any{float32(0.25)}, func(t *testing.T, p scheduler.LiveParameters) {
			assert.Equal(t, 0.25, p.ArpRate)
		}},
		{"arp velocity", AddrArpVelocity, []any{int32(70)}, func(t *testing.T, p scheduler.LiveParameters) {
			assert.Equal(t, 70, p.ArpVelocity)
		}},
		{"density clamps", AddrDensity, []any{float32(1.5)}, func(t *testing.T, p scheduler.LiveParameters) {
			assert.Equal(t, 1.0, p.Density)
		}},
		{"layer off", AddrLayerDrums, []any{int32(0)}, func(t *testing.T, p scheduler.LiveParameters) {
			assert.False(t, p.Layers.Drums)
		}},
		{"layer by word", AddrLayerPad, []any{"off"}, func(t *testing.T, p scheduler.LiveParameters) {
			assert.False(t, p.Layers.Pad)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, r.Handle(tt.address, tt.args))
			tt.check(t, sched.Params().Snapshot())
		})
	}
}

func TestRouterRejectsBadInputWithoutChanges(t *testing.T) {
	r, sched, _, _ := newTestRouter(t)
	before := sched.Params().Snapshot()

	tests := []struct {
		name    string
		address string
		args    []any
		want    error
	}{
		{"unknown address", "/music/volume", []any{int32(3)}, ErrUnknownAddress},
		{"missing argument", AddrTempo, nil, ErrBadArgument},
		{"not a number", AddrDensity, []any{"lots"}, ErrBadArgument},
		{"unknown arp mode", AddrArpMode, []any{"sideways"}, ErrBadArgument},
		{"unknown preset", AddrPreset, []any{"baroque"}, harmony.ErrUnknownPreset},
		{"zero arp rate", AddrArpRate, []any{float32(0)}, scheduler.ErrInvalidValue},
		{"bad key", AddrKey, []any{"H"}, ErrBadArgument},
		{"unsupported type", AddrTempo, []any{[]byte{1}}, ErrBadArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := r.Handle(tt.address, tt.args)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Equal(t, before, sched.Params().Snapshot())
}

func TestRouterSignalMessages(t *testing.T) {
	r, _, signal, state := newTestRouter(t)
	now := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	require.NoError(t, r.Handle(AddrProbImg, []any{float32(0.75)}))
	snap := signal.Snapshot()
	assert.True(t, snap.Valid)
	assert.InDelta(t, 0.75, snap.Raw, 1e-6)
	assert.Equal(t, now, snap.Timestamp)

	require.NoError(t, r.Handle(AddrProbImg, []any{float32(3)}), "clamped, not rejected")
	assert.Equal(t, 1.0, signal.Snapshot().Raw)

	require.NoError(t, r.Handle(AddrBCIState, []any{int32(1)}))
	assert.Equal(t, "imagery", state.Label())
}

func TestRouterSystemCommands(t *testing.T) {
	r, _, _, _ := newTestRouter(t)
	for _, addr := range []string{AddrStart, AddrPause, AddrStop} {
		assert.NoError(t, r.Handle(addr, nil), addr)
	}
}

func TestRouterAddresses(t *testing.T) {
	r, _, _, _ := newTestRouter(t)
	addrs := r.Addresses()
	assert.Len(t, addrs, 17)
	assert.Contains(t, addrs, AddrProbImg)
	assert.IsNonDecreasing(t, addrs)
}

func TestRouterOnHandled(t *testing.T) {
	r, _, _, _ := newTestRouter(t)
	var ok, failed int
	r.OnHandled(func(_ string, err error) {
		if err != nil {
			failed++
			return
		}
		ok++
	})

	require.NoError(t, r.Handle(AddrTempo, []any{int32(90)}))
	require.Error(t, r.Handle("/nope", nil))
	require.Error(t, r.Handle(AddrDensity, nil))
	assert.Equal(t, 1, ok)
	assert.Equal(t, 2, failed)
}
