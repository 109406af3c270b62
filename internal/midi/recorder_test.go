package midi

import (
	"context"
	"os"
	"testing"
	"time"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Conceptual-Machines/tension-engine/internal/harmony"
	"github.com/Conceptual-Machines/tension-engine/internal/scheduler"
)

type noteStart struct {
	tick uint32
	ch   uint8
	key  uint8
	vel  uint8
}

func readStarts(t *testing.T, path string) []noteStart {
	t.Helper()
	rd, err := smf.ReadFile(path)
	require.NoError(t, err)
	require.Len(t, rd.Tracks, 2)

	var out []noteStart
	var abs uint32
	for _, ev := range rd.Tracks[1] {
		abs += ev.Delta
		var ch, key, vel uint8
		if gomidi.Message(ev.Message).GetNoteStart(&ch, &key, &vel) {
			out = append(out, noteStart{tick: abs, ch: ch, key: key, vel: vel})
		}
	}
	return out
}

func TestRecorderWritesSession(t *testing.T) {
	dir := t.TempDir()
	r, err := NewRecorder(dir)
	require.NoError(t, err)

	ctx := context.Background()
	start := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	id := "session-1"
	chord := harmony.Chord{Root: 0, Quality: harmony.Maj}

	events := []scheduler.Event{
		{Kind: scheduler.KindSessionStart, SessionID: id, At: start},
		{Kind: scheduler.KindChord, SessionID: id, At: start, Duration: time.Second, Chord: chord, Pitches: chord.Pitches(4), Pad: true},
		{Kind: scheduler.KindNote, SessionID: id, At: start, Duration: 250 * time.Millisecond, Pitch: 48, Velocity: 90},
		{Kind: scheduler.KindNote, SessionID: id, At: start.Add(500 * time.Millisecond), Duration: 250 * time.Millisecond, Pitch: 52, Velocity: 72},
		{Kind: scheduler.KindSessionEnd, SessionID: id, At: start.Add(time.Second)},
	}
	for _, ev := range events {
		require.NoError(t, r.Deliver(ctx, ev))
	}

	path := r.Path(id)
	_, err = os.Stat(path)
	require.NoError(t, err)

	rd, err := smf.ReadFile(path)
	require.NoError(t, err)
	tempos := rd.TempoChanges()
	require.NotEmpty(t, tempos)
	assert.InDelta(t, referenceBPM, tempos[0].BPM, 0.01)

	starts := readStarts(t, path)
	require.Len(t, starts, 5)

	pad := 0
	for _, s := range starts[:4] {
		assert.Equal(t, uint32(0), s.tick)
		if s.ch == padChannel {
			pad++
			assert.Equal(t, padVelocity, s.vel)
		}
	}
	assert.Equal(t, 3, pad)

	// 500ms at 120 bpm is one beat
	last := starts[4]
	assert.Equal(t, uint32(ticksPerQuarter), last.tick)
	assert.Equal(t, arpChannel, last.ch)
	assert.Equal(t, uint8(52), last.key)
	assert.Equal(t, uint8(72), last.vel)
}

func TestRecorderSkipsMutedPadAndEmptySessions(t *testing.T) {
	dir := t.TempDir()
	r, err := NewRecorder(dir)
	require.NoError(t, err)
	ctx := context.Background()
	start := time.Now()

	chord := harmony.Chord{Root: 2, Quality: harmony.Min}
	require.NoError(t, r.Deliver(ctx, scheduler.Event{Kind: scheduler.KindSessionStart, SessionID: "quiet", At: start}))
	require.NoError(t, r.Deliver(ctx, scheduler.Event{Kind: scheduler.KindChord, SessionID: "quiet", At: start, Duration: time.Second, Chord: chord, Pitches: chord.Pitches(4)}))
	require.NoError(t, r.Deliver(ctx, scheduler.Event{Kind: scheduler.KindSessionEnd, SessionID: "quiet", At: start.Add(time.Second)}))

	_, err = os.Stat(r.Path("quiet"))
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, r.Deliver(ctx, scheduler.Event{Kind: scheduler.KindNote, Pitch: 60}), "events without a session are ignored")
}

func TestRecorderRetriggersRepeatedPitch(t *testing.T) {
	tk := &take{start: time.Unix(0, 0)}
	tk.note(arpChannel, 60, 90, time.Unix(0, 0), 500*time.Millisecond)
	tk.note(arpChannel, 60, 90, time.Unix(0, 0).Add(500*time.Millisecond), 500*time.Millisecond)

	path := t.TempDir() + "/retrigger.mid"
	require.NoError(t, tk.write(path))

	rd, err := smf.ReadFile(path)
	require.NoError(t, err)

	var kinds []string
	for _, ev := range rd.Tracks[1] {
		var ch, key, vel uint8
		msg := gomidi.Message(ev.Message)
		switch {
		case msg.GetNoteStart(&ch, &key, &vel):
			kinds = append(kinds, "on")
		case msg.GetNoteEnd(&ch, &key):
			kinds = append(kinds, "off")
		}
	}
	assert.Equal(t, []string{"on", "off", "on", "off"}, kinds)
}
