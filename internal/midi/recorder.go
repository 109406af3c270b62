package midi

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/Conceptual-Machines/tension-engine/internal/logger"
	"github.com/Conceptual-Machines/tension-engine/internal/scheduler"
)

const (
	ticksPerQuarter = 960
	// Wall-clock time is written against a fixed tempo so live tempo changes survive as timing
	referenceBPM = 120.0

	padChannel   uint8 = 0
	arpChannel   uint8 = 1
	padVelocity  uint8 = 80
	maxMIDIValue       = 127
)

type timedMessage struct {
	tick  uint32
	on    bool
	msg   gomidi.Message
	order int
}

type take struct {
	start  time.Time
	events []timedMessage
}

// Recorder captures each session's chords and notes and writes <dir>/<session>.mid when
// the session ends
type Recorder struct {
	dir string

	mu    sync.Mutex
	takes map[string]*take
}

// NewRecorder creates dir if needed
func NewRecorder(dir string) (*Recorder, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create record dir: %w", err)
	}
	return &Recorder{dir: dir, takes: make(map[string]*take)}, nil
}

func (r *Recorder) Name() string { return "smf_recorder" }

// Path returns the file a session is written to
func (r *Recorder) Path(sessionID string) string {
	return filepath.Join(r.dir, sessionID+".mid")
}

func (r *Recorder) Deliver(_ context.Context, ev scheduler.Event) error {
	if ev.SessionID == "" {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	switch ev.Kind {
	case scheduler.KindSessionStart:
		r.takes[ev.SessionID] = &take{start: ev.At}
	case scheduler.KindChord:
		t := r.take(ev)
		if !ev.Pad {
			return nil
		}
		for _, p := range ev.Pitches {
			t.note(padChannel, p, padVelocity, ev.At, ev.Duration)
		}
	case scheduler.KindNote:
		r.take(ev).note(arpChannel, ev.Pitch, uint8(clamp7(ev.Velocity)), ev.At, ev.Duration)
	case scheduler.KindSessionEnd:
		t, ok := r.takes[ev.SessionID]
		if !ok {
			return nil
		}
		delete(r.takes, ev.SessionID)
		if len(t.events) == 0 {
			return nil
		}
		path := r.Path(ev.SessionID)
		if err := t.write(path); err != nil {
			return err
		}
		logger.Info("Session recorded", logger.Fields{"session_id": ev.SessionID, "path": path})
	}
	return nil
}

// take returns the open take for ev, starting one if the start event was dropped
func (r *Recorder) take(ev scheduler.Event) *take {
	t, ok := r.takes[ev.SessionID]
	if !ok {
		t = &take{start: ev.At}
		r.takes[ev.SessionID] = t
	}
	return t
}

func (t *take) tick(at time.Time) uint32 {
	d := at.Sub(t.start)
	if d < 0 {
		return 0
	}
	return uint32(d.Seconds() * referenceBPM / 60 * ticksPerQuarter)
}

func (t *take) note(ch uint8, pitch int, velocity uint8, at time.Time, length time.Duration) {
	if pitch < 0 || pitch > maxMIDIValue {
		return
	}
	key := uint8(pitch)
	on := t.tick(at)
	off := t.tick(at.Add(length))
	if off <= on {
		off = on + 1
	}
	n := len(t.events)
	t.events = append(t.events,
		timedMessage{tick: on, on: true, msg: gomidi.NoteOn(ch, key, velocity), order: n},
		timedMessage{tick: off, msg: gomidi.NoteOff(ch, key), order: n + 1},
	)
}

// write renders the take: a tempo track and one track of note events. Note-offs sort
// before note-ons at the same tick so repeated pitches retrigger.
func (t *take) write(path string) error {
	sort.SliceStable(t.events, func(i, j int) bool {
		a, b := t.events[i], t.events[j]
		if a.tick != b.tick {
			return a.tick < b.tick
		}
		if a.on != b.on {
			return !a.on
		}
		return a.order < b.order
	})

	s := smf.New()
	s.TimeFormat = smf.MetricTicks(ticksPerQuarter)

	var tempo smf.Track
	tempo.Add(0, smf.MetaMeter(4, 4))
	tempo.Add(0, smf.MetaTempo(referenceBPM))
	tempo.Close(0)
	if err := s.Add(tempo); err != nil {
		return fmt.Errorf("add tempo track: %w", err)
	}

	var notes smf.Track
	var last uint32
	for _, e := range t.events {
		notes.Add(e.tick-last, e.msg)
		last = e.tick
	}
	notes.Close(0)
	if err := s.Add(notes); err != nil {
		return fmt.Errorf("add note track: %w", err)
	}

	if err := s.WriteFile(path); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func clamp7(v int) int {
	if v < 0 {
		return 0
	}
	if v > maxMIDIValue {
		return maxMIDIValue
	}
	return v
}
