package scheduler

import (
	"time"

	"github.com/Conceptual-Machines/tension-engine/internal/harmony"
)

// RunState is the scheduler lifecycle state
type RunState int32

const (
	Stopped RunState = iota
	Running
	Paused
)

func (s RunState) String() string {
	switch s {
	case Running:
		return "running"
	case Paused:
		return "paused"
	default:
		return "stopped"
	}
}

// MarshalText encodes the state name
func (s RunState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ScheduleState is the playback state owned by the scheduler goroutine
type ScheduleState struct {
	CurrentChord    harmony.Chord `json:"current_chord"`
	Pitches         []int         `json:"pitches"`
	BeatsSinceChord float64       `json:"beats_since_chord"`
	NextChordDue    time.Time     `json:"next_chord_due"`
	NextArpDue      time.Time     `json:"next_arp_due"`
	Playing         bool          `json:"playing"`
}

// nextDue returns the earlier of the two anchors
func (st *ScheduleState) nextDue() time.Time {
	if st.NextArpDue.Before(st.NextChordDue) {
		return st.NextArpDue
	}
	return st.NextChordDue
}

// skipForward moves due to the first slot of its grid at or after now
func skipForward(due, now time.Time, interval time.Duration) time.Time {
	if interval <= 0 || !due.Before(now) {
		return due
	}
	n := (now.Sub(due) + interval - 1) / interval
	return due.Add(n * interval)
}
