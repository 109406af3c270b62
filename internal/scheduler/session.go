package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Conceptual-Machines/tension-engine/internal/harmony"
)

// SessionInfo is the parameter set a session is opened with
type SessionInfo struct {
	Preset        string  `json:"preset"`
	Key           string  `json:"key"`
	BPM           int     `json:"bpm"`
	BeatsPerChord int     `json:"beats_per_chord"`
	Adaptive      bool    `json:"adaptive"`
	ArpMode       string  `json:"arp_mode"`
	ArpRate       float64 `json:"arp_rate"`
	Density       float64 `json:"density"`
}

// SessionInfoFrom copies the logged fields out of p
func SessionInfoFrom(p LiveParameters) SessionInfo {
	return SessionInfo{
		Preset:        p.Preset,
		Key:           p.Key.String(),
		BPM:           p.BPM,
		BeatsPerChord: p.BeatsPerChord,
		Adaptive:      p.Adaptive,
		ArpMode:       p.ArpMode.String(),
		ArpRate:       p.ArpRate,
		Density:       p.Density,
	}
}

// ChordRecord is one logged chord
type ChordRecord struct {
	Chord      harmony.Chord
	Pitches    []int
	Target     float64
	Confidence float64
	At         time.Time
}

// NoteRecord is one logged note
type NoteRecord struct {
	Pitch    int
	Velocity int
	At       time.Time
}

// SessionLogger persists sessions. Failures are logged by the caller and never stop playback.
type SessionLogger interface {
	StartSession(ctx context.Context, info SessionInfo) (string, error)
	LogChord(ctx context.Context, sessionID string, rec ChordRecord) error
	LogNote(ctx context.Context, sessionID string, rec NoteRecord) error
	EndSession(ctx context.Context, sessionID string) error
}

// NopSessions hands out session IDs and stores nothing
type NopSessions struct{}

func (NopSessions) StartSession(context.Context, SessionInfo) (string, error) {
	return uuid.NewString(), nil
}

func (NopSessions) LogChord(context.Context, string, ChordRecord) error { return nil }

func (NopSessions) LogNote(context.Context, string, NoteRecord) error { return nil }

func (NopSessions) EndSession(context.Context, string) error { return nil }

// SessionSink forwards chord and note events to a SessionLogger off the timing loop
type SessionSink struct {
	Logger SessionLogger
}

func (s SessionSink) Name() string { return "session_log" }

func (s SessionSink) Deliver(ctx context.Context, ev Event) error {
	if ev.SessionID == "" {
		return nil
	}
	switch ev.Kind {
	case KindChord:
		return s.Logger.LogChord(ctx, ev.SessionID, ChordRecord{
			Chord:      ev.Chord,
			Pitches:    ev.Pitches,
			Target:     ev.Target,
			Confidence: ev.Confidence,
			At:         ev.At,
		})
	case KindNote:
		return s.Logger.LogNote(ctx, ev.SessionID, NoteRecord{
			Pitch:    ev.Pitch,
			Velocity: ev.Velocity,
			At:       ev.At,
		})
	}
	return nil
}
