package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Conceptual-Machines/tension-engine/internal/models"
	"github.com/Conceptual-Machines/tension-engine/internal/scheduler"
)

const (
	DefaultSessionListLimit = 20
	MaxSessionListLimit     = 200
)

// SessionStore persists sessions, chords and notes through gorm
type SessionStore struct {
	db *gorm.DB
}

func NewSessionStore(db *gorm.DB) *SessionStore {
	return &SessionStore{db: db}
}

// StartSession inserts a session row and returns its ID
func (s *SessionStore) StartSession(ctx context.Context, info scheduler.SessionInfo) (string, error) {
	session := models.Session{
		Preset:        info.Preset,
		Key:           info.Key,
		BPM:           info.BPM,
		BeatsPerChord: info.BeatsPerChord,
		Adaptive:      info.Adaptive,
		ArpMode:       info.ArpMode,
		ArpRate:       info.ArpRate,
		Density:       info.Density,
	}
	if err := s.db.WithContext(ctx).Create(&session).Error; err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	return session.ID.String(), nil
}

func (s *SessionStore) LogChord(ctx context.Context, sessionID string, rec scheduler.ChordRecord) error {
	id, err := uuid.Parse(sessionID)
	if err != nil {
		return fmt.Errorf("session id %q: %w", sessionID, err)
	}
	row := models.ChordLog{
		SessionID:  id,
		PlayedAt:   rec.At,
		Symbol:     rec.Chord.String(),
		Pitches:    FormatPitches(rec.Pitches),
		Target:     rec.Target,
		Confidence: rec.Confidence,
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("log chord: %w", err)
		}
		return tx.Model(&models.Session{}).Where("id = ?", id).
			UpdateColumn("chord_count", gorm.Expr("chord_count + 1")).Error
	})
}

func (s *SessionStore) LogNote(ctx context.Context, sessionID string, rec scheduler.NoteRecord) error {
	id, err := uuid.Parse(sessionID)
	if err != nil {
		return fmt.Errorf("session id %q: %w", sessionID, err)
	}
	row := models.NoteLog{
		SessionID: id,
		PlayedAt:  rec.At,
		Pitch:     rec.Pitch,
		Velocity:  rec.Velocity,
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("log note: %w", err)
		}
		return tx.Model(&models.Session{}).Where("id = ?", id).
			UpdateColumn("note_count", gorm.Expr("note_count + 1")).Error
	})
}

// EndSession stamps the session's end time
func (s *SessionStore) EndSession(ctx context.Context, sessionID string) error {
	id, err := uuid.Parse(sessionID)
	if err != nil {
		return fmt.Errorf("session id %q: %w", sessionID, err)
	}
	now := time.Now().UTC()
	res := s.db.WithContext(ctx).Model(&models.Session{}).Where("id = ?", id).Update("ended_at", now)
	if res.Error != nil {
		return fmt.Errorf("end session: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("end session %s: %w", sessionID, gorm.ErrRecordNotFound)
	}
	return nil
}

// ListSessions returns the most recent sessions, newest first
func (s *SessionStore) ListSessions(ctx context.Context, limit int) ([]models.Session, error) {
	limit = ClampLimit(limit)
	var sessions []models.Session
	if err := s.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&sessions).Error; err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

// ChordsFor returns a session's chord log in play order
func (s *SessionStore) ChordsFor(ctx context.Context, sessionID string) ([]models.ChordLog, error) {
	id, err := uuid.Parse(sessionID)
	if err != nil {
		return nil, fmt.Errorf("session id %q: %w", sessionID, err)
	}
	var chords []models.ChordLog
	if err := s.db.WithContext(ctx).Where("session_id = ?", id).Order("played_at, id").Find(&chords).Error; err != nil {
		return nil, fmt.Errorf("list chords: %w", err)
	}
	return chords, nil
}

// ClampLimit maps a requested page size into 1..MaxSessionListLimit, using the default for <= 0
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultSessionListLimit
	}
	if limit > MaxSessionListLimit {
		return MaxSessionListLimit
	}
	return limit
}

// FormatPitches renders pitches as space-separated MIDI numbers
func FormatPitches(pitches []int) string {
	var b strings.Builder
	for i, p := range pitches {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(strconv.Itoa(p))
	}
	return b.String()
}

// ParsePitches reverses FormatPitches
func ParsePitches(s string) ([]int, error) {
	fields := strings.Fields(s)
	out := make([]int, 0, len(fields))
	for _, f := range fields {
		p, err := strconv.Atoi(f)
		if err != nil {
			return nil, fmt.Errorf("pitch %q: %w", f, err)
		}
		out = append(out, p)
	}
	return out, nil
}
