package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Session is one start-to-stop run of the engine
type Session struct {
	ID            uuid.UUID      `gorm:"type:uuid;primarykey" json:"id"`
	CreatedAt     time.Time      `gorm:"index" json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
	EndedAt       *time.Time     `json:"ended_at,omitempty"`
	Preset        string         `gorm:"not null" json:"preset"`
	Key           string         `gorm:"not null" json:"key"`
	BPM           int            `gorm:"not null" json:"bpm"`
	BeatsPerChord int            `gorm:"not null" json:"beats_per_chord"`
	Adaptive      bool           `gorm:"default:false" json:"adaptive"`
	ArpMode       string         `json:"arp_mode"`
	ArpRate       float64        `json:"arp_rate"`
	Density       float64        `json:"density"`
	ChordCount    int            `gorm:"default:0" json:"chord_count"`
	NoteCount     int            `gorm:"default:0" json:"note_count"`
}

// BeforeCreate assigns an ID when the caller did not
func (s *Session) BeforeCreate(_ *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// ChordLog is one emitted chord with the target tension and confidence it was chosen for
type ChordLog struct {
	ID         uint      `gorm:"primarykey" json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	SessionID  uuid.UUID `gorm:"type:uuid;not null;index" json:"session_id"`
	Session    Session   `gorm:"foreignKey:SessionID" json:"-"`
	PlayedAt   time.Time `gorm:"not null;index" json:"played_at"`
	Symbol     string    `gorm:"not null" json:"symbol"`
	Pitches    string    `gorm:"type:text" json:"pitches"` // Space-separated MIDI numbers
	Target     float64   `json:"target"`
	Confidence float64   `json:"confidence"`
}

// NoteLog is one emitted arpeggiator note
type NoteLog struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	SessionID uuid.UUID `gorm:"type:uuid;not null;index" json:"session_id"`
	Session   Session   `gorm:"foreignKey:SessionID" json:"-"`
	PlayedAt  time.Time `gorm:"not null;index" json:"played_at"`
	Pitch     int       `gorm:"not null" json:"pitch"`
	Velocity  int       `gorm:"not null" json:"velocity"`
}
