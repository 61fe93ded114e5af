// Package storage persists intel history to a local SQLite database.
package storage

import (
	"errors"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/coldwine/intelwatch/pkg/intel"
)

// IntelMessage is one classified chat line.
type IntelMessage struct {
	ID      uint      `gorm:"primaryKey"`
	Room    string    `gorm:"index;size:128"`
	User    string    `gorm:"index;size:128"`
	Text    string    `gorm:"type:text"`
	Markup  string    `gorm:"type:text"`
	Status  string    `gorm:"index;size:16"`
	Systems string    `gorm:"size:512"` // comma-joined system names
	Posted  time.Time `gorm:"index"`
	SavedAt time.Time `gorm:"index"`
}

// LocationSighting records a monitored character changing system.
type LocationSighting struct {
	ID        uint      `gorm:"primaryKey"`
	Character string    `gorm:"index;size:128"`
	System    string    `gorm:"index;size:64"`
	SeenAt    time.Time `gorm:"index"`
}

// Store wraps the database handle.
type Store struct {
	db *gorm.DB
}

// Open opens (creating if needed) the database at path and migrates
// the schema.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&IntelMessage{}, &LocationSighting{}); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// SaveMessage records a message. Location notices go through
// SaveLocation instead.
func (s *Store) SaveMessage(m *intel.Message) error {
	rec := &IntelMessage{
		Room:    m.Room,
		User:    m.User,
		Text:    m.PlainText,
		Markup:  m.Markup(),
		Status:  m.Status.String(),
		Systems: joinSystems(m.Systems()),
		Posted:  m.UTC,
		SavedAt: time.Now().UTC(),
	}
	return s.db.Create(rec).Error
}

// SaveLocation records a character sighting.
func (s *Store) SaveLocation(character, system string, at time.Time) error {
	return s.db.Create(&LocationSighting{
		Character: character,
		System:    system,
		SeenAt:    at,
	}).Error
}

// RecentMessages returns the newest messages, most recent first.
func (s *Store) RecentMessages(limit int) ([]IntelMessage, error) {
	var out []IntelMessage
	err := s.db.Order("posted DESC").Limit(limit).Find(&out).Error
	return out, err
}

// MessagesForSystem returns messages that mention the given system,
// most recent first.
func (s *Store) MessagesForSystem(name string, limit int) ([]IntelMessage, error) {
	var out []IntelMessage
	err := s.db.Where("systems LIKE ?", "%"+name+"%").
		Order("posted DESC").Limit(limit).Find(&out).Error
	return out, err
}

// LastLocation returns the most recent sighting for a character, or
// nil when none is recorded.
func (s *Store) LastLocation(character string) (*LocationSighting, error) {
	var rec LocationSighting
	err := s.db.Where("character = ?", character).
		Order("seen_at DESC").First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// PruneBefore deletes history older than the cutoff and reports how
// many rows were removed.
func (s *Store) PruneBefore(cutoff time.Time) (int64, error) {
	var total int64
	res := s.db.Where("posted < ?", cutoff).Delete(&IntelMessage{})
	if res.Error != nil {
		return total, res.Error
	}
	total += res.RowsAffected
	res = s.db.Where("seen_at < ?", cutoff).Delete(&LocationSighting{})
	if res.Error != nil {
		return total, res.Error
	}
	total += res.RowsAffected
	return total, nil
}

func joinSystems(names []string) string {
	return strings.Join(names, ",")
}
