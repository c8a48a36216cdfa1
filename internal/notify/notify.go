// Package notify serves the durable per-player notification inbox: the
// catch-up path for observers who were not connected when an event
// fired.
package notify

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/startide/server/internal/model"
	"github.com/startide/server/pkg/game"
)

// Page size bounds.
const (
	DefaultLimit = 50
	MaxLimit     = 100
)

// Query selects a page of notifications. Cursor of 0 starts from the
// newest; pages walk backwards by id.
type Query struct {
	Cursor     uint
	Limit      int
	Type       string
	UnreadOnly bool
}

// Page is one slice of the inbox. NextCursor is 0 when the walk is done.
type Page struct {
	Items      []model.Notification `json:"items"`
	NextCursor uint                 `json:"nextCursor"`
	Total      int64                `json:"total"`
}

// Store reads and updates notifications.
type Store struct {
	db *gorm.DB
}

// NewStore wires a notification store.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// List returns one page of a player's notifications, newest first.
func (s *Store) List(playerID uint, q Query) (Page, error) {
	if q.Limit < 0 || q.Limit > MaxLimit {
		return Page{}, game.Validationf("bad_limit", "limit must be in [0,%d], got %d", MaxLimit, q.Limit)
	}
	if q.Limit == 0 {
		q.Limit = DefaultLimit
	}

	scope := s.db.Model(&model.Notification{}).Where("player_id = ?", playerID)
	if q.Type != "" {
		scope = scope.Where("type = ?", q.Type)
	}
	if q.UnreadOnly {
		scope = scope.Where("read = ?", false)
	}

	var total int64
	if err := scope.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return Page{}, fmt.Errorf("counting notifications: %w", err)
	}

	page := scope.Session(&gorm.Session{})
	if q.Cursor > 0 {
		page = page.Where("id < ?", q.Cursor)
	}

	var items []model.Notification
	if err := page.Order("id DESC").Limit(q.Limit).Find(&items).Error; err != nil {
		return Page{}, fmt.Errorf("listing notifications: %w", err)
	}

	var next uint
	if len(items) == q.Limit {
		next = items[len(items)-1].ID
	}
	return Page{Items: items, NextCursor: next, Total: total}, nil
}

// MarkRead flags the given notifications as read, scoped to the player
// so one player cannot touch another's inbox. Returns how many rows
// changed.
func (s *Store) MarkRead(playerID uint, ids []uint) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := s.db.Model(&model.Notification{}).
		Where("player_id = ? AND id IN ? AND read = ?", playerID, ids, false).
		Update("read", true)
	if res.Error != nil {
		return 0, fmt.Errorf("marking notifications read: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// MarkAllRead flags every unread notification for the player.
func (s *Store) MarkAllRead(playerID uint) (int64, error) {
	res := s.db.Model(&model.Notification{}).
		Where("player_id = ? AND read = ?", playerID, false).
		Update("read", true)
	if res.Error != nil {
		return 0, fmt.Errorf("marking notifications read: %w", res.Error)
	}
	return res.RowsAffected, nil
}
