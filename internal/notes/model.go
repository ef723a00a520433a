package notes

import (
	"time"

	"github.com/questlog/questlog/internal/tables"
	"github.com/questlog/questlog/internal/users"
)

const (
	// MinFontSize and MaxFontSize bound the note display size in pixels.
	MinFontSize = 10
	MaxFontSize = 32
	// DefaultFontSize applies when the caller supplies nothing usable.
	DefaultFontSize = 16

	defaultBgColor   = "#ffffff"
	defaultTextColor = "#1a1a2e"
)

// Note is a markdown document scoped to a table. OriginalNoteID records the
// source of a duplication; duplicating a duplicate chains forward rather than
// collapsing to the root.
type Note struct {
	ID             uint      `gorm:"column:id;primaryKey"`
	TableID        uint      `gorm:"column:table_id;not null;index"`
	AuthorID       uint      `gorm:"column:author_id;not null;index"`
	Title          string    `gorm:"column:title;size:200;not null"`
	Description    string    `gorm:"column:description;type:text"`
	Content        string    `gorm:"column:content;type:text"`
	BgColor        string    `gorm:"column:bg_color;size:7;not null;default:#ffffff"`
	TextColor      string    `gorm:"column:text_color;size:7;not null;default:#1a1a2e"`
	FontSize       int       `gorm:"column:font_size;not null;default:16"`
	IsTemplate     bool      `gorm:"column:is_template;not null;default:false"`
	OriginalNoteID *uint     `gorm:"column:original_note_id;index"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time `gorm:"column:updated_at;autoUpdateTime"`

	Table  tables.Table `gorm:"foreignKey:TableID;constraint:OnDelete:CASCADE"`
	Author users.User   `gorm:"foreignKey:AuthorID"`
}

// TableName provides the explicit table binding for GORM.
func (Note) TableName() string {
	return "notes"
}

// Permission is a per-user grant on a single note, unique per (note, user).
// GrantedByID records which user wrote the grant.
type Permission struct {
	ID          uint      `gorm:"column:id;primaryKey"`
	NoteID      uint      `gorm:"column:note_id;not null;uniqueIndex:idx_note_permission,priority:1"`
	UserID      uint      `gorm:"column:user_id;not null;uniqueIndex:idx_note_permission,priority:2"`
	CanView     bool      `gorm:"column:can_view;not null;default:false"`
	CanEdit     bool      `gorm:"column:can_edit;not null;default:false"`
	GrantedByID uint      `gorm:"column:granted_by_id;not null"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`

	Note Note `gorm:"foreignKey:NoteID;constraint:OnDelete:CASCADE"`
}

// TableName provides the explicit table binding for GORM.
func (Permission) TableName() string {
	return "note_permissions"
}

// ClampFontSize bounds a requested font size to the allowed range, falling
// back to the provided value on nonsense input.
func ClampFontSize(size, fallback int) int {
	if size == 0 {
		return fallback
	}
	if size < MinFontSize {
		return MinFontSize
	}
	if size > MaxFontSize {
		return MaxFontSize
	}
	return size
}
