package initiative

import (
	"time"

	"github.com/questlog/questlog/internal/tables"
	"github.com/questlog/questlog/internal/users"
)

const (
	// MinScore and MaxScore bound an initiative score.
	MinScore = 0
	MaxScore = 50

	// DefaultSessionName applies when no name is supplied.
	DefaultSessionName = "Combat Session"
)

// Session is one combat encounter's turn order. At most one session per table
// is active at a time; starting a new one deactivates the rest. CurrentTurn
// indexes the sorted order (zero-based), RoundNumber starts at 1.
type Session struct {
	ID          uint      `gorm:"column:id;primaryKey"`
	TableID     uint      `gorm:"column:table_id;not null;index"`
	Name        string    `gorm:"column:name;size:120;not null"`
	IsActive    bool      `gorm:"column:is_active;not null;default:true;index"`
	CurrentTurn int       `gorm:"column:current_turn;not null;default:0"`
	RoundNumber int       `gorm:"column:round_number;not null;default:1"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`

	Table tables.Table `gorm:"foreignKey:TableID;constraint:OnDelete:CASCADE"`
}

// TableName provides the explicit table binding for GORM.
func (Session) TableName() string {
	return "initiative_sessions"
}

// Entry is one combatant in a session. A nil UserID marks an NPC with no
// linked account. CustomField is free text for HP, AC or whatever the DM
// tracks.
type Entry struct {
	ID              uint      `gorm:"column:id;primaryKey"`
	SessionID       uint      `gorm:"column:session_id;not null;index"`
	CharacterName   string    `gorm:"column:character_name;size:120;not null"`
	InitiativeScore int       `gorm:"column:initiative_score;not null"`
	UserID          *uint     `gorm:"column:user_id"`
	CustomField     string    `gorm:"column:custom_field;size:255"`
	IsNPC           bool      `gorm:"column:is_npc;not null;default:false"`
	CreatedAt       time.Time `gorm:"column:created_at;autoCreateTime"`

	Session Session     `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE"`
	User    *users.User `gorm:"foreignKey:UserID"`
}

// TableName provides the explicit table binding for GORM.
func (Entry) TableName() string {
	return "initiative_entries"
}
