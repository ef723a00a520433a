package tables

import (
	"time"

	"github.com/questlog/questlog/internal/users"
)

// Role classifies a member within a table.
type Role string

const (
	// RoleDM marks the elevated Dungeon Master role.
	RoleDM Role = "dm"
	// RolePlayer marks an ordinary member.
	RolePlayer Role = "player"
)

// Table is a campaign container joined via a share code. The owner always
// holds a dm membership created alongside the table.
type Table struct {
	ID          uint      `gorm:"column:id;primaryKey"`
	Name        string    `gorm:"column:name;size:120;not null"`
	Description string    `gorm:"column:description;type:text"`
	Code        string    `gorm:"column:code;size:8;not null;uniqueIndex"`
	OwnerID     uint      `gorm:"column:owner_id;not null;index"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`

	Owner users.User `gorm:"foreignKey:OwnerID"`
}

// TableName provides the explicit table binding for GORM.
func (Table) TableName() string {
	return "game_tables"
}

// Membership joins a user to a table with a role and the table-level note
// visibility default. Unique per (user, table) pair.
type Membership struct {
	ID           uint      `gorm:"column:id;primaryKey"`
	UserID       uint      `gorm:"column:user_id;not null;uniqueIndex:idx_membership_user_table,priority:1"`
	TableID      uint      `gorm:"column:table_id;not null;uniqueIndex:idx_membership_user_table,priority:2"`
	Role         Role      `gorm:"column:role;size:20;not null;default:player"`
	CanViewNotes bool      `gorm:"column:can_view_notes;not null;default:true"`
	JoinedAt     time.Time `gorm:"column:joined_at;autoCreateTime"`

	User  users.User `gorm:"foreignKey:UserID"`
	Table Table      `gorm:"foreignKey:TableID;constraint:OnDelete:CASCADE"`
}

// TableName provides the explicit table binding for GORM.
func (Membership) TableName() string {
	return "table_members"
}

// IsDM reports whether the membership carries the elevated role.
func (m Membership) IsDM() bool {
	return m.Role == RoleDM
}
