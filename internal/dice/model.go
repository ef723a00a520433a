package dice

import (
	"time"

	"github.com/questlog/questlog/internal/tables"
	"github.com/questlog/questlog/internal/users"
)

// RollRecord is an immutable audit row for one dice roll. TableID is nil for
// rolls made outside any table. Never updated after creation.
type RollRecord struct {
	ID              uint      `gorm:"column:id;primaryKey"`
	TableID         *uint     `gorm:"column:table_id;index"`
	UserID          uint      `gorm:"column:user_id;not null;index"`
	Expression      string    `gorm:"column:expression;size:32;not null"`
	Result          int       `gorm:"column:result;not null"`
	RollsJSON       string    `gorm:"column:rolls_json;type:text;not null"`
	Modifier        int       `gorm:"column:modifier;not null;default:0"`
	HasAdvantage    bool      `gorm:"column:has_advantage;not null;default:false"`
	HasDisadvantage bool      `gorm:"column:has_disadvantage;not null;default:false"`
	Description     string    `gorm:"column:description;size:255"`
	CreatedAt       time.Time `gorm:"column:created_at;autoCreateTime"`

	User  users.User    `gorm:"foreignKey:UserID"`
	Table *tables.Table `gorm:"foreignKey:TableID;constraint:OnDelete:CASCADE"`
}

// TableName provides the explicit table binding for GORM.
func (RollRecord) TableName() string {
	return "dice_rolls"
}
