package tables

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/questlog/questlog/internal/apperrors"
)

// ServiceConfig describes the dependencies for table lifecycle management.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service manages tables and their memberships.
type Service struct {
	db     *gorm.DB
	clock  func() time.Time
	logger *zap.Logger
}

// NewService constructs the table service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("tables: database connection required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: cfg.Database, clock: clock, logger: logger}, nil
}

// Create makes a new table owned by userID. The owner membership (role dm) is
// written in the same transaction as the table itself.
func (s *Service) Create(ctx context.Context, userID uint, name, description string) (*Table, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperrors.Validation("table name is required")
	}

	code, err := generateUniqueCode(func(candidate string) (bool, error) {
		var count int64
		err := s.db.WithContext(ctx).Model(&Table{}).Where("code = ?", candidate).Count(&count).Error
		return count > 0, err
	})
	if err != nil {
		s.logger.Error("share code generation failed", zap.Error(err))
		return nil, apperrors.Store(err)
	}

	table := Table{
		Name:        name,
		Description: strings.TrimSpace(description),
		Code:        code,
		OwnerID:     userID,
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&table).Error; err != nil {
			return err
		}
		owner := Membership{
			UserID:       userID,
			TableID:      table.ID,
			Role:         RoleDM,
			CanViewNotes: true,
		}
		return tx.Create(&owner).Error
	})
	if err != nil {
		if apperrors.IsUniqueViolation(err) {
			// A concurrent create won the code; the caller may retry.
			return nil, apperrors.Conflict("share code collision, retry")
		}
		s.logger.Error("table create failed", zap.Error(err), zap.Uint("owner_id", userID))
		return nil, apperrors.Store(err)
	}

	s.logger.Info("table created",
		zap.Uint("table_id", table.ID),
		zap.Uint("owner_id", userID),
		zap.String("code", table.Code))
	return &table, nil
}

// Join redeems a share code. Joining a table twice reports a conflict without
// mutating anything, so callers can treat it as an idempotent no-op.
func (s *Service) Join(ctx context.Context, userID uint, code string) (*Table, *Membership, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, nil, apperrors.Validation("share code is required")
	}

	var table Table
	err := s.db.WithContext(ctx).Where("code = ?", code).Take(&table).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, apperrors.NotFound("no table found with that code")
	}
	if err != nil {
		return nil, nil, apperrors.Store(err)
	}

	if existing, err := s.Membership(ctx, userID, table.ID); err == nil && existing != nil {
		return &table, existing, apperrors.Conflict("already a member of this table")
	} else if err != nil {
		return nil, nil, err
	}

	member := Membership{
		UserID:       userID,
		TableID:      table.ID,
		Role:         RolePlayer,
		CanViewNotes: true,
	}
	if err := s.db.WithContext(ctx).Create(&member).Error; err != nil {
		if apperrors.IsUniqueViolation(err) {
			// Raced with another join from the same user.
			return &table, nil, apperrors.Conflict("already a member of this table")
		}
		s.logger.Error("join failed", zap.Error(err),
			zap.Uint("user_id", userID), zap.Uint("table_id", table.ID))
		return nil, nil, apperrors.Store(err)
	}

	s.logger.Info("member joined",
		zap.Uint("table_id", table.ID), zap.Uint("user_id", userID))
	return &table, &member, nil
}

// Membership returns the membership for (userID, tableID), or nil when the
// user is not a member. Every privileged operation resolves this fresh.
func (s *Service) Membership(ctx context.Context, userID, tableID uint) (*Membership, error) {
	var member Membership
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND table_id = ?", userID, tableID).
		Take(&member).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Store(err)
	}
	return &member, nil
}

// Get returns the table when userID is a member of it.
func (s *Service) Get(ctx context.Context, userID, tableID uint) (*Table, *Membership, error) {
	var table Table
	if err := s.db.WithContext(ctx).Take(&table, tableID).Error; err != nil {
		return nil, nil, apperrors.FromStore(err, "table not found")
	}
	member, err := s.Membership(ctx, userID, tableID)
	if err != nil {
		return nil, nil, err
	}
	if member == nil {
		return nil, nil, apperrors.Forbidden("you are not a member of this table")
	}
	return &table, member, nil
}

// ListForUser returns the tables userID owns and the tables they joined.
func (s *Service) ListForUser(ctx context.Context, userID uint) (owned, joined []Table, err error) {
	if err := s.db.WithContext(ctx).
		Where("owner_id = ?", userID).
		Order("created_at DESC").
		Find(&owned).Error; err != nil {
		return nil, nil, apperrors.Store(err)
	}
	if err := s.db.WithContext(ctx).
		Joins("JOIN table_members ON table_members.table_id = game_tables.id").
		Where("table_members.user_id = ? AND game_tables.owner_id <> ?", userID, userID).
		Order("game_tables.created_at DESC").
		Find(&joined).Error; err != nil {
		return nil, nil, apperrors.Store(err)
	}
	return owned, joined, nil
}

// Members lists the memberships of a table, visible to any member.
func (s *Service) Members(ctx context.Context, userID, tableID uint) ([]Membership, error) {
	if _, _, err := s.Get(ctx, userID, tableID); err != nil {
		return nil, err
	}
	var members []Membership
	if err := s.db.WithContext(ctx).
		Preload("User").
		Where("table_id = ?", tableID).
		Order("joined_at ASC").
		Find(&members).Error; err != nil {
		return nil, apperrors.Store(err)
	}
	return members, nil
}

// ToggleNotesAccess flips a member's note visibility default. Owner only; the
// owner cannot target themselves.
func (s *Service) ToggleNotesAccess(ctx context.Context, userID, tableID, memberID uint) (*Membership, error) {
	table, member, err := s.ownerAndMember(ctx, userID, tableID, memberID)
	if err != nil {
		return nil, err
	}
	if member.UserID == table.OwnerID {
		return nil, apperrors.Forbidden("you cannot change your own access")
	}

	member.CanViewNotes = !member.CanViewNotes
	if err := s.db.WithContext(ctx).Model(member).
		Update("can_view_notes", member.CanViewNotes).Error; err != nil {
		return nil, apperrors.Store(err)
	}

	s.logger.Info("notes access toggled",
		zap.Uint("table_id", tableID),
		zap.Uint("member_id", memberID),
		zap.Bool("can_view_notes", member.CanViewNotes))
	return member, nil
}

// Kick removes a member. Owner only; the owner cannot kick themselves.
func (s *Service) Kick(ctx context.Context, userID, tableID, memberID uint) error {
	table, member, err := s.ownerAndMember(ctx, userID, tableID, memberID)
	if err != nil {
		return err
	}
	if member.UserID == table.OwnerID {
		return apperrors.Forbidden("you cannot kick yourself")
	}

	if err := s.db.WithContext(ctx).Delete(member).Error; err != nil {
		return apperrors.Store(err)
	}
	s.logger.Info("member kicked",
		zap.Uint("table_id", tableID), zap.Uint("member_id", memberID))
	return nil
}

// Leave removes the caller's own membership. The owner must delete the table
// instead.
func (s *Service) Leave(ctx context.Context, userID, tableID uint) error {
	var table Table
	if err := s.db.WithContext(ctx).Take(&table, tableID).Error; err != nil {
		return apperrors.FromStore(err, "table not found")
	}
	if table.OwnerID == userID {
		return apperrors.Forbidden("the owner cannot leave; delete the table instead")
	}

	member, err := s.Membership(ctx, userID, tableID)
	if err != nil {
		return err
	}
	if member == nil {
		return apperrors.NotFound("you are not a member of this table")
	}

	if err := s.db.WithContext(ctx).Delete(member).Error; err != nil {
		return apperrors.Store(err)
	}
	s.logger.Info("member left",
		zap.Uint("table_id", tableID), zap.Uint("user_id", userID))
	return nil
}

// Delete removes the table. Owner only. Memberships, notes, note permissions,
// dice rolls and initiative state cascade through the schema.
func (s *Service) Delete(ctx context.Context, userID, tableID uint) error {
	var table Table
	if err := s.db.WithContext(ctx).Take(&table, tableID).Error; err != nil {
		return apperrors.FromStore(err, "table not found")
	}
	if table.OwnerID != userID {
		return apperrors.Forbidden("only the table owner can delete it")
	}

	if err := s.db.WithContext(ctx).Delete(&table).Error; err != nil {
		return apperrors.Store(err)
	}
	s.logger.Info("table deleted",
		zap.Uint("table_id", tableID), zap.Uint("owner_id", userID))
	return nil
}

func (s *Service) ownerAndMember(ctx context.Context, userID, tableID, memberID uint) (*Table, *Membership, error) {
	var table Table
	if err := s.db.WithContext(ctx).Take(&table, tableID).Error; err != nil {
		return nil, nil, apperrors.FromStore(err, "table not found")
	}
	if table.OwnerID != userID {
		return nil, nil, apperrors.Forbidden("only the table owner can manage members")
	}

	var member Membership
	if err := s.db.WithContext(ctx).Take(&member, memberID).Error; err != nil {
		return nil, nil, apperrors.FromStore(err, "member not found")
	}
	if member.TableID != table.ID {
		return nil, nil, apperrors.NotFound("member not found in this table")
	}
	return &table, &member, nil
}
