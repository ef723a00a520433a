package initiative

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/questlog/questlog/internal/apperrors"
	"github.com/questlog/questlog/internal/tables"
)

// ServiceConfig describes the dependencies for initiative tracking.
type ServiceConfig struct {
	Database *gorm.DB
	Tables   *tables.Service
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service manages initiative sessions and entries. Every operation requires
// the caller to hold the dm role on the session's table.
type Service struct {
	db     *gorm.DB
	tables *tables.Service
	clock  func() time.Time
	logger *zap.Logger
}

// NewService constructs the initiative service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("initiative: database connection required")
	}
	if cfg.Tables == nil {
		return nil, fmt.Errorf("initiative: table service required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: cfg.Database, tables: cfg.Tables, clock: clock, logger: logger}, nil
}

// StartSession begins a new encounter, deactivating any session already
// active for the table.
func (s *Service) StartSession(ctx context.Context, userID, tableID uint, name string) (*Session, error) {
	if err := s.requireDM(ctx, userID, tableID); err != nil {
		return nil, err
	}

	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultSessionName
	}

	session := Session{
		TableID:     tableID,
		Name:        name,
		IsActive:    true,
		CurrentTurn: 0,
		RoundNumber: 1,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&Session{}).
			Where("table_id = ? AND is_active = ?", tableID, true).
			Update("is_active", false).Error; err != nil {
			return err
		}
		return tx.Create(&session).Error
	})
	if err != nil {
		s.logger.Error("session create failed", zap.Error(err), zap.Uint("table_id", tableID))
		return nil, apperrors.Store(err)
	}

	s.logger.Info("initiative session started",
		zap.Uint("session_id", session.ID),
		zap.Uint("table_id", tableID),
		zap.String("name", name))
	return &session, nil
}

// ActiveSession returns the table's active session with its sorted entries,
// or a not-found error when no encounter is running.
func (s *Service) ActiveSession(ctx context.Context, userID, tableID uint) (*Session, []Entry, error) {
	if err := s.requireDM(ctx, userID, tableID); err != nil {
		return nil, nil, err
	}

	var session Session
	err := s.db.WithContext(ctx).
		Where("table_id = ? AND is_active = ?", tableID, true).
		Take(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, apperrors.NotFound("no active initiative session")
	}
	if err != nil {
		return nil, nil, apperrors.Store(err)
	}

	entries, err := s.entries(ctx, session.ID)
	if err != nil {
		return nil, nil, err
	}
	return &session, SortEntries(entries), nil
}

// EntryInput carries the fields of a combatant.
type EntryInput struct {
	CharacterName   string
	InitiativeScore int
	CustomField     string
	UserID          *uint
	IsNPC           bool
}

// AddEntry adds a combatant to an active session.
func (s *Service) AddEntry(ctx context.Context, userID, sessionID uint, input EntryInput) (*Entry, error) {
	session, err := s.sessionForDM(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.IsActive {
		return nil, apperrors.Forbidden("the session has ended")
	}

	name := strings.TrimSpace(input.CharacterName)
	if name == "" {
		return nil, apperrors.Validation("character name is required")
	}
	if input.InitiativeScore < MinScore || input.InitiativeScore > MaxScore {
		return nil, apperrors.Validation("initiative score must be between %d and %d", MinScore, MaxScore)
	}

	entry := Entry{
		SessionID:       session.ID,
		CharacterName:   name,
		InitiativeScore: input.InitiativeScore,
		UserID:          input.UserID,
		CustomField:     strings.TrimSpace(input.CustomField),
		IsNPC:           input.IsNPC,
	}
	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		s.logger.Error("entry insert failed", zap.Error(err), zap.Uint("session_id", sessionID))
		return nil, apperrors.Store(err)
	}

	s.logger.Info("initiative entry added",
		zap.Uint("session_id", session.ID),
		zap.Uint("entry_id", entry.ID),
		zap.String("character", name))
	return &entry, nil
}

// EntryUpdate carries optional changes to a combatant. Nil fields are left
// untouched.
type EntryUpdate struct {
	InitiativeScore *int
	CustomField     *string
}

// UpdateEntry modifies a combatant on an active session.
func (s *Service) UpdateEntry(ctx context.Context, userID, entryID uint, update EntryUpdate) (*Entry, error) {
	entry, session, err := s.entryForDM(ctx, userID, entryID)
	if err != nil {
		return nil, err
	}
	if !session.IsActive {
		return nil, apperrors.Forbidden("the session has ended")
	}

	if update.InitiativeScore != nil {
		score := *update.InitiativeScore
		if score < MinScore || score > MaxScore {
			return nil, apperrors.Validation("initiative score must be between %d and %d", MinScore, MaxScore)
		}
		entry.InitiativeScore = score
	}
	if update.CustomField != nil {
		entry.CustomField = strings.TrimSpace(*update.CustomField)
	}

	if err := s.db.WithContext(ctx).Save(entry).Error; err != nil {
		return nil, apperrors.Store(err)
	}
	return entry, nil
}

// RemoveEntry deletes a combatant. The session's current turn index is left
// alone; a transiently out-of-range index resolves on the next advance.
func (s *Service) RemoveEntry(ctx context.Context, userID, entryID uint) error {
	entry, session, err := s.entryForDM(ctx, userID, entryID)
	if err != nil {
		return err
	}
	if !session.IsActive {
		return apperrors.Forbidden("the session has ended")
	}

	if err := s.db.WithContext(ctx).Delete(entry).Error; err != nil {
		return apperrors.Store(err)
	}
	s.logger.Info("initiative entry removed",
		zap.Uint("session_id", session.ID), zap.Uint("entry_id", entryID))
	return nil
}

// AdvanceTurn moves an active session to the next combatant and returns the
// refreshed session with whoever is now up (nil when the index is transiently
// out of range or the session is empty).
func (s *Service) AdvanceTurn(ctx context.Context, userID, sessionID uint) (*Session, *Entry, error) {
	session, err := s.sessionForDM(ctx, userID, sessionID)
	if err != nil {
		return nil, nil, err
	}
	if !session.IsActive {
		return nil, nil, apperrors.Forbidden("the session has ended")
	}

	entries, err := s.entries(ctx, session.ID)
	if err != nil {
		return nil, nil, err
	}

	Advance(session, len(entries))
	if err := s.db.WithContext(ctx).Model(session).Updates(map[string]interface{}{
		"current_turn": session.CurrentTurn,
		"round_number": session.RoundNumber,
	}).Error; err != nil {
		return nil, nil, apperrors.Store(err)
	}

	current := CurrentCharacter(session, entries)
	s.logger.Info("turn advanced",
		zap.Uint("session_id", session.ID),
		zap.Int("current_turn", session.CurrentTurn),
		zap.Int("round", session.RoundNumber))
	return session, current, nil
}

// EndSession marks the session terminal. No further mutations are accepted.
func (s *Service) EndSession(ctx context.Context, userID, sessionID uint) error {
	session, err := s.sessionForDM(ctx, userID, sessionID)
	if err != nil {
		return err
	}
	if !session.IsActive {
		return nil
	}

	if err := s.db.WithContext(ctx).Model(session).
		Update("is_active", false).Error; err != nil {
		return apperrors.Store(err)
	}
	s.logger.Info("initiative session ended", zap.Uint("session_id", session.ID))
	return nil
}

// SortedEntriesFor returns the sorted order for a session, DM only.
func (s *Service) SortedEntriesFor(ctx context.Context, userID, sessionID uint) (*Session, []Entry, error) {
	session, err := s.sessionForDM(ctx, userID, sessionID)
	if err != nil {
		return nil, nil, err
	}
	entries, err := s.entries(ctx, session.ID)
	if err != nil {
		return nil, nil, err
	}
	return session, SortEntries(entries), nil
}

func (s *Service) entries(ctx context.Context, sessionID uint) ([]Entry, error) {
	var entries []Entry
	if err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("id ASC").
		Find(&entries).Error; err != nil {
		return nil, apperrors.Store(err)
	}
	return entries, nil
}

func (s *Service) requireDM(ctx context.Context, userID, tableID uint) error {
	membership, err := s.tables.Membership(ctx, userID, tableID)
	if err != nil {
		return err
	}
	if membership == nil || !membership.IsDM() {
		return apperrors.Forbidden("only the Dungeon Master can manage initiative")
	}
	return nil
}

func (s *Service) sessionForDM(ctx context.Context, userID, sessionID uint) (*Session, error) {
	var session Session
	if err := s.db.WithContext(ctx).Take(&session, sessionID).Error; err != nil {
		return nil, apperrors.FromStore(err, "initiative session not found")
	}
	if err := s.requireDM(ctx, userID, session.TableID); err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *Service) entryForDM(ctx context.Context, userID, entryID uint) (*Entry, *Session, error) {
	var entry Entry
	if err := s.db.WithContext(ctx).Take(&entry, entryID).Error; err != nil {
		return nil, nil, apperrors.FromStore(err, "initiative entry not found")
	}
	session, err := s.sessionForDM(ctx, userID, entry.SessionID)
	if err != nil {
		return nil, nil, err
	}
	return &entry, session, nil
}
