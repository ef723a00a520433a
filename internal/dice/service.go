package dice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/questlog/questlog/internal/apperrors"
	"github.com/questlog/questlog/internal/tables"
)

const (
	historyLimit      = 50
	tableHistoryLimit = 100
)

// ServiceConfig describes the dependencies for persisted dice rolling.
type ServiceConfig struct {
	Database *gorm.DB
	Tables   *tables.Service
	Clock    func() time.Time
	Rand     *rand.Rand
	Logger   *zap.Logger
}

// Service rolls dice and keeps the immutable audit trail.
type Service struct {
	db     *gorm.DB
	tables *tables.Service
	clock  func() time.Time
	rng    *rand.Rand
	logger *zap.Logger
}

// NewService constructs the dice service. Rand may be nil; tests inject a
// seeded source for determinism.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("dice: database connection required")
	}
	if cfg.Tables == nil {
		return nil, fmt.Errorf("dice: table service required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:     cfg.Database,
		tables: cfg.Tables,
		clock:  clock,
		rng:    cfg.Rand,
		logger: logger,
	}, nil
}

// RollInput carries one roll request.
type RollInput struct {
	Expression   string
	Description  string
	Advantage    bool
	Disadvantage bool
	TableID      *uint
}

// RollExpression parses, rolls and persists one dice roll. When TableID is
// set the caller's membership is verified first.
func (s *Service) RollExpression(ctx context.Context, userID uint, input RollInput) (*RollRecord, Result, error) {
	expression := strings.TrimSpace(input.Expression)
	if expression == "" {
		return nil, Result{}, apperrors.Validation("dice expression is required")
	}

	spec, err := Parse(expression)
	if err != nil {
		return nil, Result{}, apperrors.Validation("%s", err.Error())
	}

	if input.TableID != nil {
		membership, err := s.tables.Membership(ctx, userID, *input.TableID)
		if err != nil {
			return nil, Result{}, err
		}
		if membership == nil {
			return nil, Result{}, apperrors.Forbidden("you don't have access to this table")
		}
	}

	result := Roll(spec, input.Advantage, input.Disadvantage, s.rng)

	rollsJSON, err := json.Marshal(result.Dice)
	if err != nil {
		return nil, Result{}, apperrors.Store(err)
	}

	record := RollRecord{
		TableID:         input.TableID,
		UserID:          userID,
		Expression:      expression,
		Result:          result.Total,
		RollsJSON:       string(rollsJSON),
		Modifier:        spec.Modifier,
		HasAdvantage:    input.Advantage,
		HasDisadvantage: input.Disadvantage,
		Description:     strings.TrimSpace(input.Description),
	}
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		s.logger.Error("roll insert failed", zap.Error(err), zap.Uint("user_id", userID))
		return nil, Result{}, apperrors.Store(err)
	}

	s.logger.Info("dice rolled",
		zap.Uint("roll_id", record.ID),
		zap.Uint("user_id", userID),
		zap.String("expression", expression),
		zap.Int("result", result.Total))
	return &record, result, nil
}

// QuickRoll rolls a single die of a common type, e.g. "d20".
func (s *Service) QuickRoll(ctx context.Context, userID uint, dieType string, tableID *uint) (*RollRecord, Result, error) {
	dieType = strings.ToLower(strings.TrimSpace(dieType))
	switch dieType {
	case "d4", "d6", "d8", "d10", "d12", "d20", "d100":
	default:
		return nil, Result{}, apperrors.Validation("invalid dice type")
	}

	return s.RollExpression(ctx, userID, RollInput{
		Expression:  "1" + dieType,
		Description: fmt.Sprintf("Quick %s roll", dieType),
		TableID:     tableID,
	})
}

// History lists the user's table-less rolls, newest first.
func (s *Service) History(ctx context.Context, userID uint) ([]RollRecord, error) {
	var rolls []RollRecord
	if err := s.db.WithContext(ctx).
		Where("user_id = ? AND table_id IS NULL", userID).
		Order("created_at DESC").
		Limit(historyLimit).
		Find(&rolls).Error; err != nil {
		return nil, apperrors.Store(err)
	}
	return rolls, nil
}

// TableHistory lists a table's rolls for its members, newest first.
func (s *Service) TableHistory(ctx context.Context, userID, tableID uint) ([]RollRecord, error) {
	membership, err := s.tables.Membership(ctx, userID, tableID)
	if err != nil {
		return nil, err
	}
	if membership == nil {
		return nil, apperrors.Forbidden("you don't have access to this table")
	}

	var rolls []RollRecord
	if err := s.db.WithContext(ctx).
		Where("table_id = ?", tableID).
		Order("created_at DESC").
		Limit(tableHistoryLimit).
		Find(&rolls).Error; err != nil {
		return nil, apperrors.Store(err)
	}
	return rolls, nil
}

// DecodeRolls unpacks the per-die detail stored on an audit record.
func DecodeRolls(record *RollRecord) ([]DieResult, error) {
	var dice []DieResult
	if err := json.Unmarshal([]byte(record.RollsJSON), &dice); err != nil {
		return nil, errors.New("dice: corrupt roll detail")
	}
	return dice, nil
}
