package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/questlog/questlog/internal/apperrors"
	"github.com/questlog/questlog/internal/auth"
)

const (
	minUsernameLength = 3
	minPasswordLength = 6
)

// ServiceConfig describes the dependencies required for account management.
type ServiceConfig struct {
	Database *gorm.DB
	Tokens   *auth.TokenIssuer
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service handles registration and credentialed login.
type Service struct {
	db     *gorm.DB
	tokens *auth.TokenIssuer
	clock  func() time.Time
	logger *zap.Logger
}

// NewService constructs the account service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("users: database connection required")
	}
	if cfg.Tokens == nil {
		return nil, fmt.Errorf("users: token issuer required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: cfg.Database, tokens: cfg.Tokens, clock: clock, logger: logger}, nil
}

// RegisterInput carries the signup form fields.
type RegisterInput struct {
	Username string
	Email    string
	Password string
}

// Register creates an account after validating the credentials.
func (s *Service) Register(ctx context.Context, input RegisterInput) (*User, error) {
	username := strings.TrimSpace(input.Username)
	email := strings.ToLower(strings.TrimSpace(input.Email))

	if len(username) < minUsernameLength {
		return nil, apperrors.Validation("username must be at least %d characters", minUsernameLength)
	}
	if email == "" || !strings.Contains(email, "@") {
		return nil, apperrors.Validation("valid email is required")
	}
	if len(input.Password) < minPasswordLength {
		return nil, apperrors.Validation("password must be at least %d characters", minPasswordLength)
	}

	hash, err := auth.HashPassword(input.Password)
	if err != nil {
		s.logger.Error("password hashing failed", zap.Error(err))
		return nil, apperrors.Store(err)
	}

	user := User{Username: username, Email: email, PasswordHash: hash}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		if apperrors.IsUniqueViolation(err) {
			return nil, apperrors.Conflict("username or email already registered")
		}
		s.logger.Error("user insert failed", zap.Error(err))
		return nil, apperrors.Store(err)
	}

	s.logger.Info("user registered",
		zap.Uint("user_id", user.ID),
		zap.String("username", user.Username))
	return &user, nil
}

// Login verifies the credentials and issues a bearer token. The same error is
// returned for unknown users and bad passwords.
func (s *Service) Login(ctx context.Context, username, password string) (*User, string, int64, error) {
	username = strings.TrimSpace(username)

	var user User
	err := s.db.WithContext(ctx).Where("username = ?", username).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, "", 0, apperrors.Forbidden("invalid username or password")
	}
	if err != nil {
		s.logger.Error("user lookup failed", zap.Error(err), zap.String("username", username))
		return nil, "", 0, apperrors.Store(err)
	}

	if !auth.CheckPassword(password, user.PasswordHash) {
		s.logger.Warn("login rejected", zap.String("username", username))
		return nil, "", 0, apperrors.Forbidden("invalid username or password")
	}

	token, expiresIn, err := s.tokens.IssueToken(user.ID)
	if err != nil {
		s.logger.Error("token issue failed", zap.Error(err), zap.Uint("user_id", user.ID))
		return nil, "", 0, apperrors.Store(err)
	}

	s.logger.Info("user logged in", zap.Uint("user_id", user.ID))
	return &user, token, expiresIn, nil
}

// Get returns the account for the given id.
func (s *Service) Get(ctx context.Context, userID uint) (*User, error) {
	var user User
	if err := s.db.WithContext(ctx).Take(&user, userID).Error; err != nil {
		return nil, apperrors.FromStore(err, "user not found")
	}
	return &user, nil
}
