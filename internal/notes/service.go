package notes

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

// ServiceConfig describes the dependencies for note management.
type ServiceConfig struct {
	Database *gorm.DB
	Tables   *tables.Service
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service manages notes, their permissions and duplication.
type Service struct {
	db     *gorm.DB
	tables *tables.Service
	clock  func() time.Time
	logger *zap.Logger
}

// NewService constructs the note service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("notes: database connection required")
	}
	if cfg.Tables == nil {
		return nil, fmt.Errorf("notes: table service required")
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

// Input carries the editable fields of a note.
type Input struct {
	Title       string
	Description string
	Content     string
	BgColor     string
	TextColor   string
	FontSize    int
}

// Create authors a new note. Membership and the table-level note default are
// re-validated on every call; members whose note access was revoked cannot
// author notes.
func (s *Service) Create(ctx context.Context, userID, tableID uint, input Input) (*Note, error) {
	membership, err := s.requireMembership(ctx, userID, tableID)
	if err != nil {
		return nil, err
	}
	if !membership.CanViewNotes {
		return nil, apperrors.Forbidden("you don't have permission to view notes")
	}

	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, apperrors.Validation("note title is required")
	}

	note := Note{
		TableID:     tableID,
		AuthorID:    userID,
		Title:       title,
		Description: strings.TrimSpace(input.Description),
		Content:     input.Content,
		BgColor:     defaultColor(input.BgColor, defaultBgColor),
		TextColor:   defaultColor(input.TextColor, defaultTextColor),
		FontSize:    ClampFontSize(input.FontSize, DefaultFontSize),
	}
	if err := s.db.WithContext(ctx).Create(&note).Error; err != nil {
		s.logger.Error("note insert failed", zap.Error(err), zap.Uint("table_id", tableID))
		return nil, apperrors.Store(err)
	}

	s.logger.Info("note created",
		zap.Uint("note_id", note.ID),
		zap.Uint("table_id", tableID),
		zap.Uint("author_id", userID))
	return &note, nil
}

// Rendered pairs a note with its sanitized HTML.
type Rendered struct {
	Note   *Note
	HTML   string
	Access Access
}

// Get returns a note with rendered content when the caller can view it.
func (s *Service) Get(ctx context.Context, userID, tableID, noteID uint) (*Rendered, error) {
	note, access, err := s.resolve(ctx, userID, tableID, noteID)
	if err != nil {
		return nil, err
	}
	if !access.CanView {
		return nil, apperrors.Forbidden("you don't have permission to view this note")
	}

	rendered, err := RenderContent(note.Content)
	if err != nil {
		s.logger.Error("note render failed", zap.Error(err), zap.Uint("note_id", note.ID))
		return nil, apperrors.Store(err)
	}
	return &Rendered{Note: note, HTML: rendered, Access: access}, nil
}

// List returns the table's notes filtered to those the caller can view.
func (s *Service) List(ctx context.Context, userID, tableID uint) ([]Note, error) {
	membership, err := s.requireMembership(ctx, userID, tableID)
	if err != nil {
		return nil, err
	}

	var all []Note
	if err := s.db.WithContext(ctx).
		Where("table_id = ?", tableID).
		Order("updated_at DESC").
		Find(&all).Error; err != nil {
		return nil, apperrors.Store(err)
	}

	grants, err := s.grantsFor(ctx, userID, tableID)
	if err != nil {
		return nil, err
	}

	visible := make([]Note, 0, len(all))
	for i := range all {
		access := Resolve(&all[i], userID, membership, grants[all[i].ID])
		if access.CanView {
			visible = append(visible, all[i])
		}
	}
	return visible, nil
}

// Update rewrites the editable fields. Requires edit rights.
func (s *Service) Update(ctx context.Context, userID, tableID, noteID uint, input Input) (*Note, error) {
	note, access, err := s.resolve(ctx, userID, tableID, noteID)
	if err != nil {
		return nil, err
	}
	if !access.CanEdit {
		return nil, apperrors.Forbidden("you don't have permission to edit this note")
	}

	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, apperrors.Validation("note title is required")
	}

	note.Title = title
	note.Description = strings.TrimSpace(input.Description)
	note.Content = input.Content
	note.BgColor = defaultColor(input.BgColor, note.BgColor)
	note.TextColor = defaultColor(input.TextColor, note.TextColor)
	note.FontSize = ClampFontSize(input.FontSize, note.FontSize)

	if err := s.db.WithContext(ctx).Save(note).Error; err != nil {
		s.logger.Error("note update failed", zap.Error(err), zap.Uint("note_id", noteID))
		return nil, apperrors.Store(err)
	}
	return note, nil
}

// Delete removes a note. Requires edit rights. Permission grants cascade.
func (s *Service) Delete(ctx context.Context, userID, tableID, noteID uint) error {
	note, access, err := s.resolve(ctx, userID, tableID, noteID)
	if err != nil {
		return err
	}
	if !access.CanEdit {
		return apperrors.Forbidden("you don't have permission to delete this note")
	}

	if err := s.db.WithContext(ctx).Delete(note).Error; err != nil {
		return apperrors.Store(err)
	}
	s.logger.Info("note deleted", zap.Uint("note_id", noteID), zap.Uint("user_id", userID))
	return nil
}

// Duplicate copies a note the caller can view. Content and styling carry
// over, the permission set does not; the copy records its source note.
func (s *Service) Duplicate(ctx context.Context, userID, tableID, noteID uint, newTitle string) (*Note, error) {
	original, access, err := s.resolve(ctx, userID, tableID, noteID)
	if err != nil {
		return nil, err
	}
	if !access.CanView {
		return nil, apperrors.Forbidden("you don't have permission to view this note")
	}

	title := strings.TrimSpace(newTitle)
	if title == "" {
		title = original.Title + " (copy)"
	}

	sourceID := original.ID
	duplicate := Note{
		TableID:        tableID,
		AuthorID:       userID,
		Title:          title,
		Description:    original.Description,
		Content:        original.Content,
		BgColor:        original.BgColor,
		TextColor:      original.TextColor,
		FontSize:       original.FontSize,
		OriginalNoteID: &sourceID,
	}
	if err := s.db.WithContext(ctx).Create(&duplicate).Error; err != nil {
		s.logger.Error("note duplicate failed", zap.Error(err), zap.Uint("note_id", noteID))
		return nil, apperrors.Store(err)
	}

	s.logger.Info("note duplicated",
		zap.Uint("source_note_id", sourceID),
		zap.Uint("note_id", duplicate.ID),
		zap.Uint("user_id", userID))
	return &duplicate, nil
}

// SetPermission writes an explicit grant for targetUserID. Only the author or
// a DM may manage grants. Edit is clamped so it never exceeds view.
func (s *Service) SetPermission(ctx context.Context, userID, tableID, noteID, targetUserID uint, canView, canEdit bool) (*Permission, error) {
	note, _, err := s.resolve(ctx, userID, tableID, noteID)
	if err != nil {
		return nil, err
	}

	membership, err := s.tables.Membership(ctx, userID, tableID)
	if err != nil {
		return nil, err
	}
	isAuthor := note.AuthorID == userID
	isDM := membership != nil && membership.IsDM()
	if !isAuthor && !isDM {
		return nil, apperrors.Forbidden("only the author or a DM can manage note permissions")
	}

	target, err := s.tables.Membership(ctx, targetUserID, tableID)
	if err != nil {
		return nil, err
	}
	if target == nil {
		return nil, apperrors.NotFound("target user is not a member of this table")
	}

	// Editing requires viewing.
	canEdit = canEdit && canView

	var grant Permission
	err = s.db.WithContext(ctx).
		Where("note_id = ? AND user_id = ?", noteID, targetUserID).
		Take(&grant).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		grant = Permission{
			NoteID:      noteID,
			UserID:      targetUserID,
			CanView:     canView,
			CanEdit:     canEdit,
			GrantedByID: userID,
		}
		if err := s.db.WithContext(ctx).Create(&grant).Error; err != nil {
			if apperrors.IsUniqueViolation(err) {
				return nil, apperrors.Conflict("permission already granted")
			}
			return nil, apperrors.Store(err)
		}
	case err != nil:
		return nil, apperrors.Store(err)
	default:
		grant.CanView = canView
		grant.CanEdit = canEdit
		grant.GrantedByID = userID
		if err := s.db.WithContext(ctx).Save(&grant).Error; err != nil {
			return nil, apperrors.Store(err)
		}
	}

	s.logger.Info("note permission set",
		zap.Uint("note_id", noteID),
		zap.Uint("target_user_id", targetUserID),
		zap.Bool("can_view", canView),
		zap.Bool("can_edit", canEdit))
	return &grant, nil
}

// Permissions lists the explicit grants on a note for the author or a DM.
func (s *Service) Permissions(ctx context.Context, userID, tableID, noteID uint) ([]Permission, error) {
	note, _, err := s.resolve(ctx, userID, tableID, noteID)
	if err != nil {
		return nil, err
	}
	membership, err := s.tables.Membership(ctx, userID, tableID)
	if err != nil {
		return nil, err
	}
	if note.AuthorID != userID && (membership == nil || !membership.IsDM()) {
		return nil, apperrors.Forbidden("only the author or a DM can view note permissions")
	}

	var grants []Permission
	if err := s.db.WithContext(ctx).
		Where("note_id = ?", noteID).
		Order("created_at ASC").
		Find(&grants).Error; err != nil {
		return nil, apperrors.Store(err)
	}
	return grants, nil
}

// resolve loads the note and computes the caller's access. The note must
// belong to the given table.
func (s *Service) resolve(ctx context.Context, userID, tableID, noteID uint) (*Note, Access, error) {
	var note Note
	if err := s.db.WithContext(ctx).Take(&note, noteID).Error; err != nil {
		return nil, Access{}, apperrors.FromStore(err, "note not found")
	}
	if note.TableID != tableID {
		return nil, Access{}, apperrors.NotFound("note not found in this table")
	}

	membership, err := s.tables.Membership(ctx, userID, tableID)
	if err != nil {
		return nil, Access{}, err
	}

	var grant *Permission
	var stored Permission
	err = s.db.WithContext(ctx).
		Where("note_id = ? AND user_id = ?", noteID, userID).
		Take(&stored).Error
	if err == nil {
		grant = &stored
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, Access{}, apperrors.Store(err)
	}

	return &note, Resolve(&note, userID, membership, grant), nil
}

func (s *Service) requireMembership(ctx context.Context, userID, tableID uint) (*tables.Membership, error) {
	if _, _, err := s.tables.Get(ctx, userID, tableID); err != nil {
		return nil, err
	}
	membership, err := s.tables.Membership(ctx, userID, tableID)
	if err != nil {
		return nil, err
	}
	if membership == nil {
		return nil, apperrors.Forbidden("you are not a member of this table")
	}
	return membership, nil
}

func (s *Service) grantsFor(ctx context.Context, userID, tableID uint) (map[uint]*Permission, error) {
	var grants []Permission
	if err := s.db.WithContext(ctx).
		Joins("JOIN notes ON notes.id = note_permissions.note_id").
		Where("note_permissions.user_id = ? AND notes.table_id = ?", userID, tableID).
		Find(&grants).Error; err != nil {
		return nil, apperrors.Store(err)
	}
	byNote := make(map[uint]*Permission, len(grants))
	for i := range grants {
		byNote[grants[i].NoteID] = &grants[i]
	}
	return byNote, nil
}

func defaultColor(value, fallback string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback
	}
	return value
}
