package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/questlog/questlog/internal/apperrors"
	"github.com/questlog/questlog/internal/notes"
)

type noteRequestPayload struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Content     string `json:"content"`
	BgColor     string `json:"bg_color"`
	TextColor   string `json:"text_color"`
	FontSize    int    `json:"font_size"`
}

type duplicateNoteRequestPayload struct {
	Title string `json:"title"`
}

type notePermissionRequestPayload struct {
	UserID  uint `json:"user_id"`
	CanView bool `json:"can_view"`
	CanEdit bool `json:"can_edit"`
}

type notePayload struct {
	ID             uint   `json:"id"`
	TableID        uint   `json:"table_id"`
	AuthorID       uint   `json:"author_id"`
	Title          string `json:"title"`
	Description    string `json:"description"`
	Content        string `json:"content"`
	BgColor        string `json:"bg_color"`
	TextColor      string `json:"text_color"`
	FontSize       int    `json:"font_size"`
	OriginalNoteID *uint  `json:"original_note_id,omitempty"`
	CreatedAt      string `json:"created_at"`
	UpdatedAt      string `json:"updated_at"`
}

type notePermissionPayload struct {
	ID          uint `json:"id"`
	NoteID      uint `json:"note_id"`
	UserID      uint `json:"user_id"`
	CanView     bool `json:"can_view"`
	CanEdit     bool `json:"can_edit"`
	GrantedByID uint `json:"granted_by_id"`
}

func (h *httpHandler) handleListNotes(c *gin.Context) {
	tableID, ok := parseUintParam(c, "tableID")
	if !ok {
		return
	}

	visible, err := h.notes.List(c.Request.Context(), currentUserID(c), tableID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	payloads := make([]notePayload, 0, len(visible))
	for i := range visible {
		payloads = append(payloads, toNotePayload(&visible[i]))
	}
	c.JSON(http.StatusOK, gin.H{"notes": payloads})
}

func (h *httpHandler) handleCreateNote(c *gin.Context) {
	tableID, ok := parseUintParam(c, "tableID")
	if !ok {
		return
	}
	var request noteRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		respondError(c, h.logger, apperrors.Validation("invalid request body"))
		return
	}

	note, err := h.notes.Create(c.Request.Context(), currentUserID(c), tableID, toNoteInput(request))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"note": toNotePayload(note)})
}

func (h *httpHandler) handleGetNote(c *gin.Context) {
	tableID, ok := parseUintParam(c, "tableID")
	if !ok {
		return
	}
	noteID, ok := parseUintParam(c, "noteID")
	if !ok {
		return
	}

	rendered, err := h.notes.Get(c.Request.Context(), currentUserID(c), tableID, noteID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"note":     toNotePayload(rendered.Note),
		"rendered": rendered.HTML,
		"can_edit": rendered.Access.CanEdit,
	})
}

func (h *httpHandler) handleUpdateNote(c *gin.Context) {
	tableID, ok := parseUintParam(c, "tableID")
	if !ok {
		return
	}
	noteID, ok := parseUintParam(c, "noteID")
	if !ok {
		return
	}
	var request noteRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		respondError(c, h.logger, apperrors.Validation("invalid request body"))
		return
	}

	note, err := h.notes.Update(c.Request.Context(), currentUserID(c), tableID, noteID, toNoteInput(request))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"note": toNotePayload(note)})
}

func (h *httpHandler) handleDeleteNote(c *gin.Context) {
	tableID, ok := parseUintParam(c, "tableID")
	if !ok {
		return
	}
	noteID, ok := parseUintParam(c, "noteID")
	if !ok {
		return
	}

	if err := h.notes.Delete(c.Request.Context(), currentUserID(c), tableID, noteID); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

func (h *httpHandler) handleDuplicateNote(c *gin.Context) {
	tableID, ok := parseUintParam(c, "tableID")
	if !ok {
		return
	}
	noteID, ok := parseUintParam(c, "noteID")
	if !ok {
		return
	}
	var request duplicateNoteRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil && c.Request.ContentLength > 0 {
		respondError(c, h.logger, apperrors.Validation("invalid request body"))
		return
	}

	duplicate, err := h.notes.Duplicate(c.Request.Context(), currentUserID(c), tableID, noteID, request.Title)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"note": toNotePayload(duplicate)})
}

func (h *httpHandler) handleListNotePermissions(c *gin.Context) {
	tableID, ok := parseUintParam(c, "tableID")
	if !ok {
		return
	}
	noteID, ok := parseUintParam(c, "noteID")
	if !ok {
		return
	}

	grants, err := h.notes.Permissions(c.Request.Context(), currentUserID(c), tableID, noteID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	payloads := make([]notePermissionPayload, 0, len(grants))
	for i := range grants {
		payloads = append(payloads, toNotePermissionPayload(&grants[i]))
	}
	c.JSON(http.StatusOK, gin.H{"permissions": payloads})
}

func (h *httpHandler) handleSetNotePermission(c *gin.Context) {
	tableID, ok := parseUintParam(c, "tableID")
	if !ok {
		return
	}
	noteID, ok := parseUintParam(c, "noteID")
	if !ok {
		return
	}
	var request notePermissionRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || request.UserID == 0 {
		respondError(c, h.logger, apperrors.Validation("invalid request body"))
		return
	}

	grant, err := h.notes.SetPermission(c.Request.Context(), currentUserID(c), tableID, noteID,
		request.UserID, request.CanView, request.CanEdit)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"permission": toNotePermissionPayload(grant)})
}

func toNoteInput(request noteRequestPayload) notes.Input {
	return notes.Input{
		Title:       request.Title,
		Description: request.Description,
		Content:     request.Content,
		BgColor:     request.BgColor,
		TextColor:   request.TextColor,
		FontSize:    request.FontSize,
	}
}

func toNotePayload(note *notes.Note) notePayload {
	return notePayload{
		ID:             note.ID,
		TableID:        note.TableID,
		AuthorID:       note.AuthorID,
		Title:          note.Title,
		Description:    note.Description,
		Content:        note.Content,
		BgColor:        note.BgColor,
		TextColor:      note.TextColor,
		FontSize:       note.FontSize,
		OriginalNoteID: note.OriginalNoteID,
		CreatedAt:      note.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:      note.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func toNotePermissionPayload(grant *notes.Permission) notePermissionPayload {
	return notePermissionPayload{
		ID:          grant.ID,
		NoteID:      grant.NoteID,
		UserID:      grant.UserID,
		CanView:     grant.CanView,
		CanEdit:     grant.CanEdit,
		GrantedByID: grant.GrantedByID,
	}
}
