package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/questlog/questlog/internal/apperrors"
	"github.com/questlog/questlog/internal/initiative"
)

type startSessionRequestPayload struct {
	TableID uint   `json:"table_id"`
	Name    string `json:"name"`
}

type addEntryRequestPayload struct {
	CharacterName   string `json:"name"`
	InitiativeScore int    `json:"initiative"`
	CustomField     string `json:"custom_field"`
	UserID          *uint  `json:"user_id"`
	IsNPC           bool   `json:"is_npc"`
}

type updateEntryRequestPayload struct {
	InitiativeScore *int    `json:"initiative"`
	CustomField     *string `json:"custom_field"`
}

type sessionPayload struct {
	ID          uint   `json:"id"`
	TableID     uint   `json:"table_id"`
	Name        string `json:"name"`
	IsActive    bool   `json:"is_active"`
	CurrentTurn int    `json:"current_turn"`
	RoundNumber int    `json:"round"`
}

type entryPayload struct {
	ID              uint   `json:"id"`
	SessionID       uint   `json:"session_id"`
	CharacterName   string `json:"name"`
	InitiativeScore int    `json:"initiative"`
	CustomField     string `json:"custom_field,omitempty"`
	UserID          *uint  `json:"user_id,omitempty"`
	IsNPC           bool   `json:"is_npc"`
}

func (h *httpHandler) handleStartSession(c *gin.Context) {
	var request startSessionRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || request.TableID == 0 {
		respondError(c, h.logger, apperrors.Validation("invalid request body"))
		return
	}

	session, err := h.initiative.StartSession(c.Request.Context(), currentUserID(c), request.TableID, request.Name)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"session": toSessionPayload(session)})
}

func (h *httpHandler) handleActiveSession(c *gin.Context) {
	tableID, ok := parseUintParam(c, "tableID")
	if !ok {
		return
	}

	session, entries, err := h.initiative.ActiveSession(c.Request.Context(), currentUserID(c), tableID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session": toSessionPayload(session),
		"entries": toEntryPayloads(entries),
	})
}

func (h *httpHandler) handleAddEntry(c *gin.Context) {
	sessionID, ok := parseUintParam(c, "sessionID")
	if !ok {
		return
	}
	var request addEntryRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		respondError(c, h.logger, apperrors.Validation("invalid request body"))
		return
	}

	entry, err := h.initiative.AddEntry(c.Request.Context(), currentUserID(c), sessionID, initiative.EntryInput{
		CharacterName:   request.CharacterName,
		InitiativeScore: request.InitiativeScore,
		CustomField:     request.CustomField,
		UserID:          request.UserID,
		IsNPC:           request.IsNPC,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"entry": toEntryPayload(entry)})
}

func (h *httpHandler) handleSortedEntries(c *gin.Context) {
	sessionID, ok := parseUintParam(c, "sessionID")
	if !ok {
		return
	}

	session, entries, err := h.initiative.SortedEntriesFor(c.Request.Context(), currentUserID(c), sessionID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	payloads := toEntryPayloads(entries)
	c.JSON(http.StatusOK, gin.H{
		"session": toSessionPayload(session),
		"entries": payloads,
	})
}

func (h *httpHandler) handleAdvanceTurn(c *gin.Context) {
	sessionID, ok := parseUintParam(c, "sessionID")
	if !ok {
		return
	}

	session, current, err := h.initiative.AdvanceTurn(c.Request.Context(), currentUserID(c), sessionID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	response := gin.H{"session": toSessionPayload(session)}
	if current != nil {
		response["current_character"] = toEntryPayload(current)
	}
	c.JSON(http.StatusOK, response)
}

func (h *httpHandler) handleEndSession(c *gin.Context) {
	sessionID, ok := parseUintParam(c, "sessionID")
	if !ok {
		return
	}
	if err := h.initiative.EndSession(c.Request.Context(), currentUserID(c), sessionID); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ended": true})
}

func (h *httpHandler) handleUpdateEntry(c *gin.Context) {
	entryID, ok := parseUintParam(c, "entryID")
	if !ok {
		return
	}
	var request updateEntryRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		respondError(c, h.logger, apperrors.Validation("invalid request body"))
		return
	}

	entry, err := h.initiative.UpdateEntry(c.Request.Context(), currentUserID(c), entryID, initiative.EntryUpdate{
		InitiativeScore: request.InitiativeScore,
		CustomField:     request.CustomField,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entry": toEntryPayload(entry)})
}

func (h *httpHandler) handleRemoveEntry(c *gin.Context) {
	entryID, ok := parseUintParam(c, "entryID")
	if !ok {
		return
	}
	if err := h.initiative.RemoveEntry(c.Request.Context(), currentUserID(c), entryID); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": true})
}

func toSessionPayload(session *initiative.Session) sessionPayload {
	return sessionPayload{
		ID:          session.ID,
		TableID:     session.TableID,
		Name:        session.Name,
		IsActive:    session.IsActive,
		CurrentTurn: session.CurrentTurn,
		RoundNumber: session.RoundNumber,
	}
}

func toEntryPayload(entry *initiative.Entry) entryPayload {
	return entryPayload{
		ID:              entry.ID,
		SessionID:       entry.SessionID,
		CharacterName:   entry.CharacterName,
		InitiativeScore: entry.InitiativeScore,
		CustomField:     entry.CustomField,
		UserID:          entry.UserID,
		IsNPC:           entry.IsNPC,
	}
}

func toEntryPayloads(entries []initiative.Entry) []entryPayload {
	payloads := make([]entryPayload, 0, len(entries))
	for i := range entries {
		payloads = append(payloads, toEntryPayload(&entries[i]))
	}
	return payloads
}
