package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/questlog/questlog/internal/apperrors"
	"github.com/questlog/questlog/internal/tables"
)

type createTableRequestPayload struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type joinTableRequestPayload struct {
	Code string `json:"code"`
}

type tablePayload struct {
	ID          uint   `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Code        string `json:"code"`
	OwnerID     uint   `json:"owner_id"`
	CreatedAt   string `json:"created_at"`
}

type membershipPayload struct {
	ID           uint   `json:"id"`
	UserID       uint   `json:"user_id"`
	Username     string `json:"username,omitempty"`
	TableID      uint   `json:"table_id"`
	Role         string `json:"role"`
	CanViewNotes bool   `json:"can_view_notes"`
	JoinedAt     string `json:"joined_at"`
}

func (h *httpHandler) handleListTables(c *gin.Context) {
	owned, joined, err := h.tables.ListForUser(c.Request.Context(), currentUserID(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"owned":  toTablePayloads(owned),
		"joined": toTablePayloads(joined),
	})
}

func (h *httpHandler) handleCreateTable(c *gin.Context) {
	var request createTableRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		respondError(c, h.logger, apperrors.Validation("invalid request body"))
		return
	}

	table, err := h.tables.Create(c.Request.Context(), currentUserID(c), request.Name, request.Description)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"table": toTablePayload(table)})
}

func (h *httpHandler) handleJoinTable(c *gin.Context) {
	var request joinTableRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		respondError(c, h.logger, apperrors.Validation("invalid request body"))
		return
	}

	table, membership, err := h.tables.Join(c.Request.Context(), currentUserID(c), request.Code)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"table":      toTablePayload(table),
		"membership": toMembershipPayload(membership),
	})
}

func (h *httpHandler) handleTableDetail(c *gin.Context) {
	tableID, ok := parseUintParam(c, "tableID")
	if !ok {
		return
	}

	table, membership, err := h.tables.Get(c.Request.Context(), currentUserID(c), tableID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	members, err := h.tables.Members(c.Request.Context(), currentUserID(c), tableID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	memberPayloads := make([]membershipPayload, 0, len(members))
	for i := range members {
		payload := toMembershipPayload(&members[i])
		payload.Username = members[i].User.Username
		memberPayloads = append(memberPayloads, payload)
	}

	c.JSON(http.StatusOK, gin.H{
		"table":      toTablePayload(table),
		"membership": toMembershipPayload(membership),
		"members":    memberPayloads,
		"is_owner":   table.OwnerID == currentUserID(c),
	})
}

func (h *httpHandler) handleDeleteTable(c *gin.Context) {
	tableID, ok := parseUintParam(c, "tableID")
	if !ok {
		return
	}
	if err := h.tables.Delete(c.Request.Context(), currentUserID(c), tableID); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

func (h *httpHandler) handleLeaveTable(c *gin.Context) {
	tableID, ok := parseUintParam(c, "tableID")
	if !ok {
		return
	}
	if err := h.tables.Leave(c.Request.Context(), currentUserID(c), tableID); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"left": true})
}

func (h *httpHandler) handleToggleNotes(c *gin.Context) {
	tableID, ok := parseUintParam(c, "tableID")
	if !ok {
		return
	}
	memberID, ok := parseUintParam(c, "memberID")
	if !ok {
		return
	}

	member, err := h.tables.ToggleNotesAccess(c.Request.Context(), currentUserID(c), tableID, memberID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"membership": toMembershipPayload(member)})
}

func (h *httpHandler) handleKickMember(c *gin.Context) {
	tableID, ok := parseUintParam(c, "tableID")
	if !ok {
		return
	}
	memberID, ok := parseUintParam(c, "memberID")
	if !ok {
		return
	}

	if err := h.tables.Kick(c.Request.Context(), currentUserID(c), tableID, memberID); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"kicked": true})
}

func toTablePayload(table *tables.Table) tablePayload {
	return tablePayload{
		ID:          table.ID,
		Name:        table.Name,
		Description: table.Description,
		Code:        table.Code,
		OwnerID:     table.OwnerID,
		CreatedAt:   table.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func toTablePayloads(items []tables.Table) []tablePayload {
	payloads := make([]tablePayload, 0, len(items))
	for i := range items {
		payloads = append(payloads, toTablePayload(&items[i]))
	}
	return payloads
}

func toMembershipPayload(member *tables.Membership) membershipPayload {
	return membershipPayload{
		ID:           member.ID,
		UserID:       member.UserID,
		TableID:      member.TableID,
		Role:         string(member.Role),
		CanViewNotes: member.CanViewNotes,
		JoinedAt:     member.JoinedAt.UTC().Format(time.RFC3339),
	}
}
