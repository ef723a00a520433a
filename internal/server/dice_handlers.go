package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/questlog/questlog/internal/apperrors"
	"github.com/questlog/questlog/internal/dice"
)

type rollRequestPayload struct {
	Expression   string `json:"expression"`
	Description  string `json:"description"`
	Advantage    bool   `json:"advantage"`
	Disadvantage bool   `json:"disadvantage"`
	TableID      *uint  `json:"table_id"`
}

type dieResultPayload struct {
	Rolls []int  `json:"rolls"`
	Final int    `json:"final"`
	Type  string `json:"type"`
}

type rollPayload struct {
	ID              uint               `json:"id"`
	Expression      string             `json:"expression"`
	Description     string             `json:"description,omitempty"`
	Result          int                `json:"result"`
	Modifier        int                `json:"modifier"`
	HasAdvantage    bool               `json:"has_advantage"`
	HasDisadvantage bool               `json:"has_disadvantage"`
	IndividualRolls []dieResultPayload `json:"individual_rolls"`
	TableID         *uint              `json:"table_id,omitempty"`
	CreatedAt       string             `json:"created_at"`
}

func (h *httpHandler) handleRollDice(c *gin.Context) {
	var request rollRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		respondError(c, h.logger, apperrors.Validation("invalid request body"))
		return
	}

	record, result, err := h.dice.RollExpression(c.Request.Context(), currentUserID(c), dice.RollInput{
		Expression:   request.Expression,
		Description:  request.Description,
		Advantage:    request.Advantage,
		Disadvantage: request.Disadvantage,
		TableID:      request.TableID,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"roll": toRollPayload(record, result.Dice)})
}

func (h *httpHandler) handleQuickRoll(c *gin.Context) {
	var tableID *uint
	if raw := c.Query("table_id"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil || parsed == 0 {
			respondError(c, h.logger, apperrors.Validation("invalid table_id"))
			return
		}
		value := uint(parsed)
		tableID = &value
	}

	record, result, err := h.dice.QuickRoll(c.Request.Context(), currentUserID(c), c.Param("dieType"), tableID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"roll": toRollPayload(record, result.Dice)})
}

func (h *httpHandler) handleDiceHistory(c *gin.Context) {
	rolls, err := h.dice.History(c.Request.Context(), currentUserID(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rolls": toRollPayloads(rolls)})
}

func (h *httpHandler) handleTableDiceHistory(c *gin.Context) {
	tableID, ok := parseUintParam(c, "tableID")
	if !ok {
		return
	}
	rolls, err := h.dice.TableHistory(c.Request.Context(), currentUserID(c), tableID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rolls": toRollPayloads(rolls)})
}

func toRollPayload(record *dice.RollRecord, detail []dice.DieResult) rollPayload {
	individual := make([]dieResultPayload, 0, len(detail))
	for _, die := range detail {
		individual = append(individual, dieResultPayload{
			Rolls: die.Rolls,
			Final: die.Final,
			Type:  string(die.Kind),
		})
	}
	return rollPayload{
		ID:              record.ID,
		Expression:      record.Expression,
		Description:     record.Description,
		Result:          record.Result,
		Modifier:        record.Modifier,
		HasAdvantage:    record.HasAdvantage,
		HasDisadvantage: record.HasDisadvantage,
		IndividualRolls: individual,
		TableID:         record.TableID,
		CreatedAt:       record.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func toRollPayloads(records []dice.RollRecord) []rollPayload {
	payloads := make([]rollPayload, 0, len(records))
	for i := range records {
		detail, err := dice.DecodeRolls(&records[i])
		if err != nil {
			detail = nil
		}
		payloads = append(payloads, toRollPayload(&records[i], detail))
	}
	return payloads
}
