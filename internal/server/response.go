package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/questlog/questlog/internal/apperrors"
)

type errorBody struct {
	Kind    apperrors.Kind `json:"kind"`
	Message string         `json:"message"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

// respondError maps the service error taxonomy onto HTTP statuses. Store
// errors are logged with their cause but rendered generically; raw store text
// never reaches clients.
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	kind := apperrors.KindOf(err)

	status := http.StatusInternalServerError
	message := "something went wrong"

	var appErr *apperrors.Error
	if errors.As(err, &appErr) && kind != apperrors.KindStore {
		message = appErr.Message()
	}

	switch kind {
	case apperrors.KindValidation:
		status = http.StatusBadRequest
	case apperrors.KindNotFound:
		status = http.StatusNotFound
	case apperrors.KindForbidden:
		status = http.StatusForbidden
	case apperrors.KindConflict:
		status = http.StatusConflict
	case apperrors.KindStore:
		logger.Error("request failed",
			zap.Error(err),
			zap.String("request_id", requestID(c)),
			zap.String("path", c.FullPath()))
	}

	c.JSON(status, errorResponse{Error: errorBody{Kind: kind, Message: message}})
}

func parseUintParam(c *gin.Context, name string) (uint, bool) {
	raw := c.Param(name)
	value, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || value == 0 {
		respondError(c, zap.NewNop(), apperrors.Validation("invalid %s", name))
		return 0, false
	}
	return uint(value), true
}
