package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/questlog/questlog/internal/apperrors"
	"github.com/questlog/questlog/internal/users"
)

type signupRequestPayload struct {
	Username        string `json:"username"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

type loginRequestPayload struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type userPayload struct {
	ID        uint   `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	CreatedAt string `json:"created_at"`
}

type authResponsePayload struct {
	User        userPayload `json:"user"`
	AccessToken string      `json:"access_token"`
	ExpiresIn   int64       `json:"expires_in"`
	TokenType   string      `json:"token_type"`
}

func (h *httpHandler) handleSignup(c *gin.Context) {
	var request signupRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		respondError(c, h.logger, apperrors.Validation("invalid request body"))
		return
	}
	if request.ConfirmPassword != "" && request.Password != request.ConfirmPassword {
		respondError(c, h.logger, apperrors.Validation("passwords do not match"))
		return
	}

	user, err := h.users.Register(c.Request.Context(), users.RegisterInput{
		Username: request.Username,
		Email:    request.Email,
		Password: request.Password,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	_, token, expiresIn, err := h.users.Login(c.Request.Context(), request.Username, request.Password)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, authResponsePayload{
		User:        toUserPayload(user),
		AccessToken: token,
		ExpiresIn:   expiresIn,
		TokenType:   "Bearer",
	})
}

func (h *httpHandler) handleLogin(c *gin.Context) {
	var request loginRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		respondError(c, h.logger, apperrors.Validation("invalid request body"))
		return
	}

	user, token, expiresIn, err := h.users.Login(c.Request.Context(), request.Username, request.Password)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, authResponsePayload{
		User:        toUserPayload(user),
		AccessToken: token,
		ExpiresIn:   expiresIn,
		TokenType:   "Bearer",
	})
}

func toUserPayload(user *users.User) userPayload {
	return userPayload{
		ID:        user.ID,
		Username:  user.Username,
		Email:     user.Email,
		CreatedAt: user.CreatedAt.UTC().Format(time.RFC3339),
	}
}
