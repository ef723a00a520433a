package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/questlog/questlog/internal/dice"
	"github.com/questlog/questlog/internal/initiative"
	"github.com/questlog/questlog/internal/notes"
	"github.com/questlog/questlog/internal/tables"
	"github.com/questlog/questlog/internal/users"
)

const (
	userIDContextKey    = "questlog_user_id"
	requestIDContextKey = "questlog_request_id"
	requestIDHeader     = "X-Request-ID"
)

var (
	errMissingTokenValidator    = errors.New("token validator dependency required")
	errMissingUsersService      = errors.New("users service dependency required")
	errMissingTablesService     = errors.New("tables service dependency required")
	errMissingNotesService      = errors.New("notes service dependency required")
	errMissingDiceService       = errors.New("dice service dependency required")
	errMissingInitiativeService = errors.New("initiative service dependency required")
	errInvalidAuthorization     = errors.New("authorization header missing or invalid")
)

// TokenValidator checks a bearer token and returns the authenticated user id.
type TokenValidator interface {
	ValidateToken(token string) (uint, error)
}

// Dependencies wires the services consumed by the HTTP layer.
type Dependencies struct {
	Tokens     TokenValidator
	Users      *users.Service
	Tables     *tables.Service
	Notes      *notes.Service
	Dice       *dice.Service
	Initiative *initiative.Service
	Database   *gorm.DB
	Logger     *zap.Logger
}

// NewHTTPHandler assembles the gin router for the full API surface.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Tokens == nil {
		return nil, errMissingTokenValidator
	}
	if deps.Users == nil {
		return nil, errMissingUsersService
	}
	if deps.Tables == nil {
		return nil, errMissingTablesService
	}
	if deps.Notes == nil {
		return nil, errMissingNotesService
	}
	if deps.Dice == nil {
		return nil, errMissingDiceService
	}
	if deps.Initiative == nil {
		return nil, errMissingInitiativeService
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestIDMiddleware())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		tokens:     deps.Tokens,
		users:      deps.Users,
		tables:     deps.Tables,
		notes:      deps.Notes,
		dice:       deps.Dice,
		initiative: deps.Initiative,
		db:         deps.Database,
		logger:     logger,
	}

	router.GET("/healthz", handler.handleHealth)
	router.POST("/auth/signup", handler.handleSignup)
	router.POST("/auth/login", handler.handleLogin)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)

	protected.GET("/tables", handler.handleListTables)
	protected.POST("/tables", handler.handleCreateTable)
	protected.POST("/tables/join", handler.handleJoinTable)
	protected.GET("/tables/:tableID", handler.handleTableDetail)
	protected.DELETE("/tables/:tableID", handler.handleDeleteTable)
	protected.POST("/tables/:tableID/leave", handler.handleLeaveTable)
	protected.POST("/tables/:tableID/members/:memberID/toggle-notes", handler.handleToggleNotes)
	protected.DELETE("/tables/:tableID/members/:memberID", handler.handleKickMember)

	protected.GET("/tables/:tableID/notes", handler.handleListNotes)
	protected.POST("/tables/:tableID/notes", handler.handleCreateNote)
	protected.GET("/tables/:tableID/notes/:noteID", handler.handleGetNote)
	protected.PUT("/tables/:tableID/notes/:noteID", handler.handleUpdateNote)
	protected.DELETE("/tables/:tableID/notes/:noteID", handler.handleDeleteNote)
	protected.POST("/tables/:tableID/notes/:noteID/duplicate", handler.handleDuplicateNote)
	protected.GET("/tables/:tableID/notes/:noteID/permissions", handler.handleListNotePermissions)
	protected.PUT("/tables/:tableID/notes/:noteID/permissions", handler.handleSetNotePermission)

	protected.POST("/dice/roll", handler.handleRollDice)
	protected.POST("/dice/quick/:dieType", handler.handleQuickRoll)
	protected.GET("/dice/history", handler.handleDiceHistory)
	protected.GET("/dice/history/table/:tableID", handler.handleTableDiceHistory)

	protected.POST("/initiative/sessions", handler.handleStartSession)
	protected.GET("/initiative/tables/:tableID/active", handler.handleActiveSession)
	protected.POST("/initiative/sessions/:sessionID/entries", handler.handleAddEntry)
	protected.GET("/initiative/sessions/:sessionID/entries", handler.handleSortedEntries)
	protected.POST("/initiative/sessions/:sessionID/advance", handler.handleAdvanceTurn)
	protected.POST("/initiative/sessions/:sessionID/end", handler.handleEndSession)
	protected.PATCH("/initiative/entries/:entryID", handler.handleUpdateEntry)
	protected.DELETE("/initiative/entries/:entryID", handler.handleRemoveEntry)

	return router, nil
}

type httpHandler struct {
	tokens     TokenValidator
	users      *users.Service
	tables     *tables.Service
	notes      *notes.Service
	dice       *dice.Service
	initiative *initiative.Service
	db         *gorm.DB
	logger     *zap.Logger
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	status := gin.H{"status": "ok"}
	if h.db != nil {
		if sqlDB, err := h.db.DB(); err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error", "database": "disconnected"})
			return
		}
		status["database"] = "connected"
	}
	c.JSON(http.StatusOK, status)
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	userID, err := h.tokens.ValidateToken(token)
	if err != nil {
		h.logger.Warn("token validation failed",
			zap.Error(err), zap.String("request_id", requestID(c)))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(userIDContextKey, userID)
	c.Next()
}

func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDContextKey, id)
		c.Writer.Header().Set(requestIDHeader, id)
		c.Next()
	}
}

func requestID(c *gin.Context) string {
	return c.GetString(requestIDContextKey)
}

func currentUserID(c *gin.Context) uint {
	value, ok := c.Get(userIDContextKey)
	if !ok {
		return 0
	}
	userID, ok := value.(uint)
	if !ok {
		return 0
	}
	return userID
}
