package integration_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/questlog/questlog/internal/auth"
	"github.com/questlog/questlog/internal/database"
	"github.com/questlog/questlog/internal/dice"
	"github.com/questlog/questlog/internal/initiative"
	"github.com/questlog/questlog/internal/notes"
	"github.com/questlog/questlog/internal/server"
	"github.com/questlog/questlog/internal/tables"
	"github.com/questlog/questlog/internal/users"
)

const jsonContentType = "application/json"

type testAPI struct {
	server *httptest.Server
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.OpenSQLite(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()), zap.NewNop())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	tokens := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte("integration-secret"),
		TokenTTL:      time.Hour,
	})
	usersService, err := users.NewService(users.ServiceConfig{Database: db, Tokens: tokens})
	if err != nil {
		t.Fatalf("failed to build users service: %v", err)
	}
	tablesService, err := tables.NewService(tables.ServiceConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to build tables service: %v", err)
	}
	notesService, err := notes.NewService(notes.ServiceConfig{Database: db, Tables: tablesService})
	if err != nil {
		t.Fatalf("failed to build notes service: %v", err)
	}
	diceService, err := dice.NewService(dice.ServiceConfig{Database: db, Tables: tablesService})
	if err != nil {
		t.Fatalf("failed to build dice service: %v", err)
	}
	initiativeService, err := initiative.NewService(initiative.ServiceConfig{Database: db, Tables: tablesService})
	if err != nil {
		t.Fatalf("failed to build initiative service: %v", err)
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Tokens:     tokens,
		Users:      usersService,
		Tables:     tablesService,
		Notes:      notesService,
		Dice:       diceService,
		Initiative: initiativeService,
		Database:   db,
		Logger:     zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("failed to build handler: %v", err)
	}

	testServer := httptest.NewServer(handler)
	t.Cleanup(testServer.Close)
	return &testAPI{server: testServer}
}

func (api *testAPI) do(t *testing.T, method, path, token string, body any) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	}
	request, err := http.NewRequest(method, api.server.URL+path, reader)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	if body != nil {
		request.Header.Set("Content-Type", jsonContentType)
	}
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}

	response, err := api.server.Client().Do(request)
	if err != nil {
		t.Fatalf("request %s %s failed: %v", method, path, err)
	}
	defer response.Body.Close()

	raw, err := io.ReadAll(response.Body)
	if err != nil {
		t.Fatalf("failed to read response: %v", err)
	}
	decoded := map[string]any{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &decoded); err != nil {
			t.Fatalf("failed to decode response %s: %v", raw, err)
		}
	}
	return response.StatusCode, decoded
}

func (api *testAPI) signup(t *testing.T, username string) (uint, string) {
	t.Helper()
	status, body := api.do(t, http.MethodPost, "/auth/signup", "", map[string]any{
		"username": username,
		"email":    username + "@example.com",
		"password": "secret123",
	})
	if status != http.StatusCreated {
		t.Fatalf("signup %q status = %d, body %v", username, status, body)
	}
	user := body["user"].(map[string]any)
	return uint(user["id"].(float64)), body["access_token"].(string)
}

func TestFullCampaignFlow(t *testing.T) {
	api := newTestAPI(t)

	status, body := api.do(t, http.MethodGet, "/healthz", "", nil)
	if status != http.StatusOK || body["database"] != "connected" {
		t.Fatalf("healthz status = %d, body %v", status, body)
	}

	_, dmToken := api.signup(t, "dungeon_master")
	playerID, playerToken := api.signup(t, "player_one")

	// Protected routes reject missing credentials.
	status, _ = api.do(t, http.MethodGet, "/tables", "", nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("unauthenticated list status = %d", status)
	}

	// The DM creates a table and the player joins by share code.
	status, body = api.do(t, http.MethodPost, "/tables", dmToken, map[string]any{
		"name":        "Tomb of Annihilation",
		"description": "jungle crawl",
	})
	if status != http.StatusCreated {
		t.Fatalf("create table status = %d, body %v", status, body)
	}
	table := body["table"].(map[string]any)
	tableID := uint(table["id"].(float64))
	code := table["code"].(string)
	if len(code) != 6 {
		t.Fatalf("share code = %q", code)
	}

	status, body = api.do(t, http.MethodPost, "/tables/join", playerToken, map[string]any{"code": strings.ToLower(code)})
	if status != http.StatusOK {
		t.Fatalf("join status = %d, body %v", status, body)
	}
	membership := body["membership"].(map[string]any)
	if membership["role"] != "player" {
		t.Fatalf("joined role = %v", membership["role"])
	}
	playerMemberID := uint(membership["id"].(float64))

	status, body = api.do(t, http.MethodPost, "/tables/join", playerToken, map[string]any{"code": code})
	if status != http.StatusConflict {
		t.Fatalf("second join status = %d, body %v", status, body)
	}

	// The table detail lists both members and marks the owner.
	status, body = api.do(t, http.MethodGet, fmt.Sprintf("/tables/%d", tableID), dmToken, nil)
	if status != http.StatusOK {
		t.Fatalf("table detail status = %d, body %v", status, body)
	}
	if body["is_owner"] != true {
		t.Fatal("dm should be flagged as owner")
	}
	if members := body["members"].([]any); len(members) != 2 {
		t.Fatalf("member count = %d, want 2", len(members))
	}

	// Notes: markdown is rendered, raw HTML is sanitized away.
	status, body = api.do(t, http.MethodPost, fmt.Sprintf("/tables/%d/notes", tableID), dmToken, map[string]any{
		"title":   "Port Nyanzaru",
		"content": "Meet **Wakanga** at the docks.\n<script>alert(1)</script>",
	})
	if status != http.StatusCreated {
		t.Fatalf("create note status = %d, body %v", status, body)
	}
	noteID := uint(body["note"].(map[string]any)["id"].(float64))

	status, body = api.do(t, http.MethodGet, fmt.Sprintf("/tables/%d/notes/%d", tableID, noteID), playerToken, nil)
	if status != http.StatusOK {
		t.Fatalf("get note status = %d, body %v", status, body)
	}
	rendered := body["rendered"].(string)
	if !strings.Contains(rendered, "<strong>Wakanga</strong>") {
		t.Fatalf("markdown not rendered: %q", rendered)
	}
	if strings.Contains(rendered, "<script") {
		t.Fatalf("script not sanitized: %q", rendered)
	}

	// An explicit deny grant hides the note from the player.
	status, body = api.do(t, http.MethodPut, fmt.Sprintf("/tables/%d/notes/%d/permissions", tableID, noteID), dmToken, map[string]any{
		"user_id":  playerID,
		"can_view": false,
		"can_edit": false,
	})
	if status != http.StatusOK {
		t.Fatalf("set permission status = %d, body %v", status, body)
	}
	status, _ = api.do(t, http.MethodGet, fmt.Sprintf("/tables/%d/notes/%d", tableID, noteID), playerToken, nil)
	if status != http.StatusForbidden {
		t.Fatalf("denied note read status = %d", status)
	}
	status, body = api.do(t, http.MethodGet, fmt.Sprintf("/tables/%d/notes", tableID), playerToken, nil)
	if status != http.StatusOK {
		t.Fatalf("list notes status = %d", status)
	}
	if visible := body["notes"].([]any); len(visible) != 0 {
		t.Fatalf("player should see no notes, got %d", len(visible))
	}

	// Dice: table rolls require membership and land in the shared history.
	status, body = api.do(t, http.MethodPost, "/dice/roll", playerToken, map[string]any{
		"expression": "2d6+3",
		"table_id":   tableID,
		"advantage":  true,
	})
	if status != http.StatusCreated {
		t.Fatalf("roll status = %d, body %v", status, body)
	}
	roll := body["roll"].(map[string]any)
	if roll["has_advantage"] != true {
		t.Fatalf("roll flags = %v", roll)
	}
	if individual := roll["individual_rolls"].([]any); len(individual) != 2 {
		t.Fatalf("individual rolls = %d, want 2", len(individual))
	}

	status, body = api.do(t, http.MethodGet, fmt.Sprintf("/dice/history/table/%d", tableID), dmToken, nil)
	if status != http.StatusOK {
		t.Fatalf("table history status = %d, body %v", status, body)
	}
	if rolls := body["rolls"].([]any); len(rolls) != 1 {
		t.Fatalf("table history length = %d, want 1", len(rolls))
	}

	status, _ = api.do(t, http.MethodPost, "/dice/quick/d20", playerToken, nil)
	if status != http.StatusCreated {
		t.Fatalf("quick roll status = %d", status)
	}
	status, body = api.do(t, http.MethodGet, "/dice/history", playerToken, nil)
	if status != http.StatusOK {
		t.Fatalf("history status = %d", status)
	}
	if rolls := body["rolls"].([]any); len(rolls) != 1 {
		t.Fatalf("personal history length = %d, want only the quick roll", len(rolls))
	}

	// Initiative: DM only, sorted order, turn cycling.
	status, _ = api.do(t, http.MethodPost, "/initiative/sessions", playerToken, map[string]any{"table_id": tableID})
	if status != http.StatusForbidden {
		t.Fatalf("player start session status = %d", status)
	}

	status, body = api.do(t, http.MethodPost, "/initiative/sessions", dmToken, map[string]any{
		"table_id": tableID,
		"name":     "Dock ambush",
	})
	if status != http.StatusCreated {
		t.Fatalf("start session status = %d, body %v", status, body)
	}
	sessionID := uint(body["session"].(map[string]any)["id"].(float64))

	for _, combatant := range []map[string]any{
		{"name": "Thia", "initiative": 17, "user_id": playerID},
		{"name": "Pirate", "initiative": 9, "is_npc": true},
		{"name": "Crocodile", "initiative": 21, "is_npc": true},
	} {
		status, body = api.do(t, http.MethodPost, fmt.Sprintf("/initiative/sessions/%d/entries", sessionID), dmToken, combatant)
		if status != http.StatusCreated {
			t.Fatalf("add entry status = %d, body %v", status, body)
		}
	}

	status, body = api.do(t, http.MethodGet, fmt.Sprintf("/initiative/sessions/%d/entries", sessionID), dmToken, nil)
	if status != http.StatusOK {
		t.Fatalf("sorted entries status = %d", status)
	}
	entries := body["entries"].([]any)
	first := entries[0].(map[string]any)
	if first["name"] != "Crocodile" {
		t.Fatalf("first in order = %v, want Crocodile", first["name"])
	}

	status, body = api.do(t, http.MethodPost, fmt.Sprintf("/initiative/sessions/%d/advance", sessionID), dmToken, nil)
	if status != http.StatusOK {
		t.Fatalf("advance status = %d, body %v", status, body)
	}
	current := body["current_character"].(map[string]any)
	if current["name"] != "Thia" {
		t.Fatalf("current after advance = %v, want Thia", current["name"])
	}

	status, _ = api.do(t, http.MethodPost, fmt.Sprintf("/initiative/sessions/%d/end", sessionID), dmToken, nil)
	if status != http.StatusOK {
		t.Fatalf("end session status = %d", status)
	}
	status, _ = api.do(t, http.MethodGet, fmt.Sprintf("/initiative/tables/%d/active", tableID), dmToken, nil)
	if status != http.StatusNotFound {
		t.Fatalf("active session after end status = %d", status)
	}

	// Membership management: toggling note access and kicking are owner-only.
	status, body = api.do(t, http.MethodPost, fmt.Sprintf("/tables/%d/members/%d/toggle-notes", tableID, playerMemberID), dmToken, nil)
	if status != http.StatusOK {
		t.Fatalf("toggle status = %d, body %v", status, body)
	}
	if body["membership"].(map[string]any)["can_view_notes"] != false {
		t.Fatal("toggle should revoke note access")
	}

	status, _ = api.do(t, http.MethodDelete, fmt.Sprintf("/tables/%d/members/%d", tableID, playerMemberID), playerToken, nil)
	if status != http.StatusForbidden {
		t.Fatalf("player kick status = %d", status)
	}

	// Deleting the table removes everything beneath it.
	status, _ = api.do(t, http.MethodDelete, fmt.Sprintf("/tables/%d", tableID), dmToken, nil)
	if status != http.StatusOK {
		t.Fatalf("delete table status = %d", status)
	}
	status, _ = api.do(t, http.MethodGet, fmt.Sprintf("/tables/%d", tableID), dmToken, nil)
	if status != http.StatusNotFound {
		t.Fatalf("deleted table detail status = %d", status)
	}
	status, _ = api.do(t, http.MethodGet, fmt.Sprintf("/dice/history/table/%d", tableID), dmToken, nil)
	if status != http.StatusForbidden {
		t.Fatalf("history on deleted table status = %d", status)
	}
}

func TestSignupValidationAndDuplicates(t *testing.T) {
	api := newTestAPI(t)

	status, _ := api.do(t, http.MethodPost, "/auth/signup", "", map[string]any{
		"username": "ab",
		"email":    "ab@example.com",
		"password": "secret123",
	})
	if status != http.StatusBadRequest {
		t.Fatalf("short username status = %d", status)
	}

	status, _ = api.do(t, http.MethodPost, "/auth/signup", "", map[string]any{
		"username":         "carol",
		"email":            "carol@example.com",
		"password":         "secret123",
		"confirm_password": "different",
	})
	if status != http.StatusBadRequest {
		t.Fatalf("mismatched confirmation status = %d", status)
	}

	api.signup(t, "carol")
	status, _ = api.do(t, http.MethodPost, "/auth/signup", "", map[string]any{
		"username": "carol",
		"email":    "other@example.com",
		"password": "secret123",
	})
	if status != http.StatusConflict {
		t.Fatalf("duplicate signup status = %d", status)
	}

	status, body := api.do(t, http.MethodPost, "/auth/login", "", map[string]any{
		"username": "carol",
		"password": "wrong",
	})
	if status != http.StatusForbidden {
		t.Fatalf("bad login status = %d, body %v", status, body)
	}
}
