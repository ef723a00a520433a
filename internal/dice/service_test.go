package dice

import (
	"context"
	"fmt"
	"math/rand"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/questlog/questlog/internal/apperrors"
	"github.com/questlog/questlog/internal/tables"
	"github.com/questlog/questlog/internal/users"
)

type diceFixture struct {
	service *Service
	tables  *tables.Service
	db      *gorm.DB
	roller  *users.User
}

func newDiceFixture(t *testing.T) *diceFixture {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&users.User{}, &tables.Table{}, &tables.Membership{}, &RollRecord{}); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}

	tableService, err := tables.NewService(tables.ServiceConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to create table service: %v", err)
	}
	diceService, err := NewService(ServiceConfig{
		Database: db,
		Tables:   tableService,
		Rand:     rand.New(rand.NewSource(1)),
	})
	if err != nil {
		t.Fatalf("failed to create dice service: %v", err)
	}

	roller := users.User{Username: "roller", Email: "roller@example.com", PasswordHash: "x"}
	if err := db.Create(&roller).Error; err != nil {
		t.Fatalf("failed to create user: %v", err)
	}

	return &diceFixture{service: diceService, tables: tableService, db: db, roller: &roller}
}

func expectKind(t *testing.T, err error, want apperrors.Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", want)
	}
	if got := apperrors.KindOf(err); got != want {
		t.Fatalf("error kind = %s, want %s (error: %v)", got, want, err)
	}
}

func TestRollExpressionPersistsAuditRecord(t *testing.T) {
	fx := newDiceFixture(t)
	ctx := context.Background()

	record, result, err := fx.service.RollExpression(ctx, fx.roller.ID, RollInput{
		Expression:  " 2D6 + 3 ",
		Description: "  attack roll  ",
	})
	if err != nil {
		t.Fatalf("RollExpression returned error: %v", err)
	}
	if record.Expression != "2D6 + 3" {
		t.Fatalf("expression stored as %q", record.Expression)
	}
	if record.Description != "attack roll" {
		t.Fatalf("description stored as %q", record.Description)
	}
	if record.Modifier != 3 {
		t.Fatalf("modifier = %d", record.Modifier)
	}
	if record.Result != result.Total {
		t.Fatalf("record total %d != result total %d", record.Result, result.Total)
	}
	if record.TableID != nil {
		t.Fatalf("table-less roll stored table id %v", record.TableID)
	}

	decoded, err := DecodeRolls(record)
	if err != nil {
		t.Fatalf("DecodeRolls returned error: %v", err)
	}
	if len(decoded) != 2 {
		t.Fatalf("decoded %d dice, want 2", len(decoded))
	}
	for i, die := range decoded {
		if die.Final != result.Dice[i].Final || die.Kind != result.Dice[i].Kind {
			t.Fatalf("decoded die %d = %+v, want %+v", i, die, result.Dice[i])
		}
	}
}

func TestRollExpressionValidation(t *testing.T) {
	fx := newDiceFixture(t)
	ctx := context.Background()

	for _, expression := range []string{"", "nonsense", "0d6", "2d7", "21d6"} {
		_, _, err := fx.service.RollExpression(ctx, fx.roller.ID, RollInput{Expression: expression})
		expectKind(t, err, apperrors.KindValidation)
	}

	var count int64
	if err := fx.db.Model(&RollRecord{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 0 {
		t.Fatalf("rejected rolls must not be persisted, found %d", count)
	}
}

func TestRollExpressionRequiresTableMembership(t *testing.T) {
	fx := newDiceFixture(t)
	ctx := context.Background()

	owner := users.User{Username: "owner", Email: "owner@example.com", PasswordHash: "x"}
	if err := fx.db.Create(&owner).Error; err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	table, err := fx.tables.Create(ctx, owner.ID, "Roll table", "")
	if err != nil {
		t.Fatalf("Create table returned error: %v", err)
	}

	_, _, err = fx.service.RollExpression(ctx, fx.roller.ID, RollInput{
		Expression: "1d20",
		TableID:    &table.ID,
	})
	expectKind(t, err, apperrors.KindForbidden)

	if _, _, err := fx.tables.Join(ctx, fx.roller.ID, table.Code); err != nil {
		t.Fatalf("Join returned error: %v", err)
	}
	record, _, err := fx.service.RollExpression(ctx, fx.roller.ID, RollInput{
		Expression: "1d20",
		TableID:    &table.ID,
	})
	if err != nil {
		t.Fatalf("RollExpression returned error: %v", err)
	}
	if record.TableID == nil || *record.TableID != table.ID {
		t.Fatalf("table roll stored table id %v", record.TableID)
	}
}

func TestRollExpressionRecordsAdvantageFlags(t *testing.T) {
	fx := newDiceFixture(t)
	ctx := context.Background()

	record, result, err := fx.service.RollExpression(ctx, fx.roller.ID, RollInput{
		Expression: "1d20",
		Advantage:  true,
	})
	if err != nil {
		t.Fatalf("RollExpression returned error: %v", err)
	}
	if !record.HasAdvantage || record.HasDisadvantage {
		t.Fatalf("flags = adv:%v dis:%v", record.HasAdvantage, record.HasDisadvantage)
	}
	if result.Dice[0].Kind != KindAdvantage {
		t.Fatalf("die kind = %q", result.Dice[0].Kind)
	}
}

func TestQuickRoll(t *testing.T) {
	fx := newDiceFixture(t)
	ctx := context.Background()

	record, result, err := fx.service.QuickRoll(ctx, fx.roller.ID, " D20 ", nil)
	if err != nil {
		t.Fatalf("QuickRoll returned error: %v", err)
	}
	if record.Expression != "1d20" {
		t.Fatalf("expression = %q", record.Expression)
	}
	if record.Description != "Quick d20 roll" {
		t.Fatalf("description = %q", record.Description)
	}
	if result.Total < 1 || result.Total > 20 {
		t.Fatalf("total %d outside d20 range", result.Total)
	}

	_, _, err = fx.service.QuickRoll(ctx, fx.roller.ID, "d7", nil)
	expectKind(t, err, apperrors.KindValidation)
}

func TestHistorySeparatesPersonalAndTableRolls(t *testing.T) {
	fx := newDiceFixture(t)
	ctx := context.Background()

	table, err := fx.tables.Create(ctx, fx.roller.ID, "Roll table", "")
	if err != nil {
		t.Fatalf("Create table returned error: %v", err)
	}

	if _, _, err := fx.service.RollExpression(ctx, fx.roller.ID, RollInput{Expression: "1d6"}); err != nil {
		t.Fatalf("RollExpression returned error: %v", err)
	}
	if _, _, err := fx.service.RollExpression(ctx, fx.roller.ID, RollInput{Expression: "1d8", TableID: &table.ID}); err != nil {
		t.Fatalf("RollExpression returned error: %v", err)
	}

	personal, err := fx.service.History(ctx, fx.roller.ID)
	if err != nil {
		t.Fatalf("History returned error: %v", err)
	}
	if len(personal) != 1 || personal[0].Expression != "1d6" {
		t.Fatalf("personal history = %+v, want only the table-less roll", personal)
	}

	tableRolls, err := fx.service.TableHistory(ctx, fx.roller.ID, table.ID)
	if err != nil {
		t.Fatalf("TableHistory returned error: %v", err)
	}
	if len(tableRolls) != 1 || tableRolls[0].Expression != "1d8" {
		t.Fatalf("table history = %+v, want only the table roll", tableRolls)
	}
}

func TestTableHistoryRequiresMembership(t *testing.T) {
	fx := newDiceFixture(t)
	ctx := context.Background()

	owner := users.User{Username: "owner", Email: "owner@example.com", PasswordHash: "x"}
	if err := fx.db.Create(&owner).Error; err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	table, err := fx.tables.Create(ctx, owner.ID, "Private table", "")
	if err != nil {
		t.Fatalf("Create table returned error: %v", err)
	}

	_, err = fx.service.TableHistory(ctx, fx.roller.ID, table.ID)
	expectKind(t, err, apperrors.KindForbidden)
}

func TestHistoryLimit(t *testing.T) {
	fx := newDiceFixture(t)
	ctx := context.Background()

	for i := 0; i < historyLimit+10; i++ {
		if _, _, err := fx.service.RollExpression(ctx, fx.roller.ID, RollInput{Expression: "1d6"}); err != nil {
			t.Fatalf("RollExpression returned error: %v", err)
		}
	}

	personal, err := fx.service.History(ctx, fx.roller.ID)
	if err != nil {
		t.Fatalf("History returned error: %v", err)
	}
	if len(personal) != historyLimit {
		t.Fatalf("history length = %d, want %d", len(personal), historyLimit)
	}
}
