package limits

import (
	"context"
	"errors"
	"fmt"
	"testing"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/multimind-ai/multimind/internal/ai"
	"github.com/multimind-ai/multimind/internal/common"
	"github.com/multimind-ai/multimind/internal/logger"
	"github.com/multimind-ai/multimind/internal/models"
)

type fakeUsageSource struct {
	total   int64
	err     error
	lastIDs []uint64
}

func (f *fakeUsageSource) TotalTokens(ctx context.Context, userIDs []uint64, modelID string) (int64, error) {
	f.lastIDs = append([]uint64(nil), userIDs...)
	return f.total, f.err
}

type fixedTokenizer struct {
	tokens int
	err    error
}

func (f fixedTokenizer) CountTokens(ctx context.Context, model *ai.Model, messages []ai.Message) (int, error) {
	return f.tokens, f.err
}

func openTestDB(t *testing.T, name string) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&models.User{}, &models.Group{}, &models.UserGroup{},
		&Budget{}, &Limit{}, &GroupLimit{}, &ByokCredential{},
	); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func seedGroupLimit(t *testing.T, db *gorm.DB, typ models.GroupType, userIDs []uint64, modelID string, maxTokens int64) uint64 {
	t.Helper()
	g := models.Group{Name: "g", Type: typ}
	if err := db.Create(&g).Error; err != nil {
		t.Fatalf("create group: %v", err)
	}
	for _, uid := range userIDs {
		if err := db.Create(&models.UserGroup{UserID: uid, GroupID: g.ID}).Error; err != nil {
			t.Fatalf("create membership: %v", err)
		}
	}
	l := Limit{ModelID: modelID, MaxTokens: maxTokens}
	if err := db.Create(&l).Error; err != nil {
		t.Fatalf("create limit: %v", err)
	}
	if err := db.Create(&GroupLimit{GroupID: g.ID, LimitID: l.ID}).Error; err != nil {
		t.Fatalf("attach limit: %v", err)
	}
	return g.ID
}

func TestCheckBudget(t *testing.T) {
	db := openTestDB(t, "guard_budget")
	repo := NewRepo(db)
	g := NewGuard(repo, &fakeUsageSource{}, fixedTokenizer{}, logger.NewNop())
	ctx := context.Background()

	// no row configured, no gate
	if err := g.CheckBudget(ctx); err != nil {
		t.Fatalf("expected no gate without a budget row: %v", err)
	}

	if err := repo.CreateBudget(ctx, &Budget{Budget: 100, Usage: 50}); err != nil {
		t.Fatalf("create budget: %v", err)
	}
	if err := g.CheckBudget(ctx); err != nil {
		t.Fatalf("under budget should pass: %v", err)
	}

	if err := repo.AddBudgetUsage(ctx, 60); err != nil {
		t.Fatalf("add usage: %v", err)
	}
	err := g.CheckBudget(ctx)
	de, ok := common.AsDomainError(err)
	if !ok || de.Code != 40201 {
		t.Fatalf("expected budget exceeded, got %v", err)
	}
}

func TestCheckModel_ByokBypass(t *testing.T) {
	db := openTestDB(t, "guard_byok")
	repo := NewRepo(db)
	usage := &fakeUsageSource{total: 1 << 30} // would blow any limit
	g := NewGuard(repo, usage, fixedTokenizer{tokens: 100}, logger.NewNop())
	ctx := context.Background()

	if err := db.Create(&ByokCredential{UserID: 1, Host: "openai", APIKey: "sk-own"}).Error; err != nil {
		t.Fatalf("create byok: %v", err)
	}

	model := &ai.Model{ID: "gpt", Host: "openai"}
	if err := g.CheckModel(ctx, 1, model, nil); err != nil {
		t.Fatalf("byok holder must bypass limits: %v", err)
	}

	key, ok, err := g.ByokKey(ctx, 1, "openai")
	if err != nil || !ok || key != "sk-own" {
		t.Fatalf("byok key lookup: key=%q ok=%v err=%v", key, ok, err)
	}
}

func TestCheckModel_NoLimitNoByok(t *testing.T) {
	db := openTestDB(t, "guard_no_limit")
	repo := NewRepo(db)
	g := NewGuard(repo, &fakeUsageSource{}, fixedTokenizer{}, logger.NewNop())

	model := &ai.Model{ID: "gpt", Host: "openai"}
	err := g.CheckModel(context.Background(), 1, model, nil)
	de, ok := common.AsDomainError(err)
	if !ok || de.Code != 40203 {
		t.Fatalf("expected byok required, got %v", err)
	}
}

func TestCheckModel_LimitExceeded(t *testing.T) {
	db := openTestDB(t, "guard_exceeded")
	repo := NewRepo(db)
	usage := &fakeUsageSource{total: 90}
	g := NewGuard(repo, usage, fixedTokenizer{tokens: 20}, logger.NewNop())
	ctx := context.Background()

	seedGroupLimit(t, db, models.GroupPersonal, []uint64{1}, "gpt", 100)

	model := &ai.Model{ID: "gpt", Host: "openai"}
	err := g.CheckModel(ctx, 1, model, nil)
	de, ok := common.AsDomainError(err)
	if !ok || de.Code != 40202 {
		t.Fatalf("expected limits exceeded (90+20 >= 100), got %v", err)
	}

	// with less pending the same caller fits
	g2 := NewGuard(repo, usage, fixedTokenizer{tokens: 5}, logger.NewNop())
	if err := g2.CheckModel(ctx, 1, model, nil); err != nil {
		t.Fatalf("90+5 < 100 should pass: %v", err)
	}
}

func TestCheckModel_TeamPoolsMembers(t *testing.T) {
	db := openTestDB(t, "guard_team")
	repo := NewRepo(db)
	usage := &fakeUsageSource{total: 10}
	g := NewGuard(repo, usage, fixedTokenizer{tokens: 1}, logger.NewNop())
	ctx := context.Background()

	seedGroupLimit(t, db, models.GroupTeam, []uint64{1, 2, 3}, "gpt", 1000)

	model := &ai.Model{ID: "gpt", Host: "openai"}
	if err := g.CheckModel(ctx, 1, model, nil); err != nil {
		t.Fatalf("check model: %v", err)
	}
	if len(usage.lastIDs) != 3 {
		t.Fatalf("team limit must pool usage across members, queried %v", usage.lastIDs)
	}
}

func TestCheckModel_TokenizerFailureFailsOpen(t *testing.T) {
	db := openTestDB(t, "guard_tokenizer_down")
	repo := NewRepo(db)
	usage := &fakeUsageSource{total: 50}
	g := NewGuard(repo, usage, fixedTokenizer{err: errors.New("encoder offline")}, logger.NewNop())
	ctx := context.Background()

	seedGroupLimit(t, db, models.GroupPersonal, []uint64{1}, "gpt", 100)

	// pending falls back to 0; stored usage alone is under the ceiling
	model := &ai.Model{ID: "gpt", Host: "openai"}
	if err := g.CheckModel(ctx, 1, model, nil); err != nil {
		t.Fatalf("tokenizer failure must gate on stored usage only: %v", err)
	}
}

func TestCreateByok_Replaces(t *testing.T) {
	db := openTestDB(t, "guard_byok_replace")
	repo := NewRepo(db)
	ctx := context.Background()

	if err := repo.CreateByok(ctx, &ByokCredential{UserID: 1, Host: "openai", APIKey: "first"}); err != nil {
		t.Fatalf("create byok: %v", err)
	}
	if err := repo.CreateByok(ctx, &ByokCredential{UserID: 1, Host: "openai", APIKey: "second"}); err != nil {
		t.Fatalf("replace byok: %v", err)
	}
	key, ok, err := repo.ByokKey(ctx, 1, "openai")
	if err != nil || !ok || key != "second" {
		t.Fatalf("expected replaced key, got key=%q ok=%v err=%v", key, ok, err)
	}

	if err := repo.DeleteByok(ctx, 1, "openai"); err != nil {
		t.Fatalf("delete byok: %v", err)
	}
	if _, ok, _ := repo.ByokKey(ctx, 1, "openai"); ok {
		t.Fatalf("key should be gone")
	}
}
