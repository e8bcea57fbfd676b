package usage

import (
	"context"
	"fmt"
	"testing"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/multimind-ai/multimind/internal/ai"
	"github.com/multimind-ai/multimind/internal/logger"
)

func openTestDB(t *testing.T, name string) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Record{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func TestAdd_UpsertAccumulates(t *testing.T) {
	db := openTestDB(t, "usage_upsert")
	repo := NewRepo(db)
	ctx := context.Background()

	if err := repo.Add(ctx, 1, "gpt", ai.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}); err != nil {
		t.Fatalf("first add: %v", err)
	}
	if err := repo.Add(ctx, 1, "gpt", ai.Usage{PromptTokens: 7, CompletionTokens: 3, TotalTokens: 10}); err != nil {
		t.Fatalf("second add: %v", err)
	}

	rec, err := repo.Get(ctx, 1, "gpt")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.PromptTokens != 17 || rec.CompletionTokens != 8 || rec.TotalTokens != 25 {
		t.Fatalf("counts not accumulated: %+v", rec)
	}

	// one row per (user, model)
	var n int64
	if err := db.Model(&Record{}).Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected a single accumulator row, got %d", n)
	}
}

func TestTotalTokens_SumsAcrossUsers(t *testing.T) {
	db := openTestDB(t, "usage_totals")
	repo := NewRepo(db)
	ctx := context.Background()

	adds := []struct {
		user  uint64
		model string
		total int
	}{
		{1, "gpt", 100},
		{2, "gpt", 200},
		{3, "gpt", 400},
		{1, "other", 9999},
	}
	for _, a := range adds {
		if err := repo.Add(ctx, a.user, a.model, ai.Usage{TotalTokens: a.total}); err != nil {
			t.Fatalf("add: %v", err)
		}
	}

	total, err := repo.TotalTokens(ctx, []uint64{1, 2}, "gpt")
	if err != nil {
		t.Fatalf("total: %v", err)
	}
	if total != 300 {
		t.Fatalf("expected 300, got %d", total)
	}

	total, err = repo.TotalTokens(ctx, nil, "gpt")
	if err != nil || total != 0 {
		t.Fatalf("empty user set should sum to zero, got %d err=%v", total, err)
	}

	total, err = repo.TotalTokens(ctx, []uint64{5}, "gpt")
	if err != nil || total != 0 {
		t.Fatalf("unknown user should sum to zero, got %d err=%v", total, err)
	}
}

func TestTracker_TracksWithoutPublisher(t *testing.T) {
	db := openTestDB(t, "usage_tracker")
	repo := NewRepo(db)
	tracker := NewTracker(repo, nil, logger.NewNop())
	ctx := context.Background()

	if err := tracker.Track(ctx, 1, "gpt", ai.Usage{PromptTokens: 1, CompletionTokens: 2, TotalTokens: 3}); err != nil {
		t.Fatalf("track: %v", err)
	}
	rec, err := repo.Get(ctx, 1, "gpt")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.TotalTokens != 3 {
		t.Fatalf("unexpected total: %d", rec.TotalTokens)
	}
}

type failingPublisher struct{ called bool }

func (p *failingPublisher) PublishUsage(ctx context.Context, userID uint64, modelID string, u ai.Usage) error {
	p.called = true
	return fmt.Errorf("broker down")
}

func TestTracker_PublisherFailureIsBestEffort(t *testing.T) {
	db := openTestDB(t, "usage_tracker_pub")
	repo := NewRepo(db)
	pub := &failingPublisher{}
	tracker := NewTracker(repo, pub, logger.NewNop())
	ctx := context.Background()

	if err := tracker.Track(ctx, 1, "gpt", ai.Usage{TotalTokens: 3}); err != nil {
		t.Fatalf("publish failure must not fail tracking: %v", err)
	}
	if !pub.called {
		t.Fatalf("publisher was not invoked")
	}
	rec, err := repo.Get(ctx, 1, "gpt")
	if err != nil || rec.TotalTokens != 3 {
		t.Fatalf("local row missing: %+v err=%v", rec, err)
	}
}
