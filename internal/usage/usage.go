package usage

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/multimind-ai/multimind/internal/ai"
)

// Record accumulates token counts per (user, model). Created lazily on
// first use, then incremented, never replaced.
type Record struct {
	ID               uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID           uint64    `gorm:"not null;index:idx_usage_user_model,unique,priority:1" json:"user_id"`
	ModelID          string    `gorm:"type:varchar(64);not null;index:idx_usage_user_model,unique,priority:2" json:"model_id"`
	PromptTokens     int64     `gorm:"not null;default:0" json:"prompt_tokens"`
	CompletionTokens int64     `gorm:"not null;default:0" json:"completion_tokens"`
	TotalTokens      int64     `gorm:"not null;default:0" json:"total_tokens"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func (Record) TableName() string { return "usage_records" }

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

// Add upserts the (user, model) accumulator: insert on first use, add the
// new counts on every call after.
func (r *Repo) Add(ctx context.Context, userID uint64, modelID string, u ai.Usage) error {
	rec := Record{
		UserID:           userID,
		ModelID:          modelID,
		PromptTokens:     int64(u.PromptTokens),
		CompletionTokens: int64(u.CompletionTokens),
		TotalTokens:      int64(u.TotalTokens),
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "model_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"prompt_tokens":     gorm.Expr("prompt_tokens + ?", rec.PromptTokens),
			"completion_tokens": gorm.Expr("completion_tokens + ?", rec.CompletionTokens),
			"total_tokens":      gorm.Expr("total_tokens + ?", rec.TotalTokens),
		}),
	}).Create(&rec).Error
}

func (r *Repo) Get(ctx context.Context, userID uint64, modelID string) (*Record, error) {
	var rec Record
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND model_id = ?", userID, modelID).
		First(&rec).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *Repo) ListForUser(ctx context.Context, userID uint64) ([]Record, error) {
	var out []Record
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("model_id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// TotalTokens sums accumulated usage for a model across the given users;
// the limits guard calls this with one id for personal groups and the whole
// member set for team groups.
func (r *Repo) TotalTokens(ctx context.Context, userIDs []uint64, modelID string) (int64, error) {
	if len(userIDs) == 0 {
		return 0, nil
	}
	var total *int64
	if err := r.db.WithContext(ctx).Model(&Record{}).
		Where("user_id IN ? AND model_id = ?", userIDs, modelID).
		Select("SUM(total_tokens)").
		Scan(&total).Error; err != nil {
		return 0, err
	}
	if total == nil {
		return 0, nil
	}
	return *total, nil
}
