package limits

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/multimind-ai/multimind/internal/models"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) LatestBudget(ctx context.Context) (*Budget, error) {
	var b Budget
	err := r.db.WithContext(ctx).Order("created_at DESC, id DESC").First(&b).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *Repo) CreateBudget(ctx context.Context, b *Budget) error {
	return r.db.WithContext(ctx).Create(b).Error
}

// AddBudgetUsage increments the governing budget row. Deliberately a plain
// read-increment-write: budget enforcement is advisory, not a ledger.
func (r *Repo) AddBudgetUsage(ctx context.Context, amount float64) error {
	b, err := r.LatestBudget(ctx)
	if err != nil || b == nil {
		return err
	}
	return r.db.WithContext(ctx).Model(&Budget{}).
		Where("id = ?", b.ID).
		Update("usage", gorm.Expr("`usage` + ?", amount)).Error
}

func (r *Repo) CreateLimit(ctx context.Context, l *Limit) error {
	return r.db.WithContext(ctx).Create(l).Error
}

func (r *Repo) AttachLimitToGroup(ctx context.Context, groupID, limitID uint64) error {
	return r.db.WithContext(ctx).Create(&GroupLimit{GroupID: groupID, LimitID: limitID}).Error
}

type resolvedLimit struct {
	Limit
	GroupID   uint64
	GroupType models.GroupType
}

// LimitForUserModel resolves the caller's applicable limit for a model via
// group membership; ok=false when no group of theirs carries one.
func (r *Repo) LimitForUserModel(ctx context.Context, userID uint64, modelID string) (*Limit, *models.Group, bool, error) {
	var row resolvedLimit
	err := r.db.WithContext(ctx).
		Table("limits").
		Select("limits.*, groups.id AS group_id, groups.type AS group_type").
		Joins("JOIN group_limits ON group_limits.limit_id = limits.id").
		Joins("JOIN groups ON groups.id = group_limits.group_id").
		Joins("JOIN user_groups ON user_groups.group_id = groups.id").
		Where("user_groups.user_id = ? AND limits.model_id = ?", userID, modelID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, false, nil
	}
	if err != nil {
		return nil, nil, false, err
	}
	g := &models.Group{ID: row.GroupID, Type: row.GroupType}
	return &row.Limit, g, true, nil
}

func (r *Repo) GroupMemberIDs(ctx context.Context, groupID uint64) ([]uint64, error) {
	var ids []uint64
	if err := r.db.WithContext(ctx).Model(&models.UserGroup{}).
		Where("group_id = ?", groupID).
		Pluck("user_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *Repo) ByokKey(ctx context.Context, userID uint64, host string) (string, bool, error) {
	var cred ByokCredential
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND host = ?", userID, host).
		First(&cred).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return cred.APIKey, true, nil
}

// CreateByok replaces any existing key for the same (user, host) pair.
func (r *Repo) CreateByok(ctx context.Context, cred *ByokCredential) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "host"}},
			DoUpdates: clause.AssignmentColumns([]string{"api_key"}),
		}).
		Create(cred).Error
}

func (r *Repo) DeleteByok(ctx context.Context, userID uint64, host string) error {
	return r.db.WithContext(ctx).
		Where("user_id = ? AND host = ?", userID, host).
		Delete(&ByokCredential{}).Error
}
