package limits

import "time"

// Budget is the single global spend ceiling; the most recently created row
// governs. Usage is advisory, incremented after generation.
type Budget struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	Budget    float64   `gorm:"not null" json:"budget"`
	Usage     float64   `gorm:"not null;default:0" json:"usage"`
	CreatedAt time.Time `json:"created_at"`
}

func (Budget) TableName() string { return "budgets" }

// Limit is a per-model token ceiling, attached to user groups through
// GroupLimit.
type Limit struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	ModelID   string    `gorm:"type:varchar(64);index;not null" json:"model_id"`
	MaxTokens int64     `gorm:"not null" json:"max_tokens"`
	CreatedAt time.Time `json:"created_at"`
}

func (Limit) TableName() string { return "limits" }

type GroupLimit struct {
	GroupID uint64 `gorm:"primaryKey" json:"group_id"`
	LimitID uint64 `gorm:"primaryKey" json:"limit_id"`
}

func (GroupLimit) TableName() string { return "group_limits" }

// ByokCredential is a user-supplied key for a model host; holding one
// exempts that host's models from platform limits.
type ByokCredential struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    uint64    `gorm:"not null;index:idx_byok_user_host,unique,priority:1" json:"user_id"`
	Host      string    `gorm:"type:varchar(32);not null;index:idx_byok_user_host,unique,priority:2" json:"host"`
	APIKey    string    `gorm:"type:varchar(255);not null" json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

func (ByokCredential) TableName() string { return "byok_credentials" }
