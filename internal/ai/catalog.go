package ai

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// Model is one catalog entry mapping a platform model id to the host that
// serves it and the upstream model name that host expects.
type Model struct {
	ID       string `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Name     string `gorm:"type:varchar(128);not null" json:"name"`
	Host     string `gorm:"type:varchar(32);index;not null" json:"host"`
	Upstream string `gorm:"type:varchar(128);not null" json:"upstream"`
	IsImage  bool   `gorm:"not null;default:false" json:"is_image"`

	// USD per 1M tokens, used for budget accounting
	InputPrice  float64 `gorm:"not null;default:0" json:"input_price"`
	OutputPrice float64 `gorm:"not null;default:0" json:"output_price"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Model) TableName() string { return "ai_models" }

// Cost is the monetary cost of a call against this model.
func (m *Model) Cost(u Usage) float64 {
	return float64(u.PromptTokens)*m.InputPrice/1e6 + float64(u.CompletionTokens)*m.OutputPrice/1e6
}

type Catalog struct {
	db *gorm.DB
}

func NewCatalog(db *gorm.DB) *Catalog {
	return &Catalog{db: db}
}

func (c *Catalog) Get(ctx context.Context, id string) (*Model, error) {
	var m Model
	if err := c.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

func (c *Catalog) List(ctx context.Context) ([]Model, error) {
	var out []Model
	if err := c.db.WithContext(ctx).Order("id ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Catalog) Create(ctx context.Context, m *Model) error {
	return c.db.WithContext(ctx).Create(m).Error
}
