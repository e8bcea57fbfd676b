package models

import "time"

type User struct {
	ID           uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	Email        string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	Username     string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"username"`
	PasswordHash string    `gorm:"type:varchar(255);not null" json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (User) TableName() string { return "users" }

type GroupType string

const (
	GroupPersonal GroupType = "personal"
	GroupTeam     GroupType = "team"
)

type Group struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	Name      string    `gorm:"type:varchar(64);not null" json:"name"`
	Type      GroupType `gorm:"type:varchar(16);not null" json:"type"`
	CreatedAt time.Time `json:"created_at"`
}

func (Group) TableName() string { return "groups" }

type UserGroup struct {
	UserID  uint64 `gorm:"primaryKey" json:"user_id"`
	GroupID uint64 `gorm:"primaryKey" json:"group_id"`
}

func (UserGroup) TableName() string { return "user_groups" }
