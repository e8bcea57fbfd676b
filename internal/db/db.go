package db

import (
	"log"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/multimind-ai/multimind/internal/ai"
	"github.com/multimind-ai/multimind/internal/chat"
	"github.com/multimind-ai/multimind/internal/limits"
	"github.com/multimind-ai/multimind/internal/models"
	"github.com/multimind-ai/multimind/internal/usage"
)

func Connect(dsn string) *gorm.DB {
	gdb, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	return gdb
}

func Migrate(gdb *gorm.DB) error {
	return gdb.AutoMigrate(
		&models.User{},
		&models.Group{},
		&models.UserGroup{},
		&ai.Model{},
		&chat.Chat{},
		&chat.Message{},
		&chat.SharedConversation{},
		&limits.Budget{},
		&limits.Limit{},
		&limits.GroupLimit{},
		&limits.ByokCredential{},
		&usage.Record{},
	)
}
