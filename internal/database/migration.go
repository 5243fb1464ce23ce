package database

import (
	"fmt"

	"github.com/wfunc/cat-game/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AutoMigrate 自动迁移数据库表结构
func AutoMigrate(db *gorm.DB, log *zap.Logger) error {
	if db == nil {
		return fmt.Errorf("数据库未初始化")
	}

	migrationModels := []interface{}{
		&models.Cat{},
		&models.GlobalEvent{},
	}

	for _, model := range migrationModels {
		if err := db.AutoMigrate(model); err != nil {
			log.Error("表迁移失败", zap.Any("model", model), zap.Error(err))
			return fmt.Errorf("表迁移失败: %w", err)
		}
	}

	log.Info("数据库迁移完成", zap.Int("tables", len(migrationModels)))
	return nil
}
