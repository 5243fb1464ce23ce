package repository

import (
	"github.com/wfunc/cat-game/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SetupTestDB 为测试套件设置测试数据库
// 使用内存数据库，不依赖文件系统，在所有环境中都能工作
func SetupTestDB() *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		panic(err)
	}

	// 内存库的每个连接是一份独立数据库，并发测试必须固定在单连接上
	sqlDB, err := db.DB()
	if err != nil {
		panic(err)
	}
	sqlDB.SetMaxOpenConns(1)

	err = db.AutoMigrate(
		&models.Cat{},
		&models.GlobalEvent{},
	)
	if err != nil {
		panic(err)
	}

	return db
}

// CleanupTestDB 清理测试数据库
func CleanupTestDB(db *gorm.DB) {
	if db == nil {
		return
	}
	db.Where("1 = 1").Delete(&models.Cat{})
	db.Where("1 = 1").Delete(&models.GlobalEvent{})
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
}

// TestDefaults 测试用的默认猫配置
func TestDefaults() CatDefaults {
	return CatDefaults{
		Coins:   500,
		Fish:    2,
		Premium: false,
		Tier:    "Kitten",
	}
}
