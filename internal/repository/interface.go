package repository

import (
	"context"

	"gorm.io/gorm"
)

// BaseRepo 仓储基础结构
type BaseRepo struct {
	db *gorm.DB
}

// DB 获取数据库实例
func (r *BaseRepo) DB() *gorm.DB {
	return r.db
}

// TxManager 事务管理器接口
type TxManager interface {
	// WithTransaction 在事务中执行函数，函数返回错误则整体回滚
	WithTransaction(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// txManager 事务管理器实现
type txManager struct {
	db *gorm.DB
}

// NewTxManager 创建事务管理器
func NewTxManager(db *gorm.DB) TxManager {
	return &txManager{db: db}
}

// WithTransaction 在事务中执行函数
func (m *txManager) WithTransaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return m.db.WithContext(ctx).Transaction(fn)
}
