package repository

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/wfunc/cat-game/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GlobalEventRepository 全局事件仓储接口
type GlobalEventRepository interface {
	// IsActive 事件当前是否处于激活窗口内
	IsActive(ctx context.Context, key string, now time.Time) (bool, error)
	// ActivateIfInactive 仅当事件不在激活窗口内时开启新窗口
	// 返回本次调用是否真正开启了窗口；已激活时不重置、不延长
	ActivateIfInactive(ctx context.Context, key string, now, until time.Time) (bool, error)
	// WithTx 返回绑定到事务的仓储
	WithTx(tx *gorm.DB) GlobalEventRepository
}

// globalEventRepo 全局事件仓储实现
type globalEventRepo struct {
	*BaseRepo
}

// NewGlobalEventRepository 创建全局事件仓储
func NewGlobalEventRepository(db *gorm.DB) GlobalEventRepository {
	return &globalEventRepo{
		BaseRepo: &BaseRepo{db: db},
	}
}

// IsActive 事件当前是否处于激活窗口内
func (r *globalEventRepo) IsActive(ctx context.Context, key string, now time.Time) (bool, error) {
	var event models.GlobalEvent
	err := r.db.WithContext(ctx).First(&event, "key = ?", key).Error
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, wrapStoreError(err)
	}
	return event.IsActive(now), nil
}

// ActivateIfInactive 条件激活
// 整个判断-写入用单条条件UPDATE（或冲突安全INSERT）完成，
// 两个并发触发竞争激活时只有一方成功，不会出现窗口被双倍延长
func (r *globalEventRepo) ActivateIfInactive(ctx context.Context, key string, now, until time.Time) (bool, error) {
	// 行已存在且窗口已过期：条件更新
	result := r.db.WithContext(ctx).
		Model(&models.GlobalEvent{}).
		Where("key = ? AND active_until <= ?", key, now).
		Update("active_until", until)
	if result.Error != nil {
		return false, wrapStoreError(result.Error)
	}
	if result.RowsAffected > 0 {
		return true, nil
	}

	// 行不存在：冲突安全插入
	event := &models.GlobalEvent{Key: key, ActiveUntil: until}
	insert := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(event)
	if insert.Error != nil {
		return false, wrapStoreError(insert.Error)
	}
	if insert.RowsAffected > 0 {
		return true, nil
	}

	// 行存在且仍在激活窗口内
	return false, nil
}

// WithTx 返回绑定到事务的仓储
func (r *globalEventRepo) WithTx(tx *gorm.DB) GlobalEventRepository {
	return &globalEventRepo{
		BaseRepo: &BaseRepo{db: tx},
	}
}
